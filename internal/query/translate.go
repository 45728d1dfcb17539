package query

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wellsight/ddr-engine/internal/model"
)

// Translator maps a natural-language question onto a QuerySpec using
// lexical rules over the known schema (well, parameter, dates). It is
// deliberately conservative: a question it cannot map within the closed
// operation set returns ErrUnmappable instead of a guess.
type Translator struct{}

// NewTranslator creates a rule-based translator.
func NewTranslator() *Translator {
	return &Translator{}
}

var aggregateCues = []struct {
	op   AggregateOp
	cues []string
}{
	{AggregateMax, []string{"max", "maximum", "highest", "peak", "deepest", "largest"}},
	{AggregateMin, []string{"min", "minimum", "lowest", "smallest", "shallowest"}},
	{AggregateAvg, []string{"average", "avg", "mean", "typical"}},
	{AggregateCount, []string{"how many", "count", "number of"}},
	{AggregateSum, []string{"total", "sum", "cumulative", "overall"}},
}

// parameterCues maps question phrasings onto canonical parameter names.
// Longer phrases are listed first so "rate of penetration" wins over
// "penetration".
var parameterCues = []struct {
	cue   string
	param string
}{
	{"rate of penetration", "penetration_rate"},
	{"penetration rate", "penetration_rate"},
	{"rop", "penetration_rate"},
	{"mud weight", "mud_weight"},
	{"mud density", "mud_weight"},
	{"measured depth", "depth"},
	{"hole depth", "depth"},
	{"depth", "depth"},
	{"gas", "total_gas"},
	{"temperature", "temperature"},
	{"pressure", "pressure"},
	{"viscosity", "viscosity"},
}

var (
	wellPattern = regexp.MustCompile(`(?i)\bwell\s+([A-Za-z0-9_-]+)`)
	wellIDLike  = regexp.MustCompile(`^[A-Za-z]+[-_]?\d+$`)
	datePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})(?:-(\d{2}))?\b`)
	yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

var monthNames = []struct {
	name  string
	month time.Month
}{
	{"january", time.January}, {"february", time.February}, {"march", time.March},
	{"april", time.April}, {"may", time.May}, {"june", time.June},
	{"july", time.July}, {"august", time.August}, {"september", time.September},
	{"october", time.October}, {"november", time.November}, {"december", time.December},
}

// Translate maps the question to a QuerySpec. Returns ErrUnmappable when
// the question has no recognizable well, parameter, or aggregation, or
// when it asks for something outside the closed operation set.
func (t *Translator) Translate(question string) (*QuerySpec, error) {
	lowered := strings.ToLower(question)

	spec := QuerySpec{}

	if m := wellPattern.FindStringSubmatch(question); m != nil {
		spec.WellID = m[1]
	} else {
		// Bare tokens like "W1" or "NOR-12" also identify a well.
		for _, tok := range strings.Fields(question) {
			tok = strings.Trim(tok, ".,?!")
			if wellIDLike.MatchString(tok) {
				spec.WellID = tok
				break
			}
		}
	}

	for _, pc := range parameterCues {
		if strings.Contains(lowered, pc.cue) {
			spec.Parameter = pc.param
			break
		}
	}

	for _, ac := range aggregateCues {
		for _, cue := range ac.cues {
			if containsWord(lowered, cue) {
				spec.Aggregate = ac.op
				break
			}
		}
		if spec.Aggregate != AggregateNone {
			break
		}
	}

	spec.From, spec.To = parseDateRange(lowered)

	// Questions about causes, narratives, or anything without a concrete
	// aggregation target cannot be expressed in the operation set.
	if spec.WellID == "" || spec.Parameter == "" && spec.Aggregate != AggregateCount {
		return nil, eris.Wrap(model.ErrUnmappable, "no well or parameter recognized")
	}
	if spec.Aggregate == AggregateNone {
		// A plain lookup maps to a sorted, bounded listing.
		spec.Sort = SortAsc
		spec.Limit = 31
	}

	if err := spec.Validate(); err != nil {
		return nil, eris.Wrap(model.ErrUnmappable, err.Error())
	}
	return &spec, nil
}

// parseDateRange recognizes explicit dates ("2024-01-03"), months with a
// year ("january 2024"), and bare years. Relative windows like "last
// week" have no stable anchor and are left unset.
func parseDateRange(lowered string) (time.Time, time.Time) {
	if m := datePattern.FindStringSubmatch(lowered); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if m[3] != "" {
			day, _ := strconv.Atoi(m[3])
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
			return d, d
		}
		start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	}

	// When several month names appear, the one mentioned first in the
	// question wins.
	first := -1
	var month time.Month
	for _, mn := range monthNames {
		if i := strings.Index(lowered, mn.name); i >= 0 && (first < 0 || i < first) {
			first = i
			month = mn.month
		}
	}
	if first >= 0 {
		if y := yearPattern.FindString(lowered); y != "" {
			year, _ := strconv.Atoi(y)
			start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			return start, start.AddDate(0, 1, -1)
		}
	}

	if y := yearPattern.FindString(lowered); y != "" {
		year, _ := strconv.Atoi(y)
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}

	return time.Time{}, time.Time{}
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(text[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}
