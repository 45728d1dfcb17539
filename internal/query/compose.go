package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/wellsight/ddr-engine/internal/model"
)

// Compose merges the two branch results into one Answer. Structured facts
// are stated first, narrative passages follow, and every claim carries a
// report citation. Windows covered by neither source are marked unknown
// instead of being papered over.
func Compose(question string, intent model.Intent, structured, narrative branchResult) *model.Answer {
	answer := &model.Answer{
		Question: question,
		Intent:   intent,
		Facts:    structured.facts,
		Passages: narrative.passages,
	}
	answer.Flags = append(answer.Flags, structured.flags...)
	answer.Flags = append(answer.Flags, narrative.flags...)

	var parts []string
	for _, fact := range structured.facts {
		parts = append(parts, fmt.Sprintf("%s [%s]", fact.Statement, citeLabel(fact.Citations)))
	}
	for _, p := range narrative.passages {
		parts = append(parts, fmt.Sprintf("%s [%s]", strings.TrimSpace(p.Span), p.ReportID))
	}

	wantStructured := intent == model.IntentStructured || intent == model.IntentBoth
	// An unmappable structured question was answered by retrieval, so
	// narrative coverage applies to it too.
	wantNarrative := intent == model.IntentNarrative || intent == model.IntentBoth ||
		hasFlag(structured.flags, model.FlagUnmappable)

	if wantStructured && len(structured.facts) == 0 && !hasFlag(structured.flags, model.FlagUnmappable) {
		answer.Unknown = append(answer.Unknown, "no observations cover the requested well and date range")
	}
	if wantNarrative && len(narrative.passages) == 0 {
		answer.Unknown = append(answer.Unknown, "no report text covers the requested topic")
	}
	if len(answer.Unknown) > 0 {
		answer.Flags = append(answer.Flags, model.FlagUnknownCoverage)
		for _, u := range answer.Unknown {
			parts = append(parts, "unknown: "+u)
		}
	}

	answer.Text = strings.Join(parts, " ")
	answer.Citations = collectCitations(structured.facts, narrative.passages)
	return answer
}

func citeLabel(citations []model.Citation) string {
	if len(citations) == 0 {
		return "uncited"
	}
	if len(citations) == 1 {
		return citations[0].ReportID
	}
	return fmt.Sprintf("%s..%s", citations[0].ReportID, citations[len(citations)-1].ReportID)
}

func hasFlag(flags []model.AnswerFlag, want model.AnswerFlag) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// collectCitations unions fact and passage citations, deduplicated by
// report and ordered by first appearance.
func collectCitations(facts []model.StructuredFact, passages []model.Passage) []model.Citation {
	seen := map[string]struct{}{}
	var out []model.Citation

	add := func(c model.Citation) {
		if _, ok := seen[c.ReportID]; ok {
			return
		}
		seen[c.ReportID] = struct{}{}
		out = append(out, c)
	}

	for _, f := range facts {
		for _, c := range f.Citations {
			add(c)
		}
	}
	for _, p := range passages {
		add(model.Citation{
			ReportID:   p.ReportID,
			WellID:     p.WellID,
			ReportDate: dateFromReportID(p.ReportID),
		})
	}
	return out
}

// dateFromReportID recovers the report date from the well/date identifier.
func dateFromReportID(reportID string) time.Time {
	idx := strings.LastIndexByte(reportID, '/')
	if idx < 0 {
		return time.Time{}
	}
	d, err := time.Parse("2006-01-02", reportID[idx+1:])
	if err != nil {
		return time.Time{}
	}
	return d
}
