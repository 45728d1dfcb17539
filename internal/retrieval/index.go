// Package retrieval maintains a semantic index over report summaries and
// text spans for free-text question answering.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/store"
)

// document is one indexed passage with its term-frequency vector.
type document struct {
	docID    string
	reportID string
	wellID   string
	text     string
	tf       map[string]float64
}

// Index is an in-memory TF-IDF index keyed by report. It is process-wide
// state rebuildable from the store, never the sole source of truth.
type Index struct {
	mu      sync.RWMutex
	docs    map[string]*document
	df      map[string]int
	pending map[string]string // reportID → wellID awaiting a summary
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		docs:    make(map[string]*document),
		df:      make(map[string]int),
		pending: make(map[string]string),
	}
}

// MarkExpected records that a report has been normalized and should
// eventually be indexed. Until IndexReport runs for it, searches report a
// partial index.
func (ix *Index) MarkExpected(reportID, wellID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.pending[reportID] = wellID
}

// IndexReport replaces the indexed passages for one report with the given
// summary text and the report's remark spans. Entries for a superseded
// summary are removed, not shadowed.
func (ix *Index) IndexReport(report *model.Report, summaryText string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(report.ID)

	if summaryText != "" {
		ix.addLocked(report.ID+"#summary", report, summaryText)
	}
	for i, remark := range report.ActivityRemarks {
		ix.addLocked(report.ID+"#remark"+strconv.Itoa(i), report, remark)
	}
	delete(ix.pending, report.ID)
}

// Remove drops all passages for a report.
func (ix *Index) Remove(reportID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(reportID)
	delete(ix.pending, reportID)
}

func (ix *Index) addLocked(docID string, report *model.Report, text string) {
	tf := termFrequencies(tokenize(text))
	if len(tf) == 0 {
		return
	}
	for term := range tf {
		ix.df[term]++
	}
	ix.docs[docID] = &document{
		docID:    docID,
		reportID: report.ID,
		wellID:   report.WellID,
		text:     text,
		tf:       tf,
	}
}

func (ix *Index) removeLocked(reportID string) {
	for id, doc := range ix.docs {
		if doc.reportID != reportID {
			continue
		}
		for term := range doc.tf {
			if ix.df[term] <= 1 {
				delete(ix.df, term)
			} else {
				ix.df[term]--
			}
		}
		delete(ix.docs, id)
	}
}

// Search returns the top-k passages ranked by TF-IDF cosine similarity.
// The second return is true when the index is empty or stale, meaning the
// results may not cover every normalized report; callers surface that as a
// caveat rather than a failure.
func (ix *Index) Search(question string, topK int) ([]model.Passage, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	partial := len(ix.docs) == 0 || len(ix.pending) > 0

	queryTF := termFrequencies(tokenize(question))
	if len(queryTF) == 0 || len(ix.docs) == 0 {
		return nil, partial
	}

	n := float64(len(ix.docs))
	queryVec := ix.weighLocked(queryTF, n)

	type scoredDoc struct {
		doc   *document
		score float64
	}
	scored := make([]scoredDoc, 0, len(ix.docs))
	for _, doc := range ix.docs {
		score := cosine(queryVec, ix.weighLocked(doc.tf, n))
		if score > 0 {
			scored = append(scored, scoredDoc{doc: doc, score: score})
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].doc.docID < scored[j].doc.docID
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	passages := make([]model.Passage, len(scored))
	for i, s := range scored {
		passages[i] = model.Passage{
			ReportID: s.doc.reportID,
			WellID:   s.doc.wellID,
			Score:    s.score,
			Span:     s.doc.text,
		}
	}
	return passages, partial
}

// weighLocked converts raw term frequencies into TF-IDF weights.
func (ix *Index) weighLocked(tf map[string]float64, n float64) map[string]float64 {
	vec := make(map[string]float64, len(tf))
	for term, freq := range tf {
		df := ix.df[term]
		if df == 0 {
			continue
		}
		vec[term] = freq * math.Log(1+n/float64(df))
	}
	return vec
}

// Rebuild drops the index and reloads it from current summaries and
// reports, the durable source of truth.
func (ix *Index) Rebuild(ctx context.Context, st store.Store) error {
	summaries, err := st.ListCurrentSummaries(ctx)
	if err != nil {
		return eris.Wrap(err, "retrieval: list summaries")
	}
	byReport := make(map[string]string, len(summaries))
	for _, s := range summaries {
		byReport[s.ReportID] = s.Text
	}

	wells, err := st.ListWells(ctx)
	if err != nil {
		return eris.Wrap(err, "retrieval: list wells")
	}

	ix.mu.Lock()
	ix.docs = make(map[string]*document)
	ix.df = make(map[string]int)
	ix.pending = make(map[string]string)
	ix.mu.Unlock()

	indexed := 0
	for _, well := range wells {
		reports, err := st.ListReports(ctx, well)
		if err != nil {
			return eris.Wrapf(err, "retrieval: list reports %s", well)
		}
		for i := range reports {
			r := &reports[i]
			if r.Status != model.ReportStatusNormalized {
				continue
			}
			ix.IndexReport(r, byReport[r.ID])
			indexed++
		}
	}

	zap.L().Info("retrieval: index rebuilt",
		zap.Int("wells", len(wells)),
		zap.Int("reports", indexed),
	)
	return nil
}

// Size returns the number of indexed passages.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

func cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot, na, nb float64
	for term, x := range a {
		na += x * x
		if y, ok := b[term]; ok {
			dot += x * y
		}
	}
	for _, y := range b {
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "was": {}, "is": {},
	"it": {}, "this": {}, "that": {}, "from": {}, "by": {}, "as": {},
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, skip := stopwords[f]; skip {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func termFrequencies(tokens []string) map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	total := float64(len(tokens))
	for tok := range tf {
		tf[tok] /= total
	}
	return tf
}
