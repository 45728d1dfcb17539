package model

import "time"

// Intent is the closed set of question classifications the router produces.
type Intent string

const (
	IntentStructured Intent = "structured"
	IntentNarrative  Intent = "narrative"
	IntentBoth       Intent = "both"
)

// Citation points a claim in an answer at the report that grounds it.
type Citation struct {
	ReportID   string    `json:"report_id"`
	WellID     string    `json:"well_id"`
	ReportDate time.Time `json:"report_date"`
}

// StructuredFact is one fact produced by the structured query engine,
// carrying the exact query applied so the answer can cite it.
type StructuredFact struct {
	Statement    string     `json:"statement"`
	Value        float64    `json:"value"`
	Unit         string     `json:"unit"`
	AppliedQuery string     `json:"applied_query"`
	Citations    []Citation `json:"citations"`
}

// Passage is one retrieved text snippet with its provenance and score.
type Passage struct {
	ReportID string  `json:"report_id"`
	WellID   string  `json:"well_id"`
	Score    float64 `json:"score"`
	Span     string  `json:"span"`
}

// AnswerFlag marks a caveat the caller must surface. Failure states are
// always explicit on the answer, never a silent empty result.
type AnswerFlag string

const (
	FlagPartialIndex    AnswerFlag = "partial_index"
	FlagBranchTimeout   AnswerFlag = "branch_timeout"
	FlagUnmappable      AnswerFlag = "unmappable_fallback"
	FlagUnknownCoverage AnswerFlag = "unknown_coverage"
	FlagNoSummary       AnswerFlag = "no_summary"
)

// Answer is the composed response to one question.
type Answer struct {
	Question  string           `json:"question"`
	Intent    Intent           `json:"intent"`
	Text      string           `json:"text"`
	Facts     []StructuredFact `json:"facts,omitempty"`
	Passages  []Passage        `json:"passages,omitempty"`
	Citations []Citation       `json:"citations,omitempty"`
	Flags     []AnswerFlag     `json:"flags,omitempty"`
	// Unknown lists well/date windows the question asked about that no
	// source covered. Stated explicitly so nothing is fabricated.
	Unknown []string `json:"unknown,omitempty"`
}

// HasFlag reports whether the answer carries the given caveat.
func (a *Answer) HasFlag(f AnswerFlag) bool {
	for _, have := range a.Flags {
		if have == f {
			return true
		}
	}
	return false
}
