package model

import "time"

// Summary is the bounded-length digest of one report. Exactly one summary
// per report is current; re-normalization supersedes the old one, which is
// retained as non-current rather than deleted.
type Summary struct {
	SummaryID      string    `json:"summary_id"`
	ReportID       string    `json:"report_id"`
	Text           string    `json:"text"`
	GeneratedAt    time.Time `json:"generated_at"`
	SourceEventIDs []string  `json:"source_event_ids,omitempty"`
	Current        bool      `json:"current"`
}
