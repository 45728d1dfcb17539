package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy. Each failure is
// contained at the narrowest scope: field, report, well, or query branch.
var (
	// ErrCapabilityUnavailable means the LLM capability failed after its
	// retry budget. Surfaced as absent content, not an error page.
	ErrCapabilityUnavailable = errors.New("llm capability unavailable")

	// ErrUnmappable means a question cannot be translated into the closed
	// structured operation set. Callers fall back to retrieval-only.
	ErrUnmappable = errors.New("question not mappable to structured query")

	// ErrReportNotFound is returned by store lookups for unknown report IDs.
	ErrReportNotFound = errors.New("report not found")
)

// IncompleteExtractionError means mandatory fields (well_id, report_date)
// were missing or unresolvable. The report stays pending/failed and nothing
// is written to the time-series store.
type IncompleteExtractionError struct {
	Missing []string
}

func (e *IncompleteExtractionError) Error() string {
	return fmt.Sprintf("incomplete extraction: missing %v", e.Missing)
}

// ConversionError is a per-field numeric or unit conversion failure. It is
// recorded on the report and never fatal to the report as a whole.
type ConversionError struct {
	Field  string
	Raw    string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion failed for %s (%q): %s", e.Field, e.Raw, e.Reason)
}

// DetectorFailureError scopes a detector error to one well so ingestion and
// detection for other wells proceed untouched.
type DetectorFailureError struct {
	WellID string
	Err    error
}

func (e *DetectorFailureError) Error() string {
	return fmt.Sprintf("detector failed for well %s: %v", e.WellID, e.Err)
}

func (e *DetectorFailureError) Unwrap() error { return e.Err }
