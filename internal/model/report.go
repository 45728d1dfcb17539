package model

import (
	"fmt"
	"time"
)

// ReportStatus represents the lifecycle state of an ingested report.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "pending"
	ReportStatusNormalized ReportStatus = "normalized"
	ReportStatusFailed     ReportStatus = "failed"
)

// Report is one Daily Drilling Report for a well on a given date.
// A report is immutable once normalized, except for status transitions.
type Report struct {
	ID                 string       `json:"id"`
	WellID             string       `json:"well_id"`
	ReportDate         time.Time    `json:"report_date"`
	IngestionTimestamp time.Time    `json:"ingestion_timestamp"`
	RawExtractionRef   string       `json:"raw_extraction_ref"`
	Status             ReportStatus `json:"status"`

	// Header fields recovered from key-value tables. All optional.
	Operator          string `json:"operator,omitempty"`
	RigName           string `json:"rig_name,omitempty"`
	WellboreType      string `json:"wellbore_type,omitempty"`
	SummaryActivities string `json:"summary_activities,omitempty"`
	PlannedActivities string `json:"planned_activities,omitempty"`

	// ActivityRemarks holds free-text remarks lifted from operations
	// tables, in row order. Event classification and retrieval read these.
	ActivityRemarks []string `json:"activity_remarks,omitempty"`

	// FieldErrors records per-field conversion failures. Non-fatal: the
	// report still normalizes without the affected observations.
	FieldErrors []FieldError `json:"field_errors,omitempty"`
}

// FieldError is a serializable record of a per-field conversion failure.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ReportID derives the canonical report identifier from well and date.
// The same well/date always maps to the same ID, which is what gives
// re-ingestion its overwrite semantics.
func ReportID(wellID string, reportDate time.Time) string {
	return fmt.Sprintf("%s/%s", wellID, reportDate.Format("2006-01-02"))
}

// WellTimeline is the ordered sequence of reports for one well.
type WellTimeline struct {
	WellID  string   `json:"well_id"`
	Reports []Report `json:"reports"`
}
