package model

// EventCategory classifies the dominant activity a report describes.
type EventCategory string

const (
	EventCategoryDrilling EventCategory = "drilling"
	EventCategoryReaming  EventCategory = "reaming"
	EventCategoryTripping EventCategory = "tripping"
	EventCategoryAnomaly  EventCategory = "anomaly"
	EventCategoryOther    EventCategory = "other"
)

// AllEventCategories returns the closed set of categories.
func AllEventCategories() []EventCategory {
	return []EventCategory{
		EventCategoryDrilling,
		EventCategoryReaming,
		EventCategoryTripping,
		EventCategoryAnomaly,
		EventCategoryOther,
	}
}

// Event is a classified operational event derived from one report.
// Events are recomputable from the report and never hand-edited.
type Event struct {
	EventID      string        `json:"event_id"`
	ReportID     string        `json:"report_id"`
	WellID       string        `json:"well_id"`
	Category     EventCategory `json:"category"`
	Confidence   float64       `json:"confidence"`
	EvidenceSpan string        `json:"evidence_span"`
}
