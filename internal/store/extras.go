package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/wellsight/ddr-engine/internal/model"
)

// reportExtras is the JSON document column holding the report fields that
// don't need their own indexed columns.
type reportExtras struct {
	RawExtractionRef  string             `json:"raw_extraction_ref,omitempty"`
	Operator          string             `json:"operator,omitempty"`
	RigName           string             `json:"rig_name,omitempty"`
	WellboreType      string             `json:"wellbore_type,omitempty"`
	SummaryActivities string             `json:"summary_activities,omitempty"`
	PlannedActivities string             `json:"planned_activities,omitempty"`
	ActivityRemarks   []string           `json:"activity_remarks,omitempty"`
	FieldErrors       []model.FieldError `json:"field_errors,omitempty"`
}

func marshalExtras(r *model.Report) (string, error) {
	doc, err := json.Marshal(reportExtras{
		RawExtractionRef:  r.RawExtractionRef,
		Operator:          r.Operator,
		RigName:           r.RigName,
		WellboreType:      r.WellboreType,
		SummaryActivities: r.SummaryActivities,
		PlannedActivities: r.PlannedActivities,
		ActivityRemarks:   r.ActivityRemarks,
		FieldErrors:       r.FieldErrors,
	})
	if err != nil {
		return "", eris.Wrap(err, "store: marshal report extras")
	}
	return string(doc), nil
}

func applyExtras(r *model.Report, doc string) error {
	if doc == "" {
		return nil
	}
	var ex reportExtras
	if err := json.Unmarshal([]byte(doc), &ex); err != nil {
		return eris.Wrap(err, "store: unmarshal report extras")
	}
	r.RawExtractionRef = ex.RawExtractionRef
	r.Operator = ex.Operator
	r.RigName = ex.RigName
	r.WellboreType = ex.WellboreType
	r.SummaryActivities = ex.SummaryActivities
	r.PlannedActivities = ex.PlannedActivities
	r.ActivityRemarks = ex.ActivityRemarks
	r.FieldErrors = ex.FieldErrors
	return nil
}

func marshalIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal ids")
	}
	return string(b), nil
}

func unmarshalIDs(doc string) ([]string, error) {
	if doc == "" || doc == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(doc), &ids); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal ids")
	}
	return ids, nil
}
