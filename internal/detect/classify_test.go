package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsight/ddr-engine/internal/model"
)

func classifyTestReport(remarks ...string) *model.Report {
	date := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	return &model.Report{
		ID:              model.ReportID("W1", date),
		WellID:          "W1",
		ReportDate:      date,
		Status:          model.ReportStatusNormalized,
		ActivityRemarks: remarks,
	}
}

func TestClassifyReport_Categories(t *testing.T) {
	tests := []struct {
		name   string
		remark string
		want   model.EventCategory
	}{
		{"drilling", "Drilled 12 1/4 in section from 1500 m to 1520 m", model.EventCategoryDrilling},
		{"reaming", "Reamed tight spot at 1480 m, circulated clean", model.EventCategoryReaming},
		{"tripping", "POOH to change bit, RIH to bottom", model.EventCategoryTripping},
		{"well control", "Observed gain of 2 bbl, shut in well, kick circulated out", model.EventCategoryAnomaly},
		{"low signal", "Waiting on weather", model.EventCategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := ClassifyReport(classifyTestReport(tt.remark), nil, 0.3)
			require.Len(t, events, 1)
			assert.Equal(t, tt.want, events[0].Category)
			assert.Equal(t, tt.remark, events[0].EvidenceSpan)
		})
	}
}

func TestClassifyReport_LowConfidenceKeptAsOther(t *testing.T) {
	// Below-threshold classifications degrade to other instead of being
	// dropped.
	events := ClassifyReport(classifyTestReport("Rig maintenance"), nil, 0.3)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCategoryOther, events[0].Category)
}

func TestClassifyReport_ROPSignatureBoostsDrilling(t *testing.T) {
	report := classifyTestReport("Drilled ahead")
	obs := []model.ParameterObservation{{
		ReportID:      report.ID,
		WellID:        "W1",
		ParameterName: "penetration_rate",
		Value:         22.5,
		Unit:          model.UnitMetersPerHour,
	}}

	withROP := ClassifyReport(report, obs, 0.3)
	withoutROP := ClassifyReport(report, nil, 0.3)
	require.Len(t, withROP, 1)
	require.Len(t, withoutROP, 1)
	assert.Greater(t, withROP[0].Confidence, withoutROP[0].Confidence)
	assert.Equal(t, model.EventCategoryDrilling, withROP[0].Category)
}

func TestClassifyReport_FallsBackToSummaryActivities(t *testing.T) {
	report := classifyTestReport()
	report.SummaryActivities = "Tripped out of hole for BHA change"

	events := ClassifyReport(report, nil, 0.3)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCategoryTripping, events[0].Category)
}

func TestClassifyReport_NoText(t *testing.T) {
	events := ClassifyReport(classifyTestReport(), nil, 0.3)
	assert.Empty(t, events)
}
