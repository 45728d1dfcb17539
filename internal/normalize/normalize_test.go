package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/model"
)

func testExtraction() model.RawExtraction {
	return model.RawExtraction{
		Ref:        "upload/w1-2024-01-03.json",
		WellID:     "W1",
		ReportDate: "2024-01-03",
		Tables: []model.ExtractedTable{
			{
				Name: "common_header",
				Rows: [][]string{
					{"Operator", "Northern Energy"},
					{"Rig Name", "Polar Star"},
					{"Dist Drilled (m)", "142.5"},
					{"Penetration Rate", "12.4", "m/h"},
					{"Mud Weight", "1.2", "sg"},
					{"Water Depth", "not measured"},
				},
			},
			{
				Name: "operations",
				Rows: [][]string{
					{"Start Time", "End Time", "End Depth (m)", "Main Sub Activity", "Remark"},
					{"00:00", "06:00", "3450", "Drilling", "Drilled ahead 8.5in hole"},
					{"06:00", "08:00", "3450", "Circulating", "Circulated bottoms up"},
				},
			},
			{
				Name: "gas_readings",
				Rows: [][]string{
					{"Depth (m)", "Total Gas", "C1"},
					{"3400", "1.2", "0.8"},
					{"3450", "1.4", "0.9"},
				},
			},
		},
		TextSpans: []model.TextSpan{
			{Text: "Summary of activities: Drilled 8.5in section to 3450m.", Confidence: 0.95},
			{Text: "Planned activities: Continue drilling to section TD.", Confidence: 0.92},
		},
	}
}

func newTestNormalizer() *Normalizer {
	return New(config.NormalizeConfig{MinCellConfidence: 0.3})
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	ingested := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)

	report, obs, err := n.Normalize(testExtraction(), ingested)
	require.NoError(t, err)

	t.Run("report identity", func(t *testing.T) {
		assert.Equal(t, "W1/2024-01-03", report.ID)
		assert.Equal(t, "W1", report.WellID)
		assert.Equal(t, model.ReportStatusNormalized, report.Status)
	})

	t.Run("header fields", func(t *testing.T) {
		assert.Equal(t, "Northern Energy", report.Operator)
		assert.Equal(t, "Polar Star", report.RigName)
	})

	t.Run("text spans mapped", func(t *testing.T) {
		assert.Equal(t, "Drilled 8.5in section to 3450m.", report.SummaryActivities)
		assert.Equal(t, "Continue drilling to section TD.", report.PlannedActivities)
	})

	t.Run("remarks lifted from operations", func(t *testing.T) {
		require.Len(t, report.ActivityRemarks, 2)
		assert.Contains(t, report.ActivityRemarks[0], "Drilled ahead")
	})

	t.Run("unit reconciliation", func(t *testing.T) {
		mw := findObs(t, obs, "mud_weight", 0)
		assert.InDelta(t, 10.014, mw.Value, 0.001) // 1.2 sg in ppg
		assert.Equal(t, model.UnitPPG, mw.Unit)

		rop := findObs(t, obs, "penetration_rate", 0)
		assert.InDelta(t, 12.4, rop.Value, 0.001)
		assert.Equal(t, model.UnitMetersPerHour, rop.Unit)
	})

	t.Run("series indexed by depth", func(t *testing.T) {
		g1 := findObs(t, obs, "total_gas", 3400)
		assert.InDelta(t, 1.2, g1.Value, 0.001)
		g2 := findObs(t, obs, "total_gas", 3450)
		assert.InDelta(t, 1.4, g2.Value, 0.001)
	})

	t.Run("unparseable numeric recorded per field", func(t *testing.T) {
		require.NotEmpty(t, report.FieldErrors)
		var found bool
		for _, fe := range report.FieldErrors {
			if fe.Field == "water_depth" {
				found = true
			}
		}
		assert.True(t, found, "water_depth conversion failure should be recorded")
	})
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	ingested := time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC)

	r1, obs1, err := n.Normalize(testExtraction(), ingested)
	require.NoError(t, err)
	r2, obs2, err := n.Normalize(testExtraction(), ingested)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, obs1, obs2)
}

func TestNormalizeIncompleteExtraction(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()

	t.Run("missing well id", func(t *testing.T) {
		t.Parallel()
		raw := testExtraction()
		raw.WellID = "  "
		_, _, err := n.Normalize(raw, time.Now())
		var incomplete *model.IncompleteExtractionError
		require.ErrorAs(t, err, &incomplete)
		assert.Contains(t, incomplete.Missing, "well_id")
	})

	t.Run("unparseable date", func(t *testing.T) {
		t.Parallel()
		raw := testExtraction()
		raw.ReportDate = "sometime in january"
		_, _, err := n.Normalize(raw, time.Now())
		var incomplete *model.IncompleteExtractionError
		require.ErrorAs(t, err, &incomplete)
		assert.Contains(t, incomplete.Missing, "report_date")
	})

	t.Run("both missing lists both", func(t *testing.T) {
		t.Parallel()
		_, _, err := n.Normalize(model.RawExtraction{}, time.Now())
		var incomplete *model.IncompleteExtractionError
		require.ErrorAs(t, err, &incomplete)
		assert.Len(t, incomplete.Missing, 2)
	})
}

func TestNormalizeSkipsLowConfidenceCells(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	raw := model.RawExtraction{
		WellID:     "W1",
		ReportDate: "2024-01-03",
		Tables: []model.ExtractedTable{
			{
				Name: "common_header",
				Rows: [][]string{
					{"Mud Weight", "10.0", "ppg"},
					{"Hole Depth", "9999", "m"},
				},
				Confidences: [][]float64{
					{1.0, 0.9, 0.9},
					{1.0, 0.1, 0.9}, // garbage OCR read
				},
			},
		},
	}

	_, obs, err := n.Normalize(raw, time.Now())
	require.NoError(t, err)

	assert.Len(t, obs, 1)
	assert.Equal(t, "mud_weight", obs[0].ParameterName)
}

func findObs(t *testing.T, obs []model.ParameterObservation, param string, index float64) model.ParameterObservation {
	t.Helper()
	for _, o := range obs {
		if o.ParameterName == param && o.Index == index {
			return o
		}
	}
	t.Fatalf("observation %s@%v not found", param, index)
	return model.ParameterObservation{}
}
