package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wellsight/ddr-engine/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testReport(wellID string, day int, ingested time.Time) *model.Report {
	date := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &model.Report{
		ID:                 model.ReportID(wellID, date),
		WellID:             wellID,
		ReportDate:         date,
		IngestionTimestamp: ingested,
		Status:             model.ReportStatusNormalized,
		Operator:           "Northern Energy",
		RigName:            "Rig 42",
	}
}

func testObs(r *model.Report, param string, value float64, unit string, idx float64) model.ParameterObservation {
	return model.ParameterObservation{
		ReportID:      r.ID,
		WellID:        r.WellID,
		ReportDate:    r.ReportDate,
		ParameterName: param,
		Value:         value,
		Unit:          unit,
		Index:         idx,
	}
}

// --- Reports ---

func TestSQLite_UpsertReport_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := testReport("W1", 3, time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC))
	r.ActivityRemarks = []string{"Drilled ahead", "Circulated bottoms up"}
	obs := []model.ParameterObservation{
		testObs(r, "depth", 1520, model.UnitMeters, 0),
		testObs(r, "mud_weight", 10.2, model.UnitPPG, 0),
	}
	require.NoError(t, st.UpsertReport(ctx, r, obs))

	got, err := st.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.WellID, got.WellID)
	assert.Equal(t, r.Operator, got.Operator)
	assert.Equal(t, r.ActivityRemarks, got.ActivityRemarks)
	assert.True(t, got.ReportDate.Equal(r.ReportDate))
}

func TestSQLite_GetReport_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetReport(context.Background(), "W9/2024-01-01")
	assert.True(t, errors.Is(err, model.ErrReportNotFound))
}

func TestSQLite_UpsertReport_ReplacesObservations(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := testReport("W1", 3, time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC))
	first := []model.ParameterObservation{
		testObs(r, "depth", 1500, model.UnitMeters, 0),
		testObs(r, "mud_weight", 10.0, model.UnitPPG, 0),
	}
	require.NoError(t, st.UpsertReport(ctx, r, first))

	// Re-ingesting the same report replaces its series wholesale, so a
	// shrunken extraction leaves no orphaned rows behind.
	r.IngestionTimestamp = r.IngestionTimestamp.Add(time.Hour)
	second := []model.ParameterObservation{
		testObs(r, "depth", 1520, model.UnitMeters, 0),
	}
	require.NoError(t, st.UpsertReport(ctx, r, second))

	got, err := st.RangeQuery(ctx, "W1", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "depth", got[0].ParameterName)
	assert.InDelta(t, 1520, got[0].Value, 1e-9)
}

func TestSQLite_UpsertReport_StaleWriterLoses(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	newer := testReport("W1", 3, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC))
	newer.Operator = "Winning Operator"
	require.NoError(t, st.UpsertReport(ctx, newer, []model.ParameterObservation{
		testObs(newer, "depth", 1520, model.UnitMeters, 0),
	}))

	stale := testReport("W1", 3, time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC))
	stale.Operator = "Losing Operator"
	require.NoError(t, st.UpsertReport(ctx, stale, []model.ParameterObservation{
		testObs(stale, "depth", 1400, model.UnitMeters, 0),
	}))

	got, err := st.GetReport(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, "Winning Operator", got.Operator)

	obs, err := st.RangeQuery(ctx, "W1", time.Time{}, time.Time{}, []string{"depth"})
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.InDelta(t, 1520, obs[0].Value, 1e-9)
}

func TestSQLite_ListReports_OrderedByDate(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, day := range []int{5, 3, 4} {
		require.NoError(t, st.UpsertReport(ctx, testReport("W1", day, now), nil))
	}
	require.NoError(t, st.UpsertReport(ctx, testReport("W2", 1, now), nil))

	reports, err := st.ListReports(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "W1/2024-01-03", reports[0].ID)
	assert.Equal(t, "W1/2024-01-05", reports[2].ID)

	latest, err := st.Latest(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, "W1/2024-01-05", latest.ID)

	wells, err := st.ListWells(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"W1", "W2"}, wells)
}

func TestSQLite_SetReportStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := testReport("W1", 3, time.Now().UTC())
	require.NoError(t, st.UpsertReport(ctx, r, nil))

	require.NoError(t, st.SetReportStatus(ctx, r.ID, model.ReportStatusFailed))
	got, err := st.GetReport(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReportStatusFailed, got.Status)

	err = st.SetReportStatus(ctx, "W9/2024-01-01", model.ReportStatusFailed)
	assert.True(t, errors.Is(err, model.ErrReportNotFound))
}

// --- Range queries ---

func TestSQLite_RangeQuery_FiltersAndOrders(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for day, depth := range map[int]float64{3: 1500, 4: 1520, 5: 1560} {
		r := testReport("W1", day, now)
		require.NoError(t, st.UpsertReport(ctx, r, []model.ParameterObservation{
			testObs(r, "depth", depth, model.UnitMeters, 0),
			testObs(r, "mud_weight", 10.0, model.UnitPPG, 0),
		}))
	}

	from := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	obs, err := st.RangeQuery(ctx, "W1", from, to, []string{"depth"})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.InDelta(t, 1520, obs[0].Value, 1e-9)
	assert.InDelta(t, 1560, obs[1].Value, 1e-9)

	all, err := st.RangeQuery(ctx, "W1", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].ReportDate.Before(all[i-1].ReportDate))
	}
}

func TestSQLite_RangeQuery_EmptyWell(t *testing.T) {
	st := newTestSQLiteStore(t)

	obs, err := st.RangeQuery(context.Background(), "W9", time.Time{}, time.Time{}, nil)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

// --- Events and anomalies ---

func TestSQLite_ReplaceEvents(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := testReport("W1", 3, time.Now().UTC())
	require.NoError(t, st.UpsertReport(ctx, r, nil))

	first := []model.Event{
		{EventID: "e-1", ReportID: r.ID, WellID: "W1", Category: model.EventCategoryDrilling, Confidence: 0.9},
		{EventID: "e-2", ReportID: r.ID, WellID: "W1", Category: model.EventCategoryTripping, Confidence: 0.7},
	}
	require.NoError(t, st.ReplaceEvents(ctx, r.ID, first))

	second := []model.Event{
		{EventID: "e-3", ReportID: r.ID, WellID: "W1", Category: model.EventCategoryReaming, Confidence: 0.8, EvidenceSpan: "reamed tight spot at 1480 m"},
	}
	require.NoError(t, st.ReplaceEvents(ctx, r.ID, second))

	got, err := st.EventsForReport(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventCategoryReaming, got[0].Category)
	assert.Equal(t, "reamed tight spot at 1480 m", got[0].EvidenceSpan)

	byWell, err := st.ListEvents(ctx, "W1")
	require.NoError(t, err)
	assert.Len(t, byWell, 1)
}

func TestSQLite_ReplaceAnomalies(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := model.Anomaly{
		AnomalyID:      "a-1",
		WellID:         "W1",
		Metric:         "mud_weight",
		WindowStart:    time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		WindowEnd:      time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		DeviationScore: 4.2,
		Description:    "mud_weight deviated from trailing median",
	}
	require.NoError(t, st.ReplaceAnomalies(ctx, "W1", []model.Anomaly{a}))

	// A rerun replaces the well's anomaly set rather than accumulating.
	a.AnomalyID = "a-2"
	a.DeviationScore = 5.0
	require.NoError(t, st.ReplaceAnomalies(ctx, "W1", []model.Anomaly{a}))

	got, err := st.ListAnomalies(ctx, "W1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a-2", got[0].AnomalyID)
	assert.InDelta(t, 5.0, got[0].DeviationScore, 1e-9)
	assert.True(t, got[0].WindowStart.Equal(a.WindowStart))
}

// --- Summaries ---

func TestSQLite_PutSummary_Supersedes(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := testReport("W1", 3, time.Now().UTC())
	require.NoError(t, st.UpsertReport(ctx, r, nil))

	first := model.Summary{
		SummaryID:   "s-1",
		ReportID:    r.ID,
		Text:        "Drilled to 1500 m.",
		GeneratedAt: time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.PutSummary(ctx, first))

	second := model.Summary{
		SummaryID:      "s-2",
		ReportID:       r.ID,
		Text:           "Drilled to 1520 m, circulated bottoms up.",
		GeneratedAt:    time.Date(2024, 1, 4, 6, 0, 0, 0, time.UTC),
		SourceEventIDs: []string{"e-1", "e-2"},
	}
	require.NoError(t, st.PutSummary(ctx, second))

	got, err := st.GetCurrentSummary(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s-2", got.SummaryID)
	assert.True(t, got.Current)
	assert.Equal(t, []string{"e-1", "e-2"}, got.SourceEventIDs)

	all, err := st.ListCurrentSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "s-2", all[0].SummaryID)

	history, err := st.SummaryHistory(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "s-1", history[0].SummaryID)
	assert.False(t, history[0].Current)
	assert.Equal(t, "s-2", history[1].SummaryID)
	assert.True(t, history[1].Current)
}

func TestSQLite_GetCurrentSummary_Absent(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetCurrentSummary(context.Background(), "W1/2024-01-03")
	require.NoError(t, err)
	assert.Nil(t, got)
}
