package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/engine"
	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/store"
	"github.com/wellsight/ddr-engine/pkg/llm/mocks"
)

func newTestServer(t *testing.T) (http.Handler, *engine.Engine) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ddr.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	client := &mocks.MockClient{}
	client.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return("Routine drilling day.", nil)

	e := engine.New(st, client, &config.Config{
		Normalize: config.NormalizeConfig{MinCellConfidence: 0.3},
		Detect: config.DetectConfig{
			LookbackReports:    7,
			DeviationThreshold: 3.0,
			MinPersistence:     2,
			MinConfidence:      0.5,
		},
		Summarize: config.SummarizeConfig{MaxChars: 400},
		Query:     config.QueryConfig{BranchTimeoutSecs: 5, TopK: 5},
		Batch:     config.BatchConfig{MaxConcurrentReports: 2},
	})
	return buildRouter(e), e
}

func serverExtraction(wellID, date string, mudWeight float64) model.RawExtraction {
	return model.RawExtraction{
		WellID:     wellID,
		ReportDate: date,
		Tables: []model.ExtractedTable{
			{
				Name: "common_header",
				Rows: [][]string{
					{"Mud Weight", fmt.Sprintf("%.1f", mudWeight), "ppg"},
				},
			},
			{
				Name: "operations",
				Rows: [][]string{
					{"Start Time", "End Time", "Remark"},
					{"00:00", "06:00", "Drilled ahead 8.5in hole"},
				},
			},
		},
	}
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func get(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestServer_Health(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := get(handler, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServer_IngestAndFetchReport(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := postJSON(t, handler, "/reports", serverExtraction("W1", "2024-01-03", 12.5))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result engine.IngestResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "W1/2024-01-03", result.ReportID)
	assert.True(t, result.Summarized)

	rr = get(handler, "/reports/W1/2024-01-03")
	require.Equal(t, http.StatusOK, rr.Code)

	var report model.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, "W1", report.WellID)
	assert.Equal(t, model.ReportStatusNormalized, report.Status)
}

func TestServer_IngestRejectsIncompleteExtraction(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := postJSON(t, handler, "/reports", serverExtraction("", "2024-01-03", 12.5))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), "well_id")
}

func TestServer_ReportNotFound(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := get(handler, "/reports/W9/2024-01-03")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_SummaryEndpoint(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := postJSON(t, handler, "/reports", serverExtraction("W1", "2024-01-03", 12.5))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = get(handler, "/reports/W1/2024-01-03/summary")
	require.Equal(t, http.StatusOK, rr.Code)

	var summary model.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, "Routine drilling day.", summary.Text)
	assert.True(t, summary.Current)

	rr = get(handler, "/reports/W1/2024-01-04/summary")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_EventsAndAnomalies(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := postJSON(t, handler, "/reports", serverExtraction("W1", "2024-01-03", 12.5))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = get(handler, "/wells/W1/events")
	require.Equal(t, http.StatusOK, rr.Code)

	var events []model.Event
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &events))
	assert.NotEmpty(t, events)

	rr = get(handler, "/wells/W1/anomalies")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestServer_Ask(t *testing.T) {
	handler, _ := newTestServer(t)

	for day, mw := range map[string]float64{
		"2024-01-01": 12.0,
		"2024-01-02": 12.4,
		"2024-01-03": 15.0,
	} {
		rr := postJSON(t, handler, "/reports", serverExtraction("W1", day, mw))
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := postJSON(t, handler, "/ask", map[string]string{
		"question": "what was the max mud weight on well W1 in January 2024",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var answer model.Answer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &answer))
	require.NotEmpty(t, answer.Facts)
	assert.Contains(t, answer.Facts[0].Statement, "15")

	rr = postJSON(t, handler, "/ask", map[string]string{"question": ""})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_StatusAndList(t *testing.T) {
	handler, _ := newTestServer(t)

	rr := postJSON(t, handler, "/reports", serverExtraction("W1", "2024-01-03", 12.5))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = get(handler, "/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var status []engine.WellStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	require.Len(t, status, 1)
	assert.Equal(t, "W1", status[0].WellID)

	rr = get(handler, "/reports?well=W1")
	require.Equal(t, http.StatusOK, rr.Code)

	var reports []model.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, "W1/2024-01-03", reports[0].ID)
}
