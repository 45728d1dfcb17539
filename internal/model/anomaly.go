package model

import "time"

// Anomaly is a statistical deviation in one metric for one well, derived
// from observations across at least two reports. Anomalies are keyed by
// (well, metric, window) and superseded on recomputation, never duplicated.
type Anomaly struct {
	AnomalyID      string    `json:"anomaly_id"`
	WellID         string    `json:"well_id"`
	Metric         string    `json:"metric"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	DeviationScore float64   `json:"deviation_score"`
	Description    string    `json:"description"`
}
