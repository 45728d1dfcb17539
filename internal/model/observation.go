package model

import "time"

// ParameterObservation is one measured value from a report, stored in a
// canonical unit. Index is the timestamp-or-depth ordinal within the report:
// depth-series tables use the depth in meters, single header values use 0.
// (ReportID, ParameterName, Index) is unique; re-ingestion of the same
// report overwrites, never duplicates.
type ParameterObservation struct {
	ReportID      string    `json:"report_id"`
	WellID        string    `json:"well_id"`
	ReportDate    time.Time `json:"report_date"`
	ParameterName string    `json:"parameter_name"`
	Value         float64   `json:"value"`
	Unit          string    `json:"unit"`
	Index         float64   `json:"index"`
}

// Canonical units per parameter family. Conversions in the normalizer
// target these before storage.
const (
	UnitMeters        = "m"
	UnitMetersPerHour = "m/h"
	UnitPPG           = "ppg"
	UnitCelsius       = "degC"
	UnitBar           = "bar"
	UnitPercent       = "%"
)
