package store

import (
	"context"
	"time"

	"github.com/wellsight/ddr-engine/internal/model"
)

// Store is the time-series persistence interface. It exclusively owns the
// Report and ParameterObservation lifecycle; the detector owns Events and
// Anomalies but persists them through here so a full rebuild from
// Reports+Observations is always possible.
type Store interface {
	// Reports and observations. UpsertReport is atomic per report: either
	// the report row and all its observations commit, or none do.
	// Re-ingestion of the same report ID overwrites. Concurrent upserts of
	// the same report serialize with last-writer-wins by ingestion
	// timestamp; distinct reports never block each other.
	UpsertReport(ctx context.Context, report *model.Report, obs []model.ParameterObservation) error
	GetReport(ctx context.Context, reportID string) (*model.Report, error)
	SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error
	ListReports(ctx context.Context, wellID string) ([]model.Report, error)
	Latest(ctx context.Context, wellID string) (*model.Report, error)
	ListWells(ctx context.Context) ([]string, error)

	// RangeQuery returns observations for a well ordered ascending by
	// (report_date, index). Empty params means all parameters; zero
	// from/to means an open end.
	RangeQuery(ctx context.Context, wellID string, from, to time.Time, params []string) ([]model.ParameterObservation, error)

	// Derived data: replaced wholesale per scope so recomputation
	// supersedes rather than duplicates.
	ReplaceEvents(ctx context.Context, reportID string, events []model.Event) error
	EventsForReport(ctx context.Context, reportID string) ([]model.Event, error)
	ListEvents(ctx context.Context, wellID string) ([]model.Event, error)
	ReplaceAnomalies(ctx context.Context, wellID string, anomalies []model.Anomaly) error
	ListAnomalies(ctx context.Context, wellID string) ([]model.Anomaly, error)

	// Summaries: PutSummary marks any existing current summary for the
	// report as superseded (retained, not deleted) in the same
	// transaction.
	PutSummary(ctx context.Context, s model.Summary) error
	GetCurrentSummary(ctx context.Context, reportID string) (*model.Summary, error)
	ListCurrentSummaries(ctx context.Context) ([]model.Summary, error)
	SummaryHistory(ctx context.Context, reportID string) ([]model.Summary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
