package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/wellsight/ddr-engine/internal/model"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	locks *keyedMutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: newKeyedMutex()}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id                  TEXT PRIMARY KEY,
	well_id             TEXT NOT NULL,
	report_date         TEXT NOT NULL,
	ingestion_timestamp TEXT NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	doc                 TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS observations (
	report_id      TEXT NOT NULL REFERENCES reports(id),
	well_id        TEXT NOT NULL,
	report_date    TEXT NOT NULL,
	parameter_name TEXT NOT NULL,
	value          REAL NOT NULL,
	unit           TEXT NOT NULL DEFAULT '',
	idx            REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (report_id, parameter_name, idx)
);

CREATE TABLE IF NOT EXISTS events (
	event_id      TEXT PRIMARY KEY,
	report_id     TEXT NOT NULL REFERENCES reports(id),
	well_id       TEXT NOT NULL,
	category      TEXT NOT NULL,
	confidence    REAL NOT NULL,
	evidence_span TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS anomalies (
	anomaly_id      TEXT PRIMARY KEY,
	well_id         TEXT NOT NULL,
	metric          TEXT NOT NULL,
	window_start    TEXT NOT NULL,
	window_end      TEXT NOT NULL,
	deviation_score REAL NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	UNIQUE (well_id, metric, window_start, window_end)
);

CREATE TABLE IF NOT EXISTS summaries (
	summary_id       TEXT PRIMARY KEY,
	report_id        TEXT NOT NULL REFERENCES reports(id),
	text             TEXT NOT NULL,
	generated_at     TEXT NOT NULL,
	source_event_ids TEXT NOT NULL DEFAULT '[]',
	current          INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_reports_well ON reports(well_id, report_date);
CREATE INDEX IF NOT EXISTS idx_obs_well_date ON observations(well_id, report_date, idx);
CREATE INDEX IF NOT EXISTS idx_obs_param ON observations(well_id, parameter_name);
CREATE INDEX IF NOT EXISTS idx_events_report ON events(report_id);
CREATE INDEX IF NOT EXISTS idx_events_well ON events(well_id);
CREATE INDEX IF NOT EXISTS idx_anomalies_well ON anomalies(well_id);
CREATE INDEX IF NOT EXISTS idx_summaries_report ON summaries(report_id, current);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertReport(ctx context.Context, report *model.Report, obs []model.ParameterObservation) error {
	unlock := s.locks.Lock(report.ID)
	defer unlock()

	doc, err := marshalExtras(report)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	// Last-writer-wins: a competing upsert with a newer ingestion
	// timestamp must not be clobbered by a stale retry.
	var existingTS string
	err = tx.QueryRowContext(ctx,
		`SELECT ingestion_timestamp FROM reports WHERE id = ?`, report.ID,
	).Scan(&existingTS)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(err, "sqlite: read existing report %s", report.ID)
	}
	if err == nil {
		existing, parseErr := time.Parse(tsLayout, existingTS)
		if parseErr == nil && existing.After(report.IngestionTimestamp) {
			return nil // stale writer loses
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reports (id, well_id, report_date, ingestion_timestamp, status, doc)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ingestion_timestamp = excluded.ingestion_timestamp,
			status = excluded.status,
			doc = excluded.doc`,
		report.ID, report.WellID, report.ReportDate.Format(dateLayout),
		report.IngestionTimestamp.Format(tsLayout), string(report.Status), doc,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert report %s", report.ID)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM observations WHERE report_id = ?`, report.ID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: clear observations %s", report.ID)
	}

	for _, o := range obs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (report_id, well_id, report_date, parameter_name, value, unit, idx)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			o.ReportID, o.WellID, o.ReportDate.Format(dateLayout),
			o.ParameterName, o.Value, o.Unit, o.Index,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert observation %s/%s", o.ReportID, o.ParameterName)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, well_id, report_date, ingestion_timestamp, status, doc FROM reports WHERE id = ?`,
		reportID,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrReportNotFound
	}
	return r, err
}

func (s *SQLiteStore) SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ? WHERE id = ?`, string(status), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set status %s", reportID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return model.ErrReportNotFound
	}
	return nil
}

func (s *SQLiteStore) ListReports(ctx context.Context, wellID string) ([]model.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, well_id, report_date, ingestion_timestamp, status, doc
		 FROM reports WHERE well_id = ? ORDER BY report_date ASC`,
		wellID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list reports %s", wellID)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "sqlite: iterate reports")
}

func (s *SQLiteStore) Latest(ctx context.Context, wellID string) (*model.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, well_id, report_date, ingestion_timestamp, status, doc
		 FROM reports WHERE well_id = ? ORDER BY report_date DESC LIMIT 1`,
		wellID,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrReportNotFound
	}
	return r, err
}

func (s *SQLiteStore) ListWells(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT well_id FROM reports ORDER BY well_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list wells")
	}
	defer rows.Close()

	var wells []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan well")
		}
		wells = append(wells, w)
	}
	return wells, eris.Wrap(rows.Err(), "sqlite: iterate wells")
}

func (s *SQLiteStore) RangeQuery(ctx context.Context, wellID string, from, to time.Time, params []string) ([]model.ParameterObservation, error) {
	query := `SELECT report_id, well_id, report_date, parameter_name, value, unit, idx
		 FROM observations WHERE well_id = ?`
	args := []any{wellID}

	if !from.IsZero() {
		query += ` AND report_date >= ?`
		args = append(args, from.Format(dateLayout))
	}
	if !to.IsZero() {
		query += ` AND report_date <= ?`
		args = append(args, to.Format(dateLayout))
	}
	if len(params) > 0 {
		query += ` AND parameter_name IN (?` + strings.Repeat(",?", len(params)-1) + `)`
		for _, p := range params {
			args = append(args, p)
		}
	}
	query += ` ORDER BY report_date ASC, idx ASC, parameter_name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: range query %s", wellID)
	}
	defer rows.Close()

	var obs []model.ParameterObservation
	for rows.Next() {
		var o model.ParameterObservation
		var date string
		if err := rows.Scan(&o.ReportID, &o.WellID, &date, &o.ParameterName, &o.Value, &o.Unit, &o.Index); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		o.ReportDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse date %q", date)
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "sqlite: iterate observations")
}

func (s *SQLiteStore) ReplaceEvents(ctx context.Context, reportID string, events []model.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace events")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE report_id = ?`, reportID); err != nil {
		return eris.Wrapf(err, "sqlite: clear events %s", reportID)
	}
	for _, e := range events {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, report_id, well_id, category, confidence, evidence_span)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.EventID, e.ReportID, e.WellID, string(e.Category), e.Confidence, e.EvidenceSpan,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert event %s", e.EventID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace events")
}

func (s *SQLiteStore) EventsForReport(ctx context.Context, reportID string) ([]model.Event, error) {
	return s.queryEvents(ctx, `WHERE report_id = ?`, reportID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, wellID string) ([]model.Event, error) {
	return s.queryEvents(ctx, `WHERE well_id = ?`, wellID)
}

func (s *SQLiteStore) queryEvents(ctx context.Context, where string, arg any) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, report_id, well_id, category, confidence, evidence_span FROM events `+where+` ORDER BY report_id, event_id`,
		arg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var cat string
		if err := rows.Scan(&e.EventID, &e.ReportID, &e.WellID, &cat, &e.Confidence, &e.EvidenceSpan); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		e.Category = model.EventCategory(cat)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: iterate events")
}

func (s *SQLiteStore) ReplaceAnomalies(ctx context.Context, wellID string, anomalies []model.Anomaly) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace anomalies")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM anomalies WHERE well_id = ?`, wellID); err != nil {
		return eris.Wrapf(err, "sqlite: clear anomalies %s", wellID)
	}
	for _, a := range anomalies {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO anomalies (anomaly_id, well_id, metric, window_start, window_end, deviation_score, description)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.AnomalyID, a.WellID, a.Metric,
			a.WindowStart.Format(dateLayout), a.WindowEnd.Format(dateLayout),
			a.DeviationScore, a.Description,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert anomaly %s", a.AnomalyID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace anomalies")
}

func (s *SQLiteStore) ListAnomalies(ctx context.Context, wellID string) ([]model.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT anomaly_id, well_id, metric, window_start, window_end, deviation_score, description
		 FROM anomalies WHERE well_id = ? ORDER BY window_start, metric`,
		wellID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list anomalies %s", wellID)
	}
	defer rows.Close()

	var anomalies []model.Anomaly
	for rows.Next() {
		var a model.Anomaly
		var ws, we string
		if err := rows.Scan(&a.AnomalyID, &a.WellID, &a.Metric, &ws, &we, &a.DeviationScore, &a.Description); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan anomaly")
		}
		if a.WindowStart, err = time.Parse(dateLayout, ws); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse window start %q", ws)
		}
		if a.WindowEnd, err = time.Parse(dateLayout, we); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse window end %q", we)
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, eris.Wrap(rows.Err(), "sqlite: iterate anomalies")
}

func (s *SQLiteStore) PutSummary(ctx context.Context, sum model.Summary) error {
	ids, err := marshalIDs(sum.SourceEventIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin put summary")
	}
	defer tx.Rollback()

	// Supersede, never delete: the old summary stays queryable as
	// non-current history.
	if _, err := tx.ExecContext(ctx,
		`UPDATE summaries SET current = 0 WHERE report_id = ? AND current = 1`, sum.ReportID,
	); err != nil {
		return eris.Wrapf(err, "sqlite: supersede summary %s", sum.ReportID)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO summaries (summary_id, report_id, text, generated_at, source_event_ids, current)
		 VALUES (?, ?, ?, ?, ?, 1)`,
		sum.SummaryID, sum.ReportID, sum.Text, sum.GeneratedAt.Format(tsLayout), ids,
	); err != nil {
		return eris.Wrapf(err, "sqlite: insert summary %s", sum.SummaryID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit put summary")
}

func (s *SQLiteStore) GetCurrentSummary(ctx context.Context, reportID string) (*model.Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT summary_id, report_id, text, generated_at, source_event_ids, current
		 FROM summaries WHERE report_id = ? AND current = 1`,
		reportID,
	)
	sum, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // absent summary is a distinct, displayable state
	}
	return sum, err
}

func (s *SQLiteStore) ListCurrentSummaries(ctx context.Context) ([]model.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary_id, report_id, text, generated_at, source_event_ids, current
		 FROM summaries WHERE current = 1 ORDER BY report_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list summaries")
	}
	defer rows.Close()

	var sums []model.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, eris.Wrap(rows.Err(), "sqlite: iterate summaries")
}

// SummaryHistory returns every summary ever generated for the report,
// superseded ones included, oldest first.
func (s *SQLiteStore) SummaryHistory(ctx context.Context, reportID string) ([]model.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT summary_id, report_id, text, generated_at, source_event_ids, current
		 FROM summaries WHERE report_id = ? ORDER BY generated_at`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: summary history %s", reportID)
	}
	defer rows.Close()

	var sums []model.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, eris.Wrap(rows.Err(), "sqlite: iterate summary history")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*model.Report, error) {
	var r model.Report
	var date, ts, status, doc string
	if err := row.Scan(&r.ID, &r.WellID, &date, &ts, &status, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "store: scan report")
	}

	var err error
	if r.ReportDate, err = time.Parse(dateLayout, date); err != nil {
		return nil, eris.Wrapf(err, "store: parse report date %q", date)
	}
	if r.IngestionTimestamp, err = time.Parse(tsLayout, ts); err != nil {
		return nil, eris.Wrapf(err, "store: parse ingestion timestamp %q", ts)
	}
	r.Status = model.ReportStatus(status)
	if err := applyExtras(&r, doc); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanSummary(row rowScanner) (*model.Summary, error) {
	var sum model.Summary
	var generated, ids string
	var current int
	if err := row.Scan(&sum.SummaryID, &sum.ReportID, &sum.Text, &generated, &ids, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "store: scan summary")
	}

	var err error
	if sum.GeneratedAt, err = time.Parse(tsLayout, generated); err != nil {
		return nil, eris.Wrapf(err, "store: parse generated_at %q", generated)
	}
	if sum.SourceEventIDs, err = unmarshalIDs(ids); err != nil {
		return nil, err
	}
	sum.Current = current == 1
	return &sum, nil
}
