package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/wellsight/ddr-engine/internal/model"
)

// Pool defines the minimal database pool interface used by PostgresStore.
// Both *pgxpool.Pool and pgxmock satisfy it.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool  Pool
	locks *keyedMutex
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_report":  `SELECT id, well_id, report_date, ingestion_timestamp, status, doc FROM reports WHERE id = $1`,
	"get_summary": `SELECT summary_id, report_id, text, generated_at, source_event_ids, current FROM summaries WHERE report_id = $1 AND current`,
	"set_status":  `UPDATE reports SET status = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, locks: newKeyedMutex()}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS reports (
	id                  TEXT PRIMARY KEY,
	well_id             TEXT NOT NULL,
	report_date         DATE NOT NULL,
	ingestion_timestamp TIMESTAMPTZ NOT NULL,
	status              TEXT NOT NULL DEFAULT 'pending',
	doc                 JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS observations (
	report_id      TEXT NOT NULL REFERENCES reports(id),
	well_id        TEXT NOT NULL,
	report_date    DATE NOT NULL,
	parameter_name TEXT NOT NULL,
	value          DOUBLE PRECISION NOT NULL,
	unit           TEXT NOT NULL DEFAULT '',
	idx            DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (report_id, parameter_name, idx)
);

CREATE TABLE IF NOT EXISTS events (
	event_id      TEXT PRIMARY KEY,
	report_id     TEXT NOT NULL REFERENCES reports(id),
	well_id       TEXT NOT NULL,
	category      TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL,
	evidence_span TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS anomalies (
	anomaly_id      TEXT PRIMARY KEY,
	well_id         TEXT NOT NULL,
	metric          TEXT NOT NULL,
	window_start    DATE NOT NULL,
	window_end      DATE NOT NULL,
	deviation_score DOUBLE PRECISION NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	UNIQUE (well_id, metric, window_start, window_end)
);

CREATE TABLE IF NOT EXISTS summaries (
	summary_id       TEXT PRIMARY KEY,
	report_id        TEXT NOT NULL REFERENCES reports(id),
	text             TEXT NOT NULL,
	generated_at     TIMESTAMPTZ NOT NULL,
	source_event_ids JSONB NOT NULL DEFAULT '[]',
	current          BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE INDEX IF NOT EXISTS idx_reports_well ON reports(well_id, report_date);
CREATE INDEX IF NOT EXISTS idx_obs_well_date ON observations(well_id, report_date, idx);
CREATE INDEX IF NOT EXISTS idx_obs_param ON observations(well_id, parameter_name);
CREATE INDEX IF NOT EXISTS idx_events_report ON events(report_id);
CREATE INDEX IF NOT EXISTS idx_events_well ON events(well_id);
CREATE INDEX IF NOT EXISTS idx_anomalies_well ON anomalies(well_id);
CREATE INDEX IF NOT EXISTS idx_summaries_report ON summaries(report_id, current);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) UpsertReport(ctx context.Context, report *model.Report, obs []model.ParameterObservation) error {
	unlock := s.locks.Lock(report.ID)
	defer unlock()

	doc, err := marshalExtras(report)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin upsert")
	}
	defer tx.Rollback(ctx)

	// Last-writer-wins: a competing upsert with a newer ingestion
	// timestamp must not be clobbered by a stale retry.
	var existing time.Time
	err = tx.QueryRow(ctx,
		`SELECT ingestion_timestamp FROM reports WHERE id = $1 FOR UPDATE`, report.ID,
	).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(err, "postgres: read existing report %s", report.ID)
	}
	if err == nil && existing.After(report.IngestionTimestamp) {
		return nil // stale writer loses
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO reports (id, well_id, report_date, ingestion_timestamp, status, doc)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			ingestion_timestamp = excluded.ingestion_timestamp,
			status = excluded.status,
			doc = excluded.doc`,
		report.ID, report.WellID, report.ReportDate,
		report.IngestionTimestamp, string(report.Status), doc,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert report %s", report.ID)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM observations WHERE report_id = $1`, report.ID,
	); err != nil {
		return eris.Wrapf(err, "postgres: clear observations %s", report.ID)
	}

	for _, o := range obs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO observations (report_id, well_id, report_date, parameter_name, value, unit, idx)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ReportID, o.WellID, o.ReportDate, o.ParameterName, o.Value, o.Unit, o.Index,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert observation %s/%s", o.ReportID, o.ParameterName)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit upsert")
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, well_id, report_date, ingestion_timestamp, status, doc FROM reports WHERE id = $1`,
		reportID,
	)
	r, err := scanPgReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrReportNotFound
	}
	return r, err
}

func (s *PostgresStore) SetReportStatus(ctx context.Context, reportID string, status model.ReportStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = $1 WHERE id = $2`, string(status), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set status %s", reportID)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrReportNotFound
	}
	return nil
}

func (s *PostgresStore) ListReports(ctx context.Context, wellID string) ([]model.Report, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, well_id, report_date, ingestion_timestamp, status, doc
		 FROM reports WHERE well_id = $1 ORDER BY report_date ASC`,
		wellID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list reports %s", wellID)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanPgReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, eris.Wrap(rows.Err(), "postgres: iterate reports")
}

func (s *PostgresStore) Latest(ctx context.Context, wellID string) (*model.Report, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, well_id, report_date, ingestion_timestamp, status, doc
		 FROM reports WHERE well_id = $1 ORDER BY report_date DESC LIMIT 1`,
		wellID,
	)
	r, err := scanPgReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrReportNotFound
	}
	return r, err
}

func (s *PostgresStore) ListWells(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT well_id FROM reports ORDER BY well_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list wells")
	}
	defer rows.Close()

	var wells []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, eris.Wrap(err, "postgres: scan well")
		}
		wells = append(wells, w)
	}
	return wells, eris.Wrap(rows.Err(), "postgres: iterate wells")
}

func (s *PostgresStore) RangeQuery(ctx context.Context, wellID string, from, to time.Time, params []string) ([]model.ParameterObservation, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT report_id, well_id, report_date, parameter_name, value, unit, idx
		 FROM observations WHERE well_id = $1`)
	args := []any{wellID}

	if !from.IsZero() {
		args = append(args, from)
		query.WriteString(` AND report_date >= $` + strconv.Itoa(len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		query.WriteString(` AND report_date <= $` + strconv.Itoa(len(args)))
	}
	if len(params) > 0 {
		args = append(args, params)
		query.WriteString(` AND parameter_name = ANY($` + strconv.Itoa(len(args)) + `)`)
	}
	query.WriteString(` ORDER BY report_date ASC, idx ASC, parameter_name ASC`)

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: range query %s", wellID)
	}
	defer rows.Close()

	var obs []model.ParameterObservation
	for rows.Next() {
		var o model.ParameterObservation
		if err := rows.Scan(&o.ReportID, &o.WellID, &o.ReportDate, &o.ParameterName, &o.Value, &o.Unit, &o.Index); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		obs = append(obs, o)
	}
	return obs, eris.Wrap(rows.Err(), "postgres: iterate observations")
}

func (s *PostgresStore) ReplaceEvents(ctx context.Context, reportID string, events []model.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace events")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE report_id = $1`, reportID); err != nil {
		return eris.Wrapf(err, "postgres: clear events %s", reportID)
	}
	for _, e := range events {
		if _, err := tx.Exec(ctx,
			`INSERT INTO events (event_id, report_id, well_id, category, confidence, evidence_span)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			e.EventID, e.ReportID, e.WellID, string(e.Category), e.Confidence, e.EvidenceSpan,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert event %s", e.EventID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace events")
}

func (s *PostgresStore) EventsForReport(ctx context.Context, reportID string) ([]model.Event, error) {
	return s.queryEvents(ctx, `WHERE report_id = $1`, reportID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, wellID string) ([]model.Event, error) {
	return s.queryEvents(ctx, `WHERE well_id = $1`, wellID)
}

func (s *PostgresStore) queryEvents(ctx context.Context, where string, arg any) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, report_id, well_id, category, confidence, evidence_span FROM events `+where+` ORDER BY report_id, event_id`,
		arg,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query events")
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var cat string
		if err := rows.Scan(&e.EventID, &e.ReportID, &e.WellID, &cat, &e.Confidence, &e.EvidenceSpan); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		e.Category = model.EventCategory(cat)
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: iterate events")
}

func (s *PostgresStore) ReplaceAnomalies(ctx context.Context, wellID string, anomalies []model.Anomaly) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace anomalies")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM anomalies WHERE well_id = $1`, wellID); err != nil {
		return eris.Wrapf(err, "postgres: clear anomalies %s", wellID)
	}
	for _, a := range anomalies {
		if _, err := tx.Exec(ctx,
			`INSERT INTO anomalies (anomaly_id, well_id, metric, window_start, window_end, deviation_score, description)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.AnomalyID, a.WellID, a.Metric, a.WindowStart, a.WindowEnd, a.DeviationScore, a.Description,
		); err != nil {
			return eris.Wrapf(err, "postgres: insert anomaly %s", a.AnomalyID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace anomalies")
}

func (s *PostgresStore) ListAnomalies(ctx context.Context, wellID string) ([]model.Anomaly, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT anomaly_id, well_id, metric, window_start, window_end, deviation_score, description
		 FROM anomalies WHERE well_id = $1 ORDER BY window_start, metric`,
		wellID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list anomalies %s", wellID)
	}
	defer rows.Close()

	var anomalies []model.Anomaly
	for rows.Next() {
		var a model.Anomaly
		if err := rows.Scan(&a.AnomalyID, &a.WellID, &a.Metric, &a.WindowStart, &a.WindowEnd, &a.DeviationScore, &a.Description); err != nil {
			return nil, eris.Wrap(err, "postgres: scan anomaly")
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, eris.Wrap(rows.Err(), "postgres: iterate anomalies")
}

func (s *PostgresStore) PutSummary(ctx context.Context, sum model.Summary) error {
	ids, err := marshalIDs(sum.SourceEventIDs)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin put summary")
	}
	defer tx.Rollback(ctx)

	// Supersede, never delete: the old summary stays queryable as
	// non-current history.
	if _, err := tx.Exec(ctx,
		`UPDATE summaries SET current = FALSE WHERE report_id = $1 AND current`, sum.ReportID,
	); err != nil {
		return eris.Wrapf(err, "postgres: supersede summary %s", sum.ReportID)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO summaries (summary_id, report_id, text, generated_at, source_event_ids, current)
		 VALUES ($1, $2, $3, $4, $5, TRUE)`,
		sum.SummaryID, sum.ReportID, sum.Text, sum.GeneratedAt, ids,
	); err != nil {
		return eris.Wrapf(err, "postgres: insert summary %s", sum.SummaryID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit put summary")
}

func (s *PostgresStore) GetCurrentSummary(ctx context.Context, reportID string) (*model.Summary, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT summary_id, report_id, text, generated_at, source_event_ids, current
		 FROM summaries WHERE report_id = $1 AND current`,
		reportID,
	)
	sum, err := scanPgSummary(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // absent summary is a distinct, displayable state
	}
	return sum, err
}

func (s *PostgresStore) ListCurrentSummaries(ctx context.Context) ([]model.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT summary_id, report_id, text, generated_at, source_event_ids, current
		 FROM summaries WHERE current ORDER BY report_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list summaries")
	}
	defer rows.Close()

	var sums []model.Summary
	for rows.Next() {
		sum, err := scanPgSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, eris.Wrap(rows.Err(), "postgres: iterate summaries")
}

// SummaryHistory returns every summary ever generated for the report,
// superseded ones included, oldest first.
func (s *PostgresStore) SummaryHistory(ctx context.Context, reportID string) ([]model.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT summary_id, report_id, text, generated_at, source_event_ids, current
		 FROM summaries WHERE report_id = $1 ORDER BY generated_at`,
		reportID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: summary history %s", reportID)
	}
	defer rows.Close()

	var sums []model.Summary
	for rows.Next() {
		sum, err := scanPgSummary(rows)
		if err != nil {
			return nil, err
		}
		sums = append(sums, *sum)
	}
	return sums, eris.Wrap(rows.Err(), "postgres: iterate summary history")
}

func scanPgReport(row pgx.Row) (*model.Report, error) {
	var r model.Report
	var status string
	var doc []byte
	if err := row.Scan(&r.ID, &r.WellID, &r.ReportDate, &r.IngestionTimestamp, &status, &doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan report")
	}
	r.Status = model.ReportStatus(status)
	if err := applyExtras(&r, string(doc)); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanPgSummary(row pgx.Row) (*model.Summary, error) {
	var sum model.Summary
	var ids []byte
	if err := row.Scan(&sum.SummaryID, &sum.ReportID, &sum.Text, &sum.GeneratedAt, &ids, &sum.Current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan summary")
	}
	var err error
	if sum.SourceEventIDs, err = unmarshalIDs(string(ids)); err != nil {
		return nil, err
	}
	return &sum, nil
}
