// Package engine wires normalization, storage, detection, summarization,
// retrieval, and query routing into one ingestion-to-answer pipeline.
package engine

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/detect"
	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/normalize"
	"github.com/wellsight/ddr-engine/internal/query"
	"github.com/wellsight/ddr-engine/internal/retrieval"
	"github.com/wellsight/ddr-engine/internal/store"
	"github.com/wellsight/ddr-engine/internal/summarize"
	"github.com/wellsight/ddr-engine/pkg/llm"
)

// Engine is the top-level orchestrator. Ingestion runs the full pipeline
// for one extraction; failures past normalization are contained at their
// own stage so a broken detector or an unreachable model never loses a
// normalized report.
type Engine struct {
	store      store.Store
	normalizer *normalize.Normalizer
	detector   *detect.Detector
	summarizer *summarize.Summarizer
	index      *retrieval.Index
	router     *query.Router
	cfg        *config.Config
}

// New assembles an Engine over the given store and model client.
func New(st store.Store, client llm.Client, cfg *config.Config) *Engine {
	index := retrieval.NewIndex()
	return &Engine{
		store:      st,
		normalizer: normalize.New(cfg.Normalize),
		detector:   detect.New(st, cfg.Detect),
		summarizer: summarize.New(client, cfg.Summarize, cfg.LLM.MaxRetries),
		index:      index,
		router:     query.NewRouter(st, index, cfg.Query).WithTranslator(query.NewLLMTranslator(client)),
		cfg:        cfg,
	}
}

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	ReportID     string `json:"report_id"`
	WellID       string `json:"well_id"`
	Observations int    `json:"observations"`
	Events       int    `json:"events"`
	FieldErrors  int    `json:"field_errors"`
	Summarized   bool   `json:"summarized"`
}

// Ingest runs the pipeline for one raw extraction: normalize, persist,
// re-detect the well, summarize, and index for retrieval.
//
// An IncompleteExtractionError aborts before anything is written. After
// the report is persisted, a detector failure keeps the well's
// last-known-good events and anomalies, and a summarization failure
// leaves the summary absent; neither fails the ingestion.
func (e *Engine) Ingest(ctx context.Context, raw model.RawExtraction) (*IngestResult, error) {
	report, obs, err := e.normalizer.Normalize(raw, time.Now())
	if err != nil {
		return nil, eris.Wrap(err, "engine: normalize")
	}

	if err := e.store.UpsertReport(ctx, report, obs); err != nil {
		return nil, eris.Wrapf(err, "engine: persist report %s", report.ID)
	}
	e.index.MarkExpected(report.ID, report.WellID)

	if err := e.detector.Run(ctx, report.WellID); err != nil {
		zap.L().Warn("engine: detection failed, keeping last-known events",
			zap.String("well_id", report.WellID),
			zap.Error(err),
		)
	}

	events, err := e.store.EventsForReport(ctx, report.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load events for %s", report.ID)
	}

	summaryText := ""
	summarized := false
	summary, err := e.summarizer.Summarize(ctx, report, events, obs)
	switch {
	case err == nil:
		if err := e.store.PutSummary(ctx, *summary); err != nil {
			return nil, eris.Wrapf(err, "engine: persist summary for %s", report.ID)
		}
		summaryText = summary.Text
		summarized = true
	case eris.Is(err, model.ErrCapabilityUnavailable):
		zap.L().Warn("engine: summary unavailable",
			zap.String("report_id", report.ID),
			zap.Error(err),
		)
	default:
		return nil, eris.Wrapf(err, "engine: summarize %s", report.ID)
	}

	e.index.IndexReport(report, summaryText)

	zap.L().Info("ingested report",
		zap.String("report_id", report.ID),
		zap.Int("observations", len(obs)),
		zap.Int("events", len(events)),
		zap.Bool("summarized", summarized),
	)
	return &IngestResult{
		ReportID:     report.ID,
		WellID:       report.WellID,
		Observations: len(obs),
		Events:       len(events),
		FieldErrors:  len(report.FieldErrors),
		Summarized:   summarized,
	}, nil
}

// BatchItem pairs one extraction's result with its error, if any. Order
// matches the input slice.
type BatchItem struct {
	Ref    string        `json:"ref,omitempty"`
	Result *IngestResult `json:"result,omitempty"`
	Err    error         `json:"-"`
	Error  string        `json:"error,omitempty"`
}

// IngestBatch ingests extractions concurrently, bounded by the configured
// worker limit. A failing extraction is recorded in its slot and never
// aborts the rest of the batch.
func (e *Engine) IngestBatch(ctx context.Context, raws []model.RawExtraction) []BatchItem {
	items := make([]BatchItem, len(raws))

	g, ctx := errgroup.WithContext(ctx)
	limit := e.cfg.Batch.MaxConcurrentReports
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, raw := range raws {
		i, raw := i, raw
		g.Go(func() error {
			res, err := e.Ingest(ctx, raw)
			items[i] = BatchItem{Ref: raw.Ref, Result: res, Err: err}
			if err != nil {
				items[i].Error = err.Error()
				zap.L().Error("batch: ingestion failed",
					zap.String("ref", raw.Ref),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Detect reruns event and anomaly detection for one well.
func (e *Engine) Detect(ctx context.Context, wellID string) error {
	return e.detector.Run(ctx, wellID)
}

// Ask answers a natural-language question about the ingested corpus.
func (e *Engine) Ask(ctx context.Context, question string) (*model.Answer, error) {
	return e.router.Ask(ctx, question)
}

// Rebuild recomputes derived state from the canonical reports and
// observations: detection for every well, then the retrieval index.
// Wells run concurrently under the batch worker limit; one failing well
// does not stop the others.
func (e *Engine) Rebuild(ctx context.Context) error {
	wells, err := e.store.ListWells(ctx)
	if err != nil {
		return eris.Wrap(err, "engine: list wells")
	}

	g, gctx := errgroup.WithContext(ctx)
	limit := e.cfg.Batch.MaxConcurrentReports
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	var failed atomic.Int64
	for _, wellID := range wells {
		wellID := wellID
		g.Go(func() error {
			if err := e.detector.Run(gctx, wellID); err != nil {
				failed.Add(1)
				zap.L().Error("rebuild: detection failed",
					zap.String("well_id", wellID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, wellID := range wells {
		if err := e.resummarizeWell(ctx, wellID); err != nil {
			return err
		}
	}

	if err := e.index.Rebuild(ctx, e.store); err != nil {
		return eris.Wrap(err, "engine: rebuild index")
	}

	zap.L().Info("rebuild complete",
		zap.Int("wells", len(wells)),
		zap.Int64("failed_wells", failed.Load()),
		zap.Int("indexed_docs", e.index.Size()),
	)
	if n := failed.Load(); n > 0 {
		return eris.Errorf("engine: rebuild finished with %d failed wells", n)
	}
	return nil
}

// resummarizeWell generates summaries for normalized reports that have
// none current. Existing current summaries are left alone; a capability
// failure leaves the gap and moves on.
func (e *Engine) resummarizeWell(ctx context.Context, wellID string) error {
	reports, err := e.store.ListReports(ctx, wellID)
	if err != nil {
		return eris.Wrapf(err, "engine: list reports for %s", wellID)
	}

	for i := range reports {
		report := &reports[i]
		if report.Status != model.ReportStatusNormalized {
			continue
		}

		current, err := e.store.GetCurrentSummary(ctx, report.ID)
		if err != nil {
			return eris.Wrapf(err, "engine: load summary for %s", report.ID)
		}
		if current != nil {
			continue
		}

		events, err := e.store.EventsForReport(ctx, report.ID)
		if err != nil {
			return eris.Wrapf(err, "engine: load events for %s", report.ID)
		}
		obs, err := e.store.RangeQuery(ctx, wellID, report.ReportDate, report.ReportDate, nil)
		if err != nil {
			return eris.Wrapf(err, "engine: load observations for %s", report.ID)
		}

		summary, err := e.summarizer.Summarize(ctx, report, events, obs)
		if err != nil {
			if eris.Is(err, model.ErrCapabilityUnavailable) {
				zap.L().Warn("rebuild: summary unavailable",
					zap.String("report_id", report.ID),
					zap.Error(err),
				)
				continue
			}
			return eris.Wrapf(err, "engine: summarize %s", report.ID)
		}
		if err := e.store.PutSummary(ctx, *summary); err != nil {
			return eris.Wrapf(err, "engine: persist summary for %s", report.ID)
		}
	}
	return nil
}

// WellStatus is the operational snapshot for one well.
type WellStatus struct {
	WellID       string `json:"well_id"`
	Reports      int    `json:"reports"`
	LatestReport string `json:"latest_report,omitempty"`
	LatestStatus string `json:"latest_status,omitempty"`
	Events       int    `json:"events"`
	Anomalies    int    `json:"anomalies"`
}

// Status summarizes every well in the store, sorted by well ID.
func (e *Engine) Status(ctx context.Context) ([]WellStatus, error) {
	wells, err := e.store.ListWells(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "engine: list wells")
	}
	sort.Strings(wells)

	out := make([]WellStatus, 0, len(wells))
	for _, wellID := range wells {
		reports, err := e.store.ListReports(ctx, wellID)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: list reports for %s", wellID)
		}
		events, err := e.store.ListEvents(ctx, wellID)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: list events for %s", wellID)
		}
		anomalies, err := e.store.ListAnomalies(ctx, wellID)
		if err != nil {
			return nil, eris.Wrapf(err, "engine: list anomalies for %s", wellID)
		}

		ws := WellStatus{
			WellID:    wellID,
			Reports:   len(reports),
			Events:    len(events),
			Anomalies: len(anomalies),
		}
		if len(reports) > 0 {
			last := reports[len(reports)-1]
			ws.LatestReport = last.ID
			ws.LatestStatus = string(last.Status)
		}
		out = append(out, ws)
	}
	return out, nil
}

// Index exposes the retrieval index, mainly for serving size diagnostics.
func (e *Engine) Index() *retrieval.Index {
	return e.index
}

// Store exposes the underlying store for read-only API handlers.
func (e *Engine) Store() store.Store {
	return e.store
}
