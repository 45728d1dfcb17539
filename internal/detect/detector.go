package detect

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/store"
)

// Detector recomputes events and anomalies for a well after ingestion.
// Runs for different wells proceed independently; runs for the same well
// serialize so anomaly windows stay consistent.
type Detector struct {
	store store.Store
	cfg   config.DetectConfig

	mu    sync.Mutex
	wells map[string]*sync.Mutex
}

// New creates a Detector over the given store.
func New(st store.Store, cfg config.DetectConfig) *Detector {
	return &Detector{
		store: st,
		cfg:   cfg,
		wells: make(map[string]*sync.Mutex),
	}
}

func (d *Detector) wellLock(wellID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.wells[wellID]
	if !ok {
		m = &sync.Mutex{}
		d.wells[wellID] = m
	}
	return m
}

// Run recomputes both detection passes for one well: event classification
// per report, then anomaly detection over the well's full observation
// series. Any failure is wrapped in a DetectorFailureError scoped to the
// well; the well's stored events and anomalies keep their last-known-good
// state when that happens.
func (d *Detector) Run(ctx context.Context, wellID string) error {
	lock := d.wellLock(wellID)
	lock.Lock()
	defer lock.Unlock()

	if err := d.run(ctx, wellID); err != nil {
		zap.L().Error("detect: run failed",
			zap.String("well_id", wellID),
			zap.Error(err),
		)
		return &model.DetectorFailureError{WellID: wellID, Err: err}
	}
	return nil
}

func (d *Detector) run(ctx context.Context, wellID string) error {
	reports, err := d.store.ListReports(ctx, wellID)
	if err != nil {
		return eris.Wrap(err, "detect: list reports")
	}

	obs, err := d.store.RangeQuery(ctx, wellID, time.Time{}, time.Time{}, nil)
	if err != nil {
		return eris.Wrap(err, "detect: load observations")
	}
	byReport := map[string][]model.ParameterObservation{}
	for _, o := range obs {
		byReport[o.ReportID] = append(byReport[o.ReportID], o)
	}

	eventCount := 0
	for i := range reports {
		r := &reports[i]
		if r.Status != model.ReportStatusNormalized {
			continue
		}
		events := ClassifyReport(r, byReport[r.ID], d.cfg.MinConfidence)
		if err := d.store.ReplaceEvents(ctx, r.ID, events); err != nil {
			return eris.Wrapf(err, "detect: replace events %s", r.ID)
		}
		eventCount += len(events)
	}

	anomalies := DetectAnomalies(wellID, obs, Options{
		Lookback:       d.cfg.LookbackReports,
		Threshold:      d.cfg.DeviationThreshold,
		MinPersistence: d.cfg.MinPersistence,
	})
	if err := d.store.ReplaceAnomalies(ctx, wellID, anomalies); err != nil {
		return eris.Wrap(err, "detect: replace anomalies")
	}

	zap.L().Info("detect: well recomputed",
		zap.String("well_id", wellID),
		zap.Int("reports", len(reports)),
		zap.Int("events", eventCount),
		zap.Int("anomalies", len(anomalies)),
	)
	return nil
}
