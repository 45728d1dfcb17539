package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/wellsight/ddr-engine/internal/model"
)

// madScale converts a median absolute deviation into an estimate of the
// standard deviation for normally distributed data.
const madScale = 1.4826

// minScaleFraction floors the deviation scale at a fraction of the
// baseline so a flat trailing window (MAD of zero) does not turn float
// jitter into an anomaly.
const minScaleFraction = 0.01

// Options carries the tuning knobs for deviation scoring.
type Options struct {
	Lookback       int
	Threshold      float64
	MinPersistence int
}

// collectRuns scores one parameter's series point by point against its
// trailing baseline and groups consecutive above-threshold observations
// into anomaly windows. The series must already be ordered by
// (report_date, index) ascending, the order RangeQuery guarantees.
func collectRuns(wellID, metric string, series []model.ParameterObservation, opts Options) []model.Anomaly {
	if opts.Lookback < 2 || len(series) < 2 {
		return nil
	}

	type point struct {
		obs   model.ParameterObservation
		score float64
	}
	points := make([]point, len(series))
	points[0] = point{obs: series[0]}

	var anomalies []model.Anomaly
	runStart := -1
	flush := func(end int) {
		if runStart < 0 {
			return
		}
		run := points[runStart:end]
		runStart = -1
		if len(run) < opts.MinPersistence {
			return
		}
		reports := map[string]struct{}{}
		maxScore := 0.0
		for _, p := range run {
			reports[p.obs.ReportID] = struct{}{}
			if p.score > maxScore {
				maxScore = p.score
			}
		}
		if len(reports) < 2 {
			return // within a single report the spike may be a local artifact
		}
		anomalies = append(anomalies, model.Anomaly{
			AnomalyID:      uuid.New().String(),
			WellID:         wellID,
			Metric:         metric,
			WindowStart:    run[0].obs.ReportDate,
			WindowEnd:      run[len(run)-1].obs.ReportDate,
			DeviationScore: maxScore,
			Description: fmt.Sprintf("%s deviated from trailing median across %d observations (peak score %.1f)",
				metric, len(run), maxScore),
		})
	}

	for i := 1; i < len(series); i++ {
		start := i - opts.Lookback
		if start < 0 {
			start = 0
		}

		// An open run is excluded from its own baseline so a spike
		// cannot mask the observations that follow it.
		window := make([]float64, 0, i-start)
		for j := start; j < i; j++ {
			if runStart >= 0 && j >= runStart {
				continue
			}
			window = append(window, series[j].Value)
		}
		if len(window) == 0 {
			// The deviation has outlasted the whole lookback: it is
			// the new baseline now, not an ongoing anomaly.
			flush(i)
			for j := start; j < i; j++ {
				window = append(window, series[j].Value)
			}
		}

		baseline := median(window)
		scale := madScale * mad(window, baseline)
		if floor := minScaleFraction * math.Abs(baseline); scale < floor {
			scale = floor
		}

		p := point{obs: series[i]}
		deviant := false
		if scale > 0 {
			p.score = math.Abs(series[i].Value-baseline) / scale
			deviant = p.score > opts.Threshold
		}
		points[i] = p

		if deviant {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(points))

	return anomalies
}

// DetectAnomalies groups a well's observations by parameter and scores
// each series against its trailing median-and-MAD baseline.
func DetectAnomalies(wellID string, obs []model.ParameterObservation, opts Options) []model.Anomaly {
	byParam := map[string][]model.ParameterObservation{}
	for _, o := range obs {
		byParam[o.ParameterName] = append(byParam[o.ParameterName], o)
	}

	params := make([]string, 0, len(byParam))
	for p := range byParam {
		params = append(params, p)
	}
	sort.Strings(params)

	var anomalies []model.Anomaly
	for _, p := range params {
		anomalies = append(anomalies, collectRuns(wellID, p, byParam[p], opts)...)
	}
	return anomalies
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mad returns the median absolute deviation of vals around center.
func mad(vals []float64, center float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	devs := make([]float64, len(vals))
	for i, v := range vals {
		devs[i] = math.Abs(v - center)
	}
	return median(devs)
}
