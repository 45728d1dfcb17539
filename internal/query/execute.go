package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/store"
)

// Executor runs validated QuerySpecs against the time-series store. All
// access goes through RangeQuery; there is no free-form query path.
type Executor struct {
	store store.Store
}

// NewExecutor creates an Executor over the given store.
func NewExecutor(st store.Store) *Executor {
	return &Executor{store: st}
}

// Execute runs the spec and returns structured facts with citations. The
// spec is re-validated here so the closed operation set holds regardless
// of who built the spec.
func (e *Executor) Execute(ctx context.Context, spec QuerySpec) ([]model.StructuredFact, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	var params []string
	if spec.Parameter != "" {
		params = []string{spec.Parameter}
	}
	obs, err := e.store.RangeQuery(ctx, spec.WellID, spec.From, spec.To, params)
	if err != nil {
		return nil, eris.Wrap(err, "query: range query")
	}
	if len(obs) == 0 {
		return nil, nil
	}

	switch spec.Aggregate {
	case AggregateNone:
		return listFacts(spec, obs), nil
	case AggregateCount:
		return []model.StructuredFact{countFact(spec, obs)}, nil
	default:
		return []model.StructuredFact{aggregateFact(spec, obs)}, nil
	}
}

func listFacts(spec QuerySpec, obs []model.ParameterObservation) []model.StructuredFact {
	sorted := append([]model.ParameterObservation(nil), obs...)
	if spec.Sort == SortDesc {
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].ReportDate.After(sorted[j].ReportDate)
		})
	}
	if spec.Limit > 0 && len(sorted) > spec.Limit {
		sorted = sorted[:spec.Limit]
	}

	facts := make([]model.StructuredFact, len(sorted))
	for i, o := range sorted {
		facts[i] = model.StructuredFact{
			Statement:    fmt.Sprintf("%s on %s was %.4g %s", spec.Parameter, o.ReportDate.Format("2006-01-02"), o.Value, o.Unit),
			Value:        o.Value,
			Unit:         o.Unit,
			AppliedQuery: spec.Describe(),
			Citations:    []model.Citation{citationFor(o)},
		}
	}
	return facts
}

func countFact(spec QuerySpec, obs []model.ParameterObservation) model.StructuredFact {
	reports := map[string]model.ParameterObservation{}
	for _, o := range obs {
		reports[o.ReportID] = o
	}

	subject := "reports"
	value := float64(len(reports))
	if spec.Parameter != "" {
		subject = spec.Parameter + " observations"
		value = float64(len(obs))
	}

	return model.StructuredFact{
		Statement:    fmt.Sprintf("well %s has %d %s in the selected range", spec.WellID, int(value), subject),
		Value:        value,
		AppliedQuery: spec.Describe(),
		Citations:    citationsFor(obs),
	}
}

func aggregateFact(spec QuerySpec, obs []model.ParameterObservation) model.StructuredFact {
	var value float64
	var citations []model.Citation

	switch spec.Aggregate {
	case AggregateMax:
		best := obs[0]
		for _, o := range obs[1:] {
			if o.Value > best.Value {
				best = o
			}
		}
		value = best.Value
		citations = []model.Citation{citationFor(best)}
	case AggregateMin:
		best := obs[0]
		for _, o := range obs[1:] {
			if o.Value < best.Value {
				best = o
			}
		}
		value = best.Value
		citations = []model.Citation{citationFor(best)}
	case AggregateAvg:
		sum := 0.0
		for _, o := range obs {
			sum += o.Value
		}
		value = sum / float64(len(obs))
		citations = citationsFor(obs)
	case AggregateSum:
		for _, o := range obs {
			value += o.Value
		}
		citations = citationsFor(obs)
	}

	return model.StructuredFact{
		Statement: fmt.Sprintf("%s %s for well %s is %.4g %s",
			spec.Aggregate, spec.Parameter, spec.WellID, value, obs[0].Unit),
		Value:        value,
		Unit:         obs[0].Unit,
		AppliedQuery: spec.Describe(),
		Citations:    citations,
	}
}

func citationFor(o model.ParameterObservation) model.Citation {
	return model.Citation{
		ReportID:   o.ReportID,
		WellID:     o.WellID,
		ReportDate: o.ReportDate,
	}
}

// citationsFor returns one citation per contributing report, in date
// order.
func citationsFor(obs []model.ParameterObservation) []model.Citation {
	seen := map[string]struct{}{}
	var citations []model.Citation
	for _, o := range obs {
		if _, ok := seen[o.ReportID]; ok {
			continue
		}
		seen[o.ReportID] = struct{}{}
		citations = append(citations, citationFor(o))
	}
	return citations
}
