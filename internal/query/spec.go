// Package query classifies questions, translates them into bounded store
// queries, and composes answers from structured facts and retrieved
// passages.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// AggregateOp is one of the closed set of aggregations the engine may
// execute. Anything outside this set is rejected at validation, never
// executed.
type AggregateOp string

const (
	AggregateNone  AggregateOp = ""
	AggregateMin   AggregateOp = "min"
	AggregateMax   AggregateOp = "max"
	AggregateAvg   AggregateOp = "avg"
	AggregateCount AggregateOp = "count"
	AggregateSum   AggregateOp = "sum"
)

// SortOrder controls result ordering for non-aggregated queries.
type SortOrder string

const (
	SortNone SortOrder = ""
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// QuerySpec is the contract between the translator and the executor: a
// filter over the observation store plus at most one aggregation, one
// sort, and one limit. The executor refuses anything else.
type QuerySpec struct {
	WellID    string      `json:"well_id"`
	Parameter string      `json:"parameter"`
	From      time.Time   `json:"from,omitempty"`
	To        time.Time   `json:"to,omitempty"`
	Aggregate AggregateOp `json:"aggregate,omitempty"`
	Sort      SortOrder   `json:"sort,omitempty"`
	Limit     int         `json:"limit,omitempty"`
}

// Validate checks the spec against the closed operation set.
func (q QuerySpec) Validate() error {
	if q.WellID == "" {
		return eris.New("query: spec missing well_id filter")
	}
	if q.Parameter == "" && q.Aggregate != AggregateCount {
		return eris.New("query: spec missing parameter filter")
	}
	switch q.Aggregate {
	case AggregateNone, AggregateMin, AggregateMax, AggregateAvg, AggregateCount, AggregateSum:
	default:
		return eris.Errorf("query: aggregate %q outside allowed set", q.Aggregate)
	}
	switch q.Sort {
	case SortNone, SortAsc, SortDesc:
	default:
		return eris.Errorf("query: sort %q outside allowed set", q.Sort)
	}
	if q.Limit < 0 {
		return eris.New("query: negative limit")
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return eris.New("query: date range inverted")
	}
	return nil
}

// Describe renders the exact filter and aggregation applied, for citation
// in answers.
func (q QuerySpec) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "filter(well=%s", q.WellID)
	if q.Parameter != "" {
		fmt.Fprintf(&b, ", parameter=%s", q.Parameter)
	}
	if !q.From.IsZero() || !q.To.IsZero() {
		from, to := "*", "*"
		if !q.From.IsZero() {
			from = q.From.Format("2006-01-02")
		}
		if !q.To.IsZero() {
			to = q.To.Format("2006-01-02")
		}
		fmt.Fprintf(&b, ", dates=%s..%s", from, to)
	}
	b.WriteString(")")
	if q.Aggregate != AggregateNone {
		fmt.Fprintf(&b, " aggregate(%s)", q.Aggregate)
	}
	if q.Sort != SortNone {
		fmt.Fprintf(&b, " sort(%s)", q.Sort)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " limit(%d)", q.Limit)
	}
	return b.String()
}
