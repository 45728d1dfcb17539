// Package summarize produces bounded-length natural-language digests of
// normalized reports.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/resilience"
	"github.com/wellsight/ddr-engine/pkg/llm"
)

// Summarizer generates one current summary per report from its canonical
// record and detected events. The language-model call is treated as an
// external capability: after the retry budget is spent the summary is
// simply absent, never partial.
type Summarizer struct {
	client llm.Client
	cfg    config.SummarizeConfig
	retry  resilience.RetryConfig
}

// New creates a Summarizer. maxRetries is the number of retries after the
// first attempt, matching the capability contract.
func New(client llm.Client, cfg config.SummarizeConfig, maxRetries int) *Summarizer {
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = maxRetries + 1
	return &Summarizer{client: client, cfg: cfg, retry: retry}
}

// Summarize generates a Summary for the report. On capability failure it
// returns ErrCapabilityUnavailable wrapped with the cause; no Summary is
// produced in that case.
func (s *Summarizer) Summarize(ctx context.Context, report *model.Report, events []model.Event, obs []model.ParameterObservation) (*model.Summary, error) {
	prompt := buildPrompt(report, events, obs, s.cfg.MaxChars)

	text, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.client.Generate(ctx, prompt, "")
	})
	if err != nil {
		zap.L().Warn("summarize: capability unavailable",
			zap.String("report_id", report.ID),
			zap.Error(err),
		)
		return nil, eris.Wrapf(model.ErrCapabilityUnavailable, "summarize %s: %v", report.ID, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, eris.Wrapf(model.ErrCapabilityUnavailable, "summarize %s: empty completion", report.ID)
	}
	if len(text) > s.cfg.MaxChars && s.cfg.MaxChars > 0 {
		text = truncate(text, s.cfg.MaxChars)
	}

	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	sort.Strings(ids)

	return &model.Summary{
		SummaryID:      uuid.New().String(),
		ReportID:       report.ID,
		Text:           text,
		GeneratedAt:    time.Now().UTC(),
		SourceEventIDs: ids,
		Current:        true,
	}, nil
}

// buildPrompt renders the report into a deterministic prompt: inputs are
// sorted and formatted identically on every run so that, with sampling
// pinned at the capability boundary, identical reports yield identical
// summaries.
func buildPrompt(report *model.Report, events []model.Event, obs []model.ParameterObservation, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a daily drilling report digest of at most %d characters.\n", maxChars)
	fmt.Fprintf(&b, "Well %s, report date %s.\n", report.WellID, report.ReportDate.Format("2006-01-02"))

	if report.Operator != "" {
		fmt.Fprintf(&b, "Operator: %s. ", report.Operator)
	}
	if report.RigName != "" {
		fmt.Fprintf(&b, "Rig: %s.", report.RigName)
	}
	b.WriteString("\n")

	if report.SummaryActivities != "" {
		fmt.Fprintf(&b, "Activities: %s\n", report.SummaryActivities)
	}
	if report.PlannedActivities != "" {
		fmt.Fprintf(&b, "Planned: %s\n", report.PlannedActivities)
	}
	for _, remark := range report.ActivityRemarks {
		fmt.Fprintf(&b, "Remark: %s\n", remark)
	}

	sorted := append([]model.Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EventID < sorted[j].EventID })
	for _, e := range sorted {
		fmt.Fprintf(&b, "Event [%s, confidence %.2f]: %s\n", e.Category, e.Confidence, e.EvidenceSpan)
	}

	for _, o := range keyObservations(obs) {
		fmt.Fprintf(&b, "Parameter %s = %.4g %s\n", o.ParameterName, o.Value, o.Unit)
	}

	b.WriteString("State facts only from the data above. Do not invent figures.")
	return b.String()
}

// keyObservations keeps one representative observation per parameter, the
// last in series order, to bound prompt size on reports with long
// per-depth series.
func keyObservations(obs []model.ParameterObservation) []model.ParameterObservation {
	last := map[string]model.ParameterObservation{}
	for _, o := range obs {
		last[o.ParameterName] = o
	}
	params := make([]string, 0, len(last))
	for p := range last {
		params = append(params, p)
	}
	sort.Strings(params)

	out := make([]model.ParameterObservation, 0, len(params))
	for _, p := range params {
		out = append(out, last[p])
	}
	return out
}

// truncate cuts text at the last word boundary that fits, never
// splitting a multi-byte rune.
func truncate(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	end := maxChars
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	cut := text[:end]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return cut
}
