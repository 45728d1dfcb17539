package normalize

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/model"
)

// Normalizer converts one raw vision-layer extraction into a canonical
// Report plus its ParameterObservations. Normalization is a pure function
// of the extraction, so re-running it for the same report yields the same
// stored state under the store's overwrite semantics.
type Normalizer struct {
	cfg config.NormalizeConfig
}

// New creates a Normalizer.
func New(cfg config.NormalizeConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// headerTextFields maps canonical key-value table keys to report header
// setters. Everything else in a key-value table is treated as numeric.
var headerTextFields = map[string]func(*model.Report, string){
	"operator":            func(r *model.Report, v string) { r.Operator = v },
	"rig_name":            func(r *model.Report, v string) { r.RigName = v },
	"wellbore_type":       func(r *model.Report, v string) { r.WellboreType = v },
	"drilling_contractor": func(r *model.Report, v string) {},
	"status":              func(r *model.Report, v string) {},
}

// Normalize builds the Report record and observations for one extraction.
// Missing mandatory fields (well_id, report_date) fail the whole report
// with IncompleteExtractionError and nothing may be written to the store.
// Per-field conversion failures are recorded on the report and skipped.
func (n *Normalizer) Normalize(raw model.RawExtraction, ingestedAt time.Time) (*model.Report, []model.ParameterObservation, error) {
	wellID := strings.TrimSpace(raw.WellID)
	reportDate, dateOK := parseReportDate(raw.ReportDate)

	var missing []string
	if wellID == "" {
		missing = append(missing, "well_id")
	}
	if !dateOK {
		missing = append(missing, "report_date")
	}
	if len(missing) > 0 {
		return nil, nil, &model.IncompleteExtractionError{Missing: missing}
	}

	report := &model.Report{
		ID:                 model.ReportID(wellID, reportDate),
		WellID:             wellID,
		ReportDate:         reportDate,
		IngestionTimestamp: ingestedAt.UTC(),
		RawExtractionRef:   raw.Ref,
		Status:             model.ReportStatusNormalized,
	}

	// Observations keyed by (parameter, index) so duplicate cells within
	// one extraction collapse to the last value rather than duplicating.
	obsByKey := make(map[obsKey]model.ParameterObservation)
	skippedCells := 0

	for _, tbl := range raw.Tables {
		switch classifyTable(tbl.Name) {
		case tableOperations:
			n.normalizeSeries(tbl, report, obsByKey, &skippedCells)
			liftRemarks(tbl, report)
		case tableSeries:
			n.normalizeSeries(tbl, report, obsByKey, &skippedCells)
		case tableParamRows:
			n.normalizeParamRows(tbl, report, obsByKey, &skippedCells)
		default:
			n.normalizeKeyValue(tbl, report, obsByKey, &skippedCells)
		}
	}

	n.normalizeTextSpans(raw.TextSpans, report)

	obs := make([]model.ParameterObservation, 0, len(obsByKey))
	for _, o := range obsByKey {
		obs = append(obs, o)
	}
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].ParameterName != obs[j].ParameterName {
			return obs[i].ParameterName < obs[j].ParameterName
		}
		return obs[i].Index < obs[j].Index
	})

	zap.L().Debug("normalized extraction",
		zap.String("report", report.ID),
		zap.Int("observations", len(obs)),
		zap.Int("field_errors", len(report.FieldErrors)),
		zap.Int("skipped_cells", skippedCells),
	)
	return report, obs, nil
}

type obsKey struct {
	param string
	index float64
}

type tableKind int

const (
	tableKeyValue tableKind = iota
	tableOperations
	tableSeries
	tableParamRows
)

func classifyTable(name string) tableKind {
	n := CanonicalParamName(name)
	switch {
	case strings.Contains(n, "operation"):
		return tableOperations
	case strings.Contains(n, "fluid"):
		return tableParamRows
	case strings.Contains(n, "gas"), strings.Contains(n, "survey"):
		return tableSeries
	default:
		return tableKeyValue
	}
}

func parseReportDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.UTC(), true
		}
	}
	return time.Time{}, false
}

// normalizeKeyValue walks a header table of [key, value, unit?] rows.
// Text fields set report headers; everything else goes through numeric
// parsing and unit reconciliation into an index-0 observation.
func (n *Normalizer) normalizeKeyValue(tbl model.ExtractedTable, report *model.Report, out map[obsKey]model.ParameterObservation, skipped *int) {
	for ri, row := range tbl.Rows {
		if len(row) < 2 {
			continue
		}
		if tbl.CellConfidence(ri, 1) < n.cfg.MinCellConfidence {
			*skipped++
			continue
		}

		key := CanonicalParamName(row[0])
		val := strings.TrimSpace(row[1])
		if key == "" || val == "" {
			continue
		}

		if set, ok := headerTextFields[key]; ok {
			set(report, val)
			continue
		}

		param, unitHint := SplitUnitSuffix(key)
		unit := unitHint
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			unit = strings.TrimSpace(row[2])
		}

		num, ok := ParseNumeric(val)
		if !ok {
			// Key-value tables mix free text (spud date, HPHT flags) with
			// numerics; only flag cells that look like failed numbers when
			// the parameter family is known.
			if FamilyOf(param) != FamilyUnknown {
				report.FieldErrors = append(report.FieldErrors, model.FieldError{
					Field: param, Reason: "no numeric token in " + quoteVal(val),
				})
			}
			continue
		}

		converted, canonUnit, err := Convert(param, num, unit)
		if err != nil {
			report.FieldErrors = append(report.FieldErrors, model.FieldError{
				Field: param, Reason: err.Error(),
			})
			continue
		}

		out[obsKey{param, 0}] = model.ParameterObservation{
			ReportID:      report.ID,
			WellID:        report.WellID,
			ReportDate:    report.ReportDate,
			ParameterName: param,
			Value:         converted,
			Unit:          canonUnit,
			Index:         0,
		}
	}
}

// normalizeParamRows walks rows of [parameter, value, unit?], the drilling
// fluid table shape.
func (n *Normalizer) normalizeParamRows(tbl model.ExtractedTable, report *model.Report, out map[obsKey]model.ParameterObservation, skipped *int) {
	n.normalizeKeyValue(tbl, report, out, skipped)
}

// normalizeSeries walks a table whose first row is a header and whose
// remaining rows are per-depth (or per-time) measurements. The depth/time
// column becomes the observation index; every other numeric column becomes
// an observation named by its header.
func (n *Normalizer) normalizeSeries(tbl model.ExtractedTable, report *model.Report, out map[obsKey]model.ParameterObservation, skipped *int) {
	if len(tbl.Rows) < 2 {
		return
	}

	header := make([]string, len(tbl.Rows[0]))
	units := make([]string, len(tbl.Rows[0]))
	idxCol := -1
	for ci, cell := range tbl.Rows[0] {
		p := CanonicalParamName(cell)
		base, unit := SplitUnitSuffix(p)
		header[ci] = base
		units[ci] = unit
		if idxCol < 0 && (strings.Contains(base, "depth") || strings.Contains(base, "time")) {
			idxCol = ci
		}
	}

	for ri := 1; ri < len(tbl.Rows); ri++ {
		row := tbl.Rows[ri]

		index := float64(ri - 1) // row ordinal when no depth/time column
		if idxCol >= 0 && idxCol < len(row) {
			if v, ok := ParseNumeric(row[idxCol]); ok {
				conv, _, err := Convert(header[idxCol], v, units[idxCol])
				if err == nil {
					index = conv
				}
			}
		}

		for ci, cell := range row {
			if ci == idxCol || ci >= len(header) || header[ci] == "" {
				continue
			}
			if strings.TrimSpace(cell) == "" {
				continue
			}
			if tbl.CellConfidence(ri, ci) < n.cfg.MinCellConfidence {
				*skipped++
				continue
			}
			v, ok := ParseNumeric(cell)
			if !ok {
				continue // text columns (activity, remark) handled elsewhere
			}
			converted, canonUnit, err := Convert(header[ci], v, units[ci])
			if err != nil {
				report.FieldErrors = append(report.FieldErrors, model.FieldError{
					Field: header[ci], Reason: err.Error(),
				})
				continue
			}
			out[obsKey{header[ci], index}] = model.ParameterObservation{
				ReportID:      report.ID,
				WellID:        report.WellID,
				ReportDate:    report.ReportDate,
				ParameterName: header[ci],
				Value:         converted,
				Unit:          canonUnit,
				Index:         index,
			}
		}
	}
}

// liftRemarks collects the text columns of an operations table so event
// classification and retrieval can see what the crew reported.
func liftRemarks(tbl model.ExtractedTable, report *model.Report) {
	if len(tbl.Rows) < 2 {
		return
	}
	var textCols []int
	for ci, cell := range tbl.Rows[0] {
		p := CanonicalParamName(cell)
		if strings.Contains(p, "remark") || strings.Contains(p, "activity") || strings.Contains(p, "state") {
			textCols = append(textCols, ci)
		}
	}
	for ri := 1; ri < len(tbl.Rows); ri++ {
		var parts []string
		for _, ci := range textCols {
			if ci < len(tbl.Rows[ri]) {
				if s := strings.TrimSpace(tbl.Rows[ri][ci]); s != "" {
					parts = append(parts, s)
				}
			}
		}
		if len(parts) > 0 {
			report.ActivityRemarks = append(report.ActivityRemarks, strings.Join(parts, " | "))
		}
	}
}

// normalizeTextSpans maps labeled free-text spans onto report header text.
func (n *Normalizer) normalizeTextSpans(spans []model.TextSpan, report *model.Report) {
	for _, span := range spans {
		if span.Confidence > 0 && span.Confidence < n.cfg.MinCellConfidence {
			continue
		}
		text := strings.TrimSpace(span.Text)
		lower := strings.ToLower(text)
		switch {
		case strings.HasPrefix(lower, "summary of planned activities"),
			strings.HasPrefix(lower, "planned activities"):
			report.PlannedActivities = stripLabel(text)
		case strings.HasPrefix(lower, "summary of activities"):
			report.SummaryActivities = stripLabel(text)
		}
	}
}

func stripLabel(text string) string {
	if i := strings.IndexAny(text, ":\n"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}

func quoteVal(s string) string {
	if len(s) > 32 {
		s = s[:32]
	}
	return "\"" + s + "\""
}
