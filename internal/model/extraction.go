package model

// RawExtraction is the inbound object from the vision/OCR layer: one
// extraction result per uploaded document. The engine never sees document
// images, only this structure.
type RawExtraction struct {
	Ref        string           `json:"ref,omitempty" yaml:"ref,omitempty"`
	WellID     string           `json:"well_id" yaml:"well_id"`
	ReportDate string           `json:"report_date" yaml:"report_date"`
	Tables     []ExtractedTable `json:"tables" yaml:"tables"`
	TextSpans  []TextSpan       `json:"text_spans" yaml:"text_spans"`
}

// ExtractedTable holds detected table cells with per-cell confidence.
// Rows and Confidences are parallel: Confidences[r][c] scores Rows[r][c].
// A missing confidence defaults to 1.0.
type ExtractedTable struct {
	Name        string        `json:"name" yaml:"name"`
	Rows        [][]string    `json:"rows" yaml:"rows"`
	Confidences [][]float64   `json:"confidences,omitempty" yaml:"confidences,omitempty"`
}

// CellConfidence returns the confidence for cell (row, col), defaulting to
// 1.0 when the vision layer supplied none.
func (t ExtractedTable) CellConfidence(row, col int) float64 {
	if row >= len(t.Confidences) {
		return 1.0
	}
	r := t.Confidences[row]
	if col >= len(r) {
		return 1.0
	}
	return r[col]
}

// TextSpan is a free-text region detected on the document.
type TextSpan struct {
	Text       string    `json:"text" yaml:"text"`
	BBox       []float64 `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Confidence float64   `json:"confidence" yaml:"confidence"`
}
