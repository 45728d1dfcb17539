package detect

import (
	"strings"

	"github.com/google/uuid"

	"github.com/wellsight/ddr-engine/internal/model"
)

// categoryRule maps activity keywords to an event category. Rules are
// evaluated in order and every keyword hit contributes its weight, so a
// remark mentioning both tripping and reaming classifies by the stronger
// aggregate signal.
type categoryRule struct {
	category model.EventCategory
	keywords []string
	weight   float64
}

var categoryRules = []categoryRule{
	{
		category: model.EventCategoryDrilling,
		keywords: []string{"drill", "drilled", "drilling ahead", "spud", "make hole", "rotary", "slide"},
		weight:   0.35,
	},
	{
		category: model.EventCategoryReaming,
		keywords: []string{"ream", "reamed", "reaming", "back ream", "wiper trip", "hole cleaning"},
		weight:   0.35,
	},
	{
		category: model.EventCategoryTripping,
		keywords: []string{"trip", "tripped", "tripping", "poh", "pooh", "rih", "run in hole", "pull out"},
		weight:   0.35,
	},
	{
		category: model.EventCategoryAnomaly,
		keywords: []string{"kick", "loss", "losses", "stuck", "influx", "gain", "pack off", "well control", "npt"},
		weight:   0.45,
	},
}

// ropSignatureBoost is added to a drilling classification when the well's
// penetration rate series shows active hole-making for the report.
const ropSignatureBoost = 0.25

// ClassifyReport tags each activity remark of a report with an event
// category. Remarks whose best score stays below minConfidence are kept as
// category other so low-signal activity is never silently dropped.
func ClassifyReport(report *model.Report, obs []model.ParameterObservation, minConfidence float64) []model.Event {
	texts := make([]string, 0, len(report.ActivityRemarks)+1)
	texts = append(texts, report.ActivityRemarks...)
	if len(texts) == 0 && report.SummaryActivities != "" {
		texts = append(texts, report.SummaryActivities)
	}

	drillingActive := hasActiveROP(obs)

	var events []model.Event
	for _, text := range texts {
		category, confidence := classifyText(text, drillingActive)
		if confidence < minConfidence {
			category = model.EventCategoryOther
		}
		events = append(events, model.Event{
			EventID:      uuid.New().String(),
			ReportID:     report.ID,
			WellID:       report.WellID,
			Category:     category,
			Confidence:   confidence,
			EvidenceSpan: text,
		})
	}
	return events
}

func classifyText(text string, drillingActive bool) (model.EventCategory, float64) {
	lowered := strings.ToLower(text)

	best := model.EventCategoryOther
	bestScore := 0.0
	for _, rule := range categoryRules {
		score := 0.0
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				score += rule.weight
			}
		}
		if rule.category == model.EventCategoryDrilling && score > 0 && drillingActive {
			score += ropSignatureBoost
		}
		if score > bestScore {
			best = rule.category
			bestScore = score
		}
	}

	if bestScore > 1.0 {
		bestScore = 1.0
	}
	return best, bestScore
}

// hasActiveROP reports whether any penetration-rate observation for the
// report is positive, the numeric signature of active drilling.
func hasActiveROP(obs []model.ParameterObservation) bool {
	for _, o := range obs {
		if strings.Contains(o.ParameterName, "penetration_rate") && o.Value > 0 {
			return true
		}
	}
	return false
}
