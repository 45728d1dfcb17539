package query

import (
	"strings"

	"github.com/wellsight/ddr-engine/internal/model"
)

// narrativeCues signal that a question asks for explanation or
// description rather than a numeric fact.
var narrativeCues = []string{
	"why", "how did", "how was", "explain", "describe", "what happened",
	"what went", "tell me about", "summarize", "summary", "cause", "reason",
	"slow down", "went wrong", "problem", "issue",
}

// structuredCues signal a concrete numeric or tabular question.
var structuredCues = []string{
	"max", "maximum", "min", "minimum", "highest", "lowest", "average",
	"mean", "total", "sum", "count", "how many", "how much", "what was the",
	"what is the", "value of", "deepest", "peak",
}

// ClassifyIntent maps a question to structured, narrative, or both. The
// classification is a pure function of lexical cues so identical
// questions always route identically.
func ClassifyIntent(question string) model.Intent {
	lowered := strings.ToLower(question)

	narrative := matchesAny(lowered, narrativeCues)
	structured := matchesAny(lowered, structuredCues)

	switch {
	case narrative && structured:
		return model.IntentBoth
	case narrative:
		return model.IntentNarrative
	case structured:
		return model.IntentStructured
	default:
		// Unrecognized phrasing gets the widest net: both engines run and
		// the composer reports whatever grounding exists.
		return model.IntentBoth
	}
}

func matchesAny(text string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}
