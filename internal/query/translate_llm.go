package query

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/pkg/llm"
)

// LLMTranslator layers a model-assisted parse behind the rule-based
// translator. The rules run first; only a question the rules cannot map
// goes to the model, and the model's output is held to the same closed
// operation set through a strict decoder plus Validate. A parse that
// escapes the contract is Unmappable, exactly as if no model existed.
type LLMTranslator struct {
	rules  *Translator
	client llm.Client
}

// NewLLMTranslator wraps the rule-based translator with a model fallback.
// A nil client leaves the translator purely rule-based.
func NewLLMTranslator(client llm.Client) *LLMTranslator {
	return &LLMTranslator{rules: NewTranslator(), client: client}
}

const translatePrompt = `Map the question onto a drilling-report query.
Respond with ONLY a JSON object using exactly these keys:
{"well_id": "", "parameter": "", "from": "", "to": "", "aggregate": "", "sort": "", "limit": 0}

Rules:
- parameter must be one of: depth, penetration_rate, mud_weight, total_gas, temperature, pressure, viscosity. Empty only for count questions.
- aggregate must be one of: min, max, avg, count, sum, or empty for a plain lookup.
- sort must be asc, desc, or empty.
- from/to are dates formatted YYYY-MM-DD, or empty.
- If the question cannot be expressed with filter, aggregate, sort, and limit alone, respond with the single word UNMAPPABLE.

Question: `

// llmSpec is the wire form the model emits; dates stay strings so the
// decoder can reject anything that is not a plain calendar date.
type llmSpec struct {
	WellID    string `json:"well_id"`
	Parameter string `json:"parameter"`
	From      string `json:"from"`
	To        string `json:"to"`
	Aggregate string `json:"aggregate"`
	Sort      string `json:"sort"`
	Limit     int    `json:"limit"`
}

// Translate maps the question onto a QuerySpec, consulting the model only
// when the rules return Unmappable.
func (t *LLMTranslator) Translate(ctx context.Context, question string) (*QuerySpec, error) {
	spec, err := t.rules.Translate(question)
	if err == nil {
		return spec, nil
	}
	if !eris.Is(err, model.ErrUnmappable) || t.client == nil {
		return nil, err
	}

	out, genErr := t.client.Generate(ctx, translatePrompt+question, "")
	if genErr != nil {
		zap.L().Debug("llm translate unavailable, staying unmappable",
			zap.Error(genErr),
		)
		return nil, err
	}

	parsed, parseErr := parseLLMSpec(out)
	if parseErr != nil {
		zap.L().Debug("llm translate rejected",
			zap.String("question", question),
			zap.Error(parseErr),
		)
		return nil, err
	}
	return parsed, nil
}

// parseLLMSpec decodes and validates the model's output against the closed
// operation set.
func parseLLMSpec(out string) (*QuerySpec, error) {
	out = strings.TrimSpace(out)
	if strings.EqualFold(out, "UNMAPPABLE") {
		return nil, eris.Wrap(model.ErrUnmappable, "model declined")
	}

	// Strip a fenced code block if the model added one.
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")
	out = strings.TrimSpace(out)

	dec := json.NewDecoder(strings.NewReader(out))
	dec.DisallowUnknownFields()

	var wire llmSpec
	if err := dec.Decode(&wire); err != nil {
		return nil, eris.Wrap(err, "decode model query")
	}

	spec := &QuerySpec{
		WellID:    strings.TrimSpace(wire.WellID),
		Parameter: strings.TrimSpace(wire.Parameter),
		Aggregate: AggregateOp(wire.Aggregate),
		Sort:      SortOrder(wire.Sort),
		Limit:     wire.Limit,
	}

	if spec.Parameter != "" && !knownParameter(spec.Parameter) {
		return nil, eris.Errorf("parameter %q outside known schema", spec.Parameter)
	}

	var err error
	if spec.From, err = parseWireDate(wire.From); err != nil {
		return nil, err
	}
	if spec.To, err = parseWireDate(wire.To); err != nil {
		return nil, err
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// knownParameter reports whether the canonical parameter name appears in
// the translator's schema lexicon.
func knownParameter(name string) bool {
	for _, c := range parameterCues {
		if c.param == name {
			return true
		}
	}
	return false
}

func parseWireDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse date %q", s)
	}
	return ts, nil
}
