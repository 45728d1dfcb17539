package query

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wellsight/ddr-engine/internal/config"
	"github.com/wellsight/ddr-engine/internal/model"
	"github.com/wellsight/ddr-engine/internal/retrieval"
	"github.com/wellsight/ddr-engine/internal/store"
)

// routerState tracks a request through the answering pipeline.
type routerState string

const (
	stateReceived   routerState = "received"
	stateClassified routerState = "classified"
	stateDispatched routerState = "dispatched"
	stateMerged     routerState = "merged"
	stateAnswered   routerState = "answered"
	stateFailed     routerState = "failed"
)

// Router classifies a question, dispatches the structured and retrieval
// branches, and merges their results into one Answer. Branches run
// concurrently under a per-branch timeout; a timed-out branch contributes
// nothing but never fails the request.
type Router struct {
	translator *LLMTranslator
	executor   *Executor
	index      *retrieval.Index
	cfg        config.QueryConfig
}

// NewRouter wires the router over the store and index with a purely
// rule-based translator.
func NewRouter(st store.Store, index *retrieval.Index, cfg config.QueryConfig) *Router {
	return &Router{
		translator: NewLLMTranslator(nil),
		executor:   NewExecutor(st),
		index:      index,
		cfg:        cfg,
	}
}

// WithTranslator swaps in a translator, typically one carrying a model
// fallback for questions the rules cannot map.
func (r *Router) WithTranslator(t *LLMTranslator) *Router {
	r.translator = t
	return r
}

// branchResult carries one branch's contribution to the merge.
type branchResult struct {
	facts    []model.StructuredFact
	passages []model.Passage
	flags    []model.AnswerFlag
}

// Ask answers a question. The returned Answer always represents failure
// states explicitly in its flags and unknown markers; Ask itself only
// errors on context cancellation of the whole request.
func (r *Router) Ask(ctx context.Context, question string) (*model.Answer, error) {
	advance := func(s routerState) {
		zap.L().Debug("query: state", zap.String("state", string(s)))
	}
	advance(stateReceived)

	intent := ClassifyIntent(question)
	advance(stateClassified)

	timeout := time.Duration(r.cfg.BranchTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var structured, narrative branchResult
	g, gctx := errgroup.WithContext(ctx)

	if intent == model.IntentStructured || intent == model.IntentBoth {
		g.Go(func() error {
			res, err := r.structuredBranch(gctx, question, timeout)
			if err != nil {
				return err
			}
			structured = res
			return nil
		})
	}
	if intent == model.IntentNarrative || intent == model.IntentBoth {
		g.Go(func() error {
			res, err := r.narrativeBranch(gctx, question, timeout)
			if err != nil {
				return err
			}
			narrative = res
			return nil
		})
	}
	advance(stateDispatched)

	if err := g.Wait(); err != nil {
		advance(stateFailed)
		zap.L().Error("query: request failed", zap.Error(err))
		return nil, err
	}

	// A structured question whose translation escapes the closed
	// operation set is answered by retrieval alone.
	if intent == model.IntentStructured && hasFlag(structured.flags, model.FlagUnmappable) {
		res, err := r.narrativeBranch(ctx, question, timeout)
		if err != nil {
			advance(stateFailed)
			zap.L().Error("query: request failed", zap.Error(err))
			return nil, err
		}
		narrative = res
	}
	advance(stateMerged)

	answer := Compose(question, intent, structured, narrative)
	advance(stateAnswered)

	zap.L().Debug("query: answered",
		zap.String("intent", string(intent)),
		zap.Int("facts", len(answer.Facts)),
		zap.Int("passages", len(answer.Passages)),
	)
	return answer, nil
}

// structuredBranch translates and executes the question against the
// store. Unmappable questions degrade to a flag so the retrieval branch
// can still carry the answer.
func (r *Router) structuredBranch(ctx context.Context, question string, timeout time.Duration) (branchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res branchResult

	spec, err := r.translator.Translate(ctx, question)
	if err != nil {
		if errors.Is(err, model.ErrUnmappable) {
			res.flags = append(res.flags, model.FlagUnmappable)
			return res, nil
		}
		return res, err
	}

	facts, err := r.executor.Execute(ctx, *spec)
	switch {
	case err == nil:
		res.facts = facts
	case errors.Is(err, context.DeadlineExceeded):
		res.flags = append(res.flags, model.FlagBranchTimeout)
	default:
		return res, err
	}
	return res, nil
}

// narrativeBranch searches the semantic index. The index lookup is
// in-memory and fast, but the timeout still bounds it for symmetry with
// the structured branch.
func (r *Router) narrativeBranch(ctx context.Context, question string, timeout time.Duration) (branchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res branchResult

	done := make(chan struct{})
	var passages []model.Passage
	var partial bool
	go func() {
		defer close(done)
		passages, partial = r.index.Search(question, r.cfg.TopK)
	}()

	select {
	case <-done:
		res.passages = passages
		if partial {
			res.flags = append(res.flags, model.FlagPartialIndex)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.flags = append(res.flags, model.FlagBranchTimeout)
		} else {
			return res, ctx.Err()
		}
	}
	return res, nil
}
