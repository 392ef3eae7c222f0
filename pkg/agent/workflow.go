package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
)

const (
	defaultMaxRetries = 2

	// Query length (in runes) above which retrieval widens its candidate
	// set, on the assumption that longer questions span more topics.
	longQueryRunes = 30

	notFoundMessage = "No relevant documents were found in the knowledge base for this question."
	fallbackMessage = "I couldn't find relevant information for your question in the knowledge base. Please try different keywords or rephrase your question."
)

// Retriever is the document retrieval capability the workflow builds on.
type Retriever interface {
	Search(
		ctx context.Context,
		query string,
		principal string,
		topK int,
		finalK int,
		threshold float64,
	) ([]common.ScoredDocument, error)
}

// Orchestrator runs the query workflow: decide on tools, retrieve, grade,
// rewrite on irrelevance, then generate or fall back. All collaborators are
// injected; the orchestrator itself holds no per-query state and is safe
// for concurrent use.
type Orchestrator struct {
	ai         ai.Client
	retriever  Retriever
	tools      []ai.Tool
	maxRetries int
}

// Params configures an Orchestrator. Tools may be empty, which disables the
// tool branch entirely.
type Params struct {
	AI         ai.Client
	Retriever  Retriever
	Tools      []ai.Tool
	MaxRetries int
}

// NewOrchestrator creates a workflow from its collaborators.
func NewOrchestrator(params Params) (*Orchestrator, error) {
	if params.AI == nil {
		return nil, fmt.Errorf("agent: missing AI client")
	}
	if params.Retriever == nil {
		return nil, fmt.Errorf("agent: missing retriever")
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = defaultMaxRetries
	}
	return &Orchestrator{
		ai:         params.AI,
		retriever:  params.Retriever,
		tools:      params.Tools,
		maxRetries: params.MaxRetries,
	}, nil
}

// Run executes the workflow for one query and returns the final state. The
// returned state always carries an answer: either a generation or a canned
// fallback. A non-nil error means generation itself failed; the state is
// still returned with its history for diagnosis.
func (o *Orchestrator) Run(ctx context.Context, query, principal string) (*State, error) {
	return o.run(ctx, query, principal, nil)
}

// RunStream is Run with progress reporting: each node emits a step event and
// the final generation is forwarded fragment by fragment. The channel is
// closed when the workflow finishes; the caller owns draining it.
func (o *Orchestrator) RunStream(ctx context.Context, query, principal string, events chan<- ai.StreamEvent) (*State, error) {
	defer close(events)
	return o.run(ctx, query, principal, events)
}

func (o *Orchestrator) run(ctx context.Context, query, principal string, events chan<- ai.StreamEvent) (*State, error) {
	state := newState(query, principal)
	state.Messages = []ai.ChatMessage{{Role: "user", Message: query}}
	state.record("start", StatusOK, "")
	defer func() { state.FinishedAt = time.Now() }()

	o.emitStep(ctx, events, "decide_tools")
	o.decideTools(ctx, state)

	if state.ShouldUseTools {
		o.emitStep(ctx, events, "tools")
		if done := o.runTools(ctx, state); done {
			o.emit(ctx, events, ai.StreamEvent{Type: "content", Content: state.Answer})
			return state, nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}

		o.emitStep(ctx, events, "retrieve")
		o.retrieve(ctx, state)

		o.emitStep(ctx, events, "grade")
		o.grade(ctx, state)

		if state.IsRelevant == nil || *state.IsRelevant {
			break
		}
		if state.RetryCount >= o.maxRetries {
			o.emitStep(ctx, events, "fallback")
			state.Answer = fallbackMessage
			state.record("fallback", StatusOK, "retry budget exhausted")
			o.emit(ctx, events, ai.StreamEvent{Type: "content", Content: state.Answer})
			return state, nil
		}

		state.RetryCount++
		o.emitStep(ctx, events, "rewrite")
		o.rewrite(ctx, state)
	}

	o.emitStep(ctx, events, "generate")
	if err := o.generate(ctx, state, events); err != nil {
		return state, err
	}
	return state, nil
}

func (o *Orchestrator) emit(ctx context.Context, events chan<- ai.StreamEvent, event ai.StreamEvent) {
	if events == nil {
		return
	}
	select {
	case events <- event:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) emitStep(ctx context.Context, events chan<- ai.StreamEvent, step string) {
	o.emit(ctx, events, ai.StreamEvent{Type: "step", Step: step})
}
