package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/common"
	"github.com/knosphere/backend/pkg/logger"
)

const (
	maxContextDocs  = 3
	docExcerptChars = 800
)

type toolDecision struct {
	UseTools bool `json:"use_tools" jsonschema_description:"Whether external tools are needed to answer the question"`
}

// decideTools asks whether the query needs external capabilities. Any
// failure defaults to retrieval, never tool execution.
func (o *Orchestrator) decideTools(ctx context.Context, state *State) {
	if len(o.tools) == 0 {
		state.ShouldUseTools = false
		state.record("decide_tools", StatusOK, "no tools registered")
		return
	}

	var decision toolDecision
	err := o.ai.GenerateCompletionWithFormat(
		ctx,
		"tool_decision",
		"Whether the question needs external tools",
		fmt.Sprintf(ai.PromptDecideTools, state.Query),
		&decision,
		ai.WithTemperature(0.1),
	)
	if err != nil {
		state.ShouldUseTools = false
		state.record("decide_tools", StatusError, "decision failed, defaulting to retrieval: "+err.Error())
		return
	}

	state.ShouldUseTools = decision.UseTools
	state.record("decide_tools", StatusOK, fmt.Sprintf("use_tools=%t", decision.UseTools))
}

// runTools lets the model call the registered tools. A non-empty final
// message counts as a direct answer and ends the workflow; anything else
// falls through to retrieval.
func (o *Orchestrator) runTools(ctx context.Context, state *State) bool {
	result, err := o.ai.GenerateChatWithTools(ctx, state.Messages, o.tools)
	if err != nil {
		state.record("tools", StatusError, "tool round failed, falling through to retrieval: "+err.Error())
		return false
	}

	state.ToolCalls = append(state.ToolCalls, result.Invocations...)
	for _, inv := range result.Invocations {
		state.Messages = append(state.Messages, ai.ChatMessage{
			Role:    "tool",
			Message: fmt.Sprintf("%s(%s): %s", inv.Name, inv.Arguments, inv.Result),
		})
	}

	if result.Content != "" {
		state.Answer = result.Content
		state.Messages = append(state.Messages, ai.ChatMessage{Role: "assistant", Message: result.Content})
		state.record("tools", StatusOK, fmt.Sprintf("direct answer after %d tool calls", len(result.Invocations)))
		return true
	}

	state.record("tools", StatusOK, fmt.Sprintf("%d tool calls, continuing with retrieval", len(result.Invocations)))
	return false
}

// retrieve runs the hybrid search with bounds widened for longer queries.
// Failures empty the document list and set the error field; routing treats
// that the same as no relevant documents.
func (o *Orchestrator) retrieve(ctx context.Context, state *State) {
	topK, finalK := 10, 3
	if len([]rune(state.Query)) > longQueryRunes {
		topK, finalK = 15, 5
	}

	docs, err := o.retriever.Search(ctx, state.Query, state.Principal, topK, finalK, 0.3)
	if err != nil {
		state.Documents = nil
		state.Error = err.Error()
		state.record("retrieve", StatusError, err.Error())
		return
	}

	state.Documents = docs
	state.record("retrieve", StatusOK, fmt.Sprintf("%d documents", len(docs)))
}

type relevanceVerdict struct {
	Relevant bool `json:"relevant" jsonschema_description:"Whether the documents can answer the question"`
}

// grade judges whether the retrieved documents can answer the query. An
// empty document list is irrelevant without asking the model. When the
// structured call fails, a free-text call with a substring heuristic is the
// last resort; if that fails too the verdict stays unknown and the query
// proceeds to generation.
func (o *Orchestrator) grade(ctx context.Context, state *State) {
	if len(state.Documents) == 0 {
		state.setRelevant(false)
		state.record("grade", StatusOK, "no documents")
		return
	}

	prompt := fmt.Sprintf(ai.PromptGradeDocuments, state.Query, formatContext(state.Documents))

	var verdict relevanceVerdict
	err := o.ai.GenerateCompletionWithFormat(
		ctx,
		"relevance_verdict",
		"Relevance of retrieved documents",
		prompt,
		&verdict,
		ai.WithTemperature(0.1),
	)
	if err == nil {
		state.setRelevant(verdict.Relevant)
		state.record("grade", StatusOK, fmt.Sprintf("relevant=%t", verdict.Relevant))
		return
	}

	// Free-text heuristic, kept as an approximation for providers without
	// structured output.
	text, textErr := o.ai.GenerateCompletion(ctx, prompt, ai.WithTemperature(0.1))
	if textErr != nil {
		state.IsRelevant = nil
		state.record("grade", StatusError, "grading failed, proceeding ungraded: "+textErr.Error())
		return
	}

	lower := strings.ToLower(text)
	relevant := strings.Contains(lower, "yes") || strings.Contains(text, "相关")
	state.setRelevant(relevant)
	state.record("grade", StatusOK, fmt.Sprintf("relevant=%t (free-text heuristic)", relevant))
}

// rewrite restates the query more specifically before the next retrieval
// attempt. On failure the query stays as-is; the retry still counts.
func (o *Orchestrator) rewrite(ctx context.Context, state *State) {
	rewritten, err := o.ai.GenerateCompletion(
		ctx,
		fmt.Sprintf(ai.PromptRewriteQuery, state.Query),
		ai.WithTemperature(0.3),
	)
	if err != nil {
		state.record("rewrite", StatusError, "rewrite failed, keeping query: "+err.Error())
		return
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		state.record("rewrite", StatusError, "empty rewrite, keeping query")
		return
	}

	state.Query = rewritten
	state.record("rewrite", StatusOK, rewritten)
}

// generate produces the final grounded answer. Without documents it emits a
// fixed message instead of calling the model.
func (o *Orchestrator) generate(ctx context.Context, state *State, events chan<- ai.StreamEvent) error {
	if len(state.Documents) == 0 {
		state.Answer = notFoundMessage
		state.record("generate", StatusOK, "no documents, fixed message")
		o.emit(ctx, events, ai.StreamEvent{Type: "content", Content: state.Answer})
		return nil
	}

	prompt := fmt.Sprintf(ai.PromptAnswerWithContext, formatContext(state.Documents), state.OriginalQuery)
	messages := append(append([]ai.ChatMessage(nil), state.Messages...), ai.ChatMessage{Role: "user", Message: prompt})

	if events == nil {
		answer, err := o.ai.GenerateChat(ctx, messages, ai.WithTemperature(0.3))
		if err != nil {
			state.Error = err.Error()
			state.record("generate", StatusError, err.Error())
			return fmt.Errorf("generation failed: %w", err)
		}
		state.Answer = answer
		state.record("generate", StatusOK, "")
		return nil
	}

	stream, err := o.ai.GenerateChatStream(ctx, messages, ai.WithTemperature(0.3))
	if err != nil {
		state.Error = err.Error()
		state.record("generate", StatusError, err.Error())
		return fmt.Errorf("generation failed: %w", err)
	}

	var answer strings.Builder
	for event := range stream {
		if event.Type == "content" {
			answer.WriteString(event.Content)
		}
		o.emit(ctx, events, event)
	}
	if err := ctx.Err(); err != nil {
		state.Error = err.Error()
		state.record("generate", StatusError, err.Error())
		return err
	}

	state.Answer = answer.String()
	state.record("generate", StatusOK, "")
	if state.Answer == "" {
		logger.Warn("generation stream produced no content", "query", state.OriginalQuery)
	}
	return nil
}

// formatContext renders the top documents as the reference block of a
// generation prompt, each truncated to a bounded excerpt.
func formatContext(docs []common.ScoredDocument) string {
	limit := len(docs)
	if limit > maxContextDocs {
		limit = maxContextDocs
	}
	parts := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		parts = append(parts, fmt.Sprintf("[%d] %s\n%s",
			i+1, docs[i].Title, util.TruncateRunes(docs[i].Content, docExcerptChars)))
	}
	return strings.Join(parts, "\n\n")
}
