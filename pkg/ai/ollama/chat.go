package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/knosphere/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"github.com/pkoukk/tiktoken-go"
)

func buildAPIMessages(systemPrompts []string, messages []ai.ChatMessage) []api.Message {
	msgs := make([]api.Message, 0, len(systemPrompts)+len(messages))
	for _, sys := range systemPrompts {
		msgs = append(msgs, api.Message{Role: "system", Content: sys})
	}
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		msgs = append(msgs, api.Message{Role: role, Content: m.Message})
	}
	return msgs
}

// sizeContext grows num_ctx beyond the default when the prompt alone would
// overflow it.
func sizeContext(req *api.ChatRequest, text string) error {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return err
	}
	tokens := 200 + len(enc.Encode(text, nil, nil))
	if tokens > 4096 {
		req.Options["num_ctx"] = tokens
	}
	return nil
}

func (c *Client) chatOnce(ctx context.Context, req *api.ChatRequest) (api.ChatResponse, error) {
	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return api.ChatResponse{}, err
	}
	defer c.reqLock.Release(1)

	var final api.ChatResponse
	if err := c.API.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if len(cr.Message.ToolCalls) > 0 {
			final.Message.ToolCalls = cr.Message.ToolCalls
		}
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return api.ChatResponse{}, err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})
	return final, nil
}

// GenerateCompletion sends a single-turn prompt and returns assistant text.
func (c *Client) GenerateCompletion(
	ctx context.Context,
	prompt string,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.3,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: buildAPIMessages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Message: prompt}}),
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}
	if err := sizeContext(req, prompt); err != nil {
		return "", err
	}

	final, err := c.chatOnce(ctx, req)
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

// GenerateCompletionWithFormat enforces a JSON schema and unmarshals into out.
func (c *Client) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	if out == nil {
		return errors.New("out must be a non-nil pointer")
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("out must be a non-nil pointer")
	}

	formatBytes, err := json.Marshal(ai.GenerateSchema(out))
	if err != nil {
		return err
	}
	var format json.RawMessage = formatBytes

	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: buildAPIMessages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Message: prompt}}),
		Stream:   &stream,
		Format:   format,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}
	if err := sizeContext(req, prompt); err != nil {
		return err
	}

	final, err := c.chatOnce(ctx, req)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(final.Message.Content, out)
}

// GenerateChat sends a multi-turn conversation and returns assistant text.
func (c *Client) GenerateChat(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (string, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.2,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := false
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: buildAPIMessages(options.SystemPrompts, messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	var all strings.Builder
	for _, m := range messages {
		all.WriteString(m.Message)
	}
	if err := sizeContext(req, all.String()); err != nil {
		return "", err
	}

	final, err := c.chatOnce(ctx, req)
	if err != nil {
		return "", err
	}
	return final.Message.Content, nil
}

// GenerateChatStream streams the assistant reply incrementally.
func (c *Client) GenerateChatStream(
	ctx context.Context,
	messages []ai.ChatMessage,
	opts ...ai.GenerateOption,
) (<-chan ai.StreamEvent, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.2,
	}
	for _, o := range opts {
		o(&options)
	}

	stream := true
	req := &api.ChatRequest{
		Model:    options.Model,
		Messages: buildAPIMessages(options.SystemPrompts, messages),
		Stream:   &stream,
		Options:  map[string]any{"temperature": options.Temperature},
	}
	if options.Thinking != "" {
		req.Think = &api.ThinkValue{Value: options.Thinking}
	}

	var all strings.Builder
	for _, m := range messages {
		all.WriteString(m.Message)
	}
	if err := sizeContext(req, all.String()); err != nil {
		return nil, err
	}

	if err := c.reqLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	out := make(chan ai.StreamEvent, 16)
	go func() {
		defer c.reqLock.Release(1)
		defer close(out)

		_ = c.API.Chat(ctx, req, func(cr api.ChatResponse) error {
			if s := cr.Message.Content; s != "" {
				select {
				case out <- ai.StreamEvent{Type: "content", Content: s}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if cr.Done {
				c.modifyMetrics(ai.ModelMetrics{
					InputTokens:  cr.Metrics.PromptEvalCount,
					OutputTokens: cr.Metrics.EvalCount,
					TotalTokens:  cr.Metrics.PromptEvalCount + cr.Metrics.EvalCount,
					DurationMs:   cr.TotalDuration.Milliseconds(),
				})
			}
			return nil
		})
	}()

	return out, nil
}

func buildAPITools(tools []ai.Tool) api.Tools {
	ollamaTools := make(api.Tools, len(tools))
	for i, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Required:   []string{},
			Properties: api.NewToolPropertiesMap(),
		}

		if tool.Parameters != nil {
			if props, ok := tool.Parameters["properties"].(map[string]any); ok {
				for name, prop := range props {
					if propMap, ok := prop.(map[string]any); ok {
						tp := api.ToolProperty{}
						if t, ok := propMap["type"].(string); ok {
							tp.Type = api.PropertyType([]string{t})
						}
						if desc, ok := propMap["description"].(string); ok {
							tp.Description = desc
						}
						if enum, ok := propMap["enum"].([]any); ok {
							tp.Enum = enum
						}
						params.Properties.Set(name, tp)
					}
				}
			}
			if reqAny, ok := tool.Parameters["required"].([]any); ok {
				params.Required = make([]string, 0, len(reqAny))
				for _, v := range reqAny {
					if s, ok := v.(string); ok {
						params.Required = append(params.Required, s)
					}
				}
			} else if req, ok := tool.Parameters["required"].([]string); ok {
				params.Required = req
			}
		}

		ollamaTools[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return ollamaTools
}

// GenerateChatWithTools runs a tool-enabled conversation. Tool calls are
// executed and fed back until the model answers without tool calls or the
// round limit is reached.
func (c *Client) GenerateChatWithTools(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (*ai.ToolChatResult, error) {
	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.2,
		MaxRounds:   10,
	}
	for _, o := range opts {
		o(&options)
	}

	msgs := buildAPIMessages(options.SystemPrompts, messages)
	ollamaTools := buildAPITools(tools)

	var all strings.Builder
	for _, m := range messages {
		all.WriteString(m.Message)
	}

	result := &ai.ToolChatResult{}

	for range options.MaxRounds {
		stream := false
		req := &api.ChatRequest{
			Model:    options.Model,
			Messages: msgs,
			Tools:    ollamaTools,
			Stream:   &stream,
			Options:  map[string]any{"temperature": options.Temperature},
		}
		if options.Thinking != "" {
			req.Think = &api.ThinkValue{Value: options.Thinking}
		}
		if err := sizeContext(req, all.String()); err != nil {
			return nil, err
		}

		final, err := c.chatOnce(ctx, req)
		if err != nil {
			return nil, err
		}

		if len(final.Message.ToolCalls) == 0 {
			result.Content = final.Message.Content
			return result, nil
		}

		msgs = append(msgs, final.Message)

		for _, tc := range final.Message.ToolCalls {
			var handler ai.ToolHandler
			for _, tool := range tools {
				if tool.Name == tc.Function.Name {
					handler = tool.Handler
					break
				}
			}
			if handler == nil {
				return nil, fmt.Errorf("no handler found for tool: %s", tc.Function.Name)
			}

			argsBytes, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool arguments: %w", err)
			}

			toolResult, err := handler(ctx, string(argsBytes))
			if err != nil {
				return nil, fmt.Errorf("tool %s failed: %w", tc.Function.Name, err)
			}

			result.Invocations = append(result.Invocations, ai.ToolInvocation{
				Name:      tc.Function.Name,
				Arguments: string(argsBytes),
				Result:    toolResult,
			})
			msgs = append(msgs, api.Message{Role: "tool", Content: toolResult})
		}
	}

	return nil, fmt.Errorf("max tool rounds (%d) exceeded", options.MaxRounds)
}
