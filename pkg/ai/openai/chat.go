package openai

import (
	"context"
	"fmt"
	"time"

	"github.com/knosphere/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

func buildMessages(systemPrompts []string, messages []ai.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(systemPrompts)+len(messages))
	for _, sp := range systemPrompts {
		msgs = append(msgs, openai.SystemMessage(sp))
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Message))
		case "tool":
			// Tool transcripts from earlier rounds are replayed as user
			// context; the wire-level tool protocol only spans one call.
			msgs = append(msgs, openai.UserMessage("Tool result: "+m.Message))
		default:
			msgs = append(msgs, openai.UserMessage(m.Message))
		}
	}
	return msgs
}

func (c *Client) applyThinking(body *openai.ChatCompletionNewParams, options ai.GenerateOptions) {
	if options.Thinking == "" {
		return
	}
	// Reasoning models on the official endpoint reject temperatures
	// other than 1.0.
	if c.chatURL == "" {
		body.Temperature = openai.Float(1.0)
	}
	body.ReasoningEffort = shared.ReasoningEffort(options.Thinking)
}

// GenerateCompletion sends a single-turn prompt to the chat model and
// returns the generated text.
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

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    buildMessages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Message: prompt}}),
		Temperature: openai.Float(options.Temperature),
	}
	c.applyThinking(&body, options)

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.chatLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.chatLock.Release(1)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}

// GenerateCompletionWithFormat sends a prompt and unmarshals the response
// into out, enforcing a JSON schema derived from out's type.
func (c *Client) GenerateCompletionWithFormat(
	ctx context.Context,
	name string,
	description string,
	prompt string,
	out any,
	opts ...ai.GenerateOption,
) error {
	schema := ai.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	options := ai.GenerateOptions{
		Model:       c.chatModel,
		Temperature: 0.1,
	}
	for _, o := range opts {
		o(&options)
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(options.Model),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages:    buildMessages(options.SystemPrompts, []ai.ChatMessage{{Role: "user", Message: prompt}}),
		Temperature: openai.Float(options.Temperature),
	}
	c.applyThinking(&body, options)

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.chatLock.Acquire(rCtx, 1); err != nil {
		return err
	}
	defer c.chatLock.Release(1)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return fmt.Errorf("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	return ai.UnmarshalFlexible(message, out)
}

// GenerateChat sends a multi-turn conversation and returns the assistant's
// reply as plain text.
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

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    buildMessages(options.SystemPrompts, messages),
		Temperature: openai.Float(options.Temperature),
	}
	c.applyThinking(&body, options)

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.chatLock.Acquire(rCtx, 1); err != nil {
		return "", err
	}
	defer c.chatLock.Release(1)

	start := time.Now()
	response, err := c.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return "", err
	}

	c.modifyMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response from model")
	}
	return response.Choices[0].Message.Content, nil
}

// GenerateChatStream sends a multi-turn conversation and returns a channel
// streaming the assistant's reply incrementally. The channel is closed when
// the stream ends or ctx is canceled.
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

	body := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(options.Model),
		Messages:    buildMessages(options.SystemPrompts, messages),
		Temperature: openai.Float(options.Temperature),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	c.applyThinking(&body, options)

	if err := c.chatLock.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	start := time.Now()
	stream := c.ChatClient.Chat.Completions.NewStreaming(ctx, body)
	out := make(chan ai.StreamEvent, 10)

	go func() {
		defer c.chatLock.Release(1)
		defer close(out)
		defer stream.Close()

		acc := openai.ChatCompletionAccumulator{}

		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) == 0 {
				continue
			}
			if chunk.Choices[0].Delta.Content != "" {
				select {
				case out <- ai.StreamEvent{Type: "content", Content: chunk.Choices[0].Delta.Content}:
				case <-ctx.Done():
					return
				}
			}
		}

		c.modifyMetrics(ai.ModelMetrics{
			InputTokens:  int(acc.Usage.PromptTokens),
			OutputTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:  int(acc.Usage.TotalTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		})
	}()

	return out, nil
}

// GenerateChatWithTools runs a tool-enabled conversation. Tool calls chosen
// by the model are executed and fed back until the model produces a final
// reply without tool calls or the round limit is reached. The result
// records every executed invocation.
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

	msgs := buildMessages(options.SystemPrompts, messages)

	openaiTools := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		openaiTools[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  tool.Parameters,
		})
	}

	result := &ai.ToolChatResult{}

	for range options.MaxRounds {
		body := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(options.Model),
			Messages:    msgs,
			Tools:       openaiTools,
			Temperature: openai.Float(options.Temperature),
		}
		c.applyThinking(&body, options)

		rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))

		if err := c.chatLock.Acquire(rCtx, 1); err != nil {
			cancel()
			return nil, err
		}

		start := time.Now()
		response, err := c.ChatClient.Chat.Completions.New(rCtx, body)
		c.chatLock.Release(1)
		cancel()
		if err != nil {
			return nil, err
		}

		c.modifyMetrics(ai.ModelMetrics{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
			TotalTokens:  int(response.Usage.TotalTokens),
			DurationMs:   time.Since(start).Milliseconds(),
		})

		if len(response.Choices) == 0 {
			return nil, fmt.Errorf("no choices in response from model")
		}

		if len(response.Choices[0].Message.ToolCalls) == 0 {
			result.Content = response.Choices[0].Message.Content
			return result, nil
		}

		msgs = append(msgs, response.Choices[0].Message.ToParam())

		for _, tc := range response.Choices[0].Message.ToolCalls {
			ftc := tc.AsFunction()

			var handler ai.ToolHandler
			for _, tool := range tools {
				if tool.Name == ftc.Function.Name {
					handler = tool.Handler
					break
				}
			}
			if handler == nil {
				return nil, fmt.Errorf("no handler found for tool: %s", ftc.Function.Name)
			}

			toolResult, err := handler(ctx, ftc.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("tool %s failed: %w", ftc.Function.Name, err)
			}

			result.Invocations = append(result.Invocations, ai.ToolInvocation{
				ID:        ftc.ID,
				Name:      ftc.Function.Name,
				Arguments: ftc.Function.Arguments,
				Result:    toolResult,
			})
			msgs = append(msgs, openai.ToolMessage(toolResult, ftc.ID))
		}
	}

	return nil, fmt.Errorf("max tool rounds (%d) exceeded", options.MaxRounds)
}
