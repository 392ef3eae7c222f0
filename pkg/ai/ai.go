package ai

import "context"

// ToolHandler executes a tool call. The arguments parameter carries the
// JSON-encoded arguments chosen by the model.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// Tool defines a function the model may invoke during generation.
type Tool struct {
	Name        string         // Unique identifier for the tool
	Description string         // What the tool does, shown to the model
	Parameters  map[string]any // JSON Schema for the tool's arguments
	Handler     ToolHandler    // Executed when the model calls the tool
}

// ToolInvocation records one executed tool call within a chat round.
type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
}

// ToolChatResult is the outcome of a tool-enabled chat: the final assistant
// text plus every tool call that was executed along the way.
type ToolChatResult struct {
	Content     string           `json:"content"`
	Invocations []ToolInvocation `json:"invocations"`
}

// ChatMessage is a single turn in a conversation.
//
// Role must be one of:
//   - "user"      → a user-provided message
//   - "assistant" → a message from the model
//   - "tool"      → a tool execution result
type ChatMessage struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// GenerateOptions holds configuration for generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
	Thinking      string   // Extended thinking mode configuration
	MaxRounds     int      // Tool-call round limit for tool-enabled chats
}

// ModelMetrics accumulates token and latency accounting across calls.
type ModelMetrics struct {
	InputTokens  int   `json:"input_tokens"`
	OutputTokens int   `json:"output_tokens"`
	TotalTokens  int   `json:"total_tokens"`
	DurationMs   int64 `json:"duration_ms"`
}

// StreamEvent is one element of a streaming response.
type StreamEvent struct {
	Type      string // "step" | "content"
	Step      string // step name (when Type="step")
	Content   string // text content (when Type="content")
	Reasoning string // reasoning content (when Step="thinking")
}

// GenerateOption is a functional option for generation requests.
type GenerateOption func(*GenerateOptions)

// WithModel sets the model to use for generation.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts sets the system prompts prepended to the request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature sets the sampling temperature. Lower values make output
// more deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// WithThinking enables extended thinking mode with the given budget or mode.
func WithThinking(thinking string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Thinking = thinking
	}
}

// WithMaxRounds bounds the number of tool-call rounds in tool-enabled chats.
func WithMaxRounds(rounds int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxRounds = rounds
	}
}

// Client is the generation and embedding capability every higher layer
// depends on. Implementations must be safe for concurrent use; all methods
// honor context cancellation between network round trips.
type Client interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error

	GenerateChat(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (string, error)
	GenerateChatStream(
		ctx context.Context,
		messages []ChatMessage,
		opts ...GenerateOption,
	) (<-chan StreamEvent, error)
	GenerateChatWithTools(
		ctx context.Context,
		messages []ChatMessage,
		tools []Tool,
		opts ...GenerateOption,
	) (*ToolChatResult, error)

	GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)

	ResetMetrics()
	GetMetrics() ModelMetrics
}
