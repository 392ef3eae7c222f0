package openai

import (
	"sync"

	"github.com/knosphere/backend/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// Client talks to OpenAI-compatible endpoints. Chat and embeddings may be
// served by different endpoints with different credentials.
//
// Create instances with NewClient; the zero value is not usable.
type Client struct {
	chatModel      string
	embeddingModel string

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	timeoutMin int

	chatLock      *semaphore.Weighted
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewClientParams configures a Client.
//
// ChatModel is the default model for completions and chat; EmbeddingModel
// for embeddings. Empty URLs mean the official OpenAI endpoint.
type NewClientParams struct {
	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	TimeoutMinutes        int
	MaxConcurrentRequests int64
}

// NewClient creates a Client with separate underlying SDK clients for chat
// and embedding traffic.
func NewClient(params NewClientParams) *Client {
	if params.TimeoutMinutes <= 0 {
		params.TimeoutMinutes = 5
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 8
	}

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin: params.TimeoutMinutes,

		chatLock:      semaphore.NewWeighted(params.MaxConcurrentRequests),
		embeddingLock: semaphore.NewWeighted(params.MaxConcurrentRequests),

		ChatClient:      newSDKClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newSDKClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newSDKClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(options...)
	return &client
}
