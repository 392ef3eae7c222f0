// Package setup builds the shared service clients from environment
// configuration. Server and worker use the same wiring.
package setup

import (
	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/ai"
	"github.com/knosphere/backend/pkg/ai/ollama"
	"github.com/knosphere/backend/pkg/ai/openai"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/rerank"
)

// NewAIClient selects the generation backend via AI_ADAPTER. Anything but
// "ollama" means the OpenAI-compatible client.
func NewAIClient() ai.Client {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := ollama.NewClient(ollama.NewClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			APIKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 2)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		return client
	default:
		return openai.NewClient(openai.NewClientParams{
			ChatModel:      util.GetEnv("AI_CHAT_MODEL"),
			EmbeddingModel: util.GetEnv("AI_EMBED_MODEL"),

			ChatURL:      util.GetEnv("AI_CHAT_URL"),
			ChatKey:      util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL: util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey: util.GetEnv("AI_EMBED_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 8)),
		})
	}
}

// NewReranker returns the configured rerank backend. Without a RERANK_KEY
// the retrieval pipeline keeps similarity order.
func NewReranker() rerank.Provider {
	apiKey := util.GetEnv("RERANK_KEY")
	if apiKey == "" {
		logger.Info("no rerank backend configured, using similarity order")
		return rerank.NewNoopProvider()
	}

	provider, err := rerank.NewDashScopeProvider(rerank.DashScopeParams{
		Model:   util.GetEnv("RERANK_MODEL"),
		APIKey:  apiKey,
		BaseURL: util.GetEnv("RERANK_URL"),
	})
	if err != nil {
		logger.Fatal("Failed to create rerank provider", "err", err)
	}
	return provider
}
