package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/knosphere/backend/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// Client implements ai.Client against a locally or remotely hosted Ollama
// server. One semaphore bounds all in-flight requests since local servers
// are usually the throughput limit.
type Client struct {
	chatModel      string
	embeddingModel string

	timeoutMin int

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	API *api.Client
}

// NewClientParams configures an Ollama-backed Client.
type NewClientParams struct {
	ChatModel      string
	EmbeddingModel string

	BaseURL string
	APIKey  string

	TimeoutMinutes        int
	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so the original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewClient connects to the Ollama server at BaseURL (or the default when
// empty) and uses the configured models for chat and embeddings.
func NewClient(params NewClientParams) (*Client, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	if params.TimeoutMinutes <= 0 {
		params.TimeoutMinutes = 10
	}
	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 2
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.APIKey,
			},
			rt: http.DefaultTransport,
		},
	}

	return &Client{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		timeoutMin: params.TimeoutMinutes,

		reqLock: semaphore.NewWeighted(params.MaxConcurrentRequests),

		API: api.NewClient(u, httpClient),
	}, nil
}
