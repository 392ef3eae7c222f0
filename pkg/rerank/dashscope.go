package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultDashScopeURL = "https://dashscope.aliyuncs.com/api/v1/services/rerank/text-rerank/text-rerank"

// DashScopeProvider reranks via the DashScope text-rerank REST endpoint.
// There is no SDK for this API; the request and response shapes below are
// the documented wire format.
type DashScopeProvider struct {
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
}

// DashScopeParams configures a DashScopeProvider.
type DashScopeParams struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewDashScopeProvider creates a reranker against DashScope or any endpoint
// speaking the same protocol.
func NewDashScopeProvider(params DashScopeParams) (*DashScopeProvider, error) {
	if params.APIKey == "" {
		return nil, errors.New("rerank: missing API key")
	}
	if params.Model == "" {
		params.Model = "gte-rerank-v2"
	}
	if params.BaseURL == "" {
		params.BaseURL = defaultDashScopeURL
	}
	if params.Timeout <= 0 {
		params.Timeout = 30 * time.Second
	}
	return &DashScopeProvider{
		model:   params.Model,
		apiKey:  params.APIKey,
		baseURL: params.BaseURL,
		client:  &http.Client{Timeout: params.Timeout},
	}, nil
}

type dashScopeRequest struct {
	Model string `json:"model"`
	Input struct {
		Query     string   `json:"query"`
		Documents []string `json:"documents"`
	} `json:"input"`
	Parameters struct {
		ReturnDocuments bool `json:"return_documents"`
		TopN            int  `json:"top_n"`
	} `json:"parameters"`
}

type dashScopeResponse struct {
	Output struct {
		Results []Result `json:"results"`
	} `json:"output"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Rerank scores documents against query and returns up to topN results in
// descending score order.
func (p *DashScopeProvider) Rerank(ctx context.Context, query string, documents []string, topN int) ([]Result, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	reqBody := dashScopeRequest{Model: p.model}
	reqBody.Input.Query = query
	reqBody.Input.Documents = documents
	reqBody.Parameters.ReturnDocuments = false
	reqBody.Parameters.TopN = topN

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank request failed: status %d: %s", resp.StatusCode, body)
	}

	var parsed dashScopeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if parsed.Code != "" {
		return nil, fmt.Errorf("rerank provider error %s: %s", parsed.Code, parsed.Message)
	}

	results := parsed.Output.Results
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("rerank index out of range: %d", r.Index)
		}
	}
	if len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}
