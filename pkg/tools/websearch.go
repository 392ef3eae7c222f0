package tools

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/knosphere/backend/pkg/ai"
)

const duckDuckGoURL = "https://api.duckduckgo.com/"

type webSearchArgs struct {
	Query string `json:"query" jsonschema_description:"Search query"`
}

type duckDuckGoResponse struct {
	AbstractText   string `json:"AbstractText"`
	AbstractSource string `json:"AbstractSource"`
	AbstractURL    string `json:"AbstractURL"`
	Answer         string `json:"Answer"`
	RelatedTopics  []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// NewWebSearchTool answers factual queries via the DuckDuckGo instant
// answer API. Coverage is limited to topics with instant answers; the tool
// says so instead of returning an empty string.
func NewWebSearchTool() ai.Tool {
	return ai.Tool{
		Name:        "web_search",
		Description: "Search the web for a short factual answer or topic summary.",
		Parameters:  mustSchema(webSearchArgs{}),
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args webSearchArgs
			if err := decodeArgs(arguments, &args); err != nil {
				return "", err
			}
			if args.Query == "" {
				return "", fmt.Errorf("query is required")
			}
			return searchWeb(ctx, args.Query)
		},
	}
}

func searchWeb(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}

	var result duckDuckGoResponse
	if err := getJSON(ctx, duckDuckGoURL+"?"+params.Encode(), &result); err != nil {
		return "", fmt.Errorf("web search failed: %w", err)
	}

	if result.Answer != "" {
		return result.Answer, nil
	}
	if result.AbstractText != "" {
		summary := result.AbstractText
		if result.AbstractSource != "" {
			summary += " (source: " + result.AbstractSource + ", " + result.AbstractURL + ")"
		}
		return summary, nil
	}

	snippets := make([]string, 0, 3)
	for _, topic := range result.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		snippets = append(snippets, "- "+topic.Text)
		if len(snippets) == 3 {
			break
		}
	}
	if len(snippets) > 0 {
		return "Related results:\n" + strings.Join(snippets, "\n"), nil
	}
	return "No instant answer available for this query.", nil
}
