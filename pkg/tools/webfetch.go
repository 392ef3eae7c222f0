package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/ai"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/singleflight"
)

const fetchResultLimit = 8000

type webFetchArgs struct {
	URL string `json:"url" jsonschema_description:"HTTP or HTTPS URL of the page to read"`
}

// webFetcher fetches pages and extracts readable text. Results are cached
// per URL for the process lifetime; concurrent fetches of the same URL
// collapse into one request.
type webFetcher struct {
	cache   map[string]string
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewWebFetchTool reads a web page and returns its main text content.
func NewWebFetchTool() ai.Tool {
	f := &webFetcher{cache: make(map[string]string)}
	return ai.Tool{
		Name:        "web_fetch",
		Description: "Fetch a web page and return its readable main content.",
		Parameters:  mustSchema(webFetchArgs{}),
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args webFetchArgs
			if err := decodeArgs(arguments, &args); err != nil {
				return "", err
			}
			return f.fetch(ctx, args.URL)
		},
	}
}

func (f *webFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", rawURL)
	}

	f.cacheMu.RLock()
	if cached, ok := f.cache[rawURL]; ok {
		f.cacheMu.RUnlock()
		return cached, nil
	}
	f.cacheMu.RUnlock()

	result, err, _ := f.group.Do(rawURL, func() (any, error) {
		f.cacheMu.RLock()
		if cached, ok := f.cache[rawURL]; ok {
			f.cacheMu.RUnlock()
			return cached, nil
		}
		f.cacheMu.RUnlock()

		text, err := fetchReadable(ctx, rawURL, parsed)
		if err != nil {
			return "", err
		}

		f.cacheMu.Lock()
		f.cache[rawURL] = text
		f.cacheMu.Unlock()
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func fetchReadable(ctx context.Context, rawURL string, parsed *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		article, err := readability.FromReader(resp.Body, parsed)
		if err != nil {
			return "", fmt.Errorf("failed to parse html: %w", err)
		}
		var builder strings.Builder
		if err := article.RenderText(&builder); err != nil {
			return "", fmt.Errorf("failed to render article text: %w", err)
		}
		return util.TruncateRunes(builder.String(), fetchResultLimit), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return util.TruncateRunes(string(body), fetchResultLimit), nil
}
