// Package external wraps the third-party web-search provider behind a
// cache and a circuit breaker. External results are score-capped so they
// never outrank tenant-provided data at equal relevance.
package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bochiedev/tulia-retrieval/internal/source"
)

// Provider is the raw web-search call.
type Provider interface {
	Search(ctx context.Context, query string) ([]source.Snippet, error)
}

// HTTPProvider calls a JSON web-search API. The provider is expected to
// filter advertisements on its side.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type providerResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

func (p *HTTPProvider) Search(ctx context.Context, query string) ([]source.Snippet, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing provider endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building provider request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling search provider: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var parsed providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding provider response: %w", err)
	}
	snippets := make([]source.Snippet, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		snippets = append(snippets, source.Snippet{
			Title: r.Title,
			URL:   r.URL,
			Text:  r.Snippet,
		})
	}
	return snippets, nil
}
