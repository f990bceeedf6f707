// In file: internal/tools/news_tool.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	NewsToolName   = "get_news_headlines"
	defaultNewsURL = "https://newsapi.org/v2/top-headlines"
)

// NewsTool fetches top headlines from newsapi.org. It requires the "api_key"
// auth field.
type NewsTool struct {
	*Base
	endpoint   string
	httpClient *http.Client
}

var _ Tool = (*NewsTool)(nil)

// NewNewsTool creates the tool; apiKey may be empty and set later with SetAuth.
func NewNewsTool(apiKey string) *NewsTool {
	nt := &NewsTool{
		Base: NewBase(
			NewsToolName,
			"Fetches the latest news headlines about a specific topic, category, or from a particular country.",
			ObjectSchema(map[string]*JSONSchema{
				"query": {
					Type:        "string",
					Description: "The topic or keyword to search for, e.g. 'artificial intelligence'.",
				},
				"category": {
					Type:        "string",
					Description: "The category of news.",
					Enum:        []any{"business", "entertainment", "general", "health", "science", "sports", "technology"},
				},
				"country": {
					Type:        "string",
					Description: "The 2-letter ISO 3166-1 code of the country, e.g. 'us' or 'in'.",
				},
			}),
			"api_key",
		),
		endpoint:   defaultNewsURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	if apiKey != "" {
		nt.SetAuth(map[string]string{"api_key": apiKey})
	}
	return nt
}

// WithEndpoint points the tool at a different headlines endpoint.
func (nt *NewsTool) WithEndpoint(endpoint string) *NewsTool {
	nt.endpoint = endpoint
	return nt
}

func (nt *NewsTool) Clone() Tool {
	return &NewsTool{Base: nt.CloneBase(), endpoint: nt.endpoint, httpClient: nt.httpClient}
}

type headline struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

func (nt *NewsTool) Execute(ctx context.Context) (any, error) {
	base, err := url.Parse(nt.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid news endpoint: %w", err)
	}
	params := url.Values{}
	for _, key := range []string{"query", "category", "country"} {
		if v := nt.StringParam(key); v != "" {
			name := key
			if key == "query" {
				name = "q"
			}
			params.Add(name, v)
		}
	}
	params.Add("pageSize", "5")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create news API request: %w", err)
	}
	req.Header.Set("X-Api-Key", nt.Auth()["api_key"])
	req.Header.Set("User-Agent", "agentgateway/1.0")

	resp, err := nt.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call news API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return map[string]any{"error": fmt.Sprintf("news API returned status %d", resp.StatusCode)}, nil
	}

	var apiResp struct {
		TotalResults int `json:"totalResults"`
		Articles     []struct {
			Title  string `json:"title"`
			Source struct {
				Name string `json:"name"`
			} `json:"source"`
		} `json:"articles"`
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read news API response: %w", err)
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse news API JSON response: %w", err)
	}

	headlines := make([]headline, 0, len(apiResp.Articles))
	for _, a := range apiResp.Articles {
		headlines = append(headlines, headline{Title: a.Title, Source: a.Source.Name})
	}
	return map[string]any{"total_results": apiResp.TotalResults, "headlines": headlines}, nil
}
