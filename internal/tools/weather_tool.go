// In file: internal/tools/weather_tool.go
package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	WeatherToolName    = "get_weather"
	defaultWeatherBase = "https://wttr.in"
)

// WeatherTool fetches a one-line current weather report from wttr.in.
type WeatherTool struct {
	*Base
	baseURL    string
	httpClient *http.Client
}

var _ Tool = (*WeatherTool)(nil)

// NewWeatherTool creates the tool. An empty baseURL uses wttr.in.
func NewWeatherTool(baseURL string) *WeatherTool {
	if baseURL == "" {
		baseURL = defaultWeatherBase
	}
	return &WeatherTool{
		Base: NewBase(
			WeatherToolName,
			"Get the current weather for a specific location",
			ObjectSchema(map[string]*JSONSchema{
				"location": {
					Type:        "string",
					Description: "The city and state, e.g., San Francisco, CA or Kharagpur, India",
				},
			}, "location"),
		),
		baseURL: strings.TrimRight(baseURL, "/"),
		// Some weather endpoints stall; a hung tool would block the whole conversation.
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (wt *WeatherTool) Clone() Tool {
	return &WeatherTool{Base: wt.CloneBase(), baseURL: wt.baseURL, httpClient: wt.httpClient}
}

func (wt *WeatherTool) Execute(ctx context.Context) (any, error) {
	location := strings.TrimSpace(wt.StringParam("location"))
	if location == "" {
		return map[string]any{"error": "location cannot be empty"}, nil
	}

	endpoint := fmt.Sprintf("%s/%s?format=3", wt.baseURL, url.PathEscape(location))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather API request: %w", err)
	}
	req.Header.Set("User-Agent", "agentgateway/1.0")

	resp, err := wt.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call weather API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather API returned non-200 status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read weather API response: %w", err)
	}

	report := strings.TrimSpace(string(body))
	if strings.Contains(report, "Unknown location") {
		return map[string]any{"error": fmt.Sprintf("unknown location %q", location)}, nil
	}
	return map[string]any{"location": location, "report": report}, nil
}
