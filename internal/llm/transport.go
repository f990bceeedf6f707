// In file: internal/llm/transport.go
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// httpTransport posts JSON to a vendor endpoint, retrying network failures and
// 5xx answers with exponential backoff. 4xx answers are returned at once.
type httpTransport struct {
	vendor     string
	client     *http.Client
	retryDelay time.Duration
}

func newHTTPTransport(vendor string) *httpTransport {
	return &httpTransport{
		vendor:     vendor,
		client:     &http.Client{Timeout: defaultTimeout},
		retryDelay: initialRetryDelay,
	}
}

func (t *httpTransport) post(ctx context.Context, url string, headers map[string]string, payload []byte) ([]byte, error) {
	var lastErr error
	delay := t.retryDelay

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s request cancelled: %w (last error: %v)", t.vendor, ctx.Err(), lastErr)
			case <-time.After(delay):
			}
			delay *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create http request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s request failed: %w", t.vendor, err)
			}
			lastErr = fmt.Errorf("%s request failed (attempt %d/%d): %w", t.vendor, i+1, maxRetries, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		if err := resp.Body.Close(); err != nil {
			log.Printf("Warning: Failed to close %s response body: %v", t.vendor, err)
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response body: %w", readErr)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		apiErr := &APIError{Vendor: t.vendor, StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, apiErr
		}
		lastErr = fmt.Errorf("attempt %d/%d: %w", i+1, maxRetries, apiErr)
	}
	return nil, lastErr
}
