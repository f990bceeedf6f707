// In file: internal/llm/errors.go
package llm

import (
	"errors"
	"fmt"
)

// Configuration errors are returned synchronously by the setup methods of an
// Agent and are never retried.
var (
	ErrMissingCredential  = errors.New("missing required credential")
	ErrInvalidConfigKey   = errors.New("invalid model configuration key")
	ErrInvalidConfigValue = errors.New("invalid model configuration value")
	ErrUnsupportedAgent   = errors.New("unsupported agent type")
)

// Run errors. Only these escape Run; every provider or classification problem
// is reported through an error-classified Response instead.
var (
	ErrNoActiveConversation = errors.New("no conversation id provided and no active conversation; start a conversation first")
	ErrNotAuthenticated     = errors.New("authentication not set; call SetAuth before running the agent")
)

// ErrToolArgumentValidation marks a Response whose tool call carried arguments
// that did not satisfy the tool's schema.
var ErrToolArgumentValidation = errors.New("tool argument validation failed")

// APIError is returned by the raw-HTTP transport when a vendor answers with a
// non-2xx status.
type APIError struct {
	Vendor     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d, body: %s", e.Vendor, e.StatusCode, e.Body)
}
