// In file: internal/llm/constants.go
package llm

import "time"

// Transport constants shared by the raw-HTTP adapters.
const (
	defaultTimeout    = 120 * time.Second
	maxRetries        = 3
	initialRetryDelay = 2 * time.Second
)

// Vendor identifiers accepted by NewAgent.
const (
	VendorOpenAI    = "openai"
	VendorAnthropic = "anthropic"
	VendorGemini    = "gemini"
	VendorVertex    = "vertex"
	VendorMistral   = "mistral"
	VendorGroq      = "groq"
	VendorFireworks = "fireworks"
	VendorTogether  = "together"
	VendorBedrock   = "bedrock"
)
