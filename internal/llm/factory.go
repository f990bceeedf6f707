// In file: internal/llm/factory.go
package llm

import (
	"fmt"
	"strings"
)

// NewAgent returns the adapter for vendor, targeting modelID.
func NewAgent(vendor, modelID string) (Agent, error) {
	switch v := strings.ToLower(strings.TrimSpace(vendor)); v {
	case VendorOpenAI:
		return NewOpenAIAgent(modelID), nil
	case VendorAnthropic:
		return NewAnthropicAgent(modelID), nil
	case VendorGemini, VendorVertex:
		return NewGeminiAgent(v, modelID), nil
	case VendorMistral:
		return NewMistralAgent(modelID), nil
	case VendorBedrock:
		return NewBedrockAgent(modelID), nil
	case VendorGroq, VendorFireworks, VendorTogether:
		return NewLangChainAgent(v, modelID)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAgent, vendor)
	}
}
