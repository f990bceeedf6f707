// In file: internal/llm/mistral_client.go
package llm

const mistralAPIURL = "https://api.mistral.ai/v1/chat/completions"

// MistralAgent talks to the Mistral chat completions API, which shares the
// OpenAI wire format.
type MistralAgent struct {
	*core
	drv *openAIDriver
}

var _ Agent = (*MistralAgent)(nil)

func NewMistralAgent(modelID string) *MistralAgent {
	drv := &openAIDriver{
		transport: newHTTPTransport(VendorMistral),
		endpoint:  mistralAPIURL,
		keys:      []string{ConfigMaxTokens, ConfigTemperature, ConfigTopP, ConfigStopSequences},
	}
	return &MistralAgent{core: newCore(VendorMistral, modelID, drv), drv: drv}
}

// WithEndpoint points the adapter at another chat completions URL.
func (a *MistralAgent) WithEndpoint(endpoint string) *MistralAgent {
	a.drv.endpoint = endpoint
	return a
}
