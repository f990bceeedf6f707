// In file: internal/llm/modelconfig.go
package llm

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Recognised model configuration keys.
const (
	ConfigMaxTokens     = "max_tokens"
	ConfigTemperature   = "temperature"
	ConfigTopP          = "top_p"
	ConfigStopSequences = "stop_sequences"
	ConfigModel         = "model"
)

// configAliases maps vendor spellings onto the canonical keys.
var configAliases = map[string]string{
	"stop": ConfigStopSequences,
}

const (
	defaultMaxTokens   = 2000
	defaultTemperature = 0.7
)

// ModelConfig holds the tunables sent with every provider request.
type ModelConfig struct {
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Stop        []string
	// Model overrides the model the agent was created with when non-empty.
	Model string
}

func defaultModelConfig() ModelConfig {
	temp := defaultTemperature
	return ModelConfig{MaxTokens: defaultMaxTokens, Temperature: &temp}
}

func (c ModelConfig) clone() ModelConfig {
	out := c
	if c.Temperature != nil {
		v := *c.Temperature
		out.Temperature = &v
	}
	if c.TopP != nil {
		v := *c.TopP
		out.TopP = &v
	}
	out.Stop = append([]string(nil), c.Stop...)
	return out
}

// canonicalConfigKey resolves aliases. The second result is false when the key
// is not a known tunable at all.
func canonicalConfigKey(key string) (string, bool) {
	k := strings.ToLower(strings.TrimSpace(key))
	if alias, ok := configAliases[k]; ok {
		k = alias
	}
	switch k {
	case ConfigMaxTokens, ConfigTemperature, ConfigTopP, ConfigStopSequences, ConfigModel:
		return k, true
	}
	return k, false
}

// applyModelConfig validates every option against allowed and returns the
// updated configuration. Nothing is applied unless every key is valid.
func applyModelConfig(current ModelConfig, allowed []string, opts map[string]any) (ModelConfig, error) {
	whitelist := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		whitelist[k] = true
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := current.clone()
	for _, key := range keys {
		canonical, known := canonicalConfigKey(key)
		if !known || !whitelist[canonical] {
			return current, fmt.Errorf("%w: %q (allowed: %s)", ErrInvalidConfigKey, key, strings.Join(allowed, ", "))
		}
		if err := setConfigValue(&next, canonical, opts[key]); err != nil {
			return current, err
		}
	}
	return next, nil
}

func setConfigValue(cfg *ModelConfig, key string, value any) error {
	switch key {
	case ConfigMaxTokens:
		n, ok := asInt(value)
		if !ok || n <= 0 {
			return fmt.Errorf("%w: max_tokens must be a positive integer, got %v", ErrInvalidConfigValue, value)
		}
		cfg.MaxTokens = n
	case ConfigTemperature:
		f, ok := asFloat(value)
		if !ok || f < 0 || f > 2 {
			return fmt.Errorf("%w: temperature must be a number between 0 and 2, got %v", ErrInvalidConfigValue, value)
		}
		cfg.Temperature = &f
	case ConfigTopP:
		f, ok := asFloat(value)
		if !ok || f < 0 || f > 1 {
			return fmt.Errorf("%w: top_p must be a number between 0 and 1, got %v", ErrInvalidConfigValue, value)
		}
		cfg.TopP = &f
	case ConfigStopSequences:
		stop, ok := asStrings(value)
		if !ok {
			return fmt.Errorf("%w: stop sequences must be a string or a list of strings, got %T", ErrInvalidConfigValue, value)
		}
		cfg.Stop = stop
	case ConfigModel:
		s, ok := value.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: model must be a non-empty string", ErrInvalidConfigValue)
		}
		cfg.Model = s
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n == math.Trunc(n) {
			return int(n), true
		}
	}
	return 0, false
}

func asStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case string:
		return []string{s}, true
	case []string:
		return append([]string(nil), s...), true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}
