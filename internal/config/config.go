// In file: internal/config/config.go

// Package config loads the gateway configuration from a .env file, the process
// environment and a YAML profile file. The resulting Config is read-only: it is
// built once at startup and handed to each component by the composition root.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvMemoryProfile selects the entry of memory_profiles to use.
	EnvMemoryProfile = "AGENT_MEMORY_CONFIG_PROFILE"
	// EnvModelProfile selects the entry of model_profiles to use.
	EnvModelProfile = "AGENT_MODEL_CONFIG_PROFILE"

	defaultProfile       = "default"
	defaultPort          = "8080"
	defaultMaxIterations = 10
)

// MemoryProfile selects and configures the conversation store backend.
type MemoryProfile struct {
	Backend  string `yaml:"conversation_manager"`
	RedisURL string `yaml:"redis_url"`
	MySQLDSN string `yaml:"mysql_dsn"`
	Table    string `yaml:"table"`
}

// ModelProfile selects the provider adapter and its generation settings.
// Pointer fields distinguish "unset" from an explicit zero.
type ModelProfile struct {
	Vendor        string   `yaml:"vendor"`
	Model         string   `yaml:"model"`
	BaseURL       string   `yaml:"base_url"`
	MaxTokens     *int     `yaml:"max_tokens"`
	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
	Stop          []string `yaml:"stop"`
	MaxIterations int      `yaml:"max_iterations"`
}

// ModelOptions returns the explicitly configured tunables keyed by their
// model-config names, ready for an adapter's SetModelConfig.
func (p ModelProfile) ModelOptions() map[string]any {
	opts := make(map[string]any)
	if p.MaxTokens != nil {
		opts["max_tokens"] = *p.MaxTokens
	}
	if p.Temperature != nil {
		opts["temperature"] = *p.Temperature
	}
	if p.TopP != nil {
		opts["top_p"] = *p.TopP
	}
	if len(p.Stop) > 0 {
		opts["stop_sequences"] = append([]string(nil), p.Stop...)
	}
	return opts
}

// MCPServer describes an MCP server process whose tools are exposed to the agent.
type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type fileConfig struct {
	Instructions   string                   `yaml:"instructions"`
	MemoryProfiles map[string]MemoryProfile `yaml:"memory_profiles"`
	ModelProfiles  map[string]ModelProfile  `yaml:"model_profiles"`
	MCPServers     []MCPServer              `yaml:"mcp_servers"`
}

// Config is the resolved configuration of one gateway process.
type Config struct {
	instructions    string
	memory          MemoryProfile
	model           ModelProfile
	mcpServers      []MCPServer
	credentials     map[string]map[string]string
	newsAPIKey      string
	port            string
	profileRedisURL string
}

// vendorKeyEnv maps each vendor to the environment variable holding its API key.
var vendorKeyEnv = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"vertex":    "GEMINI_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
	"groq":      "GROQ_API_KEY",
	"fireworks": "FIREWORKS_API_KEY",
	"together":  "TOGETHER_API_KEY",
}

// Load reads .env (outside release mode), then the YAML file at path. An empty
// path yields a configuration built from defaults and the environment only.
func Load(path string) (*Config, error) {
	// In containers (GIN_MODE=release) configuration arrives as plain env vars.
	if os.Getenv("GIN_MODE") != "release" {
		if err := godotenv.Load(); err != nil {
			log.Println("WARNING: No .env file found for local development.")
		}
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return Parse(data)
}

// Parse builds a Config from YAML bytes and the current environment.
// ${VAR} references are expanded in connection settings only: redis_url,
// mysql_dsn, base_url and the MCP server command lines. Instructions and
// every other field are taken literally.
func Parse(data []byte) (*Config, error) {
	var fc fileConfig
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config yaml: %w", err)
		}
	}
	fc.expandEnv()

	memory, err := selectProfile(fc.MemoryProfiles, EnvMemoryProfile, MemoryProfile{Backend: "in_memory"})
	if err != nil {
		return nil, fmt.Errorf("memory profile: %w", err)
	}
	model, err := selectProfile(fc.ModelProfiles, EnvModelProfile, ModelProfile{Vendor: "openai", Model: "gpt-4o"})
	if err != nil {
		return nil, fmt.Errorf("model profile: %w", err)
	}
	if model.MaxIterations == 0 {
		model.MaxIterations = defaultMaxIterations
	}

	cfg := &Config{
		instructions:    strings.TrimSpace(fc.Instructions),
		memory:          memory,
		model:           model,
		mcpServers:      fc.MCPServers,
		credentials:     make(map[string]map[string]string),
		newsAPIKey:      os.Getenv("NEWS_API_KEY"),
		port:            getEnv("PORT", defaultPort),
		profileRedisURL: os.Getenv("PROFILE_REDIS_URL"),
	}
	for vendor, env := range vendorKeyEnv {
		if key := os.Getenv(env); key != "" {
			cfg.credentials[vendor] = map[string]string{"api_key": key}
		}
	}
	if creds := awsCredentials(); len(creds) > 0 {
		cfg.credentials["bedrock"] = creds
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc *fileConfig) expandEnv() {
	for name, p := range fc.MemoryProfiles {
		p.RedisURL = os.ExpandEnv(p.RedisURL)
		p.MySQLDSN = os.ExpandEnv(p.MySQLDSN)
		fc.MemoryProfiles[name] = p
	}
	for name, p := range fc.ModelProfiles {
		p.BaseURL = os.ExpandEnv(p.BaseURL)
		fc.ModelProfiles[name] = p
	}
	for i := range fc.MCPServers {
		s := &fc.MCPServers[i]
		s.Command = os.ExpandEnv(s.Command)
		for j, arg := range s.Args {
			s.Args[j] = os.ExpandEnv(arg)
		}
	}
}

func selectProfile[T any](profiles map[string]T, env string, fallback T) (T, error) {
	name := getEnv(env, defaultProfile)
	if len(profiles) == 0 {
		if name != defaultProfile {
			return fallback, fmt.Errorf("profile %q requested via %s but no profiles are defined", name, env)
		}
		return fallback, nil
	}
	p, ok := profiles[name]
	if !ok {
		return fallback, fmt.Errorf("profile %q not found", name)
	}
	return p, nil
}

func (c *Config) validate() error {
	if c.model.Vendor == "" {
		return errors.New("model profile: vendor is required")
	}
	if c.model.Model == "" {
		return errors.New("model profile: model is required")
	}
	if c.model.MaxIterations < 0 {
		return fmt.Errorf("model profile: max_iterations must be positive, got %d", c.model.MaxIterations)
	}
	for i, s := range c.mcpServers {
		if s.Command == "" {
			return fmt.Errorf("mcp_servers[%d]: command is required", i)
		}
	}
	return nil
}

// awsCredentials reads the standard AWS variables. AWS_DEFAULT_REGION is the
// fallback for AWS_REGION.
func awsCredentials() map[string]string {
	fields := map[string]string{
		"access_key_id":     os.Getenv("AWS_ACCESS_KEY_ID"),
		"secret_access_key": os.Getenv("AWS_SECRET_ACCESS_KEY"),
		"session_token":     os.Getenv("AWS_SESSION_TOKEN"),
		"region":            getEnv("AWS_REGION", os.Getenv("AWS_DEFAULT_REGION")),
	}
	creds := make(map[string]string)
	for k, v := range fields {
		if v != "" {
			creds[k] = v
		}
	}
	return creds
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// =================================================================================
// Accessors
// =================================================================================

// Instructions is the system prompt given to the agent.
func (c *Config) Instructions() string { return c.instructions }

// Memory returns the selected conversation store profile.
func (c *Config) Memory() MemoryProfile { return c.memory }

// Model returns a copy of the selected model profile.
func (c *Config) Model() ModelProfile {
	m := c.model
	m.Stop = append([]string(nil), c.model.Stop...)
	return m
}

// MCPServers returns a copy of the configured MCP servers.
func (c *Config) MCPServers() []MCPServer {
	out := make([]MCPServer, len(c.mcpServers))
	for i, s := range c.mcpServers {
		s.Args = append([]string(nil), s.Args...)
		out[i] = s
	}
	return out
}

// Credentials returns a copy of the credential fields found for vendor, or
// an empty map when none were configured.
func (c *Config) Credentials(vendor string) map[string]string {
	out := make(map[string]string)
	for k, v := range c.credentials[strings.ToLower(vendor)] {
		out[k] = v
	}
	return out
}

// NewsAPIKey is the key for the news headlines tool, empty when disabled.
func (c *Config) NewsAPIKey() string { return c.newsAPIKey }

// Port is the HTTP listen port.
func (c *Config) Port() string { return c.port }

// ProfilerRedisURL is where per-model usage profiles are written, empty when disabled.
func (c *Config) ProfilerRedisURL() string { return c.profileRedisURL }
