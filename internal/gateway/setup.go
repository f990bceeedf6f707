// In file: internal/gateway/setup.go
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/santoshameti/agentgateway/internal/config"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/llm"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// Setup is a gateway assembled from configuration together with the
// connections it owns.
type Setup struct {
	Gateway *Gateway
	closers []func() error
}

// Close releases every connection opened by FromConfig, newest first.
func (s *Setup) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// FromConfig wires the conversation store, the provider adapter, the built-in
// and MCP tools and the optional usage profiler described by cfg, then
// prepares the gateway. prompter, when non-nil, lets ask_user reach the user
// inline. Extra options are applied after the configured ones.
func FromConfig(ctx context.Context, cfg *config.Config, prompter tools.Prompter, opts ...Option) (*Setup, error) {
	s := &Setup{}
	fail := func(err error) (*Setup, error) {
		if cerr := s.Close(); cerr != nil {
			log.Printf("Warning: cleanup after setup failure: %v", cerr)
		}
		return nil, err
	}

	store, closeStore, err := conversation.Open(ctx, cfg.Memory())
	if err != nil {
		return fail(fmt.Errorf("failed to open conversation store: %w", err))
	}
	s.closers = append(s.closers, closeStore)

	agent, err := newAgent(cfg, store)
	if err != nil {
		return fail(err)
	}
	if c, ok := agent.(io.Closer); ok {
		s.closers = append(s.closers, c.Close)
	}

	toolset, err := s.buildTools(ctx, cfg, prompter)
	if err != nil {
		return fail(err)
	}

	options := []Option{WithMaxIterations(cfg.Model().MaxIterations)}
	if url := cfg.ProfilerRedisURL(); url != "" {
		rdb, err := conversation.DialRedis(ctx, url)
		if err != nil {
			return fail(fmt.Errorf("failed to connect usage profiler: %w", err))
		}
		s.closers = append(s.closers, rdb.Close)
		options = append(options, WithObserver(llm.NewProfiler(rdb)))
		log.Println("✅ Usage profiler enabled.")
	}

	s.Gateway = New(agent, append(options, opts...)...)
	if err := s.Gateway.Prepare(cfg.Instructions(), toolset); err != nil {
		return fail(err)
	}
	return s, nil
}

func newAgent(cfg *config.Config, store conversation.Store) (llm.Agent, error) {
	model := cfg.Model()
	agent, err := llm.NewAgent(model.Vendor, model.Model)
	if err != nil {
		return nil, err
	}
	if model.BaseURL != "" {
		if err := applyBaseURL(agent, model.BaseURL); err != nil {
			return nil, err
		}
	}
	if err := agent.SetAuth(cfg.Credentials(model.Vendor)); err != nil {
		return nil, err
	}
	if err := agent.SetModelConfig(model.ModelOptions()); err != nil {
		return nil, fmt.Errorf("model profile for %s: %w", model.Vendor, err)
	}
	agent.SetConversationStore(store)
	log.Printf("✅ %s agent ready for model %s", agent.Name(), agent.Model())
	return agent, nil
}

// applyBaseURL redirects the adapter to another endpoint. It must run before
// SetAuth, which builds the SDK clients.
func applyBaseURL(agent llm.Agent, url string) error {
	switch a := agent.(type) {
	case *llm.OpenAIAgent:
		a.WithEndpoint(url)
	case *llm.AnthropicAgent:
		a.WithEndpoint(url)
	case *llm.MistralAgent:
		a.WithEndpoint(url)
	case *llm.LangChainAgent:
		a.WithBaseURL(url)
	case *llm.BedrockAgent:
		a.WithEndpoint(url)
	default:
		return fmt.Errorf("model profile for %s: base_url is not supported", agent.Name())
	}
	return nil
}

func (s *Setup) buildTools(ctx context.Context, cfg *config.Config, prompter tools.Prompter) ([]tools.Tool, error) {
	toolset := []tools.Tool{
		tools.NewCalculatorTool(),
		tools.NewWeatherTool(""),
		tools.NewAskUserTool(prompter),
	}
	if key := cfg.NewsAPIKey(); key != "" {
		toolset = append(toolset, tools.NewNewsTool(key))
	}

	for _, server := range cfg.MCPServers() {
		client, err := tools.ConnectMCP(ctx, server.Name, server.Command, server.Args...)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
		s.closers = append(s.closers, client.Close)
		remote, err := client.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("mcp server %s: %w", server.Name, err)
		}
		log.Printf("✅ MCP server %s exposes %d tools", server.Name, len(remote))
		toolset = append(toolset, remote...)
	}
	return toolset, nil
}
