// In file: internal/tools/mcp.go
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient exposes the tools of a Model Context Protocol server as gateway
// tools.
type MCPClient struct {
	name    string
	client  *mcp.Client
	session *mcp.ClientSession
}

// ConnectMCP spawns an MCP server process over stdio and connects to it.
func ConnectMCP(ctx context.Context, name, command string, args ...string) (*MCPClient, error) {
	transport := &mcp.CommandTransport{Command: exec.Command(command, args...)}
	return connectMCP(ctx, name, transport)
}

func connectMCP(ctx context.Context, name string, transport mcp.Transport) (*MCPClient, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "agentgateway", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: connect: %w", name, err)
	}
	return &MCPClient{name: name, client: client, session: session}, nil
}

// ListTools fetches the server's tools as templates ready for registration.
func (c *MCPClient) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp %s: list tools: %w", c.name, err)
	}
	out := make([]Tool, 0, len(result.Tools))
	for _, sdkTool := range result.Tools {
		schema, err := convertMCPSchema(sdkTool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("mcp %s: convert tool %q: %w", c.name, sdkTool.Name, err)
		}
		out = append(out, &MCPTool{
			Base:   NewBase(sdkTool.Name, sdkTool.Description, schema),
			client: c,
		})
	}
	return out, nil
}

func (c *MCPClient) callTool(ctx context.Context, name string, args map[string]any) (string, error) {
	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcp %s: call tool %q: %w", c.name, name, err)
	}
	text := extractText(result)
	if result.IsError {
		return "", fmt.Errorf("mcp %s: tool %q failed: %s", c.name, name, text)
	}
	return text, nil
}

func (c *MCPClient) Close() error {
	return c.session.Close()
}

// MCPTool forwards execution to a remote MCP tool.
type MCPTool struct {
	*Base
	client *MCPClient
}

var _ Tool = (*MCPTool)(nil)

func (mt *MCPTool) Clone() Tool {
	return &MCPTool{Base: mt.CloneBase(), client: mt.client}
}

// Execute returns the decoded JSON when the server answers with JSON text,
// otherwise {"output": text}.
func (mt *MCPTool) Execute(ctx context.Context) (any, error) {
	text, err := mt.client.callTool(ctx, mt.Name(), mt.Parameters())
	if err != nil {
		return nil, err
	}
	var decoded any
	if json.Unmarshal([]byte(text), &decoded) == nil {
		return decoded, nil
	}
	return map[string]any{"output": text}, nil
}

func convertMCPSchema(input any) (JSONSchema, error) {
	if input == nil {
		return ObjectSchema(nil), nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return JSONSchema{}, fmt.Errorf("marshal input schema: %w", err)
	}
	var schema JSONSchema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return JSONSchema{}, fmt.Errorf("decode input schema: %w", err)
	}
	if schema.Type == "" {
		schema.Type = "object"
	}
	return schema, nil
}

func extractText(result *mcp.CallToolResult) string {
	var texts []string
	for _, item := range result.Content {
		if tc, ok := item.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}
