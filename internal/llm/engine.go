// In file: internal/llm/engine.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/tools"
)

// finishReason is the vendor-neutral terminal condition of a provider reply.
type finishReason int

const (
	finishAnswer finishReason = iota
	finishToolUse
	finishLength
	finishFiltered
	finishUnknown
)

// toolCall is one tool invocation decoded from a provider reply. arguments is
// the JSON text exactly as the vendor sent it.
type toolCall struct {
	id        string
	name      string
	arguments string
}

// completion is the tagged decoding of one provider reply.
type completion struct {
	text      string
	calls     []toolCall
	finish    finishReason
	rawFinish string
	usage     api.Usage
}

// turnRequest is everything a driver needs to build one provider request.
type turnRequest struct {
	model        string
	instructions string
	history      []conversation.Message
	tools        []tools.Tool
	config       ModelConfig
}

// driver is the vendor-specific half of an adapter: wire encoding, the call
// itself and wire decoding. The turn engine in core does everything else.
type driver interface {
	requiredCredentials() []string
	connect(credentials map[string]string) error
	// configKeys is the whitelist of canonical model configuration keys.
	configKeys() []string
	complete(ctx context.Context, req turnRequest) (*completion, error)
	// toolResultMessages groups tool_result blocks into the messages the
	// vendor expects to see in history.
	toolResultMessages(results []conversation.Block) []conversation.Message
	renderToolOutput(result any) string
}

// =================================================================================
// Turn engine
// =================================================================================

// core implements Agent over a driver.
type core struct {
	vendor string
	model  string
	drv    driver
	logger *log.Logger

	mu            sync.Mutex
	authenticated bool
	config        ModelConfig
	instructions  string
	store         conversation.Store
	tools         map[string]tools.Tool
	toolOrder     []string
	currentConv   string
}

func newCore(vendor, model string, drv driver) *core {
	return &core{
		vendor: vendor,
		model:  model,
		drv:    drv,
		logger: log.Default(),
		config: defaultModelConfig(),
		store:  conversation.NewMemoryStore(),
		tools:  make(map[string]tools.Tool),
	}
}

func (c *core) Name() string  { return c.vendor }
func (c *core) Model() string { return c.model }

// SetLogger replaces the logger used for turn diagnostics.
func (c *core) SetLogger(l *log.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *core) SetAuth(credentials map[string]string) error {
	for _, field := range c.drv.requiredCredentials() {
		if strings.TrimSpace(credentials[field]) == "" {
			return fmt.Errorf("%w: %s requires %q", ErrMissingCredential, c.vendor, field)
		}
	}
	if err := c.drv.connect(credentials); err != nil {
		return fmt.Errorf("failed to set up %s client: %w", c.vendor, err)
	}
	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()
	return nil
}

func (c *core) SetModelConfig(options map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := applyModelConfig(c.config, c.drv.configKeys(), options)
	if err != nil {
		return err
	}
	c.config = next
	return nil
}

// ModelConfig returns a copy of the current configuration.
func (c *core) ModelConfig() ModelConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config.clone()
}

func (c *core) SetInstructions(instructions string) {
	c.mu.Lock()
	c.instructions = instructions
	c.mu.Unlock()
}

func (c *core) SetConversationStore(store conversation.Store) {
	if store == nil {
		return
	}
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
}

func (c *core) Store() conversation.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

func (c *core) AddTool(tool tools.Tool) error {
	if tool == nil || tool.Name() == "" {
		return errors.New("tool must have a name")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tools[tool.Name()]; !exists {
		c.toolOrder = append(c.toolOrder, tool.Name())
	}
	c.tools[tool.Name()] = tool
	return nil
}

func (c *core) StartConversation(ctx context.Context) (string, error) {
	store := c.Store()
	id, err := store.Start(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start conversation: %w", err)
	}
	c.mu.Lock()
	c.currentConv = id
	c.mu.Unlock()
	return id, nil
}

func (c *core) FormatToolOutput(tool tools.Tool, result any) conversation.Block {
	return conversation.ToolResultBlock(tool.InstanceID(), tool.Name(), c.drv.renderToolOutput(result))
}

func (c *core) Run(ctx context.Context, input Input, conversationID string) (*Response, error) {
	c.mu.Lock()
	id, err := c.resolveConversationLocked(conversationID)
	authenticated := c.authenticated
	store := c.store
	req := turnRequest{
		model:        c.model,
		instructions: c.instructions,
		config:       c.config.clone(),
	}
	lookup := make(map[string]tools.Tool, len(c.tools))
	for _, name := range c.toolOrder {
		req.tools = append(req.tools, c.tools[name])
		lookup[name] = c.tools[name]
	}
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !authenticated {
		return nil, ErrNotAuthenticated
	}
	if req.config.Model != "" {
		req.model = req.config.Model
	}

	history, err := store.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
	}
	turn := c.turnMessages(history, input)
	if err := store.Extend(ctx, id, turn); err != nil {
		return nil, fmt.Errorf("failed to record turn in conversation %s: %w", id, err)
	}
	req.history = append(history, turn...)

	start := time.Now()
	comp, callErr := c.drv.complete(ctx, req)
	latency := time.Since(start)

	var trace Trace
	if callErr != nil {
		trace.RecordCall(latency, api.Usage{})
		c.logger.Printf("❌ %s call failed after %v: %v", c.vendor, latency, callErr)
		resp := NewError(id, callErr.Error(), callErr)
		resp.Trace = trace
		return resp, nil
	}
	trace.RecordCall(latency, comp.usage)

	resp, assistant := c.classify(id, comp, lookup)
	if assistant != nil {
		if err := store.Append(ctx, id, *assistant); err != nil {
			return nil, fmt.Errorf("failed to record assistant turn in conversation %s: %w", id, err)
		}
	}
	resp.Trace = trace
	return resp, nil
}

func (c *core) resolveConversationLocked(conversationID string) (string, error) {
	if conversationID == "" {
		if c.currentConv == "" {
			return "", ErrNoActiveConversation
		}
		return c.currentConv, nil
	}
	c.currentConv = conversationID
	return conversationID, nil
}

// turnMessages builds the messages recording input. Tool calls left without
// results by the previous turn (a clarification, or a batch that was never
// executed) are closed first so the vendor sees a well-formed history; a
// pending ask_user call receives the user's text as its answer.
func (c *core) turnMessages(history []conversation.Message, input Input) []conversation.Message {
	if input.IsToolResponse() {
		return c.drv.toolResultMessages(input.ToolOutputs)
	}

	pending := danglingToolUses(history)
	if len(pending) == 0 {
		return []conversation.Message{conversation.NewText(conversation.RoleUser, input.Text)}
	}

	results := make([]conversation.Block, 0, len(pending))
	answered := false
	for _, call := range pending {
		if call.Name == tools.AskUserToolName && !answered {
			results = append(results, conversation.ToolResultBlock(call.ID, call.Name,
				c.drv.renderToolOutput(map[string]any{"answer": input.Text})))
			answered = true
			continue
		}
		skipped := conversation.ToolResultBlock(call.ID, call.Name,
			c.drv.renderToolOutput(map[string]any{"error": "tool call was not executed"}))
		skipped.IsError = true
		results = append(results, skipped)
	}

	msgs := c.drv.toolResultMessages(results)
	if !answered {
		msgs = append(msgs, conversation.NewText(conversation.RoleUser, input.Text))
	}
	return msgs
}

// danglingToolUses returns the tool_use blocks of the last assistant message
// that have no matching tool_result after it.
func danglingToolUses(history []conversation.Message) []conversation.Block {
	last := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == conversation.RoleAssistant {
			last = i
			break
		}
	}
	if last < 0 {
		return nil
	}
	uses := history[last].ToolUses()
	if len(uses) == 0 {
		return nil
	}
	answered := make(map[string]bool)
	for _, msg := range history[last+1:] {
		for _, res := range msg.ToolResults() {
			answered[res.ToolUseID] = true
		}
	}
	var pending []conversation.Block
	for _, use := range uses {
		if !answered[use.ID] {
			pending = append(pending, use)
		}
	}
	return pending
}

// classify turns a completion into a Response and the assistant message to
// record, which is nil when the reply carried neither text nor tool calls.
func (c *core) classify(id string, comp *completion, lookup map[string]tools.Tool) (*Response, *conversation.Message) {
	assistant := assistantMessage(comp)

	switch comp.finish {
	case finishLength:
		return NewError(id, "Response exceeded maximum token limit.", nil), assistant
	case finishFiltered:
		return NewError(id, "Response was filtered due to content safety.", nil), assistant
	case finishUnknown:
		return NewError(id, fmt.Sprintf("Unexpected finish reason: %s", comp.rawFinish), nil), assistant
	}

	if len(comp.calls) > 0 {
		c.logger.Printf("🛠️ %s requested %d tool call(s)", c.vendor, len(comp.calls))
		return c.resolveCalls(id, comp, lookup), assistant
	}
	if strings.TrimSpace(comp.text) != "" {
		return NewAnswer(id, comp.text), assistant
	}
	return NewError(id, fmt.Sprintf("Model returned neither text nor tool calls (finish reason: %q).", comp.rawFinish), nil), assistant
}

func (c *core) resolveCalls(id string, comp *completion, lookup map[string]tools.Tool) *Response {
	for _, call := range comp.calls {
		if call.name != tools.AskUserToolName {
			continue
		}
		question := askUserQuestion(call.arguments)
		if question == "" {
			question = strings.TrimSpace(comp.text)
		}
		if question == "" {
			question = "Could you provide more details?"
		}
		return NewClarification(id, question)
	}

	instances := make([]tools.Tool, 0, len(comp.calls))
	for _, call := range comp.calls {
		template, ok := lookup[call.name]
		if !ok {
			// Passed through so the orchestrator can reject it.
			inst := newUnresolvedTool(call.name)
			inst.SetInstanceID(call.id)
			instances = append(instances, inst)
			continue
		}
		inst := template.Clone()
		if err := tools.BindArguments(inst, tools.DecodeArguments(call.arguments)); err != nil {
			wrapped := fmt.Errorf("%w: %w", ErrToolArgumentValidation, err)
			return NewError(id, wrapped.Error(), wrapped)
		}
		inst.SetInstanceID(call.id)
		instances = append(instances, inst)
	}
	return NewToolCall(id, instances)
}

func askUserQuestion(arguments string) string {
	args, ok := tools.DecodeArguments(arguments).(map[string]any)
	if !ok {
		return ""
	}
	q, _ := args["question"].(string)
	return strings.TrimSpace(q)
}

func assistantMessage(comp *completion) *conversation.Message {
	if len(comp.calls) == 0 {
		if comp.text == "" {
			return nil
		}
		msg := conversation.NewText(conversation.RoleAssistant, comp.text)
		return &msg
	}
	blocks := make([]conversation.Block, 0, len(comp.calls)+1)
	if comp.text != "" {
		blocks = append(blocks, conversation.TextBlock(comp.text))
	}
	for _, call := range comp.calls {
		blocks = append(blocks, conversation.ToolUseBlock(call.id, call.name, argumentsJSON(call.arguments)))
	}
	msg := conversation.NewBlocks(conversation.RoleAssistant, blocks...)
	return &msg
}

// argumentsJSON stores vendor argument text as valid JSON. Text that is not
// JSON is kept as a JSON string.
func argumentsJSON(raw string) json.RawMessage {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

// argumentsText reverses argumentsJSON for vendors that take argument text.
func argumentsText(input json.RawMessage) string {
	if len(input) == 0 {
		return "{}"
	}
	if input[0] == '"' {
		var s string
		if json.Unmarshal(input, &s) == nil {
			return s
		}
	}
	return string(input)
}

// argumentsObject returns the stored arguments as an object, or an empty one.
func argumentsObject(input json.RawMessage) map[string]any {
	var args map[string]any
	if len(input) == 0 || json.Unmarshal(input, &args) != nil || args == nil {
		return map[string]any{}
	}
	return args
}

func renderJSON(result any) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(raw)
}

// mergeConsecutive folds adjacent messages of the same wire role into one
// structured message, for vendors that require alternating turns.
func mergeConsecutive(msgs []conversation.Message, wireRole func(conversation.Role) string) []conversation.Message {
	var out []conversation.Message
	var roles []string
	for _, m := range msgs {
		role := wireRole(m.Role)
		blocks := m.Blocks
		if m.IsPlain() {
			blocks = []conversation.Block{conversation.TextBlock(m.Text)}
		}
		if n := len(out); n > 0 && roles[n-1] == role {
			out[n-1].Blocks = append(out[n-1].Blocks, blocks...)
			continue
		}
		out = append(out, conversation.Message{Role: m.Role, Blocks: append([]conversation.Block(nil), blocks...)})
		roles = append(roles, role)
	}
	return out
}

// unresolvedTool stands in for a tool name the agent does not know.
type unresolvedTool struct {
	*tools.Base
}

func newUnresolvedTool(name string) *unresolvedTool {
	return &unresolvedTool{Base: tools.NewBase(name, "unregistered tool", tools.ObjectSchema(nil))}
}

func (u *unresolvedTool) Clone() tools.Tool {
	return &unresolvedTool{Base: u.CloneBase()}
}

func (u *unresolvedTool) Execute(_ context.Context) (any, error) {
	return nil, fmt.Errorf("tool %q is not registered", u.Name())
}
