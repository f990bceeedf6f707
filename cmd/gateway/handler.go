// In file: cmd/gateway/handler.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/santoshameti/agentgateway/internal/api"
	"github.com/santoshameti/agentgateway/internal/conversation"
	"github.com/santoshameti/agentgateway/internal/gateway"
	"github.com/santoshameti/agentgateway/internal/llm"
	"github.com/santoshameti/agentgateway/internal/version"
)

// =================================================================================
// Conversation Handler
// =================================================================================
// Exposes one prepared gateway over REST. Messages to the same conversation
// are serialized; different conversations run concurrently.
// =================================================================================

type ConversationHandler struct {
	gw          *gateway.Gateway
	runTimeout  time.Duration
	locks       *conversationLocks
	fingerprint string
}

func NewConversationHandler(gw *gateway.Gateway, runTimeout time.Duration) *ConversationHandler {
	names := make([]string, 0, len(gw.Tools()))
	for _, t := range gw.Tools() {
		names = append(names, t.Name())
	}
	return &ConversationHandler{
		gw:          gw,
		runTimeout:  runTimeout,
		locks:       newConversationLocks(),
		fingerprint: version.Fingerprint(gw.Agent().Name(), gw.Agent().Model(), gw.Instructions(), names),
	}
}

// Register mounts the conversation routes and the health check on r.
func (h *ConversationHandler) Register(r gin.IRouter) {
	r.GET("/healthz", h.HandleHealth)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tools", h.HandleTools)
		v1.GET("/profile", h.HandleProfile)
		v1.POST("/conversations", h.HandleStart)
		v1.POST("/conversations/:id/messages", h.HandleMessage)
		v1.GET("/conversations/:id", h.HandleTranscript)
		v1.DELETE("/conversations/:id", h.HandleClear)
	}
}

func (h *ConversationHandler) HandleStart(c *gin.Context) {
	id, err := h.gw.StartConversation(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	log.Printf("--- New Conversation %s ---", id)
	c.JSON(http.StatusCreated, api.StartConversationResponse{ConversationID: id})
}

func (h *ConversationHandler) HandleMessage(c *gin.Context) {
	startTime := time.Now()
	id := c.Param("id")

	var req api.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	unlock := h.locks.lock(id)
	defer unlock()

	ctx := c.Request.Context()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	log.Printf("--- New Message (Convo: %s, Input: '%.30s...') ---", id, req.Input)
	res, err := h.gw.Run(ctx, req.Input, id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.RunResponse{
		ConversationID: res.ConversationID,
		Answer:         res.Answer,
		Clarification:  res.Clarification,
		Usage:          res.Usage,
		LLMCalls:       res.LLMCalls,
		Iterations:     res.Iterations,
		LatencyMS:      time.Since(startTime).Milliseconds(),
	})
}

func (h *ConversationHandler) HandleTranscript(c *gin.Context) {
	id := c.Param("id")
	transcript, err := h.gw.Store().Format(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.TranscriptResponse{ConversationID: id, Transcript: transcript})
}

func (h *ConversationHandler) HandleClear(c *gin.Context) {
	id := c.Param("id")

	unlock := h.locks.lock(id)
	defer unlock()

	if err := h.gw.Store().Clear(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ConversationHandler) HandleTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tools": h.gw.Definitions()})
}

// profileReader is implemented by observers that can report what they recorded.
type profileReader interface {
	GetProfile(ctx context.Context, modelID string) (*llm.UsageProfile, error)
}

// HandleProfile reports the recorded usage of the agent's model, or of the
// model named by the "model" query parameter.
func (h *ConversationHandler) HandleProfile(c *gin.Context) {
	reader, ok := h.gw.Observer().(profileReader)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "usage profiling is not enabled"})
		return
	}
	model := c.DefaultQuery("model", h.gw.Agent().Model())
	profile, err := reader.GetProfile(c.Request.Context(), model)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *ConversationHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"build":  version.Get(),
		"agent":  h.fingerprint,
	})
}

func (h *ConversationHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("❌ %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var agentErr *gateway.AgentError
	var toolErr *gateway.UnsupportedToolError
	switch {
	case errors.Is(err, conversation.ErrMissingConversationID),
		errors.Is(err, llm.ErrNoActiveConversation):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &agentErr),
		errors.As(err, &toolErr),
		errors.Is(err, gateway.ErrMaxIterations):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// =================================================================================
// Per-conversation locking
// =================================================================================

type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[string]*refLock)}
}

// lock blocks until the caller owns id and returns the release function.
// Entries are dropped once nobody holds or waits for them.
func (l *conversationLocks) lock(id string) func() {
	l.mu.Lock()
	rl, ok := l.locks[id]
	if !ok {
		rl = &refLock{}
		l.locks[id] = rl
	}
	rl.refs++
	l.mu.Unlock()

	rl.mu.Lock()
	return func() {
		rl.mu.Unlock()
		l.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
