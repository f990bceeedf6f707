// In file: internal/llm/profiler.go
package llm

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageProfile aggregates the calls made to one model.
type UsageProfile struct {
	ModelID           string    `json:"model_id"`
	AvgLatencyMS      int64     `json:"avg_latency_ms"`
	Status            string    `json:"status"`
	TotalTurns        int64     `json:"total_turns"`
	TotalFailures     int64     `json:"total_failures"`
	TotalLLMCalls     int64     `json:"total_llm_calls"`
	TotalInputTokens  int64     `json:"total_input_tokens"`
	TotalOutputTokens int64     `json:"total_output_tokens"`
	ErrorRate         float64   `json:"error_rate"`
	LastTurn          time.Time `json:"last_turn"`
}

// profileStore is the subset of *redis.Client the profiler uses.
type profileStore interface {
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Profiler records per-model usage in Redis hashes keyed "profile:<model>".
type Profiler struct {
	rdb profileStore
	now func() time.Time
}

func NewProfiler(rdb profileStore) *Profiler {
	return &Profiler{rdb: rdb, now: time.Now}
}

func (p *Profiler) getProfileKey(modelID string) string {
	return fmt.Sprintf("profile:%s", modelID)
}

// ObserveTurn records one Response returned by the model. Failures to write
// are logged, never returned: profiling must not break a conversation.
func (p *Profiler) ObserveTurn(ctx context.Context, modelID string, resp *Response) {
	if resp == nil {
		return
	}
	key := p.getProfileKey(modelID)
	const alpha = 0.1

	current, err := p.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		log.Printf("Error reading profile for %s: %v", modelID, err)
		return
	}

	var turnLatency time.Duration
	for _, c := range resp.Calls {
		turnLatency += c.Latency
	}
	avg, _ := strconv.ParseInt(current["avg_latency_ms"], 10, 64)
	if avg == 0 {
		avg = turnLatency.Milliseconds()
	} else {
		avg = int64(alpha*float64(turnLatency.Milliseconds()) + (1.0-alpha)*float64(avg))
	}

	turns := p.incr(ctx, key, "total_turns", 1)
	failures, _ := strconv.ParseInt(current["total_failures"], 10, 64)
	status := "online"
	if resp.Type == ResponseError {
		failures = p.incr(ctx, key, "total_failures", 1)
		status = "degraded"
	}
	p.incr(ctx, key, "total_llm_calls", int64(resp.LLMCalls))
	p.incr(ctx, key, "total_input_tokens", int64(resp.InputTokens))
	p.incr(ctx, key, "total_output_tokens", int64(resp.OutputTokens))

	errorRate := 0.0
	if turns > 0 {
		errorRate = float64(failures) / float64(turns)
	}
	if err := p.rdb.HSet(ctx, key,
		"model_id", modelID,
		"avg_latency_ms", avg,
		"status", status,
		"error_rate", errorRate,
		"last_turn", p.now().Format(time.RFC3339Nano),
	).Err(); err != nil {
		log.Printf("Error updating profile for %s: %v", modelID, err)
	}
}

func (p *Profiler) incr(ctx context.Context, key, field string, by int64) int64 {
	n, err := p.rdb.HIncrBy(ctx, key, field, by).Result()
	if err != nil {
		log.Printf("Error incrementing %s on %s: %v", field, key, err)
	}
	return n
}

// GetProfile returns the aggregated usage of modelID; an unknown model yields
// an empty profile.
func (p *Profiler) GetProfile(ctx context.Context, modelID string) (*UsageProfile, error) {
	data, err := p.rdb.HGetAll(ctx, p.getProfileKey(modelID)).Result()
	if err != nil {
		return nil, err
	}
	profile := &UsageProfile{ModelID: modelID, Status: data["status"]}
	profile.AvgLatencyMS, _ = strconv.ParseInt(data["avg_latency_ms"], 10, 64)
	profile.TotalTurns, _ = strconv.ParseInt(data["total_turns"], 10, 64)
	profile.TotalFailures, _ = strconv.ParseInt(data["total_failures"], 10, 64)
	profile.TotalLLMCalls, _ = strconv.ParseInt(data["total_llm_calls"], 10, 64)
	profile.TotalInputTokens, _ = strconv.ParseInt(data["total_input_tokens"], 10, 64)
	profile.TotalOutputTokens, _ = strconv.ParseInt(data["total_output_tokens"], 10, 64)
	profile.ErrorRate, _ = strconv.ParseFloat(data["error_rate"], 64)
	profile.LastTurn, _ = time.Parse(time.RFC3339Nano, data["last_turn"])
	return profile, nil
}
