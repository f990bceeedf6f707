package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshameti/agentgateway/internal/api"
)

// hashStore keeps Redis hashes in memory.
type hashStore struct {
	hashes  map[string]map[string]string
	readErr error
}

func newHashStore() *hashStore {
	return &hashStore{hashes: make(map[string]map[string]string)}
}

func (s *hashStore) hash(key string) map[string]string {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	return h
}

func (s *hashStore) HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	h := s.hash(key)
	var n int64
	fmt.Sscan(h[field], &n)
	n += incr
	h[field] = fmt.Sprint(n)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (s *hashStore) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	h := s.hash(key)
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(values) / 2))
	return cmd
}

func (s *hashStore) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	cmd := redis.NewMapStringStringCmd(ctx)
	if s.readErr != nil {
		cmd.SetErr(s.readErr)
		return cmd
	}
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	cmd.SetVal(out)
	return cmd
}

func tracedResponse(typ ResponseType, latency time.Duration, in, out int) *Response {
	resp := &Response{Type: typ, Content: "x"}
	resp.RecordCall(latency, api.NewUsage(in, out))
	return resp
}

func TestProfilerObserveTurn(t *testing.T) {
	store := newHashStore()
	p := NewProfiler(store)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	ctx := context.Background()

	p.ObserveTurn(ctx, "gpt-4o", tracedResponse(ResponseAnswer, 100*time.Millisecond, 10, 4))
	p.ObserveTurn(ctx, "gpt-4o", tracedResponse(ResponseError, 200*time.Millisecond, 6, 0))

	profile, err := p.GetProfile(ctx, "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", profile.ModelID)
	assert.Equal(t, int64(2), profile.TotalTurns)
	assert.Equal(t, int64(1), profile.TotalFailures)
	assert.Equal(t, int64(2), profile.TotalLLMCalls)
	assert.Equal(t, int64(16), profile.TotalInputTokens)
	assert.Equal(t, int64(4), profile.TotalOutputTokens)
	assert.Equal(t, int64(110), profile.AvgLatencyMS)
	assert.InDelta(t, 0.5, profile.ErrorRate, 1e-9)
	assert.Equal(t, "degraded", profile.Status)
	assert.True(t, fixed.Equal(profile.LastTurn))
}

func TestProfilerIgnoresNilAndReadFailures(t *testing.T) {
	store := newHashStore()
	p := NewProfiler(store)
	p.ObserveTurn(context.Background(), "m", nil)
	assert.Empty(t, store.hashes)

	store.readErr = errors.New("redis down")
	p.ObserveTurn(context.Background(), "m", tracedResponse(ResponseAnswer, time.Millisecond, 1, 1))
	assert.Empty(t, store.hashes)

	_, err := p.GetProfile(context.Background(), "m")
	assert.Error(t, err)
}

func TestProfilerUnknownModel(t *testing.T) {
	p := NewProfiler(newHashStore())
	profile, err := p.GetProfile(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, profile.TotalTurns)
	assert.Empty(t, profile.Status)
}
