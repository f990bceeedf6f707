package conversation_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santoshameti/agentgateway/internal/conversation"
)

// backends returns a constructor for every Store implementation so the same
// behavioural checks run against each of them.
func backends() map[string]func(t *testing.T) conversation.Store {
	return map[string]func(t *testing.T) conversation.Store{
		"memory": func(t *testing.T) conversation.Store {
			return conversation.NewMemoryStore()
		},
		"redis": func(t *testing.T) conversation.Store {
			return conversation.NewRedisStore(newFakeRedis())
		},
		"mysql": func(t *testing.T) conversation.Store {
			db := newTableDB(t)
			store, err := conversation.NewMySQLStore(db, "")
			require.NoError(t, err)
			require.NoError(t, store.EnsureSchema(context.Background()))
			return store
		},
	}
}

func TestStoreAppendPreservesOrder(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			id, err := store.Start(ctx)
			require.NoError(t, err)
			require.NotEmpty(t, id)

			history, err := store.Read(ctx, id)
			require.NoError(t, err)
			assert.Empty(t, history)

			first := conversation.NewText(conversation.RoleUser, "What is 2+2?")
			second := conversation.NewBlocks(conversation.RoleAssistant,
				conversation.TextBlock("Let me calculate."),
				conversation.ToolUseBlock("call_1", "calculate", json.RawMessage(`{"expression":"2+2"}`)),
			)
			require.NoError(t, store.Append(ctx, id, first))
			require.NoError(t, store.Append(ctx, id, second))

			results := []conversation.Message{
				conversation.NewBlocks(conversation.RoleTool, conversation.ToolResultBlock("call_1", "calculate", `{"result":4}`)),
				conversation.NewText(conversation.RoleAssistant, "4"),
			}
			require.NoError(t, store.Extend(ctx, id, results))

			history, err = store.Read(ctx, id)
			require.NoError(t, err)
			require.Len(t, history, 4)
			assert.Equal(t, first, history[0])
			assert.Equal(t, second, history[1])
			assert.Equal(t, results[0], history[2])
			assert.Equal(t, results[1], history[3])
		})
	}
}

func TestStoreRejectsMissingID(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			msg := conversation.NewText(conversation.RoleUser, "hi")

			assert.ErrorIs(t, store.Append(ctx, "", msg), conversation.ErrMissingConversationID)
			assert.ErrorIs(t, store.Extend(ctx, "", []conversation.Message{msg}), conversation.ErrMissingConversationID)
			_, err := store.Read(ctx, "")
			assert.ErrorIs(t, err, conversation.ErrMissingConversationID)
			assert.ErrorIs(t, store.Clear(ctx, ""), conversation.ErrMissingConversationID)
			_, err = store.Format(ctx, "")
			assert.ErrorIs(t, err, conversation.ErrMissingConversationID)
		})
	}
}

func TestStoreClearAndIsolation(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			a, err := store.Start(ctx)
			require.NoError(t, err)
			b, err := store.Start(ctx)
			require.NoError(t, err)
			require.NotEqual(t, a, b)

			require.NoError(t, store.Append(ctx, a, conversation.NewText(conversation.RoleUser, "for a")))
			require.NoError(t, store.Append(ctx, b, conversation.NewText(conversation.RoleUser, "for b")))

			require.NoError(t, store.Clear(ctx, a))

			historyA, err := store.Read(ctx, a)
			require.NoError(t, err)
			assert.Empty(t, historyA)

			historyB, err := store.Read(ctx, b)
			require.NoError(t, err)
			require.Len(t, historyB, 1)
			assert.Equal(t, "for b", historyB[0].Text)
		})
	}
}

func TestStoreFormatIsIdempotent(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			id, err := store.Start(ctx)
			require.NoError(t, err)

			require.NoError(t, store.Extend(ctx, id, []conversation.Message{
				conversation.NewText(conversation.RoleUser, "hello"),
				conversation.NewText(conversation.RoleAssistant, "hi there"),
			}))

			first, err := store.Format(ctx, id)
			require.NoError(t, err)
			second, err := store.Format(ctx, id)
			require.NoError(t, err)

			assert.Equal(t, "User: hello\nAssistant: hi there", first)
			assert.Equal(t, first, second)
		})
	}
}

func TestMemoryStoreReadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := conversation.NewMemoryStore()
	id, err := store.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, id, conversation.NewBlocks(conversation.RoleAssistant, conversation.TextBlock("original"))))

	history, err := store.Read(ctx, id)
	require.NoError(t, err)
	history[0].Blocks[0].Text = "mutated"

	again, err := store.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Blocks[0].Text)
}

func TestMemoryStoreConcurrentConversations(t *testing.T) {
	ctx := context.Background()
	store := conversation.NewMemoryStore()

	const conversations, messages = 8, 25
	ids := make([]string, conversations)
	for i := range ids {
		id, err := store.Start(ctx)
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for n := 0; n < messages; n++ {
				_ = store.Append(ctx, id, conversation.NewText(conversation.RoleUser, fmt.Sprintf("%d-%d", i, n)))
			}
		}(i, id)
	}
	wg.Wait()

	for i, id := range ids {
		history, err := store.Read(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, messages)
		for n, m := range history {
			assert.Equal(t, fmt.Sprintf("%d-%d", i, n), m.Text)
		}
	}
}

func TestRedisStoreUsesConversationKeyWithoutTTL(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	store := conversation.NewRedisStore(rdb)

	id, err := store.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, id, conversation.NewText(conversation.RoleUser, "hi")))

	raw, ok := rdb.data["conversation:"+id]
	require.True(t, ok)
	assert.JSONEq(t, `[{"role":"user","text":"hi"}]`, string(raw))
	assert.Equal(t, time.Duration(0), rdb.ttl["conversation:"+id])
}

func TestRedisStoreSurfacesBackendErrors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failGet = fmt.Errorf("connection refused")
	store := conversation.NewRedisStore(rdb)

	_, err := store.Read(context.Background(), "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewMySQLStoreRejectsUnsafeTableName(t *testing.T) {
	db := newTableDB(t)
	_, err := conversation.NewMySQLStore(db, "conversations; DROP TABLE users")
	require.Error(t, err)
}

func TestFormatTranscriptRendersBlocks(t *testing.T) {
	out := conversation.FormatTranscript([]conversation.Message{
		conversation.NewText(conversation.RoleUser, "weather in Paris?"),
		conversation.NewBlocks(conversation.RoleAssistant,
			conversation.ToolUseBlock("call_9", "get_weather", json.RawMessage(`{"location":"Paris"}`))),
		conversation.NewBlocks(conversation.RoleTool, conversation.ToolResultBlock("call_9", "get_weather", "Sunny")),
	})
	assert.Equal(t,
		"User: weather in Paris?\n"+
			`Assistant: [tool_use get_weather {"location":"Paris"}]`+"\n"+
			"Tool: [tool_result call_9: Sunny]",
		out)
}

// =================================================================================
// Fakes
// =================================================================================

type fakeRedis struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttl     map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttl: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.failGet != nil {
		cmd.SetErr(f.failGet)
		return cmd
	}
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(string(v))
	return cmd
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStatusCmd(ctx, "set", key)
	switch v := value.(type) {
	case []byte:
		f.data[key] = append([]byte(nil), v...)
	case string:
		f.data[key] = []byte(v)
	default:
		cmd.SetErr(fmt.Errorf("unsupported value type %T", value))
		return cmd
	}
	f.ttl[key] = expiration
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewIntCmd(ctx, "del")
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

// tableDriver is a database/sql driver backed by a map that understands the
// handful of statements issued by MySQLStore.
type tableDriver struct {
	mu   sync.Mutex
	rows map[string]string
}

var driverSeq atomic.Int32

func newTableDB(t *testing.T) *sql.DB {
	t.Helper()
	drv := &tableDriver{rows: make(map[string]string)}
	name := fmt.Sprintf("fake-conversations-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (d *tableDriver) Open(string) (driver.Conn, error) {
	return &tableConn{driver: d}, nil
}

type tableConn struct {
	driver *tableDriver
}

func (c *tableConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *tableConn) Close() error { return nil }

func (c *tableConn) Begin() (driver.Tx, error) {
	return nil, fmt.Errorf("transactions not supported")
}

func (c *tableConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	d := c.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	q := normalizeSQL(query)
	switch {
	case strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS conversations"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(q, "INSERT INTO conversations (conversation_id, history)"):
		d.rows[args[0].Value.(string)] = args[1].Value.(string)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(q, "DELETE FROM conversations WHERE conversation_id = ?"):
		delete(d.rows, args[0].Value.(string))
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected exec: %s", q)
}

func (c *tableConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	d := c.driver
	d.mu.Lock()
	defer d.mu.Unlock()

	q := normalizeSQL(query)
	if q != "SELECT history FROM conversations WHERE conversation_id = ?" {
		return nil, fmt.Errorf("unexpected query: %s", q)
	}
	rows := &tableRows{}
	if history, ok := d.rows[args[0].Value.(string)]; ok {
		rows.values = [][]driver.Value{{history}}
	}
	return rows, nil
}

type tableRows struct {
	values [][]driver.Value
	idx    int
}

func (r *tableRows) Columns() []string { return []string{"history"} }
func (r *tableRows) Close() error      { return nil }

func (r *tableRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(q string) string {
	return strings.Join(strings.Fields(q), " ")
}
