// In file: internal/conversation/open.go
package conversation

import (
	"context"
	"fmt"
	"log"

	"github.com/santoshameti/agentgateway/internal/config"
)

// Backend names accepted in the memory profile's conversation_manager field.
const (
	BackendInMemory = "in_memory"
	BackendRedis    = "redis"
	BackendMySQL    = "mysql"
	// BackendDynamoDB is the durable-table name used by older profiles; it is
	// served by the MySQL backend.
	BackendDynamoDB = "dynamodb"
)

// Open builds the store selected by the memory profile. The returned close
// function releases any connection the store owns.
func Open(ctx context.Context, profile config.MemoryProfile) (Store, func() error, error) {
	noop := func() error { return nil }

	switch profile.Backend {
	case "", BackendInMemory:
		return NewMemoryStore(), noop, nil

	case BackendRedis:
		if profile.RedisURL == "" {
			return nil, nil, fmt.Errorf("redis conversation store requires redis_url")
		}
		rdb, err := DialRedis(ctx, profile.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(rdb), rdb.Close, nil

	case BackendMySQL, BackendDynamoDB:
		if profile.Backend == BackendDynamoDB {
			log.Printf("conversation_manager %q is served by the mysql backend", BackendDynamoDB)
		}
		if profile.MySQLDSN == "" {
			return nil, nil, fmt.Errorf("mysql conversation store requires mysql_dsn")
		}
		db, err := OpenMySQL(ctx, profile.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := NewMySQLStore(db, profile.Table)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown conversation_manager %q", profile.Backend)
	}
}
