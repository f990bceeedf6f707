// In file: internal/conversation/mysql.go
package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	defaultTableName = "conversations"

	mysqlErrNoSuchTable = 1146
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// MySQLStore keeps one row per conversation with the full history serialised
// in a single column. Appends read the row, extend it and write it back.
type MySQLStore struct {
	blobStore
	db    *sql.DB
	table string
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore uses db and the given table (defaults to "conversations").
// Call EnsureSchema to create the table if it may not exist yet.
func NewMySQLStore(db *sql.DB, table string) (*MySQLStore, error) {
	if db == nil {
		return nil, errors.New("mysql store requires a database handle")
	}
	if table == "" {
		table = defaultTableName
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid conversation table name %q", table)
	}
	s := &MySQLStore{db: db, table: table}
	s.blobStore = blobStore{backend: &mysqlBackend{db: db, table: table}}
	return s, nil
}

// OpenMySQL opens a pooled connection for dsn and pings it.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the conversation table when it is missing.
func (s *MySQLStore) EnsureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	conversation_id VARCHAR(64) NOT NULL PRIMARY KEY,
	history LONGTEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

type mysqlBackend struct {
	db    *sql.DB
	table string
}

func (b *mysqlBackend) load(ctx context.Context, id string) ([]byte, bool, error) {
	query := fmt.Sprintf("SELECT history FROM %s WHERE conversation_id = ?", b.table)
	var history string
	err := b.db.QueryRowContext(ctx, query, id).Scan(&history)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrNoSuchTable {
			return nil, false, fmt.Errorf("table %s does not exist, run EnsureSchema: %w", b.table, err)
		}
		return nil, false, err
	}
	return []byte(history), true, nil
}

func (b *mysqlBackend) save(ctx context.Context, id string, blob []byte) error {
	stmt := fmt.Sprintf(
		"INSERT INTO %s (conversation_id, history) VALUES (?, ?) ON DUPLICATE KEY UPDATE history = VALUES(history)",
		b.table,
	)
	_, err := b.db.ExecContext(ctx, stmt, id, string(blob))
	return err
}

func (b *mysqlBackend) remove(ctx context.Context, id string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE conversation_id = ?", b.table)
	_, err := b.db.ExecContext(ctx, stmt, id)
	return err
}
