package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrSessionClosed is returned when a query is issued on a released session.
var ErrSessionClosed = errors.New("dbexec: session closed")

// SessionConfig controls how a request-scoped session prepares its connection.
type SessionConfig struct {
	DB *sql.DB
	// Setup statements run once, right after the connection is acquired.
	Setup []string
	// Reset statements run before the connection is handed back to the pool.
	Reset []string
}

// ReadOnlySessionConfig returns setup/reset statements that pin a session
// connection to read-only mode for the given driver.
func ReadOnlySessionConfig(db *sql.DB, driver string) SessionConfig {
	cfg := SessionConfig{DB: db}
	switch driver {
	case "sqlite":
		cfg.Setup = []string{"PRAGMA query_only = ON"}
		cfg.Reset = []string{"PRAGMA query_only = OFF"}
	case "mysql":
		cfg.Setup = []string{"SET SESSION TRANSACTION READ ONLY"}
		cfg.Reset = []string{"SET SESSION TRANSACTION READ WRITE"}
	}
	return cfg
}

// Session executes every query of one request on a single dedicated
// connection. The connection is acquired lazily and released by Close,
// which is safe to call more than once.
type Session struct {
	cfg    SessionConfig
	mu     sync.Mutex
	conn   *sql.Conn
	closed bool
}

// NewSession creates a session; no connection is held until the first query.
func NewSession(cfg SessionConfig) *Session {
	return &Session{cfg: cfg}
}

func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	return conn.QueryContext(ctx, query, args...)
}

func (s *Session) acquire(ctx context.Context) (*sql.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.conn != nil {
		return s.conn, nil
	}
	if s.cfg.DB == nil {
		return nil, sql.ErrConnDone
	}

	conn, err := s.cfg.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	for _, stmt := range s.cfg.Setup {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to prepare session (%s): %w", stmt, err)
		}
	}
	s.conn = conn
	return conn, nil
}

// Close resets and releases the underlying connection, if one was acquired.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}

	conn := s.conn
	s.conn = nil
	for _, stmt := range s.cfg.Reset {
		// Background context: the request context may already be cancelled.
		_, _ = conn.ExecContext(context.Background(), stmt)
	}
	return conn.Close()
}

type sessionContextKey struct{}

// WithSession attaches a session to the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached to ctx, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// ForContext returns the request session when one is attached,
// otherwise the fallback executor.
func ForContext(ctx context.Context, fallback QueryExecutor) QueryExecutor {
	if s, ok := SessionFromContext(ctx); ok {
		return s
	}
	return fallback
}
