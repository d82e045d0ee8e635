// Package storage persists session telemetry in a single SQLite database.
//
// Writes are merge-upserts: re-sending a record with fewer fields filled
// in never erases what an earlier write established. All access goes
// through one pinned connection, so writers serialize in the pool rather
// than colliding on SQLITE_BUSY.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dxta-dev/clankers/internal/telemetry"
)

// UntitledSession is stored when a session arrives without a title, so a
// later write carrying the real title can overwrite it.
const UntitledSession = "Untitled Session"

// Session is one AI conversation. Optional fields are pointers; nil means
// the client did not report the field and the merge rules leave any
// existing value in place. Timestamps are epoch milliseconds.
type Session struct {
	ID               string   `json:"id"`
	Title            *string  `json:"title,omitempty"`
	ProjectPath      *string  `json:"projectPath,omitempty"`
	ProjectName      *string  `json:"projectName,omitempty"`
	Model            *string  `json:"model,omitempty"`
	Provider         *string  `json:"provider,omitempty"`
	Source           *string  `json:"source,omitempty"`
	Status           *string  `json:"status,omitempty"`
	PromptTokens     *int64   `json:"promptTokens,omitempty"`
	CompletionTokens *int64   `json:"completionTokens,omitempty"`
	Cost             *float64 `json:"cost,omitempty"`
	MessageCount     *int64   `json:"messageCount,omitempty"`
	ToolCallCount    *int64   `json:"toolCallCount,omitempty"`
	PermissionMode   *string  `json:"permissionMode,omitempty"`
	CreatedAt        *int64   `json:"createdAt,omitempty"`
	UpdatedAt        *int64   `json:"updatedAt,omitempty"`
	EndedAt          *int64   `json:"endedAt,omitempty"`
}

// Message is one user or assistant turn within a session.
type Message struct {
	ID               string  `json:"id"`
	SessionID        string  `json:"sessionId"`
	Role             *string `json:"role,omitempty"`
	TextContent      *string `json:"textContent,omitempty"`
	Model            *string `json:"model,omitempty"`
	Source           *string `json:"source,omitempty"`
	PromptTokens     *int64  `json:"promptTokens,omitempty"`
	CompletionTokens *int64  `json:"completionTokens,omitempty"`
	DurationMs       *int64  `json:"durationMs,omitempty"`
	CreatedAt        *int64  `json:"createdAt,omitempty"`
	CompletedAt      *int64  `json:"completedAt,omitempty"`
}

// Tool is one tool invocation. The immutable columns (name, input,
// file path, created_at) are written once; only the outcome columns
// are updated on conflict.
type Tool struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"sessionId"`
	MessageID    *string `json:"messageId,omitempty"`
	ToolName     string  `json:"toolName"`
	ToolInput    *string `json:"toolInput,omitempty"`
	ToolOutput   *string `json:"toolOutput,omitempty"`
	FilePath     *string `json:"filePath,omitempty"`
	Success      *bool   `json:"success,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
	DurationMs   *int64  `json:"durationMs,omitempty"`
	CreatedAt    int64   `json:"createdAt"`
}

// SessionError is a failure event reported by the assistant.
type SessionError struct {
	ID           string  `json:"id"`
	SessionID    string  `json:"sessionId"`
	ErrorType    *string `json:"errorType,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
	CreatedAt    int64   `json:"createdAt"`
}

// CompactionEvent records a context-window compaction.
type CompactionEvent struct {
	ID             string `json:"id"`
	SessionID      string `json:"sessionId"`
	TokensBefore   *int64 `json:"tokensBefore,omitempty"`
	TokensAfter    *int64 `json:"tokensAfter,omitempty"`
	MessagesBefore *int64 `json:"messagesBefore,omitempty"`
	MessagesAfter  *int64 `json:"messagesAfter,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// Store wraps the pinned SQLite connection.
type Store struct {
	db     *sql.DB
	path   string
	closed atomic.Bool

	sessionStmt    *sql.Stmt
	messageStmt    *sql.Stmt
	toolStmt       *sql.Stmt
	errorStmt      *sql.Stmt
	compactionStmt *sql.Stmt

	upserts metric.Int64Counter
}

// setupWASMCache points the go-sqlite3 wazero runtime at a persistent
// compilation cache so process startup skips the WASM JIT. Falls back to
// an in-memory cache when the cache directory cannot be created.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "clankers", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// EnsureDB creates the database file and schema if they do not exist.
// It reports whether the file was newly created.
func EnsureDB(path string) (created bool, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		created = true
	}
	store, err := Open(path)
	if err != nil {
		return false, err
	}
	return created, store.Close()
}

// Open opens (creating if needed) the database at path, applies the
// schema, and pins the pool to a single connection.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL lets the CLI read while the daemon holds the write connection.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	store := &Store{db: db, path: path}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	store.upserts, _ = telemetry.Meter("").Int64Counter(telemetry.MetricStorageUpserts)
	return store, nil
}

// prepareStatements compiles the upsert statements once; the write path
// runs on every telemetry event.
func (s *Store) prepareStatements() error {
	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.sessionStmt, upsertSessionSQL},
		{&s.messageStmt, upsertMessageSQL},
		{&s.toolStmt, upsertToolSQL},
		{&s.errorStmt, upsertSessionErrorSQL},
		{&s.compactionStmt, upsertCompactionEventSQL},
	} {
		stmt, err := s.db.Prepare(p.query)
		if err != nil {
			return fmt.Errorf("preparing upsert statement: %w", err)
		}
		*p.dst = stmt
	}
	return nil
}

func (s *Store) countUpsert(ctx context.Context, table string) {
	if s.upserts != nil {
		s.upserts.Add(ctx, 1, metric.WithAttributes(attribute.String("table", table)))
	}
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the prepared statements and the connection. Safe to
// call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, stmt := range []*sql.Stmt{
		s.sessionStmt, s.messageStmt, s.toolStmt, s.errorStmt, s.compactionStmt,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// UpsertSession inserts or merges a session row. On insert a nil title
// becomes the untitled placeholder; on merge the placeholder never
// replaces a real title.
func (s *Store) UpsertSession(ctx context.Context, sess *Session) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.sessionStmt.ExecContext(ctx,
		sess.ID, sess.Title, sess.ProjectPath, sess.ProjectName,
		sess.Model, sess.Provider, sess.Source, sess.Status,
		sess.PromptTokens, sess.CompletionTokens, sess.Cost,
		sess.MessageCount, sess.ToolCallCount, sess.PermissionMode,
		sess.CreatedAt, sess.UpdatedAt, sess.EndedAt,
	)
	if err == nil {
		s.countUpsert(ctx, "sessions")
	}
	return wrapDBError("upsert session", err)
}

// UpsertMessage inserts or merges a message row.
func (s *Store) UpsertMessage(ctx context.Context, msg *Message) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.messageStmt.ExecContext(ctx,
		msg.ID, msg.SessionID, msg.Role, msg.TextContent,
		msg.Model, msg.Source,
		msg.PromptTokens, msg.CompletionTokens, msg.DurationMs,
		msg.CreatedAt, msg.CompletedAt,
	)
	if err == nil {
		s.countUpsert(ctx, "messages")
	}
	return wrapDBError("upsert message", err)
}

// UpsertTool inserts a tool row or updates its outcome columns.
func (s *Store) UpsertTool(ctx context.Context, tool *Tool) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.toolStmt.ExecContext(ctx,
		tool.ID, tool.SessionID, tool.MessageID, tool.ToolName,
		tool.ToolInput, tool.ToolOutput, tool.FilePath,
		tool.Success, tool.ErrorMessage, tool.DurationMs, tool.CreatedAt,
	)
	if err == nil {
		s.countUpsert(ctx, "tools")
	}
	return wrapDBError("upsert tool", err)
}

// UpsertSessionError inserts or updates a session error row.
func (s *Store) UpsertSessionError(ctx context.Context, se *SessionError) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.errorStmt.ExecContext(ctx,
		se.ID, se.SessionID, se.ErrorType, se.ErrorMessage, se.CreatedAt,
	)
	if err == nil {
		s.countUpsert(ctx, "session_errors")
	}
	return wrapDBError("upsert session error", err)
}

// UpsertCompactionEvent inserts or updates a compaction event row.
func (s *Store) UpsertCompactionEvent(ctx context.Context, ce *CompactionEvent) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.compactionStmt.ExecContext(ctx,
		ce.ID, ce.SessionID,
		ce.TokensBefore, ce.TokensAfter,
		ce.MessagesBefore, ce.MessagesAfter, ce.CreatedAt,
	)
	if err == nil {
		s.countUpsert(ctx, "compaction_events")
	}
	return wrapDBError("upsert compaction event", err)
}
