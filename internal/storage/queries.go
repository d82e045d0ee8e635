package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// forbiddenKeywords lists statements the ad-hoc query gate rejects. The
// gate is lexical, not a parser; the caller is local and trusted, this
// just keeps the CLI from mutating the database by accident.
var forbiddenKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "CREATE", "ALTER",
	"TRUNCATE", "REPLACE", "MERGE", "UPSERT", "ATTACH", "DETACH",
	"REINDEX", "VACUUM", "PRAGMA",
	"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT", "RELEASE",
}

// ValidateReadOnly applies the query gate: no forbidden keyword may
// appear as the leading keyword or as a whitespace-delimited token, and
// the statement must start with SELECT or WITH. The keyword scan runs
// first so a leading write statement reports which keyword tripped it.
func ValidateReadOnly(query string) error {
	upper := strings.ToUpper(strings.TrimSpace(query))

	for _, kw := range forbiddenKeywords {
		if strings.HasPrefix(upper, kw) || strings.Contains(upper, " "+kw+" ") {
			return &QueryNotAllowedError{Keyword: kw}
		}
	}

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return &QueryNotAllowedError{}
	}

	return nil
}

// QueryResult is the row-map form of an ad-hoc query.
type QueryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

// ExecuteQuery runs an ad-hoc query behind the read-only gate and
// returns one map per row. Byte-string columns are coerced to text.
func (s *Store) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ValidateReadOnly(query); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapDBError("execute query", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapDBError("execute query", err)
	}

	result := &QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, wrapDBError("execute query", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("execute query", err)
	}

	result.Count = len(result.Rows)
	return result, nil
}

// ListSessions returns sessions newest first. limit <= 0 means no cap.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	query := `SELECT id, title, project_path, project_name, model, provider,
		source, status, prompt_tokens, completion_tokens, cost,
		message_count, tool_call_count, permission_mode,
		created_at, updated_at, ended_at
		FROM sessions ORDER BY created_at DESC`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query+" LIMIT ?", limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, wrapDBError("list sessions", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, wrapDBError("list sessions", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, wrapDBError("list sessions", rows.Err())
}

// GetSession returns one session with its messages in creation order.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, []*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, title, project_path, project_name,
		model, provider, source, status, prompt_tokens, completion_tokens, cost,
		message_count, tool_call_count, permission_mode,
		created_at, updated_at, ended_at
		FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err != nil {
		return nil, nil, wrapDBError("get session", err)
	}

	messages, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return sess, messages, nil
}

// ListMessages returns a session's messages ordered by created_at.
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]*Message, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, role, text_content,
		model, source, prompt_tokens, completion_tokens, duration_ms,
		created_at, completed_at
		FROM messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, wrapDBError("list messages", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.TextContent,
			&msg.Model, &msg.Source, &msg.PromptTokens, &msg.CompletionTokens,
			&msg.DurationMs, &msg.CreatedAt, &msg.CompletedAt)
		if err != nil {
			return nil, wrapDBError("list messages", err)
		}
		messages = append(messages, &msg)
	}
	return messages, wrapDBError("list messages", rows.Err())
}

// TableColumns returns the column names of a table, in schema order.
func (s *Store) TableColumns(ctx context.Context, table string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, wrapDBError("table columns", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var (
			cid         int
			name, ctype string
			notNull     int
			dflt        any
			pk          int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, wrapDBError("table columns", err)
		}
		columns = append(columns, name)
	}
	return columns, wrapDBError("table columns", rows.Err())
}

// SuggestColumns returns columns of table whose names contain input, or
// whose name is contained in input, case-insensitive. Used for error
// hints when a query references a column that does not exist.
func (s *Store) SuggestColumns(ctx context.Context, table, input string) ([]string, error) {
	columns, err := s.TableColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(input)
	var suggestions []string
	for _, col := range columns {
		lower := strings.ToLower(col)
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			suggestions = append(suggestions, col)
		}
	}
	return suggestions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.Title, &sess.ProjectPath, &sess.ProjectName,
		&sess.Model, &sess.Provider, &sess.Source, &sess.Status,
		&sess.PromptTokens, &sess.CompletionTokens, &sess.Cost,
		&sess.MessageCount, &sess.ToolCallCount, &sess.PermissionMode,
		&sess.CreatedAt, &sess.UpdatedAt, &sess.EndedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
