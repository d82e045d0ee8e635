package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func intPtr(i int64) *int64 { return &i }

func floatPtr(f float64) *float64 { return &f }

func boolPtr(b bool) *bool { return &b }

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "clankers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestEnsureDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clankers.db")

	created, err := EnsureDB(path)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDB(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSessionMerge(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Skeleton write: id and created_at only.
	require.NoError(t, store.UpsertSession(ctx, &Session{
		ID:        "s1",
		CreatedAt: intPtr(1000),
		UpdatedAt: intPtr(1000),
	}))

	// Fill-in write carries the identity fields.
	require.NoError(t, store.UpsertSession(ctx, &Session{
		ID:        "s1",
		Title:     strPtr("Fix the flaky test"),
		Model:     strPtr("gpt-5"),
		Provider:  strPtr("openai"),
		CreatedAt: intPtr(2000),
		UpdatedAt: intPtr(2000),
	}))

	sess, _, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Fix the flaky test", *sess.Title)
	assert.Equal(t, "gpt-5", *sess.Model)
	assert.Equal(t, int64(1000), *sess.CreatedAt, "created_at is first-write-wins")
	assert.Equal(t, int64(2000), *sess.UpdatedAt)

	t.Run("nil title does not erase a real one", func(t *testing.T) {
		require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1"}))
		sess, _, err := store.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "Fix the flaky test", *sess.Title)
	})

	t.Run("empty strings do not erase identity fields", func(t *testing.T) {
		require.NoError(t, store.UpsertSession(ctx, &Session{
			ID:    "s1",
			Model: strPtr(""),
		}))
		sess, _, err := store.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "gpt-5", *sess.Model)
	})

	t.Run("ended_at is sticky", func(t *testing.T) {
		require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", EndedAt: intPtr(5000)}))
		require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1"}))

		sess, _, err := store.GetSession(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, sess.EndedAt)
		assert.Equal(t, int64(5000), *sess.EndedAt)
	})

	t.Run("aggregates overwrite", func(t *testing.T) {
		require.NoError(t, store.UpsertSession(ctx, &Session{
			ID:            "s1",
			MessageCount:  intPtr(10),
			ToolCallCount: intPtr(4),
			Cost:          floatPtr(0.25),
		}))
		require.NoError(t, store.UpsertSession(ctx, &Session{
			ID:            "s1",
			MessageCount:  intPtr(12),
			ToolCallCount: intPtr(5),
			Cost:          floatPtr(0.31),
		}))

		sess, _, err := store.GetSession(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, int64(12), *sess.MessageCount)
		assert.Equal(t, int64(5), *sess.ToolCallCount)
		assert.Equal(t, 0.31, *sess.Cost)
	})
}

func TestSessionUntitledSentinel(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", CreatedAt: intPtr(1)}))

	sess, _, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, UntitledSession, *sess.Title)

	// The sentinel is a real value, but a later title still replaces it.
	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", Title: strPtr("Real title")}))

	sess, _, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Real title", *sess.Title)
}

func TestUpsertIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	full := &Session{
		ID:        "s1",
		Title:     strPtr("t"),
		Model:     strPtr("m"),
		Status:    strPtr("active"),
		CreatedAt: intPtr(1),
		UpdatedAt: intPtr(2),
		EndedAt:   intPtr(3),
	}
	require.NoError(t, store.UpsertSession(ctx, full))
	require.NoError(t, store.UpsertSession(ctx, full))

	sessions, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "t", *sessions[0].Title)
	assert.Equal(t, int64(3), *sessions[0].EndedAt)
}

func TestMessageMerge(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", CreatedAt: intPtr(1)}))

	require.NoError(t, store.UpsertMessage(ctx, &Message{
		ID:          "m1",
		SessionID:   "s1",
		Role:        strPtr("assistant"),
		TextContent: strPtr("partial answer"),
		Model:       strPtr("gpt-5"),
		CreatedAt:   intPtr(100),
	}))

	// Completion write with empty text must not clobber the content.
	require.NoError(t, store.UpsertMessage(ctx, &Message{
		ID:          "m1",
		SessionID:   "s1",
		Role:        strPtr("assistant"),
		TextContent: strPtr(""),
		DurationMs:  intPtr(1500),
		CreatedAt:   intPtr(200),
		CompletedAt: intPtr(300),
	}))

	messages, err := store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg := messages[0]
	assert.Equal(t, "partial answer", *msg.TextContent)
	assert.Equal(t, "gpt-5", *msg.Model)
	assert.Equal(t, int64(100), *msg.CreatedAt)
	assert.Equal(t, int64(1500), *msg.DurationMs)
	assert.Equal(t, int64(300), *msg.CompletedAt)
}

func TestToolMerge(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", CreatedAt: intPtr(1)}))

	require.NoError(t, store.UpsertTool(ctx, &Tool{
		ID:        "t1",
		SessionID: "s1",
		ToolName:  "read_file",
		ToolInput: strPtr(`{"path":"main.go"}`),
		FilePath:  strPtr("main.go"),
		MessageID: strPtr("m1"),
		CreatedAt: 100,
	}))

	// Outcome write omits message_id; the earlier link must survive.
	require.NoError(t, store.UpsertTool(ctx, &Tool{
		ID:         "t1",
		SessionID:  "s1",
		ToolName:   "read_file",
		ToolOutput: strPtr("package main"),
		Success:    boolPtr(true),
		DurationMs: intPtr(12),
		CreatedAt:  100,
	}))

	result, err := store.ExecuteQuery(ctx, "SELECT message_id, tool_output, success FROM tools WHERE id = 't1'")
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, "m1", result.Rows[0]["message_id"])
	assert.Equal(t, "package main", result.Rows[0]["tool_output"])
}

func TestSessionErrorAndCompactionUpserts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", CreatedAt: intPtr(1)}))

	require.NoError(t, store.UpsertSessionError(ctx, &SessionError{
		ID: "e1", SessionID: "s1",
		ErrorType:    strPtr("rate_limit"),
		ErrorMessage: strPtr("429"),
		CreatedAt:    100,
	}))
	require.NoError(t, store.UpsertSessionError(ctx, &SessionError{
		ID: "e1", SessionID: "s1",
		ErrorType:    strPtr("rate_limit"),
		ErrorMessage: strPtr("429 too many requests"),
		CreatedAt:    100,
	}))

	require.NoError(t, store.UpsertCompactionEvent(ctx, &CompactionEvent{
		ID: "c1", SessionID: "s1",
		TokensBefore: intPtr(90000), TokensAfter: intPtr(20000),
		MessagesBefore: intPtr(50), MessagesAfter: intPtr(10),
		CreatedAt: 100,
	}))

	result, err := store.ExecuteQuery(ctx, "SELECT error_message FROM session_errors")
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, "429 too many requests", result.Rows[0]["error_message"])

	result, err = store.ExecuteQuery(ctx, "SELECT tokens_after FROM compaction_events")
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, int64(20000), result.Rows[0]["tokens_after"])
}

func TestListSessionsOrderAndLimit(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i, ts := range []int64{300, 100, 200} {
		require.NoError(t, store.UpsertSession(ctx, &Session{
			ID:        string(rune('a' + i)),
			CreatedAt: intPtr(ts),
		}))
	}

	sessions, err := store.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "a", sessions[0].ID)
	assert.Equal(t, "c", sessions[1].ID)
	assert.Equal(t, "b", sessions[2].ID)

	sessions, err = store.ListSessions(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestListMessagesOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", CreatedAt: intPtr(1)}))
	for _, m := range []struct {
		id string
		ts int64
	}{{"m2", 200}, {"m1", 100}, {"m3", 300}} {
		require.NoError(t, store.UpsertMessage(ctx, &Message{
			ID: m.id, SessionID: "s1", CreatedAt: intPtr(m.ts),
		}))
	}

	messages, err := store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
	assert.Equal(t, "m3", messages[2].ID)
}

func TestGetSessionNotFound(t *testing.T) {
	store := testStore(t)

	_, _, err := store.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCascadeDelete(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", CreatedAt: intPtr(1)}))
	require.NoError(t, store.UpsertMessage(ctx, &Message{ID: "m1", SessionID: "s1", CreatedAt: intPtr(1)}))
	require.NoError(t, store.UpsertTool(ctx, &Tool{ID: "t1", SessionID: "s1", ToolName: "bash", CreatedAt: 1}))

	_, err := store.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = 's1'")
	require.NoError(t, err)

	messages, err := store.ListMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, messages)

	result, err := store.ExecuteQuery(ctx, "SELECT id FROM tools")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
}

func TestValidateReadOnly(t *testing.T) {
	t.Run("allows select and with", func(t *testing.T) {
		assert.NoError(t, ValidateReadOnly("SELECT * FROM sessions"))
		assert.NoError(t, ValidateReadOnly("  select id from tools  "))
		assert.NoError(t, ValidateReadOnly("WITH recent AS (SELECT * FROM sessions) SELECT * FROM recent"))
	})

	t.Run("leading write keyword is reported", func(t *testing.T) {
		err := ValidateReadOnly("DELETE FROM sessions")
		var gate *QueryNotAllowedError
		require.ErrorAs(t, err, &gate)
		assert.Equal(t, "DELETE", gate.Keyword)
		assert.Equal(t, "DELETE statements are blocked", gate.Error())
	})

	t.Run("non-keyword non-read statement gets the generic message", func(t *testing.T) {
		err := ValidateReadOnly("EXPLAIN QUERY PLAN SELECT 1")
		var gate *QueryNotAllowedError
		require.ErrorAs(t, err, &gate)
		assert.Empty(t, gate.Keyword)
	})

	t.Run("rejects every forbidden keyword as a token", func(t *testing.T) {
		for _, kw := range forbiddenKeywords {
			query := "SELECT * FROM sessions; " + kw + " something"
			err := ValidateReadOnly(query)
			var gate *QueryNotAllowedError
			require.ErrorAs(t, err, &gate, "keyword %s", kw)
			assert.Equal(t, kw, gate.Keyword)
		}
	})

	t.Run("keyword inside an identifier is fine", func(t *testing.T) {
		assert.NoError(t, ValidateReadOnly("SELECT created_at FROM sessions"))
		assert.NoError(t, ValidateReadOnly("SELECT * FROM compaction_events"))
	})
}

func TestExecuteQueryCoercesBytes(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertSession(ctx, &Session{
		ID: "s1", Title: strPtr("hello"), CreatedAt: intPtr(1),
	}))

	result, err := store.ExecuteQuery(ctx, "SELECT id, title FROM sessions")
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, []string{"id", "title"}, result.Columns)
	assert.IsType(t, "", result.Rows[0]["id"])
	assert.Equal(t, "hello", result.Rows[0]["title"])
}

func TestTableColumns(t *testing.T) {
	store := testStore(t)

	columns, err := store.TableColumns(context.Background(), "sessions")
	require.NoError(t, err)
	assert.Contains(t, columns, "id")
	assert.Contains(t, columns, "permission_mode")
	assert.Equal(t, "id", columns[0])

	columns, err = store.TableColumns(context.Background(), "no_such_table")
	require.NoError(t, err)
	assert.Empty(t, columns)
}

func TestSuggestColumns(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	t.Run("substring match", func(t *testing.T) {
		got, err := store.SuggestColumns(ctx, "sessions", "token")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"prompt_tokens", "completion_tokens"}, got)
	})

	t.Run("symmetric match", func(t *testing.T) {
		// Input longer than the column name still matches.
		got, err := store.SuggestColumns(ctx, "sessions", "the_cost_column")
		require.NoError(t, err)
		assert.Contains(t, got, "cost")
	})

	t.Run("case-insensitive", func(t *testing.T) {
		got, err := store.SuggestColumns(ctx, "sessions", "TITLE")
		require.NoError(t, err)
		assert.Contains(t, got, "title")
	})
}

func TestClosedStore(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	err := store.UpsertSession(context.Background(), &Session{ID: "s1"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseReleasesStatements(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clankers.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NotNil(t, store.sessionStmt)
	require.NotNil(t, store.messageStmt)
	require.NotNil(t, store.toolStmt)
	require.NotNil(t, store.errorStmt)
	require.NotNil(t, store.compactionStmt)

	require.NoError(t, store.UpsertSession(ctx, &Session{ID: "s1", Title: strPtr("first")}))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	sess, _, err := reopened.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, sess.Title)
	assert.Equal(t, "first", *sess.Title)
}
