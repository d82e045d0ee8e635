package storage

const schema = `
-- Sessions: one AI conversation on one assistant front-end
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT,
    project_path TEXT,
    project_name TEXT,
    model TEXT,
    provider TEXT,
    source TEXT,
    status TEXT,
    prompt_tokens INTEGER,
    completion_tokens INTEGER,
    cost REAL,
    message_count INTEGER,
    tool_call_count INTEGER,
    permission_mode TEXT,
    created_at INTEGER,
    updated_at INTEGER,
    ended_at INTEGER
);

-- Messages: user/assistant turns within a session
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    role TEXT,
    text_content TEXT,
    model TEXT,
    source TEXT,
    prompt_tokens INTEGER,
    completion_tokens INTEGER,
    duration_ms INTEGER,
    created_at INTEGER,
    completed_at INTEGER,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

-- Tools: individual tool invocations by the assistant
CREATE TABLE IF NOT EXISTS tools (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    message_id TEXT,
    tool_name TEXT NOT NULL,
    tool_input TEXT,
    tool_output TEXT,
    file_path TEXT,
    success BOOLEAN,
    error_message TEXT,
    duration_ms INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_tools_session ON tools(session_id);
CREATE INDEX IF NOT EXISTS idx_tools_name ON tools(tool_name);
CREATE INDEX IF NOT EXISTS idx_tools_file ON tools(file_path);

-- Session errors: assistant-side failure events
CREATE TABLE IF NOT EXISTS session_errors (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    error_type TEXT,
    error_message TEXT,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_session_errors_session ON session_errors(session_id);

-- Compaction events: context-window compactions
CREATE TABLE IF NOT EXISTS compaction_events (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    tokens_before INTEGER,
    tokens_after INTEGER,
    messages_before INTEGER,
    messages_after INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_compaction_session ON compaction_events(session_id);
`

// Merge rules, expressed in SQL so concurrent partial writes cannot
// reintroduce nulls through read-modify-write races:
//
//   - identity-preserving text columns keep the existing value unless the
//     incoming one is non-null and non-empty
//   - created_at is first-write-wins
//   - ended_at is sticky once set
//   - numeric aggregates take the latest value as given

const upsertSessionSQL = `
INSERT INTO sessions (
    id, title, project_path, project_name, model, provider, source, status,
    prompt_tokens, completion_tokens, cost, message_count, tool_call_count,
    permission_mode, created_at, updated_at, ended_at
) VALUES (?, COALESCE(?, 'Untitled Session'), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = CASE WHEN excluded.title IS NOT NULL AND excluded.title != ''
                      AND excluded.title != 'Untitled Session'
                 THEN excluded.title ELSE sessions.title END,
    model = CASE WHEN excluded.model IS NOT NULL AND excluded.model != ''
                 THEN excluded.model ELSE sessions.model END,
    provider = CASE WHEN excluded.provider IS NOT NULL AND excluded.provider != ''
                    THEN excluded.provider ELSE sessions.provider END,
    source = CASE WHEN excluded.source IS NOT NULL AND excluded.source != ''
                  THEN excluded.source ELSE sessions.source END,
    status = CASE WHEN excluded.status IS NOT NULL AND excluded.status != ''
                  THEN excluded.status ELSE sessions.status END,
    permission_mode = CASE WHEN excluded.permission_mode IS NOT NULL AND excluded.permission_mode != ''
                           THEN excluded.permission_mode ELSE sessions.permission_mode END,
    created_at = COALESCE(sessions.created_at, excluded.created_at),
    project_path = excluded.project_path,
    project_name = excluded.project_name,
    prompt_tokens = excluded.prompt_tokens,
    completion_tokens = excluded.completion_tokens,
    cost = excluded.cost,
    message_count = excluded.message_count,
    tool_call_count = excluded.tool_call_count,
    updated_at = excluded.updated_at,
    ended_at = COALESCE(excluded.ended_at, sessions.ended_at);
`

const upsertMessageSQL = `
INSERT INTO messages (
    id, session_id, role, text_content, model, source,
    prompt_tokens, completion_tokens, duration_ms,
    created_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    text_content = CASE WHEN excluded.text_content IS NOT NULL AND excluded.text_content != ''
                        THEN excluded.text_content ELSE messages.text_content END,
    model = CASE WHEN excluded.model IS NOT NULL AND excluded.model != ''
                 THEN excluded.model ELSE messages.model END,
    source = CASE WHEN excluded.source IS NOT NULL AND excluded.source != ''
                  THEN excluded.source ELSE messages.source END,
    created_at = COALESCE(messages.created_at, excluded.created_at),
    session_id = excluded.session_id,
    role = excluded.role,
    prompt_tokens = excluded.prompt_tokens,
    completion_tokens = excluded.completion_tokens,
    duration_ms = excluded.duration_ms,
    completed_at = excluded.completed_at;
`

const upsertToolSQL = `
INSERT INTO tools (
    id, session_id, message_id, tool_name, tool_input, tool_output,
    file_path, success, error_message, duration_ms, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    tool_output = excluded.tool_output,
    success = excluded.success,
    error_message = excluded.error_message,
    duration_ms = excluded.duration_ms,
    message_id = COALESCE(excluded.message_id, tools.message_id);
`

const upsertSessionErrorSQL = `
INSERT INTO session_errors (
    id, session_id, error_type, error_message, created_at
) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    error_type = excluded.error_type,
    error_message = excluded.error_message;
`

const upsertCompactionEventSQL = `
INSERT INTO compaction_events (
    id, session_id, tokens_before, tokens_after, messages_before, messages_after, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    tokens_before = excluded.tokens_before,
    tokens_after = excluded.tokens_after,
    messages_before = excluded.messages_before,
    messages_after = excluded.messages_after;
`
