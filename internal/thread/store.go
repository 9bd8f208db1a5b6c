package thread

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nugget/scout/internal/llm"
)

// Store is a SQLite-backed thread store. All public methods are safe
// for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) a thread store at the given database
// path. The schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id                  TEXT PRIMARY KEY,
		created_at          TIMESTAMP NOT NULL,
		updated_at          TIMESTAMP NOT NULL,
		title               TEXT NOT NULL DEFAULT '',
		title_message_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		thread_id    TEXT NOT NULL,
		seq          INTEGER NOT NULL,
		role         TEXT NOT NULL,
		content      TEXT NOT NULL,
		tool_calls   TEXT,
		tool_call_id TEXT,
		tool_name    TEXT,
		created_at   TIMESTAMP NOT NULL,
		UNIQUE (thread_id, seq),
		FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// NewThreadID returns a fresh thread identifier. The durable record is
// created lazily by the first Append, so generating an ID is free —
// abandoned IDs leave nothing behind.
func NewThreadID() string {
	return uuid.New().String()
}

// Append adds a message to the end of a thread, creating the thread
// record if this is its first message. Messages are assigned a
// monotonic per-thread sequence number; callers always read them back
// in append order regardless of clock behavior.
func (s *Store) Append(ctx context.Context, threadID string, msg llm.Message) error {
	if threadID == "" {
		return fmt.Errorf("append: empty thread id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO threads (id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		threadID, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE thread_id = ?`,
		threadID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	var toolCalls any
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshal tool calls: %w", err)
		}
		toolCalls = string(data)
	}

	msgID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, seq, role, content, tool_calls, tool_call_id, tool_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msgID.String(), threadID, seq, msg.Role, msg.Content, toolCalls,
		nullable(msg.ToolCallID), nullable(msg.ToolName), now,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns all messages in a thread in append order. A thread with
// no durable record loads as an empty slice, not an error — a fresh
// thread ID and a never-used one are indistinguishable by design.
func (s *Store) Load(ctx context.Context, threadID string) ([]llm.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, tool_calls, tool_call_id, tool_name
		 FROM messages WHERE thread_id = ? ORDER BY seq`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var msg llm.Message
		var toolCalls, toolCallID, toolName sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &toolCalls, &toolCallID, &toolName); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("unmarshal tool calls: %w", err)
			}
		}
		msg.ToolCallID = toolCallID.String
		msg.ToolName = toolName.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListAll returns the IDs of every thread that has at least one
// message, most recently active first.
func (s *Store) ListAll(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT t.id FROM threads t
		 JOIN messages m ON m.thread_id = t.id
		 ORDER BY t.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Threads returns summaries for every stored thread, most recently
// active first.
func (s *Store) Threads(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.title, t.created_at, t.updated_at, COUNT(m.id)
		 FROM threads t
		 LEFT JOIN messages m ON m.thread_id = t.id
		 GROUP BY t.id
		 ORDER BY t.updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query thread summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scan thread summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ConversationCount returns the number of messages the user actually
// sees in a thread: user messages and assistant replies. Tool results,
// system messages, and assistant messages that only carry tool calls
// are plumbing and do not count toward title maintenance.
func (s *Store) ConversationCount(ctx context.Context, threadID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE thread_id = ?
		   AND (role = 'user' OR (role = 'assistant' AND tool_calls IS NULL))`,
		threadID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// ConversationMessages returns the visible conversation of a thread in
// append order, filtered the same way as ConversationCount.
func (s *Store) ConversationMessages(ctx context.Context, threadID string) ([]llm.Message, error) {
	all, err := s.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(all))
	for _, m := range all {
		switch {
		case m.Role == "user":
			out = append(out, m)
		case m.Role == "assistant" && len(m.ToolCalls) == 0:
			out = append(out, m)
		}
	}
	return out, nil
}

// SetTitle records a thread's title and the conversational message
// count it was computed at. Returns ErrNotFound if the thread has no
// durable record.
func (s *Store) SetTitle(ctx context.Context, threadID, title string, atCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET title = ?, title_message_count = ? WHERE id = ?`,
		title, atCount, threadID,
	)
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set title %s: %w", threadID, ErrNotFound)
	}
	return nil
}

// TitleState returns the current title bookkeeping for a thread.
// Returns ErrNotFound if the thread has no durable record.
func (s *Store) TitleState(ctx context.Context, threadID string) (TitleState, error) {
	var ts TitleState
	err := s.db.QueryRowContext(ctx,
		`SELECT title, title_message_count FROM threads WHERE id = ?`,
		threadID,
	).Scan(&ts.Title, &ts.UpdatedAtCount)
	if err == sql.ErrNoRows {
		return TitleState{}, fmt.Errorf("title state %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return TitleState{}, fmt.Errorf("title state: %w", err)
	}
	return ts, nil
}

// nullable maps empty strings to NULL so optional columns stay clean.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
