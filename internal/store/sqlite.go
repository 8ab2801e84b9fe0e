package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	ordinal    INTEGER NOT NULL,
	role       TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant', 'tool')),
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(session_id, ordinal)
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, ordinal);
`

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	output.Logger.Debug().Str("path", path).Msg("session store opened")

	return &SQLite{
		db:    db,
		path:  path,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// sessionLock returns the write lock of one session.
func (s *SQLite) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *SQLite) CreateSession(ctx context.Context, cfg model.ProviderConfig) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, provider, model, created_at) VALUES (?, ?, ?, ?)",
		id, string(cfg.ID), cfg.Model, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// AppendTurn stores msgs in one transaction. The store numbers them after
// the last stored ordinal, so the caller's ordinals are ignored and an
// earlier failed append never leaves a gap. Any failing row fails the
// whole batch.
func (s *SQLite) AppendTurn(ctx context.Context, sessionID string, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	l := s.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM sessions WHERE id = ?", sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	if exists == 0 {
		return ErrSessionNotFound
	}

	var next int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(ordinal) + 1, 0) FROM messages WHERE session_id = ?", sessionID).Scan(&next)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages (session_id, ordinal, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, sessionID, next+i, string(m.Role), m.Content, created); err != nil {
			return fmt.Errorf("append turn: message %d: %w", next+i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append turn: commit: %w", err)
	}
	return nil
}

func (s *SQLite) ListSessions(ctx context.Context) ([]model.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.provider, s.model, s.created_at, COUNT(m.id)
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC, s.id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []model.SessionSummary
	for rows.Next() {
		var (
			sum      model.SessionSummary
			provider string
		)
		if err := rows.Scan(&sum.ID, &provider, &sum.Model, &sum.CreatedAt, &sum.MessageCount); err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		sum.Provider = model.ProviderID(provider)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

func (s *SQLite) LoadSession(ctx context.Context, sessionID string) (model.Session, error) {
	var (
		sess     model.Session
		provider string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, provider, model, created_at FROM sessions WHERE id = ?", sessionID,
	).Scan(&sess.ID, &provider, &sess.Provider.Model, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrSessionNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	sess.Provider.ID = model.ProviderID(provider)

	rows, err := s.db.QueryContext(ctx,
		"SELECT ordinal, role, content, created_at FROM messages WHERE session_id = ? ORDER BY ordinal", sessionID)
	if err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m    model.Message
			role string
		)
		if err := rows.Scan(&m.Ordinal, &role, &m.Content, &m.CreatedAt); err != nil {
			return model.Session{}, fmt.Errorf("load session: %w", err)
		}
		m.Role = model.Role(role)
		sess.Conversation = append(sess.Conversation, m)
	}
	if err := rows.Err(); err != nil {
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

// ExportSession renders a session as "role: content" lines.
func (s *SQLite) ExportSession(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.LoadSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := output.RenderSession(&sb, sess, output.FormatText); err != nil {
		return "", fmt.Errorf("export session: %w", err)
	}
	return sb.String(), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
