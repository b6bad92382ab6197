// Package store persists workflow sessions and per-node state checkpoints in
// SQLite. A workflow writes one checkpoint after every completed node; the
// node sequence is strictly serial, so the store needs no cross-workflow
// locking beyond SQLite's own.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"genforge/internal/logging"
)

// ErrNoCheckpoint is returned when a session has no saved state.
var ErrNoCheckpoint = errors.New("store: no checkpoint for session")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	agent      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS checkpoints (
	session_id TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	node       TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (session_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, seq DESC);
`

// Store is a SQLite-backed session and checkpoint store. It implements
// workflow.Checkpointer.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open initializes the database at path, creating parent directories and the
// schema as needed. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	log := logging.L(logging.CategoryStore)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize schema: %w", err)
	}

	log.Info("checkpoint store opened", zap.String("path", path))
	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession registers a new workflow session for agent.
func (s *Store) CreateSession(ctx context.Context, id, agent string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent, created_at) VALUES (?, ?, ?)`,
		id, agent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: create session %q: %w", id, err)
	}
	return nil
}

// Save appends a checkpoint for sessionID. The state record is serialized as
// JSON; seq is assigned monotonically per session.
func (s *Store) Save(ctx context.Context, sessionID, node string, state any) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: marshal state for session %q: %w", sessionID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (session_id, seq, node, state, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE session_id = ?), ?, ?, ?)`,
		sessionID, sessionID, node, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: save checkpoint for session %q node %q: %w", sessionID, node, err)
	}
	s.log.Debug("checkpoint saved", zap.String("session", sessionID), zap.String("node", node))
	return nil
}

// LoadLatest unmarshals the most recent checkpoint of sessionID into state
// and returns the node it was taken after. Returns ErrNoCheckpoint when the
// session has none.
func (s *Store) LoadLatest(ctx context.Context, sessionID string, state any) (node string, err error) {
	var blob string
	row := s.db.QueryRowContext(ctx,
		`SELECT node, state FROM checkpoints WHERE session_id = ? ORDER BY seq DESC LIMIT 1`,
		sessionID)
	if err := row.Scan(&node, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNoCheckpoint
		}
		return "", fmt.Errorf("store: load checkpoint for session %q: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(blob), state); err != nil {
		return "", fmt.Errorf("store: unmarshal checkpoint for session %q: %w", sessionID, err)
	}
	return node, nil
}

// Nodes returns the node names of sessionID's checkpoints in save order.
func (s *Store) Nodes(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node FROM checkpoints WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: list checkpoints for session %q: %w", sessionID, err)
	}
	defer rows.Close()

	var nodes []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// SessionInfo describes a registered session.
type SessionInfo struct {
	ID        string
	Agent     string
	CreatedAt time.Time
}

// Sessions lists registered sessions, most recent first.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, agent, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var si SessionInfo
		if err := rows.Scan(&si.ID, &si.Agent, &si.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}
