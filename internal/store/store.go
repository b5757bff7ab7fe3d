// Package store mirrors the in-memory session collection to durable local
// storage. The whole collection is serialized on every mutation under a single
// key, with the active session id alongside it; there is no incremental
// persistence.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/RichardoC/streampad/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS app_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`

const (
	keySessions = "sessions"
	keyActive   = "active_session"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return &Store{db: db, logger: logger}, nil
}

// Save persists the full collection and the active id in one transaction. An
// empty collection removes both keys entirely, leaving no empty-array
// artifact behind.
func (s *Store) Save(sessions []models.ChatSession, activeID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if len(sessions) == 0 {
		if _, err := tx.Exec("DELETE FROM app_state WHERE key IN (?, ?)", keySessions, keyActive); err != nil {
			return err
		}
		return tx.Commit()
	}

	blob, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("serializing sessions: %w", err)
	}

	const upsert = `
        INSERT INTO app_state (key, value) VALUES (?, ?)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	if _, err := tx.Exec(upsert, keySessions, string(blob)); err != nil {
		return err
	}
	if _, err := tx.Exec(upsert, keyActive, activeID); err != nil {
		return err
	}
	return tx.Commit()
}

// Load restores the persisted collection. Absent keys mean no prior state.
// Malformed persisted data is logged and treated as empty, never returned as
// an error. When the stored active id is no longer present, the newest
// session (first in the collection) becomes active instead.
func (s *Store) Load() ([]models.ChatSession, string, error) {
	blob, ok, err := s.get(keySessions)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", nil
	}

	var sessions []models.ChatSession
	if err := json.Unmarshal([]byte(blob), &sessions); err != nil {
		s.logger.Warn("discarding malformed persisted sessions", zap.Error(err))
		return nil, "", nil
	}
	if len(sessions) == 0 {
		return nil, "", nil
	}

	activeID, ok, err := s.get(keyActive)
	if err != nil {
		return nil, "", err
	}
	if !ok || !containsID(sessions, activeID) {
		activeID = sessions[0].ID
	}
	return sessions, activeID, nil
}

func (s *Store) get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM app_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func containsID(sessions []models.ChatSession, id string) bool {
	for _, sess := range sessions {
		if sess.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) Close() error {
	return s.db.Close()
}
