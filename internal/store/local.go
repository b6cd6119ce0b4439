// Package store persists client state that must outlive the process, such
// as the session credential, in a small SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"smartblog/internal/logging"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for a slot that holds no value.
var ErrNotFound = errors.New("slot not found")

// LocalStore is a slot -> value table in SQLite.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
// ":memory:" gives a private in-memory database.
func NewLocalStore(path string) (*LocalStore, error) {
	if path != ":memory:" {
		// Ensure directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)

	store := &LocalStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Opened local store at %s", path)
	return store, nil
}

// initialize creates the required tables.
func (s *LocalStore) initialize() error {
	stateTable := `
	CREATE TABLE IF NOT EXISTS client_state (
		slot TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(stateTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Path returns the database location.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Get returns the value in slot, or ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, slot string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE slot = ?`, slot).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return value, nil
}

// Put writes value into slot, replacing any previous value.
func (s *LocalStore) Put(ctx context.Context, slot, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_state (slot, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		slot, value)
	if err != nil {
		return fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	logging.StoreDebug("Wrote slot %s", slot)
	return nil
}

// Delete empties slot. Deleting an empty slot is not an error.
func (s *LocalStore) Delete(ctx context.Context, slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE slot = ?`, slot); err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", slot, err)
	}
	logging.StoreDebug("Cleared slot %s", slot)
	return nil
}

// UpdatedAt returns when slot was last written.
func (s *LocalStore) UpdatedAt(ctx context.Context, slot string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM client_state WHERE slot = ?`, slot).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unexpected timestamp %q in slot %s", raw, slot)
}

// =============================================================================
// CREDENTIAL SLOT
// =============================================================================

// TokenSlot adapts one slot of a LocalStore to session.TokenStore.
type TokenSlot struct {
	store *LocalStore
	slot  string
}

// NewTokenSlot returns the credential slot named slot.
func NewTokenSlot(store *LocalStore, slot string) *TokenSlot {
	return &TokenSlot{store: store, slot: slot}
}

// LoadToken returns the persisted token, or "" when none is stored.
func (t *TokenSlot) LoadToken(ctx context.Context) (string, error) {
	token, err := t.store.Get(ctx, t.slot)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return token, err
}

// SaveToken persists token.
func (t *TokenSlot) SaveToken(ctx context.Context, token string) error {
	return t.store.Put(ctx, t.slot, token)
}

// ClearToken removes the persisted token.
func (t *TokenSlot) ClearToken(ctx context.Context) error {
	return t.store.Delete(ctx, t.slot)
}
