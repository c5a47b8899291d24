// Package ledger provides persistent storage for transaction acknowledgments
// using SQLite so purchase retries never re-acknowledge across restarts.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Store records which transactions have been acknowledged to the gateway.
type Store struct {
	db *sql.DB
}

// Open creates or opens the acknowledgment ledger under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "acks.db")

	// WAL mode for concurrent readers; SQLite works best with a single writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("Acknowledgment ledger opened")
	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS acknowledgments (
			transaction_id TEXT PRIMARY KEY,
			acknowledged_at INTEGER NOT NULL
		)
	`)
	return err
}

// Acknowledged reports whether the transaction was already acknowledged.
func (s *Store) Acknowledged(ctx context.Context, transactionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM acknowledgments WHERE transaction_id = ?`, transactionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query acknowledgment %s: %w", transactionID, err)
	}
	return true, nil
}

// MarkAcknowledged records an acknowledgment. Re-marking the same
// transaction is a no-op.
func (s *Store) MarkAcknowledged(ctx context.Context, transactionID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO acknowledgments (transaction_id, acknowledged_at) VALUES (?, ?)
		 ON CONFLICT(transaction_id) DO NOTHING`,
		transactionID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record acknowledgment %s: %w", transactionID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Memory is an in-process ledger for tests and for deployments without a
// data directory. Acknowledgments do not survive a restart.
type Memory struct {
	mu    sync.Mutex
	acked map[string]struct{}
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{acked: make(map[string]struct{})}
}

// Acknowledged reports whether the transaction was marked in this process.
func (m *Memory) Acknowledged(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.acked[transactionID]
	return ok, nil
}

// MarkAcknowledged marks the transaction. Idempotent.
func (m *Memory) MarkAcknowledged(_ context.Context, transactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked[transactionID] = struct{}{}
	return nil
}
