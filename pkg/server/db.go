package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vctt94/memoryscramble/pkg/server/internal/db"
)

// Database defines the interface for database operations. Only lifetime
// player counters and game summaries are persisted; board state itself
// never is, a restarted server always deals a fresh board.
type Database interface {
	// RecordSession counts one connection by the player
	RecordSession(playerID string) error
	// RecordFlip counts one completed flip by the player
	RecordFlip(playerID string) error
	// RecordMoveOutcome counts one finished move: a match or a mismatch
	RecordMoveOutcome(playerID string, matched bool) error
	// GetPlayerStats returns the player's lifetime counters
	GetPlayerStats(playerID string) (*db.PlayerStats, error)

	// Game summaries
	StartGame(rows, cols int, boardFile string) (int64, error)
	FinishGame(gameID int64) error

	// Close closes the database connection
	Close() error
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (Database, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	return db.NewDB(dbPath)
}
