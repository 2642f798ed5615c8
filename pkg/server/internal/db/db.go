package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// PlayerStats represents a player's lifetime counters across every game
// served by this database.
type PlayerStats struct {
	PlayerID   string
	Flips      int64
	Matches    int64
	Mismatches int64
	Sessions   int64
	FirstSeen  string
	LastSeen   string
}

// DB represents the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			flips INTEGER NOT NULL DEFAULT 0,
			matches INTEGER NOT NULL DEFAULT 0,
			mismatches INTEGER NOT NULL DEFAULT 0,
			sessions INTEGER NOT NULL DEFAULT 0,
			first_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rows INTEGER NOT NULL,
			cols INTEGER NOT NULL,
			board_file TEXT,
			started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			finished_at TIMESTAMP
		)
	`)
	return err
}

// ensurePlayer inserts the player row if it is missing and stamps last_seen.
func (d *DB) ensurePlayer(playerID string) error {
	_, err := d.Exec(`
		INSERT INTO players (id) VALUES (?)
		ON CONFLICT(id) DO UPDATE SET last_seen = CURRENT_TIMESTAMP
	`, playerID)
	return err
}

// RecordSession counts one connection by the player.
func (d *DB) RecordSession(playerID string) error {
	if err := d.ensurePlayer(playerID); err != nil {
		return err
	}
	_, err := d.Exec(`UPDATE players SET sessions = sessions + 1 WHERE id = ?`, playerID)
	return err
}

// RecordFlip counts one completed flip by the player.
func (d *DB) RecordFlip(playerID string) error {
	if err := d.ensurePlayer(playerID); err != nil {
		return err
	}
	_, err := d.Exec(`UPDATE players SET flips = flips + 1 WHERE id = ?`, playerID)
	return err
}

// RecordMoveOutcome counts one finished move: a match or a mismatch.
func (d *DB) RecordMoveOutcome(playerID string, matched bool) error {
	if err := d.ensurePlayer(playerID); err != nil {
		return err
	}
	col := "mismatches"
	if matched {
		col = "matches"
	}
	_, err := d.Exec(fmt.Sprintf(`UPDATE players SET %s = %s + 1 WHERE id = ?`, col, col), playerID)
	return err
}

// GetPlayerStats returns the player's lifetime counters. A player that was
// never seen gets zeroed stats, not an error.
func (d *DB) GetPlayerStats(playerID string) (*PlayerStats, error) {
	stats := &PlayerStats{PlayerID: playerID}
	err := d.QueryRow(`
		SELECT flips, matches, mismatches, sessions, first_seen, last_seen
		FROM players WHERE id = ?
	`, playerID).Scan(&stats.Flips, &stats.Matches, &stats.Mismatches,
		&stats.Sessions, &stats.FirstSeen, &stats.LastSeen)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// StartGame records a new served board and returns its row id.
func (d *DB) StartGame(rows, cols int, boardFile string) (int64, error) {
	res, err := d.Exec(`
		INSERT INTO games (rows, cols, board_file) VALUES (?, ?, ?)
	`, rows, cols, boardFile)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishGame stamps the game's finish time.
func (d *DB) FinishGame(gameID int64) error {
	_, err := d.Exec(`UPDATE games SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), gameID)
	return err
}
