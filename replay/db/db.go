// Package db caches downloaded games in SQLite so replays do not hit the
// engine twice.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrGameNotFound is returned by GetGame for an unknown id.
var ErrGameNotFound = errors.New("game not found")

// DB wraps the SQLite connection with thread-safe operations
type DB struct {
	conn *sql.DB
	mu   sync.Mutex
}

// Game represents a downloaded game record
type Game struct {
	ID          string
	Winner      string
	Ruleset     string
	Width       int
	Height      int
	CrawledAt   time.Time
	IsEvaluated bool
}

// Frame represents a single turn of game data
type Frame struct {
	GameID  string
	Turn    int
	RawJSON string
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1) // SQLite only supports one writer
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS games (
		id TEXT PRIMARY KEY,
		winner TEXT,                   -- name of the winning snake, "draw" or "unknown"
		ruleset TEXT,
		width INTEGER,
		height INTEGER,
		crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		is_evaluated BOOLEAN DEFAULT 0
	);

	-- Raw frame events, one per turn
	CREATE TABLE IF NOT EXISTS frames (
		game_id TEXT,
		turn INTEGER,
		raw_json TEXT,
		PRIMARY KEY (game_id, turn),
		FOREIGN KEY(game_id) REFERENCES games(id)
	);

	CREATE INDEX IF NOT EXISTS idx_games_is_evaluated ON games(is_evaluated);
	CREATE INDEX IF NOT EXISTS idx_frames_game_id ON frames(game_id);
	`

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GameExists checks if a game has already been downloaded
func (db *DB) GameExists(gameID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var exists int
	err := db.conn.QueryRow("SELECT 1 FROM games WHERE id = ?", gameID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// InsertGame inserts a game and all its frames in a single transaction
func (db *DB) InsertGame(game Game, frames []Frame) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR IGNORE INTO games (id, winner, ruleset, width, height) VALUES (?, ?, ?, ?, ?)",
		game.ID, game.Winner, game.Ruleset, game.Width, game.Height,
	)
	if err != nil {
		return fmt.Errorf("failed to insert game: %w", err)
	}

	stmt, err := tx.Prepare("INSERT OR IGNORE INTO frames (game_id, turn, raw_json) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare frame statement: %w", err)
	}
	defer stmt.Close()

	for _, frame := range frames {
		if _, err := stmt.Exec(frame.GameID, frame.Turn, frame.RawJSON); err != nil {
			return fmt.Errorf("failed to insert frame %d: %w", frame.Turn, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGame returns a single game record.
func (db *DB) GetGame(gameID string) (Game, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var g Game
	err := db.conn.QueryRow(
		"SELECT id, winner, ruleset, width, height, crawled_at, is_evaluated FROM games WHERE id = ?",
		gameID,
	).Scan(&g.ID, &g.Winner, &g.Ruleset, &g.Width, &g.Height, &g.CrawledAt, &g.IsEvaluated)
	if errors.Is(err, sql.ErrNoRows) {
		return Game{}, fmt.Errorf("%s: %w", gameID, ErrGameNotFound)
	}
	if err != nil {
		return Game{}, err
	}
	return g, nil
}

// GetUnevaluatedGames returns cached games the evaluator has not run on yet.
func (db *DB) GetUnevaluatedGames(limit int) ([]Game, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		"SELECT id, winner, ruleset, width, height, crawled_at, is_evaluated FROM games WHERE is_evaluated = 0 ORDER BY crawled_at LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Winner, &g.Ruleset, &g.Width, &g.Height, &g.CrawledAt, &g.IsEvaluated); err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// GetGameFrames returns all frames for a specific game
func (db *DB) GetGameFrames(gameID string) ([]Frame, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(
		"SELECT game_id, turn, raw_json FROM frames WHERE game_id = ? ORDER BY turn",
		gameID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []Frame
	for rows.Next() {
		var f Frame
		if err := rows.Scan(&f.GameID, &f.Turn, &f.RawJSON); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// MarkGameEvaluated flags a game so later runs without -game skip it.
func (db *DB) MarkGameEvaluated(gameID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec("UPDATE games SET is_evaluated = 1 WHERE id = ?", gameID)
	return err
}

// Stats returns statistics about the database
func (db *DB) Stats() (totalGames, evaluatedGames, totalFrames int64, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	err = db.conn.QueryRow("SELECT COUNT(*) FROM games").Scan(&totalGames)
	if err != nil {
		return
	}
	err = db.conn.QueryRow("SELECT COUNT(*) FROM games WHERE is_evaluated = 1").Scan(&evaluatedGames)
	if err != nil {
		return
	}
	err = db.conn.QueryRow("SELECT COUNT(*) FROM frames").Scan(&totalFrames)
	return
}

// GetAllGameIDs returns all game IDs in the database
func (db *DB) GetAllGameIDs() (map[string]bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query("SELECT id FROM games")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}
