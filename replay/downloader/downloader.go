// Package downloader streams finished games from the Battlesnake engine
// websocket and caches them in the replay database.
package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/snekstarter/replay/db"
	"github.com/gorilla/websocket"
)

// Config holds downloader configuration
type Config struct {
	NumWorkers     int
	EngineURL      string // WebSocket URL template, %s is the game id
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		NumWorkers:     4,
		EngineURL:      "wss://engine.battlesnake.com/games/%s/events",
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
	}
}

// Stats holds download statistics
type Stats struct {
	GamesDownloaded int64
	GamesSkipped    int64
	GamesFailed     int64
	FramesTotal     int64
}

// Worker manages a pool of game downloaders
type Worker struct {
	config Config
	db     *db.DB
	logger *slog.Logger
	stats  Stats
}

// NewWorker creates a new download worker pool
func NewWorker(config Config, database *db.DB, logger *slog.Logger) *Worker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		config: config,
		db:     database,
		logger: logger.With("component", "downloader"),
	}
}

// Run downloads every id from gameIDs that is not cached yet and returns
// once gameIDs is closed and all downloads have finished.
func (w *Worker) Run(ctx context.Context, gameIDs <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < w.config.NumWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.worker(ctx, workerID, gameIDs)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) worker(ctx context.Context, id int, gameIDs <-chan string) {
	for gameID := range gameIDs {
		if ctx.Err() != nil {
			return
		}
		if err := w.Ensure(ctx, gameID); err != nil {
			w.logger.Warn("download failed", "worker", id, "game", gameID, "error", err)
		}
	}
}

// Ensure makes sure gameID is in the database, downloading it if needed.
func (w *Worker) Ensure(ctx context.Context, gameID string) error {
	exists, err := w.db.GameExists(gameID)
	if err != nil {
		atomic.AddInt64(&w.stats.GamesFailed, 1)
		return fmt.Errorf("check cache: %w", err)
	}
	if exists {
		atomic.AddInt64(&w.stats.GamesSkipped, 1)
		return nil
	}

	game, frames, err := w.DownloadGame(ctx, gameID)
	if err != nil {
		atomic.AddInt64(&w.stats.GamesFailed, 1)
		return err
	}
	if err := w.db.InsertGame(game, frames); err != nil {
		atomic.AddInt64(&w.stats.GamesFailed, 1)
		return fmt.Errorf("store: %w", err)
	}

	atomic.AddInt64(&w.stats.GamesDownloaded, 1)
	atomic.AddInt64(&w.stats.FramesTotal, int64(len(frames)))
	w.logger.Info("downloaded game", "game", gameID, "frames", len(frames), "winner", game.Winner)
	return nil
}

// GameEvent represents an event from the WebSocket stream
type GameEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// GameInfo from the "game_info" event
type GameInfo struct {
	Game    GameDetails `json:"game"`
	Ruleset RulesetInfo `json:"ruleset"`
}

type GameDetails struct {
	ID      string      `json:"id"`
	Width   int         `json:"width"`
	Height  int         `json:"height"`
	Timeout int         `json:"timeout"`
	Ruleset RulesetInfo `json:"ruleset"`
}

type RulesetInfo struct {
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	Settings json.RawMessage `json:"settings"`
}

// FrameData from "frame" events
type FrameData struct {
	Turn   int         `json:"turn"`
	Snakes []SnakeData `json:"snakes"`
	Food   []Coord     `json:"food"`
	Board  BoardData   `json:"board,omitempty"`
}

type SnakeData struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Health int     `json:"health"`
	Body   []Coord `json:"body"`
	Author string  `json:"author,omitempty"`
	Death  *Death  `json:"death,omitempty"`
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type BoardData struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Death struct {
	Cause string `json:"cause"`
	Turn  int    `json:"turn"`
}

// ParseFrame decodes a cached frame.
func ParseFrame(raw string) (FrameData, error) {
	var f FrameData
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return FrameData{}, fmt.Errorf("parse frame: %w", err)
	}
	return f, nil
}

// DownloadGame connects to the game WebSocket and collects every frame
// until the stream ends.
func (w *Worker) DownloadGame(ctx context.Context, gameID string) (db.Game, []db.Frame, error) {
	url := fmt.Sprintf(w.config.EngineURL, gameID)

	dialer := websocket.Dialer{HandshakeTimeout: w.config.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return db.Game{}, nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var frames []db.Frame
	var gameInfo GameInfo
	var lastFrame *FrameData

read:
	for {
		if w.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return db.Game{}, nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			// A truncated stream still yields usable turns.
			if len(frames) > 0 {
				break
			}
			return db.Game{}, nil, fmt.Errorf("read error: %w", err)
		}

		var event GameEvent
		if err := json.Unmarshal(message, &event); err != nil {
			w.logger.Debug("failed to parse event", "game", gameID, "error", err)
			continue
		}

		switch event.Type {
		case "game_info":
			if err := json.Unmarshal(event.Data, &gameInfo); err != nil {
				w.logger.Debug("failed to parse game_info", "game", gameID, "error", err)
			}

		case "frame":
			var frameData FrameData
			if err := json.Unmarshal(event.Data, &frameData); err != nil {
				w.logger.Debug("failed to parse frame", "game", gameID, "error", err)
				continue
			}
			frames = append(frames, db.Frame{
				GameID:  gameID,
				Turn:    frameData.Turn,
				RawJSON: string(event.Data),
			})
			lastFrame = &frameData

		case "game_end":
			break read
		}
	}

	if len(frames) == 0 {
		return db.Game{}, nil, fmt.Errorf("game %s: no frames received", gameID)
	}

	ruleset := gameInfo.Ruleset.Name
	if ruleset == "" {
		ruleset = gameInfo.Game.Ruleset.Name
	}
	width, height := gameInfo.Game.Width, gameInfo.Game.Height
	if width == 0 || height == 0 {
		width, height = lastFrame.Board.Width, lastFrame.Board.Height
	}

	game := db.Game{
		ID:      gameID,
		Winner:  determineWinner(lastFrame),
		Ruleset: ruleset,
		Width:   width,
		Height:  height,
	}
	return game, frames, nil
}

// determineWinner analyzes the final frame to find the winner
func determineWinner(frame *FrameData) string {
	if frame == nil {
		return "unknown"
	}

	var alive []SnakeData
	for _, snake := range frame.Snakes {
		if snake.Death == nil && snake.Health > 0 {
			alive = append(alive, snake)
		}
	}
	if len(alive) == 1 {
		return alive[0].Name
	}
	// Nobody left, or several alive at a turn limit.
	return "draw"
}

// GetStats returns current statistics
func (w *Worker) GetStats() Stats {
	return Stats{
		GamesDownloaded: atomic.LoadInt64(&w.stats.GamesDownloaded),
		GamesSkipped:    atomic.LoadInt64(&w.stats.GamesSkipped),
		GamesFailed:     atomic.LoadInt64(&w.stats.GamesFailed),
		FramesTotal:     atomic.LoadInt64(&w.stats.FramesTotal),
	}
}
