// Command arena plays the selector against itself on a local rules engine and
// records every decision to parquet.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brensch/snekstarter/arena/selfplay"
	"github.com/brensch/snekstarter/config"
	"github.com/brensch/snekstarter/logging"
	"github.com/brensch/snekstarter/store"
	tea "github.com/charmbracelet/bubbletea"
)

var totalMoves atomic.Int64
var totalGames atomic.Int64

func main() {
	outDir := flag.String("out-dir", config.EnvString("ARENA_OUT_DIR", "data/arena"), "Output directory for decision parquet batches")
	workers := flag.Int("workers", config.EnvInt("ARENA_WORKERS", 8), "Number of self-play workers")
	games := flag.Int64("games", 0, "If > 0, stop after this many games (across all workers)")
	width := flag.Int("width", 11, "Board width")
	height := flag.Int("height", 11, "Board height")
	snakes := flag.Int("snakes", 4, "Snakes per game")
	maxTurns := flag.Int("max-turns", 1000, "Cut a game off after this many turns (0 = no limit)")
	gamesPerFlush := flag.Int("games-per-flush", 50, "Number of games to buffer per parquet flush")
	useTUI := flag.Bool("tui", config.EnvBool("ARENA_TUI", true), "Show the terminal UI instead of periodic log lines")
	logFile := flag.String("log-file", "", "With -tui, write logs to this file (default: discard)")
	logFormat := flag.String("log-format", config.EnvString("LOG_FORMAT", logging.FormatText), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", config.EnvString("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	var logOut io.Writer = os.Stderr
	if *useTUI {
		// Log lines would tear the TUI.
		logOut = io.Discard
		if *logFile != "" {
			f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
			if err != nil {
				slog.Error("error opening log file", "path", *logFile, "error", err)
				os.Exit(1)
			}
			defer f.Close()
			logOut = f
		}
	}
	logger := logging.MustNew(logOut, *logFormat, *logLevel)

	cfg := selfplay.DefaultConfig()
	cfg.Width = int32(*width)
	cfg.Height = int32(*height)
	cfg.Snakes = *snakes
	cfg.MaxTurns = *maxTurns

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	logger.Info("starting arena", "workers", *workers, "snakes", cfg.Snakes, "board", *width, "out_dir", *outDir)

	updates := make(chan GameUpdate, *workers)
	writeReqs := make(chan []store.DecisionRow, (*workers)*4)

	writerDone := make(chan struct{})
	go func() {
		parquetWriterLoop(*outDir, *gamesPerFlush, writeReqs, logger)
		close(writerDone)
	}()

	var started atomic.Int64
	var workerWG sync.WaitGroup
	for i := 0; i < *workers; i++ {
		workerWG.Add(1)
		go func(workerID int) {
			defer workerWG.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)*1000003))
			for ctx.Err() == nil {
				if *games > 0 && started.Add(1) > *games {
					return
				}
				rows, result, err := selfplay.PlayGame(ctx, cfg, rng)
				if err != nil {
					if ctx.Err() == nil {
						logger.Error("game aborted", "worker", workerID, "error", err)
						cancel()
					}
					return
				}
				totalMoves.Add(int64(len(rows)))
				totalGames.Add(1)

				writeReqs <- rows
				updates <- GameUpdate{WorkerID: workerID, Result: result, Rows: len(rows)}
			}
		}(i)
	}

	allDone := make(chan struct{})
	go func() {
		workerWG.Wait()
		close(writeReqs)
		<-writerDone
		close(updates)
		close(allDone)
	}()

	if *useTUI {
		p := tea.NewProgram(initialModel(updates), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			logger.Error("tui", "error", err)
		}
		// Quitting the TUI stops the workers after their current game.
		cancel()
		go drain(updates)
		<-allDone
		logger.Info("shutdown complete", "games", totalGames.Load())
		return
	}

	runLogLoop(ctx, updates, logger)
	<-allDone
	logger.Info("shutdown complete", "games", totalGames.Load())
}

// runLogLoop reports progress as log lines until updates is closed.
func runLogLoop(ctx context.Context, updates <-chan GameUpdate, logger *slog.Logger) {
	startTime := time.Now()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested; waiting for workers to finish current games")
			drain(updates)
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			logger.Info("game finished",
				"worker", update.WorkerID,
				"game", update.Result.GameID,
				"winner", update.Result.WinnerID,
				"turns", update.Result.Turns,
				"rows", update.Rows,
				"boxed_in", update.Result.NoSafeMoves,
			)
		case <-ticker.C:
			duration := time.Since(startTime)
			logger.Info("stats",
				"games", totalGames.Load(),
				"moves_per_sec", float64(totalMoves.Load())/duration.Seconds(),
				"games_per_sec", float64(totalGames.Load())/duration.Seconds(),
			)
		}
	}
}

func drain(updates <-chan GameUpdate) {
	for range updates {
	}
}

// parquetWriterLoop buffers whole games and writes a batch every
// gamesPerFlush games, plus a final batch when in is closed.
func parquetWriterLoop(outDir string, gamesPerFlush int, in <-chan []store.DecisionRow, logger *slog.Logger) {
	if gamesPerFlush <= 0 {
		gamesPerFlush = 50
	}

	pendingRows := make([]store.DecisionRow, 0, 256*gamesPerFlush)
	pendingGames := 0

	flush := func(final bool) {
		outPath, err := store.WriteBatchParquetAtomic(outDir, pendingRows)
		if err != nil {
			logger.Error("parquet flush failed", "games", pendingGames, "rows", len(pendingRows), "final", final, "error", err)
		} else {
			logger.Info("parquet flush ok", "path", outPath, "games", pendingGames, "rows", len(pendingRows), "final", final)
		}
		pendingRows = pendingRows[:0]
		pendingGames = 0
	}

	for rows := range in {
		if len(rows) == 0 {
			continue
		}
		pendingRows = append(pendingRows, rows...)
		pendingGames++
		if pendingGames >= gamesPerFlush {
			flush(false)
		}
	}

	if pendingGames > 0 {
		flush(true)
	}
}
