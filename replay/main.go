// Command replay downloads public Battlesnake games and measures how often
// the move selector agrees with the snakes that played them.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/brensch/snekstarter/config"
	"github.com/brensch/snekstarter/logging"
	"github.com/brensch/snekstarter/replay/db"
	"github.com/brensch/snekstarter/replay/discovery"
	"github.com/brensch/snekstarter/replay/downloader"
	"github.com/brensch/snekstarter/replay/evaluate"
	"github.com/brensch/snekstarter/store"
)

func main() {
	gameIDs := flag.String("game", "", "Comma-separated game ids to evaluate")
	statsURL := flag.String("stats-url", "", "Player stats page to collect game ids from")
	crawl := flag.Bool("leaderboard", false, "Crawl the public leaderboards for game ids")
	maxPlayers := flag.Int("max-players", config.EnvInt("MAX_PLAYERS", 50), "Players checked per leaderboard")
	delay := flag.Duration("delay", config.EnvDuration("DELAY", 500*time.Millisecond), "Delay between HTTP requests")
	snake := flag.String("snake", "", "Snake id or name to evaluate (default: every snake)")
	dbPath := flag.String("db", config.EnvString("REPLAY_DB", "replay.db"), "SQLite cache of downloaded games")
	outDir := flag.String("out-dir", config.EnvString("REPLAY_OUT_DIR", "data/replay"), "Directory for decision parquet batches (empty disables)")
	engineURL := flag.String("engine-url", downloader.DefaultConfig().EngineURL, "Engine websocket URL template")
	workers := flag.Int("workers", 4, "Concurrent downloads")
	limit := flag.Int("limit", 100, "Without -game/-stats-url/-leaderboard, evaluate up to this many cached games not yet evaluated")
	logFormat := flag.String("log-format", config.EnvString("LOG_FORMAT", logging.FormatText), "Log format: text, json or pretty")
	logLevel := flag.String("log-level", config.EnvString("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	logger := logging.MustNew(os.Stderr, *logFormat, *logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(*dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	ids := splitIDs(*gameIDs)
	discCfg := discovery.DefaultConfig()
	discCfg.MaxPlayers = *maxPlayers
	discCfg.RequestDelay = *delay
	if !*crawl {
		discCfg.LeaderboardURLs = nil
	}
	disc := discovery.NewWorker(discCfg, nil, logger)
	for _, id := range ids {
		disc.AddKnownID(id)
	}

	if *statsURL != "" || *crawl {
		found, err := discover(ctx, disc, *statsURL)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("discovery failed", "error", err)
		}
		logger.Info("discovered games", "count", len(found))
		ids = append(ids, found...)
	}

	if len(ids) > 0 {
		dlCfg := downloader.DefaultConfig()
		dlCfg.EngineURL = *engineURL
		dlCfg.NumWorkers = *workers
		dl := downloader.NewWorker(dlCfg, database, logger)

		ch := make(chan string, len(ids))
		for _, id := range ids {
			ch <- id
		}
		close(ch)
		dl.Run(ctx, ch)

		st := dl.GetStats()
		logger.Info("downloads finished", "downloaded", st.GamesDownloaded, "cached", st.GamesSkipped, "failed", st.GamesFailed, "frames", st.FramesTotal)
	} else {
		pending, err := database.GetUnevaluatedGames(*limit)
		if err != nil {
			logger.Error("failed to list cached games", "error", err)
			os.Exit(1)
		}
		for _, g := range pending {
			ids = append(ids, g.ID)
		}
	}

	if len(ids) == 0 {
		logger.Warn("no games to evaluate; pass -game, -stats-url or -leaderboard")
		return
	}

	total, rows := evaluateAll(ctx, database, ids, *snake, logger)

	if *outDir != "" && len(rows) > 0 {
		path, err := store.WriteBatchParquetAtomic(*outDir, rows)
		if err != nil {
			logger.Error("failed to write decisions", "error", err)
			os.Exit(1)
		}
		logger.Info("wrote decisions", "path", path, "rows", len(rows))
	}

	logger.Info("replay summary",
		"turns", total.Turns,
		"known_actual", total.KnownActual,
		"agreements", total.Agreements,
		"agreement_rate", total.AgreementRate(),
		"actual_unsafe", total.ActualUnsafe,
		"no_safe_moves", total.NoSafeMoves,
	)
}

// discover collects ids from a single stats page and, when configured, the
// leaderboards.
func discover(ctx context.Context, disc *discovery.Worker, statsURL string) ([]string, error) {
	out := make(chan string, 256)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		if statsURL != "" {
			if _, err := disc.DiscoverPlayer(ctx, statsURL, out); err != nil {
				errCh <- err
				return
			}
		}
		errCh <- disc.Discover(ctx, out)
	}()

	var ids []string
	for id := range out {
		ids = append(ids, id)
	}
	return ids, <-errCh
}

func evaluateAll(ctx context.Context, database *db.DB, ids []string, snake string, logger *slog.Logger) (evaluate.Report, []store.DecisionRow) {
	var total evaluate.Report
	var rows []store.DecisionRow
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g, err := database.GetGame(id)
		if err != nil {
			logger.Warn("game not cached", "game", id, "error", err)
			continue
		}
		frames, err := database.GetGameFrames(id)
		if err != nil {
			logger.Warn("failed to load frames", "game", id, "error", err)
			continue
		}

		reports, gameRows, err := evaluate.Game(g, frames, snake, nil)
		if err != nil {
			logger.Warn("evaluation failed", "game", id, "error", err)
			continue
		}
		for _, r := range reports {
			logger.Info("evaluated",
				"game", r.GameID,
				"snake", r.Snake,
				"turns", r.Turns,
				"agreement_rate", r.AgreementRate(),
				"actual_unsafe", r.ActualUnsafe,
				"no_safe_moves", r.NoSafeMoves,
			)
			total.Add(r)
		}
		rows = append(rows, gameRows...)

		if err := database.MarkGameEvaluated(id); err != nil {
			logger.Warn("failed to mark game evaluated", "game", id, "error", err)
		}
	}
	return total, rows
}

func splitIDs(s string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		id := strings.TrimSpace(part)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
