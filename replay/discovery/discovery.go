// Package discovery finds game ids by scraping public Battlesnake pages.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "snekstarter-replay/1.0"

// Config holds discovery worker configuration
type Config struct {
	LeaderboardURLs []string      // leaderboards to crawl for player stats pages
	RequestDelay    time.Duration // delay between HTTP requests to be polite
	MaxPlayers      int           // players checked per leaderboard (0 = unlimited)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		LeaderboardURLs: []string{
			"https://play.battlesnake.com/leaderboard/standard",
			"https://play.battlesnake.com/leaderboard/standard-duels",
		},
		RequestDelay: 500 * time.Millisecond,
		MaxPlayers:   50,
	}
}

// Player is one entry on a leaderboard.
type Player struct {
	Username string
	StatsURL string
}

var (
	gameIDRe = regexp.MustCompile(`/game/([a-f0-9-]+)`)
	playerRe = regexp.MustCompile(`/leaderboard/[^/]+/([^/]+)/stats`)
)

// Worker discovers game IDs and remembers which it has already reported.
type Worker struct {
	config   Config
	client   *http.Client
	logger   *slog.Logger
	knownIDs map[string]bool
	knownMu  sync.RWMutex
}

// NewWorker creates a new discovery worker. existingIDs are never reported.
func NewWorker(config Config, existingIDs map[string]bool, logger *slog.Logger) *Worker {
	if existingIDs == nil {
		existingIDs = make(map[string]bool)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		config:   config,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With("component", "discovery"),
		knownIDs: existingIDs,
	}
}

// Discover crawls every configured leaderboard and sends unseen game ids to
// out. It returns early with ctx.Err() when cancelled.
func (w *Worker) Discover(ctx context.Context, out chan<- string) error {
	total := 0
	for _, leaderboardURL := range w.config.LeaderboardURLs {
		players, err := w.LeaderboardPlayers(ctx, leaderboardURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("leaderboard failed", "url", leaderboardURL, "error", err)
			continue
		}
		if w.config.MaxPlayers > 0 && len(players) > w.config.MaxPlayers {
			players = players[:w.config.MaxPlayers]
		}
		w.logger.Info("crawling leaderboard", "url", leaderboardURL, "players", len(players))

		for i, player := range players {
			w.logger.Debug("checking player", "n", i+1, "of", len(players), "player", player.Username)
			n, err := w.DiscoverPlayer(ctx, player.StatsURL, out)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn("player games failed", "player", player.Username, "error", err)
			}
			total += n

			if err := sleepCtx(ctx, w.config.RequestDelay); err != nil {
				return err
			}
		}
	}
	w.logger.Info("discovery complete", "new_games", total)
	return nil
}

// DiscoverPlayer sends the unseen game ids linked from one stats page and
// returns how many it sent.
func (w *Worker) DiscoverPlayer(ctx context.Context, statsURL string, out chan<- string) (int, error) {
	ids, err := w.PlayerGames(ctx, statsURL)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, id := range ids {
		if !w.markKnown(id) {
			continue
		}
		select {
		case out <- id:
			sent++
		case <-ctx.Done():
			return sent, ctx.Err()
		}
	}
	return sent, nil
}

// LeaderboardPlayers returns the players linked from a leaderboard page, in
// page order.
func (w *Worker) LeaderboardPlayers(ctx context.Context, leaderboardURL string) ([]Player, error) {
	doc, base, err := w.fetch(ctx, leaderboardURL)
	if err != nil {
		return nil, err
	}

	var players []Player
	seen := make(map[string]bool)
	doc.Find("a[href*='/leaderboard/']").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := playerRe.FindStringSubmatch(href)
		if len(m) < 2 || seen[m[1]] {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		seen[m[1]] = true
		players = append(players, Player{Username: m[1], StatsURL: base.ResolveReference(ref).String()})
	})
	return players, nil
}

// PlayerGames returns the game ids linked from a stats page, in page order.
func (w *Worker) PlayerGames(ctx context.Context, statsURL string) ([]string, error) {
	doc, _, err := w.fetch(ctx, statsURL)
	if err != nil {
		return nil, err
	}

	var gameIDs []string
	seen := make(map[string]bool)
	doc.Find("a[href*='/game/']").Each(func(i int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := gameIDRe.FindStringSubmatch(href)
		if len(m) >= 2 && !seen[m[1]] {
			seen[m[1]] = true
			gameIDs = append(gameIDs, m[1])
		}
	})
	return gameIDs, nil
}

// AddKnownID adds a game ID to the known set (used for deduplication)
func (w *Worker) AddKnownID(gameID string) {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	w.knownIDs[gameID] = true
}

// markKnown records id and reports whether it was new.
func (w *Worker) markKnown(id string) bool {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	if w.knownIDs[id] {
		return false
	}
	w.knownIDs[id] = true
	return true
}

func (w *Worker) fetch(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s: unexpected status code %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, base, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
