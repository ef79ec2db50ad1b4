package selfplay

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/store"
)

func TestPlayGame_Completes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Snakes = 2
	cfg.MaxTurns = 500

	for seed := int64(1); seed <= 20; seed++ {
		rows, res, err := PlayGame(context.Background(), cfg, rand.New(rand.NewSource(seed)))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if res.Turns <= 0 || len(rows) == 0 {
			t.Fatalf("seed %d: turns=%d rows=%d", seed, res.Turns, len(rows))
		}
		if res.Turns > cfg.MaxTurns {
			t.Fatalf("seed %d: %d turns exceeds max %d", seed, res.Turns, cfg.MaxTurns)
		}
		if res.TimedOut && res.WinnerID != "" {
			t.Fatalf("seed %d: timed out game has winner %q", seed, res.WinnerID)
		}

		fallbacks := 0
		for _, row := range rows {
			if row.Source != store.SourceArena || row.GameID != res.GameID {
				t.Fatalf("seed %d: row identity %+v", seed, row)
			}
			if _, err := game.ParseMove(row.Move); err != nil {
				t.Fatalf("seed %d: bad move %q", seed, row.Move)
			}
			if row.Fallback {
				fallbacks++
				if row.SafeCount != 0 {
					t.Fatalf("seed %d: fallback with %d safe moves", seed, row.SafeCount)
				}
				continue
			}
			m, _ := game.ParseMove(row.Move)
			if row.SafeMask&(1<<uint(m)) == 0 {
				t.Fatalf("seed %d turn %d: chose %s outside safe mask %04b", seed, row.Turn, row.Move, row.SafeMask)
			}
		}
		if fallbacks != res.NoSafeMoves {
			t.Fatalf("seed %d: %d fallback rows, result says %d", seed, fallbacks, res.NoSafeMoves)
		}
	}
}

func TestPlayGame_RowsPerSnakePerTurn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Snakes = 1
	cfg.MaxTurns = 5

	rows, res, err := PlayGame(context.Background(), cfg, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("PlayGame: %v", err)
	}
	// A lone snake at a start point cannot die within five turns.
	if !res.TimedOut || res.Turns != 5 || len(rows) != 5 {
		t.Fatalf("res=%+v rows=%d", res, len(rows))
	}
	for i, row := range rows {
		if int(row.Turn) != i || row.YouID != "snake_0" {
			t.Fatalf("row %d: turn=%d you=%s", i, row.Turn, row.YouID)
		}
	}
}

func TestPlayGame_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := PlayGame(ctx, DefaultConfig(), rand.New(rand.NewSource(1)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}

func TestPlayGame_BadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Snakes = 0
	if _, _, err := PlayGame(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for zero snakes")
	}
	cfg = DefaultConfig()
	cfg.Width = 5
	if _, _, err := PlayGame(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for small board")
	}
}
