// Package selfplay runs local games where every snake is driven by the
// rule-based selector.
package selfplay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/logic"
	"github.com/brensch/snekstarter/rules"
	"github.com/brensch/snekstarter/store"
)

// Config describes one arena game.
type Config struct {
	Width    int32
	Height   int32
	Snakes   int
	MaxTurns int // 0 means no limit
	Food     rules.FoodSettings

	// Fallback is sent for a snake with no safe move.
	Fallback game.Move
}

// DefaultConfig is a standard 11x11 game with four snakes.
func DefaultConfig() Config {
	return Config{
		Width:    11,
		Height:   11,
		Snakes:   4,
		MaxTurns: 1000,
		Food:     rules.DefaultFoodSettings,
		Fallback: game.MoveUp,
	}
}

// GameResult summarises one finished arena game.
type GameResult struct {
	GameID      string
	WinnerID    string // "" for a draw or a game cut off at MaxTurns
	Turns       int
	NoSafeMoves int
	TimedOut    bool
}

// PlayGame plays a single game to completion and returns one decision row
// per snake per turn. It returns ctx.Err() if cancelled mid-game; the rows
// recorded so far are returned alongside.
func PlayGame(ctx context.Context, cfg Config, rng *rand.Rand) ([]store.DecisionRow, GameResult, error) {
	if cfg.Snakes <= 0 {
		return nil, GameResult{}, fmt.Errorf("need at least one snake, got %d", cfg.Snakes)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if !cfg.Fallback.Valid() {
		cfg.Fallback = game.MoveUp
	}

	ids := make([]string, cfg.Snakes)
	for i := range ids {
		ids[i] = fmt.Sprintf("snake_%d", i)
	}
	state, err := rules.StandardStart(cfg.Width, cfg.Height, ids, rng)
	if err != nil {
		return nil, GameResult{}, fmt.Errorf("start: %w", err)
	}

	result := GameResult{GameID: fmt.Sprintf("arena_%d_%d", time.Now().UnixNano(), rng.Int63())}
	rows := make([]store.DecisionRow, 0, 256)

	for !rules.IsGameOver(state, cfg.Snakes) {
		if err := ctx.Err(); err != nil {
			result.Turns = int(state.Turn)
			return rows, result, err
		}
		if cfg.MaxTurns > 0 && int(state.Turn) >= cfg.MaxTurns {
			result.TimedOut = true
			break
		}

		moves := make(map[string]game.Move, len(state.Snakes))
		for _, snake := range state.Snakes {
			view := state.Clone()
			view.YouId = snake.Id

			start := time.Now()
			decision, err := logic.Decide(view, snake, rng)
			move := decision.Move
			fallback := false
			if err != nil {
				if !errors.Is(err, logic.ErrNoSafeMove) {
					return rows, result, fmt.Errorf("turn %d snake %s: %w", state.Turn, snake.Id, err)
				}
				move = cfg.Fallback
				fallback = true
				result.NoSafeMoves++
			}
			moves[snake.Id] = move

			row := store.NewDecisionRow(store.SourceArena, result.GameID, view, move, decision.Candidates)
			row.Fallback = fallback
			row.ElapsedUs = time.Since(start).Microseconds()
			rows = append(rows, row)
		}

		state = rules.NextStateSimultaneous(state, moves, rng, cfg.Food)
	}

	result.Turns = int(state.Turn)
	if !result.TimedOut {
		result.WinnerID = rules.Winner(state)
	}
	return rows, result, nil
}
