// Package evaluate replays recorded games through the move selector and
// compares its choices with what the snakes actually did.
package evaluate

import (
	"errors"
	"fmt"
	"time"

	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/logic"
	"github.com/brensch/snekstarter/replay/db"
	"github.com/brensch/snekstarter/replay/downloader"
	"github.com/brensch/snekstarter/store"
)

// ErrSnakeNotFound is returned when the requested snake is in no frame.
var ErrSnakeNotFound = errors.New("snake not found in game")

// Report summarises one snake's turns in one game.
type Report struct {
	GameID string
	Snake  string // snake id

	Turns        int // turns the selector was asked about
	KnownActual  int // turns where the actual move could be inferred
	Agreements   int // selector picked the actual move
	ActualUnsafe int // actual move was one the selector ruled out
	NoSafeMoves  int
}

// AgreementRate is Agreements over KnownActual, or 0 when nothing is known.
func (r Report) AgreementRate() float64 {
	if r.KnownActual == 0 {
		return 0
	}
	return float64(r.Agreements) / float64(r.KnownActual)
}

// Add folds o into r.
func (r *Report) Add(o Report) {
	r.Turns += o.Turns
	r.KnownActual += o.KnownActual
	r.Agreements += o.Agreements
	r.ActualUnsafe += o.ActualUnsafe
	r.NoSafeMoves += o.NoSafeMoves
}

// Game evaluates the selector for one snake in a cached game. snake matches a
// snake id or name; an empty snake evaluates every snake in the game and
// returns one report each.
func Game(g db.Game, frames []db.Frame, snake string, rng logic.Rand) ([]Report, []store.DecisionRow, error) {
	if len(frames) == 0 {
		return nil, nil, fmt.Errorf("game %s: no frames", g.ID)
	}
	parsed := make([]downloader.FrameData, len(frames))
	for i, f := range frames {
		fd, err := downloader.ParseFrame(f.RawJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("game %s turn %d: %w", g.ID, f.Turn, err)
		}
		parsed[i] = fd
	}

	width, height := int32(g.Width), int32(g.Height)
	if width <= 0 || height <= 0 {
		width, height = int32(parsed[0].Board.Width), int32(parsed[0].Board.Height)
	}
	if width <= 0 || height <= 0 {
		return nil, nil, fmt.Errorf("game %s: board size unknown: %w", g.ID, game.ErrInvalidState)
	}

	ids := targetIDs(parsed, snake)
	if len(ids) == 0 {
		return nil, nil, fmt.Errorf("game %s: %q: %w", g.ID, snake, ErrSnakeNotFound)
	}

	var reports []Report
	var rows []store.DecisionRow
	for _, id := range ids {
		rep, r := evaluateSnake(g.ID, width, height, parsed, id, rng)
		reports = append(reports, rep)
		rows = append(rows, r...)
	}
	return reports, rows, nil
}

func targetIDs(frames []downloader.FrameData, snake string) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, f := range frames {
		for _, s := range f.Snakes {
			if seen[s.ID] {
				continue
			}
			if snake == "" || s.ID == snake || s.Name == snake {
				seen[s.ID] = true
				ids = append(ids, s.ID)
			}
		}
	}
	return ids
}

func evaluateSnake(gameID string, width, height int32, frames []downloader.FrameData, id string, rng logic.Rand) (Report, []store.DecisionRow) {
	rep := Report{GameID: gameID, Snake: id}
	var rows []store.DecisionRow

	for i, f := range frames {
		state := FrameState(f, width, height, id)
		you, ok := state.You()
		if !ok || len(you.Body) == 0 {
			continue
		}

		start := time.Now()
		decision, err := logic.Decide(state, you, rng)
		elapsed := time.Since(start)
		rep.Turns++

		row := store.NewDecisionRow(store.SourceReplay, gameID, state, decision.Move, decision.Candidates)
		row.ElapsedUs = elapsed.Microseconds()
		if err != nil {
			rep.NoSafeMoves++
			row.Fallback = true
			row.Move = ""
		}

		if i+1 < len(frames) {
			if actual, ok := actualMove(you, frames[i+1], id); ok {
				row.ActualMove = actual.String()
				rep.KnownActual++
				if err == nil && decision.Move == actual {
					rep.Agreements++
				}
				if !decision.Candidates.Safe(actual) {
					rep.ActualUnsafe++
				}
			}
		}
		rows = append(rows, row)
	}
	return rep, rows
}

// FrameState converts an engine frame into a snapshot seen by snake you.
// Snakes already eliminated are left off the board.
func FrameState(f downloader.FrameData, width, height int32, you string) *game.GameState {
	state := &game.GameState{
		Width:  width,
		Height: height,
		YouId:  you,
		Turn:   int32(f.Turn),
		Food:   toPoints(f.Food),
	}
	for _, s := range f.Snakes {
		if s.Death != nil {
			continue
		}
		state.Snakes = append(state.Snakes, game.Snake{
			Id:     s.ID,
			Health: int32(s.Health),
			Body:   toPoints(s.Body),
		})
	}
	return state
}

// actualMove infers the move you made from where its head is in next.
func actualMove(you game.Snake, next downloader.FrameData, id string) (game.Move, bool) {
	head, ok := you.Head()
	if !ok {
		return 0, false
	}
	for _, s := range next.Snakes {
		if s.ID != id || len(s.Body) == 0 {
			continue
		}
		to := game.Point{X: int32(s.Body[0].X), Y: int32(s.Body[0].Y)}
		return game.MoveBetween(head, to)
	}
	return 0, false
}

func toPoints(coords []downloader.Coord) []game.Point {
	if len(coords) == 0 {
		return nil
	}
	out := make([]game.Point, len(coords))
	for i, c := range coords {
		out[i] = game.Point{X: int32(c.X), Y: int32(c.Y)}
	}
	return out
}
