// Package logic picks a move for one turn.
//
// A turn starts with all four moves marked safe. A fixed sequence of filters
// (neck, walls, own body, other snakes, food) marks moves unsafe, and one of
// the survivors is drawn uniformly at random. Nothing is kept between turns.
package logic

import (
	"errors"
	"math/rand"

	"github.com/brensch/snekstarter/game"
)

var (
	// ErrNoSafeMove is returned when every move was eliminated.
	ErrNoSafeMove = errors.New("no safe move")
	// ErrNoHead is returned when the acting snake has an empty body.
	ErrNoHead = errors.New("snake has no head")
)

// Rand is the source for the final draw. *rand.Rand satisfies it.
// A nil Rand uses the global math/rand source, which is safe for concurrent use.
type Rand interface {
	Intn(n int) int
}

// Decision is the chosen move and the candidates it was drawn from.
type Decision struct {
	Move       game.Move
	Candidates Candidates
}

// Decide runs the filters for you on state and draws a move.
// On ErrNoSafeMove the returned Decision still carries the eliminated candidates.
func Decide(state *game.GameState, you game.Snake, rng Rand) (Decision, error) {
	head, ok := you.Head()
	if !ok {
		return Decision{Candidates: NewCandidates()}, ErrNoHead
	}

	c := NewCandidates()
	avoidNeck(&c, you.Body)
	if state != nil {
		avoidWalls(&c, head, state.Width, state.Height)
	}
	avoidBody(&c, head, you.Body, StageSelf)
	if state != nil {
		for _, snake := range state.Snakes {
			avoidBody(&c, head, snake.Body, StageSnakes)
		}
		seekFood(&c, head, state.Food)
	}

	moves := c.Moves()
	if len(moves) == 0 {
		return Decision{Candidates: c}, ErrNoSafeMove
	}

	var i int
	if rng == nil {
		i = rand.Intn(len(moves))
	} else {
		i = rng.Intn(len(moves))
	}
	return Decision{Move: moves[i], Candidates: c}, nil
}

// ChooseMove decides for state.YouId and returns the move label.
func ChooseMove(state *game.GameState, rng Rand) (string, error) {
	if state == nil {
		return "", ErrNoHead
	}
	you, _ := state.You()
	d, err := Decide(state, you, rng)
	if err != nil {
		return "", err
	}
	return d.Move.String(), nil
}

// avoidNeck removes the move back onto body[1].
func avoidNeck(c *Candidates, body []game.Point) {
	if len(body) < 2 {
		return
	}
	head, neck := body[0], body[1]
	if neck.X < head.X {
		c.Eliminate(game.MoveLeft, StageNeck)
	} else if neck.X > head.X {
		c.Eliminate(game.MoveRight, StageNeck)
	} else if neck.Y < head.Y {
		c.Eliminate(game.MoveDown, StageNeck)
	} else if neck.Y > head.Y {
		c.Eliminate(game.MoveUp, StageNeck)
	}
}

// avoidWalls treats the outermost row and column as already out of bounds.
// A head on the last column loses right even though x=width-1 is on the board.
func avoidWalls(c *Candidates, head game.Point, width, height int32) {
	if width <= 0 || height <= 0 {
		return
	}
	if head.X >= width-1 {
		c.Eliminate(game.MoveRight, StageWall)
	}
	if head.Y >= height-1 {
		c.Eliminate(game.MoveUp, StageWall)
	}
	if head.X <= 0 {
		c.Eliminate(game.MoveLeft, StageWall)
	}
	if head.Y <= 0 {
		c.Eliminate(game.MoveDown, StageWall)
	}
}

// avoidBody removes every move whose target cell holds a segment of body.
func avoidBody(c *Candidates, head game.Point, body []game.Point, stage Stage) {
	for _, p := range body {
		if p.X == head.X+1 && p.Y == head.Y {
			c.Eliminate(game.MoveRight, stage)
		} else if p.X == head.X-1 && p.Y == head.Y {
			c.Eliminate(game.MoveLeft, stage)
		} else if p.X == head.X && p.Y == head.Y+1 {
			c.Eliminate(game.MoveUp, stage)
		} else if p.X == head.X && p.Y == head.Y-1 {
			c.Eliminate(game.MoveDown, stage)
		}
	}
}

// seekFood drops moves that lead away from the first food item, but never the
// last safe move. The count is re-read before each elimination.
func seekFood(c *Candidates, head game.Point, food []game.Point) {
	if len(food) == 0 {
		return
	}
	f := food[0]
	if f.X < head.X && c.Count() > 1 {
		c.Eliminate(game.MoveRight, StageFood)
	}
	if f.X > head.X && c.Count() > 1 {
		c.Eliminate(game.MoveLeft, StageFood)
	}
	if f.Y < head.Y && c.Count() > 1 {
		c.Eliminate(game.MoveUp, StageFood)
	}
	if f.Y > head.Y && c.Count() > 1 {
		c.Eliminate(game.MoveDown, StageFood)
	}
}
