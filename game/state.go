// Package game defines the core game state types for Battlesnake.
//
// These types are the parsed form of an engine snapshot. The move selector,
// the local rules engine and the replay tooling all work on them.
package game

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned by Validate for snapshots the selector should not see.
var ErrInvalidState = errors.New("invalid game state")

// Point is a board coordinate.
// Coordinates follow Battlesnake conventions: (0,0) is bottom-left.
type Point struct {
	X int32
	Y int32
}

// Add returns p shifted by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// Step returns the cell one move away from p.
func (p Point) Step(m Move) Point {
	return p.Add(m.Delta())
}

type Snake struct {
	Id     string
	Health int32
	Body   []Point
}

// Head returns Body[0]. ok is false for an empty body.
func (s Snake) Head() (Point, bool) {
	if len(s.Body) == 0 {
		return Point{}, false
	}
	return s.Body[0], true
}

// GameState is one turn's snapshot.
// Snakes holds every live snake, including the one identified by YouId.
type GameState struct {
	Width  int32
	Height int32
	Snakes []Snake
	Food   []Point
	YouId  string
	Turn   int32
}

// You returns the snake identified by YouId.
func (s *GameState) You() (Snake, bool) {
	for _, snake := range s.Snakes {
		if snake.Id == s.YouId {
			return snake, true
		}
	}
	return Snake{}, false
}

// Validate checks a snapshot at the transport boundary.
func (s *GameState) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidState)
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: board %dx%d", ErrInvalidState, s.Width, s.Height)
	}
	you, ok := s.You()
	if !ok {
		return fmt.Errorf("%w: snake %q not on board", ErrInvalidState, s.YouId)
	}
	if len(you.Body) == 0 {
		return fmt.Errorf("%w: snake %q has no body", ErrInvalidState, s.YouId)
	}
	return nil
}

// Clone performs a deep copy of the game state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}

	out := &GameState{
		Width:  s.Width,
		Height: s.Height,
		YouId:  s.YouId,
		Turn:   s.Turn,
	}

	if len(s.Food) > 0 {
		out.Food = make([]Point, len(s.Food))
		copy(out.Food, s.Food)
	}

	if len(s.Snakes) > 0 {
		out.Snakes = make([]Snake, len(s.Snakes))
		for i := range s.Snakes {
			out.Snakes[i] = Snake{Id: s.Snakes[i].Id, Health: s.Snakes[i].Health}
			if len(s.Snakes[i].Body) > 0 {
				out.Snakes[i].Body = make([]Point, len(s.Snakes[i].Body))
				copy(out.Snakes[i].Body, s.Snakes[i].Body)
			}
		}
	}

	return out
}
