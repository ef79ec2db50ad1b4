package game

import "fmt"

// Move is one of the four directions a snake can travel.
// The integer order matches the policy labels used in stored rows.
type Move int

const (
	MoveUp Move = iota
	MoveDown
	MoveLeft
	MoveRight
)

// AllMoves lists the moves in label order.
var AllMoves = [4]Move{MoveUp, MoveDown, MoveLeft, MoveRight}

var moveNames = [4]string{"up", "down", "left", "right"}

func (m Move) String() string {
	if m < 0 || int(m) >= len(moveNames) {
		return fmt.Sprintf("Move(%d)", int(m))
	}
	return moveNames[m]
}

// Valid reports whether m is one of the four moves.
func (m Move) Valid() bool {
	return m >= MoveUp && m <= MoveRight
}

// ParseMove maps "up", "down", "left" or "right" to a Move.
func ParseMove(s string) (Move, error) {
	for i, name := range moveNames {
		if name == s {
			return Move(i), nil
		}
	}
	return 0, fmt.Errorf("unknown move %q", s)
}

// Delta is the grid offset of one step; y grows upward.
func (m Move) Delta() Point {
	switch m {
	case MoveUp:
		return Point{X: 0, Y: 1}
	case MoveDown:
		return Point{X: 0, Y: -1}
	case MoveLeft:
		return Point{X: -1, Y: 0}
	case MoveRight:
		return Point{X: 1, Y: 0}
	default:
		return Point{}
	}
}

func (m Move) Opposite() Move {
	switch m {
	case MoveUp:
		return MoveDown
	case MoveDown:
		return MoveUp
	case MoveLeft:
		return MoveRight
	case MoveRight:
		return MoveLeft
	default:
		return m
	}
}

// MoveBetween returns the move that takes a head from one cell to the next.
// ok is false when the cells are not orthogonal neighbours.
func MoveBetween(from, to Point) (Move, bool) {
	for _, m := range AllMoves {
		if from.Step(m) == to {
			return m, true
		}
	}
	return 0, false
}
