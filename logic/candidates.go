package logic

import (
	"strings"

	"github.com/brensch/snekstarter/game"
)

// Stage identifies the filter that eliminated a move.
type Stage int

const (
	StageNone Stage = iota
	StageNeck
	StageWall
	StageSelf
	StageSnakes
	StageFood
)

var stageNames = [...]string{"", "neck", "wall", "self", "snakes", "food"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Candidates holds the four safe flags for one turn.
// Flags only ever go from safe to unsafe.
type Candidates struct {
	safe [4]bool
	by   [4]Stage
}

// NewCandidates returns a set with every move safe.
func NewCandidates() Candidates {
	return Candidates{safe: [4]bool{true, true, true, true}}
}

// Eliminate marks m unsafe. The first stage to eliminate a move is kept.
func (c *Candidates) Eliminate(m game.Move, stage Stage) {
	if !m.Valid() || !c.safe[m] {
		return
	}
	c.safe[m] = false
	c.by[m] = stage
}

// Safe reports whether m is still a candidate.
func (c Candidates) Safe(m game.Move) bool {
	return m.Valid() && c.safe[m]
}

// EliminatedBy returns the stage that removed m, or StageNone if m is still safe.
func (c Candidates) EliminatedBy(m game.Move) Stage {
	if !m.Valid() {
		return StageNone
	}
	return c.by[m]
}

// Count is the number of surviving moves.
func (c Candidates) Count() int {
	n := 0
	for _, ok := range c.safe {
		if ok {
			n++
		}
	}
	return n
}

// Moves returns the surviving moves in up, down, left, right order.
func (c Candidates) Moves() []game.Move {
	out := make([]game.Move, 0, 4)
	for _, m := range game.AllMoves {
		if c.safe[m] {
			out = append(out, m)
		}
	}
	return out
}

// Mask packs the safe flags into bits 0..3 in move order.
func (c Candidates) Mask() uint8 {
	var mask uint8
	for i, ok := range c.safe {
		if ok {
			mask |= 1 << i
		}
	}
	return mask
}

func (c Candidates) String() string {
	parts := make([]string, 0, 4)
	for _, m := range game.AllMoves {
		if c.safe[m] {
			parts = append(parts, m.String())
		} else {
			parts = append(parts, m.String()+"!"+c.by[m].String())
		}
	}
	return strings.Join(parts, " ")
}
