// Package rules advances a game.GameState by one turn using standard
// Battlesnake rules. It backs the local arena where selector snakes play
// each other.
package rules

import (
	"math/rand"

	"github.com/brensch/snekstarter/game"
)

const MaxHealth = 100

// NextStateSimultaneous advances the game state with moves for all snakes.
// Snakes without an entry in moves are eliminated. Dead snakes are dropped
// from the returned state.
func NextStateSimultaneous(state *game.GameState, moves map[string]game.Move, rng *rand.Rand, settings FoodSettings) *game.GameState {
	newState := state.Clone()
	newState.Turn++

	// 1. Move heads. Each snake drops its tail; eating snakes get it back below.
	moved := make(map[string]bool, len(newState.Snakes))
	for i := range newState.Snakes {
		s := &newState.Snakes[i]
		move, ok := moves[s.Id]
		if !ok || !move.Valid() || len(s.Body) == 0 || s.Health <= 0 {
			continue
		}
		newBody := make([]game.Point, 0, len(s.Body)+1)
		newBody = append(newBody, s.Body[0].Step(move))
		newBody = append(newBody, s.Body[:len(s.Body)-1]...)
		s.Body = newBody
		s.Health--
		moved[s.Id] = true
	}

	// 2. Feed. Every snake whose head lands on food eats it; food shared by
	// two heads is consumed once and feeds both.
	eaten := make(map[game.Point]bool)
	for i := range newState.Snakes {
		s := &newState.Snakes[i]
		if !moved[s.Id] {
			continue
		}
		for _, f := range newState.Food {
			if f == s.Body[0] {
				eaten[f] = true
				s.Health = MaxHealth
				s.Body = append(s.Body, s.Body[len(s.Body)-1])
				break
			}
		}
	}
	if len(eaten) > 0 {
		remaining := make([]game.Point, 0, len(newState.Food))
		for _, f := range newState.Food {
			if !eaten[f] {
				remaining = append(remaining, f)
			}
		}
		newState.Food = remaining
	}

	// 3. Eliminate.
	dead := make(map[string]bool)
	for _, s := range newState.Snakes {
		if !moved[s.Id] || s.Health <= 0 {
			dead[s.Id] = true
			continue
		}
		head := s.Body[0]
		if head.X < 0 || head.X >= newState.Width || head.Y < 0 || head.Y >= newState.Height {
			dead[s.Id] = true
			continue
		}
		for _, other := range newState.Snakes {
			if !moved[other.Id] {
				continue
			}
			// Segment 0 of another snake is a head-to-head, handled below.
			for i := 1; i < len(other.Body); i++ {
				if other.Body[i] == head {
					dead[s.Id] = true
				}
			}
		}
	}

	for i := 0; i < len(newState.Snakes); i++ {
		s1 := newState.Snakes[i]
		if !moved[s1.Id] {
			continue
		}
		for j := i + 1; j < len(newState.Snakes); j++ {
			s2 := newState.Snakes[j]
			if !moved[s2.Id] || s1.Body[0] != s2.Body[0] {
				continue
			}
			switch {
			case len(s1.Body) > len(s2.Body):
				dead[s2.Id] = true
			case len(s2.Body) > len(s1.Body):
				dead[s1.Id] = true
			default:
				dead[s1.Id] = true
				dead[s2.Id] = true
			}
		}
	}

	alive := make([]game.Snake, 0, len(newState.Snakes))
	for _, s := range newState.Snakes {
		if !dead[s.Id] {
			alive = append(alive, s)
		}
	}
	newState.Snakes = alive

	applyFoodRules(newState, rng, settings, 0x5455524E5F464F4F) // "TURN_FOO" salt
	return newState
}

// IsGameOver returns true once at most one snake is left.
// A solo game ends when its only snake dies.
func IsGameOver(state *game.GameState, startedWith int) bool {
	if startedWith <= 1 {
		return len(state.Snakes) == 0
	}
	return len(state.Snakes) <= 1
}

// Winner returns the id of the last snake standing, or "" for a draw.
func Winner(state *game.GameState) string {
	if len(state.Snakes) == 1 {
		return state.Snakes[0].Id
	}
	return ""
}
