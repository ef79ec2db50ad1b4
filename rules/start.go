package rules

import (
	"fmt"
	"math/rand"

	"github.com/brensch/snekstarter/game"
)

// StartLength is the body length every snake spawns with.
const StartLength = 3

// StandardStart places snakes on the standard fixed start points (corners
// first, then edge midpoints), stacked to StartLength, with one food
// diagonally inward from each snake and one in the centre.
func StandardStart(width, height int32, ids []string, rng *rand.Rand) (*game.GameState, error) {
	if width < 7 || height < 7 {
		return nil, fmt.Errorf("board %dx%d too small for standard start", width, height)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no snakes")
	}

	midX, midY := (width-1)/2, (height-1)/2
	corners := []game.Point{
		{X: 1, Y: 1}, {X: 1, Y: height - 2}, {X: width - 2, Y: 1}, {X: width - 2, Y: height - 2},
	}
	edges := []game.Point{
		{X: 1, Y: midY}, {X: midX, Y: 1}, {X: width - 2, Y: midY}, {X: midX, Y: height - 2},
	}
	if len(ids) > len(corners)+len(edges) {
		return nil, fmt.Errorf("%d snakes but only %d start points", len(ids), len(corners)+len(edges))
	}
	if rng != nil {
		rng.Shuffle(len(corners), func(i, j int) { corners[i], corners[j] = corners[j], corners[i] })
		rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })
	}
	points := append(corners, edges...)

	state := &game.GameState{Width: width, Height: height}
	centre := game.Point{X: midX, Y: midY}
	for i, id := range ids {
		start := points[i]
		body := make([]game.Point, StartLength)
		for j := range body {
			body[j] = start
		}
		state.Snakes = append(state.Snakes, game.Snake{Id: id, Health: MaxHealth, Body: body})

		food := game.Point{X: start.X + sign(centre.X-start.X), Y: start.Y + sign(centre.Y-start.Y)}
		if food != centre && food != start {
			state.Food = append(state.Food, food)
		}
	}
	state.Food = append(state.Food, centre)
	return state, nil
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
