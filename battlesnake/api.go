package main

import (
	"fmt"
	"math"

	"github.com/brensch/snekstarter/game"
)

// Battlesnake API request/response types

type BattlesnakeInfoResponse struct {
	APIVersion string `json:"apiversion"`
	Author     string `json:"author"`
	Color      string `json:"color"`
	Head       string `json:"head"`
	Tail       string `json:"tail"`
	Version    string `json:"version"`
}

type GameRequest struct {
	Game  Game        `json:"game"`
	Turn  int         `json:"turn"`
	Board Board       `json:"board"`
	You   Battlesnake `json:"you"`
}

type Game struct {
	ID      string  `json:"id"`
	Ruleset Ruleset `json:"ruleset"`
	Map     string  `json:"map"`
	Timeout int     `json:"timeout"`
	Source  string  `json:"source"`
}

type Ruleset struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Board struct {
	Height  int           `json:"height"`
	Width   int           `json:"width"`
	Food    []Coord       `json:"food"`
	Hazards []Coord       `json:"hazards"`
	Snakes  []Battlesnake `json:"snakes"`
}

type Battlesnake struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Health  int     `json:"health"`
	Body    []Coord `json:"body"`
	Latency string  `json:"latency"`
	Head    Coord   `json:"head"`
	Length  int     `json:"length"`
	Shout   string  `json:"shout"`
	Squad   string  `json:"squad"`
}

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type MoveResponse struct {
	Move  string `json:"move"`
	Shout string `json:"shout,omitempty"`
}

func fitsInt32(v int) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

func checkCoords(what string, coords []Coord) error {
	for _, c := range coords {
		if !fitsInt32(c.X) || !fitsInt32(c.Y) {
			return fmt.Errorf("%w: %s coordinate (%d,%d) out of range", game.ErrInvalidState, what, c.X, c.Y)
		}
	}
	return nil
}

func checkSnake(s Battlesnake) error {
	if !fitsInt32(s.Health) {
		return fmt.Errorf("%w: snake %q health %d out of range", game.ErrInvalidState, s.ID, s.Health)
	}
	return checkCoords("snake "+s.ID, s.Body)
}

// checkRange rejects numbers that would wrap when narrowed to int32.
func (req *GameRequest) checkRange() error {
	if !fitsInt32(req.Board.Width) || !fitsInt32(req.Board.Height) {
		return fmt.Errorf("%w: board %dx%d out of range", game.ErrInvalidState, req.Board.Width, req.Board.Height)
	}
	if !fitsInt32(req.Turn) {
		return fmt.Errorf("%w: turn %d out of range", game.ErrInvalidState, req.Turn)
	}
	if err := checkCoords("food", req.Board.Food); err != nil {
		return err
	}
	for _, s := range req.Board.Snakes {
		if err := checkSnake(s); err != nil {
			return err
		}
	}
	return checkSnake(req.You)
}

func toPoints(coords []Coord) []game.Point {
	if len(coords) == 0 {
		return nil
	}
	out := make([]game.Point, len(coords))
	for i, c := range coords {
		out[i] = game.Point{X: int32(c.X), Y: int32(c.Y)}
	}
	return out
}

// convertToGameState converts a Battlesnake API request to our game state.
// The engine normally lists "you" among board.snakes; if it does not, the
// snake is appended so the state always contains it.
func convertToGameState(req *GameRequest) *game.GameState {
	state := &game.GameState{
		Width:  int32(req.Board.Width),
		Height: int32(req.Board.Height),
		YouId:  req.You.ID,
		Turn:   int32(req.Turn),
		Food:   toPoints(req.Board.Food),
	}

	foundYou := false
	state.Snakes = make([]game.Snake, 0, len(req.Board.Snakes)+1)
	for _, s := range req.Board.Snakes {
		if s.ID == req.You.ID {
			foundYou = true
		}
		state.Snakes = append(state.Snakes, game.Snake{
			Id:     s.ID,
			Health: int32(s.Health),
			Body:   toPoints(s.Body),
		})
	}
	if !foundYou {
		state.Snakes = append(state.Snakes, game.Snake{
			Id:     req.You.ID,
			Health: int32(req.You.Health),
			Body:   toPoints(req.You.Body),
		})
	}

	return state
}
