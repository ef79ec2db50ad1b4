package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/logic"
	"github.com/brensch/snekstarter/store"
)

// Recorder receives every decision the server makes. *store.Recorder satisfies it.
type Recorder interface {
	Record(row store.DecisionRow) bool
}

// Server answers the Battlesnake API. It holds no per-game state.
type Server struct {
	info     BattlesnakeInfoResponse
	logger   *slog.Logger
	recorder Recorder
	rng      logic.Rand
	fallback game.Move
}

type ServerOption func(*Server)

// WithRecorder stores every decision through rec.
func WithRecorder(rec Recorder) ServerOption {
	return func(s *Server) { s.recorder = rec }
}

// WithRand replaces the global math/rand source for the final draw.
// The source must be safe for concurrent use.
func WithRand(rng logic.Rand) ServerOption {
	return func(s *Server) { s.rng = rng }
}

// WithFallback sets the move sent when no move is safe.
func WithFallback(m game.Move) ServerOption {
	return func(s *Server) { s.fallback = m }
}

func NewServer(info BattlesnakeInfoResponse, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		info:     info,
		logger:   logger,
		fallback: game.MoveUp,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /start", s.handleStart)
	mux.HandleFunc("POST /move", s.handleMove)
	mux.HandleFunc("POST /end", s.handleEnd)
	return mux
}

// handleIndex returns the Battlesnake info
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("INFO", "remote", r.RemoteAddr)
	writeJSON(w, s.info)
}

// handleStart is called when a game starts
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Info("START",
		"game", req.Game.ID,
		"ruleset", req.Game.Ruleset.Name,
		"board", req.Board.Width,
		"snakes", len(req.Board.Snakes),
		"you", req.You.Name,
	)
	w.WriteHeader(http.StatusOK)
}

// handleMove runs the move selector for the snake in the request.
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req GameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := req.checkRange(); err != nil {
		s.logger.Warn("rejecting move request", "game", req.Game.ID, "turn", req.Turn, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	state := convertToGameState(&req)
	if err := state.Validate(); err != nil {
		s.logger.Warn("rejecting move request", "game", req.Game.ID, "turn", req.Turn, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	you := game.Snake{Id: req.You.ID, Health: int32(req.You.Health), Body: toPoints(req.You.Body)}
	if len(you.Body) == 0 {
		you, _ = state.You()
	}

	decision, err := logic.Decide(state, you, s.rng)
	move := decision.Move
	fallback := false
	if err != nil {
		// Validate guarantees a head, so this is ErrNoSafeMove.
		move = s.fallback
		fallback = true
		s.logger.Warn("no safe move, using fallback",
			"game", req.Game.ID,
			"turn", req.Turn,
			"fallback", move.String(),
			"candidates", decision.Candidates.String(),
			"error", err,
		)
	}

	elapsed := time.Since(startTime)
	s.logger.Info("MOVE",
		"game", req.Game.ID,
		"turn", req.Turn,
		"move", move.String(),
		"candidates", decision.Candidates.String(),
		"elapsed", elapsed,
	)

	if s.recorder != nil {
		row := store.NewDecisionRow(store.SourceLive, req.Game.ID, state, move, decision.Candidates)
		row.Fallback = fallback
		row.ElapsedUs = elapsed.Microseconds()
		if !s.recorder.Record(row) {
			s.logger.Debug("decision dropped by recorder", "game", req.Game.ID, "turn", req.Turn)
		}
	}

	resp := MoveResponse{Move: move.String()}
	if errors.Is(err, logic.ErrNoSafeMove) {
		resp.Shout = "boxed in"
	}
	writeJSON(w, resp)
}

// handleEnd is called when a game ends
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req GameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Info("END", "game", req.Game.ID, "turn", req.Turn, "result", gameResult(&req))
	w.WriteHeader(http.StatusOK)
}

func gameResult(req *GameRequest) string {
	youAlive := false
	for _, snake := range req.Board.Snakes {
		if snake.ID == req.You.ID {
			youAlive = true
			break
		}
	}

	switch {
	case youAlive:
		return "won"
	case len(req.Board.Snakes) == 0:
		return "draw"
	default:
		return "lost"
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
