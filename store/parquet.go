// Package store persists move decisions as Parquet batches for offline
// analysis with the stats tool.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/logic"
)

const SchemaVersion = "decision_row_v1"

// Sources of a DecisionRow.
const (
	SourceLive   = "live"
	SourceArena  = "arena"
	SourceReplay = "replay"
)

// DecisionRow is one (game, turn, snake) decision with the snapshot it was
// made on.
//
// SafeMask has bit i set when move i (0=up, 1=down, 2=left, 3=right) survived
// the filters. EliminatedBy holds, per move in the same order, the filter
// stage that removed it or "" if it survived. ActualMove is only set for
// replayed games, where the snake's real move is known.
type DecisionRow struct {
	GameID string `parquet:"game_id,dict"`
	Turn   int32  `parquet:"turn"`
	YouID  string `parquet:"you_id,dict"`
	Source string `parquet:"source,dict"`

	Width  int32   `parquet:"width"`
	Height int32   `parquet:"height"`
	FoodX  []int32 `parquet:"food_x"`
	FoodY  []int32 `parquet:"food_y"`

	Snakes []SnakeRow `parquet:"snakes"`

	Move         string   `parquet:"move,dict"`
	SafeMask     int32    `parquet:"safe_mask"`
	SafeCount    int32    `parquet:"safe_count"`
	EliminatedBy []string `parquet:"eliminated_by"`
	Fallback     bool     `parquet:"fallback"`
	ActualMove   string   `parquet:"actual_move,dict"`

	ElapsedUs  int64 `parquet:"elapsed_us"`
	RecordedNs int64 `parquet:"recorded_ns"`
}

type SnakeRow struct {
	ID     string  `parquet:"id,dict"`
	Health int32   `parquet:"health"`
	BodyX  []int32 `parquet:"body_x"`
	BodyY  []int32 `parquet:"body_y"`
}

// NewDecisionRow flattens state and the filter outcome into a row.
// move is what was sent to the engine, which differs from the drawn move
// when the caller fell back.
func NewDecisionRow(source, gameID string, state *game.GameState, move game.Move, c logic.Candidates) DecisionRow {
	row := DecisionRow{
		GameID:       gameID,
		Source:       source,
		Move:         move.String(),
		SafeMask:     int32(c.Mask()),
		SafeCount:    int32(c.Count()),
		EliminatedBy: make([]string, len(game.AllMoves)),
		RecordedNs:   time.Now().UnixNano(),
	}
	for i, m := range game.AllMoves {
		row.EliminatedBy[i] = c.EliminatedBy(m).String()
	}
	if state == nil {
		return row
	}

	row.Turn = state.Turn
	row.YouID = state.YouId
	row.Width = state.Width
	row.Height = state.Height
	row.FoodX = make([]int32, len(state.Food))
	row.FoodY = make([]int32, len(state.Food))
	for i, f := range state.Food {
		row.FoodX[i] = f.X
		row.FoodY[i] = f.Y
	}
	row.Snakes = make([]SnakeRow, len(state.Snakes))
	for i, s := range state.Snakes {
		sr := SnakeRow{
			ID:     s.Id,
			Health: s.Health,
			BodyX:  make([]int32, len(s.Body)),
			BodyY:  make([]int32, len(s.Body)),
		}
		for j, p := range s.Body {
			sr.BodyX[j] = p.X
			sr.BodyY[j] = p.Y
		}
		row.Snakes[i] = sr
	}
	return row
}

// State rebuilds the snapshot stored in the row.
func (r DecisionRow) State() *game.GameState {
	state := &game.GameState{
		Width:  r.Width,
		Height: r.Height,
		YouId:  r.YouID,
		Turn:   r.Turn,
	}
	n := min(len(r.FoodX), len(r.FoodY))
	for i := 0; i < n; i++ {
		state.Food = append(state.Food, game.Point{X: r.FoodX[i], Y: r.FoodY[i]})
	}
	for _, sr := range r.Snakes {
		s := game.Snake{Id: sr.ID, Health: sr.Health}
		m := min(len(sr.BodyX), len(sr.BodyY))
		for j := 0; j < m; j++ {
			s.Body = append(s.Body, game.Point{X: sr.BodyX[j], Y: sr.BodyY[j]})
		}
		state.Snakes = append(state.Snakes, s)
	}
	return state
}

var batchSeq atomic.Uint64

func batchName() string {
	return fmt.Sprintf("batch_%d_%d.parquet", time.Now().UnixNano(), batchSeq.Add(1))
}

// WriteBatchParquetAtomic writes a Parquet file into outDir/tmp and then
// atomically moves it into outDir, so readers globbing outDir never see a
// partial file.
func WriteBatchParquetAtomic(outDir string, rows []DecisionRow) (string, error) {
	if len(rows) == 0 {
		return "", fmt.Errorf("no rows to write")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", SchemaVersion),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadDecisions loads every row of one batch file.
func ReadDecisions(path string) ([]DecisionRow, error) {
	rows, err := parquet.ReadFile[DecisionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
