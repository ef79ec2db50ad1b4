package db

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(filepath.Join(t.TempDir(), "replay.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestInsertAndLoadGame(t *testing.T) {
	d := openTestDB(t)

	exists, err := d.GameExists("g1")
	if err != nil || exists {
		t.Fatalf("GameExists before insert: %v %v", exists, err)
	}

	game := Game{ID: "g1", Winner: "snek", Ruleset: "standard", Width: 11, Height: 11}
	frames := []Frame{
		{GameID: "g1", Turn: 1, RawJSON: `{"turn":1}`},
		{GameID: "g1", Turn: 0, RawJSON: `{"turn":0}`},
	}
	if err := d.InsertGame(game, frames); err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	// Re-inserting is ignored, not an error.
	if err := d.InsertGame(game, frames); err != nil {
		t.Fatalf("InsertGame again: %v", err)
	}

	exists, err = d.GameExists("g1")
	if err != nil || !exists {
		t.Fatalf("GameExists after insert: %v %v", exists, err)
	}

	got, err := d.GetGame("g1")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if got.Winner != "snek" || got.Width != 11 || got.Height != 11 || got.IsEvaluated {
		t.Fatalf("game=%+v", got)
	}

	loaded, err := d.GetGameFrames("g1")
	if err != nil {
		t.Fatalf("GetGameFrames: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Turn != 0 || loaded[1].RawJSON != `{"turn":1}` {
		t.Fatalf("frames=%+v", loaded)
	}
}

func TestEvaluatedFlag(t *testing.T) {
	d := openTestDB(t)
	for _, id := range []string{"a", "b"} {
		if err := d.InsertGame(Game{ID: id, Width: 7, Height: 7}, nil); err != nil {
			t.Fatalf("InsertGame %s: %v", id, err)
		}
	}
	if err := d.MarkGameEvaluated("a"); err != nil {
		t.Fatalf("MarkGameEvaluated: %v", err)
	}

	pending, err := d.GetUnevaluatedGames(10)
	if err != nil {
		t.Fatalf("GetUnevaluatedGames: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "b" {
		t.Fatalf("pending=%+v", pending)
	}

	total, evaluated, frames, err := d.Stats()
	if err != nil || total != 2 || evaluated != 1 || frames != 0 {
		t.Fatalf("stats total=%d evaluated=%d frames=%d err=%v", total, evaluated, frames, err)
	}

	ids, err := d.GetAllGameIDs()
	if err != nil || !ids["a"] || !ids["b"] {
		t.Fatalf("ids=%v err=%v", ids, err)
	}
}

func TestGetGameMissing(t *testing.T) {
	d := openTestDB(t)
	if _, err := d.GetGame("nope"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("err=%v want ErrGameNotFound", err)
	}
}
