package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/logic"
	"github.com/brensch/snekstarter/store"
)

func decisionRows(t *testing.T, source, gameID string, n int, actual string) []store.DecisionRow {
	t.Helper()
	var rows []store.DecisionRow
	for turn := 0; turn < n; turn++ {
		state := &game.GameState{
			Width:  11,
			Height: 11,
			YouId:  "me",
			Turn:   int32(turn),
			Snakes: []game.Snake{{Id: "me", Health: 90, Body: []game.Point{{X: 5, Y: 5}, {X: 5, Y: 4}}}},
		}
		c := logic.NewCandidates()
		c.Eliminate(game.MoveDown, logic.StageNeck)
		row := store.NewDecisionRow(source, gameID, state, game.MoveUp, c)
		row.ActualMove = actual
		rows = append(rows, row)
	}
	return rows
}

func writeFixture(t *testing.T) string {
	t.Helper()
	return writeFixtureAt(t, t.TempDir())
}

func writeFixtureAt(t *testing.T, root string) string {
	t.Helper()
	if _, err := store.WriteBatchParquetAtomic(filepath.Join(root, "live"), decisionRows(t, store.SourceLive, "g1", 3, "")); err != nil {
		t.Fatalf("write live: %v", err)
	}
	replay := append(decisionRows(t, store.SourceReplay, "r1", 2, "up"), decisionRows(t, store.SourceReplay, "r2", 2, "left")...)
	if _, err := store.WriteBatchParquetAtomic(filepath.Join(root, "replay"), replay); err != nil {
		t.Fatalf("write replay: %v", err)
	}
	// A half-written file in tmp/ must be ignored.
	if err := os.WriteFile(filepath.Join(root, "live", "tmp", "batch_1_1.parquet.tmp"), []byte("junk"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	return root
}

func TestSummarize(t *testing.T) {
	root := writeFixture(t)
	db, err := openDuckDBWithGlobs([]string{root})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	summaries, err := Summarize(context.Background(), db)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summaries) != 2 || summaries[0].Source != store.SourceLive || summaries[1].Source != store.SourceReplay {
		t.Fatalf("summaries=%+v", summaries)
	}

	live, replay := summaries[0], summaries[1]
	if live.Decisions != 3 || live.Games != 1 || live.Moves["up"] != 3 || live.KnownActual != 0 {
		t.Fatalf("live=%+v", live)
	}
	if live.MeanSurvivors != 3 || live.Eliminations["neck"] != 3 {
		t.Fatalf("live survivors=%v eliminations=%v", live.MeanSurvivors, live.Eliminations)
	}
	if replay.Decisions != 4 || replay.Games != 2 || replay.KnownActual != 4 || replay.Agreements != 2 {
		t.Fatalf("replay=%+v", replay)
	}
	if replay.AgreementRate() != 0.5 {
		t.Fatalf("agreement=%v", replay.AgreementRate())
	}
}

func TestSummarize_RootUnderTmpDir(t *testing.T) {
	for _, root := range []string{
		filepath.Join(t.TempDir(), "tmp", "data"),
		filepath.Join(t.TempDir(), "tmp"),
	} {
		writeFixtureAt(t, root)
		db, err := openDuckDBWithGlobs([]string{root})
		if err != nil {
			t.Fatalf("open %s: %v", root, err)
		}
		summaries, err := Summarize(context.Background(), db)
		db.Close()
		if err != nil {
			t.Fatalf("Summarize %s: %v", root, err)
		}
		if len(summaries) != 2 || summaries[0].Decisions != 3 || summaries[1].Decisions != 4 {
			t.Fatalf("root %s: summaries=%+v", root, summaries)
		}
	}
}

func TestSummarize_EmptyRoot(t *testing.T) {
	db, err := openDuckDBWithGlobs([]string{t.TempDir(), ""})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	summaries, err := Summarize(context.Background(), db)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("summaries=%+v", summaries)
	}
}

func TestWriteOutput(t *testing.T) {
	summaries := []SourceSummary{{
		Source:       store.SourceReplay,
		Decisions:    4,
		Games:        2,
		Moves:        map[string]int64{"up": 4},
		KnownActual:  4,
		Agreements:   3,
		Eliminations: map[string]int64{"food": 2},
	}}

	var text bytes.Buffer
	if err := writeText(&text, summaries); err != nil {
		t.Fatalf("writeText: %v", err)
	}
	for _, want := range []string{"replay", "75.0%", "by food"} {
		if !strings.Contains(text.String(), want) {
			t.Fatalf("text output missing %q:\n%s", want, text.String())
		}
	}

	var js bytes.Buffer
	if err := writeJSON(&js, summaries); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[0]["agreement_rate"] != 0.75 || decoded[0]["source"] != "replay" {
		t.Fatalf("json=%v", decoded)
	}
}

func TestEscapeSQLString(t *testing.T) {
	if got := escapeSQLString("it's"); got != "it''s" {
		t.Fatalf("got %q", got)
	}
}
