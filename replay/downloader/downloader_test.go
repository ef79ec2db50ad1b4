package downloader

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brensch/snekstarter/replay/db"
	"github.com/gorilla/websocket"
)

const (
	gameInfoEvent = `{"type":"game_info","data":{"game":{"id":"g1","width":7,"height":7,"ruleset":{"name":"standard"}}}}`
	frame0Event   = `{"type":"frame","data":{"turn":0,"snakes":[{"id":"a","name":"alpha","health":100,"body":[{"x":1,"y":1},{"x":1,"y":1},{"x":1,"y":1}]},{"id":"b","name":"beta","health":100,"body":[{"x":5,"y":5},{"x":5,"y":5},{"x":5,"y":5}]}],"food":[{"x":3,"y":3}]}}`
	frame1Event   = `{"type":"frame","data":{"turn":1,"snakes":[{"id":"a","name":"alpha","health":99,"body":[{"x":1,"y":2},{"x":1,"y":1},{"x":1,"y":1}]},{"id":"b","name":"beta","health":99,"body":[{"x":5,"y":6},{"x":5,"y":5},{"x":5,"y":5}],"death":{"cause":"wall-collision","turn":1}}],"food":[{"x":3,"y":3}]}}`
	gameEndEvent  = `{"type":"game_end","data":{}}`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newEngine serves the given events on /games/{id}/events and then closes
// the socket normally.
func newEngine(t *testing.T, events ...string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	connects := new(atomic.Int32)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connects.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, e := range events {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(e)); err != nil {
				return
			}
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	t.Cleanup(ts.Close)
	return ts, connects
}

func engineURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/games/%s/events"
}

func openDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.New(filepath.Join(t.TempDir(), "games.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestDownloadGame(t *testing.T) {
	ts, _ := newEngine(t, gameInfoEvent, "not json", frame0Event, frame1Event, gameEndEvent)
	cfg := DefaultConfig()
	cfg.EngineURL = engineURL(ts)
	w := NewWorker(cfg, nil, quietLogger())

	game, frames, err := w.DownloadGame(context.Background(), "g1")
	if err != nil {
		t.Fatalf("DownloadGame: %v", err)
	}
	if game.ID != "g1" || game.Ruleset != "standard" || game.Width != 7 || game.Height != 7 {
		t.Fatalf("game=%+v", game)
	}
	if game.Winner != "alpha" {
		t.Fatalf("winner=%q want alpha", game.Winner)
	}
	if len(frames) != 2 || frames[1].Turn != 1 {
		t.Fatalf("frames=%+v", frames)
	}

	f, err := ParseFrame(frames[1].RawJSON)
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if len(f.Snakes) != 2 || f.Snakes[1].Death == nil || f.Snakes[0].Body[0] != (Coord{X: 1, Y: 2}) {
		t.Fatalf("frame=%+v", f)
	}
}

func TestDownloadGame_NoFrames(t *testing.T) {
	ts, _ := newEngine(t, gameInfoEvent)
	cfg := DefaultConfig()
	cfg.EngineURL = engineURL(ts)
	w := NewWorker(cfg, nil, quietLogger())

	if _, _, err := w.DownloadGame(context.Background(), "g1"); err == nil {
		t.Fatalf("expected error when no frames arrive")
	}
}

func TestEnsureCachesGames(t *testing.T) {
	ts, connects := newEngine(t, gameInfoEvent, frame0Event, frame1Event, gameEndEvent)
	cfg := DefaultConfig()
	cfg.EngineURL = engineURL(ts)
	cfg.NumWorkers = 1
	d := openDB(t)
	w := NewWorker(cfg, d, quietLogger())

	ids := make(chan string, 3)
	ids <- "g1"
	ids <- "g1"
	close(ids)
	w.Run(context.Background(), ids)

	if err := w.Ensure(context.Background(), "g1"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	st := w.GetStats()
	if st.GamesDownloaded != 1 || st.FramesTotal != 2 || st.GamesSkipped < 1 {
		t.Fatalf("stats=%+v", st)
	}
	if n := connects.Load(); n != 1 {
		t.Fatalf("engine contacted %d times, want 1", n)
	}
	frames, err := d.GetGameFrames("g1")
	if err != nil || len(frames) != 2 {
		t.Fatalf("cached frames=%d err=%v", len(frames), err)
	}
}

func TestDetermineWinner(t *testing.T) {
	if got := determineWinner(nil); got != "unknown" {
		t.Fatalf("nil frame: %q", got)
	}
	both := &FrameData{Snakes: []SnakeData{{Name: "a", Health: 10}, {Name: "b", Health: 10}}}
	if got := determineWinner(both); got != "draw" {
		t.Fatalf("two alive: %q", got)
	}
	none := &FrameData{Snakes: []SnakeData{{Name: "a", Health: 0}}}
	if got := determineWinner(none); got != "draw" {
		t.Fatalf("none alive: %q", got)
	}
}
