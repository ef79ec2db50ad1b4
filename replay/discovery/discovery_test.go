package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/leaderboard/standard", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><table>
			<tr><td><a href="/leaderboard/standard/alice/stats">alice</a></td></tr>
			<tr><td><a href="/leaderboard/standard/bob/stats">bob</a></td></tr>
			<tr><td><a href="/leaderboard/standard/alice/stats">alice again</a></td></tr>
			<tr><td><a href="/leaderboard/standard-duels">duels</a></td></tr>
		</table></body></html>`)
	})
	mux.HandleFunc("/leaderboard/standard/alice/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/game/aaaa-1111">game</a>
			<a href="/game/bbbb-2222">game</a>
			<a href="/game/aaaa-1111">dup</a>
			<a href="/profile/alice">profile</a>
		</body></html>`)
	})
	mux.HandleFunc("/leaderboard/standard/bob/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="/game/bbbb-2222">shared game</a>
			<a href="/game/cccc-3333">game</a>
		</body></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestPlayerGames(t *testing.T) {
	ts := newSite(t)
	w := NewWorker(Config{}, nil, quietLogger())

	ids, err := w.PlayerGames(context.Background(), ts.URL+"/leaderboard/standard/alice/stats")
	if err != nil {
		t.Fatalf("PlayerGames: %v", err)
	}
	if len(ids) != 2 || ids[0] != "aaaa-1111" || ids[1] != "bbbb-2222" {
		t.Fatalf("ids=%v", ids)
	}

	if _, err := w.PlayerGames(context.Background(), ts.URL+"/broken"); err == nil {
		t.Fatalf("expected error for 502")
	}
}

func TestLeaderboardPlayers(t *testing.T) {
	ts := newSite(t)
	w := NewWorker(Config{}, nil, quietLogger())

	players, err := w.LeaderboardPlayers(context.Background(), ts.URL+"/leaderboard/standard")
	if err != nil {
		t.Fatalf("LeaderboardPlayers: %v", err)
	}
	if len(players) != 2 || players[0].Username != "alice" || players[1].Username != "bob" {
		t.Fatalf("players=%+v", players)
	}
	if players[1].StatsURL != ts.URL+"/leaderboard/standard/bob/stats" {
		t.Fatalf("stats url=%s", players[1].StatsURL)
	}
}

func TestDiscoverDeduplicates(t *testing.T) {
	ts := newSite(t)
	known := map[string]bool{"cccc-3333": true}
	w := NewWorker(Config{LeaderboardURLs: []string{ts.URL + "/leaderboard/standard", ts.URL + "/broken"}}, known, quietLogger())

	out := make(chan string, 10)
	if err := w.Discover(context.Background(), out); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	close(out)

	var got []string
	for id := range out {
		got = append(got, id)
	}
	if len(got) != 2 || got[0] != "aaaa-1111" || got[1] != "bbbb-2222" {
		t.Fatalf("got=%v", got)
	}

	// A second pass finds nothing new.
	out = make(chan string, 10)
	n, err := w.DiscoverPlayer(context.Background(), ts.URL+"/leaderboard/standard/bob/stats", out)
	if err != nil || n != 0 {
		t.Fatalf("second pass n=%d err=%v", n, err)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	ts := newSite(t)
	w := NewWorker(Config{LeaderboardURLs: []string{ts.URL + "/leaderboard/standard"}}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Discover(ctx, make(chan string)); err == nil {
		t.Fatalf("expected context error")
	}
}
