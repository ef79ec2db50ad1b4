package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/brensch/snekstarter/arena/selfplay"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const recentGamesShown = 10

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("22")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(18)

	valueStyle = lipgloss.NewStyle().Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)

	drawStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// GameUpdate is sent by a worker after each finished game.
type GameUpdate struct {
	WorkerID int
	Result   selfplay.GameResult
	Rows     int
}

type doneMsg struct{}

type TickMsg time.Time

type model struct {
	gamesPlayed int
	rows        int
	turns       int
	noSafe      int
	draws       int
	timeouts    int
	wins        map[string]int
	moves       int64
	startTime   time.Time
	recentGames []string
	updates     <-chan GameUpdate
	done        bool
}

func initialModel(updates <-chan GameUpdate) model {
	return model{
		startTime: time.Now(),
		updates:   updates,
		wins:      make(map[string]int),
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*250, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tickCmd())
}

func waitForUpdate(updates <-chan GameUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return u
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case TickMsg:
		m.moves = totalMoves.Load()
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case GameUpdate:
		m = m.record(msg)
		return m, waitForUpdate(m.updates)
	case doneMsg:
		m.done = true
		m.moves = totalMoves.Load()
		return m, tea.Quit
	}
	return m, nil
}

func (m model) record(u GameUpdate) model {
	m.gamesPlayed++
	m.rows += u.Rows
	m.turns += u.Result.Turns
	m.noSafe += u.Result.NoSafeMoves
	switch {
	case u.Result.TimedOut:
		m.timeouts++
	case u.Result.WinnerID == "":
		m.draws++
	default:
		m.wins[u.Result.WinnerID]++
	}
	m.recentGames = append([]string{describeGame(u)}, m.recentGames...)
	if len(m.recentGames) > recentGamesShown {
		m.recentGames = m.recentGames[:recentGamesShown]
	}
	return m
}

func describeGame(u GameUpdate) string {
	winner := u.Result.WinnerID
	switch {
	case u.Result.TimedOut:
		winner = "timeout"
	case winner == "":
		winner = "draw"
	}
	return fmt.Sprintf("worker %d: %s after %d turns, %d rows, %d boxed in",
		u.WorkerID, winner, u.Result.Turns, u.Rows, u.Result.NoSafeMoves)
}

func (m model) View() string {
	duration := time.Since(m.startTime)
	gamesPerSec, movesPerSec := 0.0, 0.0
	if duration.Seconds() >= 1 {
		gamesPerSec = float64(m.gamesPlayed) / duration.Seconds()
		movesPerSec = float64(m.moves) / duration.Seconds()
	}
	avgTurns := 0.0
	if m.gamesPlayed > 0 {
		avgTurns = float64(m.turns) / float64(m.gamesPlayed)
	}

	line := func(label string, value any) string {
		return labelStyle.Render(label) + valueStyle.Render(fmt.Sprint(value))
	}
	stats := strings.Join([]string{
		line("Games played", m.gamesPlayed),
		line("Rows recorded", m.rows),
		line("Moves", m.moves),
		line("Duration", duration.Round(time.Second)),
		line("Games/sec", fmt.Sprintf("%.2f", gamesPerSec)),
		line("Moves/sec", fmt.Sprintf("%.2f", movesPerSec)),
		line("Avg turns", fmt.Sprintf("%.1f", avgTurns)),
		line("Boxed in", m.noSafe),
	}, "\n")

	var wins []string
	for _, id := range sortedKeys(m.wins) {
		wins = append(wins, line(id, fmt.Sprintf("%d (%.1f%%)", m.wins[id], pct(m.wins[id], m.gamesPlayed))))
	}
	wins = append(wins,
		drawStyle.Render(line("draws", fmt.Sprintf("%d (%.1f%%)", m.draws, pct(m.draws, m.gamesPlayed)))),
		line("timeouts", m.timeouts),
	)

	panels := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(stats),
		boxStyle.Render(strings.Join(wins, "\n")),
	)

	recent := "Recent games:\n" + strings.Join(m.recentGames, "\n")
	help := helpStyle.Render("Press q to quit.")
	if m.done {
		help = helpStyle.Render("All games finished.")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("snekstarter arena"),
		panels,
		boxStyle.Render(recent),
		help,
	) + "\n"
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
