// Command stats summarises recorded decisions from the server, the arena and
// replays.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/brensch/snekstarter/config"
	"github.com/brensch/snekstarter/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var stageOrder = []string{"neck", "wall", "self", "snakes", "food"}

func main() {
	roots := flag.String("roots", config.EnvString("STATS_ROOTS", "data"), "Comma-separated directories holding decision parquet batches")
	format := flag.String("format", "text", "Output format: text or json")
	logLevel := flag.String("log-level", config.EnvString("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	logger := logging.MustNew(os.Stderr, logging.FormatText, *logLevel)

	db, err := openDuckDBWithGlobs(strings.Split(*roots, ","))
	if err != nil {
		logger.Error("failed to open duckdb", "roots", *roots, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	summaries, err := Summarize(context.Background(), db)
	if err != nil {
		logger.Error("summarize failed", "error", err)
		os.Exit(1)
	}
	if len(summaries) == 0 {
		logger.Warn("no decisions found", "roots", *roots)
	}

	switch *format {
	case "json":
		err = writeJSON(os.Stdout, summaries)
	case "text":
		err = writeText(os.Stdout, summaries)
	default:
		logger.Error("unknown format", "format", *format)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("write output", "error", err)
		os.Exit(1)
	}
}

func writeJSON(w io.Writer, summaries []SourceSummary) error {
	type out struct {
		SourceSummary
		AgreementRate float64 `json:"agreement_rate"`
	}
	rows := make([]out, len(summaries))
	for i, s := range summaries {
		rows[i] = out{SourceSummary: s, AgreementRate: s.AgreementRate()}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func writeText(w io.Writer, summaries []SourceSummary) error {
	headers := []string{"source", "decisions", "games", "up", "down", "left", "right", "fallbacks", "survivors", "agreement"}
	for _, st := range stageOrder {
		headers = append(headers, "by "+st)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, s := range summaries {
		agreement := "-"
		if s.KnownActual > 0 {
			agreement = fmt.Sprintf("%.1f%%", 100*s.AgreementRate())
		}
		row := []string{
			s.Source,
			fmt.Sprint(s.Decisions),
			fmt.Sprint(s.Games),
			fmt.Sprint(s.Moves["up"]),
			fmt.Sprint(s.Moves["down"]),
			fmt.Sprint(s.Moves["left"]),
			fmt.Sprint(s.Moves["right"]),
			fmt.Sprint(s.Fallbacks),
			fmt.Sprintf("%.2f", s.MeanSurvivors),
			agreement,
		}
		for _, st := range stageOrder {
			row = append(row, fmt.Sprint(s.Eliminations[st]))
		}
		t.Row(row...)
	}

	_, err := fmt.Fprintln(w, t.String())
	return err
}
