// Package main implements a Battlesnake API server.
//
// Each /move request is answered by the rule-based selector in package logic:
// moves into the neck, walls, bodies and away from food are filtered out and
// one of the survivors is picked at random.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/snekstarter/config"
	"github.com/brensch/snekstarter/game"
	"github.com/brensch/snekstarter/logging"
	"github.com/brensch/snekstarter/store"
)

const version = "1.0.0"

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	listen := fs.String("listen", config.ListenAddr(":8000"), "HTTP listen address (env LISTEN or PORT)")
	logFormat := fs.String("log-format", config.EnvString("LOG_FORMAT", logging.FormatText), "Log format: text, json or pretty")
	logLevel := fs.String("log-level", config.EnvString("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	recordDir := fs.String("record-dir", config.EnvString("RECORD_DIR", ""), "If set, write every decision to parquet batches in this directory")
	flushRows := fs.Int("record-flush-rows", config.EnvInt("RECORD_FLUSH_ROWS", 5000), "Flush recorded decisions after this many rows")
	flushEvery := fs.Duration("record-flush-every", config.EnvDuration("RECORD_FLUSH_EVERY", time.Minute), "Flush recorded decisions at this interval")
	fallback := fs.String("fallback-move", config.EnvString("FALLBACK_MOVE", "up"), "Move sent when no move is safe")
	author := fs.String("author", config.EnvString("AUTHOR", ""), "Battlesnake username shown on the info endpoint")
	color := fs.String("color", config.EnvString("COLOR", "#888888"), "Snake colour")
	head := fs.String("head", config.EnvString("HEAD", "default"), "Snake head customization")
	tail := fs.String("tail", config.EnvString("TAIL", "default"), "Snake tail customization")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	logger := logging.MustNew(os.Stderr, *logFormat, *logLevel)

	fallbackMove, err := game.ParseMove(*fallback)
	if err != nil {
		logger.Error("bad -fallback-move", "error", err)
		os.Exit(2)
	}

	opts := []ServerOption{WithFallback(fallbackMove)}
	var recorder *store.Recorder
	if *recordDir != "" {
		recorder, err = store.NewRecorder(store.RecorderConfig{
			OutDir:     *recordDir,
			FlushRows:  *flushRows,
			FlushEvery: *flushEvery,
		}, logger)
		if err != nil {
			logger.Error("failed to create recorder", "error", err)
			os.Exit(1)
		}
		opts = append(opts, WithRecorder(recorder))
		logger.Info("recording decisions", "dir", *recordDir)
	}

	info := BattlesnakeInfoResponse{
		APIVersion: "1",
		Author:     *author,
		Color:      *color,
		Head:       *head,
		Tail:       *tail,
		Version:    version,
	}
	server := NewServer(info, logger, opts...)

	srv := &http.Server{
		Addr:              *listen,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Battlesnake server listening", "addr", *listen)
		errCh <- srv.ListenAndServe()
	}()

	exitCode := 0
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
		cancel()
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			logger.Error("recorder close", "error", err)
			exitCode = 1
		}
		st := recorder.Stats()
		logger.Info("recorder closed", "written", st.Written, "dropped", st.Dropped, "batches", st.Batches)
	}
	os.Exit(exitCode)
}
