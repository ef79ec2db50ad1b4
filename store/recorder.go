package store

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RecorderConfig controls batching of recorded decisions.
type RecorderConfig struct {
	OutDir     string
	FlushRows  int           // flush once this many rows are buffered
	FlushEvery time.Duration // flush at this interval regardless of count
	Buffer     int           // queue length between Record and the writer
}

func DefaultRecorderConfig(outDir string) RecorderConfig {
	return RecorderConfig{
		OutDir:     outDir,
		FlushRows:  5000,
		FlushEvery: time.Minute,
		Buffer:     1024,
	}
}

// RecorderStats counts rows through the recorder.
type RecorderStats struct {
	Written int64
	Dropped int64
	Batches int64
	Failed  int64
}

// Recorder writes decisions to Parquet batches from a background goroutine.
// Record never blocks the caller: when the queue is full the row is dropped
// and counted.
type Recorder struct {
	cfg    RecorderConfig
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	in     chan DecisionRow
	done   chan struct{}

	written atomic.Int64
	dropped atomic.Int64
	batches atomic.Int64
	failed  atomic.Int64
}

func NewRecorder(cfg RecorderConfig, logger *slog.Logger) (*Recorder, error) {
	if cfg.OutDir == "" {
		return nil, fmt.Errorf("recorder out dir is required")
	}
	if cfg.FlushRows <= 0 {
		cfg.FlushRows = 5000
	}
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = time.Minute
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Recorder{
		cfg:    cfg,
		logger: logger.With("component", "recorder"),
		in:     make(chan DecisionRow, cfg.Buffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r, nil
}

// Record queues row for writing. It reports false if the row was dropped.
func (r *Recorder) Record(row DecisionRow) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.in <- row:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Close flushes buffered rows and stops the writer. It is safe to call twice.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.in)
	}
	r.mu.Unlock()
	<-r.done

	if n := r.failed.Load(); n > 0 {
		return fmt.Errorf("%d batches failed to write", n)
	}
	return nil
}

func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Batches: r.batches.Load(),
		Failed:  r.failed.Load(),
	}
}

func (r *Recorder) loop() {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.FlushEvery)
	defer ticker.Stop()

	pending := make([]DecisionRow, 0, r.cfg.FlushRows)
	flush := func(reason string) {
		if len(pending) == 0 {
			return
		}
		path, err := WriteBatchParquetAtomic(r.cfg.OutDir, pending)
		if err != nil {
			r.failed.Add(1)
			r.logger.Error("parquet flush failed", "reason", reason, "rows", len(pending), "error", err)
		} else {
			r.batches.Add(1)
			r.written.Add(int64(len(pending)))
			r.logger.Debug("parquet flush ok", "reason", reason, "rows", len(pending), "path", path)
		}
		pending = pending[:0]
	}

	for {
		select {
		case row, ok := <-r.in:
			if !ok {
				flush("close")
				return
			}
			pending = append(pending, row)
			if len(pending) >= r.cfg.FlushRows {
				flush("count")
			}
		case <-ticker.C:
			flush("ticker")
		}
	}
}
