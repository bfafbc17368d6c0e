package reporting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// ErrNotInitialized is returned by Flush when Init never succeeded.
var ErrNotInitialized = errors.New("report sink not initialized")

// Writer turns a flushed run into a durable artifact.
type Writer interface {
	Name() string
	Write(ctx context.Context, report *schemas.RunReport) error
}

// Options configures a Sink.
type Options struct {
	// BaseDir is the report root; the run directory is created beneath it.
	BaseDir     string
	Environment string
	Author      string
	Browser     string
	Writers     []Writer
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Sink is the process-wide report recorder. Each worker has at most one bound
// entry at a time; steps logged from a worker's context go to that entry only.
type Sink struct {
	opts   Options
	logger *zap.Logger

	initOnce sync.Once
	initErr  error
	runID    string
	dir      string
	started  time.Time

	mu      sync.Mutex
	entries []*Entry
	bound   map[int]*Entry

	flushOnce sync.Once
	flushErr  error
	report    *schemas.RunReport
}

// NewSink creates a sink. Nothing is written to disk before Init.
func NewSink(opts Options, logger *zap.Logger) *Sink {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Sink{
		opts:   opts,
		logger: logger.Named("report_sink"),
		bound:  make(map[int]*Entry),
	}
}

// Init creates the run directory. Repeated calls return the first result.
func (s *Sink) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		started := s.opts.Clock()
		dir := RunDir(s.opts.BaseDir, started)
		if err := createRunDir(dir); err != nil {
			s.initErr = err
			return
		}
		s.mu.Lock()
		s.runID = uuid.NewString()
		s.dir = dir
		s.started = started
		s.mu.Unlock()
		s.logger.Info("Report initialized.", zap.String("dir", dir), zap.String("run_id", s.runID))
	})
	return s.initErr
}

// Dir returns the run directory, or "" before Init.
func (s *Sink) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

// Bind creates the entry for one attempt of a test and binds it to the worker on
// ctx, replacing that worker's previous binding.
func (s *Sink) Bind(ctx context.Context, name string, attempt int) *Entry {
	worker, _ := WorkerFrom(ctx)
	e := &Entry{
		id:      uuid.NewString(),
		name:    name,
		worker:  worker,
		attempt: attempt,
		now:     s.opts.Clock,
	}
	e.started = e.now()

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.bound[worker] = e
	s.mu.Unlock()
	return e
}

// Current returns the entry bound to the worker on ctx, or nil.
func (s *Sink) Current(ctx context.Context) *Entry {
	worker, _ := WorkerFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound[worker]
}

// Unbind clears the worker's binding if it still points at e.
func (s *Sink) Unbind(ctx context.Context, e *Entry) {
	worker, _ := WorkerFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound[worker] == e {
		delete(s.bound, worker)
	}
}

// Append records a step on e. Failures are logged and dropped.
func (s *Sink) Append(e *Entry, rec schemas.StepRecord) {
	if err := e.Append(rec); err != nil {
		s.logger.Warn("Dropped report step.",
			zap.String("test", e.Name()),
			zap.String("status", string(rec.Status)),
			zap.String("message", rec.Message),
			zap.Error(err),
		)
	}
}

// Log records a text step on the entry bound to ctx's worker.
func (s *Sink) Log(ctx context.Context, status schemas.StepStatus, msg string) {
	s.Append(s.Current(ctx), schemas.StepRecord{Status: status, Message: msg})
}

// Flush seals every entry, builds the run report and hands it to each writer.
// Only the first call does work; writer errors are joined.
func (s *Sink) Flush(ctx context.Context) error {
	s.flushOnce.Do(func() {
		s.flushErr = s.flush(ctx)
	})
	return s.flushErr
}

func (s *Sink) flush(ctx context.Context) error {
	s.mu.Lock()
	dir, runID, started := s.dir, s.runID, s.started
	entries := s.entries
	s.bound = make(map[int]*Entry)
	s.mu.Unlock()

	if dir == "" {
		return ErrNotInitialized
	}

	report := &schemas.RunReport{
		RunID:       runID,
		Dir:         dir,
		Environment: s.opts.Environment,
		Author:      s.opts.Author,
		Browser:     s.opts.Browser,
		StartedAt:   started,
		EndedAt:     s.opts.Clock(),
		Entries:     make([]schemas.EntryReport, 0, len(entries)),
	}
	for _, e := range entries {
		e.seal()
		report.Entries = append(report.Entries, e.Snapshot())
	}

	s.mu.Lock()
	s.report = report
	s.mu.Unlock()

	var errs []error
	for _, w := range s.opts.Writers {
		if err := w.Write(ctx, report); err != nil {
			s.logger.Error("Report writer failed.", zap.String("writer", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s writer: %w", w.Name(), err))
		}
	}

	passed, failed, skipped := report.Counts()
	s.logger.Info("Report flushed.",
		zap.String("dir", dir),
		zap.Int("passed", passed),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
	return errors.Join(errs...)
}

// Report returns the flushed run report, or nil before Flush.
func (s *Sink) Report() *schemas.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}
