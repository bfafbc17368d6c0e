// Package lifecycle runs test cases against isolated browser sessions, records
// their verdicts and retries flaky failures.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/actions"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
	"github.com/xkilldash9x/scalpel-e2e/internal/retry"
)

const (
	releaseTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

// BrowserProvider hands out isolated sessions from a shared engine.
type BrowserProvider interface {
	Start(ctx context.Context) error
	NewSession(ctx context.Context) (*browser.Session, error)
	Stop(ctx context.Context) error
}

// ReportSink records report entries per worker.
type ReportSink interface {
	Init(ctx context.Context) error
	Dir() string
	Bind(ctx context.Context, name string, attempt int) *reporting.Entry
	Unbind(ctx context.Context, e *reporting.Entry)
	Append(e *reporting.Entry, rec schemas.StepRecord)
	Flush(ctx context.Context) error
}

// Options tunes a Controller.
type Options struct {
	Workers          int
	RetryCount       int
	ScreenshotOnPass bool
	ScreenshotMode   string
	ActionTimeout    time.Duration
}

// OptionsFromConfig reads controller options from the run configuration.
func OptionsFromConfig(cfg config.Interface) Options {
	return Options{
		Workers:          cfg.Run().Workers,
		RetryCount:       cfg.Run().RetryCount,
		ScreenshotOnPass: cfg.Report().ScreenshotOnPass,
		ScreenshotMode:   cfg.Report().ScreenshotMode,
		ActionTimeout:    cfg.Browser().ActionTimeout,
	}
}

// Controller owns the per-test lifecycle: acquire a session, bind a report entry,
// run the body, record the verdict, release. It also brackets a whole run with
// BeforeClass and AfterClass.
type Controller struct {
	browsers BrowserProvider
	sink     ReportSink
	opts     Options
	capturer *reporting.Capturer
	logger   *zap.Logger

	afterOnce sync.Once
	afterErr  error
}

// NewController creates a controller. The browser provider and sink are shared
// by every worker.
func NewController(browsers BrowserProvider, sink ReportSink, opts Options, logger *zap.Logger) (*Controller, error) {
	if browsers == nil || sink == nil || logger == nil {
		return nil, errors.New("cannot initialize controller with nil dependencies")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ScreenshotMode == "" {
		opts.ScreenshotMode = reporting.ModeInline
	}
	return &Controller{
		browsers: browsers,
		sink:     sink,
		opts:     opts,
		capturer: reporting.NewCapturer(opts.ScreenshotMode, sink.Dir),
		logger:   logger.Named("lifecycle"),
	}, nil
}

// BeforeClass starts the browser engine and initializes the report. Both steps
// are idempotent; either failing is fatal to the run.
func (c *Controller) BeforeClass(ctx context.Context) error {
	if err := c.sink.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize report: %w", err)
	}
	if err := c.browsers.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	return nil
}

// AfterClass stops the browser and flushes the report exactly once. Both are
// always attempted; their errors are joined.
func (c *Controller) AfterClass(ctx context.Context) error {
	c.afterOnce.Do(func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := c.browsers.Stop(stopCtx); err != nil {
			c.logger.Error("Failed to stop browser.", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to stop browser: %w", err))
		}
		if err := c.sink.Flush(stopCtx); err != nil {
			c.logger.Error("Failed to flush report.", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to flush report: %w", err))
		}
		c.afterErr = errors.Join(errs...)
	})
	return c.afterErr
}

// CaseResult is the final outcome of one test case after all its attempts.
type CaseResult struct {
	Name     string
	Verdict  schemas.Verdict
	Attempts int
	Worker   int
	Err      error
}

// Summary is the outcome of a run.
type Summary struct {
	Cases    []CaseResult
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
}

// OK reports whether no case failed.
func (s *Summary) OK() bool { return s != nil && s.Failed == 0 }

// Run executes cases on a fixed pool of workers between BeforeClass and
// AfterClass. Cases not started before ctx is cancelled are reported as
// skipped. The returned error covers fatal setup failures, shutdown failures
// and cancellation; test failures are reported only through the Summary.
func (c *Controller) Run(ctx context.Context, cases []TestCase) (*Summary, error) {
	start := time.Now()
	if err := c.BeforeClass(ctx); err != nil {
		if afterErr := c.AfterClass(ctx); afterErr != nil {
			c.logger.Warn("Cleanup after failed setup reported errors.", zap.Error(afterErr))
		}
		return nil, err
	}

	results := make([]CaseResult, len(cases))
	for i, tc := range cases {
		results[i] = CaseResult{Name: tc.Name, Verdict: schemas.VerdictSkipped, Err: context.Canceled}
	}

	queue := make(chan int)
	workers := min(c.opts.Workers, max(1, len(cases)))
	c.logger.Info("Starting test run.", zap.Int("cases", len(cases)), zap.Int("workers", workers))

	var g errgroup.Group
	for w := 1; w <= workers; w++ {
		g.Go(func() error {
			c.runWorker(reporting.WithWorker(ctx, w), w, queue, cases, results)
			return nil
		})
	}

feed:
	for i := range cases {
		select {
		case <-ctx.Done():
			break feed
		case queue <- i:
		}
	}
	close(queue)
	_ = g.Wait()

	summary := &Summary{Cases: results, Duration: time.Since(start)}
	for _, r := range results {
		switch r.Verdict {
		case schemas.VerdictPassed:
			summary.Passed++
		case schemas.VerdictFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}

	err := c.AfterClass(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(fmt.Errorf("run interrupted: %w", ctxErr), err)
	}
	c.logger.Info("Test run finished.",
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)
	return summary, err
}

// runWorker runs cases from queue one at a time until the queue closes or ctx ends.
func (c *Controller) runWorker(ctx context.Context, worker int, queue <-chan int, cases []TestCase, results []CaseResult) {
	logger := c.logger.With(zap.Int("worker_id", worker))
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down.")
			return
		case i, ok := <-queue:
			if !ok {
				return
			}
			results[i] = c.RunCase(ctx, cases[i])
			results[i].Worker = worker
		}
	}
}

// RunCase runs every attempt of tc on the calling goroutine. ctx should carry
// the worker ID (reporting.WithWorker). The retry policy lives only for this call.
func (c *Controller) RunCase(ctx context.Context, tc TestCase) CaseResult {
	policy := retry.New(c.opts.RetryCount)
	res := CaseResult{Name: tc.Name}
	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		verdict, again, err := c.runAttempt(ctx, tc, attempt, policy)
		res.Verdict, res.Err = verdict, err
		if !again {
			return res
		}
	}
}

// runAttempt executes one attempt. again reports whether the policy granted a retry.
func (c *Controller) runAttempt(ctx context.Context, tc TestCase, attempt int, policy *retry.Policy) (verdict schemas.Verdict, again bool, runErr error) {
	state := &attemptState{}
	worker, _ := reporting.WorkerFrom(ctx)
	logger := c.logger.With(zap.String("test", tc.Name), zap.Int("attempt", attempt), zap.Int("worker_id", worker))

	session, err := c.browsers.NewSession(ctx)
	if err != nil {
		c.mustAdvance(state, Failed, logger)
		runErr = fmt.Errorf("failed to acquire browser session: %w", err)
		entry := c.sink.Bind(ctx, tc.Name, attempt)
		defer c.sink.Unbind(ctx, entry)
		c.sink.Append(entry, schemas.StepRecord{Status: schemas.StatusFail, Message: runErr.Error()})
		verdict, again = c.conclude(ctx, entry, tc.Name, runErr, nil, policy, logger)
		c.mustAdvance(state, Released, logger)
		return verdict, again, runErr
	}
	c.mustAdvance(state, ContextAcquired, logger)

	// Release runs even if everything below panics or reporting fails.
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := session.Close(releaseCtx); err != nil {
			logger.Warn("Failed to release browser session.", zap.Error(err))
		}
		c.mustAdvance(state, Released, logger)
	}()

	entry := c.sink.Bind(ctx, tc.Name, attempt)
	defer c.sink.Unbind(ctx, entry)
	c.mustAdvance(state, ReportBound, logger)

	acts, err := actions.New(actions.Options{
		Page:             session.Page(),
		Recorder:         entry,
		Capturer:         c.capturer,
		ScreenshotOnPass: c.opts.ScreenshotOnPass,
		TestName:         tc.Name,
		WaitTimeout:      c.opts.ActionTimeout,
		Logger:           logger,
	})
	if err != nil {
		c.mustAdvance(state, Running, logger)
		runErr = fmt.Errorf("failed to prepare actions: %w", err)
	} else {
		t := &T{
			Name:    tc.Name,
			Attempt: attempt,
			Worker:  worker,
			Actions: acts,
			entry:   entry,
			sink:    c.sink,
			logger:  logger,
		}
		c.mustAdvance(state, Running, logger)
		runErr = c.runBody(ctx, tc, t, logger)
	}

	verdict, again = c.conclude(ctx, entry, tc.Name, runErr, session.Page(), policy, logger)
	switch {
	case verdict == schemas.VerdictPassed:
		c.mustAdvance(state, Passed, logger)
	case verdict == schemas.VerdictSkipped && !again:
		c.mustAdvance(state, Skipped, logger)
	default:
		c.mustAdvance(state, Failed, logger)
	}
	return verdict, again, runErr
}

// runBody calls the test body, converting a panic into a failure.
func (c *Controller) runBody(ctx context.Context, tc TestCase, t *T, logger *zap.Logger) (err error) {
	if tc.Body == nil {
		return errors.New("test case has no body")
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Test body panicked.", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic in test body: %v", r)
		}
	}()
	return tc.Body(ctx, t)
}

// conclude classifies the outcome, consults the retry policy on failure, appends
// the verdict step and seals the entry. A failure that will be retried is
// sealed as skipped so only the final attempt counts as failed.
func (c *Controller) conclude(ctx context.Context, entry *reporting.Entry, name string, runErr error, page schemas.Page, policy *retry.Policy, logger *zap.Logger) (schemas.Verdict, bool) {
	var (
		verdict schemas.Verdict
		rec     schemas.StepRecord
		again   bool
	)
	switch {
	case runErr == nil:
		verdict = schemas.VerdictPassed
		rec = schemas.StepRecord{Status: schemas.StatusPass, Message: "Test passed: " + name}
		if c.opts.ScreenshotOnPass {
			rec.Screenshot = c.capture(ctx, page, name, logger)
		}
	case IsSkip(runErr):
		verdict = schemas.VerdictSkipped
		rec = schemas.StepRecord{Status: schemas.StatusSkip, Message: fmt.Sprintf("Test skipped: %s - %v", name, runErr)}
	default:
		verdict = schemas.VerdictFailed
		rec = schemas.StepRecord{
			Status:     schemas.StatusFail,
			Message:    fmt.Sprintf("Test failed: %s - %v", name, runErr),
			Screenshot: c.capture(ctx, page, name, logger),
		}
	}
	c.sink.Append(entry, rec)

	if verdict == schemas.VerdictFailed && ctx.Err() == nil {
		notify := retry.NotifierFunc(func(status schemas.StepStatus, msg string) {
			c.sink.Append(entry, schemas.StepRecord{Status: status, Message: msg})
		})
		if policy.ShouldRetry(retry.Outcome{Name: name, Verdict: verdict}, notify) {
			again = true
			verdict = schemas.VerdictSkipped
		}
	}

	if err := entry.Finish(verdict); err != nil {
		logger.Warn("Failed to record verdict.", zap.Error(err))
	}
	if again {
		logger.Info("Test failed, retrying.", zap.Error(runErr))
	} else {
		logger.Info("Test finished.", zap.String("verdict", string(verdict)))
	}
	return verdict, again
}

// capture takes a best-effort screenshot on a context that survives cancellation.
func (c *Controller) capture(ctx context.Context, page schemas.Page, name string, logger *zap.Logger) *schemas.Attachment {
	if page == nil {
		return nil
	}
	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	shot, err := c.capturer.Capture(captureCtx, page, name)
	if err != nil {
		logger.Debug("Screenshot unavailable for verdict step.", zap.Error(err))
		return nil
	}
	return shot
}

func (c *Controller) mustAdvance(state *attemptState, next State, logger *zap.Logger) {
	if err := state.advance(next); err != nil {
		logger.Error("Lifecycle state error.", zap.Error(err))
	}
}
