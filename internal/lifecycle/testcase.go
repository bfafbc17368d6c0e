package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/actions"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
)

// TestCase is one named, runnable test. Body runs once per attempt with a fresh
// session and report entry.
type TestCase struct {
	Name string
	Body func(ctx context.Context, t *T) error
}

// T is the execution context handed to a test body. It belongs to a single
// attempt and must not be retained after the body returns.
type T struct {
	Name    string
	Attempt int
	Worker  int
	// Actions drives the attempt's page and records a step per operation.
	Actions *actions.Actions

	entry  *reporting.Entry
	sink   ReportSink
	logger *zap.Logger
}

// Page returns the attempt's browser page.
func (t *T) Page() schemas.Page { return t.Actions.Page() }

// Logger returns a logger tagged with the test name and attempt.
func (t *T) Logger() *zap.Logger { return t.logger }

// Log appends an info step to the attempt's report entry.
func (t *T) Log(msg string) {
	t.sink.Append(t.entry, schemas.StepRecord{Status: schemas.StatusInfo, Message: msg})
}

// Logf is Log with formatting.
func (t *T) Logf(format string, args ...any) {
	t.Log(fmt.Sprintf(format, args...))
}

// SkipError marks an attempt as skipped rather than failed.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return "test skipped: " + e.Reason }

// Skip returns an error that, when returned from a body, skips the test.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// IsSkip reports whether err, or anything it wraps, is a SkipError.
func IsSkip(err error) bool {
	var skip *SkipError
	return errors.As(err, &skip)
}
