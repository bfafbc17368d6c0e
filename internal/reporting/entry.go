package reporting

import (
	"errors"
	"sync"
	"time"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

var (
	// ErrEntrySealed is returned when a step is appended after the verdict.
	ErrEntrySealed = errors.New("report entry is sealed")
	// ErrUnbound is returned when there is no entry to append to.
	ErrUnbound = errors.New("no report entry bound")
)

// Entry is the report of a single test attempt. Its methods are safe for
// concurrent use and tolerate a nil receiver.
type Entry struct {
	id      string
	name    string
	worker  int
	attempt int
	now     func() time.Time

	mu      sync.Mutex
	started time.Time
	ended   time.Time
	steps   []schemas.StepRecord
	verdict schemas.Verdict
	sealed  bool
}

func (e *Entry) ID() string {
	if e == nil {
		return ""
	}
	return e.id
}

func (e *Entry) Name() string {
	if e == nil {
		return ""
	}
	return e.name
}

func (e *Entry) Worker() int {
	if e == nil {
		return 0
	}
	return e.worker
}

func (e *Entry) Attempt() int {
	if e == nil {
		return 0
	}
	return e.attempt
}

// Append adds a step. A zero timestamp is filled in with the current time.
func (e *Entry) Append(rec schemas.StepRecord) error {
	if e == nil {
		return ErrUnbound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrEntrySealed
	}
	if rec.Time.IsZero() {
		rec.Time = e.now()
	}
	e.steps = append(e.steps, rec)
	return nil
}

// Finish records the verdict and seals the entry. Only the first call has effect.
func (e *Entry) Finish(v schemas.Verdict) error {
	if e == nil {
		return ErrUnbound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return ErrEntrySealed
	}
	e.verdict = v
	e.ended = e.now()
	e.sealed = true
	return nil
}

// seal closes the entry without a verdict, used at flush time.
func (e *Entry) seal() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed {
		return
	}
	e.ended = e.now()
	e.sealed = true
}

func (e *Entry) Verdict() schemas.Verdict {
	if e == nil {
		return schemas.VerdictPending
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.verdict
}

func (e *Entry) Sealed() bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sealed
}

// Steps returns a copy of the recorded steps.
func (e *Entry) Steps() []schemas.StepRecord {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]schemas.StepRecord(nil), e.steps...)
}

// Snapshot returns the entry in its flushed form.
func (e *Entry) Snapshot() schemas.EntryReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return schemas.EntryReport{
		ID:        e.id,
		Name:      e.name,
		Worker:    e.worker,
		Attempt:   e.attempt,
		Verdict:   e.verdict,
		StartedAt: e.started,
		EndedAt:   e.ended,
		Steps:     append([]schemas.StepRecord(nil), e.steps...),
	}
}
