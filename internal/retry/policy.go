// Package retry decides whether a failed test attempt runs again.
package retry

import (
	"fmt"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// Outcome is the result of one attempt as seen by the policy.
type Outcome struct {
	Name    string
	Verdict schemas.Verdict
}

// Notifier receives the informational step emitted before a retry. It may be nil.
type Notifier interface {
	Log(status schemas.StepStatus, msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(status schemas.StepStatus, msg string)

func (f NotifierFunc) Log(status schemas.StepStatus, msg string) { f(status, msg) }

// Policy tracks retries for one invocation of one test case. It is not safe for
// concurrent use; each invocation owns its own Policy.
type Policy struct {
	attempts int
	max      int
}

// New returns a policy allowing limit retries. Negative values mean no retry.
func New(limit int) *Policy {
	if limit < 0 {
		limit = 0
	}
	return &Policy{max: limit}
}

// ShouldRetry reports whether the attempt described by outcome should run again.
// Only failures are retried, at most max times.
func (p *Policy) ShouldRetry(outcome Outcome, notifier Notifier) bool {
	if outcome.Verdict != schemas.VerdictFailed || p.attempts >= p.max {
		return false
	}
	p.attempts++
	if notifier != nil {
		notifier.Log(schemas.StatusInfo, fmt.Sprintf("Retrying test [%s] - Attempt %d of %d", outcome.Name, p.attempts, p.max))
	}
	return true
}

// Retries returns how many retries have been granted so far.
func (p *Policy) Retries() int { return p.attempts }

// Max returns the configured bound.
func (p *Policy) Max() int { return p.max }
