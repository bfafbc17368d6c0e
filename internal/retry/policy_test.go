package retry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) Log(status schemas.StepStatus, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, string(status)+": "+msg)
}

func failed(name string) Outcome { return Outcome{Name: name, Verdict: schemas.VerdictFailed} }

func TestPolicy_RetriesUpToMax(t *testing.T) {
	p := New(2)
	n := &notes{}

	assert.True(t, p.ShouldRetry(failed("Checkout"), n))
	assert.True(t, p.ShouldRetry(failed("Checkout"), n))
	assert.False(t, p.ShouldRetry(failed("Checkout"), n))
	assert.Equal(t, 2, p.Retries())

	assert.Equal(t, []string{
		"info: Retrying test [Checkout] - Attempt 1 of 2",
		"info: Retrying test [Checkout] - Attempt 2 of 2",
	}, n.msgs)
}

func TestPolicy_OnlyFailuresAreRetried(t *testing.T) {
	p := New(3)
	for _, v := range []schemas.Verdict{schemas.VerdictPassed, schemas.VerdictSkipped, schemas.VerdictPending} {
		assert.False(t, p.ShouldRetry(Outcome{Name: "x", Verdict: v}, nil), "verdict %q", v)
	}
	assert.Zero(t, p.Retries())
}

func TestPolicy_NegativeAndZeroMax(t *testing.T) {
	for _, limit := range []int{-1, 0} {
		p := New(limit)
		assert.Zero(t, p.Max())
		assert.False(t, p.ShouldRetry(failed("x"), nil))
	}
}

func TestPolicy_InstancesAreIndependent(t *testing.T) {
	a, b := New(1), New(1)
	assert.True(t, a.ShouldRetry(failed("a"), nil))
	assert.True(t, b.ShouldRetry(failed("b"), NotifierFunc(func(schemas.StepStatus, string) {})))
	assert.False(t, a.ShouldRetry(failed("a"), nil))
}

// TestPolicy_ExecutionCount simulates the controller loop: with max n, a test
// that always fails runs n+1 times; one that fails k<n times runs k+1 times.
func TestPolicy_ExecutionCount(t *testing.T) {
	run := func(limit, failures int) (runs int, final schemas.Verdict) {
		p := New(limit)
		for {
			runs++
			final = schemas.VerdictPassed
			if runs <= failures {
				final = schemas.VerdictFailed
			}
			if !p.ShouldRetry(Outcome{Name: "t", Verdict: final}, nil) {
				return runs, final
			}
		}
	}

	runs, v := run(3, 100)
	assert.Equal(t, 4, runs)
	assert.Equal(t, schemas.VerdictFailed, v)

	runs, v = run(3, 2)
	assert.Equal(t, 3, runs)
	assert.Equal(t, schemas.VerdictPassed, v)
}
