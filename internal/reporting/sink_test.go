package reporting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

var fixedStart = time.Date(2025, time.March, 7, 14, 5, 9, 0, time.UTC)

func fixedClock() func() time.Time {
	var mu sync.Mutex
	now := fixedStart
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

// recordingWriter captures the report it receives.
type recordingWriter struct {
	mu      sync.Mutex
	calls   int
	report  *schemas.RunReport
	err     error
	name    string
}

func (w *recordingWriter) Name() string { return w.name }

func (w *recordingWriter) Write(ctx context.Context, r *schemas.RunReport) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	w.report = r
	return w.err
}

func newTestSink(t *testing.T, writers ...Writer) *Sink {
	t.Helper()
	return NewSink(Options{
		BaseDir:     t.TempDir(),
		Environment: "QA",
		Browser:     "chrome",
		Writers:     writers,
		Clock:       fixedClock(),
	}, zaptest.NewLogger(t))
}

func TestSink_InitCreatesRunDirOnce(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.Init(context.Background()))
	dir := s.Dir()
	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, dir, s.Dir())

	assert.Contains(t, filepath.ToSlash(dir), "/2025/Mar/07-03-2025/run_14-05-09")
	info, err := os.Stat(filepath.Join(dir, ScreenshotDirName))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSink_InitFailsOnUnwritableBase(t *testing.T) {
	base := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0o644))

	s := NewSink(Options{BaseDir: base, Clock: fixedClock()}, zap.NewNop())
	err := s.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create report directory")
	assert.ErrorIs(t, s.Flush(context.Background()), ErrNotInitialized)
}

// TestSink_WorkerIsolation runs many workers that log interleaved steps and checks
// that no step lands in another worker's entry.
func TestSink_WorkerIsolation(t *testing.T) {
	s := newTestSink(t)
	require.NoError(t, s.Init(context.Background()))

	const workers, tests, steps = 6, 5, 20
	var wg sync.WaitGroup
	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ctx := WithWorker(context.Background(), w)
			for tc := 0; tc < tests; tc++ {
				name := fmt.Sprintf("w%d-t%d", w, tc)
				e := s.Bind(ctx, name, 1)
				for i := 0; i < steps; i++ {
					s.Log(ctx, schemas.StatusInfo, name)
				}
				assert.NoError(t, e.Finish(schemas.VerdictPassed))
			}
		}(w)
	}
	wg.Wait()

	require.NoError(t, s.Flush(context.Background()))
	report := s.Report()
	require.Len(t, report.Entries, workers*tests)
	for _, e := range report.Entries {
		require.Len(t, e.Steps, steps, "entry %s", e.Name)
		for _, st := range e.Steps {
			assert.Equal(t, e.Name, st.Message, "step attributed to the wrong entry")
		}
	}
}

func TestSink_BindReplacesAndUnbindIsScoped(t *testing.T) {
	s := newTestSink(t)
	ctx := WithWorker(context.Background(), 3)

	first := s.Bind(ctx, "first", 1)
	second := s.Bind(ctx, "second", 1)
	assert.Same(t, second, s.Current(ctx))

	s.Unbind(ctx, first)
	assert.Same(t, second, s.Current(ctx), "a stale unbind must not clear the newer binding")
	s.Unbind(ctx, second)
	assert.Nil(t, s.Current(ctx))
	assert.Nil(t, s.Current(WithWorker(context.Background(), 4)))
}

func TestSink_AppendAfterSealIsDroppedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewSink(Options{BaseDir: t.TempDir(), Clock: fixedClock()}, zap.New(core))
	ctx := WithWorker(context.Background(), 1)

	e := s.Bind(ctx, "sealed", 1)
	require.NoError(t, e.Finish(schemas.VerdictFailed))
	assert.ErrorIs(t, e.Append(schemas.StepRecord{Message: "late"}), ErrEntrySealed)
	assert.ErrorIs(t, e.Finish(schemas.VerdictPassed), ErrEntrySealed)
	assert.Equal(t, schemas.VerdictFailed, e.Verdict())

	s.Log(ctx, schemas.StatusInfo, "late")
	require.Equal(t, 1, logs.FilterMessage("Dropped report step.").Len())
	assert.Empty(t, e.Steps())
}

func TestSink_LogWithoutBindingIsDropped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewSink(Options{BaseDir: t.TempDir(), Clock: fixedClock()}, zap.New(core))

	assert.NotPanics(t, func() {
		s.Log(context.Background(), schemas.StatusPass, "nobody listening")
	})
	assert.Equal(t, 1, logs.Len())
}

func TestSink_FlushRunsOnceAndSealsEverything(t *testing.T) {
	w1 := &recordingWriter{name: "a"}
	w2 := &recordingWriter{name: "b", err: errors.New("disk full")}
	s := newTestSink(t, w1, w2)
	require.NoError(t, s.Init(context.Background()))

	ctx := WithWorker(context.Background(), 1)
	done := s.Bind(ctx, "done", 1)
	s.Log(ctx, schemas.StatusPass, "step")
	require.NoError(t, done.Finish(schemas.VerdictPassed))
	dangling := s.Bind(ctx, "dangling", 1)

	err := s.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b writer: disk full")
	assert.Equal(t, err, s.Flush(context.Background()), "second flush returns the first result")

	assert.Equal(t, 1, w1.calls)
	assert.Equal(t, 1, w2.calls)
	assert.True(t, dangling.Sealed())
	assert.Nil(t, s.Current(ctx), "bindings are cleared at flush")

	report := w1.report
	require.NotNil(t, report)
	assert.Equal(t, s.Dir(), report.Dir)
	assert.Equal(t, "QA", report.Environment)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Entries, 2)
	assert.Equal(t, schemas.VerdictPassed, report.Entries[0].Verdict)
	assert.Equal(t, schemas.VerdictPending, report.Entries[1].Verdict)

	passed, failed, skipped := report.Counts()
	assert.Equal(t, [3]int{1, 0, 0}, [3]int{passed, failed, skipped})
}

func TestEntry_NilReceiverIsSafe(t *testing.T) {
	var e *Entry
	assert.ErrorIs(t, e.Append(schemas.StepRecord{}), ErrUnbound)
	assert.ErrorIs(t, e.Finish(schemas.VerdictPassed), ErrUnbound)
	assert.Empty(t, e.Name())
	assert.Nil(t, e.Steps())
	assert.False(t, e.Sealed())
	assert.Equal(t, schemas.VerdictPending, e.Verdict())
}

func TestWorkerFrom(t *testing.T) {
	_, ok := WorkerFrom(context.Background())
	assert.False(t, ok)
	w, ok := WorkerFrom(WithWorker(context.Background(), 7))
	assert.True(t, ok)
	assert.Equal(t, 7, w)
}
