// Filename: browser/manager_test.go
package browser_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/browser"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
	"github.com/xkilldash9x/scalpel-e2e/internal/mocks"
)

// countingLauncher hands out a single FakeEngine and counts launches.
type countingLauncher struct {
	launches atomic.Int32
	engine   *mocks.FakeEngine
	delay    time.Duration
	failN    int32 // fail the first failN launches
}

func (l *countingLauncher) Launch(ctx context.Context, spec browser.LaunchSpec) (schemas.Engine, error) {
	n := l.launches.Add(1)
	if l.delay > 0 {
		time.Sleep(l.delay)
	}
	if n <= l.failN {
		return nil, errors.New("executable not found")
	}
	return l.engine, nil
}

func newTestManager(t *testing.T, cfg config.BrowserConfig, l browser.Launcher) *browser.Manager {
	t.Helper()
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = time.Second
	}
	return browser.NewManager(cfg, l, zaptest.NewLogger(t))
}

func TestManager_StartIsSingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)

	l := &countingLauncher{engine: &mocks.FakeEngine{}, delay: 20 * time.Millisecond}
	m := newTestManager(t, config.BrowserConfig{Kind: "chrome"}, l)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Start(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), l.launches.Load(), "engine must be launched exactly once")
	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, int32(1), l.launches.Load())

	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, 1, l.engine.CloseCount())
}

func TestManager_LaunchFailureIsNotCached(t *testing.T) {
	l := &countingLauncher{engine: &mocks.FakeEngine{}, failN: 1}
	m := newTestManager(t, config.BrowserConfig{}, l)

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executable not found")

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, int32(2), l.launches.Load())
	require.NoError(t, m.Stop(context.Background()))
}

func TestManager_SessionsAreIsolatedAndReleased(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &mocks.FakeEngine{}
	m := newTestManager(t, config.BrowserConfig{}, &countingLauncher{engine: engine})

	const n = 8
	var wg sync.WaitGroup
	sessions := make([]*browser.Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.NewSession(context.Background())
			if assert.NoError(t, err) {
				sessions[i] = s
			}
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, s := range sessions {
		ids[s.ID()] = true
	}
	assert.Len(t, ids, n, "session IDs must be unique")
	assert.Equal(t, browser.Stats{Acquired: n, Released: 0, Active: n}, m.Stats())

	for _, s := range sessions {
		require.NoError(t, s.Close(context.Background()))
		require.NoError(t, s.Close(context.Background()), "close is idempotent")
	}
	assert.Equal(t, browser.Stats{Acquired: n, Released: n, Active: 0}, m.Stats())
	for _, fs := range engine.Sessions() {
		assert.Equal(t, 1, fs.CloseCount())
	}

	require.NoError(t, m.Stop(context.Background()))
}

func TestManager_StopClosesLeftoverSessions(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &mocks.FakeEngine{}
	m := newTestManager(t, config.BrowserConfig{}, &countingLauncher{engine: engine})

	_, err := m.NewSession(context.Background())
	require.NoError(t, err)
	_, err = m.NewSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))

	stats := m.Stats()
	assert.Equal(t, stats.Acquired, stats.Released)
	assert.Zero(t, stats.Active)
	assert.Equal(t, 1, engine.CloseCount())
}

func TestManager_StopIsIdempotentAndSafeBeforeStart(t *testing.T) {
	l := &countingLauncher{engine: &mocks.FakeEngine{}}
	m := newTestManager(t, config.BrowserConfig{}, l)

	require.NoError(t, m.Stop(context.Background()))
	require.NoError(t, m.Stop(context.Background()))
	assert.Zero(t, l.launches.Load())

	assert.ErrorIs(t, m.Start(context.Background()), browser.ErrManagerStopped)
	_, err := m.NewSession(context.Background())
	assert.ErrorIs(t, err, browser.ErrManagerStopped)
}

func TestManager_EngineSessionFailureReleasesSlot(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &mocks.FakeEngine{SessionErr: errors.New("context limit")}
	m := newTestManager(t, config.BrowserConfig{}, &countingLauncher{engine: engine})

	_, err := m.NewSession(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context limit")

	// Stop must not wait on a session that was never created.
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.NoError(t, ctx.Err())
}

func TestManager_SessionOptionsFollowMaximizeRules(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.BrowserConfig
		noViewport bool
		viewport   *schemas.Viewport
	}{
		{"chrome maximized", config.BrowserConfig{Kind: "chrome", Maximize: true}, true, nil},
		{"edge maximized", config.BrowserConfig{Kind: "msedge", Maximize: true}, true, nil},
		{"firefox maximized", config.BrowserConfig{Kind: "firefox", Maximize: true}, false, &schemas.Viewport{Width: 1920, Height: 1080}},
		{"webkit maximized", config.BrowserConfig{Kind: "webkit", Maximize: true}, false, &schemas.Viewport{Width: 1920, Height: 1080}},
		{"not maximized", config.BrowserConfig{Kind: "chrome"}, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &mocks.FakeEngine{}
			m := newTestManager(t, tt.cfg, &countingLauncher{engine: engine})
			s, err := m.NewSession(context.Background())
			require.NoError(t, err)
			defer m.Stop(context.Background())
			defer s.Close(context.Background())

			opts := engine.Sessions()[0].Options
			assert.Equal(t, tt.noViewport, opts.NoViewport)
			assert.Equal(t, tt.viewport, opts.Viewport)
			assert.Equal(t, time.Second, opts.ActionTimeout)
		})
	}
}

func TestLaunchSpecFromConfig(t *testing.T) {
	t.Run("chromium maximize adds start-maximized once", func(t *testing.T) {
		spec := browser.LaunchSpecFromConfig(config.BrowserConfig{Kind: "Chrome", Maximize: true, Args: []string{"--start-maximized"}})
		assert.Equal(t, browser.KindChrome, spec.Kind)
		assert.Equal(t, []string{"--start-maximized"}, spec.Args)
	})

	t.Run("firefox never gets chromium switches", func(t *testing.T) {
		spec := browser.LaunchSpecFromConfig(config.BrowserConfig{Kind: "firefox", Maximize: true})
		assert.Empty(t, spec.Args)
	})

	t.Run("config args are copied", func(t *testing.T) {
		args := []string{"--no-sandbox"}
		spec := browser.LaunchSpecFromConfig(config.BrowserConfig{Kind: "chromium", Maximize: true, Args: args})
		assert.Equal(t, []string{"--no-sandbox", "--start-maximized"}, spec.Args)
		assert.Equal(t, []string{"--no-sandbox"}, args)
	})
}

func TestNewLauncher(t *testing.T) {
	logger := zaptest.NewLogger(t)

	l, err := browser.NewLauncher(config.DriverPlaywright, logger)
	require.NoError(t, err)
	assert.IsType(t, &browser.PlaywrightLauncher{}, l)

	l, err = browser.NewLauncher(config.DriverCDP, logger)
	require.NoError(t, err)
	assert.IsType(t, &browser.CDPLauncher{}, l)

	_, err = browser.NewLauncher("selenium", logger)
	assert.Error(t, err)
}

func TestCDPLauncher_RejectsNonChromium(t *testing.T) {
	l := browser.NewCDPLauncher(zaptest.NewLogger(t))
	_, err := l.Launch(context.Background(), browser.LaunchSpec{Kind: browser.KindFirefox})
	assert.ErrorIs(t, err, browser.ErrUnsupportedFamily)
}
