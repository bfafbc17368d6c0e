// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

// ErrManagerStopped is returned by Start and NewSession once Stop has been called.
var ErrManagerStopped = errors.New("browser manager is stopped")

const (
	shutdownGracePeriod = 15 * time.Second
	sessionCloseTimeout = 10 * time.Second
	startMaximizedArg   = "--start-maximized"
)

// fallbackViewport is used when a maximized window is requested from a family that
// cannot follow the OS window size.
var fallbackViewport = schemas.Viewport{Width: 1920, Height: 1080}

// LaunchSpec is everything a driver needs to start the engine process.
type LaunchSpec struct {
	Kind     Kind
	Headless bool
	Maximize bool
	Args     []string
	Timeout  time.Duration
	Install  bool
}

// LaunchSpecFromConfig resolves the launch parameters for the configured browser.
func LaunchSpecFromConfig(cfg config.BrowserConfig) LaunchSpec {
	spec := LaunchSpec{
		Kind:     ParseKind(cfg.Kind),
		Headless: cfg.Headless,
		Maximize: cfg.Maximize,
		Args:     append([]string(nil), cfg.Args...),
		Timeout:  cfg.LaunchTimeout,
		Install:  cfg.Install,
	}
	if spec.Maximize && spec.Kind.Family() == schemas.FamilyChromium && !containsArg(spec.Args, startMaximizedArg) {
		spec.Args = append(spec.Args, startMaximizedArg)
	}
	return spec
}

func containsArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

// Launcher starts an engine process.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (schemas.Engine, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, spec LaunchSpec) (schemas.Engine, error)

func (f LauncherFunc) Launch(ctx context.Context, spec LaunchSpec) (schemas.Engine, error) {
	return f(ctx, spec)
}

// NewLauncher returns the launcher for the configured driver.
func NewLauncher(driver string, logger *zap.Logger) (Launcher, error) {
	switch driver {
	case config.DriverPlaywright, "":
		return NewPlaywrightLauncher(logger), nil
	case config.DriverCDP:
		return NewCDPLauncher(logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", driver)
	}
}

// Stats counts session traffic through the manager.
type Stats struct {
	Acquired int64
	Released int64
	Active   int
}

// Manager owns the single engine process for a run and hands out isolated sessions.
type Manager struct {
	launcher      Launcher
	spec          LaunchSpec
	actionTimeout time.Duration
	logger        *zap.Logger

	launch singleflight.Group

	mu       sync.RWMutex
	engine   schemas.Engine
	stopped  bool
	sessions map[string]*Session
	wg       sync.WaitGroup // tracks sessions until their onClose runs

	acquired atomic.Int64
	released atomic.Int64

	stopOnce sync.Once
	stopErr  error
}

// NewManager creates a browser manager. The engine is launched lazily by Start or
// the first NewSession.
func NewManager(cfg config.BrowserConfig, launcher Launcher, logger *zap.Logger) *Manager {
	m := &Manager{
		launcher:      launcher,
		spec:          LaunchSpecFromConfig(cfg),
		actionTimeout: cfg.ActionTimeout,
		logger:        logger.Named("browser_manager"),
		sessions:      make(map[string]*Session),
	}
	m.logger.Debug("Browser manager created (launch deferred).")
	return m
}

// Spec returns the resolved launch parameters.
func (m *Manager) Spec() LaunchSpec { return m.spec }

// Start launches the engine if it is not already running. Concurrent callers share
// a single launch. A failed launch is not remembered, so a later call tries again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.RLock()
	running, stopped := m.engine != nil, m.stopped
	m.mu.RUnlock()
	if stopped {
		return ErrManagerStopped
	}
	if running {
		return nil
	}

	_, err, _ := m.launch.Do("launch", func() (interface{}, error) {
		m.mu.RLock()
		running, stopped := m.engine != nil, m.stopped
		m.mu.RUnlock()
		if stopped {
			return nil, ErrManagerStopped
		}
		if running {
			return nil, nil
		}

		m.logger.Info("Launching browser.",
			zap.String("browser", string(m.spec.Kind)),
			zap.Bool("headless", m.spec.Headless),
			zap.Bool("maximize", m.spec.Maximize),
		)
		engine, err := m.launcher.Launch(ctx, m.spec)
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser %q: %w", m.spec.Kind, err)
		}

		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			cleanupCtx, cancel := detachedTimeout(ctx, shutdownGracePeriod)
			defer cancel()
			_ = engine.Close(cleanupCtx)
			return nil, ErrManagerStopped
		}
		m.engine = engine
		m.mu.Unlock()

		m.logger.Info("Browser launched.", zap.String("version", engine.Version()))
		return nil, nil
	})
	return err
}

// NewSession returns a fresh isolated context with one page. The engine is started
// on demand. Safe for concurrent use.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.Start(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	engine := m.engine
	m.wg.Add(1)
	m.mu.Unlock()

	es, err := engine.NewSession(ctx, m.sessionOptions())
	if err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	s := newSession(uuid.NewString(), es)
	s.onClose = func() {
		m.mu.Lock()
		delete(m.sessions, s.ID())
		m.mu.Unlock()
		m.released.Add(1)
		m.wg.Done()
		m.logger.Debug("Session released.", zap.String("session_id", s.ID()))
	}

	m.mu.Lock()
	if m.stopped {
		// Stop already snapshotted the session map, so this one would be missed.
		m.mu.Unlock()
		m.acquired.Add(1)
		cleanupCtx, cancel := detachedTimeout(ctx, sessionCloseTimeout)
		defer cancel()
		_ = s.Close(cleanupCtx)
		return nil, ErrManagerStopped
	}
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.acquired.Add(1)

	m.logger.Debug("Session acquired.", zap.String("session_id", s.ID()))
	return s, nil
}

// sessionOptions applies the maximize rules: chromium follows the window, other
// families get a fixed large viewport.
func (m *Manager) sessionOptions() schemas.SessionOptions {
	opts := schemas.SessionOptions{ActionTimeout: m.actionTimeout}
	if !m.spec.Maximize {
		return opts
	}
	if m.spec.Kind.Family() == schemas.FamilyChromium {
		opts.NoViewport = true
	} else {
		vp := fallbackViewport
		opts.Viewport = &vp
	}
	return opts
}

// Stop closes any sessions still open, then the engine. It is safe to call before
// Start and more than once; only the first call does work.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.stopErr = m.stop(ctx)
	})
	return m.stopErr
}

func (m *Manager) stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	engine := m.engine
	m.engine = nil
	leftovers := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		leftovers = append(leftovers, s)
	}
	m.mu.Unlock()

	if engine == nil && len(leftovers) == 0 {
		m.logger.Debug("Browser manager stopped before launch.")
		return nil
	}

	if len(leftovers) > 0 {
		m.logger.Warn("Closing sessions left open at shutdown.", zap.Int("count", len(leftovers)))
	}
	for _, s := range leftovers {
		go func(s *Session) {
			if err := s.Close(ctx); err != nil {
				m.logger.Warn("Error during session close in shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close. Proceeding with engine shutdown.", zap.Error(ctx.Err()))
	}

	if engine == nil {
		return nil
	}

	cleanupCtx, cancel := detachedTimeout(ctx, shutdownGracePeriod)
	defer cancel()
	if err := engine.Close(cleanupCtx); err != nil {
		m.logger.Error("Failed to close browser.", zap.Error(err))
		return fmt.Errorf("failed to close browser: %w", err)
	}
	m.logger.Info("Browser closed.")
	return nil
}

// Stats reports how many sessions were acquired, released and are still open.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	active := len(m.sessions)
	m.mu.RUnlock()
	return Stats{
		Acquired: m.acquired.Load(),
		Released: m.released.Load(),
		Active:   active,
	}
}
