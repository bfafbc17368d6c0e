// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Run() config.RunConfig {
	args := m.Called()
	return args.Get(0).(config.RunConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Checkout() config.CheckoutFixture {
	args := m.Called()
	return args.Get(0).(config.CheckoutFixture)
}

func (m *MockConfig) Login() config.Credentials {
	args := m.Called()
	return args.Get(0).(config.Credentials)
}

func (m *MockConfig) Lookup(key string) (string, bool) {
	args := m.Called(key)
	return args.String(0), args.Bool(1)
}

// -- Page Mock --

// MockPage mocks schemas.Page.
type MockPage struct {
	mock.Mock
}

var _ schemas.Page = (*MockPage)(nil)

func (m *MockPage) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPage) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *MockPage) Fill(ctx context.Context, selector, value string) error {
	return m.Called(ctx, selector, value).Error(0)
}

func (m *MockPage) Select(ctx context.Context, selector string, by schemas.SelectBy) error {
	return m.Called(ctx, selector, by).Error(0)
}

func (m *MockPage) SetChecked(ctx context.Context, selector string, checked bool) error {
	return m.Called(ctx, selector, checked).Error(0)
}

func (m *MockPage) WaitFor(ctx context.Context, selector string, state schemas.ElementState, timeout time.Duration) error {
	return m.Called(ctx, selector, state, timeout).Error(0)
}

func (m *MockPage) InnerText(ctx context.Context, selector string) (string, error) {
	args := m.Called(ctx, selector)
	return args.String(0), args.Error(1)
}

func (m *MockPage) AllInnerTexts(ctx context.Context, selector string) ([]string, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockPage) IsVisible(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) IsEnabled(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) IsChecked(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockPage) Expect(ctx context.Context, selector string, exp schemas.Expectation) error {
	return m.Called(ctx, selector, exp).Error(0)
}

func (m *MockPage) HandleNextDialog(plan schemas.DialogPlan) error {
	return m.Called(plan).Error(0)
}

func (m *MockPage) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockPage) URL() string {
	return m.Called().String(0)
}

// -- Fake Engine --

// FakeEngine is an in-memory schemas.Engine. Every session gets a FakePage that
// records its calls and succeeds unless an error is scripted for a selector.
type FakeEngine struct {
	mu       sync.Mutex
	sessions []*FakeSession
	closed   atomic.Int32

	// SessionErr, if set, is returned by NewSession.
	SessionErr error
	// Failing maps a selector to the error every operation on it returns.
	Failing map[string]error
}

var _ schemas.Engine = (*FakeEngine)(nil)

func (e *FakeEngine) NewSession(ctx context.Context, opts schemas.SessionOptions) (schemas.EngineSession, error) {
	if e.SessionErr != nil {
		return nil, e.SessionErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &FakeSession{
		Options: opts,
		page:    &FakePage{failing: e.Failing},
	}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *FakeEngine) Version() string { return "fake/1.0" }

func (e *FakeEngine) Close(ctx context.Context) error {
	e.closed.Add(1)
	return nil
}

// CloseCount reports how many times Close was called.
func (e *FakeEngine) CloseCount() int { return int(e.closed.Load()) }

// Sessions returns every session created so far.
func (e *FakeEngine) Sessions() []*FakeSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*FakeSession(nil), e.sessions...)
}

// FakeSession is a session created by FakeEngine.
type FakeSession struct {
	Options schemas.SessionOptions
	page    *FakePage
	closed  atomic.Int32
}

func (s *FakeSession) Page() schemas.Page { return s.page }

func (s *FakeSession) Close(ctx context.Context) error {
	s.closed.Add(1)
	return nil
}

// CloseCount reports how many times Close was called.
func (s *FakeSession) CloseCount() int { return int(s.closed.Load()) }

// FakePage records operations as "op selector" strings.
type FakePage struct {
	mu      sync.Mutex
	calls   []string
	url     string
	failing map[string]error
}

// Calls returns the recorded operations in order.
func (p *FakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *FakePage) record(op, target string) error {
	p.mu.Lock()
	p.calls = append(p.calls, op+" "+target)
	p.mu.Unlock()
	if err, ok := p.failing[target]; ok {
		return err
	}
	return nil
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.record("navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Click(ctx context.Context, sel string) error { return p.record("click", sel) }

func (p *FakePage) Fill(ctx context.Context, sel, value string) error {
	return p.record("fill", sel)
}

func (p *FakePage) Select(ctx context.Context, sel string, by schemas.SelectBy) error {
	return p.record("select", sel)
}

func (p *FakePage) SetChecked(ctx context.Context, sel string, checked bool) error {
	return p.record(fmt.Sprintf("checked=%t", checked), sel)
}

func (p *FakePage) WaitFor(ctx context.Context, sel string, state schemas.ElementState, timeout time.Duration) error {
	return p.record("wait-"+string(state), sel)
}

func (p *FakePage) InnerText(ctx context.Context, sel string) (string, error) {
	return "text of " + sel, p.record("text", sel)
}

func (p *FakePage) AllInnerTexts(ctx context.Context, sel string) ([]string, error) {
	return []string{"text of " + sel}, p.record("texts", sel)
}

func (p *FakePage) IsVisible(ctx context.Context, sel string) (bool, error) {
	return true, p.record("visible?", sel)
}

func (p *FakePage) IsEnabled(ctx context.Context, sel string) (bool, error) {
	return true, p.record("enabled?", sel)
}

func (p *FakePage) IsChecked(ctx context.Context, sel string) (bool, error) {
	return false, p.record("checked?", sel)
}

func (p *FakePage) Expect(ctx context.Context, sel string, exp schemas.Expectation) error {
	return p.record("expect-"+string(exp.Kind), sel)
}

func (p *FakePage) HandleNextDialog(plan schemas.DialogPlan) error {
	return p.record("dialog", string(plan.Action))
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}
