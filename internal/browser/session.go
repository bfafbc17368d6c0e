// internal/browser/session.go
package browser

import (
	"context"
	"sync"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// Session is one isolated browsing context and its page, owned by a single test
// attempt.
type Session struct {
	id     string
	engine schemas.EngineSession

	// onClose is called exactly once after the engine context is closed.
	onClose func()

	closeOnce sync.Once
	closeErr  error
}

func newSession(id string, es schemas.EngineSession) *Session {
	return &Session{id: id, engine: es}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string { return s.id }

// Page returns the session's only page.
func (s *Session) Page() schemas.Page { return s.engine.Page() }

// Close tears down the browsing context. Repeated calls return the first result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.engine.Close(ctx)
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}
