// Package pages models the shop's screens as typed page objects. Each operation
// returns the page the flow is on afterwards, so a purchase reads as one chain.
// The first failing operation makes the chain inert; Err reports it.
package pages

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xkilldash9x/scalpel-e2e/internal/actions"
	"github.com/xkilldash9x/scalpel-e2e/internal/config"
)

// Page IDs known to DefaultRegistry.
const (
	IDLogin    = "login"
	IDProducts = "products"
	IDCart     = "cart"
	IDCheckout = "checkout"
	IDOverview = "overview"
)

// Page is implemented by every page object.
type Page interface {
	ID() string
	Err() error
}

// Constructor builds a page bound to a surface.
type Constructor func(s *Surface) Page

// Registry maps page IDs to constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a constructor. IDs are unique.
func (r *Registry) Register(id string, ctor Constructor) error {
	if id == "" || ctor == nil {
		return fmt.Errorf("invalid page registration %q", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ctors[id]; exists {
		return fmt.Errorf("page %q already registered", id)
	}
	r.ctors[id] = ctor
	return nil
}

// New constructs the page registered under id.
func (r *Registry) New(id string, s *Surface) (Page, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown page %q", id)
	}
	return ctor(s), nil
}

// IDs lists registered page IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultRegistry returns a registry holding the shop's pages.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for id, ctor := range map[string]Constructor{
		IDLogin:    func(s *Surface) Page { return &LoginPage{base{s}} },
		IDProducts: func(s *Surface) Page { return &ProductsPage{base{s}} },
		IDCart:     func(s *Surface) Page { return &CartPage{base{s}} },
		IDCheckout: func(s *Surface) Page { return &CheckoutPage{base{s}} },
		IDOverview: func(s *Surface) Page { return &OverviewPage{base{s}} },
	} {
		// IDs are distinct constants, so registration cannot fail.
		_ = r.Register(id, ctor)
	}
	return r
}

// Fixtures is the data pages fill in on their own.
type Fixtures struct {
	BaseURL  string
	Checkout config.CheckoutFixture
}

// Surface is what a page chain shares: the test's actions, its context, the
// fixtures and the sticky error.
type Surface struct {
	ctx      context.Context
	actions  *actions.Actions
	fixtures Fixtures
	registry *Registry

	err error
}

// NewSurface binds a page chain to one test attempt. A nil registry uses DefaultRegistry.
func NewSurface(ctx context.Context, acts *actions.Actions, fixtures Fixtures, registry *Registry) *Surface {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Surface{ctx: ctx, actions: acts, fixtures: fixtures, registry: registry}
}

// Err returns the first failure in the chain.
func (s *Surface) Err() error { return s.err }

// Fixtures returns the surface's fixture data.
func (s *Surface) Fixtures() Fixtures { return s.fixtures }

// do runs op unless an earlier operation failed.
func (s *Surface) do(op func(ctx context.Context, a *actions.Actions) error) {
	if s.err != nil {
		return
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return
	}
	s.err = op(s.ctx, s.actions)
}

// Open builds the page registered under id as a T.
func Open[T Page](s *Surface, id string) (T, error) {
	var zero T
	p, err := s.registry.New(id, s)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, fmt.Errorf("page %q is %T, not %T", id, p, zero)
	}
	return typed, nil
}

// next moves the chain to the page registered under id. If that fails the
// error becomes sticky and fallback supplies an inert page of the right type.
func next[T Page](s *Surface, id string, fallback func(base) T) T {
	p, err := Open[T](s, id)
	if err != nil {
		if s.err == nil {
			s.err = err
		}
		return fallback(base{s})
	}
	return p
}

type base struct {
	s *Surface
}

func (b base) Err() error { return b.s.Err() }
