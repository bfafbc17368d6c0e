package schemas

import (
	"context"
	"regexp"
	"time"
)

// -- Engine Schemas --

// BrowserFamily groups browser kinds by the engine that renders them.
type BrowserFamily string

const (
	FamilyChromium BrowserFamily = "chromium"
	FamilyFirefox  BrowserFamily = "firefox"
	FamilyWebKit   BrowserFamily = "webkit"
)

// Viewport is a fixed page size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SessionOptions configures a single isolated browsing context.
type SessionOptions struct {
	// Viewport, when non-nil, pins the page size.
	Viewport *Viewport
	// NoViewport lets the page follow the window size (used with --start-maximized).
	NoViewport bool
	// ActionTimeout is the engine-level timeout applied to every page operation.
	ActionTimeout time.Duration
}

// Engine is a launched browser process. It is shared by every worker once started,
// so NewSession must be safe for concurrent use.
type Engine interface {
	NewSession(ctx context.Context, opts SessionOptions) (EngineSession, error)
	Version() string
	Close(ctx context.Context) error
}

// EngineSession is one isolated browsing context holding exactly one page.
type EngineSession interface {
	Page() Page
	Close(ctx context.Context) error
}

// -- Page Interaction Schemas --

// ElementState is the state a wait operation blocks for.
type ElementState string

const (
	StateVisible ElementState = "visible"
	StateHidden  ElementState = "hidden"
)

// ExpectationKind names an auto-retrying assertion on an element.
type ExpectationKind string

const (
	ExpectVisible ExpectationKind = "visible"
	ExpectEnabled ExpectationKind = "enabled"
	ExpectChecked ExpectationKind = "checked"
	ExpectText    ExpectationKind = "text"
)

// Expectation describes an assertion the engine retries until it holds or times out.
type Expectation struct {
	Kind ExpectationKind
	// Text is the exact expected text for ExpectText.
	Text string
	// Pattern, if set, replaces Text for ExpectText.
	Pattern *regexp.Regexp
}

// SelectBy identifies a <select> option either by value or by visible label.
type SelectBy struct {
	Value string
	Label string
}

// DialogAction is what to do with the next JavaScript dialog.
type DialogAction string

const (
	DialogAccept  DialogAction = "accept"
	DialogDismiss DialogAction = "dismiss"
)

// DialogPlan is registered before the action that opens a dialog and is consumed once.
type DialogPlan struct {
	Action DialogAction
	// PromptText is passed to prompt() dialogs when accepting. Other dialog types ignore it.
	PromptText string
}

// Page is the browser surface a test acts on. Implementations block until the
// engine answers or the operation times out; a timeout is returned as an error.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector string, by SelectBy) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	WaitFor(ctx context.Context, selector string, state ElementState, timeout time.Duration) error
	InnerText(ctx context.Context, selector string) (string, error)
	AllInnerTexts(ctx context.Context, selector string) ([]string, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	IsEnabled(ctx context.Context, selector string) (bool, error)
	IsChecked(ctx context.Context, selector string) (bool, error)
	Expect(ctx context.Context, selector string, exp Expectation) error
	HandleNextDialog(plan DialogPlan) error
	Screenshot(ctx context.Context) ([]byte, error)
	URL() string
}
