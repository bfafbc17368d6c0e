// Package actions wraps page operations so that each one leaves exactly one step
// in the test's report entry.
package actions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/reporting"
)

const (
	// DefaultWaitTimeout applies to waits when neither the call nor Options set one.
	DefaultWaitTimeout = 30 * time.Second
	// captureTimeout bounds failure screenshots, which run on a detached context.
	captureTimeout = 10 * time.Second
	// degradedPrefix marks a passing step that could not be recorded in full.
	degradedPrefix = "Action logged without screenshot: "
)

// ErrNoPage is returned by New when no page is given.
var ErrNoPage = errors.New("actions require a page")

// StepRecorder receives the steps produced by actions. *reporting.Entry satisfies it.
type StepRecorder interface {
	Append(rec schemas.StepRecord) error
}

// Options configures an Actions wrapper.
type Options struct {
	Page     schemas.Page
	Recorder StepRecorder
	// Capturer takes screenshots; nil means every step is text-only.
	Capturer *reporting.Capturer
	// ScreenshotOnPass attaches an image to passing steps. Failing steps always try.
	ScreenshotOnPass bool
	// TestName names screenshot files.
	TestName string
	// WaitTimeout is used by waits called with a zero timeout.
	WaitTimeout time.Duration
	Logger      *zap.Logger
}

// Actions performs UI operations against one page on behalf of one test attempt.
type Actions struct {
	page             schemas.Page
	recorder         StepRecorder
	capturer         *reporting.Capturer
	screenshotOnPass bool
	testName         string
	waitTimeout      time.Duration
	logger           *zap.Logger
}

// New creates an Actions wrapper.
func New(opts Options) (*Actions, error) {
	if opts.Page == nil {
		return nil, ErrNoPage
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultWaitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.TestName == "" {
		opts.TestName = "test"
	}
	return &Actions{
		page:             opts.Page,
		recorder:         opts.Recorder,
		capturer:         opts.Capturer,
		screenshotOnPass: opts.ScreenshotOnPass,
		testName:         opts.TestName,
		waitTimeout:      opts.WaitTimeout,
		logger:           opts.Logger.Named("actions").With(zap.String("test", opts.TestName)),
	}, nil
}

// Page returns the page the wrapper acts on.
func (a *Actions) Page() schemas.Page { return a.page }

// -- Navigation and input --

func (a *Actions) Navigate(ctx context.Context, url string) error {
	return a.do(ctx, "Navigate → "+url, func(ctx context.Context) error {
		return a.page.Navigate(ctx, url)
	})
}

func (a *Actions) Click(ctx context.Context, selector string) error {
	return a.do(ctx, "Click → "+selector, func(ctx context.Context) error {
		return a.page.Click(ctx, selector)
	})
}

func (a *Actions) Fill(ctx context.Context, selector, value string) error {
	return a.do(ctx, fmt.Sprintf("Fill → %s = %s", selector, value), func(ctx context.Context) error {
		return a.page.Fill(ctx, selector, value)
	})
}

func (a *Actions) SelectByValue(ctx context.Context, selector, value string) error {
	return a.do(ctx, fmt.Sprintf("SelectByValue → %s = %s", selector, value), func(ctx context.Context) error {
		return a.page.Select(ctx, selector, schemas.SelectBy{Value: value})
	})
}

func (a *Actions) SelectByText(ctx context.Context, selector, text string) error {
	return a.do(ctx, fmt.Sprintf("SelectByText → %s = %s", selector, text), func(ctx context.Context) error {
		return a.page.Select(ctx, selector, schemas.SelectBy{Label: text})
	})
}

func (a *Actions) Check(ctx context.Context, selector string) error {
	return a.do(ctx, "Check → "+selector, func(ctx context.Context) error {
		return a.page.SetChecked(ctx, selector, true)
	})
}

func (a *Actions) Uncheck(ctx context.Context, selector string) error {
	return a.do(ctx, "Uncheck → "+selector, func(ctx context.Context) error {
		return a.page.SetChecked(ctx, selector, false)
	})
}

func (a *Actions) SelectRadio(ctx context.Context, selector string) error {
	return a.do(ctx, "SelectRadio → "+selector, func(ctx context.Context) error {
		return a.page.SetChecked(ctx, selector, true)
	})
}

// -- Waits and reads --

// WaitForVisible blocks until selector is visible. A zero timeout uses the configured default.
func (a *Actions) WaitForVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return a.do(ctx, "WaitForVisible → "+selector, func(ctx context.Context) error {
		return a.page.WaitFor(ctx, selector, schemas.StateVisible, a.timeoutOr(timeout))
	})
}

// WaitForHidden blocks until selector is hidden or detached.
func (a *Actions) WaitForHidden(ctx context.Context, selector string, timeout time.Duration) error {
	return a.do(ctx, "WaitForHidden → "+selector, func(ctx context.Context) error {
		return a.page.WaitFor(ctx, selector, schemas.StateHidden, a.timeoutOr(timeout))
	})
}

func (a *Actions) Text(ctx context.Context, selector string) (string, error) {
	text, err := a.page.InnerText(ctx, selector)
	if err != nil {
		return "", a.failed(ctx, "GetText → "+selector, err)
	}
	a.passed(ctx, fmt.Sprintf("GetText → %s = %s", selector, text))
	return text, nil
}

func (a *Actions) AllTexts(ctx context.Context, selector string) ([]string, error) {
	texts, err := a.page.AllInnerTexts(ctx, selector)
	if err != nil {
		return nil, a.failed(ctx, "GetAllTexts → "+selector, err)
	}
	a.passed(ctx, "GetAllTexts → "+selector)
	return texts, nil
}

func (a *Actions) IsVisible(ctx context.Context, selector string) (bool, error) {
	return a.probe(ctx, "IsVisible", selector, a.page.IsVisible)
}

func (a *Actions) IsEnabled(ctx context.Context, selector string) (bool, error) {
	return a.probe(ctx, "IsEnabled", selector, a.page.IsEnabled)
}

func (a *Actions) IsChecked(ctx context.Context, selector string) (bool, error) {
	return a.probe(ctx, "IsChecked", selector, a.page.IsChecked)
}

func (a *Actions) probe(ctx context.Context, op, selector string, fn func(context.Context, string) (bool, error)) (bool, error) {
	v, err := fn(ctx, selector)
	if err != nil {
		return false, a.failed(ctx, op+" → "+selector, err)
	}
	a.passed(ctx, fmt.Sprintf("%s → %s = %t", op, selector, v))
	return v, nil
}

// -- Assertions --

func (a *Actions) AssertVisible(ctx context.Context, selector string) error {
	return a.expect(ctx, "AssertVisible → "+selector, selector, schemas.Expectation{Kind: schemas.ExpectVisible})
}

func (a *Actions) AssertEnabled(ctx context.Context, selector string) error {
	return a.expect(ctx, "AssertEnabled → "+selector, selector, schemas.Expectation{Kind: schemas.ExpectEnabled})
}

func (a *Actions) AssertChecked(ctx context.Context, selector string) error {
	return a.expect(ctx, "AssertChecked → "+selector, selector, schemas.Expectation{Kind: schemas.ExpectChecked})
}

// AssertHasText asserts the element's text equals text exactly.
func (a *Actions) AssertHasText(ctx context.Context, selector, text string) error {
	return a.expect(ctx, fmt.Sprintf("AssertHasText → %s = %s", selector, text), selector,
		schemas.Expectation{Kind: schemas.ExpectText, Text: text})
}

// AssertMatchesText asserts the element's text matches pattern.
func (a *Actions) AssertMatchesText(ctx context.Context, selector string, pattern *regexp.Regexp) error {
	if pattern == nil {
		return a.failed(ctx, "AssertHasText (regex) → "+selector, errors.New("nil pattern"))
	}
	return a.expect(ctx, "AssertHasText (regex) → "+selector, selector,
		schemas.Expectation{Kind: schemas.ExpectText, Pattern: pattern})
}

func (a *Actions) expect(ctx context.Context, desc, selector string, exp schemas.Expectation) error {
	return a.do(ctx, desc, func(ctx context.Context) error {
		return a.page.Expect(ctx, selector, exp)
	})
}

// -- Dialogs --

// AcceptNextDialog registers a one-shot handler for the next dialog.
func (a *Actions) AcceptNextDialog(ctx context.Context) error {
	return a.dialog(ctx, "Register Alert → Accept", schemas.DialogPlan{Action: schemas.DialogAccept})
}

func (a *Actions) DismissNextDialog(ctx context.Context) error {
	return a.dialog(ctx, "Register Alert → Dismiss", schemas.DialogPlan{Action: schemas.DialogDismiss})
}

// HandleNextPrompt accepts the next dialog, answering value if it is a prompt.
func (a *Actions) HandleNextPrompt(ctx context.Context, value string) error {
	return a.dialog(ctx, "Register Prompt Handler → "+value,
		schemas.DialogPlan{Action: schemas.DialogAccept, PromptText: value})
}

func (a *Actions) dialog(ctx context.Context, desc string, plan schemas.DialogPlan) error {
	return a.do(ctx, desc, func(context.Context) error {
		return a.page.HandleNextDialog(plan)
	})
}

// -- Step recording --

func (a *Actions) do(ctx context.Context, desc string, op func(context.Context) error) error {
	if err := op(ctx); err != nil {
		return a.failed(ctx, desc, err)
	}
	a.passed(ctx, desc)
	return nil
}

func (a *Actions) timeoutOr(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return a.waitTimeout
}

// passed records a pass step, attaching a screenshot when enabled. If the step
// cannot be recorded a plain info step is tried instead.
func (a *Actions) passed(ctx context.Context, desc string) {
	rec := schemas.StepRecord{Status: schemas.StatusPass, Message: desc}
	if a.screenshotOnPass {
		rec.Screenshot = a.capture(ctx)
	}
	if err := a.append(rec); err == nil {
		return
	}
	if err := a.append(schemas.StepRecord{Status: schemas.StatusInfo, Message: degradedPrefix + desc}); err != nil {
		a.logger.Warn("Failed to record action step.", zap.String("action", desc), zap.Error(err))
	}
}

// failed records a fail step with a best-effort screenshot and returns the wrapped cause.
func (a *Actions) failed(ctx context.Context, desc string, cause error) error {
	a.logger.Debug("Action failed.", zap.String("action", desc), zap.Error(cause))

	captureCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), captureTimeout)
	defer cancel()
	rec := schemas.StepRecord{
		Status:     schemas.StatusFail,
		Message:    fmt.Sprintf("%s failed: %v", desc, cause),
		Screenshot: a.capture(captureCtx),
	}
	if err := a.append(rec); err != nil {
		a.logger.Warn("Failed to record action failure.", zap.String("action", desc), zap.Error(err))
	}
	return fmt.Errorf("%s: %w", desc, cause)
}

// capture returns nil when no screenshot could be taken.
func (a *Actions) capture(ctx context.Context) *schemas.Attachment {
	if a.capturer == nil {
		return nil
	}
	shot, err := a.capturer.Capture(ctx, a.page, a.testName)
	if err != nil {
		a.logger.Debug("Screenshot unavailable, recording text-only step.", zap.Error(err))
		return nil
	}
	return shot
}

func (a *Actions) append(rec schemas.StepRecord) error {
	if a.recorder == nil {
		return reporting.ErrUnbound
	}
	return a.recorder.Append(rec)
}
