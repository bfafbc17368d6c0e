package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

const playwrightInstallTimeout = 5 * time.Minute

// PlaywrightLauncher starts browsers through the Playwright driver. It supports
// every browser family.
type PlaywrightLauncher struct {
	logger *zap.Logger
}

func NewPlaywrightLauncher(logger *zap.Logger) *PlaywrightLauncher {
	return &PlaywrightLauncher{logger: logger.Named("playwright")}
}

// Launch optionally installs the browser, starts the driver and launches the process.
func (l *PlaywrightLauncher) Launch(ctx context.Context, spec LaunchSpec) (schemas.Engine, error) {
	if spec.Install {
		if err := l.ensureInstallation(ctx, spec.Kind); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	var bt playwright.BrowserType
	switch spec.Kind.Family() {
	case schemas.FamilyFirefox:
		bt = pw.Firefox
	case schemas.FamilyWebKit:
		bt = pw.WebKit
	default:
		bt = pw.Chromium
	}

	browser, err := bt.Launch(playwrightLaunchOptions(spec))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}
	return &playwrightEngine{pw: pw, browser: browser, logger: l.logger}, nil
}

func (l *PlaywrightLauncher) ensureInstallation(ctx context.Context, kind Kind) error {
	targets := playwrightInstallTargets(kind)
	l.logger.Info("Verifying Playwright browser installation...", zap.Strings("browsers", targets))
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		opts := &playwright.RunOptions{Browsers: targets}
		if err := playwright.Install(opts); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

// playwrightInstallTargets names what the driver must download. Branded
// channels are installed on their own; the bundled builds go by family.
func playwrightInstallTargets(kind Kind) []string {
	if ch := kind.Channel(); ch != "" {
		return []string{ch}
	}
	return []string{string(kind.Family())}
}

func playwrightLaunchOptions(spec LaunchSpec) playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(spec.Headless),
		Args:     spec.Args,
	}
	if spec.Timeout > 0 {
		opts.Timeout = playwright.Float(float64(spec.Timeout.Milliseconds()))
	}
	if ch := spec.Kind.Channel(); ch != "" {
		opts.Channel = playwright.String(ch)
	}
	return opts
}

func playwrightContextOptions(opts schemas.SessionOptions) playwright.BrowserNewContextOptions {
	var out playwright.BrowserNewContextOptions
	switch {
	case opts.NoViewport:
		out.NoViewport = playwright.Bool(true)
	case opts.Viewport != nil:
		out.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	return out
}

type playwrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
}

func (e *playwrightEngine) NewSession(ctx context.Context, opts schemas.SessionOptions) (schemas.EngineSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := e.browser.NewContext(playwrightContextOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	if opts.ActionTimeout > 0 {
		page.SetDefaultTimeout(float64(opts.ActionTimeout.Milliseconds()))
	}
	return &playwrightSession{
		bctx: bctx,
		page: &playwrightPage{page: page, timeout: opts.ActionTimeout},
	}, nil
}

func (e *playwrightEngine) Version() string { return e.browser.Version() }

func (e *playwrightEngine) Close(ctx context.Context) error {
	var firstErr error
	if err := e.browser.Close(); err != nil {
		firstErr = fmt.Errorf("failed to close browser: %w", err)
	}
	if err := e.pw.Stop(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	return firstErr
}

type playwrightSession struct {
	bctx playwright.BrowserContext
	page *playwrightPage
}

func (s *playwrightSession) Page() schemas.Page { return s.page }

func (s *playwrightSession) Close(ctx context.Context) error {
	return s.bctx.Close()
}

// playwrightPage adapts a Playwright page to schemas.Page. Playwright calls do not
// take a context, so each one checks ctx first and relies on the page timeout.
type playwrightPage struct {
	page    playwright.Page
	timeout time.Duration
}

// playwrightSelector maps a selector to Playwright's engine syntax. Playwright
// detects "//" XPath on its own but not parenthesized expressions.
func playwrightSelector(sel string) string {
	if strings.HasPrefix(sel, "(") {
		return "xpath=" + sel
	}
	return sel
}

func (p *playwrightPage) locator(sel string) playwright.Locator {
	return p.page.Locator(playwrightSelector(sel)).First()
}

func (p *playwrightPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad})
	return err
}

func (p *playwrightPage) Click(ctx context.Context, sel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locator(sel).Click()
}

func (p *playwrightPage) Fill(ctx context.Context, sel, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locator(sel).Fill(value)
}

func (p *playwrightPage) Select(ctx context.Context, sel string, by schemas.SelectBy) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	values := playwright.SelectOptionValues{}
	if by.Label != "" {
		values.Labels = playwright.StringSlice(by.Label)
	} else {
		values.Values = playwright.StringSlice(by.Value)
	}
	selected, err := p.locator(sel).SelectOption(values)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return fmt.Errorf("no option matched in %s", sel)
	}
	return nil
}

func (p *playwrightPage) SetChecked(ctx context.Context, sel string, checked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if checked {
		return p.locator(sel).Check()
	}
	return p.locator(sel).Uncheck()
}

func (p *playwrightPage) WaitFor(ctx context.Context, sel string, state schemas.ElementState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opts := playwright.LocatorWaitForOptions{State: playwright.WaitForSelectorStateVisible}
	if state == schemas.StateHidden {
		opts.State = playwright.WaitForSelectorStateHidden
	}
	if timeout > 0 {
		opts.Timeout = playwright.Float(float64(timeout.Milliseconds()))
	}
	return p.locator(sel).WaitFor(opts)
}

func (p *playwrightPage) InnerText(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.locator(sel).InnerText()
}

func (p *playwrightPage) AllInnerTexts(ctx context.Context, sel string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Locator(playwrightSelector(sel)).AllInnerTexts()
}

func (p *playwrightPage) IsVisible(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.locator(sel).IsVisible()
}

func (p *playwrightPage) IsEnabled(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.locator(sel).IsEnabled()
}

func (p *playwrightPage) IsChecked(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return p.locator(sel).IsChecked()
}

func (p *playwrightPage) Expect(ctx context.Context, sel string, exp schemas.Expectation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	assertions := playwright.NewPlaywrightAssertions(float64(p.timeout.Milliseconds()))
	la := assertions.Locator(p.locator(sel))
	switch exp.Kind {
	case schemas.ExpectVisible:
		return la.ToBeVisible()
	case schemas.ExpectEnabled:
		return la.ToBeEnabled()
	case schemas.ExpectChecked:
		return la.ToBeChecked()
	case schemas.ExpectText:
		if exp.Pattern != nil {
			return la.ToHaveText(exp.Pattern)
		}
		return la.ToHaveText(exp.Text)
	default:
		return fmt.Errorf("unsupported expectation %q", exp.Kind)
	}
}

// HandleNextDialog registers a one-shot handler for the next dialog. Dialogs with
// no registered plan are dismissed by Playwright.
func (p *playwrightPage) HandleNextDialog(plan schemas.DialogPlan) error {
	p.page.Once("dialog", func(d playwright.Dialog) {
		_ = answerDialog(d, plan)
	})
	return nil
}

func answerDialog(d playwright.Dialog, plan schemas.DialogPlan) error {
	if plan.Action == schemas.DialogDismiss {
		return d.Dismiss()
	}
	if d.Type() == "prompt" {
		return d.Accept(plan.PromptText)
	}
	return d.Accept()
}

func (p *playwrightPage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.page.Screenshot(playwright.PageScreenshotOptions{FullPage: playwright.Bool(true)})
}

func (p *playwrightPage) URL() string { return p.page.URL() }
