package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
)

// ErrUnsupportedFamily is returned when a driver cannot launch the requested browser.
var ErrUnsupportedFamily = errors.New("browser family not supported by driver")

const pollInterval = 100 * time.Millisecond

// CDPLauncher starts a local Chrome or Chromium over the DevTools protocol.
type CDPLauncher struct {
	logger *zap.Logger
}

func NewCDPLauncher(logger *zap.Logger) *CDPLauncher {
	return &CDPLauncher{logger: logger.Named("cdp")}
}

// allocatorFlags returns the command-line switches for the exec allocator, keyed
// by switch name without leading dashes.
func allocatorFlags(spec LaunchSpec) map[string]interface{} {
	flags := map[string]interface{}{
		"headless": spec.Headless,
	}
	for _, arg := range spec.Args {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		if k, v, ok := strings.Cut(name, "="); ok {
			flags[k] = v
		} else {
			flags[name] = true
		}
	}
	return flags
}

func allocatorOptions(spec LaunchSpec) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(spec) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// Launch starts the browser process and waits for the first target.
func (l *CDPLauncher) Launch(ctx context.Context, spec LaunchSpec) (schemas.Engine, error) {
	if spec.Kind.Family() != schemas.FamilyChromium {
		return nil, fmt.Errorf("%w: cdp cannot drive %s", ErrUnsupportedFamily, spec.Kind)
	}
	if spec.Kind == KindEdge {
		l.logger.Warn("The cdp driver launches the locally installed Chrome; msedge channel is ignored.")
	}

	// The browser outlives the launch call, so it must not inherit ctx cancellation.
	allocCtx, allocCancel := chromedp.NewExecAllocator(valueOnlyContext{ctx}, allocatorOptions(spec)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	launchCtx, launchCancel := context.WithTimeout(ctx, timeout)
	defer launchCancel()

	var product string
	errCh := make(chan error, 1)
	go func() {
		errCh <- chromedp.Run(browserCtx, chromedp.ActionFunc(func(c context.Context) error {
			var err error
			_, product, _, _, _, err = cdpbrowser.GetVersion().Do(c)
			return err
		}))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("failed to start chrome: %w", err)
		}
	case <-launchCtx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("timeout waiting for chrome to start: %w", launchCtx.Err())
	}

	return &cdpEngine{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		version:       product,
		logger:        l.logger,
	}, nil
}

type cdpEngine struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	version       string
	logger        *zap.Logger
}

func (e *cdpEngine) NewSession(ctx context.Context, opts schemas.SessionOptions) (schemas.EngineSession, error) {
	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())

	var actions []chromedp.Action
	if opts.Viewport != nil {
		actions = append(actions, chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height)))
	}

	p := &cdpPage{tabCtx: tabCtx, timeout: opts.ActionTimeout, logger: e.logger}
	if p.timeout <= 0 {
		p.timeout = 30 * time.Second
	}
	// The first Run on a fresh context creates the target.
	if err := p.run(ctx, actions...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	p.listenDialogs()
	return &cdpSession{cancel: tabCancel, tabCtx: tabCtx, page: p}, nil
}

func (e *cdpEngine) Version() string { return e.version }

func (e *cdpEngine) Close(ctx context.Context) error {
	err := chromedp.Cancel(e.browserCtx)
	e.browserCancel()
	e.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type cdpSession struct {
	cancel context.CancelFunc
	tabCtx context.Context
	page   *cdpPage
}

func (s *cdpSession) Page() schemas.Page { return s.page }

// Close disposes the tab and its browser context.
func (s *cdpSession) Close(ctx context.Context) error {
	err := chromedp.Cancel(s.tabCtx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// cdpPage implements schemas.Page with chromedp actions. Element lookups use XPath
// for selectors starting with "/" or "(" and CSS otherwise.
type cdpPage struct {
	tabCtx  context.Context
	timeout time.Duration
	logger  *zap.Logger

	url    atomic.Value // string
	dialog atomic.Pointer[schemas.DialogPlan]
}

func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}

func queryOpts(sel string) []chromedp.QueryOption {
	if isXPath(sel) {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

// jsString encodes s as a JavaScript string literal.
func jsString(s string) string {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(s)
	if err != nil {
		return `""`
	}
	return out
}

// elementJS is an expression resolving sel to the first matching element or null.
func elementJS(sel string) string {
	if isXPath(sel) {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", jsString(sel))
	}
	return fmt.Sprintf("document.querySelector(%s)", jsString(sel))
}

const visibleJS = `(function(el){ if (!el) return false; const s = getComputedStyle(el); if (s.visibility === 'hidden' || s.display === 'none') return false; const r = el.getBoundingClientRect(); return r.width > 0 && r.height > 0; })`

func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(p.tabCtx, ctx)
	defer cancel()
	runCtx, timeoutCancel := context.WithTimeout(runCtx, p.timeout)
	defer timeoutCancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *cdpPage) eval(ctx context.Context, expr string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	var loc string
	if err := p.run(ctx, chromedp.Navigate(url), chromedp.Location(&loc)); err != nil {
		return err
	}
	p.url.Store(loc)
	return nil
}

func (p *cdpPage) Click(ctx context.Context, sel string) error {
	return p.run(ctx, chromedp.Click(sel, append(queryOpts(sel), chromedp.NodeVisible)...))
}

func (p *cdpPage) Fill(ctx context.Context, sel, value string) error {
	opts := queryOpts(sel)
	return p.run(ctx,
		chromedp.WaitVisible(sel, opts...),
		chromedp.Clear(sel, opts...),
		chromedp.SendKeys(sel, value, opts...),
	)
}

func (p *cdpPage) Select(ctx context.Context, sel string, by schemas.SelectBy) error {
	field, want := "value", by.Value
	if by.Label != "" {
		field, want = "label", by.Label
	}
	expr := fmt.Sprintf(`(function(el, field, want){
		if (!el) return false;
		for (const o of el.options) {
			const v = field === 'label' ? o.label.trim() : o.value;
			if (v === want) {
				el.value = o.value;
				el.dispatchEvent(new Event('input', {bubbles: true}));
				el.dispatchEvent(new Event('change', {bubbles: true}));
				return true;
			}
		}
		return false;
	})(%s, %s, %s)`, elementJS(sel), jsString(field), jsString(want))

	var ok bool
	if err := p.run(ctx, chromedp.WaitReady(sel, queryOpts(sel)...), chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no option matched %s=%q in %s", field, want, sel)
	}
	return nil
}

func (p *cdpPage) SetChecked(ctx context.Context, sel string, checked bool) error {
	current, err := p.IsChecked(ctx, sel)
	if err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	if err := p.Click(ctx, sel); err != nil {
		return err
	}
	if now, err := p.IsChecked(ctx, sel); err != nil {
		return err
	} else if now != checked {
		return fmt.Errorf("clicking %s did not change its checked state", sel)
	}
	return nil
}

// poll waits until the predicate over the element becomes truthy.
func (p *cdpPage) poll(ctx context.Context, sel, predicate string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeout
	}
	expr := fmt.Sprintf("(%s)(%s)", predicate, elementJS(sel))
	var res bool
	return p.run(ctx, chromedp.Poll(expr, &res,
		chromedp.WithPollingTimeout(timeout),
		chromedp.WithPollingInterval(pollInterval),
	))
}

func (p *cdpPage) WaitFor(ctx context.Context, sel string, state schemas.ElementState, timeout time.Duration) error {
	predicate := visibleJS
	if state == schemas.StateHidden {
		predicate = fmt.Sprintf("(function(el){ return !%s(el); })", visibleJS)
	}
	if err := p.poll(ctx, sel, predicate, timeout); err != nil {
		return fmt.Errorf("waiting for %s to be %s: %w", sel, state, err)
	}
	return nil
}

func (p *cdpPage) InnerText(ctx context.Context, sel string) (string, error) {
	var text string
	err := p.run(ctx, chromedp.Text(sel, &text, append(queryOpts(sel), chromedp.NodeVisible)...))
	return text, err
}

func (p *cdpPage) AllInnerTexts(ctx context.Context, sel string) ([]string, error) {
	var list string
	if isXPath(sel) {
		list = fmt.Sprintf(`(function(){ const r = document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null); const out = []; for (let i = 0; i < r.snapshotLength; i++) out.push(r.snapshotItem(i)); return out; })()`, jsString(sel))
	} else {
		list = fmt.Sprintf("Array.from(document.querySelectorAll(%s))", jsString(sel))
	}
	var texts []string
	err := p.eval(ctx, fmt.Sprintf("%s.map(el => el.innerText)", list), &texts)
	return texts, err
}

func (p *cdpPage) IsVisible(ctx context.Context, sel string) (bool, error) {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf("%s(%s)", visibleJS, elementJS(sel)), &ok)
	return ok, err
}

func (p *cdpPage) IsEnabled(ctx context.Context, sel string) (bool, error) {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf("(function(el){ return !!el && !el.disabled; })(%s)", elementJS(sel)), &ok)
	return ok, err
}

func (p *cdpPage) IsChecked(ctx context.Context, sel string) (bool, error) {
	var ok bool
	err := p.eval(ctx, fmt.Sprintf("(function(el){ return !!el && !!el.checked; })(%s)", elementJS(sel)), &ok)
	return ok, err
}

func (p *cdpPage) Expect(ctx context.Context, sel string, exp schemas.Expectation) error {
	var predicate string
	switch exp.Kind {
	case schemas.ExpectVisible:
		predicate = visibleJS
	case schemas.ExpectEnabled:
		predicate = "(function(el){ return !!el && !el.disabled; })"
	case schemas.ExpectChecked:
		predicate = "(function(el){ return !!el && !!el.checked; })"
	case schemas.ExpectText:
		if exp.Pattern != nil {
			predicate = fmt.Sprintf("(function(el){ return !!el && new RegExp(%s).test(el.innerText); })", jsString(exp.Pattern.String()))
		} else {
			predicate = fmt.Sprintf("(function(el){ return !!el && el.innerText.trim() === %s; })", jsString(strings.TrimSpace(exp.Text)))
		}
	default:
		return fmt.Errorf("unsupported expectation %q", exp.Kind)
	}
	if err := p.poll(ctx, sel, predicate, p.timeout); err != nil {
		return fmt.Errorf("expected %s to be %s: %w", sel, exp.Kind, err)
	}
	return nil
}

// HandleNextDialog stores a plan consumed by the next JavaScript dialog.
func (p *cdpPage) HandleNextDialog(plan schemas.DialogPlan) error {
	p.dialog.Store(&plan)
	return nil
}

// listenDialogs answers every JavaScript dialog, dismissing it unless a plan was
// registered.
func (p *cdpPage) listenDialogs() {
	chromedp.ListenTarget(p.tabCtx, func(ev interface{}) {
		e, ok := ev.(*cdppage.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		plan := p.dialog.Swap(nil)
		accept := plan != nil && plan.Action == schemas.DialogAccept
		action := cdppage.HandleJavaScriptDialog(accept)
		if accept && e.Type == cdppage.DialogTypePrompt {
			action = action.WithPromptText(plan.PromptText)
		}
		// Listeners run on the event loop; commands must be sent from elsewhere.
		go func() {
			if err := chromedp.Run(p.tabCtx, action); err != nil {
				p.logger.Debug("Failed to answer dialog.", zap.Error(err))
			}
		}()
	})
}

func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *cdpPage) URL() string {
	if u, ok := p.url.Load().(string); ok {
		return u
	}
	return ""
}
