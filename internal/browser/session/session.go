// internal/browser/session/session.go

// Package session implements the optional browser driver collaborator on top
// of chromedp. When construction fails the agent degrades to OS-level input,
// it does not abort.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Session owns one browser tab for the lifetime of a plan. It is single
// writer: the orchestrator is the only component driving it.
type Session struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	ctx         context.Context
}

// NewSession launches a browser and opens a fresh tab.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		logger:      logger.Named("session"),
		cfg:         cfg,
		allocCancel: allocCancel,
		tabCancel:   tabCancel,
		ctx:         tabCtx,
	}

	// Force browser startup now so a missing binary surfaces here, where the
	// caller can decide to degrade, instead of on the first step.
	if err := s.run(ctx, chromedp.Navigate("about:blank")); err != nil {
		s.Close()
		return nil, fmt.Errorf("launching browser: %w", err)
	}
	return s, nil
}

// run executes chromedp actions on the session's browser context while
// honoring the caller's cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate opens the URL and waits for the load plus the configured
// post-load quiet period.
func (s *Session) Navigate(ctx context.Context, targetURL string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(targetURL)}
	if s.cfg.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.PostLoadWait))
	}
	if err := s.run(navCtx, actions...); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", targetURL, err)
	}
	return nil
}

// CaptureState returns the current title, URL, a screenshot and the viewport.
func (s *Session) CaptureState(ctx context.Context) (*schemas.PageState, error) {
	var (
		state schemas.PageState
		shot  []byte
		vp    struct {
			Width  int64 `json:"width"`
			Height int64 `json:"height"`
		}
	)

	err := s.run(ctx,
		chromedp.Title(&state.Title),
		chromedp.Location(&state.URL),
		chromedp.Evaluate(`({width: window.innerWidth, height: window.innerHeight})`, &vp),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		return nil, fmt.Errorf("capturing page state: %w", err)
	}
	state.Screenshot = shot
	state.Viewport = schemas.ViewportSize{Width: vp.Width, Height: vp.Height}
	return &state, nil
}

// DOMSnapshot returns the serialized document for structural perception.
func (s *Session) DOMSnapshot(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("capturing DOM snapshot: %w", err)
	}
	return html, nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click on %q failed: %w", selector, err)
	}
	return nil
}

// Fill replaces the value of the matched input in one operation.
func (s *Session) Fill(ctx context.Context, selector, text string) error {
	if err := s.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("fill on %q failed: %w", selector, err)
	}
	return nil
}

// Type focuses the matched element and injects text one keystroke at a time,
// sleeping delay() between characters.
func (s *Session) Type(ctx context.Context, selector, text string, delay func() time.Duration) error {
	if err := s.run(ctx, chromedp.Focus(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("focus on %q failed: %w", selector, err)
	}
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("keystroke on %q failed: %w", selector, err)
		}
		if delay != nil {
			if err := s.run(ctx, chromedp.Sleep(delay())); err != nil {
				return err
			}
		}
	}
	return nil
}

// PressKey sends a single named key (e.g. "\r" for Enter).
func (s *Session) PressKey(ctx context.Context, key string) error {
	if err := s.run(ctx, chromedp.KeyEvent(key)); err != nil {
		return fmt.Errorf("key press %q failed: %w", key, err)
	}
	return nil
}

// Scroll scrolls the page by amount pixels (positive is down).
func (s *Session) Scroll(ctx context.Context, amount int) error {
	script := fmt.Sprintf(`window.scrollBy({top: %d, behavior: "auto"})`, amount)
	if err := s.run(ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// ElementGeometry resolves the on-screen geometry of the first visible
// element matching the selector.
func (s *Session) ElementGeometry(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	script := fmt.Sprintf(`
		(function(sel) {
			const node = document.querySelector(sel);
			if (!node) return null;
			const rect = node.getBoundingClientRect();
			const style = window.getComputedStyle(node);
			const visible = rect.width > 0 && rect.height > 0 &&
				style.display !== 'none' && style.visibility !== 'hidden';
			if (!visible) return null;
			return {
				bbox: {x: rect.left, y: rect.top, w: rect.width, h: rect.height},
				tagName: node.tagName || ''
			};
		})(%s)`, jsonEncode(selector))

	var res json.RawMessage
	err := s.run(ctx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithSilent(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("geometry lookup for %q failed: %w", selector, err)
	}
	if string(res) == "null" {
		return nil, fmt.Errorf("element %q not found or not visible", selector)
	}
	var geo schemas.ElementGeometry
	if err := json.Unmarshal(res, &geo); err != nil {
		return nil, fmt.Errorf("unmarshaling geometry for %q: %w", selector, err)
	}
	return &geo, nil
}

// Reload reloads the current page; recovery's refresh_page strategy uses it.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.run(ctx, page.Reload()); err != nil {
		return fmt.Errorf("page reload failed: %w", err)
	}
	return nil
}

// Close tears the tab and browser down.
func (s *Session) Close() {
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
}

// jsonEncode safely embeds a value into injected JavaScript.
func jsonEncode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
