// internal/perception/engine.go

// Package perception fuses visual, textual and structural observations of
// the current browser environment into a single snapshot. Every layer
// degrades independently: a missing driver or extractor produces an emptier
// snapshot, never an error.
package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// Driver is the narrow slice of the browser session perception needs.
type Driver interface {
	CaptureState(ctx context.Context) (*schemas.PageState, error)
	DOMSnapshot(ctx context.Context) (string, error)
}

// Screenshotter supplies a screenshot when no driver session exists (the
// OS-level degraded mode).
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Engine produces perception snapshots.
type Engine struct {
	cfg       config.PerceptionConfig
	logger    *zap.Logger
	driver    Driver        // may be nil
	extractor TextExtractor // may be nil
	fallback  Screenshotter // may be nil
}

// NewEngine creates a perception engine. driver, extractor and fallback are
// all optional.
func NewEngine(cfg config.PerceptionConfig, logger *zap.Logger, driver Driver, extractor TextExtractor, fallback Screenshotter) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger.Named("perception"),
		driver:    driver,
		extractor: extractor,
		fallback:  fallback,
	}
}

// Analyze captures and fuses the current environment. It never fails outright:
// layers that cannot contribute are recorded in snapshot.Degraded.
func (e *Engine) Analyze(ctx context.Context) (*schemas.PerceptionSnapshot, error) {
	snap := &schemas.PerceptionSnapshot{Timestamp: time.Now()}

	// Layer 1+3: visual capture and structural query, concurrently when a
	// driver exists.
	var domHTML string
	if e.driver != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			state, err := e.driver.CaptureState(gctx)
			if err != nil {
				e.logger.Debug("Visual capture degraded", zap.Error(err))
				return nil
			}
			snap.Screenshot = state.Screenshot
			snap.Title = state.Title
			snap.URL = state.URL
			snap.Viewport = state.Viewport
			return nil
		})
		g.Go(func() error {
			dom, err := e.driver.DOMSnapshot(gctx)
			if err != nil {
				e.logger.Debug("Structural capture degraded", zap.Error(err))
				return nil
			}
			domHTML = dom
			return nil
		})
		// Goroutines swallow their own failures; the only error left is
		// context cancellation.
		if err := g.Wait(); err != nil {
			return snap, err
		}
	} else if e.fallback != nil {
		shot, err := e.fallback.Screenshot(ctx)
		if err != nil {
			e.logger.Debug("Fallback screenshot degraded", zap.Error(err))
		} else {
			snap.Screenshot = shot
		}
	}

	// Layer 2: optional text extraction.
	if e.extractor != nil && len(snap.Screenshot) > 0 {
		res, err := e.extractor.Extract(ctx, snap.Screenshot)
		if err != nil {
			e.logger.Debug("Text extraction degraded", zap.Error(err))
		} else if res != nil {
			for _, r := range res.Regions {
				if r.Confidence >= e.cfg.MinTextConfidence && strings.TrimSpace(r.Text) != "" {
					snap.TextRegions = append(snap.TextRegions, r)
				}
			}
		}
	}
	if len(snap.TextRegions) == 0 {
		snap.Degraded = append(snap.Degraded, "text")
	}

	// Layer 3 result: parse structural elements out of the DOM.
	if domHTML != "" {
		snap.Structural = e.parseStructural(domHTML)
	}
	if len(snap.Structural) == 0 {
		snap.Degraded = append(snap.Degraded, "structural")
	}

	// Layer 4: semantic fusion and page context.
	e.fuse(snap)
	snap.Context = deriveContext(snap.AllText())

	return snap, nil
}

// parseStructural walks the DOM and lifts interactive and content-bearing
// elements, bounded by MaxStructuralElements.
func (e *Engine) parseStructural(domHTML string) []schemas.StructuralElement {
	doc, err := html.Parse(strings.NewReader(domHTML))
	if err != nil {
		e.logger.Debug("DOM parse failed", zap.Error(err))
		return nil
	}

	limit := e.cfg.MaxStructuralElements
	if limit <= 0 {
		limit = 400
	}

	var out []schemas.StructuralElement
	counts := map[string]int{}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode {
			tag := strings.ToLower(n.Data)
			if _, interactive := tagBuckets[tag]; interactive || isContentTag(tag) {
				counts[tag]++
				el := schemas.StructuralElement{
					Tag:      tag,
					Role:     attr(n, "role"),
					Text:     elementText(n),
					Selector: buildSelector(n, tag, counts[tag]),
				}
				if el.Text != "" || interactive {
					out = append(out, el)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

// fuse distributes elements into semantic buckets. Structural evidence wins
// over extracted text; text regions fill the gaps for whatever the DOM walk
// did not see.
func (e *Engine) fuse(snap *schemas.PerceptionSnapshot) {
	add := func(bucket string, el schemas.SemanticElement) {
		switch bucket {
		case "buttons":
			snap.Semantic.Buttons = append(snap.Semantic.Buttons, el)
		case "inputs":
			snap.Semantic.Inputs = append(snap.Semantic.Inputs, el)
		case "links":
			snap.Semantic.Links = append(snap.Semantic.Links, el)
		default:
			snap.Semantic.Content = append(snap.Semantic.Content, el)
		}
	}

	for _, s := range snap.Structural {
		bucket, ok := tagBuckets[s.Tag]
		if !ok {
			bucket = classifyText(s.Text)
		}
		add(bucket, schemas.SemanticElement{
			Text:     s.Text,
			Selector: s.Selector,
			BBox:     s.BBox,
			Source:   "structural",
		})
	}
	for _, r := range snap.TextRegions {
		add(classifyText(r.Text), schemas.SemanticElement{
			Text:   r.Text,
			BBox:   r.BBox,
			Source: "text",
		})
	}
}

// FindElement resolves hints against the snapshot. Every hint is tried
// against the semantic buckets (buttons, inputs, links, content in that
// order) before any hint falls back to raw text regions, so a later hint's
// semantic match always beats an earlier hint's text match. Matching is
// case-insensitive substring in either direction. A miss returns found=false,
// never an error.
func (e *Engine) FindElement(snap *schemas.PerceptionSnapshot, hints []string) (*schemas.ResolvedElement, bool) {
	if snap == nil {
		return nil, false
	}

	buckets := [][]schemas.SemanticElement{
		snap.Semantic.Buttons,
		snap.Semantic.Inputs,
		snap.Semantic.Links,
		snap.Semantic.Content,
	}
	for _, hint := range hints {
		needle := strings.ToLower(strings.TrimSpace(hint))
		if needle == "" {
			continue
		}
		for _, bucket := range buckets {
			for _, el := range bucket {
				if hintMatches(needle, el.Text) {
					return &schemas.ResolvedElement{
						Selector: el.Selector,
						Source:   "semantic",
						Text:     el.Text,
						BBox:     el.BBox,
						Score:    1.0,
					}, true
				}
			}
		}
	}
	for _, hint := range hints {
		needle := strings.ToLower(strings.TrimSpace(hint))
		if needle == "" {
			continue
		}
		for _, r := range snap.TextRegions {
			if hintMatches(needle, r.Text) {
				return &schemas.ResolvedElement{
					Source: "text",
					Text:   r.Text,
					BBox:   r.BBox,
					Score:  r.Confidence,
				}, true
			}
		}
	}
	return nil, false
}

func hintMatches(needle, candidate string) bool {
	c := strings.ToLower(strings.TrimSpace(candidate))
	if c == "" {
		return false
	}
	return strings.Contains(c, needle) || strings.Contains(needle, c)
}

// -- DOM helpers --

func isContentTag(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "label", "p", "span", "li", "td", "th":
		return true
	}
	return false
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// elementText collects the element's visible text: child text nodes plus,
// for inputs, the placeholder/value/aria-label attributes.
func elementText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)

	text := strings.Join(strings.Fields(b.String()), " ")
	if text == "" {
		for _, key := range []string{"placeholder", "value", "aria-label", "title", "alt", "name"} {
			if v := attr(n, key); v != "" {
				text = v
				break
			}
		}
	}
	// Bound pathological content blocks.
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// buildSelector produces a usable CSS selector: prefer the id, then a unique
// name attribute, then a tag-scoped nth-of-type.
func buildSelector(n *html.Node, tag string, ordinal int) string {
	if id := attr(n, "id"); id != "" {
		return "#" + id
	}
	if name := attr(n, "name"); name != "" {
		return fmt.Sprintf(`%s[name=%q]`, tag, name)
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", tag, ordinal)
}
