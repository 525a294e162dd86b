// internal/perception/engine_test.go
package perception

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

const checkoutHTML = `<html><head><title>Checkout</title></head><body>
<h1>Complete your order</h1>
<form>
  <label>Email address</label>
  <input id="email" type="email" placeholder="Enter your email">
  <input type="text" name="promo" placeholder="Promo code">
  <button id="pay-now">Pay now</button>
</form>
<a href="/help">Help</a>
<p>Price includes shipping to your address.</p>
</body></html>`

type fakePerceptionDriver struct {
	state    *schemas.PageState
	dom      string
	stateErr error
	domErr   error
}

func (d *fakePerceptionDriver) CaptureState(ctx context.Context) (*schemas.PageState, error) {
	if d.stateErr != nil {
		return nil, d.stateErr
	}
	return d.state, nil
}

func (d *fakePerceptionDriver) DOMSnapshot(ctx context.Context) (string, error) {
	if d.domErr != nil {
		return "", d.domErr
	}
	return d.dom, nil
}

func testPerceptionCfg() config.PerceptionConfig {
	return config.PerceptionConfig{
		MinTextConfidence:     0.5,
		MaxStructuralElements: 400,
	}
}

func TestAnalyze_StructuralFusion(t *testing.T) {
	driver := &fakePerceptionDriver{
		state: &schemas.PageState{
			Title:      "Checkout",
			URL:        "https://shop.example.com/checkout",
			Screenshot: []byte{0x89, 0x50},
			Viewport:   schemas.ViewportSize{Width: 1280, Height: 800},
		},
		dom: checkoutHTML,
	}
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), driver, nil, nil)

	snap, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Equal(t, "Checkout", snap.Title)
	assert.Equal(t, "https://shop.example.com/checkout", snap.URL)
	assert.NotEmpty(t, snap.Structural)

	// The id-bearing elements get id selectors, the named input a name
	// selector.
	selectors := map[string]string{}
	for _, el := range snap.Structural {
		selectors[el.Text] = el.Selector
	}
	assert.Equal(t, "#email", selectors["Enter your email"])
	assert.Equal(t, "#pay-now", selectors["Pay now"])
	assert.Equal(t, `input[name="promo"]`, selectors["Promo code"])

	// Tag evidence routes elements into the right buckets.
	var buttonTexts, inputTexts, linkTexts []string
	for _, b := range snap.Semantic.Buttons {
		buttonTexts = append(buttonTexts, b.Text)
	}
	for _, i := range snap.Semantic.Inputs {
		inputTexts = append(inputTexts, i.Text)
	}
	for _, l := range snap.Semantic.Links {
		linkTexts = append(linkTexts, l.Text)
	}
	assert.Contains(t, buttonTexts, "Pay now")
	assert.Contains(t, inputTexts, "Enter your email")
	assert.Contains(t, linkTexts, "Help")

	// No extractor means the text layer is degraded; structural is not.
	assert.Contains(t, snap.Degraded, "text")
	assert.NotContains(t, snap.Degraded, "structural")

	// Page text mentions price, so the page classifies as commerce.
	assert.Equal(t, schemas.PageCommerce, snap.Context.PageType)
}

func TestAnalyze_NoDriverDegradesEverything(t *testing.T) {
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), nil, nil, nil)

	snap, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.Contains(t, snap.Degraded, "text")
	assert.Contains(t, snap.Degraded, "structural")
	assert.Equal(t, schemas.PageContent, snap.Context.PageType)
}

func TestAnalyze_DriverErrorsDegradeNotFail(t *testing.T) {
	driver := &fakePerceptionDriver{
		stateErr: errors.New("target crashed"),
		domErr:   errors.New("target crashed"),
	}
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), driver, nil, nil)

	snap, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Structural)
	assert.Contains(t, snap.Degraded, "structural")
}

func TestAnalyze_ExtractorConfidenceFilter(t *testing.T) {
	driver := &fakePerceptionDriver{
		state: &schemas.PageState{Screenshot: []byte{0x01}},
		dom:   "<html><body><button id=b>Go</button></body></html>",
	}
	extractor := ExtractorFunc(func(ctx context.Context, image []byte) (*ExtractResult, error) {
		return &ExtractResult{Regions: []schemas.TextRegion{
			{Text: "Sign in", Confidence: 0.9},
			{Text: "blurry smudge", Confidence: 0.2},
			{Text: "   ", Confidence: 0.9},
		}}, nil
	})
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), driver, extractor, nil)

	snap, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.TextRegions, 1)
	assert.Equal(t, "Sign in", snap.TextRegions[0].Text)
	assert.NotContains(t, snap.Degraded, "text")
}

func TestAnalyze_FallbackScreenshotWithoutDriver(t *testing.T) {
	shot := []byte{0xDE, 0xAD}
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), nil, nil,
		screenshotFunc(func(ctx context.Context) ([]byte, error) { return shot, nil }))

	snap, err := engine.Analyze(context.Background())
	require.NoError(t, err)
	assert.Equal(t, shot, snap.Screenshot)
}

type screenshotFunc func(ctx context.Context) ([]byte, error)

func (f screenshotFunc) Screenshot(ctx context.Context) ([]byte, error) { return f(ctx) }

func TestFindElement_SemanticBeforeText(t *testing.T) {
	snap := &schemas.PerceptionSnapshot{
		Semantic: schemas.SemanticBuckets{
			Buttons: []schemas.SemanticElement{
				{Text: "Continue", Selector: "#next", Source: "structural"},
			},
		},
		TextRegions: []schemas.TextRegion{
			{Text: "Continue reading", Confidence: 0.8},
		},
	}
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), nil, nil, nil)

	resolved, found := engine.FindElement(snap, []string{"submit", "continue"})
	require.True(t, found)
	assert.Equal(t, "#next", resolved.Selector)
	assert.Equal(t, "semantic", resolved.Source)
	assert.Equal(t, 1.0, resolved.Score)
}

func TestFindElement_LaterHintSemanticBeatsEarlierHintText(t *testing.T) {
	// "search" only appears in a text region; "go" resolves a real button.
	// The button must win even though it matches the later hint.
	snap := &schemas.PerceptionSnapshot{
		Semantic: schemas.SemanticBuckets{
			Buttons: []schemas.SemanticElement{
				{Text: "Go", Selector: "#go", Source: "structural"},
			},
		},
		TextRegions: []schemas.TextRegion{
			{Text: "Search our catalogue", Confidence: 0.9},
		},
	}
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), nil, nil, nil)

	resolved, found := engine.FindElement(snap, []string{"search", "go"})
	require.True(t, found)
	assert.Equal(t, "semantic", resolved.Source)
	assert.Equal(t, "#go", resolved.Selector)
}

func TestFindElement_FallsBackToTextRegions(t *testing.T) {
	snap := &schemas.PerceptionSnapshot{
		TextRegions: []schemas.TextRegion{
			{Text: "Download invoice", BBox: schemas.BBox{X: 10, Y: 20, W: 80, H: 16}, Confidence: 0.74},
		},
	}
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), nil, nil, nil)

	resolved, found := engine.FindElement(snap, []string{"download invoice"})
	require.True(t, found)
	assert.Equal(t, "text", resolved.Source)
	assert.Empty(t, resolved.Selector)
	assert.Equal(t, 0.74, resolved.Score)
}

func TestFindElement_MissReturnsFalse(t *testing.T) {
	engine := NewEngine(testPerceptionCfg(), zaptest.NewLogger(t), nil, nil, nil)

	_, found := engine.FindElement(&schemas.PerceptionSnapshot{}, []string{"unsubscribe"})
	assert.False(t, found)

	_, found = engine.FindElement(nil, []string{"anything"})
	assert.False(t, found)
}

func TestClassifyText(t *testing.T) {
	testCases := []struct {
		text string
		want string
	}{
		{"Sign in", "buttons"},
		{"Add to cart", "buttons"},
		{"Enter your email", "inputs"},
		{"Read more about privacy", "links"},
		{"Learn more", "links"},
		{"Welcome to our store", "content"},
	}
	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyText(tc.text))
		})
	}
}

func TestDeriveContext_PageTypePriority(t *testing.T) {
	// A login page that also mentions a cart still classifies as
	// authentication because that rule ranks first.
	ctx := deriveContext([]string{"Sign in to view your cart", "Password"})
	assert.True(t, ctx.HasLogin)
	assert.Equal(t, schemas.PageAuthentication, ctx.PageType)

	ctx = deriveContext([]string{"Search results for keyboards", "Showing 10 of 94"})
	assert.Equal(t, schemas.PageSearchResults, ctx.PageType)

	ctx = deriveContext([]string{"Plain article text with no signals"})
	assert.Equal(t, schemas.PageContent, ctx.PageType)

	ctx = deriveContext([]string{"Invalid password, try again"})
	assert.True(t, ctx.HasErrors)
}
