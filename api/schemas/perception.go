// api/schemas/perception.go
package schemas

import "time"

// BBox is an axis-aligned bounding box in CSS pixels.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the midpoint of the box.
func (b BBox) Center() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H/2
}

// Empty reports whether the box has no area.
func (b BBox) Empty() bool { return b.W <= 0 || b.H <= 0 }

// TextRegion is a piece of text extracted from a screenshot, with its
// location and the extractor's confidence in [0,1].
type TextRegion struct {
	Text       string  `json:"text"`
	BBox       BBox    `json:"bbox"`
	Confidence float64 `json:"confidence"`
}

// StructuralElement is a DOM-derived element description captured while a
// driver session is available.
type StructuralElement struct {
	Tag      string `json:"tag"`
	Role     string `json:"role,omitempty"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector,omitempty"`
	BBox     BBox   `json:"bbox"`
}

// SemanticElement is one entry of a fused semantic bucket. It records which
// perception layer contributed it so consumers can prefer structural hits.
type SemanticElement struct {
	Text     string `json:"text"`
	Selector string `json:"selector,omitempty"`
	BBox     BBox   `json:"bbox"`
	Source   string `json:"source"` // "structural" or "text"
}

// SemanticBuckets groups perceived elements by coarse interactive role.
type SemanticBuckets struct {
	Buttons []SemanticElement `json:"buttons"`
	Inputs  []SemanticElement `json:"inputs"`
	Links   []SemanticElement `json:"links"`
	Content []SemanticElement `json:"content"`
}

// PageType classifies the overall purpose of the current page.
type PageType string

const (
	PageAuthentication PageType = "authentication"
	PageCommerce       PageType = "commerce"
	PageSearchResults  PageType = "search_results"
	PageDashboard      PageType = "dashboard"
	PageSettings       PageType = "settings"
	PageContent        PageType = "content"
)

// PageContext carries coarse boolean signals about the current page plus its
// resolved type.
type PageContext struct {
	HasLogin  bool     `json:"has_login"`
	HasSearch bool     `json:"has_search"`
	HasForms  bool     `json:"has_forms"`
	HasErrors bool     `json:"has_errors"`
	PageType  PageType `json:"page_type"`
}

// ViewportSize is the browser viewport in CSS pixels.
type ViewportSize struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// PageState is the raw driver-side capture of the current page.
type PageState struct {
	Title      string       `json:"title"`
	URL        string       `json:"url"`
	Screenshot []byte       `json:"-"`
	Viewport   ViewportSize `json:"viewport"`
}

// PerceptionSnapshot is the fused view of the environment at a point in time.
// Individual layers degrade independently: a missing extractor yields empty
// text regions, a missing driver yields empty structural elements. Consumers
// must treat every slice as possibly empty.
type PerceptionSnapshot struct {
	Timestamp   time.Time           `json:"timestamp"`
	Screenshot  []byte              `json:"-"`
	Title       string              `json:"title,omitempty"`
	URL         string              `json:"url,omitempty"`
	Viewport    ViewportSize        `json:"viewport"`
	TextRegions []TextRegion        `json:"text_regions"`
	Structural  []StructuralElement `json:"structural"`
	Semantic    SemanticBuckets     `json:"semantic"`
	Context     PageContext         `json:"page_context"`
	// Degraded lists the layers that produced no data ("text", "structural").
	Degraded []string `json:"degraded,omitempty"`
}

// AllText returns the perceived text of the snapshot, structural first, for
// indicator matching.
func (s *PerceptionSnapshot) AllText() []string {
	out := make([]string, 0, len(s.Structural)+len(s.TextRegions))
	for _, e := range s.Structural {
		if e.Text != "" {
			out = append(out, e.Text)
		}
	}
	for _, r := range s.TextRegions {
		if r.Text != "" {
			out = append(out, r.Text)
		}
	}
	return out
}
