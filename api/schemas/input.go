// api/schemas/input.go
package schemas

// MouseEventType defines the type of a synthesized mouse event. The strings
// align with the CDP Input domain so a chromedp dispatcher can pass them
// through unchanged.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
	MouseWheel   MouseEventType = "mouseWheel"
)

// MouseButton identifies a mouse button.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData is the dispatcher-agnostic payload of one mouse event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
	DeltaX     float64        `json:"deltaX"`
	DeltaY     float64        `json:"deltaY"`
}

// ElementGeometry is the on-screen geometry of a resolved element, used by
// input synthesis to pick a realistic interaction point.
type ElementGeometry struct {
	BBox    BBox   `json:"bbox"`
	TagName string `json:"tagName,omitempty"`
}
