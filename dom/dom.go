// Package dom defines the frame, document, and window abstractions the
// visualization subsystem operates on. A page is a tree of frames; each
// frame is an isolated context holding its own Document and reachable
// from other frames only through its Window's asynchronous message
// channel. Two bindings exist: domfake (in-process fixture trees, used
// by tests and dry-run mode) and internal/browser (live Chrome via CDP).
package dom

// Rect is an element's layout box in page coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Window is the messaging endpoint of one frame context. Post is the only
// cross-frame primitive: delivery is asynchronous and unordered relative
// to other windows, but each window hands received messages to its
// callback one at a time, to completion.
type Window interface {
	// Post enqueues data for delivery to this window. source identifies
	// the sending window so the recipient can reply.
	Post(data []byte, source Window)

	// OnMessage registers the receive callback. A window has at most one
	// callback; a later registration replaces the earlier one.
	OnMessage(fn func(data []byte, source Window))
}

// Element is a live handle to a node in some frame's document.
type Element interface {
	// Selector returns the selector this element was resolved from.
	Selector() string

	// BoundingBox reports the element's layout box. ok is false when the
	// element has no layout (detached or display:none).
	BoundingBox() (rect Rect, ok bool)

	// Visible reports whether the element currently renders: attached,
	// laid out, and not hidden by itself or an ancestor.
	Visible() bool

	// OuterHTML returns the element's serialized markup.
	OuterHTML() string
}

// FrameElement is an iframe element in a document.
type FrameElement interface {
	Element

	// ContentWindow returns the messaging endpoint of the nested frame,
	// or nil when the frame is detached or not yet loaded. Senders must
	// treat nil as a silent no-op: frames come and go asynchronously.
	ContentWindow() Window
}

// OverlayBox is one overlay node drawn on top of page content.
type OverlayBox struct {
	Rect    Rect   `json:"rect"`
	Outline string `json:"outline"`           // CSS color of the border
	Label   string `json:"label,omitempty"`   // short badge text
	Snippet string `json:"snippet,omitempty"` // sanitized HTML of the target
}

// Document is the DOM of a single frame context. Overlay writes are keyed
// by an owner string (the drawer's configId); a document never lets two
// owners collide and an owner's SetOverlay replaces its previous boxes.
type Document interface {
	// QuerySelector resolves the first element matching the selector.
	QuerySelector(selector string) (Element, bool)

	// QueryFrame resolves an iframe element by selector.
	QueryFrame(selector string) (FrameElement, bool)

	// Frames enumerates the iframe elements currently in the document,
	// in document order.
	Frames() []FrameElement

	// SetOverlay replaces the overlay boxes owned by owner.
	SetOverlay(owner string, boxes []OverlayBox) error

	// RemoveOverlay removes every overlay box owned by owner. Removing a
	// never-set owner is a no-op.
	RemoveOverlay(owner string) error
}
