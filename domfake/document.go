package domfake

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/a11yview/dom"
)

// Document implements dom.Document over a parsed HTML tree. Overlay boxes
// live beside the tree rather than in it, keyed by owner, so overlay
// writes never disturb selector matching.
type Document struct {
	win  *Window
	root *html.Node

	mu       sync.Mutex
	overlays map[string][]dom.OverlayBox
	mounts   map[*html.Node]*Window
}

func newDocument(win *Window, root *html.Node) *Document {
	return &Document{
		win:      win,
		root:     root,
		overlays: make(map[string][]dom.OverlayBox),
		mounts:   make(map[*html.Node]*Window),
	}
}

// QuerySelector resolves the first element matching the selector.
func (d *Document) QuerySelector(selector string) (dom.Element, bool) {
	n := querySelector(d.root, selector)
	if n == nil {
		return nil, false
	}
	return &element{doc: d, node: n, selector: selector}, true
}

// QueryFrame resolves an iframe element by selector.
func (d *Document) QueryFrame(selector string) (dom.FrameElement, bool) {
	n := querySelector(d.root, selector)
	if n == nil || n.Data != "iframe" {
		return nil, false
	}
	return &frameElement{element: element{doc: d, node: n, selector: selector}}, true
}

// Frames enumerates iframe elements in document order.
func (d *Document) Frames() []dom.FrameElement {
	d.mu.Lock()
	defer d.mu.Unlock()
	var frames []dom.FrameElement
	for i, n := range matchSimple(d.root, "iframe") {
		sel := frameSelector(n, i)
		frames = append(frames, &frameElement{element: element{doc: d, node: n, selector: sel}})
	}
	return frames
}

// SetOverlay replaces the overlay boxes owned by owner.
func (d *Document) SetOverlay(owner string, boxes []dom.OverlayBox) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlays[owner] = boxes
	return nil
}

// RemoveOverlay removes every overlay box owned by owner.
func (d *Document) RemoveOverlay(owner string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.overlays, owner)
	return nil
}

// Overlays returns the boxes currently owned by owner. Test inspection
// hook; the dom.Document interface has no read path for overlays.
func (d *Document) Overlays(owner string) []dom.OverlayBox {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlays[owner]
}

// OverlayOwners returns every owner with at least one overlay box.
func (d *Document) OverlayOwners() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var owners []string
	for owner, boxes := range d.overlays {
		if len(boxes) > 0 {
			owners = append(owners, owner)
		}
	}
	return owners
}

// SetAttr sets an attribute on the first element matching selector and
// reports whether a match was found. This is the fixture-mutation hook
// tests use to simulate layout changes (hide an element, move a box)
// between visibility ticks.
func (d *Document) SetAttr(selector, key, val string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := querySelector(d.root, selector)
	if n == nil {
		return false
	}
	setNodeAttr(n, key, val)
	return true
}

func setNodeAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func (d *Document) mount(frameSelector string, child *Window) error {
	n := querySelector(d.root, frameSelector)
	if n == nil || n.Data != "iframe" {
		return fmt.Errorf("domfake: mount: no iframe matches %q", frameSelector)
	}
	d.mu.Lock()
	d.mounts[n] = child
	d.mu.Unlock()
	return nil
}

func (d *Document) detach(frameSelector string) {
	n := querySelector(d.root, frameSelector)
	if n == nil {
		return
	}
	d.mu.Lock()
	delete(d.mounts, n)
	d.mu.Unlock()
}

func (d *Document) contentWindow(n *html.Node) *Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounts[n]
}

func (d *Document) mountedChildren() []*Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	children := make([]*Window, 0, len(d.mounts))
	for _, w := range d.mounts {
		children = append(children, w)
	}
	return children
}

// frameSelector derives a stable selector for an enumerated iframe:
// "#id" when the element has one. An id-less iframe gets its enumeration
// index stamped as an attribute so the positional selector re-resolves.
func frameSelector(n *html.Node, index int) string {
	if id := getAttr(n, "id"); id != "" {
		return "#" + id
	}
	setNodeAttr(n, "data-frame-index", strconv.Itoa(index))
	return fmt.Sprintf("iframe[data-frame-index=%d]", index)
}

// element implements dom.Element over one node.
type element struct {
	doc      *Document
	node     *html.Node
	selector string
}

func (e *element) Selector() string { return e.selector }

// BoundingBox parses the data-bbox attribute ("x,y,w,h").
func (e *element) BoundingBox() (dom.Rect, bool) {
	raw := getAttr(e.node, "data-bbox")
	if raw == "" {
		return dom.Rect{}, false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return dom.Rect{}, false
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return dom.Rect{}, false
		}
		vals[i] = v
	}
	return dom.Rect{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, true
}

// Visible reports whether the element has layout and no hidden ancestor.
func (e *element) Visible() bool {
	if _, ok := e.BoundingBox(); !ok {
		return false
	}
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if hasAttr(n, "hidden") || getAttr(n, "data-hidden") == "true" {
			return false
		}
	}
	return true
}

func (e *element) OuterHTML() string {
	var sb strings.Builder
	if err := html.Render(&sb, e.node); err != nil {
		return ""
	}
	return sb.String()
}

// frameElement implements dom.FrameElement.
type frameElement struct {
	element
}

func (f *frameElement) ContentWindow() dom.Window {
	w := f.doc.contentWindow(f.node)
	if w == nil {
		// A typed nil inside the interface would read as non-nil.
		return nil
	}
	return w
}
