package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/a11yview/dom"
)

// bindingName is the Runtime binding relaying window messages to Go.
const bindingName = "__a11yview_bridge"

// relayJS forwards window messages into the binding. Installed once per
// frame; the guard keeps re-binding idempotent across reattach.
const relayJS = `() => {
	if (window.__a11yview_relay_installed) { return; }
	window.__a11yview_relay_installed = true;
	window.addEventListener('message', (e) => {
		try { window.` + bindingName + `(JSON.stringify(e.data)); } catch (err) {}
	});
}`

// Window implements dom.Window over one CDP frame context.
//
// The visualization protocol is strictly parent-to-child: requests flow
// down the frame tree and replies flow back up. CDP's binding callback
// does not identify the posting window, so received messages are
// attributed to the frame's parent — the only peer that sends here.
type Window struct {
	page   *rod.Page
	parent dom.Window
	logger *slog.Logger
	ctx    context.Context

	mu        sync.Mutex
	onMessage func(data []byte, source dom.Window)
}

// BindPage attaches to a page's top frame and returns its document and
// window. Child frames are bound lazily through Document.Frames.
func BindPage(ctx context.Context, page *rod.Page, logger *slog.Logger) (*Document, *Window, error) {
	if logger == nil {
		logger = slog.Default()
	}
	win, err := bindWindow(ctx, page, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	doc := newDocument(ctx, page, win, logger)
	return doc, win, nil
}

func bindWindow(ctx context.Context, page *rod.Page, parent dom.Window, logger *slog.Logger) (*Window, error) {
	w := &Window{page: page, parent: parent, logger: logger, ctx: ctx}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}
	if _, err := page.Eval(relayJS); err != nil {
		return nil, fmt.Errorf("browser: install message relay: %w", err)
	}

	go w.listen()
	return w, nil
}

func (w *Window) listen() {
	w.page.Context(w.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		w.mu.Lock()
		fn := w.onMessage
		w.mu.Unlock()
		if fn != nil {
			fn([]byte(e.Payload), w.parent)
		}
	})()
}

// Post evaluates a postMessage into the frame's JS context.
func (w *Window) Post(data []byte, source dom.Window) {
	_, err := w.page.Eval(`(data) => window.postMessage(JSON.parse(data), '*')`, string(data))
	if err != nil {
		w.logger.Debug("browser: post message failed", "error", err)
	}
}

// OnMessage registers the receive callback, replacing any earlier one.
func (w *Window) OnMessage(fn func(data []byte, source dom.Window)) {
	w.mu.Lock()
	w.onMessage = fn
	w.mu.Unlock()
}

// Document implements dom.Document over one CDP frame context.
type Document struct {
	ctx    context.Context
	page   *rod.Page
	win    *Window
	logger *slog.Logger

	mu       sync.Mutex
	children map[proto.RuntimeRemoteObjectID]*Window
}

func newDocument(ctx context.Context, page *rod.Page, win *Window, logger *slog.Logger) *Document {
	return &Document{
		ctx:      ctx,
		page:     page,
		win:      win,
		logger:   logger,
		children: make(map[proto.RuntimeRemoteObjectID]*Window),
	}
}

// QuerySelector resolves without waiting: an absent element is a state,
// not something to retry.
func (d *Document) QuerySelector(selector string) (dom.Element, bool) {
	has, el, err := d.page.Has(selector)
	if err != nil || !has {
		return nil, false
	}
	return &element{el: el, selector: selector, logger: d.logger}, true
}

func (d *Document) QueryFrame(selector string) (dom.FrameElement, bool) {
	has, el, err := d.page.Has(selector)
	if err != nil || !has {
		return nil, false
	}
	return &frameElement{
		element: element{el: el, selector: selector, logger: d.logger},
		doc:     d,
	}, true
}

func (d *Document) Frames() []dom.FrameElement {
	els, err := d.page.Elements("iframe")
	if err != nil {
		d.logger.Debug("browser: enumerate frames", "error", err)
		return nil
	}
	var frames []dom.FrameElement
	for i, el := range els {
		frames = append(frames, &frameElement{
			element: element{el: el, selector: fmt.Sprintf("iframe:nth-of-type(%d)", i+1), logger: d.logger},
			doc:     d,
		})
	}
	return frames
}

// contentWindow binds (or returns the cached binding for) an iframe's
// frame context.
func (d *Document) contentWindow(el *rod.Element) dom.Window {
	id := el.Object.ObjectID

	d.mu.Lock()
	if w, ok := d.children[id]; ok {
		d.mu.Unlock()
		return w
	}
	d.mu.Unlock()

	framePage, err := el.Frame()
	if err != nil {
		return nil
	}
	w, err := bindWindow(d.ctx, framePage, d.win, d.logger)
	if err != nil {
		d.logger.Debug("browser: bind frame window", "error", err)
		return nil
	}

	d.mu.Lock()
	d.children[id] = w
	d.mu.Unlock()
	return w
}

// SetOverlay replaces owner's overlay container with freshly positioned
// boxes. The container is a fixed-position layer the page never owns.
func (d *Document) SetOverlay(owner string, boxes []dom.OverlayBox) error {
	payload, err := json.Marshal(boxes)
	if err != nil {
		return fmt.Errorf("browser: marshal overlay boxes: %w", err)
	}
	_, err = d.page.Eval(setOverlayJS, owner, string(payload))
	if err != nil {
		return fmt.Errorf("browser: set overlay %s: %w", owner, err)
	}
	return nil
}

func (d *Document) RemoveOverlay(owner string) error {
	_, err := d.page.Eval(removeOverlayJS, owner)
	if err != nil {
		return fmt.Errorf("browser: remove overlay %s: %w", owner, err)
	}
	return nil
}

// element implements dom.Element over a Rod element handle.
type element struct {
	el       *rod.Element
	selector string
	logger   *slog.Logger
}

func (e *element) Selector() string { return e.selector }

func (e *element) BoundingBox() (dom.Rect, bool) {
	res, err := e.el.Eval(`() => {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	}`)
	if err != nil {
		return dom.Rect{}, false
	}
	rect := dom.Rect{
		X:      res.Value.Get("x").Num(),
		Y:      res.Value.Get("y").Num(),
		Width:  res.Value.Get("width").Num(),
		Height: res.Value.Get("height").Num(),
	}
	if rect.Width == 0 && rect.Height == 0 {
		return dom.Rect{}, false
	}
	return rect, true
}

func (e *element) Visible() bool {
	v, err := e.el.Visible()
	return err == nil && v
}

func (e *element) OuterHTML() string {
	s, err := e.el.HTML()
	if err != nil {
		return ""
	}
	return s
}

// frameElement implements dom.FrameElement.
type frameElement struct {
	element
	doc *Document
}

func (f *frameElement) ContentWindow() dom.Window {
	return f.doc.contentWindow(f.el)
}
