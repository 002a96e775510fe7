// Package domfake provides an in-process binding of the dom abstractions:
// a frame tree parsed from HTML fixtures, with synthetic layout metadata
// and asynchronous mailbox windows. It backs the test suites and the
// CLI's dry-run mode; the live Chrome binding lives in internal/browser.
//
// Layout is declared in the markup itself, since parsed HTML has no real
// layout engine:
//
//	<img id="logo" data-bbox="10,20,64,64">        bounding box x,y,w,h
//	<div data-hidden="true">...</div>              hidden subtree
//
// An element is visible when it has a bounding box and neither it nor an
// ancestor is hidden.
package domfake

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/a11yview/dom"
)

// inboxSize bounds each window's mailbox. Posts to a full mailbox drop
// the message, mirroring a frame that never services its queue.
const inboxSize = 256

type delivery struct {
	data   []byte
	source dom.Window
}

// Window is an isolated frame context: one document, one mailbox, one
// goroutine delivering messages to the registered callback in order,
// each to completion. Implements dom.Window.
type Window struct {
	name string

	mu        sync.Mutex
	onMessage func(data []byte, source dom.Window)
	closed    bool
	inflight  *sync.WaitGroup

	inbox chan delivery
	done  chan struct{}

	doc *Document
}

// NewWindow parses src as the frame's document and starts the mailbox
// pump. name identifies the window in test failures and logs.
func NewWindow(name, src string) (*Window, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("domfake: parse %s: %w", name, err)
	}

	w := &Window{
		name:     name,
		inflight: &sync.WaitGroup{},
		inbox:    make(chan delivery, inboxSize),
		done:     make(chan struct{}),
	}
	w.doc = newDocument(w, root)

	go w.pump()
	return w, nil
}

// Name returns the identifier given at construction.
func (w *Window) Name() string { return w.name }

// Document returns the window's document.
func (w *Window) Document() *Document { return w.doc }

// Post enqueues data for asynchronous delivery. Posting to a closed
// window is a no-op, as is overflowing the mailbox.
func (w *Window) Post(data []byte, source dom.Window) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	wg := w.inflight
	w.mu.Unlock()

	wg.Add(1)
	select {
	case w.inbox <- delivery{data: data, source: source}:
	default:
		wg.Done()
	}
}

// OnMessage registers the receive callback, replacing any earlier one.
func (w *Window) OnMessage(fn func(data []byte, source dom.Window)) {
	w.mu.Lock()
	w.onMessage = fn
	w.mu.Unlock()
}

// Mount attaches child as the content window of the iframe matching
// frameSelector. The child joins this window's in-flight accounting so
// Settle observes the whole tree. Mount before any messaging starts.
func (w *Window) Mount(frameSelector string, child *Window) error {
	if err := w.doc.mount(frameSelector, child); err != nil {
		return err
	}
	child.setInflight(w.currentInflight())
	return nil
}

// DetachFrame disconnects the iframe matching frameSelector: its
// ContentWindow becomes nil while the element stays in the document.
func (w *Window) DetachFrame(frameSelector string) {
	w.doc.detach(frameSelector)
}

// Close stops the mailbox pump of this window and every mounted
// descendant. Posts after Close are dropped.
func (w *Window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	for _, child := range w.doc.mountedChildren() {
		child.Close()
	}
}

// Settle blocks until every message in flight anywhere in the mounted
// tree has been delivered, including messages those deliveries spawned.
func (w *Window) Settle() {
	w.currentInflight().Wait()
}

func (w *Window) pump() {
	for {
		select {
		case <-w.done:
			return
		case d := <-w.inbox:
			w.mu.Lock()
			fn := w.onMessage
			wg := w.inflight
			w.mu.Unlock()

			if fn != nil {
				fn(d.data, d.source)
			}
			wg.Done()
		}
	}
}

func (w *Window) currentInflight() *sync.WaitGroup {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight
}

// setInflight adopts the root's WaitGroup, recursively. A child posted to
// before the counter swap would be tracked on its old group; mounting
// before messaging avoids the window where that matters.
func (w *Window) setInflight(wg *sync.WaitGroup) {
	w.mu.Lock()
	w.inflight = wg
	w.mu.Unlock()
	for _, child := range w.doc.mountedChildren() {
		child.setInflight(wg)
	}
}
