package domfake

import (
	"sync/atomic"
	"testing"

	"github.com/hazyhaar/a11yview/dom"
)

const pageHTML = `<html><body>
	<div id="main" class="content">
		<img id="logo" data-bbox="10,20,64,48">
		<p class="hint" data-bbox="0,100,200,20">hello</p>
	</div>
	<div data-hidden="true">
		<span id="ghost" data-bbox="5,5,10,10"></span>
	</div>
	<iframe id="child-a"></iframe>
	<iframe class="ad"></iframe>
</body></html>`

func newTestWindow(t *testing.T, name, src string) *Window {
	t.Helper()
	w, err := NewWindow(name, src)
	if err != nil {
		t.Fatalf("NewWindow(%s): %v", name, err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestQuerySelector(t *testing.T) {
	w := newTestWindow(t, "top", pageHTML)
	doc := w.Document()

	el, ok := doc.QuerySelector("#logo")
	if !ok {
		t.Fatal("QuerySelector(#logo): not found")
	}
	rect, ok := el.BoundingBox()
	if !ok {
		t.Fatal("BoundingBox: expected layout")
	}
	if rect.X != 10 || rect.Y != 20 || rect.Width != 64 || rect.Height != 48 {
		t.Fatalf("BoundingBox: got %+v", rect)
	}

	if _, ok := doc.QuerySelector(".missing"); ok {
		t.Fatal("QuerySelector(.missing): expected no match")
	}

	if _, ok := doc.QuerySelector("div.content p.hint"); !ok {
		t.Fatal("descendant combinator: expected match")
	}
}

func TestVisible_HiddenAncestor(t *testing.T) {
	w := newTestWindow(t, "top", pageHTML)
	doc := w.Document()

	el, ok := doc.QuerySelector("#ghost")
	if !ok {
		t.Fatal("QuerySelector(#ghost): not found")
	}
	if el.Visible() {
		t.Fatal("Visible: element under data-hidden ancestor should be hidden")
	}

	logo, _ := doc.QuerySelector("#logo")
	if !logo.Visible() {
		t.Fatal("Visible: #logo should be visible")
	}
}

func TestVisible_NoLayout(t *testing.T) {
	w := newTestWindow(t, "top", `<html><body><div id="x"></div></body></html>`)
	el, ok := w.Document().QuerySelector("#x")
	if !ok {
		t.Fatal("QuerySelector(#x): not found")
	}
	if el.Visible() {
		t.Fatal("Visible: element without data-bbox should not be visible")
	}
}

func TestFrames_Enumeration(t *testing.T) {
	w := newTestWindow(t, "top", pageHTML)
	frames := w.Document().Frames()
	if len(frames) != 2 {
		t.Fatalf("Frames: got %d, want 2", len(frames))
	}
	if frames[0].Selector() != "#child-a" {
		t.Fatalf("Frames[0].Selector: got %q, want %q", frames[0].Selector(), "#child-a")
	}
	if frames[0].ContentWindow() != nil {
		t.Fatal("ContentWindow: unmounted frame should be nil")
	}
}

func TestFrames_PositionalSelectorResolves(t *testing.T) {
	w := newTestWindow(t, "top", `<html><body>
		<iframe></iframe>
		<iframe></iframe>
	</body></html>`)
	doc := w.Document()

	frames := doc.Frames()
	if len(frames) != 2 {
		t.Fatalf("Frames: got %d, want 2", len(frames))
	}

	seen := make(map[string]bool)
	for i, f := range frames {
		sel := f.Selector()
		if seen[sel] {
			t.Fatalf("Frames[%d]: duplicate selector %q", i, sel)
		}
		seen[sel] = true
		if _, ok := doc.QueryFrame(sel); !ok {
			t.Fatalf("Frames[%d]: selector %q does not re-resolve", i, sel)
		}
	}
}

func TestMountAndDetach(t *testing.T) {
	top := newTestWindow(t, "top", pageHTML)
	child := newTestWindow(t, "child", `<html><body></body></html>`)

	if err := top.Mount("#child-a", child); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	fr, ok := top.Document().QueryFrame("#child-a")
	if !ok {
		t.Fatal("QueryFrame(#child-a): not found")
	}
	if fr.ContentWindow() == nil {
		t.Fatal("ContentWindow: expected mounted child")
	}

	top.DetachFrame("#child-a")
	if fr.ContentWindow() != nil {
		t.Fatal("ContentWindow: expected nil after detach")
	}
}

func TestMount_NotAnIframe(t *testing.T) {
	top := newTestWindow(t, "top", pageHTML)
	child := newTestWindow(t, "child", `<html><body></body></html>`)
	if err := top.Mount("#main", child); err == nil {
		t.Fatal("Mount(#main): expected error for non-iframe target")
	}
}

func TestPost_DeliversInOrder(t *testing.T) {
	w := newTestWindow(t, "top", pageHTML)

	var got []string
	done := make(chan struct{})
	w.OnMessage(func(data []byte, source dom.Window) {
		got = append(got, string(data))
		if len(got) == 3 {
			close(done)
		}
	})

	w.Post([]byte("a"), nil)
	w.Post([]byte("b"), nil)
	w.Post([]byte("c"), nil)
	<-done

	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("delivery order: got %v", got)
	}
}

func TestPost_AfterClose(t *testing.T) {
	w, err := NewWindow("top", pageHTML)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	var calls atomic.Int32
	w.OnMessage(func(data []byte, source dom.Window) { calls.Add(1) })
	w.Close()
	w.Post([]byte("late"), nil)
	if n := calls.Load(); n != 0 {
		t.Fatalf("post after close: got %d deliveries, want 0", n)
	}
}

func TestSettle_NestedPosts(t *testing.T) {
	top := newTestWindow(t, "top", pageHTML)
	child := newTestWindow(t, "child", `<html><body></body></html>`)
	if err := top.Mount("#child-a", child); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	var childGot atomic.Int32
	child.OnMessage(func(data []byte, source dom.Window) { childGot.Add(1) })

	// Top's handler relays to the child; Settle must cover the relay too.
	top.OnMessage(func(data []byte, source dom.Window) {
		child.Post(data, top)
	})

	top.Post([]byte("x"), nil)
	top.Settle()

	if n := childGot.Load(); n != 1 {
		t.Fatalf("Settle: child got %d messages, want 1", n)
	}
}

func TestOverlays(t *testing.T) {
	w := newTestWindow(t, "top", pageHTML)
	doc := w.Document()

	boxes := []dom.OverlayBox{{Rect: dom.Rect{X: 1, Y: 2, Width: 3, Height: 4}, Outline: "#cc0000"}}
	if err := doc.SetOverlay("issues", boxes); err != nil {
		t.Fatalf("SetOverlay: %v", err)
	}
	if got := doc.Overlays("issues"); len(got) != 1 {
		t.Fatalf("Overlays: got %d boxes, want 1", len(got))
	}
	if owners := doc.OverlayOwners(); len(owners) != 1 || owners[0] != "issues" {
		t.Fatalf("OverlayOwners: got %v", owners)
	}

	if err := doc.RemoveOverlay("issues"); err != nil {
		t.Fatalf("RemoveOverlay: %v", err)
	}
	if got := doc.Overlays("issues"); got != nil {
		t.Fatalf("Overlays after remove: got %v, want nil", got)
	}
	// Removing an unknown owner is a no-op.
	if err := doc.RemoveOverlay("never-set"); err != nil {
		t.Fatalf("RemoveOverlay(never-set): %v", err)
	}
}
