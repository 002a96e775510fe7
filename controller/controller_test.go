package controller

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/a11yview/comms"
	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/domfake"
	"github.com/hazyhaar/a11yview/drawer"
	"github.com/hazyhaar/a11yview/results"
	"github.com/hazyhaar/a11yview/visibility"
)

// frameCtx bundles the pieces of one frame context.
type frameCtx struct {
	win  *domfake.Window
	ctrl *Controller
}

// newFrameCtx builds a window plus an initialized controller, optionally
// with a custom visibility ticker factory.
func newFrameCtx(t *testing.T, name, src string, visOpts visibility.Options) *frameCtx {
	t.Helper()
	w, err := domfake.NewWindow(name, src)
	if err != nil {
		t.Fatalf("NewWindow(%s): %v", name, err)
	}
	t.Cleanup(w.Close)

	ctrl := New(Options{
		Doc:        w.Document(),
		Comm:       comms.New(w, comms.Options{}),
		Visibility: visOpts,
	})
	if err := ctrl.Initialize(); err != nil {
		t.Fatalf("Initialize(%s): %v", name, err)
	}
	return &frameCtx{win: w, ctrl: ctrl}
}

const leafHTML = `<html><body>
	<div id="finding" data-bbox="0,0,80,20"></div>
	<div id="other" data-bbox="0,40,80,20"></div>
</body></html>`

func TestEnableWithoutResults_FanOutCompleteness(t *testing.T) {
	top := newFrameCtx(t, "top", `<html><body>
		<iframe id="f1"></iframe>
		<iframe id="f2"></iframe>
		<iframe id="f3"></iframe>
	</body></html>`, visibility.Options{})

	// Bare counting windows, no controllers: we are measuring sends.
	var delivered atomic.Int32
	for _, sel := range []string{"#f1", "#f2", "#f3"} {
		child, err := domfake.NewWindow(sel, leafHTML)
		if err != nil {
			t.Fatalf("NewWindow: %v", err)
		}
		t.Cleanup(child.Close)
		child.OnMessage(func(data []byte, source dom.Window) { delivered.Add(1) })
		if err := top.win.Mount(sel, child); err != nil {
			t.Fatalf("Mount(%s): %v", sel, err)
		}
	}

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          drawer.TypeIssues,
	})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	top.win.Settle()

	if n := delivered.Load(); n != 3 {
		t.Fatalf("forwarded messages: got %d, want 3 (one per iframe)", n)
	}
}

func TestEnableWithResults_RecursesThroughNestedFrames(t *testing.T) {
	top := newFrameCtx(t, "top", `<html><body>
		<div id="local-finding" data-bbox="0,0,50,10"></div>
		<iframe id="mid"></iframe>
	</body></html>`, visibility.Options{})
	mid := newFrameCtx(t, "mid", `<html><body>
		<div id="mid-finding" data-bbox="5,5,50,10"></div>
		<iframe id="leaf"></iframe>
	</body></html>`, visibility.Options{})
	leaf := newFrameCtx(t, "leaf", leafHTML, visibility.Options{})

	if err := top.win.Mount("#mid", mid.win); err != nil {
		t.Fatalf("Mount(mid): %v", err)
	}
	if err := mid.win.Mount("#leaf", leaf.win); err != nil {
		t.Fatalf("Mount(leaf): %v", err)
	}

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          drawer.TypeIssues,
		ElementResults: []*results.Instance{
			{Target: "#local-finding"},
			{Target: "#mid-finding", FramePath: []string{"#mid"}},
			{Target: "#finding", FramePath: []string{"#mid", "#leaf"}},
		},
	})
	if err != nil {
		t.Fatalf("ProcessRequest: %v", err)
	}
	top.win.Settle()

	for _, tc := range []struct {
		name string
		doc  *domfake.Document
	}{
		{"top", top.win.Document()},
		{"mid", mid.win.Document()},
		{"leaf", leaf.win.Document()},
	} {
		boxes := tc.doc.Overlays(drawer.TypeIssues)
		if len(boxes) != 1 {
			t.Fatalf("%s: got %d overlay boxes, want 1", tc.name, len(boxes))
		}
	}
}

func TestDisable_IdempotentWithoutPriorEnable(t *testing.T) {
	top := newFrameCtx(t, "top", leafHTML, visibility.Options{})

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		ConfigID:          drawer.TypeIssues,
	})
	if err != nil {
		t.Fatalf("disable with no prior enable: %v", err)
	}
	if owners := top.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("disable mutated DOM: owners %v", owners)
	}
}

func TestDisable_ErasesAndFansOut(t *testing.T) {
	top := newFrameCtx(t, "top", `<html><body>
		<div id="finding" data-bbox="0,0,10,10"></div>
		<iframe id="kid"></iframe>
	</body></html>`, visibility.Options{})
	kid := newFrameCtx(t, "kid", leafHTML, visibility.Options{})
	if err := top.win.Mount("#kid", kid.win); err != nil {
		t.Fatalf("Mount: %v", err)
	}

	enable := &Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          drawer.TypeIssues,
		ElementResults: []*results.Instance{
			{Target: "#finding"},
			{Target: "#finding", FramePath: []string{"#kid"}},
		},
	}
	if err := top.ctrl.ProcessRequest(enable); err != nil {
		t.Fatalf("enable: %v", err)
	}
	top.win.Settle()

	if len(kid.win.Document().Overlays(drawer.TypeIssues)) != 1 {
		t.Fatal("child frame never drew")
	}

	disable := &Message{VisualizationType: drawer.TypeIssues, ConfigID: drawer.TypeIssues}
	if err := top.ctrl.ProcessRequest(disable); err != nil {
		t.Fatalf("disable: %v", err)
	}
	top.win.Settle()

	if owners := top.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("top overlays remain: %v", owners)
	}
	if owners := kid.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("child overlays remain: %v", owners)
	}
}

func TestDispose_ErasesEveryDrawnLayout(t *testing.T) {
	top := newFrameCtx(t, "top", leafHTML, visibility.Options{})

	for _, configID := range []string{drawer.TypeIssues, drawer.TypeHeadings} {
		err := top.ctrl.ProcessRequest(&Message{
			VisualizationType: configID,
			IsEnabled:         true,
			ConfigID:          configID,
			ElementResults:    []*results.Instance{{Target: "#finding"}},
		})
		if err != nil {
			t.Fatalf("enable %s: %v", configID, err)
		}
	}
	if owners := top.win.Document().OverlayOwners(); len(owners) != 2 {
		t.Fatalf("expected 2 drawn layouts, got %v", owners)
	}

	top.ctrl.Dispose()

	if owners := top.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("overlays remain after Dispose: %v", owners)
	}
	for configID, enabled := range top.ctrl.Status() {
		if enabled {
			t.Fatalf("configId %s still enabled after Dispose", configID)
		}
	}
}

func TestProcessRequest_UnknownConfigID(t *testing.T) {
	top := newFrameCtx(t, "top", leafHTML, visibility.Options{})

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          "nonexistent",
		ElementResults:    []*results.Instance{{Target: "#finding"}},
	})
	var unknownErr *ErrUnknownConfigID
	if !errors.As(err, &unknownErr) {
		t.Fatalf("error: got %v, want ErrUnknownConfigID", err)
	}
}

func TestInitialize_DuplicateConfigID(t *testing.T) {
	w, err := domfake.NewWindow("top", leafHTML)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	t.Cleanup(w.Close)

	ctrl := New(Options{
		Doc:  w.Document(),
		Comm: comms.New(w, comms.Options{}),
		Configs: []VisualizationConfig{
			{
				Type:       drawer.TypeIssues,
				Identifier: func(string) string { return "same" },
				NewDrawer:  newIssuesDrawer,
			},
			{
				Type:       drawer.TypeHeadings,
				Identifier: func(string) string { return "same" },
				NewDrawer:  newIssuesDrawer,
			},
		},
	})
	initErr := ctrl.Initialize()
	var dupErr *ErrDuplicateConfigID
	if !errors.As(initErr, &dupErr) {
		t.Fatalf("Initialize: got %v, want ErrDuplicateConfigID", initErr)
	}
}

func TestFeatureFlag_GatesVisibilityTracking(t *testing.T) {
	var tickers atomic.Int32
	visOpts := visibility.Options{
		NewTicker: func(d time.Duration) visibility.Ticker {
			tickers.Add(1)
			return newStubTicker()
		},
	}
	top := newFrameCtx(t, "top", leafHTML, visOpts)

	enable := func(flags map[string]bool) {
		t.Helper()
		err := top.ctrl.ProcessRequest(&Message{
			VisualizationType: drawer.TypeIssues,
			IsEnabled:         true,
			ConfigID:          drawer.TypeIssues,
			ElementResults:    []*results.Instance{{Target: "#finding"}},
			FeatureFlags:      flags,
		})
		if err != nil {
			t.Fatalf("enable: %v", err)
		}
	}

	enable(nil)
	if n := tickers.Load(); n != 0 {
		t.Fatalf("tracking started without feature flag: %d tickers", n)
	}

	enable(map[string]bool{FlagShowInstanceVisibility: true})
	if n := tickers.Load(); n != 1 {
		t.Fatalf("tracking with flag: got %d tickers, want 1", n)
	}
}

func TestVisibilityTransition_RedrawsLayout(t *testing.T) {
	var rig tickerRig
	top := newFrameCtx(t, "top", leafHTML, visibility.Options{NewTicker: rig.factory})

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          drawer.TypeIssues,
		ElementResults:    []*results.Instance{{Target: "#finding"}},
		FeatureFlags:      map[string]bool{FlagShowInstanceVisibility: true},
	})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if len(top.win.Document().Overlays(drawer.TypeIssues)) != 1 {
		t.Fatal("initial draw missing")
	}

	// First tick confirms visibility (unset -> true), still one box.
	rig.at(0).tick()
	waitFor(t, func() bool {
		return len(top.win.Document().Overlays(drawer.TypeIssues)) == 1
	})

	// Hide the element; the next tick must redraw without it.
	top.win.Document().SetAttr("#finding", "data-hidden", "true")
	rig.at(0).tick()
	waitFor(t, func() bool {
		return len(top.win.Document().Overlays(drawer.TypeIssues)) == 0
	})
}

func TestEnable_StartsTrackingAfterInitialDraw(t *testing.T) {
	var doc *domfake.Document
	drawnAtStart := make(chan int, 1)
	visOpts := visibility.Options{
		NewTicker: func(d time.Duration) visibility.Ticker {
			drawnAtStart <- len(doc.Overlays(drawer.TypeIssues))
			return newStubTicker()
		},
	}
	top := newFrameCtx(t, "top", leafHTML, visOpts)
	doc = top.win.Document()

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          drawer.TypeIssues,
		ElementResults:    []*results.Instance{{Target: "#finding"}},
		FeatureFlags:      map[string]bool{FlagShowInstanceVisibility: true},
	})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}

	select {
	case n := <-drawnAtStart:
		if n != 1 {
			t.Fatalf("boxes when tracking started: got %d, want 1 (draw must come first)", n)
		}
	default:
		t.Fatal("tracking never started")
	}
}

func TestDisable_StaleTicksDoNotRedraw(t *testing.T) {
	var rig tickerRig
	top := newFrameCtx(t, "top", leafHTML, visibility.Options{NewTicker: rig.factory})

	err := top.ctrl.ProcessRequest(&Message{
		VisualizationType: drawer.TypeIssues,
		IsEnabled:         true,
		ConfigID:          drawer.TypeIssues,
		ElementResults:    []*results.Instance{{Target: "#finding"}},
		FeatureFlags:      map[string]bool{FlagShowInstanceVisibility: true},
	})
	if err != nil {
		t.Fatalf("enable: %v", err)
	}

	disable := &Message{VisualizationType: drawer.TypeIssues, ConfigID: drawer.TypeIssues}
	if err := top.ctrl.ProcessRequest(disable); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if owners := top.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("overlays remain after disable: %v", owners)
	}

	// Ticks delivered to the cleared interval's ticker must not reach a
	// redraw: the tick goroutine was joined by the disable.
	for i := 0; i < 3; i++ {
		rig.at(0).tryTick()
	}
	time.Sleep(20 * time.Millisecond)

	if owners := top.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("stale tick resurrected overlays: %v", owners)
	}
}

func TestEnable_ConcurrentWithVisibilityTicks(t *testing.T) {
	var rig tickerRig
	top := newFrameCtx(t, "top", leafHTML, visibility.Options{NewTicker: rig.factory})

	enable := func() *Message {
		return &Message{
			VisualizationType: drawer.TypeIssues,
			IsEnabled:         true,
			ConfigID:          drawer.TypeIssues,
			ElementResults: []*results.Instance{
				{Target: "#finding"},
				{Target: "#other"},
			},
			FeatureFlags: map[string]bool{FlagShowInstanceVisibility: true},
		}
	}
	if err := top.ctrl.ProcessRequest(enable()); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// Fire ticks as fast as possible while the same configId is
	// repeatedly re-enabled: flag updates, redraws, and draws must
	// serialize instead of racing.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			for i := 0; i < rig.count(); i++ {
				rig.at(i).tryTick()
			}
		}
	}()

	for i := 0; i < 25; i++ {
		if err := top.ctrl.ProcessRequest(enable()); err != nil {
			t.Fatalf("re-enable %d: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	waitFor(t, func() bool {
		return len(top.win.Document().Overlays(drawer.TypeIssues)) == 2
	})

	disable := &Message{VisualizationType: drawer.TypeIssues, ConfigID: drawer.TypeIssues}
	if err := top.ctrl.ProcessRequest(disable); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if owners := top.win.Document().OverlayOwners(); len(owners) != 0 {
		t.Fatalf("overlays remain after churn: %v", owners)
	}
}

// --- helpers ---

func newIssuesDrawer(doc dom.Document, configID string, logger *slog.Logger) (drawer.Drawer, error) {
	return drawer.NewForType(drawer.TypeIssues, doc, configID, logger)
}

type stubTicker struct{ ch chan time.Time }

func newStubTicker() *stubTicker { return &stubTicker{ch: make(chan time.Time, 8)} }

func (s *stubTicker) C() <-chan time.Time { return s.ch }
func (s *stubTicker) Stop()               {}

func (s *stubTicker) tick() { s.ch <- time.Now() }

// tryTick fires a tick unless the buffer is full or nothing consumes it
// anymore, so a ticker whose interval was cleared never blocks the test.
func (s *stubTicker) tryTick() {
	select {
	case s.ch <- time.Now():
	default:
	}
}

type tickerRig struct {
	mu      sync.Mutex
	tickers []*stubTicker
}

func (r *tickerRig) factory(d time.Duration) visibility.Ticker {
	s := newStubTicker()
	r.mu.Lock()
	r.tickers = append(r.tickers, s)
	r.mu.Unlock()
	return s
}

func (r *tickerRig) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

func (r *tickerRig) at(i int) *stubTicker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickers[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
