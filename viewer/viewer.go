// Package viewer orchestrates visualization across a page's frame tree:
// it attaches one drawing controller per frame context and exposes the
// enable/disable/status surface that drives them through the top frame.
package viewer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/a11yview/comms"
	"github.com/hazyhaar/a11yview/controller"
	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/idgen"
	"github.com/hazyhaar/a11yview/results"
	"github.com/hazyhaar/a11yview/visibility"
)

// Options configures a Viewer.
type Options struct {
	// Configs lists the visualization types to register in every frame's
	// controller. Nil = controller.DefaultConfigs().
	Configs []controller.VisualizationConfig

	// FeatureFlags is the flag snapshot stamped onto every outgoing
	// enable message.
	FeatureFlags map[string]bool

	// Visibility tunes the per-frame instance visibility checkers.
	Visibility visibility.Options

	// Comms tunes the per-frame communicators.
	Comms comms.Options

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.FeatureFlags == nil {
		o.FeatureFlags = make(map[string]bool)
	}
}

// frameContext bundles the per-frame actors. Controllers never share
// state; the viewer only keeps the list to dispose them together.
type frameContext struct {
	id   string
	ctrl *controller.Controller
}

// Viewer drives visualizations on one page. Attach the top frame first,
// then any child frame contexts the binding exposes; commands always
// enter through the top frame's controller and fan out over messages.
type Viewer struct {
	opts Options
	ids  idgen.Generator

	mu     sync.Mutex
	frames []*frameContext
	top    *controller.Controller
}

// New creates a Viewer. Attach at least one frame before Enable.
func New(opts Options) *Viewer {
	opts.defaults()
	return &Viewer{
		opts: opts,
		ids:  idgen.Prefixed("frame-", idgen.NanoID(8)),
	}
}

// Attach creates and initializes a controller for one frame context.
// The first attached frame becomes the top frame.
func (v *Viewer) Attach(doc dom.Document, win dom.Window) error {
	comm := comms.New(win, v.opts.Comms)
	ctrl := controller.New(controller.Options{
		Doc:        doc,
		Comm:       comm,
		Configs:    v.opts.Configs,
		Visibility: v.opts.Visibility,
		Logger:     v.opts.Logger,
	})
	if err := ctrl.Initialize(); err != nil {
		return fmt.Errorf("viewer: attach frame: %w", err)
	}

	id := v.ids()
	v.mu.Lock()
	v.frames = append(v.frames, &frameContext{id: id, ctrl: ctrl})
	total := len(v.frames)
	if v.top == nil {
		v.top = ctrl
	}
	v.mu.Unlock()

	v.opts.Logger.Debug("viewer: frame attached", "frame", id, "frames", total)
	return nil
}

// FrameIDs lists the attached frame contexts in attach order.
func (v *Viewer) FrameIDs() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	ids := make([]string, len(v.frames))
	for i, fc := range v.frames {
		ids[i] = fc.id
	}
	return ids
}

// Enable turns a visualization on, seeding it with scan results. A nil
// instances slice enables without data so drawers still cover frames
// that appeared after the scan.
func (v *Viewer) Enable(configID, visualizationType string, instances []*results.Instance) error {
	top, err := v.topController()
	if err != nil {
		return err
	}
	return top.ProcessRequest(&controller.Message{
		VisualizationType: visualizationType,
		IsEnabled:         true,
		ConfigID:          configID,
		ElementResults:    instances,
		FeatureFlags:      v.opts.FeatureFlags,
	})
}

// Disable turns a visualization off across the whole frame tree.
func (v *Viewer) Disable(configID, visualizationType string) error {
	top, err := v.topController()
	if err != nil {
		return err
	}
	return top.ProcessRequest(&controller.Message{
		VisualizationType: visualizationType,
		IsEnabled:         false,
		ConfigID:          configID,
	})
}

// Status reports the top frame's enabled flag per configId. Child
// frames follow the top frame by protocol, so the top view is the
// page-level truth.
func (v *Viewer) Status() map[string]bool {
	v.mu.Lock()
	top := v.top
	v.mu.Unlock()
	if top == nil {
		return map[string]bool{}
	}
	return top.Status()
}

// Dispose erases every attached frame's layouts.
func (v *Viewer) Dispose() {
	v.mu.Lock()
	frames := v.frames
	v.mu.Unlock()
	for _, fc := range frames {
		fc.ctrl.Dispose()
	}
}

func (v *Viewer) topController() (*controller.Controller, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.top == nil {
		return nil, fmt.Errorf("viewer: no frame attached")
	}
	return v.top, nil
}
