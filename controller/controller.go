// Package controller implements the drawing controller: the per-frame
// state machine that fans a single enable/disable visualization command
// out across the current frame and all child iframes.
//
// One controller runs in every frame context. A command entering the top
// frame is partitioned by owning frame; the local share drives a drawer
// directly, every other share is forwarded over the frame communicator
// to the iframe whose own controller recurses into its children. The
// recursion has no depth counter — it terminates with the document's
// actual iframe nesting.
package controller

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/a11yview/comms"
	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/drawer"
	"github.com/hazyhaar/a11yview/results"
	"github.com/hazyhaar/a11yview/visibility"
)

// DrawCommand is the cross-frame trigger command.
const DrawCommand = "insights.draw"

// FlagShowInstanceVisibility gates per-instance visibility tracking. The
// feature-flag snapshot travels with each message and is read at
// processing time, never subscribed to.
const FlagShowInstanceVisibility = "showInstanceVisibility"

// Message is the wire payload exchanged between frames. ElementResults
// is present only on enable and only for the frame that owns the
// partition after splitting.
type Message struct {
	VisualizationType string              `json:"visualizationType"`
	IsEnabled         bool                `json:"isEnabled"`
	ConfigID          string              `json:"configId"`
	ElementResults    []*results.Instance `json:"elementResults,omitempty"`
	FeatureFlags      map[string]bool     `json:"featureFlagStoreData,omitempty"`
}

// VisualizationConfig describes one visualization type the controller
// must own drawers for. Steps lists the assessment test steps, one
// configId each; an empty Steps means a single ad-hoc visualization.
type VisualizationConfig struct {
	Type  string
	Steps []string

	// Identifier derives the configId for a step ("" for ad-hoc).
	Identifier func(step string) string

	// NewDrawer builds the drawer owning that configId.
	NewDrawer func(doc dom.Document, configID string, logger *slog.Logger) (drawer.Drawer, error)
}

// DefaultConfigs enumerates the built-in visualization types with the
// standard identifier scheme: the type itself, or "type:step".
func DefaultConfigs() []VisualizationConfig {
	var configs []VisualizationConfig
	for _, typ := range drawer.Types() {
		typ := typ
		configs = append(configs, VisualizationConfig{
			Type: typ,
			Identifier: func(step string) string {
				if step == "" {
					return typ
				}
				return typ + ":" + step
			},
			NewDrawer: func(doc dom.Document, configID string, logger *slog.Logger) (drawer.Drawer, error) {
				return drawer.NewForType(typ, doc, configID, logger)
			},
		})
	}
	return configs
}

// Options configures a Controller.
type Options struct {
	Doc     dom.Document
	Comm    *comms.Communicator
	Configs []VisualizationConfig

	// Visibility tunes the instance visibility checker the controller
	// owns. Zero value gives production defaults.
	Visibility visibility.Options

	Logger *slog.Logger
}

// Controller drives drawers for its own frame and forwards scoped
// commands to child frames. Each frame context owns exactly one
// instance; there is no state shared across frames.
type Controller struct {
	doc     dom.Document
	comm    *comms.Communicator
	configs []VisualizationConfig
	vis     *visibility.Checker
	logger  *slog.Logger

	// drawMu serializes everything that reads or mutates instance
	// visibility flags and drawer state: local draws, erases, and the
	// checker's ticks (it is handed to the checker as its guard). Lock
	// order is drawMu before mu.
	drawMu sync.Mutex

	mu      sync.Mutex
	drawers map[string]drawer.Drawer
	enabled map[string]bool
}

// New creates a Controller. Call Initialize before processing requests.
func New(opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Configs == nil {
		opts.Configs = DefaultConfigs()
	}
	c := &Controller{
		doc:     opts.Doc,
		comm:    opts.Comm,
		configs: opts.Configs,
		logger:  opts.Logger,
		drawers: make(map[string]drawer.Drawer),
		enabled: make(map[string]bool),
	}
	opts.Visibility.Guard = &c.drawMu
	c.vis = visibility.New(opts.Doc, c.onVisibilityChange, opts.Visibility)
	return c
}

// Initialize eagerly builds the full drawer registry — every
// visualization type, every test step — and subscribes to the draw
// command. Registry defects (duplicate or unresolvable configIds)
// surface here, not at draw time.
func (c *Controller) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, cfg := range c.configs {
		steps := cfg.Steps
		if len(steps) == 0 {
			steps = []string{""}
		}
		for _, step := range steps {
			configID := cfg.Identifier(step)
			if _, exists := c.drawers[configID]; exists {
				return &ErrDuplicateConfigID{ConfigID: configID}
			}
			d, err := cfg.NewDrawer(c.doc, configID, c.logger)
			if err != nil {
				return fmt.Errorf("controller: build drawer %s: %w", configID, err)
			}
			c.drawers[configID] = d
		}
	}

	c.comm.Subscribe(DrawCommand, c.onDrawMessage)
	c.logger.Debug("controller: initialized", "drawers", len(c.drawers))
	return nil
}

// onDrawMessage handles the cross-frame trigger. The responder is always
// invoked with nil: the protocol expects an acknowledgement even though
// no data flows back.
func (c *Controller) onDrawMessage(payload json.RawMessage, errContent *comms.ErrorContent, respond comms.Responder) {
	defer respond(nil)

	if errContent != nil {
		c.logger.Error("controller: error content on draw command",
			"message", errContent.Message)
		return
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.logger.Error("controller: unmarshal draw message", "error", err)
		return
	}
	if err := c.ProcessRequest(&msg); err != nil {
		c.logger.Error("controller: process draw message",
			"configId", msg.ConfigID, "error", err)
	}
}

// ProcessRequest is the single entry point for both a direct top-level
// call and an incoming cross-frame message.
func (c *Controller) ProcessRequest(msg *Message) error {
	switch {
	case msg.IsEnabled && len(msg.ElementResults) > 0:
		return c.enableWithResults(msg)
	case msg.IsEnabled:
		return c.enableWithoutResults(msg)
	default:
		return c.disable(msg)
	}
}

// enableWithResults partitions results by owning frame, draws the local
// share, and forwards every other share as a message scoped to its
// iframe.
func (c *Controller) enableWithResults(msg *Message) error {
	parts, dropped := results.SplitByFrame(c.doc, msg.ElementResults)
	if dropped > 0 {
		c.logger.Debug("controller: results for vanished frames dropped",
			"configId", msg.ConfigID, "dropped", dropped)
	}

	for _, part := range parts {
		if part.Frame == nil {
			if err := c.enableLocal(msg, part.Instances); err != nil {
				return err
			}
			continue
		}
		fwd := *msg
		fwd.ElementResults = part.Instances
		c.comm.SendMessage(comms.MessageRequest{
			Command: DrawCommand,
			Frame:   part.Frame,
			Message: &fwd,
		})
	}
	return nil
}

// enableWithoutResults draws the local frame with no data and forwards
// an enable to every iframe currently in the document — including ones
// that loaded after the initial scan and never had results.
func (c *Controller) enableWithoutResults(msg *Message) error {
	if err := c.enableLocal(msg, nil); err != nil {
		return err
	}

	fwd := *msg
	fwd.ElementResults = nil
	for _, frame := range c.doc.Frames() {
		c.comm.SendMessage(comms.MessageRequest{
			Command: DrawCommand,
			Frame:   frame,
			Message: &fwd,
		})
	}
	return nil
}

func (c *Controller) enableLocal(msg *Message, instances []*results.Instance) error {
	d, err := c.getDrawer(msg.ConfigID)
	if err != nil {
		return err
	}

	c.drawMu.Lock()
	d.Initialize(drawer.Config{Instances: instances, FeatureFlags: msg.FeatureFlags})
	err = d.DrawLayout()
	c.drawMu.Unlock()
	if err != nil {
		return err
	}

	// Tracking starts only after the initial draw, so a tick can never
	// overlap the layout it belongs to.
	if msg.FeatureFlags[FlagShowInstanceVisibility] {
		c.vis.CreateInterval(msg.ConfigID, msg.VisualizationType, instances)
	}

	c.mu.Lock()
	c.enabled[msg.ConfigID] = true
	c.mu.Unlock()
	return nil
}

// disable erases the local drawer, clears its visibility interval, and
// forwards a disable to every iframe currently present — regardless of
// which frames actually drew anything. No membership history is kept;
// idempotency makes the blanket fan-out safe.
func (c *Controller) disable(msg *Message) error {
	d, err := c.getDrawer(msg.ConfigID)
	if err != nil {
		return err
	}

	// Clear first: it joins the tick goroutine, so no stale tick can
	// redraw after the erase and resurrect the layout.
	c.vis.Clear(msg.ConfigID)
	c.drawMu.Lock()
	d.EraseLayout()
	c.drawMu.Unlock()

	fwd := *msg
	fwd.ElementResults = nil
	for _, frame := range c.doc.Frames() {
		c.comm.SendMessage(comms.MessageRequest{
			Command: DrawCommand,
			Frame:   frame,
			Message: &fwd,
		})
	}

	c.mu.Lock()
	c.enabled[msg.ConfigID] = false
	c.mu.Unlock()
	return nil
}

// onVisibilityChange redraws a layout after the checker flipped at least
// one instance's visibility flag. The drawer already holds the same
// instance slice, so a redraw picks up the new flags. Invoked with
// drawMu held (it is the checker's guard); must not lock it again.
func (c *Controller) onVisibilityChange(configID, visualizationType string, _ []*results.Instance) {
	d, err := c.getDrawer(configID)
	if err != nil {
		c.logger.Error("controller: visibility redraw", "configId", configID, "error", err)
		return
	}
	if err := d.DrawLayout(); err != nil {
		c.logger.Error("controller: visibility redraw", "configId", configID, "error", err)
	}
}

// Dispose erases every registered drawer's layout. It deliberately does
// not clear visibility intervals or unsubscribe from the communicator:
// a disable for every enabled configId is expected to have run first,
// and disable owns interval cleanup.
func (c *Controller) Dispose() {
	c.drawMu.Lock()
	defer c.drawMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for configID, d := range c.drawers {
		d.EraseLayout()
		c.enabled[configID] = false
	}
}

// Status reports the enabled flag per configId. Registry entries live
// for the lifetime of the controller, so this also enumerates every
// known configId.
func (c *Controller) Status() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	status := make(map[string]bool, len(c.drawers))
	for configID := range c.drawers {
		status[configID] = c.enabled[configID]
	}
	return status
}

func (c *Controller) getDrawer(configID string) (drawer.Drawer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.drawers[configID]
	if !ok {
		return nil, &ErrUnknownConfigID{ConfigID: configID}
	}
	return d, nil
}
