// Package drawer owns the DOM overlay representation for visualization
// results. One drawer owns exactly one overlay owner key (the configId):
// it is idle except between DrawLayout and EraseLayout, and no two
// drawers ever claim the same key.
package drawer

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/results"
)

// Config is the initialization payload: the instances to render and the
// feature-flag snapshot read at message-processing time.
type Config struct {
	Instances    []*results.Instance
	FeatureFlags map[string]bool
}

// Drawer renders overlays for one configId.
//
// EraseLayout is idempotent and safe on a drawer that was never
// initialized or already erased. DrawLayout renders only instances whose
// ShouldDraw is true: an explicit false on either flag suppresses the
// instance, unset means show.
type Drawer interface {
	Initialize(cfg Config)
	DrawLayout() error
	EraseLayout()
}

// boxDrawer positions one overlay box over each drawable instance,
// styled by a per-type formatter.
type boxDrawer struct {
	doc       dom.Document
	owner     string
	formatter Formatter
	logger    *slog.Logger

	instances []*results.Instance
}

// NewBox creates the standard highlight-box drawer. owner is the
// configId the drawer renders for.
func NewBox(doc dom.Document, owner string, formatter Formatter, logger *slog.Logger) Drawer {
	if logger == nil {
		logger = slog.Default()
	}
	return &boxDrawer{doc: doc, owner: owner, formatter: formatter, logger: logger}
}

func (d *boxDrawer) Initialize(cfg Config) {
	d.instances = cfg.Instances
}

func (d *boxDrawer) DrawLayout() error {
	boxes := make([]dom.OverlayBox, 0, len(d.instances))
	skipped := 0

	for _, inst := range d.instances {
		if !inst.ShouldDraw() {
			continue
		}
		el, ok := d.doc.QuerySelector(inst.Target)
		if !ok {
			skipped++
			continue
		}
		rect, ok := el.BoundingBox()
		if !ok {
			skipped++
			continue
		}
		box := d.formatter.Format(inst)
		box.Rect = rect
		box.Snippet = results.SanitizeSnippet(inst.Snippet)
		boxes = append(boxes, box)
	}

	if err := d.doc.SetOverlay(d.owner, boxes); err != nil {
		return fmt.Errorf("drawer: set overlay %s: %w", d.owner, err)
	}

	if skipped > 0 {
		d.logger.Debug("drawer: targets no longer resolvable",
			"owner", d.owner, "skipped", skipped)
	}
	return nil
}

func (d *boxDrawer) EraseLayout() {
	if err := d.doc.RemoveOverlay(d.owner); err != nil {
		d.logger.Warn("drawer: remove overlay", "owner", d.owner, "error", err)
	}
}

// dotDrawer marks each drawable instance with a small centered dot
// instead of a full box; used for tab-stop order visualization where a
// box would obscure the element.
type dotDrawer struct {
	boxDrawer
}

// NewDot creates the center-dot drawer variant.
func NewDot(doc dom.Document, owner string, formatter Formatter, logger *slog.Logger) Drawer {
	if logger == nil {
		logger = slog.Default()
	}
	return &dotDrawer{boxDrawer{doc: doc, owner: owner, formatter: formatter, logger: logger}}
}

const dotSize = 12

func (d *dotDrawer) DrawLayout() error {
	boxes := make([]dom.OverlayBox, 0, len(d.instances))

	for _, inst := range d.instances {
		if !inst.ShouldDraw() {
			continue
		}
		el, ok := d.doc.QuerySelector(inst.Target)
		if !ok {
			continue
		}
		rect, ok := el.BoundingBox()
		if !ok {
			continue
		}
		box := d.formatter.Format(inst)
		box.Rect = dom.Rect{
			X:      rect.X + rect.Width/2 - dotSize/2,
			Y:      rect.Y + rect.Height/2 - dotSize/2,
			Width:  dotSize,
			Height: dotSize,
		}
		boxes = append(boxes, box)
	}

	if err := d.doc.SetOverlay(d.owner, boxes); err != nil {
		return fmt.Errorf("drawer: set overlay %s: %w", d.owner, err)
	}
	return nil
}
