package drawer

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/a11yview/dom"
	"github.com/hazyhaar/a11yview/results"
)

// Formatter produces the cosmetic part of an overlay box for one
// instance: color, badge label. Geometry and snippet are filled in by
// the drawer.
type Formatter interface {
	Format(inst *results.Instance) dom.OverlayBox
}

// The closed set of visualization types. One rendering variant per type,
// resolved once when the drawer registry is built.
const (
	TypeIssues    = "issues"
	TypeHeadings  = "headings"
	TypeLandmarks = "landmarks"
	TypeTabStops  = "tabStops"
	TypeColor     = "color"
)

type issuesFormatter struct{}

func (issuesFormatter) Format(inst *results.Instance) dom.OverlayBox {
	return dom.OverlayBox{Outline: "#cc0000", Label: "!"}
}

type headingsFormatter struct{}

func (headingsFormatter) Format(inst *results.Instance) dom.OverlayBox {
	label := ""
	if lvl, ok := inst.Props["headingLevel"]; ok {
		label = fmt.Sprintf("H%v", lvl)
	}
	return dom.OverlayBox{Outline: "#6600cc", Label: label}
}

type landmarksFormatter struct{}

func (landmarksFormatter) Format(inst *results.Instance) dom.OverlayBox {
	label, _ := inst.Props["role"].(string)
	return dom.OverlayBox{Outline: "#0066cc", Label: label}
}

type tabStopsFormatter struct{}

func (tabStopsFormatter) Format(inst *results.Instance) dom.OverlayBox {
	label := ""
	if order, ok := inst.Props["tabOrder"]; ok {
		label = fmt.Sprint(order)
	}
	return dom.OverlayBox{Outline: "#333333", Label: label}
}

type colorFormatter struct{}

func (colorFormatter) Format(inst *results.Instance) dom.OverlayBox {
	return dom.OverlayBox{Outline: "#b36b00"}
}

// NewForType builds the drawer variant for a visualization type. The set
// is closed: an unknown type is a configuration defect, not a runtime
// condition, and surfaces as an error at registry-construction time.
func NewForType(visualizationType string, doc dom.Document, owner string, logger *slog.Logger) (Drawer, error) {
	switch visualizationType {
	case TypeIssues:
		return NewBox(doc, owner, issuesFormatter{}, logger), nil
	case TypeHeadings:
		return NewBox(doc, owner, headingsFormatter{}, logger), nil
	case TypeLandmarks:
		return NewBox(doc, owner, landmarksFormatter{}, logger), nil
	case TypeTabStops:
		return NewDot(doc, owner, tabStopsFormatter{}, logger), nil
	case TypeColor:
		return NewBox(doc, owner, colorFormatter{}, logger), nil
	default:
		return nil, fmt.Errorf("drawer: unknown visualization type %q", visualizationType)
	}
}

// Types lists the supported visualization types.
func Types() []string {
	return []string{TypeIssues, TypeHeadings, TypeLandmarks, TypeTabStops, TypeColor}
}
