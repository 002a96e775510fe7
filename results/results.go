// Package results models scan findings bound to DOM targets and
// partitions them by the frame that owns each target. The scanner that
// produces findings is an external collaborator; this package only
// consumes its output.
package results

import "github.com/hazyhaar/a11yview/dom"

// Instance is one scan finding bound to a DOM target, carrying what a
// drawer needs to render an overlay for it.
//
// Target addresses the element within its owning frame; FramePath lists
// the iframe selectors leading to that frame, outermost first. An empty
// FramePath means the element lives in the current document.
//
// IsVisible and IsVisualizationEnabled are tri-state: nil means unset,
// and unset is treated as "show".
type Instance struct {
	Target    string   `json:"target"`
	FramePath []string `json:"framePath,omitempty"`

	IsVisible              *bool `json:"isVisible,omitempty"`
	IsVisualizationEnabled *bool `json:"isVisualizationEnabled,omitempty"`

	RuleID  string         `json:"ruleId,omitempty"`
	Snippet string         `json:"snippet,omitempty"`
	Props   map[string]any `json:"props,omitempty"`
}

// ShouldDraw reports whether a drawer may render this instance: only an
// explicit false on either flag suppresses it.
func (i *Instance) ShouldDraw() bool {
	if i.IsVisible != nil && !*i.IsVisible {
		return false
	}
	if i.IsVisualizationEnabled != nil && !*i.IsVisualizationEnabled {
		return false
	}
	return true
}

// FrameResult is one partition of a split: Frame == nil means the
// instances belong to the current document, otherwise to that iframe.
type FrameResult struct {
	Frame     dom.FrameElement
	Instances []*Instance
}

// SplitByFrame partitions instances by the frame owning each target. The
// split is total and disjoint over the instances that still resolve:
// every surviving instance lands in exactly one partition. Instances
// whose iframe no longer exists in the document are dropped — there is
// nothing left to highlight — and reported in the second return value.
//
// Instances grouped under an iframe are re-scoped for that child: their
// FramePath loses its first element, so the receiving frame can split
// again with the same rules.
func SplitByFrame(doc dom.Document, instances []*Instance) (parts []FrameResult, dropped int) {
	current := FrameResult{}
	byFrame := make(map[string]*FrameResult)
	var order []string

	for _, inst := range instances {
		if len(inst.FramePath) == 0 {
			current.Instances = append(current.Instances, inst)
			continue
		}

		sel := inst.FramePath[0]
		part, ok := byFrame[sel]
		if !ok {
			frame, found := doc.QueryFrame(sel)
			if !found {
				dropped++
				continue
			}
			part = &FrameResult{Frame: frame}
			byFrame[sel] = part
			order = append(order, sel)
		}

		scoped := *inst
		scoped.FramePath = inst.FramePath[1:]
		part.Instances = append(part.Instances, &scoped)
	}

	if len(current.Instances) > 0 {
		parts = append(parts, current)
	}
	for _, sel := range order {
		parts = append(parts, *byFrame[sel])
	}
	return parts, dropped
}
