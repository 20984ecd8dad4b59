package screen

import (
	"image"

	log "github.com/sirupsen/logrus"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// DefaultThreshold is the maximum mean absolute channel difference (on the
// 0..255 scale) for an anchor to count as matching when none is configured.
const DefaultThreshold = 12.0

// Anchor is one reference patch pinned to a fixed frame region.
type Anchor struct {
	Rect      image.Rectangle // Region of the frame to compare
	Patch     image.Image     // Reference pixels, same size as Rect
	Threshold float64         // Max mean abs channel diff, 0..255
}

// RegionClassifier matches frames against registered per-state anchor sets.
// A state matches when every one of its anchors is within threshold; the
// first matching state in registration order wins, so register the most
// specific states first.
type RegionClassifier struct {
	order   []core.UIState
	anchors map[core.UIState][]Anchor
}

// NewRegionClassifier creates an empty classifier.
func NewRegionClassifier() *RegionClassifier {
	return &RegionClassifier{anchors: make(map[core.UIState][]Anchor)}
}

// Register adds anchors for a state. Registering the same state twice
// appends to its anchor set without changing its match priority.
func (c *RegionClassifier) Register(state core.UIState, anchors ...Anchor) {
	if _, seen := c.anchors[state]; !seen {
		c.order = append(c.order, state)
	}
	for i := range anchors {
		if anchors[i].Threshold <= 0 {
			anchors[i].Threshold = DefaultThreshold
		}
	}
	c.anchors[state] = append(c.anchors[state], anchors...)
}

// States returns the registered states in match order.
func (c *RegionClassifier) States() []core.UIState {
	out := make([]core.UIState, len(c.order))
	copy(out, c.order)
	return out
}

// Classify returns the first registered state whose anchors all match, or
// core.StateUnknown. Deterministic for a given frame and registration.
func (c *RegionClassifier) Classify(frame *core.Frame) core.UIState {
	for _, state := range c.order {
		if c.matches(frame, c.anchors[state]) {
			return state
		}
	}
	return core.StateUnknown
}

func (c *RegionClassifier) matches(frame *core.Frame, anchors []Anchor) bool {
	if len(anchors) == 0 {
		return false
	}
	for _, a := range anchors {
		if !a.Rect.In(frame.Bounds()) {
			return false
		}
		diff := meanAbsDiff(frame.Image, a.Rect, a.Patch)
		if diff > a.Threshold {
			return false
		}
		log.WithFields(log.Fields{"rect": a.Rect, "diff": diff}).Trace("anchor matched")
	}
	return true
}

// meanAbsDiff computes the mean absolute per-channel difference between the
// frame region and the patch, on a 0..255 scale. The patch's top-left maps
// onto rect's top-left.
func meanAbsDiff(img image.Image, rect image.Rectangle, patch image.Image) float64 {
	pb := patch.Bounds()
	var sum, n int64
	for dy := 0; dy < rect.Dy() && dy < pb.Dy(); dy++ {
		for dx := 0; dx < rect.Dx() && dx < pb.Dx(); dx++ {
			fr, fg, fb, _ := img.At(rect.Min.X+dx, rect.Min.Y+dy).RGBA()
			pr, pg, pbl, _ := patch.At(pb.Min.X+dx, pb.Min.Y+dy).RGBA()
			sum += absDiff(fr, pr) + absDiff(fg, pg) + absDiff(fb, pbl)
			n += 3
		}
	}
	if n == 0 {
		return 255
	}
	// RGBA() returns 16-bit channels; scale back to 0..255.
	return float64(sum) / float64(n) / 257.0
}

func absDiff(a, b uint32) int64 {
	if a > b {
		return int64(a - b)
	}
	return int64(b - a)
}
