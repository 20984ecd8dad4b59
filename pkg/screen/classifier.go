// Package screen classifies captured emulator frames into named UI states.
//
// Classification is anchor-region matching: fixed sub-regions of the frame
// compared against stored reference patches within a similarity threshold.
// Full-frame pixel equality would be wrong here since emulator rendering
// introduces animation and minor layout jitter.
package screen

import (
	"github.com/emulab-dev/emuflow/pkg/core"
)

// Classifier determines which named UI state a frame shows. Implementations
// must be deterministic for a given frame and never fail: when nothing
// matches they return core.StateUnknown, which every flow handles as a
// first-class state.
type Classifier interface {
	Classify(frame *core.Frame) core.UIState
}

// Scripted replays a fixed sequence of states, one per Classify call, and
// repeats the final entry once exhausted. It substitutes for real
// classification in engine tests, the way a mock driver substitutes for a
// real device.
type Scripted struct {
	states []core.UIState
	calls  int
}

// NewScripted creates a scripted classifier.
func NewScripted(states ...core.UIState) *Scripted {
	return &Scripted{states: states}
}

// Classify returns the next scripted state.
func (s *Scripted) Classify(_ *core.Frame) core.UIState {
	if len(s.states) == 0 {
		return core.StateUnknown
	}
	i := s.calls
	if i >= len(s.states) {
		i = len(s.states) - 1
	}
	s.calls++
	return s.states[i]
}

// Calls returns how many classifications were requested.
func (s *Scripted) Calls() int {
	return s.calls
}
