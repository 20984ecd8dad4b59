package engine

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/emulab-dev/emuflow/pkg/core"
	"github.com/emulab-dev/emuflow/pkg/flow"
)

// Decision is the supervisor's verdict on a failed step.
type Decision int

const (
	DecisionRetry    Decision = iota // Try the same rule again after backoff
	DecisionEscalate                 // Reset to the flow's fallback state
	DecisionAbort                    // Terminate the run
)

// String returns the string representation of Decision.
func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionEscalate:
		return "escalate"
	case DecisionAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// linearBackOff implements backoff.BackOff with a linearly growing wait:
// base, 2*base, 3*base, ... Matches the flow model of waiting a little
// longer each time the same screen refuses to move on.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.base
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

var _ backoff.BackOff = (*linearBackOff)(nil)

// Supervisor brackets every engine step: it decides whether a failure is
// recoverable (retry), skippable via the flow's declared fallback
// (escalate), or fatal (abort). Retryable kinds are absorbed here and never
// surface past the engine boundary.
type Supervisor struct {
	def *flow.Definition

	consecutiveUnknown int
	captureFailures    int
	attempts           map[core.UIState]int
	waits              map[core.UIState]backoff.BackOff
}

// NewSupervisor creates a supervisor for one run of the given flow.
func NewSupervisor(def *flow.Definition) *Supervisor {
	return &Supervisor{
		def:      def,
		attempts: make(map[core.UIState]int),
		waits:    make(map[core.UIState]backoff.BackOff),
	}
}

// HandleUnknown accounts one unrecognized classification. Below the
// consecutive-miss limit it is a transient animation frame: retry the
// capture after a pause. At the limit it escalates to the declared fallback
// state, or aborts when the flow declares none.
func (s *Supervisor) HandleUnknown() Decision {
	s.consecutiveUnknown++
	if s.consecutiveUnknown < s.def.MaxConsecutiveUnknown {
		return DecisionRetry
	}
	s.consecutiveUnknown = 0
	if s.def.Fallback != "" {
		return DecisionEscalate
	}
	return DecisionAbort
}

// HandleCapture accounts a screenshot failure. Device loss is never retried
// locally; it is an environment fault outside the flow's control.
func (s *Supervisor) HandleCapture(err error) Decision {
	var fe *core.FlowError
	if errors.As(err, &fe) && fe.Kind == core.KindDevice {
		return DecisionAbort
	}
	s.captureFailures++
	if s.captureFailures < s.def.MaxConsecutiveUnknown {
		return DecisionRetry
	}
	return DecisionAbort
}

// HandleStuck accounts one exhausted timeout window or rejected action for
// the rule's state. Within the rule's retry limit the step is retried with
// linear backoff; beyond it the run escalates to the fallback state, or
// aborts when there is none or when the fallback itself is the state that
// keeps failing.
func (s *Supervisor) HandleStuck(rule flow.Rule) Decision {
	s.attempts[rule.State]++
	if s.attempts[rule.State] <= rule.MaxRetries {
		return DecisionRetry
	}
	if s.def.Fallback != "" && rule.State != s.def.Fallback {
		return DecisionEscalate
	}
	return DecisionAbort
}

// NoteProgress clears the transient counters once a recognized state is
// observed. Per-state attempt counts survive so repeated identical
// failures still escalate.
func (s *Supervisor) NoteProgress() {
	s.consecutiveUnknown = 0
	s.captureFailures = 0
}

// ResetAttempts clears a state's retry accounting. Called when an expected
// detour (a dialog the state's rule lists) interrupted the step: the dwell
// it caused does not count against the rule's retries.
func (s *Supervisor) ResetAttempts(state core.UIState) {
	delete(s.attempts, state)
	s.ResetBackoff(state)
}

// Backoff returns the next wait before retrying the given state's rule.
func (s *Supervisor) Backoff(state core.UIState) time.Duration {
	bo, ok := s.waits[state]
	if !ok {
		bo = &linearBackOff{base: s.def.PollInterval}
		s.waits[state] = bo
	}
	return bo.NextBackOff()
}

// ResetBackoff restarts the wait ladder for a state, used when the flow
// re-enters it through the fallback reset.
func (s *Supervisor) ResetBackoff(state core.UIState) {
	if bo, ok := s.waits[state]; ok {
		bo.Reset()
	}
}
