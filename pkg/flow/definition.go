package flow

import (
	"fmt"
	"time"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// Rule is one row of a flow's transition table: when the screen classifies
// as State, perform Action and expect Next within Timeout. MaxRetries
// bounds how many timeout windows the supervisor grants before escalating.
// Fallbacks enumerates the other states this step may legitimately land in
// (interstitial dialogs, mostly); a detour into a listed state resets this
// rule's retry accounting once dismissed, while unlisted surprises ride
// the UNKNOWN handling instead of ad-hoc code.
type Rule struct {
	State      core.UIState
	Action     Action
	Timeout    time.Duration
	MaxRetries int
	Next       core.UIState
	Fallbacks  []core.UIState
}

// ListsFallback reports whether the rule declares s as an expected detour.
func (r Rule) ListsFallback(s core.UIState) bool {
	for _, fb := range r.Fallbacks {
		if fb == s {
			return true
		}
	}
	return false
}

// Definition is one flow's complete, read-only transition table. Built once
// at startup (or loaded from YAML) and validated before the engine runs it.
type Definition struct {
	Name  string
	Rules []Rule

	// Terminals. Success is the classified state that completes the flow;
	// Failure is always the engine-level failed state.
	Success core.UIState
	Failure core.UIState

	// Fallback is the reset state escalation returns to when a step keeps
	// failing or the screen stays unrecognized. Empty means escalation
	// aborts instead.
	Fallback core.UIState

	StepBudget            int
	PollInterval          time.Duration
	MaxConsecutiveUnknown int

	// RequirePackage makes the run verify the target package is installed
	// before the first transition and fail fast otherwise.
	RequirePackage bool

	// InstallGroundTruth short-circuits to Success as soon as the package
	// manager reports the target installed, regardless of what the screen
	// shows. The Play Store's final screen is the least reliable visual
	// signal, so the install flow enables this.
	InstallGroundTruth bool
}

// Rule returns the rule for a state. The second result is false when the
// state has no row, which the engine treats as UNKNOWN handling.
func (d *Definition) Rule(state core.UIState) (Rule, bool) {
	for _, r := range d.Rules {
		if r.State == state {
			return r, true
		}
	}
	return Rule{}, false
}

// Validate checks the table invariants: every state has exactly one rule,
// terminals are declared, every Next and the Fallback are resolvable, and
// the budgets are positive.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	if len(d.Rules) == 0 {
		return fmt.Errorf("flow %s has no rules", d.Name)
	}
	if d.Success == "" {
		return fmt.Errorf("flow %s declares no terminal success state", d.Name)
	}
	if d.Failure != core.StateFlowFailed {
		return fmt.Errorf("flow %s declares terminal failure %q, want %s", d.Name, d.Failure, core.StateFlowFailed)
	}
	if d.StepBudget <= 0 {
		return fmt.Errorf("flow %s has no step budget", d.Name)
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("flow %s has no poll interval", d.Name)
	}
	if d.MaxConsecutiveUnknown <= 0 {
		return fmt.Errorf("flow %s has no consecutive-unknown limit", d.Name)
	}

	seen := make(map[core.UIState]bool, len(d.Rules))
	for _, r := range d.Rules {
		if r.State == "" {
			return fmt.Errorf("flow %s: rule with empty state", d.Name)
		}
		if seen[r.State] {
			return fmt.Errorf("flow %s: duplicate rule for state %s", d.Name, r.State)
		}
		seen[r.State] = true
		if r.State.IsTerminal() {
			return fmt.Errorf("flow %s: rule for engine terminal %s", d.Name, r.State)
		}
	}

	for _, r := range d.Rules {
		if r.Next == "" {
			return fmt.Errorf("flow %s: rule %s has no next state", d.Name, r.State)
		}
		if r.Next != d.Success && !seen[r.Next] {
			return fmt.Errorf("flow %s: rule %s advances to unhandled state %s", d.Name, r.State, r.Next)
		}
		for _, fb := range r.Fallbacks {
			if !seen[fb] {
				return fmt.Errorf("flow %s: rule %s lists unhandled fallback state %s", d.Name, r.State, fb)
			}
		}
	}

	if d.Fallback != "" && !seen[d.Fallback] {
		return fmt.Errorf("flow %s: fallback state %s has no rule", d.Name, d.Fallback)
	}
	if seen[d.Success] {
		return fmt.Errorf("flow %s: success state %s must not have a rule", d.Name, d.Success)
	}
	return nil
}
