package core

import (
	"time"

	"github.com/google/uuid"
)

// StepRecord captures one executed flow step for the run log.
type StepRecord struct {
	Index      int           `json:"index"`
	State      UIState       `json:"state"`
	Action     string        `json:"action"`
	Next       UIState       `json:"next,omitempty"`
	Attempt    int           `json:"attempt"`
	StartTime  time.Time     `json:"startTime"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// FlowRun is the runtime record of one flow invocation. It is created at
// flow start, mutated only by the engine, and finalized exactly once.
type FlowRun struct {
	ID     string `json:"runId"`
	Flow   string `json:"flow"`
	Serial string `json:"serial"`

	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsed"`

	CurrentState  UIState      `json:"finalState"`
	LastObserved  UIState      `json:"lastObservedState,omitempty"`
	Steps         []StepRecord `json:"steps"`
	ActionsIssued int          `json:"actionsIssued"`

	Outcome RunOutcome `json:"outcome"`
	Reason  string     `json:"reason,omitempty"`

	Artifacts []string `json:"artifacts,omitempty"`
}

// NewFlowRun creates a run record for the named flow.
func NewFlowRun(flow, serial string, now time.Time) *FlowRun {
	return &FlowRun{
		ID:        uuid.NewString(),
		Flow:      flow,
		Serial:    serial,
		StartTime: now,
		Outcome:   OutcomePending,
	}
}

// RecordStep appends a step record and returns its index.
func (r *FlowRun) RecordStep(rec StepRecord) int {
	rec.Index = len(r.Steps)
	r.Steps = append(r.Steps, rec)
	return rec.Index
}

// AddArtifact records a saved artifact path.
func (r *FlowRun) AddArtifact(path string) {
	if path != "" {
		r.Artifacts = append(r.Artifacts, path)
	}
}

// Finalize sets the terminal outcome. The first call wins; later calls are
// ignored so a cancellation racing a success cannot rewrite history.
func (r *FlowRun) Finalize(outcome RunOutcome, reason string, now time.Time) {
	if r.Outcome != OutcomePending {
		return
	}
	r.Outcome = outcome
	r.Reason = reason
	r.Elapsed = now.Sub(r.StartTime)
	switch outcome {
	case OutcomeSuccess:
		r.CurrentState = StateFlowSuccess
	default:
		r.CurrentState = StateFlowFailed
	}
}

// Done reports whether the run has been finalized.
func (r *FlowRun) Done() bool {
	return r.Outcome != OutcomePending
}
