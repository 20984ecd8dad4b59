// Package engine runs flow definitions against a device: classify the
// screen, look up the transition rule, act, poll, repeat until a terminal
// state or an exhausted budget.
package engine

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emulab-dev/emuflow/pkg/core"
	"github.com/emulab-dev/emuflow/pkg/flow"
	"github.com/emulab-dev/emuflow/pkg/screen"
)

// Device is the narrow controller contract the engine drives. adb.Controller
// implements it; tests substitute a simulated device, so flow logic never
// assumes global emulator state beyond these calls.
type Device interface {
	Serial() string
	Capture(ctx context.Context) (*core.Frame, error)
	Tap(ctx context.Context, x, y int) error
	Swipe(ctx context.Context, x1, y1, x2, y2 int) error
	PressHome(ctx context.Context) error
	PressBack(ctx context.Context) error
	StartActivity(ctx context.Context, component string) error
	OpenMarket(ctx context.Context, pkg string) error
	IsPackageInstalled(ctx context.Context, pkg string) (bool, error)
}

// ArtifactSink receives the run's outputs. artifact.Store implements it.
type ArtifactSink interface {
	SaveScreenshot(flowName string, ts time.Time, png []byte) (string, error)
	SaveDebugFrame(png []byte) (string, error)
	SaveResult(run *core.FlowRun) (string, error)
}

// hierarchyDumper is the optional controller capability for UI hierarchy
// dumps. adb.Controller implements it; simulated devices need not.
type hierarchyDumper interface {
	DumpHierarchy(ctx context.Context) ([]byte, error)
}

// hierarchySink is the optional sink capability matching hierarchyDumper.
type hierarchySink interface {
	SaveHierarchy(data []byte) (string, error)
}

// RunOptions carries the per-run targets referenced by flow actions.
type RunOptions struct {
	Package  string // Target package, e.g. com.garena.game.kgvn
	Activity string // Launch component for startActivity rules without one
}

// Engine drives one device through flow definitions, one run at a time.
// It owns the clock: all timeout windows and run timestamps go through
// now, so tests can elapse rule timeouts without real waiting.
type Engine struct {
	dev   Device
	cls   screen.Classifier
	store ArtifactSink
	now   func() time.Time
}

// New creates an Engine.
func New(dev Device, cls screen.Classifier, store ArtifactSink) *Engine {
	return &Engine{dev: dev, cls: cls, store: store, now: time.Now}
}

// Reason code for a step that stayed stuck past its retries; distinct from
// the flow-level StepBudgetExceeded.
const reasonStepTimeout = "StepTimeout"

// Run executes one flow to a terminal outcome. It never returns an error:
// every failure mode is folded into the run record, which is always handed
// to the artifact sink before returning.
func (e *Engine) Run(ctx context.Context, def *flow.Definition, opts RunOptions) *core.FlowRun {
	run := core.NewFlowRun(def.Name, e.dev.Serial(), e.now())

	if err := def.Validate(); err != nil {
		log.WithError(err).Error("flow definition rejected")
		run.Finalize(core.OutcomeAborted, "InvalidFlow", e.now())
		e.persist(run, nil)
		return run
	}

	// The bridge is the one shared resource; hold it for the full run and
	// release unconditionally.
	release := sessions.acquire(e.dev.Serial())
	defer release()

	var lastFrame *core.Frame
	defer func() { e.persist(run, lastFrame) }()

	flog := log.WithFields(log.Fields{"flow": def.Name, "run": run.ID, "serial": e.dev.Serial()})
	flog.Info("flow run started")

	// A cancellation that beat the run to the lock must not touch the
	// device at all, precondition probe included.
	if ctx.Err() != nil {
		run.Finalize(core.OutcomeAborted, core.ErrCancelled.Code, e.now())
		return run
	}

	if def.RequirePackage {
		installed, err := e.dev.IsPackageInstalled(ctx, opts.Package)
		if err != nil {
			run.Finalize(core.OutcomeAborted, core.ReasonCode(err), e.now())
			return run
		}
		if !installed {
			flog.WithField("package", opts.Package).Warn("target package not installed")
			run.Finalize(core.OutcomeAborted, core.ErrPrerequisiteNotMet.Code, e.now())
			return run
		}
	}

	sup := NewSupervisor(def)

	var (
		forced     core.UIState // synthetic advance after a capture action
		lastState  core.UIState
		stateSince = e.now()
	)

	for {
		// Cancellation is observed at the top of every tick; no device
		// action is issued at or after this point once ctx is done.
		if ctx.Err() != nil {
			flog.Warn("flow run cancelled")
			run.Finalize(core.OutcomeAborted, core.ErrCancelled.Code, e.now())
			return run
		}

		// Observe: a fresh classification every tick, never assumed.
		state := forced
		forced = ""
		if state == "" {
			frame, err := e.dev.Capture(ctx)
			if err != nil {
				if sup.HandleCapture(err) == DecisionAbort {
					flog.WithError(err).Error("capture unrecoverable")
					run.Finalize(core.OutcomeAborted, core.ReasonCode(err), e.now())
					return run
				}
				sleep(ctx, def.PollInterval)
				continue
			}
			frame.Flow = def.Name
			frame.State = e.cls.Classify(frame)
			lastFrame = frame
			state = frame.State
		}
		run.LastObserved = state
		flog.WithField("state", state).Debug("classified")

		if state == def.Success {
			flog.Info("flow reached success state")
			run.Finalize(core.OutcomeSuccess, "", e.now())
			return run
		}

		rule, found := def.Rule(state)
		if state == core.StateUnknown || !found {
			switch sup.HandleUnknown() {
			case DecisionRetry:
				if e.installComplete(ctx, def, opts, run, flog) {
					return run
				}
				sleep(ctx, def.PollInterval)
				continue
			case DecisionEscalate:
				if e.escalate(ctx, def, sup, run, &lastState, &stateSince) {
					if e.installComplete(ctx, def, opts, run, flog) {
						return run
					}
					continue
				}
				run.Finalize(core.OutcomeTimeout, core.ErrStepBudgetExceeded.Code, e.now())
				return run
			default:
				run.Finalize(core.OutcomeAborted, core.ErrClassificationUnknown.Code, e.now())
				return run
			}
		}
		sup.NoteProgress()

		// Dwell timeout: the same state persisting past the rule's window
		// means the action is not taking effect.
		if state == lastState && rule.Timeout > 0 {
			if e.now().Sub(stateSince) > rule.Timeout {
				switch sup.HandleStuck(rule) {
				case DecisionRetry:
					stateSince = e.now()
					flog.WithField("state", state).Warn("step timed out, retrying")
					if e.installComplete(ctx, def, opts, run, flog) {
						return run
					}
					sleep(ctx, sup.Backoff(state))
					continue
				case DecisionEscalate:
					if e.escalate(ctx, def, sup, run, &lastState, &stateSince) {
						if e.installComplete(ctx, def, opts, run, flog) {
							return run
						}
						continue
					}
					run.Finalize(core.OutcomeTimeout, core.ErrStepBudgetExceeded.Code, e.now())
					return run
				default:
					run.Finalize(core.OutcomeTimeout, reasonStepTimeout, e.now())
					return run
				}
			}
		} else if state != lastState {
			// A detour into a state the interrupted rule expects (a dialog
			// it lists) grants that rule fresh retry windows once dismissed.
			if prev, ok := def.Rule(lastState); ok && prev.ListsFallback(state) {
				sup.ResetAttempts(lastState)
			}
			lastState = state
			stateSince = e.now()
			sup.ResetBackoff(state)
		}

		// Step budget is checked before each action, so a flow that never
		// terminates issues exactly StepBudget actions.
		if run.ActionsIssued >= def.StepBudget {
			flog.Warn("step budget exhausted")
			run.Finalize(core.OutcomeTimeout, core.ErrStepBudgetExceeded.Code, e.now())
			return run
		}

		stepStart := e.now()
		err := e.perform(ctx, rule.Action, def, opts, run)
		run.ActionsIssued++
		rec := core.StepRecord{
			State:     state,
			Action:    rule.Action.String(),
			Next:      rule.Next,
			Attempt:   1,
			StartTime: stepStart,
			Duration:  e.now().Sub(stepStart),
		}
		if err != nil {
			rec.Error = err.Error()
		}
		run.RecordStep(rec)

		if err != nil {
			var fe *core.FlowError
			if errors.As(err, &fe) && !fe.Kind.Retryable() {
				flog.WithError(err).Error("fatal action failure")
				run.Finalize(core.OutcomeAborted, core.ReasonCode(err), e.now())
				return run
			}
			switch sup.HandleStuck(rule) {
			case DecisionRetry:
				if e.installComplete(ctx, def, opts, run, flog) {
					return run
				}
				sleep(ctx, sup.Backoff(state))
				continue
			case DecisionEscalate:
				if e.escalate(ctx, def, sup, run, &lastState, &stateSince) {
					if e.installComplete(ctx, def, opts, run, flog) {
						return run
					}
					continue
				}
				run.Finalize(core.OutcomeTimeout, core.ErrStepBudgetExceeded.Code, e.now())
				return run
			default:
				run.Finalize(core.OutcomeAborted, core.ReasonCode(err), e.now())
				return run
			}
		}

		if rule.Action.Kind == flow.ActionCapture {
			// The capture leaves no new screen to observe; advance the flow
			// directly to the rule's next state.
			forced = rule.Next
		}

		if e.installComplete(ctx, def, opts, run, flog) {
			return run
		}

		sleep(ctx, def.PollInterval)
	}
}

// installComplete consults the package manager for InstallGroundTruth
// flows and finalizes the run as successful when the package is present.
// It runs on every poll, recognized screen or not, because the Play
// Store's post-install screen is the least reliable visual signal.
func (e *Engine) installComplete(ctx context.Context, def *flow.Definition, opts RunOptions, run *core.FlowRun, flog *log.Entry) bool {
	if !def.InstallGroundTruth || opts.Package == "" {
		return false
	}
	installed, err := e.dev.IsPackageInstalled(ctx, opts.Package)
	if err != nil {
		flog.WithError(err).Debug("ground-truth check failed")
		return false
	}
	if !installed {
		return false
	}
	flog.WithField("package", opts.Package).Info("package present, short-circuiting to success")
	run.Finalize(core.OutcomeSuccess, "", e.now())
	return true
}

// escalate resets the device toward the flow's fallback state with a home
// press. Returns false when the step budget cannot cover the reset, which
// ends the run.
func (e *Engine) escalate(ctx context.Context, def *flow.Definition, sup *Supervisor, run *core.FlowRun, lastState *core.UIState, stateSince *time.Time) bool {
	if run.ActionsIssued >= def.StepBudget {
		return false
	}
	log.WithFields(log.Fields{"flow": def.Name, "fallback": def.Fallback}).Warn("escalating to fallback state")

	stepStart := e.now()
	err := e.dev.PressHome(ctx)
	run.ActionsIssued++
	rec := core.StepRecord{
		State:     run.LastObserved,
		Action:    "pressHome(reset)",
		Next:      def.Fallback,
		Attempt:   1,
		StartTime: stepStart,
		Duration:  e.now().Sub(stepStart),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	run.RecordStep(rec)

	*lastState = ""
	*stateSince = e.now()
	sup.ResetBackoff(def.Fallback)
	sleep(ctx, def.PollInterval)
	return true
}

// perform maps a rule action onto the device controller.
func (e *Engine) perform(ctx context.Context, a flow.Action, def *flow.Definition, opts RunOptions, run *core.FlowRun) error {
	switch a.Kind {
	case flow.ActionTap:
		return e.dev.Tap(ctx, a.X, a.Y)
	case flow.ActionSwipe:
		return e.dev.Swipe(ctx, a.X, a.Y, a.X2, a.Y2)
	case flow.ActionPressHome:
		return e.dev.PressHome(ctx)
	case flow.ActionPressBack:
		return e.dev.PressBack(ctx)
	case flow.ActionStartActivity:
		component := a.Component
		if component == "" {
			component = opts.Activity
		}
		return e.dev.StartActivity(ctx, component)
	case flow.ActionOpenMarket:
		return e.dev.OpenMarket(ctx, opts.Package)
	case flow.ActionOpenPlayStore:
		return e.dev.StartActivity(ctx, flow.PlayStoreComponent)
	case flow.ActionWait:
		return nil
	case flow.ActionCapture:
		frame, err := e.dev.Capture(ctx)
		if err != nil {
			return err
		}
		path, err := e.store.SaveScreenshot(def.Name, frame.Timestamp, frame.PNG)
		if err != nil {
			return core.ErrCapture.WithMessage("saving screenshot failed").WithCause(err)
		}
		run.AddArtifact(path)
		return nil
	default:
		return core.ErrAction.WithMessage("unsupported action %q", a.Kind)
	}
}

// persist writes the run record and, for failed runs, the last classified
// frame under the fixed debug name for postmortem inspection.
func (e *Engine) persist(run *core.FlowRun, lastFrame *core.Frame) {
	if !run.Done() {
		run.Finalize(core.OutcomeAborted, "Error", e.now())
	}
	if !run.Outcome.Success() && lastFrame != nil {
		if path, err := e.store.SaveDebugFrame(lastFrame.PNG); err != nil {
			log.WithError(err).Warn("saving debug frame failed")
		} else {
			run.AddArtifact(path)
		}
		e.dumpHierarchy(run)
	}
	if _, err := e.store.SaveResult(run); err != nil {
		log.WithError(err).Error("saving run result failed")
	}
	log.WithFields(log.Fields{
		"flow":    run.Flow,
		"run":     run.ID,
		"outcome": run.Outcome.String(),
		"reason":  run.Reason,
		"actions": run.ActionsIssued,
		"elapsed": run.Elapsed,
	}).Info("flow run finished")
}

// dumpHierarchy saves the UI hierarchy next to the debug frame when both
// the controller and the sink support it. Runs after the flow's context is
// gone, so it gets its own short deadline.
func (e *Engine) dumpHierarchy(run *core.FlowRun) {
	dev, ok := e.dev.(hierarchyDumper)
	if !ok {
		return
	}
	sink, ok := e.store.(hierarchySink)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	xml, err := dev.DumpHierarchy(ctx)
	if err != nil {
		log.WithError(err).Debug("hierarchy dump failed")
		return
	}
	if path, err := sink.SaveHierarchy(xml); err != nil {
		log.WithError(err).Warn("saving hierarchy dump failed")
	} else {
		run.AddArtifact(path)
	}
}

// sleep waits for d or until ctx is done, whichever comes first. The next
// tick re-checks ctx, so the error is deliberately dropped here.
func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
