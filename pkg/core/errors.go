package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for retry policy and reporting.
type ErrorKind int

const (
	KindNone          ErrorKind = iota
	KindDevice                  // Bridge cannot reach the emulator; environment-fatal
	KindCapture                 // Screenshot I/O failure; retryable
	KindAction                  // Input command rejected by the bridge; retryable
	KindClassification          // No registered state matched; retryable via UNKNOWN handling
	KindPrerequisite            // Flow precondition not met; fails fast
	KindBudget                  // Flow-level step budget exhausted
	KindCancelled               // External cancellation observed
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDevice:
		return "device"
	case KindCapture:
		return "capture"
	case KindAction:
		return "action"
	case KindClassification:
		return "classification"
	case KindPrerequisite:
		return "prerequisite"
	case KindBudget:
		return "budget"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Retryable reports whether failures of this kind may be retried locally.
// Device unavailability is never retried: it indicates an environment fault
// outside the flow's control.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindCapture, KindAction, KindClassification:
		return true
	default:
		return false
	}
}

// FlowError is a structured error with a kind and a machine-readable
// reason code. The code is what crosses the component boundary in run
// results; internal retry noise never does.
type FlowError struct {
	Kind    ErrorKind
	Code    string // Machine-readable: DeviceUnavailable, CaptureError, ...
	Message string // Human-readable message
	Cause   error  // Underlying error
}

// Error implements the error interface.
func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *FlowError) Unwrap() error {
	return e.Cause
}

// Is matches any FlowError carrying the same reason code, so
// errors.Is(err, ErrCapture) works on wrapped copies.
func (e *FlowError) Is(target error) bool {
	t, ok := target.(*FlowError)
	return ok && t.Code == e.Code
}

// WithCause returns a copy of the error with the given cause attached.
func (e *FlowError) WithCause(cause error) *FlowError {
	return &FlowError{Kind: e.Kind, Code: e.Code, Message: e.Message, Cause: cause}
}

// WithMessage returns a copy of the error with a custom message.
func (e *FlowError) WithMessage(format string, v ...interface{}) *FlowError {
	return &FlowError{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, v...), Cause: e.Cause}
}

// Predefined errors, one per taxonomy entry.
var (
	ErrDeviceUnavailable = &FlowError{
		Kind:    KindDevice,
		Code:    "DeviceUnavailable",
		Message: "debug bridge cannot reach the emulator",
	}
	ErrCapture = &FlowError{
		Kind:    KindCapture,
		Code:    "CaptureError",
		Message: "screen capture failed",
	}
	ErrAction = &FlowError{
		Kind:    KindAction,
		Code:    "ActionError",
		Message: "input action rejected by the bridge",
	}
	ErrClassificationUnknown = &FlowError{
		Kind:    KindClassification,
		Code:    "ClassificationUnknown",
		Message: "no registered screen state matched",
	}
	ErrPrerequisiteNotMet = &FlowError{
		Kind:    KindPrerequisite,
		Code:    "PrerequisiteNotMet",
		Message: "flow precondition not met",
	}
	ErrStepBudgetExceeded = &FlowError{
		Kind:    KindBudget,
		Code:    "StepBudgetExceeded",
		Message: "flow step budget exhausted",
	}
	ErrCancelled = &FlowError{
		Kind:    KindCancelled,
		Code:    "Cancelled",
		Message: "flow run cancelled",
	}
)

// ReasonCode extracts the machine-readable code from any error, or "Error"
// for errors outside the taxonomy.
func ReasonCode(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	if err != nil {
		return "Error"
	}
	return ""
}
