// Package core provides the execution model types for emuflow.
package core

// UIState is a named classification of what the emulator screen currently
// shows. States are produced fresh on every classification and never mutated.
type UIState string

// UI state constants.
const (
	// Shared
	StateHomeScreen UIState = "HOME_SCREEN"
	StateUnknown    UIState = "UNKNOWN"

	// Install flow
	StatePlayStoreOpen     UIState = "PLAY_STORE_OPEN"
	StateAppPageFound      UIState = "APP_PAGE_FOUND"
	StateInstallTriggered  UIState = "INSTALL_TRIGGERED"
	StateInstallInProgress UIState = "INSTALL_IN_PROGRESS"
	StateAppInstalled      UIState = "APP_INSTALLED"

	// Launch-and-capture flow
	StateAppLaunched  UIState = "APP_LAUNCHED"
	StateGameLoading  UIState = "GAME_LOADING"
	StateGameHome     UIState = "GAME_HOME"
	StateCaptureTaken UIState = "CAPTURE_TAKEN"

	// Non-blocking interstitials. Each has a dismiss rule in the flow
	// tables; anything not recognized rides the UNKNOWN handling instead.
	StateInterstitialAd   UIState = "INTERSTITIAL_AD"
	StatePermissionDialog UIState = "PERMISSION_DIALOG"
	StateRatingPrompt     UIState = "RATING_PROMPT"

	// Engine-level terminals, never produced by a classifier.
	StateFlowSuccess UIState = "FLOW_SUCCESS"
	StateFlowFailed  UIState = "FLOW_FAILED"
)

// IsTerminal returns true for the engine-level terminal states.
func (s UIState) IsTerminal() bool {
	return s == StateFlowSuccess || s == StateFlowFailed
}

// RunOutcome is the terminal result of a flow run.
type RunOutcome int

const (
	OutcomePending RunOutcome = iota // Run not yet finalized
	OutcomeSuccess                   // Flow reached its success state
	OutcomeTimeout                   // Step budget or step timeout exhausted
	OutcomeAborted                   // Fatal error or cancellation
)

// String returns the string representation of RunOutcome.
func (o RunOutcome) String() string {
	switch o {
	case OutcomePending:
		return "PENDING"
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeTimeout:
		return "TIMEOUT"
	case OutcomeAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON result files.
func (o RunOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Success reports whether the outcome is the success terminal.
func (o RunOutcome) Success() bool {
	return o == OutcomeSuccess
}
