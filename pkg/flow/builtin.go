package flow

import (
	"time"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// Flow names.
const (
	FlowInstall = "install"
	FlowCapture = "capture"
)

// PlayStoreComponent is the Play Store browse activity, launched before
// deep-linking to the app page. The openPlayStore action targets it.
const PlayStoreComponent = "com.android.vending/.AssetBrowserActivity"

// Install button center on the Play Store app page at 2400x1080 landscape,
// taken from a UI dump of the real screen (bounds [1959,287][2274,413]).
const (
	installButtonX = 2117
	installButtonY = 350
)

// Default budgets. Installation of a multi-GB game can legitimately take
// minutes, so INSTALL_IN_PROGRESS gets its own long window.
const (
	defaultPoll        = 2 * time.Second
	defaultStepTimeout = 30 * time.Second
	installWindow      = 5 * time.Minute
	gameLoadWindow     = 2 * time.Minute
	defaultMaxUnknown  = 5
	installStepBudget  = 60
	captureStepBudget  = 40
	defaultRuleRetries = 2
)

// dialogRules returns the dismiss rows for non-blocking interstitials.
// Each one backs out and resumes at the state the dialog covered.
func dialogRules(resume core.UIState) []Rule {
	return []Rule{
		{State: core.StateInterstitialAd, Action: Action{Kind: ActionPressBack}, Timeout: defaultStepTimeout, MaxRetries: defaultRuleRetries, Next: resume},
		{State: core.StatePermissionDialog, Action: Action{Kind: ActionPressBack}, Timeout: defaultStepTimeout, MaxRetries: defaultRuleRetries, Next: resume},
		{State: core.StateRatingPrompt, Action: Action{Kind: ActionPressBack}, Timeout: defaultStepTimeout, MaxRetries: defaultRuleRetries, Next: resume},
	}
}

// Install is the builtin install flow: reset home, open the Play Store,
// deep-link to the app page, tap install, poll until the package manager
// reports the package present.
func Install() *Definition {
	rules := []Rule{
		{
			State:      core.StateHomeScreen,
			Action:     Action{Kind: ActionStartActivity, Component: PlayStoreComponent},
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StatePlayStoreOpen,
		},
		{
			State:      core.StatePlayStoreOpen,
			Action:     Action{Kind: ActionOpenMarket},
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StateAppPageFound,
			Fallbacks:  []core.UIState{core.StateInterstitialAd},
		},
		{
			State:      core.StateAppPageFound,
			Action:     Tap(installButtonX, installButtonY),
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StateInstallTriggered,
			Fallbacks:  []core.UIState{core.StateInterstitialAd, core.StateRatingPrompt},
		},
		{
			State:      core.StateInstallTriggered,
			Action:     Wait(),
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StateInstallInProgress,
			Fallbacks:  []core.UIState{core.StatePermissionDialog},
		},
		{
			State:      core.StateInstallInProgress,
			Action:     Wait(),
			Timeout:    installWindow,
			MaxRetries: 1,
			Next:       core.StateAppInstalled,
			Fallbacks:  []core.UIState{core.StateInterstitialAd, core.StateRatingPrompt},
		},
	}
	rules = append(rules, dialogRules(core.StateAppPageFound)...)

	return &Definition{
		Name:                  FlowInstall,
		Rules:                 rules,
		Success:               core.StateAppInstalled,
		Failure:               core.StateFlowFailed,
		Fallback:              core.StateHomeScreen,
		StepBudget:            installStepBudget,
		PollInterval:          defaultPoll,
		MaxConsecutiveUnknown: defaultMaxUnknown,
		InstallGroundTruth:    true,
	}
}

// Capture is the builtin launch-and-capture flow: launch the game activity,
// wait through loading, screenshot the game home screen. Requires the
// package to already be installed; the run fails fast otherwise.
func Capture() *Definition {
	rules := []Rule{
		{
			State:      core.StateHomeScreen,
			Action:     Action{Kind: ActionStartActivity},
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StateAppLaunched,
		},
		{
			State:      core.StateAppLaunched,
			Action:     Wait(),
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StateGameLoading,
		},
		{
			State:      core.StateGameLoading,
			Action:     Wait(),
			Timeout:    gameLoadWindow,
			MaxRetries: 1,
			Next:       core.StateGameHome,
			Fallbacks:  []core.UIState{core.StateInterstitialAd, core.StatePermissionDialog},
		},
		{
			State:      core.StateGameHome,
			Action:     Action{Kind: ActionCapture},
			Timeout:    defaultStepTimeout,
			MaxRetries: defaultRuleRetries,
			Next:       core.StateCaptureTaken,
		},
	}
	rules = append(rules, dialogRules(core.StateGameLoading)...)

	return &Definition{
		Name:                  FlowCapture,
		Rules:                 rules,
		Success:               core.StateCaptureTaken,
		Failure:               core.StateFlowFailed,
		Fallback:              core.StateHomeScreen,
		StepBudget:            captureStepBudget,
		PollInterval:          defaultPoll,
		MaxConsecutiveUnknown: defaultMaxUnknown,
		RequirePackage:        true,
	}
}
