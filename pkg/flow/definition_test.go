package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emulab-dev/emuflow/pkg/core"
)

func validDefinition() *Definition {
	return &Definition{
		Name: "test",
		Rules: []Rule{
			{State: core.StateHomeScreen, Action: Wait(), Timeout: time.Second, Next: core.StateGameHome},
			{State: core.StateGameHome, Action: Action{Kind: ActionCapture}, Timeout: time.Second, Next: core.StateCaptureTaken},
		},
		Success:               core.StateCaptureTaken,
		Failure:               core.StateFlowFailed,
		StepBudget:            10,
		PollInterval:          time.Millisecond,
		MaxConsecutiveUnknown: 3,
	}
}

func TestDefinition_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Definition)
		wantErr string
	}{
		{"valid", func(d *Definition) {}, ""},
		{"no name", func(d *Definition) { d.Name = "" }, "no name"},
		{"no rules", func(d *Definition) { d.Rules = nil }, "no rules"},
		{"no success", func(d *Definition) { d.Success = "" }, "no terminal success"},
		{"wrong failure terminal", func(d *Definition) { d.Failure = core.StateHomeScreen }, "terminal failure"},
		{"no budget", func(d *Definition) { d.StepBudget = 0 }, "no step budget"},
		{"no poll interval", func(d *Definition) { d.PollInterval = 0 }, "no poll interval"},
		{"no unknown limit", func(d *Definition) { d.MaxConsecutiveUnknown = 0 }, "consecutive-unknown"},
		{
			"duplicate rule",
			func(d *Definition) { d.Rules = append(d.Rules, Rule{State: core.StateHomeScreen, Action: Wait(), Next: core.StateGameHome}) },
			"duplicate rule",
		},
		{
			"next unhandled",
			func(d *Definition) { d.Rules[0].Next = core.StatePlayStoreOpen },
			"unhandled state",
		},
		{
			"fallback without rule",
			func(d *Definition) { d.Fallback = core.StateAppPageFound },
			"fallback state",
		},
		{
			"rule fallback without rule",
			func(d *Definition) { d.Rules[0].Fallbacks = []core.UIState{core.StateRatingPrompt} },
			"unhandled fallback",
		},
		{
			"rule on engine terminal",
			func(d *Definition) { d.Rules = append(d.Rules, Rule{State: core.StateFlowFailed, Action: Wait(), Next: core.StateGameHome}) },
			"engine terminal",
		},
		{
			"rule on success state",
			func(d *Definition) {
				d.Rules = append(d.Rules, Rule{State: core.StateCaptureTaken, Action: Wait(), Next: core.StateGameHome})
			},
			"must not have a rule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRule_ListsFallback(t *testing.T) {
	rule := Rule{State: core.StateGameLoading, Fallbacks: []core.UIState{core.StateInterstitialAd, core.StateRatingPrompt}}

	if !rule.ListsFallback(core.StateInterstitialAd) {
		t.Error("listed detour not recognized")
	}
	if rule.ListsFallback(core.StatePermissionDialog) {
		t.Error("unlisted state recognized as detour")
	}
}

func TestBuiltinFlowsValidate(t *testing.T) {
	for _, def := range []*Definition{Install(), Capture()} {
		if err := def.Validate(); err != nil {
			t.Errorf("builtin flow %s invalid: %v", def.Name, err)
		}
	}
}

func TestInstallFlow_Shape(t *testing.T) {
	def := Install()

	if def.Success != core.StateAppInstalled {
		t.Errorf("Success = %s, want %s", def.Success, core.StateAppInstalled)
	}
	if !def.InstallGroundTruth {
		t.Error("install flow must enable the package-manager ground truth")
	}
	if def.RequirePackage {
		t.Error("install flow must not require the package preinstalled")
	}
	if def.Fallback != core.StateHomeScreen {
		t.Errorf("Fallback = %s, want %s", def.Fallback, core.StateHomeScreen)
	}

	// The canonical install path must be present end to end.
	path := []core.UIState{
		core.StateHomeScreen,
		core.StatePlayStoreOpen,
		core.StateAppPageFound,
		core.StateInstallTriggered,
		core.StateInstallInProgress,
	}
	for i, state := range path {
		rule, ok := def.Rule(state)
		if !ok {
			t.Fatalf("no rule for %s", state)
		}
		want := def.Success
		if i+1 < len(path) {
			want = path[i+1]
		}
		if rule.Next != want {
			t.Errorf("rule %s advances to %s, want %s", state, rule.Next, want)
		}
	}
}

func TestCaptureFlow_Shape(t *testing.T) {
	def := Capture()

	if !def.RequirePackage {
		t.Error("capture flow must require the package preinstalled")
	}
	if def.InstallGroundTruth {
		t.Error("capture flow must not use the install ground truth")
	}
	rule, ok := def.Rule(core.StateGameHome)
	if !ok || rule.Action.Kind != ActionCapture {
		t.Errorf("GAME_HOME rule = %+v, want a capture action", rule)
	}
	if rule.Next != core.StateCaptureTaken {
		t.Errorf("GAME_HOME advances to %s, want %s", rule.Next, core.StateCaptureTaken)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	doc := `
name: custom-install
success: APP_INSTALLED
fallback: HOME_SCREEN
stepBudget: 25
pollIntervalMs: 500
maxConsecutiveUnknown: 4
installGroundTruth: true
rules:
  - state: HOME_SCREEN
    action: {kind: openMarket}
    timeoutMs: 10000
    maxRetries: 2
    next: APP_PAGE_FOUND
  - state: APP_PAGE_FOUND
    action: {kind: tap, x: 2117, y: 350}
    timeoutMs: 10000
    maxRetries: 2
    next: APP_INSTALLED
    fallbacks: [INTERSTITIAL_AD]
  - state: INTERSTITIAL_AD
    action: {kind: pressBack}
    timeoutMs: 5000
    maxRetries: 1
    next: APP_PAGE_FOUND
`
	path := filepath.Join(t.TempDir(), "flow.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if def.Name != "custom-install" {
		t.Errorf("Name = %q", def.Name)
	}
	if def.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", def.PollInterval)
	}
	rule, ok := def.Rule(core.StateAppPageFound)
	if !ok {
		t.Fatal("no rule for APP_PAGE_FOUND")
	}
	if rule.Action.Kind != ActionTap || rule.Action.X != 2117 || rule.Action.Y != 350 {
		t.Errorf("tap action = %+v", rule.Action)
	}
	if rule.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", rule.Timeout)
	}
	if len(rule.Fallbacks) != 1 || rule.Fallbacks[0] != core.StateInterstitialAd {
		t.Errorf("Fallbacks = %v", rule.Fallbacks)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	doc := `
name: broken
success: APP_INSTALLED
stepBudget: 10
pollIntervalMs: 100
maxConsecutiveUnknown: 3
rules:
  - state: HOME_SCREEN
    action: {kind: wait}
    timeoutMs: 1000
    next: NOWHERE
`
	path := filepath.Join(t.TempDir(), "flow.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted a flow advancing to an unhandled state")
	}
}
