// Package flow defines the declarative transition tables the engine runs.
package flow

// ActionKind identifies one of the closed set of device actions a rule may
// request. The engine maps these onto the device controller; flows never
// talk to the bridge directly.
type ActionKind string

// Action kinds.
const (
	ActionPressHome     ActionKind = "pressHome"
	ActionPressBack     ActionKind = "pressBack"
	ActionTap           ActionKind = "tap"
	ActionSwipe         ActionKind = "swipe"
	ActionStartActivity ActionKind = "startActivity"
	ActionOpenMarket    ActionKind = "openMarket"
	ActionOpenPlayStore ActionKind = "openPlayStore"
	ActionWait          ActionKind = "wait"
	ActionCapture       ActionKind = "capture"
)

// Action is one device action with its parameters. Tap and swipe carry
// coordinates; startActivity with an empty Component targets the run's
// configured activity; openMarket always targets the run's package.
type Action struct {
	Kind      ActionKind `yaml:"kind"`
	X         int        `yaml:"x,omitempty"`
	Y         int        `yaml:"y,omitempty"`
	X2        int        `yaml:"x2,omitempty"`
	Y2        int        `yaml:"y2,omitempty"`
	Component string     `yaml:"component,omitempty"`
}

// Tap builds a tap action.
func Tap(x, y int) Action {
	return Action{Kind: ActionTap, X: x, Y: y}
}

// Wait builds a no-op action that lets the screen settle.
func Wait() Action {
	return Action{Kind: ActionWait}
}

// String returns a compact description for logs and run records.
func (a Action) String() string {
	return string(a.Kind)
}
