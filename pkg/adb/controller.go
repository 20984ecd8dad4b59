// Package adb drives a single Android emulator through the adb binary.
//
// The controller only performs actions and raw observations; it never
// verifies what a tap produced on screen. Observation is the classifier's
// job, so the same flow logic can run against a simulated device.
package adb

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// Android key event codes used by the flows.
const (
	keyHome = "3"
	keyBack = "4"
)

const probeWindow = 5 * time.Second

// Controller is the adb-backed device controller for one emulator serial.
type Controller struct {
	serial  string
	adbPath string

	// Per-command wall clock. Screencap on a loaded emulator can take a
	// few seconds; input events are near-instant.
	cmdTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithCommandTimeout overrides the per-adb-command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Controller) { c.cmdTimeout = d }
}

// New creates a Controller for the given serial. If serial is empty, the
// first connected device is used. The constructor verifies the device is
// reachable before returning.
func New(ctx context.Context, serial string, opts ...Option) (*Controller, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, core.ErrDeviceUnavailable.WithCause(err)
	}

	c := &Controller{
		serial:     serial,
		adbPath:    adbPath,
		cmdTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.serial == "" {
		c.serial, err = detectSerial(ctx, adbPath)
		if err != nil {
			return nil, core.ErrDeviceUnavailable.WithMessage("no device specified and auto-detect failed").WithCause(err)
		}
	}

	if err := c.IsReady(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Serial returns the device serial.
func (c *Controller) Serial() string {
	return c.serial
}

// IsReady probes the bridge connection within a short window.
func (c *Controller) IsReady(ctx context.Context) error {
	probe, cancel := context.WithTimeout(ctx, probeWindow)
	defer cancel()

	out, err := c.adb(probe, "get-state")
	if err != nil {
		return core.ErrDeviceUnavailable.WithMessage("device %s not reachable", c.serial).WithCause(err)
	}
	if strings.TrimSpace(out) != "device" {
		return core.ErrDeviceUnavailable.WithMessage("device %s in state %q", c.serial, strings.TrimSpace(out))
	}
	return nil
}

// Capture grabs the current screen as a decoded frame. exec-out streams the
// PNG straight over the bridge, so there is no on-device temp file to pull.
// A truncated transfer fails PNG decoding and surfaces as a CaptureError;
// a partially-written image is never returned.
func (c *Controller) Capture(ctx context.Context) (*core.Frame, error) {
	data, err := c.adbRaw(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, core.ErrCapture.WithCause(err)
	}
	frame, err := core.NewFrame(data, time.Now())
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"serial": c.serial, "bytes": len(data)}).Debug("captured frame")
	return frame, nil
}

// Tap issues a tap at screen coordinates.
func (c *Controller) Tap(ctx context.Context, x, y int) error {
	return c.input(ctx, "tap", fmt.Sprint(x), fmt.Sprint(y))
}

// Swipe issues a swipe between two points.
func (c *Controller) Swipe(ctx context.Context, x1, y1, x2, y2 int) error {
	return c.input(ctx, "swipe", fmt.Sprint(x1), fmt.Sprint(y1), fmt.Sprint(x2), fmt.Sprint(y2))
}

// PressHome resets to the launcher.
func (c *Controller) PressHome(ctx context.Context) error {
	return c.input(ctx, "keyevent", keyHome)
}

// PressBack sends the back key.
func (c *Controller) PressBack(ctx context.Context) error {
	return c.input(ctx, "keyevent", keyBack)
}

// StartActivity launches an explicit activity component.
func (c *Controller) StartActivity(ctx context.Context, component string) error {
	if _, err := c.adb(ctx, "shell", "am", "start", "-n", component); err != nil {
		return core.ErrAction.WithMessage("am start %s failed", component).WithCause(err)
	}
	return nil
}

// OpenMarket opens the Play Store detail page for a package via the
// market deep link.
func (c *Controller) OpenMarket(ctx context.Context, pkg string) error {
	uri := "market://details?id=" + pkg
	if _, err := c.adb(ctx, "shell", "am", "start", "-a", "android.intent.action.VIEW", "-d", uri); err != nil {
		return core.ErrAction.WithMessage("open market page for %s failed", pkg).WithCause(err)
	}
	return nil
}

// IsPackageInstalled queries the package manager. Package presence is the
// ground truth for install completion; the Play Store's final screen is the
// least reliable visual signal.
func (c *Controller) IsPackageInstalled(ctx context.Context, pkg string) (bool, error) {
	out, err := c.adb(ctx, "shell", "pm", "list", "packages", pkg)
	if err != nil {
		return false, core.ErrAction.WithMessage("pm list packages failed").WithCause(err)
	}
	return packageListed(out, pkg), nil
}

// DumpHierarchy captures the UI hierarchy XML via uiautomator. Used for
// postmortem artifacts and available to hierarchy-based classifiers.
func (c *Controller) DumpHierarchy(ctx context.Context) ([]byte, error) {
	const remote = "/sdcard/emuflow_ui.xml"
	if _, err := c.adb(ctx, "shell", "uiautomator", "dump", remote); err != nil {
		return nil, core.ErrCapture.WithMessage("uiautomator dump failed").WithCause(err)
	}
	data, err := c.adbRaw(ctx, "exec-out", "cat", remote)
	if err != nil {
		return nil, core.ErrCapture.WithMessage("reading UI dump failed").WithCause(err)
	}
	return data, nil
}

// input wraps `adb shell input ...` as a fire-and-forget action.
func (c *Controller) input(ctx context.Context, args ...string) error {
	shellArgs := append([]string{"shell", "input"}, args...)
	if _, err := c.adb(ctx, shellArgs...); err != nil {
		return core.ErrAction.WithMessage("input %s rejected", strings.Join(args, " ")).WithCause(err)
	}
	return nil
}

// adb executes an adb command and returns stdout as text.
func (c *Controller) adb(ctx context.Context, args ...string) (string, error) {
	out, err := c.adbRaw(ctx, args...)
	return string(out), err
}

// adbRaw executes an adb command and returns stdout bytes untouched.
// Binary-safe for exec-out screencap.
func (c *Controller) adbRaw(ctx context.Context, args ...string) ([]byte, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, c.cmdTimeout)
	defer cancel()

	cmdArgs := make([]string, 0, len(args)+2)
	if c.serial != "" {
		cmdArgs = append(cmdArgs, "-s", c.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	log.WithField("serial", c.serial).Debugf("adb %s", strings.Join(args, " "))

	cmd := exec.CommandContext(cmdCtx, c.adbPath, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}
	return stdout.Bytes(), nil
}

// detectSerial finds the first connected device serial.
func detectSerial(ctx context.Context, adbPath string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, probeWindow)
	defer cancel()

	out, err := exec.CommandContext(cmdCtx, adbPath, "devices").Output()
	if err != nil {
		return "", err
	}
	serials := parseDeviceList(string(out))
	if len(serials) == 0 {
		return "", fmt.Errorf("no connected devices found")
	}
	return serials[0], nil
}

// findADB locates the adb binary on PATH.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK platform-tools are installed")
}
