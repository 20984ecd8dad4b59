// Package emulator enumerates running Android emulators and waits for
// them to finish booting.
package emulator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Emulator describes one entry from `adb devices -l`.
type Emulator struct {
	Serial string
	State  string // device, offline, unauthorized
	Model  string
}

// Running reports whether the entry is usable.
func (e Emulator) Running() bool {
	return e.State == "device"
}

// List enumerates attached devices and emulators.
func List(ctx context.Context) ([]Emulator, error) {
	adbPath, err := exec.LookPath("adb")
	if err != nil {
		return nil, fmt.Errorf("adb not found in PATH: %w", err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(cmdCtx, adbPath, "devices", "-l").Output()
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	return parseList(string(out)), nil
}

// WaitForBoot polls the emulator's boot-completed property until it reads 1
// or ctx expires. A freshly started AVD shows up in `adb devices` well
// before the launcher is usable.
func WaitForBoot(ctx context.Context, serial string) error {
	adbPath, err := exec.LookPath("adb")
	if err != nil {
		return fmt.Errorf("adb not found in PATH: %w", err)
	}

	log.WithField("serial", serial).Info("waiting for emulator boot")
	probe := func() error {
		out, err := exec.CommandContext(ctx, adbPath, "-s", serial, "shell", "getprop", "sys.boot_completed").Output()
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(out)) != "1" {
			return fmt.Errorf("device %s still booting", serial)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.NewConstantBackOff(2*time.Second), ctx)
	if err := backoff.Retry(probe, bo); err != nil {
		return fmt.Errorf("waiting for %s to boot: %w", serial, err)
	}
	return nil
}

// parseList extracts emulator entries from `adb devices -l` output.
func parseList(out string) []Emulator {
	var emulators []Emulator
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		e := Emulator{Serial: fields[0], State: fields[1]}
		for _, f := range fields[2:] {
			if strings.HasPrefix(f, "model:") {
				e.Model = strings.TrimPrefix(f, "model:")
			}
		}
		emulators = append(emulators, e)
	}
	return emulators
}
