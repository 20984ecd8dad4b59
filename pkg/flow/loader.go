package flow

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// document is the YAML shape of a flow file. Timeouts are milliseconds.
type document struct {
	Name                  string    `yaml:"name"`
	Success               string    `yaml:"success"`
	Fallback              string    `yaml:"fallback"`
	StepBudget            int       `yaml:"stepBudget"`
	PollIntervalMs        int       `yaml:"pollIntervalMs"`
	MaxConsecutiveUnknown int       `yaml:"maxConsecutiveUnknown"`
	RequirePackage        bool      `yaml:"requirePackage"`
	InstallGroundTruth    bool      `yaml:"installGroundTruth"`
	Rules                 []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	State      string   `yaml:"state"`
	Action     Action   `yaml:"action"`
	TimeoutMs  int      `yaml:"timeoutMs"`
	MaxRetries int      `yaml:"maxRetries"`
	Next       string   `yaml:"next"`
	Fallbacks  []string `yaml:"fallbacks"`
}

// Load reads and validates a flow definition from a YAML file. Operators
// use this to tune coordinates, timeouts, and dialog rows without a
// rebuild; the builtins remain the defaults.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- operator-provided flow file
	if err != nil {
		return nil, fmt.Errorf("reading flow file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing flow file %s: %w", path, err)
	}

	def := &Definition{
		Name:                  doc.Name,
		Success:               core.UIState(doc.Success),
		Failure:               core.StateFlowFailed,
		Fallback:              core.UIState(doc.Fallback),
		StepBudget:            doc.StepBudget,
		PollInterval:          time.Duration(doc.PollIntervalMs) * time.Millisecond,
		MaxConsecutiveUnknown: doc.MaxConsecutiveUnknown,
		RequirePackage:        doc.RequirePackage,
		InstallGroundTruth:    doc.InstallGroundTruth,
	}
	for _, rd := range doc.Rules {
		rule := Rule{
			State:      core.UIState(rd.State),
			Action:     rd.Action,
			Timeout:    time.Duration(rd.TimeoutMs) * time.Millisecond,
			MaxRetries: rd.MaxRetries,
			Next:       core.UIState(rd.Next),
		}
		for _, fb := range rd.Fallbacks {
			rule.Fallbacks = append(rule.Fallbacks, core.UIState(fb))
		}
		def.Rules = append(def.Rules, rule)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}
