// Package artifact persists flow outputs for the surrounding layers to
// pick up: screenshots, the postmortem debug frame, and structured run
// results.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// DebugFrameName is the fixed filename the last classified frame of a
// failed run is written under.
const DebugFrameName = "last_frame.png"

// HierarchyName is the fixed filename for the UI hierarchy dump taken
// after a failed run.
const HierarchyName = "last_hierarchy.xml"

// Store writes artifacts under one directory.
type Store struct {
	dir string
}

// NewStore creates the output directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's base directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveScreenshot persists a captured image as {flow-name}_{timestamp}.png
// and returns its path.
func (s *Store) SaveScreenshot(flowName string, ts time.Time, data []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.png", flowName, ts.Unix()))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	log.WithField("path", path).Info("screenshot saved")
	return path, nil
}

// SaveDebugFrame persists the last classified frame under the fixed debug
// name, overwriting the previous run's frame.
func (s *Store) SaveDebugFrame(data []byte) (string, error) {
	path := filepath.Join(s.dir, DebugFrameName)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveHierarchy persists the UI hierarchy XML under the fixed debug name,
// overwriting the previous run's dump.
func (s *Store) SaveHierarchy(data []byte) (string, error) {
	path := filepath.Join(s.dir, HierarchyName)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveResult persists the structured run record as JSON.
func (s *Store) SaveResult(run *core.FlowRun) (string, error) {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding run result: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", run.Flow, run.ID))
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// writeAtomic writes via a temp file and rename, so a reader polling the
// directory never sees a partially-written artifact.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".emuflow-*")
	if err != nil {
		return fmt.Errorf("creating temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting artifact mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing artifact: %w", err)
	}
	return nil
}
