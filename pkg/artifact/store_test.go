package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emulab-dev/emuflow/pkg/core"
)

func TestStore_SaveScreenshotNaming(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Unix(1756600000, 0)
	path, err := store.SaveScreenshot("install", ts, []byte("png-bytes"))
	if err != nil {
		t.Fatalf("SaveScreenshot() error: %v", err)
	}

	if filepath.Base(path) != "install_1756600000.png" {
		t.Errorf("filename = %s, want install_1756600000.png", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestStore_SaveDebugFrameOverwrites(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.SaveDebugFrame([]byte("first")); err != nil {
		t.Fatal(err)
	}
	path, err := store.SaveDebugFrame([]byte("second"))
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(path) != DebugFrameName {
		t.Errorf("filename = %s, want %s", filepath.Base(path), DebugFrameName)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("content = %q, want the later frame", data)
	}
}

func TestStore_SaveHierarchyFixedName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	path, err := store.SaveHierarchy([]byte("<hierarchy/>"))
	if err != nil {
		t.Fatalf("SaveHierarchy() error: %v", err)
	}
	if filepath.Base(path) != HierarchyName {
		t.Errorf("filename = %s, want %s", filepath.Base(path), HierarchyName)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "<hierarchy/>" {
		t.Errorf("content = %q", data)
	}
}

func TestStore_SaveResultRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	run := core.NewFlowRun("install", "emulator-5554", time.Now())
	run.ActionsIssued = 6
	run.Finalize(core.OutcomeSuccess, "", time.Now())

	path, err := store.SaveResult(run)
	if err != nil {
		t.Fatalf("SaveResult() error: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "install_") || !strings.HasSuffix(path, ".json") {
		t.Errorf("result filename = %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}
	if decoded["outcome"] != "SUCCESS" {
		t.Errorf("outcome = %v, want SUCCESS", decoded["outcome"])
	}
	if decoded["actionsIssued"] != float64(6) {
		t.Errorf("actionsIssued = %v, want 6", decoded["actionsIssued"])
	}
}

func TestStore_NoPartialArtifacts(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.SaveScreenshot("capture", time.Now(), []byte("data")); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".emuflow-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}
