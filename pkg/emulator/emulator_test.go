package emulator

import "testing"

func TestParseList(t *testing.T) {
	out := `List of devices attached
emulator-5554          device product:sdk_gphone64_x86_64 model:Medium_Phone_API_36 device:emu64x transport_id:1
emulator-5556          offline transport_id:2

`
	got := parseList(out)
	if len(got) != 2 {
		t.Fatalf("parseList() returned %d entries, want 2", len(got))
	}

	if got[0].Serial != "emulator-5554" || !got[0].Running() {
		t.Errorf("first entry = %+v, want running emulator-5554", got[0])
	}
	if got[0].Model != "Medium_Phone_API_36" {
		t.Errorf("Model = %q, want Medium_Phone_API_36", got[0].Model)
	}
	if got[1].Serial != "emulator-5556" || got[1].Running() {
		t.Errorf("second entry = %+v, want offline emulator-5556", got[1])
	}
}

func TestParseList_Empty(t *testing.T) {
	if got := parseList("List of devices attached\n\n"); len(got) != 0 {
		t.Errorf("parseList() = %v, want empty", got)
	}
}
