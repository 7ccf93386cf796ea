package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ExerciseFile(t *testing.T) {
	got, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.TimeSliceSeconds != 60 {
		t.Fatalf("time slice = %d, want 60", got.TimeSliceSeconds)
	}
	if got.ProtocolVersion == "" {
		t.Fatalf("no protocol version")
	}
	if got.Costs.PorterGroupSize != 2 {
		t.Fatalf("porter group size = %d, want 2", got.Costs.PorterGroupSize)
	}
}

func TestDefaults_PassValidation(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if d.TimeSliceSeconds != 60 || d.CascadeCeiling != 10 {
		t.Fatalf("unexpected defaults: %+v", d)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	zeroSlice := Defaults()
	zeroSlice.TimeSliceSeconds = 0
	if err := zeroSlice.Validate(); err == nil {
		t.Fatalf("zero time slice accepted")
	}

	negCeiling := Defaults()
	negCeiling.CascadeCeiling = -1
	if err := negCeiling.Validate(); err == nil {
		t.Fatalf("negative cascade ceiling accepted")
	}

	zeroGroup := Defaults()
	zeroGroup.Costs.PorterGroupSize = 0
	if err := zeroGroup.Validate(); err == nil {
		t.Fatalf("zero porter group accepted")
	}
}

func TestLoad_InvalidFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("time_slice_seconds: -60\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("negative slice loaded")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file loaded")
	}
}
