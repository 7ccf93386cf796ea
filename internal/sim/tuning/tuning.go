package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Simulated time advances in fixed slices. Every requested jump must be
	// a whole multiple of the slice.
	TimeSliceSeconds int64 `yaml:"time_slice_seconds"`

	// Hard ceiling on cascade passes when local events queue further local
	// events. Exceeding it aborts the tick instead of looping forever.
	CascadeCeiling int `yaml:"cascade_ceiling"`

	// Poll interval for the shared event log, milliseconds.
	PollIntervalMs int `yaml:"poll_interval_ms"`

	Costs TaskCosts `yaml:"task_costs"`
}

// TaskCosts are the fixed per-work-unit time costs consumed by sub-tasks.
type TaskCosts struct {
	PreTriageSeconds  int64 `yaml:"pre_triage_seconds"`
	PorterTripSeconds int64 `yaml:"porter_trip_seconds"`
	PorterGroupSize   int   `yaml:"porter_group_size"`
	HealingSeconds    int64 `yaml:"healing_seconds"`
	EvacuationSeconds int64 `yaml:"evacuation_seconds"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  "1.0",
		TimeSliceSeconds: 60,
		CascadeCeiling:   10,
		PollIntervalMs:   500,
		Costs: TaskCosts{
			PreTriageSeconds:  60,
			PorterTripSeconds: 120,
			PorterGroupSize:   2,
			HealingSeconds:    300,
			EvacuationSeconds: 600,
		},
	}
}

func (t Tuning) Validate() error {
	if t.TimeSliceSeconds <= 0 {
		return fmt.Errorf("tuning: time_slice_seconds must be positive, got %d", t.TimeSliceSeconds)
	}
	if t.CascadeCeiling <= 0 {
		return fmt.Errorf("tuning: cascade_ceiling must be positive, got %d", t.CascadeCeiling)
	}
	if t.Costs.PorterGroupSize <= 0 {
		return fmt.Errorf("tuning: porter_group_size must be positive, got %d", t.Costs.PorterGroupSize)
	}
	return nil
}
