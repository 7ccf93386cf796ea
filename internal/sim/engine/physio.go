package engine

import (
	"hash/fnv"

	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// defaultPhysio is the built-in stand-in for the external physiology model:
// state advance is a no-op and classification is a deterministic function of
// the patient id, so exercises without a physiology plugin still replay
// bit-identically.
type defaultPhysio struct{}

func (defaultPhysio) Advance(p *state.Patient, elapsedSeconds int64) {}

func (defaultPhysio) Classify(p *state.Patient) state.TriageCategory {
	h := fnv.New32a()
	h.Write([]byte(p.ID))
	switch h.Sum32() % 4 {
	case 0:
		return state.TriageImmediate
	case 1:
		return state.TriageUrgent
	case 2:
		return state.TriageNonUrgent
	default:
		return state.TriageDead
	}
}
