package state

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// Digest hashes the snapshot's observable state in a fixed field order.
// Replaying the same event log must reproduce identical digests at every
// sequence number.
func (s *Snapshot) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, s.Seq)
	digestWriteI64(h, &tmp, s.Time)
	digestWriteU64(h, &tmp, s.LastEventID)
	digestWriteU64(h, &tmp, uint64(s.NextActionID))
	digestWriteU64(h, &tmp, uint64(s.NextActorID))
	digestWriteU64(h, &tmp, uint64(s.NextResourceID))
	digestWriteU64(h, &tmp, uint64(s.NextSubTaskID))
	digestWriteU64(h, &tmp, s.NextMessageID)

	s.digestActions(h, &tmp, s.Actions)
	s.digestActions(h, &tmp, s.CancelledActions)
	s.digestTasks(h, &tmp)
	s.digestActors(h, &tmp)
	s.digestLocations(h, &tmp)
	s.digestResources(h, &tmp)
	s.digestArrivals(h, &tmp)
	s.digestPatients(h, &tmp)
	s.digestFlags(h, &tmp)
	s.digestRadio(h, &tmp)
	s.digestFrame(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (s *Snapshot) digestActions(h hash.Hash, tmp *[8]byte, actions []*Action) {
	digestWriteU64(h, tmp, uint64(len(actions)))
	for _, a := range actions {
		digestWriteU64(h, tmp, uint64(a.ID))
		writeString(h, tmp, a.TemplateID)
		digestWriteU64(h, tmp, uint64(a.Owner))
		digestWriteI64(h, tmp, a.StartTime)
		digestWriteI64(h, tmp, a.Duration)
		writeString(h, tmp, string(a.Status))
		writeStringMap(h, tmp, a.Params)
	}
}

func (s *Snapshot) digestTasks(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.Tasks)))
	for _, t := range s.Tasks {
		digestWriteU64(h, tmp, uint64(t.ID))
		writeString(h, tmp, string(t.Kind))
		writeString(h, tmp, string(t.Role))
		writeString(h, tmp, string(t.Location))
		writeString(h, tmp, string(t.Target))
		writeString(h, tmp, string(t.Status))

		ids := make([]SubTaskID, 0, len(t.SubTasks))
		for id := range t.SubTasks {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		digestWriteU64(h, tmp, uint64(len(ids)))
		for _, id := range ids {
			st := t.SubTasks[id]
			digestWriteU64(h, tmp, uint64(st.ID))
			digestWriteU64(h, tmp, uint64(len(st.Resources)))
			for _, r := range st.Resources {
				digestWriteU64(h, tmp, uint64(r))
			}
			writeString(h, tmp, string(st.PatientID))
			writeString(h, tmp, string(st.Target))
			digestWriteI64(h, tmp, st.CumulatedTime)
			h.Write([]byte{boolByte(st.Returning)})
		}
	}
}

func (s *Snapshot) digestActors(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.Actors)))
	for _, a := range s.Actors {
		digestWriteU64(h, tmp, uint64(a.ID))
		writeString(h, tmp, string(a.Role))
		writeString(h, tmp, string(a.Location))
		writeString(h, tmp, string(a.Symbolic))
		h.Write([]byte{boolByte(a.OnSite)})
	}
}

func (s *Snapshot) digestLocations(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.Locations)))
	for _, l := range s.Locations {
		writeString(h, tmp, string(l.ID))
		writeString(h, tmp, l.Name)
		writeString(h, tmp, string(l.Status))
		digestWriteU64(h, tmp, uint64(l.BuiltBy))
	}
}

func (s *Snapshot) digestResources(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.Resources)))
	for _, r := range s.Resources {
		digestWriteU64(h, tmp, uint64(r.ID))
		writeString(h, tmp, string(r.Type))
		writeString(h, tmp, string(r.Location))
		digestWriteU64(h, tmp, uint64(r.TaskID))
		digestWriteU64(h, tmp, uint64(r.ReservedBy))
		digestWriteI64(h, tmp, r.CumulatedUnusedTime)
	}
}

func (s *Snapshot) digestArrivals(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.PendingArrivals)))
	for _, a := range s.PendingArrivals {
		writeString(h, tmp, a.ContainerID)
		writeString(h, tmp, string(a.At))
		digestWriteI64(h, tmp, a.DueTime)
		digestWriteU64(h, tmp, uint64(a.RequestedBy))
	}
}

func (s *Snapshot) digestPatients(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.Patients)))
	for _, p := range s.Patients {
		writeString(h, tmp, string(p.ID))
		writeString(h, tmp, string(p.Location))
		writeString(h, tmp, string(p.Triage))
		h.Write([]byte{boolByte(p.Treated)})
		h.Write([]byte{boolByte(p.Evacuated)})
	}
}

func (s *Snapshot) digestFlags(h hash.Hash, tmp *[8]byte) {
	keys := make([]string, 0, len(s.Flags))
	for k, v := range s.Flags {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		writeString(h, tmp, k)
	}
}

func (s *Snapshot) digestRadio(h hash.Hash, tmp *[8]byte) {
	digestWriteU64(h, tmp, uint64(len(s.RadioLog)))
	for _, m := range s.RadioLog {
		digestWriteU64(h, tmp, m.ID)
		digestWriteI64(h, tmp, m.Time)
		digestWriteU64(h, tmp, uint64(m.Sender))
		writeString(h, tmp, string(m.Channel))
		writeString(h, tmp, m.Text)
		h.Write([]byte{boolByte(m.System)})
	}
}

func (s *Snapshot) digestFrame(h hash.Hash, tmp *[8]byte) {
	digestWriteI64(h, tmp, s.Frame.CurrentTime)
	ids := make([]ActorID, 0, len(s.Frame.Readiness))
	for id := range s.Frame.Readiness {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	digestWriteU64(h, tmp, uint64(len(ids)))
	for _, id := range ids {
		digestWriteU64(h, tmp, uint64(id))
		digestWriteI64(h, tmp, int64(s.Frame.Readiness[id]))
	}
}

func digestWriteU64(h hash.Hash, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func writeString(h hash.Hash, tmp *[8]byte, s string) {
	digestWriteU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func writeStringMap(h hash.Hash, tmp *[8]byte, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	digestWriteU64(h, tmp, uint64(len(keys)))
	for _, k := range keys {
		writeString(h, tmp, k)
		writeString(h, tmp, m[k])
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
