package state

import "testing"

func exerciseSnapshot() *Snapshot {
	s := NewSnapshot()
	s.Locations = append(s.Locations,
		&MapLocation{ID: "CHANTIER", Name: "Incident site", Status: BuildReady},
		&MapLocation{ID: "PMA", Name: "Casualty collection point", Status: BuildSelecting},
	)
	s.Actors = append(s.Actors, &Actor{ID: 1, Role: RoleAL, Location: "CHANTIER", Symbolic: "CHANTIER", OnSite: true})
	s.NextActorID = 2
	s.Tasks = append(s.Tasks,
		&Task{ID: 1, Kind: TaskWaiting, Location: "CHANTIER", SubTasks: map[SubTaskID]*SubTask{}},
		&Task{ID: 2, Kind: TaskPreTriage, Role: RoleAL, Location: "CHANTIER", Status: TaskUninitialized, SubTasks: map[SubTaskID]*SubTask{}},
	)
	s.Resources = append(s.Resources,
		&ResourceUnit{ID: 1, Type: "SECOURISTE", Location: "CHANTIER", TaskID: 1},
		&ResourceUnit{ID: 2, Type: "SECOURISTE", Location: "CHANTIER", TaskID: 1},
		&ResourceUnit{ID: 3, Type: "AMBULANCE", Location: "CHANTIER", TaskID: 1},
	)
	s.NextResourceID = 4
	s.Patients = append(s.Patients,
		&Patient{ID: "P01", Location: "CHANTIER"},
		&Patient{ID: "P02", Location: "CHANTIER", Triage: TriageUrgent},
	)
	s.Frame.Readiness[1] = 0
	return s
}

func TestClone_SharesNoMutableState(t *testing.T) {
	orig := exerciseSnapshot()
	orig.Flags["PMA_BUILT"] = true
	orig.Actions = append(orig.Actions, &Action{
		ID: 1, TemplateID: "build_pma", Owner: 1, Duration: 300,
		Status: ActionOnGoing, Params: map[string]string{"location": "PMA"},
	})
	before := orig.Digest()

	cp := orig.Clone()
	cp.Time += 60
	cp.Actors[0].Location = "PMA"
	cp.Resources[0].TaskID = 2
	cp.Patients[0].Triage = TriageImmediate
	cp.Actions[0].Params["location"] = "PC"
	cp.Flags["CASU_INFORMED"] = true
	cp.Frame.Readiness[1] = 5
	cp.Tasks[1].SubTasks[1] = &SubTask{ID: 1, Resources: []ResourceID{1}}
	cp.PendingArrivals = append(cp.PendingArrivals, PendingArrival{ContainerID: "SMUR", At: "CHANTIER", DueTime: 960})
	cp.AppendRadio(1, ChannelActors, "hello", false)

	if got := orig.Digest(); got != before {
		t.Fatalf("mutating the clone changed the original digest")
	}
	if orig.Actors[0].Location != "CHANTIER" || orig.Patients[0].Triage != TriageNone {
		t.Fatalf("clone shares entity pointers with the original")
	}
	if len(orig.Tasks[1].SubTasks) != 0 || len(orig.RadioLog) != 0 {
		t.Fatalf("clone shares task or radio storage with the original")
	}
}

func TestCreateNext_BumpsSeqAndRecordsEvent(t *testing.T) {
	s := exerciseSnapshot()
	s.Seq = 7
	n := s.CreateNext(42)
	if n.Seq != 8 || n.LastEventID != 42 {
		t.Fatalf("seq=%d last=%d, want 8/42", n.Seq, n.LastEventID)
	}
	if s.Seq != 7 {
		t.Fatalf("CreateNext mutated the receiver")
	}
}

func TestDigest_SensitiveToObservableState(t *testing.T) {
	base := exerciseSnapshot().Digest()

	mutations := map[string]func(*Snapshot){
		"time":          func(s *Snapshot) { s.Time = 60 },
		"actor moved":   func(s *Snapshot) { s.Actors[0].Location = "PMA" },
		"triage":        func(s *Snapshot) { s.Patients[0].Triage = TriageDead },
		"treated":       func(s *Snapshot) { s.Patients[1].Treated = true },
		"task target":   func(s *Snapshot) { s.Tasks[1].Target = "PMA" },
		"unit effort":   func(s *Snapshot) { s.Resources[0].CumulatedUnusedTime = 60 },
		"flag":          func(s *Snapshot) { s.Flags["PMA_BUILT"] = true },
		"readiness":     func(s *Snapshot) { s.Frame.Readiness[1] = 1 },
		"radio message": func(s *Snapshot) { s.AppendRadio(1, ChannelCASU, "x", true) },
		"arrival due": func(s *Snapshot) {
			s.PendingArrivals = append(s.PendingArrivals, PendingArrival{ContainerID: "SMUR", At: "CHANTIER", DueTime: 960})
		},
	}
	for name, mutate := range mutations {
		s := exerciseSnapshot()
		mutate(s)
		if s.Digest() == base {
			t.Errorf("%s: digest unchanged", name)
		}
	}

	if exerciseSnapshot().Digest() != base {
		t.Fatalf("digest is not stable across identical snapshots")
	}
}

func TestAppendRadio_AssignsMonotonicIDs(t *testing.T) {
	s := exerciseSnapshot()
	s.Time = 120
	s.AppendRadio(1, ChannelActors, "first", false)
	s.AppendRadio(0, ChannelCASU, "second", true)

	if len(s.RadioLog) != 2 {
		t.Fatalf("radio log length = %d", len(s.RadioLog))
	}
	if s.RadioLog[0].ID != 1 || s.RadioLog[1].ID != 2 {
		t.Fatalf("ids = %d,%d, want 1,2", s.RadioLog[0].ID, s.RadioLog[1].ID)
	}
	if s.RadioLog[1].Time != 120 || !s.RadioLog[1].System {
		t.Fatalf("second message stamped wrong: %+v", s.RadioLog[1])
	}
}
