package state

// Snapshot is the full simulation state at one simulated instant. It is the
// only place state lives: every event application deep-clones the latest
// snapshot, mutates the clone, and publishes it. A snapshot that has been
// exposed to a reader is never mutated again.
type Snapshot struct {
	// Seq increases by one per published snapshot.
	Seq uint64
	// Time is simulated seconds since game start.
	Time int64
	// LastEventID is the id of the global event whose application produced
	// this snapshot.
	LastEventID uint64

	Actions          []*Action
	CancelledActions []*Action
	Tasks            []*Task
	Actors           []*Actor
	Locations        []*MapLocation
	Resources        []*ResourceUnit
	Containers       []ContainerDef
	PendingArrivals  []PendingArrival
	Patients         []*Patient
	Flags            map[string]bool
	RadioLog         []RadioMessage

	Frame TimeFrame

	// Id counters live in the snapshot so replay regenerates identical ids.
	NextActionID   ActionID
	NextActorID    ActorID
	NextResourceID ResourceID
	NextSubTaskID  SubTaskID
	NextMessageID  uint64
}

// NewSnapshot returns the empty snapshot at time zero.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Flags:          map[string]bool{},
		Frame:          TimeFrame{Readiness: map[ActorID]int{}},
		NextActionID:   1,
		NextActorID:    1,
		NextResourceID: 1,
		NextSubTaskID:  1,
		NextMessageID:  1,
	}
}

// CreateNext deep-clones the snapshot for the application of the given
// global event, bumping the sequence counter.
func (s *Snapshot) CreateNext(lastEventID uint64) *Snapshot {
	n := s.Clone()
	n.Seq = s.Seq + 1
	n.LastEventID = lastEventID
	return n
}

// Clone produces a deep copy sharing no mutable data with the receiver.
func (s *Snapshot) Clone() *Snapshot {
	n := &Snapshot{
		Seq:            s.Seq,
		Time:           s.Time,
		LastEventID:    s.LastEventID,
		NextActionID:   s.NextActionID,
		NextActorID:    s.NextActorID,
		NextResourceID: s.NextResourceID,
		NextSubTaskID:  s.NextSubTaskID,
		NextMessageID:  s.NextMessageID,
	}

	n.Actions = cloneActions(s.Actions)
	n.CancelledActions = cloneActions(s.CancelledActions)

	n.Tasks = make([]*Task, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		n.Tasks = append(n.Tasks, t.clone())
	}

	n.Actors = make([]*Actor, 0, len(s.Actors))
	for _, a := range s.Actors {
		cp := *a
		n.Actors = append(n.Actors, &cp)
	}

	n.Locations = make([]*MapLocation, 0, len(s.Locations))
	for _, l := range s.Locations {
		cp := *l
		n.Locations = append(n.Locations, &cp)
	}

	n.Resources = make([]*ResourceUnit, 0, len(s.Resources))
	for _, r := range s.Resources {
		cp := *r
		n.Resources = append(n.Resources, &cp)
	}

	n.Containers = make([]ContainerDef, 0, len(s.Containers))
	for _, c := range s.Containers {
		cp := c
		cp.Resources = make(map[ResourceType]int, len(c.Resources))
		for k, v := range c.Resources {
			cp.Resources[k] = v
		}
		n.Containers = append(n.Containers, cp)
	}

	n.PendingArrivals = append([]PendingArrival(nil), s.PendingArrivals...)

	n.Patients = make([]*Patient, 0, len(s.Patients))
	for _, p := range s.Patients {
		cp := *p
		n.Patients = append(n.Patients, &cp)
	}

	n.Flags = make(map[string]bool, len(s.Flags))
	for k, v := range s.Flags {
		n.Flags[k] = v
	}

	n.RadioLog = make([]RadioMessage, len(s.RadioLog))
	copy(n.RadioLog, s.RadioLog)

	n.Frame = TimeFrame{
		CurrentTime: s.Frame.CurrentTime,
		Readiness:   make(map[ActorID]int, len(s.Frame.Readiness)),
	}
	for k, v := range s.Frame.Readiness {
		n.Frame.Readiness[k] = v
	}

	return n
}

func cloneActions(in []*Action) []*Action {
	out := make([]*Action, 0, len(in))
	for _, a := range in {
		cp := *a
		cp.Params = make(map[string]string, len(a.Params))
		for k, v := range a.Params {
			cp.Params[k] = v
		}
		out = append(out, &cp)
	}
	return out
}

func (t *Task) clone() *Task {
	cp := *t
	cp.SubTasks = make(map[SubTaskID]*SubTask, len(t.SubTasks))
	for id, st := range t.SubTasks {
		s := *st
		s.Resources = append([]ResourceID(nil), st.Resources...)
		cp.SubTasks[id] = &s
	}
	return &cp
}

// Lookup helpers. Linear scans: entity counts are small (tens) and the scan
// keeps iteration order explicit.

func (s *Snapshot) ActorByID(id ActorID) *Actor {
	for _, a := range s.Actors {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Snapshot) ActorsByRole(role Role) []*Actor {
	var out []*Actor
	for _, a := range s.Actors {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// OnSiteActors returns the actors participating in the time-forward barrier,
// in creation order.
func (s *Snapshot) OnSiteActors() []*Actor {
	var out []*Actor
	for _, a := range s.Actors {
		if a.OnSite {
			out = append(out, a)
		}
	}
	return out
}

func (s *Snapshot) ActionByID(id ActionID) *Action {
	for _, a := range s.Actions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// OpenActionBy finds the still-open action matching a cancellation event's
// (template, owner, start time) triple. Nil when no live action matches.
func (s *Snapshot) OpenActionBy(templateID string, owner ActorID, startTime int64) *Action {
	for _, a := range s.Actions {
		if a.TemplateID == templateID && a.Owner == owner && a.StartTime == startTime &&
			(a.Status == ActionUninitialized || a.Status == ActionOnGoing) {
			return a
		}
	}
	return nil
}

func (s *Snapshot) TaskByID(id TaskID) *Task {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (s *Snapshot) TaskByKindAt(kind TaskKind, loc LocationID) *Task {
	for _, t := range s.Tasks {
		if t.Kind == kind && t.Location == loc {
			return t
		}
	}
	return nil
}

// WaitingTask is the idle pool every free resource rests on.
func (s *Snapshot) WaitingTask() *Task {
	for _, t := range s.Tasks {
		if t.Kind == TaskWaiting {
			return t
		}
	}
	return nil
}

func (s *Snapshot) LocationByID(id LocationID) *MapLocation {
	for _, l := range s.Locations {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (s *Snapshot) PatientByID(id PatientID) *Patient {
	for _, p := range s.Patients {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Snapshot) ResourceByID(id ResourceID) *ResourceUnit {
	for _, r := range s.Resources {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (s *Snapshot) ContainerByID(id string) (ContainerDef, bool) {
	for _, c := range s.Containers {
		if c.ID == id {
			return c, true
		}
	}
	return ContainerDef{}, false
}

// AppendRadio appends a radio message, assigning the next message id.
func (s *Snapshot) AppendRadio(sender ActorID, ch Channel, text string, system bool) {
	s.RadioLog = append(s.RadioLog, RadioMessage{
		ID:      s.NextMessageID,
		Time:    s.Time,
		Sender:  sender,
		Channel: ch,
		Text:    text,
		System:  system,
	})
	s.NextMessageID++
}
