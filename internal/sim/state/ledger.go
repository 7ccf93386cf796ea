package state

import "fmt"

// Resource ledger: allocation of resource units to actions (reservation) and
// tasks (assignment). All queries are pure filters over the unit list; unit
// counts are tens, not thousands, so no indexes.
//
// A unit is either free on the waiting task, reserved by one pending action,
// or assigned to one working task. The ledger trusts callers to unreserve
// before assigning; CheckExclusive audits the invariant.

// Reserve marks the units as exclusively held by a pending action. Reserved
// units disappear from Free queries until unreserved.
func (s *Snapshot) Reserve(ids []ResourceID, actionID ActionID) {
	for _, id := range ids {
		if r := s.ResourceByID(id); r != nil {
			r.ReservedBy = actionID
		}
	}
}

// Unreserve clears reservations on the given units.
func (s *Snapshot) Unreserve(ids []ResourceID) {
	for _, id := range ids {
		if r := s.ResourceByID(id); r != nil {
			r.ReservedBy = 0
		}
	}
}

// UnreserveAllFor releases every unit held by the given action, returning the
// released ids in unit order.
func (s *Snapshot) UnreserveAllFor(actionID ActionID) []ResourceID {
	var out []ResourceID
	for _, r := range s.Resources {
		if r.ReservedBy == actionID {
			r.ReservedBy = 0
			out = append(out, r.ID)
		}
	}
	return out
}

// AssignToTask sets the units' current task. Assigning to the waiting task is
// the default resting state.
func (s *Snapshot) AssignToTask(ids []ResourceID, taskID TaskID) {
	for _, id := range ids {
		if r := s.ResourceByID(id); r != nil {
			r.TaskID = taskID
		}
	}
}

// ReleaseFromTask moves every unit on the task back to the waiting pool and
// returns their ids in unit order.
func (s *Snapshot) ReleaseFromTask(taskID TaskID) []ResourceID {
	waiting := s.WaitingTask()
	var out []ResourceID
	for _, r := range s.Resources {
		if r.TaskID == taskID {
			if waiting != nil {
				r.TaskID = waiting.ID
			} else {
				r.TaskID = 0
			}
			r.CumulatedUnusedTime = 0
			out = append(out, r.ID)
		}
	}
	return out
}

// FreeUnits returns unreserved units of the given type resting on the waiting
// task at the location. Empty type or location matches any.
func (s *Snapshot) FreeUnits(typ ResourceType, loc LocationID) []*ResourceUnit {
	waiting := s.WaitingTask()
	var waitingID TaskID
	if waiting != nil {
		waitingID = waiting.ID
	}
	var out []*ResourceUnit
	for _, r := range s.Resources {
		if r.ReservedBy != 0 {
			continue
		}
		if r.TaskID != waitingID && r.TaskID != 0 {
			continue
		}
		if typ != "" && r.Type != typ {
			continue
		}
		if loc != "" && r.Location != loc {
			continue
		}
		out = append(out, r)
	}
	return out
}

// UnitsOnTask returns the units currently assigned to the task, in unit order.
func (s *Snapshot) UnitsOnTask(taskID TaskID) []*ResourceUnit {
	var out []*ResourceUnit
	for _, r := range s.Resources {
		if r.TaskID == taskID {
			out = append(out, r)
		}
	}
	return out
}

// UnitsOnTaskAt restricts UnitsOnTask to one location.
func (s *Snapshot) UnitsOnTaskAt(taskID TaskID, loc LocationID) []*ResourceUnit {
	var out []*ResourceUnit
	for _, r := range s.Resources {
		if r.TaskID == taskID && r.Location == loc {
			out = append(out, r)
		}
	}
	return out
}

// CheckExclusive verifies no unit is both reserved and assigned to a working
// task. Used by tests and the replay verifier.
func (s *Snapshot) CheckExclusive() error {
	waiting := s.WaitingTask()
	var waitingID TaskID
	if waiting != nil {
		waitingID = waiting.ID
	}
	for _, r := range s.Resources {
		if r.ReservedBy != 0 && r.TaskID != 0 && r.TaskID != waitingID {
			return fmt.Errorf("resource %d reserved by action %d while assigned to task %d",
				r.ID, r.ReservedBy, r.TaskID)
		}
	}
	return nil
}
