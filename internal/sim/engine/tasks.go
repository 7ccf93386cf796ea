package engine

import (
	"sort"

	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Task lifecycle and sub-task scheduling. Every time slice polls each task:
// a task with no assigned resources pauses; one with at least one resource
// runs its kind-specific progress routine. Progress routines share a shape:
// drop sub-tasks whose resources were pulled away, greedily group free
// resources with unserved work items, advance the live sub-tasks and emit
// completion effects once the fixed work cost is covered.
//
// Resource effort accumulates per unit (CumulatedUnusedTime += slice); a
// work unit is consumed when the group's slowest member covers the cost,
// with the remainder carried forward. This keeps results independent of how
// a time jump was chunked, provided the slice divides the jump.

func progressAllTasks(ctx *applyCtx, slice int64) {
	for _, t := range ctx.snap.Tasks {
		progressTask(ctx, t, slice)
	}
}

func progressTask(ctx *applyCtx, t *state.Task, slice int64) {
	if t.Kind == state.TaskWaiting {
		return
	}
	if t.Status == state.TaskCompleted || t.Status == state.TaskCancelled {
		return
	}

	dropStaleSubTasks(ctx, t)

	assigned := ctx.snap.UnitsOnTask(t.ID)
	if len(assigned) == 0 {
		// Paused means the task ran and lost its staff; a task that was never
		// staffed stays Uninitialized.
		if t.Status == state.TaskOnGoing {
			t.Status = state.TaskPaused
		}
		return
	}
	if t.Status == state.TaskUninitialized || t.Status == state.TaskPaused {
		t.Status = state.TaskOnGoing
	}

	switch t.Kind {
	case state.TaskPreTriage:
		progressPreTriage(ctx, t, slice)
	case state.TaskPorter:
		progressPorter(ctx, t, slice)
	case state.TaskHealing:
		progressHealing(ctx, t, slice)
	case state.TaskEvacuation:
		progressEvacuation(ctx, t, slice)
	}
}

// dropStaleSubTasks abandons sub-tasks whose resources were reassigned away
// or whose work item vanished. Work in progress is lost, not paused:
// remaining members return to the groupable pool with their accumulated time
// reset.
func dropStaleSubTasks(ctx *applyCtx, t *state.Task) {
	for _, id := range sortedSubTaskIDs(t) {
		st := t.SubTasks[id]
		stale := false
		for _, rid := range st.Resources {
			r := ctx.snap.ResourceByID(rid)
			if r == nil || r.TaskID != t.ID {
				stale = true
				break
			}
		}
		if !stale && st.PatientID != "" {
			p := ctx.snap.PatientByID(st.PatientID)
			if p == nil {
				stale = true
			}
		}
		if !stale {
			continue
		}
		for _, rid := range st.Resources {
			if r := ctx.snap.ResourceByID(rid); r != nil && r.TaskID == t.ID {
				r.CumulatedUnusedTime = 0
			}
		}
		delete(t.SubTasks, id)
	}
}

func sortedSubTaskIDs(t *state.Task) []state.SubTaskID {
	ids := make([]state.SubTaskID, 0, len(t.SubTasks))
	for id := range t.SubTasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ungroupedUnits returns the task's assigned units not yet in a sub-task, in
// unit order.
func ungroupedUnits(ctx *applyCtx, t *state.Task) []*state.ResourceUnit {
	busy := map[state.ResourceID]bool{}
	for _, st := range t.SubTasks {
		for _, rid := range st.Resources {
			busy[rid] = true
		}
	}
	var out []*state.ResourceUnit
	for _, r := range ctx.snap.UnitsOnTask(t.ID) {
		if !busy[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

func claimedPatients(t *state.Task) map[state.PatientID]bool {
	out := map[state.PatientID]bool{}
	for _, st := range t.SubTasks {
		if st.PatientID != "" {
			out[st.PatientID] = true
		}
	}
	return out
}

// accumulate advances every member's accumulator by the slice and returns
// the group clock: the slowest member's accumulated time.
func accumulate(ctx *applyCtx, st *state.SubTask, slice int64) int64 {
	clock := int64(-1)
	for _, rid := range st.Resources {
		r := ctx.snap.ResourceByID(rid)
		if r == nil {
			continue
		}
		r.CumulatedUnusedTime += slice
		if clock < 0 || r.CumulatedUnusedTime < clock {
			clock = r.CumulatedUnusedTime
		}
	}
	if clock < 0 {
		return 0
	}
	return clock
}

func groupClock(ctx *applyCtx, st *state.SubTask) int64 {
	clock := int64(-1)
	for _, rid := range st.Resources {
		r := ctx.snap.ResourceByID(rid)
		if r == nil {
			continue
		}
		if clock < 0 || r.CumulatedUnusedTime < clock {
			clock = r.CumulatedUnusedTime
		}
	}
	if clock < 0 {
		return 0
	}
	return clock
}

func consumeCost(ctx *applyCtx, st *state.SubTask, cost int64) {
	for _, rid := range st.Resources {
		if r := ctx.snap.ResourceByID(rid); r != nil {
			r.CumulatedUnusedTime -= cost
			if r.CumulatedUnusedTime < 0 {
				r.CumulatedUnusedTime = 0
			}
		}
	}
}

func newSubTask(ctx *applyCtx, t *state.Task, resources []state.ResourceID, patient state.PatientID, target state.LocationID) *state.SubTask {
	st := &state.SubTask{
		ID:        ctx.snap.NextSubTaskID,
		Resources: resources,
		PatientID: patient,
		Target:    target,
	}
	ctx.snap.NextSubTaskID++
	t.SubTasks[st.ID] = st
	return st
}

// completeTask broadcasts exactly one completion message and returns every
// resource to the idle pool.
func completeTask(ctx *applyCtx, t *state.Task, messageKey string) {
	t.Status = state.TaskCompleted
	for id := range t.SubTasks {
		delete(t.SubTasks, id)
	}
	ctx.snap.ReleaseFromTask(t.ID)
	ctx.wl.push(evRadio{
		Channel: state.ChannelActors,
		Text:    ctx.translate("radio", messageKey, string(t.Location)),
		System:  true,
	})
}
