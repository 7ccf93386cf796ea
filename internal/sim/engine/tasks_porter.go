package engine

import "github.com/Heigvd/mimms-sub001/internal/sim/state"

// Porterage: fixed-size groups carry triaged patients from the task location
// to its target, then walk back. Only full groups start a trip; leftover
// free resources wait for reinforcements.

func progressPorter(ctx *applyCtx, t *state.Task, slice int64) {
	groupSize := ctx.sess.tune.Costs.PorterGroupSize
	claimed := claimedPatients(t)
	free := ungroupedUnits(ctx, t)

	for _, p := range ctx.snap.Patients {
		if len(free) < groupSize {
			break
		}
		if !porterEligible(p, t.Location) || claimed[p.ID] {
			continue
		}
		ids := make([]state.ResourceID, 0, groupSize)
		for _, u := range free[:groupSize] {
			ids = append(ids, u.ID)
		}
		free = free[groupSize:]
		newSubTask(ctx, t, ids, p.ID, t.Target)
	}

	cost := ctx.sess.tune.Costs.PorterTripSeconds
	for _, id := range sortedSubTaskIDs(t) {
		st := t.SubTasks[id]
		accumulate(ctx, st, slice)

		// A large slice can cover the outbound trip and the return in one
		// poll; step through both legs.
		for groupClock(ctx, st) >= cost {
			consumeCost(ctx, st, cost)
			if !st.Returning {
				p := ctx.snap.PatientByID(st.PatientID)
				if p != nil {
					p.Location = st.Target
				}
				moveSubTaskResources(ctx, st, st.Target)
				st.Returning = true
				continue
			}
			moveSubTaskResources(ctx, st, t.Location)
			delete(t.SubTasks, id)
			break
		}
	}

	for _, p := range ctx.snap.Patients {
		if porterEligible(p, t.Location) {
			return
		}
	}
	if len(t.SubTasks) > 0 {
		return
	}
	completeTask(ctx, t, "porterage_complete")
}

func porterEligible(p *state.Patient, at state.LocationID) bool {
	return p.Location == at &&
		p.Triage != state.TriageNone &&
		p.Triage != state.TriageDead &&
		!p.Evacuated
}

func moveSubTaskResources(ctx *applyCtx, st *state.SubTask, to state.LocationID) {
	for _, rid := range st.Resources {
		if r := ctx.snap.ResourceByID(rid); r != nil {
			r.Location = to
		}
	}
}
