package engine

import "github.com/Heigvd/mimms-sub001/internal/sim/state"

// Healing: one caregiver stabilizes one immediate/urgent patient at the
// task's location.

func progressHealing(ctx *applyCtx, t *state.Task, slice int64) {
	claimed := claimedPatients(t)
	free := ungroupedUnits(ctx, t)

	for _, p := range ctx.snap.Patients {
		if len(free) == 0 {
			break
		}
		if !healingEligible(p, t.Location) || claimed[p.ID] {
			continue
		}
		u := free[0]
		free = free[1:]
		newSubTask(ctx, t, []state.ResourceID{u.ID}, p.ID, "")
	}

	cost := ctx.sess.tune.Costs.HealingSeconds
	for _, id := range sortedSubTaskIDs(t) {
		st := t.SubTasks[id]
		if accumulate(ctx, st, slice) < cost {
			continue
		}
		p := ctx.snap.PatientByID(st.PatientID)
		if p != nil && !p.Treated {
			p.Treated = true
			ctx.wl.push(evRadio{
				Channel: state.ChannelActors,
				Text:    ctx.translate("radio", "patient_stabilized", string(p.ID)),
				System:  true,
			})
		}
		consumeCost(ctx, st, cost)
		delete(t.SubTasks, id)
	}

	for _, p := range ctx.snap.Patients {
		if healingEligible(p, t.Location) {
			return
		}
	}
	if len(t.SubTasks) > 0 {
		return
	}
	completeTask(ctx, t, "healing_complete")
}

func healingEligible(p *state.Patient, at state.LocationID) bool {
	if p.Location != at || p.Treated || p.Evacuated {
		return false
	}
	return p.Triage == state.TriageImmediate || p.Triage == state.TriageUrgent
}
