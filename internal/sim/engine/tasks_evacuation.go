package engine

import "github.com/Heigvd/mimms-sub001/internal/sim/state"

// Evacuation: sub-tasks are created by the evacuation action, never by
// grouping; this routine only advances them. A vehicle drives the patient to
// the hospital, comes back, and is released to the idle pool.

func progressEvacuation(ctx *applyCtx, t *state.Task, slice int64) {
	cost := ctx.sess.tune.Costs.EvacuationSeconds
	for _, id := range sortedSubTaskIDs(t) {
		st := t.SubTasks[id]
		accumulate(ctx, st, slice)

		for groupClock(ctx, st) >= cost {
			consumeCost(ctx, st, cost)
			if !st.Returning {
				p := ctx.snap.PatientByID(st.PatientID)
				if p != nil {
					p.Evacuated = true
					p.Location = st.Target
					ctx.wl.push(evRadio{
						Channel: state.ChannelEvasan,
						Text:    ctx.translate("radio", "patient_evacuated", string(p.ID)),
						System:  true,
					})
				}
				moveSubTaskResources(ctx, st, st.Target)
				st.Returning = true
				continue
			}
			moveSubTaskResources(ctx, st, t.Location)
			releaseSubTaskResources(ctx, st)
			delete(t.SubTasks, id)
			break
		}
	}

	for _, p := range ctx.snap.Patients {
		if !p.Evacuated && p.Triage != state.TriageDead {
			return
		}
	}
	if len(t.SubTasks) > 0 {
		return
	}
	completeTask(ctx, t, "evacuation_complete")
}

func releaseSubTaskResources(ctx *applyCtx, st *state.SubTask) {
	waiting := ctx.snap.WaitingTask()
	for _, rid := range st.Resources {
		r := ctx.snap.ResourceByID(rid)
		if r == nil {
			continue
		}
		if waiting != nil {
			r.TaskID = waiting.ID
		} else {
			r.TaskID = 0
		}
		r.CumulatedUnusedTime = 0
	}
}
