package engine

import "github.com/Heigvd/mimms-sub001/internal/sim/state"

// Pre-triage: one resource examines one patient at a time. The task is done
// when no unclassified patient remains at its location.

func progressPreTriage(ctx *applyCtx, t *state.Task, slice int64) {
	claimed := claimedPatients(t)
	free := ungroupedUnits(ctx, t)

	for _, p := range ctx.snap.Patients {
		if len(free) == 0 {
			break
		}
		if p.Location != t.Location || p.Triage != state.TriageNone || claimed[p.ID] {
			continue
		}
		u := free[0]
		free = free[1:]
		newSubTask(ctx, t, []state.ResourceID{u.ID}, p.ID, "")
	}

	cost := ctx.sess.tune.Costs.PreTriageSeconds
	for _, id := range sortedSubTaskIDs(t) {
		st := t.SubTasks[id]
		if accumulate(ctx, st, slice) < cost {
			continue
		}
		p := ctx.snap.PatientByID(st.PatientID)
		if p != nil && p.Triage == state.TriageNone {
			p.Triage = ctx.sess.physio.Classify(p)
			ctx.wl.push(evRadio{
				Channel: state.ChannelActors,
				Text:    ctx.translate("radio", "pretriage_result", string(p.ID), string(p.Triage)),
				System:  true,
			})
		}
		consumeCost(ctx, st, cost)
		delete(t.SubTasks, id)
	}

	for _, p := range ctx.snap.Patients {
		if p.Location == t.Location && p.Triage == state.TriageNone {
			return
		}
	}
	completeTask(ctx, t, "pretriage_complete")
}
