package engine

import (
	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Time-forward barrier. Simulated time moves one slice only when every
// on-site actor's readiness counter is positive. The frame is rebuilt after
// every completed advance; its stamped current time guards readiness updates
// against racing a newer frame.

func timeForward(ctx *applyCtx, e evTimeForward) {
	snap := ctx.snap
	if snap.Frame.CurrentTime != e.Expected {
		ctx.sess.logger.Printf("time_forward: expected frame time %d, frame is at %d; discarded",
			e.Expected, snap.Frame.CurrentTime)
		return
	}

	credited := e.Actors
	if e.Forced {
		credited = nil
		for _, a := range snap.OnSiteActors() {
			credited = append(credited, a.ID)
		}
	}
	for _, id := range credited {
		// Actors that joined after the frame was built still count; absent
		// or off-site ids do not.
		if a := snap.ActorByID(id); a == nil || !a.OnSite {
			continue
		}
		snap.Frame.Readiness[id]++
	}

	if !barrierSatisfied(snap) {
		return
	}
	advanceOneSlice(ctx)
}

func timeForwardCancel(ctx *applyCtx, e evTimeForwardCancel) {
	snap := ctx.snap
	if snap.Frame.CurrentTime != e.Expected {
		ctx.sess.logger.Printf("time_forward_cancel: expected frame time %d, frame is at %d; discarded",
			e.Expected, snap.Frame.CurrentTime)
		return
	}
	for _, id := range e.Actors {
		if snap.Frame.Readiness[id] > 0 {
			snap.Frame.Readiness[id]--
		}
	}
}

func barrierSatisfied(snap *state.Snapshot) bool {
	onSite := snap.OnSiteActors()
	if len(onSite) == 0 {
		return false
	}
	for _, a := range onSite {
		if snap.Frame.Readiness[a.ID] <= 0 {
			return false
		}
	}
	return true
}

// advanceOneSlice moves simulated time forward by one slice, progresses
// patients, actions and tasks in a fixed order, then rebuilds the frame. If
// the rebuilt barrier is already satisfied (actors engaged in a situation
// update never drop their readiness) another advance is queued, chaining
// slice by slice until the barrier is unmet; the cascade ceiling bounds the
// chain within one tick.
func advanceOneSlice(ctx *applyCtx) {
	snap := ctx.snap
	slice := ctx.sess.tune.TimeSliceSeconds
	snap.Time += slice

	for _, p := range snap.Patients {
		ctx.sess.physio.Advance(p, slice)
	}

	progressAllActions(ctx)
	materializeArrivals(ctx)
	progressAllTasks(ctx, slice)

	rebuildFrame(ctx)

	if barrierSatisfied(snap) {
		ctx.wl.push(evTimeForward{Expected: snap.Frame.CurrentTime})
	}
}

// rebuildFrame stamps the frame with the new time and reseeds readiness:
// actors currently engaged in a situation-update action start ready,
// everyone else starts at zero.
func rebuildFrame(ctx *applyCtx) {
	snap := ctx.snap
	snap.Frame = state.TimeFrame{
		CurrentTime: snap.Time,
		Readiness:   map[state.ActorID]int{},
	}
	for _, a := range snap.OnSiteActors() {
		r := 0
		if actorInSituationUpdate(ctx, a.ID) {
			r = 1
		}
		snap.Frame.Readiness[a.ID] = r
	}
}

func actorInSituationUpdate(ctx *applyCtx, id state.ActorID) bool {
	for _, a := range ctx.snap.Actions {
		if a.Owner != id || a.Status != state.ActionOnGoing {
			continue
		}
		if tpl, ok := ctx.sess.scen.TemplateByID(a.TemplateID); ok && tpl.Kind == scenario.KindSituationUpdate {
			return true
		}
	}
	return false
}
