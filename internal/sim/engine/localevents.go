package engine

import (
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Local events are the engine's in-process intent objects. Each accepted
// global event converts into zero or more of them; applying one may queue
// further ones (cascading effects). They are never persisted: the global log
// is the only durable truth.

type localEvent interface {
	// name identifies the event in logs.
	name() string
	apply(ctx *applyCtx)
}

// applyCtx carries the mutable tick state: the session, the snapshot clone
// under construction and the cascade worklist.
type applyCtx struct {
	sess *Session
	snap *state.Snapshot
	wl   *worklist
}

func (c *applyCtx) translate(category, key string, args ...any) string {
	return c.sess.tr.Translate(category, key, args...)
}

// worklist is the explicit bounded queue local events cascade through. The
// replay engine drains it in passes, FIFO within a pass, up to the cascade
// ceiling.
type worklist struct {
	items []localEvent
}

func (w *worklist) push(ev localEvent) {
	w.items = append(w.items, ev)
}

func (w *worklist) takeAll() []localEvent {
	out := w.items
	w.items = nil
	return out
}

func (w *worklist) len() int { return len(w.items) }

// evPlanAction instantiates an action from its template.
type evPlanAction struct {
	TemplateID string
	Owner      state.ActorID
	StartTime  int64
	Params     map[string]string
}

func (evPlanAction) name() string { return "plan_action" }

func (e evPlanAction) apply(ctx *applyCtx) {
	planAction(ctx, e)
}

// evCancelAction cancels the still-open action matching the triple. A
// missing match is silently inert.
type evCancelAction struct {
	TemplateID string
	Owner      state.ActorID
	StartTime  int64
}

func (evCancelAction) name() string { return "cancel_action" }

func (e evCancelAction) apply(ctx *applyCtx) {
	cancelAction(ctx, e)
}

// evTimeForward credits the listed actors with a time-forward request and
// advances one slice when the barrier is satisfied. Expected stamps the
// frame time the event was derived against; a mismatch discards it.
type evTimeForward struct {
	Actors   []state.ActorID
	Expected int64
	// Forced (trainer) credits every on-site actor.
	Forced bool
}

func (evTimeForward) name() string { return "time_forward" }

func (e evTimeForward) apply(ctx *applyCtx) {
	timeForward(ctx, e)
}

// evTimeForwardCancel lowers the listed actors' readiness, floored at zero.
type evTimeForwardCancel struct {
	Actors   []state.ActorID
	Expected int64
}

func (evTimeForwardCancel) name() string { return "time_forward_cancel" }

func (e evTimeForwardCancel) apply(ctx *applyCtx) {
	timeForwardCancel(ctx, e)
}

// evRecallResources pulls the listed units back to the idle pool. A trainer
// intervention: reservations are cleared and any sub-task the unit was in is
// dropped on the next slice.
type evRecallResources struct {
	Resources []state.ResourceID
}

func (evRecallResources) name() string { return "resource_recall" }

func (e evRecallResources) apply(ctx *applyCtx) {
	waiting := ctx.snap.WaitingTask()
	for _, id := range e.Resources {
		r := ctx.snap.ResourceByID(id)
		if r == nil {
			ctx.sess.logger.Printf("resource_recall: unit %d not found", id)
			continue
		}
		r.ReservedBy = 0
		r.CumulatedUnusedTime = 0
		if waiting != nil {
			r.TaskID = waiting.ID
		} else {
			r.TaskID = 0
		}
	}
}

// evRadio appends a message to the radio log.
type evRadio struct {
	Sender  state.ActorID
	Channel state.Channel
	Text    string
	System  bool
}

func (evRadio) name() string { return "radio_message" }

func (e evRadio) apply(ctx *applyCtx) {
	ctx.snap.AppendRadio(e.Sender, e.Channel, e.Text, e.System)
}

// evMoveActor relocates an actor. Actor locations change only through this
// event.
type evMoveActor struct {
	Actor state.ActorID
	To    state.LocationID
}

func (evMoveActor) name() string { return "move_actor" }

func (e evMoveActor) apply(ctx *applyCtx) {
	a := ctx.snap.ActorByID(e.Actor)
	if a == nil {
		ctx.sess.logger.Printf("move_actor: actor %d not found", e.Actor)
		return
	}
	a.Location = e.To
}
