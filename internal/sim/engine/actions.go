package engine

import (
	"sort"
	"strconv"

	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Action lifecycle. One shared state-machine driver times every kind; kinds
// differ only in their start/end/cancel effect bodies, dispatched through
// actionBehavior. Effects are pure functions of the snapshot and the
// action's immutable construction params, which is what keeps replay
// deterministic.

type actionBehavior interface {
	onStart(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate)
	onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate)
	onCancel(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate)
}

func behaviorFor(kind scenario.Kind) actionBehavior {
	switch kind {
	case scenario.KindMoveActor:
		return moveActorBehavior{}
	case scenario.KindAppointRole:
		return appointRoleBehavior{}
	case scenario.KindSendRadio:
		return sendRadioBehavior{}
	case scenario.KindRequestDispatch:
		return requestDispatchBehavior{}
	case scenario.KindBuildMapEntity:
		return buildMapEntityBehavior{}
	case scenario.KindAllocate:
		return allocateBehavior{}
	case scenario.KindEvacuate:
		return evacuateBehavior{}
	case scenario.KindSituationUpdate:
		return situationUpdateBehavior{}
	default:
		return nopBehavior{}
	}
}

func planAction(ctx *applyCtx, e evPlanAction) {
	tpl, ok := ctx.sess.scen.TemplateByID(e.TemplateID)
	if !ok {
		ctx.sess.logger.Printf("plan_action: unknown template %q", e.TemplateID)
		return
	}

	params := map[string]string{}
	for k, v := range tpl.Defaults {
		params[k] = v
	}
	for k, v := range e.Params {
		params[k] = v
	}

	a := &state.Action{
		ID:         ctx.snap.NextActionID,
		TemplateID: tpl.ID,
		Owner:      e.Owner,
		StartTime:  e.StartTime,
		Duration:   tpl.DurationSeconds,
		Status:     state.ActionUninitialized,
		Params:     params,
	}
	ctx.snap.NextActionID++
	ctx.snap.Actions = append(ctx.snap.Actions, a)

	// An action planned at or past its start time starts right away; the end
	// transition still waits for a time advance (or fires immediately for
	// zero-duration actions).
	progressAction(ctx, a)
}

// progressAction runs the shared transition rule for one action against the
// current simulated time.
func progressAction(ctx *applyCtx, a *state.Action) {
	tpl, ok := ctx.sess.scen.TemplateByID(a.TemplateID)
	if !ok {
		return
	}
	now := ctx.snap.Time
	b := behaviorFor(tpl.Kind)

	if a.Status == state.ActionUninitialized && now >= a.StartTime {
		b.onStart(ctx, a, tpl)
		a.Status = state.ActionOnGoing
	}
	if a.Status == state.ActionOnGoing && now >= a.EndTime() {
		for _, f := range tpl.GrantedFlags {
			ctx.snap.Flags[f] = true
		}
		b.onEnd(ctx, a, tpl)
		a.Status = state.ActionCompleted
	}
}

// progressAllActions is called once per time-advance slice, in action id
// order.
func progressAllActions(ctx *applyCtx) {
	for _, a := range ctx.snap.Actions {
		progressAction(ctx, a)
	}
}

func cancelAction(ctx *applyCtx, e evCancelAction) {
	a := ctx.snap.OpenActionBy(e.TemplateID, e.Owner, e.StartTime)
	if a == nil {
		// Cancelling a Completed action is a reported error; anything else
		// that no longer matches is silently inert.
		for _, done := range ctx.snap.Actions {
			if done.TemplateID == e.TemplateID && done.Owner == e.Owner &&
				done.StartTime == e.StartTime && done.Status == state.ActionCompleted {
				ctx.sess.logger.Printf("cancel_action: action %d already completed", done.ID)
				ctx.wl.push(evRadio{
					Sender:  e.Owner,
					Channel: state.ChannelActors,
					Text:    ctx.translate("engine", "cancel_completed", e.TemplateID),
					System:  true,
				})
				return
			}
		}
		return
	}

	tpl, _ := ctx.sess.scen.TemplateByID(a.TemplateID)
	if tpl != nil {
		behaviorFor(tpl.Kind).onCancel(ctx, a, tpl)
	}
	a.Status = state.ActionCancelled

	live := ctx.snap.Actions[:0]
	for _, other := range ctx.snap.Actions {
		if other.ID == a.ID {
			continue
		}
		live = append(live, other)
	}
	ctx.snap.Actions = live
	ctx.snap.CancelledActions = append(ctx.snap.CancelledActions, a)
}

// channelBusy reports whether the owner already has an OnGoing action
// occupying the given radio channel. Checked at conversion time: the second
// action is rejected with a notification, never dropped silently.
func (s *Session) channelBusy(snap *state.Snapshot, owner state.ActorID, channel string) bool {
	if channel == "" {
		return false
	}
	for _, a := range snap.Actions {
		if a.Owner != owner || a.Status != state.ActionOnGoing {
			continue
		}
		if tpl, ok := s.scen.TemplateByID(a.TemplateID); ok && tpl.Channel == channel {
			return true
		}
	}
	return false
}

// templateAvailable decides whether a role may even initiate the template:
// required flags, permitted roles, replayability, and the kind-specific
// predicate. Channel concurrency is deliberately not part of this check.
func (s *Session) templateAvailable(snap *state.Snapshot, tpl *scenario.ActionTemplate, actor *state.Actor) bool {
	for _, f := range tpl.RequiredFlags {
		if !snap.Flags[f] {
			return false
		}
	}
	if len(tpl.Roles) > 0 {
		permitted := false
		for _, r := range tpl.Roles {
			if r == actor.Role {
				permitted = true
				break
			}
		}
		if !permitted {
			return false
		}
	}
	if !tpl.Replayable {
		// Played means a live (non-cancelled) instance exists for this owner.
		for _, a := range snap.Actions {
			if a.TemplateID == tpl.ID && a.Owner == actor.ID {
				return false
			}
		}
	}
	return s.customPredicate(snap, tpl, actor)
}

func (s *Session) customPredicate(snap *state.Snapshot, tpl *scenario.ActionTemplate, actor *state.Actor) bool {
	switch tpl.Kind {
	case scenario.KindAppointRole:
		role := state.Role(tpl.Defaults["role"])
		return role != "" && len(snap.ActorsByRole(role)) == 0
	case scenario.KindBuildMapEntity:
		loc := snap.LocationByID(state.LocationID(tpl.Defaults["location"]))
		return loc != nil && loc.Status == state.BuildSelecting
	case scenario.KindRequestDispatch:
		_, ok := snap.ContainerByID(tpl.Defaults["container"])
		return ok
	case scenario.KindEvacuate:
		for _, p := range snap.Patients {
			if p.Triage != state.TriageNone && p.Triage != state.TriageDead && !p.Evacuated {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// --- kind behaviors ---

type nopBehavior struct{}

func (nopBehavior) onStart(*applyCtx, *state.Action, *scenario.ActionTemplate)  {}
func (nopBehavior) onEnd(*applyCtx, *state.Action, *scenario.ActionTemplate)    {}
func (nopBehavior) onCancel(*applyCtx, *state.Action, *scenario.ActionTemplate) {}

type moveActorBehavior struct{ nopBehavior }

func (moveActorBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	to := state.LocationID(a.Params["to"])
	if to == "" {
		if actor := ctx.snap.ActorByID(a.Owner); actor != nil {
			to = actor.Symbolic
		}
	}
	if ctx.snap.LocationByID(to) == nil {
		ctx.sess.logger.Printf("move_actor action %d: unknown location %q", a.ID, to)
		return
	}
	ctx.wl.push(evMoveActor{Actor: a.Owner, To: to})
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.ChannelActors,
		Text:    ctx.translate("radio", "actor_arrived", string(to)),
		System:  true,
	})
}

type appointRoleBehavior struct{ nopBehavior }

func (appointRoleBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	role := state.Role(a.Params["role"])
	def, ok := ctx.sess.scen.RoleByID(role)
	if !ok {
		ctx.sess.logger.Printf("appoint_role action %d: unknown role %q", a.ID, role)
		return
	}
	// The predicate was checked at listing time; re-check here because
	// another appointment may have landed since.
	if len(ctx.snap.ActorsByRole(role)) > 0 {
		ctx.wl.push(evRadio{
			Sender:  a.Owner,
			Channel: state.ChannelActors,
			Text:    ctx.translate("engine", "role_taken", string(role)),
			System:  true,
		})
		return
	}
	ctx.snap.Actors = append(ctx.snap.Actors, &state.Actor{
		ID:       ctx.snap.NextActorID,
		Role:     role,
		Location: state.LocationID(def.Home),
		Symbolic: state.LocationID(def.Home),
		OnSite:   def.OnSite,
	})
	ctx.snap.NextActorID++
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.ChannelActors,
		Text:    ctx.translate("radio", "role_appointed", string(role)),
		System:  true,
	})
}

type sendRadioBehavior struct{ nopBehavior }

func (sendRadioBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	text := a.Params["text"]
	if text == "" && tpl.MessageKey != "" {
		text = ctx.translate("radio", tpl.MessageKey)
	}
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.Channel(tpl.Channel),
		Text:    text,
	})
}

type requestDispatchBehavior struct{ nopBehavior }

func (requestDispatchBehavior) onStart(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.ChannelCASU,
		Text:    ctx.translate("radio", "dispatch_requested", a.Params["container"]),
	})
}

// onEnd grants the request: the bundle starts travelling and lands
// TravelSeconds after the radio call ends.
func (requestDispatchBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	def, ok := ctx.snap.ContainerByID(a.Params["container"])
	if !ok {
		ctx.sess.logger.Printf("request_dispatch action %d: unknown container %q", a.ID, a.Params["container"])
		return
	}
	at := state.LocationID(a.Params["at"])
	if at == "" {
		if actor := ctx.snap.ActorByID(a.Owner); actor != nil {
			at = actor.Location
		}
	}
	ctx.snap.PendingArrivals = append(ctx.snap.PendingArrivals, state.PendingArrival{
		ContainerID: def.ID,
		At:          at,
		DueTime:     a.EndTime() + def.TravelSeconds,
		RequestedBy: a.Owner,
	})
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.ChannelCASU,
		Text:    ctx.translate("radio", "dispatch_en_route", def.Name, string(at)),
		System:  true,
	})
}

// materializeArrivals lands every dispatched bundle whose travel time has
// elapsed: its units appear at the arrival location on the waiting pool and
// an arrival report goes out.
func materializeArrivals(ctx *applyCtx) {
	var travelling []state.PendingArrival
	for _, ar := range ctx.snap.PendingArrivals {
		if ar.DueTime > ctx.snap.Time {
			travelling = append(travelling, ar)
			continue
		}
		def, ok := ctx.snap.ContainerByID(ar.ContainerID)
		if !ok {
			ctx.sess.logger.Printf("arrival: unknown container %q", ar.ContainerID)
			continue
		}
		waiting := ctx.snap.WaitingTask()
		types := make([]string, 0, len(def.Resources))
		for typ := range def.Resources {
			types = append(types, string(typ))
		}
		sort.Strings(types)
		for _, typ := range types {
			for i := 0; i < def.Resources[state.ResourceType(typ)]; i++ {
				u := &state.ResourceUnit{
					ID:       ctx.snap.NextResourceID,
					Type:     state.ResourceType(typ),
					Location: ar.At,
				}
				if waiting != nil {
					u.TaskID = waiting.ID
				}
				ctx.snap.Resources = append(ctx.snap.Resources, u)
				ctx.snap.NextResourceID++
			}
		}
		ctx.wl.push(evRadio{
			Sender:  arrivalReporter(ctx, ar.At, ar.RequestedBy),
			Channel: state.ChannelCASU,
			Text:    ctx.translate("radio", "dispatch_arrived", def.Name, string(ar.At)),
			System:  true,
		})
	}
	ctx.snap.PendingArrivals = travelling
}

// arrivalReporter picks who signs an arrival report: the most senior on-site
// actor at the location, or the requester while nobody commands it yet. Ties
// resolve to creation order.
func arrivalReporter(ctx *applyCtx, at state.LocationID, fallback state.ActorID) state.ActorID {
	var present []*state.Actor
	for _, a := range ctx.snap.OnSiteActors() {
		if a.Location == at {
			present = append(present, a)
		}
	}
	senior := ctx.sess.scen.MostSeniorPresent(present)
	if len(senior) == 0 {
		return fallback
	}
	return senior[0].ID
}

type buildMapEntityBehavior struct{ nopBehavior }

func (buildMapEntityBehavior) onStart(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	loc := ctx.snap.LocationByID(state.LocationID(a.Params["location"]))
	if loc == nil {
		ctx.sess.logger.Printf("build action %d: unknown location %q", a.ID, a.Params["location"])
		return
	}
	if loc.Status == state.BuildSelecting {
		loc.Status = state.BuildBuilding
	}
}

func (buildMapEntityBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	loc := ctx.snap.LocationByID(state.LocationID(a.Params["location"]))
	if loc == nil || loc.Status != state.BuildBuilding {
		return
	}
	loc.Status = state.BuildReady
	loc.BuiltBy = a.ID
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.ChannelActors,
		Text:    ctx.translate("radio", "location_ready", loc.Name),
		System:  true,
	})
}

func (buildMapEntityBehavior) onCancel(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	loc := ctx.snap.LocationByID(state.LocationID(a.Params["location"]))
	if loc != nil && loc.Status == state.BuildBuilding {
		loc.Status = state.BuildSelecting
	}
}

type allocateBehavior struct{ nopBehavior }

func (allocateBehavior) onStart(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	typ := state.ResourceType(a.Params["resource_type"])
	from := state.LocationID(a.Params["from"])
	want, _ := strconv.Atoi(a.Params["count"])
	if want <= 0 {
		want = 1
	}

	free := ctx.snap.FreeUnits(typ, from)
	if len(free) > want {
		free = free[:want]
	}
	ids := make([]state.ResourceID, 0, len(free))
	for _, u := range free {
		ids = append(ids, u.ID)
	}
	ctx.snap.Reserve(ids, a.ID)

	// Shortfall: proceed with whatever was found, tell the player, never
	// block.
	if len(ids) < want {
		ctx.wl.push(evRadio{
			Sender:  a.Owner,
			Channel: state.ChannelActors,
			Text:    ctx.translate("engine", "not_enough_resources", string(typ), len(ids), want),
			System:  true,
		})
	}
}

func (allocateBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	ids := ctx.snap.UnreserveAllFor(a.ID)
	if len(ids) == 0 {
		return
	}
	kind := state.TaskKind(a.Params["task_kind"])
	at := state.LocationID(a.Params["task_location"])
	task := ctx.snap.TaskByKindAt(kind, at)
	if task == nil {
		ctx.sess.logger.Printf("allocate action %d: no %s task at %s", a.ID, kind, at)
		return
	}
	ctx.snap.AssignToTask(ids, task.ID)
	for _, id := range ids {
		if u := ctx.snap.ResourceByID(id); u != nil {
			u.Location = at
			u.CumulatedUnusedTime = 0
		}
	}
}

func (allocateBehavior) onCancel(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	ctx.snap.UnreserveAllFor(a.ID)
}

type evacuateBehavior struct{ nopBehavior }

func (evacuateBehavior) onStart(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	typ := state.ResourceType(a.Params["vehicle_type"])
	if typ == "" {
		typ = "AMBULANCE"
	}
	free := ctx.snap.FreeUnits(typ, state.LocationID(a.Params["from"]))
	if len(free) == 0 {
		ctx.wl.push(evRadio{
			Sender:  a.Owner,
			Channel: state.ChannelEvasan,
			Text:    ctx.translate("engine", "not_enough_resources", string(typ), 0, 1),
			System:  true,
		})
		return
	}
	ctx.snap.Reserve([]state.ResourceID{free[0].ID}, a.ID)
}

func (evacuateBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	ids := ctx.snap.UnreserveAllFor(a.ID)
	patient := ctx.snap.PatientByID(state.PatientID(a.Params["patient"]))
	if patient == nil || patient.Evacuated {
		ctx.wl.push(evRadio{
			Sender:  a.Owner,
			Channel: state.ChannelEvasan,
			Text:    ctx.translate("engine", "invalid_evacuation_target", a.Params["patient"]),
			System:  true,
		})
		return
	}
	task := ctx.snap.TaskByKindAt(state.TaskEvacuation, patient.Location)
	if task == nil {
		ctx.sess.logger.Printf("evacuate action %d: no evacuation task at %s", a.ID, patient.Location)
		return
	}
	if len(ids) == 0 {
		// Reservation failed at start; the notification already went out.
		return
	}
	ctx.snap.AssignToTask(ids, task.ID)
	st := &state.SubTask{
		ID:        ctx.snap.NextSubTaskID,
		Resources: ids,
		PatientID: patient.ID,
		Target:    state.LocationRemote,
	}
	ctx.snap.NextSubTaskID++
	task.SubTasks[st.ID] = st
	if task.Status == state.TaskUninitialized || task.Status == state.TaskPaused {
		task.Status = state.TaskOnGoing
	}
}

func (evacuateBehavior) onCancel(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	ctx.snap.UnreserveAllFor(a.ID)
}

type situationUpdateBehavior struct{ nopBehavior }

func (situationUpdateBehavior) onEnd(ctx *applyCtx, a *state.Action, tpl *scenario.ActionTemplate) {
	triaged, evacuated := 0, 0
	for _, p := range ctx.snap.Patients {
		if p.Triage != state.TriageNone {
			triaged++
		}
		if p.Evacuated {
			evacuated++
		}
	}
	ctx.wl.push(evRadio{
		Sender:  a.Owner,
		Channel: state.ChannelActors,
		Text:    ctx.translate("radio", "situation_update", triaged, len(ctx.snap.Patients), evacuated),
		System:  true,
	})
}
