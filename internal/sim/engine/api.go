package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Presentation-facing operations. Submissions go through the shared log:
// nothing mutates the snapshot directly, the mutation happens when the
// submitted event comes back through ProcessPendingEvents.

// AllActionsGroupedByOwner groups the live actions of the current snapshot
// by owning actor, preserving action id order within each group.
func (s *Session) AllActionsGroupedByOwner() map[state.ActorID][]*state.Action {
	out := map[state.ActorID][]*state.Action{}
	for _, a := range s.CurrentSnapshot().Actions {
		out[a.Owner] = append(out[a.Owner], a)
	}
	return out
}

// ActionsAvailableTo lists the templates the actor may initiate right now,
// optionally restricted to one category. Channel concurrency is not part of
// this check; it is enforced at conversion time.
func (s *Session) ActionsAvailableTo(actorID state.ActorID, category string) []*scenario.ActionTemplate {
	snap := s.CurrentSnapshot()
	actor := snap.ActorByID(actorID)
	if actor == nil {
		return nil
	}
	var out []*scenario.ActionTemplate
	for i := range s.scen.Templates {
		tpl := &s.scen.Templates[i]
		if category != "" && tpl.Category != category {
			continue
		}
		if s.templateAvailable(snap, tpl, actor) {
			out = append(out, tpl)
		}
	}
	return out
}

// SubmitActionCreation submits a creation event triggering at current
// simulated time. Returns the assigned event id.
func (s *Session) SubmitActionCreation(ctx context.Context, templateID string, actorID state.ActorID, params map[string]string) (uint64, error) {
	if _, ok := s.scen.TemplateByID(templateID); !ok {
		return 0, fmt.Errorf("engine: unknown action template %q", templateID)
	}
	payload, err := json.Marshal(protocol.ActionCreationPayload{TemplateID: templateID, Params: params})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, actorID, protocol.EventActionCreation, payload, false)
}

// SubmitActionCancellation locates the actor's still-open action for the
// template and submits its cancellation. Cancelling an already Completed
// action fails here and leaves it unchanged.
func (s *Session) SubmitActionCancellation(ctx context.Context, actorID state.ActorID, templateID string) (uint64, error) {
	snap := s.CurrentSnapshot()
	var open *state.Action
	for _, a := range snap.Actions {
		if a.TemplateID != templateID || a.Owner != actorID {
			continue
		}
		if a.Status == state.ActionUninitialized || a.Status == state.ActionOnGoing {
			open = a
			break
		}
	}
	if open == nil {
		for _, a := range snap.Actions {
			if a.TemplateID == templateID && a.Owner == actorID && a.Status == state.ActionCompleted {
				return 0, fmt.Errorf("engine: action %q already completed", templateID)
			}
		}
		return 0, fmt.Errorf("engine: no open action %q for actor %d", templateID, actorID)
	}
	payload, err := json.Marshal(protocol.ActionCancellationPayload{
		TemplateID: templateID,
		StartTime:  open.StartTime,
	})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, actorID, protocol.EventActionCancellation, payload, false)
}

// SubmitTimeForward requests one slice of time advance credited to the
// actor.
func (s *Session) SubmitTimeForward(ctx context.Context, actorID state.ActorID) (uint64, error) {
	payload, err := json.Marshal(protocol.TimeForwardPayload{
		Seconds: s.tune.TimeSliceSeconds,
		Actors:  []uint64{uint64(actorID)},
	})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, actorID, protocol.EventTimeForward, payload, false)
}

// SubmitTimeForwardForced submits a trainer-forced jump crediting every
// on-site actor per slice.
func (s *Session) SubmitTimeForwardForced(ctx context.Context, seconds int64) (uint64, error) {
	if seconds <= 0 || seconds%s.tune.TimeSliceSeconds != 0 {
		return 0, fmt.Errorf("engine: jump of %ds is not a multiple of the %ds slice",
			seconds, s.tune.TimeSliceSeconds)
	}
	payload, err := json.Marshal(protocol.TimeForwardPayload{Seconds: seconds})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, 0, protocol.EventTimeForward, payload, true)
}

// SubmitTimeForwardCancel withdraws the actor's pending time-forward
// request.
func (s *Session) SubmitTimeForwardCancel(ctx context.Context, actorID state.ActorID) (uint64, error) {
	payload, err := json.Marshal(protocol.TimeForwardCancelPayload{Actors: []uint64{uint64(actorID)}})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, actorID, protocol.EventTimeForwardCancel, payload, false)
}

// SubmitResourceRecall submits a trainer recall pulling the given units back
// to the idle pool.
func (s *Session) SubmitResourceRecall(ctx context.Context, resources []state.ResourceID) (uint64, error) {
	if len(resources) == 0 {
		return 0, fmt.Errorf("engine: recall needs at least one resource")
	}
	ids := make([]uint64, 0, len(resources))
	for _, id := range resources {
		ids = append(ids, uint64(id))
	}
	payload, err := json.Marshal(protocol.ResourceRecallPayload{Resources: ids})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, 0, protocol.EventResourceRecall, payload, false)
}

// SubmitOption submits a live configuration replacement.
func (s *Session) SubmitOption(ctx context.Context, key, value string) (uint64, error) {
	payload, err := json.Marshal(protocol.OptionPayload{Key: key, Value: value})
	if err != nil {
		return 0, err
	}
	return s.submit(ctx, 0, protocol.EventOption, payload, false)
}

func (s *Session) submit(ctx context.Context, actorID state.ActorID, kind string, payload []byte, forced bool) (uint64, error) {
	id, err := s.store.SubmitEvent(ctx, protocol.GlobalEvent{
		Time:    s.CurrentSnapshot().Time,
		Actor:   uint64(actorID),
		Forced:  forced,
		Kind:    kind,
		Payload: payload,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: submit %s: %w", kind, err)
	}
	return id, nil
}
