package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Event log replay. The global log is the durable truth; this file folds it
// onto snapshots. Applying the same log from the same start always yields
// bit-identical snapshots: conversion, ordering and the cascade drain are
// all deterministic.

// ProcessPendingEvents fetches the full ordered log, selects the
// unprocessed, non-ignored subset, sorts it by (trigger time, submission
// order) and applies each event in turn. Events triggering in the future are
// deferred to a later poll. Returns how many events were consumed.
func (s *Session) ProcessPendingEvents(ctx context.Context) (int, error) {
	events, err := s.store.FetchAllEvents(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine: fetch events: %w", err)
	}

	pending := make([]protocol.GlobalEvent, 0, len(events))
	for _, ev := range events {
		if _, done := s.processed[ev.ID]; done {
			continue
		}
		if _, skip := s.ignored[ev.ID]; skip {
			continue
		}
		pending = append(pending, ev)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].Time != pending[j].Time {
			return pending[i].Time < pending[j].Time
		}
		return pending[i].ID < pending[j].ID
	})

	applied := 0
	for _, ev := range pending {
		now := s.CurrentSnapshot().Time
		if ev.Time > now && !ev.Forced {
			// Future: reconsidered once time has advanced. Sorted order
			// means everything after it is future too, unless an applied
			// event moves time first, so keep scanning.
			continue
		}
		s.applyGlobalEvent(ev)
		applied++
	}
	return applied, nil
}

func (s *Session) applyGlobalEvent(ev protocol.GlobalEvent) {
	s.processed[ev.ID] = struct{}{}

	if ev.Kind == protocol.EventOption {
		var p protocol.OptionPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.logger.Printf("event %d: option payload: %v", ev.ID, err)
			return
		}
		// Live configuration replacement; no snapshot mutation.
		s.options[p.Key] = p.Value
		return
	}

	now := s.CurrentSnapshot().Time
	evTime := ev.Time
	if evTime < now {
		if !ev.Forced {
			s.logger.Printf("event %d (%s): stale trigger time %d < %d; discarded (%s)",
				ev.ID, ev.Kind, evTime, now, protocol.ErrStale)
			return
		}
		// Trainer override: coerced to now.
		evTime = now
	}

	snap := s.CurrentSnapshot().CreateNext(ev.ID)
	actx := &applyCtx{sess: s, snap: snap, wl: &worklist{}}
	s.convert(actx, ev, evTime)
	s.drain(actx)
	s.publish(snap)
}

// convert turns one accepted global event into local events on the
// worklist.
func (s *Session) convert(ctx *applyCtx, ev protocol.GlobalEvent, evTime int64) {
	switch ev.Kind {
	case protocol.EventActionCreation:
		var p protocol.ActionCreationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.logger.Printf("event %d: creation payload: %v", ev.ID, err)
			return
		}
		tpl, ok := s.scen.TemplateByID(p.TemplateID)
		if !ok {
			s.logger.Printf("event %d: unknown action template %q", ev.ID, p.TemplateID)
			return
		}
		owner := state.ActorID(ev.Actor)
		// Concurrency eligibility is checked here, at conversion time: a
		// blocked actor gets a rejection notification, never silent loss.
		if s.channelBusy(ctx.snap, owner, tpl.Channel) {
			ctx.wl.push(evRadio{
				Sender:  owner,
				Channel: state.Channel(tpl.Channel),
				Text:    s.tr.Translate("engine", "channel_busy", tpl.ID),
				System:  true,
			})
			return
		}
		ctx.wl.push(evPlanAction{
			TemplateID: p.TemplateID,
			Owner:      owner,
			StartTime:  evTime,
			Params:     p.Params,
		})

	case protocol.EventActionCancellation:
		var p protocol.ActionCancellationPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.logger.Printf("event %d: cancellation payload: %v", ev.ID, err)
			return
		}
		ctx.wl.push(evCancelAction{
			TemplateID: p.TemplateID,
			Owner:      state.ActorID(ev.Actor),
			StartTime:  p.StartTime,
		})

	case protocol.EventTimeForward:
		var p protocol.TimeForwardPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.logger.Printf("event %d: time_forward payload: %v", ev.ID, err)
			return
		}
		slice := s.tune.TimeSliceSeconds
		if p.Seconds <= 0 || p.Seconds%slice != 0 {
			s.logger.Printf("event %d: jump of %ds is not a multiple of the %ds slice; skipped (%s)",
				ev.ID, p.Seconds, slice, protocol.ErrBadJump)
			return
		}
		actors := make([]state.ActorID, 0, len(p.Actors))
		for _, id := range p.Actors {
			actors = append(actors, state.ActorID(id))
		}
		for k := int64(0); k < p.Seconds/slice; k++ {
			ctx.wl.push(evTimeForward{
				Actors:   actors,
				Expected: evTime + k*slice,
				Forced:   ev.Forced,
			})
		}

	case protocol.EventResourceRecall:
		var p protocol.ResourceRecallPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.logger.Printf("event %d: resource_recall payload: %v", ev.ID, err)
			return
		}
		ids := make([]state.ResourceID, 0, len(p.Resources))
		for _, id := range p.Resources {
			ids = append(ids, state.ResourceID(id))
		}
		ctx.wl.push(evRecallResources{Resources: ids})

	case protocol.EventTimeForwardCancel:
		var p protocol.TimeForwardCancelPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.logger.Printf("event %d: time_forward_cancel payload: %v", ev.ID, err)
			return
		}
		actors := make([]state.ActorID, 0, len(p.Actors))
		for _, id := range p.Actors {
			actors = append(actors, state.ActorID(id))
		}
		ctx.wl.push(evTimeForwardCancel{
			Actors:   actors,
			Expected: ctx.snap.Frame.CurrentTime,
		})

	default:
		s.logger.Printf("event %d: unknown kind %q; ignored", ev.ID, ev.Kind)
	}
}

// drain applies queued local events to a fixed point, in passes. The
// ceiling bounds runaway event generation: hitting it logs an error and
// abandons the rest of the cascade for this tick.
func (s *Session) drain(ctx *applyCtx) {
	for pass := 0; pass < s.tune.CascadeCeiling; pass++ {
		batch := ctx.wl.takeAll()
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			ev.apply(ctx)
		}
	}
	if n := ctx.wl.len(); n > 0 {
		s.logger.Printf("cascade ceiling of %d passes reached; dropping %d local events (%s)",
			s.tune.CascadeCeiling, n, protocol.ErrCascade)
	}
}
