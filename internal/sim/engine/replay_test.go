package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"strings"
	"testing"

	"github.com/Heigvd/mimms-sub001/internal/persistence/eventdb"
	"github.com/Heigvd/mimms-sub001/internal/protocol"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
	"github.com/Heigvd/mimms-sub001/internal/sim/tuning"
)

func TestReplay_StaleEventDiscardedUnlessForced(t *testing.T) {
	sess, store := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)
	ctx := context.Background()

	advanceSlices(t, sess, 2) // now = 120
	seqBefore := sess.CurrentSnapshot().Seq

	payload, _ := json.Marshal(protocol.ActionCreationPayload{TemplateID: "radio_sitrep"})
	if _, err := store.SubmitEvent(ctx, protocol.GlobalEvent{
		Time: 60, Actor: uint64(al.ID), Kind: protocol.EventActionCreation, Payload: payload,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	process(t, sess)

	if got := sess.CurrentSnapshot().Seq; got != seqBefore {
		t.Fatalf("stale event published a snapshot: seq %d -> %d", seqBefore, got)
	}
	if findAction(sess, "radio_sitrep") != nil {
		t.Fatalf("stale event planned an action")
	}

	// The same stale event forced by a trainer is coerced to current time.
	if _, err := store.SubmitEvent(ctx, protocol.GlobalEvent{
		Time: 60, Actor: uint64(al.ID), Forced: true,
		Kind: protocol.EventActionCreation, Payload: payload,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	process(t, sess)

	a := findAction(sess, "radio_sitrep")
	if a == nil {
		t.Fatalf("forced stale event was not applied")
	}
	if a.StartTime != 120 {
		t.Fatalf("forced start time = %d, want coerced 120", a.StartTime)
	}
}

func TestReplay_FutureEventDeferredUntilTimeReaches(t *testing.T) {
	sess, store := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)
	ctx := context.Background()

	payload, _ := json.Marshal(protocol.ActionCreationPayload{TemplateID: "radio_sitrep"})
	if _, err := store.SubmitEvent(ctx, protocol.GlobalEvent{
		Time: 120, Actor: uint64(al.ID), Kind: protocol.EventActionCreation, Payload: payload,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	process(t, sess)
	if findAction(sess, "radio_sitrep") != nil {
		t.Fatalf("future event applied early")
	}

	advanceSlices(t, sess, 2) // now = 120; the pending event applies in-poll
	process(t, sess)

	a := findAction(sess, "radio_sitrep")
	if a == nil {
		t.Fatalf("future event never applied")
	}
	if a.StartTime != 120 {
		t.Fatalf("start time = %d, want 120", a.StartTime)
	}
}

func TestReplay_OptionEventChangesNoSnapshot(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()
	seqBefore := sess.CurrentSnapshot().Seq

	if _, err := sess.SubmitOption(ctx, "respiratory_cycles", "enabled"); err != nil {
		t.Fatalf("submit option: %v", err)
	}
	process(t, sess)

	if got := sess.CurrentSnapshot().Seq; got != seqBefore {
		t.Fatalf("option event published a snapshot: seq %d -> %d", seqBefore, got)
	}
	if v, ok := sess.Option("respiratory_cycles"); !ok || v != "enabled" {
		t.Fatalf("option not recorded: %q %v", v, ok)
	}
}

func TestReplay_SameLogYieldsIdenticalSnapshots(t *testing.T) {
	sess, store := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)

	submitAction(t, sess, "casu_first_report", al.ID, nil)
	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	submitAction(t, sess, "build_pma", al.ID, nil)
	advanceSlices(t, sess, 6)
	submitAction(t, sess, "assign_porters", al.ID, nil)
	advanceSlices(t, sess, 8)

	// Two independent sessions folding the same log must agree snapshot by
	// snapshot, not just at the tip.
	a := newSessionOn(t, store)
	b := newSessionOn(t, store)
	process(t, a)
	process(t, b)

	tip := sess.CurrentSnapshot()
	if got := a.CurrentSnapshot().Seq; got != tip.Seq {
		t.Fatalf("rebuilt seq = %d, want %d", got, tip.Seq)
	}
	for seq := uint64(0); seq <= tip.Seq; seq++ {
		sa, sb := a.SnapshotAt(seq), b.SnapshotAt(seq)
		if sa == nil || sb == nil {
			t.Fatalf("missing snapshot at seq %d", seq)
		}
		da, db := sa.Digest(), sb.Digest()
		if da != db {
			t.Fatalf("digest mismatch at seq %d: %s vs %s", seq, da, db)
		}
	}
	if got, want := a.CurrentSnapshot().Digest(), tip.Digest(); got != want {
		t.Fatalf("rebuilt tip digest %s, want live %s", got, want)
	}
}

func TestRebuildFromScratch_MatchesLiveDigest(t *testing.T) {
	sess, _ := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)

	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	advanceSlices(t, sess, 3)
	want := sess.CurrentSnapshot().Digest()
	wantSeq := sess.CurrentSnapshot().Seq

	if err := sess.RebuildFromScratch(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got := sess.CurrentSnapshot().Seq; got != wantSeq {
		t.Fatalf("rebuilt seq = %d, want %d", got, wantSeq)
	}
	if got := sess.CurrentSnapshot().Digest(); got != want {
		t.Fatalf("rebuilt digest = %s, want %s", got, want)
	}
}

func TestRewindTo_KeepsDeferredEventAppliedOutOfIDOrder(t *testing.T) {
	sess, store := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)
	ctx := context.Background()

	// The deferred action gets the lowest id in the log but applies last,
	// after the time-forward events that carry it to its trigger time. A
	// rewind to the tip must keep every one of them.
	payload, _ := json.Marshal(protocol.ActionCreationPayload{TemplateID: "radio_sitrep"})
	if _, err := store.SubmitEvent(ctx, protocol.GlobalEvent{
		Time: 120, Actor: uint64(al.ID), Kind: protocol.EventActionCreation, Payload: payload,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	process(t, sess)
	advanceSlices(t, sess, 2) // now = 120; the deferred action applies in-poll
	process(t, sess)

	tip := sess.CurrentSnapshot()
	if findAction(sess, "radio_sitrep") == nil {
		t.Fatalf("deferred action never applied")
	}
	want := tip.Digest()

	if err := sess.RewindTo(ctx, tip.Seq); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	snap := sess.CurrentSnapshot()
	if snap.Seq != tip.Seq || snap.Digest() != want {
		t.Fatalf("rewind to the tip changed it: seq=%d digest=%s, want seq=%d digest=%s",
			snap.Seq, snap.Digest(), tip.Seq, want)
	}
	if snap.Time != 120 {
		t.Fatalf("time = %d, want 120", snap.Time)
	}
	if findAction(sess, "radio_sitrep") == nil {
		t.Fatalf("rewind dropped an event the snapshot had consumed")
	}

	fresh := newSessionOn(t, store)
	process(t, fresh)
	if got := fresh.CurrentSnapshot().Digest(); got != want {
		t.Fatalf("fresh session digest = %s, want %s", got, want)
	}
}

func TestRewindTo_IgnoresLaterEventsPersistently(t *testing.T) {
	sess, store := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)
	ctx := context.Background()

	submitAction(t, sess, "casu_first_report", al.ID, nil)
	advanceSlices(t, sess, 1)
	mark := sess.CurrentSnapshot().Seq
	want := sess.CurrentSnapshot().Digest()

	advanceSlices(t, sess, 2)
	submitAction(t, sess, "radio_sitrep", al.ID, nil)

	if err := sess.RewindTo(ctx, mark); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	snap := sess.CurrentSnapshot()
	if snap.Seq != mark || snap.Digest() != want {
		t.Fatalf("rewound to seq=%d digest=%s, want seq=%d digest=%s",
			snap.Seq, snap.Digest(), mark, want)
	}
	if findAction(sess, "radio_sitrep") != nil {
		t.Fatalf("rewound snapshot still has the later action")
	}

	// The ignore set is persisted: a cold restart lands on the same state.
	fresh := newSessionOn(t, store)
	process(t, fresh)
	if got := fresh.CurrentSnapshot().Digest(); got != want {
		t.Fatalf("fresh session digest = %s, want %s", got, want)
	}
	if got := fresh.CurrentSnapshot().Time; got != 60 {
		t.Fatalf("fresh session time = %d, want 60", got)
	}
}

func TestDrain_CascadeCeilingStopsChainedAdvances(t *testing.T) {
	store := eventdb.NewMemory()
	var logBuf bytes.Buffer
	tune := tuning.Defaults()
	tune.CascadeCeiling = 2
	sess, err := NewSession(context.Background(), SessionConfig{
		Store:    store,
		Logger:   log.New(&logBuf, "", 0),
		Scenario: testScenario(t),
		Tuning:   tune,
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	al := actorWithRole(t, sess, state.RoleAL)

	// A 180s situation update reseeds its owner's readiness after every
	// slice, so a single credit wants to chain three advances. Two cascade
	// passes cover two of them; the third is dropped, not looped on.
	submitAction(t, sess, "situation_update", al.ID, nil)
	if _, err := sess.SubmitTimeForward(context.Background(), al.ID); err != nil {
		t.Fatalf("time forward: %v", err)
	}
	process(t, sess)

	if got := sess.CurrentSnapshot().Time; got != 120 {
		t.Fatalf("time after ceiling = %d, want 120", got)
	}
	if !strings.Contains(logBuf.String(), "cascade ceiling") {
		t.Fatalf("ceiling overflow not logged: %q", logBuf.String())
	}
}
