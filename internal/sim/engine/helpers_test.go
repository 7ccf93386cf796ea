package engine

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/Heigvd/mimms-sub001/internal/persistence/eventdb"
	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
	"github.com/Heigvd/mimms-sub001/internal/sim/tuning"
)

func testScenario(t *testing.T) *scenario.Scenario {
	t.Helper()
	scen, err := scenario.Load("../../../configs")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	return scen
}

func newTestSession(t *testing.T) (*Session, *eventdb.MemoryStore) {
	t.Helper()
	store := eventdb.NewMemory()
	sess := newSessionOn(t, store)
	return sess, store
}

func newSessionOn(t *testing.T, store EventStore) *Session {
	t.Helper()
	sess, err := NewSession(context.Background(), SessionConfig{
		Store:    store,
		Logger:   log.New(io.Discard, "", 0),
		Scenario: testScenario(t),
		Tuning:   tuning.Defaults(),
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return sess
}

func process(t *testing.T, sess *Session) int {
	t.Helper()
	n, err := sess.ProcessPendingEvents(context.Background())
	if err != nil {
		t.Fatalf("process events: %v", err)
	}
	return n
}

func actorWithRole(t *testing.T, sess *Session, role state.Role) *state.Actor {
	t.Helper()
	actors := sess.CurrentSnapshot().ActorsByRole(role)
	if len(actors) == 0 {
		t.Fatalf("no actor with role %s", role)
	}
	return actors[0]
}

// submitAction submits a creation event and folds it in.
func submitAction(t *testing.T, sess *Session, templateID string, actor state.ActorID, params map[string]string) {
	t.Helper()
	if _, err := sess.SubmitActionCreation(context.Background(), templateID, actor, params); err != nil {
		t.Fatalf("submit %s: %v", templateID, err)
	}
	process(t, sess)
}

// advanceSlices moves simulated time forward crediting the AL actor, one
// slice per call. The exercise scenario starts with AL as the only on-site
// actor, so a single credit satisfies the barrier.
func advanceSlices(t *testing.T, sess *Session, n int) {
	t.Helper()
	al := actorWithRole(t, sess, state.RoleAL)
	for i := 0; i < n; i++ {
		before := sess.CurrentSnapshot().Time
		if _, err := sess.SubmitTimeForward(context.Background(), al.ID); err != nil {
			t.Fatalf("time forward: %v", err)
		}
		process(t, sess)
		after := sess.CurrentSnapshot().Time
		if after != before+sess.Tuning().TimeSliceSeconds {
			t.Fatalf("slice %d: time %d -> %d, want +%d", i, before, after, sess.Tuning().TimeSliceSeconds)
		}
	}
}

func findAction(sess *Session, templateID string) *state.Action {
	for _, a := range sess.CurrentSnapshot().Actions {
		if a.TemplateID == templateID {
			return a
		}
	}
	return nil
}

func radioTexts(sess *Session) []string {
	var out []string
	for _, m := range sess.CurrentSnapshot().RadioLog {
		out = append(out, m.Text)
	}
	return out
}

func countRadio(sess *Session, substr string) int {
	n := 0
	for _, m := range sess.CurrentSnapshot().RadioLog {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}
