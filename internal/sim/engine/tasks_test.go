package engine

import (
	"context"
	"testing"

	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

func taskByKind(t *testing.T, sess *Session, kind state.TaskKind) *state.Task {
	t.Helper()
	for _, task := range sess.CurrentSnapshot().Tasks {
		if task.Kind == kind {
			return task
		}
	}
	t.Fatalf("no %s task", kind)
	return nil
}

func TestPreTriage_ClassifiesEveryPatientThenCompletesOnce(t *testing.T) {
	sess, _ := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)

	if got := taskByKind(t, sess, state.TaskPreTriage).Status; got != state.TaskUninitialized {
		t.Fatalf("initial status = %s, want %s", got, state.TaskUninitialized)
	}

	// Two rescuers, ten patients, 60s per examination: two patients per
	// slice once the allocation lands.
	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	advanceSlices(t, sess, 1)

	snap := sess.CurrentSnapshot()
	if got := taskByKind(t, sess, state.TaskPreTriage).Status; got != state.TaskOnGoing {
		t.Fatalf("status after allocation = %s, want %s", got, state.TaskOnGoing)
	}
	triaged := 0
	for _, p := range snap.Patients {
		if p.Triage != state.TriageNone {
			triaged++
		}
	}
	if triaged != 2 {
		t.Fatalf("triaged after first slice = %d, want 2", triaged)
	}

	advanceSlices(t, sess, 4)

	snap = sess.CurrentSnapshot()
	for _, p := range snap.Patients {
		if p.Triage == state.TriageNone {
			t.Fatalf("patient %s still unclassified", p.ID)
		}
	}
	task := taskByKind(t, sess, state.TaskPreTriage)
	if task.Status != state.TaskCompleted {
		t.Fatalf("status = %s, want %s", task.Status, state.TaskCompleted)
	}
	if len(task.SubTasks) != 0 {
		t.Fatalf("completed task kept %d sub-tasks", len(task.SubTasks))
	}
	if got := countRadio(sess, "pretriage_complete"); got != 1 {
		t.Fatalf("completion broadcasts = %d, want exactly 1", got)
	}
	if got := countRadio(sess, "pretriage_result"); got != len(snap.Patients) {
		t.Fatalf("per-patient results = %d, want %d", got, len(snap.Patients))
	}

	// Resources return to the idle pool with clean accumulators.
	waiting := snap.WaitingTask()
	if n := len(snap.UnitsOnTask(task.ID)); n != 0 {
		t.Fatalf("%d units still on the completed task", n)
	}
	for _, u := range snap.Resources {
		if u.TaskID == waiting.ID && u.CumulatedUnusedTime != 0 {
			t.Fatalf("unit %d returned with accumulator %d", u.ID, u.CumulatedUnusedTime)
		}
	}
	if err := snap.CheckExclusive(); err != nil {
		t.Fatalf("ledger: %v", err)
	}

	// Further slices stay quiet: a completed task never re-announces.
	advanceSlices(t, sess, 2)
	if got := countRadio(sess, "pretriage_complete"); got != 1 {
		t.Fatalf("completion broadcasts after extra slices = %d, want 1", got)
	}
}

func TestPorter_CarriesTriagedPatientsInFullGroups(t *testing.T) {
	sess, _ := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)

	// Triage first so patients become porterable, and open the PMA.
	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	submitAction(t, sess, "build_pma", al.ID, nil)
	advanceSlices(t, sess, 5)

	// Four rescuers form two porter groups of two.
	submitAction(t, sess, "assign_porters", al.ID, nil)
	advanceSlices(t, sess, 1)

	task := taskByKind(t, sess, state.TaskPorter)
	if task.Status != state.TaskOnGoing {
		t.Fatalf("porter status = %s, want %s", task.Status, state.TaskOnGoing)
	}
	if got := len(task.SubTasks); got != 2 {
		t.Fatalf("trips in flight = %d, want 2", got)
	}

	// A trip is 120s out, 120s back. After two slices the first two live
	// patients are at the PMA and the groups are walking back.
	advanceSlices(t, sess, 2)
	snap := sess.CurrentSnapshot()
	atPMA := 0
	for _, p := range snap.Patients {
		if p.Location == "PMA" {
			atPMA++
		}
	}
	if atPMA != 2 {
		t.Fatalf("patients at PMA after first trip = %d, want 2", atPMA)
	}

	// Drive the task to completion: every living triaged patient ends up at
	// the target, the dead stay behind, exactly one completion broadcast.
	advanceSlices(t, sess, 40)
	snap = sess.CurrentSnapshot()
	for _, p := range snap.Patients {
		if p.Triage == state.TriageDead {
			if p.Location != "CHANTIER" {
				t.Fatalf("dead patient %s was carried to %s", p.ID, p.Location)
			}
			continue
		}
		if p.Location != "PMA" {
			t.Fatalf("patient %s (%s) still at %s", p.ID, p.Triage, p.Location)
		}
	}
	if got := taskByKind(t, sess, state.TaskPorter).Status; got != state.TaskCompleted {
		t.Fatalf("porter status = %s, want %s", got, state.TaskCompleted)
	}
	if got := countRadio(sess, "porterage_complete"); got != 1 {
		t.Fatalf("completion broadcasts = %d, want 1", got)
	}
}

// porterInFlight triages the casualties, opens the PMA and staffs the porter
// task with two groups mid-trip.
func porterInFlight(t *testing.T, sess *Session) *state.Task {
	t.Helper()
	al := actorWithRole(t, sess, state.RoleAL)
	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	submitAction(t, sess, "build_pma", al.ID, nil)
	advanceSlices(t, sess, 5)
	submitAction(t, sess, "assign_porters", al.ID, nil)
	advanceSlices(t, sess, 1)

	task := taskByKind(t, sess, state.TaskPorter)
	if task.Status != state.TaskOnGoing || len(task.SubTasks) != 2 {
		t.Fatalf("porter not in flight: status=%s trips=%d", task.Status, len(task.SubTasks))
	}
	return task
}

// recallUnits submits a trainer recall for the units and folds it in.
func recallUnits(t *testing.T, sess *Session, ids []state.ResourceID) {
	t.Helper()
	if _, err := sess.SubmitResourceRecall(context.Background(), ids); err != nil {
		t.Fatalf("recall: %v", err)
	}
	process(t, sess)
}

func TestPorter_RecallingOneMemberDropsItsWholeTrip(t *testing.T) {
	sess, _ := newTestSession(t)
	task := porterInFlight(t, sess)

	// Recall one member of the first group, a trainer intervention.
	firstTrip := task.SubTasks[sortedSubTaskIDs(task)[0]]
	recalled, kept := firstTrip.Resources[0], firstTrip.Resources[1]
	recallUnits(t, sess, []state.ResourceID{recalled})

	snap := sess.CurrentSnapshot()
	if got := snap.ResourceByID(recalled).TaskID; got != snap.WaitingTask().ID {
		t.Fatalf("recalled unit on task %d, want waiting pool %d", got, snap.WaitingTask().ID)
	}

	advanceSlices(t, sess, 1)

	task = taskByKind(t, sess, state.TaskPorter)
	if got := len(task.SubTasks); got != 1 {
		t.Fatalf("trips after recall = %d, want 1", got)
	}
	// The abandoned partner lost its progress but stayed on the task.
	partner := sess.CurrentSnapshot().ResourceByID(kept)
	if partner.TaskID != task.ID {
		t.Fatalf("partner left the task: on %d", partner.TaskID)
	}
	if partner.CumulatedUnusedTime != 0 {
		t.Fatalf("partner accumulator = %d, want 0 after drop", partner.CumulatedUnusedTime)
	}
}

func TestPorter_PausesWhenUnstaffedAndResumes(t *testing.T) {
	sess, _ := newTestSession(t)
	task := porterInFlight(t, sess)
	al := actorWithRole(t, sess, state.RoleAL)

	var ids []state.ResourceID
	for _, u := range sess.CurrentSnapshot().UnitsOnTask(task.ID) {
		ids = append(ids, u.ID)
	}
	recallUnits(t, sess, ids)
	advanceSlices(t, sess, 1)

	if got := taskByKind(t, sess, state.TaskPorter).Status; got != state.TaskPaused {
		t.Fatalf("status after full recall = %s, want %s", got, state.TaskPaused)
	}

	submitAction(t, sess, "assign_porters", al.ID, nil)
	advanceSlices(t, sess, 1)
	if got := taskByKind(t, sess, state.TaskPorter).Status; got != state.TaskOnGoing {
		t.Fatalf("status after restaffing = %s, want %s", got, state.TaskOnGoing)
	}
}

func TestHealing_StabilizesUrgentPatientsThenCompletes(t *testing.T) {
	sess, _ := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)

	// Triage everyone, open the PMA, start porterage.
	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	submitAction(t, sess, "build_pma", al.ID, nil)
	advanceSlices(t, sess, 5)
	submitAction(t, sess, "assign_porters", al.ID, nil)
	// Two slices in, the first two casualties reach the PMA.
	advanceSlices(t, sess, 2)

	// Never staffed yet, so not Paused.
	if got := taskByKind(t, sess, state.TaskHealing).Status; got != state.TaskUninitialized {
		t.Fatalf("healing status before staffing = %s, want %s", got, state.TaskUninitialized)
	}

	submitAction(t, sess, "assign_healers", al.ID, nil)
	advanceSlices(t, sess, 1)
	if got := taskByKind(t, sess, state.TaskHealing).Status; got != state.TaskOnGoing {
		t.Fatalf("healing status after staffing = %s, want %s", got, state.TaskOnGoing)
	}

	// One caregiver, 300s per patient: the five immediate/urgent casualties
	// are stabilized one by one as porters deliver them.
	advanceSlices(t, sess, 30)

	snap := sess.CurrentSnapshot()
	stabilized := 0
	for _, p := range snap.Patients {
		if p.Triage == state.TriageImmediate || p.Triage == state.TriageUrgent {
			if !p.Treated {
				t.Fatalf("patient %s (%s) never stabilized", p.ID, p.Triage)
			}
			stabilized++
		} else if p.Treated {
			t.Fatalf("patient %s (%s) treated outside the immediate/urgent set", p.ID, p.Triage)
		}
	}
	if stabilized != 5 {
		t.Fatalf("immediate/urgent patients = %d, want 5", stabilized)
	}
	if got := countRadio(sess, "patient_stabilized"); got != 5 {
		t.Fatalf("stabilization notices = %d, want 5", got)
	}
	if got := taskByKind(t, sess, state.TaskHealing).Status; got != state.TaskCompleted {
		t.Fatalf("healing status = %s, want %s", got, state.TaskCompleted)
	}
	if got := countRadio(sess, "healing_complete"); got != 1 {
		t.Fatalf("completion broadcasts = %d, want 1", got)
	}
	waiting := snap.WaitingTask()
	for _, u := range snap.Resources {
		if u.Type != "MEDECIN" {
			continue
		}
		if u.TaskID != waiting.ID || u.CumulatedUnusedTime != 0 {
			t.Fatalf("caregiver not released cleanly: %+v", u)
		}
	}
}

func TestEvacuation_RoundTripReturnsVehicleToPool(t *testing.T) {
	sess, _ := newTestSession(t)
	al := actorWithRole(t, sess, state.RoleAL)

	// Triage, open the PMA and carry the first casualties there.
	submitAction(t, sess, "assign_pretriage", al.ID, nil)
	submitAction(t, sess, "build_pma", al.ID, nil)
	advanceSlices(t, sess, 5)
	submitAction(t, sess, "assign_porters", al.ID, nil)
	advanceSlices(t, sess, 2)

	if got := sess.CurrentSnapshot().PatientByID("P01").Location; got != "PMA" {
		t.Fatalf("P01 at %s, want PMA", got)
	}

	submitAction(t, sess, "evacuate_patient", al.ID, map[string]string{"patient": "P01"})
	advanceSlices(t, sess, 2)

	task := taskByKind(t, sess, state.TaskEvacuation)
	if task.Status != state.TaskOnGoing || len(task.SubTasks) != 1 {
		t.Fatalf("evacuation not in flight: status=%s trips=%d", task.Status, len(task.SubTasks))
	}
	vehicles := sess.CurrentSnapshot().UnitsOnTask(task.ID)
	if len(vehicles) != 1 || vehicles[0].Type != "AMBULANCE" {
		t.Fatalf("evacuation staffing wrong: %+v", vehicles)
	}
	vehicleID := vehicles[0].ID

	// 600s to the hospital.
	advanceSlices(t, sess, 9)
	snap := sess.CurrentSnapshot()
	p := snap.PatientByID("P01")
	if !p.Evacuated || p.Location != state.LocationRemote {
		t.Fatalf("P01 after outbound leg: %+v", p)
	}
	if got := countRadio(sess, "patient_evacuated"); got != 1 {
		t.Fatalf("evacuation notices = %d, want 1", got)
	}
	if got := snap.ResourceByID(vehicleID).Location; got != state.LocationRemote {
		t.Fatalf("vehicle at %s during drop-off, want %s", got, state.LocationRemote)
	}

	// 600s back, then the vehicle rests on the waiting pool.
	advanceSlices(t, sess, 10)
	snap = sess.CurrentSnapshot()
	v := snap.ResourceByID(vehicleID)
	if v.TaskID != snap.WaitingTask().ID || v.Location != "PMA" || v.CumulatedUnusedTime != 0 {
		t.Fatalf("vehicle not released cleanly: %+v", v)
	}
	task = taskByKind(t, sess, state.TaskEvacuation)
	if len(task.SubTasks) != 0 {
		t.Fatalf("round trip left %d sub-tasks", len(task.SubTasks))
	}
	if task.Status == state.TaskCompleted {
		t.Fatalf("evacuation completed with casualties remaining")
	}
	if err := snap.CheckExclusive(); err != nil {
		t.Fatalf("ledger: %v", err)
	}
}
