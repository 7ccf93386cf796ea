package state

// Role is one of the fixed incident-command roles an actor can hold.
type Role string

const (
	RoleAL      Role = "AL"      // leading ambulance officer, first on site
	RoleACS     Role = "ACS"     // ambulance commander
	RoleMCS     Role = "MCS"     // medical commander
	RoleLeadPMA Role = "LEADPMA" // leader of the casualty collection point
	RoleEvasan  Role = "EVASAN"  // evacuation officer
	RoleCASU    Role = "CASU"    // remote dispatch authority, never on site
)

// LocationID names a map location ("CHANTIER", "PMA", "PC", ...). The set of
// valid ids comes from the scenario catalog.
type LocationID string

// LocationRemote is where off-site actors (CASU) and not-yet-arrived
// resources live.
const LocationRemote LocationID = "REMOTE"

// BuildStatus tracks the lifecycle of a map location.
type BuildStatus string

const (
	BuildSelecting BuildStatus = "SELECTING"
	BuildBuilding  BuildStatus = "BUILDING"
	BuildReady     BuildStatus = "READY"
	BuildRemoved   BuildStatus = "REMOVED"
)

type ActorID uint64

type Actor struct {
	ID       ActorID
	Role     Role
	Location LocationID
	// Symbolic is the actor's home location; the actor returns there when a
	// movement action completes without an explicit destination.
	Symbolic LocationID
	// OnSite actors participate in the time-forward barrier.
	OnSite bool
}

type MapLocation struct {
	ID     LocationID
	Name   string
	Status BuildStatus
	// BuiltBy records the action that created the location, zero for
	// scenario-defined ones.
	BuiltBy ActionID
}

// ResourceType is a human skill or vehicle kind from the scenario catalog.
type ResourceType string

type ResourceID uint64

// ResourceUnit is an indivisible allocatable entity. It is either free
// (assigned to the waiting task), reserved by exactly one pending action, or
// assigned to exactly one task.
type ResourceUnit struct {
	ID       ResourceID
	Type     ResourceType
	Location LocationID
	// TaskID is the current task assignment, zero when unassigned.
	TaskID TaskID
	// ReservedBy holds the reserving action id, zero when unreserved.
	ReservedBy ActionID
	// CumulatedUnusedTime carries fractional work progress across simulated
	// time slices so no effort is lost when a jump is chunked.
	CumulatedUnusedTime int64
}

// ContainerDef is a dispatchable resource bundle offered by the remote
// dispatch authority (one ambulance with its crew, a helicopter, ...).
type ContainerDef struct {
	ID            string
	Name          string
	TravelSeconds int64
	Resources     map[ResourceType]int
}

// PendingArrival is a granted dispatch still travelling to the site. Its
// units materialize once simulated time reaches DueTime.
type PendingArrival struct {
	ContainerID string
	At          LocationID
	DueTime     int64
	// RequestedBy signed the request; the arrival report falls back to them
	// when nobody commands the arrival location yet.
	RequestedBy ActorID
}

type ActionID uint64

type ActionStatus string

const (
	ActionUninitialized ActionStatus = "UNINITIALIZED"
	ActionOnGoing       ActionStatus = "ONGOING"
	ActionCompleted     ActionStatus = "COMPLETED"
	ActionCancelled     ActionStatus = "CANCELLED"
)

// Action is a live instance of an action template: a short, timed,
// player-triggered effect.
type Action struct {
	ID         ActionID
	TemplateID string
	Owner      ActorID
	StartTime  int64
	Duration   int64
	Status     ActionStatus
	// Params are the immutable construction parameters the creation event
	// carried (destination location, message text, container id, ...). All
	// effects are pure functions of the snapshot and these params.
	Params map[string]string
}

func (a *Action) EndTime() int64 { return a.StartTime + a.Duration }

type TaskID uint64

type TaskStatus string

const (
	TaskUninitialized TaskStatus = "UNINITIALIZED"
	TaskOnGoing       TaskStatus = "ONGOING"
	TaskPaused        TaskStatus = "PAUSED"
	TaskCompleted     TaskStatus = "COMPLETED"
	TaskCancelled     TaskStatus = "CANCELLED"
)

type TaskKind string

const (
	TaskPreTriage  TaskKind = "PRE_TRIAGE"
	TaskPorter     TaskKind = "PORTER"
	TaskHealing    TaskKind = "HEALING"
	TaskEvacuation TaskKind = "EVACUATION"
	TaskWaiting    TaskKind = "WAITING"
)

// Task is a long-lived background work category at a role/location
// combination. The task set is fixed at game start; tasks are never
// destroyed, only completed or cancelled.
type Task struct {
	ID       TaskID
	Kind     TaskKind
	Role     Role
	Location LocationID
	// Target is where porterage delivers patients; unused by other kinds.
	Target LocationID
	Status TaskStatus
	// SubTasks groups resources cooperating on one work item. They are
	// recomputed from resource and task state on a full rebuild, never
	// serialized.
	SubTasks map[SubTaskID]*SubTask
}

type SubTaskID uint64

type SubTask struct {
	ID        SubTaskID
	Resources []ResourceID
	// Exactly one of PatientID / Target is meaningful, per task kind.
	PatientID PatientID
	Target    LocationID
	// CumulatedTime is resource-seconds spent on the current work unit.
	CumulatedTime int64
	// Returning marks the travel-back leg of a round trip.
	Returning bool
}

type PatientID string

// TriageCategory is the outcome of pre-triage.
type TriageCategory string

const (
	TriageNone      TriageCategory = ""
	TriageImmediate TriageCategory = "IMMEDIATE"
	TriageUrgent    TriageCategory = "URGENT"
	TriageNonUrgent TriageCategory = "NON_URGENT"
	TriageDead      TriageCategory = "DEAD"
)

type Patient struct {
	ID       PatientID
	Location LocationID
	Triage   TriageCategory
	// Treated marks completed on-site care at the casualty collection point.
	Treated   bool
	Evacuated bool
}

// Channel is a radio channel. Channel busy-ness gates concurrent actions.
type Channel string

const (
	ChannelCASU   Channel = "CASU"
	ChannelActors Channel = "ACTORS"
	ChannelEvasan Channel = "EVASAN"
	// ChannelNone marks actions that do not occupy a channel.
	ChannelNone Channel = ""
)

type RadioMessage struct {
	ID      uint64
	Time    int64
	Sender  ActorID
	Channel Channel
	Text    string
	// System messages carry engine notifications (rejections, completions)
	// rather than player speech.
	System bool
}

// TimeFrame is the per-step time-forward barrier bookkeeping. It is rebuilt
// after every completed time advance.
type TimeFrame struct {
	// CurrentTime stamps the simulated time this frame belongs to. Readiness
	// updates carrying a different expected time are discarded.
	CurrentTime int64
	// Readiness counts time-forward requests per on-site actor. Time moves
	// one slice only when every on-site actor's counter is positive.
	Readiness map[ActorID]int
}
