// Package scenario loads the exercise definition: roles, action templates,
// resource types and dispatchable containers, map locations, starting
// patients and tasks. Scenarios are YAML files so trainers can swap
// exercises without code changes.
package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Kind discriminates action template behavior. A closed set: the engine
// pattern-matches on it, there are no subclasses.
type Kind string

const (
	KindMoveActor       Kind = "MOVE_ACTOR"
	KindAppointRole     Kind = "APPOINT_ROLE"
	KindSendRadio       Kind = "SEND_RADIO"
	KindRequestDispatch Kind = "REQUEST_DISPATCH"
	KindBuildMapEntity  Kind = "BUILD_MAP_ENTITY"
	KindAllocate        Kind = "ALLOCATE_RESOURCES"
	KindEvacuate        Kind = "EVACUATE_TO_HOSPITAL"
	KindSituationUpdate Kind = "SITUATION_UPDATE"
)

type RoleDef struct {
	ID        state.Role `yaml:"id" json:"id"`
	Seniority int        `yaml:"seniority" json:"seniority"`
	OnSite    bool       `yaml:"on_site" json:"on_site"`
	Home      string     `yaml:"home" json:"home"`
	// Present roles get an actor at game start; the others are appointed
	// through role-appointment actions.
	Present bool `yaml:"present" json:"present"`
}

type ActionTemplate struct {
	ID              string   `yaml:"id" json:"id"`
	Kind            Kind     `yaml:"kind" json:"kind"`
	DurationSeconds int64    `yaml:"duration_s" json:"duration_s"`
	Category        string   `yaml:"category" json:"category"`
	Channel         string   `yaml:"channel" json:"channel"`
	RequiredFlags   []string `yaml:"required_flags" json:"required_flags"`
	GrantedFlags    []string `yaml:"granted_flags" json:"granted_flags"`
	// Roles allowed to trigger the action; empty means any role.
	Roles      []state.Role      `yaml:"roles" json:"roles"`
	Replayable bool              `yaml:"replayable" json:"replayable"`
	Defaults   map[string]string `yaml:"defaults" json:"defaults"`
	MessageKey string            `yaml:"message_key" json:"message_key"`
}

type ResourceTypeDef struct {
	ID state.ResourceType `yaml:"id" json:"id"`
	// Kind is "HUMAN" or "VEHICLE".
	Kind string `yaml:"kind" json:"kind"`
}

type ContainerDef struct {
	ID            string         `yaml:"id" json:"id"`
	Name          string         `yaml:"name" json:"name"`
	TravelSeconds int64          `yaml:"travel_s" json:"travel_s"`
	Resources     map[string]int `yaml:"resources" json:"resources"`
}

type LocationDef struct {
	ID   state.LocationID `yaml:"id" json:"id"`
	Name string           `yaml:"name" json:"name"`
	// Buildable locations start in SELECTING and must be built through an
	// action; the others start READY.
	Buildable bool `yaml:"buildable" json:"buildable"`
}

type PatientDef struct {
	ID       state.PatientID  `yaml:"id" json:"id"`
	Location state.LocationID `yaml:"location" json:"location"`
}

type UnitGroup struct {
	Type     state.ResourceType `yaml:"type" json:"type"`
	Location state.LocationID   `yaml:"location" json:"location"`
	Count    int                `yaml:"count" json:"count"`
}

type TaskDef struct {
	Kind     state.TaskKind   `yaml:"kind" json:"kind"`
	Role     state.Role       `yaml:"role" json:"role"`
	Location state.LocationID `yaml:"location" json:"location"`
	// Target is the delivery location for porterage tasks.
	Target state.LocationID `yaml:"target" json:"target"`
}

type Scenario struct {
	Name string `yaml:"name" json:"name"`

	Roles      []RoleDef         `yaml:"roles" json:"roles"`
	Templates  []ActionTemplate  `yaml:"action_templates" json:"action_templates"`
	Types      []ResourceTypeDef `yaml:"resource_types" json:"resource_types"`
	Containers []ContainerDef    `yaml:"containers" json:"containers"`
	Locations  []LocationDef     `yaml:"locations" json:"locations"`
	Patients   []PatientDef      `yaml:"patients" json:"patients"`
	Units      []UnitGroup       `yaml:"units" json:"units"`
	Tasks      []TaskDef         `yaml:"tasks" json:"tasks"`

	// Digest fingerprints the loaded scenario; replays across differing
	// scenarios are refused up front.
	Digest string `yaml:"-" json:"-"`

	byTemplate map[string]*ActionTemplate
	byRole     map[state.Role]*RoleDef
}

// Load reads <dir>/scenario.yaml.
func Load(dir string) (*Scenario, error) {
	return LoadFile(filepath.Join(dir, "scenario.yaml"))
}

func LoadFile(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := sc.init(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) init() error {
	sc.byTemplate = make(map[string]*ActionTemplate, len(sc.Templates))
	for i := range sc.Templates {
		t := &sc.Templates[i]
		if t.ID == "" {
			return fmt.Errorf("scenario: action template %d has no id", i)
		}
		if _, dup := sc.byTemplate[t.ID]; dup {
			return fmt.Errorf("scenario: duplicate action template %q", t.ID)
		}
		sc.byTemplate[t.ID] = t
	}
	sc.byRole = make(map[state.Role]*RoleDef, len(sc.Roles))
	for i := range sc.Roles {
		r := &sc.Roles[i]
		if _, dup := sc.byRole[r.ID]; dup {
			return fmt.Errorf("scenario: duplicate role %q", r.ID)
		}
		sc.byRole[r.ID] = r
	}
	hasWaiting := false
	for _, t := range sc.Tasks {
		if t.Kind == state.TaskWaiting {
			hasWaiting = true
		}
	}
	if !hasWaiting {
		return fmt.Errorf("scenario: task list must include the %s idle pool", state.TaskWaiting)
	}

	// Canonical JSON digest, same scheme as the other catalogs.
	canon, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("scenario: digest: %w", err)
	}
	sum := sha256.Sum256(canon)
	sc.Digest = hex.EncodeToString(sum[:])
	return nil
}

func (sc *Scenario) TemplateByID(id string) (*ActionTemplate, bool) {
	t, ok := sc.byTemplate[id]
	return t, ok
}

func (sc *Scenario) RoleByID(id state.Role) (*RoleDef, bool) {
	r, ok := sc.byRole[id]
	return r, ok
}

// MostSeniorPresent returns the highest-seniority roles among the given
// actors. Equal-rank ties return all tied actors.
func (sc *Scenario) MostSeniorPresent(actors []*state.Actor) []*state.Actor {
	best := -1
	for _, a := range actors {
		if r, ok := sc.byRole[a.Role]; ok && r.Seniority > best {
			best = r.Seniority
		}
	}
	if best < 0 {
		return nil
	}
	var out []*state.Actor
	for _, a := range actors {
		if r, ok := sc.byRole[a.Role]; ok && r.Seniority == best {
			out = append(out, a)
		}
	}
	return out
}
