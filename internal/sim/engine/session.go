// Package engine turns the shared, append-only global event log into a
// reproducible sequence of snapshot mutations. It owns simulated time, the
// action and task lifecycles, the resource ledger discipline and the
// time-forward barrier.
//
// The engine is single-threaded and cooperative: all state must be accessed
// from one goroutine. Every mutation happens through a named local event, so
// the full audit trail of "who changed what, when" is reconstructible from
// the global log alone.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/Heigvd/mimms-sub001/internal/protocol"
	"github.com/Heigvd/mimms-sub001/internal/sim/scenario"
	"github.com/Heigvd/mimms-sub001/internal/sim/state"
	"github.com/Heigvd/mimms-sub001/internal/sim/tuning"
)

// EventStore is the durable shared log plus the config blob table. The
// engine treats it as an externally-ordered queue and never blocks on it.
type EventStore interface {
	SubmitEvent(ctx context.Context, ev protocol.GlobalEvent) (uint64, error)
	FetchAllEvents(ctx context.Context) ([]protocol.GlobalEvent, error)
	// ReadConfigBlob returns nil with no error when the key is absent.
	ReadConfigBlob(ctx context.Context, key string) ([]byte, error)
	WriteConfigBlob(ctx context.Context, key string, value []byte) error
}

// Translator resolves message keys to display text.
type Translator interface {
	Translate(category, key string, args ...any) string
}

// PhysioAdvancer is the opaque physiology hook. The core never models
// patient state itself; it calls Advance on every time slice and Classify
// when a pre-triage work unit completes.
type PhysioAdvancer interface {
	Advance(p *state.Patient, elapsedSeconds int64)
	Classify(p *state.Patient) state.TriageCategory
}

// RadioSink receives every radio message once, for the JSONL audit trail.
// May be nil.
type RadioSink interface {
	Write(v any) error
}

// blob key for the persisted rewind ignore set
const blobIgnoredEvents = "ignored_events"

type Session struct {
	// histMu guards history so read-only http handlers may observe published
	// snapshots while the session goroutine replays. Snapshots themselves are
	// immutable once published.
	histMu sync.RWMutex

	store  EventStore
	tr     Translator
	logger *log.Logger
	scen   *scenario.Scenario
	tune   tuning.Tuning
	physio PhysioAdvancer

	history   []*state.Snapshot
	processed map[uint64]struct{}
	ignored   map[uint64]struct{}
	options   map[string]string

	// applied records, per published seq, the set of event ids consumed up to
	// and including that snapshot. Events apply in (trigger time, id) order,
	// so an id comparison against LastEventID cannot tell which events a
	// snapshot has seen; rewinding needs the exact set.
	applied map[uint64]map[uint64]struct{}

	radioSink RadioSink
	radioSeen uint64
}

type SessionConfig struct {
	Store      EventStore
	Translator Translator
	Logger     *log.Logger
	Scenario   *scenario.Scenario
	Tuning     tuning.Tuning
	// Physio may be nil; a deterministic default is used.
	Physio PhysioAdvancer
	// RadioSink may be nil.
	RadioSink RadioSink
}

func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if cfg.Scenario == nil {
		return nil, fmt.Errorf("engine: scenario is required")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	tr := cfg.Translator
	if tr == nil {
		tr = fallbackTranslator{}
	}
	physio := cfg.Physio
	if physio == nil {
		physio = defaultPhysio{}
	}

	s := &Session{
		store:     cfg.Store,
		tr:        tr,
		logger:    logger,
		scen:      cfg.Scenario,
		tune:      cfg.Tuning,
		physio:    physio,
		processed: map[uint64]struct{}{},
		ignored:   map[uint64]struct{}{},
		options:   map[string]string{},
		radioSink: cfg.RadioSink,
	}
	if err := s.loadIgnored(ctx); err != nil {
		return nil, err
	}
	s.history = []*state.Snapshot{s.initialSnapshot()}
	s.applied = map[uint64]map[uint64]struct{}{0: {}}
	return s, nil
}

// initialSnapshot materializes the scenario at simulated time zero.
func (s *Session) initialSnapshot() *state.Snapshot {
	snap := state.NewSnapshot()

	for _, l := range s.scen.Locations {
		status := state.BuildReady
		if l.Buildable {
			status = state.BuildSelecting
		}
		snap.Locations = append(snap.Locations, &state.MapLocation{
			ID: l.ID, Name: l.Name, Status: status,
		})
	}

	for _, r := range s.scen.Roles {
		if !r.Present {
			continue
		}
		snap.Actors = append(snap.Actors, &state.Actor{
			ID:       snap.NextActorID,
			Role:     r.ID,
			Location: state.LocationID(r.Home),
			Symbolic: state.LocationID(r.Home),
			OnSite:   r.OnSite,
		})
		snap.NextActorID++
	}

	nextTask := state.TaskID(1)
	for _, t := range s.scen.Tasks {
		snap.Tasks = append(snap.Tasks, &state.Task{
			ID:       nextTask,
			Kind:     t.Kind,
			Role:     t.Role,
			Location: t.Location,
			Target:   t.Target,
			Status:   state.TaskUninitialized,
			SubTasks: map[state.SubTaskID]*state.SubTask{},
		})
		nextTask++
	}

	waiting := snap.WaitingTask()
	for _, g := range s.scen.Units {
		for i := 0; i < g.Count; i++ {
			u := &state.ResourceUnit{
				ID:       snap.NextResourceID,
				Type:     g.Type,
				Location: g.Location,
			}
			if waiting != nil {
				u.TaskID = waiting.ID
			}
			snap.Resources = append(snap.Resources, u)
			snap.NextResourceID++
		}
	}

	for _, c := range s.scen.Containers {
		def := state.ContainerDef{
			ID: c.ID, Name: c.Name, TravelSeconds: c.TravelSeconds,
			Resources: map[state.ResourceType]int{},
		}
		for typ, n := range c.Resources {
			def.Resources[state.ResourceType(typ)] = n
		}
		snap.Containers = append(snap.Containers, def)
	}

	for _, p := range s.scen.Patients {
		snap.Patients = append(snap.Patients, &state.Patient{ID: p.ID, Location: p.Location})
	}

	for _, a := range snap.OnSiteActors() {
		snap.Frame.Readiness[a.ID] = 0
	}
	return snap
}

// CurrentSnapshot returns the latest published snapshot. Callers must treat
// it as read-only.
func (s *Session) CurrentSnapshot() *state.Snapshot {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	return s.history[len(s.history)-1]
}

// SnapshotAt returns the published snapshot with the given sequence number,
// or nil.
func (s *Session) SnapshotAt(seq uint64) *state.Snapshot {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	for _, snap := range s.history {
		if snap.Seq == seq {
			return snap
		}
	}
	return nil
}

// HistoryLen reports how many snapshots have been published, the initial one
// included.
func (s *Session) HistoryLen() int {
	s.histMu.RLock()
	defer s.histMu.RUnlock()
	return len(s.history)
}

// Option returns a live configuration value set through OPTION events.
func (s *Session) Option(key string) (string, bool) {
	v, ok := s.options[key]
	return v, ok
}

// Scenario exposes the loaded exercise definition.
func (s *Session) Scenario() *scenario.Scenario { return s.scen }

// Tuning exposes the effective tuning values.
func (s *Session) Tuning() tuning.Tuning { return s.tune }

// publish appends the snapshot to history and feeds new radio messages to
// the audit sink.
func (s *Session) publish(snap *state.Snapshot) {
	seen := make(map[uint64]struct{}, len(s.processed))
	for id := range s.processed {
		seen[id] = struct{}{}
	}
	s.histMu.Lock()
	s.history = append(s.history, snap)
	s.applied[snap.Seq] = seen
	s.histMu.Unlock()
	if s.radioSink == nil {
		return
	}
	for _, m := range snap.RadioLog {
		if m.ID <= s.radioSeen {
			continue
		}
		if err := s.radioSink.Write(m); err != nil {
			s.logger.Printf("radio sink: %v", err)
		}
		s.radioSeen = m.ID
	}
}

func (s *Session) loadIgnored(ctx context.Context) error {
	raw, err := s.store.ReadConfigBlob(ctx, blobIgnoredEvents)
	if err != nil {
		return fmt.Errorf("engine: read ignore set: %w", err)
	}
	if raw == nil {
		return nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("engine: ignore set: %w", err)
	}
	for _, id := range ids {
		s.ignored[id] = struct{}{}
	}
	return nil
}

type fallbackTranslator struct{}

func (fallbackTranslator) Translate(category, key string, args ...any) string {
	if len(args) == 0 {
		return category + "." + key
	}
	return fmt.Sprintf("%s.%s%v", category, key, args)
}
