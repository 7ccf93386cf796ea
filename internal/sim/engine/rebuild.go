package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Heigvd/mimms-sub001/internal/sim/state"
)

// Full deterministic re-derivation from the event log. Used for debugging
// and for rewinding to an earlier snapshot: rewinding marks the events after
// the chosen point as ignored and persists that set in a config blob, so the
// omission survives a complete reload.

// RebuildFromScratch drops all derived state and re-applies the event log
// from the initial snapshot, honoring the persisted ignore set.
func (s *Session) RebuildFromScratch(ctx context.Context) error {
	s.ignored = map[uint64]struct{}{}
	if err := s.loadIgnored(ctx); err != nil {
		return err
	}
	s.histMu.Lock()
	s.history = []*state.Snapshot{s.initialSnapshot()}
	s.applied = map[uint64]map[uint64]struct{}{0: {}}
	s.histMu.Unlock()
	s.processed = map[uint64]struct{}{}
	s.options = map[string]string{}
	if _, err := s.ProcessPendingEvents(ctx); err != nil {
		return err
	}
	return nil
}

// RewindTo rewinds the session to the snapshot with the given sequence
// number. Every event the session had not consumed by that snapshot is
// marked ignored, the set is persisted, and the log is re-derived. The
// consumed set is the authority here, not an id cutoff: a deferred future
// event can carry a higher id than events applied after it.
func (s *Session) RewindTo(ctx context.Context, seq uint64) error {
	snap := s.SnapshotAt(seq)
	if snap == nil {
		return fmt.Errorf("engine: no snapshot with seq %d", seq)
	}
	s.histMu.RLock()
	seen := s.applied[seq]
	s.histMu.RUnlock()
	if seen == nil {
		return fmt.Errorf("engine: no applied-event set for seq %d", seq)
	}

	events, err := s.store.FetchAllEvents(ctx)
	if err != nil {
		return fmt.Errorf("engine: fetch events: %w", err)
	}
	for _, ev := range events {
		if _, ok := seen[ev.ID]; !ok {
			s.ignored[ev.ID] = struct{}{}
		}
	}
	if err := s.saveIgnored(ctx); err != nil {
		return err
	}
	return s.RebuildFromScratch(ctx)
}

func (s *Session) saveIgnored(ctx context.Context) error {
	ids := make([]uint64, 0, len(s.ignored))
	for id := range s.ignored {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("engine: ignore set: %w", err)
	}
	if err := s.store.WriteConfigBlob(ctx, blobIgnoredEvents, raw); err != nil {
		return fmt.Errorf("engine: write ignore set: %w", err)
	}
	return nil
}
