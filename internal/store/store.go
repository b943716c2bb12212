// Package store composes the fast cache tier and the durable relational tier
// behind the single API described in design doc Section 4.1: writes land in
// the cache tier synchronously (so the next read in the same tick sees them
// immediately) and are propagated to the durable tier asynchronously with
// bounded retry, escalating to PersistenceError and freezing the simulation
// if the durable tier cannot be reached. This mirrors the teacher's
// cmd/worldsim wiring of engine+persistence, generalized to two tiers instead
// of one.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/store/cache"
	"github.com/talgya/econ-sim-orchestrator/internal/store/durable"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 100 * time.Millisecond
)

// Store is the composed state store. All exported methods are safe for
// concurrent use across simulations; per-simulation write serialization is
// the caller's responsibility (the orchestrator holds one lock per
// simulation, design doc Section 4.3).
type Store struct {
	cache   *cache.Cache
	durable *durable.DB
	log     *slog.Logger

	retryAttempts int
	retryBackoff  time.Duration

	mu       sync.Mutex
	failed   map[string]error
	pending  sync.WaitGroup
}

// New composes a Store from an already-open durable DB and a fresh cache.
func New(db *durable.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		cache:         cache.New(),
		durable:       db,
		log:           log,
		retryAttempts: defaultRetryAttempts,
		retryBackoff:  defaultRetryBackoff,
		failed:        make(map[string]error),
	}
}

// Failed reports whether a simulation has been frozen by a durable-store
// escalation (design doc Scenario F), and if so the error that froze it.
func (s *Store) Failed(simulationID string) (error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err, ok := s.failed[simulationID]
	return err, ok
}

func (s *Store) markFailed(simulationID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[simulationID] = err
	s.log.Error("simulation frozen: durable store escalation",
		"simulation_id", simulationID, "error", err)
}

// EnsureSimulation creates simulation metadata and initial world state if
// absent, loading them from the durable tier into the cache otherwise (warm
// start after a process restart).
func (s *Store) EnsureSimulation(ctx context.Context, sim *worldstate.Simulation, initial *worldstate.WorldState) error {
	if s.cache.Has(sim.ID) {
		return nil
	}
	existing, err := s.durable.LoadWorldSnapshot(ctx, sim.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "load world snapshot", err)
	}
	if existing != nil {
		meta, err := s.durable.LoadSimulation(ctx, sim.ID)
		if err != nil {
			return apperr.Wrap(apperr.KindDurableStoreError, "load simulation metadata", err)
		}
		s.cache.SetWorld(sim.ID, existing)
		if meta != nil {
			for userID := range meta.Participants {
				s.cache.AddParticipant(sim.ID, userID)
			}
		}
		return nil
	}
	if err := s.durable.SaveSimulation(ctx, sim); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "save simulation metadata", err)
	}
	if err := s.durable.SaveWorldSnapshot(ctx, initial); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "save initial world snapshot", err)
	}
	s.cache.SetWorld(sim.ID, initial)
	for userID := range sim.Participants {
		s.cache.AddParticipant(sim.ID, userID)
	}
	return nil
}

// GetWorldState returns the cached WorldState for a simulation, read-through
// to the durable tier on a cold cache.
func (s *Store) GetWorldState(ctx context.Context, simulationID string) (*worldstate.WorldState, error) {
	if ws := s.cache.GetWorld(simulationID); ws != nil {
		return ws, nil
	}
	ws, err := s.durable.LoadWorldSnapshot(ctx, simulationID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDurableStoreError, "load world snapshot", err)
	}
	if ws == nil {
		return nil, apperr.New(apperr.KindNotFound, "simulation "+simulationID+" has no world state")
	}
	s.cache.SetWorld(simulationID, ws)
	return ws, nil
}

// ApplyUpdates writes the fully-applied next WorldState to the cache tier
// synchronously, then propagates to the durable tier in the background with
// bounded retry. If the simulation is already frozen by a prior durable
// failure, it refuses new writes with SimulationLocked.
func (s *Store) ApplyUpdates(ctx context.Context, next *worldstate.WorldState) error {
	if _, failed := s.Failed(next.SimulationID); failed {
		return apperr.New(apperr.KindSimulationLocked, "simulation "+next.SimulationID+" is frozen pending recovery")
	}
	s.cache.SetWorld(next.SimulationID, next)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.propagateDurable(context.Background(), next)
	}()
	return nil
}

// propagateDurable retries the durable snapshot write with exponential
// backoff; on exhaustion it escalates to a frozen simulation, per design doc
// Section 4.1's "durable write failure after retries is a PersistenceError".
func (s *Store) propagateDurable(ctx context.Context, ws *worldstate.WorldState) {
	backoff := s.retryBackoff
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if err := s.durable.SaveWorldSnapshot(ctx, ws); err != nil {
			lastErr = err
			s.log.Warn("durable world snapshot write failed, will retry",
				"simulation_id", ws.SimulationID, "attempt", attempt, "error", err)
			continue
		}
		return
	}
	s.markFailed(ws.SimulationID, apperr.Wrap(apperr.KindPersistenceError, "durable snapshot write exhausted retries", lastErr))
}

// RecordTick appends log entries to both tiers: synchronously to the cache
// ring buffer (for immediate reads), asynchronously (best-effort) to the
// durable append-only table.
func (s *Store) RecordTick(ctx context.Context, simulationID string, entries []worldstate.TickLogEntry) {
	s.cache.AppendLogs(simulationID, entries)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.durable.AppendTickLogs(context.Background(), entries); err != nil {
			s.log.Warn("durable tick log append failed", "simulation_id", simulationID, "error", err)
		}
	}()
}

// RecentLogs returns the most recently cached tick log entries.
func (s *Store) RecentLogs(simulationID string, limit int) []worldstate.TickLogEntry {
	return s.cache.RecentLogs(simulationID, limit)
}

// ListTickLogs queries the durable append-only log with filters, backing the
// list_tick_logs external interface (design doc Section 4.1).
func (s *Store) ListTickLogs(ctx context.Context, simulationID string, minTick, maxTick *uint64, messageFilter string, limit, offset int) ([]worldstate.TickLogEntry, error) {
	entries, err := s.durable.ListTickLogs(ctx, simulationID, minTick, maxTick, messageFilter, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDurableStoreError, "list tick logs", err)
	}
	return entries, nil
}

// ResetSimulation discards all state for a simulation and reseeds it with a
// fresh WorldState, unfreezing it if it had previously escalated to Failed.
func (s *Store) ResetSimulation(ctx context.Context, simulationID string, fresh *worldstate.WorldState) error {
	s.mu.Lock()
	delete(s.failed, simulationID)
	s.mu.Unlock()

	if err := s.durable.DeleteWorldSnapshot(ctx, simulationID); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "delete world snapshot", err)
	}
	if err := s.durable.SaveWorldSnapshot(ctx, fresh); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "save reset world snapshot", err)
	}
	s.cache.DeleteWorld(simulationID)
	s.cache.SetWorld(simulationID, fresh)
	return nil
}

// DeleteSimulation removes all state for a simulation from both tiers.
func (s *Store) DeleteSimulation(ctx context.Context, simulationID string) error {
	s.mu.Lock()
	delete(s.failed, simulationID)
	s.mu.Unlock()

	if err := s.durable.DeleteWorldSnapshot(ctx, simulationID); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "delete world snapshot", err)
	}
	if err := s.durable.DeleteSimulation(ctx, simulationID); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "delete simulation metadata", err)
	}
	s.cache.DeleteWorld(simulationID)
	return nil
}

// AddParticipant registers a participant in the cache tier and persists the
// updated set durably.
func (s *Store) AddParticipant(ctx context.Context, simulationID, userID string, sim *worldstate.Simulation) error {
	s.cache.AddParticipant(simulationID, userID)
	if err := s.durable.SaveSimulation(ctx, sim); err != nil {
		return apperr.Wrap(apperr.KindDurableStoreError, "save simulation participants", err)
	}
	return nil
}

// Participants returns the cached participant set for a simulation.
func (s *Store) Participants(simulationID string) map[string]bool {
	return s.cache.Participants(simulationID)
}

// WaitForPendingWrites blocks until all in-flight asynchronous durable
// propagations have completed. Used at process shutdown (cmd/orchestratord)
// and for deterministic test assertions.
func (s *Store) WaitForPendingWrites() {
	s.pending.Wait()
}
