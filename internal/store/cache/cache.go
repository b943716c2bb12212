// Package cache implements the fast, low-latency keyed store described in
// design doc Section 4.1. It is an in-process, mutex-guarded map rather than
// an external KV service: no example repo in the retrieval pack wires a
// Redis/KV client idiomatically, while organ_codex's messaging/inproc.Bus is
// exactly this shape (a lock-guarded map keyed by a stable string), so the
// cache tier is grounded on that pattern instead of introducing an unwitnessed
// dependency. See design doc Section 6 for the keyspace this package
// implements: sim:{id}:world, sim:{id}:agent:{aid}, sim:{id}:participants,
// sim:{id}:logs.
package cache

import (
	"fmt"
	"sync"

	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

const logRingCapacity = 500

// Cache is the process-local fast tier. All operations are safe for
// concurrent use.
type Cache struct {
	mu           sync.RWMutex
	world        map[string]*worldstate.WorldState
	participants map[string]map[string]bool
	logs         map[string][]worldstate.TickLogEntry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		world:        make(map[string]*worldstate.WorldState),
		participants: make(map[string]map[string]bool),
		logs:         make(map[string][]worldstate.TickLogEntry),
	}
}

// WorldKey formats the sim:{id}:world cache key for logging/diagnostics.
func WorldKey(simulationID string) string { return fmt.Sprintf("sim:%s:world", simulationID) }

// GetWorld returns the cached WorldState for a simulation, or nil if absent.
// The returned value is a clone: callers must never mutate it in place.
func (c *Cache) GetWorld(simulationID string) *worldstate.WorldState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ws, ok := c.world[simulationID]
	if !ok {
		return nil
	}
	return ws.Clone()
}

// SetWorld atomically replaces the cached WorldState for a simulation. This
// is the sole write path for WorldState in the cache tier, satisfying design
// doc Section 4.1's "the batch must be all-or-nothing within the cache tier":
// callers build the fully-applied next state first (worldstate.Apply) and
// only then call SetWorld, so external observers never see a partial tick.
func (c *Cache) SetWorld(simulationID string, ws *worldstate.WorldState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.world[simulationID] = ws.Clone()
}

// DeleteWorld removes all cached state for a simulation (reset/delete path).
func (c *Cache) DeleteWorld(simulationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.world, simulationID)
	delete(c.participants, simulationID)
	delete(c.logs, simulationID)
}

// Participants returns a copy of the participant set for a simulation.
func (c *Cache) Participants(simulationID string) map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.participants[simulationID]))
	for k, v := range c.participants[simulationID] {
		out[k] = v
	}
	return out
}

// AddParticipant registers a user as a participant of a simulation.
func (c *Cache) AddParticipant(simulationID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.participants[simulationID]
	if !ok {
		set = make(map[string]bool)
		c.participants[simulationID] = set
	}
	set[userID] = true
}

// AppendLogs appends entries to the bounded ring buffer for a simulation,
// trimming to logRingCapacity as the teacher trims its Events slice in
// internal/engine/simulation.go's TickWeek.
func (c *Cache) AppendLogs(simulationID string, entries []worldstate.TickLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append(c.logs[simulationID], entries...)
	if len(buf) > logRingCapacity {
		buf = buf[len(buf)-logRingCapacity:]
	}
	c.logs[simulationID] = buf
}

// RecentLogs returns up to limit of the most recently cached log entries.
func (c *Cache) RecentLogs(simulationID string, limit int) []worldstate.TickLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	buf := c.logs[simulationID]
	if limit <= 0 || limit > len(buf) {
		limit = len(buf)
	}
	out := make([]worldstate.TickLogEntry, limit)
	copy(out, buf[len(buf)-limit:])
	return out
}

// Has reports whether a simulation has cached world state.
func (c *Cache) Has(simulationID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.world[simulationID]
	return ok
}
