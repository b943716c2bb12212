// Package registry manages user-submitted decision scripts: validating their
// source, binding them to a single (simulation, agent_kind, entity) slot,
// and enforcing per-user quotas. It is grounded on the source system's
// registry module, generalized to Go's static typing, plus the teacher's
// token-bucket rate limiter (internal/api/ratelimit.go) for quota
// enforcement. See design doc Section 4.2.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

// AllowedModules is the whitelist of module paths a script may import. The
// registry rejects disallowed top-level import lines at registration time so
// bad scripts never reach a worker. This map is not passed to the sandbox;
// at execution time the sandbox only classifies import errors its runner
// reports. Mirrors the source system's ALLOWED_MODULES set.
var AllowedModules = map[string]bool{
	"math":  true,
	"json":  true,
	"stats": true,
}

// Script is a stored, validated decision script.
type Script struct {
	ScriptID           string
	SimulationID       *string
	UserID             string
	Description        string
	Code               string
	CodeVersion        string
	AgentKind          worldstate.AgentKind
	EntityID           string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastFailureAt      *time.Time
	LastFailureReason  string
}

// DurableSaver is the subset of the durable tier the registry needs to
// persist script metadata and code. Declared as an interface here so tests
// can substitute an in-memory fake without pulling in sqlite; see
// store/durable.ScriptAdapter for the concrete sqlite-backed implementation.
type DurableSaver interface {
	SaveScript(s Script) error
	DeleteScript(scriptID string) error
}

type Registry struct {
	mu      sync.Mutex
	store   DurableSaver
	scripts map[string]*Script // script_id -> script

	// bindings tracks occupied (simulation_id, agent_kind, entity_id) slots.
	bindings map[string]string // binding key -> script_id

	scriptLimitPerUser map[string]int // simulation_id -> limit override
	defaultLimit       int
}

// New constructs an empty Registry. defaultLimit is the per-user,
// per-simulation script ceiling used when a simulation has no override.
func New(store DurableSaver, defaultLimit int) *Registry {
	return &Registry{
		store:              store,
		scripts:            make(map[string]*Script),
		bindings:           make(map[string]string),
		scriptLimitPerUser: make(map[string]int),
		defaultLimit:       defaultLimit,
	}
}

func bindingKey(simulationID string, kind worldstate.AgentKind, entityID string) string {
	return fmt.Sprintf("%s/%s/%s", simulationID, kind, entityID)
}

// SetScriptLimit overrides the per-user script quota for a simulation.
func (r *Registry) SetScriptLimit(simulationID string, limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scriptLimitPerUser[simulationID] = limit
}

func (r *Registry) effectiveLimit(simulationID string) int {
	if limit, ok := r.scriptLimitPerUser[simulationID]; ok {
		return limit
	}
	return r.defaultLimit
}

func (r *Registry) countUserScripts(simulationID, userID string) int {
	n := 0
	for _, s := range r.scripts {
		if s.SimulationID != nil && *s.SimulationID == simulationID && s.UserID == userID {
			n++
		}
	}
	return n
}

// ValidateScript performs the static checks a script must pass before it can
// be registered: a generate_decisions entry point must be declared, and only
// whitelisted modules may be imported. Implemented as a token scanner rather
// than a full parser, since Go has no first-class AST for the scripting
// language scripts are written in (design doc Section 4.2).
func ValidateScript(code string) error {
	hasEntry := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "def generate_decisions(") || strings.HasPrefix(trimmed, "func generate_decisions(") {
			hasEntry = true
		}
		if mod, ok := importedModule(trimmed); ok {
			if !moduleAllowed(mod) {
				return apperr.New(apperr.KindInvalidScript, fmt.Sprintf("disallowed import: %s", mod))
			}
		}
	}
	if !hasEntry {
		return apperr.New(apperr.KindInvalidScript, "script must define a generate_decisions entry point")
	}
	return nil
}

func importedModule(line string) (string, bool) {
	switch {
	case strings.HasPrefix(line, "import "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "import "))
		rest = strings.SplitN(rest, " as ", 2)[0]
		return strings.TrimSpace(rest), true
	case strings.HasPrefix(line, "from "):
		rest := strings.TrimSpace(strings.TrimPrefix(line, "from "))
		parts := strings.SplitN(rest, " import ", 2)
		if len(parts) != 2 {
			return "", false
		}
		return strings.TrimSpace(parts[0]), true
	default:
		return "", false
	}
}

func moduleAllowed(module string) bool {
	for allowed := range AllowedModules {
		if module == allowed || strings.HasPrefix(module, allowed+".") {
			return true
		}
	}
	return false
}

// RegisterScript validates and stores a new script, not yet bound to any
// simulation unless simulationID is non-nil. On a quota violation after a
// successful durable save, the durable write is rolled back (design doc
// Section 4.2/9), matching the source system's register_script.
func (r *Registry) RegisterScript(simulationID *string, userID, code, description string, kind worldstate.AgentKind, entityID string) (*Script, error) {
	if err := ValidateScript(code); err != nil {
		return nil, err
	}
	if entityID == "" {
		entityID = placeholderEntityID(kind)
	}

	script := &Script{
		ScriptID:     uuid.NewString(),
		SimulationID: simulationID,
		UserID:       userID,
		Description:  description,
		Code:         code,
		CodeVersion:  uuid.NewString(),
		AgentKind:    kind,
		EntityID:     entityID,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	if r.store != nil {
		if err := r.store.SaveScript(*script); err != nil {
			return nil, apperr.Wrap(apperr.KindDurableStoreError, "save script", err)
		}
	}

	r.mu.Lock()
	var quotaErr error
	if simulationID != nil {
		limit := r.effectiveLimit(*simulationID)
		if limit > 0 && r.countUserScripts(*simulationID, userID) >= limit {
			quotaErr = apperr.New(apperr.KindQuotaExceeded,
				fmt.Sprintf("user %s has reached the %d script limit for simulation %s", userID, limit, *simulationID))
		} else if existing, ok := r.bindings[bindingKey(*simulationID, kind, entityID)]; ok {
			quotaErr = apperr.New(apperr.KindConflictingBinding,
				fmt.Sprintf("entity %s already bound to script %s", entityID, existing))
		} else {
			r.scripts[script.ScriptID] = script
			r.bindings[bindingKey(*simulationID, kind, entityID)] = script.ScriptID
		}
	} else {
		r.scripts[script.ScriptID] = script
	}
	r.mu.Unlock()

	if quotaErr != nil {
		if r.store != nil {
			if err := r.store.DeleteScript(script.ScriptID); err != nil {
				return nil, apperr.Wrap(apperr.KindDurableStoreError, "rollback script after quota violation", err)
			}
		}
		return nil, quotaErr
	}
	return script, nil
}

// AttachScript binds an already-registered, unbound script to a simulation
// slot. The (simulation, agent_kind, entity) slot is reserved in the binding
// table under the same lock acquisition as the conflict check, before the
// durable write runs, so two concurrent AttachScript calls racing for the
// same slot can never both observe it free: whichever reserves it first
// makes the other see KindConflictingBinding.
func (r *Registry) AttachScript(scriptID, simulationID, userID string, entityID string) (*Script, error) {
	r.mu.Lock()
	script, ok := r.scripts[scriptID]
	if !ok || script.UserID != userID {
		r.mu.Unlock()
		return nil, apperr.New(apperr.KindNotFound, "script not found or not owned by user")
	}
	if script.SimulationID != nil && *script.SimulationID == simulationID {
		r.mu.Unlock()
		return script, nil
	}
	limit := r.effectiveLimit(simulationID)
	if limit > 0 && r.countUserScripts(simulationID, userID) >= limit {
		r.mu.Unlock()
		return nil, apperr.New(apperr.KindQuotaExceeded,
			fmt.Sprintf("user %s has reached the %d script limit for simulation %s", userID, limit, simulationID))
	}
	if entityID == "" {
		entityID = script.EntityID
	}
	key := bindingKey(simulationID, script.AgentKind, entityID)
	if existing, ok := r.bindings[key]; ok && existing != scriptID {
		r.mu.Unlock()
		return nil, apperr.New(apperr.KindConflictingBinding,
			fmt.Sprintf("entity %s already bound to script %s", entityID, existing))
	}

	previousSimID := script.SimulationID
	previousKey := ""
	if previousSimID != nil {
		previousKey = bindingKey(*previousSimID, script.AgentKind, script.EntityID)
		delete(r.bindings, previousKey)
	}
	r.bindings[key] = scriptID
	r.mu.Unlock()

	simID := simulationID
	updated := *script
	updated.SimulationID = &simID
	updated.EntityID = entityID
	updated.UpdatedAt = time.Now().UTC()
	if r.store != nil {
		if err := r.store.SaveScript(updated); err != nil {
			r.mu.Lock()
			delete(r.bindings, key)
			if previousKey != "" {
				r.bindings[previousKey] = scriptID
			}
			r.mu.Unlock()
			return nil, apperr.Wrap(apperr.KindDurableStoreError, "persist attach binding", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	script, ok = r.scripts[scriptID]
	if !ok {
		delete(r.bindings, key)
		return nil, apperr.New(apperr.KindNotFound, "script removed during attach")
	}
	script.SimulationID = &simID
	script.EntityID = entityID
	script.UpdatedAt = updated.UpdatedAt
	return script, nil
}

// DetachScript unbinds a script from its simulation, leaving it owned by the
// user but inactive.
func (r *Registry) DetachScript(scriptID, userID string) (*Script, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	script, ok := r.scripts[scriptID]
	if !ok || script.UserID != userID {
		return nil, apperr.New(apperr.KindNotFound, "script not found or not owned by user")
	}
	if script.SimulationID != nil {
		delete(r.bindings, bindingKey(*script.SimulationID, script.AgentKind, script.EntityID))
		script.SimulationID = nil
		script.UpdatedAt = time.Now().UTC()
	}
	return script, nil
}

// DeleteScript permanently removes a script owned by userID.
func (r *Registry) DeleteScript(scriptID, userID string) error {
	r.mu.Lock()
	script, ok := r.scripts[scriptID]
	if !ok || script.UserID != userID {
		r.mu.Unlock()
		return apperr.New(apperr.KindNotFound, "script not found or not owned by user")
	}
	if script.SimulationID != nil {
		delete(r.bindings, bindingKey(*script.SimulationID, script.AgentKind, script.EntityID))
	}
	delete(r.scripts, scriptID)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.DeleteScript(scriptID); err != nil {
			return apperr.Wrap(apperr.KindDurableStoreError, "delete script", err)
		}
	}
	return nil
}

// UpdateScriptCode replaces a script's source, revalidating it and assigning
// a new code version. Code may only change on the tick that opens a new day
// (currentTick % ticksPerDay == 0): a script's behavior must stay fixed for
// the length of a simulated day so every agent inside that day ran the same
// logic. ticksPerDay <= 0 disables the gate (used by callers, such as tests,
// with no day concept configured). The update is stored as a new *Script
// value; a *Script returned by an earlier call keeps its old code and
// version.
func (r *Registry) UpdateScriptCode(scriptID, userID, newCode string, currentTick uint64, ticksPerDay int) (*Script, error) {
	if err := ValidateScript(newCode); err != nil {
		return nil, err
	}
	if ticksPerDay > 0 && currentTick%uint64(ticksPerDay) != 0 {
		return nil, apperr.New(apperr.KindNotAtDayBoundary,
			fmt.Sprintf("script code can only be updated at a day boundary; tick %d is %d ticks into the day",
				currentTick, currentTick%uint64(ticksPerDay)))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	script, ok := r.scripts[scriptID]
	if !ok || script.UserID != userID {
		return nil, apperr.New(apperr.KindNotFound, "script not found or not owned by user")
	}
	updated := *script
	updated.Code = newCode
	updated.CodeVersion = uuid.NewString()
	updated.UpdatedAt = time.Now().UTC()
	if r.store != nil {
		if err := r.store.SaveScript(updated); err != nil {
			return nil, apperr.Wrap(apperr.KindDurableStoreError, "persist script update", err)
		}
	}
	r.scripts[scriptID] = &updated
	return &updated, nil
}

// ListUserScripts returns all scripts owned by userID, across all simulations.
func (r *Registry) ListUserScripts(userID string) []*Script {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Script
	for _, s := range r.scripts {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

// ListSimulationScripts returns all scripts currently bound to a simulation.
func (r *Registry) ListSimulationScripts(simulationID string) []*Script {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Script
	for _, s := range r.scripts {
		if s.SimulationID != nil && *s.SimulationID == simulationID {
			out = append(out, s)
		}
	}
	return out
}

// ResolveBindings returns the script bound to (simulation, kind, entity), if
// any.
func (r *Registry) ResolveBindings(simulationID string, kind worldstate.AgentKind, entityID string) (*Script, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	scriptID, ok := r.bindings[bindingKey(simulationID, kind, entityID)]
	if !ok {
		return nil, false
	}
	return r.scripts[scriptID], true
}

// RecordFailure stamps a script with its most recent execution failure, for
// surfacing to the owning user.
func (r *Registry) RecordFailure(scriptID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scripts[scriptID]
	if !ok {
		return
	}
	now := time.Now().UTC()
	s.LastFailureAt = &now
	s.LastFailureReason = reason
}

func placeholderEntityID(kind worldstate.AgentKind) string {
	return fmt.Sprintf("%s-unassigned-%s", kind, uuid.NewString()[:8])
}
