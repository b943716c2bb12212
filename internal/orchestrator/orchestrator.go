// Package orchestrator drives the per-simulation state machine and
// implements the tick execution algorithm: coverage guard, context
// trimming, concurrent sandbox dispatch, decision merging, logic module
// execution, and atomic commit through the state store. Grounded on the
// teacher's cmd/worldsim wiring of engine+persistence+api (a single process
// composing independently-testable packages behind one entry point), with
// the tick-scheduling shape of internal/engine/tick.go's Engine.step
// adapted from a free-running real-time loop to a request-driven,
// single-writer-per-simulation state machine. See design doc Section 4.8.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/config"
	"github.com/talgya/econ-sim-orchestrator/internal/fallback"
	"github.com/talgya/econ-sim-orchestrator/internal/logic"
	"github.com/talgya/econ-sim-orchestrator/internal/merge"
	"github.com/talgya/econ-sim-orchestrator/internal/registry"
	"github.com/talgya/econ-sim-orchestrator/internal/sandbox"
	"github.com/talgya/econ-sim-orchestrator/internal/store"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

// State is one of the five states in the per-simulation state machine (design
// doc Section 4.8).
type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady          State = "ready"
	StateAdvancing      State = "advancing"
	StateLocked         State = "locked"
	StateFailed         State = "failed"
)

// TickResult summarizes one completed run_tick call.
type TickResult struct {
	NewTick uint64
	NewDay  uint64
	Logs    []worldstate.TickLogEntry
	Macro   worldstate.Macro
}

// DayResult summarizes one completed run_day call.
type DayResult struct {
	TicksExecuted int
	FinalTick     uint64
	FinalDay      uint64
	Macro         worldstate.Macro
}

// simEntry is the per-simulation single-writer lock plus its cached config
// and lifecycle state. Held for the duration of a run_tick call, satisfying
// design doc Section 5's "each simulation has one in-flight tick at a time
// guarded by its own lock".
type simEntry struct {
	mu    sync.Mutex
	state State
	cfg   config.Config
}

// Orchestrator composes the state store, script registry, and sandbox pool
// into the tick/day scheduler described in design doc Section 4.8.
type Orchestrator struct {
	store    *store.Store
	registry *registry.Registry
	sandbox  *sandbox.Pool
	log      *slog.Logger

	mu   sync.Mutex
	sims map[string]*simEntry
}

// New constructs an Orchestrator over an already-wired store, registry, and
// sandbox pool.
func New(st *store.Store, reg *registry.Registry, pool *sandbox.Pool, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:    st,
		registry: reg,
		sandbox:  pool,
		log:      log,
		sims:     make(map[string]*simEntry),
	}
}

func (o *Orchestrator) entry(simulationID string) (*simEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.sims[simulationID]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "simulation "+simulationID+" not found")
	}
	return e, nil
}

// CreateSimulation transitions a simulation Uninitialized -> Ready: it
// synthesizes an initial WorldState, persists simulation metadata, and
// registers the participant if one is supplied.
func (o *Orchestrator) CreateSimulation(ctx context.Context, simulationID string, cfg config.Config, initial worldstate.InitialConfig, participantUserID string) (*worldstate.WorldState, error) {
	o.mu.Lock()
	if _, exists := o.sims[simulationID]; exists {
		o.mu.Unlock()
		return nil, apperr.New(apperr.KindConflictingBinding, "simulation "+simulationID+" already exists")
	}
	entry := &simEntry{state: StateUninitialized, cfg: cfg}
	o.sims[simulationID] = entry
	o.mu.Unlock()

	ws := worldstate.NewWorldState(simulationID, initial)
	sim := &worldstate.Simulation{
		ID:                      simulationID,
		Participants:            map[string]bool{},
		AllowFallbackForMissing: cfg.Features.AllowFallbackForMissing,
		ShockEnabled:            cfg.Features.ShockEnabled,
		ScriptLimitPerUser:      cfg.ScriptLimitPerUser,
	}
	if participantUserID != "" {
		sim.Participants[participantUserID] = true
	}

	if err := o.store.EnsureSimulation(ctx, sim, ws); err != nil {
		o.mu.Lock()
		delete(o.sims, simulationID)
		o.mu.Unlock()
		return nil, err
	}
	o.registry.SetScriptLimit(simulationID, cfg.ScriptLimitPerUser)

	entry.mu.Lock()
	entry.state = StateReady
	entry.mu.Unlock()

	o.log.Info("simulation created", "simulation_id", simulationID, "households", len(ws.Households))
	return ws, nil
}

// GetState returns the current WorldState, independent of the simulation's
// lifecycle state.
func (o *Orchestrator) GetState(ctx context.Context, simulationID string) (*worldstate.WorldState, error) {
	if _, err := o.entry(simulationID); err != nil {
		return nil, err
	}
	return o.store.GetWorldState(ctx, simulationID)
}

// RegisterParticipant adds a user to a simulation's participant set.
func (o *Orchestrator) RegisterParticipant(ctx context.Context, simulationID, userID string) error {
	e, err := o.entry(simulationID)
	if err != nil {
		return err
	}
	sim, err := o.loadSimMeta(ctx, simulationID, e)
	if err != nil {
		return err
	}
	sim.Participants[userID] = true
	return o.store.AddParticipant(ctx, simulationID, userID, sim)
}

// ListParticipants returns a simulation's participant set.
func (o *Orchestrator) ListParticipants(simulationID string) []string {
	participants := o.store.Participants(simulationID)
	out := make([]string, 0, len(participants))
	for id := range participants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// UpdateScriptCode replaces a script's source, enforcing that the change
// only lands on the tick that opens a new day for simulationID.
func (o *Orchestrator) UpdateScriptCode(ctx context.Context, simulationID, scriptID, userID, newCode string) (*registry.Script, error) {
	e, err := o.entry(simulationID)
	if err != nil {
		return nil, err
	}
	ws, err := o.store.GetWorldState(ctx, simulationID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	ticksPerDay := e.cfg.TicksPerDay
	e.mu.Unlock()
	return o.registry.UpdateScriptCode(scriptID, userID, newCode, ws.Tick, ticksPerDay)
}

func (o *Orchestrator) loadSimMeta(ctx context.Context, simulationID string, e *simEntry) (*worldstate.Simulation, error) {
	return &worldstate.Simulation{
		ID:                      simulationID,
		Participants:            o.store.Participants(simulationID),
		AllowFallbackForMissing: e.cfg.Features.AllowFallbackForMissing,
		ShockEnabled:            e.cfg.Features.ShockEnabled,
		ScriptLimitPerUser:      e.cfg.ScriptLimitPerUser,
	}, nil
}

// RunTick executes exactly one tick of the simulation, implementing design
// doc Section 4.8's ten-step tick execution algorithm.
func (o *Orchestrator) RunTick(ctx context.Context, simulationID string, adminOverrides worldstate.TickDecisions) (*TickResult, error) {
	e, err := o.entry(simulationID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateFailed:
		return nil, apperr.New(apperr.KindSimulationLocked, "simulation "+simulationID+" is frozen pending recovery")
	case StateReady:
		// proceed
	default:
		return nil, apperr.New(apperr.KindSimulationLocked, fmt.Sprintf("simulation %s is not ready (state=%s)", simulationID, e.state))
	}

	e.state = StateAdvancing
	result, err := o.runTickLocked(ctx, simulationID, &e.cfg, adminOverrides)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindMissingAgentScripts:
			// Coverage Guard failures are caller/user errors, not fatal
			// (design doc Section 4.8, step 3).
			e.state = StateReady
		default:
			e.state = StateFailed
		}
		return nil, err
	}
	e.state = StateReady
	return result, nil
}

func (o *Orchestrator) runTickLocked(ctx context.Context, simulationID string, cfg *config.Config, adminOverrides worldstate.TickDecisions) (*TickResult, error) {
	ws, err := o.store.GetWorldState(ctx, simulationID)
	if err != nil {
		return nil, err
	}

	isDailyTick := ws.Tick%uint64(maxInt(1, cfg.TicksPerDay)) == 0

	decisions, scriptLogs, err := o.collectDecisions(ctx, ws, cfg, adminOverrides, isDailyTick)
	if err != nil {
		return nil, err
	}

	cmds, tickLogs, err := logic.Run(ws, decisions, cfg, isDailyTick, cfg.Features.ShockEnabled)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvariantViolation, "logic pipeline failed", err)
	}

	next, err := worldstate.Apply(ws, cmds)
	if err != nil {
		return nil, err
	}
	next.Tick = ws.Tick + 1
	next.Day = next.Tick / uint64(maxInt(1, cfg.TicksPerDay))

	if err := o.store.ApplyUpdates(ctx, next); err != nil {
		return nil, err
	}

	logs := append(scriptLogs, tickLogs...)
	o.store.RecordTick(ctx, simulationID, logs)

	o.log.Info("tick advanced",
		"simulation_id", simulationID, "tick", next.Tick, "day", next.Day,
		"gdp", humanize.Commaf(next.Macro.GDP),
		"unemployment_rate", next.Macro.UnemploymentRate)

	return &TickResult{NewTick: next.Tick, NewDay: next.Day, Logs: logs, Macro: next.Macro}, nil
}

// RunDay iterates run_tick until ticksInDay ticks have executed or the day
// boundary is crossed, whichever comes first. It does not touch the
// registry: script code updates are gated directly by UpdateScriptCode
// against whatever tick is current when a user calls it, not by any
// end-of-day callback here.
func (o *Orchestrator) RunDay(ctx context.Context, simulationID string, ticksInDay int) (*DayResult, error) {
	e, err := o.entry(simulationID)
	if err != nil {
		return nil, err
	}
	if ticksInDay <= 0 {
		e.mu.Lock()
		ticksInDay = e.cfg.TicksPerDay
		e.mu.Unlock()
	}

	var executed int
	var last *TickResult
	startDay, err := o.currentDay(ctx, simulationID)
	if err != nil {
		return nil, err
	}

	for executed < ticksInDay {
		result, err := o.RunTick(ctx, simulationID, worldstate.TickDecisions{})
		if err != nil {
			return nil, err
		}
		last = result
		executed++
		if result.NewDay != startDay {
			break
		}
	}

	if last == nil {
		return &DayResult{}, nil
	}
	return &DayResult{TicksExecuted: executed, FinalTick: last.NewTick, FinalDay: last.NewDay, Macro: last.Macro}, nil
}

func (o *Orchestrator) currentDay(ctx context.Context, simulationID string) (uint64, error) {
	ws, err := o.store.GetWorldState(ctx, simulationID)
	if err != nil {
		return 0, err
	}
	return ws.Day, nil
}

// ResetSimulation discards all state for a simulation and reseeds it,
// unfreezing it if it had escalated to Failed.
func (o *Orchestrator) ResetSimulation(ctx context.Context, simulationID string, initial worldstate.InitialConfig) error {
	e, err := o.entry(simulationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fresh := worldstate.NewWorldState(simulationID, initial)
	if err := o.store.ResetSimulation(ctx, simulationID, fresh); err != nil {
		return err
	}
	e.state = StateReady
	return nil
}

// DeleteSimulation removes all state for a simulation. Attached scripts are
// detached, not erased, per design doc Section 3's Simulation lifecycle.
func (o *Orchestrator) DeleteSimulation(ctx context.Context, simulationID string) error {
	if _, err := o.entry(simulationID); err != nil {
		return err
	}
	for _, s := range o.registry.ListSimulationScripts(simulationID) {
		if _, err := o.registry.DetachScript(s.ScriptID, s.UserID); err != nil {
			o.log.Warn("failed to detach script during simulation delete", "script_id", s.ScriptID, "error", err)
		}
	}
	if err := o.store.DeleteSimulation(ctx, simulationID); err != nil {
		return err
	}
	o.mu.Lock()
	delete(o.sims, simulationID)
	o.mu.Unlock()
	return nil
}

// ListTickLogs is a pass-through to the state store's durable query surface.
func (o *Orchestrator) ListTickLogs(ctx context.Context, simulationID string, minTick, maxTick *uint64, messageFilter string, limit, offset int) ([]worldstate.TickLogEntry, error) {
	return o.store.ListTickLogs(ctx, simulationID, minTick, maxTick, messageFilter, limit, offset)
}

// bindingTarget identifies one (agent_kind, entity_id) slot the Coverage
// Guard must resolve before a tick can proceed.
type bindingTarget struct {
	kind     worldstate.AgentKind
	entityID string
}

// collectDecisions implements design doc Section 4.8 steps 3-7: the
// Coverage Guard, context trimming, concurrent sandbox dispatch, and the
// Decision Merger.
func (o *Orchestrator) collectDecisions(ctx context.Context, ws *worldstate.WorldState, cfg *config.Config, admin worldstate.TickDecisions, isDailyTick bool) (worldstate.TickDecisions, []worldstate.TickLogEntry, error) {
	var targets []bindingTarget
	if ws.Firm != nil {
		targets = append(targets, bindingTarget{worldstate.AgentFirm, ws.Firm.ID})
	}
	if ws.Bank != nil {
		targets = append(targets, bindingTarget{worldstate.AgentBank, ws.Bank.ID})
	}
	if ws.CentralBank != nil {
		targets = append(targets, bindingTarget{worldstate.AgentCentralBank, ws.CentralBank.ID})
	}
	if ws.Government != nil {
		targets = append(targets, bindingTarget{worldstate.AgentGovernment, ws.Government.ID})
	}
	householdIDs := make([]string, 0, len(ws.Households))
	for id := range ws.Households {
		householdIDs = append(householdIDs, id)
	}
	sort.Strings(householdIDs)
	for _, id := range householdIDs {
		targets = append(targets, bindingTarget{worldstate.AgentHousehold, id})
	}

	type resolved struct {
		bindingTarget
		script *registry.Script
	}
	resolvedTargets := make([]resolved, 0, len(targets))
	var missing []string
	for _, t := range targets {
		script, ok := o.registry.ResolveBindings(ws.SimulationID, t.kind, t.entityID)
		if !ok && !cfg.Features.AllowFallbackForMissing {
			missing = append(missing, fmt.Sprintf("%s:%s", t.kind, t.entityID))
			continue
		}
		resolvedTargets = append(resolvedTargets, resolved{t, script})
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return worldstate.TickDecisions{}, nil, apperr.New(apperr.KindMissingAgentScripts,
			"missing script bindings: "+strings.Join(missing, ", "))
	}

	type outcome struct {
		bindingTarget
		raw json.RawMessage
		err error
	}
	outcomes := make([]outcome, len(resolvedTargets))

	g := new(errgroup.Group)
	g.SetLimit(maxInt(1, cfg.ScriptExecutionConcurrency))
	for i, rt := range resolvedTargets {
		if rt.script == nil {
			continue
		}
		i, rt := i, rt
		g.Go(func() error {
			payload, buildErr := buildScriptContext(ws, rt.kind, rt.entityID, cfg)
			if buildErr != nil {
				outcomes[i] = outcome{rt.bindingTarget, nil, buildErr}
				return nil
			}
			raw, execErr := o.sandbox.Execute(ctx, sandbox.Request{
				ScriptID: rt.script.ScriptID,
				Code:     rt.script.Code,
				Context:  payload,
			})
			outcomes[i] = outcome{rt.bindingTarget, raw, execErr}
			return nil
		})
	}
	_ = g.Wait()

	var logs []worldstate.TickLogEntry
	scriptFailures := 0
	rawByTarget := make(map[bindingTarget]json.RawMessage, len(outcomes))
	for i, oc := range outcomes {
		rt := resolvedTargets[i]
		if rt.script == nil {
			continue
		}
		if oc.err != nil {
			scriptFailures++
			o.registry.RecordFailure(rt.script.ScriptID, oc.err.Error())
			logs = append(logs, worldstate.TickLogEntry{
				Message: "script_failure",
				Context: map[string]any{
					"script_id":  rt.script.ScriptID,
					"agent_kind": string(rt.kind),
					"entity_id":  rt.entityID,
					"error":      oc.err.Error(),
					"reason":     apperr.ReasonOf(oc.err).String(),
				},
			})
			continue
		}
		rawByTarget[oc.bindingTarget] = oc.raw
	}
	if scriptFailures > 0 {
		logs = append(logs, worldstate.TickLogEntry{Message: "script_failures_recorded", Context: map[string]any{"count": scriptFailures}})
	}

	bounds := merge.Bounds{SubsistenceConsumption: cfg.SubsistenceConsumption, FirmPrice: 1}
	if ws.Firm != nil {
		bounds.FirmPrice = maxFloat(0.01, ws.Firm.Price)
	}

	merged := worldstate.NewTickDecisions()

	unemploymentRate := ws.Macro.UnemploymentRate

	for _, id := range householdIDs {
		h := ws.Households[id]
		scriptDecision, decodeErr := decodeOverride[worldstate.HouseholdDecision](rawByTarget[bindingTarget{worldstate.AgentHousehold, id}], worldstate.AgentHousehold)
		if decodeErr != nil {
			logs = append(logs, worldstate.TickLogEntry{Message: "invalid_override_rejected", Context: map[string]any{"agent_kind": "household", "entity_id": id}})
		}
		baseline := fallback.Household(h, isDailyTick)
		hd, warnings := merge.Household(id, admin.Households[id], scriptDecision, baseline, bounds)
		merged.Households[id] = hd
		logs = append(logs, warningLogs(warnings)...)
	}

	if ws.Firm != nil {
		scriptDecision, decodeErr := decodeOverride[worldstate.FirmDecision](rawByTarget[bindingTarget{worldstate.AgentFirm, ws.Firm.ID}], worldstate.AgentFirm)
		if decodeErr != nil {
			logs = append(logs, worldstate.TickLogEntry{Message: "invalid_override_rejected", Context: map[string]any{"agent_kind": "firm", "entity_id": ws.Firm.ID}})
		}
		baseline := fallback.Firm(ws.Firm, ws.Households, unemploymentRate, isDailyTick)
		merged.Firm = merge.Firm(admin.Firm, scriptDecision, baseline)
	}

	if ws.Bank != nil {
		scriptDecision, decodeErr := decodeOverride[worldstate.BankDecision](rawByTarget[bindingTarget{worldstate.AgentBank, ws.Bank.ID}], worldstate.AgentBank)
		if decodeErr != nil {
			logs = append(logs, worldstate.TickLogEntry{Message: "invalid_override_rejected", Context: map[string]any{"agent_kind": "bank", "entity_id": ws.Bank.ID}})
		}
		baseline := fallback.Bank(ws.Bank, ws.CentralBank)
		bd, warnings := merge.Bank(admin.Bank, scriptDecision, baseline)
		merged.Bank = bd
		logs = append(logs, warningLogs(warnings)...)
	}

	if ws.CentralBank != nil {
		scriptDecision, decodeErr := decodeOverride[worldstate.CentralBankDecision](rawByTarget[bindingTarget{worldstate.AgentCentralBank, ws.CentralBank.ID}], worldstate.AgentCentralBank)
		if decodeErr != nil {
			logs = append(logs, worldstate.TickLogEntry{Message: "invalid_override_rejected", Context: map[string]any{"agent_kind": "central_bank", "entity_id": ws.CentralBank.ID}})
		}
		baseline := fallback.CentralBank(ws.CentralBank, ws.Macro)
		cbd, warnings := merge.CentralBank(admin.CentralBank, scriptDecision, baseline)
		merged.CentralBank = cbd
		logs = append(logs, warningLogs(warnings)...)
	}

	if ws.Government != nil {
		scriptDecision, decodeErr := decodeOverride[worldstate.GovernmentDecision](rawByTarget[bindingTarget{worldstate.AgentGovernment, ws.Government.ID}], worldstate.AgentGovernment)
		if decodeErr != nil {
			logs = append(logs, worldstate.TickLogEntry{Message: "invalid_override_rejected", Context: map[string]any{"agent_kind": "government", "entity_id": ws.Government.ID}})
		}
		baseline := fallback.Government(ws.Government, unemploymentRate, len(ws.Households))
		merged.Government = merge.Government(admin.Government, scriptDecision, baseline)
	}

	return merged, logs, nil
}

func warningLogs(warnings []merge.Warning) []worldstate.TickLogEntry {
	out := make([]worldstate.TickLogEntry, 0, len(warnings))
	for _, w := range warnings {
		out = append(out, worldstate.TickLogEntry{
			Message: "decision_clamped",
			Context: map[string]any{"entity_id": w.EntityID, "field": w.Field, "original": w.Original, "clamped": w.Clamped},
		})
	}
	return out
}

// decodeOverride decodes a script's raw JSON decision output into T,
// rejecting unknown fields per design doc Section 4.6 ("unknown fields
// cause the containing override to be rejected with InvalidOverride and
// replaced by the next-priority source"). A nil raw (no script bound, or the
// script failed) yields the zero value with no error.
func decodeOverride[T any](raw json.RawMessage, kind worldstate.AgentKind) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var zero T
		return zero, merge.ValidateNoUnknownFields(err, kind)
	}
	return v, nil
}

// publicFirm, publicBank, publicCentralBank, and publicGovernment are the
// fields of each singleton visible to every script binding, per design doc
// Section 4.4's context trimming policy.
type publicFirm struct {
	ID        string  `json:"id"`
	Price     float64 `json:"price"`
	WageOffer float64 `json:"wage_offer"`
	Inventory float64 `json:"inventory"`
}

type publicBank struct {
	ID          string  `json:"id"`
	DepositRate float64 `json:"deposit_rate"`
	LoanRate    float64 `json:"loan_rate"`
}

type publicCentralBank struct {
	ID           string  `json:"id"`
	PolicyRate   float64 `json:"policy_rate"`
	ReserveRatio float64 `json:"reserve_ratio"`
}

type publicGovernment struct {
	ID                  string  `json:"id"`
	TaxRate             float64 `json:"tax_rate"`
	UnemploymentBenefit float64 `json:"unemployment_benefit"`
}

type publicWorldView struct {
	Firm        *publicFirm        `json:"firm,omitempty"`
	Bank        *publicBank        `json:"bank,omitempty"`
	CentralBank *publicCentralBank `json:"central_bank,omitempty"`
	Government  *publicGovernment  `json:"government,omitempty"`
	Macro       worldstate.Macro   `json:"macro"`
}

// scriptContext is the sole channel by which script code receives world
// data, per design doc Section 4.4.
type scriptContext struct {
	WorldState       publicWorldView      `json:"world_state"`
	EntityState      json.RawMessage      `json:"entity_state"`
	Config           map[string]any       `json:"config"`
	ScriptAPIVersion int                  `json:"script_api_version"`
	AgentKind        worldstate.AgentKind `json:"agent_kind"`
	EntityID         string               `json:"entity_id"`
	Tick             uint64               `json:"tick"`
	Day              uint64               `json:"day"`
}

func buildScriptContext(ws *worldstate.WorldState, kind worldstate.AgentKind, entityID string, cfg *config.Config) (json.RawMessage, error) {
	view := publicWorldView{Macro: ws.Macro}
	if ws.Firm != nil {
		view.Firm = &publicFirm{ws.Firm.ID, ws.Firm.Price, ws.Firm.WageOffer, ws.Firm.Inventory}
	}
	if ws.Bank != nil {
		view.Bank = &publicBank{ws.Bank.ID, ws.Bank.DepositRate, ws.Bank.LoanRate}
	}
	if ws.CentralBank != nil {
		view.CentralBank = &publicCentralBank{ws.CentralBank.ID, ws.CentralBank.PolicyRate, ws.CentralBank.ReserveRatio}
	}
	if ws.Government != nil {
		view.Government = &publicGovernment{ws.Government.ID, ws.Government.TaxRate, ws.Government.UnemploymentBenefit}
	}

	var entity any
	switch kind {
	case worldstate.AgentHousehold:
		h, ok := ws.Households[entityID]
		if !ok {
			return nil, fmt.Errorf("household %q not found", entityID)
		}
		entity = h
	case worldstate.AgentFirm:
		entity = ws.Firm
	case worldstate.AgentBank:
		entity = ws.Bank
	case worldstate.AgentCentralBank:
		entity = ws.CentralBank
	case worldstate.AgentGovernment:
		entity = ws.Government
	default:
		return nil, fmt.Errorf("unknown agent kind %q", kind)
	}
	entityBlob, err := json.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("marshal entity state: %w", err)
	}

	payload := scriptContext{
		WorldState:  view,
		EntityState: entityBlob,
		Config: map[string]any{
			"ticks_per_day":              cfg.TicksPerDay,
			"allow_fallback_for_missing": cfg.Features.AllowFallbackForMissing,
			"shock_enabled":              cfg.Features.ShockEnabled,
		},
		ScriptAPIVersion: 1,
		AgentKind:        kind,
		EntityID:         entityID,
		Tick:             ws.Tick,
		Day:              ws.Day,
	}
	return json.Marshal(payload)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
