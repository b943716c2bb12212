package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/config"
	"github.com/talgya/econ-sim-orchestrator/internal/registry"
	"github.com/talgya/econ-sim-orchestrator/internal/sandbox"
	"github.com/talgya/econ-sim-orchestrator/internal/store"
	"github.com/talgya/econ-sim-orchestrator/internal/store/durable"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, config.Config) {
	t.Helper()
	db, err := durable.Open(filepath.Join(t.TempDir(), "orchestrator_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, nil)
	reg := registry.New(durable.NewScriptAdapter(db), 25)
	pool := sandbox.NewPool("/bin/true", 1, sandbox.Limits{}, nil)

	cfg := config.NewDefault()
	cfg.TicksPerDay = 3
	cfg.BondCouponFrequencyTicks = cfg.TicksPerDay
	cfg.GlobalRNGSeed = 42
	cfg.Features.ShockEnabled = false
	cfg.Features.AllowFallbackForMissing = true

	return New(st, reg, pool, nil), cfg
}

// No registered scripts means every binding falls back to the baseline
// decision rules, so a tick never dispatches to the sandbox pool.
func TestRunTick_AdvancesTickAndDayWithNoScripts(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()

	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1", "h2"}

	_, err := orch.CreateSimulation(ctx, "sim-a", cfg, initial, "")
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := orch.RunTick(ctx, "sim-a", worldstate.TickDecisions{})
		require.NoError(t, err)
	}

	ws, err := orch.GetState(ctx, "sim-a")
	require.NoError(t, err)
	require.EqualValues(t, 6, ws.Tick)
	require.EqualValues(t, 2, ws.Day)
}

// Two fresh simulations created from the same config and seed, advanced by
// the same number of ticks with no scripts or admin overrides, must reach
// byte-identical household state: the pipeline has no hidden nondeterminism.
func TestRunTick_DeterministicReplay(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()

	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1", "h2", "h3"}

	_, err := orch.CreateSimulation(ctx, "sim-x", cfg, initial, "")
	require.NoError(t, err)
	_, err = orch.CreateSimulation(ctx, "sim-y", cfg, initial, "")
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := orch.RunTick(ctx, "sim-x", worldstate.TickDecisions{})
		require.NoError(t, err)
		_, err = orch.RunTick(ctx, "sim-y", worldstate.TickDecisions{})
		require.NoError(t, err)
	}

	wsX, err := orch.GetState(ctx, "sim-x")
	require.NoError(t, err)
	wsY, err := orch.GetState(ctx, "sim-y")
	require.NoError(t, err)

	require.Equal(t, wsX.Macro, wsY.Macro)
	for id, hx := range wsX.Households {
		hy, ok := wsY.Households[id]
		require.True(t, ok)
		require.Equal(t, *hx, *hy)
	}
}

func TestRunDay_StopsAtDayBoundary(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()

	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1"}
	_, err := orch.CreateSimulation(ctx, "sim-day", cfg, initial, "")
	require.NoError(t, err)

	result, err := orch.RunDay(ctx, "sim-day", 0)
	require.NoError(t, err)
	require.Equal(t, cfg.TicksPerDay, result.TicksExecuted)
	require.EqualValues(t, 1, result.FinalDay)
}

func TestRunTick_UnknownSimulation(t *testing.T) {
	orch, _ := newTestOrchestrator(t)
	_, err := orch.RunTick(context.Background(), "does-not-exist", worldstate.TickDecisions{})
	require.Error(t, err)
}

func TestCreateSimulation_Conflict(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()
	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1"}

	_, err := orch.CreateSimulation(ctx, "dup", cfg, initial, "")
	require.NoError(t, err)
	_, err = orch.CreateSimulation(ctx, "dup", cfg, initial, "")
	require.Error(t, err)
}

func TestResetSimulation_RestoresReadyState(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()
	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1"}

	_, err := orch.CreateSimulation(ctx, "sim-reset", cfg, initial, "")
	require.NoError(t, err)
	_, err = orch.RunTick(ctx, "sim-reset", worldstate.TickDecisions{})
	require.NoError(t, err)

	require.NoError(t, orch.ResetSimulation(ctx, "sim-reset", initial))

	ws, err := orch.GetState(ctx, "sim-reset")
	require.NoError(t, err)
	require.EqualValues(t, 0, ws.Tick)
}

func TestUpdateScriptCode_GatedByOrchestratorCurrentTick(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()
	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1"}
	_, err := orch.CreateSimulation(ctx, "sim-script", cfg, initial, "")
	require.NoError(t, err)

	const code = "def generate_decisions(context):\n    return {}\n"
	simID := "sim-script"
	script, err := orch.registry.RegisterScript(&simID, "alice", code, "", worldstate.AgentFirm, "firm")
	require.NoError(t, err)

	_, err = orch.UpdateScriptCode(ctx, "sim-script", script.ScriptID, "alice", code)
	require.NoError(t, err, "tick 0 opens a day, so the update should be allowed")

	_, err = orch.RunTick(ctx, "sim-script", worldstate.TickDecisions{})
	require.NoError(t, err)

	_, err = orch.UpdateScriptCode(ctx, "sim-script", script.ScriptID, "alice", code)
	require.Error(t, err)
	require.Equal(t, apperr.KindNotAtDayBoundary, apperr.KindOf(err))
}

func TestRegisterAndListParticipants(t *testing.T) {
	orch, cfg := newTestOrchestrator(t)
	ctx := context.Background()
	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"h1"}

	_, err := orch.CreateSimulation(ctx, "sim-p", cfg, initial, "")
	require.NoError(t, err)
	require.NoError(t, orch.RegisterParticipant(ctx, "sim-p", "alice"))
	require.NoError(t, orch.RegisterParticipant(ctx, "sim-p", "bob"))

	participants := orch.ListParticipants("sim-p")
	require.ElementsMatch(t, []string{"alice", "bob"}, participants)
}
