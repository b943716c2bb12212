// Command orchestratord wires the state store, script registry, sandbox
// pool, and orchestrator into a single process and brings up one demo
// simulation, mirroring the teacher's cmd/worldsim composition root but
// request-driven instead of running a free-running engine loop: this
// process waits on signals rather than stepping a clock itself, since
// run_tick/run_day are meant to be invoked by an external caller (the
// out-of-scope REST layer).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/econ-sim-orchestrator/internal/config"
	"github.com/talgya/econ-sim-orchestrator/internal/orchestrator"
	"github.com/talgya/econ-sim-orchestrator/internal/registry"
	"github.com/talgya/econ-sim-orchestrator/internal/sandbox"
	"github.com/talgya/econ-sim-orchestrator/internal/store"
	"github.com/talgya/econ-sim-orchestrator/internal/store/durable"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	dbPath := envOr("ECON_SIM_DB_PATH", "data/econ_sim.db")
	os.MkdirAll("data", 0755)

	db, err := durable.Open(dbPath)
	if err != nil {
		slog.Error("failed to open durable store", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("durable store opened", "path", dbPath)

	st := store.New(db, logger)
	cfg := config.NewDefault()

	reg := registry.New(durable.NewScriptAdapter(db), cfg.ScriptLimitPerUser)

	interpreter := envOr("ECON_SIM_SCRIPT_INTERPRETER", "python3")
	pool := sandbox.NewPool(interpreter, cfg.WorkerPoolSize, sandbox.Limits{
		Timeout:        secondsToDuration(cfg.ScriptTimeout),
		MemoryMB:       cfg.ScriptMemoryMB,
		MaxInvocations: cfg.WorkerMaxInvocations,
	}, logger)

	orch := orchestrator.New(st, reg, pool, logger)

	simulationID := envOr("ECON_SIM_DEFAULT_SIMULATION_ID", "default")
	initial := worldstate.DefaultInitialConfig()
	initial.HouseholdIDs = []string{"household-1", "household-2", "household-3", "household-4"}

	ctx := context.Background()
	if _, err := orch.CreateSimulation(ctx, simulationID, cfg, initial, ""); err != nil {
		slog.Warn("simulation bootstrap skipped (likely already exists from a prior run)", "simulation_id", simulationID, "error", err)
	} else {
		slog.Info("bootstrap simulation created", "simulation_id", simulationID, "households", len(initial.HouseholdIDs))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	st.WaitForPendingWrites()
	slog.Info("shutdown complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
