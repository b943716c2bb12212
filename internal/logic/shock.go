package logic

import (
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/econ-sim-orchestrator/internal/config"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

// applyShocks perturbs each household's cash by a small, mean-zero amount
// drawn from a seeded noise field, so two runs from the same global seed and
// tick produce identical shocks. Grounded on logic_modules/shock_logic.py's
// generate_household_shocks: a deterministic per-household draw, mean-
// corrected across the population so the shock nets to zero. Each raw draw is
// clipped to a configured fraction of its household's cash before the mean
// correction; the residual added to the last household is not clipped. The
// draw is opensimplex noise scaled to [-1, 1], not a normal distribution.
// Runs only when the
// simulation's shock_enabled feature flag is set (design doc Section 4.7).
func applyShocks(working *worldstate.WorldState, cfg *config.Config) worldstate.TickLogEntry {
	ids := make([]string, 0, len(working.Households))
	for id := range working.Households {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return worldstate.TickLogEntry{Message: "shock_injection_skipped", Context: map[string]any{"reason": "no households"}}
	}

	noise := opensimplex.NewNormalized(cfg.GlobalRNGSeed ^ int64(working.Tick)*9973)
	maxFraction := clamp(cfg.ShockMaxFraction, 0, 0.9)

	deltas := make([]float64, len(ids))
	var total float64
	for i, id := range ids {
		h := working.Households[id]
		raw := noise.Eval2(float64(i), float64(working.Tick))*2 - 1 // [-1, 1]
		bound := h.Cash * maxFraction
		delta := clamp(raw*bound, -bound, bound)
		deltas[i] = delta
		total += delta
	}
	// Mean-correct so the population-wide shock nets to zero, absorbing the
	// residual in the last household by deterministic id order.
	deltas[len(deltas)-1] -= total

	for i, id := range ids {
		h := working.Households[id]
		h.Cash = maxFloat(0, h.Cash+deltas[i])
	}

	return worldstate.TickLogEntry{
		Message: "shock_injection_applied",
		Context: map[string]any{"households_shocked": len(ids)},
	}
}
