// Package fallback computes deterministic baseline decisions for any agent
// missing a bound script, so a tick can always proceed (design doc Section
// 4.4's Coverage Guard, Section 9). Each rule below is a direct port of the
// corresponding deploy/baseline_scripts/*.py baseline used by the system
// this was distilled from, adapted to the explicit WorldState/Decision
// struct schema instead of dynamically-typed dict payloads.
package fallback

import (
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Household mirrors household_baseline.py: a consumption rule driven by
// liquid wealth and wage income, plus a daily-tick-only education/labor
// supply decision.
func Household(h *worldstate.HouseholdState, isDailyTick bool) worldstate.HouseholdDecision {
	liquid := h.Cash + h.Deposits
	base := 0.05*liquid + 0.5*h.WageIncome
	if base < 1.0 {
		base = 1.0
	}
	budget := round2(base)

	decision := worldstate.HouseholdDecision{ConsumptionBudget: &budget}

	if !isDailyTick {
		return decision
	}

	isStudying := h.EducationLevel < 0.4
	labor := 1.0
	if h.EmploymentStatus != worldstate.EmploymentUnemployed {
		labor = 0.85
	}
	if isStudying {
		labor = 0.0
	}
	decision.LaborSupply = &labor
	decision.StudyDecision = &isStudying
	return decision
}

// Firm mirrors firm_baseline.py: planned production targets a demand proxy
// plus an inventory gap, price adjusts toward that gap, and hiring/wage
// offers only change on daily ticks.
func Firm(f *worldstate.FirmState, households map[string]*worldstate.HouseholdState, unemploymentRate float64, isDailyTick bool) worldstate.FirmDecision {
	householdCount := len(households)
	if householdCount < 1 {
		householdCount = 1
	}
	var recentConsumption float64
	for _, h := range households {
		recentConsumption += h.LastConsumption
	}
	demandProxy := float64(householdCount) * 60.0
	if alt := recentConsumption * 0.8; alt > demandProxy {
		demandProxy = alt
	}

	desiredInventory := float64(householdCount) * 1.5
	inventoryGap := desiredInventory - f.Inventory
	plannedProduction := demandProxy*0.5 + inventoryGap
	if plannedProduction < 0 {
		plannedProduction = 0
	}

	priceAdjustment := clamp(1.0+inventoryGap/maxFloat(desiredInventory, 1.0)*0.1, 0.9, 1.1)
	wageAdjustment := clamp(1.0-unemploymentRate*0.1, 0.9, 1.1)

	price := round2(f.Price * priceAdjustment)
	production := round2(plannedProduction)

	decision := worldstate.FirmDecision{
		PlannedProduction: &production,
		Price:             &price,
	}

	if isDailyTick {
		productivity := maxFloat(f.Productivity, 0.1)
		requiredWorkers := int(plannedProduction / productivity)
		hiring := requiredWorkers - len(f.Employees)
		if hiring < 0 {
			hiring = 0
		}
		wageOffer := round2(f.WageOffer * wageAdjustment)
		decision.HiringDemand = &hiring
		decision.WageOffer = &wageOffer
	}
	return decision
}

// Bank mirrors bank_baseline.py: loan/deposit rates track the policy rate
// with a spread, bounded to sane ranges.
func Bank(b *worldstate.BankState, cb *worldstate.CentralBankState) worldstate.BankDecision {
	spread := clamp(0.025+cb.PolicyRate*0.5, 0.02, 0.05)
	loanRate := clamp(cb.PolicyRate+spread, 0.02, 0.25)
	depositRate := clamp(cb.PolicyRate*0.65, 0.0, loanRate-0.005)

	loanRate = round4(loanRate)
	depositRate = round4(depositRate)
	return worldstate.BankDecision{
		DepositRate: &depositRate,
		LoanRate:    &loanRate,
	}
}

// Government mirrors government_baseline.py: tax rate falls as unemployment
// rises above a 6% comfort band, and the proposed spending (a transfer
// budget) grows with that gap.
func Government(g *worldstate.GovernmentState, unemploymentRate float64, householdCount int) worldstate.GovernmentDecision {
	unemploymentGap := unemploymentRate - 0.06
	if unemploymentGap < 0 {
		unemploymentGap = 0
	}
	taxRate := round4(clamp(g.TaxRate-unemploymentGap*0.1, 0.05, 0.45))
	transferBudget := round2(maxFloat(0, float64(householdCount)*g.UnemploymentBenefit*unemploymentGap*50))

	decision := worldstate.GovernmentDecision{
		TaxRate:  &taxRate,
		Spending: &transferBudget,
	}
	return decision
}

// CentralBank mirrors central_bank_baseline.py: a simple Taylor-rule-style
// policy rate reaction to the inflation and unemployment gaps implied by the
// previous tick's Macro aggregate.
func CentralBank(cb *worldstate.CentralBankState, macro worldstate.Macro) worldstate.CentralBankDecision {
	inflationGap := macro.Inflation - cb.InflationTarget
	unemploymentGap := macro.UnemploymentRate - cb.UnemploymentTarget

	policyRate := round4(clamp(cb.PolicyRate+0.8*inflationGap-0.4*unemploymentGap, 0.0, 0.25))
	reserveRatio := round4(clamp(cb.ReserveRatio+0.15*unemploymentGap, 0.05, 0.35))
	return worldstate.CentralBankDecision{
		PolicyRate:   &policyRate,
		ReserveRatio: &reserveRatio,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func round2(v float64) float64 {
	return float64(int(v*100+sign(v)*0.5)) / 100
}

func round4(v float64) float64 {
	return float64(int(v*10000+sign(v)*0.5)) / 10000
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
