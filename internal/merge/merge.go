// Package merge combines baseline, script, and admin decisions into the
// single TickDecisions a tick acts on, at field-level precedence
// admin > script > baseline. Grounded on the source system's
// agent_logic.collect_tick_decisions (override-replaces-default-per-field)
// and its _sanitize_overrides clamping behavior (test_override_sanitization.py).
// See design doc Section 4.6.
package merge

import (
	"fmt"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

// Bounds constrains the numeric ranges a merged decision's fields must fall
// within after admin/script overlays are applied. Values out of range are
// clamped in place and a warning is returned for the caller to log (design
// doc Section 4.6: "numeric clamping with a warning, never a hard failure").
type Bounds struct {
	SubsistenceConsumption float64 // floor for consumption_budget, in goods units
	FirmPrice              float64 // current firm price, to convert subsistence to currency
}

// Warning describes a clamp applied during merge, for structured logging.
type Warning struct {
	EntityID string
	Field    string
	Original float64
	Clamped  float64
}

func pickFloat(admin, script, baseline *float64) *float64 {
	if admin != nil {
		return admin
	}
	if script != nil {
		return script
	}
	return baseline
}

func pickBool(admin, script, baseline *bool) *bool {
	if admin != nil {
		return admin
	}
	if script != nil {
		return script
	}
	return baseline
}

func pickInt(admin, script, baseline *int) *int {
	if admin != nil {
		return admin
	}
	if script != nil {
		return script
	}
	return baseline
}

// Household merges one household's three decision layers at field-level
// precedence, then clamps labor_supply to [0, 1] and floors
// consumption_budget at subsistence consumption priced at the firm price.
// Other fields, reservation_wage included, are not clamped.
func Household(entityID string, admin, script, baseline worldstate.HouseholdDecision, bounds Bounds) (worldstate.HouseholdDecision, []Warning) {
	merged := worldstate.HouseholdDecision{
		LaborSupply:       pickFloat(admin.LaborSupply, script.LaborSupply, baseline.LaborSupply),
		ReservationWage:   pickFloat(admin.ReservationWage, script.ReservationWage, baseline.ReservationWage),
		ConsumptionBudget: pickFloat(admin.ConsumptionBudget, script.ConsumptionBudget, baseline.ConsumptionBudget),
		LimitPrice:        pickFloat(admin.LimitPrice, script.LimitPrice, baseline.LimitPrice),
		DepositDelta:      pickFloat(admin.DepositDelta, script.DepositDelta, baseline.DepositDelta),
		WithdrawalAmount:  pickFloat(admin.WithdrawalAmount, script.WithdrawalAmount, baseline.WithdrawalAmount),
		LoanRequestAmount: pickFloat(admin.LoanRequestAmount, script.LoanRequestAmount, baseline.LoanRequestAmount),
		LoanRequestRate:   pickFloat(admin.LoanRequestRate, script.LoanRequestRate, baseline.LoanRequestRate),
		BondBidAmount:     pickFloat(admin.BondBidAmount, script.BondBidAmount, baseline.BondBidAmount),
		BondBidRate:       pickFloat(admin.BondBidRate, script.BondBidRate, baseline.BondBidRate),
		StudyDecision:     pickBool(admin.StudyDecision, script.StudyDecision, baseline.StudyDecision),
	}

	var warnings []Warning
	if merged.LaborSupply != nil {
		clamped := clampFloat(*merged.LaborSupply, 0, 1)
		if clamped != *merged.LaborSupply {
			warnings = append(warnings, Warning{entityID, "labor_supply", *merged.LaborSupply, clamped})
			merged.LaborSupply = &clamped
		}
	}
	if merged.ConsumptionBudget != nil {
		floor := bounds.SubsistenceConsumption * bounds.FirmPrice
		clamped := *merged.ConsumptionBudget
		if clamped < floor {
			clamped = floor
		}
		if clamped != *merged.ConsumptionBudget {
			warnings = append(warnings, Warning{entityID, "consumption_budget", *merged.ConsumptionBudget, clamped})
			merged.ConsumptionBudget = &clamped
		}
	}
	return merged, warnings
}

// Firm merges one firm's three decision layers at field-level precedence.
func Firm(admin, script, baseline worldstate.FirmDecision) worldstate.FirmDecision {
	return worldstate.FirmDecision{
		Price:             pickFloat(admin.Price, script.Price, baseline.Price),
		WageOffer:         pickFloat(admin.WageOffer, script.WageOffer, baseline.WageOffer),
		PlannedProduction: pickFloat(admin.PlannedProduction, script.PlannedProduction, baseline.PlannedProduction),
		HiringDemand:      pickInt(admin.HiringDemand, script.HiringDemand, baseline.HiringDemand),
	}
}

// Bank merges one bank's three decision layers, clamping rates to [0, 1].
func Bank(admin, script, baseline worldstate.BankDecision) (worldstate.BankDecision, []Warning) {
	merged := worldstate.BankDecision{
		DepositRate: pickFloat(admin.DepositRate, script.DepositRate, baseline.DepositRate),
		LoanRate:    pickFloat(admin.LoanRate, script.LoanRate, baseline.LoanRate),
	}
	var warnings []Warning
	if merged.DepositRate != nil {
		clamped := clampFloat(*merged.DepositRate, 0, 1)
		if clamped != *merged.DepositRate {
			warnings = append(warnings, Warning{"bank", "deposit_rate", *merged.DepositRate, clamped})
			merged.DepositRate = &clamped
		}
	}
	if merged.LoanRate != nil {
		clamped := clampFloat(*merged.LoanRate, 0, 1)
		if clamped != *merged.LoanRate {
			warnings = append(warnings, Warning{"bank", "loan_rate", *merged.LoanRate, clamped})
			merged.LoanRate = &clamped
		}
	}
	return merged, warnings
}

// CentralBank merges one central bank's three decision layers, clamping
// policy_rate and reserve_ratio to the invariant ranges from
// worldstate.CheckInvariants.
func CentralBank(admin, script, baseline worldstate.CentralBankDecision) (worldstate.CentralBankDecision, []Warning) {
	merged := worldstate.CentralBankDecision{
		PolicyRate:   pickFloat(admin.PolicyRate, script.PolicyRate, baseline.PolicyRate),
		ReserveRatio: pickFloat(admin.ReserveRatio, script.ReserveRatio, baseline.ReserveRatio),
	}
	var warnings []Warning
	if merged.PolicyRate != nil {
		clamped := clampFloat(*merged.PolicyRate, 0, 0.4)
		if clamped != *merged.PolicyRate {
			warnings = append(warnings, Warning{"central_bank", "policy_rate", *merged.PolicyRate, clamped})
			merged.PolicyRate = &clamped
		}
	}
	if merged.ReserveRatio != nil {
		clamped := clampFloat(*merged.ReserveRatio, 0.05, 0.2)
		if clamped != *merged.ReserveRatio {
			warnings = append(warnings, Warning{"central_bank", "reserve_ratio", *merged.ReserveRatio, clamped})
			merged.ReserveRatio = &clamped
		}
	}
	return merged, warnings
}

// Government merges one government's three decision layers at field-level
// precedence.
func Government(admin, script, baseline worldstate.GovernmentDecision) worldstate.GovernmentDecision {
	return worldstate.GovernmentDecision{
		TaxRate:             pickFloat(admin.TaxRate, script.TaxRate, baseline.TaxRate),
		Spending:            pickFloat(admin.Spending, script.Spending, baseline.Spending),
		UnemploymentBenefit: pickFloat(admin.UnemploymentBenefit, script.UnemploymentBenefit, baseline.UnemploymentBenefit),
		BondIssuanceVolume:  pickFloat(admin.BondIssuanceVolume, script.BondIssuanceVolume, baseline.BondIssuanceVolume),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ValidateNoUnknownFields is a placeholder entry point for schema
// validation of script-submitted JSON overrides against the allowed field
// set per agent kind, before those overrides ever reach Household/Firm/etc.
// Decoding with encoding/json into the exact worldstate.*Decision struct
// already rejects unknown fields when the caller uses
// json.Decoder.DisallowUnknownFields, so this function exists to produce
// the apperr.KindInvalidOverride the caller expects rather than a raw
// encoding/json error.
func ValidateNoUnknownFields(decodeErr error, agentKind worldstate.AgentKind) error {
	if decodeErr == nil {
		return nil
	}
	return apperr.Wrap(apperr.KindInvalidOverride,
		fmt.Sprintf("override for %s contains unknown or malformed fields", agentKind), decodeErr)
}
