package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

func f(v float64) *float64 { return &v }

func TestHousehold_AdminOverridesScriptOverridesBaseline(t *testing.T) {
	admin := worldstate.HouseholdDecision{LaborSupply: f(0.5)}
	script := worldstate.HouseholdDecision{LaborSupply: f(0.9), ConsumptionBudget: f(20)}
	baseline := worldstate.HouseholdDecision{LaborSupply: f(1.0), ConsumptionBudget: f(5), ReservationWage: f(1)}

	merged, warnings := Household("h1", admin, script, baseline, Bounds{SubsistenceConsumption: 3, FirmPrice: 1})

	assert.Equal(t, 0.5, *merged.LaborSupply, "admin beats script and baseline")
	assert.Equal(t, 20.0, *merged.ConsumptionBudget, "script beats baseline when admin is silent")
	assert.Equal(t, 1.0, *merged.ReservationWage, "baseline used when neither admin nor script sets a field")
	assert.Empty(t, warnings)
}

func TestHousehold_ClampsConsumptionBudgetFloor(t *testing.T) {
	baseline := worldstate.HouseholdDecision{ConsumptionBudget: f(1)}
	merged, warnings := Household("h1", worldstate.HouseholdDecision{}, worldstate.HouseholdDecision{}, baseline, Bounds{SubsistenceConsumption: 3, FirmPrice: 2})

	assert.Equal(t, 6.0, *merged.ConsumptionBudget)
	assert.Len(t, warnings, 1)
}

func TestHousehold_ClampsLaborSupplyRange(t *testing.T) {
	baseline := worldstate.HouseholdDecision{LaborSupply: f(1.4)}
	merged, warnings := Household("h1", worldstate.HouseholdDecision{}, worldstate.HouseholdDecision{}, baseline, Bounds{})

	assert.Equal(t, 1.0, *merged.LaborSupply)
	assert.Len(t, warnings, 1)
}

func TestCentralBank_ClampsToInvariantRanges(t *testing.T) {
	baseline := worldstate.CentralBankDecision{PolicyRate: f(0.9), ReserveRatio: f(0.01)}
	merged, warnings := CentralBank(worldstate.CentralBankDecision{}, worldstate.CentralBankDecision{}, baseline)

	assert.Equal(t, 0.4, *merged.PolicyRate)
	assert.Equal(t, 0.05, *merged.ReserveRatio)
	assert.Len(t, warnings, 2)
}

func TestValidateNoUnknownFields_WrapsAsInvalidOverride(t *testing.T) {
	err := ValidateNoUnknownFields(assert.AnError, worldstate.AgentHousehold)
	assert.Error(t, err)
	assert.Equal(t, apperr.KindInvalidOverride, apperr.KindOf(err))
}

func TestValidateNoUnknownFields_NilIsNil(t *testing.T) {
	assert.NoError(t, ValidateNoUnknownFields(nil, worldstate.AgentFirm))
}
