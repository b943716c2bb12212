package fallback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

func TestHousehold_ConsumptionFloorsAtOne(t *testing.T) {
	h := &worldstate.HouseholdState{Cash: 0, Deposits: 0, WageIncome: 0}
	decision := Household(h, false)
	require.NotNil(t, decision.ConsumptionBudget)
	assert.Equal(t, 1.0, *decision.ConsumptionBudget)
	assert.Nil(t, decision.LaborSupply, "labor supply only set on daily ticks")
}

func TestHousehold_DailyTickSetsStudyAndLabor(t *testing.T) {
	h := &worldstate.HouseholdState{EducationLevel: 0.2, EmploymentStatus: worldstate.EmploymentUnemployed}
	decision := Household(h, true)
	require.NotNil(t, decision.StudyDecision)
	assert.True(t, *decision.StudyDecision)
	require.NotNil(t, decision.LaborSupply)
	assert.Equal(t, 0.0, *decision.LaborSupply, "a studying household supplies no labor")
}

func TestBank_RatesTrackPolicyRateWithSpread(t *testing.T) {
	b := &worldstate.BankState{}
	cb := &worldstate.CentralBankState{PolicyRate: 0.05}
	decision := Bank(b, cb)
	require.NotNil(t, decision.LoanRate)
	require.NotNil(t, decision.DepositRate)
	assert.Greater(t, *decision.LoanRate, *decision.DepositRate)
}

func TestGovernment_RaisesTransfersWithUnemploymentGap(t *testing.T) {
	g := &worldstate.GovernmentState{TaxRate: 0.2, UnemploymentBenefit: 10}
	low := Government(g, 0.05, 10)
	high := Government(g, 0.2, 10)
	assert.Greater(t, *high.Spending, *low.Spending)
}

func TestCentralBank_RaisesPolicyRateOnInflationAboveTarget(t *testing.T) {
	cb := &worldstate.CentralBankState{PolicyRate: 0.02, InflationTarget: 0.02, UnemploymentTarget: 0.05}
	decision := CentralBank(cb, worldstate.Macro{Inflation: 0.1, UnemploymentRate: 0.05})
	require.NotNil(t, decision.PolicyRate)
	assert.Greater(t, *decision.PolicyRate, cb.PolicyRate)
}
