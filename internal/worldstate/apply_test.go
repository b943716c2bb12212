package worldstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorld() *WorldState {
	cfg := InitialConfig{
		HouseholdIDs:          []string{"h1", "h2"},
		FirmPrice:             10,
		FirmWageOffer:         5,
		FirmInventory:         50,
		FirmProductivity:      1,
		BankReserveRatio:      0.1,
		BankDepositRate:       0.01,
		BankLoanRate:          0.05,
		CentralBankPolicyRate: 0.02,
		GovernmentTaxRate:     0.15,
	}
	return NewWorldState("sim-1", cfg)
}

func TestApply_AssignAndDelta(t *testing.T) {
	ws := newTestWorld()
	cmds := []Command{
		Assign(AgentHousehold, "h1", FieldCash, 100.0),
		Delta(AgentHousehold, "h1", FieldCash, 25.0),
		Assign(AgentFirm, "firm", FieldPrice, 12.5),
	}

	next, err := Apply(ws, cmds)
	require.NoError(t, err)
	assert.Equal(t, 125.0, next.Households["h1"].Cash)
	assert.Equal(t, 12.5, next.Firm.Price)

	// Original must be untouched.
	assert.Equal(t, 0.0, ws.Households["h1"].Cash)
}

func TestApply_UnknownHouseholdFails(t *testing.T) {
	ws := newTestWorld()
	_, err := Apply(ws, []Command{Assign(AgentHousehold, "ghost", FieldCash, 1.0)})
	require.Error(t, err)
}

func TestApply_InvariantViolationLeavesOriginalUntouched(t *testing.T) {
	ws := newTestWorld()
	_, err := Apply(ws, []Command{Assign(AgentFirm, "firm", FieldPrice, 0.0)})
	require.Error(t, err)
	assert.Equal(t, 10.0, ws.Firm.Price)
}

func TestApply_EmployerIDSyncsEmployeeList(t *testing.T) {
	ws := newTestWorld()
	next, err := Apply(ws, []Command{
		Assign(AgentHousehold, "h1", FieldEmployerID, "firm"),
		Assign(AgentHousehold, "h1", FieldEmploymentStatus, EmploymentEmployedFirm),
	})
	require.NoError(t, err)
	assert.Contains(t, next.Firm.Employees, "h1")
}

func TestCheckInvariants_StudyingMustBeUnemployed(t *testing.T) {
	ws := newTestWorld()
	ws.Households["h1"].IsStudying = true
	ws.Households["h1"].EmploymentStatus = EmploymentEmployedFirm
	err := CheckInvariants(ws)
	require.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	ws := newTestWorld()
	clone := ws.Clone()
	clone.Households["h1"].Cash = 999
	assert.NotEqual(t, ws.Households["h1"].Cash, clone.Households["h1"].Cash)
}
