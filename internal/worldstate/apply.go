package worldstate

import (
	"fmt"

	"github.com/talgya/econ-sim-orchestrator/internal/apperr"
)

// Apply applies a batch of commands to a clone of ws and returns the new
// state. The batch is all-or-nothing: if any command fails to apply, or the
// resulting state violates an invariant, the original ws is left untouched
// and an error is returned. See design doc Section 4.1 and Section 8.
func Apply(ws *WorldState, cmds []Command) (*WorldState, error) {
	next := ws.Clone()
	for i, cmd := range cmds {
		if err := applyOne(next, cmd); err != nil {
			return nil, fmt.Errorf("apply command %d (%s.%s): %w", i, cmd.Path.Target, cmd.Path.Field, err)
		}
	}
	syncEmployeeLists(next)
	if err := CheckInvariants(next); err != nil {
		return nil, err
	}
	return next, nil
}

func applyOne(ws *WorldState, cmd Command) error {
	switch cmd.Path.Target {
	case AgentHousehold:
		return applyHousehold(ws, cmd)
	case AgentFirm:
		return applyFirm(ws, cmd)
	case AgentBank:
		return applyBank(ws, cmd)
	case AgentCentralBank:
		return applyCentralBank(ws, cmd)
	case AgentGovernment:
		return applyGovernment(ws, cmd)
	case "macro":
		return applyMacro(ws, cmd)
	default:
		return fmt.Errorf("unknown target %q", cmd.Path.Target)
	}
}

func applyHousehold(ws *WorldState, cmd Command) error {
	h, ok := ws.Households[cmd.Path.EntityID]
	if !ok {
		return fmt.Errorf("household %q not found", cmd.Path.EntityID)
	}
	switch cmd.Path.Field {
	case FieldCash:
		return applyFloat(&h.Cash, cmd)
	case FieldDeposits:
		return applyFloat(&h.Deposits, cmd)
	case FieldLoans:
		return applyFloat(&h.Loans, cmd)
	case FieldBondHoldings:
		return applyFloat(&h.BondHoldings, cmd)
	case FieldSkill:
		return applyFloat(&h.Skill, cmd)
	case FieldEducationLevel:
		return applyFloat(&h.EducationLevel, cmd)
	case FieldWageIncome:
		return applyFloat(&h.WageIncome, cmd)
	case FieldLastConsumption:
		return applyFloat(&h.LastConsumption, cmd)
	case FieldReservationWage:
		return applyFloat(&h.ReservationWage, cmd)
	case FieldIsStudying:
		if cmd.Op != OpAssign {
			return fmt.Errorf("is_studying only supports assign")
		}
		v, ok := cmd.Value.(bool)
		if !ok {
			return fmt.Errorf("is_studying requires bool value")
		}
		h.IsStudying = v
		return nil
	case FieldEmploymentStatus:
		if cmd.Op != OpAssign {
			return fmt.Errorf("employment_status only supports assign")
		}
		v, ok := cmd.Value.(EmploymentStatus)
		if !ok {
			s, ok2 := cmd.Value.(string)
			if !ok2 {
				return fmt.Errorf("employment_status requires EmploymentStatus value")
			}
			v = EmploymentStatus(s)
		}
		h.EmploymentStatus = v
		return nil
	case FieldEmployerID:
		if cmd.Op != OpAssign {
			return fmt.Errorf("employer_id only supports assign")
		}
		switch v := cmd.Value.(type) {
		case nil:
			h.EmployerID = nil
		case string:
			id := v
			h.EmployerID = &id
		case *string:
			h.EmployerID = v
		default:
			return fmt.Errorf("employer_id requires *string or nil")
		}
		return nil
	default:
		return fmt.Errorf("field %q not valid for household", cmd.Path.Field)
	}
}

func applyFirm(ws *WorldState, cmd Command) error {
	f := ws.Firm
	if f == nil {
		return fmt.Errorf("firm not present")
	}
	switch cmd.Path.Field {
	case FieldCash:
		return applyFloat(&f.Cash, cmd)
	case FieldDeposits:
		return applyFloat(&f.Deposits, cmd)
	case FieldLoans:
		return applyFloat(&f.Loans, cmd)
	case FieldPrice:
		return applyFloat(&f.Price, cmd)
	case FieldWageOffer:
		return applyFloat(&f.WageOffer, cmd)
	case FieldPlannedProduction:
		return applyFloat(&f.PlannedProduction, cmd)
	case FieldInventory:
		return applyFloat(&f.Inventory, cmd)
	case FieldCapitalStock:
		return applyFloat(&f.CapitalStock, cmd)
	case FieldProductivity:
		return applyFloat(&f.Productivity, cmd)
	case FieldHiringDemand:
		if cmd.Op != OpAssign {
			return fmt.Errorf("hiring_demand only supports assign")
		}
		v, ok := cmd.Value.(int)
		if !ok {
			return fmt.Errorf("hiring_demand requires int value")
		}
		f.HiringDemand = v
		return nil
	default:
		return fmt.Errorf("field %q not valid for firm", cmd.Path.Field)
	}
}

func applyBank(ws *WorldState, cmd Command) error {
	b := ws.Bank
	if b == nil {
		return fmt.Errorf("bank not present")
	}
	switch cmd.Path.Field {
	case FieldReserves:
		return applyFloat(&b.Reserves, cmd)
	case FieldDeposits:
		return applyFloat(&b.Deposits, cmd)
	case FieldBondHoldings:
		return applyFloat(&b.BondHoldings, cmd)
	case FieldDepositRate:
		return applyFloat(&b.DepositRate, cmd)
	case FieldLoanRate:
		return applyFloat(&b.LoanRate, cmd)
	case FieldHouseholdLoan:
		if b.Loans == nil {
			b.Loans = map[string]float64{}
		}
		cur := b.Loans[cmd.Path.EntityID]
		if err := applyFloat(&cur, cmd); err != nil {
			return err
		}
		b.Loans[cmd.Path.EntityID] = cur
		return nil
	default:
		return fmt.Errorf("field %q not valid for bank", cmd.Path.Field)
	}
}

func applyCentralBank(ws *WorldState, cmd Command) error {
	cb := ws.CentralBank
	if cb == nil {
		return fmt.Errorf("central bank not present")
	}
	switch cmd.Path.Field {
	case FieldPolicyRate:
		return applyFloat(&cb.PolicyRate, cmd)
	case FieldReserveRatio:
		return applyFloat(&cb.ReserveRatio, cmd)
	case FieldInflationTarget:
		return applyFloat(&cb.InflationTarget, cmd)
	case FieldUnemploymentTarget:
		return applyFloat(&cb.UnemploymentTarget, cmd)
	default:
		return fmt.Errorf("field %q not valid for central_bank", cmd.Path.Field)
	}
}

func applyGovernment(ws *WorldState, cmd Command) error {
	g := ws.Government
	if g == nil {
		return fmt.Errorf("government not present")
	}
	switch cmd.Path.Field {
	case FieldCash:
		return applyFloat(&g.Cash, cmd)
	case FieldTaxRate:
		return applyFloat(&g.TaxRate, cmd)
	case FieldSpending:
		return applyFloat(&g.Spending, cmd)
	case FieldUnemploymentBenefit:
		return applyFloat(&g.UnemploymentBenefit, cmd)
	case FieldOutstandingDebt:
		return applyFloat(&g.OutstandingDebt, cmd)
	case FieldBondIssuancePlan:
		return applyFloat(&g.BondIssuancePlan, cmd)
	default:
		return fmt.Errorf("field %q not valid for government", cmd.Path.Field)
	}
}

func applyMacro(ws *WorldState, cmd Command) error {
	m := &ws.Macro
	switch cmd.Path.Field {
	case FieldGDP:
		return applyFloat(&m.GDP, cmd)
	case FieldInflation:
		return applyFloat(&m.Inflation, cmd)
	case FieldUnemploymentRate:
		return applyFloat(&m.UnemploymentRate, cmd)
	case FieldPriceIndex:
		return applyFloat(&m.PriceIndex, cmd)
	case FieldWageIndex:
		return applyFloat(&m.WageIndex, cmd)
	default:
		return fmt.Errorf("field %q not valid for macro", cmd.Path.Field)
	}
}

func applyFloat(dst *float64, cmd Command) error {
	switch cmd.Op {
	case OpAssign:
		v, ok := toFloat(cmd.Value)
		if !ok {
			return fmt.Errorf("assign requires numeric value, got %T", cmd.Value)
		}
		*dst = v
	case OpDelta:
		*dst += cmd.Amount
	default:
		return fmt.Errorf("unknown op %v", cmd.Op)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// syncEmployeeLists derives Firm.Employees and Government.Employees from
// household EmployerID, per design doc Section 9: employer_id is the single
// source of truth, firm.employees is derived so the two can never diverge
// across a tick boundary.
func syncEmployeeLists(ws *WorldState) {
	var firmEmployees, govEmployees []string
	for id, h := range ws.Households {
		if h.EmployerID == nil {
			continue
		}
		switch {
		case ws.Firm != nil && *h.EmployerID == ws.Firm.ID:
			firmEmployees = append(firmEmployees, id)
		case ws.Government != nil && *h.EmployerID == ws.Government.ID:
			govEmployees = append(govEmployees, id)
		}
	}
	if ws.Firm != nil {
		ws.Firm.Employees = firmEmployees
	}
	if ws.Government != nil {
		ws.Government.Employees = govEmployees
	}
}

// CheckInvariants validates the invariants listed in design doc Section 3
// and Section 8. A violation is fatal for the simulation (KindInvariantViolation).
func CheckInvariants(ws *WorldState) error {
	for id, h := range ws.Households {
		if (h.EmployerID == nil) != (h.EmploymentStatus == EmploymentUnemployed) {
			return apperr.New(apperr.KindInvariantViolation,
				fmt.Sprintf("household %s: employer_id/employment_status mismatch", id))
		}
		if h.IsStudying && h.EmploymentStatus != EmploymentUnemployed {
			return apperr.New(apperr.KindInvariantViolation,
				fmt.Sprintf("household %s: studying households must be unemployed", id))
		}
		if h.BondHoldings < 0 {
			return apperr.New(apperr.KindInvariantViolation,
				fmt.Sprintf("household %s: negative bond holdings", id))
		}
		if h.EducationLevel < 0 || h.EducationLevel > 1.5 {
			return apperr.New(apperr.KindInvariantViolation,
				fmt.Sprintf("household %s: education_level out of range", id))
		}
	}
	if ws.Firm != nil {
		if ws.Firm.Price < 0.1 {
			return apperr.New(apperr.KindInvariantViolation, "firm price below floor")
		}
		if ws.Firm.WageOffer < 0 || ws.Firm.PlannedProduction < 0 || ws.Firm.Inventory < 0 || ws.Firm.CapitalStock < 0 {
			return apperr.New(apperr.KindInvariantViolation, "firm balance sheet field negative")
		}
		for _, id := range ws.Firm.Employees {
			h, ok := ws.Households[id]
			if !ok || h.EmployerID == nil || *h.EmployerID != ws.Firm.ID {
				return apperr.New(apperr.KindInvariantViolation,
					fmt.Sprintf("firm employee %s not consistent with household employer_id", id))
			}
		}
	}
	if ws.CentralBank != nil {
		if ws.CentralBank.PolicyRate < 0 || ws.CentralBank.PolicyRate > 0.4 {
			return apperr.New(apperr.KindInvariantViolation, "policy_rate out of range")
		}
		if ws.CentralBank.ReserveRatio < 0.05 || ws.CentralBank.ReserveRatio > 0.2 {
			return apperr.New(apperr.KindInvariantViolation, "reserve_ratio out of range")
		}
	}
	return nil
}
