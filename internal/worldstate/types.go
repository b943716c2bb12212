// Package worldstate declares the explicit, tagged-record schemas for every
// entity in design doc Section 3, replacing the source system's
// dynamically-typed nested mapping (design doc Section 9).
package worldstate

import "time"

// AgentKind identifies which kind of agent a binding, decision, or context
// belongs to.
type AgentKind string

const (
	AgentHousehold   AgentKind = "household"
	AgentFirm        AgentKind = "firm"
	AgentBank        AgentKind = "bank"
	AgentCentralBank AgentKind = "central_bank"
	AgentGovernment  AgentKind = "government"
)

// EmploymentStatus enumerates a household's employment relationship.
type EmploymentStatus string

const (
	EmploymentUnemployed        EmploymentStatus = "unemployed"
	EmploymentEmployedFirm      EmploymentStatus = "employed_firm"
	EmploymentEmployedGovernment EmploymentStatus = "employed_government"
)

// HouseholdState is the balance sheet and behavioral state of one household.
// Invariant: EmploymentStatus == unemployed iff EmployerID == nil; IsStudying
// implies EmploymentStatus == unemployed. See design doc Section 3.
type HouseholdState struct {
	ID              string           `json:"id"`
	Cash            float64          `json:"cash"`
	Deposits        float64          `json:"deposits"`
	Loans           float64          `json:"loans"`
	BondHoldings    float64          `json:"bond_holdings"`
	Skill           float64          `json:"skill"`
	EducationLevel  float64          `json:"education_level"` // [0, 1.5]
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	EmployerID      *string          `json:"employer_id,omitempty"`
	IsStudying      bool             `json:"is_studying"`
	WageIncome      float64          `json:"wage_income"`
	LastConsumption float64          `json:"last_consumption"`
	ReservationWage float64          `json:"reservation_wage"`
}

// FirmState is the singleton firm's balance sheet and production state.
type FirmState struct {
	ID               string   `json:"id"`
	Cash             float64  `json:"cash"`
	Deposits         float64  `json:"deposits"`
	Loans            float64  `json:"loans"`
	Price            float64  `json:"price"` // >= 0.1
	WageOffer        float64  `json:"wage_offer"`
	PlannedProduction float64 `json:"planned_production"`
	Inventory        float64  `json:"inventory"`
	CapitalStock     float64  `json:"capital_stock"`
	Productivity     float64  `json:"productivity"`
	Employees        []string `json:"employees"`
	HiringDemand     int      `json:"hiring_demand"`
}

// BankState is the singleton commercial bank's balance sheet.
type BankState struct {
	ID           string             `json:"id"`
	Reserves     float64            `json:"reserves"`
	Deposits     float64            `json:"deposits"`
	Loans        map[string]float64 `json:"loans"` // household id -> outstanding
	BondHoldings float64            `json:"bond_holdings"`
	DepositRate  float64            `json:"deposit_rate"`
	LoanRate     float64            `json:"loan_rate"`
}

// CentralBankState is the singleton monetary authority.
type CentralBankState struct {
	ID                  string  `json:"id"`
	PolicyRate          float64 `json:"policy_rate"` // [0, 0.4]
	ReserveRatio        float64 `json:"reserve_ratio"` // [0.05, 0.2]
	InflationTarget     float64 `json:"inflation_target"`
	UnemploymentTarget  float64 `json:"unemployment_target"`
}

// GovernmentState is the singleton fiscal authority.
type GovernmentState struct {
	ID                  string   `json:"id"`
	Cash                float64  `json:"cash"`
	TaxRate             float64  `json:"tax_rate"`
	Spending            float64  `json:"spending"`
	UnemploymentBenefit float64  `json:"unemployment_benefit"`
	Employees           []string `json:"employees"`
	OutstandingDebt     float64  `json:"outstanding_debt"`
	BondIssuancePlan    float64  `json:"bond_issuance_plan"`
}

// Macro holds aggregate statistics recomputed at the end of each tick.
type Macro struct {
	GDP              float64 `json:"gdp"`
	Inflation        float64 `json:"inflation"`
	UnemploymentRate float64 `json:"unemployment_rate"`
	PriceIndex       float64 `json:"price_index"`
	WageIndex        float64 `json:"wage_index"`
}

// WorldState is the per-simulation aggregate. It exists iff the owning
// Simulation exists; every persisted revision is the result of a completed
// tick or a reset. See design doc Section 3.
type WorldState struct {
	SimulationID string                     `json:"simulation_id"`
	Tick         uint64                     `json:"tick"`
	Day          uint64                     `json:"day"`
	Households   map[string]*HouseholdState `json:"households"`
	Firm         *FirmState                 `json:"firm"`
	Bank         *BankState                 `json:"bank"`
	CentralBank  *CentralBankState          `json:"central_bank"`
	Government   *GovernmentState           `json:"government"`
	Macro        Macro                      `json:"macro"`
}

// Clone returns a deep copy so that readers can be handed an immutable
// snapshot while apply_updates mutates a distinct working copy (design doc
// Section 5: "all other readers see immutable snapshots").
func (w *WorldState) Clone() *WorldState {
	if w == nil {
		return nil
	}
	out := &WorldState{
		SimulationID: w.SimulationID,
		Tick:         w.Tick,
		Day:          w.Day,
		Macro:        w.Macro,
	}
	out.Households = make(map[string]*HouseholdState, len(w.Households))
	for id, h := range w.Households {
		cp := *h
		if h.EmployerID != nil {
			eid := *h.EmployerID
			cp.EmployerID = &eid
		}
		out.Households[id] = &cp
	}
	if w.Firm != nil {
		cp := *w.Firm
		cp.Employees = append([]string(nil), w.Firm.Employees...)
		out.Firm = &cp
	}
	if w.Bank != nil {
		cp := *w.Bank
		cp.Loans = make(map[string]float64, len(w.Bank.Loans))
		for id, v := range w.Bank.Loans {
			cp.Loans[id] = v
		}
		out.Bank = &cp
	}
	if w.CentralBank != nil {
		cp := *w.CentralBank
		out.CentralBank = &cp
	}
	if w.Government != nil {
		cp := *w.Government
		cp.Employees = append([]string(nil), w.Government.Employees...)
		out.Government = &cp
	}
	return out
}

// TickLogEntry is an append-only structured log record produced during a
// tick. See design doc Section 3.
type TickLogEntry struct {
	SimulationID string         `json:"simulation_id"`
	Tick         uint64         `json:"tick"`
	Day          uint64         `json:"day"`
	Message      string         `json:"message"`
	Context      map[string]any `json:"context,omitempty"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// Simulation captures the per-simulation config snapshot recorded at
// creation time (feature flags, quotas), independent of the process-wide
// config.Config defaults.
type Simulation struct {
	ID                  string          `json:"id"`
	Tick                uint64          `json:"tick"`
	Day                 uint64          `json:"day"`
	Participants        map[string]bool `json:"participants"`
	AllowFallbackForMissing bool        `json:"allow_fallback_for_missing"`
	ShockEnabled        bool            `json:"shock_enabled"`
	ScriptLimitPerUser  int             `json:"script_limit_per_user"`
}
