package worldstate

// HouseholdDecision is the set of overridable per-household decision fields.
// A nil pointer means "this source did not specify a value for this field".
type HouseholdDecision struct {
	LaborSupply       *float64 `json:"labor_supply,omitempty"`
	ReservationWage   *float64 `json:"reservation_wage,omitempty"`
	ConsumptionBudget *float64 `json:"consumption_budget,omitempty"`
	LimitPrice        *float64 `json:"limit_price,omitempty"`
	DepositDelta      *float64 `json:"deposit_delta,omitempty"`
	WithdrawalAmount  *float64 `json:"withdrawal_amount,omitempty"`
	LoanRequestAmount *float64 `json:"loan_request_amount,omitempty"`
	LoanRequestRate   *float64 `json:"loan_request_rate,omitempty"`
	BondBidAmount     *float64 `json:"bond_bid_amount,omitempty"`
	BondBidRate       *float64 `json:"bond_bid_rate,omitempty"`
	StudyDecision     *bool    `json:"study_decision,omitempty"`
}

// FirmDecision is the set of overridable firm decision fields.
type FirmDecision struct {
	Price             *float64 `json:"price,omitempty"`
	WageOffer         *float64 `json:"wage_offer,omitempty"`
	PlannedProduction *float64 `json:"planned_production,omitempty"`
	HiringDemand      *int     `json:"hiring_demand,omitempty"`
}

// BankDecision is the set of overridable bank decision fields.
type BankDecision struct {
	DepositRate *float64 `json:"deposit_rate,omitempty"`
	LoanRate    *float64 `json:"loan_rate,omitempty"`
}

// CentralBankDecision is the set of overridable central bank decision fields.
type CentralBankDecision struct {
	PolicyRate   *float64 `json:"policy_rate,omitempty"`
	ReserveRatio *float64 `json:"reserve_ratio,omitempty"`
}

// GovernmentDecision is the set of overridable government decision fields.
type GovernmentDecision struct {
	TaxRate             *float64 `json:"tax_rate,omitempty"`
	Spending            *float64 `json:"spending,omitempty"`
	UnemploymentBenefit *float64 `json:"unemployment_benefit,omitempty"`
	BondIssuanceVolume  *float64 `json:"bond_issuance_volume,omitempty"`
}

// TickDecisions is the schema-validated record the Decision Merger produces
// from admin overrides, script overrides, and baseline fallback, per design
// doc Section 4.6. It doubles as the shape for each individual source
// (a "partial" TickDecisions with nil fields for anything that source did
// not set) and for the fully merged result logic modules consume.
type TickDecisions struct {
	Households  map[string]HouseholdDecision `json:"households,omitempty"`
	Firm        FirmDecision                 `json:"firm,omitempty"`
	Bank        BankDecision                 `json:"bank,omitempty"`
	CentralBank CentralBankDecision          `json:"central_bank,omitempty"`
	Government  GovernmentDecision           `json:"government,omitempty"`
}

// NewTickDecisions returns an empty TickDecisions ready for merging into.
func NewTickDecisions() TickDecisions {
	return TickDecisions{Households: map[string]HouseholdDecision{}}
}
