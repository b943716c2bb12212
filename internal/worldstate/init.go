package worldstate

// InitialConfig describes the handful of parameters needed to synthesize a
// fresh WorldState for a newly created simulation. The out-of-scope REST
// layer is expected to supply richer seed data in production; this default
// mirrors the shape used by design doc Scenario A.
type InitialConfig struct {
	HouseholdIDs        []string
	FirmPrice           float64
	FirmWageOffer       float64
	FirmInventory       float64
	FirmProductivity    float64
	BankReserveRatio    float64
	BankDepositRate     float64
	BankLoanRate        float64
	CentralBankPolicyRate float64
	GovernmentTaxRate   float64
}

// DefaultInitialConfig returns sane defaults used when the caller does not
// specify seed values.
func DefaultInitialConfig() InitialConfig {
	return InitialConfig{
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
}

// NewWorldState synthesizes the initial WorldState for a simulation from an
// InitialConfig. All households start unemployed with zero balances except
// where the caller supplies overrides via StateUpdateCommand after creation.
func NewWorldState(simulationID string, cfg InitialConfig) *WorldState {
	households := make(map[string]*HouseholdState, len(cfg.HouseholdIDs))
	for _, id := range cfg.HouseholdIDs {
		households[id] = &HouseholdState{
			ID:               id,
			EmploymentStatus: EmploymentUnemployed,
			EducationLevel:   0.5,
			Skill:            0.5,
			ReservationWage:  1,
		}
	}
	return &WorldState{
		SimulationID: simulationID,
		Tick:         0,
		Day:          0,
		Households:   households,
		Firm: &FirmState{
			ID:           "firm",
			Price:        cfg.FirmPrice,
			WageOffer:    cfg.FirmWageOffer,
			Inventory:    cfg.FirmInventory,
			Productivity: cfg.FirmProductivity,
		},
		Bank: &BankState{
			ID:          "bank",
			Loans:       map[string]float64{},
			DepositRate: cfg.BankDepositRate,
			LoanRate:    cfg.BankLoanRate,
		},
		CentralBank: &CentralBankState{
			ID:                 "central_bank",
			PolicyRate:         cfg.CentralBankPolicyRate,
			ReserveRatio:       cfg.BankReserveRatio,
			InflationTarget:    0.02,
			UnemploymentTarget: 0.05,
		},
		Government: &GovernmentState{
			ID:      "government",
			TaxRate: cfg.GovernmentTaxRate,
		},
	}
}
