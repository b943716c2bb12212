// Package logic implements the fixed-order tick pipeline: shock injection,
// central bank policy application, education and labor market clearing
// (daily ticks only), production, income support, goods market clearing by
// limit-price priority, savings and bank withdrawals/loans, bond auction
// (coupon accrual every BondCouponFrequencyTicks ticks), taxation, and macro aggregate
// recomputation. Grounded directly on the source system's
// logic_modules/market_logic.py execute_tick_logic, which runs its phases in
// a fixed order against a cloned working state, supplemented by the sibling
// shock_logic.py, education.py, and bond_market.py modules the same package
// exposes. See design doc Section 4.7 and 4.8.
package logic

import (
	"sort"

	"github.com/talgya/econ-sim-orchestrator/internal/config"
	"github.com/talgya/econ-sim-orchestrator/internal/worldstate"
)

// metrics accumulates the per-tick aggregates macro recomputation needs,
// mirroring the source system's TickEconomyMetrics.
type metrics struct {
	unemploymentRate       float64
	priceLevel             float64
	wageLevel              float64
	wagePaymentsFirm       float64
	wagePaymentsGovernment float64
	transfers              float64
	goodsSold              float64
	consumptionValue       float64
	taxesCollected         float64
	bondProceeds           float64
}

// Run executes the full tick pipeline against ws and decisions, returning
// the commands to apply and the log entries to record. ws is never mutated;
// all computation happens against an internal clone. shockEnabled gates the
// shock injection phase behind the simulation's shock_enabled feature flag.
func Run(ws *worldstate.WorldState, decisions worldstate.TickDecisions, cfg *config.Config, isDailyTick, shockEnabled bool) ([]worldstate.Command, []worldstate.TickLogEntry, error) {
	working := ws.Clone()
	var m metrics
	var logs []worldstate.TickLogEntry

	if shockEnabled {
		logs = append(logs, applyShocks(working, cfg))
	}

	applyCentralBankPolicy(working, decisions)

	// Education and labor market clearing only run on the tick that opens a
	// new day; outside that tick m.unemploymentRate carries the prior day's
	// figure forward instead of collapsing to zero.
	m.unemploymentRate = working.Macro.UnemploymentRate
	if isDailyTick {
		logs = append(logs, processEducation(working, decisions, cfg))
		logs = append(logs, clearLaborMarket(working, decisions, &m))
	}
	logs = append(logs, runProduction(working, decisions, &m))
	logs = append(logs, processIncomeSupport(working, decisions, cfg, &m)...)
	logs = append(logs, clearGoodsMarket(working, decisions, cfg, &m))
	logs = append(logs, processSavings(working, decisions, &m))
	logs = append(logs, processBanking(working, decisions, &m))
	// The bond auction itself runs every tick; only its coupon accrual is
	// gated, internally, to every BondCouponFrequencyTicks ticks.
	logs = append(logs, clearBondMarket(working, decisions, cfg, &m))
	logs = append(logs, collectTaxes(working, decisions, &m))
	logs = append(logs, updateMacro(working, &m))

	cmds := buildCommands(ws, working)
	logs = stampLogs(logs, ws)
	return cmds, logs, nil
}

func stampLogs(logs []worldstate.TickLogEntry, ws *worldstate.WorldState) []worldstate.TickLogEntry {
	for i := range logs {
		logs[i].SimulationID = ws.SimulationID
		logs[i].Tick = ws.Tick
		logs[i].Day = ws.Day
	}
	return logs
}

func applyCentralBankPolicy(working *worldstate.WorldState, decisions worldstate.TickDecisions) {
	if working.CentralBank == nil {
		return
	}
	if decisions.CentralBank.PolicyRate != nil {
		working.CentralBank.PolicyRate = *decisions.CentralBank.PolicyRate
	}
	if decisions.CentralBank.ReserveRatio != nil {
		working.CentralBank.ReserveRatio = *decisions.CentralBank.ReserveRatio
	}
}

// processEducation charges tuition for households whose merged decision set
// is_studying and pays it into the government treasury, then grants the
// education_level gain. Grounded on logic_modules/education.py's
// process_education (household -> government transfer, fixed gain per
// tuition-funded tick).
func processEducation(working *worldstate.WorldState, decisions worldstate.TickDecisions, cfg *config.Config) worldstate.TickLogEntry {
	government := working.Government
	if government == nil {
		return worldstate.TickLogEntry{Message: "education_skipped_no_government"}
	}

	var studying int
	var totalTuition float64
	for hid, hd := range decisions.Households {
		h, ok := working.Households[hid]
		if !ok || hd.StudyDecision == nil || !*hd.StudyDecision {
			continue
		}
		h.IsStudying = true
		h.EmploymentStatus = worldstate.EmploymentUnemployed
		h.EmployerID = nil
		tuition := minFloat(h.Cash, cfg.SubsistenceConsumption)
		if tuition > 0 {
			h.Cash -= tuition
			government.Cash += tuition
			totalTuition += tuition
		}
		h.EducationLevel = minFloat(1.5, h.EducationLevel+cfg.EducationGain)
		studying++
	}
	for hid, h := range working.Households {
		if hd, ok := decisions.Households[hid]; !ok || hd.StudyDecision == nil || !*hd.StudyDecision {
			h.IsStudying = false
		}
	}

	return worldstate.TickLogEntry{
		Message: "education_processed",
		Context: map[string]any{"students": studying, "tuition_collected": totalTuition},
	}
}

func clearLaborMarket(working *worldstate.WorldState, decisions worldstate.TickDecisions, m *metrics) worldstate.TickLogEntry {
	firm := working.Firm
	government := working.Government

	var candidates []*worldstate.HouseholdState
	for hid, hd := range decisions.Households {
		h, ok := working.Households[hid]
		if !ok || h.EmploymentStatus != worldstate.EmploymentUnemployed {
			continue
		}
		if hd.LaborSupply == nil || *hd.LaborSupply <= 0.5 {
			continue
		}
		candidates = append(candidates, h)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Skill > candidates[j].Skill })

	firmHiring := 0
	if decisions.Firm.HiringDemand != nil {
		firmHiring = *decisions.Firm.HiringDemand
	}
	wageOffer := firm.WageOffer
	if decisions.Firm.WageOffer != nil {
		wageOffer = *decisions.Firm.WageOffer
	}

	desiredFirmWorkers := len(firm.Employees) + firmHiring
	if desiredFirmWorkers < 0 {
		desiredFirmWorkers = 0
	}
	firmEmployees := make(map[string]bool, len(firm.Employees))
	for _, id := range firm.Employees {
		firmEmployees[id] = true
	}

	hired := 0
	for _, c := range candidates {
		if len(firmEmployees) >= desiredFirmWorkers {
			break
		}
		firmEmployees[c.ID] = true
		c.EmploymentStatus = worldstate.EmploymentEmployedFirm
		c.EmployerID = strPtr(firm.ID)
		c.WageIncome = wageOffer
		hired++
	}

	// Government headcount holds at its existing roster: this schema has no
	// government_jobs decision field (design doc Section 3), and no decision
	// field assigns a household an employer_id, so public-sector headcount
	// never grows in this phase.
	desiredGovJobs := len(government.Employees)
	govEmployees := make(map[string]bool, len(government.Employees))
	for _, id := range government.Employees {
		govEmployees[id] = true
	}
	for _, c := range candidates {
		if firmEmployees[c.ID] {
			continue
		}
		if len(govEmployees) >= desiredGovJobs {
			break
		}
		govEmployees[c.ID] = true
		c.EmploymentStatus = worldstate.EmploymentEmployedGovernment
		c.EmployerID = strPtr(government.ID)
		c.WageIncome = wageOffer * 0.8
	}

	firm.Employees = sortedKeys(firmEmployees)
	government.Employees = sortedKeys(govEmployees)

	totalEmployed := len(firm.Employees) + len(government.Employees)
	denom := float64(len(working.Households))
	if denom < 1 {
		denom = 1
	}
	m.unemploymentRate = clamp(1.0-float64(totalEmployed)/denom, 0, 1)

	return worldstate.TickLogEntry{
		Message: "labor_market_cleared",
		Context: map[string]any{
			"firm_headcount":       len(firm.Employees),
			"government_headcount": len(government.Employees),
			"newly_hired":          hired,
			"unemployment_rate":    m.unemploymentRate,
		},
	}
}

func runProduction(working *worldstate.WorldState, decisions worldstate.TickDecisions, m *metrics) worldstate.TickLogEntry {
	firm := working.Firm
	capacity := float64(maxInt(1, len(firm.Employees))) * maxFloat(firm.Productivity, 0.1)

	planned := firm.PlannedProduction
	if decisions.Firm.PlannedProduction != nil {
		planned = *decisions.Firm.PlannedProduction
	}
	produced := clamp(planned, 0, capacity)
	firm.Inventory = maxFloat(0, firm.Inventory+produced)

	if decisions.Firm.Price != nil {
		firm.Price = *decisions.Firm.Price
	}
	if decisions.Firm.WageOffer != nil {
		firm.WageOffer = *decisions.Firm.WageOffer
	}
	m.priceLevel = firm.Price
	m.wageLevel = firm.WageOffer

	return worldstate.TickLogEntry{
		Message: "production_phase_completed",
		Context: map[string]any{"produced_goods": produced, "inventory": firm.Inventory},
	}
}

func processIncomeSupport(working *worldstate.WorldState, decisions worldstate.TickDecisions, cfg *config.Config, m *metrics) []worldstate.TickLogEntry {
	firm := working.Firm
	government := working.Government

	var firmPayroll float64
	for _, hid := range firm.Employees {
		h, ok := working.Households[hid]
		if !ok {
			continue
		}
		firmPayroll += h.WageIncome
		h.Cash += h.WageIncome
	}
	m.wagePaymentsFirm = firmPayroll
	firm.Cash = maxFloat(0, firm.Cash-firmPayroll)

	var govPayroll float64
	for _, hid := range government.Employees {
		h, ok := working.Households[hid]
		if !ok {
			continue
		}
		govPayroll += h.WageIncome
		h.Cash += h.WageIncome
	}
	m.wagePaymentsGovernment = govPayroll
	government.Cash = maxFloat(0, government.Cash-govPayroll)

	if decisions.Government.UnemploymentBenefit != nil {
		government.UnemploymentBenefit = *decisions.Government.UnemploymentBenefit
	}
	benefit := government.UnemploymentBenefit
	if benefit == 0 {
		benefit = cfg.UnemploymentBenefit
	}
	var benefitTotal float64
	for _, h := range working.Households {
		if h.EmploymentStatus == worldstate.EmploymentUnemployed {
			h.Cash += benefit
			benefitTotal += benefit
		}
	}
	m.transfers = benefitTotal
	government.Cash = maxFloat(0, government.Cash-benefitTotal)

	return []worldstate.TickLogEntry{{
		Message: "wages_disbursed",
		Context: map[string]any{
			"firm_payroll":       firmPayroll,
			"government_payroll": govPayroll,
			"benefits":           benefitTotal,
		},
	}}
}

// clearGoodsMarket fills household demand by limit-price priority: the
// household willing to pay the most is served first, ties broken by
// household id, until the firm's inventory is exhausted. Every filled
// household pays the same uniform clearing price, which is the posted price
// unless inventory ran out mid-auction, in which case it rises to the limit
// price of the first bid that could not be fully matched. Grounded on
// logic_modules/goods_market.py's clear_goods_market_new, which builds the
// same per-household bid_price/quantity buy orders (bid_price defaulting to
// the posted ask_price, budget floored at subsistence consumption) and sorts
// them by bid price descending before filling against inventory; this
// replaces logic_modules/market_logic.py's plain _clear_goods_market, whose
// flat pro-rata allocation ignores bid price entirely and is the rationing
// this package used before the fix below.
func clearGoodsMarket(working *worldstate.WorldState, decisions worldstate.TickDecisions, cfg *config.Config, m *metrics) worldstate.TickLogEntry {
	firm := working.Firm
	posted := maxFloat(0.01, firm.Price)

	type bid struct {
		id         string
		limitPrice float64
		quantity   float64
	}
	ids := make([]string, 0, len(decisions.Households))
	for hid := range decisions.Households {
		ids = append(ids, hid)
	}
	sort.Strings(ids)

	var bids []bid
	for _, hid := range ids {
		hd := decisions.Households[hid]
		h, ok := working.Households[hid]
		if !ok {
			continue
		}
		limitPrice := posted
		if hd.LimitPrice != nil && *hd.LimitPrice > 0 {
			limitPrice = *hd.LimitPrice
		}
		budget := cfg.SubsistenceConsumption * posted
		if hd.ConsumptionBudget != nil {
			budget = *hd.ConsumptionBudget
		}
		affordable := h.Cash / limitPrice
		quantity := clamp(minFloat(budget/limitPrice, affordable), 0, 200)
		if quantity <= 0 {
			continue
		}
		bids = append(bids, bid{hid, limitPrice, quantity})
	}

	// Stable sort preserves the ascending household-id order already built
	// above for ties at the same limit price.
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].limitPrice > bids[j].limitPrice })

	available := firm.Inventory
	clearingPrice := posted
	marginalSet := false
	filled := make(map[string]float64, len(bids))
	for _, b := range bids {
		if available <= 1e-9 {
			if !marginalSet {
				clearingPrice = maxFloat(clearingPrice, b.limitPrice)
				marginalSet = true
			}
			continue
		}
		take := minFloat(b.quantity, available)
		if take > 0 {
			filled[b.id] = take
			available -= take
		}
		if take < b.quantity && !marginalSet {
			clearingPrice = maxFloat(clearingPrice, b.limitPrice)
			marginalSet = true
		}
	}

	var goodsSold, consumptionValue float64
	for _, hid := range ids {
		h, ok := working.Households[hid]
		if !ok {
			continue
		}
		take := filled[hid]
		if take <= 0 {
			h.LastConsumption = 0
			continue
		}
		payment := take * clearingPrice
		h.Cash = maxFloat(0, h.Cash-payment)
		h.LastConsumption = take
		goodsSold += take
		consumptionValue += payment
	}

	firm.Inventory = maxFloat(0, firm.Inventory-goodsSold)
	firm.Cash += consumptionValue
	m.goodsSold = goodsSold
	m.consumptionValue = consumptionValue

	return worldstate.TickLogEntry{
		Message: "goods_market_cleared",
		Context: map[string]any{"goods_sold": goodsSold, "consumption_value": consumptionValue, "clearing_price": clearingPrice},
	}
}

func processSavings(working *worldstate.WorldState, decisions worldstate.TickDecisions, m *metrics) worldstate.TickLogEntry {
	bank := working.Bank
	var totalNewDeposits float64

	for hid, h := range working.Households {
		hd := decisions.Households[hid]
		savingsRate := 0.1
		if hd.DepositDelta != nil {
			// DepositDelta expresses an explicit deposit amount rather than
			// a rate; when a script/admin source sets it, honor it directly
			// instead of the default savings_rate heuristic.
			delta := *hd.DepositDelta
			if delta > h.Cash {
				delta = h.Cash
			}
			if delta > 0 {
				h.Cash -= delta
				h.Deposits += delta
				totalNewDeposits += delta
			}
			continue
		}
		savings := h.Cash * savingsRate
		if savings <= 0 {
			continue
		}
		h.Cash -= savings
		h.Deposits += savings
		totalNewDeposits += savings
	}

	bank.Deposits += totalNewDeposits
	bank.Reserves += totalNewDeposits
	if decisions.Bank.DepositRate != nil {
		bank.DepositRate = *decisions.Bank.DepositRate
	}
	if decisions.Bank.LoanRate != nil {
		bank.LoanRate = *decisions.Bank.LoanRate
	}

	return worldstate.TickLogEntry{
		Message: "savings_processed",
		Context: map[string]any{"new_deposits": totalNewDeposits},
	}
}

// processBanking honors household withdrawal and loan requests against the
// bank's balance sheet. Withdrawal is grounded on
// logic_modules/finance_market.py's withdraw, which caps the withdrawal at
// the household's deposit balance and mirrors the deduction into
// bank.deposits/bank.reserves; this version additionally caps the amount at
// bank.reserves, since the source function never checks reserve solvency
// before paying out. Loan approval has no equivalent clearing function in the
// source logic_modules package — only strategies/base.py's bank policy,
// which derives loan_rate from the central bank policy rate plus a spread —
// so the reject-if-rate-undercut-or-thin-collateral rule here is this
// package's own extension of that policy-rate shape into a per-household
// approval decision; an accepted loan draws down bank reserves.
func processBanking(working *worldstate.WorldState, decisions worldstate.TickDecisions, m *metrics) worldstate.TickLogEntry {
	bank := working.Bank
	if bank == nil {
		return worldstate.TickLogEntry{Message: "banking_skipped_no_bank"}
	}

	ids := make([]string, 0, len(decisions.Households))
	for hid := range decisions.Households {
		ids = append(ids, hid)
	}
	sort.Strings(ids)

	var withdrawn, loaned, rejected float64
	for _, hid := range ids {
		hd := decisions.Households[hid]
		h, ok := working.Households[hid]
		if !ok {
			continue
		}

		if hd.WithdrawalAmount != nil && *hd.WithdrawalAmount > 0 {
			amount := minFloat(*hd.WithdrawalAmount, minFloat(h.Deposits, bank.Reserves))
			if amount > 0 {
				h.Deposits -= amount
				h.Cash += amount
				bank.Deposits = maxFloat(0, bank.Deposits-amount)
				bank.Reserves -= amount
				withdrawn += amount
			}
		}

		if hd.LoanRequestAmount == nil || *hd.LoanRequestAmount <= 0 {
			continue
		}
		requested := *hd.LoanRequestAmount
		offeredRate := bank.LoanRate
		if hd.LoanRequestRate != nil {
			offeredRate = *hd.LoanRequestRate
		}
		collateralScore := clamp((h.Deposits+h.BondHoldings+h.WageIncome*10)/(requested+1), 0, 1)
		if offeredRate < bank.LoanRate || collateralScore < 0.3 {
			rejected += requested
			continue
		}
		amount := minFloat(requested, bank.Reserves)
		if amount <= 0 {
			rejected += requested
			continue
		}
		h.Cash += amount
		h.Loans += amount
		bank.Reserves -= amount
		if bank.Loans == nil {
			bank.Loans = map[string]float64{}
		}
		bank.Loans[hid] += amount
		loaned += amount
	}

	return worldstate.TickLogEntry{
		Message: "banking_processed",
		Context: map[string]any{"withdrawn": withdrawn, "loaned": loaned, "loans_rejected": rejected},
	}
}

// clearBondMarket runs a simplified price-priority bond auction: the
// government issues BondIssuancePlan face value, bidders (households, via
// BondBidAmount/BondBidRate) are filled lowest-rate-first up to that volume.
// Grounded on logic_modules/bond_market.py's clear_bond_auction, simplified
// from its full multi-bidder-class implementation to household bidders only
// plus the bank as a residual buyer, per design doc Section 9's resolved
// open question on periodic coupon accrual.
func clearBondMarket(working *worldstate.WorldState, decisions worldstate.TickDecisions, cfg *config.Config, m *metrics) worldstate.TickLogEntry {
	government := working.Government
	bank := working.Bank

	if decisions.Government.BondIssuanceVolume != nil {
		government.BondIssuancePlan = *decisions.Government.BondIssuanceVolume
	}
	volume := government.BondIssuancePlan
	if volume <= 0 {
		return worldstate.TickLogEntry{Message: "bond_auction_skipped", Context: map[string]any{"reason": "no issuance planned"}}
	}

	type bid struct {
		id     string
		amount float64
		rate   float64
	}
	var bids []bid
	for hid, hd := range decisions.Households {
		if hd.BondBidAmount == nil || *hd.BondBidAmount <= 0 {
			continue
		}
		r := 0.0
		if hd.BondBidRate != nil {
			r = *hd.BondBidRate
		}
		bids = append(bids, bid{hid, *hd.BondBidAmount, r})
	}
	sort.Slice(bids, func(i, j int) bool { return bids[i].rate < bids[j].rate })

	var filled float64
	var proceeds float64
	for _, b := range bids {
		if filled >= volume {
			break
		}
		amount := minFloat(b.amount, volume-filled)
		h, ok := working.Households[b.id]
		if !ok || h.Cash < amount {
			continue
		}
		h.Cash -= amount
		h.BondHoldings += amount
		filled += amount
		proceeds += amount
	}

	if remaining := volume - filled; remaining > 0 {
		bank.Reserves = maxFloat(0, bank.Reserves-remaining)
		bank.BondHoldings += remaining
		filled += remaining
		proceeds += remaining
	}

	government.OutstandingDebt += proceeds
	government.Cash += proceeds
	m.bondProceeds = proceeds

	// Periodic coupon accrual: pay coupon_rate * face_value to every bond
	// holder every BondCouponFrequencyTicks, funded from government cash.
	if cfg.BondCouponFrequencyTicks > 0 && working.Tick%uint64(cfg.BondCouponFrequencyTicks) == 0 {
		var couponRate float64
		if working.CentralBank != nil {
			couponRate = working.CentralBank.PolicyRate
		}
		var couponPaid float64
		for _, h := range working.Households {
			if h.BondHoldings <= 0 {
				continue
			}
			coupon := h.BondHoldings * couponRate
			h.Cash += coupon
			couponPaid += coupon
		}
		if bank.BondHoldings > 0 {
			coupon := bank.BondHoldings * couponRate
			bank.Reserves += coupon
			couponPaid += coupon
		}
		government.Cash = maxFloat(0, government.Cash-couponPaid)
		government.OutstandingDebt += couponPaid
	}

	return worldstate.TickLogEntry{
		Message: "bond_auction_cleared",
		Context: map[string]any{"volume": volume, "filled": filled, "proceeds": proceeds},
	}
}

func collectTaxes(working *worldstate.WorldState, decisions worldstate.TickDecisions, m *metrics) worldstate.TickLogEntry {
	government := working.Government
	taxRate := government.TaxRate
	if decisions.Government.TaxRate != nil {
		taxRate = *decisions.Government.TaxRate
	}

	var totalTax float64
	for _, h := range working.Households {
		taxable := maxFloat(0, h.WageIncome)
		tax := taxable * taxRate
		if tax <= 0 {
			continue
		}
		deduction := minFloat(tax, h.Cash)
		h.Cash -= deduction
		totalTax += deduction
	}
	m.taxesCollected = totalTax
	government.TaxRate = taxRate
	government.Cash += totalTax

	return worldstate.TickLogEntry{
		Message: "taxes_collected",
		Context: map[string]any{"tax_collected": totalTax},
	}
}

func updateMacro(working *worldstate.WorldState, m *metrics) worldstate.TickLogEntry {
	previousPrice := working.Macro.PriceIndex
	if previousPrice == 0 {
		previousPrice = defaultFloat(m.priceLevel, 100)
	}
	priceLevel := defaultFloat(m.priceLevel, previousPrice)
	priceIndex := 0.9*previousPrice + 0.1*priceLevel

	previousWage := working.Macro.WageIndex
	if previousWage == 0 {
		previousWage = defaultFloat(m.wageLevel, 100)
	}
	wageLevel := defaultFloat(m.wageLevel, previousWage)
	wageIndex := 0.9*previousWage + 0.1*wageLevel

	var inflation float64
	if previousPrice != 0 {
		inflation = (priceIndex - previousPrice) / previousPrice
	}

	gdp := m.consumptionValue + m.wagePaymentsGovernment + m.wagePaymentsFirm + m.transfers

	working.Macro.GDP = gdp
	working.Macro.Inflation = inflation
	working.Macro.UnemploymentRate = m.unemploymentRate
	working.Macro.PriceIndex = priceIndex
	working.Macro.WageIndex = wageIndex

	return worldstate.TickLogEntry{
		Message: "macro_metrics_updated",
		Context: map[string]any{
			"gdp":               gdp,
			"inflation":         inflation,
			"unemployment_rate": m.unemploymentRate,
			"price_index":       priceIndex,
			"wage_index":        wageIndex,
		},
	}
}

// buildCommands emits an Assign command per mutable field on the working
// state. Unlike the source system's _build_state_updates, which diffs
// against the pre-tick snapshot via model_dump() equality, this assigns
// unconditionally: an Assign to an unchanged value is a no-op through
// worldstate.Apply, so the diff step buys nothing but complexity here.
func buildCommands(original, working *worldstate.WorldState) []worldstate.Command {
	var cmds []worldstate.Command

	cmds = append(cmds,
		worldstate.Assign(worldstate.AgentKind("macro"), "", worldstate.FieldGDP, working.Macro.GDP),
		worldstate.Assign(worldstate.AgentKind("macro"), "", worldstate.FieldInflation, working.Macro.Inflation),
		worldstate.Assign(worldstate.AgentKind("macro"), "", worldstate.FieldUnemploymentRate, working.Macro.UnemploymentRate),
		worldstate.Assign(worldstate.AgentKind("macro"), "", worldstate.FieldPriceIndex, working.Macro.PriceIndex),
		worldstate.Assign(worldstate.AgentKind("macro"), "", worldstate.FieldWageIndex, working.Macro.WageIndex),
	)

	ids := make([]string, 0, len(working.Households))
	for id := range working.Households {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		h := working.Households[id]
		cmds = append(cmds,
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldCash, h.Cash),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldDeposits, h.Deposits),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldLoans, h.Loans),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldBondHoldings, h.BondHoldings),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldEmploymentStatus, h.EmploymentStatus),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldEmployerID, h.EmployerID),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldWageIncome, h.WageIncome),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldLastConsumption, h.LastConsumption),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldIsStudying, h.IsStudying),
			worldstate.Assign(worldstate.AgentHousehold, id, worldstate.FieldEducationLevel, h.EducationLevel),
		)
	}

	if working.Firm != nil {
		cmds = append(cmds,
			worldstate.Assign(worldstate.AgentFirm, working.Firm.ID, worldstate.FieldCash, working.Firm.Cash),
			worldstate.Assign(worldstate.AgentFirm, working.Firm.ID, worldstate.FieldPrice, working.Firm.Price),
			worldstate.Assign(worldstate.AgentFirm, working.Firm.ID, worldstate.FieldWageOffer, working.Firm.WageOffer),
			worldstate.Assign(worldstate.AgentFirm, working.Firm.ID, worldstate.FieldPlannedProduction, working.Firm.PlannedProduction),
			worldstate.Assign(worldstate.AgentFirm, working.Firm.ID, worldstate.FieldInventory, working.Firm.Inventory),
		)
	}

	if working.Government != nil {
		cmds = append(cmds,
			worldstate.Assign(worldstate.AgentGovernment, working.Government.ID, worldstate.FieldCash, working.Government.Cash),
			worldstate.Assign(worldstate.AgentGovernment, working.Government.ID, worldstate.FieldTaxRate, working.Government.TaxRate),
			worldstate.Assign(worldstate.AgentGovernment, working.Government.ID, worldstate.FieldOutstandingDebt, working.Government.OutstandingDebt),
			worldstate.Assign(worldstate.AgentGovernment, working.Government.ID, worldstate.FieldUnemploymentBenefit, working.Government.UnemploymentBenefit),
			worldstate.Assign(worldstate.AgentGovernment, working.Government.ID, worldstate.FieldBondIssuancePlan, working.Government.BondIssuancePlan),
		)
	}

	if working.Bank != nil {
		cmds = append(cmds,
			worldstate.Assign(worldstate.AgentBank, working.Bank.ID, worldstate.FieldReserves, working.Bank.Reserves),
			worldstate.Assign(worldstate.AgentBank, working.Bank.ID, worldstate.FieldDeposits, working.Bank.Deposits),
			worldstate.Assign(worldstate.AgentBank, working.Bank.ID, worldstate.FieldBondHoldings, working.Bank.BondHoldings),
			worldstate.Assign(worldstate.AgentBank, working.Bank.ID, worldstate.FieldDepositRate, working.Bank.DepositRate),
			worldstate.Assign(worldstate.AgentBank, working.Bank.ID, worldstate.FieldLoanRate, working.Bank.LoanRate),
		)
		loanIDs := make([]string, 0, len(working.Bank.Loans))
		for id := range working.Bank.Loans {
			loanIDs = append(loanIDs, id)
		}
		sort.Strings(loanIDs)
		for _, id := range loanIDs {
			cmds = append(cmds, worldstate.Assign(worldstate.AgentBank, id, worldstate.FieldHouseholdLoan, working.Bank.Loans[id]))
		}
	}

	if working.CentralBank != nil {
		cmds = append(cmds,
			worldstate.Assign(worldstate.AgentCentralBank, working.CentralBank.ID, worldstate.FieldPolicyRate, working.CentralBank.PolicyRate),
			worldstate.Assign(worldstate.AgentCentralBank, working.CentralBank.ID, worldstate.FieldReserveRatio, working.CentralBank.ReserveRatio),
		)
	}

	return cmds
}

func strPtr(s string) *string { return &s }

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func defaultFloat(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}
