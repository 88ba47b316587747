/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos and manual testing. Everything goes through the
	services, so a scenario exercises the same validation as the API.

AVAILABLE SCENARIOS:

	salon-year:     Two salons, fixed expenses with a mid-year rate change,
	                a deactivated contract, variable expenses and last
	                month's payroll in every payment status
	reconciliation: One employee, 3000 revenue / 1200 net / 400 charges at
	                50%, one payment of 200 (charge technicien 200, due 1600)

	Months are relative to the current date so the demo always shows
	something in the current and previous month.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "salon-year"}

	SEED_DEMO=true loads salon-year at startup.

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/expenses"
	"github.com/salonops/finance-engine/money"
	"github.com/salonops/finance-engine/payroll"
)

// ErrUnknownScenario is returned for a scenario id not in scenarios.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "salon-year",
		Name:        "Two Salons",
		Description: "Paris and Lyon: rent change in July, variable costs, last month's payroll in every status",
	},
	{
		ID:          "reconciliation",
		Name:        "Reconciliation Walkthrough",
		Description: "One employee: charge technicien 200, due 1600, 200 already paid",
	},
}

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.LoadScenarioByID(r.Context(), req.ScenarioID)
	if errors.Is(err, ErrUnknownScenario) {
		writeError(w, http.StatusBadRequest, "Unknown scenario", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LoadScenarioByID resets the store and loads scenario id.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) (ScenarioResultDTO, error) {
	var load func(context.Context, *scenarioBuilder) error
	switch id {
	case "salon-year":
		load = h.loadSalonYearScenario
	case "reconciliation":
		load = h.loadReconciliationScenario
	default:
		return ScenarioResultDTO{}, fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	if err := h.Store.Reset(ctx); err != nil {
		return ScenarioResultDTO{}, fmt.Errorf("reset: %w", err)
	}
	h.setScenario("")

	b := &scenarioBuilder{h: h, result: ScenarioResultDTO{Scenario: id}}
	if err := load(ctx, b); err != nil {
		return ScenarioResultDTO{}, fmt.Errorf("load %s: %w", id, err)
	}
	h.setScenario(id)
	h.log.Info("scenario loaded", "scenario", id,
		"definitions", b.result.Definitions, "payroll_records", b.result.PayrollRecords)
	return b.result, nil
}

func (h *Handler) scenario() string {
	h.scenarioMu.RLock()
	defer h.scenarioMu.RUnlock()
	return h.currentScenario
}

func (h *Handler) setScenario(id string) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()
	h.currentScenario = id
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSalonYearScenario(ctx context.Context, b *scenarioBuilder) error {
	cur := money.MonthOf(h.now().UTC())
	prev := cur.AddMonths(-1)
	jan := money.NewMonth(cur.Year, time.January)
	jul := money.NewMonth(cur.Year, time.July)

	// Fixed expenses
	rent := b.fixed(ctx, "paris", "premises", "Rent", "1800.00", jan)
	b.rate(ctx, rent, "1950.00", jul)
	b.fixed(ctx, "paris", "insurance", "Business insurance", "120.00", jan)
	b.fixed(ctx, "paris", "software", "Booking software", "49.99", jan.AddMonths(2))
	b.fixed(ctx, "lyon", "premises", "Rent", "1200.00", jan)
	laundry := b.fixed(ctx, "lyon", "services", "Towel laundry", "95.50", jan)
	b.deactivate(ctx, laundry, jan.AddMonths(9))

	// Variable expenses
	b.variable(ctx, "paris", "supplies", "312.40", prev, 6, "Colour stock")
	b.variable(ctx, "paris", "repairs", "89.00", prev, 19, "Dryer repair")
	b.variable(ctx, "lyon", "supplies", "145.75", prev, 11, "Shampoo and care")
	b.variable(ctx, "paris", "supplies", "58.20", cur, 3, "Towels")
	b.variable(ctx, "lyon", "marketing", "120.00", cur, 8, "Flyers")

	// Payroll for last month
	claire := b.employee(ctx, "paris", "Martin", "Claire")
	paul := b.employee(ctx, "paris", "Durand", "Paul")
	b.employee(ctx, "lyon", "Rossi", "Sofia")

	report := b.importRows(ctx, prev, []engine.ImportRow{
		row("Martin", "Claire", "3000", "1200", "1550", "1950", "400", "50"),
		row("Durand", "Paul", "2600", "1100", "1420", "1800", "380", "40"),
		row("Rossi", "Sofia", "2200", "1000", "1290", "1600", "300", "100"),
		row("Petit", "Léa", "1500", "800", "1030", "1250", "200", "0"),
	})
	if b.err != nil {
		return b.err
	}
	ids := map[string]engine.RecordID{}
	for _, res := range report.Results {
		ids[res.IdentityKey] = res.RecordID
	}

	paidOn := prev.AddMonths(1).Start().AddDate(0, 0, 2)
	b.pay(ctx, ids[engine.IdentityKey(claire.ID, "", "")], "1600.00", paidOn, engine.MethodTransfer)
	b.pay(ctx, ids[engine.IdentityKey(paul.ID, "", "")], "600.00", paidOn, engine.MethodTransfer)
	b.pay(ctx, ids[engine.IdentityKey("", "Petit", "Léa")], "550.00", paidOn, engine.MethodCash)
	return b.err
}

func (h *Handler) loadReconciliationScenario(ctx context.Context, b *scenarioBuilder) error {
	cur := money.MonthOf(h.now().UTC())
	claire := b.employee(ctx, "paris", "Martin", "Claire")
	r := row("Martin", "Claire", "3000", "1200", "1550", "1950", "400", "50")
	r.EmployeeRef = claire.ID

	report := b.importRows(ctx, cur, []engine.ImportRow{r})
	if b.err != nil {
		return b.err
	}
	b.pay(ctx, report.Results[0].RecordID, "200.00", cur.Start().AddDate(0, 0, 4), engine.MethodTransfer)
	return b.err
}

// =============================================================================
// BUILDER
// =============================================================================

// scenarioBuilder keeps the first error and turns later calls into no-ops,
// which keeps the loaders readable.
type scenarioBuilder struct {
	h      *Handler
	result ScenarioResultDTO
	err    error
}

func (b *scenarioBuilder) fixed(ctx context.Context, salon, category, name, amount string, from money.Month) engine.DefinitionID {
	if b.err != nil {
		return ""
	}
	m := money.MustParse(amount)
	d, err := b.h.Expenses.CreateDefinition(ctx, expenses.NewDefinition{
		SalonID: engine.SalonID(salon), Category: category, Name: name,
		Amount: &m, EffectiveFrom: from,
	})
	if err != nil {
		b.err = err
		return ""
	}
	b.result.Definitions++
	return d.ID
}

func (b *scenarioBuilder) rate(ctx context.Context, id engine.DefinitionID, amount string, from money.Month) {
	if b.err != nil {
		return
	}
	_, b.err = b.h.Expenses.SetAmount(ctx, id, money.MustParse(amount), from)
}

func (b *scenarioBuilder) deactivate(ctx context.Context, id engine.DefinitionID, from money.Month) {
	if b.err != nil {
		return
	}
	_, b.err = b.h.Expenses.Deactivate(ctx, id, from)
}

func (b *scenarioBuilder) variable(ctx context.Context, salon, category, amount string, month money.Month, day int, desc string) {
	if b.err != nil {
		return
	}
	_, b.err = b.h.Expenses.RecordVariable(ctx, expenses.NewVariable{
		SalonID: engine.SalonID(salon), Category: category, Amount: money.MustParse(amount),
		Date: month.Start().AddDate(0, 0, day-1), Description: desc,
	})
	if b.err == nil {
		b.result.VariableExpenses++
	}
}

func (b *scenarioBuilder) employee(ctx context.Context, salon, last, first string) engine.Employee {
	if b.err != nil {
		return engine.Employee{}
	}
	e, err := b.h.Payroll.RegisterEmployee(ctx, engine.SalonID(salon), last, first)
	if err != nil {
		b.err = err
		return engine.Employee{}
	}
	b.result.Employees++
	return e
}

func (b *scenarioBuilder) importRows(ctx context.Context, month money.Month, rows []engine.ImportRow) payroll.ImportReport {
	if b.err != nil {
		return payroll.ImportReport{}
	}
	report, err := b.h.Payroll.Import(ctx, month, rows)
	if err != nil {
		b.err = err
		return report
	}
	if report.Rejected > 0 {
		b.err = fmt.Errorf("%d scenario rows rejected", report.Rejected)
		return report
	}
	b.result.PayrollRecords += report.Imported + report.Replaced
	return report
}

func (b *scenarioBuilder) pay(ctx context.Context, id engine.RecordID, amount string, date time.Time, method engine.PaymentMethod) {
	if b.err != nil {
		return
	}
	_, b.err = b.h.Payroll.Ledger().Record(ctx, payroll.PaymentInput{
		RecordID: id, Amount: money.MustParse(amount), PaymentDate: date, Method: method,
	})
	if b.err == nil {
		b.result.Payments++
	}
}

func row(last, first, revenue, net, gross, total, charges, tax string) engine.ImportRow {
	rev := money.MustParse(revenue)
	pct := decimal.RequireFromString(tax)
	return engine.ImportRow{
		LastName:         last,
		FirstName:        first,
		NetSalary:        money.MustParse(net),
		GrossSalary:      money.MustParse(gross),
		TotalCost:        money.MustParse(total),
		Charges:          money.MustParse(charges),
		GeneratedRevenue: &rev,
		TaxPercentage:    &pct,
	}
}
