/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Every amount is a
  decimal string ("1234.56") and every month is "YYYY-MM", so clients
  never see float noise and never have to compute a balance themselves:
  remaining, status and charge technicien always come from the engine.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done by the services, not in DTOs. DTOs are pure data
  carriers; handlers only parse dates and months.

SEE ALSO:
  - handlers.go, payroll.go: use these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
	"github.com/salonops/finance-engine/payroll"
)

const dateLayout = "2006-01-02"

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// FIXED EXPENSES
// =============================================================================

type DefinitionDTO struct {
	ID              string         `json:"id"`
	SalonID         string         `json:"salon_id"`
	Category        string         `json:"category"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Active          bool           `json:"active"`
	DeactivatedFrom *money.Month   `json:"deactivated_from,omitempty"`
	CreatedAt       string         `json:"created_at"`
	History         []RateEntryDTO `json:"history,omitempty"`
}

type RateEntryDTO struct {
	ID            string       `json:"id"`
	Amount        money.Money  `json:"amount"`
	EffectiveFrom money.Month  `json:"effective_from"`
	Until         *money.Month `json:"until,omitempty"`
	Current       bool         `json:"current"`
}

type CreateDefinitionRequest struct {
	SalonID     string `json:"salon_id"`
	Category    string `json:"category"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Amount and EffectiveFrom are optional; both or neither.
	Amount        *money.Money `json:"amount"`
	EffectiveFrom string       `json:"effective_from"`
}

type SetAmountRequest struct {
	Amount        money.Money `json:"amount"`
	EffectiveFrom string      `json:"effective_from"`
}

type DeactivateRequest struct {
	From string `json:"from"`
}

// ResolveDTO answers "what does this definition cost in month".
// Amount is absent when no rate applies yet, which is not the same as 0.00.
type ResolveDTO struct {
	DefinitionID   string       `json:"definition_id"`
	Month          money.Month  `json:"month"`
	Applicable     bool         `json:"applicable"`
	Amount         *money.Money `json:"amount,omitempty"`
	FirstEffective *money.Month `json:"first_effective,omitempty"`
	InactiveFrom   *money.Month `json:"inactive_from,omitempty"`
}

// =============================================================================
// VARIABLE EXPENSES AND BREAKDOWN
// =============================================================================

type VariableExpenseDTO struct {
	ID          string      `json:"id"`
	SalonID     string      `json:"salon_id"`
	Category    string      `json:"category"`
	Amount      money.Money `json:"amount"`
	Date        string      `json:"date"`
	Description string      `json:"description,omitempty"`
}

type CreateVariableRequest struct {
	SalonID     string      `json:"salon_id"`
	Category    string      `json:"category"`
	Amount      money.Money `json:"amount"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
}

type FixedLineDTO struct {
	DefinitionID  string       `json:"definition_id"`
	SalonID       string       `json:"salon_id"`
	Category      string       `json:"category"`
	Name          string       `json:"name"`
	Applicable    bool         `json:"applicable"`
	Amount        *money.Money `json:"amount,omitempty"`
	EffectiveFrom *money.Month `json:"effective_from,omitempty"`
}

type BreakdownDTO struct {
	Month              money.Month            `json:"month"`
	SalonID            string                 `json:"salon_id,omitempty"`
	Fixed              money.Money            `json:"fixed"`
	Variable           money.Money            `json:"variable"`
	Total              money.Money            `json:"total"`
	FixedLines         []FixedLineDTO         `json:"fixed_lines"`
	VariableLines      []VariableExpenseDTO   `json:"variable_lines"`
	ByCategory         map[string]money.Money `json:"by_category"`
	PendingDefinitions []string               `json:"pending_definitions"`
}

// =============================================================================
// PAYROLL
// =============================================================================

type PayrollRecordDTO struct {
	ID          string      `json:"id"`
	EmployeeRef string      `json:"employee_ref,omitempty"`
	LastName    string      `json:"last_name"`
	FirstName   string      `json:"first_name"`
	DisplayName string      `json:"display_name"`
	Month       money.Month `json:"month"`

	GeneratedRevenue money.Money     `json:"generated_revenue"`
	NetSalary        money.Money     `json:"net_salary"`
	GrossSalary      money.Money     `json:"gross_salary"`
	TotalCost        money.Money     `json:"total_cost"`
	Charges          money.Money     `json:"charges"`
	TaxPercentage    decimal.Decimal `json:"tax_percentage"`

	ChargeTechnicien money.Money   `json:"charge_technicien"`
	Due              money.Money   `json:"due"`
	TotalPaid        money.Money   `json:"total_paid"`
	Remaining        money.Money   `json:"remaining"`
	Status           engine.Status `json:"status"`

	ImportedAt string `json:"imported_at"`
	UpdatedAt  string `json:"updated_at"`
}

type MonthViewDTO struct {
	Month     money.Month        `json:"month"`
	Due       money.Money        `json:"due"`
	Paid      money.Money        `json:"paid"`
	Remaining money.Money        `json:"remaining"`
	Counts    map[string]int     `json:"counts"`
	Records   []PayrollRecordDTO `json:"records"`
}

// CorrectionRequest changes only the fields that are present.
type CorrectionRequest struct {
	GeneratedRevenue *money.Money     `json:"generated_revenue"`
	NetSalary        *money.Money     `json:"net_salary"`
	GrossSalary      *money.Money     `json:"gross_salary"`
	TotalCost        *money.Money     `json:"total_cost"`
	Charges          *money.Money     `json:"charges"`
	TaxPercentage    *decimal.Decimal `json:"tax_percentage"`
}

type PaymentDTO struct {
	ID          string      `json:"id"`
	RecordID    string      `json:"record_id"`
	Amount      money.Money `json:"amount"`
	PaymentDate string      `json:"payment_date"`
	Method      string      `json:"method"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   string      `json:"created_at"`
}

type CreatePaymentRequest struct {
	Amount      money.Money `json:"amount"`
	PaymentDate string      `json:"payment_date"`
	Method      string      `json:"method"`
	Notes       string      `json:"notes"`
}

// PaymentResponse carries the record's reconciliation as re-read after the
// write, so the client shows the ledger's numbers and not its own.
type PaymentResponse struct {
	Payment *PaymentDTO      `json:"payment,omitempty"`
	Record  PayrollRecordDTO `json:"record"`
}

type ImportRowDTO struct {
	Line        int    `json:"line"`
	IdentityKey string `json:"identity_key,omitempty"`
	RecordID    string `json:"record_id,omitempty"`
	Outcome     string `json:"outcome"`
	Error       string `json:"error,omitempty"`
}

type ImportReportDTO struct {
	Month    money.Month    `json:"month"`
	Imported int            `json:"imported"`
	Replaced int            `json:"replaced"`
	Rejected int            `json:"rejected"`
	Rows     []ImportRowDTO `json:"rows"`
}

// =============================================================================
// EMPLOYEES AND SCENARIOS
// =============================================================================

type EmployeeDTO struct {
	ID        string `json:"id"`
	SalonID   string `json:"salon_id,omitempty"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
	CreatedAt string `json:"created_at"`
}

type CreateEmployeeRequest struct {
	SalonID   string `json:"salon_id"`
	LastName  string `json:"last_name"`
	FirstName string `json:"first_name"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type ScenarioResultDTO struct {
	Scenario         string `json:"scenario"`
	Definitions      int    `json:"definitions"`
	VariableExpenses int    `json:"variable_expenses"`
	Employees        int    `json:"employees"`
	PayrollRecords   int    `json:"payroll_records"`
	Payments         int    `json:"payments"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toDefinitionDTO(d engine.FixedExpenseDefinition) DefinitionDTO {
	return DefinitionDTO{
		ID:              string(d.ID),
		SalonID:         string(d.SalonID),
		Category:        d.Category,
		Name:            d.Name,
		Description:     d.Description,
		Active:          d.Active,
		DeactivatedFrom: d.DeactivatedFrom,
		CreatedAt:       d.CreatedAt.Format(time.RFC3339),
	}
}

func toRateEntryDTO(h engine.HistoryEntry) RateEntryDTO {
	return RateEntryDTO{
		ID:            string(h.Entry.ID),
		Amount:        h.Entry.Amount,
		EffectiveFrom: h.Entry.EffectiveFrom,
		Until:         h.Until,
		Current:       h.Current,
	}
}

func toVariableDTO(e engine.VariableExpenseEntry) VariableExpenseDTO {
	return VariableExpenseDTO{
		ID:          string(e.ID),
		SalonID:     string(e.SalonID),
		Category:    e.Category,
		Amount:      e.Amount,
		Date:        e.Date.Format(dateLayout),
		Description: e.Description,
	}
}

func toBreakdownDTO(t engine.MonthTotal, filter engine.SalonFilter) BreakdownDTO {
	dto := BreakdownDTO{
		Month:              t.Month,
		SalonID:            string(filter.SalonID),
		Fixed:              t.Fixed,
		Variable:           t.Variable,
		Total:              t.Total,
		FixedLines:         make([]FixedLineDTO, 0, len(t.FixedLines)),
		VariableLines:      make([]VariableExpenseDTO, 0, len(t.VariableLines)),
		ByCategory:         t.ByCategory,
		PendingDefinitions: make([]string, 0, len(t.PendingDefinitions)),
	}
	if dto.ByCategory == nil {
		dto.ByCategory = map[string]money.Money{}
	}
	for _, l := range t.FixedLines {
		line := FixedLineDTO{
			DefinitionID: string(l.DefinitionID),
			SalonID:      string(l.SalonID),
			Category:     l.Category,
			Name:         l.Name,
			Applicable:   l.Applicable,
		}
		if l.Applicable {
			amount, from := l.Amount, l.EffectiveFrom
			line.Amount, line.EffectiveFrom = &amount, &from
		}
		dto.FixedLines = append(dto.FixedLines, line)
	}
	for _, v := range t.VariableLines {
		dto.VariableLines = append(dto.VariableLines, toVariableDTO(v))
	}
	for _, id := range t.PendingDefinitions {
		dto.PendingDefinitions = append(dto.PendingDefinitions, string(id))
	}
	return dto
}

func toRecordDTO(s engine.RecordStatus) PayrollRecordDTO {
	r := s.Record
	return PayrollRecordDTO{
		ID:               string(r.ID),
		EmployeeRef:      string(r.EmployeeRef),
		LastName:         r.LastName,
		FirstName:        r.FirstName,
		DisplayName:      r.DisplayName(),
		Month:            r.Month,
		GeneratedRevenue: r.GeneratedRevenue,
		NetSalary:        r.NetSalary,
		GrossSalary:      r.GrossSalary,
		TotalCost:        r.TotalCost,
		Charges:          r.Charges,
		TaxPercentage:    r.TaxPercentage,
		ChargeTechnicien: s.ChargeTechnicien,
		Due:              s.Due,
		TotalPaid:        s.TotalPaid,
		Remaining:        s.Remaining,
		Status:           s.Status,
		ImportedAt:       r.ImportedAt.Format(time.RFC3339),
		UpdatedAt:        r.UpdatedAt.Format(time.RFC3339),
	}
}

func toMonthViewDTO(v payroll.MonthView) MonthViewDTO {
	dto := MonthViewDTO{
		Month:     v.Summary.Month,
		Due:       v.Summary.Due,
		Paid:      v.Summary.Paid,
		Remaining: v.Summary.Remaining,
		Counts:    make(map[string]int, len(v.Summary.Counts)),
		Records:   make([]PayrollRecordDTO, 0, len(v.Records)),
	}
	for st, n := range v.Summary.Counts {
		dto.Counts[string(st)] = n
	}
	for _, s := range v.Records {
		dto.Records = append(dto.Records, toRecordDTO(s))
	}
	return dto
}

func toPaymentDTO(p engine.Payment) PaymentDTO {
	return PaymentDTO{
		ID:          string(p.ID),
		RecordID:    string(p.RecordID),
		Amount:      p.Amount,
		PaymentDate: p.PaymentDate.Format(dateLayout),
		Method:      string(p.Method),
		Notes:       p.Notes,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

func toEmployeeDTO(e engine.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        string(e.ID),
		SalonID:   string(e.SalonID),
		LastName:  e.LastName,
		FirstName: e.FirstName,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toImportReportDTO(report payroll.ImportReport, parseErrors []*engine.RowError) ImportReportDTO {
	dto := ImportReportDTO{
		Month:    report.Month,
		Imported: report.Imported,
		Replaced: report.Replaced,
		Rejected: report.Rejected + len(parseErrors),
		Rows:     make([]ImportRowDTO, 0, len(report.Results)+len(parseErrors)),
	}
	for _, pe := range parseErrors {
		dto.Rows = append(dto.Rows, ImportRowDTO{
			Line:    pe.Line,
			Outcome: string(payroll.OutcomeRejected),
			Error:   pe.Err.Error(),
		})
	}
	for _, r := range report.Results {
		row := ImportRowDTO{
			Line:        r.Line,
			IdentityKey: r.IdentityKey,
			RecordID:    string(r.RecordID),
			Outcome:     string(r.Outcome),
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		dto.Rows = append(dto.Rows, row)
	}
	sortImportRows(dto.Rows)
	return dto
}
