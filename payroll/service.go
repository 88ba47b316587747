/*
Package payroll reconciles imported payroll costs against payments.

PURPOSE:
  For each employee and month the salon imports the payroll figures
  (net salary, charges, revenue generated) and records payments as they are
  made. This package answers "how much is left to pay, and to whom?" by
  combining the two with engine.Reconcile on every read.

COMPONENTS:
  Service:       imports, corrections, month views, employees
  PaymentLedger: append-only payments and totals

NOTHING IS CACHED:
  Statuses are recomputed from the stored record and the ledger totals on
  each call. There is no stored "remaining" column to drift.

SEE ALSO:
  - import.go: replace-on-reimport rules
  - ledger.go: payment rules
  - engine/reconcile.go: the remaining-to-pay formula
*/
package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

// Service is the payroll reconciliation entry point.
type Service struct {
	store  engine.Store
	ledger *PaymentLedger
	log    *slog.Logger
	now    func() time.Time
}

func NewService(store engine.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		ledger: NewPaymentLedger(store, logger),
		log:    logger,
		now:    time.Now,
	}
}

// Ledger returns the payment ledger sharing this service's store.
func (s *Service) Ledger() *PaymentLedger { return s.ledger }

// =============================================================================
// READS
// =============================================================================

func (s *Service) GetRecord(ctx context.Context, id engine.RecordID) (engine.PayrollRecord, error) {
	return s.store.GetPayrollRecord(ctx, id)
}

// Status reconciles one record against its payments.
func (s *Service) Status(ctx context.Context, id engine.RecordID) (engine.RecordStatus, error) {
	rec, err := s.store.GetPayrollRecord(ctx, id)
	if err != nil {
		return engine.RecordStatus{}, err
	}
	paid, err := s.ledger.TotalPaid(ctx, id)
	if err != nil {
		return engine.RecordStatus{}, err
	}
	return engine.RecordStatus{Record: rec, ReconciliationStatus: engine.Reconcile(rec, paid)}, nil
}

// MonthView is every reconciled record of a month plus the totals.
type MonthView struct {
	Summary engine.MonthSummary
	Records []engine.RecordStatus
}

// Month reconciles every record of month with one batched totals query.
func (s *Service) Month(ctx context.Context, month money.Month) (MonthView, error) {
	if !month.Valid() {
		return MonthView{}, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, month)
	}
	records, err := s.store.ListPayrollRecords(ctx, month)
	if err != nil {
		return MonthView{}, err
	}
	ids := make([]engine.RecordID, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	totals, err := s.ledger.TotalsFor(ctx, ids)
	if err != nil {
		return MonthView{}, err
	}
	statuses := engine.ReconcileAll(records, totals)
	return MonthView{Summary: engine.Summarize(month, statuses), Records: statuses}, nil
}

// Months lists months with imported payroll, newest first.
func (s *Service) Months(ctx context.Context) ([]money.Month, error) {
	return s.store.ListPayrollMonths(ctx)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// Correction overwrites selected figures of a record. Nil fields are kept.
type Correction struct {
	GeneratedRevenue *money.Money
	NetSalary        *money.Money
	GrossSalary      *money.Money
	TotalCost        *money.Money
	Charges          *money.Money
	TaxPercentage    *decimal.Decimal
}

// CorrectRecord applies c to a record. Payments are untouched, so the
// remaining amount moves with the corrected figures.
func (s *Service) CorrectRecord(ctx context.Context, id engine.RecordID, c Correction) (engine.PayrollRecord, error) {
	for name, m := range map[string]*money.Money{
		"revenue": c.GeneratedRevenue, "net salary": c.NetSalary, "gross salary": c.GrossSalary,
		"total cost": c.TotalCost, "charges": c.Charges,
	} {
		if m != nil && m.IsNegative() {
			return engine.PayrollRecord{}, fmt.Errorf("%w: %s is negative (%s)", engine.ErrInvalidAmount, name, *m)
		}
	}
	if c.TaxPercentage != nil {
		if err := engine.ValidateTaxPercentage(*c.TaxPercentage); err != nil {
			return engine.PayrollRecord{}, err
		}
	}

	var rec engine.PayrollRecord
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		var err error
		rec, err = tx.GetPayrollRecord(ctx, id)
		if err != nil {
			return err
		}
		setIf(&rec.GeneratedRevenue, c.GeneratedRevenue)
		setIf(&rec.NetSalary, c.NetSalary)
		setIf(&rec.GrossSalary, c.GrossSalary)
		setIf(&rec.TotalCost, c.TotalCost)
		setIf(&rec.Charges, c.Charges)
		if c.TaxPercentage != nil {
			rec.TaxPercentage = *c.TaxPercentage
		}
		rec.UpdatedAt = s.now().UTC()
		return tx.UpdatePayrollRecord(ctx, rec)
	})
	if err != nil {
		return engine.PayrollRecord{}, err
	}
	s.log.Info("payroll record corrected", "record_id", id, "month", rec.Month.String())
	return rec, nil
}

func setIf(dst *money.Money, v *money.Money) {
	if v != nil {
		*dst = *v
	}
}

// DeleteMonth removes a month's records and their payments.
func (s *Service) DeleteMonth(ctx context.Context, month money.Month) (int, error) {
	if !month.Valid() {
		return 0, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, month)
	}
	n, err := s.store.DeletePayrollMonth(ctx, month)
	if err != nil {
		return 0, err
	}
	s.log.Info("payroll month deleted", "month", month.String(), "records", n)
	return n, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// RegisterEmployee adds an employee to the directory so later imports can
// link rows to a durable id.
func (s *Service) RegisterEmployee(ctx context.Context, salon engine.SalonID, lastName, firstName string) (engine.Employee, error) {
	lastName, firstName = strings.TrimSpace(lastName), strings.TrimSpace(firstName)
	if lastName == "" && firstName == "" {
		return engine.Employee{}, fmt.Errorf("%w: employee needs a name", engine.ErrInvalidRow)
	}
	e := engine.Employee{
		ID:        engine.EmployeeID(uuid.NewString()),
		SalonID:   salon,
		LastName:  lastName,
		FirstName: firstName,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveEmployee(ctx, e); err != nil {
		return engine.Employee{}, err
	}
	s.log.Info("employee registered", "employee_id", e.ID, "salon_id", salon)
	return e, nil
}

func (s *Service) ListEmployees(ctx context.Context, filter engine.SalonFilter) ([]engine.Employee, error) {
	return s.store.ListEmployees(ctx, filter)
}
