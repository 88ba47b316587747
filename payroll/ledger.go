/*
ledger.go - Append-only payment ledger for payroll records

PURPOSE:
  Records what was actually paid to each employee for a month. The ledger
  is the only source of "total paid": nothing caches it, every read sums
  the stored payments, so a deletion is visible on the very next read.

RULES:
  1. Amount must be strictly positive (ErrInvalidAmount)
  2. The payroll record must exist (ErrPayrollRecordNotFound)
  3. Overpayment is allowed; reconciliation reports it as "overpaid"
  4. Payments are never edited; a mistaken payment is deleted and re-entered

TRANSACTIONS:
  The existence check and the insert run in one store transaction, so a
  payment can never reference a record deleted concurrently.

EXAMPLE:
  ledger.Record(ctx, PaymentInput{RecordID: id, Amount: money.MustParse("200")})
  ledger.Record(ctx, PaymentInput{RecordID: id, Amount: money.MustParse("150")})
  ledger.TotalPaid(ctx, id)   // 350.00

SEE ALSO:
  - service.go: reconciliation reads built on TotalsFor
  - engine/store.go: PaymentStore
*/
package payroll

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

// PaymentInput is a payment to record.
type PaymentInput struct {
	RecordID engine.RecordID
	Amount   money.Money

	// PaymentDate defaults to today when zero.
	PaymentDate time.Time
	Method      engine.PaymentMethod
	Notes       string
}

// PaymentLedger records and totals payments.
type PaymentLedger struct {
	store engine.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewPaymentLedger(store engine.Store, logger *slog.Logger) *PaymentLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentLedger{store: store, log: logger, now: time.Now}
}

// Record appends a payment.
func (l *PaymentLedger) Record(ctx context.Context, in PaymentInput) (engine.Payment, error) {
	if !in.Amount.IsPositive() {
		return engine.Payment{}, fmt.Errorf("%w: payment must be positive, got %s", engine.ErrInvalidAmount, in.Amount)
	}

	now := l.now().UTC()
	p := engine.Payment{
		ID:          engine.PaymentID(uuid.NewString()),
		RecordID:    in.RecordID,
		Amount:      in.Amount,
		PaymentDate: in.PaymentDate,
		Method:      normalizeMethod(in.Method),
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   now,
	}
	if p.PaymentDate.IsZero() {
		p.PaymentDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	err := l.store.WithTx(ctx, func(tx engine.Store) error {
		if _, err := tx.GetPayrollRecord(ctx, in.RecordID); err != nil {
			return err
		}
		return tx.InsertPayment(ctx, p)
	})
	if err != nil {
		return engine.Payment{}, err
	}

	l.log.Info("payment recorded",
		"payment_id", p.ID, "record_id", p.RecordID, "amount", p.Amount.String(), "method", p.Method)
	return p, nil
}

// TotalPaid returns the sum of a record's payments, 0.00 when there are none.
func (l *PaymentLedger) TotalPaid(ctx context.Context, recordID engine.RecordID) (money.Money, error) {
	totals, err := l.TotalsFor(ctx, []engine.RecordID{recordID})
	if err != nil {
		return money.Zero, err
	}
	return totals[recordID], nil
}

// TotalsFor returns the total paid for every requested id. Ids without
// payments map to 0.00.
func (l *PaymentLedger) TotalsFor(ctx context.Context, ids []engine.RecordID) (map[engine.RecordID]money.Money, error) {
	out := make(map[engine.RecordID]money.Money, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sums, err := l.store.SumPayments(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = sums[id]
	}
	return out, nil
}

// Delete removes a payment.
func (l *PaymentLedger) Delete(ctx context.Context, id engine.PaymentID) error {
	err := l.store.WithTx(ctx, func(tx engine.Store) error {
		if _, err := tx.GetPayment(ctx, id); err != nil {
			return err
		}
		return tx.DeletePayment(ctx, id)
	})
	if err != nil {
		return err
	}
	l.log.Info("payment deleted", "payment_id", id)
	return nil
}

// Payments lists a record's payments, oldest first.
func (l *PaymentLedger) Payments(ctx context.Context, recordID engine.RecordID) ([]engine.Payment, error) {
	if _, err := l.store.GetPayrollRecord(ctx, recordID); err != nil {
		return nil, err
	}
	return l.store.ListPayments(ctx, recordID)
}

func normalizeMethod(m engine.PaymentMethod) engine.PaymentMethod {
	m = engine.PaymentMethod(strings.ToLower(strings.TrimSpace(string(m))))
	if m == "" {
		return engine.MethodOther
	}
	return m
}
