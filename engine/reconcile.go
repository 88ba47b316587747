/*
reconcile.go - Remaining-to-pay computation for payroll records

PURPOSE:
  Answers "how much do we still owe this employee for this month?" from the
  imported cost facts and the payments already made. The answer is derived
  on every read and never stored, so it cannot drift from the ledger.

CALCULATION:
  chargeTechnicien = AllocateCharges(charges, taxPercentage)
  due              = generatedRevenue - chargeTechnicien - netSalary
  unclamped        = due - totalPaid
  remaining        = max(0, unclamped)

STATUS:
  overpaid  payments exceed what was due (unclamped < 0, something was paid)
  paid      remaining == 0
  pending   nothing paid yet, remaining > 0
  partial   something paid, remaining > 0

EXAMPLE:
  revenue 3000, net 1200, charges 400, tax 50%:
    chargeTechnicien = 200, due = 1600
    paid 0    -> remaining 1600, pending
    paid 1600 -> remaining 0, paid
    paid 1650 -> remaining 0 (unclamped -50), overpaid

SEE ALSO:
  - charge.go: AllocateCharges
  - payroll/service.go: loads records and totals, then calls Reconcile
*/
package engine

import (
	"sort"

	"github.com/salonops/finance-engine/money"
)

type Status string

const (
	StatusPaid     Status = "paid"
	StatusPartial  Status = "partial"
	StatusPending  Status = "pending"
	StatusOverpaid Status = "overpaid"
)

// ReconciliationStatus is the derived payment state of one PayrollRecord.
type ReconciliationStatus struct {
	ChargeTechnicien money.Money
	Due              money.Money
	TotalPaid        money.Money
	Remaining        money.Money

	// Unclamped is Due - TotalPaid; negative when overpaid.
	Unclamped money.Money

	Status Status
}

// Reconcile is pure: identical inputs give identical outputs and it never
// fails. Records are validated at ingestion; a stored tax percentage outside
// [0, 100] is clamped rather than rejected.
func Reconcile(record PayrollRecord, totalPaid money.Money) ReconciliationStatus {
	charge := allocate(record.Charges, ClampTaxPercentage(record.TaxPercentage))
	due := record.GeneratedRevenue.Sub(charge).Sub(record.NetSalary)
	unclamped := due.Sub(totalPaid)
	remaining := money.Max(money.Zero, unclamped)

	return ReconciliationStatus{
		ChargeTechnicien: charge,
		Due:              due,
		TotalPaid:        totalPaid,
		Remaining:        remaining,
		Unclamped:        unclamped,
		Status:           classify(totalPaid, remaining, unclamped),
	}
}

// classify needs a payment for overpaid: a record whose due is already
// negative with nothing paid is paid, since nobody paid too much.
func classify(totalPaid, remaining, unclamped money.Money) Status {
	switch {
	case unclamped.IsNegative() && totalPaid.IsPositive():
		return StatusOverpaid
	case remaining.IsZero():
		return StatusPaid
	case totalPaid.IsZero():
		return StatusPending
	default:
		return StatusPartial
	}
}

// =============================================================================
// BATCH
// =============================================================================

// RecordStatus pairs a record with its reconciliation.
type RecordStatus struct {
	Record PayrollRecord
	ReconciliationStatus
}

// MonthSummary totals a month of reconciled records.
type MonthSummary struct {
	Month     money.Month
	Due       money.Money
	Paid      money.Money
	Remaining money.Money
	Counts    map[Status]int
}

// ReconcileAll reconciles every record against its entry in totals (missing
// entries count as nothing paid). Results are sorted by last then first name.
func ReconcileAll(records []PayrollRecord, totals map[RecordID]money.Money) []RecordStatus {
	out := make([]RecordStatus, 0, len(records))
	for _, r := range records {
		out = append(out, RecordStatus{Record: r, ReconciliationStatus: Reconcile(r, totals[r.ID])})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Record, out[j].Record
		if ka, kb := NameKey(a.LastName, a.FirstName), NameKey(b.LastName, b.FirstName); ka != kb {
			return ka < kb
		}
		return a.ID < b.ID
	})
	return out
}

// Summarize totals reconciled records for a month. Overpayments do not
// reduce other employees' remaining amounts.
func Summarize(month money.Month, statuses []RecordStatus) MonthSummary {
	s := MonthSummary{Month: month, Counts: map[Status]int{}}
	for _, st := range statuses {
		s.Due = s.Due.Add(money.Max(money.Zero, st.Due))
		s.Paid = s.Paid.Add(st.TotalPaid)
		s.Remaining = s.Remaining.Add(st.Remaining)
		s.Counts[st.Status]++
	}
	return s
}
