/*
Package engine provides the financial reconciliation core.

PURPOSE:
  This package holds the data model and the pure algorithms of the salon
  finance engine. Everything here is synchronous and free of I/O: callers
  load snapshots from a Store, hand them to these functions, and get fully
  computed values back.

KEY CONCEPTS IN THIS FILE (types.go):
  - FixedExpenseDefinition + RateScheduleEntry: recurring costs whose amount
    changes over time without rewriting history
  - VariableExpenseEntry: one-off dated costs
  - PayrollRecord: one employee's imported cost facts for one month
  - Payment: an append-only payment against a PayrollRecord
  - ImportRow: a normalized payroll import line

DESIGN PRINCIPLES:
  1. Immutability: rate entries are never edited, only superseded
  2. Precision: all amounts are money.Money (decimal, scale 2)
  3. Derived state: remaining balances are recomputed, never stored
  4. Explicit identity: payroll rows match employees by durable id first

SEE ALSO:
  - schedule.go: RateSchedule resolution
  - charge.go: charge technicien allocation
  - reconcile.go: remaining-to-pay computation
  - aggregate.go: monthly expense totals
  - store.go: storage collaborator contracts
*/
package engine

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/salonops/finance-engine/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SalonID string
type DefinitionID string
type EntryID string
type ExpenseID string
type RecordID string
type PaymentID string
type EmployeeID string

// SalonFilter restricts a query to one salon. The zero value matches all salons.
type SalonFilter struct {
	SalonID SalonID
}

func AllSalons() SalonFilter { return SalonFilter{} }

func ForSalon(id SalonID) SalonFilter { return SalonFilter{SalonID: id} }

func (f SalonFilter) IsAll() bool { return f.SalonID == "" }

func (f SalonFilter) Matches(id SalonID) bool { return f.SalonID == "" || f.SalonID == id }

// =============================================================================
// EXPENSES
// =============================================================================

// FixedExpenseDefinition is a recurring monthly cost. Its amount lives in the
// definition's rate schedule.
type FixedExpenseDefinition struct {
	ID          DefinitionID
	SalonID     SalonID
	Category    string
	Name        string
	Description string

	// Active becomes true with the first rate entry and false on deactivation.
	Active bool

	// DeactivatedFrom is the first month the definition no longer counts.
	DeactivatedFrom *money.Month

	CreatedAt time.Time
}

// ActiveIn reports whether the definition contributes to the given month.
func (d FixedExpenseDefinition) ActiveIn(m money.Month) bool {
	if d.DeactivatedFrom != nil {
		return m.Before(*d.DeactivatedFrom)
	}
	return d.Active
}

// RateScheduleEntry sets a definition's amount from EffectiveFrom onward.
type RateScheduleEntry struct {
	ID            EntryID
	DefinitionID  DefinitionID
	Amount        money.Money
	EffectiveFrom money.Month
	CreatedAt     time.Time
}

// VariableExpenseEntry is a single dated cost with no recurrence.
type VariableExpenseEntry struct {
	ID          ExpenseID
	SalonID     SalonID
	Category    string
	Amount      money.Money
	Date        time.Time
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// PAYROLL
// =============================================================================

// PayrollRecord holds one employee's cost facts for one month.
type PayrollRecord struct {
	ID RecordID

	// EmployeeRef is empty when the imported row has no durable link.
	EmployeeRef EmployeeID
	LastName    string
	FirstName   string

	Month            money.Month
	GeneratedRevenue money.Money
	NetSalary        money.Money
	GrossSalary      money.Money
	TotalCost        money.Money
	Charges          money.Money

	// TaxPercentage is in [0, 100].
	TaxPercentage decimal.Decimal

	ImportedAt time.Time
	UpdatedAt  time.Time
}

// IdentityKey is the replace key used by monthly imports.
func (r PayrollRecord) IdentityKey() string {
	return IdentityKey(r.EmployeeRef, r.LastName, r.FirstName)
}

// DisplayName is "First Last".
func (r PayrollRecord) DisplayName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

type PaymentMethod string

const (
	MethodTransfer PaymentMethod = "transfer"
	MethodCash     PaymentMethod = "cash"
	MethodCheck    PaymentMethod = "check"
	MethodCard     PaymentMethod = "card"
	MethodOther    PaymentMethod = "other"
)

// Payment is an append-only payment against a PayrollRecord.
type Payment struct {
	ID          PaymentID
	RecordID    RecordID
	Amount      money.Money
	PaymentDate time.Time
	Method      PaymentMethod
	Notes       string
	CreatedAt   time.Time
}

// Employee is the identity collaborator's view of a person.
type Employee struct {
	ID        EmployeeID
	SalonID   SalonID
	LastName  string
	FirstName string
	CreatedAt time.Time
}

// NameKey is the normalized name used for identity matching.
func (e Employee) NameKey() string { return NameKey(e.LastName, e.FirstName) }

// ImportRow is one normalized line of a monthly payroll import.
// Revenue and tax percentage are optional: when absent the values already
// on a superseded record are kept.
type ImportRow struct {
	Line        int
	EmployeeRef EmployeeID
	LastName    string
	FirstName   string
	NetSalary   money.Money
	GrossSalary money.Money
	TotalCost   money.Money
	Charges     money.Money

	GeneratedRevenue *money.Money
	TaxPercentage    *decimal.Decimal
}

// =============================================================================
// IDENTITY KEYS
// =============================================================================

// IdentityKey returns "emp:<id>" for linked rows and "name:<last>|<first>"
// otherwise.
func IdentityKey(ref EmployeeID, lastName, firstName string) string {
	if ref != "" {
		return "emp:" + string(ref)
	}
	return "name:" + NameKey(lastName, firstName)
}

// NameKey folds case, strips accents and collapses whitespace so that
// "DUPONT  Élodie" and "Dupont Elodie" match.
func NameKey(lastName, firstName string) string {
	return foldName(lastName) + "|" + foldName(firstName)
}

func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}
