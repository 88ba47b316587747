/*
store.go - Persistence interfaces for expenses, payroll and payments

PURPOSE:
  Defines the boundary between the engine and the database. Services in
  expenses/ and payroll/ only talk to these interfaces; store/sqlite and
  store/postgres implement them.

KEY INTERFACES:
  ScheduleStore:     fixed expense definitions and their rate entries
  ExpenseStore:      variable (one-off) expenses
  PayrollStore:      monthly payroll records
  PaymentStore:      append-only payments
  EmployeeDirectory: identity lookup for import matching
  Store:             all of the above plus WithTx

APPEND-ONLY CONTRACT:
  Rate entries have no update or delete method. A new amount is a new
  entry. Payments can be deleted (a mistaken entry) but never edited.

TRANSACTIONS:
  WithTx runs fn against a Store bound to one database transaction.
  Anything fn reads or writes through that Store is committed together or
  not at all. Implementations must not let fn escape the transaction by
  falling back to the pool.

LOOKUP ERRORS:
  Get* methods return the matching Err*NotFound sentinel (wrapped) when the
  id is unknown.

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - store/postgres/postgres.go: PostgreSQL implementation
*/
package engine

import (
	"context"

	"github.com/salonops/finance-engine/money"
)

// ScheduleStore persists fixed expense definitions and their rate entries.
type ScheduleStore interface {
	CreateDefinition(ctx context.Context, d FixedExpenseDefinition) error
	GetDefinition(ctx context.Context, id DefinitionID) (FixedExpenseDefinition, error)

	// LockDefinition is GetDefinition that also holds a row lock until the
	// surrounding transaction ends. Outside WithTx it behaves like GetDefinition.
	LockDefinition(ctx context.Context, id DefinitionID) (FixedExpenseDefinition, error)

	ListDefinitions(ctx context.Context, filter SalonFilter) ([]FixedExpenseDefinition, error)

	// UpdateDefinition overwrites the descriptive fields and activation state.
	UpdateDefinition(ctx context.Context, d FixedExpenseDefinition) error

	// AppendRateEntry inserts an entry. A second entry with the same
	// (DefinitionID, EffectiveFrom) fails with ErrInvalidEffectiveDate.
	AppendRateEntry(ctx context.Context, e RateScheduleEntry) error

	// RateEntries returns a definition's entries, oldest first.
	RateEntries(ctx context.Context, id DefinitionID) ([]RateScheduleEntry, error)

	// RateEntriesFor returns entries of every definition matching filter.
	RateEntriesFor(ctx context.Context, filter SalonFilter) (map[DefinitionID][]RateScheduleEntry, error)
}

// ExpenseStore persists variable expenses.
type ExpenseStore interface {
	CreateVariableExpense(ctx context.Context, e VariableExpenseEntry) error
	GetVariableExpense(ctx context.Context, id ExpenseID) (VariableExpenseEntry, error)
	DeleteVariableExpense(ctx context.Context, id ExpenseID) error

	// ListVariableExpenses returns the entries dated inside month.
	ListVariableExpenses(ctx context.Context, filter SalonFilter, month money.Month) ([]VariableExpenseEntry, error)
}

// PayrollStore persists payroll records, unique per (identity key, month).
type PayrollStore interface {
	GetPayrollRecord(ctx context.Context, id RecordID) (PayrollRecord, error)

	// FindPayrollRecord returns the record for identityKey and month, or
	// ErrPayrollRecordNotFound.
	FindPayrollRecord(ctx context.Context, identityKey string, month money.Month) (PayrollRecord, error)

	InsertPayrollRecord(ctx context.Context, r PayrollRecord) error
	UpdatePayrollRecord(ctx context.Context, r PayrollRecord) error
	ListPayrollRecords(ctx context.Context, month money.Month) ([]PayrollRecord, error)

	// ListPayrollMonths returns the months that have at least one record,
	// newest first.
	ListPayrollMonths(ctx context.Context) ([]money.Month, error)

	// DeletePayrollMonth removes every record of month and, by cascade,
	// their payments. It returns the number of records removed.
	DeletePayrollMonth(ctx context.Context, month money.Month) (int, error)
}

// PaymentStore persists payments against payroll records.
type PaymentStore interface {
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (Payment, error)
	DeletePayment(ctx context.Context, id PaymentID) error

	// ListPayments returns a record's payments, oldest first.
	ListPayments(ctx context.Context, recordID RecordID) ([]Payment, error)

	// SumPayments returns the total paid per record. Records without
	// payments are absent from the map.
	SumPayments(ctx context.Context, ids []RecordID) (map[RecordID]money.Money, error)
}

// EmployeeDirectory resolves employees for import identity matching.
type EmployeeDirectory interface {
	SaveEmployee(ctx context.Context, e Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context, filter SalonFilter) ([]Employee, error)

	// FindEmployeesByNameKey returns every employee whose NameKey equals key.
	FindEmployeesByNameKey(ctx context.Context, key string) ([]Employee, error)
}

// Store is the full storage collaborator.
type Store interface {
	ScheduleStore
	ExpenseStore
	PayrollStore
	PaymentStore
	EmployeeDirectory

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
