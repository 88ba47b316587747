/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Local and test storage for the finance engine. Every test in the repo
  runs against New(":memory:"); small single-salon deployments can run on
  a file.

KEY TABLES:
  fixed_expense_definitions: recurring costs (soft-deactivated, never deleted)
  rate_schedule_entries:     append-only amounts per definition
  variable_expenses:         one-off dated costs
  employees:                 identity directory with a normalized name key
  payroll_records:           one row per (identity_key, month)
  payments:                  append-only, cascade-deleted with their record

MONEY AND MONTHS:
  Amounts are stored as TEXT decimal strings ("1234.56") and parsed back
  with money.Parse. SQLite's numeric affinity would turn them into REAL,
  so SUM() is never used on amounts: totals are added up in Go with exact
  decimal arithmetic. Months are TEXT "YYYY-MM", which sorts correctly.

CONCURRENCY:
  The pool is limited to one connection. SQLite allows a single writer
  anyway, and an in-memory database exists only on the connection that
  created it. Inside WithTx every query goes through the *sql.Tx: using the
  pool there would wait forever for the connection the transaction holds.

USAGE:
  store, err := sqlite.New("./data/finance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: interface definitions
  - store/postgres/postgres.go: production implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements engine.Store using SQLite.
type Store struct {
	queries
	db *sql.DB
}

var _ engine.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fixed_expense_definitions (
		id TEXT PRIMARY KEY,
		salon_id TEXT NOT NULL,
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 0,
		deactivated_from TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_definitions_salon
		ON fixed_expense_definitions(salon_id);

	-- Append-only. A definition cannot have two entries for the same month.
	CREATE TABLE IF NOT EXISTS rate_schedule_entries (
		id TEXT PRIMARY KEY,
		definition_id TEXT NOT NULL REFERENCES fixed_expense_definitions(id),
		amount TEXT NOT NULL,
		effective_from TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(definition_id, effective_from)
	);

	CREATE TABLE IF NOT EXISTS variable_expenses (
		id TEXT PRIMARY KEY,
		salon_id TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		expense_date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_variable_expenses_salon_date
		ON variable_expenses(salon_id, expense_date);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		salon_id TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		name_key TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_name_key
		ON employees(name_key);

	CREATE TABLE IF NOT EXISTS payroll_records (
		id TEXT PRIMARY KEY,
		employee_ref TEXT,
		last_name TEXT NOT NULL,
		first_name TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		month TEXT NOT NULL,
		generated_revenue TEXT NOT NULL,
		net_salary TEXT NOT NULL,
		gross_salary TEXT NOT NULL,
		total_cost TEXT NOT NULL,
		charges TEXT NOT NULL,
		tax_percentage TEXT NOT NULL,
		imported_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(identity_key, month)
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_records_month
		ON payroll_records(month);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES payroll_records(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		method TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_record
		ON payments(record_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data (for demo scenario loading).
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, resetTables, func(engine.Store) error { return nil })
}

var resetTables = []string{
	"payments", "payroll_records", "employees", "variable_expenses",
	"rate_schedule_entries", "fixed_expense_definitions",
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return s.withTx(ctx, nil, fn)
}

// withTx empties the truncate tables before running fn, in the same
// transaction.
func (s *Store) withTx(ctx context.Context, truncate []string, fn func(engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, table := range truncate {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := fn(&txStore{queries: queries{db: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	queries
}

// WithTx on a transaction-bound store joins the existing transaction.
func (ts *txStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return fn(ts)
}

// queries holds every data method; it runs against the pool or a tx.
type queries struct {
	db dbtx
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

func (q queries) CreateDefinition(ctx context.Context, d engine.FixedExpenseDefinition) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO fixed_expense_definitions
		(id, salon_id, category, name, description, active, deactivated_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.SalonID, d.Category, d.Name, d.Description, d.Active,
		nullMonth(d.DeactivatedFrom), d.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create definition: %w", err)
	}
	return nil
}

const definitionColumns = `id, salon_id, category, name, description, active, deactivated_from, created_at`

func (q queries) GetDefinition(ctx context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+definitionColumns+` FROM fixed_expense_definitions WHERE id = ?`, id)
	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("%w: %s", engine.ErrDefinitionNotFound, id)
	}
	return d, err
}

// LockDefinition relies on SQLite's single writer: the surrounding
// transaction already excludes every other writer.
func (q queries) LockDefinition(ctx context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return q.GetDefinition(ctx, id)
}

func (q queries) ListDefinitions(ctx context.Context, filter engine.SalonFilter) ([]engine.FixedExpenseDefinition, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+definitionColumns+` FROM fixed_expense_definitions
		WHERE (? = '' OR salon_id = ?)
		ORDER BY category, name, id`, filter.SalonID, filter.SalonID)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()

	var out []engine.FixedExpenseDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q queries) UpdateDefinition(ctx context.Context, d engine.FixedExpenseDefinition) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE fixed_expense_definitions
		SET category = ?, name = ?, description = ?, active = ?, deactivated_from = ?
		WHERE id = ?`,
		d.Category, d.Name, d.Description, d.Active, nullMonth(d.DeactivatedFrom), d.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update definition: %w", err)
	}
	return requireAffected(res, engine.ErrDefinitionNotFound, string(d.ID))
}

func (q queries) AppendRateEntry(ctx context.Context, e engine.RateScheduleEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO rate_schedule_entries (id, definition_id, amount, effective_from, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.DefinitionID, e.Amount.String(), e.EffectiveFrom.String(),
		e.CreatedAt.UTC().Format(timeLayout),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s already has an entry for %s",
			engine.ErrInvalidEffectiveDate, e.DefinitionID, e.EffectiveFrom)
	}
	if err != nil {
		return fmt.Errorf("failed to append rate entry: %w", err)
	}
	return nil
}

const entryColumns = `id, definition_id, amount, effective_from, created_at`

func (q queries) RateEntries(ctx context.Context, id engine.DefinitionID) ([]engine.RateScheduleEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM rate_schedule_entries
		WHERE definition_id = ?
		ORDER BY effective_from`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate entries: %w", err)
	}
	defer rows.Close()

	var out []engine.RateScheduleEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (q queries) RateEntriesFor(ctx context.Context, filter engine.SalonFilter) (map[engine.DefinitionID][]engine.RateScheduleEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT e.id, e.definition_id, e.amount, e.effective_from, e.created_at
		FROM rate_schedule_entries e
		JOIN fixed_expense_definitions d ON d.id = e.definition_id
		WHERE (? = '' OR d.salon_id = ?)
		ORDER BY e.definition_id, e.effective_from`, filter.SalonID, filter.SalonID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate entries: %w", err)
	}
	defer rows.Close()

	out := make(map[engine.DefinitionID][]engine.RateScheduleEntry)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[e.DefinitionID] = append(out[e.DefinitionID], e)
	}
	return out, rows.Err()
}

// =============================================================================
// EXPENSE STORE
// =============================================================================

func (q queries) CreateVariableExpense(ctx context.Context, e engine.VariableExpenseEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO variable_expenses (id, salon_id, category, amount, expense_date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SalonID, e.Category, e.Amount.String(), e.Date.Format(dateLayout),
		e.Description, e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to create variable expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, salon_id, category, amount, expense_date, description, created_at`

func (q queries) GetVariableExpense(ctx context.Context, id engine.ExpenseID) (engine.VariableExpenseEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM variable_expenses WHERE id = ?`, id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("%w: %s", engine.ErrExpenseNotFound, id)
	}
	return e, err
}

func (q queries) DeleteVariableExpense(ctx context.Context, id engine.ExpenseID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM variable_expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variable expense: %w", err)
	}
	return requireAffected(res, engine.ErrExpenseNotFound, string(id))
}

func (q queries) ListVariableExpenses(ctx context.Context, filter engine.SalonFilter, month money.Month) ([]engine.VariableExpenseEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM variable_expenses
		WHERE (? = '' OR salon_id = ?) AND expense_date >= ? AND expense_date < ?
		ORDER BY expense_date, id`,
		filter.SalonID, filter.SalonID,
		month.Start().Format(dateLayout), month.AddMonths(1).Start().Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list variable expenses: %w", err)
	}
	defer rows.Close()

	var out []engine.VariableExpenseEntry
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

const recordColumns = `id, employee_ref, last_name, first_name, month, generated_revenue,
	net_salary, gross_salary, total_cost, charges, tax_percentage, imported_at, updated_at`

func (q queries) GetPayrollRecord(ctx context.Context, id engine.RecordID) (engine.PayrollRecord, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM payroll_records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, id)
	}
	return r, err
}

func (q queries) FindPayrollRecord(ctx context.Context, identityKey string, month money.Month) (engine.PayrollRecord, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM payroll_records WHERE identity_key = ? AND month = ?`,
		identityKey, month.String())
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s in %s", engine.ErrPayrollRecordNotFound, identityKey, month)
	}
	return r, err
}

func (q queries) InsertPayrollRecord(ctx context.Context, r engine.PayrollRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payroll_records
		(id, employee_ref, last_name, first_name, identity_key, month, generated_revenue,
		 net_salary, gross_salary, total_cost, charges, tax_percentage, imported_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, nullString(string(r.EmployeeRef)), r.LastName, r.FirstName, r.IdentityKey(),
		r.Month.String(), r.GeneratedRevenue.String(), r.NetSalary.String(),
		r.GrossSalary.String(), r.TotalCost.String(), r.Charges.String(),
		r.TaxPercentage.String(), r.ImportedAt.UTC().Format(timeLayout),
		r.UpdatedAt.UTC().Format(timeLayout),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payroll record: %w", err)
	}
	return nil
}

func (q queries) UpdatePayrollRecord(ctx context.Context, r engine.PayrollRecord) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payroll_records
		SET employee_ref = ?, last_name = ?, first_name = ?, identity_key = ?,
		    generated_revenue = ?, net_salary = ?, gross_salary = ?, total_cost = ?,
		    charges = ?, tax_percentage = ?, updated_at = ?
		WHERE id = ?`,
		nullString(string(r.EmployeeRef)), r.LastName, r.FirstName, r.IdentityKey(),
		r.GeneratedRevenue.String(), r.NetSalary.String(), r.GrossSalary.String(),
		r.TotalCost.String(), r.Charges.String(), r.TaxPercentage.String(),
		r.UpdatedAt.UTC().Format(timeLayout), r.ID,
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	if err != nil {
		return fmt.Errorf("failed to update payroll record: %w", err)
	}
	return requireAffected(res, engine.ErrPayrollRecordNotFound, string(r.ID))
}

func (q queries) ListPayrollRecords(ctx context.Context, month money.Month) ([]engine.PayrollRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM payroll_records
		WHERE month = ?
		ORDER BY last_name, first_name, id`, month.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll records: %w", err)
	}
	defer rows.Close()

	var out []engine.PayrollRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q queries) ListPayrollMonths(ctx context.Context) ([]money.Month, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT month FROM payroll_records ORDER BY month DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll months: %w", err)
	}
	defer rows.Close()

	var out []money.Month
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		m, err := money.ParseMonth(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (q queries) DeletePayrollMonth(ctx context.Context, month money.Month) (int, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM payroll_records WHERE month = ?`, month.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete payroll month: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (q queries) InsertPayment(ctx context.Context, p engine.Payment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (id, record_id, amount, payment_date, method, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.RecordID, p.Amount.String(), p.PaymentDate.Format(dateLayout),
		string(p.Method), p.Notes, p.CreatedAt.UTC().Format(timeLayout),
	)
	if isForeignKeyError(err) {
		return fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, p.RecordID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, record_id, amount, payment_date, method, notes, created_at`

func (q queries) GetPayment(ctx context.Context, id engine.PaymentID) (engine.Payment, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("%w: %s", engine.ErrPaymentNotFound, id)
	}
	return p, err
}

func (q queries) DeletePayment(ctx context.Context, id engine.PaymentID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireAffected(res, engine.ErrPaymentNotFound, string(id))
}

func (q queries) ListPayments(ctx context.Context, recordID engine.RecordID) ([]engine.Payment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE record_id = ?
		ORDER BY payment_date, created_at, id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []engine.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SumPayments adds amounts in Go; see MONEY AND MONTHS above.
func (q queries) SumPayments(ctx context.Context, ids []engine.RecordID) (map[engine.RecordID]money.Money, error) {
	out := make(map[engine.RecordID]money.Money, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := q.db.QueryContext(ctx,
		`SELECT record_id, amount FROM payments WHERE record_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     engine.RecordID
			amount string
		)
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, err
		}
		m, err := money.Parse(amount)
		if err != nil {
			return nil, fmt.Errorf("payment amount for %s: %w", id, err)
		}
		out[id] = out[id].Add(m)
	}
	return out, rows.Err()
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

func (q queries) SaveEmployee(ctx context.Context, e engine.Employee) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO employees (id, salon_id, last_name, first_name, name_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			salon_id = excluded.salon_id,
			last_name = excluded.last_name,
			first_name = excluded.first_name,
			name_key = excluded.name_key`,
		e.ID, e.SalonID, e.LastName, e.FirstName, e.NameKey(), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, salon_id, last_name, first_name, created_at`

func (q queries) GetEmployee(ctx context.Context, id engine.EmployeeID) (engine.Employee, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return e, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return e, err
}

func (q queries) ListEmployees(ctx context.Context, filter engine.SalonFilter) ([]engine.Employee, error) {
	return q.queryEmployees(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE (? = '' OR salon_id = ?)
		ORDER BY name_key, id`, filter.SalonID, filter.SalonID)
}

func (q queries) FindEmployeesByNameKey(ctx context.Context, key string) ([]engine.Employee, error) {
	return q.queryEmployees(ctx, `
		SELECT `+employeeColumns+` FROM employees WHERE name_key = ? ORDER BY id`, key)
}

func (q queries) queryEmployees(ctx context.Context, query string, args ...any) ([]engine.Employee, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []engine.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(s scanner) (engine.FixedExpenseDefinition, error) {
	var (
		d               engine.FixedExpenseDefinition
		deactivatedFrom sql.NullString
		createdAt       string
	)
	err := s.Scan(&d.ID, &d.SalonID, &d.Category, &d.Name, &d.Description, &d.Active,
		&deactivatedFrom, &createdAt)
	if err != nil {
		return d, wrapScan("definition", err)
	}
	if deactivatedFrom.Valid {
		m, err := money.ParseMonth(deactivatedFrom.String)
		if err != nil {
			return d, err
		}
		d.DeactivatedFrom = &m
	}
	d.CreatedAt = parseTime(createdAt)
	return d, nil
}

func scanEntry(s scanner) (engine.RateScheduleEntry, error) {
	var (
		e                            engine.RateScheduleEntry
		amount, effective, createdAt string
	)
	if err := s.Scan(&e.ID, &e.DefinitionID, &amount, &effective, &createdAt); err != nil {
		return e, wrapScan("rate entry", err)
	}
	var err error
	if e.Amount, err = money.Parse(amount); err != nil {
		return e, err
	}
	if e.EffectiveFrom, err = money.ParseMonth(effective); err != nil {
		return e, err
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func scanExpense(s scanner) (engine.VariableExpenseEntry, error) {
	var (
		e                       engine.VariableExpenseEntry
		amount, date, createdAt string
	)
	err := s.Scan(&e.ID, &e.SalonID, &e.Category, &amount, &date, &e.Description, &createdAt)
	if err != nil {
		return e, wrapScan("variable expense", err)
	}
	if e.Amount, err = money.Parse(amount); err != nil {
		return e, err
	}
	if e.Date, err = time.Parse(dateLayout, date); err != nil {
		return e, fmt.Errorf("variable expense %s date: %w", e.ID, err)
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func scanRecord(s scanner) (engine.PayrollRecord, error) {
	var (
		r                                         engine.PayrollRecord
		ref                                       sql.NullString
		month, revenue, net, gross, total, charge string
		tax, importedAt, updatedAt                string
	)
	err := s.Scan(&r.ID, &ref, &r.LastName, &r.FirstName, &month, &revenue, &net, &gross,
		&total, &charge, &tax, &importedAt, &updatedAt)
	if err != nil {
		return r, wrapScan("payroll record", err)
	}
	r.EmployeeRef = engine.EmployeeID(ref.String)
	if r.Month, err = money.ParseMonth(month); err != nil {
		return r, err
	}
	for _, f := range []struct {
		dst *money.Money
		src string
	}{
		{&r.GeneratedRevenue, revenue}, {&r.NetSalary, net}, {&r.GrossSalary, gross},
		{&r.TotalCost, total}, {&r.Charges, charge},
	} {
		if *f.dst, err = money.Parse(f.src); err != nil {
			return r, fmt.Errorf("payroll record %s: %w", r.ID, err)
		}
	}
	if r.TaxPercentage, err = decimal.NewFromString(tax); err != nil {
		return r, fmt.Errorf("payroll record %s tax: %w", r.ID, err)
	}
	r.ImportedAt = parseTime(importedAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func scanPayment(s scanner) (engine.Payment, error) {
	var (
		p                       engine.Payment
		amount, date, createdAt string
		method                  string
	)
	err := s.Scan(&p.ID, &p.RecordID, &amount, &date, &method, &p.Notes, &createdAt)
	if err != nil {
		return p, wrapScan("payment", err)
	}
	if p.Amount, err = money.Parse(amount); err != nil {
		return p, err
	}
	if p.PaymentDate, err = time.Parse(dateLayout, date); err != nil {
		return p, fmt.Errorf("payment %s date: %w", p.ID, err)
	}
	p.Method = engine.PaymentMethod(method)
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func scanEmployee(s scanner) (engine.Employee, error) {
	var (
		e         engine.Employee
		createdAt string
	)
	if err := s.Scan(&e.ID, &e.SalonID, &e.LastName, &e.FirstName, &createdAt); err != nil {
		return e, wrapScan("employee", err)
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// wrapScan keeps sql.ErrNoRows unwrapped so callers can map it.
func wrapScan(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return fmt.Errorf("failed to scan %s: %w", what, err)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullMonth(m *money.Month) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.String(), Valid: true}
}

func requireAffected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) &&
		(se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}
