/*
Package postgres provides the production implementation of engine.Store.

PURPOSE:
  Same contract as store/sqlite, backed by PostgreSQL through a pgx pool.
  Multi-salon deployments with several API instances run on this store.

MONEY:
  Amounts are NUMERIC(14,2). They are sent as text and cast in SQL
  ($1::text::numeric) and read back with ::text, so no value ever passes
  through float64 on the way in or out. SUM() is safe here because
  NUMERIC addition is exact.

MONTHS:
  Months are DATE columns holding the first day of the month.

CONCURRENCY:
  WithTx runs at READ COMMITTED. Rate schedule appends take a row lock on
  the definition (SELECT ... FOR UPDATE via LockDefinition) before checking
  the latest entry, and UNIQUE(definition_id, effective_from) backs that
  check up in the database.

SEE ALSO:
  - engine/store.go: interface definitions
  - migrate.go: embedded schema migrations
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements engine.Store on a pgx pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

var _ engine.Store = (*Store)(nil)

// Connect opens a pool and applies pending migrations.
func Connect(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return New(pool), nil
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Reset deletes all data (for demo scenario loading).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE payments, payroll_records, employees, variable_expenses,
		rate_schedule_entries, fixed_expense_definitions`)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithTx executes fn within a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{queries: queries{db: tx, inTx: true}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	queries
}

// WithTx on a transaction-bound store joins the existing transaction.
func (ts *txStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return fn(ts)
}

type queries struct {
	db   querier
	inTx bool
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

const definitionColumns = `id, salon_id, category, name, description, active, deactivated_from, created_at`

func (q queries) CreateDefinition(ctx context.Context, d engine.FixedExpenseDefinition) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO fixed_expense_definitions (`+definitionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.SalonID, d.Category, d.Name, d.Description, d.Active, monthDate(d.DeactivatedFrom), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create definition: %w", err)
	}
	return nil
}

func (q queries) GetDefinition(ctx context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return q.getDefinition(ctx, id, "")
}

func (q queries) LockDefinition(ctx context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	if !q.inTx {
		return q.getDefinition(ctx, id, "")
	}
	return q.getDefinition(ctx, id, " FOR UPDATE")
}

func (q queries) getDefinition(ctx context.Context, id engine.DefinitionID, suffix string) (engine.FixedExpenseDefinition, error) {
	row := q.db.QueryRow(ctx, `SELECT `+definitionColumns+` FROM fixed_expense_definitions WHERE id = $1`+suffix, id)
	d, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, fmt.Errorf("%w: %s", engine.ErrDefinitionNotFound, id)
	}
	return d, err
}

func (q queries) ListDefinitions(ctx context.Context, filter engine.SalonFilter) ([]engine.FixedExpenseDefinition, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+definitionColumns+` FROM fixed_expense_definitions
		WHERE ($1 = '' OR salon_id = $1)
		ORDER BY category, name, id`, string(filter.SalonID))
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	return collect(rows, scanDefinition)
}

func (q queries) UpdateDefinition(ctx context.Context, d engine.FixedExpenseDefinition) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE fixed_expense_definitions
		SET category = $2, name = $3, description = $4, active = $5, deactivated_from = $6
		WHERE id = $1`,
		d.ID, d.Category, d.Name, d.Description, d.Active, monthDate(d.DeactivatedFrom),
	)
	if err != nil {
		return fmt.Errorf("failed to update definition: %w", err)
	}
	return requireAffected(tag, engine.ErrDefinitionNotFound, string(d.ID))
}

func (q queries) AppendRateEntry(ctx context.Context, e engine.RateScheduleEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO rate_schedule_entries (id, definition_id, amount, effective_from, created_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5)`,
		e.ID, e.DefinitionID, e.Amount.String(), e.EffectiveFrom.Start(), e.CreatedAt,
	)
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: %s already has an entry for %s",
			engine.ErrInvalidEffectiveDate, e.DefinitionID, e.EffectiveFrom)
	}
	if err != nil {
		return fmt.Errorf("failed to append rate entry: %w", err)
	}
	return nil
}

const entryColumns = `e.id, e.definition_id, e.amount::text, e.effective_from, e.created_at`

func (q queries) RateEntries(ctx context.Context, id engine.DefinitionID) ([]engine.RateScheduleEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+entryColumns+` FROM rate_schedule_entries e
		WHERE e.definition_id = $1
		ORDER BY e.effective_from`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate entries: %w", err)
	}
	return collect(rows, scanEntry)
}

func (q queries) RateEntriesFor(ctx context.Context, filter engine.SalonFilter) (map[engine.DefinitionID][]engine.RateScheduleEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+entryColumns+` FROM rate_schedule_entries e
		JOIN fixed_expense_definitions d ON d.id = e.definition_id
		WHERE ($1 = '' OR d.salon_id = $1)
		ORDER BY e.definition_id, e.effective_from`, string(filter.SalonID))
	if err != nil {
		return nil, fmt.Errorf("failed to query rate entries: %w", err)
	}
	entries, err := collect(rows, scanEntry)
	if err != nil {
		return nil, err
	}
	out := make(map[engine.DefinitionID][]engine.RateScheduleEntry)
	for _, e := range entries {
		out[e.DefinitionID] = append(out[e.DefinitionID], e)
	}
	return out, nil
}

// =============================================================================
// EXPENSE STORE
// =============================================================================

func (q queries) CreateVariableExpense(ctx context.Context, e engine.VariableExpenseEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO variable_expenses (id, salon_id, category, amount, expense_date, description, created_at)
		VALUES ($1, $2, $3, $4::text::numeric, $5, $6, $7)`,
		e.ID, e.SalonID, e.Category, e.Amount.String(), e.Date, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create variable expense: %w", err)
	}
	return nil
}

const expenseColumns = `id, salon_id, category, amount::text, expense_date, description, created_at`

func (q queries) GetVariableExpense(ctx context.Context, id engine.ExpenseID) (engine.VariableExpenseEntry, error) {
	e, err := scanExpense(q.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM variable_expenses WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return e, fmt.Errorf("%w: %s", engine.ErrExpenseNotFound, id)
	}
	return e, err
}

func (q queries) DeleteVariableExpense(ctx context.Context, id engine.ExpenseID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM variable_expenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete variable expense: %w", err)
	}
	return requireAffected(tag, engine.ErrExpenseNotFound, string(id))
}

func (q queries) ListVariableExpenses(ctx context.Context, filter engine.SalonFilter, month money.Month) ([]engine.VariableExpenseEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+expenseColumns+` FROM variable_expenses
		WHERE ($1 = '' OR salon_id = $1) AND expense_date >= $2 AND expense_date < $3
		ORDER BY expense_date, id`,
		string(filter.SalonID), month.Start(), month.AddMonths(1).Start())
	if err != nil {
		return nil, fmt.Errorf("failed to list variable expenses: %w", err)
	}
	return collect(rows, scanExpense)
}

// =============================================================================
// PAYROLL STORE
// =============================================================================

const recordColumns = `id, employee_ref, last_name, first_name, month, generated_revenue::text,
	net_salary::text, gross_salary::text, total_cost::text, charges::text, tax_percentage::text,
	imported_at, updated_at`

func (q queries) GetPayrollRecord(ctx context.Context, id engine.RecordID) (engine.PayrollRecord, error) {
	r, err := scanRecord(q.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM payroll_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, id)
	}
	return r, err
}

func (q queries) FindPayrollRecord(ctx context.Context, identityKey string, month money.Month) (engine.PayrollRecord, error) {
	r, err := scanRecord(q.db.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payroll_records WHERE identity_key = $1 AND month = $2`,
		identityKey, month.Start()))
	if errors.Is(err, pgx.ErrNoRows) {
		return r, fmt.Errorf("%w: %s in %s", engine.ErrPayrollRecordNotFound, identityKey, month)
	}
	return r, err
}

func (q queries) InsertPayrollRecord(ctx context.Context, r engine.PayrollRecord) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payroll_records
		(id, employee_ref, last_name, first_name, identity_key, month, generated_revenue,
		 net_salary, gross_salary, total_cost, charges, tax_percentage, imported_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8::text::numeric, $9::text::numeric,
		        $10::text::numeric, $11::text::numeric, $12::text::numeric, $13, $14)`,
		r.ID, nullString(string(r.EmployeeRef)), r.LastName, r.FirstName, r.IdentityKey(), r.Month.Start(),
		r.GeneratedRevenue.String(), r.NetSalary.String(), r.GrossSalary.String(),
		r.TotalCost.String(), r.Charges.String(), r.TaxPercentage.String(), r.ImportedAt, r.UpdatedAt,
	)
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payroll record: %w", err)
	}
	return nil
}

func (q queries) UpdatePayrollRecord(ctx context.Context, r engine.PayrollRecord) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE payroll_records
		SET employee_ref = $2, last_name = $3, first_name = $4, identity_key = $5,
		    generated_revenue = $6::text::numeric, net_salary = $7::text::numeric,
		    gross_salary = $8::text::numeric, total_cost = $9::text::numeric,
		    charges = $10::text::numeric, tax_percentage = $11::text::numeric, updated_at = $12
		WHERE id = $1`,
		r.ID, nullString(string(r.EmployeeRef)), r.LastName, r.FirstName, r.IdentityKey(),
		r.GeneratedRevenue.String(), r.NetSalary.String(), r.GrossSalary.String(),
		r.TotalCost.String(), r.Charges.String(), r.TaxPercentage.String(), r.UpdatedAt,
	)
	if pgCode(err) == pgUniqueViolation {
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	if err != nil {
		return fmt.Errorf("failed to update payroll record: %w", err)
	}
	return requireAffected(tag, engine.ErrPayrollRecordNotFound, string(r.ID))
}

func (q queries) ListPayrollRecords(ctx context.Context, month money.Month) ([]engine.PayrollRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+recordColumns+` FROM payroll_records
		WHERE month = $1
		ORDER BY last_name, first_name, id`, month.Start())
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll records: %w", err)
	}
	return collect(rows, scanRecord)
}

func (q queries) ListPayrollMonths(ctx context.Context) ([]money.Month, error) {
	rows, err := q.db.Query(ctx, `SELECT DISTINCT month FROM payroll_records ORDER BY month DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll months: %w", err)
	}
	return collect(rows, func(row pgx.Row) (money.Month, error) {
		var t time.Time
		err := row.Scan(&t)
		return money.MonthOf(t), err
	})
}

func (q queries) DeletePayrollMonth(ctx context.Context, month money.Month) (int, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM payroll_records WHERE month = $1`, month.Start())
	if err != nil {
		return 0, fmt.Errorf("failed to delete payroll month: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// =============================================================================
// PAYMENT STORE
// =============================================================================

func (q queries) InsertPayment(ctx context.Context, p engine.Payment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payments (id, record_id, amount, payment_date, method, notes, created_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7)`,
		p.ID, p.RecordID, p.Amount.String(), p.PaymentDate, string(p.Method), p.Notes, p.CreatedAt,
	)
	if pgCode(err) == pgForeignKeyViolation {
		return fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, p.RecordID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

const paymentColumns = `id, record_id, amount::text, payment_date, method, notes, created_at`

func (q queries) GetPayment(ctx context.Context, id engine.PaymentID) (engine.Payment, error) {
	p, err := scanPayment(q.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return p, fmt.Errorf("%w: %s", engine.ErrPaymentNotFound, id)
	}
	return p, err
}

func (q queries) DeletePayment(ctx context.Context, id engine.PaymentID) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return requireAffected(tag, engine.ErrPaymentNotFound, string(id))
}

func (q queries) ListPayments(ctx context.Context, recordID engine.RecordID) ([]engine.Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE record_id = $1
		ORDER BY payment_date, created_at, id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return collect(rows, scanPayment)
}

func (q queries) SumPayments(ctx context.Context, ids []engine.RecordID) (map[engine.RecordID]money.Money, error) {
	out := make(map[engine.RecordID]money.Money, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}

	rows, err := q.db.Query(ctx, `
		SELECT record_id, SUM(amount)::text FROM payments
		WHERE record_id = ANY($1)
		GROUP BY record_id`, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, sum string
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		m, err := money.Parse(sum)
		if err != nil {
			return nil, fmt.Errorf("payment total for %s: %w", id, err)
		}
		out[engine.RecordID(id)] = m
	}
	return out, rows.Err()
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

func (q queries) SaveEmployee(ctx context.Context, e engine.Employee) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO employees (id, salon_id, last_name, first_name, name_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			salon_id = EXCLUDED.salon_id,
			last_name = EXCLUDED.last_name,
			first_name = EXCLUDED.first_name,
			name_key = EXCLUDED.name_key`,
		e.ID, e.SalonID, e.LastName, e.FirstName, e.NameKey(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, salon_id, last_name, first_name, created_at`

func (q queries) GetEmployee(ctx context.Context, id engine.EmployeeID) (engine.Employee, error) {
	e, err := scanEmployee(q.db.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return e, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return e, err
}

func (q queries) ListEmployees(ctx context.Context, filter engine.SalonFilter) ([]engine.Employee, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+employeeColumns+` FROM employees
		WHERE ($1 = '' OR salon_id = $1)
		ORDER BY name_key, id`, string(filter.SalonID))
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	return collect(rows, scanEmployee)
}

func (q queries) FindEmployeesByNameKey(ctx context.Context, key string) ([]engine.Employee, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+employeeColumns+` FROM employees WHERE name_key = $1 ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	return collect(rows, scanEmployee)
}

// =============================================================================
// SCANNING
// =============================================================================

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanDefinition(row pgx.Row) (engine.FixedExpenseDefinition, error) {
	var (
		d           engine.FixedExpenseDefinition
		deactivated *time.Time
	)
	err := row.Scan(&d.ID, &d.SalonID, &d.Category, &d.Name, &d.Description, &d.Active, &deactivated, &d.CreatedAt)
	if err != nil {
		return d, wrapScan("definition", err)
	}
	if deactivated != nil {
		m := money.MonthOf(*deactivated)
		d.DeactivatedFrom = &m
	}
	return d, nil
}

func scanEntry(row pgx.Row) (engine.RateScheduleEntry, error) {
	var (
		e      engine.RateScheduleEntry
		amount string
		from   time.Time
	)
	if err := row.Scan(&e.ID, &e.DefinitionID, &amount, &from, &e.CreatedAt); err != nil {
		return e, wrapScan("rate entry", err)
	}
	var err error
	e.Amount, err = money.Parse(amount)
	e.EffectiveFrom = money.MonthOf(from)
	return e, err
}

func scanExpense(row pgx.Row) (engine.VariableExpenseEntry, error) {
	var (
		e      engine.VariableExpenseEntry
		amount string
	)
	if err := row.Scan(&e.ID, &e.SalonID, &e.Category, &amount, &e.Date, &e.Description, &e.CreatedAt); err != nil {
		return e, wrapScan("variable expense", err)
	}
	var err error
	e.Amount, err = money.Parse(amount)
	return e, err
}

func scanRecord(row pgx.Row) (engine.PayrollRecord, error) {
	var (
		r                                         engine.PayrollRecord
		ref                                       *string
		month                                     time.Time
		revenue, net, gross, total, charges, tax string
	)
	err := row.Scan(&r.ID, &ref, &r.LastName, &r.FirstName, &month, &revenue, &net, &gross,
		&total, &charges, &tax, &r.ImportedAt, &r.UpdatedAt)
	if err != nil {
		return r, wrapScan("payroll record", err)
	}
	if ref != nil {
		r.EmployeeRef = engine.EmployeeID(*ref)
	}
	r.Month = money.MonthOf(month)
	for _, f := range []struct {
		dst *money.Money
		src string
	}{
		{&r.GeneratedRevenue, revenue}, {&r.NetSalary, net}, {&r.GrossSalary, gross},
		{&r.TotalCost, total}, {&r.Charges, charges},
	} {
		if *f.dst, err = money.Parse(f.src); err != nil {
			return r, fmt.Errorf("payroll record %s: %w", r.ID, err)
		}
	}
	if r.TaxPercentage, err = decimal.NewFromString(tax); err != nil {
		return r, fmt.Errorf("payroll record %s tax: %w", r.ID, err)
	}
	return r, nil
}

func scanPayment(row pgx.Row) (engine.Payment, error) {
	var (
		p      engine.Payment
		amount string
		method string
	)
	if err := row.Scan(&p.ID, &p.RecordID, &amount, &p.PaymentDate, &method, &p.Notes, &p.CreatedAt); err != nil {
		return p, wrapScan("payment", err)
	}
	p.Method = engine.PaymentMethod(method)
	var err error
	p.Amount, err = money.Parse(amount)
	return p, err
}

func scanEmployee(row pgx.Row) (engine.Employee, error) {
	var e engine.Employee
	if err := row.Scan(&e.ID, &e.SalonID, &e.LastName, &e.FirstName, &e.CreatedAt); err != nil {
		return e, wrapScan("employee", err)
	}
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func wrapScan(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return fmt.Errorf("failed to scan %s: %w", what, err)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func requireAffected(tag pgconn.CommandTag, notFound error, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func monthDate(m *money.Month) *time.Time {
	if m == nil {
		return nil
	}
	t := m.Start()
	return &t
}
