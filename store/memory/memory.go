// Package memory provides an in-memory engine.Store for demos and tests.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Store keeps everything in maps guarded by one lock. WithTx holds the
// write lock for the whole callback and restores a snapshot on error.
type Store struct {
	mu sync.RWMutex
	d  *data
}

var _ engine.Store = (*Store)(nil)

func New() *Store {
	return &Store{d: newData()}
}

func (s *Store) Close() error                 { return nil }
func (s *Store) Ping(_ context.Context) error { return nil }

// Reset clears all data.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = newData()
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (s *Store) WithTx(_ context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.d.clone()
	if err := fn(&txView{d: s.d}); err != nil {
		s.d = snapshot
		return err
	}
	return nil
}

func read[T any](s *Store, fn func(*data) (T, error)) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.d)
}

func write(s *Store, fn func(*data) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

// ===== SCHEDULES =====

func (s *Store) CreateDefinition(_ context.Context, d engine.FixedExpenseDefinition) error {
	return write(s, func(x *data) error { return x.createDefinition(d) })
}

func (s *Store) GetDefinition(_ context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return read(s, func(x *data) (engine.FixedExpenseDefinition, error) { return x.getDefinition(id) })
}

// LockDefinition is GetDefinition: WithTx already serializes writers.
func (s *Store) LockDefinition(ctx context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return s.GetDefinition(ctx, id)
}

func (s *Store) ListDefinitions(_ context.Context, filter engine.SalonFilter) ([]engine.FixedExpenseDefinition, error) {
	return read(s, func(x *data) ([]engine.FixedExpenseDefinition, error) { return x.listDefinitions(filter), nil })
}

func (s *Store) UpdateDefinition(_ context.Context, d engine.FixedExpenseDefinition) error {
	return write(s, func(x *data) error { return x.updateDefinition(d) })
}

func (s *Store) AppendRateEntry(_ context.Context, e engine.RateScheduleEntry) error {
	return write(s, func(x *data) error { return x.appendRateEntry(e) })
}

func (s *Store) RateEntries(_ context.Context, id engine.DefinitionID) ([]engine.RateScheduleEntry, error) {
	return read(s, func(x *data) ([]engine.RateScheduleEntry, error) { return slices.Clone(x.entries[id]), nil })
}

func (s *Store) RateEntriesFor(_ context.Context, filter engine.SalonFilter) (map[engine.DefinitionID][]engine.RateScheduleEntry, error) {
	return read(s, func(x *data) (map[engine.DefinitionID][]engine.RateScheduleEntry, error) {
		return x.rateEntriesFor(filter), nil
	})
}

// ===== VARIABLE EXPENSES =====

func (s *Store) CreateVariableExpense(_ context.Context, e engine.VariableExpenseEntry) error {
	return write(s, func(x *data) error { return x.createExpense(e) })
}

func (s *Store) GetVariableExpense(_ context.Context, id engine.ExpenseID) (engine.VariableExpenseEntry, error) {
	return read(s, func(x *data) (engine.VariableExpenseEntry, error) { return x.getExpense(id) })
}

func (s *Store) DeleteVariableExpense(_ context.Context, id engine.ExpenseID) error {
	return write(s, func(x *data) error { return x.deleteExpense(id) })
}

func (s *Store) ListVariableExpenses(_ context.Context, filter engine.SalonFilter, month money.Month) ([]engine.VariableExpenseEntry, error) {
	return read(s, func(x *data) ([]engine.VariableExpenseEntry, error) { return x.listExpenses(filter, month), nil })
}

// ===== PAYROLL =====

func (s *Store) GetPayrollRecord(_ context.Context, id engine.RecordID) (engine.PayrollRecord, error) {
	return read(s, func(x *data) (engine.PayrollRecord, error) { return x.getRecord(id) })
}

func (s *Store) FindPayrollRecord(_ context.Context, identityKey string, month money.Month) (engine.PayrollRecord, error) {
	return read(s, func(x *data) (engine.PayrollRecord, error) { return x.findRecord(identityKey, month) })
}

func (s *Store) InsertPayrollRecord(_ context.Context, r engine.PayrollRecord) error {
	return write(s, func(x *data) error { return x.insertRecord(r) })
}

func (s *Store) UpdatePayrollRecord(_ context.Context, r engine.PayrollRecord) error {
	return write(s, func(x *data) error { return x.updateRecord(r) })
}

func (s *Store) ListPayrollRecords(_ context.Context, month money.Month) ([]engine.PayrollRecord, error) {
	return read(s, func(x *data) ([]engine.PayrollRecord, error) { return x.listRecords(month), nil })
}

func (s *Store) ListPayrollMonths(_ context.Context) ([]money.Month, error) {
	return read(s, func(x *data) ([]money.Month, error) { return x.listMonths(), nil })
}

func (s *Store) DeletePayrollMonth(_ context.Context, month money.Month) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.d.deleteMonth(month), nil
}

// ===== PAYMENTS =====

func (s *Store) InsertPayment(_ context.Context, p engine.Payment) error {
	return write(s, func(x *data) error { return x.insertPayment(p) })
}

func (s *Store) GetPayment(_ context.Context, id engine.PaymentID) (engine.Payment, error) {
	return read(s, func(x *data) (engine.Payment, error) { return x.getPayment(id) })
}

func (s *Store) DeletePayment(_ context.Context, id engine.PaymentID) error {
	return write(s, func(x *data) error { return x.deletePayment(id) })
}

func (s *Store) ListPayments(_ context.Context, recordID engine.RecordID) ([]engine.Payment, error) {
	return read(s, func(x *data) ([]engine.Payment, error) { return x.listPayments(recordID), nil })
}

func (s *Store) SumPayments(_ context.Context, ids []engine.RecordID) (map[engine.RecordID]money.Money, error) {
	return read(s, func(x *data) (map[engine.RecordID]money.Money, error) { return x.sumPayments(ids), nil })
}

// ===== EMPLOYEES =====

func (s *Store) SaveEmployee(_ context.Context, e engine.Employee) error {
	return write(s, func(x *data) error { x.saveEmployee(e); return nil })
}

func (s *Store) GetEmployee(_ context.Context, id engine.EmployeeID) (engine.Employee, error) {
	return read(s, func(x *data) (engine.Employee, error) { return x.getEmployee(id) })
}

func (s *Store) ListEmployees(_ context.Context, filter engine.SalonFilter) ([]engine.Employee, error) {
	return read(s, func(x *data) ([]engine.Employee, error) {
		return x.findEmployees(func(e engine.Employee) bool { return filter.Matches(e.SalonID) }), nil
	})
}

func (s *Store) FindEmployeesByNameKey(_ context.Context, key string) ([]engine.Employee, error) {
	return read(s, func(x *data) ([]engine.Employee, error) {
		return x.findEmployees(func(e engine.Employee) bool { return e.NameKey() == key }), nil
	})
}

// =============================================================================
// TRANSACTIONAL VIEW
// =============================================================================

// txView works on the locked data directly. Nested WithTx joins the
// outer transaction.
type txView struct {
	d *data
}

var _ engine.Store = (*txView)(nil)

func (tv *txView) WithTx(_ context.Context, fn func(engine.Store) error) error {
	return fn(tv)
}

func (tv *txView) CreateDefinition(_ context.Context, d engine.FixedExpenseDefinition) error {
	return tv.d.createDefinition(d)
}

func (tv *txView) GetDefinition(_ context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return tv.d.getDefinition(id)
}

func (tv *txView) LockDefinition(_ context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return tv.d.getDefinition(id)
}

func (tv *txView) ListDefinitions(_ context.Context, filter engine.SalonFilter) ([]engine.FixedExpenseDefinition, error) {
	return tv.d.listDefinitions(filter), nil
}

func (tv *txView) UpdateDefinition(_ context.Context, d engine.FixedExpenseDefinition) error {
	return tv.d.updateDefinition(d)
}

func (tv *txView) AppendRateEntry(_ context.Context, e engine.RateScheduleEntry) error {
	return tv.d.appendRateEntry(e)
}

func (tv *txView) RateEntries(_ context.Context, id engine.DefinitionID) ([]engine.RateScheduleEntry, error) {
	return slices.Clone(tv.d.entries[id]), nil
}

func (tv *txView) RateEntriesFor(_ context.Context, filter engine.SalonFilter) (map[engine.DefinitionID][]engine.RateScheduleEntry, error) {
	return tv.d.rateEntriesFor(filter), nil
}

func (tv *txView) CreateVariableExpense(_ context.Context, e engine.VariableExpenseEntry) error {
	return tv.d.createExpense(e)
}

func (tv *txView) GetVariableExpense(_ context.Context, id engine.ExpenseID) (engine.VariableExpenseEntry, error) {
	return tv.d.getExpense(id)
}

func (tv *txView) DeleteVariableExpense(_ context.Context, id engine.ExpenseID) error {
	return tv.d.deleteExpense(id)
}

func (tv *txView) ListVariableExpenses(_ context.Context, filter engine.SalonFilter, month money.Month) ([]engine.VariableExpenseEntry, error) {
	return tv.d.listExpenses(filter, month), nil
}

func (tv *txView) GetPayrollRecord(_ context.Context, id engine.RecordID) (engine.PayrollRecord, error) {
	return tv.d.getRecord(id)
}

func (tv *txView) FindPayrollRecord(_ context.Context, identityKey string, month money.Month) (engine.PayrollRecord, error) {
	return tv.d.findRecord(identityKey, month)
}

func (tv *txView) InsertPayrollRecord(_ context.Context, r engine.PayrollRecord) error {
	return tv.d.insertRecord(r)
}

func (tv *txView) UpdatePayrollRecord(_ context.Context, r engine.PayrollRecord) error {
	return tv.d.updateRecord(r)
}

func (tv *txView) ListPayrollRecords(_ context.Context, month money.Month) ([]engine.PayrollRecord, error) {
	return tv.d.listRecords(month), nil
}

func (tv *txView) ListPayrollMonths(_ context.Context) ([]money.Month, error) {
	return tv.d.listMonths(), nil
}

func (tv *txView) DeletePayrollMonth(_ context.Context, month money.Month) (int, error) {
	return tv.d.deleteMonth(month), nil
}

func (tv *txView) InsertPayment(_ context.Context, p engine.Payment) error {
	return tv.d.insertPayment(p)
}

func (tv *txView) GetPayment(_ context.Context, id engine.PaymentID) (engine.Payment, error) {
	return tv.d.getPayment(id)
}

func (tv *txView) DeletePayment(_ context.Context, id engine.PaymentID) error {
	return tv.d.deletePayment(id)
}

func (tv *txView) ListPayments(_ context.Context, recordID engine.RecordID) ([]engine.Payment, error) {
	return tv.d.listPayments(recordID), nil
}

func (tv *txView) SumPayments(_ context.Context, ids []engine.RecordID) (map[engine.RecordID]money.Money, error) {
	return tv.d.sumPayments(ids), nil
}

func (tv *txView) SaveEmployee(_ context.Context, e engine.Employee) error {
	tv.d.saveEmployee(e)
	return nil
}

func (tv *txView) GetEmployee(_ context.Context, id engine.EmployeeID) (engine.Employee, error) {
	return tv.d.getEmployee(id)
}

func (tv *txView) ListEmployees(_ context.Context, filter engine.SalonFilter) ([]engine.Employee, error) {
	return tv.d.findEmployees(func(e engine.Employee) bool { return filter.Matches(e.SalonID) }), nil
}

func (tv *txView) FindEmployeesByNameKey(_ context.Context, key string) ([]engine.Employee, error) {
	return tv.d.findEmployees(func(e engine.Employee) bool { return e.NameKey() == key }), nil
}

// =============================================================================
// DATA
// =============================================================================

// data is the unlocked state. Callers hold Store.mu.
type data struct {
	definitions map[engine.DefinitionID]engine.FixedExpenseDefinition
	entries     map[engine.DefinitionID][]engine.RateScheduleEntry
	expenses    map[engine.ExpenseID]engine.VariableExpenseEntry
	records     map[engine.RecordID]engine.PayrollRecord
	payments    map[engine.PaymentID]engine.Payment
	employees   map[engine.EmployeeID]engine.Employee
}

func newData() *data {
	return &data{
		definitions: make(map[engine.DefinitionID]engine.FixedExpenseDefinition),
		entries:     make(map[engine.DefinitionID][]engine.RateScheduleEntry),
		expenses:    make(map[engine.ExpenseID]engine.VariableExpenseEntry),
		records:     make(map[engine.RecordID]engine.PayrollRecord),
		payments:    make(map[engine.PaymentID]engine.Payment),
		employees:   make(map[engine.EmployeeID]engine.Employee),
	}
}

func (x *data) clone() *data {
	entries := make(map[engine.DefinitionID][]engine.RateScheduleEntry, len(x.entries))
	for k, v := range x.entries {
		entries[k] = slices.Clone(v)
	}
	return &data{
		definitions: maps.Clone(x.definitions),
		entries:     entries,
		expenses:    maps.Clone(x.expenses),
		records:     maps.Clone(x.records),
		payments:    maps.Clone(x.payments),
		employees:   maps.Clone(x.employees),
	}
}

func (x *data) createDefinition(d engine.FixedExpenseDefinition) error {
	if _, ok := x.definitions[d.ID]; ok {
		return fmt.Errorf("failed to create definition: %s already exists", d.ID)
	}
	x.definitions[d.ID] = copyDefinition(d)
	return nil
}

func (x *data) getDefinition(id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	d, ok := x.definitions[id]
	if !ok {
		return d, fmt.Errorf("%w: %s", engine.ErrDefinitionNotFound, id)
	}
	return copyDefinition(d), nil
}

func (x *data) listDefinitions(filter engine.SalonFilter) []engine.FixedExpenseDefinition {
	var out []engine.FixedExpenseDefinition
	for _, d := range x.definitions {
		if filter.Matches(d.SalonID) {
			out = append(out, copyDefinition(d))
		}
	}
	slices.SortFunc(out, func(a, b engine.FixedExpenseDefinition) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (x *data) updateDefinition(d engine.FixedExpenseDefinition) error {
	old, ok := x.definitions[d.ID]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrDefinitionNotFound, d.ID)
	}
	d.SalonID, d.CreatedAt = old.SalonID, old.CreatedAt
	x.definitions[d.ID] = copyDefinition(d)
	return nil
}

// appendRateEntry keeps entries ordered by EffectiveFrom.
func (x *data) appendRateEntry(e engine.RateScheduleEntry) error {
	if _, ok := x.definitions[e.DefinitionID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrDefinitionNotFound, e.DefinitionID)
	}
	entries := x.entries[e.DefinitionID]

	i := sort.Search(len(entries), func(i int) bool {
		return !entries[i].EffectiveFrom.Before(e.EffectiveFrom)
	})
	if i < len(entries) && entries[i].EffectiveFrom.Equal(e.EffectiveFrom) {
		return fmt.Errorf("%w: %s already has an entry for %s",
			engine.ErrInvalidEffectiveDate, e.DefinitionID, e.EffectiveFrom)
	}

	entries = append(entries, engine.RateScheduleEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	x.entries[e.DefinitionID] = entries
	return nil
}

func (x *data) rateEntriesFor(filter engine.SalonFilter) map[engine.DefinitionID][]engine.RateScheduleEntry {
	out := make(map[engine.DefinitionID][]engine.RateScheduleEntry)
	for id, entries := range x.entries {
		if d, ok := x.definitions[id]; ok && filter.Matches(d.SalonID) && len(entries) > 0 {
			out[id] = slices.Clone(entries)
		}
	}
	return out
}

func (x *data) createExpense(e engine.VariableExpenseEntry) error {
	if _, ok := x.expenses[e.ID]; ok {
		return fmt.Errorf("failed to create variable expense: %s already exists", e.ID)
	}
	x.expenses[e.ID] = e
	return nil
}

func (x *data) getExpense(id engine.ExpenseID) (engine.VariableExpenseEntry, error) {
	e, ok := x.expenses[id]
	if !ok {
		return e, fmt.Errorf("%w: %s", engine.ErrExpenseNotFound, id)
	}
	return e, nil
}

func (x *data) deleteExpense(id engine.ExpenseID) error {
	if _, ok := x.expenses[id]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrExpenseNotFound, id)
	}
	delete(x.expenses, id)
	return nil
}

func (x *data) listExpenses(filter engine.SalonFilter, month money.Month) []engine.VariableExpenseEntry {
	var out []engine.VariableExpenseEntry
	for _, e := range x.expenses {
		if filter.Matches(e.SalonID) && month.Contains(e.Date) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b engine.VariableExpenseEntry) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (x *data) getRecord(id engine.RecordID) (engine.PayrollRecord, error) {
	r, ok := x.records[id]
	if !ok {
		return r, fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, id)
	}
	return r, nil
}

func (x *data) findRecord(identityKey string, month money.Month) (engine.PayrollRecord, error) {
	for _, r := range x.records {
		if r.IdentityKey() == identityKey && r.Month.Equal(month) {
			return r, nil
		}
	}
	return engine.PayrollRecord{}, fmt.Errorf("%w: %s in %s", engine.ErrPayrollRecordNotFound, identityKey, month)
}

// identityTaken reports whether another record already owns r's
// (identity key, month) slot.
func (x *data) identityTaken(r engine.PayrollRecord) bool {
	other, err := x.findRecord(r.IdentityKey(), r.Month)
	return err == nil && other.ID != r.ID
}

func (x *data) insertRecord(r engine.PayrollRecord) error {
	if _, ok := x.records[r.ID]; ok {
		return fmt.Errorf("failed to insert payroll record: %s already exists", r.ID)
	}
	if x.identityTaken(r) {
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	x.records[r.ID] = r
	return nil
}

func (x *data) updateRecord(r engine.PayrollRecord) error {
	old, ok := x.records[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, r.ID)
	}
	r.Month = old.Month
	if x.identityTaken(r) {
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	r.ImportedAt = old.ImportedAt
	x.records[r.ID] = r
	return nil
}

func (x *data) listRecords(month money.Month) []engine.PayrollRecord {
	var out []engine.PayrollRecord
	for _, r := range x.records {
		if r.Month.Equal(month) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b engine.PayrollRecord) int {
		return cmp.Or(cmp.Compare(a.LastName, b.LastName), cmp.Compare(a.FirstName, b.FirstName), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (x *data) listMonths() []money.Month {
	seen := map[money.Month]bool{}
	var out []money.Month
	for _, r := range x.records {
		if !seen[r.Month] {
			seen[r.Month] = true
			out = append(out, r.Month)
		}
	}
	slices.SortFunc(out, func(a, b money.Month) int { return b.Compare(a) })
	return out
}

func (x *data) deleteMonth(month money.Month) int {
	n := 0
	for id, r := range x.records {
		if r.Month.Equal(month) {
			delete(x.records, id)
			n++
		}
	}
	for id, p := range x.payments {
		if _, ok := x.records[p.RecordID]; !ok {
			delete(x.payments, id)
		}
	}
	return n
}

func (x *data) insertPayment(p engine.Payment) error {
	if _, ok := x.records[p.RecordID]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrPayrollRecordNotFound, p.RecordID)
	}
	if _, ok := x.payments[p.ID]; ok {
		return fmt.Errorf("failed to insert payment: %s already exists", p.ID)
	}
	x.payments[p.ID] = p
	return nil
}

func (x *data) getPayment(id engine.PaymentID) (engine.Payment, error) {
	p, ok := x.payments[id]
	if !ok {
		return p, fmt.Errorf("%w: %s", engine.ErrPaymentNotFound, id)
	}
	return p, nil
}

func (x *data) deletePayment(id engine.PaymentID) error {
	if _, ok := x.payments[id]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrPaymentNotFound, id)
	}
	delete(x.payments, id)
	return nil
}

func (x *data) listPayments(recordID engine.RecordID) []engine.Payment {
	var out []engine.Payment
	for _, p := range x.payments {
		if p.RecordID == recordID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b engine.Payment) int {
		return cmp.Or(a.PaymentDate.Compare(b.PaymentDate), a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func (x *data) sumPayments(ids []engine.RecordID) map[engine.RecordID]money.Money {
	wanted := make(map[engine.RecordID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[engine.RecordID]money.Money)
	for _, p := range x.payments {
		if wanted[p.RecordID] {
			out[p.RecordID] = out[p.RecordID].Add(p.Amount)
		}
	}
	return out
}

// saveEmployee upserts, keeping the original CreatedAt.
func (x *data) saveEmployee(e engine.Employee) {
	if old, ok := x.employees[e.ID]; ok {
		e.CreatedAt = old.CreatedAt
	}
	x.employees[e.ID] = e
}

func (x *data) getEmployee(id engine.EmployeeID) (engine.Employee, error) {
	e, ok := x.employees[id]
	if !ok {
		return e, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	return e, nil
}

func (x *data) findEmployees(match func(engine.Employee) bool) []engine.Employee {
	var out []engine.Employee
	for _, e := range x.employees {
		if match(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b engine.Employee) int {
		return cmp.Or(cmp.Compare(a.NameKey(), b.NameKey()), cmp.Compare(a.ID, b.ID))
	})
	return out
}

func copyDefinition(d engine.FixedExpenseDefinition) engine.FixedExpenseDefinition {
	if d.DeactivatedFrom != nil {
		from := *d.DeactivatedFrom
		d.DeactivatedFrom = &from
	}
	return d
}
