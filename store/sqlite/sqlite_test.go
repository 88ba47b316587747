package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
	"github.com/salonops/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func march() money.Month { return money.NewMonth(2025, time.March) }

func seedRecord(t *testing.T, store *sqlite.Store, id engine.RecordID) engine.PayrollRecord {
	rec := engine.PayrollRecord{
		ID:               id,
		LastName:         "Martin",
		FirstName:        "Claire",
		Month:            march(),
		GeneratedRevenue: money.MustParse("3000"),
		NetSalary:        money.MustParse("1200"),
		GrossSalary:      money.MustParse("1550"),
		TotalCost:        money.MustParse("1950"),
		Charges:          money.MustParse("400"),
		TaxPercentage:    decimal.NewFromInt(50),
		ImportedAt:       time.Now(),
		UpdatedAt:        time.Now(),
	}
	require.NoError(t, store.InsertPayrollRecord(context.Background(), rec))
	return rec
}

func payment(id string, rec engine.RecordID, amount string) engine.Payment {
	return engine.Payment{
		ID:          engine.PaymentID(id),
		RecordID:    rec,
		Amount:      money.MustParse(amount),
		PaymentDate: time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC),
		Method:      engine.MethodTransfer,
		CreatedAt:   time.Now(),
	}
}

// =============================================================================
// SCHEDULE
// =============================================================================

func TestStore_RateEntries_RoundTripAndUniqueness(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateDefinition(ctx, engine.FixedExpenseDefinition{
		ID: "rent", SalonID: "paris", Category: "premises", Name: "Rent", CreatedAt: time.Now(),
	}))
	require.NoError(t, store.AppendRateEntry(ctx, engine.RateScheduleEntry{
		ID: "e2", DefinitionID: "rent", Amount: money.MustParse("150"), EffectiveFrom: march(), CreatedAt: time.Now(),
	}))
	require.NoError(t, store.AppendRateEntry(ctx, engine.RateScheduleEntry{
		ID: "e1", DefinitionID: "rent", Amount: money.MustParse("100.10"),
		EffectiveFrom: money.NewMonth(2025, time.January), CreatedAt: time.Now(),
	}))

	// Same month twice is rejected by the unique index
	err := store.AppendRateEntry(ctx, engine.RateScheduleEntry{
		ID: "e3", DefinitionID: "rent", Amount: money.MustParse("1"), EffectiveFrom: march(), CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidEffectiveDate)

	entries, err := store.RateEntries(ctx, "rent")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, engine.EntryID("e1"), entries[0].ID, "ordered by effective month")
	assert.Equal(t, "100.10", entries[0].Amount.String())

	byDef, err := store.RateEntriesFor(ctx, engine.ForSalon("lyon"))
	require.NoError(t, err)
	assert.Empty(t, byDef)
}

func TestStore_Definition_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetDefinition(context.Background(), "nope")
	assert.ErrorIs(t, err, engine.ErrDefinitionNotFound)
	assert.True(t, engine.IsNotFound(err))
}

func TestStore_Definition_Deactivation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	d := engine.FixedExpenseDefinition{ID: "ins", SalonID: "paris", Category: "insurance", Name: "Insurance", Active: true, CreatedAt: time.Now()}
	require.NoError(t, store.CreateDefinition(ctx, d))

	from := money.NewMonth(2025, time.June)
	d.Active = false
	d.DeactivatedFrom = &from
	require.NoError(t, store.UpdateDefinition(ctx, d))

	got, err := store.GetDefinition(ctx, "ins")
	require.NoError(t, err)
	assert.False(t, got.Active)
	require.NotNil(t, got.DeactivatedFrom)
	assert.Equal(t, from, *got.DeactivatedFrom)
}

// =============================================================================
// VARIABLE EXPENSES
// =============================================================================

func TestStore_VariableExpenses_MonthBounds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, day := range []time.Time{
		time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	} {
		require.NoError(t, store.CreateVariableExpense(ctx, engine.VariableExpenseEntry{
			ID: engine.ExpenseID(fmt.Sprintf("v%d", i)), SalonID: "paris", Category: "supplies",
			Amount: money.MustParse("10"), Date: day, CreatedAt: time.Now(),
		}))
	}

	got, err := store.ListVariableExpenses(ctx, engine.AllSalons(), march())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, engine.ExpenseID("v1"), got[0].ID)
	assert.Equal(t, engine.ExpenseID("v2"), got[1].ID)

	require.NoError(t, store.DeleteVariableExpense(ctx, "v1"))
	assert.ErrorIs(t, store.DeleteVariableExpense(ctx, "v1"), engine.ErrExpenseNotFound)
}

// =============================================================================
// PAYROLL AND PAYMENTS
// =============================================================================

func TestStore_PayrollRecord_UniquePerIdentityAndMonth(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "r1")

	found, err := store.FindPayrollRecord(ctx, rec.IdentityKey(), march())
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, "1200.00", found.NetSalary.String())
	assert.True(t, found.TaxPercentage.Equal(decimal.NewFromInt(50)))

	dup := rec
	dup.ID = "r2"
	assert.ErrorIs(t, store.InsertPayrollRecord(ctx, dup), engine.ErrDuplicateImportRow)

	_, err = store.FindPayrollRecord(ctx, rec.IdentityKey(), money.NewMonth(2025, time.April))
	assert.ErrorIs(t, err, engine.ErrPayrollRecordNotFound)
}

func TestStore_SumPayments_Exact(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedRecord(t, store, "r1")

	// 0.1 + 0.2 would not be 0.3 in floating point
	require.NoError(t, store.InsertPayment(ctx, payment("p1", "r1", "0.10")))
	require.NoError(t, store.InsertPayment(ctx, payment("p2", "r1", "0.20")))

	sums, err := store.SumPayments(ctx, []engine.RecordID{"r1", "r-missing"})
	require.NoError(t, err)
	assert.Equal(t, "0.30", sums["r1"].String())
	_, ok := sums["r-missing"]
	assert.False(t, ok)
}

func TestStore_Payment_UnknownRecord(t *testing.T) {
	store := newTestStore(t)
	err := store.InsertPayment(context.Background(), payment("p1", "ghost", "10"))
	assert.ErrorIs(t, err, engine.ErrPayrollRecordNotFound)
}

func TestStore_DeletePayrollMonth_CascadesPayments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedRecord(t, store, "r1")
	require.NoError(t, store.InsertPayment(ctx, payment("p1", "r1", "50")))

	n, err := store.DeletePayrollMonth(ctx, march())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.GetPayment(ctx, "p1")
	assert.ErrorIs(t, err, engine.ErrPaymentNotFound)

	months, err := store.ListPayrollMonths(ctx)
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestStore_ConcurrentPayments(t *testing.T) {
	// GIVEN: one record
	// WHEN: 20 goroutines record 10.00 each
	// THEN: every payment lands and the total is exactly 200.00

	store := newTestStore(t)
	ctx := context.Background()
	seedRecord(t, store, "r1")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.WithTx(ctx, func(tx engine.Store) error {
				if _, err := tx.GetPayrollRecord(ctx, "r1"); err != nil {
					return err
				}
				return tx.InsertPayment(ctx, payment(fmt.Sprintf("p%02d", i), "r1", "10"))
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sums, err := store.SumPayments(ctx, []engine.RecordID{"r1"})
	require.NoError(t, err)
	assert.Equal(t, "200.00", sums["r1"].String())
}

func TestStore_WithTx_RollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedRecord(t, store, "r1")

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx engine.Store) error {
		require.NoError(t, tx.InsertPayment(ctx, payment("p1", "r1", "10")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	payments, err := store.ListPayments(ctx, "r1")
	require.NoError(t, err)
	assert.Empty(t, payments)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestStore_FindEmployeesByNameKey_FoldsAccentsAndCase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEmployee(ctx, engine.Employee{
		ID: "e1", SalonID: "paris", LastName: "Lefèvre", FirstName: "Élodie", CreatedAt: time.Now(),
	}))

	got, err := store.FindEmployeesByNameKey(ctx, engine.NameKey("LEFEVRE", "  elodie "))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, engine.EmployeeID("e1"), got[0].ID)
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedRecord(t, store, "r1")

	require.NoError(t, store.Reset(ctx))

	months, err := store.ListPayrollMonths(ctx)
	require.NoError(t, err)
	assert.Empty(t, months)
}
