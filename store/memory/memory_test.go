package memory

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
)

var march = money.NewMonth(2025, time.March)

func seedRecord(t *testing.T, s *Store, id engine.RecordID, last string) engine.PayrollRecord {
	t.Helper()
	r := engine.PayrollRecord{
		ID: id, LastName: last, FirstName: "Claire", Month: march,
		NetSalary: money.MustParse("1200"), Charges: money.MustParse("400"),
		GeneratedRevenue: money.MustParse("3000"), TaxPercentage: decimal.NewFromInt(50),
	}
	require.NoError(t, s.InsertPayrollRecord(context.Background(), r))
	return r
}

func TestRateEntries_OrderedAndUnique(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateDefinition(ctx, engine.FixedExpenseDefinition{ID: "rent", SalonID: "paris", Name: "Rent"}))

	// GIVEN: entries appended out of order
	for _, m := range []time.Month{time.July, time.January, time.March} {
		require.NoError(t, s.AppendRateEntry(ctx, engine.RateScheduleEntry{
			ID: engine.EntryID(m.String()), DefinitionID: "rent",
			Amount: money.FromInt(int64(m) * 100), EffectiveFrom: money.NewMonth(2025, m),
		}))
	}

	// THEN: they come back oldest first
	entries, err := s.RateEntries(ctx, "rent")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, time.January, entries[0].EffectiveFrom.Month)
	assert.Equal(t, time.July, entries[2].EffectiveFrom.Month)

	// AND: a second entry for the same month is refused
	err = s.AppendRateEntry(ctx, engine.RateScheduleEntry{ID: "dup", DefinitionID: "rent", EffectiveFrom: money.NewMonth(2025, time.March)})
	assert.ErrorIs(t, err, engine.ErrInvalidEffectiveDate)

	err = s.AppendRateEntry(ctx, engine.RateScheduleEntry{ID: "x", DefinitionID: "ghost", EffectiveFrom: march})
	assert.ErrorIs(t, err, engine.ErrDefinitionNotFound)

	byDef, err := s.RateEntriesFor(ctx, engine.ForSalon("lyon"))
	require.NoError(t, err)
	assert.Empty(t, byDef)
}

func TestPayrollRecord_IdentityUniquePerMonth(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRecord(t, s, "r1", "Martin")

	dup := engine.PayrollRecord{ID: "r2", LastName: "MARTIN", FirstName: "Claire", Month: march}
	assert.ErrorIs(t, s.InsertPayrollRecord(ctx, dup), engine.ErrDuplicateImportRow)

	dup.Month = march.AddMonths(1)
	require.NoError(t, s.InsertPayrollRecord(ctx, dup))

	months, err := s.ListPayrollMonths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []money.Month{march.AddMonths(1), march}, months)
}

func TestPayments_SumAndCascade(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRecord(t, s, "r1", "Martin")
	seedRecord(t, s, "r2", "Durand")

	// GIVEN: 30 concurrent payments of 0.10
	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.InsertPayment(ctx, engine.Payment{
				ID: engine.PaymentID(fmt.Sprintf("p%d", i)), RecordID: "r1", Amount: money.MustParse("0.10"),
			}))
		}()
	}
	wg.Wait()

	// THEN: no payment is lost
	sums, err := s.SumPayments(ctx, []engine.RecordID{"r1", "r2"})
	require.NoError(t, err)
	assert.Equal(t, "3.00", sums["r1"].String())
	_, hasR2 := sums["r2"]
	assert.False(t, hasR2, "records without payments are absent")

	assert.ErrorIs(t, s.InsertPayment(ctx, engine.Payment{ID: "orphan", RecordID: "ghost"}), engine.ErrPayrollRecordNotFound)

	// WHEN: the month is deleted, payments go with it
	n, err := s.DeletePayrollMonth(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = s.GetPayment(ctx, "p0")
	assert.ErrorIs(t, err, engine.ErrPaymentNotFound)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRecord(t, s, "r1", "Martin")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx engine.Store) error {
		require.NoError(t, tx.InsertPayment(ctx, engine.Payment{ID: "p1", RecordID: "r1", Amount: money.FromInt(10)}))
		// Nested transactions join the outer one
		return tx.WithTx(ctx, func(inner engine.Store) error {
			require.NoError(t, inner.SaveEmployee(ctx, engine.Employee{ID: "e1", LastName: "Martin", FirstName: "Claire"}))
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetPayment(ctx, "p1")
	assert.ErrorIs(t, err, engine.ErrPaymentNotFound)
	_, err = s.GetEmployee(ctx, "e1")
	assert.ErrorIs(t, err, engine.ErrEmployeeNotFound)
}

func TestEmployees_FindByNameKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.SaveEmployee(ctx, engine.Employee{ID: "e1", SalonID: "paris", LastName: "Dupont", FirstName: "Élodie"}))
	require.NoError(t, s.SaveEmployee(ctx, engine.Employee{ID: "e2", SalonID: "lyon", LastName: "Rossi", FirstName: "Sofia"}))

	found, err := s.FindEmployeesByNameKey(ctx, engine.NameKey("DUPONT", "Elodie"))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, engine.EmployeeID("e1"), found[0].ID)

	paris, err := s.ListEmployees(ctx, engine.ForSalon("paris"))
	require.NoError(t, err)
	assert.Len(t, paris, 1)

	require.NoError(t, s.Reset(ctx))
	all, err := s.ListEmployees(ctx, engine.AllSalons())
	require.NoError(t, err)
	assert.Empty(t, all)
}
