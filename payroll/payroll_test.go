package payroll_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
	"github.com/salonops/finance-engine/payroll"
	"github.com/salonops/finance-engine/pkg/logging"
	"github.com/salonops/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*payroll.Service, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return payroll.NewService(store, logging.Discard()), store
}

func march() money.Month { return money.NewMonth(2025, time.March) }

func m(s string) money.Money { return money.MustParse(s) }

func mp(s string) *money.Money {
	v := money.MustParse(s)
	return &v
}

func pctp(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func claireRow() engine.ImportRow {
	return engine.ImportRow{
		LastName:         "Martin",
		FirstName:        "Claire",
		NetSalary:        m("1200"),
		GrossSalary:      m("1550"),
		TotalCost:        m("1950"),
		Charges:          m("400"),
		GeneratedRevenue: mp("3000"),
		TaxPercentage:    pctp("50"),
	}
}

func importClaire(t *testing.T, svc *payroll.Service) engine.RecordID {
	report, err := svc.Import(context.Background(), march(), []engine.ImportRow{claireRow()})
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)
	return report.Results[0].RecordID
}

// =============================================================================
// PAYMENT LEDGER
// =============================================================================

func TestLedger_RecordTotalDelete(t *testing.T) {
	// GIVEN: payments of 200 and 150
	// WHEN: the 150 payment is deleted
	// THEN: total goes 350 -> 200

	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)
	ledger := svc.Ledger()

	_, err := ledger.Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("200")})
	require.NoError(t, err)
	p150, err := ledger.Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("150"), Method: "Cash"})
	require.NoError(t, err)
	assert.Equal(t, engine.MethodCash, p150.Method)

	total, err := ledger.TotalPaid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "350.00", total.String())

	require.NoError(t, ledger.Delete(ctx, p150.ID))

	total, err = ledger.TotalPaid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "200.00", total.String())

	assert.ErrorIs(t, ledger.Delete(ctx, p150.ID), engine.ErrPaymentNotFound)
}

func TestLedger_Record_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)

	for _, amt := range []string{"0", "-10"} {
		_, err := svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m(amt)})
		assert.ErrorIs(t, err, engine.ErrInvalidAmount, amt)
	}

	_, err := svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: "ghost", Amount: m("10")})
	assert.ErrorIs(t, err, engine.ErrPayrollRecordNotFound)
}

func TestLedger_TotalsFor_ZeroFills(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)
	_, err := svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("10")})
	require.NoError(t, err)

	totals, err := svc.Ledger().TotalsFor(ctx, []engine.RecordID{id, "other"})
	require.NoError(t, err)
	assert.Equal(t, "10.00", totals[id].String())
	other, ok := totals["other"]
	assert.True(t, ok)
	assert.True(t, other.IsZero())
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestService_Status_Scenario(t *testing.T) {
	// GIVEN: revenue 3000, net 1200, charges 400 at 50%
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)

	st, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "200.00", st.ChargeTechnicien.String())
	assert.Equal(t, "1600.00", st.Remaining.String())
	assert.Equal(t, engine.StatusPending, st.Status)

	_, err = svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("1600")})
	require.NoError(t, err)
	st, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPaid, st.Status)

	_, err = svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("50")})
	require.NoError(t, err)
	st, err = svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOverpaid, st.Status)
	assert.True(t, st.Remaining.IsZero())
}

func TestService_Month(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	bob := claireRow()
	bob.LastName, bob.FirstName = "Bernard", "Bob"
	report, err := svc.Import(ctx, march(), []engine.ImportRow{claireRow(), bob})
	require.NoError(t, err)
	_, err = svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: report.Results[0].RecordID, Amount: m("600")})
	require.NoError(t, err)

	view, err := svc.Month(ctx, march())
	require.NoError(t, err)
	require.Len(t, view.Records, 2)
	assert.Equal(t, "Bernard", view.Records[0].Record.LastName)
	assert.Equal(t, "3200.00", view.Summary.Due.String())
	assert.Equal(t, "2600.00", view.Summary.Remaining.String())
	assert.Equal(t, 1, view.Summary.Counts[engine.StatusPartial])

	months, err := svc.Months(ctx)
	require.NoError(t, err)
	assert.Equal(t, []money.Month{march()}, months)
}

func TestService_CorrectRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)

	rec, err := svc.CorrectRecord(ctx, id, payroll.Correction{TaxPercentage: pctp("100")})
	require.NoError(t, err)
	assert.True(t, rec.NetSalary.Equal(m("1200")), "untouched fields are kept")

	st, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1800.00", st.Remaining.String())

	_, err = svc.CorrectRecord(ctx, id, payroll.Correction{TaxPercentage: pctp("101")})
	assert.ErrorIs(t, err, engine.ErrInvalidTaxPercentage)
	_, err = svc.CorrectRecord(ctx, id, payroll.Correction{Charges: mp("-1")})
	assert.ErrorIs(t, err, engine.ErrInvalidAmount)
}

func TestService_DeleteMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)
	_, err := svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("10")})
	require.NoError(t, err)

	n, err := svc.DeleteMonth(ctx, march())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Status(ctx, id)
	assert.ErrorIs(t, err, engine.ErrPayrollRecordNotFound)
}

// =============================================================================
// IMPORT
// =============================================================================

func TestImport_ReplacesSameIdentityAndMonth(t *testing.T) {
	// GIVEN: Claire imported for March, then paid 100
	// WHEN: March is imported again with a corrected net salary
	// THEN: one record, with the new figures and the payment still attached

	svc, _ := newTestService(t)
	ctx := context.Background()
	id := importClaire(t, svc)
	_, err := svc.Ledger().Record(ctx, payroll.PaymentInput{RecordID: id, Amount: m("100")})
	require.NoError(t, err)

	second := claireRow()
	second.LastName = "MARTIN"
	second.NetSalary = m("1300")
	second.GeneratedRevenue = nil
	report, err := svc.Import(ctx, march(), []engine.ImportRow{second})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Replaced)
	assert.Equal(t, id, report.Results[0].RecordID)

	view, err := svc.Month(ctx, march())
	require.NoError(t, err)
	require.Len(t, view.Records, 1)
	st := view.Records[0]
	assert.Equal(t, "1300.00", st.Record.NetSalary.String())
	assert.Equal(t, "3000.00", st.Record.GeneratedRevenue.String(), "omitted revenue is carried over")
	assert.Equal(t, "100.00", st.TotalPaid.String())
	assert.Equal(t, "1400.00", st.Remaining.String())
}

func TestImport_AmbiguousIdentityRejected(t *testing.T) {
	// GIVEN: two employees named Claire Martin
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.RegisterEmployee(ctx, "paris", "Martin", "Claire")
	require.NoError(t, err)
	_, err = svc.RegisterEmployee(ctx, "lyon", "Martin", "Claire")
	require.NoError(t, err)

	// WHEN: a row without employee ref arrives, next to a valid row
	bob := claireRow()
	bob.LastName, bob.FirstName = "Bernard", "Bob"
	report, err := svc.Import(ctx, march(), []engine.ImportRow{claireRow(), bob})
	require.NoError(t, err)

	// THEN: Claire's row is rejected, Bob's is imported
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Imported)
	var amb *engine.IdentityAmbiguousError
	require.ErrorAs(t, report.Results[0].Err, &amb)
	assert.Len(t, amb.Candidates, 2)
	var rowErr *engine.RowError
	require.ErrorAs(t, report.Results[0].Err, &rowErr)
	assert.Equal(t, 1, rowErr.Line)
}

func TestImport_LinksUniqueEmployeeAndUpgradesLegacyRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// Unlinked import first
	legacyID := importClaire(t, svc)

	// Then Claire is registered and March is imported again
	emp, err := svc.RegisterEmployee(ctx, "paris", "Martin", "Claire")
	require.NoError(t, err)
	report, err := svc.Import(ctx, march(), []engine.ImportRow{claireRow()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Replaced)
	assert.Equal(t, legacyID, report.Results[0].RecordID)

	rec, err := svc.GetRecord(ctx, legacyID)
	require.NoError(t, err)
	assert.Equal(t, emp.ID, rec.EmployeeRef)
	assert.Equal(t, "emp:"+string(emp.ID), rec.IdentityKey())
}

func TestImport_UnknownEmployeeRefRejected(t *testing.T) {
	// GIVEN: Claire registered, and a row carrying a mistyped reference
	svc, store := newTestService(t)
	ctx := context.Background()
	emp, err := svc.RegisterEmployee(ctx, "paris", "Martin", "Claire")
	require.NoError(t, err)

	typo := claireRow()
	typo.EmployeeRef = "typo-42"
	linked := claireRow()
	linked.EmployeeRef = emp.ID

	// WHEN: importing both
	report, err := svc.Import(ctx, march(), []engine.ImportRow{typo, linked})
	require.NoError(t, err)

	// THEN: the typo is rejected, the real reference is imported
	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Imported)
	assert.ErrorIs(t, report.Results[0].Err, engine.ErrEmployeeNotFound)
	assert.Equal(t, payroll.OutcomeImported, report.Results[1].Outcome)

	// AND: no record exists under the mistyped identity
	_, err = store.FindPayrollRecord(ctx, engine.IdentityKey("typo-42", "", ""), march())
	assert.ErrorIs(t, err, engine.ErrPayrollRecordNotFound)
}

func TestImport_ConcurrentImportsKeepOneRecord(t *testing.T) {
	// GIVEN: two imports of the same new employee and month, with different figures
	svc, _ := newTestService(t)
	ctx := context.Background()
	nets := []string{"1200.00", "1300.00"}

	// WHEN: they run at the same time
	var wg sync.WaitGroup
	reports := make([]payroll.ImportReport, len(nets))
	for i, net := range nets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			row := claireRow()
			row.NetSalary = m(net)
			report, err := svc.Import(ctx, march(), []engine.ImportRow{row})
			assert.NoError(t, err)
			reports[i] = report
		}()
	}
	wg.Wait()

	// THEN: neither row is rejected, one inserted and one replaced
	for _, r := range reports {
		assert.Zero(t, r.Rejected)
	}
	assert.Equal(t, 1, reports[0].Imported+reports[1].Imported)
	assert.Equal(t, 1, reports[0].Replaced+reports[1].Replaced)

	// AND: exactly one record holds one import's figures
	view, err := svc.Month(ctx, march())
	require.NoError(t, err)
	require.Len(t, view.Records, 1)
	assert.Contains(t, nets, view.Records[0].Record.NetSalary.String())
}

// insertRaceStore makes the first payroll insert lose to another import
// that commits the same identity and month.
type insertRaceStore struct {
	engine.Store
	winner engine.PayrollRecord
	lost   bool
}

func (s *insertRaceStore) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	lostNow := false
	err := s.Store.WithTx(ctx, func(tx engine.Store) error {
		return fn(&insertRaceTx{Store: tx, race: s, lostNow: &lostNow})
	})
	if lostNow {
		if insErr := s.Store.InsertPayrollRecord(ctx, s.winner); insErr != nil {
			return insErr
		}
	}
	return err
}

type insertRaceTx struct {
	engine.Store
	race    *insertRaceStore
	lostNow *bool
}

func (t *insertRaceTx) InsertPayrollRecord(ctx context.Context, r engine.PayrollRecord) error {
	if !t.race.lost {
		t.race.lost, *t.lostNow = true, true
		return fmt.Errorf("%w: %s already imported for %s", engine.ErrDuplicateImportRow, r.IdentityKey(), r.Month)
	}
	return t.Store.InsertPayrollRecord(ctx, r)
}

func TestImport_LostInsertRaceReplacesWinner(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	// GIVEN: another import commits Claire for March just as ours inserts
	race := &insertRaceStore{Store: store, winner: engine.PayrollRecord{
		ID: "winner", LastName: "Martin", FirstName: "Claire", Month: march(),
		NetSalary: m("999"), TaxPercentage: decimal.Zero,
	}}
	svc := payroll.NewService(race, logging.Discard())

	// WHEN: our import runs
	report, err := svc.Import(context.Background(), march(), []engine.ImportRow{claireRow()})
	require.NoError(t, err)

	// THEN: the row is retried and replaces the winner's record
	require.True(t, race.lost)
	assert.Zero(t, report.Rejected)
	assert.Equal(t, 1, report.Replaced)
	assert.Equal(t, engine.RecordID("winner"), report.Results[0].RecordID)

	rec, err := store.GetPayrollRecord(context.Background(), "winner")
	require.NoError(t, err)
	assert.Equal(t, "1200.00", rec.NetSalary.String())
}

func TestImport_RowLevelValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	negative := claireRow()
	negative.Charges = m("-1")
	badTax := claireRow()
	badTax.LastName = "Other"
	badTax.TaxPercentage = pctp("120")
	nameless := engine.ImportRow{NetSalary: m("1")}
	dup1 := claireRow()
	dup1.LastName = "Durand"
	dup2 := dup1

	report, err := svc.Import(ctx, march(), []engine.ImportRow{negative, badTax, nameless, dup1, dup2})
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	assert.ErrorIs(t, report.Results[0].Err, engine.ErrInvalidAmount)
	assert.ErrorIs(t, report.Results[1].Err, engine.ErrInvalidTaxPercentage)
	assert.ErrorIs(t, report.Results[2].Err, engine.ErrInvalidRow)
	assert.Equal(t, payroll.OutcomeImported, report.Results[3].Outcome)
	assert.ErrorIs(t, report.Results[4].Err, engine.ErrDuplicateImportRow)
	assert.Equal(t, 4, report.Rejected)
}

func TestImport_InvalidMonth(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Import(context.Background(), money.Month{}, []engine.ImportRow{claireRow()})
	assert.ErrorIs(t, err, engine.ErrInvalidMonth)
}
