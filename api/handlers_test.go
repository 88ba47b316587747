package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/pkg/logging"
	"github.com/salonops/finance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.April, 15, 10, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Handler, http.Handler) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, NewMetrics(), logging.Discard())
	h.now = func() time.Time { return testNow }
	return h, NewRouter(h, RouterOptions{})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if _, isJSON := body.(map[string]any); isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const claireCSV = "Nom;Prénom;Salaire net;Charges;CA;Taux\n" +
	"Martin;Claire;1 200,00;400,00;3 000,00;50\n" +
	"Durand;Paul;douze cents;300;2000;40\n"

func importClaire(t *testing.T, router http.Handler) PayrollRecordDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/payroll/2025/03/import", claireCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decode[MonthViewDTO](t, do(t, router, http.MethodGet, "/api/payroll/2025/03", nil))
	require.Len(t, view.Records, 1)
	return view.Records[0]
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealthAndReadiness(t *testing.T) {
	_, router := newTestServer(t)

	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/readyz", nil).Code)
}

// =============================================================================
// FIXED EXPENSES
// =============================================================================

func TestFixedExpense_RateChangeFlow(t *testing.T) {
	_, router := newTestServer(t)

	// GIVEN: rent at 100 from January
	rec := do(t, router, http.MethodPost, "/api/expenses/fixed", map[string]any{
		"salon_id": "paris", "category": "premises", "name": "Rent",
		"amount": "100", "effective_from": "2025-01",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	def := decode[DefinitionDTO](t, rec)
	assert.True(t, def.Active)
	require.Len(t, def.History, 1)

	// WHEN: the amount changes from March
	rec = do(t, router, http.MethodPost, "/api/expenses/fixed/"+def.ID+"/rates", map[string]any{
		"amount": "150.00", "effective_from": "2025-03",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: history shows both entries, March one current in April
	def = decode[DefinitionDTO](t, rec)
	require.Len(t, def.History, 2)
	assert.Equal(t, "100.00", def.History[0].Amount.String())
	require.NotNil(t, def.History[0].Until)
	assert.Equal(t, "2025-02", def.History[0].Until.String())
	assert.False(t, def.History[0].Current)
	assert.True(t, def.History[1].Current)

	// AND: past months keep their amount
	res := decode[ResolveDTO](t, do(t, router, http.MethodGet, "/api/expenses/fixed/"+def.ID+"/resolve?month=2025-02", nil))
	assert.True(t, res.Applicable)
	assert.Equal(t, "100.00", res.Amount.String())

	res = decode[ResolveDTO](t, do(t, router, http.MethodGet, "/api/expenses/fixed/"+def.ID+"/resolve?month=2025-03", nil))
	assert.Equal(t, "150.00", res.Amount.String())

	// AND: before the first entry there is no rate, which is not zero
	res = decode[ResolveDTO](t, do(t, router, http.MethodGet, "/api/expenses/fixed/"+def.ID+"/resolve?month=2024-12", nil))
	assert.False(t, res.Applicable)
	assert.Nil(t, res.Amount)
	require.NotNil(t, res.FirstEffective)
	assert.Equal(t, "2025-01", res.FirstEffective.String())
}

func TestFixedExpense_BackdatedRateIsConflict(t *testing.T) {
	_, router := newTestServer(t)
	def := decode[DefinitionDTO](t, do(t, router, http.MethodPost, "/api/expenses/fixed", map[string]any{
		"salon_id": "paris", "category": "premises", "name": "Rent",
		"amount": "100", "effective_from": "2025-03",
	}))

	rec := do(t, router, http.MethodPost, "/api/expenses/fixed/"+def.ID+"/rates", map[string]any{
		"amount": "90", "effective_from": "2025-02",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/expenses/fixed/"+def.ID+"/rates", map[string]any{
		"amount": "-5", "effective_from": "2025-06",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/expenses/fixed/nope/rates", map[string]any{
		"amount": "5", "effective_from": "2025-06",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFixedExpense_DeactivateOnlyMovesForward(t *testing.T) {
	_, router := newTestServer(t)
	def := decode[DefinitionDTO](t, do(t, router, http.MethodPost, "/api/expenses/fixed", map[string]any{
		"salon_id": "paris", "category": "premises", "name": "Rent",
		"amount": "100", "effective_from": "2025-01",
	}))
	path := "/api/expenses/fixed/" + def.ID

	// GIVEN: a stop dated on the first entry's month
	rec := do(t, router, http.MethodPost, path+"/deactivate", map[string]any{"from": "2025-01"})

	// THEN: it is refused and January still costs 100
	assert.Equal(t, http.StatusConflict, rec.Code)
	res := decode[ResolveDTO](t, do(t, router, http.MethodGet, path+"/resolve?month=2025-01", nil))
	assert.True(t, res.Applicable)

	// WHEN: stopped from June instead
	rec = do(t, router, http.MethodPost, path+"/deactivate", map[string]any{"from": "2025-06"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: May resolves, June reports when it stopped
	res = decode[ResolveDTO](t, do(t, router, http.MethodGet, path+"/resolve?month=2025-05", nil))
	assert.Equal(t, "100.00", res.Amount.String())
	res = decode[ResolveDTO](t, do(t, router, http.MethodGet, path+"/resolve?month=2025-06", nil))
	assert.False(t, res.Applicable)
	assert.Nil(t, res.Amount)
	require.NotNil(t, res.InactiveFrom)
	assert.Equal(t, "2025-06", res.InactiveFrom.String())
}

func TestBreakdown_PendingDefinitionIsNotZero(t *testing.T) {
	_, router := newTestServer(t)

	// GIVEN: rent from January, cleaning from June, one March purchase
	for _, body := range []map[string]any{
		{"salon_id": "paris", "category": "premises", "name": "Rent", "amount": "150", "effective_from": "2025-01"},
		{"salon_id": "paris", "category": "services", "name": "Cleaning", "amount": "60", "effective_from": "2025-06"},
		{"salon_id": "lyon", "category": "premises", "name": "Rent", "amount": "99", "effective_from": "2025-01"},
	} {
		require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/expenses/fixed", body).Code)
	}
	rec := do(t, router, http.MethodPost, "/api/expenses/variable", map[string]any{
		"salon_id": "paris", "category": "supplies", "amount": "50.00", "date": "2025-03-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// WHEN: asking for March in Paris
	rec = do(t, router, http.MethodGet, "/api/expenses/2025/03?salon=paris", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[BreakdownDTO](t, rec)

	// THEN: cleaning is listed as not applicable, not as 0.00
	assert.Equal(t, "150.00", b.Fixed.String())
	assert.Equal(t, "50.00", b.Variable.String())
	assert.Equal(t, "200.00", b.Total.String())
	require.Len(t, b.FixedLines, 2)
	require.Len(t, b.PendingDefinitions, 1)
	for _, l := range b.FixedLines {
		if l.Name == "Cleaning" {
			assert.False(t, l.Applicable)
			assert.Nil(t, l.Amount)
		}
	}

	// AND: all salons add Lyon's rent
	b = decode[BreakdownDTO](t, do(t, router, http.MethodGet, "/api/expenses/2025/03", nil))
	assert.Equal(t, "299.00", b.Total.String())
}

func TestVariableExpense_ListAndDelete(t *testing.T) {
	_, router := newTestServer(t)
	v := decode[VariableExpenseDTO](t, do(t, router, http.MethodPost, "/api/expenses/variable", map[string]any{
		"salon_id": "paris", "category": "supplies", "amount": "12.30", "date": "2025-04-02",
	}))

	list := decode[[]VariableExpenseDTO](t, do(t, router, http.MethodGet, "/api/expenses/variable?salon=paris", nil))
	require.Len(t, list, 1, "defaults to the current month")
	assert.Equal(t, "12.30", list[0].Amount.String())

	assert.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/api/expenses/variable/"+v.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodDelete, "/api/expenses/variable/"+v.ID, nil).Code)

	rec := do(t, router, http.MethodPost, "/api/expenses/variable", map[string]any{
		"salon_id": "paris", "category": "supplies", "amount": "1", "date": "02/04/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestPayroll_ImportReportsEachRow(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/payroll/2025/03/import", claireCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[ImportReportDTO](t, rec)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Rejected)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, 2, report.Rows[0].Line)
	assert.Equal(t, "imported", report.Rows[0].Outcome)
	assert.Equal(t, 3, report.Rows[1].Line)
	assert.Equal(t, "rejected", report.Rows[1].Outcome)
	assert.NotEmpty(t, report.Rows[1].Error)

	// Same file again replaces instead of duplicating
	report = decode[ImportReportDTO](t, do(t, router, http.MethodPost, "/api/payroll/2025/03/import", claireCSV))
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 1, report.Replaced)

	months := decode[[]string](t, do(t, router, http.MethodGet, "/api/payroll/months", nil))
	assert.Equal(t, []string{"2025-03"}, months)
}

func TestPayroll_MultipartImport(t *testing.T) {
	_, router := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "paie-mars.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(claireCSV))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/payroll/2025/03/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[ImportReportDTO](t, rec).Imported)
}

func TestPayroll_ImportMissingColumns(t *testing.T) {
	_, router := newTestServer(t)
	rec := do(t, router, http.MethodPost, "/api/payroll/2025/03/import", "nom;prenom;charges\nMartin;Claire;400\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayroll_PaymentScenario(t *testing.T) {
	_, router := newTestServer(t)

	// GIVEN: 3000 revenue, 1200 net, 400 charges at 50%
	record := importClaire(t, router)
	assert.Equal(t, "200.00", record.ChargeTechnicien.String())
	assert.Equal(t, "1600.00", record.Due.String())
	assert.Equal(t, "1600.00", record.Remaining.String())
	assert.Equal(t, engine.StatusPending, record.Status)

	pay := func(amount string) PaymentResponse {
		rec := do(t, router, http.MethodPost, "/api/payroll/records/"+record.ID+"/payments", map[string]any{
			"amount": amount, "payment_date": "2025-04-05", "method": "Transfer",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[PaymentResponse](t, rec)
	}

	// WHEN/THEN: each write answers with the re-read reconciliation
	resp := pay("200")
	assert.Equal(t, "1400.00", resp.Record.Remaining.String())
	assert.Equal(t, engine.StatusPartial, resp.Record.Status)
	assert.Equal(t, "transfer", resp.Payment.Method)

	resp = pay("1400")
	assert.Equal(t, "0.00", resp.Record.Remaining.String())
	assert.Equal(t, engine.StatusPaid, resp.Record.Status)

	extra := pay("50")
	assert.Equal(t, engine.StatusOverpaid, extra.Record.Status)
	assert.Equal(t, "1650.00", extra.Record.TotalPaid.String())

	// Removing the extra payment brings it back to paid
	rec := do(t, router, http.MethodDelete, "/api/payments/"+extra.Payment.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, engine.StatusPaid, decode[PaymentResponse](t, rec).Record.Status)

	payments := decode[[]PaymentDTO](t, do(t, router, http.MethodGet, "/api/payroll/records/"+record.ID+"/payments", nil))
	assert.Len(t, payments, 2)

	metrics := do(t, router, http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, metrics, "salon_finance_payments_recorded_total 3")
	assert.Contains(t, metrics, `salon_finance_payroll_import_rows_total{outcome="rejected"} 1`)
}

func TestPayroll_PaymentValidation(t *testing.T) {
	_, router := newTestServer(t)
	record := importClaire(t, router)

	rec := do(t, router, http.MethodPost, "/api/payroll/records/"+record.ID+"/payments", map[string]any{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/payroll/records/ghost/payments", map[string]any{"amount": "10"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/payments/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayroll_CorrectRecord(t *testing.T) {
	_, router := newTestServer(t)
	record := importClaire(t, router)

	// WHEN: the salon takes over all charges
	rec := do(t, router, http.MethodPatch, "/api/payroll/records/"+record.ID, map[string]any{"tax_percentage": 100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: nothing is charged to the worker
	got := decode[PaymentResponse](t, rec).Record
	assert.Equal(t, "0.00", got.ChargeTechnicien.String())
	assert.Equal(t, "1800.00", got.Due.String())

	rec = do(t, router, http.MethodPatch, "/api/payroll/records/"+record.ID, map[string]any{"tax_percentage": 120})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPayroll_DeleteMonth(t *testing.T) {
	_, router := newTestServer(t)
	importClaire(t, router)

	rec := do(t, router, http.MethodDelete, "/api/payroll/2025/03", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[MonthViewDTO](t, do(t, router, http.MethodGet, "/api/payroll/2025/03", nil))
	assert.Empty(t, view.Records)
	assert.Equal(t, "0.00", view.Remaining.String())
}

func TestPayroll_InvalidPathMonth(t *testing.T) {
	_, router := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/payroll/2025/13", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/expenses/abc/03", nil).Code)
}

func TestPayroll_StatementPDF(t *testing.T) {
	_, router := newTestServer(t)
	importClaire(t, router)

	rec := do(t, router, http.MethodGet, "/api/payroll/2025/03/statement.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployees_RegisterThenImportLinks(t *testing.T) {
	_, router := newTestServer(t)

	rec := do(t, router, http.MethodPost, "/api/employees", map[string]any{
		"salon_id": "paris", "last_name": "MARTIN", "first_name": "Claire",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decode[EmployeeDTO](t, rec)

	record := importClaire(t, router)
	assert.Equal(t, emp.ID, record.EmployeeRef)

	list := decode[[]EmployeeDTO](t, do(t, router, http.MethodGet, "/api/employees?salon=paris", nil))
	assert.Len(t, list, 1)

	rec = do(t, router, http.MethodPost, "/api/employees", map[string]any{"salon_id": "paris"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
