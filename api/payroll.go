/*
payroll.go - Payroll, payment and employee handlers

ENDPOINTS:
  Payroll:
    GET    /api/payroll/months                     Months with imported payroll
    GET    /api/payroll/{year}/{month}             Reconciled records + totals
    DELETE /api/payroll/{year}/{month}             Delete a whole month
    POST   /api/payroll/{year}/{month}/import      CSV import (multipart "file" or raw body)
    GET    /api/payroll/{year}/{month}/statement.pdf
    GET    /api/payroll/records/{id}               One reconciled record
    PATCH  /api/payroll/records/{id}               Explicit amount correction

  Payments:
    GET    /api/payroll/records/{id}/payments      Payment history
    POST   /api/payroll/records/{id}/payments      Record a payment
    DELETE /api/payments/{id}                      Remove an erroneous payment

  Employees:
    GET    /api/employees                          List (?salon=)
    POST   /api/employees                          Register

READ-AFTER-WRITE:
  Payment writes answer with the record re-reconciled from the ledger
  after the write. Clients display that, never a total they computed.

SEE ALSO:
  - statement.go: PDF export
  - payroll/: services behind these handlers
*/
package api

import (
	"cmp"
	"io"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/importer"
	"github.com/salonops/finance-engine/payroll"
)

const maxImportBytes = 8 << 20

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

func (h *Handler) ListPayrollMonths(w http.ResponseWriter, r *http.Request) {
	months, err := h.Payroll.Months(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]string, len(months))
	for i, m := range months {
		out[i] = m.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetPayrollMonth(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	view, err := h.Payroll.Month(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonthViewDTO(view))
}

func (h *Handler) DeletePayrollMonth(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	n, err := h.Payroll.DeleteMonth(r.Context(), month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "deleted": n})
}

// ImportPayroll parses a CSV export and imports it into the month. Rows
// that cannot be parsed or validated are reported, the others are applied.
func (h *Handler) ImportPayroll(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}

	body, err := importBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload", err)
		return
	}
	defer body.Close()

	var opts importer.Options
	if d := r.URL.Query().Get("delimiter"); d != "" {
		if d == "tab" {
			d = "\t"
		}
		opts.Delimiter, _ = utf8.DecodeRuneInString(d)
	}

	parsed, err := importer.ParseCSV(body, opts)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	report, err := h.Payroll.Import(r.Context(), month, parsed.Rows)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.Metrics.importReported(report, len(parsed.Errors))

	for _, pe := range parsed.Errors {
		h.log.Warn("payroll import row unreadable", "month", month.String(), "line", pe.Line, "error", pe.Err)
	}
	writeJSON(w, http.StatusOK, toImportReportDTO(report, parsed.Errors))
}

// importBody returns the multipart "file" part when the request is a form
// upload and the raw body otherwise.
func importBody(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	return file, nil
}

func sortImportRows(rows []ImportRowDTO) {
	slices.SortStableFunc(rows, func(a, b ImportRowDTO) int { return cmp.Compare(a.Line, b.Line) })
}

func (h *Handler) GetPayrollRecord(w http.ResponseWriter, r *http.Request) {
	st, err := h.Payroll.Status(r.Context(), engine.RecordID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTO(st))
}

// CorrectPayrollRecord applies an explicit correction. Payments stay
// attached; the response is the record reconciled with the new figures.
func (h *Handler) CorrectPayrollRecord(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := engine.RecordID(chi.URLParam(r, "id"))
	_, err := h.Payroll.CorrectRecord(r.Context(), id, payroll.Correction{
		GeneratedRevenue: req.GeneratedRevenue,
		NetSalary:        req.NetSalary,
		GrossSalary:      req.GrossSalary,
		TotalCost:        req.TotalCost,
		Charges:          req.Charges,
		TaxPercentage:    req.TaxPercentage,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeRecordStatus(w, r, http.StatusOK, id, nil)
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	id := engine.RecordID(chi.URLParam(r, "id"))
	if _, err := h.Payroll.GetRecord(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	payments, err := h.Payroll.Ledger().Payments(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := payroll.PaymentInput{
		RecordID: engine.RecordID(chi.URLParam(r, "id")),
		Amount:   req.Amount,
		Method:   engine.PaymentMethod(req.Method),
		Notes:    req.Notes,
	}
	if req.PaymentDate != "" {
		date, err := time.Parse(dateLayout, req.PaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payment_date format (use YYYY-MM-DD)", err)
			return
		}
		in.PaymentDate = date
	}

	p, err := h.Payroll.Ledger().Record(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.Metrics.paymentRecorded()

	dto := toPaymentDTO(p)
	h.writeRecordStatus(w, r, http.StatusCreated, p.RecordID, &dto)
}

// DeletePayment removes an erroneous payment and answers with the record
// it belonged to, reconciled again.
func (h *Handler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := engine.PaymentID(chi.URLParam(r, "id"))

	payments := h.Payroll.Ledger()
	p, err := h.Store.GetPayment(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := payments.Delete(ctx, id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeRecordStatus(w, r, http.StatusOK, p.RecordID, nil)
}

func (h *Handler) writeRecordStatus(w http.ResponseWriter, r *http.Request, status int, id engine.RecordID, payment *PaymentDTO) {
	st, err := h.Payroll.Status(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, PaymentResponse{Payment: payment, Record: toRecordDTO(st)})
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Payroll.ListEmployees(r.Context(), salonFilter(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.Payroll.RegisterEmployee(r.Context(),
		engine.SalonID(strings.TrimSpace(req.SalonID)), req.LastName, req.FirstName)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(e))
}
