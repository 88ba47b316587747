/*
handlers.go - HTTP API handlers for the salon finance engine

PURPOSE:
  Exposes the expense and payroll services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the services.
  No handler computes money: every total, remaining balance and status
  in a response comes from the engine.

ENDPOINTS:
  Fixed expenses:
    GET    /api/expenses/fixed                   List definitions (?salon=)
    POST   /api/expenses/fixed                   Create definition
    GET    /api/expenses/fixed/{id}              Definition + rate history
    POST   /api/expenses/fixed/{id}/rates        Append a rate entry
    GET    /api/expenses/fixed/{id}/resolve      Amount in effect (?month=)
    POST   /api/expenses/fixed/{id}/deactivate   Stop counting from a month

  Variable expenses:
    GET    /api/expenses/variable                List (?salon=&month=)
    POST   /api/expenses/variable                Record one
    DELETE /api/expenses/variable/{id}           Delete one

  Monthly breakdown:
    GET    /api/expenses/{year}/{month}          Fixed + variable (?salon=)

  Payroll, payments and employees: see payroll.go.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (effective date not after latest, ambiguous identity)
  - 422: No applicable rate for the requested month
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - payroll.go: Payroll and payment handlers
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/expenses"
	"github.com/salonops/finance-engine/importer"
	"github.com/salonops/finance-engine/money"
	"github.com/salonops/finance-engine/payroll"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the API needs beyond engine.Store: readiness, demo reset
// and shutdown.
type Store interface {
	engine.Store
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	Close() error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Expenses *expenses.Service
	Payroll  *payroll.Service
	Metrics  *Metrics

	log *slog.Logger
	now func() time.Time

	scenarioMu      sync.RWMutex
	currentScenario string
}

// NewHandler wires services over store. metrics may be nil.
func NewHandler(store Store, metrics *Metrics, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Expenses: expenses.NewService(store, logger),
		Payroll:  payroll.NewService(store, logger),
		Metrics:  metrics,
		log:      logger,
		now:      time.Now,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz pings the store.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// =============================================================================
// FIXED EXPENSE HANDLERS
// =============================================================================

func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := h.Expenses.ListDefinitions(r.Context(), salonFilter(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]DefinitionDTO, len(defs))
	for i, d := range defs {
		dtos[i] = toDefinitionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	var req CreateDefinitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in := expenses.NewDefinition{
		SalonID:     engine.SalonID(strings.TrimSpace(req.SalonID)),
		Category:    req.Category,
		Name:        req.Name,
		Description: req.Description,
		Amount:      req.Amount,
	}
	if req.Amount != nil {
		from, err := money.ParseMonth(req.EffectiveFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM)", err)
			return
		}
		in.EffectiveFrom = from
	}

	d, err := h.Expenses.CreateDefinition(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeDefinition(w, r, http.StatusCreated, d)
}

// GetDefinition returns the definition with its full rate history.
func (h *Handler) GetDefinition(w http.ResponseWriter, r *http.Request) {
	d, err := h.Expenses.GetDefinition(r.Context(), engine.DefinitionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeDefinition(w, r, http.StatusOK, d)
}

func (h *Handler) writeDefinition(w http.ResponseWriter, r *http.Request, status int, d engine.FixedExpenseDefinition) {
	history, err := h.Expenses.History(r.Context(), d.ID, money.MonthOf(h.now().UTC()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dto := toDefinitionDTO(d)
	for entry := range history {
		dto.History = append(dto.History, toRateEntryDTO(entry))
	}
	writeJSON(w, status, dto)
}

// SetAmount appends a rate entry. Past months are never rewritten: the
// effective month must be after the latest entry.
func (h *Handler) SetAmount(w http.ResponseWriter, r *http.Request) {
	var req SetAmountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	from, err := money.ParseMonth(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM)", err)
		return
	}

	id := engine.DefinitionID(chi.URLParam(r, "id"))
	if _, err := h.Expenses.SetAmount(r.Context(), id, req.Amount, from); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	d, err := h.Expenses.GetDefinition(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.writeDefinition(w, r, http.StatusCreated, d)
}

func (h *Handler) ResolveAmount(w http.ResponseWriter, r *http.Request) {
	month, ok := h.queryMonth(w, r)
	if !ok {
		return
	}
	id := engine.DefinitionID(chi.URLParam(r, "id"))
	dto := ResolveDTO{DefinitionID: string(id), Month: month}

	amount, err := h.Expenses.Resolve(r.Context(), id, month)
	var notYet *engine.NoApplicableRateError
	var inactive *engine.DefinitionInactiveError
	switch {
	case errors.As(err, &notYet):
		if !notYet.FirstEffective.IsZero() {
			first := notYet.FirstEffective
			dto.FirstEffective = &first
		}
	case errors.As(err, &inactive):
		from := inactive.From
		dto.InactiveFrom = &from
	case err != nil:
		h.writeDomainError(w, r, err)
		return
	default:
		dto.Applicable = true
		dto.Amount = &amount
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) DeactivateDefinition(w http.ResponseWriter, r *http.Request) {
	var req DeactivateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	from, err := money.ParseMonth(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from (use YYYY-MM)", err)
		return
	}
	d, err := h.Expenses.Deactivate(r.Context(), engine.DefinitionID(chi.URLParam(r, "id")), from)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDefinitionDTO(d))
}

// =============================================================================
// VARIABLE EXPENSE HANDLERS
// =============================================================================

func (h *Handler) ListVariable(w http.ResponseWriter, r *http.Request) {
	month, ok := h.queryMonth(w, r)
	if !ok {
		return
	}
	entries, err := h.Expenses.ListVariable(r.Context(), salonFilter(r), month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]VariableExpenseDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toVariableDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateVariable(w http.ResponseWriter, r *http.Request) {
	var req CreateVariableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	e, err := h.Expenses.RecordVariable(r.Context(), expenses.NewVariable{
		SalonID:     engine.SalonID(strings.TrimSpace(req.SalonID)),
		Category:    req.Category,
		Amount:      req.Amount,
		Date:        date,
		Description: req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toVariableDTO(e))
}

func (h *Handler) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	if err := h.Expenses.DeleteVariable(r.Context(), engine.ExpenseID(chi.URLParam(r, "id"))); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Breakdown returns a month's fixed and variable expenses.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	month, ok := pathMonth(w, r)
	if !ok {
		return
	}
	filter := salonFilter(r)
	total, err := h.Expenses.Breakdown(r.Context(), filter, month)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBreakdownDTO(total, filter))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("write json failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses. Anything
// unrecognized is logged and reported as 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case engine.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, engine.ErrNoApplicableRate):
		writeError(w, http.StatusUnprocessableEntity, "No applicable rate", err)
	case engine.IsClientError(err), errors.Is(err, importer.ErrMissingColumn):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.log.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func salonFilter(r *http.Request) engine.SalonFilter {
	return engine.ForSalon(engine.SalonID(strings.TrimSpace(r.URL.Query().Get("salon"))))
}

// queryMonth reads ?month=YYYY-MM, defaulting to the current month.
func (h *Handler) queryMonth(w http.ResponseWriter, r *http.Request) (money.Month, bool) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return money.MonthOf(h.now().UTC()), true
	}
	m, err := money.ParseMonth(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month (use YYYY-MM)", err)
		return money.Month{}, false
	}
	return m, true
}

// pathMonth reads the {year}/{month} URL parameters.
func pathMonth(w http.ResponseWriter, r *http.Request) (money.Month, bool) {
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	mon, errM := strconv.Atoi(chi.URLParam(r, "month"))
	m := money.NewMonth(year, time.Month(mon))
	if errY != nil || errM != nil || !m.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid month in path",
			fmt.Errorf("%w: %s/%s", engine.ErrInvalidMonth, chi.URLParam(r, "year"), chi.URLParam(r, "month")))
		return money.Month{}, false
	}
	return m, true
}
