/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All error kinds in one place. Services and stores wrap these with context;
  the HTTP layer classifies them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - rejected synchronously, nothing is written
  2. Schedule errors - non-monotonic edits, not-yet-applicable months
  3. Identity errors - import rows that cannot be matched safely
  4. Lookup errors - unknown ids

NOT-YET-APPLICABLE IS NOT ZERO:
  ErrNoApplicableRate means a definition did not exist yet for a month.
  Aggregation treats it as a zero contribution but reports it separately so
  the presentation layer can tell "0.00" from "not yet computable".

SEE ALSO:
  - schedule.go: EffectiveDateError, NoApplicableRateError
  - payroll/import.go: IdentityAmbiguousError, RowError
*/
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/salonops/finance-engine/money"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for non-positive or malformed monetary input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTaxPercentage is returned when a tax percentage is outside [0, 100].
	ErrInvalidTaxPercentage = errors.New("invalid tax percentage")

	// ErrInvalidEffectiveDate is returned when a rate entry does not move the
	// schedule forward.
	ErrInvalidEffectiveDate = errors.New("invalid effective date")

	// ErrNoApplicableRate is returned when a month precedes a schedule's first entry.
	ErrNoApplicableRate = errors.New("no applicable rate")

	// ErrIdentityAmbiguous is returned when an import row matches more than
	// one employee by name.
	ErrIdentityAmbiguous = errors.New("identity ambiguous")

	// ErrDuplicateImportRow is returned when one import carries the same
	// identity twice.
	ErrDuplicateImportRow = errors.New("duplicate import row")

	// ErrInvalidRow is returned for import rows missing their identity fields.
	ErrInvalidRow = errors.New("invalid import row")

	ErrInvalidMonth          = errors.New("invalid month")
	ErrDefinitionInactive    = errors.New("fixed expense definition is inactive")
	ErrDefinitionNotFound    = errors.New("fixed expense definition not found")
	ErrExpenseNotFound       = errors.New("variable expense not found")
	ErrPayrollRecordNotFound = errors.New("payroll record not found")
	ErrPaymentNotFound       = errors.New("payment not found")
	ErrEmployeeNotFound      = errors.New("employee not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EffectiveDateError reports a rate entry that is not after the latest one.
type EffectiveDateError struct {
	DefinitionID DefinitionID
	Requested    money.Month
	Latest       money.Month
}

func (e *EffectiveDateError) Error() string {
	return fmt.Sprintf("invalid effective date: %s is not after latest entry %s for %s",
		e.Requested, e.Latest, e.DefinitionID)
}

func (e *EffectiveDateError) Unwrap() error { return ErrInvalidEffectiveDate }

// NoApplicableRateError reports a month with no rate in effect.
type NoApplicableRateError struct {
	DefinitionID DefinitionID
	Month        money.Month

	// FirstEffective is zero when the schedule has no entries at all.
	FirstEffective money.Month
}

func (e *NoApplicableRateError) Error() string {
	if e.FirstEffective.IsZero() {
		return fmt.Sprintf("no applicable rate for %s in %s: schedule is empty", e.DefinitionID, e.Month)
	}
	return fmt.Sprintf("no applicable rate for %s in %s: first entry is %s",
		e.DefinitionID, e.Month, e.FirstEffective)
}

func (e *NoApplicableRateError) Unwrap() error { return ErrNoApplicableRate }

// DefinitionInactiveError reports a month at or after a definition's
// deactivation.
type DefinitionInactiveError struct {
	DefinitionID DefinitionID
	Month        money.Month
	From         money.Month
}

func (e *DefinitionInactiveError) Error() string {
	return fmt.Sprintf("fixed expense definition is inactive: %s stopped counting in %s, requested %s",
		e.DefinitionID, e.From, e.Month)
}

func (e *DefinitionInactiveError) Unwrap() error { return ErrDefinitionInactive }

// IdentityAmbiguousError lists the employees an import row could belong to.
type IdentityAmbiguousError struct {
	LastName   string
	FirstName  string
	Candidates []EmployeeID
}

func (e *IdentityAmbiguousError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = string(c)
	}
	return fmt.Sprintf("identity ambiguous: %s %s matches employees [%s]",
		e.FirstName, e.LastName, strings.Join(ids, ", "))
}

func (e *IdentityAmbiguousError) Unwrap() error { return ErrIdentityAmbiguous }

// RowError ties an error to an import line.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidTaxPercentage) ||
		errors.Is(err, ErrInvalidMonth) ||
		errors.Is(err, ErrInvalidRow) ||
		errors.Is(err, money.ErrMalformed) ||
		errors.Is(err, money.ErrInvalidMonth)
}

// IsConflict returns true if the request is well-formed but contradicts
// stored state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInvalidEffectiveDate) ||
		errors.Is(err, ErrIdentityAmbiguous) ||
		errors.Is(err, ErrDuplicateImportRow) ||
		errors.Is(err, ErrDefinitionInactive)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrPayrollRecordNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
