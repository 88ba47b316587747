/*
import.go - Monthly payroll import with replace semantics

PURPOSE:
  Turns normalized import rows into PayrollRecords for one month. Importing
  the same month again replaces the previous figures instead of duplicating
  them: there is at most one record per (identity key, month).

IDENTITY RESOLUTION (per row):
  1. Row carries an EmployeeRef          -> use it if registered, else reject
  2. Exactly one employee has that name  -> link to that employee
  3. No employee has that name           -> unlinked, keyed by normalized name
  4. Several employees have that name    -> IdentityAmbiguousError, row rejected

  Case 4 is never resolved by picking one: overwriting the wrong person's
  figures would silently corrupt their balance.

REPLACE:
  An existing record for the same identity key and month keeps its ID and
  has its cost fields overwritten, so payments already made stay attached.
  When a concurrent import inserts the same new record first, the insert
  fails on the unique (identity key, month) constraint and the row is
  retried once, which turns it into a replace of the winner's record.
  A linked row also upgrades a legacy unlinked record with the same name.
  Revenue and tax percentage are optional in imports: when a row omits
  them the superseded record's values are kept (new records default to 0).

FAILURE MODEL:
  Rows succeed or fail independently; each row is written in its own
  transaction. Validation and identity failures are reported per row in
  the ImportReport. Only storage failures abort the whole import.

SEE ALSO:
  - importer/csv.go: produces []engine.ImportRow from a spreadsheet export
  - engine/types.go: IdentityKey, NameKey
*/
package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeReplaced Outcome = "replaced"
	OutcomeRejected Outcome = "rejected"
)

// RowResult is the outcome of one import row.
type RowResult struct {
	Line        int
	IdentityKey string
	RecordID    engine.RecordID
	Outcome     Outcome

	// Err is set for rejected rows and wraps an engine sentinel.
	Err error
}

// ImportReport summarizes an import.
type ImportReport struct {
	Month    money.Month
	Results  []RowResult
	Imported int
	Replaced int
	Rejected int
}

// Import writes rows into month. The returned error is non-nil only when
// storage fails; row-level problems are in the report.
func (s *Service) Import(ctx context.Context, month money.Month, rows []engine.ImportRow) (ImportReport, error) {
	if !month.Valid() {
		return ImportReport{}, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, month)
	}

	report := ImportReport{Month: month, Results: make([]RowResult, 0, len(rows))}
	seen := make(map[string]int, len(rows))

	for i, row := range rows {
		line := row.Line
		if line == 0 {
			line = i + 1
		}
		res := RowResult{Line: line}

		ref, err := s.resolveIdentity(ctx, row)
		if err != nil && !isRowError(err) {
			return report, fmt.Errorf("import %s line %d: %w", month, line, err)
		}
		if err == nil {
			res.IdentityKey = engine.IdentityKey(ref, row.LastName, row.FirstName)
			if first, dup := seen[res.IdentityKey]; dup {
				err = fmt.Errorf("%w: same identity as line %d", engine.ErrDuplicateImportRow, first)
			} else {
				seen[res.IdentityKey] = line
			}
		}
		if err == nil {
			err = validateRow(row)
		}
		if err == nil {
			res.RecordID, res.Outcome, err = s.upsert(ctx, month, ref, row)
			if err != nil && !isRowError(err) {
				return report, fmt.Errorf("import %s line %d: %w", month, line, err)
			}
		}
		if err != nil {
			res.Outcome = OutcomeRejected
			res.Err = &engine.RowError{Line: line, Err: err}
			s.log.Warn("import row rejected", "month", month.String(), "line", line, "error", err)
		}

		switch res.Outcome {
		case OutcomeImported:
			report.Imported++
		case OutcomeReplaced:
			report.Replaced++
		case OutcomeRejected:
			report.Rejected++
		}
		report.Results = append(report.Results, res)
	}

	s.log.Info("payroll imported", "month", month.String(),
		"imported", report.Imported, "replaced", report.Replaced, "rejected", report.Rejected)
	return report, nil
}

// resolveIdentity returns the employee the row belongs to, or "" when the
// row stays unlinked.
func (s *Service) resolveIdentity(ctx context.Context, row engine.ImportRow) (engine.EmployeeID, error) {
	if row.EmployeeRef != "" {
		// An unknown reference would create an identity no later import matches.
		if _, err := s.store.GetEmployee(ctx, row.EmployeeRef); err != nil {
			return "", err
		}
		return row.EmployeeRef, nil
	}
	if strings.TrimSpace(row.LastName) == "" && strings.TrimSpace(row.FirstName) == "" {
		return "", fmt.Errorf("%w: no employee reference and no name", engine.ErrInvalidRow)
	}
	matches, err := s.store.FindEmployeesByNameKey(ctx, engine.NameKey(row.LastName, row.FirstName))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0].ID, nil
	default:
		ids := make([]engine.EmployeeID, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return "", &engine.IdentityAmbiguousError{
			LastName:   row.LastName,
			FirstName:  row.FirstName,
			Candidates: ids,
		}
	}
}

func validateRow(row engine.ImportRow) error {
	amounts := map[string]money.Money{
		"net salary":   row.NetSalary,
		"gross salary": row.GrossSalary,
		"total cost":   row.TotalCost,
		"charges":      row.Charges,
	}
	if row.GeneratedRevenue != nil {
		amounts["revenue"] = *row.GeneratedRevenue
	}
	for name, m := range amounts {
		if m.IsNegative() {
			return fmt.Errorf("%w: %s is negative (%s)", engine.ErrInvalidAmount, name, m)
		}
	}
	if row.TaxPercentage != nil {
		if err := engine.ValidateTaxPercentage(*row.TaxPercentage); err != nil {
			return err
		}
	}
	return nil
}

// upsertAttempts bounds retries after losing an insert race.
const upsertAttempts = 2

func (s *Service) upsert(ctx context.Context, month money.Month, ref engine.EmployeeID, row engine.ImportRow) (id engine.RecordID, outcome Outcome, err error) {
	for attempt := 1; attempt <= upsertAttempts; attempt++ {
		id, outcome, err = s.upsertOnce(ctx, month, ref, row)
		if !errors.Is(err, engine.ErrDuplicateImportRow) {
			return id, outcome, err
		}
		s.log.Debug("import row lost insert race, retrying", "month", month.String(), "attempt", attempt)
	}
	return "", "", err
}

func (s *Service) upsertOnce(ctx context.Context, month money.Month, ref engine.EmployeeID, row engine.ImportRow) (engine.RecordID, Outcome, error) {
	var (
		id      engine.RecordID
		outcome Outcome
	)
	key := engine.IdentityKey(ref, row.LastName, row.FirstName)

	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		existing, err := tx.FindPayrollRecord(ctx, key, month)
		if errors.Is(err, engine.ErrPayrollRecordNotFound) && ref != "" {
			// Earlier import of the same person before they were linked.
			legacy := engine.IdentityKey("", row.LastName, row.FirstName)
			existing, err = tx.FindPayrollRecord(ctx, legacy, month)
		}

		now := s.now().UTC()
		switch {
		case err == nil:
			rec := applyRow(existing, ref, row)
			rec.UpdatedAt = now
			id, outcome = rec.ID, OutcomeReplaced
			return tx.UpdatePayrollRecord(ctx, rec)
		case errors.Is(err, engine.ErrPayrollRecordNotFound):
			rec := applyRow(engine.PayrollRecord{
				ID:            engine.RecordID(uuid.NewString()),
				Month:         month,
				TaxPercentage: decimal.Zero,
				ImportedAt:    now,
			}, ref, row)
			rec.UpdatedAt = now
			id, outcome = rec.ID, OutcomeImported
			return tx.InsertPayrollRecord(ctx, rec)
		default:
			return err
		}
	})
	if err != nil {
		return "", "", err
	}
	return id, outcome, nil
}

func applyRow(rec engine.PayrollRecord, ref engine.EmployeeID, row engine.ImportRow) engine.PayrollRecord {
	rec.EmployeeRef = ref
	rec.LastName = strings.TrimSpace(row.LastName)
	rec.FirstName = strings.TrimSpace(row.FirstName)
	rec.NetSalary = row.NetSalary
	rec.GrossSalary = row.GrossSalary
	rec.TotalCost = row.TotalCost
	rec.Charges = row.Charges
	if row.GeneratedRevenue != nil {
		rec.GeneratedRevenue = *row.GeneratedRevenue
	}
	if row.TaxPercentage != nil {
		rec.TaxPercentage = *row.TaxPercentage
	}
	return rec
}

func isRowError(err error) bool {
	return engine.IsClientError(err) || engine.IsConflict(err) ||
		errors.Is(err, engine.ErrEmployeeNotFound)
}
