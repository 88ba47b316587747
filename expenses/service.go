/*
Package expenses manages fixed and variable salon expenses.

PURPOSE:
  Persisted operations over the pure rate schedule in engine: create a
  recurring expense, change its amount from a given month on, resolve what
  it cost in any month, and total a month's expenses per salon.

RATE CHANGES:
  SetAmount appends an entry; it never edits one. The monotonic check and
  the insert happen in one transaction, with the definition row locked
  first, so two concurrent edits cannot both pass the "is it after the
  latest entry?" check.

LIFECYCLE:
  A definition becomes active with its first rate entry and can be
  deactivated from a month onward. Deactivation is a soft delete: months
  before it still resolve and still count in totals.

SEE ALSO:
  - engine/schedule.go: resolution rules
  - engine/aggregate.go: monthly totals
*/
package expenses

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

// Service manages expense definitions, their schedules and variable expenses.
type Service struct {
	store engine.Store
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store engine.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, log: logger, now: time.Now}
}

// =============================================================================
// DEFINITIONS
// =============================================================================

// NewDefinition describes a recurring expense to create.
type NewDefinition struct {
	SalonID     engine.SalonID
	Category    string
	Name        string
	Description string

	// Amount and EffectiveFrom seed the schedule. Without an initial rate
	// the definition stays inactive until the first SetAmount.
	Amount        *money.Money
	EffectiveFrom money.Month
}

// CreateDefinition stores a definition and, when given, its first rate in
// the same transaction.
func (s *Service) CreateDefinition(ctx context.Context, in NewDefinition) (engine.FixedExpenseDefinition, error) {
	d := engine.FixedExpenseDefinition{
		ID:          engine.DefinitionID(uuid.NewString()),
		SalonID:     in.SalonID,
		Category:    strings.TrimSpace(in.Category),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}
	if d.Name == "" || d.Category == "" || d.SalonID == "" {
		return engine.FixedExpenseDefinition{}, fmt.Errorf("%w: salon, category and name are required", engine.ErrInvalidRow)
	}

	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.CreateDefinition(ctx, d); err != nil {
			return err
		}
		if in.Amount == nil {
			return nil
		}
		var err error
		d, _, err = s.appendEntry(ctx, tx, d.ID, *in.Amount, in.EffectiveFrom)
		return err
	})
	if err != nil {
		return engine.FixedExpenseDefinition{}, err
	}
	s.log.Info("fixed expense created", "definition_id", d.ID, "salon_id", d.SalonID, "name", d.Name)
	return d, nil
}

func (s *Service) GetDefinition(ctx context.Context, id engine.DefinitionID) (engine.FixedExpenseDefinition, error) {
	return s.store.GetDefinition(ctx, id)
}

func (s *Service) ListDefinitions(ctx context.Context, filter engine.SalonFilter) ([]engine.FixedExpenseDefinition, error) {
	return s.store.ListDefinitions(ctx, filter)
}

// Deactivate stops a definition from counting from month onward. Like a
// rate change it only moves forward: from must be after the latest entry, so
// months that already resolved keep their amount.
func (s *Service) Deactivate(ctx context.Context, id engine.DefinitionID, from money.Month) (engine.FixedExpenseDefinition, error) {
	if !from.Valid() {
		return engine.FixedExpenseDefinition{}, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, from)
	}
	var d engine.FixedExpenseDefinition
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		var err error
		if d, err = tx.LockDefinition(ctx, id); err != nil {
			return err
		}
		if d.DeactivatedFrom != nil {
			return fmt.Errorf("%w: %s already deactivated from %s", engine.ErrDefinitionInactive, id, *d.DeactivatedFrom)
		}
		entries, err := tx.RateEntries(ctx, id)
		if err != nil {
			return err
		}
		if latest, ok := engine.NewRateSchedule(id, entries).Latest(); ok && !from.After(latest.EffectiveFrom) {
			return &engine.EffectiveDateError{DefinitionID: id, Requested: from, Latest: latest.EffectiveFrom}
		}
		d.Active = false
		d.DeactivatedFrom = &from
		return tx.UpdateDefinition(ctx, d)
	})
	if err != nil {
		return engine.FixedExpenseDefinition{}, err
	}
	s.log.Info("fixed expense deactivated", "definition_id", id, "from", from.String())
	return d, nil
}

// =============================================================================
// RATE SCHEDULE
// =============================================================================

// SetAmount appends a rate entry effective from effectiveFrom onward.
func (s *Service) SetAmount(ctx context.Context, id engine.DefinitionID, amount money.Money, effectiveFrom money.Month) (engine.RateScheduleEntry, error) {
	var entry engine.RateScheduleEntry
	err := s.store.WithTx(ctx, func(tx engine.Store) error {
		var err error
		_, entry, err = s.appendEntry(ctx, tx, id, amount, effectiveFrom)
		return err
	})
	if err != nil {
		return engine.RateScheduleEntry{}, err
	}
	s.log.Info("fixed expense rate set",
		"definition_id", id, "amount", amount.String(), "effective_from", effectiveFrom.String())
	return entry, nil
}

// appendEntry must run inside a transaction.
func (s *Service) appendEntry(ctx context.Context, tx engine.Store, id engine.DefinitionID, amount money.Money, from money.Month) (engine.FixedExpenseDefinition, engine.RateScheduleEntry, error) {
	d, err := tx.LockDefinition(ctx, id)
	if err != nil {
		return d, engine.RateScheduleEntry{}, err
	}
	if d.DeactivatedFrom != nil {
		return d, engine.RateScheduleEntry{}, fmt.Errorf("%w: %s", engine.ErrDefinitionInactive, id)
	}
	entries, err := tx.RateEntries(ctx, id)
	if err != nil {
		return d, engine.RateScheduleEntry{}, err
	}

	entry := engine.RateScheduleEntry{
		ID:            engine.EntryID(uuid.NewString()),
		DefinitionID:  id,
		Amount:        amount,
		EffectiveFrom: from,
		CreatedAt:     s.now().UTC(),
	}
	if _, err := engine.NewRateSchedule(id, entries).Append(entry); err != nil {
		return d, engine.RateScheduleEntry{}, err
	}
	if err := tx.AppendRateEntry(ctx, entry); err != nil {
		return d, engine.RateScheduleEntry{}, err
	}
	if !d.Active {
		d.Active = true
		if err := tx.UpdateDefinition(ctx, d); err != nil {
			return d, engine.RateScheduleEntry{}, err
		}
	}
	return d, entry, nil
}

// Schedule loads a definition's rate schedule.
func (s *Service) Schedule(ctx context.Context, id engine.DefinitionID) (engine.RateSchedule, error) {
	if _, err := s.store.GetDefinition(ctx, id); err != nil {
		return engine.RateSchedule{}, err
	}
	entries, err := s.store.RateEntries(ctx, id)
	if err != nil {
		return engine.RateSchedule{}, err
	}
	return engine.NewRateSchedule(id, entries), nil
}

// Resolve returns the amount in effect for month, ErrNoApplicableRate when
// month precedes the first entry and a DefinitionInactiveError from the
// deactivation month on.
func (s *Service) Resolve(ctx context.Context, id engine.DefinitionID, month money.Month) (money.Money, error) {
	d, err := s.store.GetDefinition(ctx, id)
	if err != nil {
		return money.Zero, err
	}
	if d.DeactivatedFrom != nil && !month.Before(*d.DeactivatedFrom) {
		return money.Zero, &engine.DefinitionInactiveError{DefinitionID: id, Month: month, From: *d.DeactivatedFrom}
	}
	entries, err := s.store.RateEntries(ctx, id)
	if err != nil {
		return money.Zero, err
	}
	return engine.NewRateSchedule(id, entries).Resolve(month)
}

// History returns the definition's entries oldest first, flagging the one
// in effect for now. The sequence reads from a snapshot taken by this call.
func (s *Service) History(ctx context.Context, id engine.DefinitionID, now money.Month) (iter.Seq[engine.HistoryEntry], error) {
	sched, err := s.Schedule(ctx, id)
	if err != nil {
		return nil, err
	}
	return sched.History(now), nil
}

// =============================================================================
// VARIABLE EXPENSES
// =============================================================================

// NewVariable describes a one-off expense.
type NewVariable struct {
	SalonID     engine.SalonID
	Category    string
	Amount      money.Money
	Date        time.Time
	Description string
}

func (s *Service) RecordVariable(ctx context.Context, in NewVariable) (engine.VariableExpenseEntry, error) {
	if !in.Amount.IsPositive() {
		return engine.VariableExpenseEntry{}, fmt.Errorf("%w: expense must be positive, got %s", engine.ErrInvalidAmount, in.Amount)
	}
	if in.SalonID == "" || strings.TrimSpace(in.Category) == "" || in.Date.IsZero() {
		return engine.VariableExpenseEntry{}, fmt.Errorf("%w: salon, category and date are required", engine.ErrInvalidRow)
	}
	e := engine.VariableExpenseEntry{
		ID:          engine.ExpenseID(uuid.NewString()),
		SalonID:     in.SalonID,
		Category:    strings.TrimSpace(in.Category),
		Amount:      in.Amount,
		Date:        time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), 0, 0, 0, 0, time.UTC),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateVariableExpense(ctx, e); err != nil {
		return engine.VariableExpenseEntry{}, err
	}
	s.log.Info("variable expense recorded", "expense_id", e.ID, "salon_id", e.SalonID, "amount", e.Amount.String())
	return e, nil
}

func (s *Service) DeleteVariable(ctx context.Context, id engine.ExpenseID) error {
	if err := s.store.DeleteVariableExpense(ctx, id); err != nil {
		return err
	}
	s.log.Info("variable expense deleted", "expense_id", id)
	return nil
}

func (s *Service) ListVariable(ctx context.Context, filter engine.SalonFilter, month money.Month) ([]engine.VariableExpenseEntry, error) {
	return s.store.ListVariableExpenses(ctx, filter, month)
}

// =============================================================================
// MONTHLY TOTALS
// =============================================================================

// Breakdown loads everything needed for month and aggregates it.
func (s *Service) Breakdown(ctx context.Context, filter engine.SalonFilter, month money.Month) (engine.MonthTotal, error) {
	if !month.Valid() {
		return engine.MonthTotal{}, fmt.Errorf("%w: %v", engine.ErrInvalidMonth, month)
	}
	defs, err := s.store.ListDefinitions(ctx, filter)
	if err != nil {
		return engine.MonthTotal{}, err
	}
	entries, err := s.store.RateEntriesFor(ctx, filter)
	if err != nil {
		return engine.MonthTotal{}, err
	}
	variable, err := s.store.ListVariableExpenses(ctx, filter, month)
	if err != nil {
		return engine.MonthTotal{}, err
	}

	scheds := make([]engine.DefinitionSchedule, len(defs))
	for i, d := range defs {
		scheds[i] = engine.DefinitionSchedule{Definition: d, Schedule: engine.NewRateSchedule(d.ID, entries[d.ID])}
	}
	return engine.AggregateMonth(scheds, variable, filter, month)
}

// TotalForMonth is Breakdown(...).Total.
func (s *Service) TotalForMonth(ctx context.Context, filter engine.SalonFilter, month money.Month) (money.Money, error) {
	b, err := s.Breakdown(ctx, filter, month)
	if err != nil {
		return money.Zero, err
	}
	return b.Total, nil
}

// IsNotYetApplicable reports whether err means "no rate yet" rather than a failure.
func IsNotYetApplicable(err error) bool {
	return errors.Is(err, engine.ErrNoApplicableRate)
}
