/*
schedule.go - Temporal rate schedule for recurring expenses

PURPOSE:
  A fixed expense (rent, insurance, software subscription) costs a possibly
  changing amount every month. The schedule records each change as an entry
  effective from a month onward. Resolving a month picks the latest entry
  that had started by then, so raising the rent in March never changes what
  January and February cost.

INVARIANTS:
  1. INSERT-ONLY: entries are appended, never edited or deleted
  2. FORWARD-MOVING: a new entry's EffectiveFrom is strictly after every
     existing entry's EffectiveFrom
  3. NOT-YET-APPLICABLE: months before the first entry have no rate at all
     (ErrNoApplicableRate), which is different from a rate of zero

EXAMPLE:
  entries: 100 from 2025-01, 150 from 2025-03
    Resolve(2025-02) = 100
    Resolve(2025-03) = 150
    Resolve(2024-12) -> ErrNoApplicableRate

SEE ALSO:
  - aggregate.go: sums resolved rates for a month
  - expenses/service.go: persisted operations (SetAmount, Resolve, History)
*/
package engine

import (
	"fmt"
	"iter"
	"sort"

	"github.com/salonops/finance-engine/money"
)

// =============================================================================
// RATE SCHEDULE - ordered, append-only history of one definition
// =============================================================================

// RateSchedule is an immutable snapshot of a definition's entries, ordered
// oldest first.
type RateSchedule struct {
	definitionID DefinitionID
	entries      []RateScheduleEntry
}

// NewRateSchedule sorts a copy of entries by EffectiveFrom.
func NewRateSchedule(definitionID DefinitionID, entries []RateScheduleEntry) RateSchedule {
	sorted := make([]RateScheduleEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveFrom.Before(sorted[j].EffectiveFrom)
	})
	return RateSchedule{definitionID: definitionID, entries: sorted}
}

func (s RateSchedule) DefinitionID() DefinitionID { return s.definitionID }

func (s RateSchedule) Len() int { return len(s.entries) }

// Entries returns a copy of the entries, oldest first.
func (s RateSchedule) Entries() []RateScheduleEntry {
	out := make([]RateScheduleEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Latest returns the most recent entry.
func (s RateSchedule) Latest() (RateScheduleEntry, bool) {
	if len(s.entries) == 0 {
		return RateScheduleEntry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// CheckAppend validates a prospective entry without changing the schedule.
// Zero is a valid amount (a suspended cost); negative amounts are not.
func (s RateSchedule) CheckAppend(amount money.Money, effectiveFrom money.Month) error {
	if !effectiveFrom.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidMonth, effectiveFrom)
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: rate %s is negative", ErrInvalidAmount, amount)
	}
	if latest, ok := s.Latest(); ok && !effectiveFrom.After(latest.EffectiveFrom) {
		return &EffectiveDateError{
			DefinitionID: s.definitionID,
			Requested:    effectiveFrom,
			Latest:       latest.EffectiveFrom,
		}
	}
	return nil
}

// Append returns a new schedule with entry added. The receiver is unchanged.
func (s RateSchedule) Append(entry RateScheduleEntry) (RateSchedule, error) {
	if err := s.CheckAppend(entry.Amount, entry.EffectiveFrom); err != nil {
		return s, err
	}
	entry.DefinitionID = s.definitionID
	next := make([]RateScheduleEntry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	return RateSchedule{definitionID: s.definitionID, entries: append(next, entry)}, nil
}

// EntryAt returns the entry in effect for month.
func (s RateSchedule) EntryAt(month money.Month) (RateScheduleEntry, error) {
	// First entry starting strictly after month; the one before it applies.
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].EffectiveFrom.After(month)
	})
	if i == 0 {
		err := &NoApplicableRateError{DefinitionID: s.definitionID, Month: month}
		if len(s.entries) > 0 {
			err.FirstEffective = s.entries[0].EffectiveFrom
		}
		return RateScheduleEntry{}, err
	}
	return s.entries[i-1], nil
}

// Resolve returns the amount in effect for month, or ErrNoApplicableRate
// when month precedes the first entry.
func (s RateSchedule) Resolve(month money.Month) (money.Money, error) {
	e, err := s.EntryAt(month)
	if err != nil {
		return money.Zero, err
	}
	return e.Amount, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// HistoryEntry annotates an entry for display.
type HistoryEntry struct {
	Entry RateScheduleEntry

	// Until is the last month this entry applied; nil while still open.
	Until *money.Month

	// Current marks the entry in effect for the "now" month.
	Current bool
}

// History yields entries oldest first. The sequence is lazy and can be
// ranged over any number of times.
func (s RateSchedule) History(now money.Month) iter.Seq[HistoryEntry] {
	entries := s.Entries()
	return func(yield func(HistoryEntry) bool) {
		for i, e := range entries {
			h := HistoryEntry{Entry: e}
			started := !e.EffectiveFrom.After(now)
			if i+1 < len(entries) {
				until := entries[i+1].EffectiveFrom.AddMonths(-1)
				h.Until = &until
				h.Current = started && now.Before(entries[i+1].EffectiveFrom)
			} else {
				h.Current = started
			}
			if !yield(h) {
				return
			}
		}
	}
}
