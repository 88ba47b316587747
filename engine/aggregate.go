/*
aggregate.go - Monthly expense totals

PURPOSE:
  Produces the total cost of running the salon(s) for one month:
    fixed    = sum of each active definition's resolved rate for the month
    variable = sum of variable expenses dated inside the month
    total    = fixed + variable

NOT-YET-APPLICABLE DEFINITIONS:
  A definition whose first rate starts after the month contributes nothing.
  It still appears in FixedLines with Applicable=false and in
  PendingDefinitions, so callers can show it as "not yet started" instead of
  a silent zero.

DETERMINISM:
  Lines are sorted by category, name, then id. Sums are exact decimal adds,
  so the total does not depend on the order definitions were loaded in.

SEE ALSO:
  - schedule.go: per-definition resolution
  - expenses/service.go: loads definitions and calls AggregateMonth
*/
package engine

import (
	"errors"
	"sort"

	"github.com/salonops/finance-engine/money"
)

// DefinitionSchedule bundles a definition with its loaded schedule.
type DefinitionSchedule struct {
	Definition FixedExpenseDefinition
	Schedule   RateSchedule
}

// FixedLine is one definition's contribution to a month.
type FixedLine struct {
	DefinitionID  DefinitionID
	SalonID       SalonID
	Category      string
	Name          string
	Amount        money.Money
	Applicable    bool
	EffectiveFrom money.Month
}

// MonthTotal is the expense breakdown for one month.
type MonthTotal struct {
	Month    money.Month
	Fixed    money.Money
	Variable money.Money
	Total    money.Money

	FixedLines    []FixedLine
	VariableLines []VariableExpenseEntry

	// ByCategory sums fixed and variable amounts per category.
	ByCategory map[string]money.Money

	// PendingDefinitions were active but had no rate yet for Month.
	PendingDefinitions []DefinitionID
}

// AggregateMonth totals fixed and variable expenses for month. Definitions
// inactive in month and entries outside filter or month are ignored. The
// only error returned is a schedule failure other than not-yet-applicable.
func AggregateMonth(defs []DefinitionSchedule, variable []VariableExpenseEntry, filter SalonFilter, month money.Month) (MonthTotal, error) {
	out := MonthTotal{Month: month, ByCategory: map[string]money.Money{}}

	for _, ds := range defs {
		d := ds.Definition
		if !filter.Matches(d.SalonID) || !d.ActiveIn(month) {
			continue
		}
		line := FixedLine{
			DefinitionID: d.ID,
			SalonID:      d.SalonID,
			Category:     d.Category,
			Name:         d.Name,
		}
		entry, err := ds.Schedule.EntryAt(month)
		switch {
		case errors.Is(err, ErrNoApplicableRate):
			out.PendingDefinitions = append(out.PendingDefinitions, d.ID)
		case err != nil:
			return MonthTotal{}, err
		default:
			line.Amount = entry.Amount
			line.Applicable = true
			line.EffectiveFrom = entry.EffectiveFrom
			out.Fixed = out.Fixed.Add(entry.Amount)
			out.ByCategory[d.Category] = out.ByCategory[d.Category].Add(entry.Amount)
		}
		out.FixedLines = append(out.FixedLines, line)
	}

	for _, v := range variable {
		if !filter.Matches(v.SalonID) || !month.Contains(v.Date) {
			continue
		}
		out.VariableLines = append(out.VariableLines, v)
		out.Variable = out.Variable.Add(v.Amount)
		out.ByCategory[v.Category] = out.ByCategory[v.Category].Add(v.Amount)
	}

	out.Total = out.Fixed.Add(out.Variable)

	sort.SliceStable(out.FixedLines, func(i, j int) bool {
		a, b := out.FixedLines[i], out.FixedLines[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.DefinitionID < b.DefinitionID
	})
	sort.SliceStable(out.VariableLines, func(i, j int) bool {
		a, b := out.VariableLines[i], out.VariableLines[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.ID < b.ID
	})
	sort.Slice(out.PendingDefinitions, func(i, j int) bool {
		return out.PendingDefinitions[i] < out.PendingDefinitions[j]
	})
	return out, nil
}
