// Package aggregate computes spending totals from transaction snapshots.
//
// Every function here is a pure function of its inputs; callers re-invoke
// them whenever a new snapshot arrives or the selected window changes.
// Month and week membership always key off OccurredAt, never RecordedAt.
package aggregate

import (
	"sort"
	"time"

	"gastos/internal/core"
)

const (
	ThisMonth Window = "month"
	ThisWeek  Window = "week"
	AllTime   Window = "all"
)

// Window selects the time range a total is computed over, relative to the
// wall clock at call time.
type Window string

func ParseWindow(s string) (Window, bool) {
	switch Window(s) {
	case ThisMonth, ThisWeek, AllTime:
		return Window(s), true
	}
	return "", false
}

// Recompute sums transaction amounts inside the window containing now.
func Recompute(txs []core.Transaction, w Window, now time.Time) core.Money {
	var total core.Money
	for _, tx := range txs {
		if inWindow(tx.OccurredAt, w, now) {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// ByCategory sums amounts per category for the given calendar month.
// Every fixed category appears in the result, zero when unmatched.
func ByCategory(txs []core.Transaction, month time.Month, year int) map[core.Category]core.Money {
	totals := make(map[core.Category]core.Money, len(core.Categories()))
	for _, c := range core.Categories() {
		totals[c] = core.Money{}
	}
	for _, tx := range txs {
		if tx.OccurredAt.Month() != month || tx.OccurredAt.Year() != year {
			continue
		}
		if cur, ok := totals[tx.Category]; ok {
			totals[tx.Category] = cur.Add(tx.Amount)
		}
	}
	return totals
}

// SortedByRecency orders transactions newest first by OccurredAt. The sort
// is stable so equal timestamps keep their store order. The input slice is
// not modified.
func SortedByRecency(txs []core.Transaction) []core.Transaction {
	out := make([]core.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out
}

// TotalDeposited sums positive deposit amounts only, excluding the
// mirrored debit entries written alongside expenses.
func TotalDeposited(deps []core.Deposit) core.Money {
	var total core.Money
	for _, d := range deps {
		if d.Amount.Cents > 0 {
			total = total.Add(d.Amount)
		}
	}
	return total
}

// WeekBounds returns the current calendar week containing now as a
// half-open interval [start, end): midnight Sunday through the following
// Sunday, in now's location.
func WeekBounds(now time.Time) (start, end time.Time) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start = midnight.AddDate(0, 0, -int(now.Weekday()))
	return start, start.AddDate(0, 0, 7)
}

// InCurrentWeek reports whether t falls on a date inside the Sunday to
// Saturday week containing now.
func InCurrentWeek(t, now time.Time) bool {
	start, end := WeekBounds(now)
	return !t.Before(start) && t.Before(end)
}

func inWindow(t time.Time, w Window, now time.Time) bool {
	switch w {
	case ThisMonth:
		return t.Month() == now.Month() && t.Year() == now.Year()
	case ThisWeek:
		return InCurrentWeek(t, now)
	default:
		return true
	}
}
