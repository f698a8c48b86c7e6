package aggregate

import (
	"testing"
	"time"

	"gastos/internal/core"
)

// Wednesday, 2024-03-13 15:00 UTC. The containing week runs Sunday
// 2024-03-10 through Saturday 2024-03-16.
var wednesday = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func tx(title string, cents int64, cat core.Category, occurredAt time.Time) core.Transaction {
	return core.Transaction{
		Owner:      "alice",
		Title:      title,
		Amount:     core.Money{Cents: cents},
		Category:   cat,
		OccurredAt: occurredAt,
		RecordedAt: wednesday,
	}
}

func TestRecompute_Windows(t *testing.T) {
	txs := []core.Transaction{
		tx("today", 10000, core.Food, wednesday),
		tx("eight days ago", 20000, core.Food, wednesday.AddDate(0, 0, -8)),
		tx("last month", 40000, core.Travel, wednesday.AddDate(0, -1, 0)),
		tx("saturday this week", 80000, core.Other, time.Date(2024, 3, 16, 23, 59, 0, 0, time.UTC)),
	}

	tests := []struct {
		window Window
		want   int64
	}{
		{AllTime, 150000},
		{ThisMonth, 110000},
		{ThisWeek, 90000},
	}
	for _, tt := range tests {
		if got := Recompute(txs, tt.window, wednesday); got.Cents != tt.want {
			t.Errorf("Recompute(%s) = %d, want %d", tt.window, got.Cents, tt.want)
		}
	}
}

func TestRecompute_ThisWeekExcludesEightDaysAgo(t *testing.T) {
	txs := []core.Transaction{
		tx("today", 100, core.Food, wednesday),
		tx("eight days back", 200, core.Food, wednesday.AddDate(0, 0, -8)),
	}
	if got := Recompute(txs, ThisWeek, wednesday); got.Cents != 100 {
		t.Fatalf("expected only today's amount, got %d", got.Cents)
	}
}

func TestByCategory_AllCategoriesPresent(t *testing.T) {
	txs := []core.Transaction{
		tx("lunch", 20000, core.Food, wednesday),
		tx("more lunch", 5000, core.Food, wednesday),
		tx("jacket", 30000, core.Clothing, wednesday),
		tx("old month", 9999, core.Food, wednesday.AddDate(0, -1, 0)),
	}

	totals := ByCategory(txs, time.March, 2024)
	if len(totals) != 6 {
		t.Fatalf("expected 6 categories, got %d", len(totals))
	}
	if totals[core.Food].Cents != 25000 {
		t.Errorf("Food = %d, want 25000", totals[core.Food].Cents)
	}
	if totals[core.Clothing].Cents != 30000 {
		t.Errorf("Clothing = %d, want 30000", totals[core.Clothing].Cents)
	}
	for _, c := range []core.Category{core.Entertainment, core.Shopping, core.Travel, core.Other} {
		if totals[c].Cents != 0 {
			t.Errorf("%s = %d, want 0", c, totals[c].Cents)
		}
	}
}

func TestSortedByRecency(t *testing.T) {
	same := wednesday.Add(-time.Hour)
	txs := []core.Transaction{
		tx("oldest", 1, core.Food, wednesday.AddDate(0, 0, -3)),
		tx("tied-a", 2, core.Food, same),
		tx("tied-b", 3, core.Food, same),
		tx("newest", 4, core.Food, wednesday),
	}

	got := SortedByRecency(txs)
	titles := []string{got[0].Title, got[1].Title, got[2].Title, got[3].Title}
	want := []string{"newest", "tied-a", "tied-b", "oldest"}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("order = %v, want %v", titles, want)
		}
	}
	if txs[0].Title != "oldest" {
		t.Error("input slice was reordered")
	}
}

func TestTotalDeposited_IgnoresMirroredDebits(t *testing.T) {
	deps := []core.Deposit{
		{Owner: "alice", Amount: core.Money{Cents: 50000}, Sign: core.SignCredit},
		{Owner: "alice", Amount: core.Money{Cents: -20000}, Sign: core.SignDebit},
		{Owner: "alice", Amount: core.Money{Cents: 10000}, Sign: core.SignCredit},
	}
	if got := TotalDeposited(deps); got.Cents != 60000 {
		t.Fatalf("TotalDeposited = %d, want 60000", got.Cents)
	}
}

func TestWeekBounds(t *testing.T) {
	start, end := WeekBounds(wednesday)
	wantStart := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) || !end.Equal(wantEnd) {
		t.Fatalf("WeekBounds = [%v, %v), want [%v, %v)", start, end, wantStart, wantEnd)
	}

	// A Sunday is the start of its own week.
	sunday := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	start, _ = WeekBounds(sunday)
	if !start.Equal(wantStart) {
		t.Fatalf("WeekBounds(sunday) start = %v, want %v", start, wantStart)
	}
}
