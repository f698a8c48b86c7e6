// Package chart maintains the weekly spending chart: seven day-of-week
// buckets per owner, persisted locally so they survive restarts between
// the scheduled Monday resets.
package chart

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gastos/internal/aggregate"
	"gastos/internal/core"
)

// WeekLabels are the bucket labels, indexed by time.Weekday.
var WeekLabels = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// resetGuard makes MaybeReset idempotent: a reset is skipped when the
// previous one happened less than this long ago, so repeated scheduler
// fires inside the same minute cannot double-reset.
const resetGuard = 23 * time.Hour

// Snapshot is one owner's chart state for the current reset epoch.
// Daily[i] holds cents spent on weekday i since LastResetAt.
type Snapshot struct {
	Owner       string
	Daily       [7]int64
	LastResetAt time.Time
}

// SnapshotStore persists snapshots outside the remote document store.
type SnapshotStore interface {
	// Load returns the stored snapshot and whether one existed.
	Load(ctx context.Context, owner string) (Snapshot, bool, error)
	Save(ctx context.Context, snap Snapshot) error
}

// Tracker owns the in-memory snapshots and writes every accepted change
// through to the SnapshotStore.
type Tracker struct {
	store SnapshotStore
	now   func() time.Time

	mu    sync.Mutex
	snaps map[string]Snapshot
}

func NewTracker(store SnapshotStore) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
		snaps: make(map[string]Snapshot),
	}
}

// Snapshot returns the owner's current chart, loading the persisted state
// on first access and falling back to all-zero buckets.
func (t *Tracker) Snapshot(ctx context.Context, owner string) (Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx, owner)
}

// Accumulate adds an expense amount to the bucket for occurredAt's
// weekday, provided occurredAt falls inside the calendar week containing
// real now. Backdated expenses from earlier weeks are ignored: the chart
// reflects the present week only.
func (t *Tracker) Accumulate(ctx context.Context, owner string, amount core.Money, occurredAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !aggregate.InCurrentWeek(occurredAt, t.now()) {
		return nil
	}

	snap, err := t.load(ctx, owner)
	if err != nil {
		return err
	}
	snap.Daily[int(occurredAt.Weekday())] += amount.Cents
	return t.save(ctx, snap)
}

// MaybeReset zeroes all buckets and stamps LastResetAt. It reports
// whether a reset happened: a call within resetGuard of the previous
// reset is a no-op.
func (t *Tracker) MaybeReset(ctx context.Context, owner string, now time.Time) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap, err := t.load(ctx, owner)
	if err != nil {
		return false, err
	}
	if !snap.LastResetAt.IsZero() && now.Sub(snap.LastResetAt) < resetGuard {
		return false, nil
	}

	snap.Daily = [7]int64{}
	snap.LastResetAt = now
	if err := t.save(ctx, snap); err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "Weekly chart reset", "owner", owner, "reset_at", now.Format(time.RFC3339))
	return true, nil
}

// CatchUp resets the chart if a reset boundary passed while the process
// was down: when LastResetAt predates the most recent Monday 08:01 at or
// before now, the missed reset is applied immediately.
func (t *Tracker) CatchUp(ctx context.Context, owner string, now time.Time) (bool, error) {
	t.mu.Lock()
	snap, err := t.load(ctx, owner)
	t.mu.Unlock()
	if err != nil {
		return false, err
	}
	if !snap.LastResetAt.Before(lastResetBoundary(now)) {
		return false, nil
	}
	return t.MaybeReset(ctx, owner, now)
}

// Owners lists every owner with a loaded snapshot.
func (t *Tracker) Owners() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.snaps))
	for owner := range t.snaps {
		out = append(out, owner)
	}
	return out
}

// load assumes t.mu is held.
func (t *Tracker) load(ctx context.Context, owner string) (Snapshot, error) {
	if snap, ok := t.snaps[owner]; ok {
		return snap, nil
	}
	snap, found, err := t.store.Load(ctx, owner)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load chart snapshot: %w", err)
	}
	if !found {
		snap = Snapshot{Owner: owner}
	}
	t.snaps[owner] = snap
	return snap, nil
}

// save assumes t.mu is held.
func (t *Tracker) save(ctx context.Context, snap Snapshot) error {
	if err := t.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("save chart snapshot: %w", err)
	}
	t.snaps[snap.Owner] = snap
	return nil
}

// lastResetBoundary returns the most recent Monday 08:01 at or before now,
// in now's location.
func lastResetBoundary(now time.Time) time.Time {
	daysSinceMonday := (int(now.Weekday()) - int(time.Monday) + 7) % 7
	boundary := time.Date(now.Year(), now.Month(), now.Day(), 8, 1, 0, 0, now.Location()).
		AddDate(0, 0, -daysSinceMonday)
	if boundary.After(now) {
		boundary = boundary.AddDate(0, 0, -7)
	}
	return boundary
}
