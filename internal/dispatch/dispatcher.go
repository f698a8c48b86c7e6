// Package dispatch fans remote-store change notifications out to the
// aggregation and chart layers.
//
// The store delivers no deltas, so every notification triggers a full
// re-query of the owner's collections. Consumers always receive the whole
// snapshot; only the chart tracker is fed incrementally, keyed by record
// id, so redelivered snapshots can never double-accumulate.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gastos/internal/chart"
	"gastos/internal/core"
	"gastos/internal/store"
)

type Dispatcher struct {
	store   store.Store
	tracker *chart.Tracker
	owner   string

	mu           sync.Mutex
	seen         map[string]struct{}
	txConsumers  []func([]core.Transaction)
	depConsumers []func([]core.Deposit)
	cancels      []store.CancelFunc
	started      bool
}

func New(st store.Store, tracker *chart.Tracker, owner string) *Dispatcher {
	return &Dispatcher{
		store:   st,
		tracker: tracker,
		owner:   owner,
		seen:    make(map[string]struct{}),
	}
}

// OnTransactions registers a consumer for the full transaction snapshot.
// Must be called before Start.
func (d *Dispatcher) OnTransactions(fn func([]core.Transaction)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txConsumers = append(d.txConsumers, fn)
}

// OnDeposits registers a consumer for the full deposit snapshot.
// Must be called before Start.
func (d *Dispatcher) OnDeposits(fn func([]core.Deposit)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.depConsumers = append(d.depConsumers, fn)
}

// Start primes the seen set from the current snapshot, forwards it to
// consumers, and subscribes to both collections. Priming does not feed
// the chart: expenses existing at login are already in the persisted
// snapshot, and accumulating them again would double-count.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already started")
	}
	d.started = true
	d.mu.Unlock()

	if err := d.refreshTransactions(ctx, false); err != nil {
		return err
	}
	if err := d.refreshDeposits(ctx); err != nil {
		return err
	}

	cancelTx, err := d.store.Subscribe(ctx, store.CollTransactions, store.FieldOwner, d.owner, func() {
		if err := d.refreshTransactions(ctx, true); err != nil {
			slog.ErrorContext(ctx, "Transaction refresh failed", "owner", d.owner, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe transactions: %w", err)
	}

	cancelDep, err := d.store.Subscribe(ctx, store.CollDeposits, store.FieldOwner, d.owner, func() {
		if err := d.refreshDeposits(ctx); err != nil {
			slog.ErrorContext(ctx, "Deposit refresh failed", "owner", d.owner, "error", err)
		}
	})
	if err != nil {
		cancelTx()
		return fmt.Errorf("subscribe deposits: %w", err)
	}

	d.mu.Lock()
	d.cancels = append(d.cancels, cancelTx, cancelDep)
	d.mu.Unlock()
	return nil
}

// Close releases all subscriptions. Stale callbacks after teardown are
// dropped by the store, not by us.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	cancels := d.cancels
	d.cancels = nil
	d.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (d *Dispatcher) refreshTransactions(ctx context.Context, accumulate bool) error {
	recs, err := d.store.QueryByField(ctx, store.CollTransactions, store.FieldOwner, d.owner)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}

	txs := make([]core.Transaction, 0, len(recs))
	for _, rec := range recs {
		tx, err := store.DecodeTransaction(store.RecordID(rec), rec)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable transaction", "owner", d.owner, "error", err)
			continue
		}
		txs = append(txs, tx)
	}

	d.mu.Lock()
	var fresh []core.Transaction
	for _, tx := range txs {
		if _, ok := d.seen[tx.ID]; ok {
			continue
		}
		d.seen[tx.ID] = struct{}{}
		fresh = append(fresh, tx)
	}
	consumers := d.txConsumers
	d.mu.Unlock()

	if accumulate {
		for _, tx := range fresh {
			if err := d.tracker.Accumulate(ctx, d.owner, tx.Amount, tx.OccurredAt); err != nil {
				slog.ErrorContext(ctx, "Chart accumulation failed",
					"owner", d.owner,
					"record_id", tx.ID,
					"error", err)
			}
		}
	}

	for _, fn := range consumers {
		fn(txs)
	}
	return nil
}

func (d *Dispatcher) refreshDeposits(ctx context.Context) error {
	recs, err := d.store.QueryByField(ctx, store.CollDeposits, store.FieldOwner, d.owner)
	if err != nil {
		return fmt.Errorf("query deposits: %w", err)
	}

	deps := make([]core.Deposit, 0, len(recs))
	for _, rec := range recs {
		dep, err := store.DecodeDeposit(store.RecordID(rec), rec)
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable deposit", "owner", d.owner, "error", err)
			continue
		}
		deps = append(deps, dep)
	}

	d.mu.Lock()
	consumers := d.depConsumers
	d.mu.Unlock()

	for _, fn := range consumers {
		fn(deps)
	}
	return nil
}
