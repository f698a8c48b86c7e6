package dispatch

import (
	"context"
	"testing"
	"time"

	"gastos/internal/chart"
	"gastos/internal/core"
	"gastos/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSnapshotStore struct {
	snaps map[string]chart.Snapshot
}

func (m *memSnapshotStore) Load(_ context.Context, owner string) (chart.Snapshot, bool, error) {
	snap, ok := m.snaps[owner]
	return snap, ok, nil
}

func (m *memSnapshotStore) Save(_ context.Context, snap chart.Snapshot) error {
	m.snaps[snap.Owner] = snap
	return nil
}

func insertTx(t *testing.T, mem *store.MemoryStore, owner, title string, cents int64, occurredAt time.Time) {
	t.Helper()
	_, err := mem.Insert(context.Background(), store.CollTransactions, store.EncodeTransaction(core.Transaction{
		Owner:      owner,
		Title:      title,
		Amount:     core.Money{Cents: cents},
		Category:   core.Food,
		OccurredAt: occurredAt,
		RecordedAt: occurredAt,
	}))
	require.NoError(t, err)
}

func TestDispatcher_ForwardsSnapshots(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	tracker := chart.NewTracker(&memSnapshotStore{snaps: map[string]chart.Snapshot{}})

	now := time.Now()
	insertTx(t, mem, "alice", "existing", 1000, now)

	d := New(mem, tracker, "alice")
	var snapshots [][]core.Transaction
	d.OnTransactions(func(txs []core.Transaction) {
		snapshots = append(snapshots, txs)
	})

	require.NoError(t, d.Start(ctx))
	defer d.Close()

	// Initial snapshot delivered at start.
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0], 1)
	assert.Equal(t, "existing", snapshots[0][0].Title)

	insertTx(t, mem, "alice", "new", 2000, now)
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1], 2)
}

func TestDispatcher_PrimingDoesNotFeedChart(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	tracker := chart.NewTracker(&memSnapshotStore{snaps: map[string]chart.Snapshot{}})

	now := time.Now()
	insertTx(t, mem, "alice", "pre-existing", 5000, now)

	d := New(mem, tracker, "alice")
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	snap, err := tracker.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, [7]int64{}, snap.Daily, "login must not re-accumulate persisted expenses")
}

func TestDispatcher_AccumulatesNewTransactionsOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	tracker := chart.NewTracker(&memSnapshotStore{snaps: map[string]chart.Snapshot{}})

	d := New(mem, tracker, "alice")
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	now := time.Now()
	insertTx(t, mem, "alice", "lunch", 20000, now)

	snap, err := tracker.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), snap.Daily[int(now.Weekday())])

	// Redeliver an unchanged snapshot: an empty patch still notifies
	// subscribers, and the bucket must not move.
	recs, err := mem.QueryByField(ctx, store.CollTransactions, store.FieldOwner, "alice")
	require.NoError(t, err)
	require.NoError(t, mem.Update(ctx, store.CollTransactions, store.RecordID(recs[0]), store.Record{}))

	snap, err = tracker.Snapshot(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(20000), snap.Daily[int(now.Weekday())], "redelivery double-counted")
}

func TestDispatcher_IgnoresOtherOwners(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	tracker := chart.NewTracker(&memSnapshotStore{snaps: map[string]chart.Snapshot{}})

	d := New(mem, tracker, "alice")
	notified := 0
	d.OnTransactions(func([]core.Transaction) { notified++ })
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	require.Equal(t, 1, notified) // initial snapshot

	insertTx(t, mem, "bob", "not alice", 100, time.Now())
	assert.Equal(t, 1, notified)
}

func TestDispatcher_CloseStopsNotifications(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	tracker := chart.NewTracker(&memSnapshotStore{snaps: map[string]chart.Snapshot{}})

	d := New(mem, tracker, "alice")
	notified := 0
	d.OnTransactions(func([]core.Transaction) { notified++ })
	require.NoError(t, d.Start(ctx))

	d.Close()
	insertTx(t, mem, "alice", "after close", 100, time.Now())
	assert.Equal(t, 1, notified, "callback fired after teardown")
}

func TestDispatcher_ForwardsDeposits(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	tracker := chart.NewTracker(&memSnapshotStore{snaps: map[string]chart.Snapshot{}})

	d := New(mem, tracker, "alice")
	var latest []core.Deposit
	d.OnDeposits(func(deps []core.Deposit) { latest = deps })
	require.NoError(t, d.Start(ctx))
	defer d.Close()

	_, err := mem.Insert(ctx, store.CollDeposits, store.EncodeDeposit(core.Deposit{
		Owner:      "alice",
		Amount:     core.Money{Cents: 50000},
		Sign:       core.SignCredit,
		RecordedAt: time.Now(),
	}))
	require.NoError(t, err)

	require.Len(t, latest, 1)
	assert.Equal(t, int64(50000), latest[0].Amount.Cents)
}
