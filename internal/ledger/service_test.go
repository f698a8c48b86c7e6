package ledger

import (
	"context"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	return NewService(mem, nil), mem
}

func pesos(v int64) core.Money {
	return core.Money{Cents: v * 100}
}

func TestGetBalance_ZeroWithoutRecord(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, bal.Cents)
}

func TestApplyDeposit(t *testing.T) {
	ctx := context.Background()
	svc, mem := newTestService()

	dep, err := svc.ApplyDeposit(ctx, "alice", pesos(500))
	require.NoError(t, err)
	assert.NotEmpty(t, dep.ID)
	assert.Equal(t, core.SignCredit, dep.Sign)

	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pesos(500), bal)

	recs, err := mem.QueryByField(ctx, store.CollDeposits, store.FieldOwner, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(50000), recs[0][store.FieldAmount])
}

func TestApplyDeposit_RejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.ApplyDeposit(ctx, "alice", core.Money{})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = svc.ApplyDeposit(ctx, "alice", core.Money{Cents: -100})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestApplyExpense_Scenario(t *testing.T) {
	// alice deposits 500, spends 200 on Lunch (Food, today):
	// balance 300, one transaction, one mirrored debit.
	ctx := context.Background()
	svc, mem := newTestService()

	_, err := svc.ApplyDeposit(ctx, "alice", pesos(500))
	require.NoError(t, err)

	tx, err := svc.ApplyExpense(ctx, "alice", pesos(200), "Lunch", core.Food, time.Now())
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)

	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pesos(300), bal)

	txRecs, err := mem.QueryByField(ctx, store.CollTransactions, store.FieldOwner, "alice")
	require.NoError(t, err)
	require.Len(t, txRecs, 1)
	assert.Equal(t, "Lunch", txRecs[0][store.FieldTitle])

	depRecs, err := mem.QueryByField(ctx, store.CollDeposits, store.FieldOwner, "alice")
	require.NoError(t, err)
	require.Len(t, depRecs, 2)
	// Mirrored debit carries the negated amount and debit sign.
	mirror := depRecs[1]
	assert.Equal(t, int64(-20000), mirror[store.FieldAmount])
	assert.Equal(t, core.SignDebit, mirror[store.FieldSign])
}

func TestApplyExpense_InsufficientFunds(t *testing.T) {
	// bob holds 50 and attempts to spend 100: the call fails and
	// nothing is written.
	ctx := context.Background()
	svc, mem := newTestService()

	_, err := svc.ApplyDeposit(ctx, "bob", pesos(50))
	require.NoError(t, err)

	_, err = svc.ApplyExpense(ctx, "bob", pesos(100), "Concert", core.Entertainment, time.Now())
	assert.ErrorIs(t, err, core.ErrInsufficientFunds)

	bal, err := svc.GetBalance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, pesos(50), bal)

	txRecs, err := mem.QueryByField(ctx, store.CollTransactions, store.FieldOwner, "bob")
	require.NoError(t, err)
	assert.Empty(t, txRecs)

	depRecs, err := mem.QueryByField(ctx, store.CollDeposits, store.FieldOwner, "bob")
	require.NoError(t, err)
	assert.Len(t, depRecs, 1, "only the original top-up should exist")
}

func TestApplyExpense_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.ApplyDeposit(ctx, "alice", pesos(100))
	require.NoError(t, err)

	_, err = svc.ApplyExpense(ctx, "alice", pesos(10), "", core.Food, time.Now())
	assert.ErrorIs(t, err, core.ErrEmptyTitle)

	_, err = svc.ApplyExpense(ctx, "alice", core.Money{Cents: -5}, "Snack", core.Food, time.Now())
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = svc.ApplyExpense(ctx, "alice", pesos(10), "Snack", "Groceries", time.Now())
	assert.ErrorIs(t, err, core.ErrUnknownCategory)

	// Nothing above should have touched the balance.
	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pesos(100), bal)
}

func TestBalance_SequenceInvariant(t *testing.T) {
	// For any accepted sequence of deposits and expenses, the balance
	// equals sum(deposits) - sum(expenses).
	ctx := context.Background()
	svc, _ := newTestService()

	steps := []struct {
		deposit bool
		amount  int64
	}{
		{true, 300}, {true, 120}, {false, 50}, {false, 99}, {true, 1}, {false, 272},
	}

	var want int64
	for _, step := range steps {
		if step.deposit {
			_, err := svc.ApplyDeposit(ctx, "alice", pesos(step.amount))
			require.NoError(t, err)
			want += step.amount
			continue
		}
		_, err := svc.ApplyExpense(ctx, "alice", pesos(step.amount), "spend", core.Other, time.Now())
		require.NoError(t, err)
		want -= step.amount
	}

	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pesos(want), bal)
}

func TestApplyExpense_ConcurrentSameOwner(t *testing.T) {
	// Per-owner serialization: concurrent expenses must not lose updates
	// within one process.
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.ApplyDeposit(ctx, "alice", pesos(1000))
	require.NoError(t, err)

	const workers = 10
	done := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			_, err := svc.ApplyExpense(ctx, "alice", pesos(10), "tick", core.Other, time.Now())
			done <- err
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-done)
	}

	bal, err := svc.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, pesos(900), bal)
}
