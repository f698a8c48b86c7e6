// Package ledger maintains the authoritative wallet balance per owner and
// writes the transaction and deposit records that back it.
//
// The remote store offers no compare-and-swap, so the read-modify-write on
// a balance is serialized per owner inside this process. Concurrent
// writers on other devices can still race; that gap is documented and
// accepted, not detected.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/store"
)

// Service applies deposits and expenses against owner balances.
type Service struct {
	store  store.Store
	events *amqp.Client // optional, nil disables event publishing
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(st store.Store, events *amqp.Client) *Service {
	return &Service{
		store:  st,
		events: events,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// GetBalance reads the current balance, returning zero when no record
// exists yet (balances are lazily initialized at signup).
func (s *Service) GetBalance(ctx context.Context, owner string) (core.Money, error) {
	if strings.TrimSpace(owner) == "" {
		return core.Money{}, core.ErrEmptyOwner
	}
	rec, err := s.store.Get(ctx, store.CollBalances, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Money{}, nil
		}
		return core.Money{}, fmt.Errorf("read balance: %w", err)
	}
	bal, err := store.DecodeBalance(owner, rec)
	if err != nil {
		return core.Money{}, fmt.Errorf("decode balance: %w", err)
	}
	return bal.Amount, nil
}

// ApplyDeposit credits the wallet and writes a deposit record with a
// positive amount. There is no upper bound.
func (s *Service) ApplyDeposit(ctx context.Context, owner string, amount core.Money) (core.Deposit, error) {
	if strings.TrimSpace(owner) == "" {
		return core.Deposit{}, core.ErrEmptyOwner
	}
	if err := amount.Validate(); err != nil {
		return core.Deposit{}, err
	}

	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	balance, err := s.GetBalance(ctx, owner)
	if err != nil {
		return core.Deposit{}, err
	}
	if err := s.writeBalance(ctx, owner, balance.Add(amount)); err != nil {
		return core.Deposit{}, err
	}

	dep := core.Deposit{
		Owner:      owner,
		Amount:     amount,
		Sign:       core.SignCredit,
		RecordedAt: s.now(),
	}
	id, err := s.store.Insert(ctx, store.CollDeposits, store.EncodeDeposit(dep))
	if err != nil {
		return core.Deposit{}, fmt.Errorf("write deposit: %w", err)
	}
	dep.ID = id

	slog.InfoContext(ctx, "Deposit applied",
		"owner", owner,
		"amount_cents", amount.Cents,
		"record_id", id)

	s.publishEvent(ctx, amqp.EventDepositApplied, owner, id, amount.Cents)
	return dep, nil
}

// ApplyExpense debits the wallet and writes the transaction plus a
// mirrored negative deposit for the audit trail. It fails with
// ErrInsufficientFunds before any write when the balance cannot cover the
// amount.
func (s *Service) ApplyExpense(ctx context.Context, owner string, amount core.Money, title string, category core.Category, occurredAt time.Time) (core.Transaction, error) {
	tx := core.Transaction{
		Owner:      owner,
		Title:      title,
		Amount:     amount,
		Category:   category,
		OccurredAt: occurredAt,
		RecordedAt: s.now(),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	lock := s.ownerLock(owner)
	lock.Lock()
	defer lock.Unlock()

	balance, err := s.GetBalance(ctx, owner)
	if err != nil {
		return core.Transaction{}, err
	}
	if balance.LessThan(amount) {
		return core.Transaction{}, core.ErrInsufficientFunds
	}

	if err := s.writeBalance(ctx, owner, balance.Sub(amount)); err != nil {
		return core.Transaction{}, err
	}

	id, err := s.store.Insert(ctx, store.CollTransactions, store.EncodeTransaction(tx))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("write transaction: %w", err)
	}
	tx.ID = id

	mirror := core.Deposit{
		Owner:      owner,
		Amount:     amount.Neg(),
		Sign:       core.SignDebit,
		RecordedAt: tx.RecordedAt,
	}
	if _, err := s.store.Insert(ctx, store.CollDeposits, store.EncodeDeposit(mirror)); err != nil {
		// The expense itself is committed; surface the partial write.
		return tx, fmt.Errorf("write mirrored debit: %w", err)
	}

	slog.InfoContext(ctx, "Expense recorded",
		"owner", owner,
		"title", title,
		"category", string(category),
		"amount_cents", amount.Cents,
		"record_id", id)

	s.publishEvent(ctx, amqp.EventExpenseRecorded, owner, id, -amount.Cents)
	return tx, nil
}

func (s *Service) writeBalance(ctx context.Context, owner string, amount core.Money) error {
	patch := store.EncodeBalance(core.Balance{Owner: owner, Amount: amount})
	if err := s.store.Update(ctx, store.CollBalances, owner, patch); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (s *Service) publishEvent(ctx context.Context, event, owner, recordID string, amountCents int64) {
	if s.events == nil {
		return
	}
	msg := amqp.NewLedgerEventMessage(event, owner, recordID, amountCents)
	if err := s.events.PublishLedgerEvent(ctx, msg); err != nil {
		// Event publishing is best effort; the ledger write already
		// succeeded.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"event", event,
			"owner", owner,
			"error", err)
	}
}

func (s *Service) ownerLock(owner string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[owner]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[owner] = lock
	}
	return lock
}
