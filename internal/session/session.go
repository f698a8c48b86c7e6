// Package session holds the per-owner engine state. A Session is built at
// login, owns the live subscriptions feeding that owner's aggregation
// snapshot, and is torn down at logout so no stale callback can mutate
// state afterwards.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gastos/internal/chart"
	"gastos/internal/core"
	"gastos/internal/dispatch"
	"gastos/internal/ledger"
	"gastos/internal/store"
)

// Manager creates and tracks sessions, one per signed-in owner.
type Manager struct {
	store   store.Store
	ledger  *ledger.Service
	tracker *chart.Tracker
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(st store.Store, led *ledger.Service, tracker *chart.Tracker) *Manager {
	return &Manager{
		store:    st,
		ledger:   led,
		tracker:  tracker,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Signup registers a new owner. Usernames are case-sensitive, at most 20
// characters and unique; the balance record is initialized to zero.
func (m *Manager) Signup(ctx context.Context, username string) error {
	user := core.User{Username: username, CreatedAt: m.now()}
	if err := user.Validate(); err != nil {
		return err
	}

	existing, err := m.store.QueryByField(ctx, store.CollUsers, store.FieldUsername, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if len(existing) > 0 {
		return core.ErrUsernameTaken
	}

	if _, err := m.store.Insert(ctx, store.CollUsers, store.EncodeUser(user)); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	zero := store.EncodeBalance(core.Balance{Owner: username})
	if err := m.store.Update(ctx, store.CollBalances, username, zero); err != nil {
		return fmt.Errorf("init balance: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "owner", username)
	return nil
}

// Login builds the owner's session: chart catch-up for resets missed
// while nothing was running, then the dispatcher wiring. Logging in twice
// returns the existing session.
func (m *Manager) Login(ctx context.Context, username string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[username]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	users, err := m.store.QueryByField(ctx, store.CollUsers, store.FieldUsername, username)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if len(users) == 0 {
		return nil, core.ErrUnknownUser
	}

	if _, err := m.tracker.CatchUp(ctx, username, m.now()); err != nil {
		return nil, fmt.Errorf("chart catch-up: %w", err)
	}

	// The subscriptions must outlive this call: the caller's context is
	// request-scoped and gets canceled as soon as the login response is
	// written, which would tear the change streams down. The dispatcher
	// runs on the session's own lifetime context instead, canceled in
	// Close.
	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Owner:   username,
		ledger:  m.ledger,
		tracker: m.tracker,
		cancel:  cancel,
	}
	s.dispatcher = dispatch.New(m.store, m.tracker, username)
	s.dispatcher.OnTransactions(s.setTransactions)
	s.dispatcher.OnDeposits(s.setDeposits)
	if err := s.dispatcher.Start(sessionCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("start dispatcher: %w", err)
	}

	// Re-check under the lock: a concurrent login for the same owner may
	// have won the race while we were building. Keeping both would leave
	// two dispatchers feeding the chart and double-count every expense.
	m.mu.Lock()
	if existing, ok := m.sessions[username]; ok {
		m.mu.Unlock()
		s.Close()
		return existing, nil
	}
	m.sessions[username] = s
	m.mu.Unlock()

	slog.InfoContext(ctx, "Session opened", "owner", username)
	return s, nil
}

// Logout tears the owner's session down. Unknown owners are a no-op.
func (m *Manager) Logout(username string) {
	m.mu.Lock()
	s, ok := m.sessions[username]
	delete(m.sessions, username)
	m.mu.Unlock()
	if ok {
		s.Close()
		slog.Info("Session closed", "owner", username)
	}
}

// Session returns the active session for an owner, if any.
func (m *Manager) Session(username string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[username]
	return s, ok
}

// ActiveOwners lists owners with open sessions. The chart scheduler uses
// it to know whose buckets to reset.
func (m *Manager) ActiveOwners() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for owner := range m.sessions {
		out = append(out, owner)
	}
	return out
}

// Close tears down every open session.
func (m *Manager) Close() {
	for _, owner := range m.ActiveOwners() {
		m.Logout(owner)
	}
}

// Session is one owner's live view of the ledger: the latest transaction
// and deposit snapshots, plus handles to the shared services.
type Session struct {
	Owner string

	ledger     *ledger.Service
	tracker    *chart.Tracker
	dispatcher *dispatch.Dispatcher
	cancel     context.CancelFunc

	mu           sync.RWMutex
	transactions []core.Transaction
	deposits     []core.Deposit
}

// Transactions returns the latest snapshot, newest insertion last.
func (s *Session) Transactions() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func (s *Session) Deposits() []core.Deposit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Deposit, len(s.deposits))
	copy(out, s.deposits)
	return out
}

// Ledger exposes the shared balance ledger.
func (s *Session) Ledger() *ledger.Service {
	return s.ledger
}

// ChartSnapshot returns the owner's current weekly chart.
func (s *Session) ChartSnapshot(ctx context.Context) (chart.Snapshot, error) {
	return s.tracker.Snapshot(ctx, s.Owner)
}

// Close releases the session's subscriptions and its lifetime context.
func (s *Session) Close() {
	s.cancel()
	s.dispatcher.Close()
}

func (s *Session) setTransactions(txs []core.Transaction) {
	s.mu.Lock()
	s.transactions = txs
	s.mu.Unlock()
}

func (s *Session) setDeposits(deps []core.Deposit) {
	s.mu.Lock()
	s.deposits = deps
	s.mu.Unlock()
}
