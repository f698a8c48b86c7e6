// Package store adapts the remote document store behind a small set of
// abstract operations. It owns no business logic; the engine talks to the
// store exclusively through the Store interface so the same code runs
// against MongoDB in production and the in-process store in tests.
package store

import (
	"context"
	"errors"
)

// Collection names, normalized across backends.
const (
	CollTransactions = "transactions"
	CollDeposits     = "deposits"
	CollBalances     = "balances"
	CollUsers        = "users"
)

// Field names shared by all collections.
const (
	FieldID         = "_id"
	FieldOwner      = "owner"
	FieldTitle      = "title"
	FieldAmount     = "amount"
	FieldCategory   = "category"
	FieldOccurredAt = "occurredAt"
	FieldRecordedAt = "recordedAt"
	FieldSign       = "sign"
	FieldUsername   = "username"
	FieldCreatedAt  = "createdAt"
)

var (
	// ErrNotFound is returned by Get when no document matches the key.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable wraps transport and backend failures. Callers may
	// retry; the engine itself never does.
	ErrUnavailable = errors.New("store unavailable")
)

// Record is a schemaless document as stored in a collection. Values are
// restricted to strings, int64 and time.Time by the codecs in records.go.
type Record map[string]any

// CancelFunc releases a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the abstract remote document store.
//
// Subscription callbacks carry no payload: the store delivers full
// snapshots, so observers re-query the collection on every notification.
// Callbacks for one subscription are delivered serially; callbacks across
// subscriptions may interleave.
type Store interface {
	// Insert adds a record and returns its generated id.
	Insert(ctx context.Context, collection string, rec Record) (string, error)
	// Update upserts the record stored under key, merging patch fields.
	Update(ctx context.Context, collection, key string, patch Record) error
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Record, error)
	// QueryByField returns all records whose field equals value, in
	// insertion order.
	QueryByField(ctx context.Context, collection, field string, value any) ([]Record, error)
	// Subscribe registers onChange to fire after every mutation of a
	// record whose field equals value.
	Subscribe(ctx context.Context, collection, field string, value any, onChange func()) (CancelFunc, error)
}
