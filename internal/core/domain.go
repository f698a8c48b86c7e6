package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Entertainment Category = "Entertainment"
	Food          Category = "Food"
	Shopping      Category = "Shopping"
	Clothing      Category = "Clothing"
	Travel        Category = "Travel"
	Other         Category = "Other"
)

// MaxUsernameLen bounds the owner key used across all collections.
const MaxUsernameLen = 20

const (
	SignCredit = "+"
	SignDebit  = "-"
)

type (
	Category string

	Money struct {
		Cents int64
	}

	// Transaction is an expense record. Transactions are immutable once
	// written; OccurredAt is the user-selected date and may differ from
	// RecordedAt, and all month/week aggregation keys off OccurredAt.
	Transaction struct {
		ID         string
		Owner      string
		Title      string
		Amount     Money
		Category   Category
		OccurredAt time.Time
		RecordedAt time.Time
	}

	// Deposit is a wallet ledger entry. Explicit top-ups carry SignCredit
	// and a positive amount; every expense also writes a mirrored entry
	// with SignDebit and a negative amount as an audit trail.
	Deposit struct {
		ID         string
		Owner      string
		Amount     Money
		Sign       string
		RecordedAt time.Time
	}

	Balance struct {
		Owner  string
		Amount Money
	}

	User struct {
		Username  string
		CreatedAt time.Time
	}
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrEmptyTitle        = errors.New("empty title")
	ErrEmptyOwner        = errors.New("empty owner")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrUsernameTooLong   = errors.New("username too long")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrUnknownUser       = errors.New("unknown user")
)

// Categories returns the six fixed expense categories in display order.
func Categories() []Category {
	return []Category{Entertainment, Food, Shopping, Clothing, Travel, Other}
}

// ParseCategory matches a category name case-sensitively.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", ErrUnknownCategory
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Neg returns the mirrored debit amount.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) LessThan(o Money) bool {
	return m.Cents < o.Cents
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.Owner) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if _, err := ParseCategory(string(t.Category)); err != nil {
		return err
	}
	if t.OccurredAt.IsZero() {
		return errors.New("occurredAt cannot be zero")
	}
	return nil
}

func (u User) Validate() error {
	name := u.Username
	if strings.TrimSpace(name) == "" {
		return ErrEmptyOwner
	}
	if len(name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
