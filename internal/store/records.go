package store

import (
	"fmt"
	"time"

	"gastos/internal/core"
)

// EncodeTransaction maps a transaction onto the normalized wire schema.
// Amounts are stored as int64 cents.
func EncodeTransaction(t core.Transaction) Record {
	return Record{
		FieldOwner:      t.Owner,
		FieldTitle:      t.Title,
		FieldAmount:     t.Amount.Cents,
		FieldCategory:   string(t.Category),
		FieldOccurredAt: t.OccurredAt,
		FieldRecordedAt: t.RecordedAt,
	}
}

func DecodeTransaction(id string, rec Record) (core.Transaction, error) {
	amount, err := fieldInt64(rec, FieldAmount)
	if err != nil {
		return core.Transaction{}, err
	}
	occurredAt, err := fieldTime(rec, FieldOccurredAt)
	if err != nil {
		return core.Transaction{}, err
	}
	recordedAt, err := fieldTime(rec, FieldRecordedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		ID:         id,
		Owner:      fieldString(rec, FieldOwner),
		Title:      fieldString(rec, FieldTitle),
		Amount:     core.Money{Cents: amount},
		Category:   core.Category(fieldString(rec, FieldCategory)),
		OccurredAt: occurredAt,
		RecordedAt: recordedAt,
	}, nil
}

func EncodeDeposit(d core.Deposit) Record {
	return Record{
		FieldOwner:      d.Owner,
		FieldAmount:     d.Amount.Cents,
		FieldSign:       d.Sign,
		FieldRecordedAt: d.RecordedAt,
	}
}

func DecodeDeposit(id string, rec Record) (core.Deposit, error) {
	amount, err := fieldInt64(rec, FieldAmount)
	if err != nil {
		return core.Deposit{}, err
	}
	recordedAt, err := fieldTime(rec, FieldRecordedAt)
	if err != nil {
		return core.Deposit{}, err
	}
	return core.Deposit{
		ID:         id,
		Owner:      fieldString(rec, FieldOwner),
		Amount:     core.Money{Cents: amount},
		Sign:       fieldString(rec, FieldSign),
		RecordedAt: recordedAt,
	}, nil
}

func EncodeBalance(b core.Balance) Record {
	return Record{
		FieldOwner:  b.Owner,
		FieldAmount: b.Amount.Cents,
	}
}

func DecodeBalance(owner string, rec Record) (core.Balance, error) {
	amount, err := fieldInt64(rec, FieldAmount)
	if err != nil {
		return core.Balance{}, err
	}
	return core.Balance{Owner: owner, Amount: core.Money{Cents: amount}}, nil
}

func EncodeUser(u core.User) Record {
	return Record{
		FieldUsername:  u.Username,
		FieldCreatedAt: u.CreatedAt,
	}
}

// RecordID extracts the document id stamped onto query results.
func RecordID(rec Record) string {
	return fieldString(rec, FieldID)
}

func fieldString(rec Record, field string) string {
	s, _ := rec[field].(string)
	return s
}

func fieldInt64(rec Record, field string) (int64, error) {
	switch v := rec[field].(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("field %q: unexpected type %T", field, rec[field])
	}
}

func fieldTime(rec Record, field string) (time.Time, error) {
	t, ok := rec[field].(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q: unexpected type %T", field, rec[field])
	}
	return t, nil
}
