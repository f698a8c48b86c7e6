package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds published on the ledger stream.
const (
	EventDepositApplied  = "deposit.applied"
	EventExpenseRecorded = "expense.recorded"
)

// LedgerEventMessage announces a balance mutation to downstream
// consumers. It carries only identifiers and the signed amount; consumers
// fetch full records from the document store if they need them.
type LedgerEventMessage struct {
	Event       string    `json:"event"`
	Owner       string    `json:"owner"`
	RecordID    string    `json:"record_id"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(event, owner, recordID string, amountCents int64) *LedgerEventMessage {
	return &LedgerEventMessage{
		Event:       event,
		Owner:       owner,
		RecordID:    recordID,
		AmountCents: amountCents,
		Timestamp:   time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
