package amqp

import (
	"testing"
	"time"
)

func TestLedgerEventMessageJSON(t *testing.T) {
	msg := NewLedgerEventMessage(EventExpenseRecorded, "alice", "rec-42", -20000)

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	got, err := LedgerEventMessageFromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if got.Event != EventExpenseRecorded || got.Owner != "alice" || got.RecordID != "rec-42" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.AmountCents != -20000 {
		t.Errorf("AmountCents = %d, want -20000", got.AmountCents)
	}
	if got.Timestamp.IsZero() || time.Since(got.Timestamp) > time.Minute {
		t.Errorf("timestamp not stamped: %v", got.Timestamp)
	}
}

func TestLedgerEventMessageFromJSON_Invalid(t *testing.T) {
	if _, err := LedgerEventMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
