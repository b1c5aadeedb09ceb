package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventLedgerDisposal   = "ledger.disposal"
	EventLedgerAdjustment = "ledger.adjustment"
	EventLedgerUpdate     = "ledger.update"
)

// Message is what travels over the bus. Data is the JSON form of the
// publisher's payload.
type Message struct {
	Event  string          `json:"event"`
	UserID string          `json:"user_id"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

// NewMessage encodes payload into a Message for userID.
func NewMessage(event, userID string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Message{Event: event, UserID: userID, Data: raw, SentAt: time.Now().UTC()}, nil
}

// Decode parses one bus payload.
func Decode(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, err
	}
	if m.Event == "" {
		return Message{}, fmt.Errorf("message without event")
	}
	return m, nil
}
