package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// LedgerChangedMessage announces a committed write to one user's ledger.
// Receivers reload the ledger rather than trusting the message contents.
type LedgerChangedMessage struct {
	UserID        string    `json:"user_id"`
	Op            string    `json:"op"`
	TransactionID string    `json:"transaction_id"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(userID, op, transactionID string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		UserID:        userID,
		Op:            op,
		TransactionID: transactionID,
		Timestamp:     time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON parses a message and rejects one without a user.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, errors.New("ledger change without user_id")
	}
	return &msg, nil
}
