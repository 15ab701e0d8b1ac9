package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ChangeType names the mutation that produced a LedgerChangedMessage.
type ChangeType string

const (
	ChangeCapitalSet     ChangeType = "capital_set"
	ChangeExpenseAdded   ChangeType = "expense_added"
	ChangeExpenseRemoved ChangeType = "expense_removed"
)

// LedgerChangedMessage tells consumers that a month was modified. It carries
// only the month and the change; consumers reload the ledger themselves.
type LedgerChangedMessage struct {
	Month     string     `json:"month"`
	Change    ChangeType `json:"change"`
	ExpenseID string     `json:"expenseId,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewLedgerChangedMessage stamps a message with the current time.
func NewLedgerChangedMessage(month string, change ChangeType, expenseID string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Month:     month,
		Change:    change,
		ExpenseID: expenseID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects one without a month.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Month == "" {
		return nil, errors.New("ledger changed message without month")
	}
	return &msg, nil
}
