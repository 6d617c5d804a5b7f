package events

import (
	"encoding/json"
	"time"

	"spendbook/internal/models"
)

// ExpenseCreatedMessage announces a newly stored expense. Replays are never
// announced.
type ExpenseCreatedMessage struct {
	ID               string    `json:"id"`
	AmountMinorUnits int64     `json:"amount_minor_units"`
	Category         string    `json:"category"`
	Date             string    `json:"date"`
	CreatedAt        string    `json:"created_at"`
	Timestamp        time.Time `json:"timestamp"`
}

// NewExpenseCreatedMessage builds the message for a stored record.
func NewExpenseCreatedMessage(e models.Expense) *ExpenseCreatedMessage {
	return &ExpenseCreatedMessage{
		ID:               e.ID,
		AmountMinorUnits: e.AmountMinorUnits,
		Category:         e.Category,
		Date:             e.Date,
		CreatedAt:        e.CreatedAt,
		Timestamp:        time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ExpenseCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExpenseCreatedMessageFromJSON decodes a message published by PublishExpenseCreated.
func ExpenseCreatedMessageFromJSON(data []byte) (*ExpenseCreatedMessage, error) {
	var msg ExpenseCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
