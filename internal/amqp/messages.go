package amqp

import (
	"encoding/json"
	"time"
)

// MovementPostedMessage announces a committed ledger mutation. It is an
// operational notification for the reconciliation worker, not a record
// of the movement itself; consumers fetch whatever they need from the
// store by id.
type MovementPostedMessage struct {
	MovementID  string    `json:"movement_id"`
	AccountID   string    `json:"account_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

func (m *MovementPostedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MovementPostedMessageFromJSON(data []byte) (*MovementPostedMessage, error) {
	var msg MovementPostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
