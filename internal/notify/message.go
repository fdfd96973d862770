// Package notify carries add/cancel notifications from the CRUD layer to a running engine over
// Redis pub/sub.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionCancel Action = "cancel"
)

// Message is the JSON payload published on the notify channel.
type Message struct {
	Action        Action `json:"action" validate:"required,oneof=add cancel"`
	TransactionID int64  `json:"transaction_id" validate:"required,gt=0"`
	Schedule      string `json:"schedule,omitempty" validate:"required_if=Action add"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("invalid notification: %w", err)
	}
	return nil
}

// Decode parses and validates a notification payload.
func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, fmt.Errorf("decode notification: %w", err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (m Message) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
