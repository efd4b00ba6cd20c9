package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage = errors.New("malformed extraction message")
)

// Message is the single result posted by one script invocation.
type Message struct {
	Title       *string  `json:"title"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Image       *string  `json:"image"`
	Error       *string  `json:"error,omitempty"`
}

// ParseMessage decodes a posted message. Anything that is not a JSON object
// with the expected field types yields ErrMalformedMessage.
func ParseMessage(data string) (Message, error) {
	var msg Message

	raw := bytes.TrimSpace([]byte(data))
	if len(raw) == 0 || raw[0] != '{' {
		return msg, fmt.Errorf("%w: not a JSON object", ErrMalformedMessage)
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Encode renders msg the way the in-page script posts it.
func (m Message) Encode() (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(data), nil
}
