// internal/models/message.go
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one unit of mailbox communication between the server and a
// player or between players. Messages are immutable once stored: a new state
// is always a new message. The polls of the voting module are messages that
// keep their ballot state in extension fields.
type Message struct {
	ID         uuid.UUID       `json:"id"`
	GameID     string          `json:"gameId"`
	InstanceID string          `json:"instanceId"`
	MsgType    string          `json:"msgType"`
	// Recipient is an email address, or the empty string for broadcast
	// messages that any member may fetch.
	Recipient string          `json:"recipient"`
	Content   json.RawMessage `json:"content"`
	Sender    string          `json:"sender"`
	CreatedAt time.Time       `json:"createdAt"`
	Ext       ExtFields       `json:"ext,omitempty"`
}

// NewMessage builds a message with a fresh id. content is marshaled to JSON;
// pass a json.RawMessage to store pre-encoded content as-is.
func NewMessage(gameID, instanceID, sender, msgType, recipient string, content interface{}) (*Message, error) {
	var raw json.RawMessage
	switch c := content.(type) {
	case json.RawMessage:
		raw = c
	case nil:
		raw = json.RawMessage("null")
	default:
		b, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("encode message content: %w", err)
		}
		raw = b
	}
	return &Message{
		ID:         uuid.New(),
		GameID:     gameID,
		InstanceID: instanceID,
		MsgType:    msgType,
		Recipient:  recipient,
		Content:    raw,
		Sender:     sender,
		Ext:        make(ExtFields),
	}, nil
}

// DecodeContent unmarshals the stored content into dest.
func (m *Message) DecodeContent(dest interface{}) error {
	return json.Unmarshal(m.Content, dest)
}

// ToDictionary is the client-facing representation used by message fetches.
func (m *Message) ToDictionary() map[string]interface{} {
	var content interface{}
	if len(m.Content) > 0 {
		// Content was validated at creation time.
		_ = json.Unmarshal(m.Content, &content)
	}
	return map[string]interface{}{
		"type":     m.MsgType,
		"mrec":     m.Recipient,
		"contents": content,
		"mtime":    m.CreatedAt.Format(time.RFC3339Nano),
		"msender":  m.Sender,
	}
}
