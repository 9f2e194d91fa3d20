package models

import (
	"encoding/json"
	"time"
)

// DefaultTitle is assigned to conversations created without a title.
const DefaultTitle = "New conversation"

// Conversation is a titled thread of messages between a user and the assistant persona.
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary"`
	Insights  json.RawMessage `json:"insights,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Messages  []Message       `json:"messages"`
}

// HasMeaningfulTitle reports whether the title was set to something other than the default.
func (c Conversation) HasMeaningfulTitle() bool {
	return c.Title != "" && c.Title != DefaultTitle
}

// Clone returns a deep copy so that callers cannot mutate stored state.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	if c.Insights != nil {
		out.Insights = append(json.RawMessage(nil), c.Insights...)
	}
	return out
}
