// ABOUTME: Conversation message and persisted snapshot types
// ABOUTME: Defines the "welcome" sentinel and the one-hour snapshot validity window

package widget

import (
	"time"

	"github.com/google/uuid"
)

// WelcomeID is the sentinel id of the synthetic greeting message.
const WelcomeID = "welcome"

// SnapshotTTL is how long a persisted conversation stays valid.
const SnapshotTTL = time.Hour

// Message is a single entry in a widget conversation.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsBot     bool      `json:"isBot"`
	Timestamp time.Time `json:"timestamp"`
}

// IsWelcome reports whether m is the synthetic greeting.
func (m Message) IsWelcome() bool {
	return m.ID == WelcomeID
}

// NewUserMessage creates a visitor-authored message.
func NewUserMessage(text string, at time.Time) Message {
	return Message{ID: uuid.New().String(), Text: text, IsBot: false, Timestamp: at}
}

// NewBotMessage creates a bot-authored message.
func NewBotMessage(text string, at time.Time) Message {
	return Message{ID: uuid.New().String(), Text: text, IsBot: true, Timestamp: at}
}

// NewWelcomeMessage creates the greeting with the sentinel id.
func NewWelcomeMessage(text string, at time.Time) Message {
	return Message{ID: WelcomeID, Text: text, IsBot: true, Timestamp: at}
}

// Snapshot is the persisted state of one widget conversation.
type Snapshot struct {
	Messages  []Message `json:"messages"`
	Timestamp time.Time `json:"timestamp"`
	IsOpen    bool      `json:"isOpen"`
}

// Expired reports whether the snapshot is at or past the validity window.
// A snapshot exactly SnapshotTTL old is expired.
func (s Snapshot) Expired(now time.Time) bool {
	return now.Sub(s.Timestamp) >= SnapshotTTL
}

// CloneMessages returns a copy of msgs safe to hand to another goroutine.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
