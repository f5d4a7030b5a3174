package bus

import (
	"time"
)

type InboundMessage struct {
	Channel    string
	SenderID   string
	SenderName string // display name used as the speaker in the day log
	ChatID     string
	MessageID  int
	Content    string
	Command    string // command name without the leading slash; empty for plain text
	Timestamp  time.Time
}

// IsCommand reports whether the message is a bot command rather than chat text.
func (m *InboundMessage) IsCommand() bool {
	return m.Command != ""
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	ReplyTo int // message id to thread under; zero sends a plain message
}
