package conversation

import "time"

// InboundMessage is one message from the chat transport.
type InboundMessage struct {
	MessageID string
	From      string
	// Text is the free-text body, or the label of a tapped option.
	Text string
	// OptionID is set when the user tapped a button or list item.
	OptionID string
	// ReplyTo references the message being answered. Logged only.
	ReplyTo    string
	ReceivedAt time.Time
}

// OutgoingMessage is one message for the chat transport to deliver.
// Options, when present, should be presented as quick replies.
type OutgoingMessage struct {
	To      string
	Text    string
	Options []Option
}
