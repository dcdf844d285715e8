package domain

import "time"

// IncomingMessage is a raw alert as delivered by the message source.
type IncomingMessage struct {
	Sender     string    `json:"sender"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// FilterDecision is the gate's verdict for one message.
type FilterDecision struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason,omitempty"`
}
