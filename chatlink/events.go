package chatlink

import "time"

// MessageEvent emitted when the backend sends a chat message.
type MessageEvent struct {
	Sender    string
	Text      string
	Timestamp time.Time
}

// ServerError emitted when the backend sends an error frame.
type ServerError struct {
	Message string
}

func (e ServerError) Error() string {
	return "server: " + e.Message
}
