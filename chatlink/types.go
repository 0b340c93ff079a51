package chatlink

import (
	"encoding/json"
	"errors"
	"time"
)

// Close codes with special meaning to the reconnection policy.
const (
	CloseNormal          = 1000
	CloseAuthRejected    = 1008
	chatPath             = "ws/chat"
	naiveTimestampLayout = "2006-01-02T15:04:05.999999999"
)

// ErrMalformedFrame is returned by DecodeFrame for payloads that are not
// a chat message or an error frame.
var ErrMalformedFrame = errors.New("malformed frame")

// OutgoingFrame is the only frame the client writes.
type OutgoingFrame struct {
	Message string `json:"message"`
}

// FrameKind tags a decoded inbound frame.
type FrameKind int

const (
	FrameMessage FrameKind = iota
	FrameError
)

func (k FrameKind) String() string {
	switch k {
	case FrameMessage:
		return "message"
	case FrameError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is an inbound frame decoded once at the socket boundary.
// Exactly one of Message or Err is meaningful, selected by Kind.
type Frame struct {
	Kind    FrameKind
	Message MessageEvent
	Err     ServerError
}

// wireFrame is the inbound envelope server -> client.
type wireFrame struct {
	Sender    string  `json:"sender"`
	Message   *string `json:"message"`
	Timestamp string  `json:"timestamp"`
	Error     string  `json:"error,omitempty"`
}

// DecodeFrame parses one inbound payload. A non-empty "error" field wins
// over "message". A missing timestamp is stamped with receivedAt.
func DecodeFrame(data []byte, receivedAt time.Time) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, errors.Join(ErrMalformedFrame, err)
	}
	if w.Error != "" {
		return Frame{Kind: FrameError, Err: ServerError{Message: w.Error}}, nil
	}
	if w.Message == nil {
		return Frame{}, ErrMalformedFrame
	}

	ts := receivedAt
	if w.Timestamp != "" {
		parsed, err := parseTimestamp(w.Timestamp)
		if err != nil {
			return Frame{}, errors.Join(ErrMalformedFrame, err)
		}
		ts = parsed
	}
	return Frame{
		Kind: FrameMessage,
		Message: MessageEvent{
			Sender:    w.Sender,
			Text:      *w.Message,
			Timestamp: ts,
		},
	}, nil
}

// parseTimestamp accepts RFC 3339 and zone-less ISO 8601, which is taken
// as UTC.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(naiveTimestampLayout, s, time.UTC)
}
