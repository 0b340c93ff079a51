package upload

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a terminal poll failure.
type ErrorKind int

const (
	KindProcessingFailed ErrorKind = iota + 1
	KindTimeout
	KindUnexpectedStatus
)

func (k ErrorKind) String() string {
	switch k {
	case KindProcessingFailed:
		return "processing_failed"
	case KindTimeout:
		return "timeout"
	case KindUnexpectedStatus:
		return "unexpected_status"
	default:
		return "unknown_kind"
	}
}

// PollError is returned by Poller.Poll when the job reaches a failing
// terminal condition.
type PollError struct {
	Kind     ErrorKind
	FileID   string
	Status   Status
	Detail   string
	Attempts int
}

func (e *PollError) Error() string {
	switch e.Kind {
	case KindProcessingFailed:
		if e.Detail != "" {
			return fmt.Sprintf("upload %s: processing failed: %s", e.FileID, e.Detail)
		}
		return fmt.Sprintf("upload %s: processing failed", e.FileID)
	case KindTimeout:
		return fmt.Sprintf("upload %s: still %s after %d attempts", e.FileID, e.Status, e.Attempts)
	case KindUnexpectedStatus:
		return fmt.Sprintf("upload %s: unexpected status %q", e.FileID, e.Status)
	default:
		return fmt.Sprintf("upload %s: %s", e.FileID, e.Kind)
	}
}

// Is matches another *PollError by kind, so errors.Is(err, ErrTimeout) works.
func (e *PollError) Is(target error) bool {
	var t *PollError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrProcessingFailed = &PollError{Kind: KindProcessingFailed}
	ErrTimeout          = &PollError{Kind: KindTimeout}
	ErrUnexpectedStatus = &PollError{Kind: KindUnexpectedStatus}
)
