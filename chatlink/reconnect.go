package chatlink

import (
	"time"

	"github.com/coder/websocket"
)

// Decision is the outcome of feeding a closure to the ReconnectPolicy.
type Decision int

const (
	// DecisionRetry schedules another dial after the returned delay.
	DecisionRetry Decision = iota
	// DecisionStop follows a normal or manual closure.
	DecisionStop
	// DecisionAuthRejected follows a 1008 close. The policy stays halted
	// until Reset.
	DecisionAuthRejected
	// DecisionExhausted means the attempt budget is spent.
	DecisionExhausted
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionStop:
		return "stop"
	case DecisionAuthRejected:
		return "auth_rejected"
	case DecisionExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// CloseReason describes why a connection ended. Code is -1 when the
// connection dropped without a close frame, or when a redial failed.
type CloseReason struct {
	Code   websocket.StatusCode
	Manual bool
}

// ReconnectPolicy decides whether and when to redial after a drop.
// Delays are BaseDelay * 2^attempt for attempt in [0, MaxAttempts).
// It is not safe for concurrent use; the Client serializes access.
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int

	attempt int
	halted  bool
}

// NewReconnectPolicy creates a policy starting at attempt 0.
func NewReconnectPolicy(base time.Duration, maxAttempts int) *ReconnectPolicy {
	return &ReconnectPolicy{BaseDelay: base, MaxAttempts: maxAttempts}
}

// Delay returns the backoff for the given zero-based attempt.
func (p *ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

// Decide consumes one closure. On DecisionRetry the attempt counter has
// already been incremented.
func (p *ReconnectPolicy) Decide(r CloseReason) (time.Duration, Decision) {
	if r.Manual || r.Code == CloseNormal {
		return 0, DecisionStop
	}
	if r.Code == CloseAuthRejected {
		p.halted = true
		return 0, DecisionAuthRejected
	}
	if p.halted {
		return 0, DecisionAuthRejected
	}
	if p.attempt >= p.MaxAttempts {
		return 0, DecisionExhausted
	}
	delay := p.Delay(p.attempt)
	p.attempt++
	return delay, DecisionRetry
}

// Reset clears the attempt counter and any auth halt.
func (p *ReconnectPolicy) Reset() {
	p.attempt = 0
	p.halted = false
}

// Attempt returns the number of retries scheduled since the last Reset.
func (p *ReconnectPolicy) Attempt() int { return p.attempt }

// Halted reports whether an auth rejection stopped the policy.
func (p *ReconnectPolicy) Halted() bool { return p.halted }
