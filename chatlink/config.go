package chatlink

import "time"

// Config controls how the client connects and reconnects.
type Config struct {
	WSBaseURL string // e.g. ws://localhost:8000, the /ws/chat path is appended
	Token     string // bearer token sent as ?token=

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 keeps an idle connection open indefinitely
	WriteTimeout     time.Duration
	PingInterval     time.Duration

	ReconnectBaseDelay   time.Duration
	MaxReconnectAttempts int // 0 disables reconnection
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		WSBaseURL:            "ws://localhost:8000",
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         10 * time.Second,
		PingInterval:         30 * time.Second,
		ReconnectBaseDelay:   time.Second,
		MaxReconnectAttempts: 5,
	}
}
