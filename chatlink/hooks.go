package chatlink

import "time"

// Logger is a minimal logging interface accepted by the SDK.
// See the zaplog package for a zap-backed implementation.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Recorder receives transport counters. See the metrics package.
type Recorder interface {
	StateChanged(state ConnectionState)
	ReconnectScheduled(attempt int, delay time.Duration)
	FrameSent()
	FrameReceived(kind FrameKind)
	FrameDropped()
}

// NoopLogger discards everything. It is the default.
type NoopLogger struct{}

func (NoopLogger) Debug(string, map[string]any) {}
func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Warn(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}

type noopRecorder struct{}

func (noopRecorder) StateChanged(ConnectionState)          {}
func (noopRecorder) ReconnectScheduled(int, time.Duration) {}
func (noopRecorder) FrameSent()                            {}
func (noopRecorder) FrameReceived(FrameKind)               {}
func (noopRecorder) FrameDropped()                         {}
