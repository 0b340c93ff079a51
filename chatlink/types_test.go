package chatlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	received := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("message with RFC 3339 timestamp", func(t *testing.T) {
		f, err := DecodeFrame([]byte(`{"sender":"bot","message":"hi","timestamp":"2025-03-01T08:30:00Z"}`), received)
		require.NoError(t, err)
		assert.Equal(t, FrameMessage, f.Kind)
		assert.Equal(t, "bot", f.Message.Sender)
		assert.Equal(t, "hi", f.Message.Text)
		assert.Equal(t, time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC), f.Message.Timestamp)
	})

	t.Run("message with zone-less timestamp", func(t *testing.T) {
		f, err := DecodeFrame([]byte(`{"sender":"bot","message":"hi","timestamp":"2025-03-01T08:30:00.123456"}`), received)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 3, 1, 8, 30, 0, 123456000, time.UTC), f.Message.Timestamp)
	})

	t.Run("missing timestamp uses receive time", func(t *testing.T) {
		f, err := DecodeFrame([]byte(`{"sender":"bot","message":""}`), received)
		require.NoError(t, err)
		assert.Equal(t, FrameMessage, f.Kind)
		assert.Empty(t, f.Message.Text)
		assert.Equal(t, received, f.Message.Timestamp)
	})

	t.Run("error frame", func(t *testing.T) {
		f, err := DecodeFrame([]byte(`{"message":"ignored","error":"model unavailable"}`), received)
		require.NoError(t, err)
		assert.Equal(t, FrameError, f.Kind)
		assert.Equal(t, "model unavailable", f.Err.Message)
	})

	malformed := map[string]string{
		"not json":        `hello`,
		"no message":      `{"sender":"bot"}`,
		"wrong type":      `{"message":42}`,
		"bad timestamp":   `{"message":"hi","timestamp":"yesterday"}`,
		"array":           `[1,2,3]`,
		"empty error key": `{"error":""}`,
	}
	for name, payload := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(payload), received)
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}
