package chatlink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer is a scripted WebSocket peer. Each accepted connection is
// handed to the test through conns; the handler stays alive until the
// test ends.
type chatServer struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	hits  atomic.Int32
	query atomic.Value

	// rejectAfter makes every request after the first n fail the handshake.
	rejectAfter int32
	// rejectAt fails only the nth handshake. Set it before the first dial.
	rejectAt int32
}

func newChatServer(t *testing.T, rejectAfter int32) *chatServer {
	t.Helper()
	s := &chatServer{conns: make(chan *websocket.Conn, 16), rejectAfter: rejectAfter}
	done := make(chan struct{})
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.hits.Add(1)
		s.query.Store(r.URL.RawQuery)
		if r.URL.Path != "/ws/chat" {
			http.NotFound(w, r)
			return
		}
		if (s.rejectAfter > 0 && n > s.rejectAfter) || n == s.rejectAt {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- c
		<-done
	}))
	t.Cleanup(s.srv.Close)
	t.Cleanup(func() { close(done) })
	return s
}

func (s *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *chatServer) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func newTestClient(t *testing.T, s *chatServer, base time.Duration, attempts int) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WSBaseURL = s.wsURL()
	cfg.Token = "secret-token"
	cfg.PingInterval = 0
	cfg.ReconnectBaseDelay = base
	cfg.MaxReconnectAttempts = attempts
	c := NewClient(&cfg)
	t.Cleanup(func() { _ = c.Disconnect() })
	return c
}

// drain keeps reading server-side so close handshakes complete.
func drain(c *websocket.Conn) <-chan []byte {
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for {
			_, data, err := c.Read(context.Background())
			if err != nil {
				return
			}
			out <- data
		}
	}()
	return out
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientSendNotConnected(t *testing.T) {
	cfg := DefaultConfig()
	c := NewClient(&cfg)

	err := c.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, IsConnectionError(err))
}

func TestClientEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WSBaseURL = "wss://chat.example.com/base/"
	cfg.Token = "a b"
	c := NewClient(&cfg)

	endpoint, err := c.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/base/ws/chat?token=a+b", endpoint)

	c.SetToken("")
	endpoint, err = c.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "wss://chat.example.com/base/ws/chat", endpoint)
}

func TestClientEndpointInvalid(t *testing.T) {
	for _, base := range []string{"", "ftp://example.com", "://bad"} {
		cfg := DefaultConfig()
		cfg.WSBaseURL = base
		_, err := NewClient(&cfg).Endpoint()
		var le *Error
		require.ErrorAs(t, err, &le, "base %q", base)
		assert.Equal(t, ErrorInvalidConfig, le.Code)
	}
}

func TestClientConnectAndSend(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 10*time.Millisecond, 5)

	var states []ConnectionState
	var mu sync.Mutex
	c.OnStateChanged(func(ev StateEvent) {
		mu.Lock()
		states = append(states, ev.NewState)
		mu.Unlock()
	})

	require.NoError(t, c.Connect(testCtx(t)))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "token=secret-token", s.query.Load())

	frames := drain(s.next(t))
	require.NoError(t, c.Send(testCtx(t), "hello"))

	select {
	case data := <-frames:
		assert.Equal(t, `{"message":"hello"}`, string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("frame not received")
	}

	mu.Lock()
	assert.Equal(t, []ConnectionState{StateConnecting, StateConnected}, states)
	mu.Unlock()
}

func TestClientConnectTwice(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 10*time.Millisecond, 5)

	require.NoError(t, c.Connect(testCtx(t)))
	drain(s.next(t))
	assert.ErrorIs(t, c.Connect(testCtx(t)), ErrAlreadyConnected)
}

func TestClientHandshakeErrorIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.WSBaseURL = srv.URL
	cfg.ReconnectBaseDelay = time.Millisecond
	c := NewClient(&cfg)

	err := c.Connect(testCtx(t))
	assert.ErrorIs(t, err, ErrHandshake)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.Zero(t, c.ReconnectAttempt())
}

func TestClientDeliversFramesInOrder(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 10*time.Millisecond, 5)

	var mu sync.Mutex
	var first, second []string
	c.OnMessage(func(ev MessageEvent) {
		mu.Lock()
		first = append(first, ev.Text)
		mu.Unlock()
	})
	c.OnMessage(func(ev MessageEvent) {
		mu.Lock()
		second = append(second, ev.Text)
		mu.Unlock()
	})
	var serverErrs atomic.Int32
	c.OnError(func(err error) {
		if assert.ErrorIs(t, err, ErrServer) {
			serverErrs.Add(1)
		}
	})

	require.NoError(t, c.Connect(testCtx(t)))
	conn := s.next(t)
	drain(conn)

	ctx := testCtx(t)
	payloads := []string{
		`{"sender":"bot","message":"one","timestamp":"2025-01-01T00:00:00Z"}`,
		`not json at all`,
		`{"sender":"bot","message":"two"}`,
		`{"error":"rate limited"}`,
		`{"sender":"bot"}`,
		`{"sender":"bot","message":"three"}`,
	}
	for _, p := range payloads {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(p)))
	}

	want := []string{"one", "two", "three"}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(first) == len(want) && len(second) == len(want)
	}, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)
	mu.Unlock()
	assert.Equal(t, int32(1), serverErrs.Load())
}

func TestClientReconnectsAfterAbnormalClose(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 10*time.Millisecond, 5)

	require.NoError(t, c.Connect(testCtx(t)))
	first := s.next(t)
	go func() { _ = first.Close(websocket.StatusInternalError, "boom") }()

	second := s.next(t)
	drain(second)
	require.Eventually(t, c.IsConnected, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), s.hits.Load())
	assert.Zero(t, c.ReconnectAttempt(), "successful reconnect resets the counter")

	require.NoError(t, c.Send(testCtx(t), "after reconnect"))
}

func TestClientAuthRejectionStopsReconnect(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 5*time.Millisecond, 5)

	fatal := make(chan error, 1)
	c.OnError(func(err error) {
		if IsFatal(err) {
			fatal <- err
		}
	})
	var lastState atomic.Value
	c.OnStateChanged(func(ev StateEvent) { lastState.Store(ev) })

	require.NoError(t, c.Connect(testCtx(t)))
	conn := s.next(t)
	go func() { _ = conn.Close(websocket.StatusPolicyViolation, "invalid token") }()

	select {
	case err := <-fatal:
		assert.ErrorIs(t, err, ErrAuthRejected)
	case <-time.After(5 * time.Second):
		t.Fatal("auth rejection not reported")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), s.hits.Load())
	assert.Equal(t, StateDisconnected, c.State())
	ev := lastState.Load().(StateEvent)
	assert.ErrorIs(t, ev.Error, ErrAuthRejected)
}

func TestClientServerNormalCloseDoesNotReconnect(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 5*time.Millisecond, 5)

	require.NoError(t, c.Connect(testCtx(t)))
	conn := s.next(t)
	go func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, 5*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), s.hits.Load())
}

func TestClientDisconnectDoesNotReconnect(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 5*time.Millisecond, 5)

	require.NoError(t, c.Connect(testCtx(t)))
	frames := drain(s.next(t))

	_ = c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())

	select {
	case _, ok := <-frames:
		assert.False(t, ok, "server should observe the close")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not observe close")
	}
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), s.hits.Load())
	assert.ErrorIs(t, c.Send(testCtx(t), "late"), ErrNotConnected)
}

func TestClientDisconnectCancelsPendingReconnect(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 200*time.Millisecond, 5)

	require.NoError(t, c.Connect(testCtx(t)))
	conn := s.next(t)
	go func() { _ = conn.Close(websocket.StatusGoingAway, "restart") }()

	require.Eventually(t, func() bool { return c.ReconnectAttempt() == 1 }, 5*time.Second, 5*time.Millisecond)
	_ = c.Disconnect()

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), s.hits.Load())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientReconnectExhausted(t *testing.T) {
	s := newChatServer(t, 1)
	c := newTestClient(t, s, 5*time.Millisecond, 3)

	fatal := make(chan error, 1)
	c.OnError(func(err error) {
		if IsFatal(err) {
			fatal <- err
		}
	})

	require.NoError(t, c.Connect(testCtx(t)))
	conn := s.next(t)
	go func() { _ = conn.Close(websocket.StatusInternalError, "crash") }()

	select {
	case err := <-fatal:
		assert.ErrorIs(t, err, ErrReconnectExhausted)
	case <-time.After(5 * time.Second):
		t.Fatal("exhaustion not reported")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1+3), s.hits.Load(), "initial dial plus one per allowed retry")
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientConnectPreemptsPendingReconnect(t *testing.T) {
	s := newChatServer(t, 0)
	c := newTestClient(t, s, 200*time.Millisecond, 5)

	require.NoError(t, c.Connect(testCtx(t)))
	conn := s.next(t)
	go func() { _ = conn.Close(websocket.StatusGoingAway, "restart") }()

	require.Eventually(t, func() bool { return c.ReconnectAttempt() == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Connect(testCtx(t)))
	drain(s.next(t))
	assert.True(t, c.IsConnected())
	assert.Zero(t, c.ReconnectAttempt())

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(2), s.hits.Load(), "the cancelled timer must not dial")
	assert.True(t, c.IsConnected())
}

func TestClientConnectAfterFailedRedialOwnsConnection(t *testing.T) {
	s := newChatServer(t, 0)
	s.rejectAt = 2
	c := newTestClient(t, s, 20*time.Millisecond, 5)

	connected := make(chan error, 1)
	c.OnStateChanged(func(ev StateEvent) {
		if ev.NewState != StateDisconnected || !errors.Is(ev.Error, ErrHandshake) {
			return
		}
		select {
		case connected <- c.Connect(context.Background()):
		default:
		}
	})

	require.NoError(t, c.Connect(testCtx(t)))
	first := s.next(t)
	go func() { _ = first.Close(websocket.StatusInternalError, "boom") }()

	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("redial failure not observed")
	}
	drain(s.next(t))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(3), s.hits.Load(), "no retry may follow the caller's connect")
	assert.Empty(t, s.conns)
	assert.Equal(t, StateConnected, c.State())
	require.NoError(t, c.Send(testCtx(t), "still here"))
}

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{ConnectionState(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.String())
		})
	}
}
