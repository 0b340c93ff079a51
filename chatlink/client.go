package chatlink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/VladFo01/chatlink/chatlink/internal"
)

// readLimit bounds a single inbound frame. Generated answers can be long.
const readLimit = 1 << 20

// Client owns a single WebSocket to the chat endpoint. After an
// unexpected drop it redials according to its ReconnectPolicy.
// Construct one per session; there is no shared instance.
type Client struct {
	cfg        Config
	logger     Logger
	recorder   Recorder
	dispatcher Dispatcher
	now        func() time.Time

	mu      sync.Mutex
	state   ConnectionState
	policy  *ReconnectPolicy
	conn    *internal.Conn
	writeCh chan OutgoingFrame
	done    <-chan struct{}
	cancel  context.CancelFunc
	gen     uint64 // bumped by Connect and Disconnect so stale loops and timers stand down
	manual  bool
	timer   *time.Timer
}

// NewClient constructs a client with provided config.
// A nil config means DefaultConfig().
func NewClient(cfg *Config) *Client {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Client{
		cfg:      c,
		logger:   NoopLogger{},
		recorder: noopRecorder{},
		now:      time.Now,
		state:    StateDisconnected,
		policy:   NewReconnectPolicy(c.ReconnectBaseDelay, c.MaxReconnectAttempts),
	}
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
}

// SetRecorder installs a metrics recorder (optional).
func (c *Client) SetRecorder(r Recorder) {
	if r == nil {
		return
	}
	c.recorder = r
}

// SetToken replaces the bearer token used by the next dial.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.cfg.Token = token
	c.mu.Unlock()
}

// OnMessage subscribes to chat messages. Call the returned func to unsubscribe.
func (c *Client) OnMessage(fn func(MessageEvent)) func() { return c.dispatcher.SubscribeMessages(fn) }

// OnStateChanged subscribes to connection state transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) func() { return c.dispatcher.SubscribeStates(fn) }

// OnError subscribes to server error frames and fatal connection errors.
func (c *Client) OnError(fn func(error)) func() { return c.dispatcher.SubscribeErrors(fn) }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected returns true if frames can be sent.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ReconnectAttempt returns the retries scheduled since the last successful connect.
func (c *Client) ReconnectAttempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.policy.Attempt()
}

// Endpoint returns the chat URL, including the token query parameter.
func (c *Client) Endpoint() (string, error) {
	c.mu.Lock()
	base, token := c.cfg.WSBaseURL, c.cfg.Token
	c.mu.Unlock()

	if base == "" {
		return "", NewError(ErrorInvalidConfig, "empty WebSocket base URL")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", WrapError(ErrorInvalidConfig, "invalid WebSocket base URL", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", NewError(ErrorInvalidConfig, fmt.Sprintf("unsupported URL scheme %q", u.Scheme))
	}
	u = u.JoinPath(chatPath)
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect dials the chat endpoint and starts the read and write loops.
// It returns once the handshake completes. A failed handshake is
// returned as ErrorHandshake and is not retried. Called while a
// reconnect is pending, it cancels that reconnect and dials at once.
func (c *Client) Connect(ctx context.Context) error {
	endpoint, err := c.Endpoint()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return NewError(ErrorAlreadyConnected, "connect called while "+state.String())
	}
	// Take over from any reconnect cycle: a pending timer is dropped and
	// a redial that is still settling sees a stale generation.
	preempted := c.timer != nil
	if preempted {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.manual = false
	c.policy.Reset()
	gen := c.gen
	c.mu.Unlock()

	if preempted {
		c.logger.Debug("pending reconnect replaced by connect", nil)
	}

	return c.dial(ctx, endpoint, gen)
}

// Send enqueues text as a single {"message": text} frame.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	if c.state != StateConnected || c.writeCh == nil {
		state := c.state
		c.mu.Unlock()
		return NewError(ErrorNotConnected, "cannot send while "+state.String())
	}
	ch, done := c.writeCh, c.done
	c.mu.Unlock()

	select {
	case ch <- OutgoingFrame{Message: text}:
		return nil
	case <-done:
		return NewError(ErrorNotConnected, "connection closed before send")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the socket with a normal closure and cancels any
// pending reconnect. It never triggers a reconnect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.manual = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	conn, cancel := c.conn, c.cancel
	c.conn, c.writeCh, c.done, c.cancel = nil, nil, nil, nil
	ev, changed := c.setStateLocked(StateDisconnected, nil)
	c.mu.Unlock()
	c.publish(ev, changed)

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	if cancel != nil {
		cancel()
	}
	return err
}

// Close is an alias for Disconnect.
func (c *Client) Close() error {
	return c.Disconnect()
}

func (c *Client) dial(ctx context.Context, endpoint string, gen uint64) error {
	if !c.transition(gen, StateConnecting, nil) {
		return NewError(ErrorDisconnected, "client disconnected before dial")
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	c.logger.Debug("dialing chat endpoint", map[string]any{"base_url": c.cfg.WSBaseURL})
	ws, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		herr := WrapError(ErrorHandshake, "websocket handshake failed", err)
		c.transition(gen, StateDisconnected, herr)
		return herr
	}
	ws.SetReadLimit(readLimit)

	conn := internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout)
	runCtx, cancel := context.WithCancel(context.Background())
	writeCh := make(chan OutgoingFrame, 16)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		cancel()
		_ = ws.Close(websocket.StatusNormalClosure, "client disconnect")
		return NewError(ErrorDisconnected, "client disconnected during dial")
	}
	c.conn, c.writeCh, c.done, c.cancel = conn, writeCh, runCtx.Done(), cancel
	c.policy.Reset()
	ev, changed := c.setStateLocked(StateConnected, nil)
	c.mu.Unlock()
	c.publish(ev, changed)

	go c.readLoop(runCtx, gen, conn)
	go c.writeLoop(runCtx, conn, writeCh)
	return nil
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn *internal.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			c.handleDrop(gen, conn, err)
			return
		}
		if typ != websocket.MessageText {
			c.logger.Warn("dropping binary frame", map[string]any{"size": len(data)})
			c.recorder.FrameDropped()
			continue
		}
		c.handleFrame(data)
	}
}

// handleFrame delivers on the read goroutine, so subscribers observe
// frames in arrival order. Malformed payloads are logged and dropped.
func (c *Client) handleFrame(data []byte) {
	frame, err := DecodeFrame(data, c.now())
	if err != nil {
		c.logger.Warn("dropping malformed frame", map[string]any{"error": err.Error(), "size": len(data)})
		c.recorder.FrameDropped()
		return
	}
	c.recorder.FrameReceived(frame.Kind)
	c.dispatcher.Dispatch(frame)
}

func (c *Client) writeLoop(ctx context.Context, conn *internal.Conn, frames <-chan OutgoingFrame) {
	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case f := <-frames:
			if err := conn.Write(ctx, f); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("write loop exit", map[string]any{"error": err.Error()})
				c.dispatcher.emitError(WrapError(ErrorConnection, "write failed", err))
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
			c.recorder.FrameSent()
		case <-ping:
			if err := conn.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("ping failed", map[string]any{"error": err.Error()})
				_ = conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) handleDrop(gen uint64, conn *internal.Conn, cause error) {
	c.mu.Lock()
	if gen != c.gen || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.conn, c.writeCh, c.done, c.cancel = nil, nil, nil, nil
	reason := CloseReason{Code: websocket.CloseStatus(cause), Manual: c.manual}
	after := c.settleLocked(gen, reason, WrapError(ErrorDisconnected, "connection lost", cause))
	c.mu.Unlock()

	c.logger.Warn("connection lost", map[string]any{
		"error":      cause.Error(),
		"close_code": int(reason.Code),
	})
	after()
}

func (c *Client) retryOrStop(gen uint64, reason CloseReason, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	after := c.settleLocked(gen, reason, cause)
	c.mu.Unlock()
	after()
}

// settleLocked feeds a closure to the policy and either arms the
// reconnect timer or leaves the client disconnected for good. It must be
// called with c.mu held; the returned func publishes the outcome and
// must be called after unlocking.
func (c *Client) settleLocked(gen uint64, reason CloseReason, cause error) func() {
	delay, decision := c.policy.Decide(reason)
	attempt := c.policy.Attempt()

	var fatal error
	switch decision {
	case DecisionRetry:
		c.timer = time.AfterFunc(delay, func() { c.reconnect(gen) })
	case DecisionAuthRejected:
		fatal = WrapError(ErrorAuthRejected, "server rejected credentials", cause)
	case DecisionExhausted:
		fatal = WrapError(ErrorReconnectExhausted, fmt.Sprintf("gave up after %d attempts", attempt), cause)
	}
	stateErr := cause
	if fatal != nil {
		stateErr = fatal
	}
	ev, changed := c.setStateLocked(StateDisconnected, stateErr)

	return func() {
		c.publish(ev, changed)
		switch decision {
		case DecisionRetry:
			c.recorder.ReconnectScheduled(attempt, delay)
			c.logger.Info("reconnect scheduled", map[string]any{
				"attempt": attempt,
				"delay":   delay.String(),
			})
		case DecisionStop:
			c.logger.Info("connection closed normally", map[string]any{"close_code": int(reason.Code)})
		default:
			c.logger.Error("reconnection stopped", map[string]any{
				"decision": decision.String(),
				"error":    fatal.Error(),
			})
			c.dispatcher.emitError(fatal)
		}
	}
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.manual {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	endpoint, err := c.Endpoint()
	if err != nil {
		c.dispatcher.emitError(err)
		return
	}
	if err := c.dial(context.Background(), endpoint, gen); err != nil {
		if !errors.Is(err, ErrHandshake) {
			return
		}
		c.logger.Warn("reconnect failed", map[string]any{"error": err.Error()})
		c.retryOrStop(gen, CloseReason{Code: -1}, err)
	}
}

// transition sets the state unless gen is stale.
func (c *Client) transition(gen uint64, s ConnectionState, err error) bool {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false
	}
	ev, changed := c.setStateLocked(s, err)
	c.mu.Unlock()
	c.publish(ev, changed)
	return true
}

func (c *Client) setStateLocked(s ConnectionState, err error) (StateEvent, bool) {
	if c.state == s {
		return StateEvent{}, false
	}
	ev := StateEvent{OldState: c.state, NewState: s, Error: err}
	c.state = s
	return ev, true
}

func (c *Client) publish(ev StateEvent, changed bool) {
	if !changed {
		return
	}
	c.recorder.StateChanged(ev.NewState)
	c.logger.Info("connection state changed", map[string]any{
		"from": ev.OldState.String(),
		"to":   ev.NewState.String(),
	})
	c.dispatcher.emitState(ev)
}
