// Package session keeps a chat transcript and connectivity flag in sync
// with a chatlink transport.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VladFo01/chatlink/chatlink"
	"github.com/VladFo01/chatlink/chatlink/upload"
)

// SystemSender is the sender name used for locally generated notices.
const SystemSender = "system"

// Transport is the part of *chatlink.Client a Session drives.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, text string) error
	Disconnect() error
	State() chatlink.ConnectionState
	OnMessage(fn func(chatlink.MessageEvent)) func()
	OnStateChanged(fn func(chatlink.StateEvent)) func()
	OnError(fn func(error)) func()
}

var _ Transport = (*chatlink.Client)(nil)

// MessageStatus is the only mutable field of a Message.
type MessageStatus string

const (
	StatusSending  MessageStatus = "sending"
	StatusSent     MessageStatus = "sent"
	StatusFailed   MessageStatus = "failed"
	StatusReceived MessageStatus = "received"
)

// Message is one transcript entry.
type Message struct {
	ID        uuid.UUID
	Sender    string
	Content   string
	Timestamp time.Time
	Status    MessageStatus
}

// UpdateKind says which Update fields are set.
type UpdateKind int

const (
	UpdateMessage UpdateKind = iota
	UpdateStatus
	UpdateConnection
	UpdateError
	UpdateUpload
)

// Update is published on the Updates channel for every change.
type Update struct {
	Kind UpdateKind
	// Index is the transcript position for UpdateMessage and UpdateStatus.
	Index     int
	Message   Message
	Connected bool
	State     chatlink.ConnectionState
	Err       error
	Job       upload.Job
}

// Session is the consumer side of a transport.
type Session struct {
	transport Transport
	uploader  *upload.Uploader
	user      string
	logger    chatlink.Logger
	now       func() time.Time

	mu       sync.RWMutex
	messages []Message
	state    chatlink.ConnectionState
	unsubs   []func()

	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Session around t. user labels locally sent messages.
func New(t Transport, user string) *Session {
	return &Session{
		transport: t,
		user:      user,
		logger:    chatlink.NoopLogger{},
		now:       time.Now,
		state:     t.State(),
		updates:   make(chan Update, 256),
		done:      make(chan struct{}),
	}
}

// SetUploader enables Upload.
func (s *Session) SetUploader(u *upload.Uploader) { s.uploader = u }

// SetLogger overrides logger (optional).
func (s *Session) SetLogger(l chatlink.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Updates delivers changes in the order they happen. It must be drained
// while the session is running.
func (s *Session) Updates() <-chan Update { return s.updates }

// Done is closed by Close.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start subscribes to the transport and connects.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.unsubs = append(s.unsubs,
		s.transport.OnMessage(s.handleMessage),
		s.transport.OnStateChanged(s.handleState),
		s.transport.OnError(s.handleError),
	)
	s.mu.Unlock()

	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("session connect: %w", err)
	}
	return nil
}

// Send appends a local message and hands it to the transport. Sending
// is refused while the transport is not connected.
func (s *Session) Send(ctx context.Context, text string) error {
	if !s.CanSend() {
		return chatlink.NewError(chatlink.ErrorNotConnected, "cannot send while "+s.State().String())
	}

	idx, msg := s.append(Message{
		ID:        uuid.New(),
		Sender:    s.user,
		Content:   text,
		Timestamp: s.now(),
		Status:    StatusSending,
	})
	s.publish(Update{Kind: UpdateMessage, Index: idx, Message: msg})

	status := StatusSent
	err := s.transport.Send(ctx, text)
	if err != nil {
		status = StatusFailed
		s.logger.Warn("send failed", map[string]any{"error": err})
	}

	s.mu.Lock()
	s.messages[idx].Status = status
	msg = s.messages[idx]
	s.mu.Unlock()
	s.publish(Update{Kind: UpdateStatus, Index: idx, Message: msg})
	return err
}

// Upload runs an upload job, forwarding job snapshots as updates and
// recording the outcome in the transcript.
func (s *Session) Upload(ctx context.Context, path string) (upload.Job, error) {
	if s.uploader == nil {
		return upload.Job{}, fmt.Errorf("session: uploads not configured")
	}

	u := *s.uploader
	prev := u.OnUpdate
	u.OnUpdate = func(j upload.Job) {
		if prev != nil {
			prev(j)
		}
		s.publish(Update{Kind: UpdateUpload, Job: j})
	}

	job, err := u.Run(ctx, path)

	var text string
	name := filepath.Base(path)
	switch {
	case err == nil:
		text = fmt.Sprintf("%s processed", name)
	case job.Status == upload.StatusUnknown:
		text = fmt.Sprintf("%s could not be processed: %s", name, job.Detail)
	default:
		text = fmt.Sprintf("%s failed: %v", name, err)
	}
	s.addSystem(text)
	return job, err
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// State returns the last connection state seen.
func (s *Session) State() chatlink.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports the connectivity flag.
func (s *Session) Connected() bool { return s.State() == chatlink.StateConnected }

// CanSend gates the send affordance.
func (s *Session) CanSend() bool { return s.Connected() }

// Close unsubscribes and disconnects. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubs := s.unsubs
		s.unsubs = nil
		s.mu.Unlock()
		for _, u := range unsubs {
			u()
		}
		err = s.transport.Disconnect()
		close(s.done)
	})
	return err
}

func (s *Session) handleMessage(ev chatlink.MessageEvent) {
	idx, msg := s.append(Message{
		ID:        uuid.New(),
		Sender:    ev.Sender,
		Content:   ev.Text,
		Timestamp: ev.Timestamp,
		Status:    StatusReceived,
	})
	s.publish(Update{Kind: UpdateMessage, Index: idx, Message: msg})
}

func (s *Session) handleState(ev chatlink.StateEvent) {
	s.mu.Lock()
	s.state = ev.NewState
	s.mu.Unlock()

	s.publish(Update{
		Kind:      UpdateConnection,
		State:     ev.NewState,
		Connected: ev.NewState == chatlink.StateConnected,
		Err:       ev.Error,
	})
}

func (s *Session) handleError(err error) {
	s.publish(Update{Kind: UpdateError, Err: err})
}

func (s *Session) addSystem(text string) {
	idx, msg := s.append(Message{
		ID:        uuid.New(),
		Sender:    SystemSender,
		Content:   text,
		Timestamp: s.now(),
		Status:    StatusReceived,
	})
	s.publish(Update{Kind: UpdateMessage, Index: idx, Message: msg})
}

func (s *Session) append(m Message) (int, Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return len(s.messages) - 1, m
}

func (s *Session) publish(u Update) {
	select {
	case s.updates <- u:
	case <-s.done:
	}
}
