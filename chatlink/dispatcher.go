package chatlink

import "sync"

// Dispatcher fans out transport events to subscribers. Every subscriber
// of a kind sees every event of that kind, in the order Emit is called.
type Dispatcher struct {
	messages listeners[MessageEvent]
	states   listeners[StateEvent]
	errors   listeners[error]
}

func (d *Dispatcher) SubscribeMessages(fn func(MessageEvent)) func() { return d.messages.add(fn) }
func (d *Dispatcher) SubscribeStates(fn func(StateEvent)) func()     { return d.states.add(fn) }
func (d *Dispatcher) SubscribeErrors(fn func(error)) func()          { return d.errors.add(fn) }

// Dispatch routes a decoded frame.
func (d *Dispatcher) Dispatch(f Frame) {
	switch f.Kind {
	case FrameMessage:
		d.messages.emit(f.Message)
	case FrameError:
		d.errors.emit(WrapError(ErrorServer, "", f.Err))
	}
}

func (d *Dispatcher) emitState(ev StateEvent) { d.states.emit(ev) }

func (d *Dispatcher) emitError(err error) {
	if err != nil {
		d.errors.emit(err)
	}
}

type subscription[T any] struct {
	id uint64
	fn func(T)
}

type listeners[T any] struct {
	mu   sync.Mutex
	next uint64
	subs []subscription[T]
}

func (l *listeners[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	l.mu.Lock()
	l.next++
	id := l.next
	l.subs = append(l.subs, subscription[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(id) })
	}
}

func (l *listeners[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
			return
		}
	}
}

// emit calls subscribers outside the lock so a callback may unsubscribe.
func (l *listeners[T]) emit(v T) {
	l.mu.Lock()
	subs := l.subs
	l.mu.Unlock()
	for _, s := range subs {
		s.fn(v)
	}
}
