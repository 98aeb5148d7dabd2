package service

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prperemyshlev/shop-session/internal/domain"
)

const defaultTopicBuffer = 32

type subscriber[T any] interface {
	offer(v T) bool
	close()
}

// Topic is a typed broadcast. Publish never blocks: a Subscribe channel whose
// buffer is full misses that value, while a SubscribeQueued channel queues it.
type Topic[T any] struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]subscriber[T]
	buffer int
}

// NewTopic creates a topic whose subscriber channels hold buffer values
func NewTopic[T any](buffer int) *Topic[T] {
	if buffer <= 0 {
		buffer = defaultTopicBuffer
	}
	return &Topic[T]{
		subs:   make(map[uuid.UUID]subscriber[T]),
		buffer: buffer,
	}
}

// Subscribe returns a receive channel and a func that unsubscribes and closes it.
func (t *Topic[T]) Subscribe() (<-chan T, func()) {
	sub := bufferedSub[T](make(chan T, t.buffer))
	return sub, t.add(sub)
}

// SubscribeQueued is Subscribe without loss: values that do not fit are queued
// in order until the subscriber reads them. For consumers whose every value
// matters, such as session transitions.
func (t *Topic[T]) SubscribeQueued() (<-chan T, func()) {
	sub := newMailbox[T]()
	return sub.out, t.add(sub)
}

func (t *Topic[T]) add(sub subscriber[T]) func() {
	id := uuid.New()

	t.mu.Lock()
	t.subs[id] = sub
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			sub.close()
		})
	}
}

// Publish delivers v to every subscriber that can take it.
// It returns the number of subscribers that received it.
func (t *Topic[T]) Publish(v T) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	delivered := 0
	for _, sub := range t.subs {
		if sub.offer(v) {
			delivered++
		}
	}
	return delivered
}

type bufferedSub[T any] chan T

func (b bufferedSub[T]) offer(v T) bool {
	select {
	case b <- v:
		return true
	default:
		return false
	}
}

func (b bufferedSub[T]) close() { close(b) }

// mailbox forwards an unbounded FIFO queue to out.
type mailbox[T any] struct {
	mu    sync.Mutex
	queue []T
	wake  chan struct{}
	done  chan struct{}
	out   chan T
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan T),
	}
	go m.forward()
	return m
}

func (m *mailbox[T]) offer(v T) bool {
	m.mu.Lock()
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox[T]) close() { close(m.done) }

func (m *mailbox[T]) forward() {
	defer close(m.out)

	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}

		for {
			m.mu.Lock()
			if len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			v := m.queue[0]
			var zero T
			m.queue[0] = zero
			m.queue = m.queue[1:]
			m.mu.Unlock()

			select {
			case m.out <- v:
			case <-m.done:
				return
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// EventBus groups the topics shared by the session components.
type EventBus struct {
	// Session carries every session state transition.
	Session *Topic[domain.SessionState]
	// CredentialRefreshed fires after a renewal persisted new credentials.
	CredentialRefreshed *Topic[struct{}]
	// Connection carries real-time channel state and last error.
	Connection *Topic[domain.ConnectionStatus]
	// Notification re-emits every inbound pushed notification.
	Notification *Topic[domain.Notification]
	// Banner carries in-app banners for the host UI.
	Banner *Topic[domain.Banner]
	// Native carries system notification commands for the host.
	Native *Topic[domain.NativeCommand]
}

// NewEventBus creates a bus whose Subscribe channels buffer up to buffer values.
// A non-positive buffer uses the default.
func NewEventBus(buffer int) *EventBus {
	return &EventBus{
		Session:             NewTopic[domain.SessionState](buffer),
		CredentialRefreshed: NewTopic[struct{}](buffer),
		Connection:          NewTopic[domain.ConnectionStatus](buffer),
		Notification:        NewTopic[domain.Notification](buffer),
		Banner:              NewTopic[domain.Banner](buffer),
		Native:              NewTopic[domain.NativeCommand](buffer),
	}
}
