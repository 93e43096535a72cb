package util

import "sync"

// Mailbox keeps only the newest value put into it. Put never blocks; a
// consumer waits on Notify and then calls Take.
type Mailbox[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
	notify  chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		notify: make(chan struct{}, 1),
	}
}

// Put replaces the held value and wakes the consumer unless a wakeup is
// already pending.
func (m *Mailbox[T]) Put(value T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.value = value
	m.pending = true
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Mailbox[T]) Notify() <-chan struct{} {
	return m.notify
}

// Take returns the newest value and whether it arrived since the last
// Take.
func (m *Mailbox[T]) Take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := m.pending
	m.pending = false
	return m.value, fresh
}
