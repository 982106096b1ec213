package service

import (
	"sync"

	"eventmarket/pkg/model"
)

type barrier struct {
	ch   chan struct{}
	refs int
}

// Notifier wakes goroutines waiting for a resource to be released. Waiters
// subscribe before checking the lock, so a release between the check and
// the wait is never missed.
//
// A key's barrier lives while it has subscribers; the last unsubscribe or
// the next Broadcast removes it. The zero Notifier is ready for use.
type Notifier struct {
	mu       sync.Mutex
	barriers map[model.ResourceKey]*barrier
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe returns a channel closed by the next Broadcast for key and a
// func that drops the subscription. The func is safe to call more than once.
func (n *Notifier) Subscribe(key model.ResourceKey) (<-chan struct{}, func()) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.barriers == nil {
		n.barriers = make(map[model.ResourceKey]*barrier)
	}
	b, ok := n.barriers[key]
	if !ok {
		b = &barrier{ch: make(chan struct{})}
		n.barriers[key] = b
	}
	b.refs++

	var once sync.Once
	return b.ch, func() {
		once.Do(func() { n.unsubscribe(key, b) })
	}
}

func (n *Notifier) unsubscribe(key model.ResourceKey, b *barrier) {
	n.mu.Lock()
	defer n.mu.Unlock()

	b.refs--
	if b.refs <= 0 && n.barriers[key] == b {
		delete(n.barriers, key)
	}
}

func (n *Notifier) Broadcast(key model.ResourceKey) {
	n.mu.Lock()
	b, ok := n.barriers[key]
	if ok {
		delete(n.barriers, key)
	}
	n.mu.Unlock()

	if ok {
		close(b.ch)
	}
}

// Waiting reports how many keys currently have subscribers.
func (n *Notifier) Waiting() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.barriers)
}
