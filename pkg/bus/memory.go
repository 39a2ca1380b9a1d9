package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is how many undelivered messages a subscriber may hold
// before further publishes to it are dropped.
const subscriberBuffer = 256

// MemoryBus delivers messages to in-process subscribers. It honours NATS
// style wildcards but keeps nothing once delivered.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*memorySubscription
	nextID uint64
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

// NewMemoryBus returns an empty, open bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[uint64]*memorySubscription)}
}

// Publish hands msg to every matching subscriber without waiting for it to
// be handled. A subscriber whose buffer is full misses the message.
func (b *MemoryBus) Publish(_ context.Context, subject string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	msg := &Message{Subject: subject, Data: data}
	for _, sub := range b.subs {
		if !matchSubject(sub.subject, subject) {
			continue
		}
		select {
		case sub.inbox <- msg:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe runs handler on its own goroutine for each message matching
// subject, in publish order, until Unsubscribe, Close or ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &memorySubscription{
		id:      b.nextID,
		subject: subject,
		inbox:   make(chan *Message, subscriberBuffer),
		quit:    make(chan struct{}),
		bus:     b,
	}
	b.subs[sub.id] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		sub.deliver(ctx, handler)
	}()
	return sub, nil
}

// Dropped reports how many messages were discarded because a subscriber's
// buffer was full.
func (b *MemoryBus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close ends every subscription and waits for their handlers to return.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.stop()
		delete(b.subs, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

type memorySubscription struct {
	id       uint64
	subject  string
	inbox    chan *Message
	quit     chan struct{}
	stopOnce sync.Once
	bus      *MemoryBus
}

func (s *memorySubscription) stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func (s *memorySubscription) deliver(ctx context.Context, handler MessageHandler) {
	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case msg := <-s.inbox:
			handler(msg)
		}
	}
}

// Unsubscribe stops delivery. Calling it again is a no-op.
func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.stop()
	return nil
}

func (s *memorySubscription) Subject() string {
	return s.subject
}

// matchSubject reports whether subject matches pattern. "*" matches exactly
// one token; a trailing ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	want := strings.Split(pattern, ".")
	got := strings.Split(subject, ".")
	for i, tok := range want {
		if tok == ">" {
			return i == len(want)-1 && len(got) > i
		}
		if i >= len(got) || (tok != "*" && tok != got[i]) {
			return false
		}
	}
	return len(want) == len(got)
}
