package messaging

import (
	"context"
	"path"
	"sync"
)

// MemoryTransport is an in-process broker with the same pattern semantics as
// the Redis transport. Used by tests and single-process runs.
type MemoryTransport struct {
	mu     sync.RWMutex
	subs   []*memorySub
	closed bool
}

type memorySub struct {
	pattern string
	ch      chan Message
	ctx     context.Context
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

func (t *MemoryTransport) Publish(_ context.Context, key string, payload []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return ErrTransportClosed
	}

	for _, sub := range t.subs {
		matched, err := path.Match(sub.pattern, key)
		if err != nil || !matched {
			continue
		}
		select {
		case sub.ch <- Message{Key: key, Payload: payload}:
		case <-sub.ctx.Done():
		}
	}
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}

	sub := &memorySub{
		pattern: pattern,
		ch:      make(chan Message, 64),
		ctx:     ctx,
	}
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	go func() {
		defer t.remove(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.ch:
				handler(ctx, msg)
			}
		}
	}()
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *MemoryTransport) remove(sub *memorySub) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.subs {
		if s == sub {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return
		}
	}
}
