package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handler(_ context.Context, msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) last() Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.msgs[len(c.msgs)-1]
}

func TestMemoryTransport_PatternDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := NewMemoryTransport()
	var preAuth, auth collector

	require.NoError(t, transport.Subscribe(ctx, Pattern(PreAuthRequestKeyPrefix), preAuth.handler))
	require.NoError(t, transport.Subscribe(ctx, Pattern(AuthRequestKeyPrefix), auth.handler))

	key := Key(PreAuthRequestKeyPrefix, 83122150)
	require.NoError(t, transport.Publish(ctx, key, []byte(`{"hello":"world"}`)))

	require.Eventually(t, func() bool { return preAuth.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, key, preAuth.last().Key)
	assert.Equal(t, []byte(`{"hello":"world"}`), preAuth.last().Payload)
	assert.Equal(t, 0, auth.count(), "auth-leg subscriber must not see pre-auth traffic")
}

func TestMemoryTransport_SubscriptionStopsOnCancel(t *testing.T) {
	ctx := context.Background()
	subCtx, cancel := context.WithCancel(ctx)

	transport := NewMemoryTransport()
	var c collector
	require.NoError(t, transport.Subscribe(subCtx, Pattern(PreAuthResponseKeyPrefix), c.handler))

	cancel()

	// Give the subscriber goroutine a moment to unregister.
	require.Eventually(t, func() bool {
		transport.mu.RLock()
		defer transport.mu.RUnlock()
		return len(transport.subs) == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, transport.Publish(ctx, Key(PreAuthResponseKeyPrefix, 1), []byte("late")))
	assert.Equal(t, 0, c.count())
}

func TestMemoryTransport_ClosedRejectsPublish(t *testing.T) {
	transport := NewMemoryTransport()
	require.NoError(t, transport.Close())

	err := transport.Publish(context.Background(), Key(PreAuthRequestKeyPrefix, 1), nil)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestKeyAndPattern(t *testing.T) {
	assert.Equal(t, "payment.stub.pre.auth.req.83122150", Key(PreAuthRequestKeyPrefix, 83122150))
	assert.Equal(t, "payment.stub.pre.auth.req.*", Pattern(PreAuthRequestKeyPrefix))
}
