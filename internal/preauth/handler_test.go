package preauth

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altpay/payment-pipeline/internal/messaging"
)

type responseRecorder struct {
	mu    sync.Mutex
	resps []messaging.Response
}

func (r *responseRecorder) handler(_ context.Context, msg messaging.Message) {
	var resp messaging.Response
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resps = append(r.resps, resp)
}

func (r *responseRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.resps)
}

func (r *responseRecorder) first() messaging.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resps[0]
}

func testRequest(number int64) messaging.Request {
	return messaging.Request{
		RequestID: uuid.New(),
		Payment: messaging.PaymentSnapshot{
			ID:            uuid.New(),
			PaymentNumber: number,
			Amount:        decimal.NewFromFloat(4.50),
			Timestamp:     time.Now().UTC(),
			PayerName:     "John Green",
			State:         "PRE_AUTH",
		},
		Timestamp: time.Now().UTC(),
	}
}

func startHandler(t *testing.T, ctx context.Context, transport messaging.Transport, policy Policy) {
	t.Helper()
	h := NewHandler(
		transport,
		policy,
		messaging.Pattern(messaging.PreAuthRequestKeyPrefix),
		messaging.PreAuthResponseKeyPrefix,
		slog.Default(),
	)
	require.NoError(t, h.Start(ctx))
}

func TestHandler_RepliesWithDecision(t *testing.T) {
	for _, approved := range []bool{true, false} {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		transport := messaging.NewMemoryTransport()
		startHandler(t, ctx, transport, PolicyFunc(func(context.Context, messaging.PaymentSnapshot) bool {
			return approved
		}))

		var rec responseRecorder
		require.NoError(t, transport.Subscribe(ctx, messaging.Pattern(messaging.PreAuthResponseKeyPrefix), rec.handler))

		req := testRequest(83122150)
		payload, err := json.Marshal(req)
		require.NoError(t, err)
		require.NoError(t, transport.Publish(ctx, messaging.Key(messaging.PreAuthRequestKeyPrefix, 83122150), payload))

		require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 10*time.Millisecond)

		resp := rec.first()
		assert.Equal(t, req.RequestID, resp.ResponseID, "response echoes the request id")
		assert.Equal(t, req.Payment, resp.Payment)
		assert.Equal(t, approved, resp.IsApproved)
		assert.False(t, resp.Timestamp.IsZero())
	}
}

func TestHandler_MalformedRequestDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport := messaging.NewMemoryTransport()
	startHandler(t, ctx, transport, PolicyFunc(func(context.Context, messaging.PaymentSnapshot) bool {
		t.Error("policy must not run for malformed payloads")
		return false
	}))

	var rec responseRecorder
	require.NoError(t, transport.Subscribe(ctx, messaging.Pattern(messaging.PreAuthResponseKeyPrefix), rec.handler))

	require.NoError(t, transport.Publish(ctx, messaging.Key(messaging.PreAuthRequestKeyPrefix, 1), []byte("not json")))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestRandomPolicy_ApprovesTwoOfFive(t *testing.T) {
	policy := NewRandomPolicy(rand.NewSource(1))

	approved := 0
	const runs = 10_000
	for range runs {
		if policy.Approve(context.Background(), messaging.PaymentSnapshot{}) {
			approved++
		}
	}

	rate := float64(approved) / runs
	assert.InDelta(t, 0.4, rate, 0.03)
}
