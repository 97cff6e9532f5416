package preauth

import (
	"context"
	"math/rand"
	"sync"

	"github.com/altpay/payment-pipeline/internal/messaging"
)

// Policy decides whether a payment is approved. The decision rule is
// injectable so tests can force either outcome.
type Policy interface {
	Approve(ctx context.Context, p messaging.PaymentSnapshot) bool
}

// PolicyFunc adapts a plain function to Policy.
type PolicyFunc func(ctx context.Context, p messaging.PaymentSnapshot) bool

func (f PolicyFunc) Approve(ctx context.Context, p messaging.PaymentSnapshot) bool {
	return f(ctx, p)
}

// RandomPolicy is the stub decision rule: approve 2 out of 5 requests. It
// stands in for real underwriting logic.
type RandomPolicy struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewRandomPolicy(src rand.Source) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(src)}
}

func (p *RandomPolicy) Approve(_ context.Context, _ messaging.PaymentSnapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Intn(5) >= 3
}
