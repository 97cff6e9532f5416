package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altpay/payment-pipeline/internal/domain"
)

type memStore struct {
	mu       sync.Mutex
	payments map[int64]*domain.Payment
}

func newMemStore(payments ...*domain.Payment) *memStore {
	s := &memStore{payments: make(map[int64]*domain.Payment)}
	for _, p := range payments {
		s.payments[p.PaymentNumber] = p
	}
	return s
}

func (s *memStore) GetByPaymentNumber(_ context.Context, number int64) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[number]
	if !ok {
		return nil, fmt.Errorf("GetByPaymentNumber: %w", domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) UpdateState(_ context.Context, number int64, from, to domain.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[number]
	if !ok || p.State != from {
		return fmt.Errorf("UpdateState: %w", domain.ErrStateConflict)
	}
	p.State = to
	return nil
}

func (s *memStore) state(number int64) domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[number].State
}

func testPayment(number int64, state domain.State) *domain.Payment {
	return &domain.Payment{
		ID:            uuid.New(),
		PaymentNumber: number,
		Amount:        decimal.NewFromFloat(4.50),
		PayerName:     "John Green",
		State:         state,
	}
}

// paymentTable mirrors the orchestrator's table with a counting action so
// side effects can be asserted without a broker.
func paymentTable(actionCalls *atomic.Int64, actionErr error) Table {
	action := func(ctx context.Context, p *domain.Payment, target domain.State, md Metadata) error {
		if actionErr != nil {
			return actionErr
		}
		actionCalls.Add(1)
		return nil
	}

	return NewTable(
		Transition{Source: domain.StateNew, Event: domain.EventPreAuthorize, Target: domain.StatePreAuth, Guard: KeyPresent, Action: action},
		Transition{Source: domain.StatePreAuth, Event: domain.EventPreAuthApproved, Target: domain.StateAuth},
		Transition{Source: domain.StatePreAuth, Event: domain.EventPreAuthDeclined, Target: domain.StatePreAuthError},
		Transition{Source: domain.StateAuth, Event: domain.EventAuthApproved, Target: domain.StateAuthAuthorized},
		Transition{Source: domain.StateAuth, Event: domain.EventAuthDeclined, Target: domain.StateAuthError},
	)
}

func withKey(number int64) Metadata {
	return Metadata{MetadataPaymentNumber: number}
}

func TestEngine_Fire_AcceptsDeclaredTransition(t *testing.T) {
	var calls atomic.Int64
	store := newMemStore(testPayment(1001, domain.StateNew))
	engine := NewEngine(store, paymentTable(&calls, nil), slog.Default())

	res, err := engine.Fire(context.Background(), 1001, domain.EventPreAuthorize, withKey(1001))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, domain.StatePreAuth, res.State)
	assert.Equal(t, domain.StatePreAuth, store.state(1001))
	assert.Equal(t, int64(1), calls.Load())
}

func TestEngine_Fire_GuardRejectionLeavesStateUntouched(t *testing.T) {
	var calls atomic.Int64
	store := newMemStore(testPayment(1002, domain.StateNew))
	engine := NewEngine(store, paymentTable(&calls, nil), slog.Default())

	res, err := engine.Fire(context.Background(), 1002, domain.EventPreAuthorize, Metadata{})
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, domain.StateNew, res.State)
	assert.Equal(t, domain.StateNew, store.state(1002))
	assert.Equal(t, int64(0), calls.Load(), "action must not run on guard rejection")
}

func TestEngine_Fire_UndeclaredPairRejected(t *testing.T) {
	var calls atomic.Int64
	store := newMemStore(testPayment(1003, domain.StateNew))
	engine := NewEngine(store, paymentTable(&calls, nil), slog.Default())

	res, err := engine.Fire(context.Background(), 1003, domain.EventAuthApproved, withKey(1003))
	require.NoError(t, err, "rejection is not an error")
	assert.False(t, res.Accepted)
	assert.Equal(t, domain.StateNew, store.state(1003))
}

func TestEngine_Fire_TerminalStatesAcceptNothing(t *testing.T) {
	events := []domain.Event{
		domain.EventPreAuthorize,
		domain.EventPreAuthApproved,
		domain.EventPreAuthDeclined,
		domain.EventAuthApproved,
		domain.EventAuthDeclined,
	}

	for _, terminal := range []domain.State{domain.StatePreAuthError, domain.StateAuthError, domain.StateAuthAuthorized} {
		t.Run(string(terminal), func(t *testing.T) {
			var calls atomic.Int64
			store := newMemStore(testPayment(2000, terminal))
			engine := NewEngine(store, paymentTable(&calls, nil), slog.Default())

			for _, ev := range events {
				res, err := engine.Fire(context.Background(), 2000, ev, withKey(2000))
				require.NoError(t, err)
				assert.False(t, res.Accepted)
				assert.Equal(t, terminal, store.state(2000))
			}
		})
	}
}

func TestEngine_Fire_ActionFailureAbortsTransition(t *testing.T) {
	var calls atomic.Int64
	actionErr := errors.New("broker unavailable")
	store := newMemStore(testPayment(1004, domain.StateNew))
	engine := NewEngine(store, paymentTable(&calls, actionErr), slog.Default())

	res, err := engine.Fire(context.Background(), 1004, domain.EventPreAuthorize, withKey(1004))
	require.ErrorIs(t, err, actionErr)
	assert.False(t, res.Accepted)
	assert.Equal(t, domain.StateNew, store.state(1004), "state must not advance when the action fails")

	// The pre-action state is unchanged, so the same fire can be retried.
	retry := NewEngine(store, paymentTable(&calls, nil), slog.Default())
	res, err = retry.Fire(context.Background(), 1004, domain.EventPreAuthorize, withKey(1004))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, domain.StatePreAuth, store.state(1004))
}

func TestEngine_Fire_UnknownKey(t *testing.T) {
	var calls atomic.Int64
	engine := NewEngine(newMemStore(), paymentTable(&calls, nil), slog.Default())

	_, err := engine.Fire(context.Background(), 9999, domain.EventPreAuthorize, withKey(9999))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEngine_Fire_ConcurrentFiresSerializePerKey(t *testing.T) {
	const workers = 32

	var calls atomic.Int64
	store := newMemStore(testPayment(3000, domain.StateNew))
	engine := NewEngine(store, paymentTable(&calls, nil), slog.Default())

	fireAll := func(event domain.Event) int64 {
		var accepted atomic.Int64
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := engine.Fire(context.Background(), 3000, event, withKey(3000))
				assert.NoError(t, err)
				if res.Accepted {
					accepted.Add(1)
				}
			}()
		}
		wg.Wait()
		return accepted.Load()
	}

	assert.Equal(t, int64(1), fireAll(domain.EventPreAuthorize), "exactly one PRE_AUTHORIZE must win")
	assert.Equal(t, domain.StatePreAuth, store.state(3000))
	assert.Equal(t, int64(1), calls.Load(), "the action must run exactly once")

	assert.Equal(t, int64(1), fireAll(domain.EventPreAuthApproved))
	assert.Equal(t, domain.StateAuth, store.state(3000))
}

func TestEngine_CanFire(t *testing.T) {
	var calls atomic.Int64
	store := newMemStore(testPayment(1005, domain.StatePreAuth))
	engine := NewEngine(store, paymentTable(&calls, nil), slog.Default())

	ok, err := engine.CanFire(context.Background(), 1005, domain.EventPreAuthApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.CanFire(context.Background(), 1005, domain.EventAuthApproved)
	require.NoError(t, err)
	assert.False(t, ok)
}
