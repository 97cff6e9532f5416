package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/altpay/payment-pipeline/internal/domain"
)

// memRepo is an in-memory stand-in for the Postgres repository with the
// same compare-and-set semantics on UpdateState.
type memRepo struct {
	mu       sync.Mutex
	byNumber map[int64]*domain.Payment
}

func newMemRepo(payments ...*domain.Payment) *memRepo {
	r := &memRepo{byNumber: make(map[int64]*domain.Payment)}
	for _, p := range payments {
		cp := *p
		r.byNumber[p.PaymentNumber] = &cp
	}
	return r
}

func (r *memRepo) Create(_ context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byNumber[p.PaymentNumber]; ok {
		return fmt.Errorf("Create: %w", domain.ErrDuplicateNumber)
	}
	cp := *p
	r.byNumber[p.PaymentNumber] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byNumber {
		if p.ID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
}

func (r *memRepo) GetByPaymentNumber(_ context.Context, number int64) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byNumber[number]
	if !ok {
		return nil, fmt.Errorf("GetByPaymentNumber: %w", domain.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, limit, offset int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payments []domain.Payment
	for _, p := range r.byNumber {
		payments = append(payments, *p)
	}
	return payments, nil
}

func (r *memRepo) ListByPayerName(_ context.Context, payerName string, limit, offset int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var payments []domain.Payment
	for _, p := range r.byNumber {
		if p.PayerName == payerName {
			payments = append(payments, *p)
		}
	}
	return payments, nil
}

func (r *memRepo) UpdateState(_ context.Context, number int64, from, to domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byNumber[number]
	if !ok || p.State != from {
		return fmt.Errorf("UpdateState: %w", domain.ErrStateConflict)
	}
	p.State = to
	return nil
}

func (r *memRepo) state(number int64) domain.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byNumber[number].State
}
