package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/altpay/payment-pipeline/internal/domain"
)

type paymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByPaymentNumber(ctx context.Context, number int64) (*domain.Payment, error)
	List(ctx context.Context, limit, offset int) ([]domain.Payment, error)
	ListByPayerName(ctx context.Context, payerName string, limit, offset int) ([]domain.Payment, error)
	UpdateState(ctx context.Context, number int64, from, to domain.State) error
}
