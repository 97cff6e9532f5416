package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/altpay/payment-pipeline/internal/domain"
	"github.com/altpay/payment-pipeline/internal/statemachine"
)

const numberAttempts = 5

type Service struct {
	payments     paymentRepository
	orchestrator *Orchestrator
	logger       *slog.Logger
}

func NewService(payments paymentRepository, orchestrator *Orchestrator, logger *slog.Logger) *Service {
	return &Service{
		payments:     payments,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

type CreatePaymentRequest struct {
	Amount    decimal.Decimal
	PayerName string
}

// CreatePayment persists a payment in NEW and immediately fires
// PRE_AUTHORIZE. A failed fire does not fail the creation: the payment
// stays in NEW and the fire can be repeated via PreAuthorize.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("CreatePayment: %w", domain.ErrInvalidAmount)
	}
	if req.PayerName == "" || !domain.ValidPayerName(req.PayerName) {
		return nil, fmt.Errorf("CreatePayment: %w", domain.ErrInvalidPayerName)
	}

	p, err := s.insertWithFreshNumber(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePayment: %w", err)
	}

	res, err := s.orchestrator.PreAuthorize(ctx, p.PaymentNumber)
	if err != nil {
		// Payment exists in NEW; the caller can re-fire later.
		s.logger.Warn("pre-authorization deferred",
			"payment_number", p.PaymentNumber,
			"error", err,
		)
		return p, nil
	}
	p.State = res.State

	return p, nil
}

func (s *Service) insertWithFreshNumber(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error) {
	for range numberAttempts {
		p := &domain.Payment{
			ID:            uuid.New(),
			PaymentNumber: generatePaymentNumber(time.Now()),
			Amount:        req.Amount,
			Timestamp:     time.Now().UTC(),
			PayerName:     req.PayerName,
			State:         domain.StateNew,
		}
		err := s.payments.Create(ctx, p)
		if errors.Is(err, domain.ErrDuplicateNumber) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, domain.ErrDuplicateNumber
}

// PreAuthorize re-fires PRE_AUTHORIZE for a payment stalled in NEW.
func (s *Service) PreAuthorize(ctx context.Context, number int64) (statemachine.Result, error) {
	res, err := s.orchestrator.PreAuthorize(ctx, number)
	if err != nil {
		return res, fmt.Errorf("PreAuthorize: %w", err)
	}
	return res, nil
}

// Authorize publishes the auth-leg request for a payment that passed
// pre-authorization. The state machine only moves when the response event
// comes back.
func (s *Service) Authorize(ctx context.Context, number int64) error {
	p, err := s.payments.GetByPaymentNumber(ctx, number)
	if err != nil {
		return fmt.Errorf("Authorize: %w", err)
	}
	if p.State != domain.StateAuth {
		return fmt.Errorf("Authorize: %w", domain.ErrNotAuthorizable)
	}

	if err := s.orchestrator.PublishAuthRequest(ctx, p); err != nil {
		return fmt.Errorf("Authorize: %w", err)
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (s *Service) GetByPaymentNumber(ctx context.Context, number int64) (*domain.Payment, error) {
	p, err := s.payments.GetByPaymentNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("GetByPaymentNumber: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.Payment, error) {
	payments, err := s.payments.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return payments, nil
}

func (s *Service) ListByPayerName(ctx context.Context, payerName string, limit, offset int) ([]domain.Payment, error) {
	payments, err := s.payments.ListByPayerName(ctx, payerName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ListByPayerName: %w", err)
	}
	return payments, nil
}

// generatePaymentNumber builds the human-facing number: month, day, hour
// and minute of creation plus one random digit. Collisions inside the same
// minute are resolved by the unique constraint and a retry.
func generatePaymentNumber(now time.Time) int64 {
	s := now.Format("01021504") + strconv.Itoa(rand.Intn(9))
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
