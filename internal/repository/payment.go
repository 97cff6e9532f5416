package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/altpay/payment-pipeline/internal/domain"
)

const paymentColumns = `id, payment_number, amount, created_at, payer_name, payment_state`

type scanner interface {
	Scan(dest ...any) error
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, payment_number, amount, created_at, payer_name, payment_state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PaymentNumber, p.Amount, p.Timestamp, p.PayerName, p.State,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateNumber)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByPaymentNumber(ctx context.Context, number int64) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_number = $1`, number,
	)
	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByPaymentNumber: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByPaymentNumber: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) List(ctx context.Context, limit, offset int) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows, "List")
}

func (r *PaymentRepository) ListByPayerName(ctx context.Context, payerName string, limit, offset int) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payer_name = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		payerName, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPayerName: %w", err)
	}
	defer rows.Close()
	return collectPayments(rows, "ListByPayerName")
}

// UpdateState is the engine's single durable write: a compare-and-set on
// the state column. Matching zero rows means either the payment vanished or
// another writer advanced it first.
func (r *PaymentRepository) UpdateState(ctx context.Context, number int64, from, to domain.State) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET payment_state = $1 WHERE payment_number = $2 AND payment_state = $3`,
		to, number, from,
	)
	if err != nil {
		return fmt.Errorf("UpdateState: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateState: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateState: %w", domain.ErrStateConflict)
	}
	return nil
}

func scanPayment(s scanner) (*domain.Payment, error) {
	var p domain.Payment
	if err := s.Scan(&p.ID, &p.PaymentNumber, &p.Amount, &p.Timestamp, &p.PayerName, &p.State); err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPayments(rows *sql.Rows, op string) ([]domain.Payment, error) {
	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return payments, nil
}
