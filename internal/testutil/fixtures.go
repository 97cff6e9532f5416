package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/altpay/payment-pipeline/internal/domain"
)

func SeedTestPayment(t *testing.T, db *sql.DB, number int64, state domain.State) *domain.Payment {
	t.Helper()

	p := &domain.Payment{
		ID:            uuid.New(),
		PaymentNumber: number,
		Amount:        decimal.NewFromFloat(4.50),
		Timestamp:     time.Now().UTC(),
		PayerName:     "John Green",
		State:         state,
	}

	_, err := db.Exec(
		`INSERT INTO payments (id, payment_number, amount, created_at, payer_name, payment_state)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.PaymentNumber, p.Amount, p.Timestamp, p.PayerName, p.State,
	)
	if err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func GetPaymentState(t *testing.T, db *sql.DB, number int64) domain.State {
	t.Helper()

	var state domain.State
	if err := db.QueryRow(`SELECT payment_state FROM payments WHERE payment_number = $1`, number).Scan(&state); err != nil {
		t.Fatalf("get payment state: %v", err)
	}
	return state
}
