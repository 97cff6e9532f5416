package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/altpay/payment-pipeline/internal/domain"
)

// PaymentSnapshot is the payment's public fields as they travel on the wire.
// Field names are wire-stable; both services decode the same shape.
type PaymentSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	PaymentNumber int64           `json:"payment_number"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	PayerName     string          `json:"payer_name"`
	State         string          `json:"state"`
}

// Snapshot copies the payment's public fields with state overridden, so the
// envelope reflects the state the machine is moving to rather than the one
// still persisted.
func Snapshot(p *domain.Payment, state domain.State) PaymentSnapshot {
	return PaymentSnapshot{
		ID:            p.ID,
		PaymentNumber: p.PaymentNumber,
		Amount:        p.Amount,
		Timestamp:     p.Timestamp,
		PayerName:     p.PayerName,
		State:         string(state),
	}
}

// Request asks the counterpart for an authorization decision. Created by the
// sender, consumed and discarded by the receiver; never persisted.
type Request struct {
	RequestID uuid.UUID       `json:"request_id"`
	Payment   PaymentSnapshot `json:"payment"`
	Timestamp time.Time       `json:"timestamp"`
}

// Response carries the decision back. ResponseID echoes the request id of
// the request it answers.
type Response struct {
	ResponseID uuid.UUID       `json:"response_id"`
	Payment    PaymentSnapshot `json:"payment"`
	IsApproved bool            `json:"is_approved"`
	Timestamp  time.Time       `json:"timestamp"`
}
