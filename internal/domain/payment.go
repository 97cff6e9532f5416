package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is a payment's lifecycle state. After creation it is written
// exclusively by the state machine engine.
type State string

const (
	StateNew            State = "NEW"
	StatePreAuth        State = "PRE_AUTH"
	StatePreAuthError   State = "PRE_AUTH_ERROR"
	StateAuth           State = "AUTH"
	StateAuthError      State = "AUTH_ERROR"
	StateAuthAuthorized State = "AUTH_AUTHORIZED"
)

// IsTerminal reports whether the state accepts no further events.
func (s State) IsTerminal() bool {
	switch s {
	case StatePreAuthError, StateAuthError, StateAuthAuthorized:
		return true
	}
	return false
}

func (s State) IsValid() bool {
	switch s {
	case StateNew, StatePreAuth, StatePreAuthError, StateAuth, StateAuthError, StateAuthAuthorized:
		return true
	}
	return false
}

// Event drives a state transition.
type Event string

const (
	EventPreAuthorize    Event = "PRE_AUTHORIZE"
	EventPreAuthApproved Event = "PRE_AUTH_APPROVED"
	EventPreAuthDeclined Event = "PRE_AUTH_DECLINED"
	EventAuthApproved    Event = "AUTH_APPROVED"
	EventAuthDeclined    Event = "AUTH_DECLINED"
)

type Payment struct {
	ID            uuid.UUID
	PaymentNumber int64
	Amount        decimal.Decimal
	Timestamp     time.Time
	PayerName     string
	State         State
}

var payerNameRe = regexp.MustCompile(`^[a-zA-ZÀ-ÖØ-öø-ÿ\s]+$`)

// ValidPayerName accepts letters (including Latin-1 accents) and spaces.
func ValidPayerName(name string) bool {
	return payerNameRe.MatchString(name)
}
