package statemachine

import (
	"context"

	"github.com/altpay/payment-pipeline/internal/domain"
)

// Metadata carries message headers into guards and actions. The only header
// the payment pipeline uses is the payment number, the machine's keying
// identifier.
type Metadata map[string]any

const MetadataPaymentNumber = "payment_number"

func (m Metadata) PaymentNumber() (int64, bool) {
	n, ok := m[MetadataPaymentNumber].(int64)
	return n, ok
}

// Guard is a boolean precondition gating a transition. A false return is a
// normal negative outcome, not an error.
type Guard func(ctx context.Context, md Metadata) bool

// KeyPresent passes only when the metadata carries the payment number.
func KeyPresent(_ context.Context, md Metadata) bool {
	_, ok := md.PaymentNumber()
	return ok
}

// Action runs the side effect of a transition before the new state is
// persisted. payment is the loaded entity; target is the state the machine
// will move to if the action succeeds. Returning an error aborts the
// transition entirely.
type Action func(ctx context.Context, payment *domain.Payment, target domain.State, md Metadata) error

// Transition is one row of the table: (Source, Event) -> (Target, Guard, Action).
type Transition struct {
	Source domain.State
	Event  domain.Event
	Target domain.State
	Guard  Guard
	Action Action
}

// Table is a static declaration of the allowed moves. Terminal states simply
// have no rows, so any event fired against them is rejected.
type Table struct {
	rows map[domain.State]map[domain.Event]Transition
}

func NewTable(transitions ...Transition) Table {
	rows := make(map[domain.State]map[domain.Event]Transition)
	for _, t := range transitions {
		if _, ok := rows[t.Source]; !ok {
			rows[t.Source] = make(map[domain.Event]Transition)
		}
		rows[t.Source][t.Event] = t
	}
	return Table{rows: rows}
}

// Lookup returns the row for (state, event), if declared.
func (t Table) Lookup(state domain.State, event domain.Event) (Transition, bool) {
	tr, ok := t.rows[state][event]
	return tr, ok
}
