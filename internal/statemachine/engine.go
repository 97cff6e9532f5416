package statemachine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/altpay/payment-pipeline/internal/domain"
)

// Store is the durable source of truth for payment state. The engine never
// trusts an in-memory copy across calls: every fire re-reads the entity.
type Store interface {
	GetByPaymentNumber(ctx context.Context, number int64) (*domain.Payment, error)
	// UpdateState persists the new state as a single compare-and-set write.
	// It must fail with domain.ErrStateConflict when the persisted state no
	// longer matches from.
	UpdateState(ctx context.Context, number int64, from, to domain.State) error
}

// Result reports the outcome of a fire. Accepted is false for unknown
// (state, event) pairs and failed guards; both leave State at the value it
// had when the event arrived.
type Result struct {
	Accepted bool
	State    domain.State
}

// Engine applies events against the transition table, one transition at a
// time per key. The sequence read state -> guard -> action -> persist runs
// under a per-key lock so concurrent fires on the same payment cannot
// interleave.
type Engine struct {
	store  Store
	table  Table
	locks  *keyLocks
	logger *slog.Logger
}

func NewEngine(store Store, table Table, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		table:  table,
		locks:  newKeyLocks(),
		logger: logger,
	}
}

// Fire applies event to the machine keyed by the payment number. Rejections
// (no matching row, guard failure) return Accepted=false and a nil error.
// Action and persistence failures abort the transition and are returned to
// the caller; the persisted state is unchanged and the fire is safe to retry.
func (e *Engine) Fire(ctx context.Context, key int64, event domain.Event, md Metadata) (Result, error) {
	e.locks.lock(key)
	defer e.locks.unlock(key)

	p, err := e.store.GetByPaymentNumber(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("Fire: %w", err)
	}

	tr, ok := e.table.Lookup(p.State, event)
	if !ok {
		e.logger.Warn("transition not allowed",
			"payment_number", key,
			"state", p.State,
			"event", event,
		)
		return Result{Accepted: false, State: p.State}, nil
	}

	if tr.Guard != nil && !tr.Guard(ctx, md) {
		e.logger.Info("transition rejected by guard",
			"payment_number", key,
			"state", p.State,
			"event", event,
		)
		return Result{Accepted: false, State: p.State}, nil
	}

	if tr.Action != nil {
		if err := tr.Action(ctx, p, tr.Target, md); err != nil {
			return Result{Accepted: false, State: p.State}, fmt.Errorf("Fire: action for %s: %w", event, err)
		}
	}

	if err := e.store.UpdateState(ctx, key, p.State, tr.Target); err != nil {
		return Result{Accepted: false, State: p.State}, fmt.Errorf("Fire: %w", err)
	}

	e.logger.Info("state changed",
		"payment_number", key,
		"from", p.State,
		"to", tr.Target,
		"event", event,
	)
	return Result{Accepted: true, State: tr.Target}, nil
}

// CanFire reports whether a row exists for the payment's current state and
// event without evaluating guards or running actions.
func (e *Engine) CanFire(ctx context.Context, key int64, event domain.Event) (bool, error) {
	p, err := e.store.GetByPaymentNumber(ctx, key)
	if err != nil {
		return false, fmt.Errorf("CanFire: %w", err)
	}
	_, ok := e.table.Lookup(p.State, event)
	return ok, nil
}
