package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/altpay/payment-pipeline/internal/domain"
	"github.com/altpay/payment-pipeline/internal/messaging"
	"github.com/altpay/payment-pipeline/internal/statemachine"
)

// Orchestrator owns the transition table and the machine engine, and wires
// both legs of the messaging protocol: the outbound pre-auth request action
// and the inbound response subscriptions that feed decisions back into the
// per-key machine.
type Orchestrator struct {
	payments  paymentRepository
	transport messaging.Transport
	engine    *statemachine.Engine
	logger    *slog.Logger
}

func NewOrchestrator(payments paymentRepository, transport messaging.Transport, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{
		payments:  payments,
		transport: transport,
		logger:    logger,
	}

	table := statemachine.NewTable(
		statemachine.Transition{
			Source: domain.StateNew,
			Event:  domain.EventPreAuthorize,
			Target: domain.StatePreAuth,
			Guard:  statemachine.KeyPresent,
			Action: o.publishPreAuthRequest,
		},
		statemachine.Transition{
			Source: domain.StatePreAuth,
			Event:  domain.EventPreAuthApproved,
			Target: domain.StateAuth,
		},
		statemachine.Transition{
			Source: domain.StatePreAuth,
			Event:  domain.EventPreAuthDeclined,
			Target: domain.StatePreAuthError,
		},
		statemachine.Transition{
			Source: domain.StateAuth,
			Event:  domain.EventAuthApproved,
			Target: domain.StateAuthAuthorized,
		},
		statemachine.Transition{
			Source: domain.StateAuth,
			Event:  domain.EventAuthDeclined,
			Target: domain.StateAuthError,
		},
	)

	o.engine = statemachine.NewEngine(payments, table, logger)
	return o
}

// Start binds the inbound response subscriptions. Handlers run until ctx is
// cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	err := o.transport.Subscribe(ctx,
		messaging.Pattern(messaging.PreAuthResponseKeyPrefix),
		o.responseHandler(domain.EventPreAuthApproved, domain.EventPreAuthDeclined),
	)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}

	err = o.transport.Subscribe(ctx,
		messaging.Pattern(messaging.AuthResponseKeyPrefix),
		o.responseHandler(domain.EventAuthApproved, domain.EventAuthDeclined),
	)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}

	o.logger.Info("orchestrator listening",
		"pre_auth_pattern", messaging.Pattern(messaging.PreAuthResponseKeyPrefix),
		"auth_pattern", messaging.Pattern(messaging.AuthResponseKeyPrefix),
	)
	return nil
}

// PreAuthorize fires PRE_AUTHORIZE for the payment, carrying its number as
// message metadata for the guard. Safe to re-fire while the payment is
// still NEW: a failed publish leaves the state untouched.
func (o *Orchestrator) PreAuthorize(ctx context.Context, number int64) (statemachine.Result, error) {
	md := statemachine.Metadata{statemachine.MetadataPaymentNumber: number}
	res, err := o.engine.Fire(ctx, number, domain.EventPreAuthorize, md)
	if err != nil {
		return res, fmt.Errorf("PreAuthorize: %w", err)
	}
	return res, nil
}

// PublishAuthRequest sends the auth-leg request for a payment already in
// AUTH. No state changes until the response event arrives.
func (o *Orchestrator) PublishAuthRequest(ctx context.Context, p *domain.Payment) error {
	if err := o.publishRequest(ctx, messaging.AuthRequestKeyPrefix, p, p.State); err != nil {
		return fmt.Errorf("PublishAuthRequest: %w", err)
	}
	return nil
}

// publishPreAuthRequest is the action on NEW --PRE_AUTHORIZE--> PRE_AUTH.
// The snapshot carries the target state; the engine persists it only after
// the publish succeeded, so a broker failure leaves the payment in NEW.
func (o *Orchestrator) publishPreAuthRequest(ctx context.Context, p *domain.Payment, target domain.State, _ statemachine.Metadata) error {
	return o.publishRequest(ctx, messaging.PreAuthRequestKeyPrefix, p, target)
}

func (o *Orchestrator) publishRequest(ctx context.Context, prefix string, p *domain.Payment, state domain.State) error {
	req := messaging.Request{
		RequestID: uuid.New(),
		Payment:   messaging.Snapshot(p, state),
		Timestamp: time.Now().UTC(),
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	key := messaging.Key(prefix, p.PaymentNumber)
	if err := o.transport.Publish(ctx, key, payload); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	o.logger.Info("authorization request published",
		"key", key,
		"request_id", req.RequestID,
		"payment_number", p.PaymentNumber,
	)
	return nil
}

// responseHandler converts an inbound response envelope into the approved
// or declined event and feeds it to the machine keyed by the embedded
// payment number. Malformed payloads, unknown keys, and stale or duplicate
// responses are logged and dropped.
func (o *Orchestrator) responseHandler(approved, declined domain.Event) messaging.Handler {
	return func(ctx context.Context, msg messaging.Message) {
		var resp messaging.Response
		if err := json.Unmarshal(msg.Payload, &resp); err != nil {
			o.logger.Error("malformed response payload, dropping", "key", msg.Key, "error", err)
			return
		}

		event := declined
		if resp.IsApproved {
			event = approved
		}

		number := resp.Payment.PaymentNumber
		md := statemachine.Metadata{statemachine.MetadataPaymentNumber: number}

		res, err := o.engine.Fire(ctx, number, event, md)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				o.logger.Warn("response for unknown payment, dropping",
					"payment_number", number,
					"response_id", resp.ResponseID,
				)
				return
			}
			o.logger.Error("failed to process response",
				"payment_number", number,
				"event", event,
				"error", err,
			)
			return
		}

		if !res.Accepted {
			o.logger.Warn("stale or duplicate response dropped",
				"payment_number", number,
				"event", event,
				"state", res.State,
			)
		}
	}
}
