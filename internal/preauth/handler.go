package preauth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/altpay/payment-pipeline/internal/messaging"
)

// Handler is the stateless counterpart: it consumes request envelopes,
// applies the decision policy and replies on the response topic. It keeps
// no state and does not retry; a failed publish is logged and the request
// dropped, leaving the orchestrator's machine where it was.
type Handler struct {
	transport         messaging.Transport
	policy            Policy
	requestPattern    string
	responseKeyPrefix string
	logger            *slog.Logger
}

func NewHandler(transport messaging.Transport, policy Policy, requestPattern, responseKeyPrefix string, logger *slog.Logger) *Handler {
	return &Handler{
		transport:         transport,
		policy:            policy,
		requestPattern:    requestPattern,
		responseKeyPrefix: responseKeyPrefix,
		logger:            logger,
	}
}

func (h *Handler) Start(ctx context.Context) error {
	if err := h.transport.Subscribe(ctx, h.requestPattern, h.handle); err != nil {
		return fmt.Errorf("Start: %w", err)
	}
	h.logger.Info("pre-authorizer listening", "pattern", h.requestPattern)
	return nil
}

func (h *Handler) handle(ctx context.Context, msg messaging.Message) {
	var req messaging.Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.logger.Error("malformed request payload, dropping", "key", msg.Key, "error", err)
		return
	}

	h.logger.Info("processing authorization request",
		"request_id", req.RequestID,
		"payment_number", req.Payment.PaymentNumber,
		"payer_name", req.Payment.PayerName,
		"requested_at", req.Timestamp,
	)

	resp := messaging.Response{
		ResponseID: req.RequestID,
		Payment:    req.Payment,
		IsApproved: h.policy.Approve(ctx, req.Payment),
		Timestamp:  time.Now().UTC(),
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal response", "request_id", req.RequestID, "error", err)
		return
	}

	key := messaging.Key(h.responseKeyPrefix, req.Payment.PaymentNumber)
	if err := h.transport.Publish(ctx, key, payload); err != nil {
		h.logger.Error("failed to publish response, dropping request",
			"key", key,
			"request_id", req.RequestID,
			"error", err,
		)
		return
	}

	h.logger.Info("decision published",
		"key", key,
		"request_id", req.RequestID,
		"is_approved", resp.IsApproved,
	)
}
