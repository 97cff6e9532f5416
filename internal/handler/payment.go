package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/altpay/payment-pipeline/internal/cache"
	"github.com/altpay/payment-pipeline/internal/domain"
	"github.com/altpay/payment-pipeline/internal/logging"
	"github.com/altpay/payment-pipeline/internal/service"
	"github.com/altpay/payment-pipeline/internal/statemachine"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type paymentService interface {
	CreatePayment(ctx context.Context, req service.CreatePaymentRequest) (*domain.Payment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByPaymentNumber(ctx context.Context, number int64) (*domain.Payment, error)
	List(ctx context.Context, limit, offset int) ([]domain.Payment, error)
	ListByPayerName(ctx context.Context, payerName string, limit, offset int) ([]domain.Payment, error)
	PreAuthorize(ctx context.Context, number int64) (statemachine.Result, error)
	Authorize(ctx context.Context, number int64) error
}

type paymentCache interface {
	Get(ctx context.Context, key string) (*domain.Payment, error)
	Set(ctx context.Context, key string, p *domain.Payment) error
}

type PaymentHandler struct {
	payments paymentService
	cache    paymentCache
}

func NewPaymentHandler(payments paymentService, c paymentCache) *PaymentHandler {
	return &PaymentHandler{payments: payments, cache: c}
}

func (h *PaymentHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/payment", h.Create)
	mux.HandleFunc("GET /api/v1/payment", h.List)
	mux.HandleFunc("GET /api/v1/payment/find", h.GetByNumber)
	mux.HandleFunc("GET /api/v1/payment/find/id/{id}", h.GetByID)
	mux.HandleFunc("GET /api/v1/payment/find/name/{payer_name}", h.ListByPayer)
	mux.HandleFunc("POST /api/v1/payment/{number}/pre-authorize", h.PreAuthorize)
	mux.HandleFunc("POST /api/v1/payment/{number}/authorize", h.Authorize)
}

// Identity, timestamp and state are server-owned; a client supplying them
// fails validation before the core is ever involved.
type createPaymentRequest struct {
	ID            *uuid.UUID       `json:"id"`
	PaymentNumber *int64           `json:"payment_number"`
	Amount        *decimal.Decimal `json:"amount"`
	Timestamp     *time.Time       `json:"timestamp"`
	PayerName     string           `json:"payer_name"`
	State         *string          `json:"state"`
}

func (r createPaymentRequest) Validate() []FieldError {
	var errs []FieldError

	if r.ID != nil {
		errs = append(errs, FieldError{Field: "id", Message: "must not be set"})
	}
	if r.PaymentNumber != nil {
		errs = append(errs, FieldError{Field: "payment_number", Message: "must not be set"})
	}
	if r.Timestamp != nil {
		errs = append(errs, FieldError{Field: "timestamp", Message: "must not be set"})
	}
	if r.State != nil {
		errs = append(errs, FieldError{Field: "state", Message: "must not be set"})
	}

	if r.Amount == nil {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	} else if !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be greater than zero"})
	}

	if r.PayerName == "" {
		errs = append(errs, FieldError{Field: "payer_name", Message: "required"})
	} else if !domain.ValidPayerName(r.PayerName) {
		errs = append(errs, FieldError{Field: "payer_name", Message: "must contain only letters and spaces"})
	}

	return errs
}

type paymentDTO struct {
	ID            uuid.UUID       `json:"id"`
	PaymentNumber int64           `json:"payment_number"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	PayerName     string          `json:"payer_name"`
	State         string          `json:"state"`
}

func toPaymentDTO(p *domain.Payment) paymentDTO {
	return paymentDTO{
		ID:            p.ID,
		PaymentNumber: p.PaymentNumber,
		Amount:        p.Amount,
		Timestamp:     p.Timestamp,
		PayerName:     p.PayerName,
		State:         string(p.State),
	}
}

func toPaymentDTOs(payments []domain.Payment) []paymentDTO {
	dtos := make([]paymentDTO, 0, len(payments))
	for i := range payments {
		dtos = append(dtos, toPaymentDTO(&payments[i]))
	}
	return dtos
}

func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	p, err := h.payments.CreatePayment(r.Context(), service.CreatePaymentRequest{
		Amount:    *req.Amount,
		PayerName: req.PayerName,
	})
	if err != nil {
		log.Warn("payment creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/payment/find/id/%s", p.ID))
	RespondSuccess(w, http.StatusCreated, toPaymentDTO(p))
}

func (h *PaymentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if p, err := h.cache.Get(r.Context(), id.String()); err == nil {
		RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
		return
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn("payment cache read failed", "error", err)
	}

	p, err := h.payments.GetByID(r.Context(), id)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if err := h.cache.Set(r.Context(), id.String(), p); err != nil {
		log.Warn("payment cache write failed", "error", err)
	}
	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) GetByNumber(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	number, err := strconv.ParseInt(r.URL.Query().Get("number"), 10, 64)
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	key := strconv.FormatInt(number, 10)
	if p, err := h.cache.Get(r.Context(), key); err == nil {
		RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
		return
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Warn("payment cache read failed", "error", err)
	}

	p, err := h.payments.GetByPaymentNumber(r.Context(), number)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	if err := h.cache.Set(r.Context(), key, p); err != nil {
		log.Warn("payment cache write failed", "error", err)
	}
	RespondSuccess(w, http.StatusOK, toPaymentDTO(p))
}

func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	payments, err := h.payments.List(r.Context(), limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toPaymentDTOs(payments))
}

func (h *PaymentHandler) ListByPayer(w http.ResponseWriter, r *http.Request) {
	payerName := r.PathValue("payer_name")
	limit, offset := pagination(r)

	payments, err := h.payments.ListByPayerName(r.Context(), payerName, limit, offset)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toPaymentDTOs(payments))
}

// PreAuthorize re-fires the pre-authorization request for a payment that is
// still in NEW, typically after a broker outage at creation time.
func (h *PaymentHandler) PreAuthorize(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	number, err := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := h.payments.PreAuthorize(r.Context(), number)
	if err != nil {
		log.Warn("pre-authorization request failed", "payment_number", number, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusAccepted, map[string]any{
		"payment_number": number,
		"accepted":       res.Accepted,
		"state":          string(res.State),
	})
}

func (h *PaymentHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	number, err := strconv.ParseInt(r.PathValue("number"), 10, 64)
	if err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if err := h.payments.Authorize(r.Context(), number); err != nil {
		log.Warn("authorization request failed", "payment_number", number, "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusAccepted, map[string]any{"payment_number": number})
}

func pagination(r *http.Request) (limit, offset int) {
	q := r.URL.Query()

	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 0 {
		page = 0
	}
	return size, page * size
}
