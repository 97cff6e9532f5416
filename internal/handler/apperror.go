package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount    = &AppError{http.StatusUnprocessableEntity, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrInvalidPayerName = &AppError{http.StatusUnprocessableEntity, "INVALID_PAYER_NAME", "Payer name must contain only letters"}
	ErrNotAuthorizable  = &AppError{http.StatusConflict, "NOT_AUTHORIZABLE", "Payment is not awaiting authorization"}
)
