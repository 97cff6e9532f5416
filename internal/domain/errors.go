package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrInvalidPayerName = errors.New("payer name must contain only letters and spaces")
	ErrDuplicateNumber  = errors.New("payment number already taken")
	ErrStateConflict    = errors.New("payment state changed concurrently")
	ErrNotAuthorizable  = errors.New("payment is not awaiting authorization")
	ErrInvalidRequest   = errors.New("invalid request")
)
