package domain

import "errors"

// Domain-specific errors for business logic validation.
var (
	// Request errors
	ErrRequestNotFound   = errors.New("request not found")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrStatusConflict    = errors.New("request status changed concurrently")

	// Validation errors
	ErrValidation          = errors.New("validation error")
	ErrInvalidRole         = errors.New("invalid actor role")
	ErrInvalidDocumentType = errors.New("invalid document type")
	ErrInvalidStatus       = errors.New("invalid request status")
)
