package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes returned in API error bodies.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeConflict           = "CONFLICT"
	CodeCorruption         = "CORRUPTION"
	CodeTransactionFailure = "TRANSACTION_FAILURE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError by code so errors.Is(err, ErrCorruption) style checks work.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Err == nil
}

// Code-only sentinels for errors.Is.
var (
	ErrValidation         = &AppError{Code: CodeValidation}
	ErrNotFound           = &AppError{Code: CodeNotFound}
	ErrInvalidStatus      = &AppError{Code: CodeInvalidStatus}
	ErrInvalidTransition  = &AppError{Code: CodeInvalidTransition}
	ErrConflict           = &AppError{Code: CodeConflict}
	ErrCorruption         = &AppError{Code: CodeCorruption}
	ErrTransactionFailure = &AppError{Code: CodeTransactionFailure}
)

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

func NewInvalidStatusError(value string) *AppError {
	return &AppError{
		Code:    CodeInvalidStatus,
		Message: fmt.Sprintf("Invalid status %q", value),
	}
}

func NewInvalidTransitionError(from, to Status) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("Transition from %s to %s is not allowed", from, to),
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

// NewCorruptionError signals that a master row holds a status with no partition.
func NewCorruptionError(requestID uint, status Status) *AppError {
	return &AppError{
		Code:    CodeCorruption,
		Message: fmt.Sprintf("Request %d has status %q which maps to no partition", requestID, status),
	}
}

func NewTransactionFailure(err error) *AppError {
	return &AppError{
		Code:    CodeTransactionFailure,
		Message: "Storage transaction failed",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal server error",
		Err:     err,
	}
}

// StatusForError maps an error to the HTTP status distinguishing client from server failures.
func StatusForError(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return fiber.StatusInternalServerError
	}
	switch appErr.Code {
	case CodeValidation, CodeInvalidStatus:
		return fiber.StatusBadRequest
	case CodeNotFound:
		return fiber.StatusNotFound
	case CodeInvalidTransition, CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	response := ErrorResponse{Success: false, Error: err.Error()}

	var appErr *AppError
	if errors.As(err, &appErr) {
		response.Error = appErr.Message
		response.Code = appErr.Code
		if appErr.Err != nil && status < fiber.StatusInternalServerError {
			response.Details = appErr.Err.Error()
		}
	}
	if status >= fiber.StatusInternalServerError && response.Code == "" {
		response.Error = "Internal server error"
		response.Code = CodeInternal
	}

	return c.Status(status).JSON(response)
}
