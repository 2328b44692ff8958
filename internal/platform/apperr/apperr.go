// Package apperr defines the error taxonomy shared by the wallet, policy and
// organization domains and maps it onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is wrapped by repositories when a row does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed individual field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError for field.
func Validation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError aggregates every uniqueness rule a write would violate.
type ConflictError struct {
	Violations []string
}

func (e *ConflictError) Error() string {
	return "conflict: " + strings.Join(e.Violations, "; ")
}

// Conflict builds a ConflictError from one or more violation messages.
func Conflict(violations ...string) *ConflictError {
	return &ConflictError{Violations: violations}
}

// ConfigurationError marks a system defect (unsupported country, unknown
// contribution mechanism) as opposed to bad user input.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// Configuration builds a ConfigurationError.
func Configuration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// PermissionError is returned when the caller may not act on a resource.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Message
}

// Permission builds a PermissionError.
func Permission(format string, args ...interface{}) *PermissionError {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}

// CrossOrganizationError is raised when a policy managed by one organization
// is applied to a wallet managed by another.
type CrossOrganizationError struct {
	WalletOrganizationID uuid.UUID
	PolicyOrganizationID uuid.UUID
}

func (e *CrossOrganizationError) Error() string {
	return fmt.Sprintf("policy is managed by organization %s, wallet by %s",
		e.PolicyOrganizationID, e.WalletOrganizationID)
}

// CurrencyMismatchError is raised when a policy's currency differs from the
// wallet's.
type CurrencyMismatchError struct {
	WalletCurrency string
	PolicyCurrency string
}

func (e *CurrencyMismatchError) Error() string {
	return fmt.Sprintf("cannot apply %s policy to %s wallet", e.PolicyCurrency, e.WalletCurrency)
}

// HTTPStatus returns the status code a handler should answer with for err.
func HTTPStatus(err error) int {
	var (
		validation    *ValidationError
		conflict      *ConflictError
		configuration *ConfigurationError
		permission    *PermissionError
		crossOrg      *CrossOrganizationError
		mismatch      *CurrencyMismatchError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &crossOrg), errors.As(err, &mismatch):
		return http.StatusUnprocessableEntity
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &permission):
		return http.StatusForbidden
	case errors.As(err, &configuration):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
