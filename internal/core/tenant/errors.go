package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when tenant does not exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrNoTenantInContext is returned when the caller carries no tenant.
	ErrNoTenantInContext = errors.New("tenant not found in context")
)
