package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"tpvcore/internal/core/apperror"
	"tpvcore/internal/core/tenant"
)

// SQLSTATE codes the ledger reacts to.
const (
	sqlStateLockNotAvailable = "55P03"
	sqlStateQueryCanceled    = "57014"
	sqlStateUniqueViolation  = "23505"
)

// MapError converts driver errors into application errors.
// Lock and statement timeouts become LOCK_TIMEOUT, unique violations DUPLICATE_ENTRY.
// Errors that already are application errors pass through untouched.
func MapError(ctx context.Context, err error) error {
	if err == nil || apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateLockNotAvailable, sqlStateQueryCanceled:
			return apperror.NewLockTimeout(tenant.CallerTenantID(ctx)).WithCause(err)
		case sqlStateUniqueViolation:
			return apperror.NewDuplicate(tableEntity(pgErr.TableName), pgErr.ConstraintName, "").WithCause(err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewLockTimeout(tenant.CallerTenantID(ctx)).WithCause(err)
	}
	return err
}

func tableEntity(table string) string {
	if table == "" {
		return "record"
	}
	return table
}

// IsUniqueViolation reports whether err is a unique violation of the named constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != sqlStateUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
