// Package ledger_repo provides PostgreSQL implementations of the ledger repositories.
// Every repository resolves its querier from ctx, so the same code runs inside
// the tenant transaction and outside of it.
package ledger_repo

import (
	"github.com/Masterminds/squirrel"

	"tpvcore/internal/infrastructure/storage/postgres"
)

// builder returns a squirrel builder with PostgreSQL placeholder format.
func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// base is embedded by every repository.
type base struct {
	db postgres.QuerierProvider
}
