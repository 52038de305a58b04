// Package repository provides data access interfaces and PostgreSQL
// implementations for the analysis service.
//
// All repository implementations are safe for concurrent use. Methods return
// domain errors (domain.ErrNotFound, domain.ErrAlreadyExists) where a caller
// is expected to branch on them, and wrap everything else with context.
//
// Repositories accept the DBTX interface so the same implementation works
// against the pool and inside a transaction:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    txRepo := repository.NewPgBatchRepository(tx)
//	    return txRepo.CreateJobs(ctx, batchID, paperIDs)
//	})
package repository

import (
	"github.com/paperpulse/analysis-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
