package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Retryable PostgreSQL error codes.
// Reference: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 40 — Transaction Rollback
	pgErrSerializationFailure = "40001" // serialization_failure
	pgErrDeadlockDetected     = "40P01" // deadlock_detected

	// Class 08 — Connection Exception
	pgErrConnectionFailure    = "08006" // connection_failure
	pgErrConnectionException  = "08000" // connection_exception
	pgErrSQLClientCantConnect = "08001" // sqlclient_unable_to_establish_sqlconnection

	// Class 53 — Insufficient Resources
	pgErrInsufficientResources = "53000" // insufficient_resources
	pgErrDiskFull              = "53100" // disk_full
	pgErrOutOfMemory           = "53200" // out_of_memory
	pgErrTooManyConnections    = "53300" // too_many_connections

	// Class 57 — Operator Intervention
	pgErrQueryCanceled    = "57014" // query_canceled
	pgErrAdminShutdown    = "57P01" // admin_shutdown
	pgErrCrashShutdown    = "57P02" // crash_shutdown
	pgErrCannotConnectNow = "57P03" // cannot_connect_now
	pgErrDatabaseDropped  = "57P04" // database_dropped
)

// insertRetryLimit bounds TransactionWithRetry calls guarding the
// nonce-uniqueness insert path against transient serialization failures
// under concurrent submissions of distinct transfers.
const insertRetryLimit = 3

// Repository is the base wrapper every domain repository embeds: it
// resolves the ambient transaction (if any) out of ctx and exposes it
// through DB.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a base Repository over db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// txKey is the context key an active transaction is stashed under.
type txKey struct{}

// DB returns the transaction bound to ctx, or a plain context-scoped
// connection if none is active.
func (r *Repository) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// Transaction runs fn inside a single database transaction; any
// repository call made against the ctx passed to fn joins it
// automatically via DB.
func (r *Repository) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txCtx := context.WithValue(ctx, txKey{}, tx)
		return fn(txCtx)
	})
}

// TransactionWithRetry runs fn inside a transaction, retrying with
// exponential backoff when it fails with a retryable Postgres error
// (deadlock, serialization failure, transient connection loss). A
// non-retryable failure — e.g. a unique-constraint violation — returns
// on the first attempt.
func (r *Repository) TransactionWithRetry(ctx context.Context, maxRetries int, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = r.Transaction(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return err
		}
		time.Sleep(time.Duration(1<<uint(i)) * 100 * time.Millisecond)
	}
	return err
}

// isRetryableError reports whether err is a transient Postgres
// condition worth retrying: deadlock, serialization failure, connection
// loss, or resource exhaustion. Errors requiring operator intervention
// (disk full, out of memory, admin shutdown) are not retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		// Transaction rollback class — retryable.
		case pgErrSerializationFailure, pgErrDeadlockDetected:
			return true
		// Connection exception class — retryable.
		case pgErrConnectionFailure, pgErrConnectionException, pgErrSQLClientCantConnect:
			return true
		// Insufficient resources — retryable, likely transient.
		case pgErrInsufficientResources, pgErrTooManyConnections:
			return true
		// Operator intervention class — partially retryable.
		case pgErrQueryCanceled, pgErrCannotConnectNow:
			return true
		// Disk full / out of memory — needs operator intervention.
		case pgErrDiskFull, pgErrOutOfMemory:
			return false
		// Admin shutdown, crash, dropped database — not retryable.
		case pgErrAdminShutdown, pgErrCrashShutdown, pgErrDatabaseDropped:
			return false
		}
	}

	return false
}

// Pagination is a page/pageSize/total triple shared by every listing
// endpoint that supports paging.
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// Offset computes the row offset for the current page, defaulting to
// page 1 when unset.
func (p *Pagination) Offset() int {
	if p.Page <= 0 {
		p.Page = 1
	}
	return (p.Page - 1) * p.PageSize
}

// Limit returns the page size, defaulting to 50 and capped at 100.
func (p *Pagination) Limit() int {
	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p.PageSize
}

// QueryOptions carries row-locking preferences for a read that will be
// followed by a write to the same row within the same transaction.
type QueryOptions struct {
	ForUpdate bool
	NoWait    bool
}

// ApplyLock adds a `SELECT ... FOR UPDATE [NOWAIT]` clause to db when o
// requests it, otherwise returns db unchanged.
func (o *QueryOptions) ApplyLock(db *gorm.DB) *gorm.DB {
	if o == nil || !o.ForUpdate {
		return db
	}
	if o.NoWait {
		return db.Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "NOWAIT",
		})
	}
	return db.Clauses(clause.Locking{
		Strength: "UPDATE",
	})
}

// TimeRange is an inclusive [Start, End] unix-timestamp filter window.
type TimeRange struct {
	Start int64
	End   int64
}

// IsValid reports whether tr is non-nil and describes a well-formed
// window. A nil receiver is valid to call and reports false, so callers
// can pass an optional *TimeRange straight through without a nil check.
func (tr *TimeRange) IsValid() bool {
	return tr != nil && tr.Start > 0 && tr.End > 0 && tr.Start <= tr.End
}
