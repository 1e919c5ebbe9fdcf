// Package service implements the request store's transactional operations.
package service

import (
	"context"
	"errors"
	"log/slog"

	"itdesk/internal/config"
	"itdesk/internal/middleware"
	"itdesk/internal/models"
	"itdesk/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// PostgreSQL SQLSTATEs after which a transaction may be retried as a whole.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Policy selects the concurrency and lifecycle rules applied to status updates.
type Policy struct {
	CompareAndSwap     bool
	EnforceTransitions bool
	MaxRetries         int
}

// DefaultPolicy is last-write-wins with enforced transitions.
func DefaultPolicy() Policy {
	return Policy{EnforceTransitions: true, MaxRetries: 3}
}

// PolicyFromConfig builds the policy described by cfg.
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		CompareAndSwap:     cfg.CompareAndSwap(),
		EnforceTransitions: cfg.EnforceTransitions(),
		MaxRetries:         cfg.DBTxMaxRetries,
	}
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}
	return false
}

// runInTx runs fn in one transaction, retrying the whole unit on serialization failures.
// Errors that are not already *models.AppError surface as TransactionFailure.
func runInTx(ctx context.Context, db *gorm.DB, op string, maxRetries int, fn func(tx *gorm.DB) error) error {
	defer observability.TrackTransaction(op)()

	for attempt := 0; ; attempt++ {
		err := db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if attempt < maxRetries && isRetryable(err) && ctx.Err() == nil {
			observability.TransactionRetriesTotal.WithLabelValues(op).Inc()
			middleware.Logger.WarnContext(ctx, "Retrying transaction",
				slog.String("operation", op),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}
		return classify(err)
	}
}

func classify(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewTransactionFailure(err)
}
