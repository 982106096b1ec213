package mongo

import (
	"context"
	"fmt"
	"time"

	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/metrics"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, name string, fn TransactionFunc) error
}

type mongoTransactionManager struct {
	client *mongo.Client
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &mongoTransactionManager{
		client: client,
	}
}

// ExecuteTransaction runs fn inside a snapshot/majority transaction. The driver
// retries fn on TransientTransactionError, so fn must be safe to re-run; each
// re-run is counted under name.
func (m *mongoTransactionManager) ExecuteTransaction(ctx context.Context, name string, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	attempts := 0
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (any, error) {
		if attempts++; attempts > 1 {
			metrics.MongoTransactionRetries.WithLabelValues(name).Inc()
		}
		return nil, fn(sessCtx)
	}, opts)

	if err != nil {
		if apperrors.IsAppError(err) {
			return err
		}
		return fmt.Errorf("%s transaction failed after %d attempt(s): %w", name, attempts, err)
	}

	return nil
}

// WithTimeout bounds ctx by timeout, keeping an earlier deadline. A
// SessionContext is returned unchanged so the transaction stays attached.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}
