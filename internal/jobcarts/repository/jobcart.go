package repository

import (
	"context"
	"fmt"
	"time"

	"eventmarket/pkg/config"
	"eventmarket/pkg/model"
)

const (
	JobCartsTable = "job_carts"
	ClaimsTable   = "job_cart_claims"
)

type JobCartRepository interface {
	Create(ctx context.Context, cart *model.JobCart) error
	FindByID(ctx context.Context, id string) (*model.JobCart, error)

	// AcceptAtomically moves an available cart to in_progress and records
	// the provider's accepted claim as one unit. When the cart is no longer
	// available nothing is written and the current state is reported.
	// It fails with ErrNotFound for unknown carts and ErrClaimExists when
	// the provider already decided on the cart.
	AcceptAtomically(ctx context.Context, jobCartID, providerID, claimID string, now time.Time) (*model.TransitionResult, error)

	// FindAvailable lists available carts the provider has no claim on.
	FindAvailable(ctx context.Context, providerID string, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, error)
	CountAvailable(ctx context.Context, providerID string, filter model.JobCartFilter) (int64, error)
}

type ClaimRepository interface {
	// InsertDecline fails with ErrClaimExists if the provider already has a
	// claim on the cart.
	InsertDecline(ctx context.Context, claim *model.JobCartClaim) error
	FindClaim(ctx context.Context, jobCartID, providerID string) (*model.JobCartClaim, error)
}

// New returns the repositories for the configured storage driver.
func New(cfg *config.Config) (JobCartRepository, ClaimRepository, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		return NewMongoJobCartRepository(cfg), NewMongoClaimRepository(cfg), nil
	case config.StoragePostgres:
		return NewPostgresJobCartRepository(cfg.Client.Postgres), NewPostgresClaimRepository(cfg.Client.Postgres), nil
	case config.StorageSQLite:
		return NewSQLiteJobCartRepository(cfg.Client.SQLite), NewSQLiteClaimRepository(cfg.Client.SQLite), nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
}
