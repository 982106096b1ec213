package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	jobcartserrors "eventmarket/internal/jobcarts/errors"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/postgres"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// acceptStatement performs the transition and the claim insert in a single
// statement. The final SELECT reads the pre-statement snapshot, so its
// status is only meaningful when nothing was applied.
const acceptStatement = `
	WITH updated AS (
	    UPDATE job_carts SET status = 'in_progress', accepted_by = $2, updated_at = $4
	    WHERE id = $1 AND status = 'available'
	    RETURNING id
	), claimed AS (
	    INSERT INTO job_cart_claims (id, job_cart_id, provider_id, status, decided_at)
	    SELECT $3, id, $2, 'accepted', $4 FROM updated
	    RETURNING job_cart_id
	)
	SELECT c.status, c.accepted_by, EXISTS (SELECT 1 FROM claimed)
	FROM job_carts c WHERE c.id = $1`

const postgresAvailableWhere = `
	WHERE c.status = 'available'
	  AND ($1 = '' OR c.location = $1)
	  AND ($2 = '' OR c.service_type = $2)
	  AND NOT EXISTS (
	      SELECT 1 FROM job_cart_claims k WHERE k.job_cart_id = c.id AND k.provider_id = $3
	  )`

type postgresJobCartRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobCartRepository(pool *pgxpool.Pool) JobCartRepository {
	return &postgresJobCartRepository{pool: pool}
}

func scanPostgresJobCart(row pgx.Row) (*model.JobCart, error) {
	var cart model.JobCart
	if err := row.Scan(
		&cart.ID, &cart.EventID, &cart.ClientID, &cart.ServiceType, &cart.Location, &cart.Description,
		&cart.Status, &cart.AcceptedBy, &cart.CreatedAt, &cart.UpdatedAt,
	); err != nil {
		return nil, err
	}
	cart.CreatedAt = cart.CreatedAt.UTC()
	cart.UpdatedAt = cart.UpdatedAt.UTC()
	return &cart, nil
}

func (r *postgresJobCartRepository) Create(ctx context.Context, cart *model.JobCart) error {
	defer metrics.ObserveStorage(config.StoragePostgres, "job_cart_create")()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO job_carts (`+jobCartColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		cart.ID, cart.EventID, cart.ClientID, cart.ServiceType, cart.Location, cart.Description,
		cart.Status, cart.AcceptedBy, cart.CreatedAt, cart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job cart %s: %w", cart.ID, err)
	}
	return nil
}

func (r *postgresJobCartRepository) FindByID(ctx context.Context, id string) (*model.JobCart, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "job_cart_find")()

	cart, err := scanPostgresJobCart(r.pool.QueryRow(ctx,
		`SELECT `+jobCartColumns+` FROM job_carts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobcartserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job cart %s: %w", id, err)
	}
	return cart, nil
}

func (r *postgresJobCartRepository) AcceptAtomically(ctx context.Context, jobCartID, providerID, claimID string, now time.Time) (*model.TransitionResult, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "job_cart_accept")()

	var result model.TransitionResult
	err := r.pool.QueryRow(ctx, acceptStatement, jobCartID, providerID, claimID, now).
		Scan(&result.Status, &result.AcceptedBy, &result.Applied)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobcartserrors.ErrNotFound
	}
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, jobcartserrors.ErrClaimExists
		}
		return nil, fmt.Errorf("failed to accept job cart %s: %w", jobCartID, err)
	}

	if result.Applied {
		result.Status = model.JobCartInProgress
		result.AcceptedBy = providerID
	} else if result.Status == model.JobCartAvailable {
		// A concurrent accept committed after our snapshot was taken.
		result.Status = model.JobCartInProgress
	}
	return &result, nil
}

func (r *postgresJobCartRepository) FindAvailable(ctx context.Context, providerID string, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "job_cart_find_available")()

	rows, err := r.pool.Query(ctx,
		`SELECT `+jobCartColumns+` FROM job_carts c`+postgresAvailableWhere+`
		ORDER BY c.created_at DESC, c.id LIMIT $4 OFFSET $5`,
		filter.Location, filter.ServiceType, providerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list available job carts: %w", err)
	}

	carts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.JobCart, error) {
		return scanPostgresJobCart(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan job carts: %w", err)
	}
	return carts, nil
}

func (r *postgresJobCartRepository) CountAvailable(ctx context.Context, providerID string, filter model.JobCartFilter) (int64, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "job_cart_count_available")()

	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_carts c`+postgresAvailableWhere,
		filter.Location, filter.ServiceType, providerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count available job carts: %w", err)
	}
	return count, nil
}

type postgresClaimRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresClaimRepository(pool *pgxpool.Pool) ClaimRepository {
	return &postgresClaimRepository{pool: pool}
}

func (r *postgresClaimRepository) InsertDecline(ctx context.Context, claim *model.JobCartClaim) error {
	defer metrics.ObserveStorage(config.StoragePostgres, "claim_decline")()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO job_cart_claims (id, job_cart_id, provider_id, status, decided_at)
		VALUES ($1, $2, $3, 'declined', $4)`,
		claim.ID, claim.JobCartID, claim.ProviderID, claim.DecidedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return jobcartserrors.ErrClaimExists
		}
		if postgres.IsForeignKeyViolation(err) {
			return jobcartserrors.ErrNotFound
		}
		return fmt.Errorf("failed to decline job cart %s: %w", claim.JobCartID, err)
	}
	return nil
}

func (r *postgresClaimRepository) FindClaim(ctx context.Context, jobCartID, providerID string) (*model.JobCartClaim, error) {
	defer metrics.ObserveStorage(config.StoragePostgres, "claim_find")()

	var claim model.JobCartClaim
	err := r.pool.QueryRow(ctx, `
		SELECT id, job_cart_id, provider_id, status, decided_at
		FROM job_cart_claims WHERE job_cart_id = $1 AND provider_id = $2`,
		jobCartID, providerID,
	).Scan(&claim.ID, &claim.JobCartID, &claim.ProviderID, &claim.Status, &claim.DecidedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, jobcartserrors.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claim on job cart %s: %w", jobCartID, err)
	}
	claim.DecidedAt = claim.DecidedAt.UTC()
	return &claim, nil
}
