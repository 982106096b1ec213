package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jobcartserrors "eventmarket/internal/jobcarts/errors"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/sqlite"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"
)

const jobCartColumns = `id, event_id, client_id, service_type, location, description, status, accepted_by, created_at, updated_at`

// availableWhere selects available carts matching the optional filters that
// the provider has not decided on. Placeholders: location x2, service type
// x2, provider id.
const availableWhere = `
	WHERE c.status = 'available'
	  AND (? = '' OR c.location = ?)
	  AND (? = '' OR c.service_type = ?)
	  AND NOT EXISTS (
	      SELECT 1 FROM job_cart_claims k WHERE k.job_cart_id = c.id AND k.provider_id = ?
	  )`

type sqliteJobCartRepository struct {
	db *sql.DB
}

func NewSQLiteJobCartRepository(db *sql.DB) JobCartRepository {
	return &sqliteJobCartRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJobCart(row rowScanner) (*model.JobCart, error) {
	var (
		cart             model.JobCart
		created, updated int64
	)
	if err := row.Scan(
		&cart.ID, &cart.EventID, &cart.ClientID, &cart.ServiceType, &cart.Location, &cart.Description,
		&cart.Status, &cart.AcceptedBy, &created, &updated,
	); err != nil {
		return nil, err
	}
	cart.CreatedAt = sqlite.FromMillis(created)
	cart.UpdatedAt = sqlite.FromMillis(updated)
	return &cart, nil
}

func (r *sqliteJobCartRepository) Create(ctx context.Context, cart *model.JobCart) error {
	defer metrics.ObserveStorage(config.StorageSQLite, "job_cart_create")()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_carts (`+jobCartColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cart.ID, cart.EventID, cart.ClientID, cart.ServiceType, cart.Location, cart.Description,
		cart.Status, cart.AcceptedBy, sqlite.ToMillis(cart.CreatedAt), sqlite.ToMillis(cart.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job cart %s: %w", cart.ID, err)
	}
	return nil
}

func (r *sqliteJobCartRepository) FindByID(ctx context.Context, id string) (*model.JobCart, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "job_cart_find")()

	cart, err := scanSQLiteJobCart(r.db.QueryRowContext(ctx,
		`SELECT `+jobCartColumns+` FROM job_carts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobcartserrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find job cart %s: %w", id, err)
	}
	return cart, nil
}

// AcceptAtomically relies on the database being opened with
// _txlock=immediate: the transaction holds the write lock from BEGIN, so the
// status check and both writes cannot interleave with another accept.
func (r *sqliteJobCartRepository) AcceptAtomically(ctx context.Context, jobCartID, providerID, claimID string, now time.Time) (*model.TransitionResult, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "job_cart_accept")()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin accept transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE job_carts SET status = 'in_progress', accepted_by = ?, updated_at = ?
		WHERE id = ? AND status = 'available'`,
		providerID, sqlite.ToMillis(now), jobCartID)
	if err != nil {
		return nil, fmt.Errorf("failed to transition job cart %s: %w", jobCartID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		var result model.TransitionResult
		err := tx.QueryRowContext(ctx, `SELECT status, accepted_by FROM job_carts WHERE id = ?`, jobCartID).
			Scan(&result.Status, &result.AcceptedBy)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobcartserrors.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read job cart %s: %w", jobCartID, err)
		}
		return &result, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO job_cart_claims (id, job_cart_id, provider_id, status, decided_at)
		VALUES (?, ?, ?, 'accepted', ?)`,
		claimID, jobCartID, providerID, sqlite.ToMillis(now))
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return nil, jobcartserrors.ErrClaimExists
		}
		return nil, fmt.Errorf("failed to record claim on job cart %s: %w", jobCartID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit accept of job cart %s: %w", jobCartID, err)
	}
	return &model.TransitionResult{Applied: true, Status: model.JobCartInProgress, AcceptedBy: providerID}, nil
}

func availableArgs(providerID string, filter model.JobCartFilter) []any {
	return []any{filter.Location, filter.Location, filter.ServiceType, filter.ServiceType, providerID}
}

func (r *sqliteJobCartRepository) FindAvailable(ctx context.Context, providerID string, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "job_cart_find_available")()

	args := append(availableArgs(providerID, filter), limit, offset)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobCartColumns+` FROM job_carts c`+availableWhere+`
		ORDER BY c.created_at DESC, c.id LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list available job carts: %w", err)
	}
	defer rows.Close()

	carts := []*model.JobCart{}
	for rows.Next() {
		cart, err := scanSQLiteJobCart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job cart: %w", err)
		}
		carts = append(carts, cart)
	}
	return carts, rows.Err()
}

func (r *sqliteJobCartRepository) CountAvailable(ctx context.Context, providerID string, filter model.JobCartFilter) (int64, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "job_cart_count_available")()

	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_carts c`+availableWhere,
		availableArgs(providerID, filter)...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count available job carts: %w", err)
	}
	return count, nil
}

type sqliteClaimRepository struct {
	db *sql.DB
}

func NewSQLiteClaimRepository(db *sql.DB) ClaimRepository {
	return &sqliteClaimRepository{db: db}
}

func (r *sqliteClaimRepository) InsertDecline(ctx context.Context, claim *model.JobCartClaim) error {
	defer metrics.ObserveStorage(config.StorageSQLite, "claim_decline")()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO job_cart_claims (id, job_cart_id, provider_id, status, decided_at)
		VALUES (?, ?, ?, 'declined', ?)`,
		claim.ID, claim.JobCartID, claim.ProviderID, sqlite.ToMillis(claim.DecidedAt))
	if err != nil {
		if sqlite.IsUniqueViolation(err) {
			return jobcartserrors.ErrClaimExists
		}
		if sqlite.IsForeignKeyViolation(err) {
			return jobcartserrors.ErrNotFound
		}
		return fmt.Errorf("failed to decline job cart %s: %w", claim.JobCartID, err)
	}
	return nil
}

func (r *sqliteClaimRepository) FindClaim(ctx context.Context, jobCartID, providerID string) (*model.JobCartClaim, error) {
	defer metrics.ObserveStorage(config.StorageSQLite, "claim_find")()

	var (
		claim   model.JobCartClaim
		decided int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, job_cart_id, provider_id, status, decided_at
		FROM job_cart_claims WHERE job_cart_id = ? AND provider_id = ?`,
		jobCartID, providerID,
	).Scan(&claim.ID, &claim.JobCartID, &claim.ProviderID, &claim.Status, &decided)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, jobcartserrors.ErrClaimNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find claim on job cart %s: %w", jobCartID, err)
	}
	claim.DecidedAt = sqlite.FromMillis(decided)
	return &claim, nil
}
