package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	lockserrors "eventmarket/internal/locks/errors"
	"eventmarket/internal/locks/repository"
	"eventmarket/internal/locks/validator"
	"eventmarket/pkg/config"
	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/events"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type LockService interface {
	Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error)
	Renew(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error)
	Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error
	IsLocked(ctx context.Context, key model.ResourceKey) (*model.LockStatus, error)
	WaitForLock(ctx context.Context, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error)

	ForceRelease(ctx context.Context, actor model.Actor, key model.ResourceKey, req *model.ForceReleaseRequest) (*model.ForceReleaseResult, error)
	List(ctx context.Context, resourceType model.ResourceType, limit int, offset int64) ([]*model.LockStatus, int64, error)
	PurgeExpired(ctx context.Context) (*model.PurgeResult, error)
}

type Option func(*lockService)

// WithClock replaces time.Now for lease arithmetic.
func WithClock(now func() time.Time) Option {
	return func(s *lockService) { s.now = now }
}

type lockService struct {
	repo      repository.LockRepository
	validator *validator.LockValidator
	notifier  *Notifier
	publisher events.Publisher
	cfg       *config.Config
	now       func() time.Time
}

func NewLockService(
	repo repository.LockRepository,
	validator *validator.LockValidator,
	notifier *Notifier,
	publisher events.Publisher,
	cfg *config.Config,
	opts ...Option,
) LockService {
	s := &lockService{
		repo:      repo,
		validator: validator,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock truncates to milliseconds, the coarsest precision of any backend.
func (s *lockService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *lockService) Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
	if actor.IsZero() {
		return nil, apperrors.Unauthorized("Actor identity is required")
	}
	if err := s.validator.ValidateAcquire(req); err != nil {
		return nil, validationError("Invalid lock request", err)
	}

	key := req.Key()
	outcome, err := s.acquire(ctx, actor, req)
	if err != nil {
		metrics.LockAcquireTotal.WithLabelValues(string(key.Type), "error").Inc()
		s.cfg.Log.Error("Failed to acquire lock", "resource_key", key.String(), "holder_id", actor.ID, "error", err)
		return nil, apperrors.Internal("Failed to acquire lock", err)
	}

	metrics.LockAcquireTotal.WithLabelValues(string(key.Type), string(outcome.Status)).Inc()
	if outcome.Granted() {
		if st := session.FromContext(ctx, nil); st != nil {
			st.Hold(session.HeldLock{Key: key, LeaseID: outcome.LeaseID, Operation: req.Operation, AcquiredAt: *outcome.AcquiredAt})
		}
		s.cfg.Log.Debug("Lock granted", "resource_key", key.String(), "holder_id", actor.ID, "operation", req.Operation)
	}
	return outcome, nil
}

// acquire makes at most two insert attempts. The first may follow the
// removal of an expired lock; the second covers losing the insert race to a
// lock that turns out to be expired already.
func (s *lockService) acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
	key := req.Key()
	var current *model.Lock

	for attempt := 0; attempt < 2; attempt++ {
		now := s.clock()

		var err error
		current, err = s.repo.FindByKey(ctx, key)
		switch {
		case errors.Is(err, lockserrors.ErrNotFound):
			current = nil
		case err != nil:
			return nil, err
		case !current.IsExpired(now):
			if current.HolderID != actor.ID {
				return model.Denied(key, current, deniedMessage(key, current)), nil
			}
			// Re-acquiring our own live lock keeps its lease and extends it.
			expiresAt := now.Add(s.cfg.LockLeaseDuration)
			renewed, err := s.repo.Renew(ctx, key, actor.ID, current.LeaseID, now, expiresAt)
			if err != nil {
				return nil, err
			}
			if renewed {
				current.LastRenewedAt, current.ExpiresAt = now, expiresAt
				return model.Granted(current), nil
			}
			continue
		default:
			if _, err := s.repo.DeleteExpired(ctx, key, now); err != nil {
				return nil, err
			}
		}

		lock := &model.Lock{
			ID:               key.String(),
			ResourceType:     key.Type,
			ResourceRecordID: key.RecordID,
			HolderID:         actor.ID,
			HolderRole:       actor.Role,
			Operation:        req.Operation,
			LeaseID:          uuid.NewString(),
			AcquiredAt:       now,
			LastRenewedAt:    now,
			ExpiresAt:        now.Add(s.cfg.LockLeaseDuration),
		}
		err = s.repo.Insert(ctx, lock)
		if err == nil {
			return model.Granted(lock), nil
		}
		if !errors.Is(err, lockserrors.ErrLockHeld) {
			return nil, err
		}
	}

	// Both attempts lost. Report whoever won the last race.
	winner, err := s.repo.FindByKey(ctx, key)
	if err != nil && !errors.Is(err, lockserrors.ErrNotFound) {
		return nil, err
	}
	if winner == nil {
		winner = current
	}
	return model.Denied(key, winner, deniedMessage(key, winner)), nil
}

func deniedMessage(key model.ResourceKey, holder *model.Lock) string {
	if holder == nil {
		return fmt.Sprintf("The %s is being locked by another user, try again shortly", key.Type)
	}
	return fmt.Sprintf("The %s is locked for %s by another user until %s",
		key.Type, holder.Operation, holder.ExpiresAt.Format(time.RFC3339))
}

func (s *lockService) Renew(ctx context.Context, actor model.Actor, key model.ResourceKey, leaseID string) (*model.RenewOutcome, error) {
	if actor.IsZero() {
		return nil, apperrors.Unauthorized("Actor identity is required")
	}
	if err := s.validator.ValidateKey(key); err != nil {
		return nil, validationError("Invalid resource key", err)
	}
	if err := s.validator.ValidateRenew(&model.RenewRequest{LeaseID: leaseID}); err != nil {
		return nil, validationError("Invalid renew request", err)
	}

	now := s.clock()
	expiresAt := now.Add(s.cfg.LockLeaseDuration)
	renewed, err := s.repo.Renew(ctx, key, actor.ID, leaseID, now, expiresAt)
	if err != nil {
		metrics.LockRenewTotal.WithLabelValues("error").Inc()
		return nil, apperrors.Internal("Failed to renew lock", err)
	}

	outcome := &model.RenewOutcome{Renewed: renewed, ResourceKey: key.String()}
	if renewed {
		metrics.LockRenewTotal.WithLabelValues("renewed").Inc()
		outcome.ExpiresAt = &expiresAt
		return outcome, nil
	}

	metrics.LockRenewTotal.WithLabelValues("lost").Inc()
	if st := session.FromContext(ctx, nil); st != nil {
		st.Drop(key)
	}
	s.cfg.Log.Info("Lock lease lost", "resource_key", key.String(), "holder_id", actor.ID)
	return outcome, nil
}

func (s *lockService) Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error {
	if actor.IsZero() {
		return apperrors.Unauthorized("Actor identity is required")
	}
	if err := s.validator.ValidateKey(key); err != nil {
		return validationError("Invalid resource key", err)
	}

	released, err := s.repo.Release(ctx, key, actor.ID)
	if err != nil {
		return apperrors.Internal("Failed to release lock", err)
	}
	if st := session.FromContext(ctx, nil); st != nil {
		st.Drop(key)
	}
	if released == nil {
		return nil
	}

	metrics.LockReleaseTotal.WithLabelValues(string(events.ReleaseByHolder)).Inc()
	s.announceRelease(ctx, events.LockReleased{
		ResourceKey: key.String(),
		HolderID:    released.HolderID,
		Kind:        events.ReleaseByHolder,
		ReleasedBy:  actor.ID,
	})
	return nil
}

func (s *lockService) IsLocked(ctx context.Context, key model.ResourceKey) (*model.LockStatus, error) {
	if err := s.validator.ValidateKey(key); err != nil {
		return nil, validationError("Invalid resource key", err)
	}

	lock, err := s.repo.FindByKey(ctx, key)
	if errors.Is(err, lockserrors.ErrNotFound) {
		return model.Unlocked(key), nil
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to read lock", err)
	}

	now := s.clock()
	if !lock.IsExpired(now) {
		return model.LockedBy(lock), nil
	}

	deleted, err := s.repo.DeleteExpired(ctx, key, now)
	if err != nil {
		// The row is expired either way; a failed cleanup is left to the sweeper.
		s.cfg.Log.Warn("Failed to delete expired lock", "resource_key", key.String(), "error", err)
	}
	if deleted {
		s.notifier.Broadcast(key)
	}
	return model.Unlocked(key), nil
}

func (s *lockService) WaitForLock(ctx context.Context, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error) {
	if err := s.validator.ValidateKey(key); err != nil {
		return nil, validationError("Invalid resource key", err)
	}
	timeoutMessage := "Resource is still locked, try again later"
	switch {
	case maxWait <= 0:
		maxWait = s.cfg.LockMaxWait
	case maxWait > s.cfg.LockMaxWait:
		timeoutMessage = fmt.Sprintf("Resource is still locked after the %s wait limit (requested %s), try again later", s.cfg.LockMaxWait, maxWait)
		maxWait = s.cfg.LockMaxWait
	}

	start := time.Now()
	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()
	poll := time.NewTicker(s.cfg.LockWaitPollInterval)
	defer poll.Stop()

	finish := func(status model.WaitStatus, last *model.LockStatus, message string) *model.WaitOutcome {
		waited := time.Since(start)
		metrics.LockWaitDuration.WithLabelValues(string(status)).Observe(waited.Seconds())
		return &model.WaitOutcome{
			Status:      status,
			ResourceKey: key.String(),
			Waited:      waited,
			LastHolder:  last,
			Message:     message,
		}
	}

	var last *model.LockStatus
	for {
		wake, unsubscribe := s.notifier.Subscribe(key)

		status, err := s.IsLocked(ctx, key)
		if err != nil {
			unsubscribe()
			if ctx.Err() != nil {
				return finish(model.WaitCancelled, last, "Wait cancelled"), nil
			}
			return nil, err
		}
		if !status.Locked {
			unsubscribe()
			return finish(model.WaitReleased, nil, "Resource is available"), nil
		}
		last = status

		select {
		case <-ctx.Done():
			unsubscribe()
			return finish(model.WaitCancelled, last, "Wait cancelled"), nil
		case <-deadline.C:
			unsubscribe()
			return finish(model.WaitTimedOut, last, timeoutMessage), nil
		case <-poll.C:
		case <-wake:
		}
		unsubscribe()
	}
}

func (s *lockService) ForceRelease(ctx context.Context, actor model.Actor, key model.ResourceKey, req *model.ForceReleaseRequest) (*model.ForceReleaseResult, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can force-release locks")
	}
	if err := s.validator.ValidateKey(key); err != nil {
		return nil, validationError("Invalid resource key", err)
	}
	if err := s.validator.ValidateForceRelease(req); err != nil {
		return nil, validationError("A reason is required to force-release a lock", err)
	}

	prev, err := s.repo.ForceDelete(ctx, key)
	if err != nil {
		return nil, apperrors.Internal("Failed to force-release lock", err)
	}

	result := &model.ForceReleaseResult{ResourceKey: key.String()}
	if prev == nil {
		s.cfg.Log.Info("Force-release found no lock", "resource_key", key.String(), "admin_id", actor.ID, "reason", req.Reason)
		return result, nil
	}

	result.Released = true
	result.PreviousHolder = &model.Holder{ID: prev.HolderID, Role: prev.HolderRole}
	s.cfg.Log.Warn("Lock force-released",
		"resource_key", key.String(),
		"admin_id", actor.ID,
		"previous_holder_id", prev.HolderID,
		"operation", prev.Operation,
		"reason", req.Reason,
	)

	metrics.LockReleaseTotal.WithLabelValues(string(events.ReleaseForced)).Inc()
	s.announceRelease(ctx, events.LockReleased{
		ResourceKey: key.String(),
		HolderID:    prev.HolderID,
		Kind:        events.ReleaseForced,
		Reason:      req.Reason,
		ReleasedBy:  actor.ID,
	})
	return result, nil
}

func (s *lockService) List(ctx context.Context, resourceType model.ResourceType, limit int, offset int64) ([]*model.LockStatus, int64, error) {
	if resourceType != "" && !resourceType.Valid() {
		return nil, 0, apperrors.InvalidInput(fmt.Sprintf("unknown resource type %q", resourceType))
	}
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)
	now := s.clock()

	var (
		locks []*model.Lock
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		locks, err = s.repo.FindActive(gctx, now, resourceType, limit, offset)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.repo.CountActive(gctx, now, resourceType)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, apperrors.Internal("Failed to list locks", err)
	}

	statuses := make([]*model.LockStatus, 0, len(locks))
	for _, lock := range locks {
		statuses = append(statuses, model.LockedBy(lock))
	}
	return statuses, total, nil
}

func (s *lockService) PurgeExpired(ctx context.Context) (*model.PurgeResult, error) {
	keys, err := s.repo.PurgeExpired(ctx, s.clock())
	if err != nil {
		return nil, apperrors.Internal("Failed to purge expired locks", err)
	}

	metrics.LockReleaseTotal.WithLabelValues(string(events.ReleaseExpired)).Add(float64(len(keys)))
	for _, key := range keys {
		s.announceRelease(ctx, events.LockReleased{ResourceKey: key.String(), Kind: events.ReleaseExpired})
	}
	if len(keys) > 0 {
		s.cfg.Log.Info("Purged expired locks", "count", len(keys))
	}
	return &model.PurgeResult{Purged: len(keys)}, nil
}

// announceRelease wakes local waiters and tells other instances. Publishing
// is best effort.
func (s *lockService) announceRelease(ctx context.Context, event events.LockReleased) {
	if key, err := event.Key(); err == nil {
		s.notifier.Broadcast(key)
	}
	event.ReleasedAt = s.clock()
	if err := s.publisher.LockReleased(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish lock release", "resource_key", event.ResourceKey, "kind", event.Kind, "error", err)
	}
}

func validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, verrs.Details())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
