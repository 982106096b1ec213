package service

import (
	"context"
	"errors"
	"time"

	jobcartserrors "eventmarket/internal/jobcarts/errors"
	"eventmarket/internal/jobcarts/repository"
	"eventmarket/internal/jobcarts/validator"
	"eventmarket/pkg/config"
	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/events"
	"eventmarket/pkg/metrics"
	"eventmarket/pkg/model"
	"eventmarket/pkg/sanitizer"
	"eventmarket/pkg/session"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	verbAccept  = "accept"
	verbDecline = "decline"
)

const (
	MsgInProgress        = "Operation already in progress"
	MsgAccepted          = "Job cart accepted successfully"
	MsgAlreadyAccepted   = "You have already accepted this job cart"
	MsgNoLongerAvailable = "This job cart is no longer available"
	MsgDeclined          = "Job cart declined"
	MsgAlreadyDeclined   = "You have already declined this job cart"
	MsgMustAccept        = "You must accept this job cart before uploading a quotation"
	MsgDeclinedUpload    = "You declined this job cart"
)

type JobCartService interface {
	Create(ctx context.Context, actor model.Actor, cart *model.JobCart) error
	GetByID(ctx context.Context, id string) (*model.JobCart, error)

	AcceptJobCart(ctx context.Context, jobCartID, providerID string) (*model.ClaimResult, error)
	DeclineJobCart(ctx context.Context, jobCartID, providerID string) (*model.ClaimResult, error)
	CanUploadQuotation(ctx context.Context, jobCartID, providerID string) (*model.UploadPermission, error)
	GetAvailableJobCarts(ctx context.Context, providerID string, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, int64, error)
}

type Option func(*jobCartService)

func WithClock(now func() time.Time) Option {
	return func(s *jobCartService) { s.now = now }
}

type jobCartService struct {
	carts     repository.JobCartRepository
	claims    repository.ClaimRepository
	validator *validator.JobCartValidator
	publisher events.Publisher
	state     *session.State
	cfg       *config.Config
	now       func() time.Time
}

// NewJobCartService builds the coordinator. state holds the in-flight
// markers used when the request context carries none.
func NewJobCartService(
	carts repository.JobCartRepository,
	claims repository.ClaimRepository,
	validator *validator.JobCartValidator,
	publisher events.Publisher,
	state *session.State,
	cfg *config.Config,
	opts ...Option,
) JobCartService {
	s := &jobCartService{
		carts:     carts,
		claims:    claims,
		validator: validator,
		publisher: publisher,
		state:     state,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *jobCartService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *jobCartService) Create(ctx context.Context, actor model.Actor, cart *model.JobCart) error {
	if actor.IsZero() {
		return apperrors.Unauthorized("Actor identity is required")
	}
	if !actor.IsAdmin() || cart.ClientID == "" {
		cart.ClientID = actor.ID
	}
	s.applyDefaults(cart)
	s.sanitize(cart)
	if err := s.validator.ValidateJobCart(cart); err != nil {
		return validationError("Invalid job cart", err)
	}

	if err := s.carts.Create(ctx, cart); err != nil {
		return apperrors.Internal("Failed to create job cart", err)
	}
	s.cfg.Log.Info("Job cart created", "job_cart_id", cart.ID, "event_id", cart.EventID, "client_id", cart.ClientID)
	return nil
}

func (s *jobCartService) applyDefaults(cart *model.JobCart) {
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	now := s.clock()
	cart.Status = model.JobCartAvailable
	cart.AcceptedBy = ""
	cart.CreatedAt = now
	cart.UpdatedAt = now
}

func (s *jobCartService) sanitize(cart *model.JobCart) {
	cart.ID = sanitizer.SanitizeID(cart.ID)
	cart.EventID = sanitizer.SanitizeID(cart.EventID)
	cart.ServiceType = sanitizer.SanitizeServiceType(cart.ServiceType)
	cart.Location = sanitizer.SanitizeLocation(cart.Location)
	cart.Description = sanitizer.SanitizeText(cart.Description)
}

func (s *jobCartService) GetByID(ctx context.Context, id string) (*model.JobCart, error) {
	cart, err := s.carts.FindByID(ctx, id)
	if errors.Is(err, jobcartserrors.ErrNotFound) {
		return nil, apperrors.NotFoundWithID("Job cart", id)
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to get job cart", err)
	}
	return cart, nil
}

func (s *jobCartService) begin(ctx context.Context, jobCartID, providerID, verb string) (func(), bool) {
	st := session.FromContext(ctx, s.state)
	return st.TryBegin(session.OperationKey{ResourceID: jobCartID, ActorID: providerID, Verb: verb})
}

func (s *jobCartService) AcceptJobCart(ctx context.Context, jobCartID, providerID string) (*model.ClaimResult, error) {
	if err := s.validator.ValidateClaim(jobCartID, providerID); err != nil {
		return nil, validationError("Invalid accept request", err)
	}

	done, ok := s.begin(ctx, jobCartID, providerID, verbAccept)
	if !ok {
		metrics.ClaimTotal.WithLabelValues(verbAccept, "in_progress").Inc()
		return &model.ClaimResult{Message: MsgInProgress, JobCartID: jobCartID}, nil
	}
	defer done()

	now := s.clock()
	res, err := s.carts.AcceptAtomically(ctx, jobCartID, providerID, uuid.NewString(), now)
	switch {
	case errors.Is(err, jobcartserrors.ErrNotFound):
		return nil, apperrors.NotFoundWithID("Job cart", jobCartID)
	case errors.Is(err, jobcartserrors.ErrClaimExists):
		return s.existingClaimResult(ctx, jobCartID, providerID, verbAccept)
	case err != nil:
		metrics.ClaimTotal.WithLabelValues(verbAccept, "error").Inc()
		s.cfg.Log.Error("Failed to accept job cart", "job_cart_id", jobCartID, "provider_id", providerID, "error", err)
		return nil, apperrors.Internal("Failed to accept job cart", err)
	}

	result := &model.ClaimResult{JobCartID: jobCartID, Status: res.Status}
	if res.AcceptedBy != "" {
		result.ClaimedBy = &model.Holder{ID: res.AcceptedBy}
	}

	switch {
	case res.Applied:
		metrics.ClaimTotal.WithLabelValues(verbAccept, "accepted").Inc()
		result.Success = true
		result.Message = MsgAccepted
		s.cfg.Log.Info("Job cart accepted", "job_cart_id", jobCartID, "provider_id", providerID)
		s.announceAccepted(ctx, jobCartID, providerID, now)
	case res.AcceptedBy == providerID:
		metrics.ClaimTotal.WithLabelValues(verbAccept, "duplicate").Inc()
		result.Success = true
		result.Message = MsgAlreadyAccepted
	default:
		metrics.ClaimTotal.WithLabelValues(verbAccept, "taken").Inc()
		result.Message = MsgNoLongerAvailable
	}
	return result, nil
}

// announceAccepted publishes the acceptance. Failures are logged only; the
// claim is already durable.
func (s *jobCartService) announceAccepted(ctx context.Context, jobCartID, providerID string, at time.Time) {
	event := events.JobCartAccepted{JobCartID: jobCartID, ProviderID: providerID, AcceptedAt: at}
	if cart, err := s.carts.FindByID(ctx, jobCartID); err == nil {
		event.EventID = cart.EventID
		event.ClientID = cart.ClientID
	}
	if err := s.publisher.JobCartAccepted(ctx, event); err != nil {
		s.cfg.Log.Warn("Failed to publish job cart acceptance", "job_cart_id", jobCartID, "error", err)
	}
}

func (s *jobCartService) DeclineJobCart(ctx context.Context, jobCartID, providerID string) (*model.ClaimResult, error) {
	if err := s.validator.ValidateClaim(jobCartID, providerID); err != nil {
		return nil, validationError("Invalid decline request", err)
	}

	done, ok := s.begin(ctx, jobCartID, providerID, verbDecline)
	if !ok {
		metrics.ClaimTotal.WithLabelValues(verbDecline, "in_progress").Inc()
		return &model.ClaimResult{Message: MsgInProgress, JobCartID: jobCartID}, nil
	}
	defer done()

	err := s.claims.InsertDecline(ctx, &model.JobCartClaim{
		ID:         uuid.NewString(),
		JobCartID:  jobCartID,
		ProviderID: providerID,
		Status:     model.ClaimDeclined,
		DecidedAt:  s.clock(),
	})
	switch {
	case errors.Is(err, jobcartserrors.ErrNotFound):
		return nil, apperrors.NotFoundWithID("Job cart", jobCartID)
	case errors.Is(err, jobcartserrors.ErrClaimExists):
		return s.existingClaimResult(ctx, jobCartID, providerID, verbDecline)
	case err != nil:
		metrics.ClaimTotal.WithLabelValues(verbDecline, "error").Inc()
		return nil, apperrors.Internal("Failed to decline job cart", err)
	}

	metrics.ClaimTotal.WithLabelValues(verbDecline, "declined").Inc()
	s.cfg.Log.Info("Job cart declined", "job_cart_id", jobCartID, "provider_id", providerID)
	return &model.ClaimResult{Success: true, Message: MsgDeclined, JobCartID: jobCartID}, nil
}

// existingClaimResult answers a repeated decision from the provider's stored
// claim. Repeating the same decision succeeds; switching it does not.
func (s *jobCartService) existingClaimResult(ctx context.Context, jobCartID, providerID, verb string) (*model.ClaimResult, error) {
	claim, err := s.claims.FindClaim(ctx, jobCartID, providerID)
	if err != nil {
		return nil, apperrors.Internal("Failed to read existing claim", err)
	}

	metrics.ClaimTotal.WithLabelValues(verb, "duplicate").Inc()
	result := &model.ClaimResult{JobCartID: jobCartID}
	switch claim.Status {
	case model.ClaimAccepted:
		result.Success = verb == verbAccept
		result.Message = MsgAlreadyAccepted
		result.Status = model.JobCartInProgress
		result.ClaimedBy = &model.Holder{ID: providerID}
	default:
		result.Success = verb == verbDecline
		result.Message = MsgAlreadyDeclined
	}
	return result, nil
}

func (s *jobCartService) CanUploadQuotation(ctx context.Context, jobCartID, providerID string) (*model.UploadPermission, error) {
	if err := s.validator.ValidateClaim(jobCartID, providerID); err != nil {
		return nil, validationError("Invalid quotation permission request", err)
	}

	claim, err := s.claims.FindClaim(ctx, jobCartID, providerID)
	if errors.Is(err, jobcartserrors.ErrClaimNotFound) {
		return &model.UploadPermission{Reason: MsgMustAccept}, nil
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to check quotation permission", err)
	}

	if claim.Status != model.ClaimAccepted {
		return &model.UploadPermission{Reason: MsgDeclinedUpload}, nil
	}
	return &model.UploadPermission{Allowed: true}, nil
}

func (s *jobCartService) GetAvailableJobCarts(ctx context.Context, providerID string, filter model.JobCartFilter, limit int, offset int64) ([]*model.JobCart, int64, error) {
	if providerID == "" {
		return nil, 0, apperrors.Unauthorized("Actor identity is required")
	}
	filter.Location = sanitizer.SanitizeLocation(filter.Location)
	filter.ServiceType = sanitizer.SanitizeServiceType(filter.ServiceType)
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var (
		carts []*model.JobCart
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		carts, err = s.carts.FindAvailable(gctx, providerID, filter, limit, offset)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.carts.CountAvailable(gctx, providerID, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, apperrors.Internal("Failed to list available job carts", err)
	}
	return carts, total, nil
}

func validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, verrs.Details())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}
