package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	jobcartserrors "eventmarket/internal/jobcarts/errors"
	"eventmarket/internal/jobcarts/repository"
	"eventmarket/internal/jobcarts/validator"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/sqlite"
	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/events"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events.Nop
	mu       sync.Mutex
	accepted []events.JobCartAccepted
}

func (p *recordingPublisher) JobCartAccepted(_ context.Context, e events.JobCartAccepted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted = append(p.accepted, e)
	return nil
}

var fixedNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{Log: logger.Discard()}
}

type fixture struct {
	svc       JobCartService
	carts     repository.JobCartRepository
	publisher *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.OpenDSN(sqlite.MemoryDSN("jobcart-service-" + uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		carts:     repository.NewSQLiteJobCartRepository(db),
		publisher: &recordingPublisher{},
	}
	f.svc = NewJobCartService(
		f.carts,
		repository.NewSQLiteClaimRepository(db),
		validator.NewJobCartValidator(),
		f.publisher,
		session.NewState(),
		testConfig(),
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func (f *fixture) createCart(t *testing.T, id string) {
	t.Helper()
	client := model.Actor{ID: "client-1", Role: model.RoleClient}
	require.NoError(t, f.svc.Create(context.Background(), client, &model.JobCart{
		ID:          id,
		EventID:     "evt-1",
		ServiceType: "DJ & Sound",
		Location:    "Tel Aviv",
	}))
}

func TestCreate_SanitizesAndDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := model.Actor{ID: "client-9", Role: model.RoleClient}

	cart := &model.JobCart{
		EventID:     " evt-7 ",
		ClientID:    "someone-else",
		ServiceType: "Photo Booth",
		Location:    "  Bnei  Brak ",
		Description: "  two   hours ",
		Status:      model.JobCartCompleted,
	}
	require.NoError(t, f.svc.Create(ctx, actor, cart))

	got, err := f.svc.GetByID(ctx, cart.ID)
	require.NoError(t, err)
	want := &model.JobCart{
		ID:          cart.ID,
		EventID:     "evt-7",
		ClientID:    "client-9",
		ServiceType: "photo_booth",
		Location:    "bnei_brak",
		Description: "two hours",
		Status:      model.JobCartAvailable,
		CreatedAt:   fixedNow,
		UpdatedAt:   fixedNow,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("stored job cart mismatch (-want +got):\n%s", diff)
	}

	err = f.svc.Create(ctx, actor, &model.JobCart{ServiceType: "dj"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestAcceptJobCart_ConcurrentProvidersOneWinner(t *testing.T) {
	f := newFixture(t)
	f.createCart(t, "jc-1")

	const providers = 10
	results := make([]*model.ClaimResult, providers)
	var wg sync.WaitGroup
	for i := 0; i < providers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.AcceptJobCart(context.Background(), "jc-1", fmt.Sprintf("p-%d", i))
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	var winner string
	wins := 0
	for i, res := range results {
		require.NotNil(t, res)
		if res.Success {
			wins++
			winner = fmt.Sprintf("p-%d", i)
		}
	}
	require.Equal(t, 1, wins)

	for _, res := range results {
		if !res.Success {
			assert.Equal(t, MsgNoLongerAvailable, res.Message)
			require.NotNil(t, res.ClaimedBy)
			assert.Equal(t, winner, res.ClaimedBy.ID)
		}
	}
	assert.Len(t, f.publisher.accepted, 1)
}

func TestAcceptJobCart_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createCart(t, "JC1")

	var wg sync.WaitGroup
	results := map[string]*model.ClaimResult{}
	var mu sync.Mutex
	for _, p := range []string{"P1", "P2"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			res, err := f.svc.AcceptJobCart(ctx, "JC1", p)
			assert.NoError(t, err)
			mu.Lock()
			results[p] = res
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	require.NotEqual(t, results["P1"].Success, results["P2"].Success)
	winner, loser := "P1", "P2"
	if results["P2"].Success {
		winner, loser = loser, winner
	}

	cart, err := f.svc.GetByID(ctx, "JC1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCartInProgress, cart.Status)
	assert.Equal(t, winner, cart.AcceptedBy)

	perm, err := f.svc.CanUploadQuotation(ctx, "JC1", loser)
	require.NoError(t, err)
	assert.False(t, perm.Allowed)
	assert.Equal(t, MsgMustAccept, perm.Reason)

	perm, err = f.svc.CanUploadQuotation(ctx, "JC1", winner)
	require.NoError(t, err)
	assert.True(t, perm.Allowed)

	require.Len(t, f.publisher.accepted, 1)
	assert.Equal(t, events.JobCartAccepted{
		JobCartID:  "JC1",
		EventID:    "evt-1",
		ClientID:   "client-1",
		ProviderID: winner,
		AcceptedAt: fixedNow,
	}, f.publisher.accepted[0])
}

func TestAcceptAndDecline_AreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createCart(t, "jc-1")
	f.createCart(t, "jc-2")

	first, err := f.svc.AcceptJobCart(ctx, "jc-1", "p-1")
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, MsgAccepted, first.Message)

	again, err := f.svc.AcceptJobCart(ctx, "jc-1", "p-1")
	require.NoError(t, err)
	assert.True(t, again.Success)
	assert.Equal(t, MsgAlreadyAccepted, again.Message)

	declineAccepted, err := f.svc.DeclineJobCart(ctx, "jc-1", "p-1")
	require.NoError(t, err)
	assert.False(t, declineAccepted.Success)
	assert.Equal(t, MsgAlreadyAccepted, declineAccepted.Message)

	declined, err := f.svc.DeclineJobCart(ctx, "jc-2", "p-1")
	require.NoError(t, err)
	assert.True(t, declined.Success)

	declinedAgain, err := f.svc.DeclineJobCart(ctx, "jc-2", "p-1")
	require.NoError(t, err)
	assert.True(t, declinedAgain.Success)
	assert.Equal(t, MsgAlreadyDeclined, declinedAgain.Message)

	acceptDeclined, err := f.svc.AcceptJobCart(ctx, "jc-2", "p-1")
	require.NoError(t, err)
	assert.False(t, acceptDeclined.Success)
	assert.Equal(t, MsgAlreadyDeclined, acceptDeclined.Message)

	cart, err := f.svc.GetByID(ctx, "jc-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobCartAvailable, cart.Status)

	perm, err := f.svc.CanUploadQuotation(ctx, "jc-2", "p-1")
	require.NoError(t, err)
	assert.Equal(t, &model.UploadPermission{Reason: MsgDeclinedUpload}, perm)

	assert.Len(t, f.publisher.accepted, 1)
}

func TestAcceptJobCart_UnknownCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcceptJobCart(context.Background(), "missing", "p-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.svc.DeclineJobCart(context.Background(), "missing", "p-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.svc.AcceptJobCart(context.Background(), "", "p-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestGetAvailableJobCarts_HidesDecidedCarts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"jc-1", "jc-2", "jc-3"} {
		f.createCart(t, id)
	}

	_, err := f.svc.DeclineJobCart(ctx, "jc-1", "p-1")
	require.NoError(t, err)
	_, err = f.svc.AcceptJobCart(ctx, "jc-2", "p-2")
	require.NoError(t, err)

	carts, total, err := f.svc.GetAvailableJobCarts(ctx, "p-1", model.JobCartFilter{Location: "TEL AVIV"}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, carts, 1)
	assert.Equal(t, "jc-3", carts[0].ID)

	carts, total, err = f.svc.GetAvailableJobCarts(ctx, "p-1", model.JobCartFilter{Location: "Haifa"}, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, carts)
}

// blockingCarts holds AcceptAtomically until release is closed.
type blockingCarts struct {
	repository.JobCartRepository
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (b *blockingCarts) AcceptAtomically(ctx context.Context, jobCartID, providerID, claimID string, now time.Time) (*model.TransitionResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	close(b.entered)
	<-b.release
	return &model.TransitionResult{Applied: true, Status: model.JobCartInProgress, AcceptedBy: providerID}, nil
}

func (b *blockingCarts) FindByID(context.Context, string) (*model.JobCart, error) {
	return nil, jobcartserrors.ErrNotFound
}

func TestAcceptJobCart_InFlightMarkerBlocksDoubleSubmit(t *testing.T) {
	carts := &blockingCarts{entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewJobCartService(carts, nil, validator.NewJobCartValidator(), events.Nop{}, session.NewState(), testConfig())
	ctx := context.Background()

	first := make(chan *model.ClaimResult, 1)
	go func() {
		res, err := svc.AcceptJobCart(ctx, "jc-1", "p-1")
		assert.NoError(t, err)
		first <- res
	}()
	<-carts.entered

	second, err := svc.AcceptJobCart(ctx, "jc-1", "p-1")
	require.NoError(t, err)
	assert.False(t, second.Success)
	assert.Equal(t, MsgInProgress, second.Message)

	close(carts.release)
	res := <-first
	assert.True(t, res.Success)

	carts.mu.Lock()
	assert.Equal(t, 1, carts.calls, "the duplicate must not reach storage")
	carts.mu.Unlock()
}
