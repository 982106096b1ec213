package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jobcarthandler "eventmarket/internal/jobcarts/handler"
	jobcartrepo "eventmarket/internal/jobcarts/repository"
	jobcartservice "eventmarket/internal/jobcarts/service"
	jobcartvalidator "eventmarket/internal/jobcarts/validator"
	lockhandler "eventmarket/internal/locks/handler"
	"eventmarket/internal/locks/keeper"
	lockrepo "eventmarket/internal/locks/repository"
	lockservice "eventmarket/internal/locks/service"
	lockvalidator "eventmarket/internal/locks/validator"
	"eventmarket/pkg/client"
	"eventmarket/pkg/config"
	"eventmarket/pkg/db/sqlite"
	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/events"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/middleware"
	"eventmarket/pkg/model"
	"eventmarket/pkg/session"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice    = model.Actor{ID: "alice", Role: model.RoleClient}
	bob      = model.Actor{ID: "bob", Role: model.RoleServiceProvider}
	carol    = model.Actor{ID: "carol", Role: model.RoleServiceProvider}
	operator = model.Actor{ID: "ops", Role: model.RoleAdmin}
)

func testConfig() *config.Config {
	return &config.Config{
		LockLeaseDuration:    30 * time.Second,
		LockWaitPollInterval: 20 * time.Millisecond,
		LockMaxWait:          2 * time.Second,
		Log:                  logger.Discard(),
	}
}

func serve(t *testing.T, register func(*httprouter.Router)) string {
	t.Helper()
	router := httprouter.New()
	register(router)
	server := httptest.NewServer(middleware.ActorIdentity(logger.Discard())(router))
	t.Cleanup(server.Close)
	return server.URL
}

func newLockServer(t *testing.T) *client.LockClient {
	t.Helper()
	return newLockServerWith(t, testConfig())
}

func newLockServerWith(t *testing.T, cfg *config.Config) *client.LockClient {
	t.Helper()
	db, err := sqlite.OpenDSN(sqlite.MemoryDSN("client-locks-" + uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := lockservice.NewLockService(
		lockrepo.NewSQLiteLockRepository(db),
		lockvalidator.NewLockValidator(),
		lockservice.NewNotifier(),
		events.Nop{},
		cfg,
	)
	url := serve(t, lockhandler.NewLockHandler(svc, nil, logger.Discard()).RegisterRoutes)
	return client.NewLockClient(url)
}

func editQuotation(id string) *model.AcquireRequest {
	return &model.AcquireRequest{ResourceType: model.ResourceQuotation, ResourceID: id, Operation: model.OperationEdit}
}

func TestLockClient_AcquireDenyRelease(t *testing.T) {
	locks := newLockServer(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceQuotation, "q-7")

	granted, err := locks.Acquire(ctx, alice, editQuotation("q-7"))
	require.NoError(t, err)
	assert.Equal(t, model.AcquireGranted, granted.Status)
	assert.NotEmpty(t, granted.LeaseID)

	denied, err := locks.Acquire(ctx, bob, editQuotation("q-7"))
	require.NoError(t, err, "a denial is an outcome, not an error")
	assert.Equal(t, model.AcquireDenied, denied.Status)
	require.NotNil(t, denied.Holder)
	assert.Equal(t, "alice", denied.Holder.ID)

	status, err := locks.Status(ctx, bob, key)
	require.NoError(t, err)
	assert.True(t, status.Locked)

	renewed, err := locks.Renew(ctx, alice, key, granted.LeaseID)
	require.NoError(t, err)
	assert.True(t, renewed.Renewed)

	require.NoError(t, locks.Release(ctx, alice, key))
	status, err = locks.Status(ctx, bob, key)
	require.NoError(t, err)
	assert.False(t, status.Locked)
}

func TestLockClient_WaitTimesOutWhileHeld(t *testing.T) {
	locks := newLockServer(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceQuotation, "q-8")

	_, err := locks.Acquire(ctx, alice, editQuotation("q-8"))
	require.NoError(t, err)

	outcome, err := locks.Wait(ctx, bob, key, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, model.WaitTimedOut, outcome.Status)
}

func TestLockClient_WaitOnServerDefaultOutlastsRequestTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.LockMaxWait = 300 * time.Millisecond
	locks := newLockServerWith(t, cfg).WithTimeout(50 * time.Millisecond)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceQuotation, "q-1")

	_, err := locks.Acquire(ctx, alice, editQuotation("q-1"))
	require.NoError(t, err)

	outcome, err := locks.Wait(ctx, bob, key, 0)
	require.NoError(t, err)
	assert.Equal(t, model.WaitTimedOut, outcome.Status)
	require.NotNil(t, outcome.LastHolder)
	require.NotNil(t, outcome.LastHolder.Holder)
	assert.Equal(t, "alice", outcome.LastHolder.Holder.ID)
}

func TestLockClient_AdminOperations(t *testing.T) {
	locks := newLockServer(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceQuotation, "q-9")

	_, err := locks.Acquire(ctx, alice, editQuotation("q-9"))
	require.NoError(t, err)

	_, err = locks.ForceRelease(ctx, bob, key, "stuck editor")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
	assert.Equal(t, http.StatusForbidden, apperrors.AsAppError(err).StatusCode())

	held, total, err := locks.List(ctx, operator, model.ResourceQuotation, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, held, 1)

	result, err := locks.ForceRelease(ctx, operator, key, "stuck editor")
	require.NoError(t, err)
	assert.True(t, result.Released)
	require.NotNil(t, result.PreviousHolder)
	assert.Equal(t, "alice", result.PreviousHolder.ID)

	purged, err := locks.Purge(ctx, operator)
	require.NoError(t, err)
	assert.Zero(t, purged.Purged)
}

func TestLockClient_DrivesKeeper(t *testing.T) {
	locks := newLockServer(t)
	ctx := context.Background()
	key := model.NewResourceKey(model.ResourceQuotation, "q-10")

	k := keeper.New(locks, alice, time.Hour, logger.Discard())
	outcome, err := k.Acquire(ctx, editQuotation("q-10"))
	require.NoError(t, err)
	assert.Equal(t, model.AcquireGranted, outcome.Status)
	assert.NoError(t, k.Authorize(key))

	require.NoError(t, k.ReleaseAll(ctx))
	status, err := locks.Status(ctx, alice, key)
	require.NoError(t, err)
	assert.False(t, status.Locked)
}

func TestJobCartClient_AcceptFlow(t *testing.T) {
	db, err := sqlite.OpenDSN(sqlite.MemoryDSN("client-carts-" + uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := jobcartservice.NewJobCartService(
		jobcartrepo.NewSQLiteJobCartRepository(db),
		jobcartrepo.NewSQLiteClaimRepository(db),
		jobcartvalidator.NewJobCartValidator(),
		events.Nop{},
		session.NewState(),
		testConfig(),
	)
	carts := client.NewJobCartClient(serve(t, jobcarthandler.NewJobCartHandler(svc, nil, logger.Discard()).RegisterRoutes))
	ctx := context.Background()

	cart, err := carts.Create(ctx, alice, &model.JobCart{EventID: "evt-1", ServiceType: "Catering", Location: "Haifa"})
	require.NoError(t, err)
	require.NotEmpty(t, cart.ID)

	available, total, err := carts.Available(ctx, bob, model.JobCartFilter{}, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, available, 1)

	accepted, err := carts.Accept(ctx, bob, cart.ID)
	require.NoError(t, err)
	assert.True(t, accepted.Success)

	lost, err := carts.Accept(ctx, carol, cart.ID)
	require.NoError(t, err)
	assert.False(t, lost.Success)

	permission, err := carts.CanUploadQuotation(ctx, bob, cart.ID)
	require.NoError(t, err)
	assert.True(t, permission.Allowed)

	_, err = carts.Accept(ctx, alice, cart.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}
