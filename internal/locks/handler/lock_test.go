package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventmarket/internal/locks/service"
	apperrors "eventmarket/pkg/errors"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/middleware"
	"eventmarket/pkg/model"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLockService struct {
	service.LockService

	AcquireFunc      func(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error)
	IsLockedFunc     func(ctx context.Context, key model.ResourceKey) (*model.LockStatus, error)
	ReleaseFunc      func(ctx context.Context, actor model.Actor, key model.ResourceKey) error
	WaitForLockFunc  func(ctx context.Context, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error)
	ForceReleaseFunc func(ctx context.Context, actor model.Actor, key model.ResourceKey, req *model.ForceReleaseRequest) (*model.ForceReleaseResult, error)
}

func (m *mockLockService) Acquire(ctx context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
	return m.AcquireFunc(ctx, actor, req)
}

func (m *mockLockService) IsLocked(ctx context.Context, key model.ResourceKey) (*model.LockStatus, error) {
	return m.IsLockedFunc(ctx, key)
}

func (m *mockLockService) Release(ctx context.Context, actor model.Actor, key model.ResourceKey) error {
	return m.ReleaseFunc(ctx, actor, key)
}

func (m *mockLockService) WaitForLock(ctx context.Context, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error) {
	return m.WaitForLockFunc(ctx, key, maxWait)
}

func (m *mockLockService) ForceRelease(ctx context.Context, actor model.Actor, key model.ResourceKey, req *model.ForceReleaseRequest) (*model.ForceReleaseResult, error) {
	return m.ForceReleaseFunc(ctx, actor, key, req)
}

func newServer(svc service.LockService) http.Handler {
	router := httprouter.New()
	NewLockHandler(svc, nil, logger.Discard()).RegisterRoutes(router)
	return middleware.ActorIdentity(logger.Discard())(router)
}

func do(t *testing.T, h http.Handler, method, path, body, actorID, role string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actorID != "" {
		req.Header.Set(middleware.HeaderActorID, actorID)
		req.Header.Set(middleware.HeaderActorRole, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLockHandler_AcquirePassesActorAndBody(t *testing.T) {
	svc := &mockLockService{
		AcquireFunc: func(_ context.Context, actor model.Actor, req *model.AcquireRequest) (*model.AcquireOutcome, error) {
			assert.Equal(t, model.Actor{ID: "u-1", Role: model.RoleClient}, actor)
			assert.Equal(t, "evt-7", req.ResourceID)
			return model.Denied(req.Key(), &model.Lock{HolderID: "u-2"}, "locked"), nil
		},
	}

	rec := do(t, newServer(svc), http.MethodPost, "/api/v1/locks",
		`{"resource_type":"event","resource_id":"evt-7","operation":"edit"}`, "u-1", "Client")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data model.AcquireOutcome `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, model.AcquireDenied, body.Data.Status)
	assert.Equal(t, "u-2", body.Data.Holder.ID)
}

func TestLockHandler_MissingActorIsUnauthorized(t *testing.T) {
	rec := do(t, newServer(&mockLockService{}), http.MethodGet, "/api/v1/locks/event/evt-1", "", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLockHandler_StatusRejectsUnknownType(t *testing.T) {
	rec := do(t, newServer(&mockLockService{}), http.MethodGet, "/api/v1/locks/planet/p-1", "", "u-1", model.RoleClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockHandler_ReleaseReturnsNoContent(t *testing.T) {
	var got model.ResourceKey
	svc := &mockLockService{
		ReleaseFunc: func(_ context.Context, _ model.Actor, key model.ResourceKey) error {
			got = key
			return nil
		},
	}
	rec := do(t, newServer(svc), http.MethodDelete, "/api/v1/locks/quotation/q-1", "", "u-1", model.RoleServiceProvider)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, model.NewResourceKey(model.ResourceQuotation, "q-1"), got)
}

func TestLockHandler_WaitParsesMaxWait(t *testing.T) {
	svc := &mockLockService{
		WaitForLockFunc: func(_ context.Context, key model.ResourceKey, maxWait time.Duration) (*model.WaitOutcome, error) {
			assert.Equal(t, 1500*time.Millisecond, maxWait)
			return &model.WaitOutcome{Status: model.WaitReleased, ResourceKey: key.String()}, nil
		},
	}
	h := newServer(svc)

	rec := do(t, h, http.MethodGet, "/api/v1/locks/event/evt-1/wait?max_wait=1.5s", "", "u-1", model.RoleClient)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/locks/event/evt-1/wait?max_wait=soon", "", "u-1", model.RoleClient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLockHandler_ForceReleaseRequiresAdmin(t *testing.T) {
	svc := &mockLockService{
		ForceReleaseFunc: func(_ context.Context, actor model.Actor, key model.ResourceKey, req *model.ForceReleaseRequest) (*model.ForceReleaseResult, error) {
			assert.Equal(t, "stale session", req.Reason)
			return &model.ForceReleaseResult{Released: true, ResourceKey: key.String()}, nil
		},
	}
	h := newServer(svc)
	body := `{"reason":"stale session"}`

	rec := do(t, h, http.MethodDelete, "/api/v1/admin/locks/event/evt-1", body, "u-1", model.RoleClient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/admin/locks/event/evt-1", body, "root", model.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLockHandler_ServiceErrorsKeepTheirStatus(t *testing.T) {
	svc := &mockLockService{
		IsLockedFunc: func(context.Context, model.ResourceKey) (*model.LockStatus, error) {
			return nil, apperrors.Unavailable("storage unavailable")
		},
	}
	rec := do(t, newServer(svc), http.MethodGet, "/api/v1/locks/event/evt-1", "", "u-1", model.RoleClient)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
