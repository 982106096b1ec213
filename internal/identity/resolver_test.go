package identity

import (
	"context"
	"errors"
	"testing"

	"eventmarket/internal/identity/repository"
	"eventmarket/pkg/db/sqlite"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	repository.UserRepository
	calls [][]string
	err   error
}

func (c *countingRepo) FindByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	c.calls = append(c.calls, append([]string(nil), ids...))
	if c.err != nil {
		return nil, c.err
	}
	return c.UserRepository.FindByIDs(ctx, ids)
}

func newRepo(t *testing.T) *countingRepo {
	t.Helper()
	db, err := sqlite.OpenDSN(sqlite.MemoryDSN("identity-" + uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewSQLiteUserRepository(db)
	ctx := context.Background()
	require.NoError(t, users.Upsert(ctx, &model.User{ID: "u-1", DisplayName: "Dana Event Planner", Role: model.RoleClient}))
	require.NoError(t, users.Upsert(ctx, &model.User{ID: "u-2", DisplayName: "Sound & Light Co", Role: model.RoleServiceProvider}))
	return &countingRepo{UserRepository: users}
}

func TestResolver_DisplayNamesUsesCache(t *testing.T) {
	repo := newRepo(t)
	r, err := NewResolver(repo, 16, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	got := r.DisplayNames(ctx, "u-1", "u-2", "ghost", "u-1", "")
	want := map[string]string{"u-1": "Dana Event Planner", "u-2": "Sound & Light Co"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DisplayNames() mismatch (-want +got):\n%s", diff)
	}

	got = r.DisplayNames(ctx, "u-2", "ghost")
	assert.Equal(t, map[string]string{"u-2": "Sound & Light Co"}, got)
	require.Len(t, repo.calls, 2)
	assert.Equal(t, []string{"ghost"}, repo.calls[1], "cached ids are not looked up again")
}

func TestResolver_EnrichAndForget(t *testing.T) {
	repo := newRepo(t)
	r, err := NewResolver(repo, 16, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	holder := &model.Holder{ID: "u-1"}
	r.Enrich(ctx, holder, nil)
	assert.Equal(t, "Dana Event Planner", holder.DisplayName)

	require.NoError(t, repo.Upsert(ctx, &model.User{ID: "u-1", DisplayName: "Dana P."}))
	r.Forget("u-1")
	r.Enrich(ctx, holder)
	assert.Equal(t, "Dana P.", holder.DisplayName)
}

func TestResolver_LookupFailureIsNotFatal(t *testing.T) {
	repo := newRepo(t)
	repo.err = errors.New("db down")
	r, err := NewResolver(repo, 16, logger.Discard())
	require.NoError(t, err)

	holder := &model.Holder{ID: "u-1"}
	r.Enrich(context.Background(), holder)
	assert.Empty(t, holder.DisplayName)
}

func TestResolver_RegisterNormalizesAndRefreshesCache(t *testing.T) {
	repo := newRepo(t)
	r, err := NewResolver(repo, 16, logger.Discard())
	require.NoError(t, err)
	ctx := context.Background()

	holder := &model.Holder{ID: "u-2"}
	r.Enrich(ctx, holder)
	require.Equal(t, "Sound & Light Co", holder.DisplayName)

	require.NoError(t, r.Register(ctx, &model.User{ID: "u-2", DisplayName: "  Sound   & Light\tLtd ", Role: model.RoleServiceProvider}))

	r.Enrich(ctx, holder)
	assert.Equal(t, "Sound & Light Ltd", holder.DisplayName)

	stored, err := repo.FindByIDs(ctx, []string{"u-2"})
	require.NoError(t, err)
	assert.Equal(t, "Sound & Light Ltd", stored["u-2"].DisplayName)
}
