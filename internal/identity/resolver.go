// Package identity turns the opaque actor ids stored with locks and claims
// into display names for API responses.
package identity

import (
	"context"

	"eventmarket/internal/identity/repository"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"
	"eventmarket/pkg/sanitizer"

	lru "github.com/hashicorp/golang-lru"
)

type Resolver struct {
	users repository.UserRepository
	cache *lru.Cache
	log   *logger.Logger
}

func NewResolver(users repository.UserRepository, cacheSize int, log *logger.Logger) (*Resolver, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{users: users, cache: cache, log: log}, nil
}

// DisplayNames resolves ids to names. Unknown ids are absent from the
// result; a lookup failure is logged and yields what the cache had.
func (r *Resolver) DisplayNames(ctx context.Context, ids ...string) map[string]string {
	names := make(map[string]string, len(ids))
	var missing []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, seen := names[id]; seen {
			continue
		}
		if v, ok := r.cache.Get(id); ok {
			names[id] = v.(string)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names
	}

	users, err := r.users.FindByIDs(ctx, missing)
	if err != nil {
		r.log.Warn("Failed to resolve display names", "count", len(missing), "error", err)
		return names
	}
	for id, u := range users {
		r.cache.Add(id, u.DisplayName)
		names[id] = u.DisplayName
	}
	return names
}

// Enrich fills in DisplayName on every non-nil holder.
func (r *Resolver) Enrich(ctx context.Context, holders ...*model.Holder) {
	ids := make([]string, 0, len(holders))
	for _, h := range holders {
		if h != nil {
			ids = append(ids, h.ID)
		}
	}
	names := r.DisplayNames(ctx, ids...)
	for _, h := range holders {
		if h != nil {
			h.DisplayName = names[h.ID]
		}
	}
}

// Forget drops a cached name after the profile changed.
func (r *Resolver) Forget(id string) {
	r.cache.Remove(id)
}

// Register stores a user's profile and refreshes the cached name.
func (r *Resolver) Register(ctx context.Context, user *model.User) error {
	user.DisplayName = sanitizer.NormalizeDisplayName(user.DisplayName)
	if err := r.users.Upsert(ctx, user); err != nil {
		return err
	}
	r.cache.Add(user.ID, user.DisplayName)
	return nil
}
