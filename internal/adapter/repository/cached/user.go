package cached

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"user-manager/internal/adapter/cache"
	domain "user-manager/internal/domain/user"
	"user-manager/internal/usecase/user"
)

// UserRepository decorates a user.Repository with a cache-aside read path.
// Cache failures are logged and never fail the request.
type UserRepository struct {
	next  user.Repository
	cache cache.UserCache
	log   *zap.Logger
	group singleflight.Group
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository wraps next with c.
func NewUserRepository(next user.Repository, c cache.UserCache, log *zap.Logger) *UserRepository {
	return &UserRepository{
		next:  next,
		cache: c,
		log:   log,
	}
}

// Create delegates to the wrapped repository.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (int64, error) {
	return r.next.Create(ctx, u)
}

// List delegates to the wrapped repository.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	return r.next.List(ctx)
}

// GetByID reads through the cache. Concurrent misses for one ID share a
// single load from the wrapped repository. The shared load ignores any one
// caller's cancellation; each caller still stops waiting when its own ctx ends.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if u := r.fromCache(ctx, id); u != nil {
		return u, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(cache.Key(id), func() (any, error) {
		// another caller may have filled the cache while we waited
		if u := r.fromCache(loadCtx, id); u != nil {
			return u, nil
		}

		u, err := r.next.GetByID(loadCtx, id)
		if err != nil {
			return nil, err
		}

		if err := r.cache.Set(loadCtx, u); err != nil {
			r.log.Warn("failed to cache user", zap.Int64("id", id), zap.Error(err))
		}
		return u, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// callers may mutate the result; singleflight hands the same pointer to all of them
	u := *res.Val.(*domain.User)
	return &u, nil
}

// Update writes through to the wrapped repository, then evicts the entry.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (int64, error) {
	id, err := r.next.Update(ctx, u)
	if err != nil {
		return 0, err
	}

	r.evict(ctx, u.ID)
	return id, nil
}

// Delete removes the user from the wrapped repository, then evicts the entry.
func (r *UserRepository) Delete(ctx context.Context, id int64) (int64, error) {
	deletedID, err := r.next.Delete(ctx, id)
	if err != nil {
		return 0, err
	}

	r.evict(ctx, id)
	return deletedID, nil
}

func (r *UserRepository) fromCache(ctx context.Context, id int64) *domain.User {
	u, err := r.cache.Get(ctx, id)
	if err != nil {
		r.log.Warn("cache get error, falling back to store", zap.Int64("id", id), zap.Error(err))
		return nil
	}
	return u
}

func (r *UserRepository) evict(ctx context.Context, id int64) {
	if err := r.cache.Delete(ctx, id); err != nil {
		r.log.Warn("failed to invalidate cache", zap.Int64("id", id), zap.Error(err))
	}
}
