package memory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	domain "user-manager/internal/domain/user"
	pkgerrors "user-manager/pkg/errors"
)

// UserRepo keeps users in process memory, in insertion order.
// IDs start at 1 and are never reused.
type UserRepo struct {
	mu     sync.RWMutex
	users  []domain.User
	index  map[int64]int // id -> position in users
	nextID int64
	log    *zap.Logger
}

// NewUserRepo creates an empty in-memory store.
func NewUserRepo(log *zap.Logger) *UserRepo {
	return &UserRepo{
		index:  make(map[int64]int),
		nextID: 1,
		log:    log,
	}
}

// Create appends a copy of u with a freshly assigned ID.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) (int64, error) {
	if u == nil {
		return 0, errors.New("user cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.nextID++

	r.index[id] = len(r.users)
	r.users = append(r.users, domain.User{ID: id, Username: u.Username, Email: u.Email})

	r.log.Debug("user created in memory", zap.Int64("id", id))
	return id, nil
}

// GetByID returns a copy of the stored user.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.index[id]
	if !ok {
		return nil, pkgerrors.UserNotFound(id)
	}

	u := r.users[pos]
	return &u, nil
}

// Update replaces username and email in place, keeping the user's position.
func (r *UserRepo) Update(ctx context.Context, u *domain.User) (int64, error) {
	if u == nil {
		return 0, errors.New("user cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[u.ID]
	if !ok {
		return 0, pkgerrors.UserNotFound(u.ID)
	}

	r.users[pos].Username = u.Username
	r.users[pos].Email = u.Email

	r.log.Debug("user updated in memory", zap.Int64("id", u.ID))
	return u.ID, nil
}

// Delete removes the user and shifts later users down one position.
func (r *UserRepo) Delete(ctx context.Context, id int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.index[id]
	if !ok {
		return 0, pkgerrors.UserNotFound(id)
	}

	r.users = append(r.users[:pos], r.users[pos+1:]...)
	delete(r.index, id)
	for i := pos; i < len(r.users); i++ {
		r.index[r.users[i].ID] = i
	}

	r.log.Debug("user deleted in memory", zap.Int64("id", id))
	return id, nil
}

// List returns a snapshot of all users.
func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]domain.User, len(r.users))
	copy(users, r.users)
	return users, nil
}
