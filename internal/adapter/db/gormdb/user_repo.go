package gormdb

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-manager/internal/domain/user"
	pkgerrors "user-manager/pkg/errors"
)

// UserRepo implements the user Repository with GORM. It runs against
// PostgreSQL in production and SQLite for local runs and tests.
type UserRepo struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewUserRepo creates a new instance of UserRepo.
func NewUserRepo(db *gorm.DB, log *zap.Logger) *UserRepo {
	return &UserRepo{db: db, log: log}
}

// UserSchema represents the database schema for the users table.
type UserSchema struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Username string `gorm:"size:255;not null"`
	Email    string `gorm:"size:255;not null"`
}

// TableName specifies the table name for the UserSchema model.
func (UserSchema) TableName() string {
	return "users"
}

func (m UserSchema) toDomain() user.User {
	return user.User{ID: m.ID, Username: m.Username, Email: m.Email}
}

// Create inserts a new user and returns the ID the database assigned.
func (r *UserRepo) Create(ctx context.Context, u *user.User) (int64, error) {
	if u == nil {
		return 0, errors.New("user cannot be nil")
	}

	model := UserSchema{
		Username: u.Username,
		Email:    u.Email,
	}

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		r.log.Error("failed to create user in db", zap.Error(err), zap.String("username", u.Username))
		return 0, pkgerrors.NewInternalError("failed to create user", err)
	}

	r.log.Info("user created in db", zap.Int64("id", model.ID))
	return model.ID, nil
}

// Update overwrites username and email of an existing row. It never inserts.
func (r *UserRepo) Update(ctx context.Context, u *user.User) (int64, error) {
	if u == nil {
		return 0, errors.New("user cannot be nil")
	}

	res := r.db.WithContext(ctx).
		Model(&UserSchema{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{"username": u.Username, "email": u.Email})
	if res.Error != nil {
		r.log.Error("failed to update user in db", zap.Error(res.Error), zap.Int64("id", u.ID))
		return 0, pkgerrors.NewInternalError("failed to update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, pkgerrors.UserNotFound(u.ID)
	}

	r.log.Info("user updated in db", zap.Int64("id", u.ID))
	return u.ID, nil
}

// Delete removes a user from the database by ID.
func (r *UserRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res := r.db.WithContext(ctx).Delete(&UserSchema{}, id)
	if res.Error != nil {
		r.log.Error("failed to delete user in db", zap.Error(res.Error), zap.Int64("id", id))
		return 0, pkgerrors.NewInternalError("failed to delete user", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, pkgerrors.UserNotFound(id)
	}

	r.log.Info("user deleted in db", zap.Int64("id", id))
	return id, nil
}

// GetByID retrieves a user from the database by their unique ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var model UserSchema
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.UserNotFound(id)
		}
		r.log.Error("failed to get user from db", zap.Error(err), zap.Int64("id", id))
		return nil, pkgerrors.NewInternalError("failed to get user", err)
	}

	u := model.toDomain()
	return &u, nil
}

// List returns every user ordered by ID, which is insertion order.
func (r *UserRepo) List(ctx context.Context) ([]user.User, error) {
	var models []UserSchema
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		r.log.Error("failed to list users from db", zap.Error(err))
		return nil, pkgerrors.NewInternalError("failed to list users", err)
	}

	users := make([]user.User, len(models))
	for i, model := range models {
		users[i] = model.toDomain()
	}

	return users, nil
}
