package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "user-manager/internal/domain/user"
	pkgerrors "user-manager/pkg/errors"
	"user-manager/pkg/logger"
)

// Repository defines the interface for user data access operations.
// Implementations return pkgerrors.NotFoundError for absent IDs.
type Repository interface {
	Create(ctx context.Context, u *domain.User) (int64, error) // Create assigns and returns a new ID
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	Update(ctx context.Context, u *domain.User) (int64, error) // Update replaces username and email
	Delete(ctx context.Context, id int64) (int64, error)
	List(ctx context.Context) ([]domain.User, error) // List returns users in insertion order
}

// Service implements Usecase on top of a Repository.
type Service struct {
	repo     Repository
	log      *zap.Logger
	validate *validator.Validate
}

var _ Usecase = (*Service)(nil)

// New creates a new user service.
func New(r Repository, log *zap.Logger) *Service {
	return &Service{repo: r, log: log, validate: validator.New()}
}

// formatValidationError converts validator.ValidationErrors into a ValidationError.
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return pkgerrors.NewValidationError("", err.Error())
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.Tag() {
		case "gt":
			messages = append(messages, fmt.Sprintf("%s must be greater than %s", e.Field(), e.Param()))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", e.Field()))
		}
	}
	return pkgerrors.NewValidationError("", strings.Join(messages, ", "))
}

// ListUsers returns every stored user in insertion order.
func (s *Service) ListUsers(ctx context.Context) (*ListUsersResponse, error) {
	log := logger.WithContext(ctx, s.log)
	log.Debug("listing users")

	domainUsers, err := s.repo.List(ctx)
	if err != nil {
		log.Error("failed to list users", zap.Error(err))
		return nil, err
	}

	users := make([]User, len(domainUsers))
	for i, du := range domainUsers {
		users[i] = toDTO(&du)
	}

	return &ListUsersResponse{Users: users}, nil
}

// CreateUser stores a new user. The store assigns the ID.
func (s *Service) CreateUser(ctx context.Context, in CreateUserRequest) (*CreateUserResponse, error) {
	log := logger.WithContext(ctx, s.log)
	log.Info("creating user", zap.String("username", in.Username), zap.String("email", in.Email))

	if err := s.validate.StructCtx(ctx, in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	u := &domain.User{Username: in.Username, Email: in.Email}
	id, err := s.repo.Create(ctx, u)
	if err != nil {
		log.Error("failed to create user", zap.Error(err))
		return nil, err
	}
	u.ID = id

	return &CreateUserResponse{User: toDTO(u)}, nil
}

// UpdateUser replaces the username and email of an existing user.
func (s *Service) UpdateUser(ctx context.Context, in UpdateUserRequest) (*UpdateUserResponse, error) {
	log := logger.WithContext(ctx, s.log)
	log.Info("updating user", zap.Int64("id", in.ID), zap.String("username", in.Username), zap.String("email", in.Email))

	if err := s.validate.StructCtx(ctx, in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, formatValidationError(err)
	}

	u := &domain.User{ID: in.ID, Username: in.Username, Email: in.Email}
	if _, err := s.repo.Update(ctx, u); err != nil {
		log.Warn("failed to update user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	return &UpdateUserResponse{User: toDTO(u)}, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, in GetUserRequest) (*GetUserResponse, error) {
	log := logger.WithContext(ctx, s.log)

	if err := s.validate.StructCtx(ctx, in); err != nil {
		log.Warn("get user validation failed", zap.Int64("id", in.ID))
		return nil, pkgerrors.NewValidationError("", "invalid user id")
	}

	u, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		log.Warn("failed to get user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	return &GetUserResponse{User: toDTO(u)}, nil
}

// DeleteUser removes a user by ID.
func (s *Service) DeleteUser(ctx context.Context, in DeleteUserRequest) (*DeleteUserResponse, error) {
	log := logger.WithContext(ctx, s.log)
	log.Info("deleting user", zap.Int64("id", in.ID))

	if err := s.validate.StructCtx(ctx, in); err != nil {
		log.Warn("delete user validation failed", zap.Int64("id", in.ID))
		return nil, pkgerrors.NewValidationError("", "invalid user id")
	}

	id, err := s.repo.Delete(ctx, in.ID)
	if err != nil {
		log.Warn("failed to delete user", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	return &DeleteUserResponse{ID: id}, nil
}

func toDTO(u *domain.User) User {
	return User{ID: u.ID, Username: u.Username, Email: u.Email}
}
