package user

import "context"

// Usecase defines the interface for user business logic operations.
type Usecase interface {
	ListUsers(ctx context.Context) (*ListUsersResponse, error)
	CreateUser(ctx context.Context, in CreateUserRequest) (*CreateUserResponse, error)
	UpdateUser(ctx context.Context, in UpdateUserRequest) (*UpdateUserResponse, error)
	GetUser(ctx context.Context, in GetUserRequest) (*GetUserResponse, error)
	DeleteUser(ctx context.Context, in DeleteUserRequest) (*DeleteUserResponse, error)
}
