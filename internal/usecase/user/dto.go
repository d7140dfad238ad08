package user

// CreateUserRequest represents the request payload for creating a new user.
type CreateUserRequest struct {
	Username string `validate:"max=255"`
	Email    string `validate:"max=255"`
}

// CreateUserResponse carries the stored user, including its assigned ID.
type CreateUserResponse struct {
	User
}

// UpdateUserRequest replaces every field of the user with the given ID.
type UpdateUserRequest struct {
	ID       int64  `validate:"gt=0"`
	Username string `validate:"max=255"`
	Email    string `validate:"max=255"`
}

// UpdateUserResponse carries the user as stored after the update.
type UpdateUserResponse struct {
	User
}

// DeleteUserRequest represents the request payload for deleting a user.
type DeleteUserRequest struct {
	ID int64 `validate:"gt=0"`
}

// DeleteUserResponse represents the response payload after deleting a user.
type DeleteUserResponse struct {
	ID int64
}

// GetUserRequest represents the request payload for retrieving a user.
type GetUserRequest struct {
	ID int64 `validate:"gt=0"`
}

// GetUserResponse represents the response payload for user details.
type GetUserResponse struct {
	User
}

// ListUsersResponse holds every stored user in insertion order.
type ListUsersResponse struct {
	Users []User
}

// User represents a user DTO (Data Transfer Object) for API responses.
type User struct {
	ID       int64
	Username string
	Email    string
}
