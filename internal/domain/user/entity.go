package user

// User represents a user entity in the system.
type User struct {
	ID       int64  // ID is assigned by the store on creation and never changes
	Username string // Username is the user's login name
	Email    string // Email is the user's contact address
}
