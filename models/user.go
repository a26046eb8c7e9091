package models

import (
	"time" // Package for time operations

	"github.com/google/uuid" // Package for UUID generation
)

// Role is a tag assigned explicitly to a user. A user holds zero or more roles.
type Role string

const (
	RoleDonor     Role = "donor"     // May accept blood requests
	RoleRecipient Role = "recipient" // Creates requests and confirms donations
	RoleAdmin     Role = "admin"
)

// AllRoles lists every assignable role tag.
var AllRoles = []Role{RoleDonor, RoleRecipient, RoleAdmin}

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleRecipient, RoleAdmin:
		return true
	}
	return false
}

// User represents the structure for the 'users' table in the database.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`                 // Primary key
	Username     string    `json:"username" db:"username"`     // Unique login name
	Email        string    `json:"email" db:"email"`           // Unique email address
	PasswordHash string    `json:"-" db:"password_hash"`       // Hashed password (excluded from JSON responses)
	IsActive     bool      `json:"is_active" db:"is_active"`   // False until the email address is verified
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // Timestamp of user creation
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // Timestamp of last user update
}

// RegisterRequest defines the structure for user registration requests.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginRequest accepts either the username or the email address as identifier.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email" validate:"required"`
	Password        string `json:"password" validate:"required"`
}

// UserResponse is the public representation of a user.
// All fields are read-only.
type UserResponse struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	IsActive   bool      `json:"is_active"`
	DateJoined time.Time `json:"date_joined"`
	Roles      []Role    `json:"roles"`
}

// NewUserResponse maps a user and its roles to the public representation.
func NewUserResponse(u *User, roles []Role) UserResponse {
	if roles == nil {
		roles = []Role{}
	}
	return UserResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		IsActive:   u.IsActive,
		DateJoined: u.CreatedAt,
		Roles:      roles,
	}
}

// LoginResponse defines the structure for successful login responses.
type LoginResponse struct {
	Token   string       `json:"access"`  // Access token (JWT)
	Refresh string       `json:"refresh"` // Single-use refresh token
	User    UserResponse `json:"user"`
}

// RefreshRequest carries a refresh token for rotation or logout.
type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

// TokenPairResponse is returned by token refresh. The old refresh token is spent.
type TokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// ReplaceRolesRequest is the write schema for PUT /users/:id/roles. The list replaces the
// whole role set; an empty list clears it.
type ReplaceRolesRequest struct {
	Roles []string `json:"roles"`
}

// UserRolesResponse lists the roles assigned to one user.
type UserRolesResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []Role    `json:"roles"`
}
