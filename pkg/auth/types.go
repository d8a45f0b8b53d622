package auth

import (
	"fmt"
	"strings"
)

// Role is the caller's privilege level
type Role string

const (
	RoleUser  Role = "User"  // Manages own tasks and notifications
	RoleAdmin Role = "Admin" // Manages all users and tasks
)

// ErrInvalidRole is returned for role names outside the known set
var ErrInvalidRole = fmt.Errorf("role must be %q or %q", RoleUser, RoleAdmin)

// ParseRole maps a role name to its canonical form. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(s), string(RoleUser)):
		return RoleUser, nil
	case strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)):
		return RoleAdmin, nil
	default:
		return "", ErrInvalidRole
	}
}

// User is a registered account
type User struct {
	ID           int64  `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"passwordHash" db:"password_hash"`
	Role         Role   `json:"role" db:"role"`
}

// Principal is the authenticated caller of a request
type Principal struct {
	UserID int64
	Role   Role
}

// IsAdmin reports whether the caller holds the Admin role
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
