package users

import (
	"fmt"
	"slices"
	"strings"
)

// RoleType is an authorization level attached to a LibraHub identity
type RoleType string

const (
	RoleUser      RoleType = "User"      // Library reader
	RoleLibrarian RoleType = "Librarian" // Manages the book catalog
	RoleAdmin     RoleType = "Admin"     // Manages users, books and sees statistics
)

// Roles is the fixed role vocabulary.
var Roles = []RoleType{RoleUser, RoleLibrarian, RoleAdmin}

// Status is the account lifecycle state reported by the API
type Status string

const (
	StatusActive   Status = "Active"
	StatusDisabled Status = "Disabled"
	StatusPending  Status = "Pending"
)

// User is the identity returned by GET /me.
type User struct {
	UserID        string     `json:"userId"`              // Unique identifier for the user
	Email         string     `json:"email"`               // User's email address
	Roles         []RoleType `json:"roles"`               // Authorization levels
	EmailVerified bool       `json:"emailVerified"`       // Has the email verification link been consumed
	Status        Status     `json:"status"`              // Active, Disabled or Pending
	FirstName     string     `json:"firstName,omitempty"` // Optional first name
	LastName      string     `json:"lastName,omitempty"`  // Optional last name
}

func (u *User) HasRole(role RoleType) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// IsLibrarian is true for librarians and admins, both may manage books.
func (u *User) IsLibrarian() bool {
	return u.HasRole(RoleLibrarian) || u.HasRole(RoleAdmin)
}

// HasAnyRole reports whether the user holds at least one of roles.
func (u *User) HasAnyRole(roles ...RoleType) bool {
	for _, r := range roles {
		if u.HasRole(r) {
			return true
		}
	}
	return false
}

// DisplayName falls back to the email when no name is set.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Clone returns a deep copy so callers can't alias the roles slice.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

// ParseRole validates a role name against the vocabulary.
func ParseRole(s string) (RoleType, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
