// Package models defines the persistent entities of the identity server.
package models

import "time"

// Role is the authorization role embedded in access tokens.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// In reports whether r is a member of the allowed set. An empty set and an
// unknown role both deny.
func (r Role) In(allowed ...Role) bool {
	if !r.Valid() {
		return false
	}
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// User is a registered account. PasswordHash must never leave the services
// layer; transport code works with PublicUser instead.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	FirstName    string
	LastName     string
	Bio          string
	CreatedAt    time.Time
}

// PublicUser is the externally visible view of a User.
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credentials from the user record.
func (u *User) Public() *PublicUser {
	return &PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
