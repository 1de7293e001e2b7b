// Package domain contains core domain types for the job board chat service.
package domain

import (
	"time"
)

// Role is the account type a user registered with.
type Role string

const (
	RoleJobseeker Role = "jobseeker"
	RoleEmployer  Role = "employer"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleJobseeker, RoleEmployer, RoleAdmin:
		return true
	}
	return false
}

// User is the chat-side mirror of an identity record.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"user_type"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// IsEmployer returns true if the user registered as an employer.
func (u *User) IsEmployer() bool {
	return u.Role == RoleEmployer
}

// IsJobseeker returns true if the user registered as a jobseeker.
func (u *User) IsJobseeker() bool {
	return u.Role == RoleJobseeker
}

// IsAdmin returns true for administrators.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
