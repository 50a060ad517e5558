package user

import (
	"strings"
	"time"
)

// Role represents the closed set of user roles.
// @Description user role: ADMIN, MANAGER, TECHNICIAN or USER
type Role string

const (
	// RoleAdmin manages users and roles
	RoleAdmin Role = "ADMIN"
	// RoleManager supervises calibration work
	RoleManager Role = "MANAGER"
	// RoleTechnician performs calibrations
	RoleTechnician Role = "TECHNICIAN"
	// RoleUser is the self-registration default
	RoleUser Role = "USER"
)

// ParseRole returns the Role named by s, or false if s is not a known role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleAdmin, RoleManager, RoleTechnician, RoleUser:
		return r, true
	}
	return "", false
}

// User is the persisted identity record. It is never serialized directly;
// handlers respond with Profile.
type User struct {
	ID            uint   `gorm:"primaryKey"`
	Email         string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash  string `json:"-" gorm:"not null"`
	Name          string `gorm:"size:100;not null"`
	Role          Role   `gorm:"type:varchar(20);not null"`
	IsActive      bool   `gorm:"not null"`
	EmailVerified bool   `gorm:"not null"`
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the public projection of a User.
// swagger:model Profile
// @Description public user profile (never includes the password hash)
type Profile struct {
	ID            uint       `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	IsActive      bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// NewUser initializes an active, unverified User with the default role.
func NewUser(email, passwordHash, name string) *User {
	return &User{
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Name:         strings.TrimSpace(name),
		Role:         RoleUser,
		IsActive:     true,
	}
}

func (u *User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		Role:          u.Role,
		IsActive:      u.IsActive,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// NormalizeEmail is the canonical form used for storage and lookup, which
// makes email comparison case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
