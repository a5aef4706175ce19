package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the platform.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// User represents an app user. Identity is anchored to a device installation
// (DeviceUUID); email and password exist only after an account upgrade.
type User struct {
	ID           uuid.UUID `json:"id"`
	DeviceUUID   string    `json:"-"`
	Email        *string   `json:"email,omitempty"`
	PasswordHash *string   `json:"-"`
	DisplayName  string    `json:"display_name"`
	Role         Role      `json:"role"`
	APNSToken    *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPushToken reports whether the user has a registered APNs token.
func (u *User) HasPushToken() bool {
	return u.APNSToken != nil && *u.APNSToken != ""
}
