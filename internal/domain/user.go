package domain

import (
	"strings"
	"time"
)

// User is a profile document. The ID is an opaque string issued at
// registration and never reused; everything else is mutable profile data.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	PhotoURL     *string   `json:"photo_url,omitempty"`
	DeviceToken  string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
