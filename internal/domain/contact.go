package domain

import "time"

// Contact is a denormalized entry in one user's contact book. Profile fields
// are copied at add time and are not kept in sync with the users collection.
type Contact struct {
	OwnerID   string    `json:"-"`
	UserID    string    `json:"user_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	PhotoURL  *string   `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
