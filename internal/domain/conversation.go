package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidParticipants = errors.New("conversation requires two distinct participants")
	ErrNotParticipant      = errors.New("user is not a participant of this conversation")
)

// keySeparator joins the two sorted participant IDs into a conversation ID.
// User IDs never contain "_" (they are UUID strings), so the key is unambiguous.
const keySeparator = "_"

// ConversationKey derives the canonical conversation ID for a pair of users.
// The two IDs are sorted lexicographically before joining, so the key is the
// same regardless of which side initiates: ConversationKey(a, b) == ConversationKey(b, a).
// It is pure and needs no store lookup, which makes conversation creation
// idempotent: both sides always address the same record.
func ConversationKey(a, b string) (string, error) {
	if a == "" || b == "" || a == b {
		return "", ErrInvalidParticipants
	}
	if a > b {
		a, b = b, a
	}
	return a + keySeparator + b, nil
}

// SortParticipants returns the pair in canonical (lexicographic) order.
func SortParticipants(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// Conversation is the persistent record of a two-party chat. User1 always
// holds the lexicographically smaller ID. Display names and photos are
// denormalized copies made at creation time and may go stale.
type Conversation struct {
	ID         string  `json:"id"`
	User1ID    string  `json:"user1_id"`
	User2ID    string  `json:"user2_id"`
	User1Name  string  `json:"user1_name"`
	User2Name  string  `json:"user2_name"`
	User1Photo *string `json:"user1_photo,omitempty"`
	User2Photo *string `json:"user2_photo,omitempty"`

	// Summary fields, overwritten on every append ("latest value" semantics).
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessageSender  string     `json:"last_message_sender,omitempty"`

	Unread1 int `json:"user1_unread"`
	Unread2 int `json:"user2_unread"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID == c.User1ID || userID == c.User2ID
}

// OtherParticipant returns the participant that is not userID.
func (c *Conversation) OtherParticipant(userID string) (string, error) {
	switch userID {
	case c.User1ID:
		return c.User2ID, nil
	case c.User2ID:
		return c.User1ID, nil
	}
	return "", ErrNotParticipant
}

// UnreadFor returns the unread counter of the given participant.
func (c *Conversation) UnreadFor(userID string) int {
	switch userID {
	case c.User1ID:
		return c.Unread1
	case c.User2ID:
		return c.Unread2
	}
	return 0
}

// ConversationListItem is the view-friendly projection of a conversation for
// one participant's chat list.
type ConversationListItem struct {
	ID                 string     `json:"id"`
	OtherUserID        string     `json:"other_user_id"`
	OtherName          string     `json:"other_name"`
	OtherPhotoURL      *string    `json:"other_photo_url,omitempty"`
	LastMessagePreview string     `json:"last_message_preview"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	LastMessageSender  string     `json:"last_message_sender,omitempty"`
	Unread             int        `json:"unread"`
}

// ListItemFor projects the conversation for the given participant's list view:
// the other side's name and photo, the latest summary, and the caller's own
// unread counter. Pure given the record and the caller's ID.
func (c *Conversation) ListItemFor(selfID string) (*ConversationListItem, error) {
	otherID, err := c.OtherParticipant(selfID)
	if err != nil {
		return nil, err
	}

	item := &ConversationListItem{
		ID:                 c.ID,
		OtherUserID:        otherID,
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      c.LastMessageAt,
		LastMessageSender:  c.LastMessageSender,
		Unread:             c.UnreadFor(selfID),
	}
	if otherID == c.User1ID {
		item.OtherName = c.User1Name
		item.OtherPhotoURL = c.User1Photo
	} else {
		item.OtherName = c.User2Name
		item.OtherPhotoURL = c.User2Photo
	}
	if strings.TrimSpace(item.OtherName) == "" {
		item.OtherName = "Unknown"
	}
	return item, nil
}
