package domain

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidPayload = errors.New("message payload does not match kind")

type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindAudio    MessageKind = "audio"
	KindVideo    MessageKind = "video"
	KindFile     MessageKind = "file"
	KindLocation MessageKind = "location"
)

func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindAudio, KindVideo, KindFile, KindLocation:
		return true
	}
	return false
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Message is one immutable unit in a conversation's ordered log. CreatedAt is
// assigned by the store on insert and is the ordering key; Seq is the
// store-assigned insertion order used to break timestamp ties.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversation_id"`
	SenderID       string      `json:"sender_id"`
	ReceiverID     string      `json:"receiver_id"`
	Kind           MessageKind `json:"kind"`
	Text           string      `json:"text,omitempty"`
	FileURL        string      `json:"file_url,omitempty"`
	FileName       string      `json:"file_name,omitempty"`
	Location       *Location   `json:"location,omitempty"`
	Seq            int64       `json:"seq"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Payload carries the kind-dependent content of an append request. Exactly one
// shape is allowed per kind: text for text messages, a file URL (plus optional
// file name) for media, coordinates for location.
type Payload struct {
	Text     string    `json:"text,omitempty"`
	FileURL  string    `json:"file_url,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Validate checks that the payload shape matches the message kind.
func (p Payload) Validate(kind MessageKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidPayload, kind)
	}
	switch kind {
	case KindText:
		if p.Text == "" || p.FileURL != "" || p.FileName != "" || p.Location != nil {
			return fmt.Errorf("%w: text message carries text only", ErrInvalidPayload)
		}
	case KindImage, KindAudio, KindVideo, KindFile:
		if p.FileURL == "" || p.Text != "" || p.Location != nil {
			return fmt.Errorf("%w: %s message carries a file URL only", ErrInvalidPayload, kind)
		}
	case KindLocation:
		if p.Location == nil || p.Text != "" || p.FileURL != "" || p.FileName != "" {
			return fmt.Errorf("%w: location message carries coordinates only", ErrInvalidPayload)
		}
	}
	return nil
}

// Preview returns the chat-list preview text for a message of the given kind.
// The mapping is deterministic: text carries the literal text, media kinds get
// fixed markers, files show their name when one was attached.
func (p Payload) Preview(kind MessageKind) string {
	switch kind {
	case KindText:
		return p.Text
	case KindImage:
		return "photo"
	case KindAudio:
		return "voice message"
	case KindVideo:
		return "video"
	case KindFile:
		if p.FileName != "" {
			return p.FileName
		}
		return "attachment"
	case KindLocation:
		return "location shared"
	}
	return ""
}
