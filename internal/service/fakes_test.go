package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/push"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory UserRepository.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Phone == phone {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeUserRepo) UpdateDeviceToken(_ context.Context, id, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.DeviceToken = token
	}
	return nil
}

// fakeContactRepo is an in-memory ContactRepository keyed by (owner, user).
type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[string]domain.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[string]domain.Contact)}
}

func contactKey(ownerID, userID string) string { return ownerID + "|" + userID }

func (r *fakeContactRepo) Upsert(_ context.Context, contact *domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[contactKey(contact.OwnerID, contact.UserID)] = *contact
	return nil
}

func (r *fakeContactRepo) Get(_ context.Context, ownerID, userID string) (*domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactKey(ownerID, userID)]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (r *fakeContactRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Contact
	for _, c := range r.contacts {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *fakeContactRepo) Delete(_ context.Context, ownerID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.contacts, contactKey(ownerID, userID))
	return nil
}

// fakeConvRepo is an in-memory ConversationRepository mirroring the store's
// insert-if-absent and atomic counter semantics.
type fakeConvRepo struct {
	mu    sync.Mutex
	convs map[string]*domain.Conversation

	recordErr error // injected RecordMessage failure
}

func newFakeConvRepo(convs ...*domain.Conversation) *fakeConvRepo {
	r := &fakeConvRepo{convs: make(map[string]*domain.Conversation)}
	for _, c := range convs {
		cp := *c
		r.convs[c.ID] = &cp
	}
	return r
}

func (r *fakeConvRepo) CreateIfAbsent(_ context.Context, conv *domain.Conversation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.convs[conv.ID]; ok {
		return false, nil
	}
	cp := *conv
	r.convs[conv.ID] = &cp
	return true, nil
}

func (r *fakeConvRepo) GetByID(_ context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConvRepo) ListByUser(_ context.Context, userID string) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.convs {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out, nil
}

func (r *fakeConvRepo) RecordMessage(_ context.Context, id, preview, senderID, recipientID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recordErr != nil {
		return r.recordErr
	}
	c, ok := r.convs[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	c.LastMessagePreview = preview
	c.LastMessageSender = senderID
	c.LastMessageAt = &at
	c.UpdatedAt = at
	if recipientID == c.User1ID {
		c.Unread1++
	} else if recipientID == c.User2ID {
		c.Unread2++
	}
	return nil
}

func (r *fakeConvRepo) ResetUnread(_ context.Context, id, readerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return fmt.Errorf("conversation %s not found", id)
	}
	if readerID == c.User1ID {
		c.Unread1 = 0
	} else if readerID == c.User2ID {
		c.Unread2 = 0
	}
	return nil
}

// fakeMsgRepo is an in-memory MessageRepository with a store-assigned
// sequence and timestamp, like the real log.
type fakeMsgRepo struct {
	mu   sync.Mutex
	msgs []domain.Message
	seq  int64

	// now lets tests pin the assigned timestamp to force ties.
	now func() time.Time
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{now: time.Now}
}

func (r *fakeMsgRepo) Append(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = fmt.Sprintf("msg-%d", r.seq)
	msg.Seq = r.seq
	msg.CreatedAt = r.now()
	r.msgs = append(r.msgs, *msg)
	return nil
}

func (r *fakeMsgRepo) ListByConversation(_ context.Context, conversationID string) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// fakeRelay captures push notifications.
type fakeRelay struct {
	mu     sync.Mutex
	tokens []string
	sent   []push.Notification
	err    error
}

func (r *fakeRelay) Notify(_ context.Context, deviceToken string, n push.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tokens = append(r.tokens, deviceToken)
	r.sent = append(r.sent, n)
	return nil
}
