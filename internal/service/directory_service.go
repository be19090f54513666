package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/live"
	"github.com/mhodzic/parley/internal/repository"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrUserNotFound         = errors.New("user not found")
)

// DirectoryService owns the mapping from a pair of users to their canonical
// conversation record: idempotent creation, the caller's chat list, and
// read acknowledgement.
type DirectoryService struct {
	convRepo repository.ConversationRepository
	userRepo repository.UserRepository
	broker   *live.Broker
	log      *slog.Logger
}

func NewDirectoryService(convRepo repository.ConversationRepository, userRepo repository.UserRepository, broker *live.Broker, log *slog.Logger) *DirectoryService {
	return &DirectoryService{
		convRepo: convRepo,
		userRepo: userRepo,
		broker:   broker,
		log:      log,
	}
}

// ResolveConversation derives the conversation ID for a pair of users without
// touching the store.
func (s *DirectoryService) ResolveConversation(selfID, otherID string) (string, error) {
	return domain.ConversationKey(selfID, otherID)
}

// EnsureConversation returns the conversation between the two users, creating
// it on first contact. Creation goes through an insert-if-absent: when both
// sides initiate concurrently exactly one insert wins and both callers
// converge on the same record.
func (s *DirectoryService) EnsureConversation(ctx context.Context, selfID, otherID string) (*domain.Conversation, error) {
	key, err := domain.ConversationKey(selfID, otherID)
	if err != nil {
		return nil, err
	}

	existing, err := s.convRepo.GetByID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	self, err := s.userRepo.GetByID(ctx, selfID)
	if err != nil {
		return nil, err
	}
	if self == nil {
		return nil, ErrUserNotFound
	}
	other, err := s.userRepo.GetByID(ctx, otherID)
	if err != nil {
		return nil, err
	}
	if other == nil {
		return nil, ErrUserNotFound
	}

	now := time.Now()
	conv := &domain.Conversation{
		ID:        key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	conv.User1ID, conv.User2ID = domain.SortParticipants(selfID, otherID)
	if conv.User1ID == selfID {
		conv.User1Name, conv.User1Photo = self.DisplayName(), self.PhotoURL
		conv.User2Name, conv.User2Photo = other.DisplayName(), other.PhotoURL
	} else {
		conv.User1Name, conv.User1Photo = other.DisplayName(), other.PhotoURL
		conv.User2Name, conv.User2Photo = self.DisplayName(), self.PhotoURL
	}

	created, err := s.convRepo.CreateIfAbsent(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	if !created {
		// Lost the race against the other participant's first contact; the
		// record at this key is theirs and equally ours.
		winner, err := s.convRepo.GetByID(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("reading conversation: %w", err)
		}
		if winner == nil {
			return nil, ErrConversationNotFound
		}
		return winner, nil
	}

	publishConversation(ctx, s.broker, s.log, conv)
	return conv, nil
}

// ListConversations returns the caller's chat list, most recent first.
func (s *DirectoryService) ListConversations(ctx context.Context, selfID string) ([]domain.ConversationListItem, error) {
	convs, err := s.convRepo.ListByUser(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	items := make([]domain.ConversationListItem, 0, len(convs))
	for i := range convs {
		item, err := convs[i].ListItemFor(selfID)
		if err != nil {
			continue
		}
		items = append(items, *item)
	}
	return items, nil
}

// MarkRead zeroes the reader's unread counter. Idempotent.
func (s *DirectoryService) MarkRead(ctx context.Context, conversationID, readerID string) error {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("reading conversation: %w", err)
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if !conv.HasParticipant(readerID) {
		return domain.ErrNotParticipant
	}

	if err := s.convRepo.ResetUnread(ctx, conversationID, readerID); err != nil {
		return fmt.Errorf("resetting unread counter: %w", err)
	}

	if updated, err := s.convRepo.GetByID(ctx, conversationID); err == nil && updated != nil {
		publishConversation(ctx, s.broker, s.log, updated)
	}
	return nil
}

// SubscribeConversations opens a live stream of the caller's chat list. The
// first snapshot is loaded from the store, later ones are maintained from
// conversation change events.
func (s *DirectoryService) SubscribeConversations(ctx context.Context, selfID string) (*ConversationListStream, error) {
	events, unsub := s.broker.Subscribe(live.UserConversationsTopic(selfID))

	items, err := s.ListConversations(ctx, selfID)
	if err != nil {
		unsub()
		return nil, err
	}

	out := make(chan []domain.ConversationListItem, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		replaceLatest(out, items)

		for {
			select {
			case <-done:
				return
			case data, ok := <-events:
				if !ok {
					return
				}
				var conv domain.Conversation
				if err := json.Unmarshal(data, &conv); err != nil {
					s.log.Warn("decode conversation event", "error", err)
					continue
				}
				item, err := conv.ListItemFor(selfID)
				if err != nil {
					continue
				}
				items = upsertListItem(items, *item)
				replaceLatest(out, items)
			}
		}
	}()

	return &ConversationListStream{C: out, stop: func() {
		close(done)
		unsub()
	}}, nil
}

// upsertListItem replaces or inserts the item and restores descending
// recency order.
func upsertListItem(items []domain.ConversationListItem, item domain.ConversationListItem) []domain.ConversationListItem {
	replaced := false
	for i := range items {
		if items[i].ID == item.ID {
			items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		ti, tj := items[i].LastMessageAt, items[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return items
}
