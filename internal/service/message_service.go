package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/live"
	"github.com/mhodzic/parley/internal/repository"
)

// MessageService owns the append-only message log of a conversation and its
// live, time-ordered views.
type MessageService struct {
	msgRepo  repository.MessageRepository
	convRepo repository.ConversationRepository
	broker   *live.Broker
	log      *slog.Logger
}

func NewMessageService(msgRepo repository.MessageRepository, convRepo repository.ConversationRepository, broker *live.Broker, log *slog.Logger) *MessageService {
	return &MessageService{
		msgRepo:  msgRepo,
		convRepo: convRepo,
		broker:   broker,
		log:      log,
	}
}

// Append validates and stores a message, then updates the parent
// conversation's summary fields and the recipient's unread counter. The
// summary update is a separate write: if it fails after the insert succeeded
// the message stays durable and only the chat-list preview goes stale until
// the next append, so the append still reports success.
func (s *MessageService) Append(ctx context.Context, conversationID, senderID string, kind domain.MessageKind, payload domain.Payload) (*domain.Message, error) {
	if err := payload.Validate(kind); err != nil {
		return nil, err
	}

	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	receiver, err := conv.OtherParticipant(senderID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		ReceiverID:     receiver,
		Kind:           kind,
		Text:           payload.Text,
		FileURL:        payload.FileURL,
		FileName:       payload.FileName,
		Location:       payload.Location,
	}

	if err := s.msgRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	publishMessage(ctx, s.broker, s.log, msg)

	if err := s.convRepo.RecordMessage(ctx, conv.ID, payload.Preview(kind), senderID, receiver, msg.CreatedAt); err != nil {
		s.log.Warn("summary update failed after append", "conversation", conv.ID, "error", err)
		return msg, nil
	}

	if updated, err := s.convRepo.GetByID(ctx, conv.ID); err == nil && updated != nil {
		publishConversation(ctx, s.broker, s.log, updated)
	}
	return msg, nil
}

// ListMessages returns the conversation's full log in ascending order.
func (s *MessageService) ListMessages(ctx context.Context, conversationID, selfID string) ([]domain.Message, error) {
	if _, err := s.participantConversation(ctx, conversationID, selfID); err != nil {
		return nil, err
	}
	msgs, err := s.msgRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

// SubscribeMessages opens a live stream of the conversation's ordered
// message log. The subscription is registered before the initial load so no
// append can fall between snapshot and stream; duplicates are dropped by ID.
func (s *MessageService) SubscribeMessages(ctx context.Context, conversationID, selfID string) (*MessageStream, error) {
	if _, err := s.participantConversation(ctx, conversationID, selfID); err != nil {
		return nil, err
	}

	events, unsub := s.broker.Subscribe(live.MessagesTopic(conversationID))

	snapshot, err := s.msgRepo.ListByConversation(ctx, conversationID)
	if err != nil {
		unsub()
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	out := make(chan []domain.Message, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)

		seen := make(map[string]struct{}, len(snapshot))
		for i := range snapshot {
			seen[snapshot[i].ID] = struct{}{}
		}
		replaceLatest(out, snapshot)

		for {
			select {
			case <-done:
				return
			case data, ok := <-events:
				if !ok {
					return
				}
				var msg domain.Message
				if err := json.Unmarshal(data, &msg); err != nil {
					s.log.Warn("decode message event", "error", err)
					continue
				}
				if _, dup := seen[msg.ID]; dup {
					continue
				}
				seen[msg.ID] = struct{}{}
				snapshot = append(snapshot, msg)
				sortMessages(snapshot)
				replaceLatest(out, snapshot)
			}
		}
	}()

	return &MessageStream{C: out, stop: func() {
		close(done)
		unsub()
	}}, nil
}

// SubscribeSummary opens a live stream of the conversation record itself,
// used to observe preview and unread changes without replaying messages.
// As with SubscribeMessages, the subscription is registered before the
// initial read so a change landing in between is buffered, not lost.
func (s *MessageService) SubscribeSummary(ctx context.Context, conversationID, selfID string) (*SummaryStream, error) {
	events, unsub := s.broker.Subscribe(live.SummaryTopic(conversationID))

	conv, err := s.participantConversation(ctx, conversationID, selfID)
	if err != nil {
		unsub()
		return nil, err
	}

	out := make(chan *domain.Conversation, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		replaceLatest(out, conv)

		for {
			select {
			case <-done:
				return
			case data, ok := <-events:
				if !ok {
					return
				}
				var updated domain.Conversation
				if err := json.Unmarshal(data, &updated); err != nil {
					s.log.Warn("decode conversation event", "error", err)
					continue
				}
				replaceLatest(out, &updated)
			}
		}
	}()

	return &SummaryStream{C: out, stop: func() {
		close(done)
		unsub()
	}}, nil
}

func (s *MessageService) participantConversation(ctx context.Context, conversationID, selfID string) (*domain.Conversation, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("reading conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(selfID) {
		return nil, domain.ErrNotParticipant
	}
	return conv, nil
}

// sortMessages restores (timestamp, seq) order. Events normally arrive
// already ordered; this covers equal timestamps and cross-instance races.
func sortMessages(msgs []domain.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].Seq < msgs[j].Seq
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
