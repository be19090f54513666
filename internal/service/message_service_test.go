package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/live"
)

func annBobConversation() *domain.Conversation {
	return &domain.Conversation{
		ID:        "ann_bob",
		User1ID:   "ann",
		User2ID:   "bob",
		User1Name: "Ann Novak",
		User2Name: "Bob Stone",
	}
}

func newMessageService(msgRepo *fakeMsgRepo, convRepo *fakeConvRepo) *MessageService {
	return NewMessageService(msgRepo, convRepo, live.NewBroker(nil, discardLogger()), discardLogger())
}

// waitForSnapshot receives from the stream until the predicate holds.
func waitForSnapshot[T any](t *testing.T, ch <-chan T, ok func(T) bool) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, open := <-ch:
			require.True(t, open, "stream closed before expected snapshot")
			if ok(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}

func TestAppend_StoresMessageAndUpdatesSummary(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	msgRepo := newFakeMsgRepo()
	svc := newMessageService(msgRepo, convRepo)
	ctx := context.Background()

	msg, err := svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "hello bob"})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, "ann", msg.SenderID)
	require.Equal(t, "bob", msg.ReceiverID)
	require.Equal(t, "hello bob", msg.Text)
	require.False(t, msg.CreatedAt.IsZero())

	conv, err := convRepo.GetByID(ctx, "ann_bob")
	require.NoError(t, err)
	require.Equal(t, "hello bob", conv.LastMessagePreview)
	require.Equal(t, "ann", conv.LastMessageSender)
	require.NotNil(t, conv.LastMessageAt)
	require.Equal(t, msg.CreatedAt, *conv.LastMessageAt)
	require.Zero(t, conv.UnreadFor("ann"))
	require.Equal(t, 1, conv.UnreadFor("bob"))
}

func TestAppend_MediaPreviewMarkers(t *testing.T) {
	cases := []struct {
		kind    domain.MessageKind
		payload domain.Payload
		preview string
	}{
		{domain.KindImage, domain.Payload{FileURL: "https://x/a.png"}, "photo"},
		{domain.KindAudio, domain.Payload{FileURL: "https://x/a.m4a"}, "voice message"},
		{domain.KindVideo, domain.Payload{FileURL: "https://x/a.mp4"}, "video"},
		{domain.KindFile, domain.Payload{FileURL: "https://x/r.pdf", FileName: "report.pdf"}, "report.pdf"},
		{domain.KindLocation, domain.Payload{Location: &domain.Location{Latitude: 45.8, Longitude: 16.0}}, "location shared"},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			convRepo := newFakeConvRepo(annBobConversation())
			svc := newMessageService(newFakeMsgRepo(), convRepo)

			_, err := svc.Append(context.Background(), "ann_bob", "bob", tc.kind, tc.payload)
			require.NoError(t, err)

			conv, err := convRepo.GetByID(context.Background(), "ann_bob")
			require.NoError(t, err)
			require.Equal(t, tc.preview, conv.LastMessagePreview)
			require.Equal(t, "bob", conv.LastMessageSender)
		})
	}
}

func TestAppend_InvalidPayloadStoresNothing(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	msgRepo := newFakeMsgRepo()
	svc := newMessageService(msgRepo, convRepo)

	_, err := svc.Append(context.Background(), "ann_bob", "ann", domain.KindText, domain.Payload{})
	require.ErrorIs(t, err, domain.ErrInvalidPayload)

	require.Empty(t, msgRepo.msgs)
	conv, err := convRepo.GetByID(context.Background(), "ann_bob")
	require.NoError(t, err)
	require.Empty(t, conv.LastMessagePreview)
	require.Zero(t, conv.Unread2)
}

func TestAppend_Errors(t *testing.T) {
	svc := newMessageService(newFakeMsgRepo(), newFakeConvRepo(annBobConversation()))
	ctx := context.Background()

	_, err := svc.Append(ctx, "ghost_conv", "ann", domain.KindText, domain.Payload{Text: "hi"})
	require.ErrorIs(t, err, ErrConversationNotFound)

	_, err = svc.Append(ctx, "ann_bob", "mallory", domain.KindText, domain.Payload{Text: "hi"})
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestAppend_UnreadAccumulatesPerRecipient(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	svc := newMessageService(newFakeMsgRepo(), convRepo)
	ctx := context.Background()

	_, err := svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "one"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "two"})
	require.NoError(t, err)
	_, err = svc.Append(ctx, "ann_bob", "bob", domain.KindText, domain.Payload{Text: "three"})
	require.NoError(t, err)

	conv, err := convRepo.GetByID(ctx, "ann_bob")
	require.NoError(t, err)
	require.Equal(t, 2, conv.UnreadFor("bob"))
	require.Equal(t, 1, conv.UnreadFor("ann"))
	require.Equal(t, "three", conv.LastMessagePreview)
	require.Equal(t, "bob", conv.LastMessageSender)
}

func TestAppend_SummaryFailureKeepsMessageDurable(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	convRepo.recordErr = errors.New("store unavailable")
	msgRepo := newFakeMsgRepo()
	svc := newMessageService(msgRepo, convRepo)
	ctx := context.Background()

	msg, err := svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "hello"})
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Len(t, msgRepo.msgs, 1)

	conv, err := convRepo.GetByID(ctx, "ann_bob")
	require.NoError(t, err)
	require.Empty(t, conv.LastMessagePreview)
	require.Zero(t, conv.UnreadFor("bob"))
}

func TestListMessages_AscendingWithInsertionTieBreak(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	msgRepo := newFakeMsgRepo()
	// Pin the clock so every append lands on the same timestamp.
	fixed := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	msgRepo.now = func() time.Time { return fixed }
	svc := newMessageService(msgRepo, convRepo)
	ctx := context.Background()

	for _, text := range []string{"first", "second", "third"} {
		_, err := svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: text})
		require.NoError(t, err)
	}

	msgs, err := svc.ListMessages(ctx, "ann_bob", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Text)
	require.Equal(t, "second", msgs[1].Text)
	require.Equal(t, "third", msgs[2].Text)
}

func TestListMessages_Errors(t *testing.T) {
	svc := newMessageService(newFakeMsgRepo(), newFakeConvRepo(annBobConversation()))
	ctx := context.Background()

	_, err := svc.ListMessages(ctx, "ghost_conv", "ann")
	require.ErrorIs(t, err, ErrConversationNotFound)

	_, err = svc.ListMessages(ctx, "ann_bob", "mallory")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestSubscribeMessages_DeliversInitialAndLiveSnapshots(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	svc := newMessageService(newFakeMsgRepo(), convRepo)
	ctx := context.Background()

	_, err := svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "hello"})
	require.NoError(t, err)

	stream, err := svc.SubscribeMessages(ctx, "ann_bob", "bob")
	require.NoError(t, err)
	defer stream.Cancel()

	initial := waitForSnapshot(t, stream.C, func(msgs []domain.Message) bool { return len(msgs) == 1 })
	require.Equal(t, "hello", initial[0].Text)

	_, err = svc.Append(ctx, "ann_bob", "bob", domain.KindText, domain.Payload{Text: "hi ann"})
	require.NoError(t, err)

	updated := waitForSnapshot(t, stream.C, func(msgs []domain.Message) bool { return len(msgs) == 2 })
	require.Equal(t, "hello", updated[0].Text)
	require.Equal(t, "hi ann", updated[1].Text)
}

func TestSubscribeMessages_CancelClosesStream(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	svc := newMessageService(newFakeMsgRepo(), convRepo)

	stream, err := svc.SubscribeMessages(context.Background(), "ann_bob", "ann")
	require.NoError(t, err)

	stream.Cancel()
	stream.Cancel() // idempotent

	waitForClose := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-stream.C:
			if !open {
				return
			}
		case <-waitForClose:
			t.Fatal("stream did not close after cancel")
		}
	}
}

func TestSubscribeMessages_RequiresParticipant(t *testing.T) {
	svc := newMessageService(newFakeMsgRepo(), newFakeConvRepo(annBobConversation()))

	_, err := svc.SubscribeMessages(context.Background(), "ann_bob", "mallory")
	require.ErrorIs(t, err, domain.ErrNotParticipant)
}

func TestSubscribeSummary_ObservesUnreadChanges(t *testing.T) {
	convRepo := newFakeConvRepo(annBobConversation())
	broker := live.NewBroker(nil, discardLogger())
	msgSvc := NewMessageService(newFakeMsgRepo(), convRepo, broker, discardLogger())
	dirSvc := NewDirectoryService(convRepo, newFakeUserRepo(), broker, discardLogger())
	ctx := context.Background()

	stream, err := msgSvc.SubscribeSummary(ctx, "ann_bob", "bob")
	require.NoError(t, err)
	defer stream.Cancel()

	waitForSnapshot(t, stream.C, func(c *domain.Conversation) bool { return c.Unread2 == 0 })

	_, err = msgSvc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "ping"})
	require.NoError(t, err)

	withUnread := waitForSnapshot(t, stream.C, func(c *domain.Conversation) bool { return c.Unread2 == 1 })
	require.Equal(t, "ping", withUnread.LastMessagePreview)
	require.Equal(t, "ann", withUnread.LastMessageSender)

	require.NoError(t, dirSvc.MarkRead(ctx, "ann_bob", "bob"))

	cleared := waitForSnapshot(t, stream.C, func(c *domain.Conversation) bool {
		return c.Unread2 == 0 && c.LastMessagePreview == "ping"
	})
	require.Equal(t, "ping", cleared.LastMessagePreview)
}

// readHookConvRepo runs a one-shot hook during GetByID after the record is
// read, so the caller observes the pre-hook state while the hook's changes
// land concurrently.
type readHookConvRepo struct {
	*fakeConvRepo
	hookMu sync.Mutex
	hook   func()
}

func (r *readHookConvRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	conv, err := r.fakeConvRepo.GetByID(ctx, id)

	r.hookMu.Lock()
	hook := r.hook
	r.hook = nil
	r.hookMu.Unlock()
	if hook != nil {
		hook()
	}
	return conv, err
}

func TestSubscribeSummary_ChangeDuringInitialReadIsNotLost(t *testing.T) {
	convRepo := &readHookConvRepo{fakeConvRepo: newFakeConvRepo(annBobConversation())}
	broker := live.NewBroker(nil, discardLogger())
	svc := NewMessageService(newFakeMsgRepo(), convRepo, broker, discardLogger())
	ctx := context.Background()

	// The append runs while the subscriber's initial read is in flight, so
	// the subscriber starts from the stale pre-append record.
	convRepo.hook = func() {
		_, err := svc.Append(ctx, "ann_bob", "ann", domain.KindText, domain.Payload{Text: "ping"})
		require.NoError(t, err)
	}

	stream, err := svc.SubscribeSummary(ctx, "ann_bob", "bob")
	require.NoError(t, err)
	defer stream.Cancel()

	got := waitForSnapshot(t, stream.C, func(c *domain.Conversation) bool { return c.Unread2 == 1 })
	require.Equal(t, "ping", got.LastMessagePreview)
	require.Equal(t, "ann", got.LastMessageSender)
}

func TestSubscribeConversations_TracksNewActivity(t *testing.T) {
	ann, bob := testUsers()
	convRepo := newFakeConvRepo()
	broker := live.NewBroker(nil, discardLogger())
	dirSvc := NewDirectoryService(convRepo, newFakeUserRepo(ann, bob), broker, discardLogger())
	msgSvc := NewMessageService(newFakeMsgRepo(), convRepo, broker, discardLogger())
	ctx := context.Background()

	stream, err := dirSvc.SubscribeConversations(ctx, "ann")
	require.NoError(t, err)
	defer stream.Cancel()

	waitForSnapshot(t, stream.C, func(items []domain.ConversationListItem) bool { return len(items) == 0 })

	conv, err := dirSvc.EnsureConversation(ctx, "bob", "ann")
	require.NoError(t, err)

	appeared := waitForSnapshot(t, stream.C, func(items []domain.ConversationListItem) bool { return len(items) == 1 })
	require.Equal(t, conv.ID, appeared[0].ID)
	require.Equal(t, "Bob Stone", appeared[0].OtherName)

	_, err = msgSvc.Append(ctx, conv.ID, "bob", domain.KindImage, domain.Payload{FileURL: "https://x/pic.png"})
	require.NoError(t, err)

	withMessage := waitForSnapshot(t, stream.C, func(items []domain.ConversationListItem) bool {
		return len(items) == 1 && items[0].Unread == 1
	})
	require.Equal(t, "photo", withMessage[0].LastMessagePreview)
	require.Equal(t, "bob", withMessage[0].LastMessageSender)
}
