package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mhodzic/parley/internal/domain"
	"github.com/mhodzic/parley/internal/live"
)

func testUsers() (*domain.User, *domain.User) {
	photo := "https://cdn.example.com/bob.jpg"
	ann := &domain.User{ID: "ann", Phone: "38591111111", FirstName: "Ann", LastName: "Novak"}
	bob := &domain.User{ID: "bob", Phone: "38592222222", FirstName: "Bob", LastName: "Stone", PhotoURL: &photo}
	return ann, bob
}

func newDirectoryService(convRepo *fakeConvRepo, userRepo *fakeUserRepo) *DirectoryService {
	return NewDirectoryService(convRepo, userRepo, live.NewBroker(nil, discardLogger()), discardLogger())
}

func TestEnsureConversation_CreatesWithDenormalizedProfiles(t *testing.T) {
	ann, bob := testUsers()
	convRepo := newFakeConvRepo()
	svc := newDirectoryService(convRepo, newFakeUserRepo(ann, bob))

	conv, err := svc.EnsureConversation(context.Background(), "bob", "ann")
	require.NoError(t, err)
	require.Equal(t, "ann_bob", conv.ID)
	require.Equal(t, "ann", conv.User1ID)
	require.Equal(t, "bob", conv.User2ID)
	require.Equal(t, "Ann Novak", conv.User1Name)
	require.Equal(t, "Bob Stone", conv.User2Name)
	require.Nil(t, conv.User1Photo)
	require.Equal(t, bob.PhotoURL, conv.User2Photo)
	require.Zero(t, conv.Unread1)
	require.Zero(t, conv.Unread2)
	require.Empty(t, conv.LastMessagePreview)
}

func TestEnsureConversation_IdempotentAcrossBothSides(t *testing.T) {
	ann, bob := testUsers()
	convRepo := newFakeConvRepo()
	svc := newDirectoryService(convRepo, newFakeUserRepo(ann, bob))

	first, err := svc.EnsureConversation(context.Background(), "ann", "bob")
	require.NoError(t, err)

	second, err := svc.EnsureConversation(context.Background(), "bob", "ann")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, convRepo.convs, 1)
}

func TestEnsureConversation_ConcurrentInitiationConverges(t *testing.T) {
	ann, bob := testUsers()
	convRepo := newFakeConvRepo()
	svc := newDirectoryService(convRepo, newFakeUserRepo(ann, bob))

	var wg sync.WaitGroup
	results := make([]*domain.Conversation, 2)
	errs := make([]error, 2)
	for i, pair := range [][2]string{{"ann", "bob"}, {"bob", "ann"}} {
		wg.Add(1)
		go func(i int, self, other string) {
			defer wg.Done()
			results[i], errs[i] = svc.EnsureConversation(context.Background(), self, other)
		}(i, pair[0], pair[1])
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, results[0].ID, results[1].ID)
	require.Len(t, convRepo.convs, 1)
}

// lostRaceConvRepo reports the record absent on the first read so the caller
// attempts an insert, but the rival record is already in place by then.
type lostRaceConvRepo struct {
	*fakeConvRepo
	firstRead sync.Once
	rival     *domain.Conversation
}

func (r *lostRaceConvRepo) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	missed := false
	r.firstRead.Do(func() {
		missed = true
		r.fakeConvRepo.CreateIfAbsent(ctx, r.rival)
	})
	if missed {
		return nil, nil
	}
	return r.fakeConvRepo.GetByID(ctx, id)
}

func TestEnsureConversation_LostInsertRaceReturnsWinner(t *testing.T) {
	ann, bob := testUsers()
	rival := &domain.Conversation{ID: "ann_bob", User1ID: "ann", User2ID: "bob", User1Name: "Ann Novak", User2Name: "Bob Stone"}
	convRepo := &lostRaceConvRepo{fakeConvRepo: newFakeConvRepo(), rival: rival}
	svc := NewDirectoryService(convRepo, newFakeUserRepo(ann, bob), live.NewBroker(nil, discardLogger()), discardLogger())

	conv, err := svc.EnsureConversation(context.Background(), "ann", "bob")
	require.NoError(t, err)
	require.Equal(t, "ann_bob", conv.ID)
	require.Len(t, convRepo.convs, 1)
}

func TestEnsureConversation_Errors(t *testing.T) {
	ann, bob := testUsers()
	svc := newDirectoryService(newFakeConvRepo(), newFakeUserRepo(ann, bob))
	ctx := context.Background()

	_, err := svc.EnsureConversation(ctx, "ann", "ann")
	require.ErrorIs(t, err, domain.ErrInvalidParticipants)

	_, err = svc.EnsureConversation(ctx, "ann", "")
	require.ErrorIs(t, err, domain.ErrInvalidParticipants)

	_, err = svc.EnsureConversation(ctx, "ann", "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveConversation_NoStoreAccess(t *testing.T) {
	svc := newDirectoryService(newFakeConvRepo(), newFakeUserRepo())

	id, err := svc.ResolveConversation("bob", "ann")
	require.NoError(t, err)
	require.Equal(t, "ann_bob", id)
}

func TestListConversations_MostRecentFirst(t *testing.T) {
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	convRepo := newFakeConvRepo(
		&domain.Conversation{ID: "ann_bob", User1ID: "ann", User2ID: "bob", User2Name: "Bob Stone", LastMessageAt: &older},
		&domain.Conversation{ID: "ann_cleo", User1ID: "ann", User2ID: "cleo", User2Name: "Cleo Juric", LastMessageAt: &newer},
		&domain.Conversation{ID: "ann_dina", User1ID: "ann", User2ID: "dina", User2Name: "Dina Kos"},
		&domain.Conversation{ID: "bob_cleo", User1ID: "bob", User2ID: "cleo", User1Name: "Bob Stone"},
	)
	svc := newDirectoryService(convRepo, newFakeUserRepo())

	items, err := svc.ListConversations(context.Background(), "ann")
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "ann_cleo", items[0].ID)
	require.Equal(t, "ann_bob", items[1].ID)
	require.Equal(t, "ann_dina", items[2].ID)
}

func TestMarkRead_ZeroesOnlyReaderCounter(t *testing.T) {
	convRepo := newFakeConvRepo(&domain.Conversation{
		ID: "ann_bob", User1ID: "ann", User2ID: "bob", Unread1: 4, Unread2: 2,
	})
	svc := newDirectoryService(convRepo, newFakeUserRepo())
	ctx := context.Background()

	require.NoError(t, svc.MarkRead(ctx, "ann_bob", "ann"))

	conv, err := convRepo.GetByID(ctx, "ann_bob")
	require.NoError(t, err)
	require.Zero(t, conv.Unread1)
	require.Equal(t, 2, conv.Unread2)

	// Repeating is a no-op.
	require.NoError(t, svc.MarkRead(ctx, "ann_bob", "ann"))
	conv, err = convRepo.GetByID(ctx, "ann_bob")
	require.NoError(t, err)
	require.Zero(t, conv.Unread1)
}

func TestMarkRead_Errors(t *testing.T) {
	convRepo := newFakeConvRepo(&domain.Conversation{ID: "ann_bob", User1ID: "ann", User2ID: "bob"})
	svc := newDirectoryService(convRepo, newFakeUserRepo())
	ctx := context.Background()

	require.ErrorIs(t, svc.MarkRead(ctx, "ghost_conv", "ann"), ErrConversationNotFound)
	require.ErrorIs(t, svc.MarkRead(ctx, "ann_bob", "mallory"), domain.ErrNotParticipant)
}
