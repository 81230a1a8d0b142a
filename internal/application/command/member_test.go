package command_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/memory"
)

// fakeSource is an in-memory exercise source.
type fakeSource struct {
	mu       sync.Mutex
	users    map[shared.CodewarsHandle][][]kata.CompletedItem
	katas    map[string]*kata.Kata
	failPage int
	calls    int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		users:    make(map[shared.CodewarsHandle][][]kata.CompletedItem),
		katas:    make(map[string]*kata.Kata),
		failPage: -1,
	}
}

func (s *fakeSource) FetchCompletedPage(_ context.Context, handle shared.CodewarsHandle, page int) (*kata.CompletedPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if page == s.failPage {
		return nil, errors.New("502 bad gateway")
	}
	pages, ok := s.users[handle]
	if !ok {
		return nil, errors.New("404 not found")
	}
	total := 0
	for _, p := range pages {
		total += len(p)
	}
	if page >= len(pages) {
		return &kata.CompletedPage{TotalPages: len(pages), TotalItems: total}, nil
	}
	return &kata.CompletedPage{Items: pages[page], TotalPages: len(pages), TotalItems: total}, nil
}

func (s *fakeSource) UserExists(_ context.Context, handle shared.CodewarsHandle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[handle]
	return ok, nil
}

func (s *fakeSource) FetchKata(_ context.Context, id string) (*kata.Kata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.katas[id]
	if !ok {
		return nil, shared.ErrKataNotFound
	}
	return k, nil
}

func items(ids ...string) []kata.CompletedItem {
	out := make([]kata.CompletedItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, kata.CompletedItem{ID: id, Name: id})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// FEEDBACK
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordFeedback_RatingBounds(t *testing.T) {
	f := newFixture(t, 1)
	f.addUser(t, 101, "alice", true)
	f.addUser(t, 201, "mia", false)
	f.addPair(t, 101, 201, f.clock.Now())

	h := command.NewRecordFeedbackHandler(f.store.Users(), f.store.Mentorship(), mentorship.DefaultRatingScale(), f.events)

	for _, rate := range []int{0, 6} {
		_, err := h.Handle(context.Background(), command.RecordFeedbackCommand{MenteeID: 201, MentorID: 101, Rate: rate})
		assert.ErrorIs(t, err, shared.ErrInvalidRating, "rate %d", rate)
	}
	for _, rate := range []int{1, 5} {
		_, err := h.Handle(context.Background(), command.RecordFeedbackCommand{MenteeID: 201, MentorID: 101, Rate: rate})
		assert.NoError(t, err, "rate %d", rate)
	}

	assert.Len(t, f.store.Mentorship().Feedbacks(), 2)
}

func TestRecordFeedback_ResolvesCurrentMentor(t *testing.T) {
	f := newFixture(t, 1)
	f.addUser(t, 101, "alice", true)
	f.addUser(t, 102, "bob", true)
	f.addUser(t, 201, "mia", false)
	f.addPair(t, 101, 201, f.clock.Now().AddDate(0, 0, -7))
	f.addPair(t, 102, 201, f.clock.Now())

	h := command.NewRecordFeedbackHandler(f.store.Users(), f.store.Mentorship(), mentorship.DefaultRatingScale(), f.events)
	result, err := h.Handle(context.Background(), command.RecordFeedbackCommand{MenteeID: 201, Rate: 4})
	require.NoError(t, err)

	assert.Equal(t, shared.TelegramID(102), result.Mentor.TelegramID)
	assert.Equal(t, 4, result.Feedback.Rating.Int())
	assert.Contains(t, f.events.Types(), shared.EventFeedbackRecorded)
}

func TestRecordFeedback_NoRotation(t *testing.T) {
	f := newFixture(t, 1)
	f.addUser(t, 201, "mia", false)

	h := command.NewRecordFeedbackHandler(f.store.Users(), f.store.Mentorship(), mentorship.DefaultRatingScale(), nil)
	_, err := h.Handle(context.Background(), command.RecordFeedbackCommand{MenteeID: 201, Rate: 3})

	assert.ErrorIs(t, err, shared.ErrNoActiveRotation)
}

func TestRecordFeedback_UnknownMentee(t *testing.T) {
	f := newFixture(t, 1)

	h := command.NewRecordFeedbackHandler(f.store.Users(), f.store.Mentorship(), mentorship.DefaultRatingScale(), nil)
	_, err := h.Handle(context.Background(), command.RecordFeedbackCommand{MenteeID: 999, MentorID: 101, Rate: 3})

	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMBERS
// ══════════════════════════════════════════════════════════════════════════════

func TestRegisterUser_GetOrCreate(t *testing.T) {
	store := memory.NewStore(time.UTC)
	events := &recorder{}
	h := command.NewRegisterUserHandler(store.Users(), events)

	first, err := h.Handle(context.Background(), command.RegisterUserCommand{TelegramID: 42, Username: "neo"})
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := h.Handle(context.Background(), command.RegisterUserCommand{TelegramID: 42, Username: "the_one"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "the_one", second.User.TelegramUsername)

	assert.Equal(t, []shared.EventType{shared.EventUserRegistered}, events.Types())
}

func TestMakeMentor_SetsFlagOnce(t *testing.T) {
	store := memory.NewStore(time.UTC)
	h := command.NewMakeMentorHandler(store.Users(), nil)

	result, err := h.Handle(context.Background(), command.MakeMentorCommand{TelegramID: 7, Username: "trinity"})
	require.NoError(t, err)
	assert.True(t, result.User.IsMentor)
	assert.False(t, result.AlreadyMentor)

	again, err := h.Handle(context.Background(), command.MakeMentorCommand{TelegramID: 7})
	require.NoError(t, err)
	assert.True(t, again.AlreadyMentor)

	stored, err := store.Users().GetByTelegramID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, stored.IsMentor)
}

func TestAuthorizeUser_Conversation(t *testing.T) {
	store := memory.NewStore(time.UTC)
	source := newFakeSource()
	source.users["morpheus"] = nil

	h := command.NewAuthorizeUserHandler(store.Users(), source, store.Conversations(), nil, command.AuthorizeUserHandlerConfig{})
	ctx := context.Background()

	require.NoError(t, h.Begin(ctx, 5))
	awaiting, err := h.IsAwaitingHandle(ctx, 5)
	require.NoError(t, err)
	assert.True(t, awaiting)

	result, err := h.Handle(ctx, command.AuthorizeUserCommand{TelegramID: 5, Username: "morph", Handle: " @morpheus "})
	require.NoError(t, err)
	assert.Equal(t, shared.CodewarsHandle("morpheus"), result.Handle)

	awaiting, err = h.IsAwaitingHandle(ctx, 5)
	require.NoError(t, err)
	assert.False(t, awaiting)

	stored, err := store.Users().GetByTelegramID(ctx, 5)
	require.NoError(t, err)
	assert.True(t, stored.IsAuthorized())
}

func TestAuthorizeUser_UnknownHandle(t *testing.T) {
	store := memory.NewStore(time.UTC)
	h := command.NewAuthorizeUserHandler(store.Users(), newFakeSource(), store.Conversations(), nil, command.AuthorizeUserHandlerConfig{})
	ctx := context.Background()

	require.NoError(t, h.Begin(ctx, 5))
	_, err := h.Handle(ctx, command.AuthorizeUserCommand{TelegramID: 5, Handle: "ghost"})
	assert.ErrorIs(t, err, shared.ErrDuplicateAuthorization)

	_, err = h.Handle(ctx, command.AuthorizeUserCommand{TelegramID: 5, Handle: "not a handle!"})
	assert.ErrorIs(t, err, shared.ErrDuplicateAuthorization)

	_, err = store.Users().GetByTelegramID(ctx, 5)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestAuthorizeUser_Cancel(t *testing.T) {
	store := memory.NewStore(time.UTC)
	h := command.NewAuthorizeUserHandler(store.Users(), newFakeSource(), store.Conversations(), nil, command.AuthorizeUserHandlerConfig{})
	ctx := context.Background()

	require.NoError(t, h.Begin(ctx, 5))
	require.NoError(t, h.Cancel(ctx, 5))

	awaiting, err := h.IsAwaitingHandle(ctx, 5)
	require.NoError(t, err)
	assert.False(t, awaiting)
}

// ══════════════════════════════════════════════════════════════════════════════
// SOLVED SYNC
// ══════════════════════════════════════════════════════════════════════════════

func seedSync(t *testing.T) (*memory.Store, *fakeSource) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(time.UTC)

	for _, id := range []string{"k1", "k2", "k3"} {
		k, err := kata.NewKata(id, "Kata "+id, id)
		require.NoError(t, err)
		require.NoError(t, store.Katas().UpsertKata(ctx, k))
	}

	source := newFakeSource()
	source.users["neo"] = [][]kata.CompletedItem{items("k1", "x9"), items("k2")}

	authorize := command.NewAuthorizeUserHandler(store.Users(), source, store.Conversations(), nil, command.AuthorizeUserHandlerConfig{})
	_, err := authorize.Handle(ctx, command.AuthorizeUserCommand{TelegramID: 1, Handle: "neo"})
	require.NoError(t, err)

	return store, source
}

func TestSyncSolved_Idempotent(t *testing.T) {
	store, source := seedSync(t)
	h := command.NewSyncSolvedHandler(store.Users(), store.Katas(), source, nil, command.SyncSolvedHandlerConfig{})
	ctx := context.Background()

	first, err := h.Handle(ctx, command.SyncSolvedCommand{TelegramID: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, first.NewlySolved, "x9 is not in the catalog")
	assert.Equal(t, 2, first.PagesFetched)

	second, err := h.Handle(ctx, command.SyncSolvedCommand{TelegramID: 1})
	require.NoError(t, err)
	assert.Zero(t, second.NewlySolved)

	count, err := store.Katas().CountSolved(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSyncSolved_SourceFailureKeepsProgress(t *testing.T) {
	store, source := seedSync(t)
	source.failPage = 1
	h := command.NewSyncSolvedHandler(store.Users(), store.Katas(), source, nil, command.SyncSolvedHandlerConfig{})
	ctx := context.Background()

	result, err := h.Handle(ctx, command.SyncSolvedCommand{TelegramID: 1})
	assert.ErrorIs(t, err, shared.ErrExternalSourceUnavailable)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.NewlySolved)

	source.failPage = -1
	retry, err := h.Handle(ctx, command.SyncSolvedCommand{TelegramID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, retry.NewlySolved)
}

func TestSyncSolved_RequiresAuthorization(t *testing.T) {
	store := memory.NewStore(time.UTC)
	_, err := command.NewRegisterUserHandler(store.Users(), nil).
		Handle(context.Background(), command.RegisterUserCommand{TelegramID: 3})
	require.NoError(t, err)

	h := command.NewSyncSolvedHandler(store.Users(), store.Katas(), newFakeSource(), nil, command.SyncSolvedHandlerConfig{})
	_, err = h.Handle(context.Background(), command.SyncSolvedCommand{TelegramID: 3})

	assert.ErrorIs(t, err, shared.ErrUserNotAuthorized)
}

func TestSyncAll_OneFailureDoesNotStopOthers(t *testing.T) {
	store, source := seedSync(t)
	ctx := context.Background()

	source.users["trinity"] = [][]kata.CompletedItem{items("k3")}
	authorize := command.NewAuthorizeUserHandler(store.Users(), source, store.Conversations(), nil, command.AuthorizeUserHandlerConfig{})
	_, err := authorize.Handle(ctx, command.AuthorizeUserCommand{TelegramID: 2, Handle: "trinity"})
	require.NoError(t, err)
	_, err = authorize.Handle(ctx, command.AuthorizeUserCommand{TelegramID: 3, Handle: "trinity"})
	require.NoError(t, err)

	// neo disappears from the source after authorization.
	delete(source.users, "neo")

	h := command.NewSyncSolvedHandler(store.Users(), store.Katas(), source, nil, command.SyncSolvedHandlerConfig{Concurrency: 2})
	result, err := h.SyncAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Users)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.NewlySolved)
	assert.ErrorIs(t, result.Errors[1], shared.ErrExternalSourceUnavailable)
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG AND CHAT
// ══════════════════════════════════════════════════════════════════════════════

func TestAddKata_UpsertsCatalog(t *testing.T) {
	store := memory.NewStore(time.UTC)
	source := newFakeSource()
	source.katas["multiply"] = &kata.Kata{ID: "50654ddff44f800200000004", Name: "Multiply", Slug: "multiply"}

	h := command.NewAddKataHandler(store.Katas(), source, nil)
	k, err := h.Handle(context.Background(), command.AddKataCommand{IDOrSlug: "multiply"})
	require.NoError(t, err)

	stored, err := store.Katas().GetKata(context.Background(), k.ID)
	require.NoError(t, err)
	assert.Equal(t, "Multiply", stored.Name)

	_, err = h.Handle(context.Background(), command.AddKataCommand{IDOrSlug: "nope"})
	assert.ErrorIs(t, err, shared.ErrKataNotFound)
}

func TestSetChat_ReplacesPrevious(t *testing.T) {
	store := memory.NewStore(time.UTC)
	h := command.NewSetChatHandler(store.Chats(), nil)
	ctx := context.Background()

	_, err := store.Chats().Get(ctx)
	assert.ErrorIs(t, err, shared.ErrChatNotConfigured)

	_, err = h.Handle(ctx, command.SetChatCommand{ChatID: -100, Type: chat.TypeGroup})
	require.NoError(t, err)
	_, err = h.Handle(ctx, command.SetChatCommand{ChatID: -200, Type: chat.TypeSupergroup})
	require.NoError(t, err)

	c, err := store.Chats().Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(-200), c.ID)
	assert.Equal(t, "en", c.Language)
}
