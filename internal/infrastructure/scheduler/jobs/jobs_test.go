package jobs

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/chat"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/external/telegram"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/kata-mentor-bot/internal/interface/telegram/presenter"
)

type notification struct {
	chatID   int64
	text     string
	keyboard *presenter.InlineKeyboard
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	errs map[int64]error
}

func (n *fakeNotifier) SendHTML(_ context.Context, chatID int64, text string, keyboard *presenter.InlineKeyboard) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.errs[chatID]; err != nil {
		return err
	}
	n.sent = append(n.sent, notification{chatID: chatID, text: text, keyboard: keyboard})
	return nil
}

type fakeSource struct {
	pages map[shared.CodewarsHandle][]kata.CompletedItem
}

func (s *fakeSource) FetchCompletedPage(_ context.Context, handle shared.CodewarsHandle, _ int) (*kata.CompletedPage, error) {
	items, ok := s.pages[handle]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return &kata.CompletedPage{Items: items, TotalPages: 1, TotalItems: len(items)}, nil
}

func (s *fakeSource) UserExists(_ context.Context, handle shared.CodewarsHandle) (bool, error) {
	_, ok := s.pages[handle]
	return ok, nil
}

func (s *fakeSource) FetchKata(context.Context, string) (*kata.Kata, error) {
	return nil, shared.ErrKataNotFound
}

type syncRecorder struct {
	succeeded, failed int
	calls             int
}

func (r *syncRecorder) ObserveSync(succeeded, failed int, _ time.Duration) {
	r.succeeded, r.failed = succeeded, failed
	r.calls++
}

var now = time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)

func addUser(t *testing.T, store *memory.Store, id int64, name, handle string, mentor bool) *member.User {
	t.Helper()
	u, err := member.NewUser(shared.TelegramID(id), name, now)
	require.NoError(t, err)
	if handle != "" {
		require.NoError(t, u.BindCodewars(shared.CodewarsHandle(handle), now))
	}
	if mentor {
		u.BecomeMentor(now)
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func addPair(t *testing.T, store *memory.Store, mentorID, menteeID int64) {
	t.Helper()
	p, err := mentorship.NewPair(shared.TelegramID(mentorID), shared.TelegramID(menteeID), now)
	require.NoError(t, err)
	require.NoError(t, store.Mentorship().CreatePair(context.Background(), p))
}

func TestDailyStatsJob_NoChatConfigured(t *testing.T) {
	store := memory.NewStore(time.UTC)
	n := &fakeNotifier{}
	job := NewDailyStatsJob(store.Chats(), query.NewGetDailyStatsHandler(store.Katas(), nil), presenter.NewKeyboardBuilder(""), n)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, n.sent)
}

func TestDailyStatsJob_PostsToChat(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(time.UTC)
	require.NoError(t, store.Chats().Save(ctx, chat.New(-100, chat.TypeSupergroup, now)))

	addUser(t, store, 1, "neo", "neo", false)
	k, err := kata.NewKata("k1", "Multiply", "multiply")
	require.NoError(t, err)
	require.NoError(t, store.Katas().UpsertKata(ctx, k))
	_, err = store.Katas().MarkSolved(ctx, 1, "k1")
	require.NoError(t, err)

	n := &fakeNotifier{}
	job := NewDailyStatsJob(store.Chats(), query.NewGetDailyStatsHandler(store.Katas(), nil), presenter.NewKeyboardBuilder(""), n)
	require.NoError(t, job.Run(ctx))

	require.Len(t, n.sent, 1)
	assert.Equal(t, int64(-100), n.sent[0].chatID)
	assert.Contains(t, n.sent[0].text, "neo")
	assert.Equal(t, NameDailyStats, job.Name())
}

func TestDailyStatsJob_SendFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(time.UTC)
	require.NoError(t, store.Chats().Save(ctx, chat.New(-100, chat.TypeGroup, now)))

	n := &fakeNotifier{errs: map[int64]error{-100: errors.New("chat not found")}}
	job := NewDailyStatsJob(store.Chats(), query.NewGetDailyStatsHandler(store.Katas(), nil), presenter.NewKeyboardBuilder(""), n)

	assert.ErrorContains(t, job.Run(ctx), "daily_stats")
}

func newReminder(store *memory.Store, n Notifier) *RateReminderJob {
	return NewRateReminderJob(
		store.Users(),
		query.NewGetCurrentMentorHandler(store.Users(), store.Mentorship()),
		presenter.NewKeyboardBuilder(""),
		mentorship.DefaultRatingScale(),
		n,
	)
}

func TestRateReminderJob_NoRotation(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addUser(t, store, 2, "alice", "", false)
	n := &fakeNotifier{}

	stats, err := newReminder(store, n).Remind(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, n.sent)
}

func TestRateReminderJob_Remind(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addUser(t, store, 1, "morpheus", "", true)
	addUser(t, store, 2, "alice", "", false)
	addUser(t, store, 3, "bob", "", false)
	addUser(t, store, 4, "carol", "", false)
	addUser(t, store, 5, "dave", "", false)
	addPair(t, store, 1, 2)
	addPair(t, store, 1, 3)
	addPair(t, store, 1, 4)

	n := &fakeNotifier{errs: map[int64]error{
		3: &telegram.APIError{Code: http.StatusForbidden, Description: "Forbidden: bot was blocked by the user"},
		4: errors.New("timeout"),
	}}

	stats, err := newReminder(store, n).Remind(context.Background())
	require.Error(t, err)
	assert.Equal(t, &ReminderStats{Mentees: 4, Sent: 1, Skipped: 2, Failed: 1}, stats)

	require.Len(t, n.sent, 1)
	assert.Equal(t, int64(2), n.sent[0].chatID)
	assert.Contains(t, n.sent[0].text, "@morpheus")
	require.NotNil(t, n.sent[0].keyboard)
}

func TestSyncSolvedJob_RecordsResult(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(time.UTC)
	addUser(t, store, 1, "neo", "neo", false)
	addUser(t, store, 2, "trinity", "trinity", false)
	addUser(t, store, 3, "guest", "", false)

	k, err := kata.NewKata("k1", "Multiply", "multiply")
	require.NoError(t, err)
	require.NoError(t, store.Katas().UpsertKata(ctx, k))

	source := &fakeSource{pages: map[shared.CodewarsHandle][]kata.CompletedItem{
		"neo": {{ID: "k1", Name: "Multiply", Slug: "multiply", CompletedAt: now}},
	}}
	syncer := command.NewSyncSolvedHandler(store.Users(), store.Katas(), source, nil, command.SyncSolvedHandlerConfig{})
	rec := &syncRecorder{}

	require.NoError(t, NewSyncSolvedJob(syncer, rec).Run(ctx))
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, 1, rec.succeeded)
	assert.Equal(t, 1, rec.failed)

	solved, err := store.Katas().CountSolved(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, solved)
}
