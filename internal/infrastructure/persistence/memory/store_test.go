package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/application/command"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

var almaty = time.FixedZone("Asia/Almaty", 5*3600)

func seedUsers(t *testing.T, s *Store, ids ...shared.TelegramID) {
	t.Helper()
	for _, id := range ids {
		u, err := member.NewUser(id, "", time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Users().Create(context.Background(), u))
	}
}

func pairAt(t *testing.T, mentor, mentee shared.TelegramID, at time.Time) *mentorship.Pair {
	t.Helper()
	p, err := mentorship.NewPair(mentor, mentee, at)
	require.NoError(t, err)
	return p
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore(almaty)
	seedUsers(t, s, 1, 2)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Mentorship().CreatePair(ctx, pairAt(t, 1, 2, time.Now())))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, s.Mentorship().AllPairs())
}

func TestWithinTx_RollbackKeepsWritesOutsideTx(t *testing.T) {
	ctx := context.Background()
	s := NewStore(almaty)
	seedUsers(t, s, 1, 2)

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Mentorship().CreatePair(txCtx, pairAt(t, 1, 2, time.Now())))

		// Another command registers a user while the rotation is open.
		done := make(chan error, 1)
		go func() {
			u, err := member.NewUser(3, "", time.Now())
			if err == nil {
				err = s.Users().Create(ctx, u)
			}
			done <- err
		}()
		require.NoError(t, <-done)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Empty(t, s.Mentorship().AllPairs())
	_, err = s.Users().GetByTelegramID(ctx, 3)
	assert.NoError(t, err, "the user created outside the transaction survives its rollback")
	n, err := s.Users().Count(ctx, member.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWithinTx_RollbackRestoresDeletedPairsInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(almaty)
	seedUsers(t, s, 1, 2, 3)

	monday := time.Date(2026, 3, 2, 10, 0, 0, 0, almaty)
	tuesday := monday.AddDate(0, 0, 1)
	require.NoError(t, s.Mentorship().CreatePairs(ctx, []*mentorship.Pair{
		pairAt(t, 1, 2, monday),
		pairAt(t, 1, 3, tuesday),
		pairAt(t, 2, 3, monday),
	}))
	before := s.Mentorship().AllPairs()

	err := s.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.Mentorship().DeletePairsForRotation(ctx, shared.DayOf(monday, almaty))
		require.NoError(t, err)
		require.Equal(t, 2, n)
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, before, s.Mentorship().AllPairs())
}

func TestWithinTx_NestedJoinsAndPanicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore(almaty)
	seedUsers(t, s, 1, 2)

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context) error {
			return s.WithinTx(ctx, func(ctx context.Context) error {
				require.NoError(t, s.Mentorship().CreatePair(ctx, pairAt(t, 1, 2, time.Now())))
				panic("boom")
			})
		})
	})
	assert.Empty(t, s.Mentorship().AllPairs())

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context) error {
		return s.Mentorship().CreatePair(ctx, pairAt(t, 1, 2, time.Now()))
	}))
	assert.Len(t, s.Mentorship().AllPairs(), 1)
}

func TestCreatePairs_UnknownUserWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(almaty)
	seedUsers(t, s, 1, 2)

	err := s.Mentorship().CreatePairs(ctx, []*mentorship.Pair{
		pairAt(t, 1, 2, time.Now()),
		pairAt(t, 1, 99, time.Now()),
	})
	require.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Empty(t, s.Mentorship().AllPairs())
}

func TestRotationDays_UseStoreLocation(t *testing.T) {
	ctx := context.Background()
	s := NewStore(almaty)
	seedUsers(t, s, 1, 2, 3)
	repo := s.Mentorship()

	// 20:00 UTC on March 1 is already March 2 in Almaty.
	late := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreatePair(ctx, pairAt(t, 1, 2, early)))
	require.NoError(t, repo.CreatePair(ctx, pairAt(t, 1, 3, late)))

	latest, ok, err := repo.LatestRotationDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, shared.NewDay(2026, 3, 2), latest)

	deleted, err := repo.DeletePairsForRotation(ctx, latest)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	left, err := repo.PairsForRotation(ctx, shared.NewDay(2026, 3, 1))
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, shared.TelegramID(2), left[0].MenteeID)
}

func TestConversationStore_Expires(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	conv := s.Conversations()

	require.NoError(t, conv.SetStep(ctx, 7, command.StepAwaitingHandle, time.Minute))
	step, ok, err := conv.Step(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, command.StepAwaitingHandle, step)

	now = now.Add(time.Minute)
	_, ok, err = conv.Step(ctx, 7)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportCache_TTLAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	now := time.Now()
	s.now = func() time.Time { return now }
	cache := s.ReportCache()

	require.NoError(t, cache.Set(ctx, "report", map[string]int{"a": 1}, time.Minute))

	var got map[string]int
	require.NoError(t, cache.Get(ctx, "report", &got))
	assert.Equal(t, 1, got["a"])

	require.NoError(t, cache.Delete(ctx, "report"))
	assert.ErrorIs(t, cache.Get(ctx, "report", &got), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "report", 1, time.Second))
	now = now.Add(2 * time.Second)
	assert.False(t, cache.Has("report"))
}
