package query_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
	"github.com/alem-hub/kata-mentor-bot/internal/infrastructure/persistence/memory"
)

var now = time.Date(2024, time.June, 3, 12, 0, 0, 0, time.UTC)

func addUser(t *testing.T, store *memory.Store, id shared.TelegramID, name string, handle shared.CodewarsHandle, mentor bool) {
	t.Helper()
	u, err := member.NewUser(id, name, now)
	require.NoError(t, err)
	u.IsMentor = mentor
	if handle != "" {
		require.NoError(t, u.BindCodewars(handle, now))
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
}

func addKatas(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("k%02d", i)
		k, err := kata.NewKata(id, "Kata "+id, "kata-"+id)
		require.NoError(t, err)
		require.NoError(t, store.Katas().UpsertKata(context.Background(), k))
	}
}

func solve(t *testing.T, store *memory.Store, id shared.TelegramID, katas ...string) {
	t.Helper()
	for _, k := range katas {
		_, err := store.Katas().MarkSolved(context.Background(), id, k)
		require.NoError(t, err)
	}
}

func addPair(t *testing.T, store *memory.Store, mentor, mentee shared.TelegramID, at time.Time) {
	t.Helper()
	p, err := mentorship.NewPair(mentor, mentee, at)
	require.NoError(t, err)
	require.NoError(t, store.Mentorship().CreatePair(context.Background(), p))
}

// ══════════════════════════════════════════════════════════════════════════════
// DAILY STATS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetDailyStats_OrderAndInnerJoin(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addKatas(t, store, 3)
	addUser(t, store, 1, "neo", "neo", false)
	addUser(t, store, 2, "trinity", "trinity", false)
	addUser(t, store, 3, "cypher", "cypher", false)
	addUser(t, store, 4, "tank", "", false)

	solve(t, store, 1, "k00")
	solve(t, store, 2, "k00", "k01", "k02", "unknown")

	result, err := query.NewGetDailyStatsHandler(store.Katas(), nil).Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []query.StatsRowDTO{
		{Position: 1, Handle: "trinity", Solved: 3},
		{Position: 2, Handle: "neo", Solved: 1},
	}, result.Rows)
}

func TestGetDailyStats_CachedUntilInvalidated(t *testing.T) {
	store := memory.NewStore(time.UTC)
	cache := store.ReportCache()
	addKatas(t, store, 2)
	addUser(t, store, 1, "neo", "neo", false)
	solve(t, store, 1, "k00")

	h := query.NewGetDailyStatsHandler(store.Katas(), cache)
	first, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.True(t, cache.Has(query.CacheKeyDailyStats))

	solve(t, store, 1, "k01")
	stale, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Rows, stale.Rows)

	require.NoError(t, cache.Delete(context.Background(), query.CacheKeyDailyStats))
	fresh, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Rows[0].Solved)
}

// ══════════════════════════════════════════════════════════════════════════════
// MISSING KATAS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetMissingKatas_Pagination(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addKatas(t, store, 23)
	addUser(t, store, 1, "neo", "neo", false)
	solve(t, store, 1, "k00", "k01", "k02")

	h := query.NewGetMissingKatasHandler(store.Katas())

	first, err := h.Handle(context.Background(), query.GetMissingKatasQuery{TelegramID: 1})
	require.NoError(t, err)
	assert.Equal(t, 20, first.Total)
	require.Len(t, first.Katas, 10)
	assert.Equal(t, "k03", first.Katas[0].ID)
	assert.True(t, first.HasNext())
	assert.False(t, first.HasPrev())

	last, err := h.Handle(context.Background(), query.GetMissingKatasQuery{TelegramID: 1, Offset: first.NextOffset()})
	require.NoError(t, err)
	assert.Len(t, last.Katas, 10)
	assert.False(t, last.HasNext(), "exactly ten remain after the offset")
	assert.True(t, last.HasPrev())
	assert.Equal(t, 0, last.PrevOffset())
}

func TestGetMissingKatas_NegativeOffset(t *testing.T) {
	store := memory.NewStore(time.UTC)
	_, err := query.NewGetMissingKatasHandler(store.Katas()).
		Handle(context.Background(), query.GetMissingKatasQuery{TelegramID: 1, Offset: -10})
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROTATION REPORTS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetLatestRotation_Empty(t *testing.T) {
	store := memory.NewStore(time.UTC)

	result, err := query.NewGetLatestRotationHandler(store.Users(), store.Mentorship(), nil).Handle(context.Background())
	require.NoError(t, err)
	assert.True(t, result.IsEmpty())
}

func TestGetCurrentMentor(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addUser(t, store, 101, "alice", "", true)
	addUser(t, store, 201, "mia", "", false)
	addUser(t, store, 202, "max", "", false)

	h := query.NewGetCurrentMentorHandler(store.Users(), store.Mentorship())

	_, err := h.Handle(context.Background(), 201)
	assert.ErrorIs(t, err, shared.ErrNoActiveRotation)

	addPair(t, store, 101, 201, now)

	result, err := h.Handle(context.Background(), 201)
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Mentor.DisplayName())
	assert.Equal(t, shared.DayOf(now, time.UTC), result.Day)

	_, err = h.Handle(context.Background(), 202)
	assert.ErrorIs(t, err, shared.ErrMentorNotAssigned)
}

func TestIsMentorAvailable(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addUser(t, store, 101, "alice", "", true)
	addUser(t, store, 201, "mia", "", false)
	addPair(t, store, 101, 201, now)

	h := query.NewIsMentorAvailableHandler(store.Mentorship(), time.UTC)

	available, err := h.Handle(context.Background(), 101, now)
	require.NoError(t, err)
	assert.False(t, available)

	available, err = h.Handle(context.Background(), 101, now.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.True(t, available)
}

func TestGetMentorLoad(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addUser(t, store, 101, "alice", "", true)
	addUser(t, store, 102, "bob", "", true)
	addUser(t, store, 201, "mia", "", false)
	addUser(t, store, 202, "max", "", false)
	addPair(t, store, 102, 201, now)
	addPair(t, store, 102, 202, now)

	result, err := query.NewGetMentorLoadHandler(store.Users(), store.Mentorship(), nil).Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalMentees)
	require.Len(t, result.Mentors, 2)
	assert.Equal(t, query.MentorLoadDTO{MentorID: 102, MentorName: "bob", Mentees: 2}, result.Mentors[0])
	assert.Equal(t, 0, result.Mentors[1].Mentees)
}

func TestGetMentorRatings(t *testing.T) {
	store := memory.NewStore(time.UTC)
	addUser(t, store, 101, "alice", "", true)
	addUser(t, store, 102, "bob", "", true)
	addUser(t, store, 201, "mia", "", false)

	scale := mentorship.DefaultRatingScale()
	for _, fb := range []struct {
		mentor shared.TelegramID
		rate   int
	}{{101, 3}, {101, 4}, {102, 5}} {
		r, err := scale.NewRating(fb.rate)
		require.NoError(t, err)
		f, err := mentorship.NewFeedback(201, fb.mentor, r, now)
		require.NoError(t, err)
		require.NoError(t, store.Mentorship().CreateFeedback(context.Background(), f))
	}

	ratings, err := query.NewGetMentorRatingsHandler(store.Users(), store.Mentorship()).Handle(context.Background())
	require.NoError(t, err)

	require.Len(t, ratings, 2)
	assert.Equal(t, "bob", ratings[0].MentorName)
	assert.Equal(t, 2, ratings[1].Count)
	assert.InDelta(t, 3.5, ratings[1].Average, 0.001)
}
