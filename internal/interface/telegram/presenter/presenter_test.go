package presenter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/mentorship"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

func TestTable_CentersCells(t *testing.T) {
	got := Table([]string{"#", "Mentor", "Mentee"}, [][]string{
		{"1", "neo", "trinity"},
		{"2", "morpheus", "tank"},
	})

	want := "" +
		"+---+----------+---------+\n" +
		"| # |  Mentor  | Mentee  |\n" +
		"+---+----------+---------+\n" +
		"| 1 |   neo    | trinity |\n" +
		"| 2 | morpheus |  tank   |\n" +
		"+---+----------+---------+"
	assert.Equal(t, want, got)
}

func TestPairsTable_EscapesAndWraps(t *testing.T) {
	got := PairsTable(&query.LatestRotationResult{Rows: []query.RotationRowDTO{
		{Number: 1, MentorName: "a<b", MenteeName: "c"},
	}})

	assert.Contains(t, got, "<pre>")
	assert.Contains(t, got, "a&lt;b")
	assert.Contains(t, got, "</pre>")
}

func TestDailyStats(t *testing.T) {
	got := DailyStats(&query.DailyStatsResult{Rows: []query.StatsRowDTO{
		{Position: 1, Handle: "trinity", Solved: 3},
		{Position: 2, Handle: "neo", Solved: 1},
	}})

	assert.Equal(t, "Here is a list of all of our warriors!\n"+
		"-----------------------------------\n"+
		"1 -- trinity -- 3\n"+
		"2 -- neo -- 1", got)
}

func TestRateReminder(t *testing.T) {
	assert.Equal(t,
		"Please, rate @neo's work\n\n<pre>Don't worry.\nIt's all confidential</pre>",
		RateReminder(&member.User{TelegramID: 1, TelegramUsername: "neo"}))
}

func TestRateReminder_MentionsOnlyTelegramUsernames(t *testing.T) {
	byHandle := RateReminder(&member.User{TelegramID: 1, CodewarsUsername: shared.CodewarsHandle("the_one")})
	assert.True(t, strings.HasPrefix(byHandle, "Please, rate the_one's work"), byHandle)

	byID := RateReminder(&member.User{TelegramID: 42})
	assert.True(t, strings.HasPrefix(byID, "Please, rate 42's work"), byID)
	assert.NotContains(t, byID, "@")
}

func TestSolvedSinceLastUpdate(t *testing.T) {
	assert.Equal(t, TextNothingSolved, SolvedSinceLastUpdate(0))
	assert.Equal(t, "Since last update you've solved 2 katas. Congrats!", SolvedSinceLastUpdate(2))
}

func TestRatingKeyboard(t *testing.T) {
	kb := NewKeyboardBuilder("").RatingKeyboard(mentorship.DefaultRatingScale())

	require.Len(t, kb.Rows, 1)
	require.Len(t, kb.Rows[0], 5)
	assert.Equal(t, "1", kb.Rows[0][0].Text)
	assert.Equal(t, "rate_1", kb.Rows[0][0].CallbackData)
	assert.Equal(t, "rate_5", kb.Rows[0][4].CallbackData)
}

func TestMissingKatasKeyboard_Paging(t *testing.T) {
	b := NewKeyboardBuilder("https://www.codewars.com/kata/")
	k := &kata.Kata{ID: "1", Name: "Valid Braces", Slug: "valid-braces"}

	tests := []struct {
		name   string
		page   query.MissingKatasResult
		paging []InlineButton
	}{
		{
			name:   "first of many",
			page:   query.MissingKatasResult{Katas: []*kata.Kata{k}, Total: 25, Offset: 0, Limit: 10},
			paging: []InlineButton{CallbackButton("Далее", "next_10")},
		},
		{
			name: "middle",
			page: query.MissingKatasResult{Katas: []*kata.Kata{k}, Total: 25, Offset: 10, Limit: 10},
			paging: []InlineButton{
				CallbackButton("Далее", "next_20"),
				CallbackButton("Назад", "next_0"),
			},
		},
		{
			name:   "last",
			page:   query.MissingKatasResult{Katas: []*kata.Kata{k}, Total: 25, Offset: 20, Limit: 10},
			paging: []InlineButton{CallbackButton("Назад", "next_10")},
		},
		{
			name: "single page",
			page: query.MissingKatasResult{Katas: []*kata.Kata{k}, Total: 1, Offset: 0, Limit: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb := b.MissingKatasKeyboard(&tt.page)

			require.NotEmpty(t, kb.Rows)
			assert.Equal(t, URLButton("Valid Braces", "https://www.codewars.com/kata/valid-braces/"), kb.Rows[0][0])

			if tt.paging == nil {
				assert.Len(t, kb.Rows, 1)
				return
			}
			require.Len(t, kb.Rows, 2)
			assert.Equal(t, tt.paging, kb.Rows[1])
		})
	}
}

func TestParseCallbackInt(t *testing.T) {
	n, ok := ParseCallbackInt("next_20", CallbackNext)
	assert.True(t, ok)
	assert.Equal(t, 20, n)

	_, ok = ParseCallbackInt("next_x", CallbackNext)
	assert.False(t, ok)

	_, ok = ParseCallbackInt("rate_3", CallbackNext)
	assert.False(t, ok)
}
