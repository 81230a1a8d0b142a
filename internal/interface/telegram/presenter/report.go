package presenter

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPLY TEXTS
// ══════════════════════════════════════════════════════════════════════════════

const (
	TextWelcome           = "Hi!\nI'm the CodewarsBot!"
	TextAskHandle         = "Don't be shy. Type your Codewars username. I'll wait c:"
	TextCancelled         = "Cancelled."
	TextPrivateOnly       = "To use this option write it to me in private 👀"
	TextMissingKatas      = "List of katas yet to be completed"
	TextAllKatasSolved    = "So far you've completed every kata. Well done 😎"
	TextNothingSolved     = "No katas were solved since last update. What are you waiting for?"
	TextChatSet           = "Chat was set. You good to go!"
	TextCommands          = "Here is commands"
	TextFeedbackThanks    = "Thanks for your feedback 💚"
	TextStatsHeader       = "Here is a list of all of our warriors!"
	TextStatsSeparator    = "-----------------------------------"
	TextNoRotation        = "No pairs yet. Run /shuffle first."
	TextNoMentors         = "There are no mentors yet. Send /mentor to become one."
	TextNoMentor          = "You don't have a mentor in the latest rotation."
	TextInvalidRating     = "This rating is out of range."
	TextNotAuthorized     = "Bind your Codewars account first with /authorize."
	TextSourceUnavailable = "Codewars is not responding right now. Try again later."
	TextChatNotConfigured = "The group chat is not set. Send /set_chat in the group."
	TextKataNotFound      = "Kata not found on Codewars."
	TextAddKataUsage      = "Usage: /add_kata <kata id or slug>"
	TextAdminOnly         = "This command is for admins only."
	TextMentorEnrolled    = "You are a mentor now 💪"
	TextAlreadyMentor     = "You are already a mentor."
	TextUnknownCommand    = "I don't know this command. Send /help."
	TextInternalError     = "Something went wrong. Try again later."
	TextInvalidInput      = "That doesn't look right. Check the command and try again."
	TextRateLimited       = "Too many requests. Wait %d seconds and try again."
	TextRateLimitedAnswer = "Too fast! Wait a little."
	TextNoRatings         = "No mentor has been rated yet."
)

// Welcome returns the reply to a successful /authorize.
func Welcome(handle string) string {
	return "Welcome on board, <b>" + html.EscapeString(handle) + "</b>"
}

// HandleNotFound returns the reply to an unknown Codewars username.
func HandleNotFound(handle string) string {
	return "The user with username <b>" + html.EscapeString(handle) + "</b> was not found"
}

// CompletedTotal returns the reply to a user_ callback.
func CompletedTotal(total int) string {
	return "Total completed - <b>" + strconv.Itoa(total) + "</b>"
}

// SolvedSinceLastUpdate returns the reply to /update_solutions.
func SolvedSinceLastUpdate(n int) string {
	if n <= 0 {
		return TextNothingSolved
	}
	return fmt.Sprintf("Since last update you've solved %d katas. Congrats!", n)
}

// RateReminder returns the weekly reminder sent to a mentee. Only a
// Telegram username is written as an @mention.
func RateReminder(mentor *member.User) string {
	name := html.EscapeString(mentor.DisplayName())
	if mentor.TelegramUsername != "" {
		name = "@" + name
	}
	return fmt.Sprintf("Please, rate %s's work", name) +
		"\n\n<pre>Don't worry.\nIt's all confidential</pre>"
}

// KataAdded returns the reply to /add_kata.
func KataAdded(name, url string) string {
	return fmt.Sprintf("Kata <a href=\"%s\">%s</a> was added to the list.", html.EscapeString(url), html.EscapeString(name))
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORTS
// ══════════════════════════════════════════════════════════════════════════════

// PairsTable renders the latest rotation as a #/Mentor/Mentee table inside <pre>.
func PairsTable(r *query.LatestRotationResult) string {
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		rows = append(rows, []string{strconv.Itoa(row.Number), row.MentorName, row.MenteeName})
	}
	return "<pre>" + html.EscapeString(Table([]string{"#", "Mentor", "Mentee"}, rows)) + "</pre>"
}

// MentorLoad renders the mentee count of every mentor in the latest rotation.
func MentorLoad(r *query.MentorLoadResult) string {
	rows := make([][]string, 0, len(r.Mentors))
	for _, m := range r.Mentors {
		rows = append(rows, []string{m.MentorName, strconv.Itoa(m.Mentees)})
	}
	header := fmt.Sprintf("Rotation of %s, %d mentees\n", r.Day.String(), r.TotalMentees)
	return html.EscapeString(header) + "<pre>" + html.EscapeString(Table([]string{"Mentor", "Mentees"}, rows)) + "</pre>"
}

// MentorRatings renders the average rating of every mentor, best first.
func MentorRatings(ratings []query.MentorRatingDTO) string {
	rows := make([][]string, 0, len(ratings))
	for _, r := range ratings {
		rows = append(rows, []string{r.MentorName, strconv.FormatFloat(r.Average, 'f', 2, 64), strconv.Itoa(r.Count)})
	}
	return "<pre>" + html.EscapeString(Table([]string{"Mentor", "Rating", "Votes"}, rows)) + "</pre>"
}

// DailyStats renders the solved-kata ranking.
func DailyStats(r *query.DailyStatsResult) string {
	lines := make([]string, 0, len(r.Rows)+2)
	lines = append(lines, TextStatsHeader, TextStatsSeparator)
	for _, row := range r.Rows {
		lines = append(lines, fmt.Sprintf("%d -- %s -- %d", row.Position, html.EscapeString(row.Handle), row.Solved))
	}
	return strings.Join(lines, "\n")
}

// ══════════════════════════════════════════════════════════════════════════════
// TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table renders rows as a bordered table with centered cells:
//
//	+---+--------+---------+
//	| # | Mentor | Mentee  |
//	+---+--------+---------+
//	| 1 |  neo   | trinity |
//	+---+--------+---------+
func Table(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	border := tableBorder(widths)

	b.WriteString(border)
	writeTableRow(&b, widths, headers)
	b.WriteString(border)
	for _, row := range rows {
		writeTableRow(&b, widths, row)
	}
	if len(rows) > 0 {
		b.WriteString(border)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func tableBorder(widths []int) string {
	var b strings.Builder
	b.WriteByte('+')
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2))
		b.WriteByte('+')
	}
	b.WriteByte('\n')
	return b.String()
}

func writeTableRow(b *strings.Builder, widths []int, cells []string) {
	b.WriteByte('|')
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		pad := w - utf8.RuneCountInString(cell)
		left := pad / 2
		b.WriteByte(' ')
		b.WriteString(strings.Repeat(" ", left))
		b.WriteString(cell)
		b.WriteString(strings.Repeat(" ", pad-left))
		b.WriteString(" |")
	}
	b.WriteByte('\n')
}
