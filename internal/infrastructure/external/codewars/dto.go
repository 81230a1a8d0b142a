package codewars

import (
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CompletedChallengeDTO is one item of the completed challenges list.
type CompletedChallengeDTO struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	CompletedAt        time.Time `json:"completedAt"`
	CompletedLanguages []string  `json:"completedLanguages"`
}

// CompletedPageDTO is the response of
// GET /users/{user}/code-challenges/completed?page={page}.
type CompletedPageDTO struct {
	TotalPages int                     `json:"totalPages"`
	TotalItems int                     `json:"totalItems"`
	Data       []CompletedChallengeDTO `json:"data"`
}

// CodeChallengeDTO is the response of GET /code-challenges/{challenge}.
type CodeChallengeDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Slug        string   `json:"slug"`
	Category    string   `json:"category"`
	URL         string   `json:"url"`
	Languages   []string `json:"languages"`
	TotalSolved int      `json:"totalCompleted"`
}

// UserDTO is the part of GET /users/{user} the bot reads.
type UserDTO struct {
	Username string `json:"username"`
	Honor    int    `json:"honor"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Path       string

	// Reason is the "reason" field of the error body, if any.
	Reason string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("codewars api %s: status %d: %s", e.Path, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("codewars api %s: status %d", e.Path, e.StatusCode)
}

// NotFound reports a 404 response.
func (e *APIError) NotFound() bool {
	return e.StatusCode == 404
}

// Temporary reports responses worth retrying.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

type errorBodyDTO struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPING
// ══════════════════════════════════════════════════════════════════════════════

func (d *CompletedPageDTO) toDomain() *kata.CompletedPage {
	page := &kata.CompletedPage{
		Items:      make([]kata.CompletedItem, 0, len(d.Data)),
		TotalPages: d.TotalPages,
		TotalItems: d.TotalItems,
	}
	for _, item := range d.Data {
		page.Items = append(page.Items, kata.CompletedItem{
			ID:          item.ID,
			Name:        item.Name,
			Slug:        item.Slug,
			CompletedAt: item.CompletedAt,
		})
	}
	return page
}

func (d *CodeChallengeDTO) toDomain() (*kata.Kata, error) {
	return kata.NewKata(d.ID, d.Name, d.Slug)
}
