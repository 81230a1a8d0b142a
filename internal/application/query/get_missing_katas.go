package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MISSING KATAS QUERY
// Постраничный список задач каталога, которые участник ещё не решил.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultMissingPageSize - размер страницы списка.
const DefaultMissingPageSize = 10

// GetMissingKatasQuery содержит параметры запроса.
type GetMissingKatasQuery struct {
	TelegramID shared.TelegramID

	// Offset - смещение страницы.
	Offset int

	// Limit - размер страницы (по умолчанию 10).
	Limit int
}

// Validate проверяет корректность параметров запроса.
func (q *GetMissingKatasQuery) Validate() error {
	if !q.TelegramID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultMissingPageSize
	}
	return nil
}

// MissingKatasResult - страница нерешённых задач.
type MissingKatasResult struct {
	Katas  []*kata.Kata
	Total  int
	Offset int
	Limit  int
}

// HasNext возвращает true, если есть следующая страница.
func (r *MissingKatasResult) HasNext() bool {
	return r.Offset+r.Limit < r.Total
}

// HasPrev возвращает true, если есть предыдущая страница.
func (r *MissingKatasResult) HasPrev() bool {
	return r.Offset > 0
}

// NextOffset возвращает смещение следующей страницы.
func (r *MissingKatasResult) NextOffset() int {
	return r.Offset + r.Limit
}

// PrevOffset возвращает смещение предыдущей страницы.
func (r *MissingKatasResult) PrevOffset() int {
	if r.Offset-r.Limit < 0 {
		return 0
	}
	return r.Offset - r.Limit
}

// GetMissingKatasHandler обрабатывает запрос.
type GetMissingKatasHandler struct {
	katas kata.Repository
}

// NewGetMissingKatasHandler создаёт обработчик.
func NewGetMissingKatasHandler(katas kata.Repository) *GetMissingKatasHandler {
	return &GetMissingKatasHandler{katas: katas}
}

// Handle возвращает страницу нерешённых задач.
func (h *GetMissingKatasHandler) Handle(ctx context.Context, q GetMissingKatasQuery) (*MissingKatasResult, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_missing_katas: %w", err)
	}

	katas, total, err := h.katas.Missing(ctx, q.TelegramID, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_missing_katas: %w", err)
	}

	return &MissingKatasResult{
		Katas:  katas,
		Total:  total,
		Offset: q.Offset,
		Limit:  q.Limit,
	}, nil
}
