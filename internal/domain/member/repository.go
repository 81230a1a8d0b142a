package member

import (
	"context"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Контракт хранилища участников. Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Filter ограничивает выборку участников.
// Нулевое значение выбирает всех.
type Filter struct {
	// Role выбирает только менторов или только менти. Пустая роль - все.
	Role Role

	// AuthorizedOnly выбирает только участников с привязанным Codewars.
	AuthorizedOnly bool
}

// Mentors - фильтр менторов.
func Mentors() Filter { return Filter{Role: RoleMentor} }

// Mentees - фильтр менти.
func Mentees() Filter { return Filter{Role: RoleMentee} }

// Matches проверяет, подходит ли участник под фильтр.
func (f Filter) Matches(u *User) bool {
	if f.Role != "" && u.Role() != f.Role {
		return false
	}
	if f.AuthorizedOnly && !u.IsAuthorized() {
		return false
	}
	return true
}

// Repository определяет операции над участниками.
type Repository interface {
	// Create создаёт участника.
	// Возвращает shared.ErrUserExists, если участник уже есть.
	Create(ctx context.Context, user *User) error

	// Update сохраняет изменения участника.
	// Возвращает shared.ErrUserNotFound, если участник не найден.
	Update(ctx context.Context, user *User) error

	// GetByTelegramID возвращает участника по Telegram ID.
	// Возвращает shared.ErrUserNotFound, если участник не найден.
	GetByTelegramID(ctx context.Context, id shared.TelegramID) (*User, error)

	// List возвращает участников в порядке регистрации.
	List(ctx context.Context, filter Filter) ([]*User, error)

	// Count возвращает количество участников под фильтром.
	Count(ctx context.Context, filter Filter) (int, error)
}
