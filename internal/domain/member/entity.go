// Package member содержит доменную модель участника сообщества.
// Участник - это пользователь Telegram, который может быть ментором или менти
// и может привязать свой аккаунт Codewars.
package member

import (
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROLE
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль участника в программе менторства.
// Роль хранится как флаг is_mentor, отдельного поля нет.
type Role string

const (
	// RoleMentee - участник, которому назначают ментора.
	RoleMentee Role = "mentee"

	// RoleMentor - участник, который ведёт менти.
	RoleMentor Role = "mentor"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// User - участник сообщества.
type User struct {
	// TelegramID - уникальный идентификатор (первичный ключ).
	TelegramID shared.TelegramID

	// TelegramUsername - имя пользователя в Telegram, может быть пустым.
	TelegramUsername string

	// CodewarsUsername - привязанный аккаунт Codewars, пустой до /authorize.
	CodewarsUsername shared.CodewarsHandle

	// IsMentor - флаг ментора.
	IsMentor bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser создаёт нового участника с ролью менти.
func NewUser(id shared.TelegramID, username string, now time.Time) (*User, error) {
	if !id.IsValid() {
		return nil, shared.ErrInvalidTelegramID
	}
	return &User{
		TelegramID:       id,
		TelegramUsername: username,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Role возвращает роль участника.
func (u *User) Role() Role {
	if u.IsMentor {
		return RoleMentor
	}
	return RoleMentee
}

// DisplayName возвращает имя для отображения в отчётах.
// Предпочитается username Telegram, затем Codewars, затем ID.
func (u *User) DisplayName() string {
	switch {
	case u.TelegramUsername != "":
		return u.TelegramUsername
	case !u.CodewarsUsername.IsEmpty():
		return u.CodewarsUsername.String()
	default:
		return u.TelegramID.String()
	}
}

// IsAuthorized возвращает true, если аккаунт Codewars привязан.
func (u *User) IsAuthorized() bool {
	return !u.CodewarsUsername.IsEmpty()
}

// BecomeMentor включает флаг ментора.
// Возвращает false, если участник уже был ментором.
func (u *User) BecomeMentor(now time.Time) bool {
	if u.IsMentor {
		return false
	}
	u.IsMentor = true
	u.UpdatedAt = now
	return true
}

// BindCodewars привязывает (или перепривязывает) аккаунт Codewars.
func (u *User) BindCodewars(handle shared.CodewarsHandle, now time.Time) error {
	if !handle.IsValid() {
		return shared.ErrInvalidHandle
	}
	u.CodewarsUsername = handle
	u.UpdatedAt = now
	return nil
}

// Rename обновляет username Telegram, если он изменился.
func (u *User) Rename(username string, now time.Time) bool {
	if username == "" || username == u.TelegramUsername {
		return false
	}
	u.TelegramUsername = username
	u.UpdatedAt = now
	return true
}
