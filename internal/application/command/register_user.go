package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// Creates a user on first contact and keeps the Telegram username fresh.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand contains the data to register a user.
type RegisterUserCommand struct {
	TelegramID shared.TelegramID
	Username   string
}

// Validate validates the command.
func (c RegisterUserCommand) Validate() error {
	if !c.TelegramID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	return nil
}

// RegisterUserResult contains the result of registration.
type RegisterUserResult struct {
	User    *member.User
	Created bool
}

// RegisterUserHandler handles RegisterUserCommand.
type RegisterUserHandler struct {
	users          member.Repository
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewRegisterUserHandler creates a new RegisterUserHandler.
func NewRegisterUserHandler(users member.Repository, eventPublisher shared.EventPublisher) *RegisterUserHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	return &RegisterUserHandler{users: users, eventPublisher: eventPublisher, now: time.Now}
}

// Handle executes the command.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (*RegisterUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("register_user: validation failed: %w", err)
	}

	now := h.now().UTC()
	user, created, err := getOrCreateUser(ctx, h.users, cmd.TelegramID, cmd.Username, now)
	if err != nil {
		return nil, fmt.Errorf("register_user: %w", err)
	}

	if !created && user.Rename(cmd.Username, now) {
		if err := h.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("register_user: update username: %w", err)
		}
	}

	if created {
		_ = h.eventPublisher.Publish(shared.NewUserRegisteredEvent(user.TelegramID, now))
	}

	return &RegisterUserResult{User: user, Created: created}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAKE MENTOR COMMAND
// Self-service "become a mentor" action.
// ══════════════════════════════════════════════════════════════════════════════

// MakeMentorCommand contains the data to enroll a mentor.
type MakeMentorCommand struct {
	TelegramID shared.TelegramID
	Username   string
}

// Validate validates the command.
func (c MakeMentorCommand) Validate() error {
	if !c.TelegramID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	return nil
}

// MakeMentorResult contains the result of enrollment.
type MakeMentorResult struct {
	User *member.User

	// AlreadyMentor is true when the flag was already set.
	AlreadyMentor bool
}

// MakeMentorHandler handles MakeMentorCommand.
type MakeMentorHandler struct {
	users          member.Repository
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewMakeMentorHandler creates a new MakeMentorHandler.
func NewMakeMentorHandler(users member.Repository, eventPublisher shared.EventPublisher) *MakeMentorHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	return &MakeMentorHandler{users: users, eventPublisher: eventPublisher, now: time.Now}
}

// Handle executes the command.
func (h *MakeMentorHandler) Handle(ctx context.Context, cmd MakeMentorCommand) (*MakeMentorResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("make_mentor: validation failed: %w", err)
	}

	now := h.now().UTC()
	user, _, err := getOrCreateUser(ctx, h.users, cmd.TelegramID, cmd.Username, now)
	if err != nil {
		return nil, fmt.Errorf("make_mentor: %w", err)
	}

	if !user.BecomeMentor(now) {
		return &MakeMentorResult{User: user, AlreadyMentor: true}, nil
	}
	user.Rename(cmd.Username, now)

	if err := h.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("make_mentor: update user: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewMentorEnrolledEvent(user.TelegramID, now))
	return &MakeMentorResult{User: user}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// getOrCreateUser returns the stored user or creates a mentee.
// A concurrent create of the same user is resolved by re-reading it.
func getOrCreateUser(ctx context.Context, users member.Repository, id shared.TelegramID, username string, now time.Time) (*member.User, bool, error) {
	user, err := users.GetByTelegramID(ctx, id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, shared.ErrUserNotFound) {
		return nil, false, fmt.Errorf("get user: %w", err)
	}

	user, err = member.NewUser(id, username, now)
	if err != nil {
		return nil, false, err
	}

	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrUserExists) {
			user, err = users.GetByTelegramID(ctx, id)
			if err != nil {
				return nil, false, fmt.Errorf("get user: %w", err)
			}
			return user, false, nil
		}
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	return user, true, nil
}
