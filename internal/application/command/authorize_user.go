package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/member"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZE USER COMMAND
// Binds a Codewars username to a Telegram user. Authorization is a two-step
// conversation: Begin marks the user as awaiting a username, the next text
// message completes it through Handle.
// ══════════════════════════════════════════════════════════════════════════════

// ConversationStep names a pending conversation step.
type ConversationStep string

// StepAwaitingHandle means the bot waits for a Codewars username.
const StepAwaitingHandle ConversationStep = "awaiting_codewars_handle"

// ConversationStore keeps pending conversation steps per user.
type ConversationStore interface {
	// SetStep stores the pending step with a TTL.
	SetStep(ctx context.Context, userID shared.TelegramID, step ConversationStep, ttl time.Duration) error

	// Step returns the pending step. ok is false when nothing is pending.
	Step(ctx context.Context, userID shared.TelegramID) (step ConversationStep, ok bool, err error)

	// Clear removes the pending step.
	Clear(ctx context.Context, userID shared.TelegramID) error
}

// AuthorizeUserCommand contains the data to bind a handle.
type AuthorizeUserCommand struct {
	TelegramID shared.TelegramID
	Username   string

	// Handle is the Codewars username as typed by the user.
	Handle string
}

// Validate validates the command.
func (c AuthorizeUserCommand) Validate() error {
	if !c.TelegramID.IsValid() {
		return shared.ErrInvalidTelegramID
	}
	return nil
}

// AuthorizeUserResult contains the result of authorization.
type AuthorizeUserResult struct {
	User   *member.User
	Handle shared.CodewarsHandle
}

// AuthorizeUserHandlerConfig contains configuration for the handler.
type AuthorizeUserHandlerConfig struct {
	// PendingTTL is how long the bot waits for the username.
	PendingTTL time.Duration
}

// AuthorizeUserHandler handles AuthorizeUserCommand.
type AuthorizeUserHandler struct {
	users          member.Repository
	source         kata.Source
	conversations  ConversationStore
	eventPublisher shared.EventPublisher
	pendingTTL     time.Duration
	now            func() time.Time
}

// NewAuthorizeUserHandler creates a new AuthorizeUserHandler.
func NewAuthorizeUserHandler(
	users member.Repository,
	source kata.Source,
	conversations ConversationStore,
	eventPublisher shared.EventPublisher,
	config AuthorizeUserHandlerConfig,
) *AuthorizeUserHandler {
	if config.PendingTTL <= 0 {
		config.PendingTTL = 10 * time.Minute
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	return &AuthorizeUserHandler{
		users:          users,
		source:         source,
		conversations:  conversations,
		eventPublisher: eventPublisher,
		pendingTTL:     config.PendingTTL,
		now:            time.Now,
	}
}

// Begin starts the conversation.
func (h *AuthorizeUserHandler) Begin(ctx context.Context, userID shared.TelegramID) error {
	if err := h.conversations.SetStep(ctx, userID, StepAwaitingHandle, h.pendingTTL); err != nil {
		return fmt.Errorf("authorize_user: begin: %w", err)
	}
	return nil
}

// IsAwaitingHandle reports whether the next text from the user is a username.
func (h *AuthorizeUserHandler) IsAwaitingHandle(ctx context.Context, userID shared.TelegramID) (bool, error) {
	step, ok, err := h.conversations.Step(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("authorize_user: read step: %w", err)
	}
	return ok && step == StepAwaitingHandle, nil
}

// Cancel ends the conversation without binding anything.
func (h *AuthorizeUserHandler) Cancel(ctx context.Context, userID shared.TelegramID) error {
	if err := h.conversations.Clear(ctx, userID); err != nil {
		return fmt.Errorf("authorize_user: cancel: %w", err)
	}
	return nil
}

// Handle validates the handle against the exercise source and binds it.
// Returns shared.ErrDuplicateAuthorization when the handle does not exist there.
// The conversation ends in both cases.
func (h *AuthorizeUserHandler) Handle(ctx context.Context, cmd AuthorizeUserCommand) (*AuthorizeUserResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("authorize_user: validation failed: %w", err)
	}

	handle, err := shared.NewCodewarsHandle(cmd.Handle)
	if err != nil {
		h.endConversation(ctx, cmd.TelegramID)
		return nil, fmt.Errorf("authorize_user: %w", shared.Wrap(shared.ErrDuplicateAuthorization, err))
	}

	exists, err := h.source.UserExists(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("authorize_user: check handle: %w", shared.Wrap(shared.ErrExternalSourceUnavailable, err))
	}
	h.endConversation(ctx, cmd.TelegramID)
	if !exists {
		return nil, fmt.Errorf("authorize_user: %s: %w", handle, shared.ErrDuplicateAuthorization)
	}

	now := h.now().UTC()
	user, _, err := getOrCreateUser(ctx, h.users, cmd.TelegramID, cmd.Username, now)
	if err != nil {
		return nil, fmt.Errorf("authorize_user: %w", err)
	}

	if err := user.BindCodewars(handle, now); err != nil {
		return nil, fmt.Errorf("authorize_user: %w", err)
	}
	user.Rename(cmd.Username, now)

	if err := h.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("authorize_user: update user: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewUserAuthorizedEvent(user.TelegramID, handle, now))
	return &AuthorizeUserResult{User: user, Handle: handle}, nil
}

func (h *AuthorizeUserHandler) endConversation(ctx context.Context, userID shared.TelegramID) {
	// A stale step expires by TTL.
	_ = h.conversations.Clear(ctx, userID)
}
