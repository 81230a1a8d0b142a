// Package middleware holds what runs around every routed update: the admin
// guard, per-user rate limiting, panic recovery and command metrics.
package middleware

import (
	"context"
)

type telegramIDKey struct{}

// ContextWithTelegramID records the sender of the update being handled.
func ContextWithTelegramID(ctx context.Context, telegramID int64) context.Context {
	return context.WithValue(ctx, telegramIDKey{}, telegramID)
}

// TelegramIDFromContext returns the sender, or 0 outside an update.
func TelegramIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(telegramIDKey{}).(int64)
	return id
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN GUARD
// Restricts rotation and catalog commands to configured admins.
// An empty admin list lets everyone through.
// ══════════════════════════════════════════════════════════════════════════════

// AuthConfig holds configuration for the admin guard.
type AuthConfig struct {
	// AdminIDs are the Telegram IDs allowed to run admin commands.
	AdminIDs []int64

	// AdminCommands are commands (without "/") that require an admin.
	AdminCommands []string
}

// DefaultAdminCommands are the commands guarded by default.
func DefaultAdminCommands() []string {
	return []string{"shuffle", "reshuffle", "add_kata", "ratings"}
}

// AuthMiddleware decides whether a sender may run a command.
type AuthMiddleware struct {
	admins   map[int64]struct{}
	commands map[string]struct{}
}

// NewAuthMiddleware creates a new admin guard.
func NewAuthMiddleware(config AuthConfig) *AuthMiddleware {
	if config.AdminCommands == nil {
		config.AdminCommands = DefaultAdminCommands()
	}

	m := &AuthMiddleware{
		admins:   make(map[int64]struct{}, len(config.AdminIDs)),
		commands: make(map[string]struct{}, len(config.AdminCommands)),
	}
	for _, id := range config.AdminIDs {
		m.admins[id] = struct{}{}
	}
	for _, c := range config.AdminCommands {
		m.commands[c] = struct{}{}
	}
	return m
}

// IsAdminCommand reports whether command requires an admin.
func (m *AuthMiddleware) IsAdminCommand(command string) bool {
	_, ok := m.commands[command]
	return ok
}

// Allowed reports whether telegramID may run command.
func (m *AuthMiddleware) Allowed(telegramID int64, command string) bool {
	if !m.IsAdminCommand(command) || len(m.admins) == 0 {
		return true
	}
	_, ok := m.admins[telegramID]
	return ok
}
