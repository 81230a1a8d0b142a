package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADD KATA COMMAND
// Adds a kata to the community catalog. Only catalog katas count towards
// solved statistics.
// ══════════════════════════════════════════════════════════════════════════════

// AddKataCommand contains the kata reference.
type AddKataCommand struct {
	// IDOrSlug is the exercise source id or slug.
	IDOrSlug string
}

// Validate validates the command.
func (c AddKataCommand) Validate() error {
	if strings.TrimSpace(c.IDOrSlug) == "" {
		return shared.ErrInvalidKata
	}
	return nil
}

// AddKataHandler handles AddKataCommand.
type AddKataHandler struct {
	katas          kata.Repository
	source         kata.Source
	eventPublisher shared.EventPublisher
	now            func() time.Time
}

// NewAddKataHandler creates a new AddKataHandler.
func NewAddKataHandler(katas kata.Repository, source kata.Source, eventPublisher shared.EventPublisher) *AddKataHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	return &AddKataHandler{katas: katas, source: source, eventPublisher: eventPublisher, now: time.Now}
}

// Handle fetches the kata from the source and upserts it into the catalog.
func (h *AddKataHandler) Handle(ctx context.Context, cmd AddKataCommand) (*kata.Kata, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("add_kata: validation failed: %w", err)
	}

	k, err := h.source.FetchKata(ctx, strings.TrimSpace(cmd.IDOrSlug))
	if err != nil {
		if errors.Is(err, shared.ErrKataNotFound) {
			return nil, fmt.Errorf("add_kata: %w", err)
		}
		return nil, fmt.Errorf("add_kata: %w", wrapSourceError(err))
	}

	k, err = kata.NewKata(k.ID, k.Name, k.Slug)
	if err != nil {
		return nil, fmt.Errorf("add_kata: %w", err)
	}

	if err := h.katas.UpsertKata(ctx, k); err != nil {
		return nil, fmt.Errorf("add_kata: save: %w", err)
	}

	_ = h.eventPublisher.Publish(shared.NewKataAddedEvent(k.ID, k.Name, h.now().UTC()))
	return k, nil
}
