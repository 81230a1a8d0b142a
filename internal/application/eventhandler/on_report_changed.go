// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на изменения журнала и запускают побочные эффекты:
// сброс кэша отчётов и учёт метрик.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/application/query"
	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON REPORT CHANGED HANDLER
// Сбрасывает кэшированные отчёты, когда меняются данные, из которых они
// построены. Следующий запрос отчёта построит его заново.
// ═══════════════════════════════════════════════════════════════════════════

// CacheInvalidator удаляет ключи кэша.
type CacheInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// OnReportChangedHandler сбрасывает кэш отчётов.
type OnReportChangedHandler struct {
	cache   CacheInvalidator
	logger  *slog.Logger
	timeout time.Duration
}

// NewOnReportChangedHandler создаёт обработчик.
func NewOnReportChangedHandler(cache CacheInvalidator, logger *slog.Logger) *OnReportChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnReportChangedHandler{
		cache:   cache,
		logger:  logger.With("handler", "on_report_changed"),
		timeout: 3 * time.Second,
	}
}

// Handle реализует shared.EventHandler.
func (h *OnReportChangedHandler) Handle(event shared.Event) error {
	keys := KeysFor(event.EventType())
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("invalidate %v: %w", keys, err)
	}

	h.logger.Debug("reports invalidated",
		"event_type", event.EventType(),
		"keys", keys,
	)
	return nil
}

// KeysFor возвращает ключи отчётов, устаревающих после события.
func KeysFor(eventType shared.EventType) []string {
	switch eventType {
	case shared.EventRotationCreated, shared.EventRotationDeleted, shared.EventMentorEnrolled:
		return query.RotationReportKeys()
	case shared.EventKatasSolved, shared.EventKataAdded:
		return []string{query.CacheKeyDailyStats}
	case shared.EventUserAuthorized, shared.EventUserRegistered:
		// Имена в отчётах берутся из профиля участника.
		return append(query.RotationReportKeys(), query.CacheKeyDailyStats)
	default:
		return nil
	}
}

// Subscribe подписывает обработчик на все события.
func (h *OnReportChangedHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}
