package eventhandler

import (
	"log/slog"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON METRICS HANDLER
// Переводит доменные события в бизнес-метрики.
// ═══════════════════════════════════════════════════════════════════════════

// MetricsRecorder принимает бизнес-метрики.
type MetricsRecorder interface {
	RotationCreated(pairs, fallbacks, skipped int)
	RotationDeleted(pairs int)
	FeedbackRecorded(rating int)
	KatasSolved(count int)
	DomainEvent(eventType string)
}

// OnMetricsHandler записывает метрики по событиям.
type OnMetricsHandler struct {
	recorder MetricsRecorder
	logger   *slog.Logger
}

// NewOnMetricsHandler создаёт обработчик.
func NewOnMetricsHandler(recorder MetricsRecorder, logger *slog.Logger) *OnMetricsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnMetricsHandler{recorder: recorder, logger: logger.With("handler", "on_metrics")}
}

// Handle реализует shared.EventHandler.
func (h *OnMetricsHandler) Handle(event shared.Event) error {
	h.recorder.DomainEvent(string(event.EventType()))

	switch e := event.(type) {
	case shared.RotationCreatedEvent:
		h.recorder.RotationCreated(e.Pairs, e.Fallbacks, e.Skipped)
	case shared.RotationDeletedEvent:
		h.recorder.RotationDeleted(e.Deleted)
	case shared.FeedbackRecordedEvent:
		h.recorder.FeedbackRecorded(e.Rating)
	case shared.KatasSolvedEvent:
		h.recorder.KatasSolved(e.Count)
	}
	return nil
}

// Subscribe подписывает обработчик на все события.
func (h *OnMetricsHandler) Subscribe(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(h.Handle)
}
