package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/kata-mentor-bot/internal/domain/kata"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY STATS QUERY
// Таблица решённых задач каталога по участникам, больше - первыми.
// ══════════════════════════════════════════════════════════════════════════════

// StatsRowDTO - строка статистики.
type StatsRowDTO struct {
	// Position - место, начиная с 1.
	Position int    `json:"position"`
	Handle   string `json:"handle"`
	Solved   int    `json:"solved"`
}

// DailyStatsResult - статистика для отчёта.
type DailyStatsResult struct {
	Rows []StatsRowDTO `json:"rows"`
}

// GetDailyStatsHandler обрабатывает запрос статистики.
type GetDailyStatsHandler struct {
	katas kata.Repository
	cache ReportCache
	ttl   time.Duration
}

// NewGetDailyStatsHandler создаёт обработчик. cache может быть nil.
func NewGetDailyStatsHandler(katas kata.Repository, cache ReportCache) *GetDailyStatsHandler {
	return &GetDailyStatsHandler{katas: katas, cache: cache, ttl: DefaultReportTTL}
}

// Handle возвращает статистику.
func (h *GetDailyStatsHandler) Handle(ctx context.Context) (*DailyStatsResult, error) {
	result, err := cached(ctx, h.cache, CacheKeyDailyStats, h.ttl, func() (*DailyStatsResult, error) {
		stats, err := h.katas.Stats(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]StatsRowDTO, 0, len(stats))
		for i, s := range stats {
			rows = append(rows, StatsRowDTO{
				Position: i + 1,
				Handle:   s.CodewarsUsername.String(),
				Solved:   s.Solved,
			})
		}
		return &DailyStatsResult{Rows: rows}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get_daily_stats: %w", err)
	}
	return result, nil
}
