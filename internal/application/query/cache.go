// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPORT CACHE
// Готовые отчёты кэшируются и сбрасываются обработчиками событий
// при изменении журнала пар или решённых задач.
// ══════════════════════════════════════════════════════════════════════════════

// ReportCache - кэш отчётов. Значения сериализуются реализацией.
type ReportCache interface {
	// Get читает значение в dest. Любая ошибка считается промахом.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set сохраняет значение с TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete удаляет ключи.
	Delete(ctx context.Context, keys ...string) error
}

// Ключи отчётов.
const (
	CacheKeyLatestRotation = "report:latest_rotation"
	CacheKeyDailyStats     = "report:daily_stats"
	CacheKeyMentorLoad     = "report:mentor_load"
)

// DefaultReportTTL - время жизни отчёта в кэше.
const DefaultReportTTL = 10 * time.Minute

// RotationReportKeys - отчёты, зависящие от журнала пар.
func RotationReportKeys() []string {
	return []string{CacheKeyLatestRotation, CacheKeyMentorLoad}
}

// cached читает отчёт из кэша или строит и сохраняет его.
func cached[T any](ctx context.Context, cache ReportCache, key string, ttl time.Duration, build func() (*T, error)) (*T, error) {
	if cache != nil {
		var hit T
		if err := cache.Get(ctx, key, &hit); err == nil {
			return &hit, nil
		}
	}

	value, err := build()
	if err != nil {
		return nil, err
	}

	if cache != nil {
		// Кэш не обязателен: ошибка записи не влияет на ответ.
		_ = cache.Set(ctx, key, value, ttl)
	}
	return value, nil
}
