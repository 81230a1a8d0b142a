// Package timeutil provides timezone helpers. Rotation days and schedules are
// computed in one configured zone, Asia/Almaty by default.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DefaultZone is the zone name used when none is configured.
const DefaultZone = "Asia/Almaty"

// AlmatyTZ is the Almaty timezone (UTC+5, no DST).
// Used when the host has no tzdata for Asia/Almaty.
var AlmatyTZ = time.FixedZone(DefaultZone, 5*60*60)

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatRussianDate is the Russian date format (DD.MM.YYYY).
	FormatRussianDate = "02.01.2006"
)

// LoadLocation resolves a zone name. An empty name means DefaultZone.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultZone
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		if name == DefaultZone {
			return AlmatyTZ, nil
		}
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek returns Monday 00:00:00 of t's week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	day := StartOfDay(t, loc)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// FormatIn formats t in loc with the given layout.
func FormatIn(t time.Time, loc *time.Location, layout string) string {
	return t.In(loc).Format(layout)
}
