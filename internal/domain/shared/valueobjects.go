// Package shared contains common domain types, errors and value objects
// that are used across all domain packages.
package shared

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// TelegramID represents a unique Telegram user identifier.
// Members are identified by it across the whole system.
type TelegramID int64

// IsValid checks if the Telegram ID is valid (positive number).
func (t TelegramID) IsValid() bool {
	return t > 0
}

// Int64 returns the underlying int64 value.
func (t TelegramID) Int64() int64 {
	return int64(t)
}

// String returns the string representation.
func (t TelegramID) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// NewTelegramID creates a new TelegramID with validation.
func NewTelegramID(id int64) (TelegramID, error) {
	if id <= 0 {
		return 0, ErrInvalidTelegramID
	}
	return TelegramID(id), nil
}

// CodewarsHandle is a username on the external kata-tracking service.
type CodewarsHandle string

var codewarsHandleRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,50}$`)

// IsValid checks the handle against the characters the service accepts.
func (h CodewarsHandle) IsValid() bool {
	return codewarsHandleRegex.MatchString(string(h))
}

// String returns the string representation.
func (h CodewarsHandle) String() string {
	return string(h)
}

// IsEmpty reports whether no handle is bound.
func (h CodewarsHandle) IsEmpty() bool {
	return h == ""
}

// NewCodewarsHandle trims and validates a handle typed by a user.
// A leading "@" is tolerated.
func NewCodewarsHandle(raw string) (CodewarsHandle, error) {
	h := CodewarsHandle(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
	if !h.IsValid() {
		return "", ErrInvalidHandle
	}
	return h, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Calendar Day
// ═══════════════════════════════════════════════════════════════════════════

// Day is a calendar date without a time component. Rotations are keyed by Day:
// all pairs created on the same Day belong to the same rotation.
type Day struct {
	Year  int
	Month time.Month
	Date  int
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Date: d}
}

// NewDay builds a Day from its components.
func NewDay(year int, month time.Month, date int) Day {
	return DayOf(time.Date(year, month, date, 0, 0, 0, 0, time.UTC), time.UTC)
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Date == 0
}

// Start returns midnight of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Date, 0, 0, 0, 0, loc)
}

// Before reports whether d is earlier than other.
func (d Day) Before(other Day) bool {
	return d.Start(time.UTC).Before(other.Start(time.UTC))
}

// String returns the day in ISO 8601 format (2006-01-02).
func (d Day) String() string {
	return d.Start(time.UTC).Format(time.DateOnly)
}

// ParseDay parses an ISO 8601 date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Day{}, ErrInvalidFormat
	}
	return DayOf(t, time.UTC), nil
}
