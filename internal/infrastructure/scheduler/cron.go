package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron"
)

// CronSchedule runs a job on a standard five-field cron expression
// ("minute hour day-of-month month day-of-week") evaluated in a fixed location.
type CronSchedule struct {
	expr     string
	location *time.Location
	schedule cron.Schedule
}

// ParseCron parses a standard cron expression. A nil location means UTC.
// Descriptors such as "@daily" and "@every 1h" are accepted as well.
func ParseCron(expr string, location *time.Location) (*CronSchedule, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	if location == nil {
		location = time.UTC
	}
	return &CronSchedule{expr: expr, location: location, schedule: schedule}, nil
}

// MustParseCron is ParseCron that panics on error. Use it for constants only.
func MustParseCron(expr string, location *time.Location) *CronSchedule {
	s, err := ParseCron(expr, location)
	if err != nil {
		panic(err)
	}
	return s
}

// Next returns the first activation strictly after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// String returns the expression and its location.
func (s *CronSchedule) String() string {
	return s.expr + " (" + s.location.String() + ")"
}
