package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule reports the first run strictly after from.
type Schedule interface {
	Next(from time.Time) time.Time
}

type interval time.Duration

// Every runs at a fixed interval from the previous run.
func Every(d time.Duration) Schedule { return interval(d) }

func (i interval) Next(from time.Time) time.Time { return from.Add(time.Duration(i)) }

type weekly struct {
	day          time.Weekday
	hour, minute int
	loc          *time.Location
}

// Weekly runs once a week on day at hour:minute wall-clock time in loc.
// A nil loc means time.Local.
func Weekly(day time.Weekday, hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.Local
	}
	return weekly{day: day, hour: hour, minute: minute, loc: loc}
}

func (w weekly) Next(from time.Time) time.Time {
	from = from.In(w.loc)
	ahead := (int(w.day) - int(from.Weekday()) + 7) % 7
	next := time.Date(from.Year(), from.Month(), from.Day()+ahead, w.hour, w.minute, 0, 0, w.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression. Times are evaluated in the
// location of the time passed to Next.
func ParseCron(expr string) (Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: parse %q: %w", expr, err)
	}
	return s, nil
}

// Cron is ParseCron for expressions known at compile time; it panics on a
// bad expression.
func Cron(expr string) Schedule {
	s, err := ParseCron(expr)
	if err != nil {
		panic(err)
	}
	return s
}
