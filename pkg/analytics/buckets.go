package analytics

import (
	"fmt"
	"time"
)

// Period is a roll-up granularity.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists every roll-up granularity.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// bucket returns the key and start of the bucket containing t, in t's location.
// Weeks are ISO weeks starting on Monday.
func (p Period) bucket(t time.Time) (string, time.Time) {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	switch p {
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		iy, iw := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", iy, iw), start
	case PeriodMonth:
		return day.Format("2006-01"), time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	}
	return day.Format("2006-01-02"), day
}
