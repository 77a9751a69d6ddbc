package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	s := Every(time.Hour)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	next1 := s.Next(start)
	next2 := s.Next(next1)

	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), next1)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), next2)
}

func TestWeekly(t *testing.T) {
	tests := []struct {
		name string
		day  time.Weekday
		from time.Time
		want time.Time
	}{
		{"later today", time.Monday, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)},
		{"slot passed", time.Monday, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"exactly at slot", time.Monday, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)},
		{"later this week", time.Friday, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"next week", time.Sunday, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Weekly(tt.day, 10, 0, time.UTC).Next(tt.from))
		})
	}
}

func TestWeekly_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	s := Weekly(time.Sunday, 3, 0, loc)
	from := time.Date(2024, 1, 6, 12, 0, 0, 0, loc) // Saturday

	assert.Equal(t, time.Date(2024, 1, 7, 3, 0, 0, 0, loc), s.Next(from))
}

func TestCron(t *testing.T) {
	s := Cron("30 14 * * 1-5")
	from := time.Date(2024, 1, 5, 15, 0, 0, 0, time.UTC) // Friday after the slot

	assert.Equal(t, time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC), s.Next(from))
}

func TestParseCron(t *testing.T) {
	_, err := ParseCron("not a cron")
	assert.Error(t, err)

	s, err := ParseCron("0 0 * * *")
	require.NoError(t, err)
	from := time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Next(from))

	assert.Panics(t, func() { Cron("invalid cron") })
}
