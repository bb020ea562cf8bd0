package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateDuration(t *testing.T) {
	for _, d := range AllowedDurations {
		assert.NoError(t, ValidateDuration(d))
	}
	assert.Error(t, ValidateDuration(3))
	assert.Error(t, ValidateDuration(0))
}

func TestStopAt(t *testing.T) {
	now := time.Date(2026, 10, 19, 14, 7, 42, 500, time.UTC)
	minute := func(m int) *int { return &m }

	tests := []struct {
		name string
		opts StopOptions
		want time.Time
	}{
		{
			name: "duration minus margin",
			opts: StopOptions{Duration: 60, Margin: 15 * time.Second},
			want: now.Add(60*time.Minute - 15*time.Second),
		},
		{
			name: "quick reads seconds",
			opts: StopOptions{Duration: 5, Margin: 15 * time.Second, Quick: true},
			want: now.Add(5 * time.Second),
		},
		{
			name: "stop minute inside run truncates seconds",
			opts: StopOptions{Duration: 60, Margin: 15 * time.Second, StopMinute: minute(30)},
			want: time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC),
		},
		{
			name: "stop minute wraps the hour",
			opts: StopOptions{Duration: 60, StopMinute: minute(5)},
			want: time.Date(2026, 10, 19, 15, 5, 0, 0, time.UTC),
		},
		{
			name: "stop minute equal to start minute is ignored",
			opts: StopOptions{Duration: 10, StopMinute: minute(7)},
			want: now.Add(10 * time.Minute),
		},
		{
			name: "stop minute beyond the run keeps the duration",
			opts: StopOptions{Duration: 5, StopMinute: minute(30)},
			want: now.Add(5 * time.Minute),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StopAt(now, tc.opts))
		})
	}
}
