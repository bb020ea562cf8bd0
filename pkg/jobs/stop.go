package jobs

import (
	"fmt"
	"time"
)

// AllowedDurations lists the run lengths, in minutes, accepted by the worker commands.
var AllowedDurations = []int{1, 2, 5, 7, 10, 15, 20, 30, 45, 60}

// ValidateDuration rejects run lengths outside AllowedDurations.
func ValidateDuration(minutes int) error {
	for _, d := range AllowedDurations {
		if d == minutes {
			return nil
		}
	}
	return fmt.Errorf("invalid duration %d, expected one of %v", minutes, AllowedDurations)
}

// StopOptions describe how long a worker run lasts.
type StopOptions struct {
	Duration int
	Margin   time.Duration
	// StopMinute, when set, ends the run at the next occurrence of that minute.
	StopMinute *int
	// Quick reads Duration as seconds. Used by tests.
	Quick bool
}

// StopAt computes the wall-clock deadline of a run started at now.
// The stop minute only shortens a run; it is ignored when it equals the start minute.
func StopAt(now time.Time, opts StopOptions) time.Time {
	if opts.Quick {
		return now.Add(time.Duration(opts.Duration) * time.Second)
	}

	stopAt := now.Add(time.Duration(opts.Duration)*time.Minute - opts.Margin)

	if opts.StopMinute != nil {
		delta := *opts.StopMinute - now.Minute()
		if delta < 0 {
			delta += 60
		}
		if delta != 0 {
			exact := now.Add(time.Duration(delta) * time.Minute).Truncate(time.Minute)
			if exact.Before(stopAt) {
				stopAt = exact
			}
		}
	}
	return stopAt
}
