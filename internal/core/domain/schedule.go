package domain

import (
	"fmt"
	"time"
)

// Frequency is how often the auto export recurs
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// weeklyAnchor is the fixed weekday weekly schedules fire on
const weeklyAnchor = time.Sunday

// Schedule is a recurring export rule: a frequency plus a time of day.
// All methods are pure functions of their arguments; the zero value is not
// valid.
type Schedule struct {
	Frequency Frequency `json:"frequency"`
	Hour      int       `json:"hour"`
	Minute    int       `json:"minute"`
}

// Validate checks the schedule invariants
func (s Schedule) Validate() error {
	switch s.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, s.Frequency)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: hour %d out of range", ErrInvalidInput, s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute %d out of range", ErrInvalidInput, s.Minute)
	}
	return nil
}

// at returns the schedule's time of day on the date of t
func (s Schedule) at(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, t.Location())
}

// NextDue returns the first scheduled instant strictly after `after`.
func (s Schedule) NextDue(after time.Time) time.Time {
	switch s.Frequency {
	case FrequencyWeekly:
		target := s.at(after)
		days := (int(weeklyAnchor) - int(target.Weekday()) + 7) % 7
		target = target.AddDate(0, 0, days)
		if !target.After(after) {
			target = target.AddDate(0, 0, 7)
		}
		return target

	case FrequencyMonthly:
		target := time.Date(after.Year(), after.Month(), 1, s.Hour, s.Minute, 0, 0, after.Location())
		if !target.After(after) {
			target = time.Date(after.Year(), after.Month()+1, 1, s.Hour, s.Minute, 0, 0, after.Location())
		}
		return target

	default: // daily
		target := s.at(after)
		if !target.After(after) {
			target = target.AddDate(0, 0, 1)
		}
		return target
	}
}

// MostRecentDue returns the largest scheduled instant <= relativeTo. An
// instant landing exactly on the schedule counts as due, so MostRecentDue and
// NextDue form an exact inverse boundary with no gaps or double counting.
func (s Schedule) MostRecentDue(relativeTo time.Time) time.Time {
	switch s.Frequency {
	case FrequencyWeekly:
		target := s.at(relativeTo)
		days := (int(target.Weekday()) - int(weeklyAnchor) + 7) % 7
		target = target.AddDate(0, 0, -days)
		if target.After(relativeTo) {
			target = target.AddDate(0, 0, -7)
		}
		return target

	case FrequencyMonthly:
		target := time.Date(relativeTo.Year(), relativeTo.Month(), 1, s.Hour, s.Minute, 0, 0, relativeTo.Location())
		if target.After(relativeTo) {
			target = time.Date(relativeTo.Year(), relativeTo.Month()-1, 1, s.Hour, s.Minute, 0, 0, relativeTo.Location())
		}
		return target

	default: // daily
		target := s.at(relativeTo)
		if target.After(relativeTo) {
			target = target.AddDate(0, 0, -1)
		}
		return target
	}
}

// Overdue reports whether a run should already have happened: true when no
// run has ever completed, or the last run predates the most recent scheduled
// instant.
func (s Schedule) Overdue(lastRun *time.Time, now time.Time) bool {
	if lastRun == nil {
		return true
	}
	return lastRun.Before(s.MostRecentDue(now))
}
