package schedule

import (
	"fmt"
	"slices"
	"time"

	"inkflow/internal/domain"
)

const (
	timeOfDayLayout = "15:04"
	oneTimeLayout   = "2006-01-02T15:04"
)

// Spec is the recurrence specification of a scheduled job.
type Spec struct {
	Type       domain.ScheduleType
	TimeOfDay  string // "HH:MM" (daily, weekly)
	DaysOfWeek []int  // 0-6, Sunday=0 (weekly)
	OneTime    string // "2006-01-02T15:04" local wall clock (once)
	Timezone   string
}

// SpecFor extracts the recurrence spec from a job record. The spec is
// rebuilt from the original schedule fields on every recompute, never
// from the execution time.
func SpecFor(job *domain.ScheduledJob) Spec {
	return Spec{
		Type:       job.ScheduleType,
		TimeOfDay:  job.ScheduleTime,
		DaysOfWeek: job.ScheduleDays,
		OneTime:    job.ScheduledAt,
		Timezone:   job.Timezone,
	}
}

// Validate rejects malformed specs synchronously, before a job row is
// created or updated. Anything that passes here can only fail at run
// time for transient reasons.
func (s Spec) Validate() error {
	if _, err := LoadLocation(s.Timezone); err != nil {
		return err
	}
	switch s.Type {
	case domain.ScheduleOnce:
		if _, err := time.Parse(oneTimeLayout, s.OneTime); err != nil {
			return fmt.Errorf("%w: scheduled_at %q", domain.ErrInvalidSchedule, s.OneTime)
		}
	case domain.ScheduleDaily:
		if _, _, err := parseTimeOfDay(s.TimeOfDay); err != nil {
			return err
		}
	case domain.ScheduleWeekly:
		if _, _, err := parseTimeOfDay(s.TimeOfDay); err != nil {
			return err
		}
		if len(s.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: weekly schedule needs at least one day", domain.ErrInvalidSchedule)
		}
		for _, d := range s.DaysOfWeek {
			if d < 0 || d > 6 {
				return fmt.Errorf("%w: weekday %d out of range", domain.ErrInvalidSchedule, d)
			}
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", domain.ErrInvalidSchedule, s.Type)
	}
	return nil
}

// NextRun computes the next UTC run instant strictly after now, or nil
// when the schedule structurally cannot recur (lapsed one-time job,
// missing required fields, empty weekly day set). All comparisons are
// strict so a job whose time equals now is scheduled for its next
// occurrence, never re-fired at the boundary instant. A wall time that
// falls inside a spring-forward gap runs at the end of the gap, the
// first valid local time at or after it. Pure function: identical
// inputs always yield identical results.
func NextRun(spec Spec, now time.Time) (*time.Time, error) {
	loc, err := LoadLocation(spec.Timezone)
	if err != nil {
		return nil, err
	}

	switch spec.Type {
	case domain.ScheduleOnce:
		if spec.OneTime == "" {
			return nil, nil
		}
		parsed, err := time.ParseInLocation(oneTimeLayout, spec.OneTime, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: scheduled_at %q", domain.ErrInvalidSchedule, spec.OneTime)
		}
		local := localOccurrence(parsed.Year(), parsed.Month(), parsed.Day(), parsed.Hour(), parsed.Minute(), loc)
		if !local.After(now) {
			return nil, nil
		}
		return utcPtr(local), nil

	case domain.ScheduleDaily:
		if spec.TimeOfDay == "" {
			return nil, nil
		}
		hour, min, err := parseTimeOfDay(spec.TimeOfDay)
		if err != nil {
			return nil, err
		}
		local := now.In(loc)
		cand := localOccurrence(local.Year(), local.Month(), local.Day(), hour, min, loc)
		if !cand.After(now) {
			next := local.AddDate(0, 0, 1)
			cand = localOccurrence(next.Year(), next.Month(), next.Day(), hour, min, loc)
		}
		return utcPtr(cand), nil

	case domain.ScheduleWeekly:
		if spec.TimeOfDay == "" || len(spec.DaysOfWeek) == 0 {
			return nil, nil
		}
		hour, min, err := parseTimeOfDay(spec.TimeOfDay)
		if err != nil {
			return nil, err
		}
		local := now.In(loc)
		for offset := 0; offset < 7; offset++ {
			day := local.AddDate(0, 0, offset)
			if !slices.Contains(spec.DaysOfWeek, int(day.Weekday())) {
				continue
			}
			cand := localOccurrence(day.Year(), day.Month(), day.Day(), hour, min, loc)
			if cand.After(now) {
				return utcPtr(cand), nil
			}
		}
		// Every candidate in the scan window already passed, which only
		// happens when today is the sole selected day. Wrap to the next
		// occurrence of the earliest selected weekday.
		earliest := slices.Min(spec.DaysOfWeek)
		delta := (earliest - int(local.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		day := local.AddDate(0, 0, delta)
		cand := localOccurrence(day.Year(), day.Month(), day.Day(), hour, min, loc)
		return utcPtr(cand), nil
	}

	return nil, nil
}

func parseTimeOfDay(s string) (hour, min int, err error) {
	t, err := time.Parse(timeOfDayLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: schedule_time %q", domain.ErrInvalidSchedule, s)
	}
	return t.Hour(), t.Minute(), nil
}

func utcPtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
