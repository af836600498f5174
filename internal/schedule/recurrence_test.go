package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkflow/internal/domain"
)

func TestNextRunDailyLaterToday(t *testing.T) {
	spec := Spec{Type: domain.ScheduleDaily, TimeOfDay: "09:00", Timezone: "America/New_York"}
	now := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC) // 08:00 EDT

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.June, 10, 13, 0, 0, 0, time.UTC), *next)
}

func TestNextRunDailyIsStrictlyAfterNow(t *testing.T) {
	spec := Spec{Type: domain.ScheduleDaily, TimeOfDay: "09:00", Timezone: "America/New_York"}
	now := time.Date(2026, time.June, 10, 13, 0, 0, 0, time.UTC) // exactly 09:00 EDT

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.June, 11, 13, 0, 0, 0, time.UTC), *next,
		"a run due exactly now must schedule tomorrow, not re-fire")
}

func TestNextRunDailyAcrossSpringForward(t *testing.T) {
	spec := Spec{Type: domain.ScheduleDaily, TimeOfDay: "08:00", Timezone: "America/New_York"}

	// Saturday before the 2026 transition: still EST, UTC-5.
	now := time.Date(2026, time.March, 7, 12, 30, 0, 0, time.UTC)
	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.March, 7, 13, 0, 0, 0, time.UTC), *next)

	// Same wall-clock time the day after the clocks jump: EDT, UTC-4.
	now = time.Date(2026, time.March, 7, 14, 0, 0, 0, time.UTC)
	next, err = NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.March, 8, 12, 0, 0, 0, time.UTC), *next,
		"local 08:00 must stay 08:00 across the DST change")
}

func TestNextRunDailyInsideSpringForwardGap(t *testing.T) {
	// 2026-03-08 in America/New_York has no 02:30: clocks jump from
	// 02:00 EST straight to 03:00 EDT. The run lands at the end of the
	// gap, never an hour early.
	spec := Spec{Type: domain.ScheduleDaily, TimeOfDay: "02:30", Timezone: "America/New_York"}
	now := time.Date(2026, time.March, 8, 5, 0, 0, 0, time.UTC) // 00:00 EST

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.March, 8, 7, 0, 0, 0, time.UTC), *next,
		"must be 03:00 EDT, the first valid local time at or after 02:30")

	loc, err := LoadLocation("America/New_York")
	require.NoError(t, err)
	localNext := next.In(loc)
	assert.False(t, localNext.Hour() < 2 || (localNext.Hour() == 2 && localNext.Minute() < 30),
		"local wall time %v fires before the scheduled 02:30", localNext)
}

func TestNextRunOnceInsideSpringForwardGap(t *testing.T) {
	spec := Spec{Type: domain.ScheduleOnce, OneTime: "2026-03-08T02:30", Timezone: "America/New_York"}
	now := time.Date(2026, time.March, 8, 5, 0, 0, 0, time.UTC)

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.March, 8, 7, 0, 0, 0, time.UTC), *next)
}

func TestNextRunWeeklyPicksNextSelectedDay(t *testing.T) {
	spec := Spec{
		Type:       domain.ScheduleWeekly,
		TimeOfDay:  "07:30",
		DaysOfWeek: []int{1, 3}, // Monday, Wednesday
		Timezone:   "UTC",
	}
	now := time.Date(2026, time.June, 9, 0, 0, 0, 0, time.UTC) // Tuesday

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.June, 10, 7, 30, 0, 0, time.UTC), *next)
}

func TestNextRunWeeklySkipsPassedDayThisWeek(t *testing.T) {
	spec := Spec{
		Type:       domain.ScheduleWeekly,
		TimeOfDay:  "07:30",
		DaysOfWeek: []int{1, 3},
		Timezone:   "UTC",
	}
	now := time.Date(2026, time.June, 10, 8, 0, 0, 0, time.UTC) // Wednesday, after 07:30

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.June, 15, 7, 30, 0, 0, time.UTC), *next,
		"must roll to next Monday, not re-fire today")
}

func TestNextRunWeeklyWrapsWhenSoleDayPassed(t *testing.T) {
	spec := Spec{
		Type:       domain.ScheduleWeekly,
		TimeOfDay:  "09:00",
		DaysOfWeek: []int{2}, // Tuesday only
		Timezone:   "UTC",
	}
	now := time.Date(2026, time.June, 9, 10, 0, 0, 0, time.UTC) // Tuesday, after 09:00

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.June, 16, 9, 0, 0, 0, time.UTC), *next)
}

func TestNextRunOnceFuture(t *testing.T) {
	spec := Spec{Type: domain.ScheduleOnce, OneTime: "2026-07-04T20:00", Timezone: "America/New_York"}
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, time.July, 5, 0, 0, 0, 0, time.UTC), *next)
}

func TestNextRunOnceLapsedReturnsNil(t *testing.T) {
	spec := Spec{Type: domain.ScheduleOnce, OneTime: "2026-01-01T08:00", Timezone: "UTC"}
	now := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	assert.Nil(t, next, "a lapsed one-time job never runs again")
}

func TestNextRunOnceAtExactInstantReturnsNil(t *testing.T) {
	spec := Spec{Type: domain.ScheduleOnce, OneTime: "2026-06-01T08:00", Timezone: "UTC"}
	now := time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC)

	next, err := NextRun(spec, now)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextRunMissingFieldsReturnsNil(t *testing.T) {
	for name, spec := range map[string]Spec{
		"once without scheduled_at": {Type: domain.ScheduleOnce, Timezone: "UTC"},
		"daily without time":        {Type: domain.ScheduleDaily, Timezone: "UTC"},
		"weekly without days":       {Type: domain.ScheduleWeekly, TimeOfDay: "08:00", Timezone: "UTC"},
	} {
		t.Run(name, func(t *testing.T) {
			next, err := NextRun(spec, time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC))
			require.NoError(t, err)
			assert.Nil(t, next)
		})
	}
}

func TestNextRunIsPure(t *testing.T) {
	spec := Spec{Type: domain.ScheduleDaily, TimeOfDay: "06:15", Timezone: "Europe/Berlin"}
	now := time.Date(2026, time.June, 10, 3, 0, 0, 0, time.UTC)

	first, err := NextRun(spec, now)
	require.NoError(t, err)
	second, err := NextRun(spec, now)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, *first, *second)
}

func TestValidateRejectsMalformedSpecs(t *testing.T) {
	cases := map[string]struct {
		spec Spec
		want error
	}{
		"bad timezone": {
			spec: Spec{Type: domain.ScheduleDaily, TimeOfDay: "08:00", Timezone: "Nowhere/City"},
			want: domain.ErrInvalidTimezone,
		},
		"bad time of day": {
			spec: Spec{Type: domain.ScheduleDaily, TimeOfDay: "25:99", Timezone: "UTC"},
			want: domain.ErrInvalidSchedule,
		},
		"weekly without days": {
			spec: Spec{Type: domain.ScheduleWeekly, TimeOfDay: "08:00", Timezone: "UTC"},
			want: domain.ErrInvalidSchedule,
		},
		"weekday out of range": {
			spec: Spec{Type: domain.ScheduleWeekly, TimeOfDay: "08:00", DaysOfWeek: []int{7}, Timezone: "UTC"},
			want: domain.ErrInvalidSchedule,
		},
		"bad one-time stamp": {
			spec: Spec{Type: domain.ScheduleOnce, OneTime: "next tuesday", Timezone: "UTC"},
			want: domain.ErrInvalidSchedule,
		},
		"unknown type": {
			spec: Spec{Type: "hourly", Timezone: "UTC"},
			want: domain.ErrInvalidSchedule,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, tc.spec.Validate(), tc.want)
		})
	}
}

func TestValidateAcceptsWellFormedSpecs(t *testing.T) {
	for name, spec := range map[string]Spec{
		"once":   {Type: domain.ScheduleOnce, OneTime: "2026-12-25T09:00", Timezone: "UTC"},
		"daily":  {Type: domain.ScheduleDaily, TimeOfDay: "08:00", Timezone: "America/New_York"},
		"weekly": {Type: domain.ScheduleWeekly, TimeOfDay: "08:00", DaysOfWeek: []int{0, 6}, Timezone: "Asia/Tokyo"},
	} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, spec.Validate())
		})
	}
}
