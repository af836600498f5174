package schedule

import (
	"fmt"
	"strings"
	"time"

	"inkflow/internal/domain"
)

// LoadLocation resolves an IANA timezone name. Unknown or blank names map
// to domain.ErrInvalidTimezone; there is deliberately no fallback to UTC,
// a job with a bad timezone must fail validation rather than fire at the
// wrong hour.
func LoadLocation(tz string) (*time.Location, error) {
	name := strings.TrimSpace(tz)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", domain.ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimezone, name)
	}
	return loc, nil
}

// NowIn returns the instant now expressed on the wall clock of tz.
func NowIn(now time.Time, tz string) (time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return now.In(loc), nil
}

// ToUTC interprets naive wall-clock fields as a local time in tz and
// returns the corresponding UTC instant. time.Date re-derives the zone
// offset for the specific calendar date, so the conversion stays correct
// across DST transitions. Fields that fall inside a spring-forward gap
// map to the end of the gap, the first valid local time at or after the
// requested one.
func ToUTC(year int, month time.Month, day, hour, min, sec int, tz string) (time.Time, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return localOccurrence(year, month, day, hour, min, loc).Add(time.Duration(sec) * time.Second).UTC(), nil
}

// localOccurrence resolves wall-clock fields on a calendar day in loc.
// For a wall time that does not exist because clocks jumped forward,
// time.Date picks one of the surrounding offsets and can land an hour
// BEFORE the requested wall time; detect the mismatch by round-tripping
// the fields and walk forward a minute at a time to the end of the gap.
func localOccurrence(year int, month time.Month, day, hour, min int, loc *time.Location) time.Time {
	cand := time.Date(year, month, day, hour, min, 0, 0, loc)
	if cand.Hour() == hour && cand.Minute() == min {
		return cand
	}
	// Real gaps are at most two hours; 3h bounds the scan either way.
	for i := 1; i <= 180; i++ {
		want := time.Date(year, month, day, hour, min+i, 0, 0, time.UTC)
		cand = time.Date(year, month, day, hour, min+i, 0, 0, loc)
		if cand.Hour() == want.Hour() && cand.Minute() == want.Minute() {
			return cand
		}
	}
	return cand
}
