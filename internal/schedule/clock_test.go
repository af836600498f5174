package schedule

import (
	"errors"
	"testing"
	"time"

	"inkflow/internal/domain"
)

func TestLoadLocationRejectsBlankName(t *testing.T) {
	if _, err := LoadLocation("  "); !errors.Is(err, domain.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}

func TestLoadLocationRejectsUnknownName(t *testing.T) {
	if _, err := LoadLocation("Mars/Olympus_Mons"); !errors.Is(err, domain.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}

func TestToUTCWinterOffset(t *testing.T) {
	got, err := ToUTC(2026, time.January, 15, 8, 0, 0, "America/New_York")
	if err != nil {
		t.Fatalf("ToUTC returned error: %v", err)
	}
	want := time.Date(2026, time.January, 15, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ToUTC mismatch: got %v want %v", got, want)
	}
}

func TestToUTCSummerOffset(t *testing.T) {
	got, err := ToUTC(2026, time.July, 15, 8, 0, 0, "America/New_York")
	if err != nil {
		t.Fatalf("ToUTC returned error: %v", err)
	}
	want := time.Date(2026, time.July, 15, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ToUTC mismatch: got %v want %v", got, want)
	}
}

func TestToUTCResolvesSpringForwardGap(t *testing.T) {
	// 02:30 does not exist on 2026-03-08 in New York; the conversion
	// lands on 03:00 EDT, the first valid wall time after the gap.
	got, err := ToUTC(2026, time.March, 8, 2, 30, 0, "America/New_York")
	if err != nil {
		t.Fatalf("ToUTC returned error: %v", err)
	}
	want := time.Date(2026, time.March, 8, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("ToUTC mismatch: got %v want %v", got, want)
	}
}

func TestNowInConvertsWallClock(t *testing.T) {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)
	got, err := NowIn(now, "Asia/Tokyo")
	if err != nil {
		t.Fatalf("NowIn returned error: %v", err)
	}
	if got.Hour() != 21 {
		t.Fatalf("NowIn hour mismatch: got %d want 21", got.Hour())
	}
	if !got.Equal(now) {
		t.Fatal("NowIn changed the instant, not just the wall clock")
	}
}
