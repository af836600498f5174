package domain

import "time"

// ScheduleType enumerates supported recurrence kinds.
type ScheduleType string

const (
	ScheduleOnce   ScheduleType = "once"
	ScheduleDaily  ScheduleType = "daily"
	ScheduleWeekly ScheduleType = "weekly"
)

// ScheduledJob is a recurring image-generation job owned by a single user.
//
// Which recurrence fields are meaningful depends on ScheduleType:
// once uses ScheduledAt, daily uses ScheduleTime, weekly uses ScheduleTime
// plus ScheduleDays. ScheduleTime and ScheduledAt are wall-clock values
// interpreted in Timezone; NextRunAt and LastRunAt are UTC instants.
type ScheduledJob struct {
	ID           string
	UserID       string
	Prompt       string
	Size         string
	StylePreset  string
	ScheduleType ScheduleType
	ScheduleTime string // "HH:MM" (daily, weekly)
	ScheduleDays []int  // weekday integers 0-6, Sunday=0 (weekly)
	ScheduledAt  string // "2006-01-02T15:04" local wall clock (once)
	Timezone     string // IANA name
	IsEnabled    bool
	AutoSync     bool
	ImageURL     string
	LastRunAt    *time.Time
	NextRunAt    *time.Time
	RunCount     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RunResult captures the outcome of one scheduled-job execution, applied
// to the job row by the scheduler after every attempt.
type RunResult struct {
	RanAt     time.Time
	NextRunAt *time.Time
	ImageURL  string
	Err       string
	Disabled  bool
}
