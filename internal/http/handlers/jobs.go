package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"inkflow/internal/domain"
)

type jobRequest struct {
	Prompt       string `json:"prompt"`
	Size         string `json:"size"`
	StylePreset  string `json:"style_preset"`
	ScheduleType string `json:"schedule_type"`
	ScheduleTime string `json:"schedule_time"`
	ScheduleDays []int  `json:"schedule_days"`
	ScheduledAt  string `json:"scheduled_at"`
	Timezone     string `json:"timezone"`
	AutoSync     bool   `json:"auto_sync"`
}

type jobResponse struct {
	ID           string     `json:"id"`
	Prompt       string     `json:"prompt"`
	Size         string     `json:"size"`
	StylePreset  string     `json:"style_preset,omitempty"`
	ScheduleType string     `json:"schedule_type"`
	ScheduleTime string     `json:"schedule_time,omitempty"`
	ScheduleDays []int      `json:"schedule_days,omitempty"`
	ScheduledAt  string     `json:"scheduled_at,omitempty"`
	Timezone     string     `json:"timezone"`
	IsEnabled    bool       `json:"is_enabled"`
	AutoSync     bool       `json:"auto_sync"`
	ImageURL     string     `json:"image_url,omitempty"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
	NextRunAt    *time.Time `json:"next_run_at,omitempty"`
	RunCount     int        `json:"run_count"`
	LastError    string     `json:"last_error,omitempty"`
}

func toJobResponse(job *domain.ScheduledJob) jobResponse {
	return jobResponse{
		ID:           job.ID,
		Prompt:       job.Prompt,
		Size:         job.Size,
		StylePreset:  job.StylePreset,
		ScheduleType: string(job.ScheduleType),
		ScheduleTime: job.ScheduleTime,
		ScheduleDays: job.ScheduleDays,
		ScheduledAt:  job.ScheduledAt,
		Timezone:     job.Timezone,
		IsEnabled:    job.IsEnabled,
		AutoSync:     job.AutoSync,
		ImageURL:     job.ImageURL,
		LastRunAt:    job.LastRunAt,
		NextRunAt:    job.NextRunAt,
		RunCount:     job.RunCount,
		LastError:    job.LastError,
	}
}

// JobsCreate validates and stores a new scheduled job. When the request
// omits a timezone the creator's address decides the default.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Timezone == "" {
		req.Timezone = a.timezoneForRequest(r)
	}
	job := &domain.ScheduledJob{
		UserID:       userID,
		Prompt:       req.Prompt,
		Size:         req.Size,
		StylePreset:  req.StylePreset,
		ScheduleType: domain.ScheduleType(req.ScheduleType),
		ScheduleTime: req.ScheduleTime,
		ScheduleDays: req.ScheduleDays,
		ScheduledAt:  req.ScheduledAt,
		Timezone:     req.Timezone,
		IsEnabled:    true,
		AutoSync:     req.AutoSync,
	}
	if err := a.Jobs.CreateJob(r.Context(), job); err != nil {
		a.respondJobError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toJobResponse(job))
}

// JobsList returns the caller's scheduled jobs.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs, err := a.Jobs.ListJobs(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, out)
}

// JobsGet returns one job, scoped to its owner.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobsUpdate rewrites the job's content and schedule fields.
func (a *App) JobsUpdate(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	job.Prompt = req.Prompt
	job.Size = req.Size
	job.StylePreset = req.StylePreset
	job.ScheduleType = domain.ScheduleType(req.ScheduleType)
	job.ScheduleTime = req.ScheduleTime
	job.ScheduleDays = req.ScheduleDays
	job.ScheduledAt = req.ScheduledAt
	if req.Timezone != "" {
		job.Timezone = req.Timezone
	}
	job.AutoSync = req.AutoSync
	if err := a.Jobs.UpdateJob(r.Context(), job); err != nil {
		a.respondJobError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// JobsToggle enables or disables a job; enabling recomputes the next run.
func (a *App) JobsToggle(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	updated, err := a.Jobs.SetEnabled(r.Context(), job.ID, req.Enabled)
	if err != nil {
		a.respondJobError(w, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(updated))
}

// JobsDelete removes a job permanently.
func (a *App) JobsDelete(w http.ResponseWriter, r *http.Request) {
	job, ok := a.ownedJob(w, r)
	if !ok {
		return
	}
	if err := a.Jobs.DeleteJob(r.Context(), job.ID); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownedJob loads the path job and enforces ownership. Jobs of other users
// are reported as not found, never as forbidden.
func (a *App) ownedJob(w http.ResponseWriter, r *http.Request) (*domain.ScheduledJob, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	job, err := a.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		} else {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		}
		return nil, false
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}

func (a *App) respondJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTimezone):
		a.error(w, http.StatusBadRequest, "invalid_timezone", err.Error())
	case errors.Is(err, domain.ErrInvalidSchedule):
		a.error(w, http.StatusBadRequest, "invalid_schedule", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	default:
		a.error(w, http.StatusInternalServerError, "internal", "failed to store job")
	}
}

// timezoneForRequest derives a default timezone from the client address.
// Empty string means no usable default; validation downstream rejects it.
func (a *App) timezoneForRequest(r *http.Request) string {
	if a.GeoIP == nil {
		return ""
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	tz, err := a.GeoIP.Timezone(host)
	if err != nil {
		a.Logger.Debug().Err(err).Str("ip", host).Msg("handlers: timezone lookup failed")
		return ""
	}
	return tz
}
