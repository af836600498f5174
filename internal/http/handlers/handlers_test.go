package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkflow/internal/batch"
	"inkflow/internal/domain"
	"inkflow/internal/http/handlers"
	"inkflow/internal/http/httpapi"
	"inkflow/internal/providers/image"
	"inkflow/internal/scheduler"
)

type memJobRepo struct {
	jobs map[string]*domain.ScheduledJob
}

func (r *memJobRepo) Create(_ context.Context, job *domain.ScheduledJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *memJobRepo) Update(_ context.Context, job *domain.ScheduledJob) error {
	if _, ok := r.jobs[job.ID]; !ok {
		return domain.ErrNotFound
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *memJobRepo) GetByID(_ context.Context, id string) (*domain.ScheduledJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *memJobRepo) ListByUser(_ context.Context, userID string) ([]domain.ScheduledJob, error) {
	var out []domain.ScheduledJob
	for _, job := range r.jobs {
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *memJobRepo) Delete(_ context.Context, id string) error {
	delete(r.jobs, id)
	return nil
}

func (r *memJobRepo) FindDue(_ context.Context, _ time.Time) ([]domain.ScheduledJob, error) {
	return nil, nil
}

func (r *memJobRepo) RecordRun(_ context.Context, _ string, _ domain.RunResult) error {
	return nil
}

type memSessionRepo struct{}

func (memSessionRepo) PurgeExpired(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

type memBatchRepo struct {
	batches map[string]*domain.BatchJob
	items   map[string][]domain.BatchJobItem
}

func (r *memBatchRepo) CreateBatch(_ context.Context, b *domain.BatchJob, items []domain.BatchJobItem) error {
	copied := *b
	r.batches[b.ID] = &copied
	r.items[b.ID] = items
	return nil
}

func (r *memBatchRepo) GetBatch(_ context.Context, id string) (*domain.BatchJob, error) {
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *memBatchRepo) ListByUser(_ context.Context, userID string) ([]domain.BatchJob, error) {
	var out []domain.BatchJob
	for _, b := range r.batches {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (r *memBatchRepo) UpdateStatus(_ context.Context, id string, status domain.BatchStatus) error {
	b, ok := r.batches[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	return nil
}

func (r *memBatchRepo) DeleteBatch(_ context.Context, id string) error {
	delete(r.batches, id)
	delete(r.items, id)
	return nil
}

func (r *memBatchRepo) ListItems(_ context.Context, batchID string) ([]domain.BatchJobItem, error) {
	return r.items[batchID], nil
}

func (r *memBatchRepo) OldestActive(_ context.Context) (*domain.BatchJob, error) {
	return nil, domain.ErrNotFound
}

func (r *memBatchRepo) ClaimNextItem(_ context.Context, _ string, _, _ time.Time) (*domain.BatchJobItem, error) {
	return nil, domain.ErrNotFound
}

func (r *memBatchRepo) CompleteItem(_ context.Context, _, _ string) error { return nil }
func (r *memBatchRepo) FailItem(_ context.Context, _, _ string) error     { return nil }
func (r *memBatchRepo) MarkItemSynced(_ context.Context, _ string) error  { return nil }

type noopGenerator struct{}

func (noopGenerator) Generate(_ context.Context, req image.GenerateRequest) (*image.Result, error) {
	return &image.Result{URL: "https://provider.example/" + req.RequestID}, nil
}

type noopStore struct{}

func (noopStore) Persist(_ context.Context, _, _, _ string) (string, error) { return "key", nil }
func (noopStore) PermanentURL(ownerID, artifactID string) string {
	return fmt.Sprintf("https://img.local/artifacts/%s/%s.png", ownerID, artifactID)
}

type noopNotifier struct{}

func (noopNotifier) Notify(_ context.Context, _, _, _ string) error { return nil }

func newTestServer(t *testing.T) (http.Handler, *memJobRepo, *memBatchRepo) {
	t.Helper()
	jobRepo := &memJobRepo{jobs: make(map[string]*domain.ScheduledJob)}
	batchRepo := &memBatchRepo{
		batches: make(map[string]*domain.BatchJob),
		items:   make(map[string][]domain.BatchJobItem),
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC))
	jobs := scheduler.New(jobRepo, memSessionRepo{}, noopGenerator{}, noopStore{}, noopNotifier{}, clock, zerolog.Nop())
	batches := batch.New(batchRepo, noopGenerator{}, noopStore{}, noopNotifier{}, clock, zerolog.Nop())
	app := handlers.NewApp(jobs, batches, nil, zerolog.Nop())
	return httpapi.NewRouter(app), jobRepo, batchRepo
}

func doRequest(t *testing.T, h http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/v1/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestJobsRequireUserContext(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/v1/jobs", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJobsCreate(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	body := `{"prompt":"a fox in the snow","schedule_type":"daily","schedule_time":"08:00","timezone":"UTC"}`

	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", "user-1", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"next_run_at"`)
	assert.Len(t, repo.jobs, 1)
}

func TestJobsCreateRejectsBadTimezone(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	body := `{"prompt":"x","schedule_type":"daily","schedule_time":"08:00","timezone":"Nope/Nope"}`

	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", "user-1", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_timezone")
	assert.Empty(t, repo.jobs)
}

func TestJobsCreateRejectsBadSchedule(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := `{"prompt":"x","schedule_type":"weekly","schedule_time":"08:00","timezone":"UTC"}`

	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs", "user-1", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_schedule")
}

func TestJobsOwnershipScoping(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	repo.jobs["job-1"] = &domain.ScheduledJob{ID: "job-1", UserID: "user-1"}

	rec := doRequest(t, srv, http.MethodGet, "/v1/jobs/job-1", "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users' jobs look like they do not exist")

	rec = doRequest(t, srv, http.MethodGet, "/v1/jobs/job-1", "user-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobsToggle(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	repo.jobs["job-1"] = &domain.ScheduledJob{
		ID:           "job-1",
		UserID:       "user-1",
		ScheduleType: domain.ScheduleDaily,
		ScheduleTime: "08:00",
		Timezone:     "UTC",
	}

	rec := doRequest(t, srv, http.MethodPost, "/v1/jobs/job-1/toggle", "user-1", `{"enabled":true}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, repo.jobs["job-1"].IsEnabled)
	assert.NotNil(t, repo.jobs["job-1"].NextRunAt)
}

func TestJobsDelete(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	repo.jobs["job-1"] = &domain.ScheduledJob{ID: "job-1", UserID: "user-1"}

	rec := doRequest(t, srv, http.MethodDelete, "/v1/jobs/job-1", "user-1", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, repo.jobs)
}

func TestBatchesCreate(t *testing.T) {
	srv, _, repo := newTestServer(t)
	body := `{"name":"spring set","prompts":["one","two"],"auto_sync":true}`

	rec := doRequest(t, srv, http.MethodPost, "/v1/batches", "user-1", body)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total_count":2`)
	assert.Len(t, repo.batches, 1)
}

func TestBatchesCreateRejectsEmptyPrompts(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/batches", "user-1", `{"prompts":[]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "empty_batch")
}

func TestBatchesGetIncludesItems(t *testing.T) {
	srv, _, repo := newTestServer(t)
	repo.batches["b-1"] = &domain.BatchJob{ID: "b-1", UserID: "user-1", Status: domain.BatchStatusProcessing, TotalCount: 1}
	repo.items["b-1"] = []domain.BatchJobItem{{ID: "i-1", BatchID: "b-1", Prompt: "one", Status: domain.ItemStatusPending}}

	rec := doRequest(t, srv, http.MethodGet, "/v1/batches/b-1", "user-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items"`)
	assert.Contains(t, rec.Body.String(), `"one"`)
}

func TestBatchesCancelConflictsOnTerminal(t *testing.T) {
	srv, _, repo := newTestServer(t)
	repo.batches["b-1"] = &domain.BatchJob{ID: "b-1", UserID: "user-1", Status: domain.BatchStatusCompleted}

	rec := doRequest(t, srv, http.MethodPost, "/v1/batches/b-1/cancel", "user-1", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_cancellable")
}

func TestBatchesDeleteConflictsWhileActive(t *testing.T) {
	srv, _, repo := newTestServer(t)
	repo.batches["b-1"] = &domain.BatchJob{ID: "b-1", UserID: "user-1", Status: domain.BatchStatusProcessing}

	rec := doRequest(t, srv, http.MethodDelete, "/v1/batches/b-1", "user-1", "")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_deletable")
}
