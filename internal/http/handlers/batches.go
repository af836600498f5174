package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"inkflow/internal/domain"
)

type batchCreateRequest struct {
	Name        string   `json:"name"`
	Prompts     []string `json:"prompts"`
	Size        string   `json:"size"`
	StylePreset string   `json:"style_preset"`
	AutoSync    bool     `json:"auto_sync"`
}

type batchResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	Size           string    `json:"size"`
	StylePreset    string    `json:"style_preset,omitempty"`
	AutoSync       bool      `json:"auto_sync"`
	Status         string    `json:"status"`
	TotalCount     int       `json:"total_count"`
	CompletedCount int       `json:"completed_count"`
	FailedCount    int       `json:"failed_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type batchItemResponse struct {
	ID           string     `json:"id"`
	Position     int        `json:"position"`
	Prompt       string     `json:"prompt"`
	Status       string     `json:"status"`
	ArtifactID   string     `json:"artifact_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
}

type batchDetailResponse struct {
	batchResponse
	Items []batchItemResponse `json:"items"`
}

func toBatchResponse(b *domain.BatchJob) batchResponse {
	return batchResponse{
		ID:             b.ID,
		Name:           b.Name,
		Size:           b.Size,
		StylePreset:    b.StylePreset,
		AutoSync:       b.AutoSync,
		Status:         string(b.Status),
		TotalCount:     b.TotalCount,
		CompletedCount: b.CompletedCount,
		FailedCount:    b.FailedCount,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

// BatchesCreate accepts a list of prompts and enqueues them for generation.
func (a *App) BatchesCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req batchCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	batch := &domain.BatchJob{
		UserID:      userID,
		Name:        req.Name,
		Size:        req.Size,
		StylePreset: req.StylePreset,
		AutoSync:    req.AutoSync,
	}
	created, err := a.Batches.CreateBatch(r.Context(), batch, req.Prompts)
	if err != nil {
		a.respondBatchError(w, err)
		return
	}
	a.json(w, http.StatusCreated, toBatchResponse(created))
}

// BatchesList returns the caller's batches, newest first.
func (a *App) BatchesList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	batches, err := a.Batches.ListBatches(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list batches")
		return
	}
	out := make([]batchResponse, 0, len(batches))
	for i := range batches {
		out = append(out, toBatchResponse(&batches[i]))
	}
	a.json(w, http.StatusOK, out)
}

// BatchesGet returns one batch with its items, so clients can poll progress
// while the processor works through the queue.
func (a *App) BatchesGet(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.ownedBatch(w, r)
	if !ok {
		return
	}
	items, err := a.Batches.ListItems(r.Context(), batch.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load batch items")
		return
	}
	detail := batchDetailResponse{batchResponse: toBatchResponse(batch)}
	detail.Items = make([]batchItemResponse, 0, len(items))
	for _, item := range items {
		detail.Items = append(detail.Items, batchItemResponse{
			ID:           item.ID,
			Position:     item.Position,
			Prompt:       item.Prompt,
			Status:       string(item.Status),
			ArtifactID:   item.ArtifactID,
			ErrorMessage: item.ErrorMessage,
			SyncedAt:     item.SyncedAt,
		})
	}
	a.json(w, http.StatusOK, detail)
}

// BatchesCancel stops further processing of a batch. Items already
// completed keep their artifacts.
func (a *App) BatchesCancel(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.ownedBatch(w, r)
	if !ok {
		return
	}
	updated, err := a.Batches.Cancel(r.Context(), batch.ID)
	if err != nil {
		a.respondBatchError(w, err)
		return
	}
	a.json(w, http.StatusOK, toBatchResponse(updated))
}

// BatchesDelete removes a finished batch and its items.
func (a *App) BatchesDelete(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.ownedBatch(w, r)
	if !ok {
		return
	}
	if err := a.Batches.Delete(r.Context(), batch.ID); err != nil {
		a.respondBatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ownedBatch(w http.ResponseWriter, r *http.Request) (*domain.BatchJob, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	batch, err := a.Batches.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "batch not found")
		} else {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load batch")
		}
		return nil, false
	}
	if batch.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
		return nil, false
	}
	return batch, true
}

func (a *App) respondBatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyBatch):
		a.error(w, http.StatusBadRequest, "empty_batch", err.Error())
	case errors.Is(err, domain.ErrBatchTooLarge):
		a.error(w, http.StatusBadRequest, "batch_too_large", err.Error())
	case errors.Is(err, domain.ErrBatchNotCancellable):
		a.error(w, http.StatusConflict, "not_cancellable", err.Error())
	case errors.Is(err, domain.ErrBatchNotDeletable):
		a.error(w, http.StatusConflict, "not_deletable", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "batch not found")
	default:
		a.error(w, http.StatusInternalServerError, "internal", "batch operation failed")
	}
}
