package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"viba/internal/domain"
	"viba/internal/queue"
)

type jobDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	StatusText  string    `json:"status_text,omitempty"`
	Results     []string  `json:"results,omitempty"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func jobToDTO(job queue.Job) jobDTO {
	return jobDTO{
		ID:          job.ID,
		Type:        string(job.Type),
		Status:      string(job.Status),
		StatusText:  job.StatusText,
		Results:     job.Results,
		Description: job.Description,
		Error:       job.Err,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
}

// JobsList returns the caller's queued jobs, newest first.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobs := a.Queue.Snapshot(userID)
	items := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, jobToDTO(job))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// JobGet returns one job.
func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, err := a.Queue.Get(userID, chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobToDTO(job))
}

// JobRetry moves a failed job back into the queue with identical parameters.
func (a *App) JobRetry(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.Queue.Retry(userID, id); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusConflict, "conflict", err.Error())
		default:
			a.error(w, http.StatusInternalServerError, "internal", "failed to retry job")
		}
		return
	}
	job, err := a.Queue.Get(userID, id)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusAccepted, jobToDTO(job))
}

// JobDelete removes a job that is not currently processing.
func (a *App) JobDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if err := a.Queue.Remove(userID, chi.URLParam(r, "id")); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "job not found")
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusConflict, "conflict", err.Error())
		default:
			a.error(w, http.StatusInternalServerError, "internal", "failed to remove job")
		}
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "removed"})
}
