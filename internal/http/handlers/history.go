package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"viba/internal/domain"
	"viba/internal/history"
	"viba/pkg/zip"
)

type generationRecordDTO struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Status       string         `json:"status"`
	InputFiles   []string       `json:"input_files"`
	OutputFiles  []string       `json:"output_files"`
	Parameters   map[string]any `json:"parameters"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func recordDTO(record domain.GenerationRecord) generationRecordDTO {
	return generationRecordDTO{
		ID:           record.ID,
		Type:         string(record.Type),
		Status:       string(record.Status),
		InputFiles:   record.InputFiles,
		OutputFiles:  record.OutputFiles,
		Parameters:   record.Parameters,
		ErrorMessage: record.ErrorMessage,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

type createHistoryRequest struct {
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	InputFiles  []string       `json:"input_files"`
	OutputFiles []string       `json:"output_files"`
	Parameters  map[string]any `json:"parameters"`
}

// HistoryCreate records a generation submitted directly by the client, for
// flows where generation happened outside the job queue.
func (a *App) HistoryCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	record, err := a.History.Create(r.Context(), history.CreateRequest{
		Owner:      userID,
		Type:       domain.GenerationType(req.Type),
		Status:     domain.GenerationStatus(req.Status),
		Inputs:     req.InputFiles,
		Outputs:    req.OutputFiles,
		Parameters: req.Parameters,
	})
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("http: history create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record generation")
		return
	}
	a.json(w, http.StatusCreated, recordDTO(*record))
}

// HistoryList returns the caller's records, newest first, keys resolved.
func (a *App) HistoryList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	records, err := a.History.List(r.Context(), userID)
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: history list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list history")
		return
	}
	items := make([]generationRecordDTO, 0, len(records))
	for _, record := range records {
		items = append(items, recordDTO(record))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// HistoryGet returns one record with its references resolved.
func (a *App) HistoryGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	record, err := a.History.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		a.Logger.Error().Err(err).Msg("http: history get failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load generation")
		return
	}
	a.json(w, http.StatusOK, recordDTO(*record))
}

// HistoryDelete removes a record and, best effort, its stored artifacts.
func (a *App) HistoryDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if err := a.History.Delete(r.Context(), userID, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		a.Logger.Error().Err(err).Str("generation_id", id).Msg("http: history delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete generation")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// HistoryDownload streams the record's output images as a zip archive.
func (a *App) HistoryDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	payloads, err := a.History.ExportOutputs(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation not found")
			return
		}
		a.Logger.Error().Err(err).Str("generation_id", id).Msg("http: history export failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to export generation")
		return
	}
	if len(payloads) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no downloadable outputs")
		return
	}

	assets := make([]zip.Asset, 0, len(payloads))
	for _, payload := range payloads {
		assets = append(assets, zip.Asset{
			Filename: payload.Name + extensionFor(payload.MediaType),
			MIME:     payload.MediaType,
			Data:     payload.Data,
		})
	}
	archive := zip.Archive(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=generation-%s.zip", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
