package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"viba/internal/domain"
	"viba/internal/history"
	"viba/internal/queue"
)

type modelConfigDTO struct {
	TextModel  string `json:"textModel"`
	ImageModel string `json:"imageModel"`
}

type derivationsRequest struct {
	Image         string          `json:"image"`
	MediaType     string          `json:"mediaType"`
	Intensity     int             `json:"intensity"`
	SkinTone      string          `json:"skinTone"`
	ModelConfig   *modelConfigDTO `json:"modelConfig"`
	SaveToHistory *bool           `json:"saveToHistory"`
}

type avatarFileDTO struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
}

type avatarRequest struct {
	Files         []avatarFileDTO `json:"files"`
	Model         string          `json:"model"`
	SaveToHistory *bool           `json:"saveToHistory"`
}

type tryOnRequest struct {
	ModelImage       string `json:"modelImage"`
	ModelMediaType   string `json:"modelMediaType"`
	GarmentImage     string `json:"garmentImage"`
	GarmentMediaType string `json:"garmentMediaType"`
	Model            string `json:"model"`
	SaveToHistory    *bool  `json:"saveToHistory"`
}

type swapRequest struct {
	SourceImage     string `json:"sourceImage"`
	SourceMediaType string `json:"sourceMediaType"`
	SceneImage      string `json:"sceneImage"`
	SceneMediaType  string `json:"sceneMediaType"`
	Model           string `json:"model"`
	SaveToHistory   *bool  `json:"saveToHistory"`
}

// GenerateDerivations runs the two-stage variant recipe and responds with 1-4
// images plus the derived description.
func (a *App) GenerateDerivations(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req derivationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "image required")
		return
	}

	params := map[string]any{}
	if req.Intensity != 0 {
		params["intensity"] = req.Intensity
	}
	if req.SkinTone != "" {
		params["skinTone"] = req.SkinTone
	}
	if req.ModelConfig != nil {
		params["textModel"] = req.ModelConfig.TextModel
		params["imageModel"] = req.ModelConfig.ImageModel
	}

	job, ok := a.runJob(w, r, userID, domain.GenerationTypeDerivation,
		[]string{inlineRef(req.Image, req.MediaType)}, params)
	if !ok {
		return
	}

	images := job.Results
	generationID := ""
	if shouldSave(req.SaveToHistory) {
		if record := a.persist(r.Context(), userID, job, params); record != nil {
			generationID = record.ID
			images = a.History.Resolve(r.Context(), record.OutputFiles)
		}
	}

	resp := map[string]any{"images": images, "description": job.Description}
	if generationID != "" {
		resp["generationId"] = generationID
	}
	a.json(w, http.StatusOK, resp)
}

// TrainAvatar synthesizes a studio portrait from 1-3 reference images.
func (a *App) TrainAvatar(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req avatarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Files) < 1 || len(req.Files) > 3 {
		a.error(w, http.StatusBadRequest, "bad_request", "between 1 and 3 reference files required")
		return
	}
	inputs := make([]string, 0, len(req.Files))
	for _, file := range req.Files {
		if strings.TrimSpace(file.Image) == "" {
			a.error(w, http.StatusBadRequest, "bad_request", "empty reference file")
			return
		}
		inputs = append(inputs, inlineRef(file.Image, file.MediaType))
	}

	a.runSingleImageJob(w, r, userID, domain.GenerationTypeAvatar, inputs, req.Model, req.SaveToHistory)
}

// TryOn composes a person image with a garment image.
func (a *App) TryOn(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req tryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.ModelImage) == "" || strings.TrimSpace(req.GarmentImage) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "modelImage and garmentImage required")
		return
	}

	inputs := []string{
		inlineRef(req.ModelImage, req.ModelMediaType),
		inlineRef(req.GarmentImage, req.GarmentMediaType),
	}
	a.runSingleImageJob(w, r, userID, domain.GenerationTypeTryOn, inputs, req.Model, req.SaveToHistory)
}

// Swap composes a subject image into a scene image.
func (a *App) Swap(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.SourceImage) == "" || strings.TrimSpace(req.SceneImage) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "sourceImage and sceneImage required")
		return
	}

	inputs := []string{
		inlineRef(req.SourceImage, req.SourceMediaType),
		inlineRef(req.SceneImage, req.SceneMediaType),
	}
	a.runSingleImageJob(w, r, userID, domain.GenerationTypeSwap, inputs, req.Model, req.SaveToHistory)
}

// runSingleImageJob covers the three recipes that return exactly one image.
func (a *App) runSingleImageJob(w http.ResponseWriter, r *http.Request, userID string, jobType domain.GenerationType, inputs []string, model string, save *bool) {
	params := map[string]any{}
	if model != "" {
		params["model"] = model
	}

	job, ok := a.runJob(w, r, userID, jobType, inputs, params)
	if !ok {
		return
	}
	if len(job.Results) == 0 {
		a.error(w, http.StatusBadGateway, "upstream", "no image generated")
		return
	}

	image := job.Results[0]
	generationID := ""
	if shouldSave(save) {
		if record := a.persist(r.Context(), userID, job, params); record != nil {
			generationID = record.ID
			if resolved := a.History.Resolve(r.Context(), record.OutputFiles); len(resolved) > 0 {
				image = resolved[0]
			}
		}
	}

	resp := map[string]any{"image": image}
	if generationID != "" {
		resp["generationId"] = generationID
	}
	a.json(w, http.StatusOK, resp)
}

// runJob submits the job and blocks until it reaches a terminal state. On
// failure it writes the mapped error response and reports false.
func (a *App) runJob(w http.ResponseWriter, r *http.Request, userID string, jobType domain.GenerationType, inputs []string, params map[string]any) (queue.Job, bool) {
	id := a.Queue.Submit(userID, jobType, inputs, params)
	job, err := a.Queue.Wait(r.Context(), userID, id)
	if err != nil {
		// Client went away while waiting; nothing sensible to write.
		a.Logger.Warn().Err(err).Str("job_id", id).Msg("http: wait aborted")
		a.error(w, http.StatusBadGateway, "aborted", "generation aborted")
		return queue.Job{}, false
	}
	if job.Status != queue.StatusCompleted {
		a.generationError(w, job.Cause, job.Err)
		return queue.Job{}, false
	}
	return job, true
}

// persist records a completed job, logging instead of failing the response
// when history cannot be written.
func (a *App) persist(ctx context.Context, userID string, job queue.Job, params map[string]any) *domain.GenerationRecord {
	record, err := a.History.Create(ctx, history.CreateRequest{
		Owner:      userID,
		Type:       job.Type,
		Inputs:     job.Inputs,
		Outputs:    job.Results,
		Parameters: params,
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("http: history persist failed")
		return nil
	}
	return record
}

func (a *App) generationError(w http.ResponseWriter, cause error, message string) {
	if message == "" {
		message = "generation failed"
	}
	switch {
	case errors.Is(cause, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", message)
	case errors.Is(cause, domain.ErrQuotaExceeded):
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", message)
	case errors.Is(cause, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", message)
	default:
		a.error(w, http.StatusBadGateway, "upstream", message)
	}
}

// inlineRef normalizes a request image into a self-describing inline payload.
// Clients may send a full data URL or bare base64 plus a media type.
func inlineRef(image, mediaType string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + image
}

func shouldSave(flag *bool) bool {
	return flag == nil || *flag
}
