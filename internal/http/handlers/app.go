package handlers

import (
	"encoding/json"
	"net/http"

	"viba/internal/history"
	"viba/internal/infra"
	"viba/internal/middleware"
	"viba/internal/queue"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Config  *infra.Config
	Logger  infra.Logger
	Queue   *queue.Queue
	History *history.Recorder
}

func NewApp(cfg *infra.Config, logger infra.Logger, q *queue.Queue, recorder *history.Recorder) *App {
	return &App{Config: cfg, Logger: logger, Queue: q, History: recorder}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
