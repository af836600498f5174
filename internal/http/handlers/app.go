package handlers

import (
	"encoding/json"
	"net/http"

	"inkflow/internal/batch"
	"inkflow/internal/infra"
	"inkflow/internal/infra/geoip"
	"inkflow/internal/scheduler"
)

// App bundles the services the HTTP handlers dispatch into.
type App struct {
	Jobs    *scheduler.Service
	Batches *batch.Processor
	GeoIP   geoip.TimezoneResolver
	Logger  infra.Logger
}

// NewApp creates the handler container.
func NewApp(jobs *scheduler.Service, batches *batch.Processor, resolver geoip.TimezoneResolver, logger infra.Logger) *App {
	return &App{Jobs: jobs, Batches: batches, GeoIP: resolver, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, slug, msg string) {
	a.json(w, code, errorResponse{Error: slug, Message: msg})
}

// currentUserID extracts the authenticated user set by the auth layer in
// front of this service. Authentication itself is out of scope here.
func (a *App) currentUserID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
