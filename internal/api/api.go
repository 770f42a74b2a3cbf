// Package api exposes the guidance service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-guidance/internal/guidance"
	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

const maxBodyBytes = 1 << 20

var errMalformed = errors.New("malformed request body")

// Config holds dependencies for the API handler.
type Config struct {
	Service  *guidance.Service
	Location *time.Location   // time zone used when a request names no week (default UTC)
	Now      func() time.Time // default time.Now
}

// Handler serves the /v1 API.
type Handler struct {
	svc *guidance.Service
	loc *time.Location
	now func() time.Time
}

func New(cfg Config) *Handler {
	h := &Handler{svc: cfg.Service, loc: cfg.Location, now: cfg.Now}
	if h.svc == nil {
		h.svc = guidance.NewService(guidance.ServiceConfig{})
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/subjects/{subjectID}/topics", h.handleListTopics)
	mux.HandleFunc("PUT /v1/topics/{topicID}", h.handlePutTopic)

	mux.HandleFunc("GET /v1/students/{studentID}/slots", h.handleListSlots)
	mux.HandleFunc("POST /v1/students/{studentID}/slots", h.handleAddSlot)
	mux.HandleFunc("POST /v1/students/{studentID}/slots/import", h.handleImportSlots)
	mux.HandleFunc("DELETE /v1/students/{studentID}/slots/{slotID}", h.handleRemoveSlot)

	mux.HandleFunc("GET /v1/students/{studentID}/progress", h.handleListProgress)
	mux.HandleFunc("POST /v1/students/{studentID}/progress/{topicID}/study", h.handleStudy)
	mux.HandleFunc("POST /v1/students/{studentID}/progress/{topicID}/reset", h.handleReset)
	mux.HandleFunc("POST /v1/students/{studentID}/progress/{topicID}/complete", h.handleComplete)

	mux.HandleFunc("GET /v1/students/{studentID}/plan", h.handleGetPlan)
	mux.HandleFunc("GET /v1/students/{studentID}/plan.xlsx", h.handleGetPlanXLSX)
	mux.HandleFunc("POST /v1/students/{studentID}/plan/commit", h.handleCommitPlan)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, errMalformed):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, studyplan.ErrInvalidInput):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, guidance.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, guidance.ErrPlanChanged):
		status, msg = http.StatusPreconditionFailed, err.Error()
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode validates the request body against schema and unmarshals it into dst.
func decode(r *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("%w: body exceeds %d bytes", errMalformed, maxBodyBytes)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%w: invalid JSON", errMalformed)
	}
	if err := validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// weekStart resolves the ?week= query parameter to the Monday of that week.
// Without it the current week in the handler's time zone is used.
func (h *Handler) weekStart(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("week"))
	if raw == "" {
		y, m, d := h.now().In(h.loc).Date()
		return studyplan.WeekStartOf(time.Date(y, m, d, 0, 0, 0, 0, time.UTC)), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: week must be YYYY-MM-DD, got %q", studyplan.ErrInvalidInput, raw)
	}
	return studyplan.WeekStartOf(day), nil
}

// etag quotes a plan fingerprint for use as an entity tag.
func etag(fingerprint string) string {
	return `"` + fingerprint + `"`
}

// parseETag strips quotes and a weak prefix from an If-Match or
// If-None-Match value.
func parseETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}
