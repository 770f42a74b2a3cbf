package api

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-guidance/internal/export"
	"github.com/p-n-ai/pai-guidance/internal/studyplan"
)

const (
	maxImportBytes = 5 << 20
	xlsxType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type planResponse struct {
	studyplan.Plan
	Fingerprint string `json:"fingerprint"`
}

func (h *Handler) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := h.svc.OrderedTopics(r.Context(), r.PathValue("subjectID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (h *Handler) handlePutTopic(w http.ResponseWriter, r *http.Request) {
	var topic studyplan.Topic
	if err := decode(r, topicSchema, &topic); err != nil {
		writeError(w, r, err)
		return
	}
	id := r.PathValue("topicID")
	if topic.ID != "" && topic.ID != id {
		writeError(w, r, fmt.Errorf("%w: body id %q does not match path id %q", studyplan.ErrInvalidInput, topic.ID, id))
		return
	}
	topic.ID = id
	if err := h.svc.UpsertTopic(r.Context(), topic); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topic)
}

func (h *Handler) handleListSlots(w http.ResponseWriter, r *http.Request) {
	slots, err := h.svc.Slots(r.Context(), r.PathValue("studentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (h *Handler) handleAddSlot(w http.ResponseWriter, r *http.Request) {
	var slot studyplan.WeeklySlot
	if err := decode(r, slotSchema, &slot); err != nil {
		writeError(w, r, err)
		return
	}
	stored, err := h.svc.AddSlot(r.Context(), r.PathValue("studentID"), slot)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) handleImportSlots(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	slots, err := export.ReadSlots(http.MaxBytesReader(w, r.Body, maxImportBytes), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	added, err := h.svc.ImportSlots(r.Context(), studentID, slots)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"slots": added})
}

func (h *Handler) handleRemoveSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveSlot(r.Context(), r.PathValue("studentID"), r.PathValue("slotID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListProgress(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Progress(r.Context(), r.PathValue("studentID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": rows})
}

func (h *Handler) handleStudy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Minutes int `json:"minutes"`
	}
	if err := decode(r, studySchema, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.RecordStudy(r.Context(), r.PathValue("studentID"), r.PathValue("topicID"), body.Minutes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.ResetTopic(r.Context(), r.PathValue("studentID"), r.PathValue("topicID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Done bool `json:"done"`
	}
	if err := decode(r, completeSchema, &body); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.svc.ForceComplete(r.Context(), r.PathValue("studentID"), r.PathValue("topicID"), body.Done)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// plan bootstraps the student's ledger and plans the requested week.
func (h *Handler) plan(r *http.Request) (studyplan.Plan, error) {
	studentID := r.PathValue("studentID")
	week, err := h.weekStart(r)
	if err != nil {
		return studyplan.Plan{}, err
	}
	if _, err := h.svc.Bootstrap(r.Context(), studentID); err != nil {
		return studyplan.Plan{}, err
	}
	return h.svc.PlanWeek(r.Context(), studentID, week)
}

func (h *Handler) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plan(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fp := plan.Fingerprint()
	w.Header().Set("ETag", etag(fp))
	if inm := r.Header.Get("If-None-Match"); inm != "" && parseETag(inm) == fp {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: plan, Fingerprint: fp})
}

func (h *Handler) handleGetPlanXLSX(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plan(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	names, err := h.names(r, plan)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WritePlan(&buf, plan, names); err != nil {
		writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("plan-%s-%s.xlsx", plan.StudentID, plan.WeekStart.Format(time.DateOnly))
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("ETag", etag(plan.Fingerprint()))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, &buf); err != nil {
		slog.Warn("failed to write workbook", "student_id", plan.StudentID, "error", err)
	}
}

// names collects display names for the topics a plan uses.
func (h *Handler) names(r *http.Request, plan studyplan.Plan) (export.Names, error) {
	seen := map[string]bool{}
	var topics []studyplan.Topic
	for _, e := range plan.Entries {
		if seen[e.SubjectID] {
			continue
		}
		seen[e.SubjectID] = true
		subjectTopics, err := h.svc.OrderedTopics(r.Context(), e.SubjectID)
		if err != nil {
			return export.Names{}, err
		}
		topics = append(topics, subjectTopics...)
	}
	return export.NamesFromTopics(topics), nil
}

func (h *Handler) handleCommitPlan(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("studentID")
	week, err := h.weekStart(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.svc.Bootstrap(r.Context(), studentID); err != nil {
		writeError(w, r, err)
		return
	}
	expected := parseETag(r.Header.Get("If-Match"))
	if expected == "*" {
		expected = ""
	}
	plan, err := h.svc.CommitWeek(r.Context(), studentID, week, expected)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fp := plan.Fingerprint()
	w.Header().Set("ETag", etag(fp))
	writeJSON(w, http.StatusOK, planResponse{Plan: plan, Fingerprint: fp})
}
