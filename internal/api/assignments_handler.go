package api

import (
	"net/http"
	"strings"
	"time"

	"classdesk/internal/service"

	"github.com/go-chi/chi/v5"
)

// AssignmentHandler 提供作业相关的 HTTP 端点。
type AssignmentHandler struct {
	assignments *service.AssignmentService
}

func NewAssignmentHandler(assignments *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments}
}

func (h *AssignmentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/classes/{classID}/assignments", h.CreateAssignment)
	r.Get("/classes/{classID}/assignments", h.ListAssignments)
	r.Route("/assignments", func(r chi.Router) {
		r.Get("/{id}", h.GetAssignment)
		r.Delete("/{id}", h.DeleteAssignment)
	})
}

type createAssignmentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueAt       string `json:"due_at,omitempty"`
}

// CreateAssignment 在班级内布置作业，仅教师可用。
func (h *AssignmentHandler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.assignments == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	var req createAssignmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var dueAt *time.Time
	if raw := strings.TrimSpace(req.DueAt); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid due_at: "+err.Error())
			return
		}
		dueAt = &ts
	}

	assignment, err := h.assignments.Create(r.Context(), actorFrom(r), classID, req.Title, req.Description, dueAt)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: assignment})
}

// ListAssignments 返回班级内的作业，仅成员可见。
func (h *AssignmentHandler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.assignments == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	assignments, err := h.assignments.ListByClass(r.Context(), actorFrom(r), classID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: assignments})
}

// GetAssignment 返回单个作业。
func (h *AssignmentHandler) GetAssignment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.assignments == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "assignment id is required")
		return
	}

	assignment, err := h.assignments.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: assignment})
}

// DeleteAssignment 删除作业并级联清理其提交与文件。
func (h *AssignmentHandler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.assignments == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "assignment id is required")
		return
	}

	if err := h.assignments.Delete(r.Context(), actorFrom(r), id); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "deleted": true}})
}
