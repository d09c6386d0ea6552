package api

import (
	"net/http"
	"strings"

	"classdesk/internal/service"

	"github.com/go-chi/chi/v5"
)

// SubmissionHandler 提供提交相关的 HTTP 端点。
type SubmissionHandler struct {
	submissions *service.SubmissionService
}

func NewSubmissionHandler(submissions *service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions}
}

func (h *SubmissionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/assignments/{assignmentID}/submissions", h.CreateSubmission)
	r.Get("/assignments/{assignmentID}/submissions", h.ListSubmissions)
	r.Route("/submissions", func(r chi.Router) {
		r.Get("/{id}", h.GetSubmission)
		r.Post("/{id}/grade", h.GradeSubmission)
		r.Delete("/{id}", h.DeleteSubmission)
	})
}

type createSubmissionRequest struct {
	Body string `json:"body"`
}

// CreateSubmission 学生对作业发起提交。
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.submissions == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	assignmentID := chi.URLParam(r, "assignmentID")
	if assignmentID == "" {
		writeError(w, http.StatusBadRequest, "assignment id is required")
		return
	}

	var req createSubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	submission, err := h.submissions.Create(r.Context(), actorFrom(r), assignmentID, req.Body)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: submission})
}

// ListSubmissions 返回作业下的全部提交，仅教师可用。
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.submissions == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	assignmentID := chi.URLParam(r, "assignmentID")
	if assignmentID == "" {
		writeError(w, http.StatusBadRequest, "assignment id is required")
		return
	}

	submissions, err := h.submissions.ListByAssignment(r.Context(), actorFrom(r), assignmentID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: submissions})
}

// GetSubmission 返回单个提交，仅提交者与教师可见。
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.submissions == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "submission id is required")
		return
	}

	submission, err := h.submissions.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: submission})
}

type gradeRequest struct {
	Grade    string `json:"grade"`
	Feedback string `json:"feedback,omitempty"`
}

// GradeSubmission 录入成绩并通知学生，仅教师可用。
func (h *SubmissionHandler) GradeSubmission(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.submissions == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "submission id is required")
		return
	}

	var req gradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var feedback *string
	if value := strings.TrimSpace(req.Feedback); value != "" {
		feedback = &value
	}

	submission, err := h.submissions.Grade(r.Context(), actorFrom(r), id, req.Grade, feedback)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: submission})
}

// DeleteSubmission 删除提交并级联清理其文件。
func (h *SubmissionHandler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.submissions == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "submission id is required")
		return
	}

	if err := h.submissions.Delete(r.Context(), actorFrom(r), id); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "deleted": true}})
}
