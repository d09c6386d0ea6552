package api

import (
	"net/http"

	"classdesk/internal/service"

	"github.com/go-chi/chi/v5"
)

// AnnouncementHandler 提供公告相关的 HTTP 端点。
type AnnouncementHandler struct {
	announcements *service.AnnouncementService
}

func NewAnnouncementHandler(announcements *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

func (h *AnnouncementHandler) RegisterRoutes(r chi.Router) {
	r.Post("/classes/{classID}/announcements", h.CreateAnnouncement)
	r.Get("/classes/{classID}/announcements", h.ListAnnouncements)
	r.Delete("/announcements/{id}", h.DeleteAnnouncement)
}

type createAnnouncementRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// CreateAnnouncement 发布班级公告并通知成员，仅教师可用。
func (h *AnnouncementHandler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.announcements == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	var req createAnnouncementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	announcement, err := h.announcements.Create(r.Context(), actorFrom(r), classID, req.Title, req.Body)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: announcement})
}

// ListAnnouncements 返回班级公告，仅成员可见。
func (h *AnnouncementHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.announcements == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	classID := chi.URLParam(r, "classID")
	if classID == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	announcements, err := h.announcements.ListByClass(r.Context(), actorFrom(r), classID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: announcements})
}

// DeleteAnnouncement 删除公告并级联清理其附件。
func (h *AnnouncementHandler) DeleteAnnouncement(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.announcements == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "announcement id is required")
		return
	}

	if err := h.announcements.Delete(r.Context(), actorFrom(r), id); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "deleted": true}})
}
