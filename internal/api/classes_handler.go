package api

import (
	"net/http"

	"classdesk/internal/service"

	"github.com/go-chi/chi/v5"
)

// ClassHandler 提供班级相关的 HTTP 端点。
type ClassHandler struct {
	classes *service.ClassService
}

func NewClassHandler(classes *service.ClassService) *ClassHandler {
	return &ClassHandler{classes: classes}
}

func (h *ClassHandler) RegisterRoutes(r chi.Router) {
	r.Route("/classes", func(r chi.Router) {
		r.Get("/", h.ListClasses)
		r.Post("/", h.CreateClass)
		r.Get("/{id}", h.GetClass)
		r.Get("/{id}/members", h.ListMembers)
		r.Post("/{id}/members", h.AddMember)
	})
}

type createClassRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateClass 创建班级，仅教师可用。
func (h *ClassHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.classes == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	class, err := h.classes.Create(r.Context(), actorFrom(r), req.Name, req.Description)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: class})
}

// ListClasses 返回班级列表。
func (h *ClassHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.classes == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	classes, err := h.classes.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: classes})
}

// GetClass 返回单个班级，仅成员可见。
func (h *ClassHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.classes == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	class, err := h.classes.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: class})
}

// ListMembers 返回班级成员 id，仅成员可见。
func (h *ClassHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.classes == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	// 成员校验复用 Get 的可见性规则
	if _, err := h.classes.Get(r.Context(), actorFrom(r), id); err != nil {
		respondError(w, err)
		return
	}

	members, err := h.classes.MemberIDs(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: members})
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
}

// AddMember 把用户加入班级，仅教师可用。
func (h *ClassHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.classes == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "class id is required")
		return
	}

	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.classes.AddMember(r.Context(), actorFrom(r), id, req.UserID); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: map[string]any{"class_id": id, "user_id": req.UserID}})
}
