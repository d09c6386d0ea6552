package api

import (
	"net/http"

	"classdesk/internal/service"

	"github.com/go-chi/chi/v5"
)

// NotificationHandler 提供通知收件箱相关的 HTTP 端点。
type NotificationHandler struct {
	notify *service.NotifyService
}

func NewNotificationHandler(notify *service.NotifyService) *NotificationHandler {
	return &NotificationHandler{notify: notify}
}

func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.ListNotifications)
		r.Post("/{id}/read", h.MarkRead)
	})
}

// ListNotifications 返回当前用户的通知。
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.notify == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	notifications, err := h.notify.ListForUser(r.Context(), actor.ID, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: notifications})
}

// MarkRead 把通知标记为已读，只允许收件人本人操作。
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.notify == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "notification id is required")
		return
	}

	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.notify.MarkRead(r.Context(), id, actor.ID); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "read": true}})
}
