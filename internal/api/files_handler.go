package api

import (
	"net/http"
	"strings"
	"time"

	"classdesk/internal/repository"
	"classdesk/internal/service"

	"github.com/go-chi/chi/v5"
)

// FileHandler 提供上传槽位与文件元数据相关的 HTTP 端点。
type FileHandler struct {
	uploads  *service.UploadService
	maxBytes int64
}

func NewFileHandler(uploads *service.UploadService, maxBytes int64) *FileHandler {
	if maxBytes <= 0 {
		maxBytes = 100 * 1024 * 1024
	}
	return &FileHandler{uploads: uploads, maxBytes: maxBytes}
}

func (h *FileHandler) RegisterRoutes(r chi.Router) {
	r.Route("/files", func(r chi.Router) {
		r.Get("/", h.ListFiles)
		r.Post("/slots", h.RequestSlot)
		r.Post("/slots/batch", h.RequestSlots)
		r.Get("/{id}", h.GetFile)
		r.Patch("/{id}/progress", h.ReportProgress)
		r.Post("/{id}/confirm", h.Confirm)
		r.Put("/{id}/content", h.ReceiveContent)
		r.Get("/{id}/download-url", h.DownloadURL)
	})
}

type slotRequest struct {
	DisplayName string `json:"display_name"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	PathPrefix  string `json:"path_prefix,omitempty"`

	AssignmentID   *string `json:"assignment_id,omitempty"`
	SubmissionID   *string `json:"submission_id,omitempty"`
	AnnotatesID    *string `json:"annotates_id,omitempty"`
	AnnouncementID *string `json:"announcement_id,omitempty"`
	FolderID       *string `json:"folder_id,omitempty"`
}

func (req slotRequest) toInput() service.SlotInput {
	return service.SlotInput{
		DisplayName:    req.DisplayName,
		MimeType:       req.MimeType,
		SizeBytes:      req.SizeBytes,
		PathPrefix:     req.PathPrefix,
		AssignmentID:   req.AssignmentID,
		SubmissionID:   req.SubmissionID,
		AnnotatesID:    req.AnnotatesID,
		AnnouncementID: req.AnnouncementID,
		FolderID:       req.FolderID,
	}
}

// RequestSlot 为单个文件申请上传槽位。
func (h *FileHandler) RequestSlot(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	var req slotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	actor := actorFrom(r)
	slot, err := h.uploads.RequestSlot(r.Context(), req.toInput(), actor.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: slot})
}

type slotBatchRequest struct {
	Files []slotRequest `json:"files"`
}

// RequestSlots 为一批文件申请上传槽位，整批校验通过才创建。
func (h *FileHandler) RequestSlots(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	var req slotBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Files) == 0 {
		writeError(w, http.StatusBadRequest, "files must not be empty")
		return
	}

	inputs := make([]service.SlotInput, 0, len(req.Files))
	for _, f := range req.Files {
		inputs = append(inputs, f.toInput())
	}

	actor := actorFrom(r)
	slots, err := h.uploads.RequestSlots(r.Context(), inputs, actor.ID)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{Data: slots})
}

// ListFiles 按状态与槽位过期时间检索文件元数据，仅教师可用。
// 用于排查超过槽位有效期仍未完成的上传。
func (h *FileHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	actor := actorFrom(r)
	if actor.ID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if !actor.Teacher {
		writeError(w, http.StatusForbidden, "only teachers can list files")
		return
	}

	params := repository.ListFilesParams{
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		params.Statuses = append(params.Statuses, repository.FileStatus(trimmed))
	}
	if raw := r.URL.Query().Get("expired_before"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expired_before: "+err.Error())
			return
		}
		params.ExpiredBefore = &ts
	}

	files, err := h.uploads.ListFiles(r.Context(), params)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: files})
}

// GetFile 返回单个文件的元数据，仅属主或教师可见。
func (h *FileHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	record, err := h.uploads.GetFile(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: record})
}

type progressRequest struct {
	Progress int `json:"progress"`
}

// ReportProgress 更新上传进度，completed 记录不受影响。
func (h *FileHandler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	var req progressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	record, err := h.uploads.ReportProgress(r.Context(), actorFrom(r), id, req.Progress)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: record})
}

type confirmRequest struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Confirm 记录客户端上报的上传结果。
func (h *FileHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	record, err := h.uploads.Confirm(r.Context(), actorFrom(r), id, req.Success, req.ErrorMessage)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: record})
}

// ReceiveContent 接收槽位 URL 指向的文件字节并写入存储。
func (h *FileHandler) ReceiveContent(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	defer r.Body.Close()

	if err := h.uploads.ReceiveContent(r.Context(), id, session, r.Body, r.ContentLength); err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]any{"id": id, "received": true}})
}

// DownloadURL 为已完成的文件签发短期下载地址。
func (h *FileHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.uploads == nil {
		writeError(w, http.StatusInternalServerError, "handler not initialized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "file id is required")
		return
	}

	url, err := h.uploads.DownloadURL(r.Context(), actorFrom(r), id)
	if err != nil {
		respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Data: map[string]string{"url": url}})
}
