package api

import (
	"net/http"

	"classdesk/internal/config"
	cdmiddleware "classdesk/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 汇集路由需要挂载的全部处理器。
type Handlers struct {
	Files         *FileHandler
	Classes       *ClassHandler
	Assignments   *AssignmentHandler
	Submissions   *SubmissionHandler
	Announcements *AnnouncementHandler
	Notifications *NotificationHandler

	// Blobs 仅在 local 存储驱动下设置，直接对外提供对象内容
	Blobs http.Handler
}

// NewRouter 构建 HTTP 路由，集中注册所有对外服务的端点。
func NewRouter(cfg *config.Config, handlers Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cdmiddleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(cdmiddleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	r.Use(cdmiddleware.Metrics())

	// 健康检查不需要鉴权
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Prometheus 指标端点
	r.Handle("/metrics", promhttp.Handler())

	if handlers.Blobs != nil {
		r.Handle("/blobs/*", http.StripPrefix("/blobs/", handlers.Blobs))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AuthEnabled {
			r.Use(cdmiddleware.JWTAuth(cfg.JWKSURL, cfg.JWTSecret))
		}
		registerAll(r, handlers)
	})

	return r
}

func registerAll(r chi.Router, handlers Handlers) {
	if handlers.Files != nil {
		handlers.Files.RegisterRoutes(r)
	}
	if handlers.Classes != nil {
		handlers.Classes.RegisterRoutes(r)
	}
	if handlers.Assignments != nil {
		handlers.Assignments.RegisterRoutes(r)
	}
	if handlers.Submissions != nil {
		handlers.Submissions.RegisterRoutes(r)
	}
	if handlers.Announcements != nil {
		handlers.Announcements.RegisterRoutes(r)
	}
	if handlers.Notifications != nil {
		handlers.Notifications.RegisterRoutes(r)
	}
}
