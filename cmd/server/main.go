package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classdesk/internal/api"
	"classdesk/internal/config"
	"classdesk/internal/database"
	"classdesk/internal/logging"
	"classdesk/internal/migrations"
	"classdesk/internal/repository/postgres"
	"classdesk/internal/service"
	"classdesk/internal/storage"
	locals "classdesk/internal/storage/local"
	"classdesk/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New()
	logger.Info("configuration loaded", "port", cfg.HTTPPort, "storage_driver", cfg.StorageDriver)

	ctx := context.Background()

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.NewRunner(db, logger).Apply(ctx); err != nil {
		logger.Error("apply migrations", "error", err)
		os.Exit(1)
	}

	redisClient, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var store storage.BlobStore
	var blobFS http.Handler
	switch cfg.StorageDriver {
	case "s3":
		s3Store, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			logger.Error("init s3 storage", "error", err)
			os.Exit(1)
		}
		store = s3Store
	default:
		store = locals.New(cfg.StorageDir, cfg.PublicBaseURL+"/blobs")
		blobFS = http.FileServer(http.Dir(cfg.StorageDir))
	}

	fileRepo := postgres.NewFileRepository(db)
	classRepo := postgres.NewClassRepository(db)
	assignmentRepo := postgres.NewAssignmentRepository(db)
	submissionRepo := postgres.NewSubmissionRepository(db)
	announcementRepo := postgres.NewAnnouncementRepository(db)
	notificationRepo := postgres.NewNotificationRepository(db)

	var cache service.Cache
	if redisClient != nil {
		cache = service.NewRedisCache(redisClient, cfg.CacheTTL, logger)
	}

	thumbnails := service.NewThumbnailService(fileRepo, store, logger, service.ThumbnailConfig{
		MaxPx:        cfg.ThumbnailMaxPx,
		JPEGQuality:  cfg.ThumbnailQuality,
		SignedURLTTL: cfg.SignedURLTTL,
	})
	uploads := service.NewUploadService(fileRepo, store, thumbnails, logger, service.UploadConfig{
		PublicBaseURL: cfg.PublicBaseURL,
		SlotTTL:       cfg.UploadSlotTTL,
		SignedURLTTL:  cfg.SignedURLTTL,
	})
	cascade := service.NewCascadeService(fileRepo, submissionRepo, store, logger)
	notify := service.NewNotifyService(notificationRepo, logger, cfg.BulkInsertBatch, cfg.BulkInsertPause)
	classes := service.NewClassService(classRepo, cache, logger)
	assignments := service.NewAssignmentService(assignmentRepo, classes, cascade, notify, cache, logger)
	submissions := service.NewSubmissionService(submissionRepo, assignmentRepo, classes, cascade, notify, logger)
	announcements := service.NewAnnouncementService(announcementRepo, classes, cascade, notify, logger)

	router := api.NewRouter(cfg, api.Handlers{
		Files:         api.NewFileHandler(uploads, cfg.MaxUploadBytes),
		Classes:       api.NewClassHandler(classes),
		Assignments:   api.NewAssignmentHandler(assignments),
		Submissions:   api.NewSubmissionHandler(submissions),
		Announcements: api.NewAnnouncementHandler(announcements),
		Notifications: api.NewNotificationHandler(notify),
		Blobs:         blobFS,
	})

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		// 上传内容走同一端口，不能设置整体读超时
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		Handler:           router,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
