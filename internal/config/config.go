package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string
	PublicBaseURL      string // 对外可见的服务地址，用于拼接上传回传 URL
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	DBHost             string
	DBPort             int
	DBUser             string
	DBPassword         string
	DBName             string
	DBSSLMode          string
	// 鉴权配置
	AuthEnabled bool   // 是否启用 JWT 鉴权
	JWTSecret   string // HMAC 密钥，为空则只走 JWKS
	JWKSURL     string // 远程公钥端点，可选
	// 存储配置
	StorageDriver string // "local" 或 "s3"
	StorageDir    string // local 驱动的根目录
	S3Endpoint    string // S3/MinIO 端点，不含协议
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3Region      string
	S3UseSSL      bool // 是否使用 HTTPS
	S3PathStyle   bool // 是否使用路径风格访问（MinIO 需要设为 true）
	// 上传生命周期配置
	UploadSlotTTL  time.Duration // 上传槽位有效期
	SignedURLTTL   time.Duration // 签名 URL 有效期，应短于槽位有效期
	MaxUploadBytes int64
	// 缩略图配置
	ThumbnailMaxPx   int // 缩略图外接框边长（像素）
	ThumbnailQuality int // JPEG 压缩质量
	// 批量写入与缓存配置
	BulkInsertBatch int           // 批量插入的分片大小
	BulkInsertPause time.Duration // 分片之间的停顿
	CacheTTL        time.Duration // 旁路缓存过期时间
	RedisAddr       string        // 为空则禁用缓存
	RedisPassword   string
	RedisDB         int
}

// Load 从环境变量加载配置，并提供默认值。
func Load() (*Config, error) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	baseURL := envOrDefault("PUBLIC_BASE_URL", "http://localhost:"+port)

	corsOrigins := parseList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"http://localhost:5173"}
	}

	rateLimitRequests, err := parseIntEnv("RATE_LIMIT_REQUESTS", 120)
	if err != nil {
		return nil, err
	}

	rateLimitWindow, err := parseDurationEnv("RATE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	dbPort, err := parseIntEnv("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	slotTTL, err := parseDurationEnv("UPLOAD_SLOT_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	signedTTL, err := parseDurationEnv("SIGNED_URL_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	thumbPx, err := parseIntEnv("THUMBNAIL_MAX_PX", 200)
	if err != nil {
		return nil, err
	}

	thumbQuality, err := parseIntEnv("THUMBNAIL_JPEG_QUALITY", 80)
	if err != nil {
		return nil, err
	}

	bulkBatch, err := parseIntEnv("BULK_INSERT_BATCH", 10)
	if err != nil {
		return nil, err
	}

	bulkPause, err := parseDurationEnv("BULK_INSERT_PAUSE", 50*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cacheTTL, err := parseDurationEnv("CACHE_TTL", 600*time.Second)
	if err != nil {
		return nil, err
	}

	redisDB, err := parseIntEnv("REDIS_DB", 1)
	if err != nil {
		return nil, err
	}

	maxUpload, err := parseIntEnv("MAX_UPLOAD_MB", 100)
	if err != nil {
		return nil, err
	}

	storageDriver := envOrDefault("STORAGE_DRIVER", "local")
	storageDir := envOrDefault("STORAGE_DIR", "./data")
	if storageDriver == "local" {
		if err := ensureDir(storageDir); err != nil {
			return nil, fmt.Errorf("确保存储目录失败: %w", err)
		}
	}

	return &Config{
		HTTPPort:           port,
		PublicBaseURL:      strings.TrimRight(baseURL, "/"),
		CORSAllowedOrigins: corsOrigins,
		RateLimitRequests:  rateLimitRequests,
		RateLimitWindow:    rateLimitWindow,
		DBHost:             envOrDefault("DB_HOST", "127.0.0.1"),
		DBPort:             dbPort,
		DBUser:             envOrDefault("DB_USER", "classdesk"),
		DBPassword:         envOrDefault("DB_PASSWORD", "classdesk"),
		DBName:             envOrDefault("DB_NAME", "classdesk"),
		DBSSLMode:          envOrDefault("DB_SSL_MODE", "disable"),
		AuthEnabled:        parseBoolEnv("AUTH_ENABLED", true),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		JWKSURL:            os.Getenv("JWKS_URL"),
		StorageDriver:      storageDriver,
		StorageDir:         storageDir,
		S3Endpoint:         envOrDefault("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:        envOrDefault("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        envOrDefault("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           envOrDefault("S3_BUCKET", "classdesk"),
		S3Region:           envOrDefault("S3_REGION", "us-east-1"),
		S3UseSSL:           parseBoolEnv("S3_USE_SSL", false),
		S3PathStyle:        parseBoolEnv("S3_PATH_STYLE", true),
		UploadSlotTTL:      slotTTL,
		SignedURLTTL:       signedTTL,
		MaxUploadBytes:     int64(maxUpload) * 1024 * 1024,
		ThumbnailMaxPx:     thumbPx,
		ThumbnailQuality:   thumbQuality,
		BulkInsertBatch:    bulkBatch,
		BulkInsertPause:    bulkPause,
		CacheTTL:           cacheTTL,
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
	}, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	if value <= 0 {
		return defaultValue, nil
	}
	return value, nil
}

func parseBoolEnv(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	lower := strings.ToLower(raw)
	return lower == "true" || lower == "1" || lower == "yes"
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
