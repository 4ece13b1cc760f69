// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hitoshi/cybershield/internal/identity"
)

// アップロード先の種別
const (
	UploadBackendDisk = "disk"
	UploadBackendS3   = "s3"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity
	FirebaseProjectID string
	FirebaseCertsURL  string

	// Server
	ServerPort        string
	ServerURL         string // アップロード画像の公開URLの接頭辞
	ShutdownTimeout   time.Duration
	CORSAllowedOrigin string

	// Upload
	UploadBackend  string
	UploadDir      string
	UploadMaxBytes int64
	S3             S3Config

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitUpload  int

	// Metrics（/metrics を公開する専用リスナーのアドレス。空の場合は公開しない）
	MetricsAddr string

	// Logging
	LogLevel string
}

// S3Config はS3互換ストレージの設定。
type S3Config struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	Prefix        string
	PublicBaseURL string
	UsePathStyle  bool
}

// LoadDotEnv はpathの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	if cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.FirebaseCertsURL = getEnvString("FIREBASE_CERTS_URL", identity.DefaultCertsURL)
	cfg.ServerPort = getEnvString("SERVER_PORT", "5000")
	cfg.ServerURL = strings.TrimRight(getEnvString("SERVER_URL", "http://localhost:"+cfg.ServerPort), "/")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	cfg.UploadBackend = strings.ToLower(getEnvString("UPLOAD_BACKEND", UploadBackendDisk))
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads/ctf-images")
	cfg.UploadMaxBytes = getEnvInt64("UPLOAD_MAX_BYTES", 2<<20)
	cfg.S3 = S3Config{
		Endpoint:      os.Getenv("S3_ENDPOINT"),
		Region:        getEnvString("S3_REGION", "us-east-1"),
		Bucket:        os.Getenv("S3_BUCKET"),
		AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		SecretKey:     os.Getenv("S3_SECRET_KEY"),
		Prefix:        getEnvString("S3_PREFIX", "ctf-images"),
		PublicBaseURL: os.Getenv("S3_PUBLIC_BASE_URL"),
		UsePathStyle:  getEnvBool("S3_USE_PATH_STYLE", true),
	}

	switch cfg.UploadBackend {
	case UploadBackendDisk:
	case UploadBackendS3:
		if cfg.S3.Bucket == "" {
			return nil, errors.New("S3_BUCKET is required when UPLOAD_BACKEND=s3")
		}
	default:
		return nil, fmt.Errorf("unknown UPLOAD_BACKEND: %q", cfg.UploadBackend)
	}

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 20)
	cfg.MetricsAddr = getEnvString("METRICS_ADDR", "127.0.0.1:9090")
	if strings.EqualFold(cfg.MetricsAddr, "off") {
		cfg.MetricsAddr = ""
	}
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
