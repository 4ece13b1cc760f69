// Package app は設定読み込み、依存関係のワイヤリング、サーバーの起動を担う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/cybershield/internal/article"
	"github.com/hitoshi/cybershield/internal/auth"
	"github.com/hitoshi/cybershield/internal/config"
	"github.com/hitoshi/cybershield/internal/database"
	"github.com/hitoshi/cybershield/internal/handler"
	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/logger"
	"github.com/hitoshi/cybershield/internal/markdown"
	"github.com/hitoshi/cybershield/internal/metrics"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/repository"
	"github.com/hitoshi/cybershield/internal/topic"
	"github.com/hitoshi/cybershield/internal/upload"
	"github.com/hitoshi/cybershield/internal/user"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に解放すべきリソースを保持する。
// Metricsは公開APIとは別のリスナーで配信する。
type Server struct {
	Handler     http.Handler
	Metrics     http.Handler
	RateLimiter *middleware.RateLimiter
	Registry    *prometheus.Registry
}

// Close はバックグラウンドのgoroutineを停止する。
func (s *Server) Close() {
	s.RateLimiter.Stop()
}

// Build はDB接続を受け取り、リポジトリ、サービス、ミドルウェア、ルーターを構築する。
// DBへの接続確認は行わない。
func Build(ctx context.Context, cfg *config.Config, db *sql.DB) (*Server, error) {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	topicRepo := repository.NewPostgresTopicRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)

	// 3. 認証
	certs := identity.NewGoogleCertSource(cfg.FirebaseCertsURL, &http.Client{Timeout: 10 * time.Second})
	verifier := identity.NewFirebaseVerifier(cfg.FirebaseProjectID, certs)

	// 4. ドメインサービス
	articleService := article.NewService(articleRepo, topicRepo,
		article.WithRenderer(markdown.NewRenderer()),
		article.WithTransitionObserver(collector),
	)

	// 5. アップロード先
	sink, uploadDir, err := newUploadSink(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 6. ルーター
	limiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitUpload))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Verifier:          verifier,
		Users:             userRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Metrics:           collector,

		DB:        db,
		UploadDir: uploadDir,

		AuthService:      auth.NewService(userRepo),
		TopicService:     topic.NewService(topicRepo),
		ArticleService:   articleService,
		PublishedService: articleService,
		ReviewService:    articleService,
		UserService:      user.NewService(userRepo),
		UploadService:    upload.NewService(sink, cfg.UploadMaxBytes, collector),
	})

	return &Server{
		Handler:     router,
		Metrics:     newMetricsRouter(metrics.Handler(reg)),
		RateLimiter: limiter,
		Registry:    reg,
	}, nil
}

// newMetricsRouter は /metrics のみを配信するルーターを生成する。
func newMetricsRouter(h http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", h)
	return r
}

// newUploadSink はUPLOAD_BACKENDに応じた保存先を生成する。
// ディスク保存の場合は静的配信するディレクトリも返す。
func newUploadSink(ctx context.Context, cfg *config.Config) (upload.Sink, string, error) {
	switch cfg.UploadBackend {
	case config.UploadBackendS3:
		sink, err := upload.NewS3Sink(ctx, upload.S3Config{
			Endpoint:      cfg.S3.Endpoint,
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			UsePathStyle:  cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create s3 upload sink: %w", err)
		}
		return sink, "", nil
	default:
		sink, err := upload.NewDiskSink(cfg.UploadDir, cfg.ServerURL+handler.UploadsPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create upload directory: %w", err)
		}
		return sink, sink.Dir(), nil
	}
}

// runServe はAPIサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, migrate bool) error {
	if migrate {
		if err := runMigrate(cfg); err != nil {
			return err
		}
	}

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := Build(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer srv.Close()

	servers := []*http.Server{{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           srv.Metrics,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	slog.Info("API server starting",
		slog.String("addr", servers[0].Addr),
		slog.String("metrics_addr", cfg.MetricsAddr),
		slog.String("upload_backend", cfg.UploadBackend),
	)

	errCh := make(chan error, len(servers))
	for _, server := range servers {
		go func(server *http.Server) {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("%s: %w", server.Addr, err)
			}
		}(server)
	}

	var listenErr error
	select {
	case err := <-errCh:
		listenErr = fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	for _, server := range servers {
		if err := server.Shutdown(shutdownCtx); err != nil && listenErr == nil {
			listenErr = fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	if listenErr != nil {
		return listenErr
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck は /health にリクエストを送り、200以外ならエラーを返す。
// distroless環境でのDockerヘルスチェック用。
func runHealthcheck(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
