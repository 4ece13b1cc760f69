package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/cybershield/internal/identity"
	"github.com/hitoshi/cybershield/internal/middleware"
	"github.com/hitoshi/cybershield/internal/model"
)

// UploadsPath は画像を静的配信するパス。
const UploadsPath = "/uploads/ctf-images"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Verifier          identity.Verifier
	Users             middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           MetricsRecorder

	// 運用
	DB        Pinger
	UploadDir string // 空の場合は静的配信しない（S3保存時）

	// サービス
	AuthService      AuthServiceInterface
	TopicService     TopicAdminServiceInterface
	ArticleService   ArticleServiceInterface
	PublishedService PublishedArticleServiceInterface
	ReviewService    ArticleAdminServiceInterface
	UserService      UserAdminServiceInterface
	UploadService    UploadServiceInterface
}

// MetricsRecorder はミドルウェアが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	middleware.HTTPRecorder
	middleware.AuthFailureRecorder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS → [Auth → RequireRole] → RateLimit
//
// 公開ルートは認証なしでクライアントIP単位のレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var httpRec middleware.HTTPRecorder
	var authRec middleware.AuthFailureRecorder
	if deps.Metrics != nil {
		httpRec, authRec = deps.Metrics, deps.Metrics
	}

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, httpRec))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authn := middleware.NewAuthMiddleware(deps.Verifier, authRec)
	requireRole := func(roles ...model.Role) func(http.Handler) http.Handler {
		return middleware.RequireRole(deps.Users, authRec, roles...)
	}
	limit := deps.RateLimiter.GeneralMiddleware()

	authHandler := NewAuthHandler(deps.AuthService)
	publicHandler := NewPublicHandler(deps.TopicService, deps.PublishedService)
	articleHandler := NewArticleHandler(deps.ArticleService)
	adminHandler := NewAdminHandler(deps.TopicService, deps.ReviewService, deps.UserService)
	uploadHandler := NewUploadHandler(deps.UploadService)

	// --- 運用 ---
	r.Get("/health", NewHealthHandler(deps.DB))
	if deps.UploadDir != "" {
		fs := http.StripPrefix(UploadsPath+"/", http.FileServer(http.Dir(deps.UploadDir)))
		r.Method(http.MethodGet, UploadsPath+"/*", noDirListing(fs))
	}

	r.Route("/api", func(r chi.Router) {
		// --- 公開ルート ---
		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Get("/topics", publicHandler.ListTopics)
			r.Get("/topics/{slug}/articles", publicHandler.ListArticles)
			r.Get("/topics/{topicSlug}/articles/{articleSlug}", publicHandler.GetArticle)
		})

		// --- 認証（ロール不要） ---
		r.Route("/auth", func(r chi.Router) {
			r.Use(authn, limit)
			r.Post("/login", authHandler.Login)
			r.Get("/me", authHandler.Me)
		})

		// --- 著者（author | admin） ---
		r.Route("/articles", func(r chi.Router) {
			r.Use(authn, requireRole(model.RoleAuthor), limit)
			r.Get("/my", articleHandler.ListMine)
			r.Post("/", articleHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", articleHandler.Get)
				r.Patch("/", articleHandler.Update)
				r.Delete("/", articleHandler.Delete)
				r.Patch("/submit", articleHandler.Submit)
			})
		})

		// --- 画像アップロード（author | admin） ---
		r.Route("/upload", func(r chi.Router) {
			r.Use(authn, requireRole(model.RoleAuthor), limit, deps.RateLimiter.UploadMiddleware())
			r.Post("/image", uploadHandler.UploadImage)
		})

		// --- 管理者 ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(authn, requireRole(model.RoleAdmin), limit)

			r.Get("/topics", adminHandler.ListTopics)
			r.Post("/topics", adminHandler.CreateTopic)
			r.Patch("/topics/{id}", adminHandler.UpdateTopic)
			r.Delete("/topics/{id}", adminHandler.DeleteTopic)

			r.Get("/articles", adminHandler.ListArticles)
			r.Patch("/articles/{id}/status", adminHandler.SetArticleStatus)
			r.Patch("/articles/{id}/order", adminHandler.SetArticleOrder)

			r.Get("/users", adminHandler.ListUsers)
			r.Patch("/users/{uid}/role", adminHandler.SetUserRole)
		})
	})

	r.NotFound(routeNotFound)
	r.MethodNotAllowed(routeNotFound)

	return r
}

func routeNotFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusNotFound, messageResponse{Message: "Route not found"})
}

// noDirListing はディレクトリ一覧の表示を404にする。
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			routeNotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
