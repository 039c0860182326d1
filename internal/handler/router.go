package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/accountd/internal/middleware"
)

// HealthPath はヘルスチェックのパス。リクエストログの対象外とする。
const HealthPath = "/health"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HTTPRecorder      middleware.HTTPRecorder
	CORSAllowedOrigin string
	LoginRateLimiter  *middleware.RateLimiter
	// TrustProxyHeaders がtrueの場合のみプロキシヘッダーをクライアントIPとして採用する。
	// falseの場合はTCP接続元をそのまま使い、ヘッダー偽装によるレート制限回避を防ぐ。
	TrustProxyHeaders bool

	// アクセス制御
	Gate middleware.Authenticator

	// 認証
	AuthService AuthServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// メトリクス（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Logging → Recovery → SecurityHeaders → CORS
//
// RealIPはTrustProxyHeadersが有効な場合のみ適用する。
//
// /v1/auth/login にはクライアント単位のレート制限、
// /v1/users/* にはベアラー認証と管理者判定を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loggingOpts := []middleware.LoggingOption{middleware.WithSkipPaths(HealthPath)}
	if deps.HTTPRecorder != nil {
		loggingOpts = append(loggingOpts, middleware.WithHTTPRecorder(deps.HTTPRecorder))
	}

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewLoggingMiddleware(logger, loggingOpts...))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	userHandler := NewUserHandler(deps.UserService)
	bearerAuth := middleware.NewBearerAuthMiddleware(deps.Gate)

	// --- 認証不要のルート ---

	r.Get(HealthPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)

		if deps.LoginRateLimiter != nil {
			r.With(deps.LoginRateLimiter.Middleware()).Post("/login", authHandler.Login)
		} else {
			r.Post("/login", authHandler.Login)
		}

		// アクティブユーザーのみ
		r.With(bearerAuth).Get("/me", authHandler.Me)
	})

	// --- 管理者のみのルート ---
	// ミドルウェアスタック: BearerAuth → RequireAdmin
	r.Route("/v1/users", func(r chi.Router) {
		r.Use(bearerAuth)
		r.Use(middleware.NewRequireAdminMiddleware(deps.Gate))

		r.Get("/", userHandler.ListUsers)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", userHandler.GetUser)
			r.Put("/", userHandler.UpdateUser)
			r.Delete("/", userHandler.DeleteUser)
		})
	})

	return r
}
