package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/libraryfront/internal/auth"
	"github.com/hitoshi/libraryfront/internal/backend"
	"github.com/hitoshi/libraryfront/internal/metrics"
	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/model"
	"github.com/hitoshi/libraryfront/internal/notice"
	"github.com/hitoshi/libraryfront/internal/profile"
)

// healthCheckTimeout はヘルスチェック1回あたりの上限時間。
const healthCheckTimeout = 2 * time.Second

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	ClientCookie      middleware.ClientCookieConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	HSTS              bool
	RateLimiter       *middleware.RateLimiter

	// 認証セッション（auth.Registry）
	Sessions AuthSessions
	Notices  NoticeBoard

	// プロフィール・カタログ
	ProfileService ProfileServiceInterface
	Catalog        CatalogForwarder

	// 運用
	HealthCheck func(ctx context.Context) error // nilの場合は常に正常
	Gatherer    prometheus.Gatherer             // nilの場合は/metricsを公開しない
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Client → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はClient以降のチェーンの外に配置する。
// 認証の試行（ログイン・登録・パスワード関連）には認証用のレート制限を追加する。
func NewRouter(deps *RouterDeps) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pageHandler, err := NewPageHandler(deps.Sessions, deps.Notices, logger)
	if err != nil {
		return nil, err
	}
	authHandler := NewAuthHandler(deps.Sessions, deps.Notices, logger)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.Sessions)
	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Sessions)

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewClientMiddleware(deps.ClientCookie))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証API
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
				r.With(requireSessionAPI(deps.Sessions)).Post("/change-password", authHandler.ChangePassword)
			})

			r.Post("/logout", authHandler.Logout)
			r.Get("/verify", authHandler.Verify)
			r.Get("/session", authHandler.Session)
			r.Delete("/session/error", authHandler.ClearError)
			r.Get("/notices", authHandler.Notices)
		})

		// プロフィールAPI
		r.Route("/api/profile", func(r chi.Router) {
			r.Use(requireSessionAPI(deps.Sessions))
			r.Get("/", profileHandler.GetProfile)
			r.Put("/", profileHandler.UpdateProfile)
			r.Put("/preferences", profileHandler.UpdatePreferences)
			r.Put("/change-password", profileHandler.ChangePassword)
			r.Get("/statistics", profileHandler.GetStatistics)
			r.Delete("/account", profileHandler.DeleteAccount)
		})

		// カタログAPI（バックエンドへ中継）
		r.Get("/api/books", catalogHandler.Proxy)
		r.Get("/api/books/*", catalogHandler.Proxy)
		r.Get("/api/categories", catalogHandler.Proxy)
		r.Get("/api/categories/*", catalogHandler.Proxy)

		// 未認証専用の画面
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAnonymousMiddleware(deps.Sessions, middleware.HomePath))
			for _, p := range publicOnlyPages {
				r.Get(p.Path, pageHandler.Render(p))
			}
		})

		// 認証が必要な画面
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRequireAuthenticatedMiddleware(deps.Sessions, middleware.LoginPath))
			for _, p := range protectedPages {
				r.Get(p.Path, pageHandler.Render(p))
			}
		})

		r.Get("/", RedirectHome)
	})

	r.NotFound(NotFound)

	return r, nil
}

// requireSessionAPI は未認証のAPIリクエストに401とログイン画面へのredirectを返す。
// 画面のガードと異なり、JSONクライアント向けにリダイレクトはしない。
func requireSessionAPI(checker middleware.SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checker.IsAuthenticated(r.Context()) {
				apiErr := model.NewUnauthorizedError("")
				apiErr.Redirect = middleware.LoginPath
				writeAPIErrorResponse(w, http.StatusUnauthorized, apiErr)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はヘルスチェックのハンドラーを返す。
// GET /health
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

// --- compile-time interface checks ---

var (
	_ AuthSessions            = (*auth.Registry)(nil)
	_ NoticeBoard             = (*notice.Board)(nil)
	_ ProfileServiceInterface = (*profile.Service)(nil)
	_ CatalogForwarder        = (*backend.Client)(nil)
)
