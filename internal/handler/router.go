package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/socialprofile/internal/metrics"
	"github.com/hitoshi/socialprofile/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// AuthService はルーターが必要とする認証サービスの操作。auth.Serviceが実装する。
type AuthService interface {
	AuthServiceInterface
	middleware.SessionStore
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 認証・セッション
	AuthService    AuthService
	SessionCookie  *middleware.SessionCookie
	OAuthState     *middleware.OAuthState
	SessionOptions middleware.SessionOptions
	RateLimiter    *middleware.RateLimiter

	// 表示
	Renderer PageRenderer

	// 運用
	HealthChecker HealthChecker
	Metrics       *metrics.Collector
	Gatherer      prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → Metrics → Recovery → SecurityHeaders → Session → RateLimit(/auth のみ)
//
// /health と /metrics はセッションを読み込まない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())

	var recorder LoginRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	authHandler := NewAuthHandler(deps.AuthService, deps.SessionCookie, deps.OAuthState, recorder)
	homeHandler := NewHomeHandler(deps.Renderer, deps.AuthService)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- セッションを扱うルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.AuthService, deps.SessionCookie, deps.SessionOptions))

		r.Get("/", homeHandler.Show)

		// OAuthフロー
		r.Route("/auth/{provider}", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.AuthMiddleware())
			}
			r.Get("/", authHandler.Login)
			r.Get("/callback", authHandler.Callback)
		})

		r.Get("/logout", authHandler.Logout)
		r.Post("/logout", authHandler.Logout)
	})

	return r
}
