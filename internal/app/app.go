// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/socialprofile/internal/auth"
	"github.com/hitoshi/socialprofile/internal/config"
	"github.com/hitoshi/socialprofile/internal/database"
	"github.com/hitoshi/socialprofile/internal/handler"
	"github.com/hitoshi/socialprofile/internal/logger"
	"github.com/hitoshi/socialprofile/internal/metrics"
	"github.com/hitoshi/socialprofile/internal/middleware"
	"github.com/hitoshi/socialprofile/internal/repository"
	"github.com/hitoshi/socialprofile/internal/security"
	"github.com/hitoshi/socialprofile/internal/view"
	"github.com/hitoshi/socialprofile/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port, err := config.LoadServerPort()
		if err != nil {
			return fmt.Errorf("failed to resolve server port: %w", err)
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// sessionBackend は選択されたセッションストアとその付随リソース。
type sessionBackend struct {
	repo   repository.SessionRepository
	health handler.HealthChecker
	// background はストア固有のバックグラウンドジョブ（期限切れ削除など）。nil可。
	background func(ctx context.Context)
	close      func() error
}

// openSessionBackend は設定に応じてセッションストアを初期化する。
// redis/postgresは起動時に疎通を確認し、到達できない場合はエラーを返す。
func openSessionBackend(ctx context.Context, cfg *config.Config) (*sessionBackend, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		client, err := repository.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		repo := repository.NewRedisSessionRepo(client, cfg.RedisKeyPrefix)
		if err := repo.Ping(ctx); err != nil {
			client.Close()
			return nil, err
		}
		slog.Info("redis connection established")
		return &sessionBackend{repo: repo, health: repo, close: client.Close}, nil

	case config.SessionStorePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		repo := repository.NewPostgresSessionRepo(db)
		if err := repo.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("database connection established")
		return &sessionBackend{
			repo:       repo,
			health:     repo,
			background: postgresCleanup(db, cfg.SessionCleanupInterval),
			close:      db.Close,
		}, nil

	default:
		repo := repository.NewMemorySessionRepo(cfg.SessionCleanupInterval)
		return &sessionBackend{
			repo:   repo,
			health: repo,
			close: func() error {
				repo.Stop()
				return nil
			},
		}, nil
	}
}

// postgresCleanup は期限切れセッション行を定期的に削除するジョブを返す。
func postgresCleanup(db *sql.DB, interval time.Duration) func(ctx context.Context) {
	job := cleanup.NewSessionCleanupJob(db, slog.Default())
	return func(ctx context.Context) {
		job.Start(ctx, interval)
	}
}

// newIdentityProviders は設定済みのIdPアダプタを生成する。
// IdPとの通信はSSRF防止付きのクライアントで行う。
func newIdentityProviders(cfg *config.Config, client *http.Client) []auth.IdentityProvider {
	providers := []auth.IdentityProvider{
		auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.CallbackURL("google"),
			HTTPClient:   client,
		}),
	}

	if cfg.FacebookEnabled() {
		providers = append(providers, auth.NewFacebookProvider(auth.FacebookConfig{
			AppID:       cfg.FacebookAppID,
			AppSecret:   cfg.FacebookAppSecret,
			RedirectURL: cfg.CallbackURL("facebook"),
			HTTPClient:  client,
		}))
	}

	return providers
}

// server はワイヤリング済みのHTTPハンドラーと、その終了処理。
type server struct {
	handler    http.Handler
	background func(ctx context.Context)
	close      func()
}

// buildServer は設定から全依存関係をワイヤリングする。
func buildServer(ctx context.Context, cfg *config.Config, httpClient *http.Client) (*server, error) {
	// 1. セッションストア
	backend, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// 2. セキュリティ
	signer, err := security.NewCookieSigner(cfg.SessionSecret)
	if err != nil {
		backend.close()
		return nil, fmt.Errorf("failed to create cookie signer: %w", err)
	}
	ssrfGuard := security.NewSSRFGuard()
	if httpClient == nil {
		httpClient = ssrfGuard.NewSafeClient(cfg.ProviderTimeout)
	}

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 4. 認証サービス
	registry := auth.NewRegistry(newIdentityProviders(cfg, httpClient)...)
	authService := auth.NewService(registry, backend.repo, collector, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})

	// 5. ルーター
	cookieCfg := middleware.CookieConfig{
		Secure: cfg.CookieSecure,
		Domain: cfg.CookieDomain,
		MaxAge: cfg.SessionMaxAge,
	}
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitAuth),
		collector.RecordRateLimited,
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:        slog.Default(),
		AuthService:   authService,
		SessionCookie: middleware.NewSessionCookie(signer, cookieCfg),
		OAuthState:    middleware.NewOAuthState(signer, cookieCfg),
		SessionOptions: middleware.SessionOptions{
			SaveUninitialized: cfg.SessionSaveUninitialized,
			Resave:            cfg.SessionResave,
		},
		RateLimiter:   rateLimiter,
		Renderer:      view.NewRenderer(security.NewProfileSanitizer(ssrfGuard)),
		HealthChecker: backend.health,
		Metrics:       collector,
		Gatherer:      reg,
	})

	slog.Info("identity providers configured",
		slog.Any("providers", registry.Providers()),
	)

	return &server{
		handler:    router,
		background: backend.background,
		close: func() {
			rateLimiter.Stop()
			if err := backend.close(); err != nil {
				slog.Error("failed to close session store", slog.String("error", err.Error()))
			}
		},
	}, nil
}

// runServe はWebサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := buildServer(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer srv.close()

	if srv.background != nil {
		go srv.background(ctx)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// トークン交換とプロフィール取得の時間を含める
		WriteTimeout: 15*time.Second + cfg.ProviderTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down HTTP server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runMigrate はセッションテーブルのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.Redacted()
}
