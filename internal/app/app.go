package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/libraryfront/internal/auth"
	"github.com/hitoshi/libraryfront/internal/backend"
	"github.com/hitoshi/libraryfront/internal/config"
	"github.com/hitoshi/libraryfront/internal/credential"
	"github.com/hitoshi/libraryfront/internal/database"
	"github.com/hitoshi/libraryfront/internal/handler"
	"github.com/hitoshi/libraryfront/internal/logger"
	"github.com/hitoshi/libraryfront/internal/metrics"
	"github.com/hitoshi/libraryfront/internal/middleware"
	"github.com/hitoshi/libraryfront/internal/notice"
	"github.com/hitoshi/libraryfront/internal/profile"
	"github.com/hitoshi/libraryfront/internal/repository"
	"github.com/hitoshi/libraryfront/internal/security"
	"github.com/hitoshi/libraryfront/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if cmd.RequiresDatabase() && cfg.DatabaseURL == "" {
		return fmt.Errorf("%s requires DATABASE_URL (credential store %q)", cmd, cfg.CredentialStore)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("description", cmd.Description()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("credential_store", cfg.CredentialStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// credentialBackend は資格情報の永続化先と、その運用上の付帯情報をまとめたもの。
type credentialBackend struct {
	repo repository.CredentialRepository
	// ping は/healthで到達性を確認する。nilの場合は常に正常。
	ping func(ctx context.Context) error
	// purger はAPIプロセス内で期限切れを削除する場合に設定する。
	// Postgresはworkerが削除し、RedisはEXPIREATで消えるためnil。
	purger cleanup.Purger
	close  func() error
}

// openCredentialBackend はCREDENTIAL_STOREに応じて資格情報の永続化先を開く。
func openCredentialBackend(ctx context.Context, cfg *config.Config) (*credentialBackend, error) {
	switch cfg.CredentialStore {
	case config.CredentialStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established")
		return &credentialBackend{
			repo:  repository.NewRedisCredentialRepo(rdb, ""),
			ping:  func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			close: rdb.Close,
		}, nil

	case config.CredentialStoreMemory:
		slog.Warn("using in-memory credential store; sessions are lost on restart")
		repo := credential.NewMemoryRepo()
		return &credentialBackend{
			repo:   repo,
			purger: repo,
			close:  func() error { return nil },
		}, nil

	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established")
		return &credentialBackend{
			repo:  repository.NewPostgresCredentialRepo(db),
			ping:  db.PingContext,
			close: db.Close,
		}, nil
	}
}

// newMetricsRegistry はアプリケーションのメトリクスとGo・プロセスのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はBFFサーバーモードで起動する。
// 資格情報ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 資格情報ストア
	cb, err := openCredentialBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer cb.close()

	reg, collector := newMetricsRegistry()
	log := slog.Default()

	store := credential.NewStore(cb.repo, cfg.CredentialTTL, log)

	// 2. 通知
	board := notice.NewBoard(notice.DefaultBoardConfig(), security.NewNoticeSanitizer(), collector, log)
	defer board.Stop()

	// 3. バックエンドクライアント
	client := backend.NewClient(
		cfg.APIBaseURL,
		&http.Client{Timeout: cfg.APITimeout},
		store, board, collector, log,
	)

	// 4. 認証セッション
	registryCfg := auth.DefaultRegistryConfig()
	registryCfg.IdleTTL = cfg.SessionIdleTTL
	registry := auth.NewRegistry(backend.NewAuthAPI(client), store, auth.NoRefresh{}, board, collector, log, registryCfg)
	defer registry.Stop()

	profileService := profile.NewService(backend.NewProfileAPI(client), registry, board, log)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigFromPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	router, err := handler.NewRouter(&handler.RouterDeps{
		Logger: log,
		ClientCookie: middleware.ClientCookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
			MaxAge: cfg.ClientCookieMaxAge,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure,
		RateLimiter:       rateLimiter,

		Sessions: registry,
		Notices:  board,

		ProfileService: profileService,
		Catalog:        client,

		HealthCheck: cb.ping,
		Gatherer:    reg,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	// 6. メモリストアの場合はプロセス内で期限切れを削除する
	if cb.purger != nil {
		job := cleanup.NewCleanupJob(cb.purger, collector, log)
		go job.Start(ctx, cfg.CleanupInterval)
	}

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.APITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "BFF server")
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMを受信するまでブロックする。
// 起動に失敗した場合はそのエラーを返す。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れの資格情報の定期削除を実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブの初期化
	reg, collector := newMetricsRegistry()
	job := cleanup.NewCleanupJob(cleanup.NewSQLPurger(db), collector, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 3. メトリクスの公開（任意）
	if cfg.WorkerMetricsPort != "" {
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           metrics.SetupMetricsRoute(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker metrics listen error", slog.String("error", err.Error()))
			}
		}()
		defer metricsServer.Close()
	}

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
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
