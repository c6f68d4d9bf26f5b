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
	"github.com/spf13/pflag"

	"github.com/hitoshi/foliora/internal/auth"
	"github.com/hitoshi/foliora/internal/borrow"
	"github.com/hitoshi/foliora/internal/catalog"
	"github.com/hitoshi/foliora/internal/config"
	"github.com/hitoshi/foliora/internal/database"
	"github.com/hitoshi/foliora/internal/handler"
	"github.com/hitoshi/foliora/internal/logger"
	"github.com/hitoshi/foliora/internal/metrics"
	"github.com/hitoshi/foliora/internal/notify"
	"github.com/hitoshi/foliora/internal/profile"
	"github.com/hitoshi/foliora/internal/security"
	"github.com/hitoshi/foliora/internal/worker/overdue"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
// flagsで明示的に指定された値は環境変数より優先する。
func Init(w io.Writer, flags *pflag.FlagSet) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. ストア
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. BLOBストレージ
	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	authService := auth.NewService(st.store.Repos().Users, auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL))
	catalogService := catalog.NewService(st.store, security.NewTextSanitizer())
	borrowService := borrow.NewService(st.store, notifier, collector)
	profileService := profile.NewService(st.store, blobs, cfg.AvatarMaxSize)

	// 5. ルーターの構築
	rateLimiter := newRateLimiter(cfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TokenVerifier:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		HTTPRecorder:      collector,
		HealthChecker:     st.health,
		MetricsHandler:    metrics.Handler(registry),
		UserService:       authService,
		BookService:       catalogService,
		BorrowService:     borrowService,
		ProfileService:    profileService,
		AvatarMaxSize:     cfg.AvatarMaxSize,
		Blobs:             blobs,
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.String("store", cfg.StoreDriver),
			slog.String("blob", cfg.BlobDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// ストアを開き、返却期限切れリマインダージョブと通知ディスパッチャーを起動する。
// ctxがキャンセルされると停止する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. ストア
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	// 2. 通知ディスパッチャー
	notifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(prometheus.NewRegistry())
	dispatcherCfg := notify.DefaultDispatcherConfig()
	if cfg.MailRatePerMinute > 0 {
		dispatcherCfg.PerMinute = cfg.MailRatePerMinute
	}
	dispatcher := notify.NewDispatcher(notifier, dispatcherCfg, collector)
	dispatcher.Start(ctx)

	// 3. 返却期限切れジョブ
	job := overdue.NewJob(st.store.Repos().Requests, dispatcher, collector, slog.Default())
	if cfg.ReminderInterval > 0 {
		job.ReminderInterval = cfg.ReminderInterval
	}

	slog.Info("worker starting",
		slog.Duration("overdue_scan_interval", cfg.OverdueScanInterval),
		slog.Duration("reminder_interval", job.ReminderInterval),
		slog.Int("mail_rate_per_minute", dispatcherCfg.PerMinute),
	)

	// ジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx, cfg.OverdueScanInterval)

	dispatcher.Wait()
	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StoreDriverPostgres)
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

// healthcheckPort はhealthcheckサブコマンドが接続するポートを返す。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
