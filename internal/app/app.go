package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/admin"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/auth"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/branding"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/census"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/company"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/config"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/database"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/enrollment"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/fixtures"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/handler"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/logger"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/metrics"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/middleware"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/plan"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/security"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/user"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込みの失敗も構造化ログで出せるよう先に行う）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルでグローバルロガーを張り替える
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
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
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
		slog.String("storage_backend", cfg.StorageBackend),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// openStore は設定に応じたストレージバックエンドを初期化する。
// memoryバックエンドの場合はdbとしてnilを返す。
func openStore(cfg *config.Config) (*repository.Store, *sql.DB, error) {
	if cfg.StorageBackend == config.StorageMemory {
		slog.Info("using in-memory storage backend")
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return repository.NewPostgresStore(db), db, nil
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストレージの初期化
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// memoryバックエンドは再起動でデータが消えるため、必要なら起動時にシードする
	if cfg.StorageBackend == config.StorageMemory && cfg.SeedDemoData {
		if err := fixtures.NewSeeder(store).Seed(context.Background(), fixtures.DefaultCompanyCount); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. 監査レコーダーの初期化
	auditRecorder := audit.NewRecorder(store.AuditLogs)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 5. ドメインサービスの初期化
	rules, err := document.LoadRules()
	if err != nil {
		return fmt.Errorf("failed to load document rules: %w", err)
	}

	authService := auth.NewService(store.Users, store.Sessions, store.Brokers,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge})
	userService := user.NewService(store.Users, store.Sessions)
	companyService := company.NewService(store.Companies, store.Owners, store.Employees)
	censusImporter := census.NewImporter(store.Employees, cfg.MaxCensusRows)
	documentService := document.NewService(store.Documents, store.Employees, rules, cfg.MaxUploadSize)
	templateService := document.NewTemplateService(store.PDFTemplates, cfg.MaxUploadSize)
	planService := plan.NewService(store.Plans, store.Contributions)
	enrollmentService := enrollment.NewService(
		store.Applications, store.Companies, store.Owners, store.Employees,
		store.Plans, store.Contributions, documentService,
	)
	logoFetcher := branding.NewLogoFetcher(ssrfGuard, cfg.MaxLogoSize, cfg.LogoFetchTimeout)
	brandingService := branding.NewService(store.Brokers, sanitizer, logoFetcher, cfg.MaxLogoSize)
	adminService := admin.NewService(store.Brokers, store.Users, store.Companies, store.Applications, rules)

	// 6. レート制限の初期化
	// configのレート値はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.UploadRate = rate.Limit(float64(cfg.RateLimitUpload) / 60.0)
	rateLimiterCfg.UploadBurst = cfg.RateLimitUpload
	rateLimiterCfg.LoginRate = rate.Limit(float64(cfg.RateLimitLogin) / 60.0)
	rateLimiterCfg.LoginBurst = cfg.RateLimitLogin
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, collector)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		SessionFinder:     store.Sessions,
		UserFinder:        store.Users,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		MetricsHandler: metrics.Handler(registry),
		HTTPMetrics:    collector,
		Metrics:        collector,

		AuditRecorder: auditRecorder,
		AuditLister:   store.AuditLogs,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		LoginRateKey: audit.ClientIP,

		UserService:       userService,
		CompanyService:    companyService,
		CensusImporter:    censusImporter,
		DocumentService:   documentService,
		TemplateService:   templateService,
		PlanService:       planService,
		EnrollmentService: enrollmentService,
		BrandingService:   brandingService,
		AdminService:      adminService,

		MaxUploadBytes: cfg.MaxUploadSize,
		MaxLogoBytes:   cfg.MaxLogoSize,
	}
	// memoryバックエンドではDBがないため、ヘルスチェックは常にOKを返す
	if db != nil {
		deps.HealthChecker = db
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StorageBackend != config.StoragePostgres {
		return fmt.Errorf("migrate command requires STORAGE_BACKEND=%s", config.StoragePostgres)
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

// runSeed はPostgreSQLにデモデータを投入する。
// memoryバックエンドはプロセス終了でデータが消えるため、
// serve起動時のSEED_DEMO_DATAで投入する。
func runSeed(cfg *config.Config) error {
	if cfg.StorageBackend != config.StoragePostgres {
		return fmt.Errorf("seed command requires STORAGE_BACKEND=%s (set SEED_DEMO_DATA=true to seed the memory backend at startup)", config.StoragePostgres)
	}

	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := fixtures.NewSeeder(store).Seed(context.Background(), fixtures.DefaultCompanyCount); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}

	slog.Info("demo data seeding completed")
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
