package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/middleware"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// DomainMetricsRecorder は各ハンドラーが記録するドメインメトリクスをまとめたインターフェース。
// metrics.Collector がそのまま満たす。
type DomainMetricsRecorder interface {
	LoginMetricsRecorder
	CensusMetricsRecorder
	UploadMetricsRecorder
	ApplicationMetricsRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	UserFinder        middleware.UserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 監視
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	HTTPMetrics    middleware.HTTPMetricsRecorder
	Metrics        DomainMetricsRecorder

	// 監査
	AuditRecorder AuditRecorder
	AuditLister   AuditListerInterface

	// 認証
	AuthService  AuthServiceInterface
	AuthConfig   AuthHandlerConfig
	LoginRateKey func(r *http.Request) string

	// ドメインサービス
	UserService       UserServiceInterface
	CompanyService    CompanyServiceInterface
	CensusImporter    CensusImporterInterface
	DocumentService   DocumentServiceInterface
	TemplateService   TemplateServiceInterface
	PlanService       PlanServiceInterface
	EnrollmentService EnrollmentServiceInterface
	BrandingService   BrandingServiceInterface
	AdminService      AdminServiceInterface

	// アップロード上限（バイト）
	MaxUploadBytes int64
	MaxLogoBytes   int64
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Recovery → Logging → Metrics
//	（セッショングループ内はさらに Session → CSRF → RateLimit(General)）
//
// 認証系の公開ルート（register/login/logout）とヘルスチェックは
// セッショングループの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))

	healthHandler := NewHealthHandler(deps.HealthChecker)
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.Metrics, deps.AuditRecorder)
	userHandler := NewUserHandler(deps.UserService, deps.AuditRecorder)
	companyHandler := NewCompanyHandler(deps.CompanyService, deps.AuditRecorder)
	censusHandler := NewCensusHandler(deps.CensusImporter, deps.CompanyService, deps.Metrics, deps.AuditRecorder)
	documentHandler := NewDocumentHandler(deps.DocumentService, deps.CompanyService, deps.Metrics, deps.AuditRecorder)
	templateHandler := NewPDFTemplateHandler(deps.TemplateService, deps.AuditRecorder)
	planHandler := NewPlanHandler(deps.PlanService, deps.CompanyService, deps.AuditRecorder)
	enrollmentHandler := NewEnrollmentHandler(deps.EnrollmentService, deps.CompanyService, deps.Metrics, deps.AuditRecorder)
	brandingHandler := NewBrandingHandler(deps.BrandingService, deps.AuditRecorder)
	auditHandler := NewAuditHandler(deps.AuditLister)
	adminHandler := NewAdminHandler(deps.AdminService, deps.AuditRecorder)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", deps.MetricsHandler)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 未認証の書き込みはIP単位の厳しいレート制限を共有する
	loginLimiter := deps.RateLimiter.LoginMiddleware(deps.LoginRateKey)
	r.With(loginLimiter).Post("/api/register", authHandler.Register)
	r.With(loginLimiter).Post("/api/login", authHandler.Login)
	r.Post("/api/logout", authHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.UserFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		uploadLimiter := deps.RateLimiter.UploadMiddleware()
		maxUpload := middleware.NewMaxBytesMiddleware(deps.MaxUploadBytes)
		maxLogo := middleware.NewMaxBytesMiddleware(deps.MaxLogoBytes)
		ownerOnly := middleware.RequireRole(model.RoleOwner)
		adminOnly := middleware.RequireRole(model.RoleAdmin)

		r.Get("/api/me", authHandler.Me)

		// ユーザー管理（代表者のみ）
		r.Route("/api/users", func(r chi.Router) {
			r.Use(ownerOnly)
			r.Get("/", userHandler.List)
			r.Post("/", userHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Patch("/", userHandler.Update)
				r.Put("/active", userHandler.SetActive)
			})
		})

		// 企業管理
		r.Route("/api/companies", func(r chi.Router) {
			r.Get("/", companyHandler.List)
			r.Post("/", companyHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", companyHandler.Get)
				r.Put("/", companyHandler.Update)
				r.Delete("/", companyHandler.Delete)

				// 経営者
				r.Get("/owners", companyHandler.ListOwners)
				r.Post("/owners", companyHandler.AddOwner)
				r.Put("/owners/{ownerID}", companyHandler.UpdateOwner)
				r.Delete("/owners/{ownerID}", companyHandler.DeleteOwner)

				// 従業員
				r.Get("/employees", companyHandler.ListEmployees)
				r.Post("/employees", companyHandler.AddEmployee)
				r.Put("/employees/{employeeID}", companyHandler.UpdateEmployee)
				r.Delete("/employees/{employeeID}", companyHandler.DeleteEmployee)

				// 名簿一括取込（アップロード専用レート制限 + サイズ上限）
				r.With(uploadLimiter, maxUpload).Post("/census", censusHandler.Import)

				// 書類
				r.Get("/documents", documentHandler.List)
				r.With(uploadLimiter, maxUpload).Post("/documents", documentHandler.Upload)
				r.Get("/documents/requirements", documentHandler.Requirements)
				r.Get("/documents/{docID}/download", documentHandler.Download)
				r.Delete("/documents/{docID}", documentHandler.Delete)

				// 事業主負担
				r.Get("/contributions", planHandler.ListContributions)
				r.Put("/contributions", planHandler.SetContribution)
				r.Delete("/contributions/{planType}", planHandler.DeleteContribution)

				// 申請
				r.Get("/applications", enrollmentHandler.ListByCompany)
				r.Post("/applications", enrollmentHandler.CreateDraft)
			})
		})

		// プランカタログ（変更は代表者のみ）
		r.Route("/api/plans", func(r chi.Router) {
			r.Get("/", planHandler.List)
			r.With(ownerOnly).Post("/", planHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", planHandler.Get)
				r.With(ownerOnly).Put("/", planHandler.Update)
				r.With(ownerOnly).Delete("/", planHandler.Deactivate)
			})
		})

		// 加入申請
		r.Route("/api/applications", func(r chi.Router) {
			r.Get("/", enrollmentHandler.ListByBroker)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", enrollmentHandler.Get)
				r.Patch("/", enrollmentHandler.Update)
				r.Get("/plans", enrollmentHandler.SelectedPlans)
				r.Put("/plans", enrollmentHandler.SelectPlans)
				r.Post("/submit", enrollmentHandler.Submit)
				r.With(adminOnly).Post("/decision", enrollmentHandler.Decide)
			})
		})

		// PDFテンプレート（変更は代表者のみ）
		r.Route("/api/pdf-templates", func(r chi.Router) {
			r.Get("/", templateHandler.List)
			r.With(ownerOnly, uploadLimiter, maxUpload).Post("/", templateHandler.Upload)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", templateHandler.Get)
				r.Get("/download", templateHandler.Download)
				r.With(ownerOnly).Put("/mappings", templateHandler.UpdateMappings)
				r.With(ownerOnly).Delete("/", templateHandler.Delete)
			})
		})

		// ブランディング設定（変更は代表者のみ）
		r.Route("/api/broker", func(r chi.Router) {
			r.Get("/settings", brandingHandler.Settings)
			r.With(ownerOnly).Patch("/settings", brandingHandler.UpdateSettings)
			r.Get("/logo", brandingHandler.Logo)
			r.With(ownerOnly, uploadLimiter, maxLogo).Post("/logo", brandingHandler.UploadLogo)
			r.With(ownerOnly).Post("/logo/import", brandingHandler.ImportLogo)
		})

		// 監査ログ（代表者のみ）
		r.With(ownerOnly).Get("/api/audit-logs", auditHandler.List)

		// 管理者専用
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/brokers", adminHandler.ListBrokers)
			r.Post("/brokers", adminHandler.CreateBroker)
			r.Get("/users", adminHandler.ListUsers)
			r.Put("/users/{id}/active", adminHandler.SetUserActive)
			r.Get("/applications", enrollmentHandler.ListSubmitted)
			r.Get("/audit-logs", auditHandler.AdminList)
			r.Get("/stats", adminHandler.Stats)
			r.Get("/document-rules", adminHandler.DocumentRules)
		})
	})

	return r
}
