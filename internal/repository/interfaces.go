// Package repository はデータ永続化のインターフェースを定義する。
// PostgreSQL実装（postgres_*.go）とインメモリ実装（memory_*.go）の2系統があり、
// 起動時の設定でどちらを使うかを切り替える。
package repository

import (
	"context"
	"time"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザー情報を更新する。
	Update(ctx context.Context, user *model.User) error

	// ListByBrokerID は指定ブローカーの全ユーザーを作成日時昇順で返す。
	ListByBrokerID(ctx context.Context, brokerID string) ([]*model.User, error)

	// Count は全ユーザー数を返す。
	Count(ctx context.Context) (int, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// BrokerRepository はブローカー（代理店テナント）の永続化インターフェース。
type BrokerRepository interface {
	// FindByID は指定IDのブローカーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Broker, error)

	// Create はブローカーを作成する。
	Create(ctx context.Context, broker *model.Broker) error

	// Update はブローカー情報（ブランディング設定含む）を更新する。
	// ロゴ画像データはUpdateLogoで更新するため、このメソッドでは変更しない。
	Update(ctx context.Context, broker *model.Broker) error

	// UpdateLogo はブローカーのロゴ画像データを更新する。
	UpdateLogo(ctx context.Context, brokerID string, logoData []byte, logoMime string) error

	// ListWithStats は全ブローカーを利用状況の集計付きで返す（管理者向け）。
	ListWithStats(ctx context.Context) ([]BrokerWithStats, error)

	// Count は全ブローカー数を返す。
	Count(ctx context.Context) (int, error)
}

// CompanyRepository は顧客企業の永続化インターフェース。
type CompanyRepository interface {
	// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Company, error)

	// Create は企業を作成する。
	Create(ctx context.Context, company *model.Company) error

	// Update は企業情報を更新する。
	Update(ctx context.Context, company *model.Company) error

	// Delete は指定IDの企業を削除する。
	// 関連する出資者・従業員・申請はCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListByBrokerID は指定ブローカーの全企業を作成日時降順で返す。
	ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Company, error)

	// Count は全企業数を返す。
	Count(ctx context.Context) (int, error)
}

// OwnerRepository は企業出資者の永続化インターフェース。
type OwnerRepository interface {
	// FindByID は指定IDの出資者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Owner, error)

	// Create は出資者を作成する。
	Create(ctx context.Context, owner *model.Owner) error

	// Update は出資者情報を更新する。
	Update(ctx context.Context, owner *model.Owner) error

	// Delete は指定IDの出資者を削除する。
	Delete(ctx context.Context, id string) error

	// ListByCompanyID は指定企業の全出資者を出資比率降順で返す。
	ListByCompanyID(ctx context.Context, companyID string) ([]*model.Owner, error)

	// SumPercentByCompanyID は指定企業の出資比率の合計を返す。
	// 出資者がいない場合は0を返す。
	SumPercentByCompanyID(ctx context.Context, companyID string) (float64, error)
}

// EmployeeRepository は従業員の永続化インターフェース。
type EmployeeRepository interface {
	// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Employee, error)

	// Create は従業員を作成する。
	Create(ctx context.Context, employee *model.Employee) error

	// CreateBatch は複数の従業員を同一トランザクションで作成する。
	// 1件でも失敗した場合は全件ロールバックする。
	CreateBatch(ctx context.Context, employees []*model.Employee) error

	// Update は従業員情報を更新する。
	Update(ctx context.Context, employee *model.Employee) error

	// Delete は指定IDの従業員を削除する。
	Delete(ctx context.Context, id string) error

	// ListByCompanyID は指定企業の全従業員を姓・名の昇順で返す。
	ListByCompanyID(ctx context.Context, companyID string) ([]*model.Employee, error)

	// CountByCompanyID は指定企業の従業員数を返す。
	CountByCompanyID(ctx context.Context, companyID string) (int, error)
}

// PlanRepository は保険プランの永続化インターフェース。
type PlanRepository interface {
	// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Plan, error)

	// Create はプランを作成する。
	Create(ctx context.Context, plan *model.Plan) error

	// Update はプラン情報を更新する。無効化はActiveをfalseにして更新する。
	Update(ctx context.Context, plan *model.Plan) error

	// ListByBrokerID は指定ブローカーの全プランを種別・名前順で返す。
	ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Plan, error)
}

// ContributionRepository は事業主負担設定の永続化インターフェース。
type ContributionRepository interface {
	// FindByCompanyAndType は企業IDとプラン種別で負担設定を検索する。
	// 見つからない場合はnilを返す。
	FindByCompanyAndType(ctx context.Context, companyID string, planType model.PlanType) (*model.Contribution, error)

	// ListByCompanyID は指定企業の全負担設定を返す。
	ListByCompanyID(ctx context.Context, companyID string) ([]*model.Contribution, error)

	// Upsert は負担設定を冪等にUPSERTする。
	// (company_id, plan_type) が既に存在する場合は上書きする。
	Upsert(ctx context.Context, contribution *model.Contribution) error

	// DeleteByCompanyAndType は指定企業・プラン種別の負担設定を削除する。
	DeleteByCompanyAndType(ctx context.Context, companyID string, planType model.PlanType) error
}

// ApplicationRepository は加入申請の永続化インターフェース。
type ApplicationRepository interface {
	// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// FindDraftByCompanyID は指定企業の下書き申請を取得する。
	// 下書きが存在しない場合はnilを返す。
	FindDraftByCompanyID(ctx context.Context, companyID string) (*model.Application, error)

	// Create は申請を作成する。
	Create(ctx context.Context, app *model.Application) error

	// Update は申請を更新する。
	Update(ctx context.Context, app *model.Application) error

	// ListByCompanyID は指定企業の全申請を作成日時降順で返す。
	ListByCompanyID(ctx context.Context, companyID string) ([]*model.Application, error)

	// ListByBrokerID は指定ブローカー配下の全申請を作成日時降順で返す。
	ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Application, error)

	// ListByStatus は指定状態の全申請を提出日時昇順で返す（管理者の審査キュー向け）。
	ListByStatus(ctx context.Context, status model.ApplicationStatus) ([]*model.Application, error)

	// CountByStatus は指定状態の申請数を返す。
	CountByStatus(ctx context.Context, status model.ApplicationStatus) (int, error)

	// ReplacePlans は申請の選択プラン一覧を同一トランザクションで入れ替える。
	ReplacePlans(ctx context.Context, applicationID string, planIDs []string) error

	// ListPlanIDs は申請に紐づくプランIDの一覧を返す。
	ListPlanIDs(ctx context.Context, applicationID string) ([]string, error)
}

// DocumentRepository は企業添付書類の永続化インターフェース。
type DocumentRepository interface {
	// FindByID は指定IDの書類をファイル本体込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// Create は書類を作成する。
	Create(ctx context.Context, doc *model.Document) error

	// Delete は指定IDの書類を削除する。
	Delete(ctx context.Context, id string) error

	// ListByCompanyID は指定企業の書類一覧をメタデータのみで返す。
	// FileDataは含まれない（ダウンロードはFindByIDを使う）。
	ListByCompanyID(ctx context.Context, companyID string) ([]*model.Document, error)
}

// PDFTemplateRepository は帳票テンプレートの永続化インターフェース。
type PDFTemplateRepository interface {
	// FindByID は指定IDのテンプレートをファイル本体込みで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.PDFTemplate, error)

	// Create はテンプレートを作成する。
	Create(ctx context.Context, tpl *model.PDFTemplate) error

	// Update はテンプレートのメタデータと項目マッピングを更新する。
	// ファイル本体は変更しない。
	Update(ctx context.Context, tpl *model.PDFTemplate) error

	// Delete は指定IDのテンプレートを削除する。
	Delete(ctx context.Context, id string) error

	// ListByBrokerID は指定ブローカーのテンプレート一覧をメタデータのみで名前順に返す。
	ListByBrokerID(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error)
}

// AuditLogRepository は監査ログの永続化インターフェース。
type AuditLogRepository interface {
	// Create は監査ログを1件追記する。
	Create(ctx context.Context, entry *model.AuditLog) error

	// List は条件に合致する監査ログを作成日時降順で返す。
	List(ctx context.Context, filter AuditLogFilter) ([]*model.AuditLog, error)
}

// AuditLogFilter は監査ログ検索の絞り込み条件。
// 空のフィールドは条件なしとして扱う。Actionは前方一致
// （"application" は application.submit 等にもマッチする）。
// Limitが0以下の場合は100件を上限とする。
type AuditLogFilter struct {
	BrokerID     string
	UserID       string
	Action       string
	ResourceType string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

// BrokerWithStats はブローカーと利用状況の集計を結合した構造体。
type BrokerWithStats struct {
	model.Broker
	UserCount        int
	CompanyCount     int
	ApplicationCount int
}
