package repository

import "database/sql"

// Store は全リポジトリを束ねたもの。サービス層へまとめて渡す。
type Store struct {
	Users         UserRepository
	Sessions      SessionRepository
	Brokers       BrokerRepository
	Companies     CompanyRepository
	Owners        OwnerRepository
	Employees     EmployeeRepository
	Plans         PlanRepository
	Contributions ContributionRepository
	Applications  ApplicationRepository
	Documents     DocumentRepository
	PDFTemplates  PDFTemplateRepository
	AuditLogs     AuditLogRepository
}

// NewPostgresStore はPostgreSQL実装のStoreを生成する。
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:         NewPostgresUserRepo(db),
		Sessions:      NewPostgresSessionRepo(db),
		Brokers:       NewPostgresBrokerRepo(db),
		Companies:     NewPostgresCompanyRepo(db),
		Owners:        NewPostgresOwnerRepo(db),
		Employees:     NewPostgresEmployeeRepo(db),
		Plans:         NewPostgresPlanRepo(db),
		Contributions: NewPostgresContributionRepo(db),
		Applications:  NewPostgresApplicationRepo(db),
		Documents:     NewPostgresDocumentRepo(db),
		PDFTemplates:  NewPostgresPDFTemplateRepo(db),
		AuditLogs:     NewPostgresAuditLogRepo(db),
	}
}

// NewMemoryStore はインメモリ実装のStoreを生成する。
// ローカル開発とテストで使用する。プロセス終了でデータは消える。
// DBのCASCADE削除と集計クエリに相当する動きのため、リポジトリ同士を参照させる。
func NewMemoryStore() *Store {
	users := NewMemoryUserRepo()
	sessions := NewMemorySessionRepo()
	brokers := NewMemoryBrokerRepo()
	companies := NewMemoryCompanyRepo()
	owners := NewMemoryOwnerRepo()
	employees := NewMemoryEmployeeRepo()
	plans := NewMemoryPlanRepo()
	contributions := NewMemoryContributionRepo()
	applications := NewMemoryApplicationRepo()
	documents := NewMemoryDocumentRepo()
	pdfTemplates := NewMemoryPDFTemplateRepo()
	auditLogs := NewMemoryAuditLogRepo()

	brokers.users = users
	brokers.companies = companies
	brokers.applications = applications
	companies.owners = owners
	companies.employees = employees
	companies.applications = applications
	companies.documents = documents
	companies.contributions = contributions
	applications.companies = companies

	return &Store{
		Users:         users,
		Sessions:      sessions,
		Brokers:       brokers,
		Companies:     companies,
		Owners:        owners,
		Employees:     employees,
		Plans:         plans,
		Contributions: contributions,
		Applications:  applications,
		Documents:     documents,
		PDFTemplates:  pdfTemplates,
		AuditLogs:     auditLogs,
	}
}
