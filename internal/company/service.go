// Package company は企業・オーナー・従業員の管理機能を提供する。
// 企業はブローカーに属し、すべての操作はブローカー境界の内側で行われる。
package company

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// ownershipTolerance は所有割合の合計判定に使う許容誤差。
const ownershipTolerance = 0.01

// maxDependents は従業員1人あたりの扶養家族数の上限。
const maxDependents = 15

var (
	zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	einPattern = regexp.MustCompile(`^\d{2}-?\d{7}$`)
)

// Service は企業まわりのユースケースを提供する。
type Service struct {
	companyRepo  repository.CompanyRepository
	ownerRepo    repository.OwnerRepository
	employeeRepo repository.EmployeeRepository
}

// NewService は新しいServiceを生成する。
func NewService(
	companyRepo repository.CompanyRepository,
	ownerRepo repository.OwnerRepository,
	employeeRepo repository.EmployeeRepository,
) *Service {
	return &Service{
		companyRepo:  companyRepo,
		ownerRepo:    ownerRepo,
		employeeRepo: employeeRepo,
	}
}

// CompanyInput は企業の作成・更新リクエスト。
type CompanyInput struct {
	Name       string
	TaxID      string
	EntityType model.EntityType
	Industry   string
	Address    string
	City       string
	State      string
	ZipCode    string
	Phone      string
}

// Authorize は企業を取得し、呼び出し元ブローカーの所属を検証する。
// adminはテナント境界を越えて参照できる。所属違いは403を返す。
func (s *Service) Authorize(ctx context.Context, companyID, brokerID string, admin bool) (*model.Company, error) {
	company, err := s.companyRepo.FindByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("企業の取得に失敗しました: %w", err)
	}
	if company == nil {
		return nil, model.NewNotFoundError("企業")
	}
	if !admin && company.BrokerID != brokerID {
		return nil, model.NewForbiddenError()
	}
	return company, nil
}

// Create は企業を作成する。
func (s *Service) Create(ctx context.Context, brokerID, createdBy string, input CompanyInput) (*model.Company, error) {
	if err := validateCompanyInput(&input); err != nil {
		return nil, err
	}

	now := time.Now()
	company := &model.Company{
		ID:         uuid.New().String(),
		BrokerID:   brokerID,
		Name:       input.Name,
		TaxID:      input.TaxID,
		EntityType: input.EntityType,
		Industry:   input.Industry,
		Address:    input.Address,
		City:       input.City,
		State:      input.State,
		ZipCode:    input.ZipCode,
		Phone:      input.Phone,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.companyRepo.Create(ctx, company); err != nil {
		return nil, fmt.Errorf("企業の作成に失敗しました: %w", err)
	}

	slog.Info("company created",
		slog.String("company_id", company.ID),
		slog.String("broker_id", brokerID),
		slog.String("name", company.Name),
	)
	return company, nil
}

// Update は企業情報を更新する。呼び出し側でAuthorize済みの企業を渡す。
func (s *Service) Update(ctx context.Context, company *model.Company, input CompanyInput) (*model.Company, error) {
	if err := validateCompanyInput(&input); err != nil {
		return nil, err
	}

	company.Name = input.Name
	company.TaxID = input.TaxID
	company.EntityType = input.EntityType
	company.Industry = input.Industry
	company.Address = input.Address
	company.City = input.City
	company.State = input.State
	company.ZipCode = input.ZipCode
	company.Phone = input.Phone
	company.UpdatedAt = time.Now()

	if err := s.companyRepo.Update(ctx, company); err != nil {
		return nil, fmt.Errorf("企業の更新に失敗しました: %w", err)
	}
	return company, nil
}

// Delete は企業を削除する。オーナー・従業員・書類などの下位データも一緒に消える。
func (s *Service) Delete(ctx context.Context, companyID string) error {
	if err := s.companyRepo.Delete(ctx, companyID); err != nil {
		return fmt.Errorf("企業の削除に失敗しました: %w", err)
	}
	slog.Info("company deleted", slog.String("company_id", companyID))
	return nil
}

// List はブローカー配下の企業一覧を返す。
func (s *Service) List(ctx context.Context, brokerID string) ([]*model.Company, error) {
	companies, err := s.companyRepo.ListByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("企業一覧の取得に失敗しました: %w", err)
	}
	return companies, nil
}

func validateCompanyInput(input *CompanyInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.State = strings.ToUpper(strings.TrimSpace(input.State))
	input.ZipCode = strings.TrimSpace(input.ZipCode)
	input.TaxID = strings.TrimSpace(input.TaxID)

	if input.Name == "" {
		return model.NewValidationError("企業名は必須です")
	}
	if !input.EntityType.IsValid() {
		return model.NewValidationError(fmt.Sprintf("不正な事業形態です: %s", input.EntityType))
	}
	if input.State != "" && len(input.State) != 2 {
		return model.NewValidationError("州は2文字のコードで指定してください")
	}
	if input.ZipCode != "" && !zipPattern.MatchString(input.ZipCode) {
		return model.NewValidationError("郵便番号の形式が不正です")
	}
	if input.TaxID != "" && !einPattern.MatchString(input.TaxID) {
		return model.NewValidationError("EINの形式が不正です")
	}
	return nil
}

// --- オーナー ---

// OwnerInput はオーナーの作成・更新リクエスト。
type OwnerInput struct {
	FirstName        string
	LastName         string
	Title            string
	OwnershipPercent float64
	IsEligible       bool
}

// AddOwner はオーナーを追加する。追加後の所有割合の合計が100%を超える場合は拒否する。
func (s *Service) AddOwner(ctx context.Context, companyID string, input OwnerInput) (*model.Owner, error) {
	if err := validateOwnerInput(&input); err != nil {
		return nil, err
	}

	sum, err := s.ownerRepo.SumPercentByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("所有割合の集計に失敗しました: %w", err)
	}
	if total := sum + input.OwnershipPercent; total > 100+ownershipTolerance {
		return nil, model.NewOwnershipExceededError(total)
	}

	now := time.Now()
	owner := &model.Owner{
		ID:               uuid.New().String(),
		CompanyID:        companyID,
		FirstName:        input.FirstName,
		LastName:         input.LastName,
		Title:            input.Title,
		OwnershipPercent: input.OwnershipPercent,
		IsEligible:       input.IsEligible,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.ownerRepo.Create(ctx, owner); err != nil {
		return nil, fmt.Errorf("オーナーの作成に失敗しました: %w", err)
	}

	slog.Info("owner added",
		slog.String("company_id", companyID),
		slog.String("owner_id", owner.ID),
	)
	return owner, nil
}

// UpdateOwner はオーナーを更新する。更新後の合計が100%を超える場合は拒否する。
func (s *Service) UpdateOwner(ctx context.Context, companyID, ownerID string, input OwnerInput) (*model.Owner, error) {
	if err := validateOwnerInput(&input); err != nil {
		return nil, err
	}

	owner, err := s.ownerRepo.FindByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("オーナーの取得に失敗しました: %w", err)
	}
	if owner == nil || owner.CompanyID != companyID {
		return nil, model.NewNotFoundError("オーナー")
	}

	sum, err := s.ownerRepo.SumPercentByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("所有割合の集計に失敗しました: %w", err)
	}
	if total := sum - owner.OwnershipPercent + input.OwnershipPercent; total > 100+ownershipTolerance {
		return nil, model.NewOwnershipExceededError(total)
	}

	owner.FirstName = input.FirstName
	owner.LastName = input.LastName
	owner.Title = input.Title
	owner.OwnershipPercent = input.OwnershipPercent
	owner.IsEligible = input.IsEligible
	owner.UpdatedAt = time.Now()

	if err := s.ownerRepo.Update(ctx, owner); err != nil {
		return nil, fmt.Errorf("オーナーの更新に失敗しました: %w", err)
	}
	return owner, nil
}

// DeleteOwner はオーナーを削除する。
func (s *Service) DeleteOwner(ctx context.Context, companyID, ownerID string) error {
	owner, err := s.ownerRepo.FindByID(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("オーナーの取得に失敗しました: %w", err)
	}
	if owner == nil || owner.CompanyID != companyID {
		return model.NewNotFoundError("オーナー")
	}
	if err := s.ownerRepo.Delete(ctx, ownerID); err != nil {
		return fmt.Errorf("オーナーの削除に失敗しました: %w", err)
	}
	return nil
}

// ListOwners は企業のオーナー一覧を返す。
func (s *Service) ListOwners(ctx context.Context, companyID string) ([]*model.Owner, error) {
	owners, err := s.ownerRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("オーナー一覧の取得に失敗しました: %w", err)
	}
	return owners, nil
}

// OwnershipTotal は企業の所有割合の合計を返す。
func (s *Service) OwnershipTotal(ctx context.Context, companyID string) (float64, error) {
	sum, err := s.ownerRepo.SumPercentByCompanyID(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("所有割合の集計に失敗しました: %w", err)
	}
	return sum, nil
}

func validateOwnerInput(input *OwnerInput) error {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if input.FirstName == "" || input.LastName == "" {
		return model.NewValidationError("オーナーの氏名は必須です")
	}
	if input.OwnershipPercent <= 0 || input.OwnershipPercent > 100 {
		return model.NewValidationError("所有割合は0より大きく100以下で指定してください")
	}
	return nil
}

// --- 従業員 ---

// EmployeeInput は従業員の作成・更新リクエスト。
type EmployeeInput struct {
	FirstName       string
	LastName        string
	Email           string
	DOB             time.Time
	HireDate        time.Time
	AnnualSalary    int64
	DependentsCount int
	Status          model.EmployeeStatus
}

// AddEmployee は従業員を追加する。メールアドレスは企業内で一意でなければならない。
func (s *Service) AddEmployee(ctx context.Context, companyID string, input EmployeeInput) (*model.Employee, error) {
	if err := validateEmployeeInput(&input); err != nil {
		return nil, err
	}
	if err := s.checkEmailUnique(ctx, companyID, input.Email, ""); err != nil {
		return nil, err
	}

	now := time.Now()
	employee := &model.Employee{
		ID:              uuid.New().String(),
		CompanyID:       companyID,
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		Email:           input.Email,
		DOB:             input.DOB,
		HireDate:        input.HireDate,
		AnnualSalary:    input.AnnualSalary,
		DependentsCount: input.DependentsCount,
		Status:          input.Status,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.employeeRepo.Create(ctx, employee); err != nil {
		return nil, fmt.Errorf("従業員の作成に失敗しました: %w", err)
	}

	slog.Info("employee added",
		slog.String("company_id", companyID),
		slog.String("employee_id", employee.ID),
	)
	return employee, nil
}

// UpdateEmployee は従業員を更新する。
func (s *Service) UpdateEmployee(ctx context.Context, companyID, employeeID string, input EmployeeInput) (*model.Employee, error) {
	if err := validateEmployeeInput(&input); err != nil {
		return nil, err
	}

	employee, err := s.employeeRepo.FindByID(ctx, employeeID)
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil || employee.CompanyID != companyID {
		return nil, model.NewNotFoundError("従業員")
	}
	if err := s.checkEmailUnique(ctx, companyID, input.Email, employeeID); err != nil {
		return nil, err
	}

	employee.FirstName = input.FirstName
	employee.LastName = input.LastName
	employee.Email = input.Email
	employee.DOB = input.DOB
	employee.HireDate = input.HireDate
	employee.AnnualSalary = input.AnnualSalary
	employee.DependentsCount = input.DependentsCount
	employee.Status = input.Status
	employee.UpdatedAt = time.Now()

	if err := s.employeeRepo.Update(ctx, employee); err != nil {
		return nil, fmt.Errorf("従業員の更新に失敗しました: %w", err)
	}
	return employee, nil
}

// DeleteEmployee は従業員を削除する。
func (s *Service) DeleteEmployee(ctx context.Context, companyID, employeeID string) error {
	employee, err := s.employeeRepo.FindByID(ctx, employeeID)
	if err != nil {
		return fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	if employee == nil || employee.CompanyID != companyID {
		return model.NewNotFoundError("従業員")
	}
	if err := s.employeeRepo.Delete(ctx, employeeID); err != nil {
		return fmt.Errorf("従業員の削除に失敗しました: %w", err)
	}
	return nil
}

// ListEmployees は企業の従業員一覧を返す。
func (s *Service) ListEmployees(ctx context.Context, companyID string) ([]*model.Employee, error) {
	employees, err := s.employeeRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("従業員一覧の取得に失敗しました: %w", err)
	}
	return employees, nil
}

// checkEmailUnique は企業内でのメールアドレスの一意性を検証する。
// excludeIDは更新時に自分自身を除外するために使う。
func (s *Service) checkEmailUnique(ctx context.Context, companyID, email, excludeID string) error {
	employees, err := s.employeeRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return fmt.Errorf("従業員一覧の取得に失敗しました: %w", err)
	}
	lower := strings.ToLower(email)
	for _, e := range employees {
		if e.ID == excludeID {
			continue
		}
		if strings.ToLower(e.Email) == lower {
			return model.NewDuplicateEmailError()
		}
	}
	return nil
}

func validateEmployeeInput(input *EmployeeInput) error {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)

	if input.FirstName == "" || input.LastName == "" {
		return model.NewValidationError("従業員の氏名は必須です")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return model.NewValidationError("メールアドレスの形式が不正です")
	}
	if input.DOB.IsZero() {
		return model.NewValidationError("生年月日は必須です")
	}
	if !input.DOB.Before(time.Now()) {
		return model.NewValidationError("生年月日は過去の日付でなければなりません")
	}
	if input.HireDate.IsZero() {
		return model.NewValidationError("入社日は必須です")
	}
	if input.HireDate.Before(input.DOB) {
		return model.NewValidationError("入社日は生年月日より後でなければなりません")
	}
	if input.AnnualSalary < 0 {
		return model.NewValidationError("年収は0以上で指定してください")
	}
	if input.DependentsCount < 0 || input.DependentsCount > maxDependents {
		return model.NewValidationError(fmt.Sprintf("扶養家族数は0〜%dの範囲で指定してください", maxDependents))
	}
	if input.Status == "" {
		input.Status = model.EmployeeActive
	}
	if !input.Status.IsValid() {
		return model.NewValidationError(fmt.Sprintf("不正な従業員ステータスです: %s", input.Status))
	}
	return nil
}
