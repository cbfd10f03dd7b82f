package company

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// --- モック定義 ---

type mockCompanyRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Company, error)
	createFn   func(ctx context.Context, company *model.Company) error
	updateFn   func(ctx context.Context, company *model.Company) error
	deleteFn   func(ctx context.Context, id string) error
}

func (m *mockCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockCompanyRepo) Create(ctx context.Context, company *model.Company) error {
	if m.createFn != nil {
		return m.createFn(ctx, company)
	}
	return nil
}

func (m *mockCompanyRepo) Update(ctx context.Context, company *model.Company) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, company)
	}
	return nil
}

func (m *mockCompanyRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockCompanyRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Company, error) {
	return nil, nil
}

func (m *mockCompanyRepo) Count(ctx context.Context) (int, error) { return 0, nil }

type mockOwnerRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.Owner, error)
	createFn     func(ctx context.Context, owner *model.Owner) error
	updateFn     func(ctx context.Context, owner *model.Owner) error
	deleteFn     func(ctx context.Context, id string) error
	sumPercentFn func(ctx context.Context, companyID string) (float64, error)
}

func (m *mockOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockOwnerRepo) Create(ctx context.Context, owner *model.Owner) error {
	if m.createFn != nil {
		return m.createFn(ctx, owner)
	}
	return nil
}

func (m *mockOwnerRepo) Update(ctx context.Context, owner *model.Owner) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, owner)
	}
	return nil
}

func (m *mockOwnerRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockOwnerRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Owner, error) {
	return nil, nil
}

func (m *mockOwnerRepo) SumPercentByCompanyID(ctx context.Context, companyID string) (float64, error) {
	if m.sumPercentFn != nil {
		return m.sumPercentFn(ctx, companyID)
	}
	return 0, nil
}

type mockEmployeeRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.Employee, error)
	createFn          func(ctx context.Context, employee *model.Employee) error
	updateFn          func(ctx context.Context, employee *model.Employee) error
	deleteFn          func(ctx context.Context, id string) error
	listByCompanyIDFn func(ctx context.Context, companyID string) ([]*model.Employee, error)
}

func (m *mockEmployeeRepo) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockEmployeeRepo) Create(ctx context.Context, employee *model.Employee) error {
	if m.createFn != nil {
		return m.createFn(ctx, employee)
	}
	return nil
}

func (m *mockEmployeeRepo) CreateBatch(ctx context.Context, employees []*model.Employee) error {
	return nil
}

func (m *mockEmployeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, employee)
	}
	return nil
}

func (m *mockEmployeeRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockEmployeeRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Employee, error) {
	if m.listByCompanyIDFn != nil {
		return m.listByCompanyIDFn(ctx, companyID)
	}
	return nil, nil
}

func (m *mockEmployeeRepo) CountByCompanyID(ctx context.Context, companyID string) (int, error) {
	return 0, nil
}

// --- compile-time interface checks ---

var (
	_ repository.CompanyRepository  = (*mockCompanyRepo)(nil)
	_ repository.OwnerRepository    = (*mockOwnerRepo)(nil)
	_ repository.EmployeeRepository = (*mockEmployeeRepo)(nil)
)

func newTestService(companies *mockCompanyRepo, owners *mockOwnerRepo, employees *mockEmployeeRepo) *Service {
	if companies == nil {
		companies = &mockCompanyRepo{}
	}
	if owners == nil {
		owners = &mockOwnerRepo{}
	}
	if employees == nil {
		employees = &mockEmployeeRepo{}
	}
	return NewService(companies, owners, employees)
}

func validCompanyInput() CompanyInput {
	return CompanyInput{
		Name:       "山田商事",
		TaxID:      "94-1234567",
		EntityType: model.EntityCorporation,
		Industry:   "小売",
		Address:    "123 Market St",
		City:       "San Francisco",
		State:      "ca",
		ZipCode:    "94105",
		Phone:      "415-555-0100",
	}
}

func validEmployeeInput() EmployeeInput {
	return EmployeeInput{
		FirstName:    "太郎",
		LastName:     "山田",
		Email:        "taro@example.com",
		DOB:          time.Date(1985, 4, 1, 0, 0, 0, 0, time.UTC),
		HireDate:     time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC),
		AnnualSalary: 62000,
	}
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("エラーが返ってくるはず")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返ってくるはず: %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %s, want %s", apiErr.Code, code)
	}
}

// --- テスト ---

func TestCreate_ValidInput(t *testing.T) {
	var created *model.Company
	companies := &mockCompanyRepo{
		createFn: func(ctx context.Context, company *model.Company) error {
			created = company
			return nil
		},
	}
	service := newTestService(companies, nil, nil)

	company, err := service.Create(context.Background(), "broker-1", "user-1", validCompanyInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if created == nil {
		t.Fatal("リポジトリに企業が渡されていない")
	}
	if company.ID == "" {
		t.Error("IDが採番されていない")
	}
	if company.BrokerID != "broker-1" {
		t.Errorf("BrokerID = %s, want broker-1", company.BrokerID)
	}
	if company.CreatedBy != "user-1" {
		t.Errorf("CreatedBy = %s, want user-1", company.CreatedBy)
	}
	// 州コードは大文字に正規化される
	if company.State != "CA" {
		t.Errorf("State = %s, want CA", company.State)
	}
	if company.CreatedAt.IsZero() || company.UpdatedAt.IsZero() {
		t.Error("タイムスタンプが設定されていない")
	}
}

func TestCreate_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*CompanyInput)
	}{
		{"企業名なし", func(in *CompanyInput) { in.Name = "  " }},
		{"不正な事業形態", func(in *CompanyInput) { in.EntityType = "conglomerate" }},
		{"州コードが3文字", func(in *CompanyInput) { in.State = "CAL" }},
		{"郵便番号の形式違反", func(in *CompanyInput) { in.ZipCode = "9410" }},
		{"EINの形式違反", func(in *CompanyInput) { in.TaxID = "123456789" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := false
			companies := &mockCompanyRepo{
				createFn: func(ctx context.Context, company *model.Company) error {
					created = true
					return nil
				},
			}
			service := newTestService(companies, nil, nil)

			input := validCompanyInput()
			tt.modify(&input)

			_, err := service.Create(context.Background(), "broker-1", "user-1", input)
			assertErrorCode(t, err, model.ErrCodeValidationFailed)
			if created {
				t.Error("検証エラー時に企業が作成されている")
			}
		})
	}
}

func TestCreate_AcceptsOptionalFieldsEmpty(t *testing.T) {
	service := newTestService(nil, nil, nil)

	// EIN・郵便番号・州は任意項目
	input := validCompanyInput()
	input.TaxID = ""
	input.ZipCode = ""
	input.State = ""

	if _, err := service.Create(context.Background(), "broker-1", "user-1", input); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

func TestAuthorize_OwnCompany(t *testing.T) {
	companies := &mockCompanyRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Company, error) {
			return &model.Company{ID: id, BrokerID: "broker-1"}, nil
		},
	}
	service := newTestService(companies, nil, nil)

	company, err := service.Authorize(context.Background(), "company-1", "broker-1", false)
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if company.ID != "company-1" {
		t.Errorf("ID = %s, want company-1", company.ID)
	}
}

func TestAuthorize_OtherBroker_ReturnsForbidden(t *testing.T) {
	companies := &mockCompanyRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Company, error) {
			return &model.Company{ID: id, BrokerID: "broker-2"}, nil
		},
	}
	service := newTestService(companies, nil, nil)

	_, err := service.Authorize(context.Background(), "company-1", "broker-1", false)
	assertErrorCode(t, err, model.ErrCodeForbidden)
}

func TestAuthorize_AdminCrossesTenantBoundary(t *testing.T) {
	companies := &mockCompanyRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Company, error) {
			return &model.Company{ID: id, BrokerID: "broker-2"}, nil
		},
	}
	service := newTestService(companies, nil, nil)

	if _, err := service.Authorize(context.Background(), "company-1", "broker-1", true); err != nil {
		t.Fatalf("管理者は他ブローカーの企業も参照できるはず: %v", err)
	}
}

func TestAuthorize_UnknownCompany_ReturnsNotFound(t *testing.T) {
	service := newTestService(nil, nil, nil)

	_, err := service.Authorize(context.Background(), "no-such-company", "broker-1", false)
	assertErrorCode(t, err, model.ErrCodeNotFound)
}

func TestUpdate_ModifiesFields(t *testing.T) {
	var updated *model.Company
	companies := &mockCompanyRepo{
		updateFn: func(ctx context.Context, company *model.Company) error {
			updated = company
			return nil
		},
	}
	service := newTestService(companies, nil, nil)

	existing := &model.Company{
		ID:        "company-1",
		BrokerID:  "broker-1",
		Name:      "旧社名",
		CreatedAt: time.Now().Add(-24 * time.Hour),
		UpdatedAt: time.Now().Add(-24 * time.Hour),
	}
	input := validCompanyInput()
	input.Name = "新社名"

	company, err := service.Update(context.Background(), existing, input)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated == nil {
		t.Fatal("リポジトリに更新が渡されていない")
	}
	if company.Name != "新社名" {
		t.Errorf("Name = %s, want 新社名", company.Name)
	}
	if !company.UpdatedAt.After(company.CreatedAt) {
		t.Error("UpdatedAtが更新されていない")
	}
}

// --- オーナーのテスト ---

func TestAddOwner_WithinLimit(t *testing.T) {
	var created *model.Owner
	owners := &mockOwnerRepo{
		sumPercentFn: func(ctx context.Context, companyID string) (float64, error) {
			return 60, nil
		},
		createFn: func(ctx context.Context, owner *model.Owner) error {
			created = owner
			return nil
		},
	}
	service := newTestService(nil, owners, nil)

	// 60 + 40 = ちょうど100%は許容される
	owner, err := service.AddOwner(context.Background(), "company-1", OwnerInput{
		FirstName:        "花子",
		LastName:         "佐藤",
		Title:            "CEO",
		OwnershipPercent: 40,
		IsEligible:       true,
	})
	if err != nil {
		t.Fatalf("AddOwner failed: %v", err)
	}
	if created == nil {
		t.Fatal("リポジトリにオーナーが渡されていない")
	}
	if owner.CompanyID != "company-1" {
		t.Errorf("CompanyID = %s, want company-1", owner.CompanyID)
	}
	if !owner.IsEligible {
		t.Error("IsEligibleが設定されていない")
	}
}

func TestAddOwner_TotalBoundary(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		add     float64
		wantErr bool
	}{
		{"合計100ちょうど", 60, 40, false},
		{"許容誤差内の超過", 60, 40.005, false},
		{"許容誤差を超える超過", 60, 40.02, true},
		{"大幅な超過", 70, 40, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owners := &mockOwnerRepo{
				sumPercentFn: func(ctx context.Context, companyID string) (float64, error) {
					return tt.current, nil
				},
			}
			service := newTestService(nil, owners, nil)

			_, err := service.AddOwner(context.Background(), "company-1", OwnerInput{
				FirstName:        "花子",
				LastName:         "佐藤",
				OwnershipPercent: tt.add,
			})
			if tt.wantErr {
				assertErrorCode(t, err, model.ErrCodeOwnershipExceeded)
			} else if err != nil {
				t.Fatalf("AddOwner failed: %v", err)
			}
		})
	}
}

func TestAddOwner_InvalidPercent(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
	}{
		{"ゼロ", 0},
		{"負の値", -5},
		{"100超", 100.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(nil, nil, nil)

			_, err := service.AddOwner(context.Background(), "company-1", OwnerInput{
				FirstName:        "花子",
				LastName:         "佐藤",
				OwnershipPercent: tt.percent,
			})
			assertErrorCode(t, err, model.ErrCodeValidationFailed)
		})
	}
}

func TestUpdateOwner_ExcludesOwnShareFromTotal(t *testing.T) {
	existing := &model.Owner{
		ID:               "owner-1",
		CompanyID:        "company-1",
		FirstName:        "花子",
		LastName:         "佐藤",
		OwnershipPercent: 50,
	}
	owners := &mockOwnerRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Owner, error) {
			return existing, nil
		},
		sumPercentFn: func(ctx context.Context, companyID string) (float64, error) {
			return 90, nil // 自分の50を含む合計
		},
	}
	service := newTestService(nil, owners, nil)

	// 90 - 50 + 60 = 100 は許容される
	owner, err := service.UpdateOwner(context.Background(), "company-1", "owner-1", OwnerInput{
		FirstName:        "花子",
		LastName:         "佐藤",
		OwnershipPercent: 60,
	})
	if err != nil {
		t.Fatalf("UpdateOwner failed: %v", err)
	}
	if owner.OwnershipPercent != 60 {
		t.Errorf("OwnershipPercent = %v, want 60", owner.OwnershipPercent)
	}

	// 90 - 50 + 61 = 101 は拒否される
	_, err = service.UpdateOwner(context.Background(), "company-1", "owner-1", OwnerInput{
		FirstName:        "花子",
		LastName:         "佐藤",
		OwnershipPercent: 61,
	})
	assertErrorCode(t, err, model.ErrCodeOwnershipExceeded)
}

func TestUpdateOwner_WrongCompany_ReturnsNotFound(t *testing.T) {
	owners := &mockOwnerRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Owner, error) {
			return &model.Owner{ID: id, CompanyID: "company-2", OwnershipPercent: 10}, nil
		},
	}
	service := newTestService(nil, owners, nil)

	_, err := service.UpdateOwner(context.Background(), "company-1", "owner-1", OwnerInput{
		FirstName:        "花子",
		LastName:         "佐藤",
		OwnershipPercent: 20,
	})
	assertErrorCode(t, err, model.ErrCodeNotFound)
}

func TestDeleteOwner_WrongCompany_NothingDeleted(t *testing.T) {
	deleted := false
	owners := &mockOwnerRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Owner, error) {
			return &model.Owner{ID: id, CompanyID: "company-2"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	service := newTestService(nil, owners, nil)

	err := service.DeleteOwner(context.Background(), "company-1", "owner-1")
	assertErrorCode(t, err, model.ErrCodeNotFound)
	if deleted {
		t.Error("他企業のオーナーが削除されている")
	}
}

// --- 従業員のテスト ---

func TestAddEmployee_Valid(t *testing.T) {
	var created *model.Employee
	employees := &mockEmployeeRepo{
		createFn: func(ctx context.Context, employee *model.Employee) error {
			created = employee
			return nil
		},
	}
	service := newTestService(nil, nil, employees)

	employee, err := service.AddEmployee(context.Background(), "company-1", validEmployeeInput())
	if err != nil {
		t.Fatalf("AddEmployee failed: %v", err)
	}
	if created == nil {
		t.Fatal("リポジトリに従業員が渡されていない")
	}
	if employee.CompanyID != "company-1" {
		t.Errorf("CompanyID = %s, want company-1", employee.CompanyID)
	}
	// ステータス未指定はactiveになる
	if employee.Status != model.EmployeeActive {
		t.Errorf("Status = %s, want active", employee.Status)
	}
}

func TestAddEmployee_DuplicateEmail_CaseInsensitive(t *testing.T) {
	employees := &mockEmployeeRepo{
		listByCompanyIDFn: func(ctx context.Context, companyID string) ([]*model.Employee, error) {
			return []*model.Employee{
				{ID: "emp-1", CompanyID: companyID, Email: "TARO@example.com"},
			}, nil
		},
	}
	service := newTestService(nil, nil, employees)

	_, err := service.AddEmployee(context.Background(), "company-1", validEmployeeInput())
	assertErrorCode(t, err, model.ErrCodeDuplicateEmail)
}

func TestUpdateEmployee_KeepingOwnEmailIsAllowed(t *testing.T) {
	existing := &model.Employee{
		ID:        "emp-1",
		CompanyID: "company-1",
		Email:     "taro@example.com",
	}
	employees := &mockEmployeeRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Employee, error) {
			return existing, nil
		},
		listByCompanyIDFn: func(ctx context.Context, companyID string) ([]*model.Employee, error) {
			return []*model.Employee{existing}, nil
		},
	}
	service := newTestService(nil, nil, employees)

	input := validEmployeeInput()
	input.AnnualSalary = 70000

	employee, err := service.UpdateEmployee(context.Background(), "company-1", "emp-1", input)
	if err != nil {
		t.Fatalf("UpdateEmployee failed: %v", err)
	}
	if employee.AnnualSalary != 70000 {
		t.Errorf("AnnualSalary = %d, want 70000", employee.AnnualSalary)
	}
}

func TestUpdateEmployee_TakingColleaguesEmailIsRejected(t *testing.T) {
	employees := &mockEmployeeRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Employee, error) {
			return &model.Employee{ID: "emp-1", CompanyID: "company-1", Email: "taro@example.com"}, nil
		},
		listByCompanyIDFn: func(ctx context.Context, companyID string) ([]*model.Employee, error) {
			return []*model.Employee{
				{ID: "emp-1", CompanyID: companyID, Email: "taro@example.com"},
				{ID: "emp-2", CompanyID: companyID, Email: "hanako@example.com"},
			}, nil
		},
	}
	service := newTestService(nil, nil, employees)

	input := validEmployeeInput()
	input.Email = "hanako@example.com"

	_, err := service.UpdateEmployee(context.Background(), "company-1", "emp-1", input)
	assertErrorCode(t, err, model.ErrCodeDuplicateEmail)
}

func TestAddEmployee_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*EmployeeInput)
	}{
		{"氏名なし", func(in *EmployeeInput) { in.FirstName = "" }},
		{"メールなし", func(in *EmployeeInput) { in.Email = "" }},
		{"メール形式違反", func(in *EmployeeInput) { in.Email = "not-an-email" }},
		{"生年月日なし", func(in *EmployeeInput) { in.DOB = time.Time{} }},
		{"生年月日が未来", func(in *EmployeeInput) { in.DOB = time.Now().Add(24 * time.Hour) }},
		{"入社日が生年月日より前", func(in *EmployeeInput) {
			in.HireDate = in.DOB.Add(-24 * time.Hour)
		}},
		{"年収が負", func(in *EmployeeInput) { in.AnnualSalary = -1 }},
		{"扶養家族数が上限超過", func(in *EmployeeInput) { in.DependentsCount = maxDependents + 1 }},
		{"不正なステータス", func(in *EmployeeInput) { in.Status = "retired" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(nil, nil, nil)

			input := validEmployeeInput()
			tt.modify(&input)

			_, err := service.AddEmployee(context.Background(), "company-1", input)
			assertErrorCode(t, err, model.ErrCodeValidationFailed)
		})
	}
}

func TestDeleteEmployee_WrongCompany_ReturnsNotFound(t *testing.T) {
	deleted := false
	employees := &mockEmployeeRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Employee, error) {
			return &model.Employee{ID: id, CompanyID: "company-2"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	service := newTestService(nil, nil, employees)

	err := service.DeleteEmployee(context.Background(), "company-1", "emp-1")
	assertErrorCode(t, err, model.ErrCodeNotFound)
	if deleted {
		t.Error("他企業の従業員が削除されている")
	}
}

func TestValidateCompanyInput_NormalizesState(t *testing.T) {
	input := validCompanyInput()
	input.State = " ca "

	if err := validateCompanyInput(&input); err != nil {
		t.Fatalf("validateCompanyInput failed: %v", err)
	}
	if input.State != "CA" {
		t.Errorf("State = %q, want CA", input.State)
	}
	if strings.Contains(input.State, " ") {
		t.Error("州コードに空白が残っている")
	}
}
