package census

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// --- モック定義 ---

type mockEmployeeRepo struct {
	createBatchFn     func(ctx context.Context, employees []*model.Employee) error
	listByCompanyIDFn func(ctx context.Context, companyID string) ([]*model.Employee, error)
}

func (m *mockEmployeeRepo) FindByID(_ context.Context, _ string) (*model.Employee, error) {
	return nil, nil
}

func (m *mockEmployeeRepo) Create(_ context.Context, _ *model.Employee) error { return nil }

func (m *mockEmployeeRepo) CreateBatch(ctx context.Context, employees []*model.Employee) error {
	if m.createBatchFn != nil {
		return m.createBatchFn(ctx, employees)
	}
	return nil
}

func (m *mockEmployeeRepo) Update(_ context.Context, _ *model.Employee) error { return nil }

func (m *mockEmployeeRepo) Delete(_ context.Context, _ string) error { return nil }

func (m *mockEmployeeRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Employee, error) {
	if m.listByCompanyIDFn != nil {
		return m.listByCompanyIDFn(ctx, companyID)
	}
	return nil, nil
}

func (m *mockEmployeeRepo) CountByCompanyID(_ context.Context, _ string) (int, error) {
	return 0, nil
}

// compile-time interface check
var _ repository.EmployeeRepository = (*mockEmployeeRepo)(nil)

const censusHeader = "first_name,last_name,email,date_of_birth,hire_date,annual_salary,dependents"

// --- テスト ---

func TestImport_ValidCSV_CreatesEmployees(t *testing.T) {
	ctx := context.Background()

	var created []*model.Employee
	repo := &mockEmployeeRepo{
		createBatchFn: func(ctx context.Context, employees []*model.Employee) error {
			created = employees
			return nil
		},
	}

	csvData := censusHeader + "\n" +
		"Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,52000,2\n" +
		`Hanako,Sato,hanako@example.com,3/15/1990,4/1/2021,"61,500",0` + "\n"

	im := NewImporter(repo, 500)
	result, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
	if len(created) != 2 {
		t.Fatalf("CreateBatch received %d employees, want 2", len(created))
	}

	first := created[0]
	if first.FirstName != "Taro" || first.LastName != "Yamada" {
		t.Errorf("name = %s %s, want Taro Yamada", first.FirstName, first.LastName)
	}
	if first.CompanyID != "company-1" {
		t.Errorf("companyID = %q, want %q", first.CompanyID, "company-1")
	}
	if first.ID == "" {
		t.Error("expected generated employee ID")
	}
	if first.Status != model.EmployeeActive {
		t.Errorf("status = %q, want %q", first.Status, model.EmployeeActive)
	}
	if first.DOB.Year() != 1985 || first.DOB.Month() != 4 || first.DOB.Day() != 12 {
		t.Errorf("dob = %v, want 1985-04-12", first.DOB)
	}
	if first.AnnualSalary != 52000 {
		t.Errorf("salary = %d, want 52000", first.AnnualSalary)
	}
	if first.DependentsCount != 2 {
		t.Errorf("dependents = %d, want 2", first.DependentsCount)
	}

	// M/D/YYYY形式の日付と桁区切りカンマ付き年収も受け付ける
	second := created[1]
	if second.DOB.Year() != 1990 || second.DOB.Month() != 3 || second.DOB.Day() != 15 {
		t.Errorf("dob = %v, want 1990-03-15", second.DOB)
	}
	if second.AnnualSalary != 61500 {
		t.Errorf("salary = %d, want 61500", second.AnnualSalary)
	}
}

func TestImport_HeaderCaseAndSpaceVariants(t *testing.T) {
	ctx := context.Background()

	var created []*model.Employee
	repo := &mockEmployeeRepo{
		createBatchFn: func(ctx context.Context, employees []*model.Employee) error {
			created = employees
			return nil
		},
	}

	// タイトルケース・空白区切りのヘッダーも同じ列として扱う
	csvData := "First Name,Last Name,EMAIL,Date Of Birth,Hire Date,Annual Salary,Dependents\n" +
		"Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,52000,2\n"

	im := NewImporter(repo, 500)
	if _, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData)); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("CreateBatch received %d employees, want 1", len(created))
	}
}

func TestImport_MissingColumn_ReturnsError(t *testing.T) {
	ctx := context.Background()

	// dependents列が欠けている
	csvData := "first_name,last_name,email,date_of_birth,hire_date,annual_salary\n" +
		"Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,52000\n"

	im := NewImporter(&mockEmployeeRepo{}, 500)
	_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
	if err == nil {
		t.Fatal("expected error for missing column")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeCensusInvalid {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeCensusInvalid)
	}
	if !strings.Contains(apiErr.Message, "dependents") {
		t.Errorf("message %q should name the missing column", apiErr.Message)
	}
}

func TestImport_RowErrors_NothingInserted(t *testing.T) {
	ctx := context.Background()

	batchCalled := false
	repo := &mockEmployeeRepo{
		createBatchFn: func(ctx context.Context, employees []*model.Employee) error {
			batchCalled = true
			return nil
		},
	}

	// 2行目は妥当、3行目は日付不正、4行目はメール欠落
	csvData := censusHeader + "\n" +
		"Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,52000,2\n" +
		"Jiro,Suzuki,jiro@example.com,not-a-date,2020-04-01,48000,1\n" +
		"Saburo,Tanaka,,1979-11-02,2018-07-15,55000,3\n"

	im := NewImporter(repo, 500)
	_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %T", err)
	}
	if len(importErr.Rows) != 2 {
		t.Fatalf("row errors = %d, want 2: %+v", len(importErr.Rows), importErr.Rows)
	}

	// 行番号はヘッダーを1行目として数える
	if importErr.Rows[0].Row != 3 || importErr.Rows[0].Field != "date_of_birth" {
		t.Errorf("first error = row %d field %q, want row 3 field date_of_birth",
			importErr.Rows[0].Row, importErr.Rows[0].Field)
	}
	if importErr.Rows[1].Row != 4 || importErr.Rows[1].Field != "email" {
		t.Errorf("second error = row %d field %q, want row 4 field email",
			importErr.Rows[1].Row, importErr.Rows[1].Field)
	}

	// 妥当な行があっても1件も登録されないこと
	if batchCalled {
		t.Error("CreateBatch should not be called when any row is invalid")
	}
}

func TestImport_FieldValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		row       string
		wantField string
	}{
		{
			name:      "未来の生年月日",
			row:       "Taro,Yamada,taro@example.com,2999-01-01,2020-04-01,52000,2",
			wantField: "date_of_birth",
		},
		{
			name:      "生年月日より前の入社日",
			row:       "Taro,Yamada,taro@example.com,1985-04-12,1980-01-01,52000,2",
			wantField: "hire_date",
		},
		{
			name:      "負の年収",
			row:       "Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,-100,2",
			wantField: "annual_salary",
		},
		{
			name:      "扶養家族数の上限超過",
			row:       "Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,52000,16",
			wantField: "dependents",
		},
		{
			name:      "アットマークのないメール",
			row:       "Taro,Yamada,not-an-email,1985-04-12,2020-04-01,52000,2",
			wantField: "email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csvData := censusHeader + "\n" + tt.row + "\n"

			im := NewImporter(&mockEmployeeRepo{}, 500)
			_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
			if err == nil {
				t.Fatal("expected validation error")
			}

			var importErr *ImportError
			if !errors.As(err, &importErr) {
				t.Fatalf("expected *ImportError, got %T (%v)", err, err)
			}
			if len(importErr.Rows) == 0 {
				t.Fatal("expected at least one row error")
			}
			if importErr.Rows[0].Field != tt.wantField {
				t.Errorf("error field = %q, want %q", importErr.Rows[0].Field, tt.wantField)
			}
		})
	}
}

func TestImport_DuplicateEmailInFile(t *testing.T) {
	ctx := context.Background()

	csvData := censusHeader + "\n" +
		"Taro,Yamada,same@example.com,1985-04-12,2020-04-01,52000,2\n" +
		"Jiro,Suzuki,SAME@example.com,1990-03-15,2021-04-01,48000,1\n"

	im := NewImporter(&mockEmployeeRepo{}, 500)
	_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
	if err == nil {
		t.Fatal("expected duplicate email error")
	}

	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %T", err)
	}
	// 大文字小文字を無視して重複と判定し、後の行をエラーにする
	if importErr.Rows[0].Row != 3 || importErr.Rows[0].Field != "email" {
		t.Errorf("error = row %d field %q, want row 3 field email",
			importErr.Rows[0].Row, importErr.Rows[0].Field)
	}
}

func TestImport_DuplicateEmailAgainstRoster(t *testing.T) {
	ctx := context.Background()

	repo := &mockEmployeeRepo{
		listByCompanyIDFn: func(ctx context.Context, companyID string) ([]*model.Employee, error) {
			return []*model.Employee{
				{ID: "emp-1", CompanyID: companyID, Email: "Existing@Example.com"},
			}, nil
		},
	}

	csvData := censusHeader + "\n" +
		"Taro,Yamada,existing@example.com,1985-04-12,2020-04-01,52000,2\n"

	im := NewImporter(repo, 500)
	_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
	if err == nil {
		t.Fatal("expected duplicate email error")
	}

	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected *ImportError, got %T", err)
	}
	if importErr.Rows[0].Field != "email" {
		t.Errorf("error field = %q, want email", importErr.Rows[0].Field)
	}
}

func TestImport_RowCapExceeded(t *testing.T) {
	ctx := context.Background()

	var b strings.Builder
	b.WriteString(censusHeader + "\n")
	b.WriteString("Taro,Yamada,a@example.com,1985-04-12,2020-04-01,52000,2\n")
	b.WriteString("Jiro,Suzuki,b@example.com,1990-03-15,2021-04-01,48000,1\n")
	b.WriteString("Saburo,Tanaka,c@example.com,1979-11-02,2018-07-15,55000,3\n")

	im := NewImporter(&mockEmployeeRepo{}, 2)
	_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(b.String()))
	if err == nil {
		t.Fatal("expected row cap error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeCensusInvalid {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeCensusInvalid)
	}
}

func TestImport_UnsupportedExtension(t *testing.T) {
	ctx := context.Background()

	im := NewImporter(&mockEmployeeRepo{}, 500)
	_, err := im.Import(ctx, "company-1", "roster.txt", strings.NewReader("whatever"))
	if err == nil {
		t.Fatal("expected file type error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeInvalidFileType {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidFileType)
	}
}

func TestImport_HeaderOnly_ReturnsError(t *testing.T) {
	ctx := context.Background()

	im := NewImporter(&mockEmployeeRepo{}, 500)
	_, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(censusHeader+"\n"))
	if err == nil {
		t.Fatal("expected error for header-only file")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeCensusInvalid {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeCensusInvalid)
	}
}

func TestImport_SkipsBlankRows(t *testing.T) {
	ctx := context.Background()

	var created []*model.Employee
	repo := &mockEmployeeRepo{
		createBatchFn: func(ctx context.Context, employees []*model.Employee) error {
			created = employees
			return nil
		},
	}

	csvData := censusHeader + "\n" +
		"Taro,Yamada,taro@example.com,1985-04-12,2020-04-01,52000,2\n" +
		",,,,,,\n" +
		"Jiro,Suzuki,jiro@example.com,1990-03-15,2021-04-01,48000,1\n"

	im := NewImporter(repo, 500)
	result, err := im.Import(ctx, "company-1", "roster.csv", strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if result.Imported != 2 || len(created) != 2 {
		t.Errorf("imported = %d (batch %d), want 2", result.Imported, len(created))
	}
}

func TestImport_XLSX_FirstSheet(t *testing.T) {
	ctx := context.Background()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []interface{}{"first_name", "last_name", "email", "date_of_birth", "hire_date", "annual_salary", "dependents"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatalf("SetSheetRow() error = %v", err)
	}
	row := []interface{}{"Taro", "Yamada", "taro@example.com", "1985-04-12", "2020-04-01", "52000", "2"}
	if err := f.SetSheetRow(sheet, "A2", &row); err != nil {
		t.Fatalf("SetSheetRow() error = %v", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer() error = %v", err)
	}

	var created []*model.Employee
	repo := &mockEmployeeRepo{
		createBatchFn: func(ctx context.Context, employees []*model.Employee) error {
			created = employees
			return nil
		},
	}

	im := NewImporter(repo, 500)
	result, err := im.Import(ctx, "company-1", "roster.xlsx", bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if result.Imported != 1 || len(created) != 1 {
		t.Fatalf("imported = %d (batch %d), want 1", result.Imported, len(created))
	}
	if created[0].Email != "taro@example.com" {
		t.Errorf("email = %q, want taro@example.com", created[0].Email)
	}
	if created[0].AnnualSalary != 52000 {
		t.Errorf("salary = %d, want 52000", created[0].AnnualSalary)
	}
}

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"first_name", "first_name"},
		{"First Name", "first_name"},
		{"FIRST-NAME", "first_name"},
		{"  Hire Date  ", "hire_date"},
		{"\uFEFFfirst_name", "first_name"}, // BOM付きの先頭列
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizeHeader(tt.in); got != tt.want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDate_AcceptedFormats(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"1985-04-12", false},
		{"3/15/1990", false},
		{"12/1/2020", false},
		{"1985/04/12", true},
		{"04-12-1985", true},
		{"not-a-date", true},
	}

	for _, tt := range tests {
		_, err := parseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"52000", 52000, false},
		{"52,000", 52000, false},
		{"$52,000", 52000, false},
		{"0", 0, false},
		{"-100", 0, true},
		{"abc", 0, true},
		{"52000.50", 0, true},
	}

	for _, tt := range tests {
		got, err := parseSalary(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseSalary(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseSalary(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
