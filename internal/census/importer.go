// Package census は従業員名簿ファイル（CSV/Excel）の一括取り込みを提供する。
//
// 取り込みは全行成功か全行失敗のどちらかになる。1行でも検証エラーが
// あればファイル全体を拒否し、行ごとのエラー一覧を返す。
package census

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// requiredColumns は名簿ファイルに必須のヘッダー列。
// 照合はnormalizeHeaderで正規化した上で行うため、
// 大文字小文字や空白・ハイフン区切り（"First Name"等）の揺れは許容する。
var requiredColumns = []string{
	"first_name",
	"last_name",
	"email",
	"date_of_birth",
	"hire_date",
	"annual_salary",
	"dependents",
}

// maxDependents は1行あたりの扶養家族数の上限。
const maxDependents = 15

// dateFormats は日付列で受け付ける形式。
var dateFormats = []string{"2006-01-02", "1/2/2006"}

// RowError は名簿ファイル内の1項目の検証エラーを表す。
// Rowはヘッダー行を1としたファイル上の行番号。
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ImportError は取り込みファイルの検証エラーをまとめて保持する。
// 1件でも含まれる場合、取り込みは行われていない。
type ImportError struct {
	Rows []RowError
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("名簿に%d件のエラーがあります", len(e.Rows))
}

// ImportResult は取り込み成功時の結果を表す。
type ImportResult struct {
	Imported int
}

// Importer は名簿ファイルの解析・検証・一括登録を行う。
type Importer struct {
	employeeRepo repository.EmployeeRepository
	maxRows      int
}

// NewImporter はImporterを生成する。maxRowsは1回の取り込みで受け付ける
// データ行数の上限。
func NewImporter(employeeRepo repository.EmployeeRepository, maxRows int) *Importer {
	return &Importer{
		employeeRepo: employeeRepo,
		maxRows:      maxRows,
	}
}

// Import は名簿ファイルを解析し、全行が妥当な場合のみ従業員を一括登録する。
// 検証エラーがある場合は*ImportErrorを返し、1行も登録しない。
func (im *Importer) Import(ctx context.Context, companyID, filename string, r io.Reader) (*ImportResult, error) {
	records, err := parseFile(filename, r)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, model.NewCensusInvalidError("ファイルが空です")
	}

	columns, err := mapHeader(records[0])
	if err != nil {
		return nil, err
	}

	dataRows := records[1:]
	if countNonEmptyRows(dataRows) == 0 {
		return nil, model.NewCensusInvalidError("ヘッダー行のみでデータ行がありません")
	}
	if len(dataRows) > im.maxRows {
		return nil, model.NewCensusInvalidError(
			fmt.Sprintf("一度に取り込めるのは%d行までです（%d行が含まれています）", im.maxRows, len(dataRows)))
	}

	// 既存名簿のメールアドレスと突き合わせる
	existing, err := im.employeeRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("既存名簿の取得に失敗しました: %w", err)
	}
	rosterEmails := make(map[string]bool, len(existing))
	for _, emp := range existing {
		rosterEmails[normalizeEmail(emp.Email)] = true
	}

	var (
		employees []*model.Employee
		rowErrors []RowError
		seen      = make(map[string]bool) // ファイル内の重複検出
		now       = time.Now()
	)

	for i, row := range dataRows {
		rowNum := i + 2 // ヘッダーが1行目
		if isEmptyRow(row) {
			continue
		}

		emp, errs := parseRow(row, columns, rowNum)
		if len(errs) > 0 {
			rowErrors = append(rowErrors, errs...)
			continue
		}

		key := normalizeEmail(emp.Email)
		if seen[key] {
			rowErrors = append(rowErrors, RowError{
				Row: rowNum, Field: "email",
				Message: "このメールアドレスはファイル内で重複しています",
			})
			continue
		}
		seen[key] = true

		if rosterEmails[key] {
			rowErrors = append(rowErrors, RowError{
				Row: rowNum, Field: "email",
				Message: "このメールアドレスは既に名簿に登録されています",
			})
			continue
		}

		emp.ID = uuid.New().String()
		emp.CompanyID = companyID
		emp.Status = model.EmployeeActive
		emp.CreatedAt = now
		emp.UpdatedAt = now
		employees = append(employees, emp)
	}

	if len(rowErrors) > 0 {
		return nil, &ImportError{Rows: rowErrors}
	}

	if err := im.employeeRepo.CreateBatch(ctx, employees); err != nil {
		return nil, fmt.Errorf("名簿の一括登録に失敗しました: %w", err)
	}

	slog.Info("census imported",
		slog.String("company_id", companyID),
		slog.Int("count", len(employees)),
	)

	return &ImportResult{Imported: len(employees)}, nil
}

// parseFile はファイル形式を拡張子で判別して全行を読み込む。
func parseFile(filename string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		records, err := reader.ReadAll()
		if err != nil {
			return nil, model.NewCensusInvalidError(fmt.Sprintf("CSVの解析に失敗しました: %v", err))
		}
		return records, nil

	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, model.NewCensusInvalidError(fmt.Sprintf("Excelファイルの解析に失敗しました: %v", err))
		}
		defer f.Close()

		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, model.NewCensusInvalidError("Excelファイルにシートがありません")
		}
		// 先頭シートのみ取り込み対象とする
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, model.NewCensusInvalidError(fmt.Sprintf("シートの読み取りに失敗しました: %v", err))
		}
		return rows, nil

	default:
		return nil, model.NewInvalidFileTypeError("CSV・Excel（.xlsx）")
	}
}

// mapHeader はヘッダー行から列名と列番号の対応を作る。
// 必須列が欠けている場合はエラーを返す。
func mapHeader(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, cell := range header {
		name := normalizeHeader(cell)
		if name == "" {
			continue
		}
		if _, ok := columns[name]; !ok {
			columns[name] = i
		}
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, model.NewCensusInvalidError(
			fmt.Sprintf("必須列がありません: %s", strings.Join(missing, ", ")))
	}
	return columns, nil
}

// parseRow は1データ行を検証し、従業員レコードに変換する。
// エラーがある場合は項目ごとのRowErrorを返す。
func parseRow(row []string, columns map[string]int, rowNum int) (*model.Employee, []RowError) {
	var errs []RowError
	fail := func(field, message string) {
		errs = append(errs, RowError{Row: rowNum, Field: field, Message: message})
	}

	emp := &model.Employee{
		FirstName: cell(row, columns["first_name"]),
		LastName:  cell(row, columns["last_name"]),
		Email:     cell(row, columns["email"]),
	}

	if emp.FirstName == "" {
		fail("first_name", "必須項目です")
	}
	if emp.LastName == "" {
		fail("last_name", "必須項目です")
	}
	if emp.Email == "" {
		fail("email", "必須項目です")
	} else if !strings.Contains(emp.Email, "@") {
		fail("email", "メールアドレスの形式が正しくありません")
	}

	dobStr := cell(row, columns["date_of_birth"])
	if dobStr == "" {
		fail("date_of_birth", "必須項目です")
	} else if dob, err := parseDate(dobStr); err != nil {
		fail("date_of_birth", "日付の形式が正しくありません（YYYY-MM-DDまたはM/D/YYYY）")
	} else if !dob.Before(time.Now()) {
		fail("date_of_birth", "生年月日は過去の日付を指定してください")
	} else {
		emp.DOB = dob
	}

	hireStr := cell(row, columns["hire_date"])
	if hireStr == "" {
		fail("hire_date", "必須項目です")
	} else if hire, err := parseDate(hireStr); err != nil {
		fail("hire_date", "日付の形式が正しくありません（YYYY-MM-DDまたはM/D/YYYY）")
	} else if !emp.DOB.IsZero() && hire.Before(emp.DOB) {
		fail("hire_date", "入社日は生年月日より後の日付を指定してください")
	} else {
		emp.HireDate = hire
	}

	salaryStr := cell(row, columns["annual_salary"])
	if salaryStr != "" {
		salary, err := parseSalary(salaryStr)
		if err != nil {
			fail("annual_salary", "年収は0以上の整数で入力してください")
		} else {
			emp.AnnualSalary = salary
		}
	}

	depStr := cell(row, columns["dependents"])
	if depStr != "" {
		deps, err := strconv.Atoi(depStr)
		if err != nil || deps < 0 || deps > maxDependents {
			fail("dependents", fmt.Sprintf("扶養家族数は0〜%dの整数で入力してください", maxDependents))
		} else {
			emp.DependentsCount = deps
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return emp, nil
}

// normalizeHeader は列名を正規化する。
// 大文字小文字を無視し、空白・ハイフンはアンダースコアとして扱う。
func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF") // UTF-8 BOM
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Trim(s, "_")
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// parseDate は受け付け形式を順に試して日付をパースする。
func parseDate(s string) (time.Time, error) {
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format: %s", s)
}

// parseSalary は年収文字列をパースする。桁区切りカンマとドル記号は無視する。
func parseSalary(s string) (int64, error) {
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	salary, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if salary < 0 {
		return 0, fmt.Errorf("negative salary: %d", salary)
	}
	return salary, nil
}

// cell は行からi番目のセルを取り出す。範囲外は空文字列を返す。
func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// isEmptyRow は全セルが空白の行かどうかを返す。
func isEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func countNonEmptyRows(rows [][]string) int {
	n := 0
	for _, row := range rows {
		if !isEmptyRow(row) {
			n++
		}
	}
	return n
}
