package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresEmployeeRepo はPostgreSQLを使用した従業員リポジトリ。
type PostgresEmployeeRepo struct {
	db *sql.DB
}

// NewPostgresEmployeeRepo はPostgresEmployeeRepoを生成する。
func NewPostgresEmployeeRepo(db *sql.DB) *PostgresEmployeeRepo {
	return &PostgresEmployeeRepo{db: db}
}

const employeeColumns = `id, company_id, first_name, last_name, email, dob, hire_date, annual_salary, dependents_count, status, created_at, updated_at`

func scanEmployee(row rowScanner) (*model.Employee, error) {
	emp := &model.Employee{}
	var dob, hireDate sql.NullTime
	err := row.Scan(
		&emp.ID, &emp.CompanyID, &emp.FirstName, &emp.LastName, &emp.Email,
		&dob, &hireDate, &emp.AnnualSalary, &emp.DependentsCount, &emp.Status,
		&emp.CreatedAt, &emp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	emp.DOB = nullTimeValue(dob)
	emp.HireDate = nullTimeValue(hireDate)
	return emp, nil
}

// FindByID は指定IDの従業員を取得する。見つからない場合はnilを返す。
func (r *PostgresEmployeeRepo) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	emp, err := scanEmployee(r.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("従業員の取得に失敗しました: %w", err)
	}
	return emp, nil
}

// Create は従業員を作成する。
func (r *PostgresEmployeeRepo) Create(ctx context.Context, employee *model.Employee) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO employees (id, company_id, first_name, last_name, email, dob, hire_date,
		                        annual_salary, dependents_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		employee.ID, employee.CompanyID, employee.FirstName, employee.LastName, employee.Email,
		nullTime(employee.DOB), nullTime(employee.HireDate),
		employee.AnnualSalary, employee.DependentsCount, employee.Status,
		employee.CreatedAt, employee.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("従業員の作成に失敗しました: %w", err)
	}
	return nil
}

// CreateBatch は複数の従業員を同一トランザクションで作成する。
// 1件でも失敗した場合は全件ロールバックする。
func (r *PostgresEmployeeRepo) CreateBatch(ctx context.Context, employees []*model.Employee) error {
	if len(employees) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO employees (id, company_id, first_name, last_name, email, dob, hire_date,
		                        annual_salary, dependents_count, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, employee := range employees {
		_, err := stmt.ExecContext(ctx,
			employee.ID, employee.CompanyID, employee.FirstName, employee.LastName, employee.Email,
			nullTime(employee.DOB), nullTime(employee.HireDate),
			employee.AnnualSalary, employee.DependentsCount, employee.Status,
			employee.CreatedAt, employee.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("従業員の一括作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update は従業員情報を更新する。
func (r *PostgresEmployeeRepo) Update(ctx context.Context, employee *model.Employee) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE employees SET
		    first_name = $2, last_name = $3, email = $4, dob = $5, hire_date = $6,
		    annual_salary = $7, dependents_count = $8, status = $9, updated_at = $10
		 WHERE id = $1`,
		employee.ID, employee.FirstName, employee.LastName, employee.Email,
		nullTime(employee.DOB), nullTime(employee.HireDate),
		employee.AnnualSalary, employee.DependentsCount, employee.Status,
		employee.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("従業員の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの従業員を削除する。
func (r *PostgresEmployeeRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("従業員の削除に失敗しました: %w", err)
	}
	return nil
}

// ListByCompanyID は指定企業の全従業員を姓・名の昇順で返す。
func (r *PostgresEmployeeRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Employee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE company_id = $1
		 ORDER BY last_name ASC, first_name ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("従業員一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var employees []*model.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("従業員一覧の読み取りに失敗しました: %w", err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("従業員一覧の走査に失敗しました: %w", err)
	}
	return employees, nil
}

// CountByCompanyID は指定企業の従業員数を返す。
func (r *PostgresEmployeeRepo) CountByCompanyID(ctx context.Context, companyID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM employees WHERE company_id = $1`,
		companyID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("従業員数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// nullTime はゼロ値のtime.Timeをsql.NullTimeに変換する。
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// nullTimeValue はsql.NullTimeからtime.Timeを取得する。NULLはゼロ値になる。
func nullTimeValue(nt sql.NullTime) time.Time {
	if nt.Valid {
		return nt.Time
	}
	return time.Time{}
}

// compile-time interface check
var _ EmployeeRepository = (*PostgresEmployeeRepo)(nil)
