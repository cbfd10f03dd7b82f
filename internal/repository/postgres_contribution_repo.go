package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresContributionRepo はPostgreSQLを使用した事業主負担リポジトリ。
type PostgresContributionRepo struct {
	db *sql.DB
}

// NewPostgresContributionRepo はPostgresContributionRepoを生成する。
func NewPostgresContributionRepo(db *sql.DB) *PostgresContributionRepo {
	return &PostgresContributionRepo{db: db}
}

// FindByCompanyAndType は企業IDとプラン種別で負担設定を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresContributionRepo) FindByCompanyAndType(ctx context.Context, companyID string, planType model.PlanType) (*model.Contribution, error) {
	c := &model.Contribution{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, company_id, plan_type, employee_mode, employee_value, dependent_mode, dependent_value, created_at, updated_at
		 FROM contributions WHERE company_id = $1 AND plan_type = $2`,
		companyID, planType,
	).Scan(&c.ID, &c.CompanyID, &c.PlanType, &c.EmployeeMode, &c.EmployeeValue, &c.DependentMode, &c.DependentValue, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("負担設定の取得に失敗しました: %w", err)
	}

	return c, nil
}

// ListByCompanyID は指定企業の全負担設定を返す。
func (r *PostgresContributionRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Contribution, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, company_id, plan_type, employee_mode, employee_value, dependent_mode, dependent_value, created_at, updated_at
		 FROM contributions WHERE company_id = $1 ORDER BY plan_type ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("負担設定一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var contributions []*model.Contribution
	for rows.Next() {
		c := &model.Contribution{}
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.PlanType, &c.EmployeeMode, &c.EmployeeValue, &c.DependentMode, &c.DependentValue, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("負担設定一覧の読み取りに失敗しました: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("負担設定一覧の走査に失敗しました: %w", err)
	}
	return contributions, nil
}

// Upsert は負担設定を冪等にUPSERTする。
// (company_id, plan_type) が既に存在する場合は上書きする。
func (r *PostgresContributionRepo) Upsert(ctx context.Context, contribution *model.Contribution) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contributions (id, company_id, plan_type, employee_mode, employee_value, dependent_mode, dependent_value, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (company_id, plan_type)
		 DO UPDATE SET employee_mode = EXCLUDED.employee_mode,
		               employee_value = EXCLUDED.employee_value,
		               dependent_mode = EXCLUDED.dependent_mode,
		               dependent_value = EXCLUDED.dependent_value,
		               updated_at = EXCLUDED.updated_at`,
		contribution.ID, contribution.CompanyID, contribution.PlanType,
		contribution.EmployeeMode, contribution.EmployeeValue,
		contribution.DependentMode, contribution.DependentValue,
		contribution.CreatedAt, contribution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("負担設定のUPSERTに失敗しました: %w", err)
	}
	return nil
}

// DeleteByCompanyAndType は指定企業・プラン種別の負担設定を削除する。
func (r *PostgresContributionRepo) DeleteByCompanyAndType(ctx context.Context, companyID string, planType model.PlanType) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM contributions WHERE company_id = $1 AND plan_type = $2`,
		companyID, planType,
	)
	if err != nil {
		return fmt.Errorf("負担設定の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ContributionRepository = (*PostgresContributionRepo)(nil)
