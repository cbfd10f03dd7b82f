package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresCompanyRepo はPostgreSQLを使用した企業リポジトリ。
type PostgresCompanyRepo struct {
	db *sql.DB
}

// NewPostgresCompanyRepo はPostgresCompanyRepoを生成する。
func NewPostgresCompanyRepo(db *sql.DB) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: db}
}

const companyColumns = `id, broker_id, name, tax_id, entity_type, industry, address, city, state, zip_code, phone, created_by, created_at, updated_at`

func scanCompany(row rowScanner) (*model.Company, error) {
	company := &model.Company{}
	var createdBy sql.NullString
	err := row.Scan(
		&company.ID, &company.BrokerID, &company.Name, &company.TaxID, &company.EntityType,
		&company.Industry, &company.Address, &company.City, &company.State, &company.ZipCode,
		&company.Phone, &createdBy, &company.CreatedAt, &company.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	company.CreatedBy = nullStringValue(createdBy)
	return company, nil
}

// FindByID は指定IDの企業を取得する。見つからない場合はnilを返す。
func (r *PostgresCompanyRepo) FindByID(ctx context.Context, id string) (*model.Company, error) {
	company, err := scanCompany(r.db.QueryRowContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("企業の取得に失敗しました: %w", err)
	}
	return company, nil
}

// Create は企業を作成する。
func (r *PostgresCompanyRepo) Create(ctx context.Context, company *model.Company) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, broker_id, name, tax_id, entity_type, industry,
		                        address, city, state, zip_code, phone, created_by,
		                        created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		company.ID, company.BrokerID, company.Name, company.TaxID, company.EntityType,
		company.Industry, company.Address, company.City, company.State, company.ZipCode,
		company.Phone, nullString(company.CreatedBy),
		company.CreatedAt, company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("企業の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は企業情報を更新する。
func (r *PostgresCompanyRepo) Update(ctx context.Context, company *model.Company) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE companies SET
		    name = $2, tax_id = $3, entity_type = $4, industry = $5,
		    address = $6, city = $7, state = $8, zip_code = $9, phone = $10,
		    updated_at = $11
		 WHERE id = $1`,
		company.ID, company.Name, company.TaxID, company.EntityType, company.Industry,
		company.Address, company.City, company.State, company.ZipCode, company.Phone,
		company.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("企業の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの企業を削除する。
// 関連する出資者・従業員・申請はCASCADE削除される。
func (r *PostgresCompanyRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("企業の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("company not found: %s", id)
	}
	return nil
}

// ListByBrokerID は指定ブローカーの全企業を作成日時降順で返す。
func (r *PostgresCompanyRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Company, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE broker_id = $1 ORDER BY created_at DESC`,
		brokerID,
	)
	if err != nil {
		return nil, fmt.Errorf("企業一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var companies []*model.Company
	for rows.Next() {
		company, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("企業一覧の読み取りに失敗しました: %w", err)
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("企業一覧の走査に失敗しました: %w", err)
	}
	return companies, nil
}

// Count は全企業数を返す。
func (r *PostgresCompanyRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM companies`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("企業数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ CompanyRepository = (*PostgresCompanyRepo)(nil)
