package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresOwnerRepo はPostgreSQLを使用した出資者リポジトリ。
type PostgresOwnerRepo struct {
	db *sql.DB
}

// NewPostgresOwnerRepo はPostgresOwnerRepoを生成する。
func NewPostgresOwnerRepo(db *sql.DB) *PostgresOwnerRepo {
	return &PostgresOwnerRepo{db: db}
}

// FindByID は指定IDの出資者を取得する。見つからない場合はnilを返す。
func (r *PostgresOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	owner := &model.Owner{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, company_id, first_name, last_name, title, ownership_percent, is_eligible, created_at, updated_at
		 FROM owners WHERE id = $1`,
		id,
	).Scan(
		&owner.ID, &owner.CompanyID, &owner.FirstName, &owner.LastName,
		&owner.Title, &owner.OwnershipPercent, &owner.IsEligible,
		&owner.CreatedAt, &owner.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("出資者の取得に失敗しました: %w", err)
	}

	return owner, nil
}

// Create は出資者を作成する。
func (r *PostgresOwnerRepo) Create(ctx context.Context, owner *model.Owner) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO owners (id, company_id, first_name, last_name, title, ownership_percent, is_eligible, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		owner.ID, owner.CompanyID, owner.FirstName, owner.LastName,
		owner.Title, owner.OwnershipPercent, owner.IsEligible,
		owner.CreatedAt, owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("出資者の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は出資者情報を更新する。
func (r *PostgresOwnerRepo) Update(ctx context.Context, owner *model.Owner) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE owners SET
		    first_name = $2, last_name = $3, title = $4,
		    ownership_percent = $5, is_eligible = $6, updated_at = $7
		 WHERE id = $1`,
		owner.ID, owner.FirstName, owner.LastName, owner.Title,
		owner.OwnershipPercent, owner.IsEligible, owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("出資者の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの出資者を削除する。
func (r *PostgresOwnerRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM owners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("出資者の削除に失敗しました: %w", err)
	}
	return nil
}

// ListByCompanyID は指定企業の全出資者を出資比率降順で返す。
func (r *PostgresOwnerRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Owner, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, company_id, first_name, last_name, title, ownership_percent, is_eligible, created_at, updated_at
		 FROM owners WHERE company_id = $1
		 ORDER BY ownership_percent DESC, last_name ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("出資者一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var owners []*model.Owner
	for rows.Next() {
		owner := &model.Owner{}
		if err := rows.Scan(
			&owner.ID, &owner.CompanyID, &owner.FirstName, &owner.LastName,
			&owner.Title, &owner.OwnershipPercent, &owner.IsEligible,
			&owner.CreatedAt, &owner.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("出資者一覧の読み取りに失敗しました: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("出資者一覧の走査に失敗しました: %w", err)
	}
	return owners, nil
}

// SumPercentByCompanyID は指定企業の出資比率の合計を返す。
// 出資者がいない場合は0を返す。
func (r *PostgresOwnerRepo) SumPercentByCompanyID(ctx context.Context, companyID string) (float64, error) {
	var sum float64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(ownership_percent), 0) FROM owners WHERE company_id = $1`,
		companyID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("出資比率合計の取得に失敗しました: %w", err)
	}
	return sum, nil
}

// compile-time interface check
var _ OwnerRepository = (*PostgresOwnerRepo)(nil)
