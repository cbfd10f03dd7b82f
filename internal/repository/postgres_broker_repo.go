package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresBrokerRepo はPostgreSQLを使用したブローカーリポジトリ。
type PostgresBrokerRepo struct {
	db *sql.DB
}

// NewPostgresBrokerRepo はPostgresBrokerRepoを生成する。
func NewPostgresBrokerRepo(db *sql.DB) *PostgresBrokerRepo {
	return &PostgresBrokerRepo{db: db}
}

// FindByID は指定IDのブローカーを取得する。見つからない場合はnilを返す。
func (r *PostgresBrokerRepo) FindByID(ctx context.Context, id string) (*model.Broker, error) {
	broker := &model.Broker{}
	var logoData []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, license_number, email, phone,
		        primary_color, accent_color, welcome_html, logo_data, logo_mime,
		        created_at, updated_at
		 FROM brokers WHERE id = $1`,
		id,
	).Scan(
		&broker.ID, &broker.Name, &broker.LicenseNumber, &broker.Email, &broker.Phone,
		&broker.PrimaryColor, &broker.AccentColor, &broker.WelcomeHTML, &logoData, &broker.LogoMime,
		&broker.CreatedAt, &broker.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ブローカーの取得に失敗しました: %w", err)
	}

	broker.LogoData = logoData
	return broker, nil
}

// Create はブローカーを作成する。
func (r *PostgresBrokerRepo) Create(ctx context.Context, broker *model.Broker) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO brokers (id, name, license_number, email, phone,
		                      primary_color, accent_color, welcome_html, logo_data, logo_mime,
		                      created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		broker.ID, broker.Name, broker.LicenseNumber, broker.Email, broker.Phone,
		broker.PrimaryColor, broker.AccentColor, broker.WelcomeHTML, broker.LogoData, broker.LogoMime,
		broker.CreatedAt, broker.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ブローカーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はブローカー情報（ブランディング設定含む）を更新する。
// ロゴ画像データはUpdateLogoで更新するため、このメソッドでは変更しない。
func (r *PostgresBrokerRepo) Update(ctx context.Context, broker *model.Broker) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE brokers SET
		    name = $2, license_number = $3, email = $4, phone = $5,
		    primary_color = $6, accent_color = $7, welcome_html = $8,
		    updated_at = $9
		 WHERE id = $1`,
		broker.ID, broker.Name, broker.LicenseNumber, broker.Email, broker.Phone,
		broker.PrimaryColor, broker.AccentColor, broker.WelcomeHTML,
		broker.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ブローカーの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateLogo はブローカーのロゴ画像データを更新する。
func (r *PostgresBrokerRepo) UpdateLogo(ctx context.Context, brokerID string, logoData []byte, logoMime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE brokers SET logo_data = $2, logo_mime = $3, updated_at = now() WHERE id = $1`,
		brokerID, logoData, logoMime,
	)
	if err != nil {
		return fmt.Errorf("ロゴの更新に失敗しました: %w", err)
	}
	return nil
}

// ListWithStats は全ブローカーを利用状況の集計付きで返す（管理者向け）。
// ロゴ画像データは一覧には含めない。
func (r *PostgresBrokerRepo) ListWithStats(ctx context.Context) ([]BrokerWithStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.name, b.license_number, b.email, b.phone,
		        b.primary_color, b.accent_color, b.welcome_html, b.logo_mime,
		        b.created_at, b.updated_at,
		        (SELECT count(*) FROM users u WHERE u.broker_id = b.id) AS user_count,
		        (SELECT count(*) FROM companies c WHERE c.broker_id = b.id) AS company_count,
		        (SELECT count(*) FROM applications a
		           JOIN companies c2 ON a.company_id = c2.id
		          WHERE c2.broker_id = b.id) AS application_count
		 FROM brokers b
		 ORDER BY b.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ブローカー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []BrokerWithStats
	for rows.Next() {
		var bs BrokerWithStats
		if err := rows.Scan(
			&bs.ID, &bs.Name, &bs.LicenseNumber, &bs.Email, &bs.Phone,
			&bs.PrimaryColor, &bs.AccentColor, &bs.WelcomeHTML, &bs.LogoMime,
			&bs.CreatedAt, &bs.UpdatedAt,
			&bs.UserCount, &bs.CompanyCount, &bs.ApplicationCount,
		); err != nil {
			return nil, fmt.Errorf("ブローカー一覧の読み取りに失敗しました: %w", err)
		}
		result = append(result, bs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ブローカー一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// Count は全ブローカー数を返す。
func (r *PostgresBrokerRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM brokers`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ブローカー数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ BrokerRepository = (*PostgresBrokerRepo)(nil)
