package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用した申請リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, company_id, status, current_step, requested_effective_date, submitted_at, decided_at, decided_by, decision_note, created_by, created_at, updated_at`

func scanApplication(row rowScanner) (*model.Application, error) {
	app := &model.Application{}
	var decidedBy, createdBy sql.NullString
	var effectiveDate, submittedAt, decidedAt sql.NullTime
	err := row.Scan(
		&app.ID, &app.CompanyID, &app.Status, &app.CurrentStep,
		&effectiveDate, &submittedAt, &decidedAt, &decidedBy, &app.DecisionNote,
		&createdBy, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.RequestedEffectiveDate = nullTimeValue(effectiveDate)
	app.SubmittedAt = timePtr(submittedAt)
	app.DecidedAt = timePtr(decidedAt)
	app.DecidedBy = nullStringValue(decidedBy)
	app.CreatedBy = nullStringValue(createdBy)
	return app, nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	return app, nil
}

// FindDraftByCompanyID は指定企業の下書き申請を取得する。
// 下書きが存在しない場合はnilを返す。
func (r *PostgresApplicationRepo) FindDraftByCompanyID(ctx context.Context, companyID string) (*model.Application, error) {
	app, err := scanApplication(r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE company_id = $1 AND status = 'draft'`,
		companyID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("下書き申請の取得に失敗しました: %w", err)
	}
	return app, nil
}

// Create は申請を作成する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, company_id, status, current_step, requested_effective_date,
		                           submitted_at, decided_at, decided_by, decision_note, created_by,
		                           created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		app.ID, app.CompanyID, app.Status, app.CurrentStep, nullTime(app.RequestedEffectiveDate),
		nullTimeFromPtr(app.SubmittedAt), nullTimeFromPtr(app.DecidedAt),
		nullString(app.DecidedBy), app.DecisionNote, nullString(app.CreatedBy),
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("申請の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は申請を更新する。
func (r *PostgresApplicationRepo) Update(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE applications SET
		    status = $2, current_step = $3, requested_effective_date = $4,
		    submitted_at = $5, decided_at = $6, decided_by = $7, decision_note = $8,
		    updated_at = $9
		 WHERE id = $1`,
		app.ID, app.Status, app.CurrentStep, nullTime(app.RequestedEffectiveDate),
		nullTimeFromPtr(app.SubmittedAt), nullTimeFromPtr(app.DecidedAt),
		nullString(app.DecidedBy), app.DecisionNote,
		app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("申請の更新に失敗しました: %w", err)
	}
	return nil
}

// ListByCompanyID は指定企業の全申請を作成日時降順で返す。
func (r *PostgresApplicationRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Application, error) {
	return r.list(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE company_id = $1 ORDER BY created_at DESC`,
		companyID)
}

// ListByBrokerID は指定ブローカー配下の全申請を作成日時降順で返す。
func (r *PostgresApplicationRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Application, error) {
	return r.list(ctx,
		`SELECT a.id, a.company_id, a.status, a.current_step, a.requested_effective_date,
		        a.submitted_at, a.decided_at, a.decided_by, a.decision_note, a.created_by,
		        a.created_at, a.updated_at
		 FROM applications a
		 JOIN companies c ON a.company_id = c.id
		 WHERE c.broker_id = $1
		 ORDER BY a.created_at DESC`,
		brokerID)
}

// ListByStatus は指定状態の全申請を提出日時昇順で返す（管理者の審査キュー向け）。
func (r *PostgresApplicationRepo) ListByStatus(ctx context.Context, status model.ApplicationStatus) ([]*model.Application, error) {
	return r.list(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE status = $1
		 ORDER BY submitted_at ASC NULLS LAST, created_at ASC`,
		status)
}

func (r *PostgresApplicationRepo) list(ctx context.Context, query string, args ...any) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("申請一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("申請一覧の読み取りに失敗しました: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("申請一覧の走査に失敗しました: %w", err)
	}
	return apps, nil
}

// CountByStatus は指定状態の申請数を返す。
func (r *PostgresApplicationRepo) CountByStatus(ctx context.Context, status model.ApplicationStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM applications WHERE status = $1`,
		status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("申請数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// ReplacePlans は申請の選択プラン一覧を同一トランザクションで入れ替える。
func (r *PostgresApplicationRepo) ReplacePlans(ctx context.Context, applicationID string, planIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM application_plans WHERE application_id = $1`,
		applicationID,
	); err != nil {
		return fmt.Errorf("選択プランの削除に失敗しました: %w", err)
	}

	now := time.Now()
	for _, planID := range planIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO application_plans (id, application_id, plan_id, created_at)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New().String(), applicationID, planID, now,
		); err != nil {
			return fmt.Errorf("選択プランの登録に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListPlanIDs は申請に紐づくプランIDの一覧を返す。
func (r *PostgresApplicationRepo) ListPlanIDs(ctx context.Context, applicationID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT plan_id FROM application_plans WHERE application_id = $1 ORDER BY created_at ASC`,
		applicationID,
	)
	if err != nil {
		return nil, fmt.Errorf("選択プラン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var planIDs []string
	for rows.Next() {
		var planID string
		if err := rows.Scan(&planID); err != nil {
			return nil, fmt.Errorf("選択プラン一覧の読み取りに失敗しました: %w", err)
		}
		planIDs = append(planIDs, planID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("選択プラン一覧の走査に失敗しました: %w", err)
	}
	return planIDs, nil
}

// nullTimeFromPtr は*time.Timeをsql.NullTimeに変換する。
func nullTimeFromPtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr はsql.NullTimeを*time.Timeに変換する。NULLはnilになる。
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
