package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresPlanRepo はPostgreSQLを使用したプランリポジトリ。
type PostgresPlanRepo struct {
	db *sql.DB
}

// NewPostgresPlanRepo はPostgresPlanRepoを生成する。
func NewPostgresPlanRepo(db *sql.DB) *PostgresPlanRepo {
	return &PostgresPlanRepo{db: db}
}

const planColumns = `id, broker_id, name, carrier_name, plan_type, metal_tier, monthly_cost_cents, contract_code, effective_date, active, created_at, updated_at`

func scanPlan(row rowScanner) (*model.Plan, error) {
	plan := &model.Plan{}
	var effectiveDate sql.NullTime
	err := row.Scan(
		&plan.ID, &plan.BrokerID, &plan.Name, &plan.CarrierName,
		&plan.PlanType, &plan.MetalTier, &plan.MonthlyCostCents, &plan.ContractCode,
		&effectiveDate, &plan.Active, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	plan.EffectiveDate = nullTimeValue(effectiveDate)
	return plan, nil
}

// FindByID は指定IDのプランを取得する。見つからない場合はnilを返す。
func (r *PostgresPlanRepo) FindByID(ctx context.Context, id string) (*model.Plan, error) {
	plan, err := scanPlan(r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プランの取得に失敗しました: %w", err)
	}
	return plan, nil
}

// Create はプランを作成する。
func (r *PostgresPlanRepo) Create(ctx context.Context, plan *model.Plan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plans (id, broker_id, name, carrier_name, plan_type, metal_tier,
		                    monthly_cost_cents, contract_code, effective_date, active,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		plan.ID, plan.BrokerID, plan.Name, plan.CarrierName, plan.PlanType, plan.MetalTier,
		plan.MonthlyCostCents, plan.ContractCode, nullTime(plan.EffectiveDate), plan.Active,
		plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プランの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はプラン情報を更新する。無効化はActiveをfalseにして更新する。
func (r *PostgresPlanRepo) Update(ctx context.Context, plan *model.Plan) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE plans SET
		    name = $2, carrier_name = $3, plan_type = $4, metal_tier = $5,
		    monthly_cost_cents = $6, contract_code = $7, effective_date = $8,
		    active = $9, updated_at = $10
		 WHERE id = $1`,
		plan.ID, plan.Name, plan.CarrierName, plan.PlanType, plan.MetalTier,
		plan.MonthlyCostCents, plan.ContractCode, nullTime(plan.EffectiveDate),
		plan.Active, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プランの更新に失敗しました: %w", err)
	}
	return nil
}

// ListByBrokerID は指定ブローカーの全プランを種別・名前順で返す。
func (r *PostgresPlanRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.Plan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE broker_id = $1
		 ORDER BY plan_type ASC, name ASC`,
		brokerID,
	)
	if err != nil {
		return nil, fmt.Errorf("プラン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("プラン一覧の読み取りに失敗しました: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プラン一覧の走査に失敗しました: %w", err)
	}
	return plans, nil
}

// compile-time interface check
var _ PlanRepository = (*PostgresPlanRepo)(nil)
