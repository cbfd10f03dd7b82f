// Package plan は保険プランのカタログ管理と事業主負担設定を提供する。
// プランはブローカー単位のカタログで、企業はそこから申請対象を選択する。
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// Service はプランカタログと負担設定のユースケースを提供する。
type Service struct {
	planRepo         repository.PlanRepository
	contributionRepo repository.ContributionRepository
}

// NewService は新しいServiceを生成する。
func NewService(planRepo repository.PlanRepository, contributionRepo repository.ContributionRepository) *Service {
	return &Service{
		planRepo:         planRepo,
		contributionRepo: contributionRepo,
	}
}

// PlanInput はプランの作成・更新リクエスト。
type PlanInput struct {
	Name             string
	CarrierName      string
	PlanType         model.PlanType
	MetalTier        model.MetalTier
	MonthlyCostCents int64
	ContractCode     string
	EffectiveDate    time.Time
	Active           bool
}

// Create はプランを作成する。作成直後のプランは常に有効。
func (s *Service) Create(ctx context.Context, brokerID string, input PlanInput) (*model.Plan, error) {
	if err := validatePlanInput(&input); err != nil {
		return nil, err
	}

	now := time.Now()
	plan := &model.Plan{
		ID:               uuid.New().String(),
		BrokerID:         brokerID,
		Name:             input.Name,
		CarrierName:      input.CarrierName,
		PlanType:         input.PlanType,
		MetalTier:        input.MetalTier,
		MonthlyCostCents: input.MonthlyCostCents,
		ContractCode:     input.ContractCode,
		EffectiveDate:    input.EffectiveDate,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("プランの作成に失敗しました: %w", err)
	}

	slog.Info("plan created",
		slog.String("plan_id", plan.ID),
		slog.String("broker_id", brokerID),
		slog.String("plan_type", string(plan.PlanType)),
	)
	return plan, nil
}

// Get はプランを取得する。他ブローカーのプランへのアクセスは拒否する。
func (s *Service) Get(ctx context.Context, brokerID, planID string) (*model.Plan, error) {
	plan, err := s.planRepo.FindByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("プランの取得に失敗しました: %w", err)
	}
	if plan == nil {
		return nil, model.NewNotFoundError("プラン")
	}
	if plan.BrokerID != brokerID {
		return nil, model.NewForbiddenError()
	}
	return plan, nil
}

// Update はプラン情報を更新する。
func (s *Service) Update(ctx context.Context, brokerID, planID string, input PlanInput) (*model.Plan, error) {
	if err := validatePlanInput(&input); err != nil {
		return nil, err
	}

	plan, err := s.Get(ctx, brokerID, planID)
	if err != nil {
		return nil, err
	}

	plan.Name = input.Name
	plan.CarrierName = input.CarrierName
	plan.PlanType = input.PlanType
	plan.MetalTier = input.MetalTier
	plan.MonthlyCostCents = input.MonthlyCostCents
	plan.ContractCode = input.ContractCode
	plan.EffectiveDate = input.EffectiveDate
	plan.Active = input.Active
	plan.UpdatedAt = time.Now()

	if err := s.planRepo.Update(ctx, plan); err != nil {
		return nil, fmt.Errorf("プランの更新に失敗しました: %w", err)
	}
	return plan, nil
}

// Deactivate はプランを無効化する。過去の申請からの参照を保つため削除はしない。
func (s *Service) Deactivate(ctx context.Context, brokerID, planID string) error {
	plan, err := s.Get(ctx, brokerID, planID)
	if err != nil {
		return err
	}
	if !plan.Active {
		return nil
	}

	plan.Active = false
	plan.UpdatedAt = time.Now()
	if err := s.planRepo.Update(ctx, plan); err != nil {
		return fmt.Errorf("プランの無効化に失敗しました: %w", err)
	}

	slog.Info("plan deactivated", slog.String("plan_id", planID))
	return nil
}

// List はブローカーのプラン一覧を返す。無効化済みのプランも含む。
func (s *Service) List(ctx context.Context, brokerID string) ([]*model.Plan, error) {
	plans, err := s.planRepo.ListByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("プラン一覧の取得に失敗しました: %w", err)
	}
	return plans, nil
}

func validatePlanInput(input *PlanInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.CarrierName = strings.TrimSpace(input.CarrierName)

	if input.Name == "" {
		return model.NewValidationError("プラン名は必須です")
	}
	if input.CarrierName == "" {
		return model.NewValidationError("保険会社名は必須です")
	}
	if !input.PlanType.IsValid() {
		return model.NewValidationError(fmt.Sprintf("不正なプラン種別です: %s", input.PlanType))
	}
	if input.PlanType == model.PlanMedical {
		if !input.MetalTier.IsValid() {
			return model.NewValidationError("医療プランには給付水準（bronze〜platinum）の指定が必要です")
		}
	} else if input.MetalTier != "" {
		return model.NewValidationError("給付水準は医療プランにのみ指定できます")
	}
	if input.MonthlyCostCents <= 0 {
		return model.NewValidationError("月額保険料は0より大きい金額で指定してください")
	}
	return nil
}

// --- 事業主負担 ---

// ContributionInput は事業主負担設定のリクエスト。
type ContributionInput struct {
	PlanType       model.PlanType
	EmployeeMode   model.ContributionMode
	EmployeeValue  float64
	DependentMode  model.ContributionMode
	DependentValue float64
}

// SetContribution はプラン種別ごとの事業主負担を設定する。
// 既存の設定がある場合は上書きする。
func (s *Service) SetContribution(ctx context.Context, companyID string, input ContributionInput) (*model.Contribution, error) {
	if !input.PlanType.IsValid() {
		return nil, model.NewValidationError(fmt.Sprintf("不正なプラン種別です: %s", input.PlanType))
	}
	if err := validateContributionPair("従業員本人", input.EmployeeMode, input.EmployeeValue); err != nil {
		return nil, err
	}
	if err := validateContributionPair("扶養家族", input.DependentMode, input.DependentValue); err != nil {
		return nil, err
	}

	now := time.Now()
	contribution := &model.Contribution{
		CompanyID:      companyID,
		PlanType:       input.PlanType,
		EmployeeMode:   input.EmployeeMode,
		EmployeeValue:  input.EmployeeValue,
		DependentMode:  input.DependentMode,
		DependentValue: input.DependentValue,
		UpdatedAt:      now,
	}

	// 既存設定があればIDと作成日時を引き継ぐ
	existing, err := s.contributionRepo.FindByCompanyAndType(ctx, companyID, input.PlanType)
	if err != nil {
		return nil, fmt.Errorf("負担設定の取得に失敗しました: %w", err)
	}
	if existing != nil {
		contribution.ID = existing.ID
		contribution.CreatedAt = existing.CreatedAt
	} else {
		contribution.ID = uuid.New().String()
		contribution.CreatedAt = now
	}

	if err := s.contributionRepo.Upsert(ctx, contribution); err != nil {
		return nil, fmt.Errorf("負担設定の保存に失敗しました: %w", err)
	}

	slog.Info("contribution set",
		slog.String("company_id", companyID),
		slog.String("plan_type", string(input.PlanType)),
	)
	return contribution, nil
}

// ListContributions は企業の負担設定一覧を返す。
func (s *Service) ListContributions(ctx context.Context, companyID string) ([]*model.Contribution, error) {
	contributions, err := s.contributionRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("負担設定一覧の取得に失敗しました: %w", err)
	}
	return contributions, nil
}

// DeleteContribution は指定プラン種別の負担設定を削除する。
func (s *Service) DeleteContribution(ctx context.Context, companyID string, planType model.PlanType) error {
	if !planType.IsValid() {
		return model.NewValidationError(fmt.Sprintf("不正なプラン種別です: %s", planType))
	}
	if err := s.contributionRepo.DeleteByCompanyAndType(ctx, companyID, planType); err != nil {
		return fmt.Errorf("負担設定の削除に失敗しました: %w", err)
	}
	return nil
}

// validateContributionPair は負担方式と値の組み合わせを検証する。
func validateContributionPair(label string, mode model.ContributionMode, value float64) error {
	if !mode.IsValid() {
		return model.NewValidationError(fmt.Sprintf("%s分の負担方式が不正です: %s", label, mode))
	}
	switch mode {
	case model.ContributionPercent:
		if value < 0 || value > 100 {
			return model.NewValidationError(fmt.Sprintf("%s分の負担割合は0〜100の範囲で指定してください", label))
		}
	case model.ContributionFixed:
		if value < 0 {
			return model.NewValidationError(fmt.Sprintf("%s分の固定負担額は0以上で指定してください", label))
		}
	}
	return nil
}
