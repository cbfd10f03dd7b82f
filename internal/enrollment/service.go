// Package enrollment は加入申請のライフサイクルを管理する。
// 下書きの作成から段階的な入力、提出要件の判定、管理者による承認・却下までを扱う。
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// ownershipTolerance は出資比率の合計判定に使う許容誤差。
const ownershipTolerance = 0.01

// DocumentChecker は提出要件の判定に使う書類評価を提供する。
// *document.Service がこれを満たす。
type DocumentChecker interface {
	Requirements(ctx context.Context, company *model.Company) (*document.Evaluation, error)
}

// Service は加入申請のユースケースを提供する。
type Service struct {
	applicationRepo  repository.ApplicationRepository
	companyRepo      repository.CompanyRepository
	ownerRepo        repository.OwnerRepository
	employeeRepo     repository.EmployeeRepository
	planRepo         repository.PlanRepository
	contributionRepo repository.ContributionRepository
	documents        DocumentChecker
}

// NewService は新しいServiceを生成する。
func NewService(
	applicationRepo repository.ApplicationRepository,
	companyRepo repository.CompanyRepository,
	ownerRepo repository.OwnerRepository,
	employeeRepo repository.EmployeeRepository,
	planRepo repository.PlanRepository,
	contributionRepo repository.ContributionRepository,
	documents DocumentChecker,
) *Service {
	return &Service{
		applicationRepo:  applicationRepo,
		companyRepo:      companyRepo,
		ownerRepo:        ownerRepo,
		employeeRepo:     employeeRepo,
		planRepo:         planRepo,
		contributionRepo: contributionRepo,
		documents:        documents,
	}
}

// CreateDraft は企業の下書き申請を作成する。
// 下書きは1企業につき高々1件で、既に存在する場合は拒否する。
func (s *Service) CreateDraft(ctx context.Context, companyID, createdBy string) (*model.Application, error) {
	existing, err := s.applicationRepo.FindDraftByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("下書き申請の検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateDraftError()
	}

	now := time.Now()
	app := &model.Application{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		Status:      model.StatusDraft,
		CurrentStep: model.StepCompany,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.applicationRepo.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("申請の作成に失敗しました: %w", err)
	}

	slog.Info("application draft created",
		slog.String("application_id", app.ID),
		slog.String("company_id", companyID),
	)
	return app, nil
}

// Authorize は申請を取得し、所属企業経由でブローカー境界を検証する。
// adminはテナント境界を越えて参照できる。
func (s *Service) Authorize(ctx context.Context, applicationID, brokerID string, admin bool) (*model.Application, *model.Company, error) {
	app, err := s.applicationRepo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, nil, fmt.Errorf("申請の取得に失敗しました: %w", err)
	}
	if app == nil {
		return nil, nil, model.NewNotFoundError("申請")
	}

	company, err := s.companyRepo.FindByID(ctx, app.CompanyID)
	if err != nil {
		return nil, nil, fmt.Errorf("企業の取得に失敗しました: %w", err)
	}
	if company == nil {
		return nil, nil, model.NewNotFoundError("企業")
	}
	if !admin && company.BrokerID != brokerID {
		return nil, nil, model.NewForbiddenError()
	}
	return app, company, nil
}

// ListByCompany は企業の申請一覧を返す。
func (s *Service) ListByCompany(ctx context.Context, companyID string) ([]*model.Application, error) {
	apps, err := s.applicationRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("申請一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// ListByBroker はブローカー配下の全企業の申請一覧を返す。
func (s *Service) ListByBroker(ctx context.Context, brokerID string) ([]*model.Application, error) {
	apps, err := s.applicationRepo.ListByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("申請一覧の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// ListSubmitted は提出済みで未確定の申請を提出日時順で返す（管理者の審査キュー）。
func (s *Service) ListSubmitted(ctx context.Context) ([]*model.Application, error) {
	apps, err := s.applicationRepo.ListByStatus(ctx, model.StatusSubmitted)
	if err != nil {
		return nil, fmt.Errorf("審査待ち申請の取得に失敗しました: %w", err)
	}
	return apps, nil
}

// UpdateInput は下書き申請の部分更新リクエスト。nilのフィールドは変更しない。
type UpdateInput struct {
	CurrentStep            *model.ApplicationStep
	RequestedEffectiveDate *time.Time
}

// UpdateDraft は下書き申請の入力ステップと希望開始日を更新する。
// 提出済み・確定済みの申請は変更できない。
func (s *Service) UpdateDraft(ctx context.Context, app *model.Application, input UpdateInput) (*model.Application, error) {
	if app.Status != model.StatusDraft {
		return nil, model.NewApplicationLockedError()
	}

	if input.CurrentStep != nil {
		if !input.CurrentStep.IsValid() {
			return nil, model.NewValidationError(fmt.Sprintf("不正な入力ステップです: %s", *input.CurrentStep))
		}
		app.CurrentStep = *input.CurrentStep
	}
	if input.RequestedEffectiveDate != nil {
		if err := validateEffectiveDate(*input.RequestedEffectiveDate, time.Now()); err != nil {
			return nil, err
		}
		app.RequestedEffectiveDate = *input.RequestedEffectiveDate
	}
	app.UpdatedAt = time.Now()

	if err := s.applicationRepo.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("申請の更新に失敗しました: %w", err)
	}
	return app, nil
}

// validateEffectiveDate は希望開始日が未来の月初であることを検証する。
func validateEffectiveDate(date, now time.Time) error {
	if date.Day() != 1 {
		return model.NewValidationError("保険開始日は月初（1日）を指定してください")
	}
	if !date.After(now) {
		return model.NewValidationError("保険開始日は未来の日付を指定してください")
	}
	return nil
}

// SelectPlans は申請の選択プランを丸ごと入れ替える。
// 指定されたプランはすべて同一ブローカーの有効なプランでなければならない。
// 空のリストは選択の全解除を意味する。
func (s *Service) SelectPlans(ctx context.Context, app *model.Application, company *model.Company, planIDs []string) error {
	if app.Status != model.StatusDraft {
		return model.NewApplicationLockedError()
	}

	seen := make(map[string]bool, len(planIDs))
	for _, planID := range planIDs {
		if seen[planID] {
			return model.NewValidationError("プランの指定が重複しています")
		}
		seen[planID] = true

		plan, err := s.planRepo.FindByID(ctx, planID)
		if err != nil {
			return fmt.Errorf("プランの取得に失敗しました: %w", err)
		}
		if plan == nil {
			return model.NewNotFoundError("プラン")
		}
		if plan.BrokerID != company.BrokerID {
			return model.NewForbiddenError()
		}
		if !plan.Active {
			return model.NewValidationError(fmt.Sprintf("無効化されたプランは選択できません: %s", plan.Name))
		}
	}

	if err := s.applicationRepo.ReplacePlans(ctx, app.ID, planIDs); err != nil {
		return fmt.Errorf("選択プランの保存に失敗しました: %w", err)
	}

	slog.Info("application plans selected",
		slog.String("application_id", app.ID),
		slog.Int("count", len(planIDs)),
	)
	return nil
}

// SelectedPlans は申請で選択済みのプランを返す。
func (s *Service) SelectedPlans(ctx context.Context, applicationID string) ([]*model.Plan, error) {
	planIDs, err := s.applicationRepo.ListPlanIDs(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("選択プランの取得に失敗しました: %w", err)
	}

	plans := make([]*model.Plan, 0, len(planIDs))
	for _, planID := range planIDs {
		plan, err := s.planRepo.FindByID(ctx, planID)
		if err != nil {
			return nil, fmt.Errorf("プランの取得に失敗しました: %w", err)
		}
		if plan != nil {
			plans = append(plans, plan)
		}
	}
	return plans, nil
}

// Submit は下書き申請を提出する。
// 提出要件をすべて検査し、1件でも満たさない場合は全件をまとめて報告する。
func (s *Service) Submit(ctx context.Context, app *model.Application, company *model.Company) (*model.Application, error) {
	if app.Status != model.StatusDraft {
		return nil, model.NewApplicationLockedError()
	}

	problems, err := s.submitProblems(ctx, app, company)
	if err != nil {
		return nil, err
	}
	if len(problems) > 0 {
		return nil, model.NewSubmitBlockedError(strings.Join(problems, "／"))
	}

	now := time.Now()
	app.Status = model.StatusSubmitted
	app.SubmittedAt = &now
	app.CurrentStep = model.StepReview
	app.UpdatedAt = now

	if err := s.applicationRepo.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("申請の提出に失敗しました: %w", err)
	}

	slog.Info("application submitted",
		slog.String("application_id", app.ID),
		slog.String("company_id", company.ID),
	)
	return app, nil
}

// submitProblems は提出要件の違反をすべて列挙する。
func (s *Service) submitProblems(ctx context.Context, app *model.Application, company *model.Company) ([]string, error) {
	var problems []string

	// 希望開始日
	if app.RequestedEffectiveDate.IsZero() {
		problems = append(problems, "希望する保険開始日が設定されていません")
	} else if err := validateEffectiveDate(app.RequestedEffectiveDate, time.Now()); err != nil {
		problems = append(problems, "希望する保険開始日が過ぎています。未来の月初を指定し直してください")
	}

	// 出資比率の合計はちょうど100%
	ownerTotal, err := s.ownerRepo.SumPercentByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("出資比率の集計に失敗しました: %w", err)
	}
	if ownerTotal < 100-ownershipTolerance || ownerTotal > 100+ownershipTolerance {
		problems = append(problems, fmt.Sprintf("出資比率の合計が100%%になっていません（現在: %.2f%%）", ownerTotal))
	}

	// 在籍中の従業員が1名以上
	employees, err := s.employeeRepo.ListByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("従業員一覧の取得に失敗しました: %w", err)
	}
	activeCount := 0
	for _, e := range employees {
		if e.Status == model.EmployeeActive {
			activeCount++
		}
	}
	if activeCount == 0 {
		problems = append(problems, "在籍中の従業員が1名も登録されていません")
	}

	// プランが1件以上選択されている
	planIDs, err := s.applicationRepo.ListPlanIDs(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("選択プランの取得に失敗しました: %w", err)
	}
	if len(planIDs) == 0 {
		problems = append(problems, "プランが選択されていません")
	}

	// 選択した全プラン種別に事業主負担が設定されている
	missingTypes, err := s.missingContributionTypes(ctx, company.ID, planIDs)
	if err != nil {
		return nil, err
	}
	for _, planType := range missingTypes {
		problems = append(problems, fmt.Sprintf("プラン種別（%s）の事業主負担が設定されていません", planType))
	}

	// 必須書類がすべて揃っている
	evaluation, err := s.documents.Requirements(ctx, company)
	if err != nil {
		return nil, fmt.Errorf("書類要件の判定に失敗しました: %w", err)
	}
	if len(evaluation.Missing) > 0 {
		problems = append(problems, fmt.Sprintf("必須書類が不足しています: %s", strings.Join(evaluation.Missing, "、")))
	}

	return problems, nil
}

// missingContributionTypes は選択プランの種別のうち負担設定が無いものを返す。
func (s *Service) missingContributionTypes(ctx context.Context, companyID string, planIDs []string) ([]model.PlanType, error) {
	seen := make(map[model.PlanType]bool)
	var missing []model.PlanType

	for _, planID := range planIDs {
		plan, err := s.planRepo.FindByID(ctx, planID)
		if err != nil {
			return nil, fmt.Errorf("プランの取得に失敗しました: %w", err)
		}
		if plan == nil || seen[plan.PlanType] {
			continue
		}
		seen[plan.PlanType] = true

		contribution, err := s.contributionRepo.FindByCompanyAndType(ctx, companyID, plan.PlanType)
		if err != nil {
			return nil, fmt.Errorf("負担設定の取得に失敗しました: %w", err)
		}
		if contribution == nil {
			missing = append(missing, plan.PlanType)
		}
	}
	return missing, nil
}

// Decide は提出済み申請を承認または却下する。
// 確定した申請は以後変更できない。
func (s *Service) Decide(ctx context.Context, app *model.Application, decidedBy string, approve bool, note string) (*model.Application, error) {
	if app.Status.Decided() {
		return nil, model.NewApplicationLockedError()
	}
	if app.Status != model.StatusSubmitted {
		return nil, model.NewValidationError("提出されていない申請は承認・却下できません")
	}

	now := time.Now()
	if approve {
		app.Status = model.StatusApproved
	} else {
		app.Status = model.StatusRejected
	}
	app.DecidedAt = &now
	app.DecidedBy = decidedBy
	app.DecisionNote = note
	app.UpdatedAt = now

	if err := s.applicationRepo.Update(ctx, app); err != nil {
		return nil, fmt.Errorf("申請の確定に失敗しました: %w", err)
	}

	slog.Info("application decided",
		slog.String("application_id", app.ID),
		slog.String("status", string(app.Status)),
		slog.String("decided_by", decidedBy),
	)
	return app, nil
}
