package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/plan"
)

// PlanServiceInterface はプランハンドラーが必要とするサービスインターフェース。
type PlanServiceInterface interface {
	// Create はプランを作成する。
	Create(ctx context.Context, brokerID string, input plan.PlanInput) (*model.Plan, error)
	// Get はプランを取得する。
	Get(ctx context.Context, brokerID, planID string) (*model.Plan, error)
	// Update はプラン情報を更新する。
	Update(ctx context.Context, brokerID, planID string, input plan.PlanInput) (*model.Plan, error)
	// Deactivate はプランを無効化する。
	Deactivate(ctx context.Context, brokerID, planID string) error
	// List はブローカーのプラン一覧を返す。
	List(ctx context.Context, brokerID string) ([]*model.Plan, error)

	// SetContribution はプラン種別ごとの事業主負担を設定する。
	SetContribution(ctx context.Context, companyID string, input plan.ContributionInput) (*model.Contribution, error)
	// ListContributions は企業の事業主負担設定の一覧を返す。
	ListContributions(ctx context.Context, companyID string) ([]*model.Contribution, error)
	// DeleteContribution はプラン種別の事業主負担設定を削除する。
	DeleteContribution(ctx context.Context, companyID string, planType model.PlanType) error
}

// PlanHandler は保険プランと事業主負担設定のHTTPハンドラー。
type PlanHandler struct {
	service   PlanServiceInterface
	companies CompanyAuthorizer
	audit     AuditRecorder
}

// NewPlanHandler はPlanHandlerを生成する。
func NewPlanHandler(service PlanServiceInterface, companies CompanyAuthorizer, auditRec AuditRecorder) *PlanHandler {
	return &PlanHandler{
		service:   service,
		companies: companies,
		audit:     auditRec,
	}
}

// planRequest はプランの作成・更新リクエストのボディ。
type planRequest struct {
	Name             string `json:"name"`
	CarrierName      string `json:"carrier_name"`
	PlanType         string `json:"plan_type"`
	MetalTier        string `json:"metal_tier"`
	MonthlyCostCents int64  `json:"monthly_cost_cents"`
	ContractCode     string `json:"contract_code"`
	EffectiveDate    string `json:"effective_date"`
	Active           bool   `json:"active"`
}

// planResponse はプラン情報のAPIレスポンス。
type planResponse struct {
	ID               string    `json:"id"`
	BrokerID         string    `json:"broker_id"`
	Name             string    `json:"name"`
	CarrierName      string    `json:"carrier_name"`
	PlanType         string    `json:"plan_type"`
	MetalTier        string    `json:"metal_tier,omitempty"`
	MonthlyCostCents int64     `json:"monthly_cost_cents"`
	ContractCode     string    `json:"contract_code"`
	EffectiveDate    string    `json:"effective_date"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// contributionRequest は事業主負担設定リクエストのボディ。
type contributionRequest struct {
	PlanType       string  `json:"plan_type"`
	EmployeeMode   string  `json:"employee_mode"`
	EmployeeValue  float64 `json:"employee_value"`
	DependentMode  string  `json:"dependent_mode"`
	DependentValue float64 `json:"dependent_value"`
}

// contributionResponse は事業主負担設定のAPIレスポンス。
type contributionResponse struct {
	ID             string    `json:"id"`
	CompanyID      string    `json:"company_id"`
	PlanType       string    `json:"plan_type"`
	EmployeeMode   string    `json:"employee_mode"`
	EmployeeValue  float64   `json:"employee_value"`
	DependentMode  string    `json:"dependent_mode"`
	DependentValue float64   `json:"dependent_value"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// List はブローカーのプラン一覧を返す。
// GET /api/plans
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	plans, err := h.service.List(r.Context(), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]planResponse, len(plans))
	for i, p := range plans {
		results[i] = toPlanResponse(p)
	}
	writeJSON(w, http.StatusOK, results)
}

// Create はプランを作成する。
// POST /api/plans
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req planRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	input, err := toPlanInput(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.Create(r.Context(), principal.BrokerID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "plan.create",
		ResourceType: "plan",
		ResourceID:   created.ID,
		Detail:       map[string]string{"name": created.Name, "plan_type": string(created.PlanType)},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toPlanResponse(created))
}

// Get はプラン詳細を返す。
// GET /api/plans/{id}
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Get(r.Context(), principal.BrokerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPlanResponse(target))
}

// Update はプラン情報を更新する。
// PUT /api/plans/{id}
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req planRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	input, err := toPlanInput(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), principal.BrokerID, chi.URLParam(r, "id"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "plan.update",
		ResourceType: "plan",
		ResourceID:   updated.ID,
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toPlanResponse(updated))
}

// Deactivate はプランを無効化する。既存の申請からの参照は残る。
// DELETE /api/plans/{id}
func (h *PlanHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	planID := chi.URLParam(r, "id")
	if err := h.service.Deactivate(r.Context(), principal.BrokerID, planID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "plan.deactivate",
		ResourceType: "plan",
		ResourceID:   planID,
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// --- 事業主負担 ---

// ListContributions は企業の事業主負担設定の一覧を返す。
// GET /api/companies/{id}/contributions
func (h *PlanHandler) ListContributions(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	contributions, err := h.service.ListContributions(r.Context(), target.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]contributionResponse, len(contributions))
	for i, c := range contributions {
		results[i] = toContributionResponse(c)
	}
	writeJSON(w, http.StatusOK, results)
}

// SetContribution はプラン種別ごとの事業主負担を設定する。
// 既存の設定がある場合は上書きする。
// PUT /api/companies/{id}/contributions
func (h *PlanHandler) SetContribution(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req contributionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	saved, err := h.service.SetContribution(r.Context(), target.ID, plan.ContributionInput{
		PlanType:       model.PlanType(req.PlanType),
		EmployeeMode:   model.ContributionMode(req.EmployeeMode),
		EmployeeValue:  req.EmployeeValue,
		DependentMode:  model.ContributionMode(req.DependentMode),
		DependentValue: req.DependentValue,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "contribution.set",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"plan_type": string(saved.PlanType)},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toContributionResponse(saved))
}

// DeleteContribution はプラン種別の事業主負担設定を削除する。
// DELETE /api/companies/{id}/contributions/{planType}
func (h *PlanHandler) DeleteContribution(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	planType := model.PlanType(chi.URLParam(r, "planType"))
	if err := h.service.DeleteContribution(r.Context(), target.ID, planType); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "contribution.delete",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"plan_type": string(planType)},
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// --- 変換ヘルパー ---

// toPlanInput はプランリクエストをサービス入力に変換する。
func toPlanInput(req planRequest) (plan.PlanInput, error) {
	effectiveDate, err := parseDateField("適用開始日", req.EffectiveDate)
	if err != nil {
		return plan.PlanInput{}, err
	}

	return plan.PlanInput{
		Name:             req.Name,
		CarrierName:      req.CarrierName,
		PlanType:         model.PlanType(req.PlanType),
		MetalTier:        model.MetalTier(req.MetalTier),
		MonthlyCostCents: req.MonthlyCostCents,
		ContractCode:     req.ContractCode,
		EffectiveDate:    effectiveDate,
		Active:           req.Active,
	}, nil
}

// toPlanResponse はmodel.PlanからAPIレスポンスに変換する。
func toPlanResponse(p *model.Plan) planResponse {
	return planResponse{
		ID:               p.ID,
		BrokerID:         p.BrokerID,
		Name:             p.Name,
		CarrierName:      p.CarrierName,
		PlanType:         string(p.PlanType),
		MetalTier:        string(p.MetalTier),
		MonthlyCostCents: p.MonthlyCostCents,
		ContractCode:     p.ContractCode,
		EffectiveDate:    formatDate(p.EffectiveDate),
		Active:           p.Active,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toContributionResponse(c *model.Contribution) contributionResponse {
	return contributionResponse{
		ID:             c.ID,
		CompanyID:      c.CompanyID,
		PlanType:       string(c.PlanType),
		EmployeeMode:   string(c.EmployeeMode),
		EmployeeValue:  c.EmployeeValue,
		DependentMode:  string(c.DependentMode),
		DependentValue: c.DependentValue,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
