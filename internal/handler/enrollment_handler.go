package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/enrollment"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// EnrollmentServiceInterface は申請ハンドラーが必要とするサービスインターフェース。
type EnrollmentServiceInterface interface {
	// CreateDraft は企業の下書き申請を作成する。
	CreateDraft(ctx context.Context, companyID, createdBy string) (*model.Application, error)
	// Authorize は申請とその所属企業を取得し、アクセス権を検証する。
	Authorize(ctx context.Context, applicationID, brokerID string, admin bool) (*model.Application, *model.Company, error)
	// ListByCompany は企業の申請一覧を返す。
	ListByCompany(ctx context.Context, companyID string) ([]*model.Application, error)
	// ListByBroker はブローカー配下全企業の申請一覧を返す。
	ListByBroker(ctx context.Context, brokerID string) ([]*model.Application, error)
	// ListSubmitted は審査待ちの申請一覧を返す。
	ListSubmitted(ctx context.Context) ([]*model.Application, error)
	// UpdateDraft は下書き申請を部分更新する。
	UpdateDraft(ctx context.Context, app *model.Application, input enrollment.UpdateInput) (*model.Application, error)
	// SelectPlans は申請の選択プランを入れ替える。
	SelectPlans(ctx context.Context, app *model.Application, company *model.Company, planIDs []string) error
	// SelectedPlans は申請が選択中のプラン一覧を返す。
	SelectedPlans(ctx context.Context, applicationID string) ([]*model.Plan, error)
	// Submit は申請を提出する。
	Submit(ctx context.Context, app *model.Application, company *model.Company) (*model.Application, error)
	// Decide は提出済み申請を承認または差し戻しする。
	Decide(ctx context.Context, app *model.Application, decidedBy string, approve bool, note string) (*model.Application, error)
}

// ApplicationMetricsRecorder は申請関連のメトリクスを記録する。
type ApplicationMetricsRecorder interface {
	RecordApplicationSubmitted()
	RecordApplicationDecided(decision string)
}

// EnrollmentHandler は加入申請のHTTPハンドラー。
type EnrollmentHandler struct {
	service   EnrollmentServiceInterface
	companies CompanyAuthorizer
	metrics   ApplicationMetricsRecorder
	audit     AuditRecorder
}

// NewEnrollmentHandler はEnrollmentHandlerを生成する。
func NewEnrollmentHandler(service EnrollmentServiceInterface, companies CompanyAuthorizer, metrics ApplicationMetricsRecorder, auditRec AuditRecorder) *EnrollmentHandler {
	return &EnrollmentHandler{
		service:   service,
		companies: companies,
		metrics:   metrics,
		audit:     auditRec,
	}
}

// updateApplicationRequest は下書き申請の部分更新リクエスト。nilのフィールドは変更しない。
type updateApplicationRequest struct {
	CurrentStep            *string `json:"current_step"`
	RequestedEffectiveDate *string `json:"requested_effective_date"`
}

// selectPlansRequest は選択プランの入れ替えリクエスト。
type selectPlansRequest struct {
	PlanIDs []string `json:"plan_ids"`
}

// decisionRequest は管理者による審査結果のリクエスト。
type decisionRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// applicationResponse は申請情報のAPIレスポンス。
type applicationResponse struct {
	ID                     string     `json:"id"`
	CompanyID              string     `json:"company_id"`
	Status                 string     `json:"status"`
	CurrentStep            string     `json:"current_step"`
	RequestedEffectiveDate string     `json:"requested_effective_date,omitempty"`
	SubmittedAt            *time.Time `json:"submitted_at,omitempty"`
	DecidedAt              *time.Time `json:"decided_at,omitempty"`
	DecidedBy              string     `json:"decided_by,omitempty"`
	DecisionNote           string     `json:"decision_note,omitempty"`
	CreatedBy              string     `json:"created_by"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ListByCompany は企業の申請一覧を返す。
// GET /api/companies/{id}/applications
func (h *EnrollmentHandler) ListByCompany(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	apps, err := h.service.ListByCompany(r.Context(), target.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// CreateDraft は企業の下書き申請を作成する。
// POST /api/companies/{id}/applications
func (h *EnrollmentHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.CreateDraft(r.Context(), target.ID, principal.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "application.create",
		ResourceType: "application",
		ResourceID:   created.ID,
		Detail:       map[string]string{"company_id": target.ID},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toApplicationResponse(created))
}

// ListByBroker はブローカー配下全企業の申請一覧を返す。
// GET /api/applications
func (h *EnrollmentHandler) ListByBroker(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	apps, err := h.service.ListByBroker(r.Context(), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// ListSubmitted は審査待ちの申請一覧を提出日時順で返す。
// GET /api/admin/applications
func (h *EnrollmentHandler) ListSubmitted(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	apps, err := h.service.ListSubmitted(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponses(apps))
}

// Get は申請詳細を返す。
// GET /api/applications/{id}
func (h *EnrollmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	app, _, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

// Update は下書き申請の入力ステップと希望開始日を更新する。
// PATCH /api/applications/{id}
func (h *EnrollmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateApplicationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	app, _, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var input enrollment.UpdateInput
	if req.CurrentStep != nil {
		step := model.ApplicationStep(*req.CurrentStep)
		input.CurrentStep = &step
	}
	if req.RequestedEffectiveDate != nil {
		date, err := parseDateField("保険開始日", *req.RequestedEffectiveDate)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		input.RequestedEffectiveDate = &date
	}

	updated, err := h.service.UpdateDraft(r.Context(), app, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "application.update",
		ResourceType: "application",
		ResourceID:   updated.ID,
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toApplicationResponse(updated))
}

// SelectedPlans は申請が選択中のプラン一覧を返す。
// GET /api/applications/{id}/plans
func (h *EnrollmentHandler) SelectedPlans(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	app, _, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	plans, err := h.service.SelectedPlans(r.Context(), app.ID)
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

// SelectPlans は申請の選択プランを丸ごと入れ替える。
// PUT /api/applications/{id}/plans
func (h *EnrollmentHandler) SelectPlans(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req selectPlansRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	app, company, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.SelectPlans(r.Context(), app, company, req.PlanIDs); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "application.select_plans",
		ResourceType: "application",
		ResourceID:   app.ID,
		Detail:       map[string]int{"plan_count": len(req.PlanIDs)},
		IPAddress:    audit.ClientIP(r),
	})

	plans, err := h.service.SelectedPlans(r.Context(), app.ID)
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

// Submit は申請を提出する。提出条件を満たさない場合は422を返す。
// POST /api/applications/{id}/submit
func (h *EnrollmentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	app, company, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	submitted, err := h.service.Submit(r.Context(), app, company)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordApplicationSubmitted()
	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "application.submit",
		ResourceType: "application",
		ResourceID:   submitted.ID,
		Detail:       map[string]string{"company_id": company.ID},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toApplicationResponse(submitted))
}

// Decide は提出済み申請を承認または差し戻しする。
// POST /api/applications/{id}/decision
func (h *EnrollmentHandler) Decide(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	app, _, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	decided, err := h.service.Decide(r.Context(), app, principal.UserID, req.Approve, req.Note)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	decision := "rejected"
	if req.Approve {
		decision = "approved"
	}
	h.metrics.RecordApplicationDecided(decision)
	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "application.decide",
		ResourceType: "application",
		ResourceID:   decided.ID,
		Detail:       map[string]string{"decision": decision},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toApplicationResponse(decided))
}

// --- 変換ヘルパー ---

func toApplicationResponse(app *model.Application) applicationResponse {
	return applicationResponse{
		ID:                     app.ID,
		CompanyID:              app.CompanyID,
		Status:                 string(app.Status),
		CurrentStep:            string(app.CurrentStep),
		RequestedEffectiveDate: formatDate(app.RequestedEffectiveDate),
		SubmittedAt:            app.SubmittedAt,
		DecidedAt:              app.DecidedAt,
		DecidedBy:              app.DecidedBy,
		DecisionNote:           app.DecisionNote,
		CreatedBy:              app.CreatedBy,
		CreatedAt:              app.CreatedAt,
		UpdatedAt:              app.UpdatedAt,
	}
}

func toApplicationResponses(apps []*model.Application) []applicationResponse {
	results := make([]applicationResponse, len(apps))
	for i, app := range apps {
		results[i] = toApplicationResponse(app)
	}
	return results
}
