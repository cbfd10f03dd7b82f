package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/company"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// dateLayout はAPI上の日付フィールドの形式。
const dateLayout = "2006-01-02"

// CompanyAuthorizer は企業の取得とテナント境界の検証インターフェース。
// 企業配下のサブリソースを扱う各ハンドラーが共用する。
type CompanyAuthorizer interface {
	// Authorize は企業を取得し、呼び出し元ブローカーの所属を検証する。
	Authorize(ctx context.Context, companyID, brokerID string, admin bool) (*model.Company, error)
}

// CompanyServiceInterface は企業ハンドラーが必要とするサービスインターフェース。
type CompanyServiceInterface interface {
	CompanyAuthorizer

	// Create は企業を作成する。
	Create(ctx context.Context, brokerID, createdBy string, input company.CompanyInput) (*model.Company, error)
	// Update は企業情報を更新する。
	Update(ctx context.Context, target *model.Company, input company.CompanyInput) (*model.Company, error)
	// Delete は企業と配下の全データを削除する。
	Delete(ctx context.Context, companyID string) error
	// List はブローカー配下の企業一覧を返す。
	List(ctx context.Context, brokerID string) ([]*model.Company, error)

	// AddOwner はオーナーを追加する。
	AddOwner(ctx context.Context, companyID string, input company.OwnerInput) (*model.Owner, error)
	// UpdateOwner はオーナー情報を更新する。
	UpdateOwner(ctx context.Context, companyID, ownerID string, input company.OwnerInput) (*model.Owner, error)
	// DeleteOwner はオーナーを削除する。
	DeleteOwner(ctx context.Context, companyID, ownerID string) error
	// ListOwners は企業のオーナー一覧を返す。
	ListOwners(ctx context.Context, companyID string) ([]*model.Owner, error)
	// OwnershipTotal は企業の出資比率の合計を返す。
	OwnershipTotal(ctx context.Context, companyID string) (float64, error)

	// AddEmployee は従業員を追加する。
	AddEmployee(ctx context.Context, companyID string, input company.EmployeeInput) (*model.Employee, error)
	// UpdateEmployee は従業員情報を更新する。
	UpdateEmployee(ctx context.Context, companyID, employeeID string, input company.EmployeeInput) (*model.Employee, error)
	// DeleteEmployee は従業員を削除する。
	DeleteEmployee(ctx context.Context, companyID, employeeID string) error
	// ListEmployees は企業の従業員一覧を返す。
	ListEmployees(ctx context.Context, companyID string) ([]*model.Employee, error)
}

// CompanyHandler は顧客企業管理のHTTPハンドラー。
type CompanyHandler struct {
	service CompanyServiceInterface
	audit   AuditRecorder
}

// NewCompanyHandler はCompanyHandlerを生成する。
func NewCompanyHandler(service CompanyServiceInterface, auditRec AuditRecorder) *CompanyHandler {
	return &CompanyHandler{
		service: service,
		audit:   auditRec,
	}
}

// companyRequest は企業の作成・更新リクエストのボディ。
type companyRequest struct {
	Name       string `json:"name"`
	TaxID      string `json:"tax_id"`
	EntityType string `json:"entity_type"`
	Industry   string `json:"industry"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
	Phone      string `json:"phone"`
}

// companyResponse は企業情報のAPIレスポンス。
type companyResponse struct {
	ID         string    `json:"id"`
	BrokerID   string    `json:"broker_id"`
	Name       string    `json:"name"`
	TaxID      string    `json:"tax_id"`
	EntityType string    `json:"entity_type"`
	Industry   string    `json:"industry"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	ZipCode    string    `json:"zip_code"`
	Phone      string    `json:"phone"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ownerRequest はオーナーの追加・更新リクエストのボディ。
type ownerRequest struct {
	FirstName        string  `json:"first_name"`
	LastName         string  `json:"last_name"`
	Title            string  `json:"title"`
	OwnershipPercent float64 `json:"ownership_percent"`
	IsEligible       bool    `json:"is_eligible"`
}

// ownerResponse はオーナー情報のAPIレスポンス。
type ownerResponse struct {
	ID               string    `json:"id"`
	CompanyID        string    `json:"company_id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Title            string    `json:"title"`
	OwnershipPercent float64   `json:"ownership_percent"`
	IsEligible       bool      `json:"is_eligible"`
	CreatedAt        time.Time `json:"created_at"`
}

// ownerListResponse はオーナー一覧と出資比率合計のAPIレスポンス。
type ownerListResponse struct {
	Owners       []ownerResponse `json:"owners"`
	TotalPercent float64         `json:"total_percent"`
}

// employeeRequest は従業員の追加・更新リクエストのボディ。
// 日付はYYYY-MM-DD形式の文字列。
type employeeRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	DateOfBirth     string `json:"date_of_birth"`
	HireDate        string `json:"hire_date"`
	AnnualSalary    int64  `json:"annual_salary"`
	DependentsCount int    `json:"dependents_count"`
	Status          string `json:"status"`
}

// employeeResponse は従業員情報のAPIレスポンス。
type employeeResponse struct {
	ID              string    `json:"id"`
	CompanyID       string    `json:"company_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Email           string    `json:"email"`
	DateOfBirth     string    `json:"date_of_birth"`
	HireDate        string    `json:"hire_date"`
	AnnualSalary    int64     `json:"annual_salary"`
	DependentsCount int       `json:"dependents_count"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// List はブローカー配下の企業一覧を返す。
// GET /api/companies
func (h *CompanyHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	companies, err := h.service.List(r.Context(), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]companyResponse, len(companies))
	for i, c := range companies {
		results[i] = toCompanyResponse(c)
	}
	writeJSON(w, http.StatusOK, results)
}

// Create は企業を作成する。
// POST /api/companies
func (h *CompanyHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req companyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), principal.BrokerID, principal.UserID, toCompanyInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "company.create",
		ResourceType: "company",
		ResourceID:   created.ID,
		Detail:       map[string]string{"name": created.Name},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toCompanyResponse(created))
}

// Get は企業詳細を返す。
// GET /api/companies/{id}
func (h *CompanyHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toCompanyResponse(target))
}

// Update は企業情報を更新する。
// PUT /api/companies/{id}
func (h *CompanyHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req companyRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), target, toCompanyInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "company.update",
		ResourceType: "company",
		ResourceID:   updated.ID,
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toCompanyResponse(updated))
}

// Delete は企業と配下の全データを削除する。
// DELETE /api/companies/{id}
func (h *CompanyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), target.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "company.delete",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"name": target.Name},
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// --- オーナー ---

// ListOwners は企業のオーナー一覧と出資比率の合計を返す。
// GET /api/companies/{id}/owners
func (h *CompanyHandler) ListOwners(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	owners, err := h.service.ListOwners(r.Context(), target.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	total, err := h.service.OwnershipTotal(r.Context(), target.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]ownerResponse, len(owners))
	for i, o := range owners {
		results[i] = toOwnerResponse(o)
	}
	writeJSON(w, http.StatusOK, ownerListResponse{Owners: results, TotalPercent: total})
}

// AddOwner はオーナーを追加する。
// POST /api/companies/{id}/owners
func (h *CompanyHandler) AddOwner(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req ownerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.AddOwner(r.Context(), target.ID, toOwnerInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "owner.add",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]any{"owner_id": created.ID, "ownership_percent": created.OwnershipPercent},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toOwnerResponse(created))
}

// UpdateOwner はオーナー情報を更新する。
// PUT /api/companies/{id}/owners/{ownerID}
func (h *CompanyHandler) UpdateOwner(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req ownerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.UpdateOwner(r.Context(), target.ID, chi.URLParam(r, "ownerID"), toOwnerInput(req))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "owner.update",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]any{"owner_id": updated.ID, "ownership_percent": updated.OwnershipPercent},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toOwnerResponse(updated))
}

// DeleteOwner はオーナーを削除する。
// DELETE /api/companies/{id}/owners/{ownerID}
func (h *CompanyHandler) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	ownerID := chi.URLParam(r, "ownerID")
	if err := h.service.DeleteOwner(r.Context(), target.ID, ownerID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "owner.delete",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"owner_id": ownerID},
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// --- 従業員 ---

// ListEmployees は企業の従業員一覧を返す。
// GET /api/companies/{id}/employees
func (h *CompanyHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	employees, err := h.service.ListEmployees(r.Context(), target.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]employeeResponse, len(employees))
	for i, e := range employees {
		results[i] = toEmployeeResponse(e)
	}
	writeJSON(w, http.StatusOK, results)
}

// AddEmployee は従業員を追加する。
// POST /api/companies/{id}/employees
func (h *CompanyHandler) AddEmployee(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req employeeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	input, err := toEmployeeInput(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	created, err := h.service.AddEmployee(r.Context(), target.ID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "employee.add",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"employee_id": created.ID, "email": created.Email},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toEmployeeResponse(created))
}

// UpdateEmployee は従業員情報を更新する。
// PUT /api/companies/{id}/employees/{employeeID}
func (h *CompanyHandler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req employeeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	input, err := toEmployeeInput(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.UpdateEmployee(r.Context(), target.ID, chi.URLParam(r, "employeeID"), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "employee.update",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"employee_id": updated.ID},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toEmployeeResponse(updated))
}

// DeleteEmployee は従業員を削除する。
// DELETE /api/companies/{id}/employees/{employeeID}
func (h *CompanyHandler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	employeeID := chi.URLParam(r, "employeeID")
	if err := h.service.DeleteEmployee(r.Context(), target.ID, employeeID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "employee.delete",
		ResourceType: "company",
		ResourceID:   target.ID,
		Detail:       map[string]string{"employee_id": employeeID},
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// --- 変換ヘルパー ---

func toCompanyInput(req companyRequest) company.CompanyInput {
	return company.CompanyInput{
		Name:       req.Name,
		TaxID:      req.TaxID,
		EntityType: model.EntityType(req.EntityType),
		Industry:   req.Industry,
		Address:    req.Address,
		City:       req.City,
		State:      req.State,
		ZipCode:    req.ZipCode,
		Phone:      req.Phone,
	}
}

// toCompanyResponse はmodel.CompanyからAPIレスポンスに変換する。
func toCompanyResponse(c *model.Company) companyResponse {
	return companyResponse{
		ID:         c.ID,
		BrokerID:   c.BrokerID,
		Name:       c.Name,
		TaxID:      c.TaxID,
		EntityType: string(c.EntityType),
		Industry:   c.Industry,
		Address:    c.Address,
		City:       c.City,
		State:      c.State,
		ZipCode:    c.ZipCode,
		Phone:      c.Phone,
		CreatedBy:  c.CreatedBy,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func toOwnerInput(req ownerRequest) company.OwnerInput {
	return company.OwnerInput{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Title:            req.Title,
		OwnershipPercent: req.OwnershipPercent,
		IsEligible:       req.IsEligible,
	}
}

func toOwnerResponse(o *model.Owner) ownerResponse {
	return ownerResponse{
		ID:               o.ID,
		CompanyID:        o.CompanyID,
		FirstName:        o.FirstName,
		LastName:         o.LastName,
		Title:            o.Title,
		OwnershipPercent: o.OwnershipPercent,
		IsEligible:       o.IsEligible,
		CreatedAt:        o.CreatedAt,
	}
}

// toEmployeeInput は従業員リクエストをサービス入力に変換する。
// 日付フィールドの形式が不正な場合はVALIDATION_FAILEDを返す。
func toEmployeeInput(req employeeRequest) (company.EmployeeInput, error) {
	dob, err := parseDateField("生年月日", req.DateOfBirth)
	if err != nil {
		return company.EmployeeInput{}, err
	}
	hireDate, err := parseDateField("入社日", req.HireDate)
	if err != nil {
		return company.EmployeeInput{}, err
	}

	return company.EmployeeInput{
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		DOB:             dob,
		HireDate:        hireDate,
		AnnualSalary:    req.AnnualSalary,
		DependentsCount: req.DependentsCount,
		Status:          model.EmployeeStatus(req.Status),
	}, nil
}

func toEmployeeResponse(e *model.Employee) employeeResponse {
	return employeeResponse{
		ID:              e.ID,
		CompanyID:       e.CompanyID,
		FirstName:       e.FirstName,
		LastName:        e.LastName,
		Email:           e.Email,
		DateOfBirth:     formatDate(e.DOB),
		HireDate:        formatDate(e.HireDate),
		AnnualSalary:    e.AnnualSalary,
		DependentsCount: e.DependentsCount,
		Status:          string(e.Status),
		CreatedAt:       e.CreatedAt,
	}
}

// parseDateField はYYYY-MM-DD形式の日付文字列を解析する。空文字はゼロ値を返す。
func parseDateField(label, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, model.NewValidationError(label + "はYYYY-MM-DD形式で指定してください")
	}
	return t, nil
}

// formatDate は日付をYYYY-MM-DD形式の文字列にする。ゼロ値は空文字を返す。
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
