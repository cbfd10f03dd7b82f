package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/admin"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	// ListBrokers は全ブローカーを利用状況の集計付きで返す。
	ListBrokers(ctx context.Context) ([]repository.BrokerWithStats, error)
	// CreateBroker はブローカーと代表ユーザーをまとめて開設する。
	CreateBroker(ctx context.Context, input admin.CreateBrokerInput) (*model.Broker, *model.User, string, error)
	// ListUsers は指定ブローカーのユーザー一覧を返す。
	ListUsers(ctx context.Context, brokerID string) ([]*model.User, error)
	// SetUserActive はユーザーの有効・無効を切り替える。
	SetUserActive(ctx context.Context, userID string, active bool) (*model.User, error)
	// Stats はプラットフォーム全体の利用状況を集計する。
	Stats(ctx context.Context) (*admin.PlatformStats, error)
	// DocumentRules は書類要件の設定内容を返す。
	DocumentRules() *document.RuleSet
}

// AdminHandler はプラットフォーム管理者向けのHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
	audit   AuditRecorder
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, auditRec AuditRecorder) *AdminHandler {
	return &AdminHandler{
		service: service,
		audit:   auditRec,
	}
}

// createBrokerRequest はブローカー開設リクエストのボディ。
type createBrokerRequest struct {
	BrokerName     string `json:"broker_name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	LicenseNumber  string `json:"license_number"`
	OwnerUsername  string `json:"owner_username"`
	OwnerEmail     string `json:"owner_email"`
	OwnerFirstName string `json:"owner_first_name"`
	OwnerLastName  string `json:"owner_last_name"`
}

// createBrokerResponse はブローカー開設結果。初期パスワードはこのレスポンスでしか返さない。
type createBrokerResponse struct {
	Broker       brokerResponse `json:"broker"`
	Owner        userResponse   `json:"owner"`
	TempPassword string         `json:"temp_password"`
}

// brokerStatsResponse は利用状況付きのブローカー情報。
type brokerStatsResponse struct {
	brokerResponse
	UserCount        int `json:"user_count"`
	CompanyCount     int `json:"company_count"`
	ApplicationCount int `json:"application_count"`
}

// platformStatsResponse はプラットフォーム全体の利用状況。
type platformStatsResponse struct {
	Brokers      int            `json:"brokers"`
	Users        int            `json:"users"`
	Companies    int            `json:"companies"`
	Applications map[string]int `json:"applications"`
}

// ListBrokers は全ブローカーを利用状況付きで返す。
// GET /api/admin/brokers
func (h *AdminHandler) ListBrokers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	brokers, err := h.service.ListBrokers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]brokerStatsResponse, len(brokers))
	for i, b := range brokers {
		results[i] = brokerStatsResponse{
			brokerResponse:   toBrokerResponse(&b.Broker),
			UserCount:        b.UserCount,
			CompanyCount:     b.CompanyCount,
			ApplicationCount: b.ApplicationCount,
		}
	}
	writeJSON(w, http.StatusOK, results)
}

// CreateBroker はブローカーと代表ユーザーをまとめて開設する。
// POST /api/admin/brokers
func (h *AdminHandler) CreateBroker(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createBrokerRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	broker, owner, tempPassword, err := h.service.CreateBroker(r.Context(), admin.CreateBrokerInput{
		BrokerName:     req.BrokerName,
		Email:          req.Email,
		Phone:          req.Phone,
		LicenseNumber:  req.LicenseNumber,
		OwnerUsername:  req.OwnerUsername,
		OwnerEmail:     req.OwnerEmail,
		OwnerFirstName: req.OwnerFirstName,
		OwnerLastName:  req.OwnerLastName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "admin.create_broker",
		ResourceType: "broker",
		ResourceID:   broker.ID,
		Detail:       map[string]string{"broker_name": broker.Name, "owner_username": owner.Username},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, createBrokerResponse{
		Broker:       toBrokerResponse(broker),
		Owner:        toUserResponse(owner),
		TempPassword: tempPassword,
	})
}

// ListUsers は指定ブローカーのユーザー一覧を返す。
// GET /api/admin/users?broker_id=xxx
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	brokerID := r.URL.Query().Get("broker_id")
	if brokerID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("broker_idは必須です"))
		return
	}

	users, err := h.service.ListUsers(r.Context(), brokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]userResponse, len(users))
	for i, u := range users {
		results[i] = toUserResponse(u)
	}
	writeJSON(w, http.StatusOK, results)
}

// SetUserActive はブローカーを問わずユーザーの有効・無効を切り替える。
// PUT /api/admin/users/{id}/active
func (h *AdminHandler) SetUserActive(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req setActiveRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	updated, err := h.service.SetUserActive(r.Context(), chi.URLParam(r, "id"), req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "admin.set_user_active",
		ResourceType: "user",
		ResourceID:   updated.ID,
		Detail:       map[string]bool{"active": updated.Active},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// Stats はプラットフォーム全体の利用状況を返す。
// GET /api/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	applications := make(map[string]int, len(stats.Applications))
	for status, count := range stats.Applications {
		applications[string(status)] = count
	}
	writeJSON(w, http.StatusOK, platformStatsResponse{
		Brokers:      stats.Brokers,
		Users:        stats.Users,
		Companies:    stats.Companies,
		Applications: applications,
	})
}

// DocumentRules は書類要件の設定内容を返す。
// GET /api/admin/document-rules
func (h *AdminHandler) DocumentRules(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.service.DocumentRules())
}
