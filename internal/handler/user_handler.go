package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/user"
)

// UserServiceInterface はユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Create はブローカー配下にユーザーを作成する。
	Create(ctx context.Context, brokerID string, input user.CreateInput) (*model.User, error)
	// Authorize はユーザーを取得し、指定ブローカーの所属であることを確認する。
	Authorize(ctx context.Context, userID, brokerID string) (*model.User, error)
	// List はブローカー配下のユーザー一覧を返す。
	List(ctx context.Context, brokerID string) ([]*model.User, error)
	// Update はユーザー情報を更新する。
	Update(ctx context.Context, target *model.User, input user.UpdateInput) (*model.User, error)
	// SetActive はユーザーの有効状態を変更する。
	SetActive(ctx context.Context, target *model.User, actorID string, active bool) (*model.User, error)
}

// UserHandler はブローカー配下のユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	audit   AuditRecorder
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, auditRec AuditRecorder) *UserHandler {
	return &UserHandler{
		service: service,
		audit:   auditRec,
	}
}

// createUserRequest はユーザー作成リクエストのボディ。
type createUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// updateUserRequest はユーザー更新リクエストのボディ。指定したフィールドのみ更新する。
type updateUserRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
}

// setActiveRequest は有効状態変更リクエストのボディ。
type setActiveRequest struct {
	Active bool `json:"active"`
}

// List はブローカー配下のユーザー一覧を返す。
// GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	users, err := h.service.List(r.Context(), principal.BrokerID)
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

// Create はユーザーを作成する。
// POST /api/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	created, err := h.service.Create(r.Context(), principal.BrokerID, user.CreateInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      model.Role(req.Role),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "user.create",
		ResourceType: "user",
		ResourceID:   created.ID,
		Detail:       map[string]string{"username": created.Username, "role": string(created.Role)},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

// Get はユーザー詳細を返す。
// GET /api/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(target))
}

// Update はユーザー情報を更新する。
// PATCH /api/users/{id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateUserRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	input := user.UpdateInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if req.Role != nil {
		role := model.Role(*req.Role)
		input.Role = &role
	}

	updated, err := h.service.Update(r.Context(), target, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "user.update",
		ResourceType: "user",
		ResourceID:   updated.ID,
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

// SetActive はユーザーの有効状態を変更する。停止したユーザーの
// セッションは即時に失効する。
// PUT /api/users/{id}/active
func (h *UserHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req setActiveRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	target, err := h.service.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	updated, err := h.service.SetActive(r.Context(), target, principal.UserID, req.Active)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	action := "user.deactivate"
	if req.Active {
		action = "user.reactivate"
	}
	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       action,
		ResourceType: "user",
		ResourceID:   updated.ID,
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toUserResponse(updated))
}
