package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/branding"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// BrandingServiceInterface はブランディングハンドラーが必要とするサービスインターフェース。
type BrandingServiceInterface interface {
	// Settings はブローカーのブランディング設定を返す。
	Settings(ctx context.Context, brokerID string) (*model.Broker, error)
	// UpdateSettings はブランディング設定を部分更新する。
	UpdateSettings(ctx context.Context, brokerID string, input branding.SettingsInput) (*model.Broker, error)
	// UploadLogo はロゴ画像をアップロードする。
	UploadLogo(ctx context.Context, brokerID, contentType string, data []byte) error
	// ImportLogoFromURL は外部URLからロゴを取り込む。
	ImportLogoFromURL(ctx context.Context, brokerID, rawURL string) (string, error)
	// Logo はロゴ画像のバイト列とMIMEタイプを返す。
	Logo(ctx context.Context, brokerID string) ([]byte, string, error)
}

// BrandingHandler はブローカーのブランディング設定のHTTPハンドラー。
type BrandingHandler struct {
	service BrandingServiceInterface
	audit   AuditRecorder
}

// NewBrandingHandler はBrandingHandlerを生成する。
func NewBrandingHandler(service BrandingServiceInterface, auditRec AuditRecorder) *BrandingHandler {
	return &BrandingHandler{
		service: service,
		audit:   auditRec,
	}
}

// updateSettingsRequest はブランディング設定の部分更新リクエスト。nilのフィールドは変更しない。
type updateSettingsRequest struct {
	Name          *string `json:"name"`
	LicenseNumber *string `json:"license_number"`
	Phone         *string `json:"phone"`
	PrimaryColor  *string `json:"primary_color"`
	AccentColor   *string `json:"accent_color"`
	WelcomeHTML   *string `json:"welcome_html"`
}

// importLogoRequest は外部URLからのロゴ取り込みリクエスト。
type importLogoRequest struct {
	URL string `json:"url"`
}

// brokerResponse はブローカー情報のAPIレスポンス。ロゴ本体は含まない。
type brokerResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LicenseNumber string    `json:"license_number"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	PrimaryColor  string    `json:"primary_color"`
	AccentColor   string    `json:"accent_color"`
	WelcomeHTML   string    `json:"welcome_html"`
	HasLogo       bool      `json:"has_logo"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Settings はログイン中ブローカーのブランディング設定を返す。
// GET /api/broker/settings
func (h *BrandingHandler) Settings(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	broker, err := h.service.Settings(r.Context(), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBrokerResponse(broker))
}

// UpdateSettings はブランディング設定を部分更新する。
// PATCH /api/broker/settings
func (h *BrandingHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateSettingsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateSettings(r.Context(), principal.BrokerID, branding.SettingsInput{
		Name:          req.Name,
		LicenseNumber: req.LicenseNumber,
		Phone:         req.Phone,
		PrimaryColor:  req.PrimaryColor,
		AccentColor:   req.AccentColor,
		WelcomeHTML:   req.WelcomeHTML,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "broker.update_settings",
		ResourceType: "broker",
		ResourceID:   principal.BrokerID,
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toBrokerResponse(updated))
}

// Logo はブローカーのロゴ画像を返す。
// GET /api/broker/logo
func (h *BrandingHandler) Logo(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	data, mimeType, err := h.service.Logo(r.Context(), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// UploadLogo はロゴ画像をアップロードする。
// POST /api/broker/logo
func (h *BrandingHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handleUploadFormError(w, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		handleUploadFormError(w, err)
		return
	}

	if err := h.service.UploadLogo(r.Context(), principal.BrokerID, header.Header.Get("Content-Type"), data); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "broker.upload_logo",
		ResourceType: "broker",
		ResourceID:   principal.BrokerID,
		Detail:       map[string]string{"file_name": header.Filename},
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// ImportLogo は外部URLからロゴを取り込む。
// POST /api/broker/logo/import
func (h *BrandingHandler) ImportLogo(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req importLogoRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	mimeType, err := h.service.ImportLogoFromURL(r.Context(), principal.BrokerID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "broker.import_logo",
		ResourceType: "broker",
		ResourceID:   principal.BrokerID,
		Detail:       map[string]string{"url": req.URL, "mime": mimeType},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, map[string]string{"mime": mimeType})
}

// --- 変換ヘルパー ---

func toBrokerResponse(b *model.Broker) brokerResponse {
	return brokerResponse{
		ID:            b.ID,
		Name:          b.Name,
		LicenseNumber: b.LicenseNumber,
		Email:         b.Email,
		Phone:         b.Phone,
		PrimaryColor:  b.PrimaryColor,
		AccentColor:   b.AccentColor,
		WelcomeHTML:   b.WelcomeHTML,
		HasLogo:       len(b.LogoData) > 0,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
}
