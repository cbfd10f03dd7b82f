package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/audit"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// TemplateServiceInterface は帳票テンプレートハンドラーが必要とするサービスインターフェース。
type TemplateServiceInterface interface {
	// Upload は帳票テンプレートを検証して保存する。
	Upload(ctx context.Context, input document.TemplateUploadInput) (*model.PDFTemplate, error)
	// List はブローカーの帳票テンプレート一覧を返す。
	List(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error)
	// Get は帳票テンプレートを取得する。ファイル本体を含む。
	Get(ctx context.Context, brokerID, templateID string) (*model.PDFTemplate, error)
	// UpdateMappings は項目マッピングを置き換える。
	UpdateMappings(ctx context.Context, brokerID, templateID string, mappings []model.FieldMapping) (*model.PDFTemplate, error)
	// Delete は帳票テンプレートを削除する。
	Delete(ctx context.Context, brokerID, templateID string) error
}

// PDFTemplateHandler は帳票テンプレート管理のHTTPハンドラー。
type PDFTemplateHandler struct {
	service TemplateServiceInterface
	audit   AuditRecorder
}

// NewPDFTemplateHandler はPDFTemplateHandlerを生成する。
func NewPDFTemplateHandler(service TemplateServiceInterface, auditRec AuditRecorder) *PDFTemplateHandler {
	return &PDFTemplateHandler{
		service: service,
		audit:   auditRec,
	}
}

// templateResponse は帳票テンプレートのAPIレスポンス。ファイル本体は含まない。
type templateResponse struct {
	ID            string               `json:"id"`
	BrokerID      string               `json:"broker_id"`
	Name          string               `json:"name"`
	CarrierName   string               `json:"carrier_name"`
	FormNumber    string               `json:"form_number"`
	FileName      string               `json:"file_name"`
	FileSize      int64                `json:"file_size"`
	FieldMappings []model.FieldMapping `json:"field_mappings"`
	UploadedBy    string               `json:"uploaded_by"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// updateMappingsRequest は項目マッピング更新リクエストのボディ。
type updateMappingsRequest struct {
	Mappings []model.FieldMapping `json:"mappings"`
}

// List はブローカーの帳票テンプレート一覧を返す。
// GET /api/pdf-templates
func (h *PDFTemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	templates, err := h.service.List(r.Context(), principal.BrokerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]templateResponse, len(templates))
	for i, t := range templates {
		results[i] = toTemplateResponse(t)
	}
	writeJSON(w, http.StatusOK, results)
}

// Upload は帳票テンプレートのアップロードを処理する。PDFのみ受け付ける。
// POST /api/pdf-templates
func (h *PDFTemplateHandler) Upload(w http.ResponseWriter, r *http.Request) {
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

	created, err := h.service.Upload(r.Context(), document.TemplateUploadInput{
		BrokerID:    principal.BrokerID,
		Name:        r.FormValue("name"),
		CarrierName: r.FormValue("carrier_name"),
		FormNumber:  r.FormValue("form_number"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		UploadedBy:  principal.UserID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "pdf_template.upload",
		ResourceType: "pdf_template",
		ResourceID:   created.ID,
		Detail:       map[string]string{"name": created.Name, "file_name": created.FileName},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toTemplateResponse(created))
}

// Get は帳票テンプレート詳細を返す。
// GET /api/pdf-templates/{id}
func (h *PDFTemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	template, err := h.service.Get(r.Context(), principal.BrokerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTemplateResponse(template))
}

// Download は帳票テンプレートのファイル本体を添付ファイルとして返す。
// GET /api/pdf-templates/{id}/download
func (h *PDFTemplateHandler) Download(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	template, err := h.service.Get(r.Context(), principal.BrokerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", template.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(template.FileSize, 10))
	w.Write(template.FileData)
}

// UpdateMappings は項目マッピングを置き換える。
// PUT /api/pdf-templates/{id}/mappings
func (h *PDFTemplateHandler) UpdateMappings(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req updateMappingsRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	updated, err := h.service.UpdateMappings(r.Context(), principal.BrokerID, chi.URLParam(r, "id"), req.Mappings)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "pdf_template.update_mappings",
		ResourceType: "pdf_template",
		ResourceID:   updated.ID,
		Detail:       map[string]any{"mapping_count": len(req.Mappings)},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusOK, toTemplateResponse(updated))
}

// Delete は帳票テンプレートを削除する。
// DELETE /api/pdf-templates/{id}
func (h *PDFTemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	templateID := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), principal.BrokerID, templateID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "pdf_template.delete",
		ResourceType: "pdf_template",
		ResourceID:   templateID,
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// toTemplateResponse はmodel.PDFTemplateからAPIレスポンスに変換する。
func toTemplateResponse(t *model.PDFTemplate) templateResponse {
	return templateResponse{
		ID:            t.ID,
		BrokerID:      t.BrokerID,
		Name:          t.Name,
		CarrierName:   t.CarrierName,
		FormNumber:    t.FormNumber,
		FileName:      t.FileName,
		FileSize:      t.FileSize,
		FieldMappings: t.FieldMappings,
		UploadedBy:    t.UploadedBy,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}
