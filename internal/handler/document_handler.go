package handler

import (
	"context"
	"errors"
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

// DocumentServiceInterface は書類ハンドラーが必要とするサービスインターフェース。
type DocumentServiceInterface interface {
	// Upload は書類を検証して保存する。
	Upload(ctx context.Context, input document.UploadInput) (*model.Document, error)
	// List は企業の書類一覧を返す。
	List(ctx context.Context, companyID string) ([]*model.Document, error)
	// Get は書類を取得する。ファイル本体を含む。
	Get(ctx context.Context, companyID, documentID string) (*model.Document, error)
	// Delete は書類を削除する。
	Delete(ctx context.Context, companyID, documentID string) error
	// Requirements は企業に適用される書類要件の充足状況を返す。
	Requirements(ctx context.Context, target *model.Company) (*document.Evaluation, error)
}

// UploadMetricsRecorder は書類アップロード数を記録するインターフェース。
type UploadMetricsRecorder interface {
	RecordDocumentUploaded()
}

// DocumentHandler は企業書類管理のHTTPハンドラー。
type DocumentHandler struct {
	service   DocumentServiceInterface
	companies CompanyAuthorizer
	metrics   UploadMetricsRecorder
	audit     AuditRecorder
}

// NewDocumentHandler はDocumentHandlerを生成する。
func NewDocumentHandler(service DocumentServiceInterface, companies CompanyAuthorizer, metrics UploadMetricsRecorder, auditRec AuditRecorder) *DocumentHandler {
	return &DocumentHandler{
		service:   service,
		companies: companies,
		metrics:   metrics,
		audit:     auditRec,
	}
}

// documentResponse は書類メタデータのAPIレスポンス。ファイル本体は含まない。
type documentResponse struct {
	ID           string    `json:"id"`
	CompanyID    string    `json:"company_id"`
	DocumentType string    `json:"document_type"`
	FileName     string    `json:"file_name"`
	FileSize     int64     `json:"file_size"`
	FileMime     string    `json:"file_mime"`
	UploadedBy   string    `json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// requirementsResponse は書類要件評価のAPIレスポンス。
type requirementsResponse struct {
	Documents []model.RequiredDocument `json:"documents"`
	Missing   []string                 `json:"missing"`
}

// List は企業の書類一覧を返す。
// GET /api/companies/{id}/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	documents, err := h.service.List(r.Context(), target.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]documentResponse, len(documents))
	for i, d := range documents {
		results[i] = toDocumentResponse(d)
	}
	writeJSON(w, http.StatusOK, results)
}

// Upload は書類のアップロードを処理する。PDFのみ受け付ける。
// POST /api/companies/{id}/documents
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
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

	created, err := h.service.Upload(r.Context(), document.UploadInput{
		CompanyID:    target.ID,
		DocumentType: r.FormValue("document_type"),
		FileName:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Data:         data,
		UploadedBy:   principal.UserID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.metrics.RecordDocumentUploaded()
	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "document.upload",
		ResourceType: "document",
		ResourceID:   created.ID,
		Detail:       map[string]any{"document_type": created.DocumentType, "file_name": created.FileName, "file_size": created.FileSize},
		IPAddress:    audit.ClientIP(r),
	})

	writeJSON(w, http.StatusCreated, toDocumentResponse(created))
}

// Requirements は企業に適用される書類要件の充足状況を返す。
// GET /api/companies/{id}/documents/requirements
func (h *DocumentHandler) Requirements(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	eval, err := h.service.Requirements(r.Context(), target)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, requirementsResponse{
		Documents: eval.Documents,
		Missing:   eval.Missing,
	})
}

// Download は書類のファイル本体を添付ファイルとして返す。
// GET /api/companies/{id}/documents/{docID}/download
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, err := h.service.Get(r.Context(), target.ID, chi.URLParam(r, "docID"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", doc.FileMime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.FileName))
	w.Header().Set("Content-Length", strconv.FormatInt(doc.FileSize, 10))
	w.Write(doc.FileData)
}

// Delete は書類を削除する。
// DELETE /api/companies/{id}/documents/{docID}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	target, err := h.companies.Authorize(r.Context(), chi.URLParam(r, "id"), principal.BrokerID, principal.IsAdmin())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	docID := chi.URLParam(r, "docID")
	if err := h.service.Delete(r.Context(), target.ID, docID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.audit.Record(r.Context(), audit.Entry{
		BrokerID:     principal.BrokerID,
		UserID:       principal.UserID,
		Action:       "document.delete",
		ResourceType: "document",
		ResourceID:   docID,
		IPAddress:    audit.ClientIP(r),
	})

	w.WriteHeader(http.StatusNoContent)
}

// toDocumentResponse はmodel.DocumentからAPIレスポンスに変換する。
func toDocumentResponse(d *model.Document) documentResponse {
	return documentResponse{
		ID:           d.ID,
		CompanyID:    d.CompanyID,
		DocumentType: d.DocumentType,
		FileName:     d.FileName,
		FileSize:     d.FileSize,
		FileMime:     d.FileMime,
		UploadedBy:   d.UploadedBy,
		CreatedAt:    d.CreatedAt,
	}
}

// handleUploadFormError はmultipartフォーム解析時のエラーを処理する。
// MaxBytesReaderの上限超過はFILE_TOO_LARGEとして返す。
func handleUploadFormError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeAPIErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewFileTooLargeError(maxBytesErr.Limit))
		return
	}
	writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ファイルが指定されていません"))
}
