package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// --- モック定義 ---

// mockDocumentService はDocumentServiceInterfaceのモック実装。
type mockDocumentService struct {
	uploadFn       func(ctx context.Context, input document.UploadInput) (*model.Document, error)
	listFn         func(ctx context.Context, companyID string) ([]*model.Document, error)
	getFn          func(ctx context.Context, companyID, documentID string) (*model.Document, error)
	deleteFn       func(ctx context.Context, companyID, documentID string) error
	requirementsFn func(ctx context.Context, target *model.Company) (*document.Evaluation, error)
}

func (m *mockDocumentService) Upload(ctx context.Context, input document.UploadInput) (*model.Document, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, input)
	}
	return nil, nil
}

func (m *mockDocumentService) List(ctx context.Context, companyID string) ([]*model.Document, error) {
	if m.listFn != nil {
		return m.listFn(ctx, companyID)
	}
	return nil, nil
}

func (m *mockDocumentService) Get(ctx context.Context, companyID, documentID string) (*model.Document, error) {
	if m.getFn != nil {
		return m.getFn(ctx, companyID, documentID)
	}
	return nil, nil
}

func (m *mockDocumentService) Delete(ctx context.Context, companyID, documentID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, companyID, documentID)
	}
	return nil
}

func (m *mockDocumentService) Requirements(ctx context.Context, target *model.Company) (*document.Evaluation, error) {
	if m.requirementsFn != nil {
		return m.requirementsFn(ctx, target)
	}
	return &document.Evaluation{}, nil
}

// --- テスト ---

func TestDocumentHandler_Upload_Success_RecordsMetricsAndAudit(t *testing.T) {
	pdfBytes := []byte("%PDF-1.7 test content")
	svc := &mockDocumentService{
		uploadFn: func(ctx context.Context, input document.UploadInput) (*model.Document, error) {
			if input.CompanyID != "company-1" {
				t.Errorf("CompanyID = %q, want %q", input.CompanyID, "company-1")
			}
			if input.DocumentType != "articles_of_incorporation" {
				t.Errorf("DocumentType = %q, want %q", input.DocumentType, "articles_of_incorporation")
			}
			if !bytes.Equal(input.Data, pdfBytes) {
				t.Error("uploaded data does not match the file content")
			}
			if input.UploadedBy != "user-staff" {
				t.Errorf("UploadedBy = %q, want %q", input.UploadedBy, "user-staff")
			}
			return &model.Document{
				ID:           "document-1",
				CompanyID:    input.CompanyID,
				DocumentType: input.DocumentType,
				FileName:     input.FileName,
				FileSize:     int64(len(input.Data)),
				FileMime:     "application/pdf",
				UploadedBy:   input.UploadedBy,
			}, nil
		},
	}
	metrics := &stubDomainMetrics{}
	auditRec := &stubAuditRecorder{}
	h := NewDocumentHandler(svc, &mockCompanyService{}, metrics, auditRec)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("document_type", "articles_of_incorporation")
	fw, err := mw.CreateFormFile("file", "teikan.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fw.Write(pdfBytes)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/companies/company-1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	w := httptest.NewRecorder()

	h.Upload(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["file_name"] != "teikan.pdf" {
		t.Errorf("file_name = %v, want %q", result["file_name"], "teikan.pdf")
	}
	if _, exists := result["file_data"]; exists {
		t.Error("response must not contain file_data")
	}

	if metrics.documents != 1 {
		t.Errorf("recorded documents = %d, want 1", metrics.documents)
	}
	if auditRec.lastAction() != "document.upload" {
		t.Errorf("audit action = %q, want %q", auditRec.lastAction(), "document.upload")
	}
}

func TestDocumentHandler_Upload_NonPDF_ReturnsUnsupportedMediaType(t *testing.T) {
	svc := &mockDocumentService{
		uploadFn: func(ctx context.Context, input document.UploadInput) (*model.Document, error) {
			return nil, model.NewInvalidFileTypeError("PDF")
		},
	}
	h := NewDocumentHandler(svc, &mockCompanyService{}, &stubDomainMetrics{}, &stubAuditRecorder{})

	req := newMultipartUploadRequest(t, http.MethodPost, "/api/companies/company-1/documents", "file", "photo.png", []byte("PNG data"))
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	w := httptest.NewRecorder()

	h.Upload(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnsupportedMediaType)
	}

	errResp := parseAPIErrorResponse(t, w)
	if errResp["code"] != "INVALID_FILE_TYPE" {
		t.Errorf("code = %q, want %q", errResp["code"], "INVALID_FILE_TYPE")
	}
}

func TestDocumentHandler_List_ReturnsMetadataOnly(t *testing.T) {
	svc := &mockDocumentService{
		listFn: func(ctx context.Context, companyID string) ([]*model.Document, error) {
			return []*model.Document{
				{ID: "document-1", CompanyID: companyID, DocumentType: "articles_of_incorporation", FileName: "teikan.pdf", FileSize: 1024, FileData: []byte("secret")},
			}, nil
		},
	}
	h := NewDocumentHandler(svc, &mockCompanyService{}, &stubDomainMetrics{}, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/companies/company-1/documents", nil)
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var results []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if _, exists := results[0]["file_data"]; exists {
		t.Error("list response must not contain file_data")
	}
}

func TestDocumentHandler_Download_WritesFileWithHeaders(t *testing.T) {
	fileData := []byte("%PDF-1.7 binary body")
	svc := &mockDocumentService{
		getFn: func(ctx context.Context, companyID, documentID string) (*model.Document, error) {
			if documentID != "document-1" {
				t.Errorf("documentID = %q, want %q", documentID, "document-1")
			}
			return &model.Document{
				ID:        documentID,
				CompanyID: companyID,
				FileName:  "teikan.pdf",
				FileSize:  int64(len(fileData)),
				FileMime:  "application/pdf",
				FileData:  fileData,
			}, nil
		},
	}
	h := NewDocumentHandler(svc, &mockCompanyService{}, &stubDomainMetrics{}, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/companies/company-1/documents/document-1/download", nil)
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	req = withChiURLParam(req, "docID", "document-1")
	w := httptest.NewRecorder()

	h.Download(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q, want %q", got, "application/pdf")
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="teikan.pdf"` {
		t.Errorf("Content-Disposition = %q", got)
	}

	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, fileData) {
		t.Error("downloaded body does not match the stored file data")
	}
}

func TestDocumentHandler_Download_NotFound_Returns404(t *testing.T) {
	svc := &mockDocumentService{
		getFn: func(ctx context.Context, companyID, documentID string) (*model.Document, error) {
			return nil, model.NewNotFoundError("書類")
		},
	}
	h := NewDocumentHandler(svc, &mockCompanyService{}, &stubDomainMetrics{}, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/companies/company-1/documents/document-x/download", nil)
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	req = withChiURLParam(req, "docID", "document-x")
	w := httptest.NewRecorder()

	h.Download(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDocumentHandler_Requirements_ReturnsEvaluation(t *testing.T) {
	svc := &mockDocumentService{
		requirementsFn: func(ctx context.Context, target *model.Company) (*document.Evaluation, error) {
			return &document.Evaluation{
				Documents: []model.RequiredDocument{
					{DocumentType: "articles_of_incorporation", Label: "定款", Required: true, Satisfied: true},
					{DocumentType: "wage_report", Label: "賃金台帳", Required: true, Satisfied: false},
				},
				Missing: []string{"wage_report"},
			}, nil
		},
	}
	h := NewDocumentHandler(svc, &mockCompanyService{}, &stubDomainMetrics{}, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/companies/company-1/documents/requirements", nil)
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	w := httptest.NewRecorder()

	h.Requirements(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result struct {
		Documents []model.RequiredDocument `json:"documents"`
		Missing   []string                 `json:"missing"`
	}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(result.Documents) != 2 {
		t.Errorf("len(documents) = %d, want 2", len(result.Documents))
	}
	if len(result.Missing) != 1 || result.Missing[0] != "wage_report" {
		t.Errorf("missing = %v, want [wage_report]", result.Missing)
	}
}

func TestDocumentHandler_Delete_RecordsAudit(t *testing.T) {
	deleted := ""
	svc := &mockDocumentService{
		deleteFn: func(ctx context.Context, companyID, documentID string) error {
			deleted = documentID
			return nil
		},
	}
	auditRec := &stubAuditRecorder{}
	h := NewDocumentHandler(svc, &mockCompanyService{}, &stubDomainMetrics{}, auditRec)

	req := httptest.NewRequest(http.MethodDelete, "/api/companies/company-1/documents/document-1", nil)
	req = withPrincipal(req, staffPrincipal)
	req = withChiURLParam(req, "id", "company-1")
	req = withChiURLParam(req, "docID", "document-1")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if deleted != "document-1" {
		t.Errorf("deleted = %q, want %q", deleted, "document-1")
	}
	if auditRec.lastAction() != "document.delete" {
		t.Errorf("audit action = %q, want %q", auditRec.lastAction(), "document.delete")
	}
}

// --- compile-time interface checks ---

var _ DocumentServiceInterface = (*mockDocumentService)(nil)
