package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// --- モック定義 ---

// mockTemplateService はTemplateServiceInterfaceのモック実装。
type mockTemplateService struct {
	uploadFn         func(ctx context.Context, input document.TemplateUploadInput) (*model.PDFTemplate, error)
	listFn           func(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error)
	getFn            func(ctx context.Context, brokerID, templateID string) (*model.PDFTemplate, error)
	updateMappingsFn func(ctx context.Context, brokerID, templateID string, mappings []model.FieldMapping) (*model.PDFTemplate, error)
	deleteFn         func(ctx context.Context, brokerID, templateID string) error
}

func (m *mockTemplateService) Upload(ctx context.Context, input document.TemplateUploadInput) (*model.PDFTemplate, error) {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, input)
	}
	return nil, nil
}

func (m *mockTemplateService) List(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error) {
	if m.listFn != nil {
		return m.listFn(ctx, brokerID)
	}
	return nil, nil
}

func (m *mockTemplateService) Get(ctx context.Context, brokerID, templateID string) (*model.PDFTemplate, error) {
	if m.getFn != nil {
		return m.getFn(ctx, brokerID, templateID)
	}
	return nil, nil
}

func (m *mockTemplateService) UpdateMappings(ctx context.Context, brokerID, templateID string, mappings []model.FieldMapping) (*model.PDFTemplate, error) {
	if m.updateMappingsFn != nil {
		return m.updateMappingsFn(ctx, brokerID, templateID, mappings)
	}
	return nil, nil
}

func (m *mockTemplateService) Delete(ctx context.Context, brokerID, templateID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, brokerID, templateID)
	}
	return nil
}

// --- テスト ---

func TestPDFTemplateHandler_Upload_Success_PassesFormFields(t *testing.T) {
	svc := &mockTemplateService{
		uploadFn: func(ctx context.Context, input document.TemplateUploadInput) (*model.PDFTemplate, error) {
			if input.BrokerID != "broker-1" {
				t.Errorf("BrokerID = %q, want %q", input.BrokerID, "broker-1")
			}
			if input.Name != "健康保険加入申込書" {
				t.Errorf("Name = %q, want %q", input.Name, "健康保険加入申込書")
			}
			if input.CarrierName != "全国健保" {
				t.Errorf("CarrierName = %q, want %q", input.CarrierName, "全国健保")
			}
			return &model.PDFTemplate{
				ID:       "template-1",
				BrokerID: input.BrokerID,
				Name:     input.Name,
				FileName: input.FileName,
				FileSize: int64(len(input.Data)),
			}, nil
		},
	}
	auditRec := &stubAuditRecorder{}
	h := NewPDFTemplateHandler(svc, auditRec)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("name", "健康保険加入申込書")
	mw.WriteField("carrier_name", "全国健保")
	mw.WriteField("form_number", "HB-101")
	fw, err := mw.CreateFormFile("file", "application.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	fw.Write([]byte("%PDF-1.7 template"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/pdf-templates", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = withPrincipal(req, ownerPrincipal)
	w := httptest.NewRecorder()

	h.Upload(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if auditRec.lastAction() != "pdf_template.upload" {
		t.Errorf("audit action = %q, want %q", auditRec.lastAction(), "pdf_template.upload")
	}
}

func TestPDFTemplateHandler_List_ScopedToBroker(t *testing.T) {
	svc := &mockTemplateService{
		listFn: func(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error) {
			if brokerID != "broker-1" {
				t.Errorf("brokerID = %q, want %q", brokerID, "broker-1")
			}
			return []*model.PDFTemplate{
				{ID: "template-1", BrokerID: brokerID, Name: "申込書"},
			}, nil
		},
	}
	h := NewPDFTemplateHandler(svc, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/pdf-templates", nil)
	req = withPrincipal(req, ownerPrincipal)
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
		t.Errorf("len(results) = %d, want 1", len(results))
	}
}

func TestPDFTemplateHandler_UpdateMappings_ReplacesMappings(t *testing.T) {
	svc := &mockTemplateService{
		updateMappingsFn: func(ctx context.Context, brokerID, templateID string, mappings []model.FieldMapping) (*model.PDFTemplate, error) {
			if len(mappings) != 2 {
				t.Fatalf("len(mappings) = %d, want 2", len(mappings))
			}
			if mappings[0].FieldName != "company_name" || mappings[0].SourcePath != "company.name" {
				t.Errorf("mappings[0] = %+v", mappings[0])
			}
			return &model.PDFTemplate{ID: templateID, BrokerID: brokerID, FieldMappings: mappings}, nil
		},
	}
	auditRec := &stubAuditRecorder{}
	h := NewPDFTemplateHandler(svc, auditRec)

	body := `{"mappings":[{"field_name":"company_name","source_path":"company.name"},{"field_name":"owner_name","source_path":"owner[0].first_name"}]}`
	req := httptest.NewRequest(http.MethodPut, "/api/pdf-templates/template-1/mappings", bytes.NewBufferString(body))
	req = withPrincipal(req, ownerPrincipal)
	req = withChiURLParam(req, "id", "template-1")
	w := httptest.NewRecorder()

	h.UpdateMappings(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	mappings, ok := result["field_mappings"].([]any)
	if !ok || len(mappings) != 2 {
		t.Errorf("field_mappings = %v, want 2 entries", result["field_mappings"])
	}

	if auditRec.lastAction() != "pdf_template.update_mappings" {
		t.Errorf("audit action = %q, want %q", auditRec.lastAction(), "pdf_template.update_mappings")
	}
}

func TestPDFTemplateHandler_Download_WritesPDF(t *testing.T) {
	fileData := []byte("%PDF-1.7 stored template")
	svc := &mockTemplateService{
		getFn: func(ctx context.Context, brokerID, templateID string) (*model.PDFTemplate, error) {
			return &model.PDFTemplate{
				ID:       templateID,
				BrokerID: brokerID,
				FileName: "application.pdf",
				FileSize: int64(len(fileData)),
				FileData: fileData,
			}, nil
		},
	}
	h := NewPDFTemplateHandler(svc, &stubAuditRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/pdf-templates/template-1/download", nil)
	req = withPrincipal(req, ownerPrincipal)
	req = withChiURLParam(req, "id", "template-1")
	w := httptest.NewRecorder()

	h.Download(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q, want %q", got, "application/pdf")
	}
	if !bytes.Equal(w.Body.Bytes(), fileData) {
		t.Error("downloaded body does not match the stored template")
	}
}

func TestPDFTemplateHandler_Delete_OtherBrokerTemplate_ReturnsForbidden(t *testing.T) {
	svc := &mockTemplateService{
		deleteFn: func(ctx context.Context, brokerID, templateID string) error {
			return model.NewForbiddenError()
		},
	}
	auditRec := &stubAuditRecorder{}
	h := NewPDFTemplateHandler(svc, auditRec)

	req := httptest.NewRequest(http.MethodDelete, "/api/pdf-templates/template-x", nil)
	req = withPrincipal(req, ownerPrincipal)
	req = withChiURLParam(req, "id", "template-x")
	w := httptest.NewRecorder()

	h.Delete(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}
	if auditRec.count() != 0 {
		t.Errorf("audit count = %d, want 0", auditRec.count())
	}
}

// --- compile-time interface checks ---

var _ TemplateServiceInterface = (*mockTemplateService)(nil)
