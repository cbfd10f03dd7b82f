package document

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// --- モック定義 ---

type mockDocumentRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.Document, error)
	createFn          func(ctx context.Context, doc *model.Document) error
	deleteFn          func(ctx context.Context, id string) error
	listByCompanyIDFn func(ctx context.Context, companyID string) ([]*model.Document, error)
}

func (m *mockDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	if m.createFn != nil {
		return m.createFn(ctx, doc)
	}
	return nil
}

func (m *mockDocumentRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockDocumentRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Document, error) {
	if m.listByCompanyIDFn != nil {
		return m.listByCompanyIDFn(ctx, companyID)
	}
	return nil, nil
}

type mockEmployeeCounter struct {
	countByCompanyIDFn func(ctx context.Context, companyID string) (int, error)
}

func (m *mockEmployeeCounter) FindByID(_ context.Context, _ string) (*model.Employee, error) {
	return nil, nil
}
func (m *mockEmployeeCounter) Create(_ context.Context, _ *model.Employee) error      { return nil }
func (m *mockEmployeeCounter) CreateBatch(_ context.Context, _ []*model.Employee) error { return nil }
func (m *mockEmployeeCounter) Update(_ context.Context, _ *model.Employee) error      { return nil }
func (m *mockEmployeeCounter) Delete(_ context.Context, _ string) error               { return nil }
func (m *mockEmployeeCounter) ListByCompanyID(_ context.Context, _ string) ([]*model.Employee, error) {
	return nil, nil
}

func (m *mockEmployeeCounter) CountByCompanyID(ctx context.Context, companyID string) (int, error) {
	if m.countByCompanyIDFn != nil {
		return m.countByCompanyIDFn(ctx, companyID)
	}
	return 0, nil
}

// --- compile-time interface checks ---
var _ repository.DocumentRepository = (*mockDocumentRepo)(nil)
var _ repository.EmployeeRepository = (*mockEmployeeCounter)(nil)

func mustLoadRules(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := LoadRules()
	if err != nil {
		t.Fatalf("LoadRules() error = %v", err)
	}
	return rs
}

// pdfBytes は検証を通る最小のPDF風データを返す。
func pdfBytes() []byte {
	return []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF")
}

// --- テスト ---

func TestUpload_ValidPDF_StoresDocument(t *testing.T) {
	ctx := context.Background()

	var created *model.Document
	repo := &mockDocumentRepo{
		createFn: func(ctx context.Context, doc *model.Document) error {
			created = doc
			return nil
		},
	}

	svc := NewService(repo, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	data := pdfBytes()
	doc, err := svc.Upload(ctx, UploadInput{
		CompanyID:    "company-1",
		DocumentType: "articles_of_incorporation",
		FileName:     "articles.pdf",
		ContentType:  "application/pdf",
		Data:         data,
		UploadedBy:   "user-1",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if created == nil {
		t.Fatal("expected document to be created")
	}
	if doc.ID == "" {
		t.Error("expected generated document ID")
	}
	if doc.FileSize != int64(len(data)) {
		t.Errorf("fileSize = %d, want %d", doc.FileSize, len(data))
	}
	if doc.FileMime != "application/pdf" {
		t.Errorf("fileMime = %q, want application/pdf", doc.FileMime)
	}
	// アップロードしたバイト列がそのまま保存されること
	if !bytes.Equal(created.FileData, data) {
		t.Error("stored bytes differ from uploaded bytes")
	}
}

func TestUpload_ContentTypeWithCharset_Accepted(t *testing.T) {
	ctx := context.Background()

	svc := NewService(&mockDocumentRepo{}, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	_, err := svc.Upload(ctx, UploadInput{
		CompanyID:    "company-1",
		DocumentType: "other",
		FileName:     "misc.pdf",
		ContentType:  "application/pdf; charset=utf-8",
		Data:         pdfBytes(),
		UploadedBy:   "user-1",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
}

func TestUpload_UnknownDocumentType_ReturnsError(t *testing.T) {
	ctx := context.Background()

	svc := NewService(&mockDocumentRepo{}, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	_, err := svc.Upload(ctx, UploadInput{
		CompanyID:    "company-1",
		DocumentType: "mystery_document",
		FileName:     "mystery.pdf",
		ContentType:  "application/pdf",
		Data:         pdfBytes(),
		UploadedBy:   "user-1",
	})
	if err == nil {
		t.Fatal("expected error for unknown document type")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	ctx := context.Background()

	svc := NewService(&mockDocumentRepo{}, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	tests := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{"MIMEがPDF以外", "image/png", pdfBytes()},
		{"MIMEが空", "", pdfBytes()},
		{"実体がPDFではない", "application/pdf", []byte("PK\x03\x04 this is a zip")},
		{"HTMLをPDFと偽る", "application/pdf", []byte("<html><body>fake</body></html>")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, UploadInput{
				CompanyID:    "company-1",
				DocumentType: "other",
				FileName:     "upload.pdf",
				ContentType:  tt.contentType,
				Data:         tt.data,
				UploadedBy:   "user-1",
			})
			if err == nil {
				t.Fatal("expected file type error")
			}

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %T", err)
			}
			if apiErr.Code != model.ErrCodeInvalidFileType {
				t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidFileType)
			}
		})
	}
}

func TestUpload_FileTooLarge_ReturnsError(t *testing.T) {
	ctx := context.Background()

	svc := NewService(&mockDocumentRepo{}, &mockEmployeeCounter{}, mustLoadRules(t), 16)

	_, err := svc.Upload(ctx, UploadInput{
		CompanyID:    "company-1",
		DocumentType: "other",
		FileName:     "big.pdf",
		ContentType:  "application/pdf",
		Data:         pdfBytes(), // 16バイトを超える
		UploadedBy:   "user-1",
	})
	if err == nil {
		t.Fatal("expected size error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeFileTooLarge {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeFileTooLarge)
	}
}

func TestGet_ReturnsDocumentWithData(t *testing.T) {
	ctx := context.Background()

	data := pdfBytes()
	repo := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{
				ID:        id,
				CompanyID: "company-1",
				FileName:  "articles.pdf",
				FileData:  data,
			}, nil
		},
	}

	svc := NewService(repo, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	doc, err := svc.Get(ctx, "company-1", "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(doc.FileData, data) {
		t.Error("expected file data to round-trip")
	}
}

func TestGet_WrongCompany_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()

	repo := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, CompanyID: "company-other"}, nil
		},
	}

	svc := NewService(repo, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	_, err := svc.Get(ctx, "company-1", "doc-1")
	if err == nil {
		t.Fatal("expected not found error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeNotFound)
	}
}

func TestDelete_WrongCompany_NothingDeleted(t *testing.T) {
	ctx := context.Background()

	deleted := false
	repo := &mockDocumentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Document, error) {
			return &model.Document{ID: id, CompanyID: "company-other"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}

	svc := NewService(repo, &mockEmployeeCounter{}, mustLoadRules(t), 10*1024*1024)

	if err := svc.Delete(ctx, "company-1", "doc-1"); err == nil {
		t.Fatal("expected not found error")
	}
	if deleted {
		t.Error("document belonging to another company must not be deleted")
	}
}

func TestRequirements_CombinesCountAndUploads(t *testing.T) {
	ctx := context.Background()

	docRepo := &mockDocumentRepo{
		listByCompanyIDFn: func(ctx context.Context, companyID string) ([]*model.Document, error) {
			return []*model.Document{
				{ID: "doc-1", CompanyID: companyID, DocumentType: "articles_of_incorporation"},
				{ID: "doc-2", CompanyID: companyID, DocumentType: "de9c"},
			}, nil
		},
	}
	empRepo := &mockEmployeeCounter{
		countByCompanyIDFn: func(ctx context.Context, companyID string) (int, error) {
			return 5, nil
		},
	}

	svc := NewService(docRepo, empRepo, mustLoadRules(t), 10*1024*1024)

	eval, err := svc.Requirements(ctx, caCorporation())
	if err != nil {
		t.Fatalf("Requirements() error = %v", err)
	}

	if doc := findDocument(t, eval.Documents, "articles_of_incorporation"); doc == nil || !doc.Satisfied {
		t.Error("articles_of_incorporation should be satisfied")
	}
	if doc := findDocument(t, eval.Documents, "payroll_proof"); doc == nil || !doc.Satisfied {
		t.Error("payroll_proof should be satisfied via de9c")
	}
	if doc := findDocument(t, eval.Documents, "statement_of_information"); doc == nil || doc.Satisfied {
		t.Error("statement_of_information should be pending")
	}
}
