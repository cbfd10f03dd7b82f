package document

import (
	"context"
	"errors"
	"testing"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// --- モック定義 ---

type mockTemplateRepo struct {
	findByIDFn       func(ctx context.Context, id string) (*model.PDFTemplate, error)
	createFn         func(ctx context.Context, tpl *model.PDFTemplate) error
	updateFn         func(ctx context.Context, tpl *model.PDFTemplate) error
	deleteFn         func(ctx context.Context, id string) error
	listByBrokerIDFn func(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error)
}

func (m *mockTemplateRepo) FindByID(ctx context.Context, id string) (*model.PDFTemplate, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTemplateRepo) Create(ctx context.Context, tpl *model.PDFTemplate) error {
	if m.createFn != nil {
		return m.createFn(ctx, tpl)
	}
	return nil
}

func (m *mockTemplateRepo) Update(ctx context.Context, tpl *model.PDFTemplate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, tpl)
	}
	return nil
}

func (m *mockTemplateRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockTemplateRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error) {
	if m.listByBrokerIDFn != nil {
		return m.listByBrokerIDFn(ctx, brokerID)
	}
	return nil, nil
}

// compile-time interface check
var _ repository.PDFTemplateRepository = (*mockTemplateRepo)(nil)

// --- テスト ---

func TestTemplateUpload_CreatesWithEmptyMappings(t *testing.T) {
	ctx := context.Background()

	var created *model.PDFTemplate
	repo := &mockTemplateRepo{
		createFn: func(ctx context.Context, tpl *model.PDFTemplate) error {
			created = tpl
			return nil
		},
	}

	svc := NewTemplateService(repo, 10*1024*1024)

	tpl, err := svc.Upload(ctx, TemplateUploadInput{
		BrokerID:    "broker-1",
		Name:        "Anthem Small Group Application",
		CarrierName: "Anthem",
		FormNumber:  "SG-2024",
		FileName:    "sg_application.pdf",
		ContentType: "application/pdf",
		Data:        pdfBytes(),
		UploadedBy:  "user-1",
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if created == nil {
		t.Fatal("expected template to be created")
	}
	if tpl.BrokerID != "broker-1" {
		t.Errorf("brokerID = %q, want broker-1", tpl.BrokerID)
	}
	if tpl.FieldMappings == nil || len(tpl.FieldMappings) != 0 {
		t.Errorf("new template should have empty (non-nil) mappings, got %v", tpl.FieldMappings)
	}
}

func TestTemplateUpload_MissingName_ReturnsError(t *testing.T) {
	ctx := context.Background()

	svc := NewTemplateService(&mockTemplateRepo{}, 10*1024*1024)

	_, err := svc.Upload(ctx, TemplateUploadInput{
		BrokerID:    "broker-1",
		Name:        "  ",
		FileName:    "form.pdf",
		ContentType: "application/pdf",
		Data:        pdfBytes(),
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTemplateUpload_RejectsNonPDF(t *testing.T) {
	ctx := context.Background()

	svc := NewTemplateService(&mockTemplateRepo{}, 10*1024*1024)

	_, err := svc.Upload(ctx, TemplateUploadInput{
		BrokerID:    "broker-1",
		Name:        "Form",
		FileName:    "form.docx",
		ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Data:        []byte("PK\x03\x04"),
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
}

func TestTemplateGet_OtherBroker_ReturnsForbidden(t *testing.T) {
	ctx := context.Background()

	repo := &mockTemplateRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PDFTemplate, error) {
			return &model.PDFTemplate{ID: id, BrokerID: "broker-other"}, nil
		},
	}

	svc := NewTemplateService(repo, 10*1024*1024)

	_, err := svc.Get(ctx, "broker-1", "tpl-1")
	if err == nil {
		t.Fatal("expected forbidden error")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeForbidden {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeForbidden)
	}
}

func TestUpdateMappings_ReplacesMappings(t *testing.T) {
	ctx := context.Background()

	var updated *model.PDFTemplate
	repo := &mockTemplateRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PDFTemplate, error) {
			return &model.PDFTemplate{
				ID:       id,
				BrokerID: "broker-1",
				FieldMappings: []model.FieldMapping{
					{FieldName: "old_field", SourcePath: "company.name"},
				},
			}, nil
		},
		updateFn: func(ctx context.Context, tpl *model.PDFTemplate) error {
			updated = tpl
			return nil
		},
	}

	svc := NewTemplateService(repo, 10*1024*1024)

	mappings := []model.FieldMapping{
		{FieldName: "company_name", SourcePath: "company.name"},
		{FieldName: "owner_first", SourcePath: "owner[0].first_name"},
		{FieldName: "effective_date", SourcePath: "application.requested_effective_date"},
	}

	tpl, err := svc.UpdateMappings(ctx, "broker-1", "tpl-1", mappings)
	if err != nil {
		t.Fatalf("UpdateMappings() error = %v", err)
	}

	if updated == nil {
		t.Fatal("expected repository update")
	}
	if len(tpl.FieldMappings) != 3 {
		t.Errorf("mappings = %d, want 3", len(tpl.FieldMappings))
	}
	if tpl.FieldMappings[0].FieldName != "company_name" {
		t.Errorf("first mapping = %q, want company_name", tpl.FieldMappings[0].FieldName)
	}
}

func TestUpdateMappings_InvalidSourcePath_ReturnsError(t *testing.T) {
	ctx := context.Background()

	svc := NewTemplateService(&mockTemplateRepo{}, 10*1024*1024)

	tests := []string{
		"broker.name",    // 語彙にないルート
		"company",        // パスの残りがない
		"company.",       // 空のフィールド
		"owner[x].name",  // 添字が数値ではない
		"owner[0.name",   // 閉じ括弧がない
		"",               // 空
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			_, err := svc.UpdateMappings(ctx, "broker-1", "tpl-1", []model.FieldMapping{
				{FieldName: "field", SourcePath: path},
			})
			if err == nil {
				t.Fatalf("expected validation error for path %q", path)
			}

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *model.APIError, got %T", err)
			}
			if apiErr.Code != model.ErrCodeValidationFailed {
				t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
			}
		})
	}
}

func TestValidSourcePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"company.name", true},
		{"company.address.city", true},
		{"owner[0].first_name", true},
		{"owner[12].last_name", true},
		{"employee.email", true},
		{"application.status", true},
		{"broker.name", false},
		{"owner[].name", false},
		{"owner[0]", false},
		{"company", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := validSourcePath(tt.path); got != tt.want {
			t.Errorf("validSourcePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestTemplateDelete_OtherBroker_NothingDeleted(t *testing.T) {
	ctx := context.Background()

	deleted := false
	repo := &mockTemplateRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.PDFTemplate, error) {
			return &model.PDFTemplate{ID: id, BrokerID: "broker-other"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}

	svc := NewTemplateService(repo, 10*1024*1024)

	if err := svc.Delete(ctx, "broker-1", "tpl-1"); err == nil {
		t.Fatal("expected forbidden error")
	}
	if deleted {
		t.Error("template of another broker must not be deleted")
	}
}
