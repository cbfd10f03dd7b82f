package document

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// mappingRoots は項目マッピングのパスで使える先頭セグメント。
var mappingRoots = map[string]bool{
	"company":     true,
	"owner":       true,
	"employee":    true,
	"application": true,
}

// TemplateService はブローカーの帳票テンプレートと項目マッピングを管理する。
// テンプレートはPDF本体とマッピング定義を保持するのみで、帳票の生成は行わない。
type TemplateService struct {
	templateRepo repository.PDFTemplateRepository
	maxFileSize  int64
}

// NewTemplateService はTemplateServiceを生成する。
func NewTemplateService(templateRepo repository.PDFTemplateRepository, maxFileSize int64) *TemplateService {
	return &TemplateService{
		templateRepo: templateRepo,
		maxFileSize:  maxFileSize,
	}
}

// TemplateUploadInput は帳票テンプレート登録のリクエスト内容。
type TemplateUploadInput struct {
	BrokerID    string
	Name        string
	CarrierName string
	FormNumber  string
	FileName    string
	ContentType string
	Data        []byte
	UploadedBy  string
}

// Upload は帳票テンプレートを検証して保存する。マッピングは空の状態で作成される。
func (s *TemplateService) Upload(ctx context.Context, input TemplateUploadInput) (*model.PDFTemplate, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, model.NewValidationError("テンプレート名を入力してください")
	}

	if err := validatePDF(input.ContentType, input.Data, s.maxFileSize); err != nil {
		return nil, err
	}

	now := time.Now()
	tpl := &model.PDFTemplate{
		ID:            uuid.New().String(),
		BrokerID:      input.BrokerID,
		Name:          input.Name,
		CarrierName:   input.CarrierName,
		FormNumber:    input.FormNumber,
		FileName:      input.FileName,
		FileSize:      int64(len(input.Data)),
		FileData:      input.Data,
		FieldMappings: []model.FieldMapping{},
		UploadedBy:    input.UploadedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.templateRepo.Create(ctx, tpl); err != nil {
		return nil, fmt.Errorf("テンプレートの保存に失敗しました: %w", err)
	}

	slog.Info("pdf template uploaded",
		slog.String("broker_id", input.BrokerID),
		slog.String("template_id", tpl.ID),
		slog.String("name", tpl.Name),
	)

	return tpl, nil
}

// List は指定ブローカーのテンプレート一覧をメタデータのみで返す。
func (s *TemplateService) List(ctx context.Context, brokerID string) ([]*model.PDFTemplate, error) {
	templates, err := s.templateRepo.ListByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("テンプレート一覧の取得に失敗しました: %w", err)
	}
	return templates, nil
}

// Get はテンプレートをファイル本体込みで取得する。
// 他ブローカーのテンプレートへのアクセスはFORBIDDENを返す。
func (s *TemplateService) Get(ctx context.Context, brokerID, templateID string) (*model.PDFTemplate, error) {
	tpl, err := s.templateRepo.FindByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}
	if tpl == nil {
		return nil, model.NewNotFoundError("テンプレート")
	}
	if tpl.BrokerID != brokerID {
		return nil, model.NewForbiddenError()
	}
	return tpl, nil
}

// UpdateMappings はテンプレートの項目マッピングを置き換える。
// 各マッピングのSourcePathは定義済みの語彙
// （company.* / owner.* / employee.* / application.*）でなければならない。
func (s *TemplateService) UpdateMappings(ctx context.Context, brokerID, templateID string, mappings []model.FieldMapping) (*model.PDFTemplate, error) {
	for _, m := range mappings {
		if strings.TrimSpace(m.FieldName) == "" {
			return nil, model.NewValidationError("フィールド名を入力してください")
		}
		if !validSourcePath(m.SourcePath) {
			return nil, model.NewValidationError(
				fmt.Sprintf("マッピング先が不正です: %s（company.* / owner.* / employee.* / application.* のみ使用できます）", m.SourcePath))
		}
	}

	tpl, err := s.Get(ctx, brokerID, templateID)
	if err != nil {
		return nil, err
	}

	tpl.FieldMappings = mappings
	tpl.UpdatedAt = time.Now()

	if err := s.templateRepo.Update(ctx, tpl); err != nil {
		return nil, fmt.Errorf("マッピングの更新に失敗しました: %w", err)
	}

	slog.Info("pdf template mappings updated",
		slog.String("template_id", templateID),
		slog.Int("mappings", len(mappings)),
	)

	return tpl, nil
}

// Delete はテンプレートを削除する。
func (s *TemplateService) Delete(ctx context.Context, brokerID, templateID string) error {
	if _, err := s.Get(ctx, brokerID, templateID); err != nil {
		return err
	}

	if err := s.templateRepo.Delete(ctx, templateID); err != nil {
		return fmt.Errorf("テンプレートの削除に失敗しました: %w", err)
	}

	slog.Info("pdf template deleted", slog.String("template_id", templateID))
	return nil
}

// validSourcePath はマッピング先パスが語彙に沿っているかを検証する。
// 先頭セグメントには owner[0] のような添字付きの形式も許可する。
func validSourcePath(path string) bool {
	root, rest, found := strings.Cut(path, ".")
	if !found || rest == "" {
		return false
	}

	if i := strings.IndexByte(root, '['); i >= 0 {
		if !strings.HasSuffix(root, "]") {
			return false
		}
		index := root[i+1 : len(root)-1]
		if _, err := strconv.Atoi(index); err != nil {
			return false
		}
		root = root[:i]
	}

	return mappingRoots[root]
}
