package document

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// pdfMagic はPDFファイルの先頭バイト列。宣言されたMIMEに関わらず実体を検査する。
var pdfMagic = []byte("%PDF")

const pdfMimeType = "application/pdf"

// Service は企業添付書類のアップロード・取得・削除と要件判定を提供する。
type Service struct {
	documentRepo repository.DocumentRepository
	employeeRepo repository.EmployeeRepository
	rules        *RuleSet
	maxFileSize  int64
}

// NewService はServiceを生成する。maxFileSizeは添付書類1件のバイト数上限。
func NewService(
	documentRepo repository.DocumentRepository,
	employeeRepo repository.EmployeeRepository,
	rules *RuleSet,
	maxFileSize int64,
) *Service {
	return &Service{
		documentRepo: documentRepo,
		employeeRepo: employeeRepo,
		rules:        rules,
		maxFileSize:  maxFileSize,
	}
}

// UploadInput は書類アップロードのリクエスト内容。
type UploadInput struct {
	CompanyID    string
	DocumentType string
	FileName     string
	ContentType  string
	Data         []byte
	UploadedBy   string
}

// Upload は書類を検証して保存する。PDFのみ受け付ける。
// DocumentTypeは規則で定義された種別かotherでなければならない。
func (s *Service) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if input.DocumentType == "" {
		return nil, model.NewValidationError("書類種別を指定してください")
	}
	if !s.rules.IsKnownType(input.DocumentType) {
		return nil, model.NewValidationError(fmt.Sprintf("不明な書類種別です: %s", input.DocumentType))
	}

	if err := validatePDF(input.ContentType, input.Data, s.maxFileSize); err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:           uuid.New().String(),
		CompanyID:    input.CompanyID,
		DocumentType: input.DocumentType,
		FileName:     input.FileName,
		FileSize:     int64(len(input.Data)),
		FileMime:     pdfMimeType,
		FileData:     input.Data,
		UploadedBy:   input.UploadedBy,
		CreatedAt:    time.Now(),
	}

	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("書類の保存に失敗しました: %w", err)
	}

	slog.Info("document uploaded",
		slog.String("company_id", input.CompanyID),
		slog.String("document_type", input.DocumentType),
		slog.Int64("size", doc.FileSize),
	)

	return doc, nil
}

// List は指定企業の書類一覧をメタデータのみで返す。
func (s *Service) List(ctx context.Context, companyID string) ([]*model.Document, error) {
	docs, err := s.documentRepo.ListByCompanyID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("書類一覧の取得に失敗しました: %w", err)
	}
	return docs, nil
}

// Get はダウンロード用に書類をファイル本体込みで取得する。
// 指定企業に属さない書類はNOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, companyID, documentID string) (*model.Document, error) {
	doc, err := s.documentRepo.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("書類の取得に失敗しました: %w", err)
	}
	if doc == nil || doc.CompanyID != companyID {
		return nil, model.NewNotFoundError("書類")
	}
	return doc, nil
}

// Delete は書類を削除する。指定企業に属さない書類はNOT_FOUNDを返す。
func (s *Service) Delete(ctx context.Context, companyID, documentID string) error {
	doc, err := s.documentRepo.FindByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("書類の取得に失敗しました: %w", err)
	}
	if doc == nil || doc.CompanyID != companyID {
		return model.NewNotFoundError("書類")
	}

	if err := s.documentRepo.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("書類の削除に失敗しました: %w", err)
	}

	slog.Info("document deleted",
		slog.String("company_id", companyID),
		slog.String("document_id", documentID),
	)
	return nil
}

// Requirements は企業の書類要件と充足状況を評価して返す。
func (s *Service) Requirements(ctx context.Context, company *model.Company) (*Evaluation, error) {
	count, err := s.employeeRepo.CountByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("従業員数の取得に失敗しました: %w", err)
	}

	docs, err := s.documentRepo.ListByCompanyID(ctx, company.ID)
	if err != nil {
		return nil, fmt.Errorf("書類一覧の取得に失敗しました: %w", err)
	}
	types := make([]string, 0, len(docs))
	for _, doc := range docs {
		types = append(types, doc.DocumentType)
	}

	return s.rules.Evaluate(company, count, types), nil
}

// validatePDF は宣言されたContent-Typeとファイル実体の両方でPDFであることを検証する。
func validatePDF(contentType string, data []byte, maxSize int64) error {
	if len(data) == 0 {
		return model.NewValidationError("ファイルが空です")
	}
	if int64(len(data)) > maxSize {
		return model.NewFileTooLargeError(maxSize)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != pdfMimeType {
		return model.NewInvalidFileTypeError("PDF")
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return model.NewInvalidFileTypeError("PDF")
	}
	return nil
}
