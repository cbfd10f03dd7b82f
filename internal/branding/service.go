package branding

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"regexp"
	"strings"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/security"
)

// colorPattern は #rrggbb 形式のカラーコード。
var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Service はブランディング設定のユースケースを提供する。
type Service struct {
	brokerRepo  repository.BrokerRepository
	sanitizer   security.ContentSanitizerService
	logoFetcher LogoFetcherService
	maxLogoSize int64
}

// NewService は新しいServiceを生成する。
func NewService(
	brokerRepo repository.BrokerRepository,
	sanitizer security.ContentSanitizerService,
	logoFetcher LogoFetcherService,
	maxLogoSize int64,
) *Service {
	return &Service{
		brokerRepo:  brokerRepo,
		sanitizer:   sanitizer,
		logoFetcher: logoFetcher,
		maxLogoSize: maxLogoSize,
	}
}

// Settings はブローカーのプロフィールとブランディング設定を返す。
func (s *Service) Settings(ctx context.Context, brokerID string) (*model.Broker, error) {
	broker, err := s.brokerRepo.FindByID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("ブローカーの取得に失敗しました: %w", err)
	}
	if broker == nil {
		return nil, model.NewNotFoundError("ブローカー")
	}
	return broker, nil
}

// SettingsInput はブランディング設定の部分更新リクエスト。nilのフィールドは変更しない。
type SettingsInput struct {
	Name          *string
	LicenseNumber *string
	Phone         *string
	PrimaryColor  *string
	AccentColor   *string
	WelcomeHTML   *string
}

// UpdateSettings はブランディング設定を更新する。
// 全フィールドの検証を先に行い、1つでも不正があれば何も変更しない。
// ウェルカム文はサニタイズしてから保存する。
func (s *Service) UpdateSettings(ctx context.Context, brokerID string, input SettingsInput) (*model.Broker, error) {
	broker, err := s.Settings(ctx, brokerID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, model.NewValidationError("ブローカー名は必須です")
	}
	if input.PrimaryColor != nil && !colorPattern.MatchString(*input.PrimaryColor) {
		return nil, model.NewValidationError("プライマリカラーは#rrggbb形式で指定してください")
	}
	if input.AccentColor != nil && !colorPattern.MatchString(*input.AccentColor) {
		return nil, model.NewValidationError("アクセントカラーは#rrggbb形式で指定してください")
	}

	if input.Name != nil {
		broker.Name = strings.TrimSpace(*input.Name)
	}
	if input.LicenseNumber != nil {
		broker.LicenseNumber = strings.TrimSpace(*input.LicenseNumber)
	}
	if input.Phone != nil {
		broker.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.PrimaryColor != nil {
		broker.PrimaryColor = strings.ToLower(*input.PrimaryColor)
	}
	if input.AccentColor != nil {
		broker.AccentColor = strings.ToLower(*input.AccentColor)
	}
	if input.WelcomeHTML != nil {
		broker.WelcomeHTML = s.sanitizer.Sanitize(*input.WelcomeHTML)
	}

	if err := s.brokerRepo.Update(ctx, broker); err != nil {
		return nil, fmt.Errorf("ブランディング設定の更新に失敗しました: %w", err)
	}

	slog.Info("branding settings updated", slog.String("broker_id", brokerID))
	return broker, nil
}

// UploadLogo はロゴ画像をアップロードする。画像MIMEのみ受け付ける。
func (s *Service) UploadLogo(ctx context.Context, brokerID, contentType string, data []byte) error {
	if len(data) == 0 {
		return model.NewValidationError("ファイルが空です")
	}
	if int64(len(data)) > s.maxLogoSize {
		return model.NewFileTooLargeError(s.maxLogoSize)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return model.NewInvalidFileTypeError("画像")
	}

	if err := s.brokerRepo.UpdateLogo(ctx, brokerID, data, mediaType); err != nil {
		return fmt.Errorf("ロゴの保存に失敗しました: %w", err)
	}

	slog.Info("broker logo uploaded",
		slog.String("broker_id", brokerID),
		slog.String("mime", mediaType),
		slog.Int("size", len(data)),
	)
	return nil
}

// ImportLogoFromURL は外部URLからロゴを取り込んで保存する。
// 取得も保存も成功した場合のみロゴが置き換わる。
func (s *Service) ImportLogoFromURL(ctx context.Context, brokerID, rawURL string) (string, error) {
	data, mimeType, err := s.logoFetcher.FetchLogo(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if int64(len(data)) > s.maxLogoSize {
		return "", model.NewFileTooLargeError(s.maxLogoSize)
	}

	if err := s.brokerRepo.UpdateLogo(ctx, brokerID, data, mimeType); err != nil {
		return "", fmt.Errorf("ロゴの保存に失敗しました: %w", err)
	}

	slog.Info("broker logo imported",
		slog.String("broker_id", brokerID),
		slog.String("url", rawURL),
		slog.String("mime", mimeType),
	)
	return mimeType, nil
}

// Logo はブローカーのロゴ画像を返す。未設定の場合はNotFound。
func (s *Service) Logo(ctx context.Context, brokerID string) ([]byte, string, error) {
	broker, err := s.Settings(ctx, brokerID)
	if err != nil {
		return nil, "", err
	}
	if len(broker.LogoData) == 0 {
		return nil, "", model.NewNotFoundError("ロゴ")
	}
	return broker.LogoData, broker.LogoMime, nil
}
