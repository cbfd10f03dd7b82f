// Package admin はプラットフォーム管理者向けの運用機能を提供する。
// ブローカーの開設、ユーザーの停止・再開、利用状況の集計などテナント横断の操作を扱う。
package admin

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/auth"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/document"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// Service は管理者向けユースケースを提供する。
type Service struct {
	brokerRepo      repository.BrokerRepository
	userRepo        repository.UserRepository
	companyRepo     repository.CompanyRepository
	applicationRepo repository.ApplicationRepository
	rules           *document.RuleSet
}

// NewService は新しいServiceを生成する。
func NewService(
	brokerRepo repository.BrokerRepository,
	userRepo repository.UserRepository,
	companyRepo repository.CompanyRepository,
	applicationRepo repository.ApplicationRepository,
	rules *document.RuleSet,
) *Service {
	return &Service{
		brokerRepo:      brokerRepo,
		userRepo:        userRepo,
		companyRepo:     companyRepo,
		applicationRepo: applicationRepo,
		rules:           rules,
	}
}

// ListBrokers は全ブローカーを利用状況の集計付きで返す。
func (s *Service) ListBrokers(ctx context.Context) ([]repository.BrokerWithStats, error) {
	brokers, err := s.brokerRepo.ListWithStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("ブローカー一覧の取得に失敗しました: %w", err)
	}
	return brokers, nil
}

// CreateBrokerInput はブローカー開設のリクエスト。
type CreateBrokerInput struct {
	BrokerName     string
	Email          string
	Phone          string
	LicenseNumber  string
	OwnerUsername  string
	OwnerEmail     string
	OwnerFirstName string
	OwnerLastName  string
}

// CreateBroker はブローカーと代表ユーザーをまとめて開設する。
// 代表ユーザーの初期パスワードを生成して返す。パスワードはこのレスポンスでしか取得できない。
func (s *Service) CreateBroker(ctx context.Context, input CreateBrokerInput) (*model.Broker, *model.User, string, error) {
	if err := validateCreateBrokerInput(&input); err != nil {
		return nil, nil, "", err
	}

	if existing, err := s.userRepo.FindByUsername(ctx, input.OwnerUsername); err != nil {
		return nil, nil, "", fmt.Errorf("ユーザー名の重複確認に失敗しました: %w", err)
	} else if existing != nil {
		return nil, nil, "", model.NewDuplicateUsernameError()
	}
	if existing, err := s.userRepo.FindByEmail(ctx, input.OwnerEmail); err != nil {
		return nil, nil, "", fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
	} else if existing != nil {
		return nil, nil, "", model.NewDuplicateEmailError()
	}

	tempPassword, err := generateTempPassword()
	if err != nil {
		return nil, nil, "", fmt.Errorf("初期パスワードの生成に失敗しました: %w", err)
	}
	passwordHash, err := auth.HashPassword(tempPassword)
	if err != nil {
		return nil, nil, "", fmt.Errorf("初期パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := time.Now()
	broker := &model.Broker{
		ID:            uuid.New().String(),
		Name:          input.BrokerName,
		Email:         input.Email,
		Phone:         input.Phone,
		LicenseNumber: input.LicenseNumber,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.brokerRepo.Create(ctx, broker); err != nil {
		return nil, nil, "", fmt.Errorf("ブローカーの作成に失敗しました: %w", err)
	}

	owner := &model.User{
		ID:           uuid.New().String(),
		BrokerID:     broker.ID,
		Username:     input.OwnerUsername,
		Email:        input.OwnerEmail,
		PasswordHash: passwordHash,
		FirstName:    input.OwnerFirstName,
		LastName:     input.OwnerLastName,
		Role:         model.RoleOwner,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, owner); err != nil {
		return nil, nil, "", fmt.Errorf("代表ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("broker provisioned",
		slog.String("broker_id", broker.ID),
		slog.String("broker_name", broker.Name),
		slog.String("owner_user_id", owner.ID),
	)
	return broker, owner, tempPassword, nil
}

func validateCreateBrokerInput(input *CreateBrokerInput) error {
	input.BrokerName = strings.TrimSpace(input.BrokerName)
	input.OwnerUsername = strings.TrimSpace(input.OwnerUsername)
	input.OwnerEmail = strings.TrimSpace(input.OwnerEmail)

	if input.BrokerName == "" {
		return model.NewValidationError("ブローカー名は必須です")
	}
	if input.OwnerUsername == "" {
		return model.NewValidationError("代表ユーザーのユーザー名は必須です")
	}
	if input.OwnerEmail == "" || !strings.Contains(input.OwnerEmail, "@") {
		return model.NewValidationError("代表ユーザーのメールアドレスの形式が不正です")
	}
	return nil
}

// generateTempPassword は初期パスワードを生成する。
func generateTempPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ListUsers は指定ブローカーのユーザー一覧を返す。
func (s *Service) ListUsers(ctx context.Context, brokerID string) ([]*model.User, error) {
	users, err := s.userRepo.ListByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// SetUserActive はユーザーの有効・無効を切り替える。
// 管理者ユーザーは停止できない。
func (s *Service) SetUserActive(ctx context.Context, userID string, active bool) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}
	if user.Role == model.RoleAdmin {
		return nil, model.NewForbiddenError()
	}
	if user.Active == active {
		return user, nil
	}

	user.Active = active
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("user active state changed",
		slog.String("user_id", userID),
		slog.Bool("active", active),
	)
	return user, nil
}

// PlatformStats はプラットフォーム全体の利用状況。
type PlatformStats struct {
	Brokers      int
	Users        int
	Companies    int
	Applications map[model.ApplicationStatus]int
}

// Stats はプラットフォーム全体の利用状況を集計する。
func (s *Service) Stats(ctx context.Context) (*PlatformStats, error) {
	brokers, err := s.brokerRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ブローカー数の集計に失敗しました: %w", err)
	}
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー数の集計に失敗しました: %w", err)
	}
	companies, err := s.companyRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("企業数の集計に失敗しました: %w", err)
	}

	applications := make(map[model.ApplicationStatus]int, 4)
	for _, status := range []model.ApplicationStatus{
		model.StatusDraft, model.StatusSubmitted, model.StatusApproved, model.StatusRejected,
	} {
		count, err := s.applicationRepo.CountByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("申請数の集計に失敗しました: %w", err)
		}
		applications[status] = count
	}

	return &PlatformStats{
		Brokers:      brokers,
		Users:        users,
		Companies:    companies,
		Applications: applications,
	}, nil
}

// DocumentRules は書類要件の設定内容を返す。
func (s *Service) DocumentRules() *document.RuleSet {
	return s.rules
}
