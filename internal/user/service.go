// Package user はブローカー配下のユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/auth"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// minPasswordLength は新規パスワードの最低文字数。
const minPasswordLength = 8

// Service はブローカー配下のユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sessionRepo repository.SessionRepository) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// CreateInput はユーザー作成のリクエスト内容。
type CreateInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
}

// Create はブローカー配下に新しいユーザーを作成する。
// ロールはownerまたはstaffのみ。ユーザー名とメールアドレスは全テナント横断で一意。
func (s *Service) Create(ctx context.Context, brokerID string, input CreateInput) (*model.User, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByUsername(ctx, input.Username)
	if err != nil {
		return nil, fmt.Errorf("ユーザー名の重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateUsernameError()
	}

	existing, err = s.userRepo.FindByEmail(ctx, input.Email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		BrokerID:     brokerID,
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: passwordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         input.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("broker_id", brokerID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Authorize はユーザーを取得し、指定ブローカーの所属であることを確認する。
// 他ブローカー所属の場合は403を返す。
func (s *Service) Authorize(ctx context.Context, userID, brokerID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}
	if user.BrokerID != brokerID {
		return nil, model.NewForbiddenError()
	}
	return user, nil
}

// List はブローカー配下のユーザー一覧を返す。
func (s *Service) List(ctx context.Context, brokerID string) ([]*model.User, error) {
	users, err := s.userRepo.ListByBrokerID(ctx, brokerID)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// UpdateInput はユーザー更新のリクエスト内容。nilのフィールドは変更しない。
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Role      *model.Role
}

// Update はユーザーの属性を更新する。ユーザー名は変更できない。
func (s *Service) Update(ctx context.Context, user *model.User, input UpdateInput) (*model.User, error) {
	if input.Email != nil {
		email := strings.TrimSpace(*input.Email)
		if email == "" || !strings.Contains(email, "@") {
			return nil, model.NewValidationError("有効なメールアドレスを入力してください")
		}
		if !strings.EqualFold(email, user.Email) {
			existing, err := s.userRepo.FindByEmail(ctx, email)
			if err != nil {
				return nil, fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
			}
			if existing != nil && existing.ID != user.ID {
				return nil, model.NewDuplicateEmailError()
			}
		}
		user.Email = email
	}
	if input.Role != nil {
		if *input.Role != model.RoleOwner && *input.Role != model.RoleStaff {
			return nil, model.NewValidationError("指定できるロールはownerまたはstaffです")
		}
		user.Role = *input.Role
	}
	if input.FirstName != nil {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}

	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	slog.Info("user updated", slog.String("user_id", user.ID))
	return user, nil
}

// SetActive はユーザーの有効・無効を切り替える。
// 自分自身は停止できない。停止時は該当ユーザーの全セッションを破棄する。
func (s *Service) SetActive(ctx context.Context, user *model.User, actorID string, active bool) (*model.User, error) {
	if !active && user.ID == actorID {
		return nil, model.NewValidationError("自分自身を停止することはできません")
	}
	if user.Active == active {
		return user, nil
	}

	user.Active = active
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	// 停止したユーザーのセッションは即時に無効化する
	if !active {
		if err := s.sessionRepo.DeleteByUserID(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	slog.Info("user active state changed",
		slog.String("user_id", user.ID),
		slog.Bool("active", active),
	)
	return user, nil
}

func validateCreateInput(input *CreateInput) error {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if input.Username == "" {
		return model.NewValidationError("ユーザー名を入力してください")
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return model.NewValidationError("有効なメールアドレスを入力してください")
	}
	if len(input.Password) < minPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上にしてください", minPasswordLength))
	}
	if input.Role != model.RoleOwner && input.Role != model.RoleStaff {
		return model.NewValidationError("指定できるロールはownerまたはstaffです")
	}
	return nil
}
