package model

import "fmt"

// エラーカテゴリ。APIErrorのCategoryフィールドに設定する。
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryEnrollment = "enrollment"
	CategoryDocument   = "document"
	CategorySystem     = "system"
)

// エラーコード。クライアントはこの値で処理を分岐する。
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeOwnershipExceeded  = "OWNERSHIP_EXCEEDED"
	ErrCodeCensusInvalid      = "CENSUS_INVALID"
	ErrCodeDuplicateDraft     = "DUPLICATE_DRAFT"
	ErrCodeApplicationLocked  = "APPLICATION_LOCKED"
	ErrCodeSubmitBlocked      = "SUBMIT_BLOCKED"
	ErrCodeInvalidFileType    = "INVALID_FILE_TYPE"
	ErrCodeFileTooLarge       = "FILE_TOO_LARGE"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// APIError はクライアントへ返す業務エラーを表す。
// Actionには利用者が次に取るべき操作のヒントを入れる（任意）。
type APIError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidCredentialsError はログイン失敗時のエラーを生成する。
// ユーザー名の存在有無を区別しないメッセージにすること。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません",
		Category: CategoryAuth,
		Action:   "入力内容を確認して再度お試しください",
	}
}

// NewSessionExpiredError はセッション失効時のエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました",
		Category: CategoryAuth,
		Action:   "再度ログインしてください",
	}
}

// NewUnauthorizedError は未認証アクセス時のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です",
		Category: CategoryAuth,
		Action:   "ログインしてください",
	}
}

// NewForbiddenError は権限不足時のエラーを生成する。
// 他テナントの資源へのアクセスもこのエラーで拒否する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません",
		Category: CategoryAuth,
	}
}

// NewDuplicateUsernameError はユーザー名重複時のエラーを生成する。
func NewDuplicateUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  "このユーザー名は既に使用されています",
		Category: CategoryValidation,
		Action:   "別のユーザー名を指定してください",
	}
}

// NewDuplicateEmailError はメールアドレス重複時のエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています",
		Category: CategoryValidation,
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: CategoryValidation,
		Action:   "入力内容を修正してください",
	}
}

// NewNotFoundError は資源が存在しない場合のエラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%sが見つかりません", resource),
		Category: CategoryValidation,
	}
}

// NewOwnershipExceededError は出資比率の合計が100%を超える場合のエラーを生成する。
func NewOwnershipExceededError(total float64) *APIError {
	return &APIError{
		Code:     ErrCodeOwnershipExceeded,
		Message:  fmt.Sprintf("出資比率の合計が100%%を超えています（現在: %.2f%%）", total),
		Category: CategoryValidation,
		Action:   "既存の出資者の比率を調整してください",
	}
}

// NewCensusInvalidError は従業員名簿の取り込み失敗時のエラーを生成する。
func NewCensusInvalidError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeCensusInvalid,
		Message:  message,
		Category: CategoryEnrollment,
		Action:   "ファイルの内容を修正して再度アップロードしてください",
	}
}

// NewDuplicateDraftError は下書き申請の二重作成を拒否するエラーを生成する。
// 1企業につき下書きは高々1件。
func NewDuplicateDraftError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateDraft,
		Message:  "この企業には既に下書きの申請があります",
		Category: CategoryEnrollment,
		Action:   "既存の下書きを編集するか、先に提出してください",
	}
}

// NewApplicationLockedError は確定済み申請の変更を拒否するエラーを生成する。
func NewApplicationLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeApplicationLocked,
		Message:  "確定済みの申請は変更できません",
		Category: CategoryEnrollment,
	}
}

// NewSubmitBlockedError は提出要件を満たさない申請のエラーを生成する。
func NewSubmitBlockedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeSubmitBlocked,
		Message:  message,
		Category: CategoryEnrollment,
		Action:   "不足している項目を入力してから提出してください",
	}
}

// NewInvalidFileTypeError は受け付けないファイル形式のエラーを生成する。
func NewInvalidFileTypeError(expected string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFileType,
		Message:  fmt.Sprintf("このファイル形式は受け付けられません（%sのみ対応）", expected),
		Category: CategoryDocument,
	}
}

// NewFileTooLargeError はサイズ上限超過のエラーを生成する。
func NewFileTooLargeError(limitBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています", limitBytes/(1024*1024)),
		Category: CategoryDocument,
		Action:   "ファイルを小さくして再度アップロードしてください",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。しばらく待ってから再度お試しください",
		Category: CategorySystem,
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ出す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "サーバー内部でエラーが発生しました",
		Category: CategorySystem,
		Action:   "時間をおいて再度お試しください",
	}
}
