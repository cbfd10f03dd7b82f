// Package audit は状態変更操作の監査記録を提供する。
// 記録はベストエフォートで、書き込み失敗が元の操作を失敗させることはない。
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// Recorder は監査ログの記録と検索を提供する。
type Recorder struct {
	auditRepo repository.AuditLogRepository
}

// NewRecorder は新しいRecorderを生成する。
func NewRecorder(auditRepo repository.AuditLogRepository) *Recorder {
	return &Recorder{auditRepo: auditRepo}
}

// Entry は監査記録1件分の内容。
// Actionは「リソース.動詞」形式（company.create、application.submit 等）。
// Detailには任意の構造体を渡せて、JSONにして保存される。
type Entry struct {
	BrokerID     string
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Detail       any
	IPAddress    string
}

// Record は監査ログを1件追記する。
// 書き込みに失敗してもエラーは返さず、ログ出力のみ行う。
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	log := &model.AuditLog{
		ID:           uuid.New().String(),
		BrokerID:     entry.BrokerID,
		UserID:       entry.UserID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		IPAddress:    entry.IPAddress,
		CreatedAt:    time.Now(),
	}
	if entry.Detail != nil {
		if encoded, err := json.Marshal(entry.Detail); err == nil {
			log.Detail = string(encoded)
		}
	}

	if err := r.auditRepo.Create(ctx, log); err != nil {
		slog.Error("audit log write failed",
			slog.String("action", entry.Action),
			slog.String("user_id", entry.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// List は条件に合致する監査ログを新しい順で返す。
func (r *Recorder) List(ctx context.Context, filter repository.AuditLogFilter) ([]*model.AuditLog, error) {
	return r.auditRepo.List(ctx, filter)
}

// ClientIP はリクエスト元のIPアドレスを取り出す。
// プロキシ経由の場合はX-Forwarded-Forの先頭を使う。
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
