package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// AuditListerInterface は監査ログハンドラーが必要とする検索インターフェース。
type AuditListerInterface interface {
	// List は条件に合致する監査ログを新しい順で返す。
	List(ctx context.Context, filter repository.AuditLogFilter) ([]*model.AuditLog, error)
}

// AuditHandler は監査ログ検索のHTTPハンドラー。
type AuditHandler struct {
	lister AuditListerInterface
}

// NewAuditHandler はAuditHandlerを生成する。
func NewAuditHandler(lister AuditListerInterface) *AuditHandler {
	return &AuditHandler{lister: lister}
}

// auditLogResponse は監査ログ1件分のAPIレスポンス。
type auditLogResponse struct {
	ID           string          `json:"id"`
	BrokerID     string          `json:"broker_id"`
	UserID       string          `json:"user_id"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Detail       json.RawMessage `json:"detail,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// List は自ブローカーの監査ログを検索する。
// GET /api/audit-logs
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	filter, err := parseAuditLogFilter(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	// 自ブローカーのログのみ。クエリでの指定は無視する。
	filter.BrokerID = principal.BrokerID

	logs, err := h.lister.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditLogResponses(logs))
}

// AdminList は全ブローカー横断で監査ログを検索する。
// GET /api/admin/audit-logs
func (h *AuditHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}

	filter, err := parseAuditLogFilter(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	filter.BrokerID = r.URL.Query().Get("broker_id")

	logs, err := h.lister.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAuditLogResponses(logs))
}

// --- 変換ヘルパー ---

// parseAuditLogFilter はクエリパラメータから検索条件を組み立てる。
// limit・offsetの不正値はデフォルト扱いにする。
func parseAuditLogFilter(r *http.Request) (repository.AuditLogFilter, error) {
	query := r.URL.Query()
	filter := repository.AuditLogFilter{
		UserID:       query.Get("user_id"),
		Action:       query.Get("action"),
		ResourceType: query.Get("resource_type"),
	}

	since, err := parseTimeParam("since", query.Get("since"))
	if err != nil {
		return repository.AuditLogFilter{}, err
	}
	filter.Since = since

	until, err := parseTimeParam("until", query.Get("until"))
	if err != nil {
		return repository.AuditLogFilter{}, err
	}
	filter.Until = until

	if limit, err := strconv.Atoi(query.Get("limit")); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil && offset > 0 {
		filter.Offset = offset
	}

	return filter, nil
}

// parseTimeParam はRFC3339またはYYYY-MM-DD形式の時刻パラメータを解析する。
// 空文字列はゼロ値を返す。
func parseTimeParam(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	return time.Time{}, model.NewValidationError(name + "はRFC3339またはYYYY-MM-DD形式で指定してください")
}

func toAuditLogResponses(logs []*model.AuditLog) []auditLogResponse {
	results := make([]auditLogResponse, len(logs))
	for i, log := range logs {
		results[i] = auditLogResponse{
			ID:           log.ID,
			BrokerID:     log.BrokerID,
			UserID:       log.UserID,
			Action:       log.Action,
			ResourceType: log.ResourceType,
			ResourceID:   log.ResourceID,
			Detail:       json.RawMessage(log.Detail),
			IPAddress:    log.IPAddress,
			CreatedAt:    log.CreatedAt,
		}
	}
	return results
}
