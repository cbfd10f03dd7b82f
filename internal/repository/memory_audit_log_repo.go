package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryAuditLogRepo はインメモリの監査ログリポジトリ。
type MemoryAuditLogRepo struct {
	mu   sync.RWMutex
	logs []model.AuditLog
}

// NewMemoryAuditLogRepo はMemoryAuditLogRepoを生成する。
func NewMemoryAuditLogRepo() *MemoryAuditLogRepo {
	return &MemoryAuditLogRepo{}
}

// Create は監査ログを追記する。
func (r *MemoryAuditLogRepo) Create(ctx context.Context, log *model.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, *log)
	return nil
}

// List はフィルタ条件に一致する監査ログを作成日時降順で返す。
func (r *MemoryAuditLogRepo) List(ctx context.Context, filter AuditLogFilter) ([]*model.AuditLog, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLogLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var logs []*model.AuditLog
	for _, log := range r.logs {
		if filter.BrokerID != "" && log.BrokerID != filter.BrokerID {
			continue
		}
		if filter.UserID != "" && log.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && !strings.HasPrefix(log.Action, filter.Action) {
			continue
		}
		if filter.ResourceType != "" && log.ResourceType != filter.ResourceType {
			continue
		}
		if !filter.Since.IsZero() && log.CreatedAt.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && log.CreatedAt.After(filter.Until) {
			continue
		}
		l := log
		logs = append(logs, &l)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(logs) {
			return nil, nil
		}
		logs = logs[filter.Offset:]
	}
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// compile-time interface check
var _ AuditLogRepository = (*MemoryAuditLogRepo)(nil)
