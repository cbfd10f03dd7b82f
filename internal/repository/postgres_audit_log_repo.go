package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// defaultAuditLogLimit はフィルタでLimit未指定時の取得上限。
const defaultAuditLogLimit = 100

// PostgresAuditLogRepo はPostgreSQLを使用した監査ログリポジトリ。
type PostgresAuditLogRepo struct {
	db *sql.DB
}

// NewPostgresAuditLogRepo はPostgresAuditLogRepoを生成する。
func NewPostgresAuditLogRepo(db *sql.DB) *PostgresAuditLogRepo {
	return &PostgresAuditLogRepo{db: db}
}

// Create は監査ログを1件追記する。
func (r *PostgresAuditLogRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, broker_id, user_id, action, resource_type, resource_id, detail, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, nullString(entry.BrokerID), nullString(entry.UserID),
		entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Detail, entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査ログの追記に失敗しました: %w", err)
	}
	return nil
}

// List は条件に合致する監査ログを作成日時降順で返す。
func (r *PostgresAuditLogRepo) List(ctx context.Context, filter AuditLogFilter) ([]*model.AuditLog, error) {
	var conditions []string
	var args []any

	if filter.BrokerID != "" {
		args = append(args, filter.BrokerID)
		conditions = append(conditions, "broker_id = $"+strconv.Itoa(len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, "user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action+"%")
		conditions = append(conditions, "action LIKE $"+strconv.Itoa(len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		conditions = append(conditions, "resource_type = $"+strconv.Itoa(len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conditions = append(conditions, "created_at >= $"+strconv.Itoa(len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conditions = append(conditions, "created_at <= $"+strconv.Itoa(len(args)))
	}

	query := `SELECT id, broker_id, user_id, action, resource_type, resource_id, detail, ip_address, created_at
	          FROM audit_logs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLogLimit
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("監査ログの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditLog
	for rows.Next() {
		entry := &model.AuditLog{}
		var brokerID, userID sql.NullString
		if err := rows.Scan(
			&entry.ID, &brokerID, &userID, &entry.Action,
			&entry.ResourceType, &entry.ResourceID, &entry.Detail, &entry.IPAddress,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("監査ログの読み取りに失敗しました: %w", err)
		}
		entry.BrokerID = nullStringValue(brokerID)
		entry.UserID = nullStringValue(userID)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("監査ログの走査に失敗しました: %w", err)
	}
	return entries, nil
}

// compile-time interface check
var _ AuditLogRepository = (*PostgresAuditLogRepo)(nil)
