package model

import "time"

// AuditLog は状態を変更する操作の監査記録を表す。
// 記録の失敗は元の操作を失敗させない（ベストエフォート）。
type AuditLog struct {
	ID           string
	BrokerID     string
	UserID       string
	Action       string // 例: company.create, application.submit
	ResourceType string
	ResourceID   string
	Detail       string
	IPAddress    string
	CreatedAt    time.Time
}
