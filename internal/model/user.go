// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
type Role string

const (
	// RoleAdmin はプラットフォーム管理者。ブローカーに所属しない。
	RoleAdmin Role = "admin"
	// RoleOwner はブローカーの代表ユーザー。ユーザー管理と設定変更が可能。
	RoleOwner Role = "owner"
	// RoleStaff はブローカーの担当者。日常の申請業務のみ行う。
	RoleStaff Role = "staff"
)

// IsValid はRoleが定義済みの値かどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleOwner, RoleStaff:
		return true
	}
	return false
}

// User はサービス利用ユーザーを表す。
// プラットフォーム管理者（RoleAdmin）はBrokerIDが空になる。
// PasswordHashは "hex(派生鍵).hex(ソルト)" 形式のscryptハッシュを保持し、
// APIレスポンスには決して含めない。
type User struct {
	ID           string
	BrokerID     string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
