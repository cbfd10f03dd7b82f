package model

import "time"

// Broker は代理店テナントを表す。
// ユーザーと顧客企業はすべていずれかのブローカーに属する。
// ブランディング設定（カラー、ロゴ、ウェルカム文）もこのレコードが保持する。
type Broker struct {
	ID            string
	Name          string
	LicenseNumber string
	Email         string
	Phone         string

	// ブランディング設定
	PrimaryColor string // #rrggbb形式
	AccentColor  string // #rrggbb形式
	WelcomeHTML  string // サニタイズ済みHTML
	LogoData     []byte
	LogoMime     string

	CreatedAt time.Time
	UpdatedAt time.Time
}
