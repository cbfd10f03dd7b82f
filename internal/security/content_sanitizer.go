// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はブローカーが設定するウェルカムメッセージの
// HTMLをサニタイズし、XSS攻撃から申込者を保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
// ブランディング設定の保存前に使用される。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// UGC向けの許可リスト（段落、リスト、リンク、強調、画像等）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// bluemondayのUGCPolicyをベースに、リンクの属性付与を追加する。
// UGCPolicyはコメント欄等の利用者入力向けの許可リストで、
// script/iframe/styleおよびon*イベント属性は通過しない。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.UGCPolicy()

	// ウェルカムメッセージ内のリンクは別タブで開かせ、
	// opener経由の参照を遮断する
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
