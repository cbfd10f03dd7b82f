package model

import "time"

// Document は顧客企業に添付された書類を表す。
// ファイル本体はFileDataとしてレコード内に保持する。
type Document struct {
	ID           string
	CompanyID    string
	DocumentType string // 書類種別（rules定義のキーと対応）
	FileName     string
	FileSize     int64
	FileMime     string
	FileData     []byte
	UploadedBy   string
	CreatedAt    time.Time
}

// DocumentRule は企業の属性に応じて必要となる書類の判定規則を表す。
// Appliesの条件をすべて満たす企業に対してこの書類が適用される。
type DocumentRule struct {
	DocumentType string        `json:"document_type"`
	Label        string        `json:"label"`
	Applies      RuleCondition `json:"applies"`
	Required     bool          `json:"required"`
}

// DocumentGroup は代替書類のグループを表す。
// SatisfiedByのいずれか1種類が添付されていれば要件を満たす。
type DocumentGroup struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	SatisfiedBy []string `json:"satisfied_by_any"`
}

// RuleCondition は書類規則の適用条件を表す。
// 空のフィールドは「条件なし」を意味する。
type RuleCondition struct {
	EntityTypes  []EntityType `json:"entity_types,omitempty"`
	MinEmployees int          `json:"min_employees,omitempty"`
	MaxEmployees int          `json:"max_employees,omitempty"`
	States       []string     `json:"states,omitempty"`
}

// RequiredDocument は規則評価の結果1件を表す。
// Satisfiedはその種別（または代替種別）の書類が既に添付済みかどうか。
type RequiredDocument struct {
	DocumentType string   `json:"document_type"`
	Label        string   `json:"label"`
	Required     bool     `json:"required"`
	Satisfied    bool     `json:"satisfied"`
	SatisfiedBy  []string `json:"satisfied_by_any,omitempty"`
}

// PDFTemplate はブローカーが登録する帳票テンプレートを表す。
// テンプレートのPDF本体と項目マッピングを保持するのみで、帳票の描画は行わない。
type PDFTemplate struct {
	ID            string
	BrokerID      string
	Name          string
	CarrierName   string
	FormNumber    string
	FileName      string
	FileSize      int64
	FileData      []byte
	FieldMappings []FieldMapping
	UploadedBy    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FieldMapping は帳票上のフィールド名とデータ項目の対応を表す。
type FieldMapping struct {
	FieldName  string `json:"field_name"`
	SourcePath string `json:"source_path"` // 例: company.name, owner[0].first_name
}
