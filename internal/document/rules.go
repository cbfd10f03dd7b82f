// Package document は添付書類の管理と書類要件の判定を提供する。
//
// どの企業にどの書類が必要かはrules.jsonに静的に定義されており、
// ビルド時にバイナリへ埋め込まれる。評価は企業の法人形態・所在州・
// 従業員数に対する純粋な判定で、I/Oを伴わない。
package document

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

//go:embed rules.json
var rulesJSON []byte

// DocumentTypeOther は規則に紐づかない任意書類の種別。
// どの企業でも常に受け付ける。
const DocumentTypeOther = "other"

// RuleSet は書類要件の判定規則一式を表す。
type RuleSet struct {
	Rules  []model.DocumentRule  `json:"rules"`
	Groups []model.DocumentGroup `json:"groups"`
}

// LoadRules は埋め込み済みのrules.jsonから規則を読み込む。
func LoadRules() (*RuleSet, error) {
	var rs RuleSet
	if err := json.Unmarshal(rulesJSON, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse document rules: %w", err)
	}
	return &rs, nil
}

// KnownTypes は受け付け可能な書類種別の集合を返す。
// 規則の種別、グループの代替種別、およびotherで構成される。
func (rs *RuleSet) KnownTypes() map[string]bool {
	known := make(map[string]bool)
	for _, rule := range rs.Rules {
		known[rule.DocumentType] = true
	}
	for _, group := range rs.Groups {
		for _, t := range group.SatisfiedBy {
			known[t] = true
		}
	}
	known[DocumentTypeOther] = true
	return known
}

// IsKnownType は書類種別が受け付け可能かどうかを返す。
func (rs *RuleSet) IsKnownType(documentType string) bool {
	return rs.KnownTypes()[documentType]
}

// Evaluation は規則評価の結果を表す。
type Evaluation struct {
	// Documents は企業に適用される規則・グループごとの充足状況。
	Documents []model.RequiredDocument
	// Missing は未充足の必須書類の種別（グループの場合はグループ名）。
	Missing []string
}

// Evaluate は企業の属性と添付済み書類種別から書類要件の充足状況を判定する。
// 適用されない規則は結果に含まれない。グループは常に適用され、
// 代替種別のいずれかが添付されていれば充足とみなす。
func (rs *RuleSet) Evaluate(company *model.Company, employeeCount int, uploadedTypes []string) *Evaluation {
	uploaded := make(map[string]bool, len(uploadedTypes))
	for _, t := range uploadedTypes {
		uploaded[t] = true
	}

	eval := &Evaluation{}

	for _, rule := range rs.Rules {
		if !conditionMatches(rule.Applies, company, employeeCount) {
			continue
		}
		satisfied := uploaded[rule.DocumentType]
		eval.Documents = append(eval.Documents, model.RequiredDocument{
			DocumentType: rule.DocumentType,
			Label:        rule.Label,
			Required:     rule.Required,
			Satisfied:    satisfied,
		})
		if rule.Required && !satisfied {
			eval.Missing = append(eval.Missing, rule.DocumentType)
		}
	}

	for _, group := range rs.Groups {
		satisfied := false
		for _, t := range group.SatisfiedBy {
			if uploaded[t] {
				satisfied = true
				break
			}
		}
		eval.Documents = append(eval.Documents, model.RequiredDocument{
			DocumentType: group.Name,
			Label:        group.Label,
			Required:     true,
			Satisfied:    satisfied,
			SatisfiedBy:  group.SatisfiedBy,
		})
		if !satisfied {
			eval.Missing = append(eval.Missing, group.Name)
		}
	}

	return eval
}

// conditionMatches は規則の適用条件を企業が満たすかどうかを判定する。
// 空のフィールドは条件なしとして扱う。
func conditionMatches(cond model.RuleCondition, company *model.Company, employeeCount int) bool {
	if len(cond.EntityTypes) > 0 {
		found := false
		for _, et := range cond.EntityTypes {
			if et == company.EntityType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if cond.MinEmployees > 0 && employeeCount < cond.MinEmployees {
		return false
	}
	if cond.MaxEmployees > 0 && employeeCount > cond.MaxEmployees {
		return false
	}

	if len(cond.States) > 0 {
		found := false
		for _, s := range cond.States {
			if strings.EqualFold(s, company.State) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
