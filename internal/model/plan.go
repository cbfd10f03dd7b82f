package model

import "time"

// PlanType は保険商品の種別を表す。
type PlanType string

const (
	PlanMedical PlanType = "medical"
	PlanDental  PlanType = "dental"
	PlanVision  PlanType = "vision"
	PlanLife    PlanType = "life"
)

// IsValid はPlanTypeが定義済みの値かどうかを返す。
func (t PlanType) IsValid() bool {
	switch t {
	case PlanMedical, PlanDental, PlanVision, PlanLife:
		return true
	}
	return false
}

// MetalTier は医療プランの給付水準を表す。医療以外のプランでは空になる。
type MetalTier string

const (
	TierBronze   MetalTier = "bronze"
	TierSilver   MetalTier = "silver"
	TierGold     MetalTier = "gold"
	TierPlatinum MetalTier = "platinum"
)

// IsValid はMetalTierが定義済みの値かどうかを返す。
func (t MetalTier) IsValid() bool {
	switch t {
	case TierBronze, TierSilver, TierGold, TierPlatinum:
		return true
	}
	return false
}

// Plan はブローカーが提供する保険プランを表す。
// CarrierNameは保険会社名。MonthlyCostCentsは従業員一人あたりの月額保険料。
type Plan struct {
	ID               string
	BrokerID         string
	Name             string
	CarrierName      string
	PlanType         PlanType
	MetalTier        MetalTier
	MonthlyCostCents int64
	ContractCode     string
	EffectiveDate    time.Time
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ContributionMode は事業主負担の計算方式を表す。
type ContributionMode string

const (
	// ContributionPercent は保険料に対する割合（0〜100）で負担額を決める。
	ContributionPercent ContributionMode = "percent"
	// ContributionFixed は月額の固定額（セント単位）で負担額を決める。
	ContributionFixed ContributionMode = "fixed"
)

// IsValid はContributionModeが定義済みの値かどうかを返す。
func (m ContributionMode) IsValid() bool {
	switch m {
	case ContributionPercent, ContributionFixed:
		return true
	}
	return false
}

// Contribution は企業がプラン種別ごとに設定する事業主負担を表す。
// 従業員本人分と扶養家族分を別々の方式・値で設定できる。
// (CompanyID, PlanType) の組に対して高々1件。
type Contribution struct {
	ID             string
	CompanyID      string
	PlanType       PlanType
	EmployeeMode   ContributionMode
	EmployeeValue  float64 // percentなら0〜100、fixedならセント単位の金額
	DependentMode  ContributionMode
	DependentValue float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
