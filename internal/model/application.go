package model

import "time"

// ApplicationStatus は加入申請の状態を表す。
// approved / rejected になった申請は以後変更できない。
type ApplicationStatus string

const (
	StatusDraft     ApplicationStatus = "draft"
	StatusSubmitted ApplicationStatus = "submitted"
	StatusApproved  ApplicationStatus = "approved"
	StatusRejected  ApplicationStatus = "rejected"
)

// IsValid はApplicationStatusが定義済みの値かどうかを返す。
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Decided は申請が確定済み（承認または却下）かどうかを返す。
func (s ApplicationStatus) Decided() bool {
	return s == StatusApproved || s == StatusRejected
}

// ApplicationStep は申請フォームの入力ステップを表す。
type ApplicationStep string

const (
	StepCompany       ApplicationStep = "company"
	StepOwnership     ApplicationStep = "ownership"
	StepEmployees     ApplicationStep = "employees"
	StepDocuments     ApplicationStep = "documents"
	StepPlans         ApplicationStep = "plans"
	StepContributions ApplicationStep = "contributions"
	StepReview        ApplicationStep = "review"
)

// IsValid はApplicationStepが定義済みの値かどうかを返す。
func (s ApplicationStep) IsValid() bool {
	switch s {
	case StepCompany, StepOwnership, StepEmployees, StepDocuments,
		StepPlans, StepContributions, StepReview:
		return true
	}
	return false
}

// Application は企業の団体保険加入申請を表す。
// 1企業につき下書き状態の申請は高々1件。
type Application struct {
	ID                     string
	CompanyID              string
	Status                 ApplicationStatus
	CurrentStep            ApplicationStep
	RequestedEffectiveDate time.Time // 希望する保険開始日（月初）。ゼロ値は未設定
	SubmittedAt            *time.Time
	DecidedAt              *time.Time
	DecidedBy              string // 承認・却下した管理者のユーザーID
	DecisionNote           string
	CreatedBy              string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ApplicationPlan は申請に紐づく選択済みプランを表す。
type ApplicationPlan struct {
	ID            string
	ApplicationID string
	PlanID        string
	CreatedAt     time.Time
}
