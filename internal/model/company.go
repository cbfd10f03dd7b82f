package model

import "time"

// EntityType は顧客企業の法人形態を表す。
type EntityType string

const (
	EntityCorporation EntityType = "corporation"
	EntitySCorp       EntityType = "s_corp"
	EntityLLC         EntityType = "llc"
	EntityPartnership EntityType = "partnership"
	EntitySoleProp    EntityType = "sole_proprietorship"
	EntityNonProfit   EntityType = "non_profit"
)

// IsValid はEntityTypeが定義済みの値かどうかを返す。
func (t EntityType) IsValid() bool {
	switch t {
	case EntityCorporation, EntitySCorp, EntityLLC,
		EntityPartnership, EntitySoleProp, EntityNonProfit:
		return true
	}
	return false
}

// Company は加入申請の対象となる顧客企業を表す。
type Company struct {
	ID         string
	BrokerID   string
	Name       string
	TaxID      string
	EntityType EntityType
	Industry   string
	Address    string
	City       string
	State      string // 2文字の州コード（大文字）
	ZipCode    string
	Phone      string
	CreatedBy  string // 作成したユーザーのID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Owner は企業の出資者を表す。
// 企業内の出資比率の合計は常に100%以下に保つ。
type Owner struct {
	ID               string
	CompanyID        string
	FirstName        string
	LastName         string
	Title            string
	OwnershipPercent float64
	IsEligible       bool // 加入資格の有無
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EmployeeStatus は従業員の就業区分を表す。
type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeePartTime   EmployeeStatus = "part_time"
	EmployeeTerminated EmployeeStatus = "terminated"
	EmployeeCobra      EmployeeStatus = "cobra"
)

// IsValid はEmployeeStatusが定義済みの値かどうかを返す。
func (s EmployeeStatus) IsValid() bool {
	switch s {
	case EmployeeActive, EmployeePartTime, EmployeeTerminated, EmployeeCobra:
		return true
	}
	return false
}

// Employee は顧客企業の従業員を表す。名簿取り込みまたは手入力で登録される。
type Employee struct {
	ID              string
	CompanyID       string
	FirstName       string
	LastName        string
	Email           string
	DOB             time.Time
	HireDate        time.Time
	AnnualSalary    int64 // 年収（ドル単位、0は未入力）
	DependentsCount int
	Status          EmployeeStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
