// Package fixtures は開発環境向けのデモデータを生成・投入する。
// seedサブコマンドとインメモリバックエンド起動時のシードで使用する。
package fixtures

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/auth"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/repository"
)

// 開発環境のログインに使う固定アカウント。
// パスワードは全デモユーザー共通で、本番環境では絶対にシードしないこと。
const (
	DemoBrokerID      = "11111111-1111-4111-8111-111111111111"
	DemoOwnerUsername = "demo_owner"
	DemoStaffUsername = "demo_staff"
	DemoAdminUsername = "demo_admin"
	DemoPassword      = "demo-pass-1234"
)

// DefaultCompanyCount はシードする顧客企業のデフォルト件数。
const DefaultCompanyCount = 5

// Seeder はデモデータをリポジトリへ投入する。
type Seeder struct {
	store *repository.Store
}

// NewSeeder は新しいSeederを生成する。
func NewSeeder(store *repository.Store) *Seeder {
	return &Seeder{store: store}
}

// Seed はデモブローカー・固定ユーザー・保険プランと、companies社分の
// 顧客企業（出資者・従業員・負担設定・下書き申請つき）を投入する。
// デモブローカーが既に存在する場合は何もしないため、再実行しても安全。
func (s *Seeder) Seed(ctx context.Context, companies int) error {
	existing, err := s.store.Brokers.FindByID(ctx, DemoBrokerID)
	if err != nil {
		return fmt.Errorf("デモブローカーの確認に失敗しました: %w", err)
	}
	if existing != nil {
		slog.Info("demo data already seeded, skipping", slog.String("broker_id", DemoBrokerID))
		return nil
	}

	if companies <= 0 {
		companies = DefaultCompanyCount
	}

	now := time.Now()

	broker := &model.Broker{
		ID:            DemoBrokerID,
		Name:          "Harbor Light Benefits",
		LicenseNumber: "CA-" + randomdata.StringNumberExt(1, "", 7),
		Email:         "office@harborlight.example.com",
		Phone:         randomPhone(),
		PrimaryColor:  "#1a56db",
		AccentColor:   "#f59e0b",
		WelcomeHTML:   "<p>Harbor Light Benefitsの加入手続きポータルへようこそ。</p>",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Brokers.Create(ctx, broker); err != nil {
		return fmt.Errorf("デモブローカーの作成に失敗しました: %w", err)
	}

	passwordHash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return fmt.Errorf("デモパスワードのハッシュ化に失敗しました: %w", err)
	}

	owner := &model.User{
		ID:           uuid.NewString(),
		BrokerID:     DemoBrokerID,
		Username:     DemoOwnerUsername,
		Email:        "owner@harborlight.example.com",
		PasswordHash: passwordHash,
		FirstName:    "Grace",
		LastName:     "Harbor",
		Role:         model.RoleOwner,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	staff := &model.User{
		ID:           uuid.NewString(),
		BrokerID:     DemoBrokerID,
		Username:     DemoStaffUsername,
		Email:        "staff@harborlight.example.com",
		PasswordHash: passwordHash,
		FirstName:    randomdata.FirstName(randomdata.RandomGender),
		LastName:     randomdata.LastName(),
		Role:         model.RoleStaff,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	admin := &model.User{
		ID:           uuid.NewString(),
		Username:     DemoAdminUsername,
		Email:        "admin@enrollhub.example.com",
		PasswordHash: passwordHash,
		FirstName:    "Platform",
		LastName:     "Admin",
		Role:         model.RoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, u := range []*model.User{owner, staff, admin} {
		if err := s.store.Users.Create(ctx, u); err != nil {
			return fmt.Errorf("デモユーザー %s の作成に失敗しました: %w", u.Username, err)
		}
	}

	plans, err := s.seedPlans(ctx, now)
	if err != nil {
		return err
	}

	for i := 0; i < companies; i++ {
		if err := s.seedCompany(ctx, owner.ID, plans, now); err != nil {
			return err
		}
	}

	slog.Info("demo data seeded",
		slog.String("broker_id", DemoBrokerID),
		slog.Int("companies", companies),
		slog.String("owner_username", DemoOwnerUsername),
		slog.String("admin_username", DemoAdminUsername),
	)
	return nil
}

// seedPlans はデモブローカーの保険プランを各種別1件以上作成する。
func (s *Seeder) seedPlans(ctx context.Context, now time.Time) ([]*model.Plan, error) {
	effective := firstOfNextMonth(now)

	specs := []struct {
		name  string
		typ   model.PlanType
		tier  model.MetalTier
		cents int64
	}{
		{"Coastal PPO Gold", model.PlanMedical, model.TierGold, int64(randomdata.Number(55000, 75000))},
		{"Coastal HMO Silver", model.PlanMedical, model.TierSilver, int64(randomdata.Number(35000, 50000))},
		{"BrightSmile Dental", model.PlanDental, model.TierSilver, int64(randomdata.Number(3000, 6000))},
		{"ClearView Vision", model.PlanVision, model.TierBronze, int64(randomdata.Number(800, 2000))},
		{"Keystone Group Life", model.PlanLife, model.TierSilver, int64(randomdata.Number(1500, 4000))},
	}

	plans := make([]*model.Plan, 0, len(specs))
	for _, spec := range specs {
		plan := &model.Plan{
			ID:               uuid.NewString(),
			BrokerID:         DemoBrokerID,
			Name:             spec.name,
			CarrierName:      randomdata.StringSample("Aetna", "Blue Shield", "Kaiser Permanente", "UnitedHealthcare", "MetLife"),
			PlanType:         spec.typ,
			MetalTier:        spec.tier,
			MonthlyCostCents: spec.cents,
			ContractCode:     randomdata.StringNumberExt(1, "", 6),
			EffectiveDate:    effective,
			Active:           true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.store.Plans.Create(ctx, plan); err != nil {
			return nil, fmt.Errorf("デモプラン %s の作成に失敗しました: %w", plan.Name, err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// seedCompany は出資者・従業員・負担設定・下書き申請つきの顧客企業を1社作成する。
func (s *Seeder) seedCompany(ctx context.Context, createdBy string, plans []*model.Plan, now time.Time) error {
	company := &model.Company{
		ID:       uuid.NewString(),
		BrokerID: DemoBrokerID,
		Name: fmt.Sprintf("%s %s",
			randomdata.LastName(),
			randomdata.StringSample("Manufacturing", "Logistics", "Consulting", "Construction", "Design Studio")),
		TaxID:      randomdata.StringNumberExt(1, "", 2) + "-" + randomdata.StringNumberExt(1, "", 7),
		EntityType: model.EntityType(randomdata.StringSample("corporation", "s_corp", "llc", "partnership")),
		Industry:   randomdata.StringSample("technology", "healthcare", "retail", "construction", "hospitality"),
		Address:    fmt.Sprintf("%d %s", randomdata.Number(100, 9999), randomdata.Street()),
		City:       randomdata.City(),
		State:      randomdata.State(randomdata.Small),
		ZipCode:    randomdata.PostalCode("US"),
		Phone:      randomPhone(),
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Companies.Create(ctx, company); err != nil {
		return fmt.Errorf("デモ企業の作成に失敗しました: %w", err)
	}

	if err := s.seedOwners(ctx, company.ID, now); err != nil {
		return err
	}

	for i := 0; i < randomdata.Number(3, 10); i++ {
		employee := &model.Employee{
			ID:              uuid.NewString(),
			CompanyID:       company.ID,
			FirstName:       randomdata.FirstName(randomdata.RandomGender),
			LastName:        randomdata.LastName(),
			Email:           randomdata.Email(),
			DOB:             randomDate(now, 22, 62),
			HireDate:        randomDate(now, 0, 8),
			AnnualSalary:    int64(randomdata.Number(38000, 160000)),
			DependentsCount: randomdata.Number(0, 4),
			Status:          model.EmployeeActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.store.Employees.Create(ctx, employee); err != nil {
			return fmt.Errorf("デモ従業員の作成に失敗しました: %w", err)
		}
	}

	// 医療プランの事業主負担を設定しておくと契約ステップの動作確認がしやすい
	contribution := &model.Contribution{
		ID:             uuid.NewString(),
		CompanyID:      company.ID,
		PlanType:       model.PlanMedical,
		EmployeeMode:   model.ContributionPercent,
		EmployeeValue:  float64(randomdata.Number(50, 100)),
		DependentMode:  model.ContributionPercent,
		DependentValue: float64(randomdata.Number(0, 50)),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Contributions.Upsert(ctx, contribution); err != nil {
		return fmt.Errorf("デモ負担設定の作成に失敗しました: %w", err)
	}

	app := &model.Application{
		ID:          uuid.NewString(),
		CompanyID:   company.ID,
		Status:      model.StatusDraft,
		CurrentStep: model.StepCompany,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Applications.Create(ctx, app); err != nil {
		return fmt.Errorf("デモ下書き申請の作成に失敗しました: %w", err)
	}

	if len(plans) > 0 {
		planIDs := []string{plans[0].ID}
		if err := s.store.Applications.ReplacePlans(ctx, app.ID, planIDs); err != nil {
			return fmt.Errorf("デモ申請のプラン選択に失敗しました: %w", err)
		}
	}

	return nil
}

// seedOwners は出資比率の合計がちょうど100になる出資者を作成する。
func (s *Seeder) seedOwners(ctx context.Context, companyID string, now time.Time) error {
	splits := [][]float64{{100}, {60, 40}, {50, 30, 20}}
	percents := splits[randomdata.Number(0, len(splits))]

	for _, percent := range percents {
		owner := &model.Owner{
			ID:               uuid.NewString(),
			CompanyID:        companyID,
			FirstName:        randomdata.FirstName(randomdata.RandomGender),
			LastName:         randomdata.LastName(),
			Title:            randomdata.StringSample("CEO", "President", "Managing Partner", "CFO"),
			OwnershipPercent: percent,
			IsEligible:       randomdata.Boolean(),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.store.Owners.Create(ctx, owner); err != nil {
			return fmt.Errorf("デモ出資者の作成に失敗しました: %w", err)
		}
	}
	return nil
}

// randomPhone は米国形式の電話番号文字列を生成する。
func randomPhone() string {
	return fmt.Sprintf("(%s) %s-%s",
		randomdata.StringNumberExt(1, "", 3),
		randomdata.StringNumberExt(1, "", 3),
		randomdata.StringNumberExt(1, "", 4))
}

// randomDate は現在からminYears〜maxYears前の間のランダムな日付を返す。
func randomDate(now time.Time, minYears, maxYears int) time.Time {
	years := randomdata.Number(minYears, maxYears+1)
	days := randomdata.Number(0, 365)
	return now.AddDate(-years, 0, -days).Truncate(24 * time.Hour)
}

// firstOfNextMonth は翌月1日の0時を返す。
func firstOfNextMonth(now time.Time) time.Time {
	year, month, _ := now.Date()
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
