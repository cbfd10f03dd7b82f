package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryBrokerRepo はインメモリのブローカーリポジトリ。
// ListWithStatsの集計のため、NewMemoryStoreが他リポジトリへの参照を設定する。
type MemoryBrokerRepo struct {
	mu      sync.RWMutex
	brokers map[string]model.Broker

	users        *MemoryUserRepo
	companies    *MemoryCompanyRepo
	applications *MemoryApplicationRepo
}

// NewMemoryBrokerRepo はMemoryBrokerRepoを生成する。
func NewMemoryBrokerRepo() *MemoryBrokerRepo {
	return &MemoryBrokerRepo{brokers: make(map[string]model.Broker)}
}

// FindByID は指定IDのブローカーを取得する。見つからない場合はnilを返す。
func (r *MemoryBrokerRepo) FindByID(ctx context.Context, id string) (*model.Broker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	broker, ok := r.brokers[id]
	if !ok {
		return nil, nil
	}
	return &broker, nil
}

// Create はブローカーを作成する。
func (r *MemoryBrokerRepo) Create(ctx context.Context, broker *model.Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brokers[broker.ID] = *broker
	return nil
}

// Update はブローカー情報（ブランディング設定含む）を更新する。
// ロゴ画像データはUpdateLogoで更新するため、このメソッドでは変更しない。
func (r *MemoryBrokerRepo) Update(ctx context.Context, broker *model.Broker) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.brokers[broker.ID]
	if !ok {
		return fmt.Errorf("broker not found: %s", broker.ID)
	}
	updated := *broker
	updated.LogoData = existing.LogoData
	updated.LogoMime = existing.LogoMime
	r.brokers[broker.ID] = updated
	return nil
}

// UpdateLogo はブローカーのロゴ画像データを更新する。
func (r *MemoryBrokerRepo) UpdateLogo(ctx context.Context, brokerID string, logoData []byte, logoMime string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	broker, ok := r.brokers[brokerID]
	if !ok {
		return fmt.Errorf("broker not found: %s", brokerID)
	}
	broker.LogoData = logoData
	broker.LogoMime = logoMime
	broker.UpdatedAt = time.Now()
	r.brokers[brokerID] = broker
	return nil
}

// ListWithStats は全ブローカーを利用状況の集計付きで返す（管理者向け）。
// ロゴ画像データは一覧には含めない。
func (r *MemoryBrokerRepo) ListWithStats(ctx context.Context) ([]BrokerWithStats, error) {
	r.mu.RLock()
	brokers := make([]model.Broker, 0, len(r.brokers))
	for _, broker := range r.brokers {
		broker.LogoData = nil
		brokers = append(brokers, broker)
	}
	r.mu.RUnlock()

	sort.Slice(brokers, func(i, j int) bool {
		return brokers[i].CreatedAt.Before(brokers[j].CreatedAt)
	})

	result := make([]BrokerWithStats, 0, len(brokers))
	for _, broker := range brokers {
		bs := BrokerWithStats{Broker: broker}
		if r.users != nil {
			bs.UserCount = r.users.countByBrokerID(broker.ID)
		}
		if r.companies != nil {
			companyIDs := r.companies.idsByBrokerID(broker.ID)
			bs.CompanyCount = len(companyIDs)
			if r.applications != nil {
				bs.ApplicationCount = r.applications.countByCompanyIDs(companyIDs)
			}
		}
		result = append(result, bs)
	}
	return result, nil
}

// Count は全ブローカー数を返す。
func (r *MemoryBrokerRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.brokers), nil
}

// compile-time interface check
var _ BrokerRepository = (*MemoryBrokerRepo)(nil)
