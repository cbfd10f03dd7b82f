package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryUserRepo はインメモリのユーザーリポジトリ。
// 構造体は値で保持し、読み書き時にコピーすることで外部からの変更を遮断する。
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]model.User)}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Username == username {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, user := range r.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

// Create はユーザーを作成する。
// ユーザー名・メールアドレスの重複はDBのユニーク制約と同様にエラーになる。
func (r *MemoryUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Username == user.Username {
			return fmt.Errorf("duplicate username: %s", user.Username)
		}
		if existing.Email == user.Email {
			return fmt.Errorf("duplicate email: %s", user.Email)
		}
	}

	r.users[user.ID] = *user
	return nil
}

// Update はユーザー情報を更新する。
func (r *MemoryUserRepo) Update(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; !ok {
		return fmt.Errorf("user not found: %s", user.ID)
	}
	r.users[user.ID] = *user
	return nil
}

// ListByBrokerID は指定ブローカーの全ユーザーを作成日時昇順で返す。
func (r *MemoryUserRepo) ListByBrokerID(ctx context.Context, brokerID string) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var users []*model.User
	for _, user := range r.users {
		if user.BrokerID == brokerID {
			u := user
			users = append(users, &u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// Count は全ユーザー数を返す。
func (r *MemoryUserRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users), nil
}

// countByBrokerID はブローカー集計用の内部ヘルパー。
func (r *MemoryUserRepo) countByBrokerID(brokerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, user := range r.users {
		if user.BrokerID == brokerID {
			count++
		}
	}
	return count
}

// compile-time interface check
var _ UserRepository = (*MemoryUserRepo)(nil)
