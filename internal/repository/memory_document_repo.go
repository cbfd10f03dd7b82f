package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// MemoryDocumentRepo はインメモリの書類リポジトリ。
type MemoryDocumentRepo struct {
	mu        sync.RWMutex
	documents map[string]model.Document
}

// NewMemoryDocumentRepo はMemoryDocumentRepoを生成する。
func NewMemoryDocumentRepo() *MemoryDocumentRepo {
	return &MemoryDocumentRepo{
		documents: make(map[string]model.Document),
	}
}

// FindByID は指定IDの書類をファイル本体込みで取得する。見つからない場合はnilを返す。
func (r *MemoryDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return nil, nil
	}
	data := make([]byte, len(doc.FileData))
	copy(data, doc.FileData)
	doc.FileData = data
	return &doc, nil
}

// Create は書類を作成する。
func (r *MemoryDocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *doc
	stored.FileData = make([]byte, len(doc.FileData))
	copy(stored.FileData, doc.FileData)
	r.documents[doc.ID] = stored
	return nil
}

// Delete は書類を削除する。
func (r *MemoryDocumentRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	delete(r.documents, id)
	return nil
}

// ListByCompanyID は指定企業の書類メタデータ一覧を作成日時昇順で返す。
// 一覧にファイル本体は含めない。
func (r *MemoryDocumentRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var docs []*model.Document
	for _, doc := range r.documents {
		if doc.CompanyID == companyID {
			d := doc
			d.FileData = nil
			docs = append(docs, &d)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
	return docs, nil
}

// deleteByCompanyID は企業削除時のCASCADE用内部ヘルパー。
func (r *MemoryDocumentRepo) deleteByCompanyID(companyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, doc := range r.documents {
		if doc.CompanyID == companyID {
			delete(r.documents, id)
		}
	}
}

// compile-time interface check
var _ DocumentRepository = (*MemoryDocumentRepo)(nil)
