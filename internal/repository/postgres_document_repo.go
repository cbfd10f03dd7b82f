package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/murillo0703/SecureMultiStepForm-sub001/internal/model"
)

// PostgresDocumentRepo はPostgreSQLを使用した書類リポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

// FindByID は指定IDの書類をファイル本体込みで取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, id string) (*model.Document, error) {
	doc := &model.Document{}
	var fileData []byte
	var uploadedBy sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, company_id, document_type, file_name, file_size, file_mime, file_data, uploaded_by, created_at
		 FROM documents WHERE id = $1`,
		id,
	).Scan(
		&doc.ID, &doc.CompanyID, &doc.DocumentType, &doc.FileName,
		&doc.FileSize, &doc.FileMime, &fileData, &uploadedBy, &doc.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("書類の取得に失敗しました: %w", err)
	}

	doc.FileData = fileData
	doc.UploadedBy = nullStringValue(uploadedBy)
	return doc, nil
}

// Create は書類を作成する。
func (r *PostgresDocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, company_id, document_type, file_name, file_size,
		                        file_mime, file_data, uploaded_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.CompanyID, doc.DocumentType, doc.FileName, doc.FileSize,
		doc.FileMime, doc.FileData, nullString(doc.UploadedBy), doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("書類の作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの書類を削除する。
func (r *PostgresDocumentRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("書類の削除に失敗しました: %w", err)
	}
	return nil
}

// ListByCompanyID は指定企業の書類一覧をメタデータのみで返す。
// FileDataは含まれない（ダウンロードはFindByIDを使う）。
func (r *PostgresDocumentRepo) ListByCompanyID(ctx context.Context, companyID string) ([]*model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, company_id, document_type, file_name, file_size, file_mime, uploaded_by, created_at
		 FROM documents WHERE company_id = $1 ORDER BY created_at ASC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("書類一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		var uploadedBy sql.NullString
		if err := rows.Scan(
			&doc.ID, &doc.CompanyID, &doc.DocumentType, &doc.FileName,
			&doc.FileSize, &doc.FileMime, &uploadedBy, &doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("書類一覧の読み取りに失敗しました: %w", err)
		}
		doc.UploadedBy = nullStringValue(uploadedBy)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("書類一覧の走査に失敗しました: %w", err)
	}
	return docs, nil
}

// compile-time interface check
var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
