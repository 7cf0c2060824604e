package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
)

// DatabaseVectorStore 基于PostgreSQL+pgvector的向量检索
// 相似度排序由服务端函数match_documents完成（见migrations）
type DatabaseVectorStore struct {
	db *gorm.DB
}

func NewDatabaseVectorStore(db *gorm.DB) VectorStore {
	return &DatabaseVectorStore{db: db}
}

// IndexChunks 空操作：chunk已随store.SaveDocumentChunks写入document_chunks表
func (s *DatabaseVectorStore) IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error {
	return nil
}

// RemoveDocument 空操作：chunk删除由store.DeleteDocument级联完成
func (s *DatabaseVectorStore) RemoveDocument(ctx context.Context, documentID uint) error {
	return nil
}

type matchDocumentsRow struct {
	ID           uint    `gorm:"column:id"`
	DocumentID   uint    `gorm:"column:document_id"`
	Content      string  `gorm:"column:content"`
	Filename     string  `gorm:"column:filename"`
	MetadataJSON string  `gorm:"column:metadata"`
	Similarity   float64 `gorm:"column:similarity"`
}

func (s *DatabaseVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	embeddingJSON, err := json.Marshal(req.QueryEmbedding)
	if err != nil {
		return nil, err
	}

	var rows []matchDocumentsRow
	err = s.db.WithContext(ctx).
		Raw("SELECT * FROM match_documents(?::vector, ?, ?)",
			string(embeddingJSON), req.Threshold, req.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	matches := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]interface{}
		if row.MetadataJSON != "" {
			_ = json.Unmarshal([]byte(row.MetadataJSON), &metadata)
		}
		matches = append(matches, SearchMatch{
			ChunkID:    row.ID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Filename:   row.Filename,
			Similarity: row.Similarity,
			Metadata:   metadata,
		})
	}

	// match_documents已按相似度降序返回，这里保底排一次
	sortMatchesBySimilarity(matches)
	return matches, nil
}

func (s *DatabaseVectorStore) Ready() bool {
	return s.db != nil
}

// DatabaseFulltextSearcher 基于ILIKE的降级文本检索
// 所有命中赋予固定的合成相似度，便于下游统一排序
type DatabaseFulltextSearcher struct {
	db    *gorm.DB
	score float64
}

func NewDatabaseFulltextSearcher(db *gorm.DB, score float64) FulltextSearcher {
	if score == 0 {
		score = 0.6
	}
	return &DatabaseFulltextSearcher{db: db, score: score}
}

// IndexChunks 空操作：ILIKE检索直接査document_chunks表
func (s *DatabaseFulltextSearcher) IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error {
	return nil
}

// RemoveDocument 空操作：删除由store.DeleteDocument级联完成
func (s *DatabaseFulltextSearcher) RemoveDocument(ctx context.Context, documentID uint) error {
	return nil
}

type fulltextRow struct {
	ID         uint   `gorm:"column:id"`
	DocumentID uint   `gorm:"column:document_id"`
	Content    string `gorm:"column:content"`
	Filename   string `gorm:"column:filename"`
}

func (s *DatabaseFulltextSearcher) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	if req.Term == "" {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}

	var rows []fulltextRow
	err := s.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.id, document_chunks.document_id, document_chunks.content, documents.filename").
		Joins("JOIN documents ON document_chunks.document_id = documents.id").
		Where("document_chunks.content ILIKE ?", "%"+req.Term+"%").
		Limit(req.Limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fallback search failed: %w", err)
	}

	matches := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, SearchMatch{
			ChunkID:    row.ID,
			DocumentID: row.DocumentID,
			Content:    row.Content,
			Filename:   row.Filename,
			Similarity: s.score,
		})
	}
	return matches, nil
}

func (s *DatabaseFulltextSearcher) Ready() bool {
	return s.db != nil
}
