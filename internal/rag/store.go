package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/equipdesk/backend-go/internal/config"
	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/metrics"
	"github.com/equipdesk/backend-go/internal/models"
)

// Store 文档与分块的持久层
// 向量检索和降级文本检索委托给可插拔的后端实现
type Store struct {
	db          *gorm.DB
	vectorStore VectorStore
	fulltext    FulltextSearcher
	cfg         config.RAGConfig
}

func NewStore(db *gorm.DB, vectorStore VectorStore, fulltext FulltextSearcher, cfg config.RAGConfig) *Store {
	return &Store{
		db:          db,
		vectorStore: vectorStore,
		fulltext:    fulltext,
		cfg:         cfg,
	}
}

// SaveDocumentMetadata 写入文档元数据记录
// 表不存在时返回SchemaMissing，提示先执行迁移
func (s *Store) SaveDocumentMetadata(ctx context.Context, doc *models.Document) error {
	if doc.UploadDate.IsZero() {
		doc.UploadDate = time.Now()
	}
	if s.cfg.ContentPreview > 0 {
		doc.Content = truncateRunes(doc.Content, s.cfg.ContentPreview)
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		if apperrors.IsRelationMissing(err) {
			return apperrors.SchemaMissing(err)
		}
		return fmt.Errorf("failed to save document metadata: %w", err)
	}
	return nil
}

// SaveDocumentChunks 批量写入分块并同步外部索引
func (s *Store) SaveDocumentChunks(ctx context.Context, documentID uint, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Create(&chunks).Error; err != nil {
		if apperrors.IsRelationMissing(err) {
			return apperrors.SchemaMissing(err)
		}
		return fmt.Errorf("failed to save document chunks: %w", err)
	}

	err := s.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", documentID).
		Update("chunks_count", len(chunks)).Error
	if err != nil {
		logger.Warn("failed to update chunks count", zap.Uint("document_id", documentID), zap.Error(err))
	}
	return nil
}

// SearchSimilarChunks 两级检索
// 先走向量检索，失败或无命中时降级为固定词的文本检索，
// 两级都失败返回空结果，从不向调用方抛错
func (s *Store) SearchSimilarChunks(ctx context.Context, queryEmbedding []float32, limit int) []SearchMatch {
	if limit == 0 {
		limit = s.cfg.SearchLimit
	}
	if limit == 0 {
		limit = 10
	}

	matches, err := s.vectorStore.Search(ctx, VectorSearchRequest{
		QueryEmbedding: queryEmbedding,
		Threshold:      s.cfg.SearchThreshold,
		Limit:          limit,
	})
	if err != nil {
		logger.Warn("vector search failed, falling back to text search", zap.Error(err))
	}
	if len(matches) > 0 {
		metrics.SearchRequests.WithLabelValues("vector").Inc()
		return matches
	}

	term := s.cfg.FallbackTerm
	if term == "" {
		term = "техническ"
	}
	fallback, err := s.fulltext.Search(ctx, FulltextSearchRequest{Term: term, Limit: limit})
	if err != nil {
		logger.Warn("fallback search failed", zap.Error(err))
		metrics.SearchRequests.WithLabelValues("empty").Inc()
		return []SearchMatch{}
	}
	if len(fallback) == 0 {
		metrics.SearchRequests.WithLabelValues("empty").Inc()
		return []SearchMatch{}
	}
	metrics.SearchRequests.WithLabelValues("fallback").Inc()
	return fallback
}

// ListDocuments 按上传时间倒序返回文档列表
// 表不存在视为空库，返回空列表
func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	err := s.db.WithContext(ctx).
		Omit("content").
		Order("upload_date DESC").
		Find(&docs).Error
	if err != nil {
		if apperrors.IsRelationMissing(err) {
			return []models.Document{}, nil
		}
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// GetDocument 按id返回文档元数据
func (s *Store) GetDocument(ctx context.Context, documentID uint) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).First(&doc, documentID).Error
	if err != nil {
		if apperrors.IsRelationMissing(err) {
			return nil, apperrors.SchemaMissing(err)
		}
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument 删除文档及其分块
// 分块删除失败不阻断文档行的删除，外部索引清理尽力而为
func (s *Store) DeleteDocument(ctx context.Context, documentID uint) error {
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&models.DocumentChunk{}).Error
	if err != nil {
		logger.Warn("failed to delete document chunks", zap.Uint("document_id", documentID), zap.Error(err))
	}

	err = s.db.WithContext(ctx).Delete(&models.Document{}, documentID).Error
	if err != nil {
		if apperrors.IsRelationMissing(err) {
			return apperrors.SchemaMissing(err)
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if err := s.vectorStore.RemoveDocument(ctx, documentID); err != nil {
		logger.Warn("failed to remove document from vector store", zap.Uint("document_id", documentID), zap.Error(err))
	}
	if err := s.fulltext.RemoveDocument(ctx, documentID); err != nil {
		logger.Warn("failed to remove document from fulltext index", zap.Uint("document_id", documentID), zap.Error(err))
	}
	return nil
}

// DatabaseStatus 知识库当前状态
type DatabaseStatus struct {
	DocumentsTable bool  `json:"documents_table"`
	ChunksTable    bool  `json:"chunks_table"`
	DocumentsCount int64 `json:"documents_count"`
	ChunksCount    int64 `json:"chunks_count"`
}

// CheckDatabaseStatus 检查表是否创建及各表行数
func (s *Store) CheckDatabaseStatus(ctx context.Context) DatabaseStatus {
	var status DatabaseStatus

	var docCount int64
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Count(&docCount).Error; err == nil {
		status.DocumentsTable = true
		status.DocumentsCount = docCount
	}

	var chunkCount int64
	if err := s.db.WithContext(ctx).Model(&models.DocumentChunk{}).Count(&chunkCount).Error; err == nil {
		status.ChunksTable = true
		status.ChunksCount = chunkCount
	}
	return status
}

// CheckDocumentsAvailability 知识库是否可用于检索
func (s *Store) CheckDocumentsAvailability(ctx context.Context) bool {
	status := s.CheckDatabaseStatus(ctx)
	return status.ChunksTable && status.ChunksCount > 0
}
