package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/metrics"
	"github.com/equipdesk/backend-go/internal/models"
)

// ProgressFunc 摄取进度回调，stage为给用户看的俄文描述
type ProgressFunc func(stage string, percent int)

// FileArchive 原始文件归档（对接MinIO，可选）
type FileArchive interface {
	Put(ctx context.Context, filename string, data []byte, contentType string) error
}

// EventPublisher 领域事件发布（对接Kafka，可选）
type EventPublisher interface {
	DocumentIngested(documentID uint, filename string, chunks int)
	DocumentDeleted(documentID uint)
}

// Pipeline 文档摄取流水线
// 提取、分块、逐块嵌入、落库，任一阶段失败则中止整个摄取
type Pipeline struct {
	store    *Store
	parser   *ParserManager
	chunker  *Chunker
	embedder Embedder
	archive  FileArchive
	events   EventPublisher
	cfg      config.RAGConfig
}

func NewPipeline(store *Store, embedder Embedder, cfg config.RAGConfig) *Pipeline {
	return &Pipeline{
		store:    store,
		parser:   NewParserManager(),
		chunker:  NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder: embedder,
		cfg:      cfg,
	}
}

// WithArchive 挂接原始文件归档
func (p *Pipeline) WithArchive(archive FileArchive) *Pipeline {
	p.archive = archive
	return p
}

// WithEvents 挂接事件发布
func (p *Pipeline) WithEvents(events EventPublisher) *Pipeline {
	p.events = events
	return p
}

// SupportedExtensions 透出解析器支持的扩展名
func (p *Pipeline) SupportedExtensions() []string {
	return p.parser.SupportedExtensions()
}

// Ingest 摄取一个上传文件
// 进度序列固定为 10/30/50/60，逐块嵌入期间在60..95之间推进，完成为100。
// 元数据保存成功后的失败会留下无分块的文档记录，属可接受状态，
// 用户可删除后重新上传。
func (p *Pipeline) Ingest(ctx context.Context, filename, mimeType string, data []byte, onProgress ProgressFunc) (*models.Document, error) {
	report := func(stage string, percent int) {
		if onProgress != nil {
			onProgress(stage, percent)
		}
	}
	start := time.Now()

	report("Извлечение текста из файла...", 10)
	content, err := p.parser.Extract(data, filename, mimeType)
	if err != nil {
		metrics.DocumentIngestFailures.Inc()
		return nil, err
	}

	report("Разбиение текста на фрагменты...", 30)
	chunks := p.chunker.Split(content)
	if len(chunks) == 0 {
		metrics.DocumentIngestFailures.Inc()
		return nil, fmt.Errorf("no text extracted from %s", filename)
	}

	report("Сохранение документа...", 50)
	doc := &models.Document{
		Filename:   filename,
		FileType:   mimeType,
		UploadDate: time.Now(),
		Content:    content,
	}
	if err := p.store.SaveDocumentMetadata(ctx, doc); err != nil {
		metrics.DocumentIngestFailures.Inc()
		return nil, err
	}

	if p.archive != nil {
		if err := p.archive.Put(ctx, filename, data, mimeType); err != nil {
			logger.Warn("failed to archive original file", zap.String("filename", filename), zap.Error(err))
		}
	}

	report("Генерация эмбеддингов...", 60)
	chunkRows := make([]models.DocumentChunk, 0, len(chunks))
	indexable := make([]IndexableChunk, 0, len(chunks))
	for i, chunk := range chunks {
		embedding, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			metrics.DocumentIngestFailures.Inc()
			return nil, err
		}

		embeddingJSON, err := json.Marshal(embedding)
		if err != nil {
			metrics.DocumentIngestFailures.Inc()
			return nil, fmt.Errorf("failed to encode embedding: %w", err)
		}
		metadataJSON, _ := json.Marshal(map[string]interface{}{
			"filename":    filename,
			"chunk_index": chunk.Index,
		})

		chunkRows = append(chunkRows, models.DocumentChunk{
			DocumentID: doc.ID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Text,
			Embedding:  string(embeddingJSON),
			Metadata:   string(metadataJSON),
		})
		indexable = append(indexable, IndexableChunk{
			ChunkIndex: chunk.Index,
			Content:    chunk.Text,
			Embedding:  embedding,
			Filename:   filename,
		})

		percent := 60 + int(math.Round(float64(i+1)/float64(len(chunks))*35))
		report(fmt.Sprintf("Обработка фрагмента %d из %d...", i+1, len(chunks)), percent)
	}

	if err := p.store.SaveDocumentChunks(ctx, doc.ID, chunkRows); err != nil {
		metrics.DocumentIngestFailures.Inc()
		return nil, err
	}
	doc.ChunksCount = len(chunkRows)

	for i := range indexable {
		indexable[i].ChunkID = chunkRows[i].ID
	}
	if err := p.store.vectorStore.IndexChunks(ctx, doc.ID, indexable); err != nil {
		logger.Warn("failed to index chunks in vector store", zap.Uint("document_id", doc.ID), zap.Error(err))
	}
	if err := p.store.fulltext.IndexChunks(ctx, doc.ID, indexable); err != nil {
		logger.Warn("failed to index chunks in fulltext index", zap.Uint("document_id", doc.ID), zap.Error(err))
	}

	if p.events != nil {
		p.events.DocumentIngested(doc.ID, filename, len(chunkRows))
	}
	metrics.DocumentsIngested.Inc()
	metrics.ChunksIngested.Add(float64(len(chunkRows)))

	logger.Info("document ingested",
		zap.String("filename", filename),
		zap.Uint("document_id", doc.ID),
		zap.Int("chunks", len(chunkRows)),
		zap.Duration("took", time.Since(start)))

	report("Готово!", 100)
	return doc, nil
}

// Delete 删除文档并广播事件
func (p *Pipeline) Delete(ctx context.Context, documentID uint) error {
	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if p.events != nil {
		p.events.DocumentDeleted(documentID)
	}
	return nil
}
