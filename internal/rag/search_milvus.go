package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/logger"
	"go.uber.org/zap"
)

// milvusVectorStore 基于Milvus的向量检索实现
// chunk在摄取时写入集合，检索用COSINE度量，分数即相似度
type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(cfg config.MilvusConfig) (VectorStore, error) {
	address := cfg.Address
	if address == "" {
		address = "localhost:19530"
	}
	vectorSize := cfg.VectorSize
	if vectorSize == 0 {
		vectorSize = 1536
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "document_chunks"
	}
	dbName := cfg.Database
	if dbName == "" {
		dbName = "default"
	}

	milvusClient, err := client.NewClient(context.Background(), client.Config{
		Address:       address,
		DBName:        dbName,
		Username:      cfg.Username,
		Password:      cfg.Password,
		EnableTLSAuth: cfg.TLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   collection,
		vectorSize:   vectorSize,
	}, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Document chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     false,
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "content",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     "vector",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", s.vectorSize),
				},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	index, err = entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if err != nil {
		index, err = entity.NewIndexIvfFlat(entity.COSINE, 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		logger.Warn("milvus index creation failed", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	ids := make([]int64, 0, len(chunks))
	documentIDs := make([]int64, 0, len(chunks))
	indexes := make([]int64, 0, len(chunks))
	contents := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		embedding := chunk.Embedding
		if len(embedding) != s.vectorSize {
			// 维度不一致时填充或截断，混用模型的风险由调用方承担
			aligned := make([]float32, s.vectorSize)
			copy(aligned, embedding)
			embedding = aligned
		}
		ids = append(ids, int64(chunk.ChunkID))
		documentIDs = append(documentIDs, int64(documentID))
		indexes = append(indexes, int64(chunk.ChunkIndex))
		contents = append(contents, chunk.Content)
		vectors = append(vectors, embedding)
	}

	_, err := s.milvusClient.Insert(ctx, s.collection, "",
		entity.NewColumnInt64("id", ids),
		entity.NewColumnInt64("document_id", documentIDs),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus insert failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("milvus flush failed", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) RemoveDocument(ctx context.Context, documentID uint) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	expr := fmt.Sprintf("document_id == %d", documentID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("milvus flush failed", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.Limit == 0 {
		req.Limit = 10
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(req.QueryEmbedding)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"document_id", "content"},
		[]entity.Vector{queryVector},
		"vector",
		entity.COSINE,
		req.Limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return nil, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	var ids []int64
	if idCol, ok := result.IDs.(*entity.ColumnInt64); ok {
		ids = idCol.Data()
	}
	var documentIDs []int64
	var contents []string
	for _, field := range result.Fields {
		switch field.Name() {
		case "document_id":
			if col, ok := field.(*entity.ColumnInt64); ok {
				documentIDs = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		}
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		var match SearchMatch
		if i < len(ids) {
			match.ChunkID = uint(ids[i])
		}
		if i < len(documentIDs) {
			match.DocumentID = uint(documentIDs[i])
		}
		if i < len(contents) {
			match.Content = contents[i]
		}
		if i < len(result.Scores) {
			match.Similarity = float64(result.Scores[i])
		}
		// 阈值过滤在客户端完成，与数据库实现语义一致
		if match.Similarity >= req.Threshold {
			matches = append(matches, match)
		}
	}

	sortMatchesBySimilarity(matches)
	return matches, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}
