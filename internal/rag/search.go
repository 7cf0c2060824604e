package rag

import (
	"context"
	"sort"
)

// SearchMatch 检索结果
type SearchMatch struct {
	ChunkID    uint                   `json:"id"`
	DocumentID uint                   `json:"document_id"`
	Content    string                 `json:"content"`
	Filename   string                 `json:"filename,omitempty"`
	Similarity float64                `json:"similarity"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// VectorSearchRequest 向量检索请求
type VectorSearchRequest struct {
	QueryEmbedding []float32
	Threshold      float64 // 仅返回相似度 >= Threshold 的结果
	Limit          int
}

// VectorStore 向量存储抽象
// 数据库实现依赖chunk写入Postgres，IndexChunks为空操作；
// Milvus实现在索引时additionally写入集合
type VectorStore interface {
	IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error
	RemoveDocument(ctx context.Context, documentID uint) error
	Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error)
	Ready() bool
}

// IndexableChunk 向量索引用的分块结构
type IndexableChunk struct {
	ChunkID    uint
	ChunkIndex int
	Content    string
	Embedding  []float32
	Filename   string
}

// FulltextSearchRequest 降级文本检索请求
type FulltextSearchRequest struct {
	Term  string
	Limit int
}

// FulltextSearcher 降级文本检索抽象
// 数据库实现直接査document_chunks表，IndexChunks为空操作；
// Elasticsearch实现维护自己的索引
type FulltextSearcher interface {
	IndexChunks(ctx context.Context, documentID uint, chunks []IndexableChunk) error
	RemoveDocument(ctx context.Context, documentID uint) error
	Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error)
	Ready() bool
}

func sortMatchesBySimilarity(matches []SearchMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
}
