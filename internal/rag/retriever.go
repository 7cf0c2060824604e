package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/logger"
)

// Retriever 按用户问题构建文档上下文
// 检索链路的任何失败都退化为空上下文，聊天在无知识库时照常工作
type Retriever struct {
	store    *Store
	embedder Embedder
	cfg      config.RAGConfig
}

func NewRetriever(store *Store, embedder Embedder, cfg config.RAGConfig) *Retriever {
	return &Retriever{store: store, embedder: embedder, cfg: cfg}
}

// BuildContext 返回拼装好的文档上下文，无相关文档时返回空串
func (r *Retriever) BuildContext(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return ""
	}

	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("query embedding failed, skipping document context", zap.Error(err))
		return ""
	}

	matches := r.store.SearchSimilarChunks(ctx, embedding, r.cfg.SearchLimit)
	if len(matches) == 0 {
		return ""
	}

	limit := r.cfg.ContextLimit
	if limit == 0 {
		limit = 5
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	blocks := make([]string, 0, len(matches))
	for i, match := range matches {
		blocks = append(blocks, fmt.Sprintf("Документ %d (схожесть: %.2f):\n%s",
			i+1, match.Similarity, match.Content))
	}

	return "Контекст из документов:\n\n" + strings.Join(blocks, "\n\n---\n\n")
}
