package rag

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/metrics"
)

// Embedder 定义文本向量化接口
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Ready() bool
}

// embeddingClient 便于测试的最小客户端接口，*openai.Client满足它
type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedder 通过OpenAI兼容网关生成嵌入向量
// 模型按顺序尝试：主模型失败后换备用模型，全部失败返回EMBEDDING_UNAVAILABLE
type OpenAIEmbedder struct {
	client   embeddingClient
	models   []string
	maxChars int
}

// NewOpenAIEmbedder 创建嵌入向量生成器
func NewOpenAIEmbedder(cfg config.AIConfig) Embedder {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return &OpenAIEmbedder{}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	models := cfg.EmbeddingModels
	if len(models) == 0 {
		models = []string{"text-embedding-ada-002", "text-embedding-3-small"}
	}
	maxChars := cfg.EmbedMaxChars
	if maxChars <= 0 {
		maxChars = 8000
	}

	return &OpenAIEmbedder{
		client:   openai.NewClientWithConfig(clientConfig),
		models:   models,
		maxChars: maxChars,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text is empty")
	}
	if e.client == nil {
		return nil, apperrors.EmbeddingUnavailable(errors.New("embedding provider not configured"))
	}

	// 截断以遵守上游输入限制
	input := truncateRunes(text, e.maxChars)

	var lastErr error
	for i, model := range e.models {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(model),
			Input: input,
		})
		if err != nil {
			lastErr = err
			logger.Warn("Модель эмбеддингов недоступна",
				zap.String("model", model),
				zap.Bool("fallback_available", i+1 < len(e.models)),
				zap.Error(err))
			continue
		}
		if len(resp.Data) == 0 {
			lastErr = errors.New("embedding response empty")
			continue
		}

		if i > 0 {
			metrics.EmbeddingFallbacks.Inc()
		}
		embedding := resp.Data[0].Embedding
		result := make([]float32, len(embedding))
		copy(result, embedding)
		return result, nil
	}

	return nil, apperrors.EmbeddingUnavailable(lastErr)
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
