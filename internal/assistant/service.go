package assistant

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/metrics"
	"github.com/equipdesk/backend-go/internal/models"
	"github.com/equipdesk/backend-go/internal/rag"
)

// chatClient 便于测试的最小客户端接口，*openai.Client满足它
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// HistoryMessage 对话历史中的一条消息
type HistoryMessage struct {
	Sender string `json:"sender" validate:"required,oneof=user ai"`
	Text   string `json:"text" validate:"required"`
}

// ChatRequest 一次对话请求
type ChatRequest struct {
	Message  string           `json:"message" validate:"required,max=4000"`
	History  []HistoryMessage `json:"history" validate:"dive"`
	Employee *models.Employee `json:"-" validate:"required"`
	Device   *models.Device   `json:"-" validate:"required"`
}

// ChatResult 对话结果
// 模型输出以[TICKET]开头时剥离标记并单独返回工单文本
type ChatResult struct {
	Reply     string `json:"reply"`
	Ticket    string `json:"ticket,omitempty"`
	HasTicket bool   `json:"has_ticket"`
}

// Service 对话编排服务
// 先检查知识库可用性，再检索文档上下文，最后调用聊天模型
type Service struct {
	client    chatClient
	store     *rag.Store
	retriever *rag.Retriever
	validate  *validator.Validate
	cfg       config.AIConfig
}

func NewService(store *rag.Store, retriever *rag.Retriever, cfg config.AIConfig) *Service {
	var client chatClient
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey != "" {
		clientConfig := openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(clientConfig)
	}

	return &Service{
		client:    client,
		store:     store,
		retriever: retriever,
		validate:  validator.New(),
		cfg:       cfg,
	}
}

// Ready 聊天模型是否已配置
func (s *Service) Ready() bool {
	return s.client != nil
}

// Chat 处理一次用户消息
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeValidationFailed, "Некорректный запрос").WithCause(err)
	}
	if s.client == nil {
		return nil, apperrors.NewExternalError(apperrors.ErrCodeExternalService, "AI сервис не настроен")
	}

	start := time.Now()

	// 无chunk时跳过检索，避免空库下的无谓嵌入调用
	documentContext := ""
	if s.store.CheckDocumentsAvailability(ctx) {
		documentContext = s.retriever.BuildContext(ctx, req.Message)
	} else {
		logger.Debug("knowledge base empty, skipping document context")
	}

	systemPrompt := buildSystemPrompt(promptInput{
		Employee:          req.Employee,
		Device:            req.Device,
		NameAndPatronymic: NameAndPatronymic(req.Employee.FIO),
		FirstMessage:      len(req.History) == 0,
		DocumentContext:   documentContext,
	})

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range req.History {
		role := openai.ChatMessageRoleAssistant
		if msg.Sender == "user" {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: msg.Text})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Message,
	})

	model := s.cfg.ChatModel
	if model == "" {
		model = "deepseek-chat"
	}
	maxTokens := s.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(s.cfg.Temperature),
	})
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		logger.Error("chat completion failed", zap.Error(err))
		return nil, apperrors.NewExternalError(apperrors.ErrCodeExternalService, "Сервис AI временно недоступен").WithCause(err)
	}

	reply := "Ошибка ответа от AI"
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		reply = resp.Choices[0].Message.Content
	}

	result := &ChatResult{Reply: reply}
	if ticket, ok := ParseTicket(reply); ok {
		result.Ticket = ticket
		result.HasTicket = true
		result.Reply = ticket
	}

	metrics.ChatRequests.WithLabelValues("success").Inc()
	metrics.ChatDuration.Observe(time.Since(start).Seconds())
	logger.Info("chat completed",
		zap.Uint("employee_id", req.Employee.ID),
		zap.Bool("has_context", documentContext != ""),
		zap.Bool("has_ticket", result.HasTicket),
		zap.Duration("took", time.Since(start)))

	return result, nil
}
