package assistant

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/equipdesk/backend-go/internal/config"
	apperrors "github.com/equipdesk/backend-go/internal/errors"
	"github.com/equipdesk/backend-go/internal/models"
	"github.com/equipdesk/backend-go/internal/rag"
)

type stubVectorStore struct {
	matches []rag.SearchMatch
}

func (s *stubVectorStore) IndexChunks(ctx context.Context, documentID uint, chunks []rag.IndexableChunk) error {
	return nil
}
func (s *stubVectorStore) RemoveDocument(ctx context.Context, documentID uint) error { return nil }
func (s *stubVectorStore) Search(ctx context.Context, req rag.VectorSearchRequest) ([]rag.SearchMatch, error) {
	return s.matches, nil
}
func (s *stubVectorStore) Ready() bool { return true }

type stubFulltext struct{}

func (s *stubFulltext) IndexChunks(ctx context.Context, documentID uint, chunks []rag.IndexableChunk) error {
	return nil
}
func (s *stubFulltext) RemoveDocument(ctx context.Context, documentID uint) error { return nil }
func (s *stubFulltext) Search(ctx context.Context, req rag.FulltextSearchRequest) ([]rag.SearchMatch, error) {
	return nil, nil
}
func (s *stubFulltext) Ready() bool { return true }

type stubEmbedder struct{ called bool }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	s.called = true
	return []float32{0.1}, nil
}
func (s *stubEmbedder) Ready() bool { return true }

type stubChatClient struct {
	reply   string
	err     error
	lastReq openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: s.reply}},
		},
	}, nil
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{
		ChatModel:   "deepseek-chat",
		MaxTokens:   2000,
		Temperature: 0.8,
	}
}

// newTestService 构造带mock知识库的服务，chunksCount控制可用性检查结果
func newTestService(t *testing.T, chunksCount int, matches []rag.SearchMatch, client *stubChatClient, embedder *stubEmbedder) *Service {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "document_chunks"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(chunksCount))

	ragCfg := config.RAGConfig{
		SearchThreshold: 0.5,
		SearchLimit:     10,
		ContextLimit:    5,
		FallbackTerm:    "техническ",
		FallbackScore:   0.6,
	}
	store := rag.NewStore(db, &stubVectorStore{matches: matches}, &stubFulltext{}, ragCfg)
	retriever := rag.NewRetriever(store, embedder, ragCfg)

	service := NewService(store, retriever, testAIConfig())
	service.client = client
	return service
}

func testEmployee() *models.Employee {
	return &models.Employee{ID: 1, TN: "12345", FIO: "Иванов Иван Иванович"}
}

func testDevice() *models.Device {
	return &models.Device{ID: 2, EmployeeID: 1, Nomenclature: "Принтер", Status: "исправен", CTC: 85}
}

func TestService_Chat_ValidationError(t *testing.T) {
	service := NewService(nil, nil, testAIConfig())
	service.client = &stubChatClient{}

	_, err := service.Chat(context.Background(), ChatRequest{
		Message:  "",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeValidationFailed, appErr.Code)
}

func TestService_Chat_FirstMessageGreeting(t *testing.T) {
	client := &stubChatClient{reply: "Здравствуйте, Иван Иванович!"}
	service := newTestService(t, 0, nil, client, &stubEmbedder{})

	result, err := service.Chat(context.Background(), ChatRequest{
		Message:  "привет",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Здравствуйте, Иван Иванович!", result.Reply)
	assert.False(t, result.HasTicket)

	require.NotEmpty(t, client.lastReq.Messages)
	system := client.lastReq.Messages[0]
	assert.Equal(t, openai.ChatMessageRoleSystem, system.Role)
	assert.Contains(t, system.Content, `"Здравствуйте, Иван Иванович!"`)
	assert.Equal(t, "deepseek-chat", client.lastReq.Model)
	assert.Equal(t, 2000, client.lastReq.MaxTokens)
	assert.InDelta(t, 0.8, float64(client.lastReq.Temperature), 1e-6)
}

func TestService_Chat_HistoryMapping(t *testing.T) {
	client := &stubChatClient{reply: "ответ"}
	service := newTestService(t, 0, nil, client, &stubEmbedder{})

	_, err := service.Chat(context.Background(), ChatRequest{
		Message: "третий вопрос",
		History: []HistoryMessage{
			{Sender: "user", Text: "первый вопрос"},
			{Sender: "ai", Text: "первый ответ"},
		},
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.NoError(t, err)

	msgs := client.lastReq.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Equal(t, "третий вопрос", msgs[3].Content)

	// 有历史时不требуется приветствие
	assert.NotContains(t, msgs[0].Content, "КРИТИЧЕСКИ ВАЖНО")
}

func TestService_Chat_TicketMarker(t *testing.T) {
	client := &stubChatClient{reply: "[TICKET] Требуется замена картриджа в принтере"}
	service := newTestService(t, 0, nil, client, &stubEmbedder{})

	result, err := service.Chat(context.Background(), ChatRequest{
		Message:  "создай обращение",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.NoError(t, err)
	assert.True(t, result.HasTicket)
	assert.Equal(t, "Требуется замена картриджа в принтере", result.Ticket)
	assert.Equal(t, "Требуется замена картриджа в принтере", result.Reply)
}

func TestService_Chat_SkipsRetrievalWhenKnowledgeBaseEmpty(t *testing.T) {
	client := &stubChatClient{reply: "ответ"}
	embedder := &stubEmbedder{}
	service := newTestService(t, 0, nil, client, embedder)

	_, err := service.Chat(context.Background(), ChatRequest{
		Message:  "вопрос",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.NoError(t, err)
	assert.False(t, embedder.called)
	assert.NotContains(t, client.lastReq.Messages[0].Content, "ДОПОЛНИТЕЛЬНАЯ ИНФОРМАЦИЯ")
}

func TestService_Chat_InjectsDocumentContext(t *testing.T) {
	client := &stubChatClient{reply: "ответ по документам"}
	matches := []rag.SearchMatch{{ChunkID: 1, Similarity: 0.88, Content: "Инструкция по замене картриджа"}}
	service := newTestService(t, 12, matches, client, &stubEmbedder{})

	_, err := service.Chat(context.Background(), ChatRequest{
		Message:  "как заменить картридж",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.NoError(t, err)

	system := client.lastReq.Messages[0].Content
	assert.Contains(t, system, "=== ДОПОЛНИТЕЛЬНАЯ ИНФОРМАЦИЯ ИЗ ДОКУМЕНТОВ ===")
	assert.Contains(t, system, "Инструкция по замене картриджа")
	assert.Contains(t, system, "схожесть: 0.88")
}

func TestService_Chat_ExternalError(t *testing.T) {
	client := &stubChatClient{err: errors.New("gateway timeout")}
	service := newTestService(t, 0, nil, client, &stubEmbedder{})

	_, err := service.Chat(context.Background(), ChatRequest{
		Message:  "вопрос",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperrors.ErrCodeExternalService, appErr.Code)
}

func TestService_Chat_NotConfigured(t *testing.T) {
	service := NewService(nil, nil, config.AIConfig{})

	_, err := service.Chat(context.Background(), ChatRequest{
		Message:  "вопрос",
		Employee: testEmployee(),
		Device:   testDevice(),
	})
	require.Error(t, err)
	assert.False(t, service.Ready())
}
