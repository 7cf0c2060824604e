package bootstrap

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/app/controllers"
	"github.com/equipdesk/backend-go/internal/assistant"
	"github.com/equipdesk/backend-go/internal/auth"
	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/consul"
	"github.com/equipdesk/backend-go/internal/database"
	"github.com/equipdesk/backend-go/internal/events"
	"github.com/equipdesk/backend-go/internal/logger"
	"github.com/equipdesk/backend-go/internal/rag"
	"github.com/equipdesk/backend-go/internal/storage"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks []func() error
	registry     *consul.Registry
}

// Init bootstraps configuration, logger, database connections and the
// RAG/assistant services required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	app := &App{}

	if _, err := database.InitDB(); err != nil {
		return nil, err
	}
	app.cleanupTasks = append(app.cleanupTasks, database.CloseDB)

	// Redis (optional). Failure shouldn't block the app.
	if _, err := database.InitRedis(); err != nil {
		logger.Warn("Failed to initialize Redis", zap.Error(err))
	} else if database.RedisClient != nil {
		app.cleanupTasks = append(app.cleanupTasks, database.CloseRedis)
	}

	// 检索后端按配置选择，默认走Postgres
	var vectorStore rag.VectorStore
	switch cfg.VectorStore.Provider {
	case "milvus":
		store, err := rag.NewMilvusVectorStore(cfg.VectorStore.Milvus)
		if err != nil {
			logger.Warn("Failed to initialize Milvus, falling back to database vector store", zap.Error(err))
			vectorStore = rag.NewDatabaseVectorStore(database.DB)
		} else {
			vectorStore = store
		}
	default:
		vectorStore = rag.NewDatabaseVectorStore(database.DB)
	}

	var fulltext rag.FulltextSearcher
	switch cfg.Search.Provider {
	case "elasticsearch":
		searcher, err := rag.NewElasticsearchSearcher(cfg.Search.Elasticsearch, cfg.RAG.FallbackScore)
		if err != nil {
			logger.Warn("Failed to initialize Elasticsearch, falling back to database search", zap.Error(err))
			fulltext = rag.NewDatabaseFulltextSearcher(database.DB, cfg.RAG.FallbackScore)
		} else {
			fulltext = searcher
		}
	default:
		fulltext = rag.NewDatabaseFulltextSearcher(database.DB, cfg.RAG.FallbackScore)
	}

	store := rag.NewStore(database.DB, vectorStore, fulltext, cfg.RAG)
	embedder := rag.NewOpenAIEmbedder(cfg.AI)
	pipeline := rag.NewPipeline(store, embedder, cfg.RAG)
	retriever := rag.NewRetriever(store, embedder, cfg.RAG)

	// MinIO (optional). Failure shouldn't block the app.
	if cfg.Storage.Provider == "minio" {
		archive, err := storage.NewMinioArchive(cfg.Storage)
		if err != nil {
			logger.Warn("Failed to initialize MinIO", zap.Error(err))
		} else {
			pipeline.WithArchive(archive)
		}
	}

	// Kafka (optional). Failure shouldn't block the app.
	var producer *events.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		p, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			producer = p
			pipeline.WithEvents(producer)
			app.cleanupTasks = append(app.cleanupTasks, producer.Close)
		}
	}

	assistantService := assistant.NewService(store, retriever, cfg.AI)
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.TTL)*time.Second)

	controllers.Wire(controllers.Deps{
		JWT:       jwtService,
		Store:     store,
		Pipeline:  pipeline,
		Assistant: assistantService,
		Progress:  rag.NewProgressTracker(database.RedisClient),
		Events:    producer,
	})

	// Consul registration (optional)
	registry, err := consul.NewRegistry(cfg.Consul)
	if err != nil {
		logger.Warn("Failed to initialize Consul client", zap.Error(err))
	} else {
		app.registry = registry
		if err := registry.Register(cfg); err != nil {
			logger.Warn("Failed to register service with Consul", zap.Error(err))
		}
	}

	logger.Info("application bootstrap complete",
		zap.String("port", cfg.Server.Port),
		zap.String("env", cfg.Server.Env),
		zap.String("vector_store", cfg.VectorStore.Provider),
		zap.String("search", cfg.Search.Provider))
	return app, nil
}

// Shutdown releases resources in reverse initialization order.
func (a *App) Shutdown() {
	if a.registry != nil {
		if err := a.registry.Deregister(); err != nil {
			logger.Warn("Failed to deregister from Consul", zap.Error(err))
		}
	}
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Error("cleanup task failed", zap.Error(err))
		}
	}
	logger.Sync()
}
