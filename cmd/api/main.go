package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ronith256/rag-agent/internal/api/handlers"
	"github.com/ronith256/rag-agent/internal/cache/redis"
	"github.com/ronith256/rag-agent/internal/evaluation"
	"github.com/ronith256/rag-agent/internal/llm"
	"github.com/ronith256/rag-agent/internal/metrics"
	"github.com/ronith256/rag-agent/internal/middleware/ratelimit"
	"github.com/ronith256/rag-agent/internal/pipeline"
	"github.com/ronith256/rag-agent/internal/relational"
	"github.com/ronith256/rag-agent/internal/retrieval"
	"github.com/ronith256/rag-agent/internal/storage/models"
	"github.com/ronith256/rag-agent/internal/storage/sqlite"
	"github.com/ronith256/rag-agent/pkg/config"
	appLogger "github.com/ronith256/rag-agent/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting RAG Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	var embeddingCache retrieval.EmbeddingCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.CacheTTL)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
		}
	}

	retrievalClient, err := retrieval.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.VectorDim,
		cfg.Milvus.TopK,
		llmClient,
		embeddingCache,
	)
	if err != nil {
		appLogger.Fatal("Failed to create retrieval client", zap.Error(err))
	}
	defer retrievalClient.Close()

	builder := pipeline.NewBuilder(llmClient, retrievalClient, func(sqlCfg *models.SQLConfig) (pipeline.RelationalDB, error) {
		return relational.Connect(sqlCfg)
	})

	collector := metrics.NewCollector(sqliteClient)

	runner := evaluation.NewRunner(sqliteClient, func(agent *models.Agent) (evaluation.Answerer, error) {
		return builder.Build(agent, nil)
	}, retrievalClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	agentHandler := handlers.NewAgentHandler(sqliteClient, cfg.Models)
	chatHandler := handlers.NewChatHandler(sqliteClient, builder, collector)
	wsHandler := handlers.NewWebSocketHandler(sqliteClient, builder, collector)
	evaluationHandler := handlers.NewEvaluationHandler(sqliteClient, sqliteClient, runner)
	metricsHandler := handlers.NewMetricsHandler(sqliteClient)

	api := app.Group("/api/v1")

	api.Post("/agents", agentHandler.CreateAgent)
	api.Get("/agents", agentHandler.ListAgents)
	api.Get("/agents/:id", agentHandler.GetAgent)
	api.Patch("/agents/:id", agentHandler.UpdateAgent)
	api.Get("/models", agentHandler.ListModels)

	api.Post("/agents/:id/chat", chatHandler.HandleChat)
	api.Get("/agents/:id/ws", websocket.New(wsHandler.HandleConnection))

	api.Post("/agents/:id/evaluate", evaluationHandler.SubmitEvaluation)
	api.Get("/evaluations/:job_id", evaluationHandler.GetJob)
	api.Get("/agents/:id/evaluations", evaluationHandler.ListRecords)

	api.Get("/agents/:id/metrics", metricsHandler.GetDailyMetrics)

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
