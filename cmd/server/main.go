// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courseqa-go/internal/config"
	"courseqa-go/internal/handler"
	"courseqa-go/internal/middleware"
	"courseqa-go/internal/model"
	"courseqa-go/internal/pipeline"
	"courseqa-go/internal/repository"
	"courseqa-go/internal/service"
	"courseqa-go/pkg/database"
	"courseqa-go/pkg/embedding"
	"courseqa-go/pkg/es"
	"courseqa-go/pkg/kafka"
	"courseqa-go/pkg/llm"
	"courseqa-go/pkg/log"
	"courseqa-go/pkg/retry"
	"courseqa-go/pkg/storage"
	"courseqa-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、MinIO 和 Elasticsearch
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	store, err := es.NewStore(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}

	// 4. 初始化 Repository
	videoRepo := repository.NewVideoRepository(database.DB)
	chunkRepo := repository.NewChunkRepository(database.DB, database.RDB, store)
	sessionRepo := repository.NewSessionRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret)
	policy := retry.Policy{
		MaxAttempts: cfg.RAG.RetryMaxAttempts,
		BaseDelay:   cfg.RAG.RetryBaseDelay(),
		MaxDelay:    8 * time.Second,
	}
	embeddingClient := embedding.NewClient(cfg.Embedding, policy)
	llmClient := llm.NewClient(cfg.LLM, policy)
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	sessionService := service.NewSessionService(sessionRepo)
	retrievalService := service.NewRetrievalService(embeddingClient, chunkRepo, cfg.RAG.TopK, cfg.RAG.MinSimilarity)
	answerService := service.NewAnswerService(llmClient, cfg.LLM.Prompt, cfg.RAG.HistoryWindow)
	chatService := service.NewChatService(sessionService, retrievalService, answerService, producer, cfg.RAG.HistoryWindow, cfg.LLM.Prompt.NoResultText)

	// 6. 初始化摄取管道 (Processor)
	chunker := pipeline.NewChunker(cfg.RAG.ChunkWordBudget, cfg.RAG.MaxChunkSeconds)
	processor := pipeline.NewProcessor(chunker, embeddingClient, videoRepo, chunkRepo, cfg.Embedding.Model)

	// 7. 启动后台 Kafka 消费者，消费转写完成事件
	fetch := func(ctx context.Context, objectName string) (model.Transcript, error) {
		return storage.FetchTranscript(ctx, cfg.MinIO.BucketName, objectName)
	}
	go kafka.StartConsumer(cfg.Kafka, fetch, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Chat 路由组，学生提问与反馈，需要认证
		chat := apiV1.Group("/chat")
		chat.Use(middleware.AuthMiddleware(jwtManager))
		{
			chatHandler := handler.NewChatHandler(chatService, sessionService)
			sessionHandler := handler.NewSessionHandler(sessionService)

			chat.POST("/ask", chatHandler.Ask)
			chat.POST("/messages/:id/feedback", chatHandler.RecordFeedback)
			chat.GET("/sessions", sessionHandler.List)
			chat.GET("/sessions/:id/messages", sessionHandler.History)
			chat.PUT("/sessions/:id", sessionHandler.Rename)
			chat.DELETE("/sessions/:id", sessionHandler.Delete)
		}

		// Video 路由组，摄取接口仅限内部服务调用
		videos := apiV1.Group("/videos")
		videos.Use(middleware.AuthMiddleware(jwtManager), middleware.ServiceAuthMiddleware())
		{
			ingestHandler := handler.NewIngestHandler(processor, videoRepo, chunkRepo)
			videos.POST("/:videoId/ingest", ingestHandler.Ingest)
			videos.DELETE("/:videoId/chunks", ingestHandler.DeleteChunks)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
