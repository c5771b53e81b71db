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

	"wenda-go/internal/config"
	"wenda-go/internal/handler"
	"wenda-go/internal/middleware"
	"wenda-go/internal/pipeline"
	"wenda-go/internal/ratelimit"
	"wenda-go/internal/repository"
	"wenda-go/internal/service"
	"wenda-go/pkg/database"
	"wenda-go/pkg/embedding"
	"wenda-go/pkg/es"
	"wenda-go/pkg/kafka"
	"wenda-go/pkg/llm"
	"wenda-go/pkg/log"
	"wenda-go/pkg/storage"
	"wenda-go/pkg/token"

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

	// 3. 初始化数据库、Redis、MinIO 与 Elasticsearch
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	archiveEnabled := cfg.MinIO.Endpoint != ""
	if archiveEnabled {
		storage.InitMinIO(cfg.MinIO)
	} else {
		log.Warnf("未配置 MinIO，原文归档与重建索引功能不可用")
	}
	esClient, err := es.NewClient(cfg.Elasticsearch, cfg.Embedding.Dimensions)
	if err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB, database.RDB)

	// 5. 初始化限流器：两个独立窗口（分钟级 + 天级），全部通过才放行
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var counter ratelimit.Counter
	if cfg.RateLimit.Store == "redis" {
		counter = ratelimit.NewRedisCounter(database.RDB)
		log.Info("限流计数器使用 Redis（多实例共享配额）")
	} else {
		memCounter := ratelimit.NewMemoryCounter()
		dayWindow := time.Duration(cfg.RateLimit.DayWindowSec) * time.Second
		memCounter.StartSweeper(ctx, time.Duration(cfg.RateLimit.SweepIntervalMi)*time.Minute, dayWindow)
		counter = memCounter
	}
	limiter := ratelimit.New(counter,
		ratelimit.Window{Kind: "minute", Limit: cfg.RateLimit.MinuteLimit, Duration: time.Duration(cfg.RateLimit.MinuteWindowSec) * time.Second},
		ratelimit.Window{Kind: "day", Limit: cfg.RateLimit.DayLimit, Duration: time.Duration(cfg.RateLimit.DayWindowSec) * time.Second},
	)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.Admin.JWTSecret, cfg.Admin.TokenExpireHour)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	retrievalService := service.NewRetrievalService(embeddingClient, esClient)
	chatService := service.NewChatService(retrievalService, llmClient, conversationRepo, cfg.LLM, cfg.RAG)

	// 7. 初始化文档处理管道 (Processor)
	processor := pipeline.NewProcessor(
		embeddingClient,
		esClient,
		docRepo,
		cfg.MinIO,
		cfg.Embedding,
		cfg.RAG.ChunkMaxChars,
		archiveEnabled,
	)

	// 8. 启动后台 Kafka 消费者（重建索引任务）
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
		go kafka.StartConsumer(ctx, cfg.Kafka, processor)
	}

	// 9. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 10. 注册路由
	adminAuth := middleware.AdminAuth(cfg.Admin, jwtManager)
	ingestHandler := handler.NewIngestHandler(processor)
	chatHandler := handler.NewChatHandler(chatService)
	streamHandler := handler.NewStreamHandler(chatService, limiter)
	conversationHandler := handler.NewConversationHandler(conversationRepo)
	adminHandler := handler.NewAdminHandler(cfg.Admin, jwtManager, processor, cfg.Kafka.Enabled)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiV1 := r.Group("/api/v1")
	{
		// 导入路由，需要管理凭证
		apiV1.POST("/ingest", adminAuth, ingestHandler.Ingest)

		// 聊天路由，限流在任何昂贵操作之前执行
		apiV1.POST("/chat", middleware.RateLimit(limiter), chatHandler.Chat)

		// 对话账本读取
		apiV1.GET("/conversations/:id/messages", conversationHandler.ListMessages)

		// 管理路由组
		admin := apiV1.Group("/admin")
		{
			admin.POST("/token", adminHandler.IssueToken)

			authed := admin.Group("/")
			authed.Use(adminAuth)
			{
				authed.POST("/reindex/:documentId", adminHandler.Reindex)
				authed.DELETE("/documents/:documentId", adminHandler.DeleteDocument)
			}
		}
	}

	// 聊天路由 (WebSocket)
	r.GET("/chat/stream", streamHandler.Handle)

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

	// 设置一个5秒的超时上下文
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
