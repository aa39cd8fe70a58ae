package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamtracker/backend/config"
	"streamtracker/backend/internal/authservice"
	"streamtracker/backend/internal/cache"
	"streamtracker/backend/internal/collab"
	"streamtracker/backend/internal/httpapi/handlers"
	"streamtracker/backend/internal/httpapi/middleware"
	"streamtracker/backend/internal/logging"
	"streamtracker/backend/internal/store"
	"streamtracker/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	defer rdb.Close()

	db, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		logger.Fatal("mysql init failed", zap.Error(err))
	}

	// SyncProducer requires Return.Successes.
	kafkaCfg := sarama.NewConfig()
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		logger.Fatal("kafka producer init failed", zap.Error(err))
	}
	defer producer.Close()

	kafkaSem := collab.NewSemaphoreControl(100)
	updateSem := collab.NewSemaphoreControl(100)

	dispatcher := collab.NewKafkaDispatcher(producer, cfg.Kafka.Topic, kafkaSem, logger,
		collab.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		})

	locks := cache.NewRedisLocks(rdb, collab.LockTTL)
	presence := cache.NewRedisPresence(rdb)
	streams := store.NewStreamStore(db)
	users := store.NewUserStore(db)

	hub := ws.NewHub(dispatcher, logger)
	svc := collab.NewService(locks, presence, streams, hub, logger)
	manager := ws.NewManager(hub, svc, updateSem, logger)

	issuer := authservice.NewTokenIssuer(cfg.Auth.Secret, 30*time.Minute, 7*24*time.Hour)
	authHandler := authservice.NewHandler(users, issuer, logger)
	streamHandler := handlers.NewStreamHandler(streams, hub, logger)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	v1 := r.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		api := v1.Group("/streams")
		api.Use(middleware.Auth(issuer))
		api.GET("", streamHandler.List)
		api.POST("", streamHandler.Create)
		api.GET("/:id", streamHandler.Get)
		api.PUT("/:id", streamHandler.Update)
		api.DELETE("/:id", streamHandler.Delete)
	}

	collabGroup := r.Group("/collab")
	collabGroup.Use(middleware.Auth(issuer))
	collabGroup.GET("/ws", manager.WebSocketConnect)

	logger.Info("stream server listening", zap.Int("port", cfg.Running.Port))
	if err := r.Run(fmt.Sprintf(":%d", cfg.Running.Port)); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
