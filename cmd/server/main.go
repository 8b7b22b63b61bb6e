package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"realtime_chat/internal/config"
	"realtime_chat/internal/handler"
	"realtime_chat/internal/middleware"
	"realtime_chat/internal/realtime"
	"realtime_chat/internal/repository"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	// In-memory realtime-состояние: реестр сессий, индекс подписок,
	// fan-out. Живет пока жив процесс, пересобирается при reconnect.
	registry := realtime.NewSessionRegistry()
	index := realtime.NewMembershipIndex()
	broadcaster := realtime.NewBroadcaster(registry, index, appLogger)

	// Инициализация сервисов
	services := service.NewServices(repos, cfg, registry, index, broadcaster, appLogger)

	// Протокольный обработчик realtime-соединений
	connHandler := realtime.NewConnectionHandler(
		registry, index, broadcaster,
		services.Room, services.Message, services.Presence,
		cfg.Chat.HistoryLimit, appLogger,
	)

	// Инициализация middleware
	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, cfg, registry, broadcaster, connHandler, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Сначала закрываем realtime-соединения, чтобы disconnect cleanup
	// успел отработать до остановки HTTP-сервера
	broadcaster.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Публичные endpoints
		public := v1.Group("/auth")
		{
			public.POST("/register", rateLimitMiddleware.Limit(), handlers.Auth.Register)
			public.POST("/login", rateLimitMiddleware.Limit(), handlers.Auth.Login)
			public.POST("/refresh", handlers.Auth.RefreshToken)
			public.POST("/logout", handlers.Auth.Logout)
		}

		// Просмотр комнат доступен и без токена; identity при его
		// наличии подхватывается опционально
		browse := v1.Group("/rooms")
		browse.Use(authMiddleware.OptionalAuth())
		{
			browse.GET("", handlers.Room.List)
			browse.GET("/:name", handlers.Room.GetByName)
		}

		// Защищенные endpoints
		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			rooms := protected.Group("/rooms")
			{
				rooms.POST("", handlers.Room.Create)
				rooms.GET("/my", handlers.Room.MyRooms)
				rooms.DELETE("/:name", handlers.Room.Delete)
				rooms.POST("/:name/join", handlers.Room.Join)
				rooms.POST("/:name/leave", handlers.Room.Leave)
				rooms.GET("/:name/participants", handlers.Room.Participants)
				rooms.DELETE("/:name/participants/:userId", handlers.Room.RemoveParticipant)
				rooms.PUT("/:name/participants/:userId/role", handlers.Room.ChangeRole)
				rooms.GET("/:name/messages", handlers.Room.Messages)
				rooms.GET("/:name/audit", handlers.Room.AuditTrail)
			}

			presence := protected.Group("/presence")
			{
				presence.GET("/rooms", handlers.Presence.ActiveRooms)
				presence.GET("/rooms/:name", handlers.Presence.RoomStats)
			}
		}
	}

	// WebSocket endpoint для чата
	router.GET("/ws/chat", handlers.WebSocket.HandleChat)

	return router
}
