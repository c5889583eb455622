// Package bootstrap 负责组装整个应用：配置、日志、基础设施、路由与优雅关闭。
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/Actiegen/collab-whiteboard-backend/internal/handler/http"
	wsHandler "github.com/Actiegen/collab-whiteboard-backend/internal/handler/websocket"
	"github.com/Actiegen/collab-whiteboard-backend/internal/hub"
	"github.com/Actiegen/collab-whiteboard-backend/internal/infra/blob"
	gormpersistence "github.com/Actiegen/collab-whiteboard-backend/internal/infra/persistence/gorm"
	"github.com/Actiegen/collab-whiteboard-backend/internal/infra/setup"
	redisstate "github.com/Actiegen/collab-whiteboard-backend/internal/infra/state/redis"
	"github.com/Actiegen/collab-whiteboard-backend/internal/middleware"
	"github.com/Actiegen/collab-whiteboard-backend/internal/service"
	"github.com/Actiegen/collab-whiteboard-backend/internal/tasks"
	"github.com/Actiegen/collab-whiteboard-backend/internal/worker"
)

// Config 存储从环境变量或 .env 文件加载的配置。
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	JWTExpiryHours  int
	ServerPort      string
	LogLevel        string
	AppEnv          string
	KeyPrefix       string
	UploadDir       string
	RateLimitMax    int
	RateLimitWindow time.Duration
	EvictionGrace   time.Duration
	PersistAttempts int
	PersistBackoff  time.Duration
	PersistQueue    int
}

// LoadConfig 从环境变量加载配置。
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件（如果存在），允许只使用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		KeyPrefix:     os.Getenv("REDIS_KEY_PREFIX"),
		UploadDir:     os.Getenv("UPLOAD_DIR"),
		// --- 默认值 ---
		JWTExpiryHours:  24,
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
		EvictionGrace:   30 * time.Second,
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	if graceStr := os.Getenv("ROOM_EVICTION_GRACE"); graceStr != "" {
		if grace, err := time.ParseDuration(graceStr); err == nil && grace > 0 {
			cfg.EvictionGrace = grace
		} else {
			logrus.Warnf("Invalid ROOM_EVICTION_GRACE '%s', using default %s", graceStr, cfg.EvictionGrace)
		}
	}

	if attemptsStr := os.Getenv("HUB_PERSIST_ATTEMPTS"); attemptsStr != "" {
		if attempts, err := strconv.Atoi(attemptsStr); err == nil && attempts > 0 {
			cfg.PersistAttempts = attempts
		} else {
			logrus.Warnf("Invalid HUB_PERSIST_ATTEMPTS '%s', using hub default", attemptsStr)
		}
	}
	if backoffStr := os.Getenv("HUB_PERSIST_BACKOFF"); backoffStr != "" {
		if backoff, err := time.ParseDuration(backoffStr); err == nil && backoff > 0 {
			cfg.PersistBackoff = backoff
		} else {
			logrus.Warnf("Invalid HUB_PERSIST_BACKOFF '%s', using hub default", backoffStr)
		}
	}
	if queueStr := os.Getenv("HUB_PERSIST_QUEUE_SIZE"); queueStr != "" {
		if queue, err := strconv.Atoi(queueStr); err == nil && queue > 0 {
			cfg.PersistQueue = queue
		} else {
			logrus.Warnf("Invalid HUB_PERSIST_QUEUE_SIZE '%s', using hub default", queueStr)
		}
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "wb:"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "./uploads"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 包含应用的所有组件。
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	AsynqServer    *worker.WorkerServer
	Hub            *hub.Hub
	HttpServer     *http.Server
	redisClientOpt asynq.RedisClientOpt
	scheduler      *asynq.Scheduler
}

// NewApp 创建并初始化应用的所有组件。
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetLevel(logLevel) // 包级 logger 与 App logger 保持同一级别
	log.Info("Configuration loaded successfully")

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	blobStore, err := blob.NewDiskStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to init blob store: %w", err)
	}
	log.Info("Blob store initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	historyRepo := gormpersistence.NewGormHistoryRepository(db)
	blobRepo := redisstate.NewRedisBlobRepository(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. 初始化 Services
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	roomService := service.NewRoomService(roomRepo)
	messageService := service.NewMessageService(historyRepo)
	fileService := service.NewFileService(blobStore, blobRepo, 0)
	log.Info("Services initialized")

	// 6. 初始化 Hub
	hubInstance := hub.New(historyRepo, blobRepo, hub.Config{
		EvictionGrace:    cfg.EvictionGrace,
		PersistAttempts:  cfg.PersistAttempts,
		PersistBackoff:   cfg.PersistBackoff,
		PersistQueueSize: cfg.PersistQueue,
	})
	log.Info("Hub initialized")

	// 7. 初始化 Handlers
	authHandler := httpHandler.NewAuthHandler(authService)
	roomHandler := httpHandler.NewRoomHandler(roomService, hubInstance)
	messageHandler := httpHandler.NewMessageHandler(messageService, roomService, hubInstance)
	whiteboardHandler := httpHandler.NewWhiteboardHandler(messageService, roomService, hubInstance)
	fileHandler := httpHandler.NewFileHandler(fileService, roomService)
	websocketHandler := wsHandler.NewWebSocketHandler(hubInstance, roomService, authService)
	log.Info("Handlers initialized")

	// 8. 初始化 Worker Server
	workerServer := worker.NewWorkerServer(redisClientOpt, roomRepo, historyRepo, blobStore, blobRepo, log)
	log.Info("Worker server initialized")

	// 9. 初始化 Gin Engine 和路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api")
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}
	roomRoutes := api.Group("/rooms", middleware.Auth(cfg.JWTSecret))
	{
		roomRoutes.POST("", roomHandler.CreateRoom)
		roomRoutes.GET("", roomHandler.ListRooms)
		roomRoutes.GET("/:roomId", roomHandler.GetRoom)
		roomRoutes.DELETE("/:roomId", roomHandler.DeleteRoom)
		roomRoutes.GET("/:roomId/participants", roomHandler.GetParticipants)
		roomRoutes.GET("/:roomId/messages", messageHandler.ListMessages)
		roomRoutes.POST("/:roomId/messages", messageHandler.PostMessage)
		roomRoutes.GET("/:roomId/whiteboard", whiteboardHandler.GetWhiteboard)
		roomRoutes.POST("/:roomId/files", fileHandler.Upload)
	}
	api.GET("/files/:fileId", middleware.Auth(cfg.JWTSecret), fileHandler.Download)

	wsRoutes := router.Group("/ws", middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("/rooms/:roomId", websocketHandler.HandleConnection)
	}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	log.Info("Router setup complete")

	// 10. 初始化 HTTP Server
	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	app := &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		Hub:            hubInstance,
		HttpServer:     httpServer,
		redisClientOpt: redisClientOpt,
	}
	log.Info("Application assembled successfully")
	return app, nil
}

// Start 启动应用的所有后台 goroutine 和 HTTP 服务器。
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")

	go a.AsynqServer.Start()
	a.Log.Info("Asynq worker server routine started")

	a.registerPeriodicTasks()

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// registerPeriodicTasks 注册周期性任务并启动 Asynq Scheduler。
func (a *App) registerPeriodicTasks() {
	a.scheduler = asynq.NewScheduler(a.redisClientOpt, &asynq.SchedulerOpts{})

	compactPayload, err := tasks.NewWhiteboardCompactTask(0)
	if err != nil {
		a.Log.Errorf("Failed to create whiteboard compact task payload: %v", err)
		return
	}
	compactTask := asynq.NewTask(tasks.TypeWhiteboardCompact, compactPayload)
	if entryID, err := a.scheduler.Register("@every 5m", compactTask, asynq.Queue("low")); err != nil {
		a.Log.Errorf("Could not register periodic whiteboard compact task: %v", err)
	} else {
		a.Log.Infof("Periodic whiteboard compact task registered (EntryID: %s)", entryID)
	}

	cleanupPayload, err := tasks.NewBlobCleanupTask()
	if err != nil {
		a.Log.Errorf("Failed to create blob cleanup task payload: %v", err)
		return
	}
	cleanupTask := asynq.NewTask(tasks.TypeBlobCleanup, cleanupPayload)
	if entryID, err := a.scheduler.Register("@every 1h", cleanupTask, asynq.Queue("low")); err != nil {
		a.Log.Errorf("Could not register periodic blob cleanup task: %v", err)
	} else {
		a.Log.Infof("Periodic blob cleanup task registered (EntryID: %s)", entryID)
	}

	go func() {
		a.Log.Info("Asynq scheduler starting...")
		if err := a.scheduler.Run(); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			a.Log.Errorf("Asynq scheduler Run() failed: %v", err)
		}
	}()
}

// Shutdown 优雅地关闭应用。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止接收新连接
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭 Hub：断开所有连接并排干持久化队列
	if a.Hub != nil {
		hubCtx, hubCancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.Hub.Shutdown(hubCtx)
		hubCancel()
		a.Log.Info("Hub shut down.")
	}

	// 3. 停止 Scheduler 和 Worker
	if a.scheduler != nil {
		a.scheduler.Shutdown()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}

	// 4. 关闭 Asynq Client 与 Redis 连接
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// corsMiddleware 返回一个简单的 CORS 中间件。
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
		if allowedOrigin == "" {
			allowedOrigin = "http://localhost:3000"
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个记录请求日志的 Gin 中间件。
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
