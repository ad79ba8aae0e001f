package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ragkit/doc-rag/api"
	"github.com/ragkit/doc-rag/api/handler"
	"github.com/ragkit/doc-rag/api/middleware"
	qaconfig "github.com/ragkit/doc-rag/config"
	"github.com/ragkit/doc-rag/internal/cache"
	"github.com/ragkit/doc-rag/internal/database"
	"github.com/ragkit/doc-rag/internal/document"
	"github.com/ragkit/doc-rag/internal/embedding"
	"github.com/ragkit/doc-rag/internal/llm"
	"github.com/ragkit/doc-rag/internal/repository"
	"github.com/ragkit/doc-rag/internal/services"
	"github.com/ragkit/doc-rag/internal/vectordb"
	"github.com/ragkit/doc-rag/pkg/storage"
	"github.com/ragkit/doc-rag/pkg/taskqueue"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// config 汇总命令行参数、环境变量和配置文件合并后的运行配置。
// 优先级从高到低：命令行 > 环境变量 > 配置文件 > 默认值。
type config struct {
	Port         int
	Mode         string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DataDir      string
	ConfigFile   string

	StorageType    string // local 或 minio
	StoragePath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	VectorDBPath    string
	VectorDimension int

	EmbeddingModel  string // 嵌入模型部署名称
	EmbeddingAPIKey string
	AzureEndpoint   string
	LLMModel        string
	LLMAPIKey       string

	MaxChunkSize int
	ChunkOverlap int
	SearchLimit  int
	CacheType    string

	QueueEnabled     bool
	QueueType        string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	QueueConcurrency int
	QueueRetryLimit  int
	QueueRetryDelay  time.Duration
}

// application 持有启动期构建的组件，Close按依赖逆序释放。
type application struct {
	router   *gin.Engine
	vectorDB vectordb.Repository
	queue    taskqueue.Queue
	worker   taskqueue.Worker
}

func (a *application) Close() {
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.queue != nil {
		a.queue.Close()
	}
	if a.vectorDB != nil {
		a.vectorDB.Close()
	}
}

func main() {
	// .env文件便于本地开发注入API密钥
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env file")
	}

	cfg := parseFlags()
	if cfg.ConfigFile != "" {
		appConfig, err := qaconfig.Load(cfg.ConfigFile)
		if err != nil {
			log.Printf("Warning: Failed to load config file: %v, using command line args", err)
		} else {
			mergeFileConfig(&cfg, appConfig)
		}
	}

	gin.SetMode(cfg.Mode)
	logger := setupLogger(cfg.LogLevel)
	logger.Info("Starting Document QA System...")

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Close()

	runServer(cfg, app.router, logger)
}

// buildApplication 按依赖顺序构建存储、模型客户端和业务服务，
// 任一环节失败整体启动失败。
func buildApplication(cfg config, logger *logrus.Logger) (*application, error) {
	if err := setupDatabase(cfg, logger); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	fileStorage, err := setupStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	vectorDB, err := setupVectorDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init vector database: %w", err)
	}

	embeddingClient, err := setupEmbedding(cfg)
	if err != nil {
		return nil, fmt.Errorf("init embedding client: %w", err)
	}

	llmClient, err := setupLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	cacheService, err := cache.NewCache(cacheConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}

	splitter, err := document.NewTextSplitter(document.SplitterConfig{
		ChunkSize:    cfg.MaxChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("init text splitter: %w", err)
	}

	app := &application{vectorDB: vectorDB}

	if cfg.QueueEnabled {
		app.queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("init task queue: %w", err)
		}
		logger.Info("Task queue initialized successfully")
	}

	var repo repository.DocumentRepository
	if app.queue != nil {
		repo = repository.NewDocumentRepositoryWithQueue(database.MustDB(), app.queue)
		logger.Info("Using document repository with task queue")
	} else {
		repo = repository.NewDocumentRepository()
	}

	statusManager := services.NewDocumentStatusManager(repo, logger)

	documentServiceOptions := []services.DocumentOption{
		services.WithDocumentRepository(repo),
		services.WithStatusManager(statusManager),
		services.WithBatchSize(16),
		services.WithLogger(logger),
	}
	if app.queue != nil {
		documentServiceOptions = append(documentServiceOptions,
			services.WithTaskQueue(app.queue),
			services.WithAsyncProcessing(true),
		)
		logger.Info("Document processing will use async task queue")
	}

	documentService := services.NewDocumentService(
		fileStorage,
		splitter,
		embeddingClient,
		vectorDB,
		documentServiceOptions...,
	)

	qaService := services.NewQAService(
		embeddingClient,
		vectorDB,
		llmClient,
		cacheService,
		services.WithSearchLimit(cfg.SearchLimit),
		services.WithQALogger(logger),
	)

	// 队列模式下在本进程内跑worker，消费文档摄入任务
	if app.queue != nil {
		redisQueue, ok := app.queue.(*taskqueue.RedisQueue)
		if !ok {
			return nil, fmt.Errorf("task queue type %T does not support workers", app.queue)
		}

		app.worker = taskqueue.NewRedisWorker(redisQueue, nil)
		processHandler := taskqueue.NewDocumentProcessHandler(app.queue, documentService.ProcessStoredDocument, logger)
		for _, taskType := range processHandler.GetTaskTypes() {
			app.worker.RegisterHandler(taskType, processHandler)
		}

		if err := app.worker.Start(); err != nil {
			return nil, fmt.Errorf("start task queue worker: %w", err)
		}
		logger.Info("Task queue worker started")
	}

	docHandler := handler.NewDocumentHandler(documentService, fileStorage)
	qaHandler := handler.NewQAHandler(qaService)
	app.router = api.SetupRouter(docHandler, qaHandler)

	return app, nil
}

// runServer 启动HTTP服务并等待终止信号，收到信号后限时优雅关闭。
func runServer(cfg config, r *gin.Engine, logger *logrus.Logger) {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Infof("Server is running on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

func parseFlags() config {
	cfg := config{}

	flag.IntVar(&cfg.Port, "port", 8080, "Server port")
	flag.StringVar(&cfg.Mode, "mode", "debug", "Run mode (debug/release)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", 30*time.Second, "Read timeout")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", 30*time.Second, "Write timeout")
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "Data directory path")
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to config file")

	flag.StringVar(&cfg.StorageType, "storage-type", "local", "Storage type (local/minio)")
	flag.StringVar(&cfg.StoragePath, "storage", "./data/files", "File storage path")
	flag.StringVar(&cfg.MinioEndpoint, "minio-endpoint", "localhost:9000", "MinIO endpoint")
	flag.StringVar(&cfg.MinioAccessKey, "minio-access-key", "", "MinIO access key")
	flag.StringVar(&cfg.MinioSecretKey, "minio-secret-key", "", "MinIO secret key")
	flag.StringVar(&cfg.MinioBucket, "minio-bucket", "docqa", "MinIO bucket name")
	flag.BoolVar(&cfg.MinioUseSSL, "minio-ssl", false, "Use SSL for MinIO")

	flag.StringVar(&cfg.VectorDBPath, "vectordb", "./data/vectordb", "Vector database path")
	flag.IntVar(&cfg.VectorDimension, "dim", 1536, "Vector dimension")

	flag.StringVar(&cfg.EmbeddingModel, "embed-model", "text-embedding-3-small", "Embedding model deployment name")
	flag.StringVar(&cfg.EmbeddingAPIKey, "embed-key", "", "Embedding API key")
	flag.StringVar(&cfg.AzureEndpoint, "azure-endpoint", "", "Azure OpenAI endpoint")
	flag.StringVar(&cfg.LLMModel, "llm-model", "gpt-4o", "LLM model deployment name")
	flag.StringVar(&cfg.LLMAPIKey, "llm-key", "", "LLM API key")

	flag.IntVar(&cfg.MaxChunkSize, "chunk-size", 1000, "Maximum text chunk size")
	flag.IntVar(&cfg.ChunkOverlap, "chunk-overlap", 100, "Text chunk overlap size")
	flag.IntVar(&cfg.SearchLimit, "search-limit", 5, "Number of retrieved chunks per question")
	flag.StringVar(&cfg.CacheType, "cache", "memory", "Cache type (memory/redis)")

	flag.BoolVar(&cfg.QueueEnabled, "queue", false, "Enable task queue")
	flag.StringVar(&cfg.QueueType, "queue-type", "redis", "Task queue type (redis)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "Redis address for task queue")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	flag.IntVar(&cfg.QueueConcurrency, "queue-concurrency", 10, "Task queue concurrency")
	flag.IntVar(&cfg.QueueRetryLimit, "queue-retry", 3, "Max retry attempts for failed tasks")
	flag.DurationVar(&cfg.QueueRetryDelay, "queue-retry-delay", time.Minute, "Delay between retry attempts")

	// 环境变量在Parse之前写入，这样命令行参数仍能覆盖它们
	applyEnvOverrides(&cfg)

	flag.Parse()
	return cfg
}

// applyEnvOverrides 从环境变量读取密钥和连接信息。
func applyEnvOverrides(cfg *config) {
	if key := os.Getenv("AZURE_OPENAI_API_KEY"); key != "" {
		cfg.EmbeddingAPIKey = key
		cfg.LLMAPIKey = key
	}
	if endpoint := os.Getenv("AZURE_OPENAI_ENDPOINT"); endpoint != "" {
		cfg.AzureEndpoint = endpoint
	}
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" {
		cfg.EmbeddingAPIKey = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}
}

// flagIsDefault 判断一个flag是否仍是默认值，即没有在命令行上显式设置。
func flagIsDefault(name, current string) bool {
	f := flag.Lookup(name)
	return f != nil && f.DefValue == current
}

// mergeFileConfig 用配置文件补全没有在命令行或环境变量里给出的设置。
func mergeFileConfig(cfg *config, appConfig *qaconfig.Config) {
	if flagIsDefault("queue", fmt.Sprint(cfg.QueueEnabled)) {
		cfg.QueueEnabled = appConfig.Queue.Enable
	}
	if flagIsDefault("queue-type", cfg.QueueType) {
		cfg.QueueType = appConfig.Queue.Type
	}
	if flagIsDefault("redis-addr", cfg.RedisAddr) {
		cfg.RedisAddr = appConfig.Queue.RedisAddr
	}
	if flagIsDefault("redis-password", cfg.RedisPassword) {
		cfg.RedisPassword = appConfig.Queue.RedisPassword
	}
	if flagIsDefault("redis-db", fmt.Sprint(cfg.RedisDB)) {
		cfg.RedisDB = appConfig.Queue.RedisDB
	}
	if flagIsDefault("queue-concurrency", fmt.Sprint(cfg.QueueConcurrency)) {
		cfg.QueueConcurrency = appConfig.Queue.Concurrency
	}
	if flagIsDefault("queue-retry", fmt.Sprint(cfg.QueueRetryLimit)) {
		cfg.QueueRetryLimit = appConfig.Queue.RetryLimit
	}
	if appConfig.Queue.RetryDelay > 0 {
		cfg.QueueRetryDelay = time.Duration(appConfig.Queue.RetryDelay) * time.Second
	}

	// 模型端点和密钥以命令行与环境变量优先
	if cfg.AzureEndpoint == "" {
		if appConfig.Embed.Endpoint != "" {
			cfg.AzureEndpoint = appConfig.Embed.Endpoint
		} else {
			cfg.AzureEndpoint = appConfig.LLM.Endpoint
		}
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = appConfig.Embed.APIKey
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = appConfig.LLM.APIKey
	}

	if appConfig.Storage.Type != "" {
		cfg.StorageType = appConfig.Storage.Type
	}
	if appConfig.Storage.Endpoint != "" {
		cfg.MinioEndpoint = appConfig.Storage.Endpoint
	}
	if appConfig.Storage.AccessKey != "" {
		cfg.MinioAccessKey = appConfig.Storage.AccessKey
	}
	if appConfig.Storage.SecretKey != "" {
		cfg.MinioSecretKey = appConfig.Storage.SecretKey
	}
	if appConfig.Storage.Bucket != "" {
		cfg.MinioBucket = appConfig.Storage.Bucket
	}

	if appConfig.Document.ChunkSize > 0 {
		cfg.MaxChunkSize = appConfig.Document.ChunkSize
	}
	if appConfig.Document.ChunkOverlap > 0 {
		cfg.ChunkOverlap = appConfig.Document.ChunkOverlap
	}
	if appConfig.Search.Limit > 0 {
		cfg.SearchLimit = appConfig.Search.Limit
	}
}

func setupLogger(level string) *logrus.Logger {
	logger := middleware.GetLogger()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	return logger
}

func setupDatabase(cfg config, logger *logrus.Logger) error {
	dbPath := filepath.Join(cfg.DataDir, "docqa.db")
	return database.Setup(&database.Config{
		Type: "sqlite",
		DSN:  dbPath,
	}, logger)
}

func setupStorage(cfg config) (storage.Storage, error) {
	if cfg.StorageType == "minio" {
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			UseSSL:    cfg.MinioUseSSL,
			Bucket:    cfg.MinioBucket,
		})
	}

	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return storage.NewLocalStorage(storage.LocalConfig{Path: cfg.StoragePath})
}

// setupVectorDB 优先使用FAISS持久化索引，初始化失败时退回内存实现，
// 服务仍可启动，只是重启后索引不保留。
func setupVectorDB(cfg config, logger *logrus.Logger) (vectordb.Repository, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.VectorDBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create vector database directory: %w", err)
	}

	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              "faiss",
		Path:              cfg.VectorDBPath,
		Dimension:         cfg.VectorDimension,
		DistanceType:      vectordb.Cosine,
		CreateIfNotExists: true,
	})
	if err == nil {
		return repo, nil
	}

	logger.WithError(err).Warn("FAISS vector database unavailable, falling back to in-memory index")
	return vectordb.NewRepository(vectordb.Config{
		Type:         "memory",
		Dimension:    cfg.VectorDimension,
		DistanceType: vectordb.Cosine,
	})
}

func setupEmbedding(cfg config) (embedding.Client, error) {
	if cfg.EmbeddingAPIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}
	if cfg.AzureEndpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}

	return embedding.NewClient("azure-openai",
		embedding.WithAPIKey(cfg.EmbeddingAPIKey),
		embedding.WithBaseURL(cfg.AzureEndpoint),
		embedding.WithModel(cfg.EmbeddingModel),
		embedding.WithDimensions(cfg.VectorDimension),
		embedding.WithCache(true),
	)
}

func setupLLM(cfg config) (llm.Client, error) {
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	if cfg.AzureEndpoint == "" {
		return nil, fmt.Errorf("azure openai endpoint is required")
	}

	return llm.NewClient("azure-openai",
		llm.WithAPIKey(cfg.LLMAPIKey),
		llm.WithBaseURL(cfg.AzureEndpoint),
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(2048),
		llm.WithTemperature(0.7),
	)
}

func cacheConfig(cfg config) cache.Config {
	c := cache.Config{
		Type:            cfg.CacheType,
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
	if cfg.CacheType == "redis" {
		c.RedisAddr = cfg.RedisAddr
		c.RedisPassword = cfg.RedisPassword
	}
	return c
}

func setupTaskQueue(cfg config, logger *logrus.Logger) (taskqueue.Queue, error) {
	logger.WithFields(logrus.Fields{
		"type":        cfg.QueueType,
		"redis_addr":  cfg.RedisAddr,
		"concurrency": cfg.QueueConcurrency,
		"retry_limit": cfg.QueueRetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(cfg.QueueType, &taskqueue.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.QueueConcurrency,
		RetryLimit:    cfg.QueueRetryLimit,
		RetryDelay:    cfg.QueueRetryDelay,
	})
}
