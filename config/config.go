package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	VectorDB VectorDBConfig `mapstructure:"vectordb"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Search   SearchConfig   `mapstructure:"search"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// StorageConfig 文件存储配置，local或minio
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Path      string `mapstructure:"path"`   // 本地存储根目录
	Bucket    string `mapstructure:"bucket"` // MinIO桶
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// VectorDBConfig 向量索引配置
type VectorDBConfig struct {
	Type      string `mapstructure:"type"` // memory、faiss或azuresearch
	Path      string `mapstructure:"path"` // 本地索引文件路径
	Endpoint  string `mapstructure:"endpoint"`
	APIKey    string `mapstructure:"api_key"`
	IndexName string `mapstructure:"index_name"`
	Dim       int    `mapstructure:"dim"`
	Distance  string `mapstructure:"distance"` // cosine、dot_product或euclidean
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	Endpoint    string  `mapstructure:"endpoint"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float32 `mapstructure:"temperature"`
}

// EmbedConfig 嵌入模型配置
type EmbedConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Endpoint   string `mapstructure:"endpoint"`
	BatchSize  int    `mapstructure:"batch_size"`
	Dimensions int    `mapstructure:"dimensions"`
}

// CacheConfig 问答缓存配置
type CacheConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Type     string `mapstructure:"type"` // memory或redis
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl"` // 秒
}

// QueueConfig 任务队列配置
type QueueConfig struct {
	Enable        bool   `mapstructure:"enable"`
	Type          string `mapstructure:"type"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Concurrency   int    `mapstructure:"concurrency"`
	RetryLimit    int    `mapstructure:"retry_limit"`
	RetryDelay    int    `mapstructure:"retry_delay"` // 秒
}

// DatabaseConfig 关系库配置
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// DocumentConfig 文档切分配置
type DocumentConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

// SearchConfig 检索配置
type SearchConfig struct {
	Limit    int     `mapstructure:"limit"`     // 每次检索返回的分块数
	MinScore float32 `mapstructure:"min_score"` // 相似度下限
}

// Load 从配置文件和环境变量加载配置
// 配置文件不存在时落一份默认配置到磁盘
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.WithField("path", configPath).Warn("Config file not found, using defaults")
		setDefaults(v)
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err == nil {
			if err := v.WriteConfigAs(configPath); err != nil {
				logrus.WithError(err).WithField("path", configPath).Warn("Could not write default config")
			}
		}
	} else {
		logrus.WithField("path", v.ConfigFileUsed()).Info("Using config file")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// 密钥类字段支持 ${ENV_VAR} 占位符
	cfg.Embed.APIKey = expandEnvPlaceholder(cfg.Embed.APIKey)
	cfg.LLM.APIKey = expandEnvPlaceholder(cfg.LLM.APIKey)
	cfg.VectorDB.APIKey = expandEnvPlaceholder(cfg.VectorDB.APIKey)

	return &cfg, nil
}

// expandEnvPlaceholder 把"${VAR}"形式的值替换成环境变量内容
// 环境变量不存在时保留原值
func expandEnvPlaceholder(value string) string {
	if !strings.HasPrefix(value, "${") || !strings.HasSuffix(value, "}") {
		return value
	}
	if envVal := os.Getenv(value[2 : len(value)-1]); envVal != "" {
		return envVal
	}
	return value
}

// setDefaults 注册所有配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.path", "./uploads")
	v.SetDefault("storage.bucket", "docqa")
	v.SetDefault("storage.use_ssl", false)

	v.SetDefault("vectordb.type", "memory")
	v.SetDefault("vectordb.path", "./vectordb")
	v.SetDefault("vectordb.dim", 1536) // text-embedding-3-small
	v.SetDefault("vectordb.distance", "cosine")

	v.SetDefault("llm.provider", "azure-openai")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.max_tokens", 1000)

	v.SetDefault("embed.provider", "azure-openai")
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("embed.batch_size", 16)
	v.SetDefault("embed.dimensions", 1536)

	v.SetDefault("cache.enable", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", 3600)

	v.SetDefault("queue.enable", false)
	v.SetDefault("queue.type", "redis")
	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.retry_limit", 3)
	v.SetDefault("queue.retry_delay", 60)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "data/docqa.db")

	v.SetDefault("document.chunk_size", 1000)
	v.SetDefault("document.chunk_overlap", 100)

	v.SetDefault("search.limit", 5)
	v.SetDefault("search.min_score", 0.0)
}
