// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	RAG           RAGConfig           `mapstructure:"rag"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AdminConfig 存储管理接口鉴权相关的配置。
// Secret 为明文共享密钥；SecretHash 为其 bcrypt 哈希，配置后优先生效，
// 避免在配置文件中保存明文。JWTSecret 用于签发管理 token。
type AdminConfig struct {
	Secret          string `mapstructure:"secret"`
	SecretHash      string `mapstructure:"secret_hash"`
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenExpireHour int    `mapstructure:"token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	Enabled bool   `mapstructure:"enabled"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// EmbeddingConfig 存储 Embedding 模型相关的配置。
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey    string          `mapstructure:"api_key"`
	BaseURL   string          `mapstructure:"base_url"`
	Model     string          `mapstructure:"model"`
	MaxTokens int             `mapstructure:"max_tokens"`
	Prompt    LLMPromptConfig `mapstructure:"prompt"`
}

// LLMPromptConfig 配置系统提示与上下文包裹格式。
type LLMPromptConfig struct {
	Rules        string `mapstructure:"rules"`
	RefStart     string `mapstructure:"ref_start"`
	RefEnd       string `mapstructure:"ref_end"`
	NoResultText string `mapstructure:"no_result_text"`
}

// RAGConfig 存储切块与检索相关的配置。
// 这些原先散落在代码里的默认值全部收拢到这里，便于调参。
type RAGConfig struct {
	ChunkMaxChars int `mapstructure:"chunk_max_chars"`
	TopK          int `mapstructure:"top_k"`
	CiteTop       int `mapstructure:"cite_top"`
}

// RateLimitConfig 存储限流相关的配置。
// Store 取值 "memory" 或 "redis"：前者为进程内计数（单实例部署），
// 后者把计数放到 Redis 以实现多实例共享配额。
type RateLimitConfig struct {
	Store           string `mapstructure:"store"`
	MinuteLimit     int64  `mapstructure:"minute_limit"`
	MinuteWindowSec int    `mapstructure:"minute_window_sec"`
	DayLimit        int64  `mapstructure:"day_limit"`
	DayWindowSec    int    `mapstructure:"day_window_sec"`
	SweepIntervalMi int    `mapstructure:"sweep_interval_min"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}

// setDefaults 注册各配置项的默认值，缺省时与原系统行为保持一致。
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("admin.token_expire_hours", 12)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("elasticsearch.index_name", "document_chunks")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("rag.chunk_max_chars", 400)
	viper.SetDefault("rag.top_k", 5)
	viper.SetDefault("rag.cite_top", 3)
	viper.SetDefault("ratelimit.store", "memory")
	viper.SetDefault("ratelimit.minute_limit", 10)
	viper.SetDefault("ratelimit.minute_window_sec", 60)
	viper.SetDefault("ratelimit.day_limit", 200)
	viper.SetDefault("ratelimit.day_window_sec", 86400)
	viper.SetDefault("ratelimit.sweep_interval_min", 10)
}
