package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	LLM       LLMConfig
	Logging   LoggingConfig
	RateLimit RateLimitConfig
	Models    map[string]ModelInfo
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	CacheTTL int
}

type MilvusConfig struct {
	Endpoint  string
	APIKey    string
	VectorDim int
	TopK      int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

// ModelInfo is one entry of the static model catalog served to the UI.
type ModelInfo struct {
	Name     string
	Provider string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/rag-agent")

	viper.SetEnvPrefix("RAG_AGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Models) == 0 {
		config.Models = defaultModelCatalog()
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 5984)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 300)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/ragagent.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cacheTTL", 3600)

	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.apiKey", "")
	viper.SetDefault("milvus.vectorDim", 1536)
	viper.SetDefault("milvus.topK", 4)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.embeddingModel", "text-embedding-ada-002")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.maxTokens", 2048)
	viper.SetDefault("llm.timeoutSec", 60)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")

	viper.SetDefault("ratelimit.requestsPerMinute", 60)
}

// defaultModelCatalog backs the /models endpoint when config.yaml has no
// models section. The catalog is immutable after Load.
func defaultModelCatalog() map[string]ModelInfo {
	return map[string]ModelInfo{
		"gpt-4":                  {Name: "GPT-4", Provider: "openai"},
		"gpt-3.5-turbo":          {Name: "GPT-3.5 Turbo", Provider: "openai"},
		"text-embedding-ada-002": {Name: "Ada 002 Embeddings", Provider: "openai"},
	}
}
