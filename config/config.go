package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	OSS        OSSConfig        `mapstructure:"oss"`
	Queue      QueueConfig      `mapstructure:"queue"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Match      MatchConfig      `mapstructure:"match"`
	Resume     ResumeConfig     `mapstructure:"resume"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// 调用模型的接口按用户限流
	AIRequestsPerMinute int `mapstructure:"ai_requests_per_minute"`
	AIBurst             int `mapstructure:"ai_burst"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// JWTConfig holds the shared secret of the external auth provider.
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
}

type QueueConfig struct {
	EnrichQueue string `mapstructure:"enrich_queue"`
	MaxWorkers  int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LLMConfig selects the text generation provider. Provider is "openai" or "vertex".
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	ChatModel         string        `mapstructure:"chat_model"`
	Temperature       float64       `mapstructure:"temperature"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
	VertexProject     string        `mapstructure:"vertex_project"`
	VertexLocation    string        `mapstructure:"vertex_location"`
}

type EmbeddingConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	Dimensions   int    `mapstructure:"dimensions"`
	MaxInputChar int    `mapstructure:"max_input_chars"`
}

type EnrichmentConfig struct {
	AITimeout     time.Duration `mapstructure:"ai_timeout"`
	EmbedTimeout  time.Duration `mapstructure:"embed_timeout"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchDelay    time.Duration `mapstructure:"batch_delay"`
	Concurrency   int           `mapstructure:"concurrency"`
	StuckAfter    time.Duration `mapstructure:"stuck_after"`
	SweepLimit    int           `mapstructure:"sweep_limit"`
	SweepSchedule string        `mapstructure:"sweep_schedule"`
}

type IngestionConfig struct {
	Schedule          string         `mapstructure:"schedule"`
	LeaseName         string         `mapstructure:"lease_name"`
	LeaseTTL          time.Duration  `mapstructure:"lease_ttl"`
	FetchTimeout      time.Duration  `mapstructure:"fetch_timeout"`
	SourceConcurrency int            `mapstructure:"source_concurrency"`
	EntryLevelOnly    bool           `mapstructure:"entry_level_only"`
	Sources           []SourceConfig `mapstructure:"sources"`
}

// SourceConfig describes one career site scraped with CSS selectors.
type SourceConfig struct {
	Name             string `mapstructure:"name"`
	CompanyName      string `mapstructure:"company_name"`
	ListURL          string `mapstructure:"list_url"`
	ItemSelector     string `mapstructure:"item_selector"`
	TitleSelector    string `mapstructure:"title_selector"`
	LinkSelector     string `mapstructure:"link_selector"`
	LocationSelector string `mapstructure:"location_selector"`
	IDAttribute      string `mapstructure:"id_attribute"`
	DetailSelector   string `mapstructure:"detail_selector"`
	MaxJobs          int    `mapstructure:"max_jobs"`
	UserAgent        string `mapstructure:"user_agent"`
	Enabled          bool   `mapstructure:"enabled"`
}

type ChatConfig struct {
	HistoryReplay      int           `mapstructure:"history_replay"`
	HistoryWindow      int           `mapstructure:"history_window"`
	ResumeContextChars int           `mapstructure:"resume_context_chars"`
	AITimeout          time.Duration `mapstructure:"ai_timeout"`
	Greeting           string        `mapstructure:"greeting"`
	PingInterval       time.Duration `mapstructure:"ping_interval"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
}

type MatchConfig struct {
	GapThreshold float64 `mapstructure:"gap_threshold"`
}

type ResumeConfig struct {
	SignedURLExpiry time.Duration `mapstructure:"signed_url_expiry"`
	MaxSize         int64         `mapstructure:"max_size"`
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先读取 config.local.yaml（包含真实密钥，不提交到 git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.ai_requests_per_minute", 20)
	v.SetDefault("server.ai_burst", 5)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("queue.enrich_queue", "careerlane:enrich")
	v.SetDefault("queue.max_workers", 2)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.requests_per_second", 2.0)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("llm.vertex_location", "us-central1")

	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.max_input_chars", 8000)

	v.SetDefault("enrichment.ai_timeout", 60*time.Second)
	v.SetDefault("enrichment.embed_timeout", 30*time.Second)
	v.SetDefault("enrichment.batch_size", 3)
	v.SetDefault("enrichment.batch_delay", 3*time.Second)
	v.SetDefault("enrichment.concurrency", 3)
	v.SetDefault("enrichment.stuck_after", 15*time.Minute)
	v.SetDefault("enrichment.sweep_limit", 50)
	v.SetDefault("enrichment.sweep_schedule", "@every 1h")

	v.SetDefault("ingestion.schedule", "CRON_TZ=Asia/Kolkata 0 22 * * *")
	v.SetDefault("ingestion.lease_name", "daily_ingestion")
	v.SetDefault("ingestion.lease_ttl", 30*time.Minute)
	v.SetDefault("ingestion.fetch_timeout", 2*time.Minute)
	v.SetDefault("ingestion.source_concurrency", 2)
	v.SetDefault("ingestion.entry_level_only", true)

	v.SetDefault("chat.history_replay", 10)
	v.SetDefault("chat.history_window", 20)
	v.SetDefault("chat.resume_context_chars", 2000)
	v.SetDefault("chat.ai_timeout", 45*time.Second)
	v.SetDefault("chat.greeting", "Hi! I'm your CareerLane assistant. Ask me anything about this role, your resume or interview prep.")
	v.SetDefault("chat.ping_interval", 30*time.Second)
	v.SetDefault("chat.read_timeout", 90*time.Second)

	v.SetDefault("match.gap_threshold", 0.70)

	v.SetDefault("resume.signed_url_expiry", 15*time.Minute)
	v.SetDefault("resume.max_size", 5<<20)
}
