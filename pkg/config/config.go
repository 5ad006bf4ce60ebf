package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Log           LogConfig
	Gemini        GeminiConfig
	Receipt       ReceiptConfig
	Cloudinary    CloudinaryConfig
	Kafka         KafkaConfig
	Documents     DocumentsConfig
	Notifications NotificationsConfig
	Duplicate     DuplicateConfig
	CORS          CORSConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// GeminiConfig configures the receipt vision model client.
type GeminiConfig struct {
	APIKey            string
	BaseURL           string
	Model             string
	Timeout           time.Duration
	MaxRetries        int
	ConnectRetryDelay time.Duration
	OverloadDelay     time.Duration
	HealthHost        string
	HealthTimeout     time.Duration
}

// ReceiptConfig governs image intake and payment checks.
type ReceiptConfig struct {
	MaxFileSizeBytes      int64
	ExpectedAmount        float64
	MaxWidth              int
	MaxHeight             int
	JPEGQuality           int
	RequireReferenceMatch bool
	ExtractionEnabled     bool
	CacheTTL              time.Duration
}

// CloudinaryConfig points at the external receipt image store.
type CloudinaryConfig struct {
	URL    string
	Folder string
}

// KafkaConfig enables notification event publishing.
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	NotificationTopic string
}

// DocumentsConfig controls fulfillment file storage and downloads.
type DocumentsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MaxFileSize     int64
}

// NotificationsConfig tunes the notification worker pool.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// CORSConfig lists the browser origins allowed to call the API. Empty allows any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// DuplicateConfig sets the duplicate request lookback.
type DuplicateConfig struct {
	Window time.Duration
	Limit  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Gemini = GeminiConfig{
		APIKey:            v.GetString("GEMINI_API_KEY"),
		BaseURL:           v.GetString("GEMINI_BASE_URL"),
		Model:             v.GetString("GEMINI_MODEL"),
		Timeout:           parseDuration(v.GetString("GEMINI_TIMEOUT"), 30*time.Second),
		MaxRetries:        v.GetInt("GEMINI_MAX_RETRIES"),
		ConnectRetryDelay: parseDuration(v.GetString("GEMINI_CONNECT_RETRY_DELAY"), 3*time.Second),
		OverloadDelay:     parseDuration(v.GetString("GEMINI_OVERLOAD_RETRY_DELAY"), 2*time.Second),
		HealthHost:        v.GetString("GEMINI_HEALTH_HOST"),
		HealthTimeout:     parseDuration(v.GetString("GEMINI_HEALTH_TIMEOUT"), 10*time.Second),
	}

	maxReceipt := v.GetInt64("RECEIPT_MAX_FILE_SIZE")
	if maxReceipt <= 0 {
		maxReceipt = 5 * 1024 * 1024
	}
	cfg.Receipt = ReceiptConfig{
		MaxFileSizeBytes:      maxReceipt,
		ExpectedAmount:        v.GetFloat64("RECEIPT_EXPECTED_AMOUNT"),
		MaxWidth:              v.GetInt("RECEIPT_MAX_WIDTH"),
		MaxHeight:             v.GetInt("RECEIPT_MAX_HEIGHT"),
		JPEGQuality:           v.GetInt("RECEIPT_JPEG_QUALITY"),
		RequireReferenceMatch: v.GetBool("RECEIPT_REQUIRE_REFERENCE_MATCH"),
		ExtractionEnabled:     v.GetBool("ENABLE_RECEIPT_EXTRACTION"),
		CacheTTL:              parseDuration(v.GetString("RECEIPT_CACHE_TTL"), 24*time.Hour),
	}

	cfg.Cloudinary = CloudinaryConfig{
		URL:    v.GetString("CLOUDINARY_URL"),
		Folder: v.GetString("CLOUDINARY_FOLDER"),
	}

	cfg.Kafka = KafkaConfig{
		Enabled:           v.GetBool("ENABLE_KAFKA"),
		Brokers:           splitAndTrim(v.GetString("KAFKA_BROKERS")),
		NotificationTopic: v.GetString("KAFKA_NOTIFICATION_TOPIC"),
	}

	maxDocument := v.GetInt64("DOCUMENTS_MAX_FILE_SIZE")
	if maxDocument <= 0 {
		maxDocument = 20 * 1024 * 1024
	}
	cfg.Documents = DocumentsConfig{
		StorageDir:      v.GetString("DOCUMENTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("DOCUMENTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DOCUMENTS_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSize:     maxDocument,
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		BufferSize: v.GetInt("NOTIFICATION_BUFFER"),
		MaxRetries: v.GetInt("NOTIFICATION_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 2*time.Second),
	}

	cfg.Duplicate = DuplicateConfig{
		Window: parseDuration(v.GetString("DUPLICATE_WINDOW"), 30*24*time.Hour),
		Limit:  v.GetInt("DUPLICATE_LOOKBACK_LIMIT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS"))}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "clearance")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "clearance-api")
	v.SetDefault("JWT_EXPIRATION", "12h")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("GEMINI_TIMEOUT", "30s")
	v.SetDefault("GEMINI_MAX_RETRIES", 2)
	v.SetDefault("GEMINI_CONNECT_RETRY_DELAY", "3s")
	v.SetDefault("GEMINI_OVERLOAD_RETRY_DELAY", "2s")
	v.SetDefault("GEMINI_HEALTH_HOST", "generativelanguage.googleapis.com")
	v.SetDefault("GEMINI_HEALTH_TIMEOUT", "10s")

	v.SetDefault("RECEIPT_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("RECEIPT_EXPECTED_AMOUNT", 50.00)
	v.SetDefault("RECEIPT_MAX_WIDTH", 800)
	v.SetDefault("RECEIPT_MAX_HEIGHT", 600)
	v.SetDefault("RECEIPT_JPEG_QUALITY", 85)
	v.SetDefault("RECEIPT_REQUIRE_REFERENCE_MATCH", true)
	v.SetDefault("ENABLE_RECEIPT_EXTRACTION", true)
	v.SetDefault("RECEIPT_CACHE_TTL", "24h")

	v.SetDefault("CLOUDINARY_URL", "")
	v.SetDefault("CLOUDINARY_FOLDER", "receipts")

	v.SetDefault("ENABLE_KAFKA", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "clearance.notifications")

	v.SetDefault("DOCUMENTS_STORAGE_DIR", "./documents")
	v.SetDefault("DOCUMENTS_SIGNED_URL_SECRET", "dev_documents_secret")
	v.SetDefault("DOCUMENTS_SIGNED_URL_TTL", "30m")
	v.SetDefault("DOCUMENTS_MAX_FILE_SIZE", 20*1024*1024)

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_BUFFER", 64)
	v.SetDefault("NOTIFICATION_MAX_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "2s")

	v.SetDefault("DUPLICATE_WINDOW", "720h")
	v.SetDefault("DUPLICATE_LOOKBACK_LIMIT", 5)

	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
