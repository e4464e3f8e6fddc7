package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries all process configuration. Load fails when a required
// platform value is missing so the process refuses to start.
type Config struct {
	Port string

	BotToken        string
	OperatorGroupID int64
	AdminUserID     int64
	WebAppURL       string

	MongoURI     string
	DatabaseName string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioSecure    bool
	MinioBucket    string

	OpenAIBaseURL string
	OpenAIKey     string
	OpenAIModel   string
	ContextFile   string

	AMQPURL      string
	AMQPExchange string
	Environment  string

	OTLPEndpoint string
	DebugRoutes  bool
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		BotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		WebAppURL:      os.Getenv("WEB_APP_URL"),
		MongoURI:       os.Getenv("MONGO_CONNECTION_STRING"),
		DatabaseName:   getEnv("DATABASE_NAME", "support_chat"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioSecure:    getEnv("MINIO_SECURE", "true") == "true",
		MinioBucket:    getEnv("MINIO_BUCKET", "support-chat"),
		OpenAIBaseURL:  os.Getenv("OPENAI_API_BASE"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    getEnv("OPENAI_MODEL_NAME", "gpt-4o-mini"),
		ContextFile:    getEnv("CONTEXT_FILE", "company_context.txt"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "chat_events"),
		Environment:    getEnv("ENVIRONMENT", "dev"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DebugRoutes:    getEnv("DEBUG_ROUTES", "false") == "true",
	}

	if cfg.BotToken == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	if cfg.MongoURI == "" {
		return nil, errors.New("MONGO_CONNECTION_STRING is not set")
	}

	groupRaw := os.Getenv("MANAGER_GROUP_CHAT_ID")
	if groupRaw == "" {
		return nil, errors.New("MANAGER_GROUP_CHAT_ID is not set")
	}
	groupID, err := strconv.ParseInt(groupRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("MANAGER_GROUP_CHAT_ID must be a number: %w", err)
	}
	cfg.OperatorGroupID = groupID

	if adminRaw := os.Getenv("ADMIN_USER_ID"); adminRaw != "" {
		adminID, err := strconv.ParseInt(adminRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_USER_ID must be a number: %w", err)
		}
		cfg.AdminUserID = adminID
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
