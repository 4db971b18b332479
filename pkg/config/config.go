package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort      string
	FirebaseProject string
	Environment     string

	// Sync tuning. Staleness bounds how long a cached read is served without
	// refetching; the poll intervals are the backstop for missed realtime
	// events.
	ConversationStaleTime    time.Duration
	MessageStaleTime         time.Duration
	ConversationPollInterval time.Duration
	MessagePollInterval      time.Duration
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		FirebaseProject: getEnv("FIREBASE_PROJECT_ID", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),

		ConversationStaleTime:    getEnvAsSeconds("CONVERSATION_STALE_SECONDS", 30),
		MessageStaleTime:         getEnvAsSeconds("MESSAGE_STALE_SECONDS", 10),
		ConversationPollInterval: getEnvAsSeconds("CONVERSATION_POLL_SECONDS", 30),
		MessagePollInterval:      getEnvAsSeconds("MESSAGE_POLL_SECONDS", 10),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultValue int64) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return time.Duration(intValue) * time.Second
		}
	}
	return time.Duration(defaultValue) * time.Second
}
