// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Cache
	ConversationTTL      time.Duration
	UserConversationsTTL time.Duration

	// Rate Limit
	RateLimitGeneral int // API全般 req/min
	RateLimitSend    int // メッセージ送信 req/min

	// WebSocket
	WSWriteTimeout  time.Duration
	WSPongTimeout   time.Duration
	WSPingInterval  time.Duration
	WSSendBuffer    int
	WSMaxMessageLen int64

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variable is not set: DATABASE_URL")
	}

	// Optional fields with defaults
	cfg.ConversationTTL = getEnvDuration("CACHE_CONVERSATION_TTL", 15*time.Minute)
	cfg.UserConversationsTTL = getEnvDuration("CACHE_USER_CONVERSATIONS_TTL", 5*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 240)
	cfg.RateLimitSend = getEnvInt("RATE_LIMIT_SEND", 60)
	cfg.WSWriteTimeout = getEnvDuration("WS_WRITE_TIMEOUT", 10*time.Second)
	cfg.WSPongTimeout = getEnvDuration("WS_PONG_TIMEOUT", 60*time.Second)
	cfg.WSPingInterval = getEnvDuration("WS_PING_INTERVAL", 54*time.Second)
	cfg.WSSendBuffer = getEnvInt("WS_SEND_BUFFER", 256)
	cfg.WSMaxMessageLen = getEnvInt64("WS_MAX_MESSAGE_LEN", 65536)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
