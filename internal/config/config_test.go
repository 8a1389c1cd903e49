package config

import (
	"testing"
	"time"
)

// TestLoad_RequiresDatabaseURL はDATABASE_URL未設定でエラーになることを検証する。
func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error when DATABASE_URL is not set")
	}
}

// TestLoad_Defaults はオプション設定のデフォルト値を検証する。
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chatline_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConversationTTL != 15*time.Minute {
		t.Errorf("ConversationTTL = %v, want 15m", cfg.ConversationTTL)
	}
	if cfg.UserConversationsTTL != 5*time.Minute {
		t.Errorf("UserConversationsTTL = %v, want 5m", cfg.UserConversationsTTL)
	}
	if cfg.RateLimitGeneral != 240 {
		t.Errorf("RateLimitGeneral = %d, want 240", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitSend != 60 {
		t.Errorf("RateLimitSend = %d, want 60", cfg.RateLimitSend)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.WSSendBuffer != 256 {
		t.Errorf("WSSendBuffer = %d, want 256", cfg.WSSendBuffer)
	}
}

// TestLoad_Overrides は環境変数による上書きを検証する。
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chatline_test")
	t.Setenv("CACHE_CONVERSATION_TTL", "30m")
	t.Setenv("RATE_LIMIT_SEND", "120")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConversationTTL != 30*time.Minute {
		t.Errorf("ConversationTTL = %v, want 30m", cfg.ConversationTTL)
	}
	if cfg.RateLimitSend != 120 {
		t.Errorf("RateLimitSend = %d, want 120", cfg.RateLimitSend)
	}
	if cfg.ServerPort != "9090" {
		t.Errorf("ServerPort = %q, want 9090", cfg.ServerPort)
	}
}

// TestLoad_InvalidDurationFallsBack は解析不能な値がデフォルトに戻ることを検証する。
func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/chatline_test")
	t.Setenv("CACHE_USER_CONVERSATIONS_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.UserConversationsTTL != 5*time.Minute {
		t.Errorf("UserConversationsTTL = %v, want default 5m", cfg.UserConversationsTTL)
	}
}
