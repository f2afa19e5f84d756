package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// clearEnv はテスト実行環境に残っている設定値の影響を受けないようにする。
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DISCORD_TOKEN", "GUILD_ID", "RECORD_STORE", "DATABASE_URL", "WORKBOOK_PATH", "WORKBOOK_SHEET",
		"VERIFIED_ROLE_NAME", "UNVERIFIED_ROLE_NAMES", "VERIFICATION_CHANNEL_NAME", "WELCOME_CHANNEL_NAME",
		"VERIFICATION_EMOJI", "COMMAND_PREFIX", "PROMPT_TIMEOUT", "SESSION_MAX_DURATION",
		"START_RATE_PER_MINUTE", "START_BURST", "SERVER_PORT", "PORT", "LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RecordStore != StoreWorkbook {
		t.Errorf("RecordStore = %q, want %q", cfg.RecordStore, StoreWorkbook)
	}
	if cfg.WorkbookPath != "members.xlsx" || cfg.WorkbookSheet != "rapih" {
		t.Errorf("workbook = %q/%q", cfg.WorkbookPath, cfg.WorkbookSheet)
	}
	if cfg.VerifiedRoleName != "Member Oracle" {
		t.Errorf("VerifiedRoleName = %q", cfg.VerifiedRoleName)
	}
	if !reflect.DeepEqual(cfg.UnverifiedRoleNames, []string{"new man", "new woman"}) {
		t.Errorf("UnverifiedRoleNames = %v", cfg.UnverifiedRoleNames)
	}
	if cfg.VerificationChannelName != "verification" {
		t.Errorf("VerificationChannelName = %q", cfg.VerificationChannelName)
	}
	if cfg.WelcomeChannelName != "welcome-oracle-member-❤️" {
		t.Errorf("WelcomeChannelName = %q", cfg.WelcomeChannelName)
	}
	if cfg.VerificationEmoji != "🙏" || cfg.CommandPrefix != "!" {
		t.Errorf("emoji/prefix = %q/%q", cfg.VerificationEmoji, cfg.CommandPrefix)
	}
	if cfg.PromptTimeout != 180*time.Second {
		t.Errorf("PromptTimeout = %v, want 180s", cfg.PromptTimeout)
	}
	if cfg.SessionMaxDuration != 0 {
		t.Errorf("SessionMaxDuration = %v, want 0 (unbounded)", cfg.SessionMaxDuration)
	}
	if cfg.StartRatePerMinute != 6 || cfg.StartBurst != 3 {
		t.Errorf("rate = %d/%d", cfg.StartRatePerMinute, cfg.StartBurst)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.LogLevel != "info" || cfg.LogFile != "" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFile)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("GUILD_ID", "42")
	t.Setenv("RECORD_STORE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/verifybot?sslmode=disable")
	t.Setenv("UNVERIFIED_ROLE_NAMES", " guest , ,newbie ")
	t.Setenv("PROMPT_TIMEOUT", "90s")
	t.Setenv("SESSION_MAX_DURATION", "15m")
	t.Setenv("START_RATE_PER_MINUTE", "12")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "discord.log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RecordStore != StorePostgres {
		t.Errorf("RecordStore = %q, want %q", cfg.RecordStore, StorePostgres)
	}
	if cfg.DiscordToken != "token" || cfg.GuildID != "42" {
		t.Errorf("discord = %q/%q", cfg.DiscordToken, cfg.GuildID)
	}
	if !reflect.DeepEqual(cfg.UnverifiedRoleNames, []string{"guest", "newbie"}) {
		t.Errorf("UnverifiedRoleNames = %v", cfg.UnverifiedRoleNames)
	}
	if cfg.PromptTimeout != 90*time.Second || cfg.SessionMaxDuration != 15*time.Minute {
		t.Errorf("timeouts = %v/%v", cfg.PromptTimeout, cfg.SessionMaxDuration)
	}
	if cfg.StartRatePerMinute != 12 {
		t.Errorf("StartRatePerMinute = %d", cfg.StartRatePerMinute)
	}
	if cfg.LogLevel != "debug" || cfg.LogFile != "discord.log" {
		t.Errorf("log = %q/%q", cfg.LogLevel, cfg.LogFile)
	}
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMPT_TIMEOUT", "soon")
	t.Setenv("START_BURST", "many")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.PromptTimeout != 180*time.Second || cfg.StartBurst != 3 {
		t.Errorf("defaults not applied: %v/%d", cfg.PromptTimeout, cfg.StartBurst)
	}
}

func TestLoad_PostgresRequiresDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECORD_STORE", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error should mention DATABASE_URL: %v", err)
	}
}

func TestLoad_UnknownRecordStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("RECORD_STORE", "sheets")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported RECORD_STORE")
	}
}

func TestRequireDiscord(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := cfg.RequireDiscord(); err == nil || !strings.Contains(err.Error(), "DISCORD_TOKEN") {
		t.Errorf("expected DISCORD_TOKEN error, got %v", err)
	}

	cfg.DiscordToken = "token"
	if err := cfg.RequireDiscord(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

// TestServerPort_FallsBackToPORT はSERVER_PORT未設定時にPORTを使うことを検証する。
func TestServerPort_FallsBackToPORT(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5000")
	if got := ServerPort(); got != "5000" {
		t.Errorf("ServerPort() = %q, want 5000", got)
	}

	t.Setenv("SERVER_PORT", "9090")
	if got := ServerPort(); got != "9090" {
		t.Errorf("ServerPort() = %q, want 9090", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GUILD_ID=777\nDISCORD_TOKEN=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// 既存の値は.envで上書きされない
	t.Setenv("DISCORD_TOKEN", "from-env")
	os.Unsetenv("GUILD_ID")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("GUILD_ID"); got != "777" {
		t.Errorf("GUILD_ID = %q, want 777", got)
	}
	if got := os.Getenv("DISCORD_TOKEN"); got != "from-env" {
		t.Errorf("DISCORD_TOKEN = %q, want from-env", got)
	}
	os.Unsetenv("GUILD_ID")
}

func TestLoadDotEnv_MissingFileIsIgnored(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("expected nil for missing file, got %v", err)
	}
}
