package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RecordStore は会員台帳の保存先の種類を表す。
type RecordStore string

const (
	StorePostgres RecordStore = "postgres"
	StoreWorkbook RecordStore = "workbook"
	StoreMemory   RecordStore = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Discord
	DiscordToken            string
	GuildID                 string
	VerificationChannelName string
	WelcomeChannelName      string
	VerificationEmoji       string
	CommandPrefix           string

	// Roles
	VerifiedRoleName    string
	UnverifiedRoleNames []string

	// Record store
	RecordStore   RecordStore
	DatabaseURL   string
	WorkbookPath  string
	WorkbookSheet string

	// Session
	PromptTimeout      time.Duration
	SessionMaxDuration time.Duration

	// Start throttling
	StartRatePerMinute int
	StartBurst         int

	// Server
	ServerPort string

	// Logging
	LogLevel string
	LogFile  string
}

// LoadDotEnv は.envファイルが存在する場合に環境変数へ読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが無い場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("failed to load %s: %w", p, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 選択した台帳に必要な環境変数が未設定の場合はエラーを返す。
// DISCORD_TOKENはserveでのみ必要なため、ここでは検証せずRequireDiscordで確認する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.RecordStore = RecordStore(strings.ToLower(getEnvString("RECORD_STORE", string(StoreWorkbook))))
	switch cfg.RecordStore {
	case StorePostgres, StoreWorkbook, StoreMemory:
	default:
		return nil, fmt.Errorf("unsupported RECORD_STORE %q (want postgres, workbook or memory)", cfg.RecordStore)
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.RecordStore == StorePostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	cfg.GuildID = os.Getenv("GUILD_ID")
	cfg.VerificationChannelName = getEnvString("VERIFICATION_CHANNEL_NAME", "verification")
	cfg.WelcomeChannelName = getEnvString("WELCOME_CHANNEL_NAME", "welcome-oracle-member-❤️")
	cfg.VerificationEmoji = getEnvString("VERIFICATION_EMOJI", "🙏")
	cfg.CommandPrefix = getEnvString("COMMAND_PREFIX", "!")
	cfg.VerifiedRoleName = getEnvString("VERIFIED_ROLE_NAME", "Member Oracle")
	cfg.UnverifiedRoleNames = getEnvList("UNVERIFIED_ROLE_NAMES", []string{"new man", "new woman"})
	cfg.WorkbookPath = getEnvString("WORKBOOK_PATH", "members.xlsx")
	cfg.WorkbookSheet = getEnvString("WORKBOOK_SHEET", "rapih")
	cfg.PromptTimeout = getEnvDuration("PROMPT_TIMEOUT", 180*time.Second)
	cfg.SessionMaxDuration = getEnvDuration("SESSION_MAX_DURATION", 0)
	cfg.StartRatePerMinute = getEnvInt("START_RATE_PER_MINUTE", 6)
	cfg.StartBurst = getEnvInt("START_BURST", 3)
	cfg.ServerPort = ServerPort()
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFile = os.Getenv("LOG_FILE")

	return cfg, nil
}

// RequireDiscord はDiscordゲートウェイへの接続に必要な設定が揃っているか確認する。
func (c *Config) RequireDiscord() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("required environment variables are not set: %v", []string{"DISCORD_TOKEN"})
	}
	return nil
}

// ServerPort はHTTPサーバーの待受ポートを返す。
// SERVER_PORT、PORT（ホスティング環境が注入する値）、8080の順で決定する。
func ServerPort() string {
	return getEnvString("SERVER_PORT", getEnvString("PORT", "8080"))
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

// getEnvList はカンマ区切りの値を前後の空白を除いて分割する。空要素は捨てる。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
