// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// セッションストアの種別
const (
	SessionStoreMemory   = "memory"
	SessionStoreRedis    = "redis"
	SessionStorePostgres = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// OAuth: Google
	GoogleClientID     string
	GoogleClientSecret string

	// OAuth: Facebook（任意。両方設定された場合のみ有効）
	FacebookAppID     string
	FacebookAppSecret string

	// Session
	SessionSecret            string
	SessionMaxAge            int
	SessionStore             string
	SessionSaveUninitialized bool
	SessionResave            bool
	SessionCleanupInterval   time.Duration

	// Redis
	RedisURL       string
	RedisKeyPrefix string

	// Database
	DatabaseURL string

	// Provider
	ProviderTimeout time.Duration

	// Rate Limit（req/min/IP）
	RateLimitAuth int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// defaultServerPort はSERVER_PORT未設定時の待ち受けポート。
const defaultServerPort = "3000"

// LoadServerPort は必須設定を検証せずに待ち受けポートだけを解決する。
// CONFIG_FILEと環境変数の優先順位はLoadと同じ。
// healthcheckサブコマンドのように完全な設定を必要としない処理で使う。
func LoadServerPort() (string, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return "", err
	}
	return src.getString("SERVER_PORT", defaultServerPort), nil
}

// FacebookEnabled はFacebookログインが設定されているかを返す。
func (c *Config) FacebookEnabled() bool {
	return c.FacebookAppID != "" && c.FacebookAppSecret != ""
}

// CallbackURL は指定プロバイダーのOAuthコールバックURLを返す。
func (c *Config) CallbackURL(provider string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/auth/" + provider + "/callback"
}

// Load は環境変数からConfigを読み込む。
// CONFIG_FILEが指定された場合はYAMLファイルの値を下地とし、環境変数で上書きする。
// 必須設定が未設定の場合は、不足しているキーをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SessionSecret = src.getString("SESSION_SECRET", "")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.GoogleClientID = src.getString("GOOGLE_CLIENT_ID", "")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = src.getString("GOOGLE_CLIENT_SECRET", "")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.BaseURL = src.getString("BASE_URL", "")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	// Facebookは任意だが、片方だけの設定は設定ミスとして扱う
	cfg.FacebookAppID = src.getString("FACEBOOK_APP_ID", "")
	cfg.FacebookAppSecret = src.getString("FACEBOOK_APP_SECRET", "")
	if cfg.FacebookAppID != "" && cfg.FacebookAppSecret == "" {
		missing = append(missing, "FACEBOOK_APP_SECRET")
	}
	if cfg.FacebookAppSecret != "" && cfg.FacebookAppID == "" {
		missing = append(missing, "FACEBOOK_APP_ID")
	}

	cfg.SessionStore = strings.ToLower(src.getString("SESSION_STORE", SessionStoreMemory))
	cfg.RedisURL = src.getString("REDIS_URL", "")
	cfg.DatabaseURL = src.getString("DATABASE_URL", "")

	switch cfg.SessionStore {
	case SessionStoreMemory:
	case SessionStoreRedis:
		if cfg.RedisURL == "" {
			missing = append(missing, "REDIS_URL")
		}
	case SessionStorePostgres:
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE: %q (allowed: memory, redis, postgres)", cfg.SessionStore)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = src.getInt("SESSION_MAX_AGE", 86400)
	cfg.SessionSaveUninitialized = src.getBool("SESSION_SAVE_UNINITIALIZED", false)
	cfg.SessionResave = src.getBool("SESSION_RESAVE", false)
	cfg.SessionCleanupInterval = src.getDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RedisKeyPrefix = src.getString("REDIS_KEY_PREFIX", "socialprofile")
	cfg.ProviderTimeout = src.getDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.RateLimitAuth = src.getInt("RATE_LIMIT_AUTH", 30)
	cfg.LogLevel = src.getString("LOG_LEVEL", "info")
	cfg.ServerPort = src.getString("SERVER_PORT", defaultServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = src.getString("COOKIE_DOMAIN", "")

	if cfg.SessionMaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", cfg.SessionMaxAge)
	}
	if cfg.SessionCleanupInterval <= 0 {
		return nil, fmt.Errorf("SESSION_CLEANUP_INTERVAL must be positive, got %s", cfg.SessionCleanupInterval)
	}
	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("PROVIDER_TIMEOUT must be positive, got %s", cfg.ProviderTimeout)
	}

	return cfg, nil
}

// source は環境変数とYAMLファイルの値を合成して参照する。
type source struct {
	file map[string]string
}

// newSource はYAML設定ファイルを読み込む。pathが空の場合は環境変数のみを参照する。
// YAMLのキーは環境変数名と同じ（大文字小文字は区別しない）。
func newSource(path string) (*source, error) {
	s := &source{file: map[string]string{}}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		s.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}

	return s, nil
}

func (s *source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s *source) getString(key, defaultVal string) string {
	if v := s.lookup(key); v != "" {
		return v
	}
	return defaultVal
}

func (s *source) getInt(key string, defaultVal int) int {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s *source) getBool(key string, defaultVal bool) bool {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func (s *source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.lookup(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
