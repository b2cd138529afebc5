// Package config loads the sync daemon configuration from flags, environment variables, .env files and an optional YAML file.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	App     AppConfig
	Logger  LoggerConfig
	API     APIConfig
	Push    PushConfig
	Storage StorageConfig
	Server  ServerConfig
	Sync    SyncConfig

	// File is the YAML file the config was read from, empty when none was used.
	File string
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// APIConfig configures the backend REST client.
type APIConfig struct {
	BaseURL           string        // default: http://localhost:7000/api
	Timeout           time.Duration // default: 10s
	RequestsPerSecond float64       // per resource, 0 disables limiting
	Burst             int
	MaxRetries        int // retries for idempotent GETs only, 0 disables
}

// PushConfig configures the STOMP push transport.
type PushConfig struct {
	URL              string
	FallbackURLs     []string
	Heartbeat        time.Duration // both directions, default 4s
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
	MaxAttempts      int
}

// StorageConfig holds local persistence configuration.
type StorageConfig struct {
	DataPath string
}

// ServerConfig configures the local API server.
type ServerConfig struct {
	ListenAddr   string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SyncConfig holds store defaults.
type SyncConfig struct {
	PageSize int
}

// fileConfig mirrors the YAML layout. Durations are strings so "4s" reads naturally.
type fileConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	API      struct {
		BaseURL    string  `yaml:"base_url"`
		Timeout    string  `yaml:"timeout"`
		RPS        float64 `yaml:"rps"`
		Burst      int     `yaml:"burst"`
		MaxRetries int     `yaml:"max_retries"`
	} `yaml:"api"`
	Push struct {
		URL              string   `yaml:"url"`
		FallbackURLs     []string `yaml:"fallback_urls"`
		Heartbeat        string   `yaml:"heartbeat"`
		ReconnectInitial string   `yaml:"reconnect_initial"`
		ReconnectMax     string   `yaml:"reconnect_max"`
		MaxAttempts      int      `yaml:"max_attempts"`
	} `yaml:"push"`
	Storage struct {
		DataPath string `yaml:"data_path"`
	} `yaml:"storage"`
	Server struct {
		ListenAddr  string   `yaml:"listen_addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Sync struct {
		PageSize int `yaml:"page_size"`
	} `yaml:"sync"`
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. YAML config file.
// 5. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("stackit-sync", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	configFile := fs.String("config", "", "Path to YAML config file")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	apiURL := fs.String("api-url", "", "Backend REST base URL")
	apiTimeout := fs.String("api-timeout", "", "Backend request timeout (default: 10s)")
	apiRPS := fs.String("api-rps", "", "Requests per second per resource (0 disables)")
	apiRetries := fs.String("api-max-retries", "", "Retries for idempotent GETs (default: 2)")

	pushURL := fs.String("push-url", "", "Push websocket URL")
	pushFallbacks := fs.String("push-fallback-urls", "", "Comma separated fallback websocket URLs")
	pushMaxAttempts := fs.String("push-max-attempts", "", "Reconnect attempts before giving up (default: 10)")

	dataPath := fs.String("data-path", "", "Directory for local state")
	listenAddr := fs.String("listen", "", "Local API listen address (default: 127.0.0.1:7080)")
	pageSize := fs.String("page-size", "", "Default page size (default: 20)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// .env never overrides variables already present in the environment.
	_ = godotenv.Load(*envFile)

	var fc fileConfig
	path := getConfigValue(*configFile, "STACKIT_CONFIG", "", "")
	if path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return nil, err
		}
		fc = *loaded
	}

	cfg := &Config{
		File: path,
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", fc.Env, "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", fc.LogLevel, "info"),
		},
		API: APIConfig{
			BaseURL:           strings.TrimRight(getConfigValue(*apiURL, "STACKIT_API_URL", fc.API.BaseURL, "http://localhost:7000/api"), "/"),
			RequestsPerSecond: getFloatConfigValue(*apiRPS, "STACKIT_API_RPS", fc.API.RPS, 20),
			Burst:             getIntConfigValue("", "STACKIT_API_BURST", fc.API.Burst, 10),
			MaxRetries:        getIntConfigValue(*apiRetries, "STACKIT_API_MAX_RETRIES", fc.API.MaxRetries, 2),
		},
		Push: PushConfig{
			URL:          getConfigValue(*pushURL, "STACKIT_PUSH_URL", fc.Push.URL, "ws://localhost:7000/api/ws/websocket"),
			FallbackURLs: getListConfigValue(*pushFallbacks, "STACKIT_PUSH_FALLBACK_URLS", fc.Push.FallbackURLs),
			MaxAttempts:  getIntConfigValue(*pushMaxAttempts, "STACKIT_PUSH_MAX_ATTEMPTS", fc.Push.MaxAttempts, 10),
		},
		Storage: StorageConfig{
			DataPath: getConfigValue(*dataPath, "STACKIT_DATA_PATH", fc.Storage.DataPath, ""),
		},
		Server: ServerConfig{
			ListenAddr:   getConfigValue(*listenAddr, "STACKIT_LISTEN", fc.Server.ListenAddr, "127.0.0.1:7080"),
			CORSOrigins:  getListConfigValue("", "STACKIT_CORS_ORIGINS", fc.Server.CORSOrigins),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // SSE streams stay open
		},
		Sync: SyncConfig{
			PageSize: getIntConfigValue(*pageSize, "STACKIT_PAGE_SIZE", fc.Sync.PageSize, 20),
		},
	}

	var err error
	if cfg.API.Timeout, err = getDurationConfigValue(*apiTimeout, "STACKIT_API_TIMEOUT", fc.API.Timeout, "10s"); err != nil {
		return nil, err
	}
	if cfg.Push.Heartbeat, err = getDurationConfigValue("", "STACKIT_PUSH_HEARTBEAT", fc.Push.Heartbeat, "4s"); err != nil {
		return nil, err
	}
	if cfg.Push.ReconnectInitial, err = getDurationConfigValue("", "STACKIT_PUSH_RECONNECT_INITIAL", fc.Push.ReconnectInitial, "1s"); err != nil {
		return nil, err
	}
	if cfg.Push.ReconnectMax, err = getDurationConfigValue("", "STACKIT_PUSH_RECONNECT_MAX", fc.Push.ReconnectMax, "30s"); err != nil {
		return nil, err
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %q (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if err := checkURL(c.API.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("api base url: %w", err)
	}
	if c.API.Timeout <= 0 {
		return errors.New("api timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api max retries cannot be negative")
	}

	for _, u := range append([]string{c.Push.URL}, c.Push.FallbackURLs...) {
		if err := checkURL(u, "ws", "wss"); err != nil {
			return fmt.Errorf("push url: %w", err)
		}
	}
	if c.Push.MaxAttempts < 1 {
		return errors.New("push max attempts must be at least 1")
	}
	if c.Push.ReconnectInitial <= 0 || c.Push.ReconnectMax < c.Push.ReconnectInitial {
		return fmt.Errorf("push reconnect window %s..%s is invalid", c.Push.ReconnectInitial, c.Push.ReconnectMax)
	}

	if c.Sync.PageSize < 1 || c.Sync.PageSize > 100 {
		return fmt.Errorf("page size %d out of range 1..100", c.Sync.PageSize)
	}

	if c.Storage.DataPath == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	return nil
}

// PushURLs returns the primary URL followed by the fallbacks, in dial order.
func (c *Config) PushURLs() []string {
	urls := make([]string, 0, 1+len(c.Push.FallbackURLs))
	urls = append(urls, c.Push.URL)
	return append(urls, c.Push.FallbackURLs...)
}

// ReadLogLevel re-reads only the log level from a YAML file. Used by the config watcher.
func ReadLogLevel(path string) (string, error) {
	fc, err := readFile(path)
	if err != nil {
		return "", err
	}
	return fc.LogLevel, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- config path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func checkURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s URL", raw, strings.Join(schemes, "/"))
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is used.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	defaultPath := ""
	if homeDir, err := os.UserHomeDir(); err == nil {
		defaultPath = filepath.Join(homeDir, ".stackit", "sync")
	}

	expanded, err := expandPath(c.Storage.DataPath, defaultPath)
	if err != nil {
		return err
	}
	c.Storage.DataPath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, file, or default.
func getConfigValue(flagValue, envKey, fileValue, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, file, or default.
// Unparseable values fall back to the default.
func getIntConfigValue(flagValue, envKey string, fileValue, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "", "")
	if strValue == "" {
		if fileValue != 0 {
			return fileValue
		}
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

func getFloatConfigValue(flagValue, envKey string, fileValue, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "", "")
	if strValue == "" {
		if fileValue != 0 {
			return fileValue
		}
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func getDurationConfigValue(flagValue, envKey, fileValue, defaultValue string) (time.Duration, error) {
	raw := getConfigValue(flagValue, envKey, fileValue, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s %q: %w", envKey, raw, err)
	}
	return d, nil
}

func getListConfigValue(flagValue, envKey string, fileValue []string) []string {
	raw := getConfigValue(flagValue, envKey, "", "")
	if raw == "" {
		return fileValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
