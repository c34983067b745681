package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds filevault server configuration.
// Loaded from ~/.filevault/config.json with environment variable overrides.
type Config struct {
	// Debug enables debug-level logging.
	// Env override: FILEVAULT_DEBUG=1
	Debug bool `json:"debug"`

	// LogJSON switches the log handler to JSON output.
	LogJSON bool `json:"log_json"`

	HTTP     HTTPConfig     `json:"http"`
	Database DatabaseConfig `json:"database"`
	Blobs    BlobConfig     `json:"blobs"`
	Model    ModelConfig    `json:"model"`
	Storage  StorageConfig  `json:"storage"`
}

// HTTPConfig holds settings for the optional TCP HTTP listener.
type HTTPConfig struct {
	// Port is the TCP port for the remote API listener (e.g., 8080).
	// If 0, only the unix socket is served.
	Port int `json:"port"`

	// APIKey, when set, is required as "Authorization: Bearer <api_key>"
	// on the TCP listener.
	APIKey string `json:"api_key"`
}

// DatabaseConfig selects the SQLite catalog file and driver.
type DatabaseConfig struct {
	// Path defaults to ~/.filevault/filevault.db.
	Path string `json:"path"`

	// Driver is "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
	Driver string `json:"driver"`
}

// BlobConfig selects where uploaded bytes live.
type BlobConfig struct {
	// Backend is "local" (default) or "s3".
	Backend string `json:"backend"`

	// Dir is the root for the local backend. Defaults to ~/.filevault/blobs.
	Dir string `json:"dir"`

	S3 S3Config `json:"s3"`
}

// S3Config holds the S3 (or S3-compatible) bucket settings.
type S3Config struct {
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	UsePathStyle    bool   `json:"use_path_style"`
}

// ModelConfig selects the language model backend.
type ModelConfig struct {
	// Provider is "gemini" (default) or "anthropic".
	Provider string `json:"provider"`

	// Name is the provider-specific model identifier.
	Name string `json:"name"`

	APIKey string `json:"api_key"`

	// TimeoutSeconds bounds a single model call. Defaults to 60.
	TimeoutSeconds int `json:"timeout_seconds"`

	// MaxConcurrent bounds in-flight model calls across all sessions. Defaults to 8.
	MaxConcurrent int `json:"max_concurrent"`

	MaxTokens int `json:"max_tokens"`
}

// StorageConfig holds content store behaviour.
type StorageConfig struct {
	// DeletePolicy is "hard" (default) or "decrement".
	DeletePolicy string `json:"delete_policy"`
}

// Dir returns the filevault state directory (~/.filevault).
func Dir() string {
	if dir := os.Getenv("FILEVAULT_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".filevault"
	}
	return filepath.Join(home, ".filevault")
}

// Load reads configuration from the config file, then applies
// environment variable overrides and defaults. Config file locations checked in order:
//  1. FILEVAULT_CONFIG env var (if set)
//  2. ~/.filevault/config.json
//
// Missing file is not an error.
func Load() Config {
	var cfg Config

	configPath := os.Getenv("FILEVAULT_CONFIG")
	if configPath == "" {
		configPath = filepath.Join(Dir(), "config.json")
	}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			slog.Warn("Failed to parse config file", "path", configPath, "error", err)
		}
	case !os.IsNotExist(err):
		slog.Warn("Failed to read config file", "path", configPath, "error", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	return cfg
}

// applyEnvOverrides applies environment variable overrides to the config.
// Env vars take precedence over config file values.
func applyEnvOverrides(cfg *Config) {
	if os.Getenv("FILEVAULT_DEBUG") == "1" {
		cfg.Debug = true
	}
	if addr := os.Getenv("FILEVAULT_HTTP_ADDR"); addr != "" {
		if port := parsePort(addr); port > 0 {
			cfg.HTTP.Port = port
		}
	}
	setString(&cfg.HTTP.APIKey, "FILEVAULT_API_KEY")
	setString(&cfg.Database.Path, "FILEVAULT_DB_PATH")
	setString(&cfg.Database.Driver, "FILEVAULT_DB_DRIVER")
	setString(&cfg.Blobs.Backend, "FILEVAULT_BLOB_BACKEND")
	setString(&cfg.Blobs.Dir, "FILEVAULT_BLOB_DIR")
	setString(&cfg.Blobs.S3.Bucket, "FILEVAULT_S3_BUCKET")
	setString(&cfg.Blobs.S3.Region, "FILEVAULT_S3_REGION")
	setString(&cfg.Blobs.S3.Endpoint, "FILEVAULT_S3_ENDPOINT")
	setString(&cfg.Model.Provider, "FILEVAULT_MODEL_PROVIDER")
	setString(&cfg.Model.Name, "FILEVAULT_MODEL")
	setString(&cfg.Storage.DeletePolicy, "FILEVAULT_DELETE_POLICY")

	if cfg.Model.APIKey == "" {
		switch strings.ToLower(cfg.Model.Provider) {
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.Model.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		}
	}
}

func applyDefaults(cfg *Config) {
	dir := Dir()
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(dir, "filevault.db")
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite3"
	}
	if cfg.Blobs.Backend == "" {
		cfg.Blobs.Backend = "local"
	}
	if cfg.Blobs.Dir == "" {
		cfg.Blobs.Dir = filepath.Join(dir, "blobs")
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "gemini"
	}
	if cfg.Model.TimeoutSeconds <= 0 {
		cfg.Model.TimeoutSeconds = 60
	}
	if cfg.Model.MaxConcurrent <= 0 {
		cfg.Model.MaxConcurrent = 8
	}
	if cfg.Model.MaxTokens <= 0 {
		cfg.Model.MaxTokens = 1024
	}
	if cfg.Storage.DeletePolicy == "" {
		cfg.Storage.DeletePolicy = "hard"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// parsePort extracts the port number from an address string like ":8080" or "0.0.0.0:8080".
func parsePort(addr string) int {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return 0
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port < 0 {
		return 0
	}
	return port
}

// HTTPAddr returns the TCP listen address string (e.g., ":8080") or empty string if disabled.
func (c *Config) HTTPAddr() string {
	if c.HTTP.Port == 0 {
		return ""
	}
	return ":" + strconv.Itoa(c.HTTP.Port)
}

// ModelTimeout returns the per-call model timeout.
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// LogDir returns the directory for rotated logs.
func (c *Config) LogDir() string {
	return filepath.Join(Dir(), "logs")
}

// SocketPath returns the unix socket the daemon listens on.
func SocketPath() string {
	return filepath.Join(Dir(), "filevault.sock")
}
