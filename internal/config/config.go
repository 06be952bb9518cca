// Package config loads sheetvoice settings from the environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Archive backends.
const (
	BackendJSON    = "json"
	BackendSQLite  = "sqlite"
	BackendSurreal = "surreal"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	Port           string
	MaxUploadBytes int64

	// Storage layout
	DataDir     string
	AudioDir    string
	UploadDir   string
	LibraryFile string

	// Archive backend
	ArchiveBackend string
	SQLitePath     string

	// SurrealDB connection (surreal backend only)
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Speech synthesis
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	DefaultVoice       string

	// Jobs
	JobRetention  time.Duration
	SweepInterval time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for YAML files. Empty fields keep defaults.
type fileConfig struct {
	Port           string `yaml:"port"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
	DataDir        string `yaml:"data_dir"`
	ArchiveBackend string `yaml:"archive_backend"`
	SQLitePath     string `yaml:"sqlite_path"`
	SurrealDB      struct {
		URL       string `yaml:"url"`
		Namespace string `yaml:"namespace"`
		Database  string `yaml:"database"`
		User      string `yaml:"user"`
		Pass      string `yaml:"pass"`
		AuthLevel string `yaml:"auth_level"`
	} `yaml:"surrealdb"`
	AWS struct {
		Region       string `yaml:"region"`
		DefaultVoice string `yaml:"default_voice"`
	} `yaml:"aws"`
	JobRetention  string `yaml:"job_retention"`
	SweepInterval string `yaml:"sweep_interval"`
	LogFile       string `yaml:"log_file"`
	LogLevel      string `yaml:"log_level"`
}

// Load reads configuration from environment variables.
// If SHEETVOICE_CONFIG names a YAML file, its values become the defaults.
func Load() (Config, error) {
	var fc fileConfig
	if path := os.Getenv("SHEETVOICE_CONFIG"); path != "" {
		var err error
		fc, err = readFile(path)
		if err != nil {
			return Config{}, err
		}
	}
	return fromEnv(fc), nil
}

func readFile(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

func fromEnv(fc fileConfig) Config {
	dataDir := getEnv("SHEETVOICE_DATA_DIR", or(fc.DataDir, "./data"))
	maxUploadMB := "10"
	if fc.MaxUploadMB > 0 {
		maxUploadMB = strconv.Itoa(fc.MaxUploadMB)
	}

	return Config{
		Port:           getEnv("SHEETVOICE_PORT", or(fc.Port, "3001")),
		MaxUploadBytes: int64(getEnvAsInt("SHEETVOICE_MAX_UPLOAD_MB", maxUploadMB)) << 20,

		DataDir:     dataDir,
		AudioDir:    getEnv("SHEETVOICE_AUDIO_DIR", filepath.Join(dataDir, "audio")),
		UploadDir:   getEnv("SHEETVOICE_UPLOAD_DIR", filepath.Join(dataDir, "uploads")),
		LibraryFile: getEnv("SHEETVOICE_LIBRARY_FILE", filepath.Join(dataDir, "library.json")),

		ArchiveBackend: strings.ToLower(getEnv("ARCHIVE_BACKEND", or(fc.ArchiveBackend, BackendJSON))),
		SQLitePath:     getEnv("SHEETVOICE_SQLITE_PATH", or(fc.SQLitePath, filepath.Join(dataDir, "library.db"))),

		SurrealDBURL:       getEnv("SURREALDB_URL", or(fc.SurrealDB.URL, "ws://localhost:8000/rpc")),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", or(fc.SurrealDB.Namespace, "sheetvoice")),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", or(fc.SurrealDB.Database, "library")),
		SurrealDBUser:      getEnv("SURREALDB_USER", or(fc.SurrealDB.User, "root")),
		SurrealDBPass:      getEnv("SURREALDB_PASS", or(fc.SurrealDB.Pass, "root")),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", or(fc.SurrealDB.AuthLevel, "root")),

		// Credentials are never read from the config file.
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          getEnv("AWS_REGION", or(fc.AWS.Region, "us-east-1")),
		DefaultVoice:       getEnv("SHEETVOICE_DEFAULT_VOICE", or(fc.AWS.DefaultVoice, "Joanna")),

		JobRetention:  getEnvAsDuration("SHEETVOICE_JOB_RETENTION", or(fc.JobRetention, "1h")),
		SweepInterval: getEnvAsDuration("SHEETVOICE_SWEEP_INTERVAL", or(fc.SweepInterval, "1m")),

		LogFile:  getEnv("SHEETVOICE_LOG_FILE", or(fc.LogFile, filepath.Join(os.TempDir(), "sheetvoice.log"))),
		LogLevel: parseLogLevel(getEnv("SHEETVOICE_LOG_LEVEL", or(fc.LogLevel, "INFO"))),
	}
}

// PrimaryConfigured reports whether credentials for the speech service are present.
func (c Config) PrimaryConfigured() bool {
	return c.AWSAccessKeyID != "" && c.AWSSecretAccessKey != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key, defaultVal string) int {
	n, err := strconv.Atoi(getEnv(key, defaultVal))
	if err != nil {
		n, _ = strconv.Atoi(defaultVal)
	}
	return n
}

func getEnvAsDuration(key, defaultVal string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, defaultVal))
	if err != nil {
		d, _ = time.ParseDuration(defaultVal)
	}
	return d
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
