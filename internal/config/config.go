// Package config loads budgetter settings from defaults, an optional config
// file, a .env file and BUDGETTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Log        LogConfig        `mapstructure:"log"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"`
	Import     ImportConfig     `mapstructure:"import"`
	Firebase   FirebaseConfig   `mapstructure:"firebase"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	APIPrefix       string        `mapstructure:"api_prefix"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ClassifierConfig selects the categorization fallback.
type ClassifierConfig struct {
	Provider  string        `mapstructure:"provider"` // none, bayes, gemini
	Threshold float64       `mapstructure:"threshold"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// DashboardConfig holds the dashboard event queue settings.
type DashboardConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Room      string `mapstructure:"room"`
}

// ImportConfig holds statement import settings.
type ImportConfig struct {
	MaxUploadBytes           int64    `mapstructure:"max_upload_bytes"`
	InternalTransferPatterns []string `mapstructure:"internal_transfer_patterns"`
	BalancePolicy            string   `mapstructure:"balance_policy"` // newer, keep
}

// FirebaseConfig enables Firebase auth and the Firestore dashboard mirror.
type FirebaseConfig struct {
	ProjectID        string `mapstructure:"project_id"`
	AuthEnabled      bool   `mapstructure:"auth_enabled"`
	MirrorCollection string `mapstructure:"mirror_collection"`
	CredentialsFile  string `mapstructure:"credentials_file"`
}

// ArchiveConfig enables raw statement archiving to Cloud Storage.
type ArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

const (
	envPrefix = "BUDGETTER"

	ProviderNone   = "none"
	ProviderBayes  = "bayes"
	ProviderGemini = "gemini"

	BalancePolicyNewer = "newer"
	BalancePolicyKeep  = "keep"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.path", "budgetter.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("classifier.provider", ProviderNone)
	v.SetDefault("classifier.threshold", 0.5)
	v.SetDefault("classifier.model", "gemini-2.5-flash")
	v.SetDefault("classifier.timeout", 20*time.Second)
	v.SetDefault("dashboard.queue_size", 256)
	v.SetDefault("dashboard.room", "dashboard")
	v.SetDefault("import.max_upload_bytes", int64(10<<20))
	v.SetDefault("import.internal_transfer_patterns", []string{})
	v.SetDefault("import.balance_policy", BalancePolicyNewer)
	v.SetDefault("firebase.project_id", "")
	v.SetDefault("firebase.auth_enabled", false)
	v.SetDefault("firebase.mirror_collection", "")
	v.SetDefault("firebase.credentials_file", "")
	v.SetDefault("archive.bucket", "")
}

// Load reads configuration. dotenv names a .env file to load first (a missing
// file is ignored); variables already set in the environment win over it.
func Load(dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if cfgPath := os.Getenv(envPrefix + "_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("budgetter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks enumerated settings and ranges.
func (c Config) Validate() error {
	switch c.Classifier.Provider {
	case ProviderNone, ProviderBayes, ProviderGemini:
	default:
		return fmt.Errorf("classifier.provider must be one of none, bayes, gemini; got %q", c.Classifier.Provider)
	}
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return fmt.Errorf("classifier.threshold must be in [0,1], got %v", c.Classifier.Threshold)
	}
	switch c.Import.BalancePolicy {
	case BalancePolicyNewer, BalancePolicyKeep:
	default:
		return fmt.Errorf("import.balance_policy must be newer or keep; got %q", c.Import.BalancePolicy)
	}
	if c.Dashboard.QueueSize <= 0 {
		return fmt.Errorf("dashboard.queue_size must be positive, got %d", c.Dashboard.QueueSize)
	}
	if c.Import.MaxUploadBytes <= 0 {
		return fmt.Errorf("import.max_upload_bytes must be positive, got %d", c.Import.MaxUploadBytes)
	}
	if c.Firebase.AuthEnabled && c.Firebase.ProjectID == "" {
		return errors.New("firebase.auth_enabled requires firebase.project_id")
	}
	if c.Firebase.MirrorCollection != "" && c.Firebase.ProjectID == "" {
		return errors.New("firebase.mirror_collection requires firebase.project_id")
	}
	return nil
}
