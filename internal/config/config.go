package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Encryption    EncryptionConfig   `mapstructure:"encryption"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Scheduler     SchedulerConfig    `mapstructure:"scheduler"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	TempDir  string `mapstructure:"temp_dir"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type EncryptionConfig struct {
	// Key is the hex encoded 32 byte AES key.
	Key string `mapstructure:"key"`
}

type StorageConfig struct {
	DefaultService string      `mapstructure:"default_service"`
	Bucket         string      `mapstructure:"bucket"`
	Local          LocalConfig `mapstructure:"local"`
	S3             S3Config    `mapstructure:"s3"`
	GCS            GCSConfig   `mapstructure:"gcs"`
}

type LocalConfig struct {
	Path string `mapstructure:"path"`
}

type S3Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type GCSConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

type SchedulerConfig struct {
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

type NotificationConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

var knownServices = map[string]bool{
	"aws":   true,
	"gcp":   true,
	"local": true,
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("CLOUDVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cloudvault")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.temp_dir", os.TempDir())
	v.SetDefault("database.path", "data/cloudvault.db")
	v.SetDefault("storage.default_service", "local")
	v.SetDefault("storage.bucket", "cloudvault")
	v.SetDefault("storage.local.path", "data/objects")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("scheduler.refresh_schedule", "0 0 * * *")
	v.SetDefault("metrics.addr", ":9090")
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Encryption.Key != "" {
		key, err := hex.DecodeString(c.Encryption.Key)
		if err != nil {
			return fmt.Errorf("encryption.key must be hex encoded: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("encryption.key must be 32 bytes, got %d", len(key))
		}
	}

	if !knownServices[c.Storage.DefaultService] {
		return fmt.Errorf("storage.default_service %q is not supported", c.Storage.DefaultService)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Storage.Local.Path == "" {
		return fmt.Errorf("storage.local.path is required")
	}

	if c.Scheduler.RefreshSchedule == "" {
		return fmt.Errorf("scheduler.refresh_schedule is required")
	}

	tg := c.Notifications.Telegram
	if tg.Enabled && (tg.BotToken == "" || tg.ChatID == "") {
		return fmt.Errorf("notifications.telegram: bot_token and chat_id are required when enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	return nil
}

// EncryptionKey decodes the configured key. A nil key means encryption is
// not available.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Encryption.Key == "" {
		return nil, nil
	}
	return hex.DecodeString(c.Encryption.Key)
}
