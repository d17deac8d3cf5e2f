package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"laborcond/logging"
)

const (
	AppName   = "laborcond"
	EnvPrefix = "LABORCOND"
)

type Config struct {
	HTTP   HTTPConfig      `mapstructure:"http"`
	Models ModelsConfig    `mapstructure:"models"`
	Assets AssetsConfig    `mapstructure:"assets"`
	Log    logging.Options `mapstructure:"log"`
	DB     DBConfig        `mapstructure:"db"`
}

type HTTPConfig struct {
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxConnections int           `mapstructure:"max_connections" validate:"min=1"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

type ModelsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
	// CacheSize 0 reloads every artifact on each request.
	CacheSize int `mapstructure:"cache_size" validate:"min=0"`
	// Manifest replaces the built-in registry when set.
	Manifest string `mapstructure:"manifest"`
}

type AssetsConfig struct {
	Dir             string `mapstructure:"dir"`
	SupportDocument string `mapstructure:"support_document"`
}

// DBConfig configures the prediction log. An empty Path disables it.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	logDefaults := logging.DefaultOptions()

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.max_connections", 100)
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("models.dir", "./models")
	v.SetDefault("models.cache_size", 16)
	v.SetDefault("models.manifest", "")
	v.SetDefault("assets.dir", "./assets")
	v.SetDefault("assets.support_document", "./assets/Soporte.pdf")
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", logDefaults.MaxSizeMB)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age_days", logDefaults.MaxAgeDays)
	v.SetDefault("db.path", "")
}

// New returns a viper instance with defaults and environment overrides
// (LABORCOND_HTTP_PORT and so on) in place. Callers may bind flags to it
// before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path, or laborcond.yaml from the working directory when path is
// empty. A missing default file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
