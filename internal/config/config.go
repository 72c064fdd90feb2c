package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Formula sources
const (
	SourceCSV      = "csv"
	SourcePostgres = "postgres"
)

// Config is the service configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Formulas FormulasConfig `mapstructure:"formulas"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout       time.Duration `mapstructure:"request_timeout"`
	SlowRequestThreshold time.Duration `mapstructure:"slow_request_threshold"`
}

// FormulasConfig selects where the coefficient table is loaded from
type FormulasConfig struct {
	Source   string        `mapstructure:"source"`
	CSVPath  string        `mapstructure:"csv_path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 0 keeps the table until restart
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	SampleRate int    `mapstructure:"sample_rate"`
	OTEL       bool   `mapstructure:"otel"`
}

// Load reads configuration from defaults, an optional config.yaml and the environment.
// Environment variables use the IVF_ESTIMATOR_ prefix (IVF_ESTIMATOR_SERVER_PORT);
// PORT, DATABASE_URL, LOG_LEVEL and ERROR_SAMPLE_RATE are honoured as well.
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ivf-estimator/")

	v.SetEnvPrefix("IVF_ESTIMATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.BindEnv("server.port", "IVF_ESTIMATOR_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind PORT: %w", err)
	}
	if err := v.BindEnv("database.url", "IVF_ESTIMATOR_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind DATABASE_URL: %w", err)
	}
	if err := v.BindEnv("logging.level", "IVF_ESTIMATOR_LOGGING_LEVEL", "LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("failed to bind LOG_LEVEL: %w", err)
	}
	if err := v.BindEnv("logging.sample_rate", "IVF_ESTIMATOR_LOGGING_SAMPLE_RATE", "ERROR_SAMPLE_RATE"); err != nil {
		return nil, fmt.Errorf("failed to bind ERROR_SAMPLE_RATE: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.slow_request_threshold", "500ms")

	v.SetDefault("formulas.source", SourceCSV)
	v.SetDefault("formulas.csv_path", "data/ivf_success_formulas.csv")
	v.SetDefault("formulas.cache_ttl", "0s")

	v.SetDefault("database.url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.sample_rate", 1)
	v.SetDefault("logging.otel", false)
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}

	if c.Formulas.CacheTTL < 0 {
		return fmt.Errorf("invalid formulas.cache_ttl %s", c.Formulas.CacheTTL)
	}
	if c.Logging.SampleRate < 1 {
		return fmt.Errorf("invalid logging.sample_rate %d (must be at least 1)", c.Logging.SampleRate)
	}

	switch c.Formulas.Source {
	case SourceCSV:
		if c.Formulas.CSVPath == "" {
			return fmt.Errorf("formulas.csv_path is required when formulas.source is %q", SourceCSV)
		}
	case SourcePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (or DATABASE_URL) is required when formulas.source is %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown formulas.source %q (must be %s or %s)", c.Formulas.Source, SourceCSV, SourcePostgres)
	}

	return nil
}

// Addr returns the listen address
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
