package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type (
	Config struct {
		Host       string `mapstructure:"HOST"`
		Port       string `mapstructure:"PORT"`
		DBDriver   string `mapstructure:"DB_DRIVER"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

		JWTSecret   string        `mapstructure:"JWT_SECRET"`
		JWTTokenTTL time.Duration `mapstructure:"JWT_TOKEN_TTL"`

		AnalyticsBaseURL  string        `mapstructure:"ANALYTICS_BASE_URL"`
		AnalyticsToken    string        `mapstructure:"ANALYTICS_TOKEN"`
		AnalyticsCacheTTL time.Duration `mapstructure:"ANALYTICS_CACHE_TTL"`
	}
)

func NewConfig() (*Config, error) {
	// .env is optional, real env vars win either way
	_ = godotenv.Load()

	viper.SetEnvPrefix("LIBREPAGE")

	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("PORT", "1323")
	viper.SetDefault("DB_DRIVER", DriverPostgres)
	viper.SetDefault("DB_HOST", "0.0.0.0")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "db")
	viper.SetDefault("DB_SSL_MODE", sslModeDisable)
	viper.SetDefault("JWT_SECRET", "development-secret")
	viper.SetDefault("JWT_TOKEN_TTL", 30*24*time.Hour)
	viper.SetDefault("ANALYTICS_BASE_URL", "https://api.tinybird.co/v0/pipes")
	viper.SetDefault("ANALYTICS_TOKEN", "")
	viper.SetDefault("ANALYTICS_CACHE_TTL", 5*time.Minute)

	envs := []string{
		"HOST", "PORT",
		"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
		"JWT_SECRET", "JWT_TOKEN_TTL",
		"ANALYTICS_BASE_URL", "ANALYTICS_TOKEN", "ANALYTICS_CACHE_TTL",
	}
	for _, key := range envs {
		if err := viper.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	validDrivers := []string{DriverPostgres, DriverSQLite}
	driverOK := false
	for _, validValue := range validDrivers {
		if cfg.DBDriver == validValue {
			driverOK = true
			break
		}
	}
	if !driverOK {
		return errors.New(fmt.Sprintf("DB driver is invalid: %s", cfg.DBDriver))
	}

	validSSLValues := []string{sslModeDisable, sslModeRequire}
	for _, validValue := range validSSLValues {
		if cfg.DBSSLMode == validValue {
			return nil
		}
	}
	return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
}
