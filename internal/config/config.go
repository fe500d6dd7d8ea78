package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	sslModeDisable = "disable"
	sslModeRequire = "require"
)

type (
	Config struct {
		Host       string `mapstructure:"HOST"`
		Port       string `mapstructure:"PORT"`
		DBHost     string `mapstructure:"DB_HOST"`
		DBPort     string `mapstructure:"DB_PORT"`
		DBUser     string `mapstructure:"DB_USER"`
		DBPassword string `mapstructure:"DB_PASSWORD"`
		DBName     string `mapstructure:"DB_NAME"`
		DBSSLMode  string `mapstructure:"DB_SSL_MODE"`

		// DBConnectTimeout bounds how long a request waits for the shared
		// database connection to come up before failing with 503.
		DBConnectTimeout time.Duration `mapstructure:"DB_CONNECT_TIMEOUT"`

		JWTSecret string        `mapstructure:"JWT_SECRET"`
		TokenTTL  time.Duration `mapstructure:"TOKEN_TTL"`

		BcryptCost   int `mapstructure:"BCRYPT_COST"`
		ShareHashLen int `mapstructure:"SHARE_HASH_LEN"`
	}
)

func NewConfig() (*Config, error) {
	viper.SetEnvPrefix("HIVEMIND")

	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("PORT", "1323")
	viper.SetDefault("DB_HOST", "0.0.0.0")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "db")
	viper.SetDefault("DB_SSL_MODE", sslModeDisable)
	viper.SetDefault("DB_CONNECT_TIMEOUT", "10s")
	viper.SetDefault("TOKEN_TTL", "720h")
	viper.SetDefault("BCRYPT_COST", bcrypt.DefaultCost)
	viper.SetDefault("SHARE_HASH_LEN", 10)

	envs := []string{
		"HOST", "PORT",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE", "DB_CONNECT_TIMEOUT",
		"JWT_SECRET", "TOKEN_TTL", "BCRYPT_COST", "SHARE_HASH_LEN",
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
	validSSLValues := []string{sslModeDisable, sslModeRequire}
	sslOK := false
	for _, validValue := range validSSLValues {
		if cfg.DBSSLMode == validValue {
			sslOK = true
			break
		}
	}
	if !sslOK {
		return errors.New(fmt.Sprintf("DB SSL mode is invalid: %s", cfg.DBSSLMode))
	}

	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return errors.New(fmt.Sprintf("bcrypt cost out of range: %d", cfg.BcryptCost))
	}
	if cfg.ShareHashLen < 6 {
		return errors.New(fmt.Sprintf("share hash length too short: %d", cfg.ShareHashLen))
	}
	if cfg.DBConnectTimeout <= 0 {
		return errors.New("DB connect timeout must be positive")
	}

	return nil
}
