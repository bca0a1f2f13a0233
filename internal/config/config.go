package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config is everything the server needs at startup. Secrets come from the
// environment (Docker); a config.yaml can fill in the rest for local runs.
type Config struct {
	Addr      string `mapstructure:"addr"`
	DBDSN     string `mapstructure:"db_dsn"`
	JWTSecret string `mapstructure:"jwt_secret"`
	RedisAddr string `mapstructure:"redis_addr"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("config")

	v.SetDefault("addr", ":8080")
	v.SetDefault("redis_addr", "localhost:6379")

	// DB_DSN, JWT_SECRET, REDIS_ADDR, ADDR override file values.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		// No file is fine as long as the environment is complete.
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	if c.DBDSN == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	if c.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}
	return &c, nil
}
