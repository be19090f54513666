package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string `mapstructure:"server_port"`

	DBHost     string `mapstructure:"db_host"`
	DBPort     string `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`

	RedisURL      string `mapstructure:"redis_url"`
	RedisPassword string `mapstructure:"redis_password"`

	JWTSecret string `mapstructure:"jwt_secret"`

	PushRelayURL string `mapstructure:"push_relay_url"`

	StorageURL    string `mapstructure:"storage_url"`
	StorageKey    string `mapstructure:"storage_key"`
	StorageBucket string `mapstructure:"storage_bucket"`
}

// Load reads configuration from the environment (PARLEY_ prefix), with an
// optional config file for local development.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server_port", "8080")
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "parley")
	v.SetDefault("db_password", "parley_dev_password")
	v.SetDefault("db_name", "parley")
	v.SetDefault("redis_url", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("push_relay_url", "")
	v.SetDefault("storage_url", "")
	v.SetDefault("storage_key", "")
	v.SetDefault("storage_bucket", "chat-media")

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("parley")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
