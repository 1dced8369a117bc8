package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string
	RedisAddr string

	// ExecURL is the hosted code-execution collaborator (Judge0-style API).
	ExecURL    string
	ExecAPIKey string

	// JWTSecret signs room tokens. Empty means every connection is a guest.
	JWTSecret string

	// EmptyRoomGrace is how long an empty room's state survives before the
	// registry discards it, absorbing reload/reconnect churn.
	EmptyRoomGrace time.Duration

	// ChatLogCap bounds the in-memory chat replay per room.
	ChatLogCap int
}

// Load reads config.yaml if present and lets environment variables override
// every key (PORT, REDIS_ADDR, EXEC_URL, ...).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("port", "8080")
	v.SetDefault("redis_addr", "redis:6379")
	v.SetDefault("exec_url", "https://judge0-ce.p.rapidapi.com")
	v.SetDefault("exec_api_key", "")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("empty_room_grace", time.Minute)
	v.SetDefault("chat_log_cap", 100)

	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return &Config{
		Port:           v.GetString("port"),
		RedisAddr:      v.GetString("redis_addr"),
		ExecURL:        v.GetString("exec_url"),
		ExecAPIKey:     v.GetString("exec_api_key"),
		JWTSecret:      v.GetString("jwt_secret"),
		EmptyRoomGrace: v.GetDuration("empty_room_grace"),
		ChatLogCap:     v.GetInt("chat_log_cap"),
	}, nil
}
