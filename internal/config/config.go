package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	SignalURL   string        `mapstructure:"signal_url"`
	STUNServers []string      `mapstructure:"stun_servers"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	LogLevel    string        `mapstructure:"log_level"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("signal_url", "ws://localhost:8000/ws/calls")
	v.SetDefault("stun_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("dial_timeout", "10s")
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Signal: %s | Log: %s\n", cfg.SignalURL, cfg.LogLevel)
	return &cfg, nil
}
