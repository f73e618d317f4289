package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig
	Ops    OpsConfig
	Store  StoreConfig
	Ledger LedgerConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type OpsConfig struct {
	Port int `mapstructure:"port"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
}

type LedgerConfig struct {
	Owner    string `mapstructure:"owner"`
	Treasury string `mapstructure:"treasury"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "/var/lib/adpay/badger")
	v.SetDefault("store.redis_addr", "redis:6379")
	v.SetDefault("log.level", "info")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/adpay")
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit env bindings
	bindings := map[string]string{
		"server.port":          "ADPAY_PORT",
		"ops.port":             "ADPAY_OPS_PORT",
		"store.backend":        "ADPAY_STORE_BACKEND",
		"store.path":           "ADPAY_STORE_PATH",
		"store.redis_addr":     "ADPAY_REDIS_ADDR",
		"store.redis_password": "ADPAY_REDIS_PASSWORD",
		"ledger.owner":         "ADPAY_OWNER",
		"ledger.treasury":      "ADPAY_TREASURY",
		"log.level":            "ADPAY_LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Ledger.Owner == "" {
		return nil, fmt.Errorf("ledger owner account is required (ADPAY_OWNER)")
	}
	if cfg.Ledger.Treasury == "" {
		return nil, fmt.Errorf("platform treasury account is required (ADPAY_TREASURY)")
	}
	switch cfg.Store.Backend {
	case "memory", "badger", "redis":
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return &cfg, nil
}
