package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Challenge ChallengeConfig `mapstructure:"challenge"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// StoreConfig selects the shared document store. Backend is "memory" or "redis".
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig configures the optional round archive. Driver is "none", "gorm" or "pq".
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type PresenceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	InactiveThreshold time.Duration `mapstructure:"inactive_threshold"`
	LoginTimeout      time.Duration `mapstructure:"login_timeout"`
}

type NotifyConfig struct {
	PlayerAvailable time.Duration `mapstructure:"player_available"`
	Transient       time.Duration `mapstructure:"transient"`
}

type ChallengeConfig struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	OrphanGrace time.Duration `mapstructure:"orphan_grace"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.metrics_address", ":9090")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.prefix", "rps:")

	v.SetDefault("database.driver", "none")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "rps")
	v.SetDefault("database.postgres.dbname", "rps")

	v.SetDefault("presence.heartbeat_interval", 30*time.Second)
	v.SetDefault("presence.inactive_threshold", 2*time.Minute)
	v.SetDefault("presence.login_timeout", 10*time.Second)

	v.SetDefault("notify.player_available", 5*time.Second)
	v.SetDefault("notify.transient", 3*time.Second)

	v.SetDefault("challenge.rate", 1.0)
	v.SetDefault("challenge.burst", 5)

	v.SetDefault("reconcile.interval", time.Minute)
	v.SetDefault("reconcile.orphan_grace", time.Minute)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and RPS_* environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("RPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
