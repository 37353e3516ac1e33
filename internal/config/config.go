package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DBDriver      string        `mapstructure:"db_driver"`
	DSN           string        `mapstructure:"db_dsn"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	AppPort       string        `mapstructure:"app_port"`
	LogLevel      string        `mapstructure:"log_level"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	SeedOnStart   bool          `mapstructure:"seed_on_start"`
	AdminUsername string        `mapstructure:"admin_username"`
	AdminPassword string        `mapstructure:"admin_password"`
}

const devSecret = "dev-secret-only"

// Load reads .env (when present) and the process environment.
// MYSQL_DSN is accepted as an alias of DB_DSN.
func Load() (Config, error) {
	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_driver", "mysql")
	v.SetDefault("jwt_secret", devSecret)
	v.SetDefault("app_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("token_ttl", 24*time.Hour)
	v.SetDefault("secure_cookies", false)
	v.SetDefault("seed_on_start", false)
	v.SetDefault("admin_username", "admin")
	v.SetDefault("admin_password", "")
	// Bind keys without defaults so Unmarshal sees them.
	_ = v.BindEnv("db_dsn", "DB_DSN", "MYSQL_DSN")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DSN == "" {
		return errors.New("DB_DSN (or MYSQL_DSN) not set in environment")
	}
	if c.SeedOnStart && c.AdminPassword == "" {
		return errors.New("ADMIN_PASSWORD is required when SEED_ON_START is set")
	}
	return nil
}

// UsesDevSecret reports whether tokens are signed with the built-in secret.
func (c Config) UsesDevSecret() bool { return c.JWTSecret == devSecret }

// String masks secrets.
func (c Config) String() string {
	return fmt.Sprintf("Config{driver: %s, port: %s, log: %s, ttl: %s, secret: ***}",
		c.DBDriver, c.AppPort, c.LogLevel, c.TokenTTL)
}
