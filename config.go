package main

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read from the environment. A .env file in the working directory
// is loaded first by godotenv/autoload (see main.go).
type Config struct {
	Port            string        `env:"PORT"              envDefault:"8080"`
	GinMode         string        `env:"GIN_MODE"`
	ContentFile     string        `env:"CONTENT_FILE"`
	ImagesDir       string        `env:"IMAGES_DIR"        envDefault:"./images"`
	TrustedProxies  []string      `env:"TRUSTED_PROXIES"   envSeparator:","`
	DatabasePath    string        `env:"DATABASE_PATH"     envDefault:"portfolio.db"`
	AdminUsername   string        `env:"ADMIN_USERNAME"    envDefault:"admin"`
	AdminPassword   string        `env:"ADMIN_PASSWORD"    envDefault:"admin123"`
	TrackingEnabled bool          `env:"TRACKING_ENABLED"  envDefault:"true"`
	Retention       time.Duration `env:"VISITOR_RETENTION" envDefault:"8760h"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL"         envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT"        envDefault:"text"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Retention <= 0 {
		return Config{}, fmt.Errorf("VISITOR_RETENTION must be positive, got %s", cfg.Retention)
	}
	return cfg, nil
}

// usingDefaultCredentials reports whether the admin login still uses the
// development defaults.
func (c Config) usingDefaultCredentials() bool {
	return c.AdminUsername == "admin" || c.AdminPassword == "admin123"
}
