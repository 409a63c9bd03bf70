/*
config.go - Runtime configuration

PURPOSE:
  Loads server configuration from the environment. A .env file in the
  working directory is read first if present; real environment variables
  win over it. cobra flags are applied on top by cmd/server.

KEYS:
  PORT                  HTTP port (8080)
  DB_PATH               SQLite file, or :memory: (fulfillment.db)
  LOG_LEVEL             trace|debug|info|warn|error (info)
  LOG_FORMAT            console|json (console)
  LOG_OUTPUT            stdout|stderr|<file> (stdout)
  GST_RATE              Tax rate applied to invoice subtotals (0.15)
  INVOICE_PREFIX        Invoice number prefix (INV)
  INVOICE_DEDUP_WINDOW  Recent invoices searched for a repeated token (20)
  LOW_STOCK_INTERVAL    Low stock monitor period, 0 disables it (15m)
  CORS_ORIGINS          Comma separated allowed origins
  SHUTDOWN_TIMEOUT      Grace period for in-flight requests (30s)

SEE ALSO:
  - cmd/server/main.go: Flag overrides
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/warp/fulfillment-engine/logging"
	"github.com/warp/fulfillment-engine/production"
)

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"fulfillment.db"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	LogOutput string `env:"LOG_OUTPUT" envDefault:"stdout"`

	GSTRate            decimal.Decimal `env:"GST_RATE" envDefault:"0.15"`
	InvoicePrefix      string          `env:"INVOICE_PREFIX" envDefault:"INV"`
	InvoiceDedupWindow int             `env:"INVOICE_DEDUP_WINDOW" envDefault:"20"`

	LowStockInterval time.Duration `env:"LOW_STOCK_INTERVAL" envDefault:"15m"`
	CORSOrigins      []string      `env:"CORS_ORIGINS" envSeparator:","`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load reads the given dotenv files (default .env), then the environment.
// Missing dotenv files are not an error.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("config: DB_PATH is required")
	}
	if c.GSTRate.IsNegative() {
		return fmt.Errorf("config: GST_RATE %s must not be negative", c.GSTRate)
	}
	if c.InvoicePrefix == "" {
		return errors.New("config: INVOICE_PREFIX is required")
	}
	if c.InvoiceDedupWindow <= 0 {
		return fmt.Errorf("config: INVOICE_DEDUP_WINDOW %d must be positive", c.InvoiceDedupWindow)
	}
	if c.LowStockInterval < 0 {
		return fmt.Errorf("config: LOW_STOCK_INTERVAL %s must not be negative", c.LowStockInterval)
	}
	return nil
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) InvoiceConfig() production.InvoiceConfig {
	return production.InvoiceConfig{
		Prefix:      c.InvoicePrefix,
		GSTRate:     c.GSTRate,
		DedupWindow: c.InvoiceDedupWindow,
	}
}

func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat, Output: c.LogOutput}
}
