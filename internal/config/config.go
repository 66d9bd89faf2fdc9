// Package config содержит логику чтения конфигурации клиента курьера.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	defaultRunAddress     = "localhost:8080"
	defaultBackendAddress = "https://api.vilkimedicart.in/api"
	defaultSessionStore   = "sqlite://courier-agent.db"
)

// Config содержит параметры конфигурации клиента курьера.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	BackendAddress  string        `env:"BACKEND_ADDRESS"`
	SessionStore    string        `env:"SESSION_STORE"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT"`
	RequestRetries  int           `env:"REQUEST_RETRIES"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"`
	ReconcileDelay  time.Duration `env:"RECONCILE_DELAY"`
	SampleFallback  bool          `env:"SAMPLE_FALLBACK"`
	NearbyRadiusKm  float64       `env:"NEARBY_RADIUS_KM"`
	LogLevel        string        `env:"LOG_LEVEL"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		RunAddress:      defaultRunAddress,
		BackendAddress:  defaultBackendAddress,
		SessionStore:    defaultSessionStore,
		RequestTimeout:  10 * time.Second,
		RequestRetries:  2,
		RefreshInterval: 30 * time.Second,
		ReconcileDelay:  time.Second,
		SampleFallback:  true,
		NearbyRadiusKm:  5,
		LogLevel:        "info",
	}
}

// BindFlags регистрирует флаги командной строки, записывающие значения в конфигурацию.
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&c.RunAddress, "address", "a", c.RunAddress, "address and port for local HTTP API")
	flags.StringVarP(&c.BackendAddress, "backend", "b", c.BackendAddress, "delivery backend base URL")
	flags.StringVarP(&c.SessionStore, "session-store", "s", c.SessionStore, "session storage: memory, sqlite://path, postgres://..., redis://...")
	flags.DurationVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "timeout of a single backend call")
	flags.IntVar(&c.RequestRetries, "retries", c.RequestRetries, "retries for idempotent backend reads")
	flags.DurationVar(&c.RefreshInterval, "refresh-interval", c.RefreshInterval, "background order refresh interval, 0 disables")
	flags.DurationVar(&c.ReconcileDelay, "reconcile-delay", c.ReconcileDelay, "delay before refetching orders after a status change")
	flags.BoolVar(&c.SampleFallback, "sample-fallback", c.SampleFallback, "show sample open orders when both sources fail")
	flags.Float64Var(&c.NearbyRadiusKm, "nearby-radius", c.NearbyRadiusKm, "radius of nearby orders in km")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
}

// LoadEnv читает .env (если есть) и переменные окружения. Переменные окружения
// имеют приоритет над флагами.
func (c *Config) LoadEnv() error {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return c.Validate()
}

// Validate проверяет согласованность значений конфигурации.
func (c *Config) Validate() error {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.BackendAddress == "" {
		return errors.New("backend address is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("invalid request timeout: %s", c.RequestTimeout)
	}
	if c.RequestRetries < 0 {
		return fmt.Errorf("invalid request retries: %d", c.RequestRetries)
	}
	if c.RefreshInterval < 0 || c.ReconcileDelay < 0 {
		return errors.New("intervals must not be negative")
	}
	if c.NearbyRadiusKm <= 0 {
		return fmt.Errorf("invalid nearby radius: %v", c.NearbyRadiusKm)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.LogLevel)
	}
	return nil
}

// Parse считывает конфигурацию из флагов указанного набора и переменных окружения.
func Parse(flags *pflag.FlagSet, args []string) (*Config, error) {
	cfg := Default()
	cfg.BindFlags(flags)

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
