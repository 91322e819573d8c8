package config

import (
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// App is the process-level configuration, read from environment
// variables with an optional .env file for local development.
type App struct {
	ServerHost string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	ServerPort string `env:"SERVER_PORT" envDefault:"8090"`

	// DBPath is the SQLite database file; ":memory:" runs ephemeral.
	DBPath string `env:"DB_PATH" envDefault:"./fuel.db"`

	// FleetConfigPath points at the fleet.yaml; missing file falls back
	// to compiled defaults.
	FleetConfigPath string `env:"FLEET_CONFIG_PATH" envDefault:"fleet.yaml"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console, json

	// AuditInterval is how often the background balance audit runs.
	AuditInterval time.Duration `env:"AUDIT_INTERVAL" envDefault:"1h"`
	AuditEnabled  bool          `env:"AUDIT_ENABLED" envDefault:"true"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

func (a App) Addr() string { return a.ServerHost + ":" + a.ServerPort }

func (a App) IsProduction() bool { return a.Environment == "production" }

// LoadApp reads the process configuration. The .env load is best
// effort: absent files are normal outside local development.
func LoadApp() (App, error) {
	_ = godotenv.Load()

	var a App
	if err := env.Parse(&a); err != nil {
		return App{}, err
	}
	return a, nil
}
