package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_RELAY_ADDR targets an already-running relay. Empty spins an
	// in-process relay instead.
	RelayAddr string `envconfig:"E2E_RELAY_ADDR"`
	// E2E_DEBUG_JSON dumps full envelope bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours   bool   `envconfig:"E2E_COLOURS" default:"true"`
	JWTSecret string `envconfig:"E2E_JWT_SECRET" default:"e2e-secret"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
