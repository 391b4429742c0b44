package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_SOCKET_URL targets a running matching service. Left empty, the
	// scenarios run against the in-process fake.
	SocketURL string `envconfig:"E2E_SOCKET_URL"`
	// E2E_DEBUG_JSON dumps every frame the fake exchanges
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
