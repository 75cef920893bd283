package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// SESSION_FILE points at the credential a running daemon wrote. The
	// scenarios skip when it is unset.
	SessionFile string `envconfig:"SESSION_FILE"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_CONNS is the number of parallel connections the scenarios drive
	Conns int `envconfig:"E2E_CONNS" default:"4"`
	// E2E_LOG_LEVEL tunes the engine logs inside the scenarios
	LogLevel string `envconfig:"E2E_LOG_LEVEL" default:"ERROR"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
