package main

import (
	"fmt"

	"transfer-lab/internal"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// loadConfig reads the environment, topped up from a local .env file when
// one exists. A missing .env is fine, the environment then has to carry
// every required variable on its own.
func loadConfig() (internal.Config, error) {
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return internal.Config{}, fmt.Errorf("config error: %w", err)
	}
	return config, nil
}
