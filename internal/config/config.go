// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/zalando/go-keyring"
)

// Config holds all application configuration loaded from environment
// variables, with an optional .env file for local development.
type Config struct {
	Port         int    `env:"PORT" envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"monkey-matching.db"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// Collaborators
	LedgerURL  string `env:"LEDGER_URL" envDefault:"http://localhost:9090"`
	AuthSecret string `env:"AUTH_SECRET,required"`
	AdminToken string `env:"ADMIN_TOKEN,required"`

	// Game parameters
	Salt                 string        `env:"SALT"`
	KeyringService       string        `env:"KEYRING_SERVICE" envDefault:"monkey-matching"`
	RegenerationCooldown time.Duration `env:"REGENERATION_COOLDOWN" envDefault:"24h"`
	NewGameBase          uint64        `env:"NEW_GAME_BASE" envDefault:"4"`
	MintOffset           uint16        `env:"MINT_OFFSET" envDefault:"5"`
	MaxMint              uint64        `env:"MAX_MINT" envDefault:"4000"`
	RewardReset          uint64        `env:"REWARD_RESET" envDefault:"10"`
	RewardCap            uint64        `env:"REWARD_CAP" envDefault:"10"`
	RewardMemo           string        `env:"REWARD_MEMO" envDefault:"monKey match reward"`
	RewardAccount        string        `env:"REWARD_ACCOUNT" envDefault:"monkeysmatch"`
	FreezeDuration       time.Duration `env:"FREEZE_DURATION" envDefault:"72h"`
}

// saltKeyringUser is the keyring entry holding the shared salt when it is
// not supplied through the environment.
const saltKeyringUser = "salt"

// Load reads configuration from the environment, consulting the OS
// keyring for the shared salt when SALT is unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if cfg.Salt == "" {
		salt, err := keyring.Get(cfg.KeyringService, saltKeyringUser)
		if err != nil {
			return nil, fmt.Errorf("SALT not set and keyring lookup failed: %w", err)
		}
		cfg.Salt = salt
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints after parsing.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d (must be 1-65535)", c.Port)
	}
	if c.NewGameBase < 2 {
		return fmt.Errorf("invalid NEW_GAME_BASE: %d (must be >= 2)", c.NewGameBase)
	}
	if c.MaxMint == 0 {
		return fmt.Errorf("invalid MAX_MINT: must be > 0")
	}
	if c.RewardReset == 0 {
		return fmt.Errorf("invalid REWARD_RESET: must be > 0")
	}
	if c.RewardCap == 0 {
		return fmt.Errorf("invalid REWARD_CAP: must be > 0")
	}
	if c.RegenerationCooldown <= 0 {
		return fmt.Errorf("invalid REGENERATION_COOLDOWN: must be positive")
	}
	if c.FreezeDuration <= 0 {
		return fmt.Errorf("invalid FREEZE_DURATION: must be positive")
	}
	return nil
}
