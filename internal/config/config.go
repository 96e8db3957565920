package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides, e.g. CSARENA_LISTEN.
const EnvPrefix = "CSARENA_"

type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type Config struct {
	Logger  Logger  `koanf:"logger"`
	Storage Storage `koanf:"storage"`
	Auth    Auth    `koanf:"auth"`
	Listen  string  `koanf:"listen"`
	Admin   Admin   `koanf:"admin"`
	CORS    CORS    `koanf:"cors"`
	Scoring Scoring `koanf:"scoring"`
	Redis   Redis   `koanf:"redis"`
	Seed    string  `koanf:"seed"`
}

type Logger struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

type Storage struct {
	Driver   string `koanf:"driver"`
	Database string `koanf:"database"`
}

type Auth struct {
	JWT JWT `koanf:"jwt"`
}

type JWT struct {
	Secret      string `koanf:"secret"`
	ExpireHours int    `koanf:"expire_hours"`
}

type Admin struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

// Scoring selects the penalty rule applied to accepted submissions.
type Scoring struct {
	PenaltyRule            string `koanf:"penalty_rule"`
	RejectedAttemptPenalty int    `koanf:"rejected_attempt_penalty"`
}

// Redis enables cross-instance event fan-out.
type Redis struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Channel  string `koanf:"channel"`
}

// Default returns the configuration used when no file or env overrides are given.
func Default() *Config {
	return &Config{
		Logger:  Logger{Level: "info"},
		Storage: Storage{Driver: "sqlite", Database: "data/csarena.db"},
		Auth:    Auth{JWT: JWT{ExpireHours: 24}},
		Listen:  ":8080",
		Admin:   Admin{Enabled: true, Listen: ":8081"},
		Scoring: Scoring{PenaltyRule: "elapsed", RejectedAttemptPenalty: 20},
		Redis:   Redis{Addr: "localhost:6379", Channel: "csarena:events"},
	}
}

// Load layers defaults, the YAML file at path (if it exists) and CSARENA_*
// environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// CSARENA_AUTH__JWT__SECRET -> auth.jwt.secret; single underscores stay in key names.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	cfg := *Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen must not be empty")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Database == "" {
		return errors.New("storage.database must not be empty")
	}
	if c.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be set")
	}
	switch c.Scoring.PenaltyRule {
	case "elapsed", "icpc":
	default:
		return fmt.Errorf("unknown scoring.penalty_rule %q", c.Scoring.PenaltyRule)
	}
	if c.Scoring.RejectedAttemptPenalty < 0 {
		return errors.New("scoring.rejected_attempt_penalty must not be negative")
	}
	return nil
}
