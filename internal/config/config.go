// Package config reads ideaboard settings from flags with environment fallback.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bryan-buckman/ideaboard/internal/database"
	"github.com/bryan-buckman/ideaboard/internal/ideas"
)

const (
	DefaultAddr     = ":8080"
	DefaultDSN      = "ideaboard.db"
	DefaultTokenTTL = 30 * 24 * time.Hour
)

// Config holds runtime settings.
type Config struct {
	Addr            string
	DatabaseType    string
	DatabaseURL     string
	ReadErrorPolicy ideas.ReadErrorPolicy
	AuthSecret      string
	TokenTTL        time.Duration
	LeaderboardSize int
}

// AuthEnabled reports whether write endpoints require a token.
func (c Config) AuthEnabled() bool {
	return c.AuthSecret != ""
}

// Parse reads flags from args. Unset flags fall back to environment
// variables, then to defaults. Remaining positional args are returned.
func Parse(args []string) (Config, []string, error) {
	var (
		cfg      Config
		policy   string
		tokenTTL string
	)

	fs := flag.NewFlagSet("ideaboard", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite, postgres, gorm or memory)")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL or SQLite path")
	fs.StringVar(&policy, "read-errors", "", "List behaviour on read failure (empty or propagate)")
	fs.StringVar(&cfg.AuthSecret, "auth-secret", "", "Token signing secret (prefer env)")
	fs.StringVar(&tokenTTL, "token-ttl", "", "Lifetime of issued tokens")
	fs.IntVar(&cfg.LeaderboardSize, "top", 0, "Leaderboard size")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	if cfg.Addr == "" {
		cfg.Addr = envOr("ADDR", DefaultAddr)
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = envOr("DATABASE_TYPE", database.TypeSQLite)
	}
	switch cfg.DatabaseType {
	case database.TypeSQLite, database.TypePostgres, database.TypeGorm, database.TypeMemory:
	default:
		return Config{}, nil, fmt.Errorf("%w: %q", database.ErrUnknownType, cfg.DatabaseType)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		switch cfg.DatabaseType {
		case database.TypeSQLite:
			cfg.DatabaseURL = DefaultDSN
		case database.TypePostgres, database.TypeGorm:
			return Config{}, nil, errors.New("database URL required (use -d or DATABASE_URL env)")
		}
	}

	if policy == "" {
		policy = os.Getenv("READ_ERROR_POLICY")
	}
	p, err := ideas.ParseReadErrorPolicy(policy)
	if err != nil {
		return Config{}, nil, err
	}
	cfg.ReadErrorPolicy = p

	if cfg.AuthSecret == "" {
		cfg.AuthSecret = os.Getenv("AUTH_SECRET")
	}

	if tokenTTL == "" {
		tokenTTL = os.Getenv("TOKEN_TTL")
	}
	cfg.TokenTTL = DefaultTokenTTL
	if tokenTTL != "" {
		d, err := time.ParseDuration(tokenTTL)
		if err != nil || d <= 0 {
			return Config{}, nil, fmt.Errorf("invalid TOKEN_TTL %q", tokenTTL)
		}
		cfg.TokenTTL = d
	}

	if cfg.LeaderboardSize == 0 {
		if s := os.Getenv("LEADERBOARD_SIZE"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, nil, errors.New("invalid LEADERBOARD_SIZE env variable")
			}
			cfg.LeaderboardSize = n
		}
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = ideas.DefaultLeaderboardSize
	}

	return cfg, fs.Args(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
