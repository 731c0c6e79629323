package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	DatabaseType     string
	JWTSecret        string
	JWTRefreshSecret string

	// AllowDescriptorlessLogin lets voters without an enrolled descriptor log
	// in on password alone. Kept on by default for accounts registered before
	// face enrollment existed.
	AllowDescriptorlessLogin bool

	SecureCookies bool
}

// ParseFlags validates flags and sets port number
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	// A missing .env is fine; real environment variables still win
	_ = godotenv.Load()

	fs := flag.NewFlagSet("livevote", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite, postgres or pgx)")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "Access token secret (prefer env)")
	fs.StringVar(&cfg.JWTRefreshSecret, "jwt-refresh-secret", "", "Refresh token secret (prefer env)")

	// Policy
	noBypass := fs.Bool("require-face", false, "Reject voter logins that have no enrolled face descriptor")
	fs.BoolVar(&cfg.SecureCookies, "secure-cookies", false, "Mark session cookies Secure")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 5000 // default
		}
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	switch cfg.DatabaseType {
	case "sqlite", "postgres", "pgx":
	default:
		return Config{}, errors.New("DATABASE_TYPE must be sqlite, postgres or pgx")
	}

	// Secrets - MUST be provided
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = os.Getenv("JWT_SECRET")
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET required")
	}

	if cfg.JWTRefreshSecret == "" {
		cfg.JWTRefreshSecret = os.Getenv("JWT_REFRESH_SECRET")
	}
	if cfg.JWTRefreshSecret == "" {
		return Config{}, errors.New("JWT_REFRESH_SECRET required")
	}
	if cfg.JWTRefreshSecret == cfg.JWTSecret {
		return Config{}, errors.New("JWT_REFRESH_SECRET must differ from JWT_SECRET")
	}

	cfg.AllowDescriptorlessLogin = true
	if *noBypass || envBool("REQUIRE_FACE") {
		cfg.AllowDescriptorlessLogin = false
	}

	if !cfg.SecureCookies {
		cfg.SecureCookies = envBool("SECURE_COOKIES")
	}

	return cfg, nil
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}
