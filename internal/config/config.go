package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Log is shared by the server and the client.
type Log struct {
	ConsoleLevel string `validate:"required,oneof=debug info warn error"`
	FileLevel    string `validate:"required,oneof=debug info warn error"`
	File         string
}

// Config holds proxy server configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
		// PublicURL is where browsers land after logout.
		PublicURL string `validate:"omitempty,url"`
	}
	ResourceServerURL string `validate:"required,url"`
	IDP               struct {
		IssuerURL    string `validate:"required,url"`
		ClientID     string `validate:"required"`
		ClientSecret string `validate:"required"`
		RedirectURL  string `validate:"required,url"`
		Audience     string
	}
	Session struct {
		Secret        string `validate:"required,min=32"`
		Store         string `validate:"required,oneof=memory postgres"`
		DatabaseURL   string
		TTL           time.Duration `validate:"gt=0"`
		SweepSchedule string        `validate:"required"`
		CookieSecure  bool
	}
	RateLimit struct {
		RPS   float64 `validate:"gte=0"`
		Burst int     `validate:"gte=1"`
	}
	Log Log
}

// Client holds command-line client configuration values.
type Client struct {
	ServerURL string `validate:"required,url"`
	Session   string
	// Cache is a SQLite file path or "memory".
	Cache   string `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
	Log     Log
}

var validate = validator.New()

// Load reads proxy configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var errs []error
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":3000")
	c.HTTP.PublicURL = os.Getenv("PUBLIC_URL")
	c.ResourceServerURL = os.Getenv("RESOURCE_SERVER_URL")
	c.IDP.IssuerURL = os.Getenv("IDP_ISSUER_URL")
	c.IDP.ClientID = os.Getenv("IDP_CLIENT_ID")
	c.IDP.ClientSecret = os.Getenv("IDP_CLIENT_SECRET")
	c.IDP.RedirectURL = os.Getenv("IDP_REDIRECT_URL")
	c.IDP.Audience = os.Getenv("IDP_AUDIENCE")
	c.Session.Secret = os.Getenv("SESSION_SECRET")
	c.Session.Store = strings.ToLower(getenv("SESSION_STORE", "memory"))
	c.Session.DatabaseURL = os.Getenv("DATABASE_URL")
	c.Session.TTL = getduration("SESSION_TTL", 7*24*time.Hour, &errs)
	c.Session.SweepSchedule = getenv("SESSION_SWEEP_SCHEDULE", "0 */15 * * * *")
	c.Session.CookieSecure = getbool("SESSION_COOKIE_SECURE", c.Env == "prod", &errs)
	c.RateLimit.RPS = getfloat("RATE_LIMIT_RPS", 5, &errs)
	c.RateLimit.Burst = getint("RATE_LIMIT_BURST", 10, &errs)
	c.Log = loadLog("data/logs/server.log")

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.Session.Store == "postgres" && c.Session.DatabaseURL == "" {
		return Config{}, errors.New("DATABASE_URL required when SESSION_STORE=postgres")
	}
	return c, nil
}

// LoadClient reads command-line client configuration.
func LoadClient() (Client, error) {
	_ = godotenv.Load()

	var c Client
	var errs []error
	c.ServerURL = getenv("CONTACTS_SERVER_URL", "http://localhost:3000")
	c.Session = os.Getenv("CONTACTS_SESSION")
	c.Cache = getenv("CONTACTS_CACHE", defaultCachePath())
	c.Timeout = getduration("CONTACTS_TIMEOUT", 30*time.Second, &errs)
	c.Log = loadLog("")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "warn"))

	if err := errors.Join(errs...); err != nil {
		return Client{}, err
	}
	if err := validate.Struct(c); err != nil {
		return Client{}, err
	}
	return c, nil
}

func loadLog(defaultFile string) Log {
	return Log{
		ConsoleLevel: strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info")),
		FileLevel:    strings.ToLower(getenv("LOG_FILE_LEVEL", "debug")),
		File:         getenv("LOG_FILE", defaultFile),
	}
}

func defaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "memory"
	}
	return dir + string(os.PathSeparator) + "contacts" + string(os.PathSeparator) + "cache.db"
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getduration(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func getint(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func getfloat(k string, def float64, errs *[]error) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func getbool(k string, def bool, errs *[]error) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}
