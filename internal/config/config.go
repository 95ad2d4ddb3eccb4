package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Server struct {
	Port               string `json:"port" validate:"required,numeric"`
	RequestTimeoutSec  int    `json:"request_timeout_sec" validate:"min=1,max=120"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec" validate:"min=1"`
	MaxBatchSymbols    int    `json:"max_batch_symbols" validate:"min=1,max=100"`
	BatchConcurrency   int    `json:"batch_concurrency" validate:"min=1,max=32"`
}

type Yahoo struct {
	BaseURL              string `json:"base_url" validate:"required,url"`
	UserAgent            string `json:"user_agent"`
	MaxRequestsPerMinute int    `json:"max_requests_per_minute" validate:"min=0"`
	Burst                int    `json:"burst" validate:"min=1"`
	MinRequestIntervalMs int    `json:"min_request_interval_ms" validate:"min=0"`
}

type MutualFund struct {
	Endpoint   string `json:"endpoint" validate:"required,url"`
	TimeoutSec int    `json:"timeout_sec" validate:"min=1"`
}

type Auth struct {
	Secret            string `json:"secret" validate:"required,min=16"`
	Credentials       string `json:"credentials" validate:"required"`
	SessionTTLMinutes int    `json:"session_ttl_min" validate:"min=1"`
	CookieName        string `json:"cookie_name" validate:"required"`
	SecureCookie      bool   `json:"secure_cookie"`
}

// Firebase is handed to the browser as-is; none of it is secret.
type Firebase struct {
	APIKey            string `json:"api_key"`
	AuthDomain        string `json:"auth_domain"`
	DatabaseURL       string `json:"database_url"`
	ProjectID         string `json:"project_id"`
	StorageBucket     string `json:"storage_bucket"`
	MessagingSenderID string `json:"messaging_sender_id"`
	AppID             string `json:"app_id"`
}

type Config struct {
	Server     Server     `json:"server"`
	Yahoo      Yahoo      `json:"yahoo"`
	MutualFund MutualFund `json:"mutual_fund"`
	Auth       Auth       `json:"auth"`
	Firebase   Firebase   `json:"firebase"`

	// LowResource is derived from the deployment environment, never from the file.
	LowResource bool `json:"-"`
}

const DefaultCredentials = "demo@example.com:demo123:Demo User"

func Default() Config {
	return Config{
		Server: Server{
			Port:               "8080",
			RequestTimeoutSec:  10,
			ShutdownTimeoutSec: 10,
			MaxBatchSymbols:    100,
			BatchConcurrency:   4,
		},
		Yahoo: Yahoo{
			BaseURL:              "https://query1.finance.yahoo.com",
			MaxRequestsPerMinute: 0,
			Burst:                1,
		},
		MutualFund: MutualFund{
			Endpoint:   "https://api.mfapi.in/mf",
			TimeoutSec: 10,
		},
		Auth: Auth{
			Credentials:       DefaultCredentials,
			SessionTTLMinutes: 24 * 60,
			CookieName:        "session",
		},
	}
}

// Load reads JSON config from path. If path is empty, CONFIG_FILE and then
// ./config.json are tried; a missing file yields defaults. Environment
// variables override select fields, and the result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path == "" {
		if _, err := os.Stat("config.json"); err == nil {
			path = "config.json"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	cfg.LowResource = lowResource()

	if cfg.Auth.Secret == "" {
		secret, err := randomSecret()
		if err != nil {
			return cfg, fmt.Errorf("generate session secret: %w", err)
		}
		cfg.Auth.Secret = secret
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the struct tags of every section.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec)
	envInt("MAX_BATCH_SYMBOLS", &cfg.Server.MaxBatchSymbols)

	if v := os.Getenv("YAHOO_BASE_URL"); v != "" {
		cfg.Yahoo.BaseURL = v
	}
	if v := os.Getenv("YAHOO_USER_AGENT"); v != "" {
		cfg.Yahoo.UserAgent = v
	}
	envInt("YAHOO_MAX_RPM", &cfg.Yahoo.MaxRequestsPerMinute)
	envInt("YAHOO_BURST", &cfg.Yahoo.Burst)
	envInt("YAHOO_MIN_INTERVAL_MS", &cfg.Yahoo.MinRequestIntervalMs)

	if v := os.Getenv("MFAPI_ENDPOINT"); v != "" {
		cfg.MutualFund.Endpoint = v
	}

	for _, name := range []string{"FLASK_SECRET_KEY", "SECRET_KEY"} {
		if v := os.Getenv(name); v != "" {
			cfg.Auth.Secret = v
		}
	}
	if v := os.Getenv("USER_CREDENTIALS"); v != "" {
		cfg.Auth.Credentials = v
	}
	envInt("SESSION_TTL_MIN", &cfg.Auth.SessionTTLMinutes)
	if v, ok := envBool("SECURE_COOKIE"); ok {
		cfg.Auth.SecureCookie = v
	}

	fb := &cfg.Firebase
	for name, dst := range map[string]*string{
		"FIREBASE_API_KEY":             &fb.APIKey,
		"FIREBASE_AUTH_DOMAIN":         &fb.AuthDomain,
		"FIREBASE_DATABASE_URL":        &fb.DatabaseURL,
		"FIREBASE_PROJECT_ID":          &fb.ProjectID,
		"FIREBASE_STORAGE_BUCKET":      &fb.StorageBucket,
		"FIREBASE_MESSAGING_SENDER_ID": &fb.MessagingSenderID,
		"FIREBASE_APP_ID":              &fb.AppID,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
}

// lowResource reports whether the process runs on a constrained host, where
// live lookups for table symbols are skipped.
func lowResource() bool {
	if strings.EqualFold(os.Getenv("FORCE_PRODUCTION"), "true") {
		return true
	}
	return os.Getenv("VERCEL_ENV") == "production" || os.Getenv("PRODUCTION") == "true"
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var x int
	if _, err := fmt.Sscanf(v, "%d", &x); err == nil && x >= 0 {
		*dst = x
	}
}

func envBool(name string) (bool, bool) {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "y":
		return true, true
	case "0", "false", "no", "n":
		return false, true
	}
	return false, false
}

func randomSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
