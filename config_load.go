package authclient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// configFile mirrors the YAML layout read by LoadConfig.
type configFile struct {
	Backend struct {
		BaseURL            string        `yaml:"base_url"`
		PasswordLoginPath  string        `yaml:"password_login_path"`
		IdentityVerifyPath string        `yaml:"identity_verify_path"`
		RefreshPath        string        `yaml:"refresh_path"`
		Timeout            time.Duration `yaml:"timeout"`
		UserAgent          string        `yaml:"user_agent"`
	} `yaml:"backend"`
	IdentityProvider struct {
		Issuer       string   `yaml:"issuer"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		RedirectURL  string   `yaml:"redirect_url"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"identity_provider"`
	Session struct {
		SigningSecret     string        `yaml:"signing_secret"`
		Issuer            string        `yaml:"issuer"`
		TTL               time.Duration `yaml:"ttl"`
		Leeway            time.Duration `yaml:"leeway"`
		RedisPrefix       string        `yaml:"redis_prefix"`
		ClientID          string        `yaml:"client_id"`
		SlidingExpiration *bool         `yaml:"sliding_expiration"`
		DurablePath       string        `yaml:"durable_path"`
	} `yaml:"session"`
	Locale string `yaml:"locale"`
	Audit  struct {
		Enabled    bool `yaml:"enabled"`
		BufferSize int  `yaml:"buffer_size"`
	} `yaml:"audit"`
	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Latency bool `yaml:"latency_histograms"`
	} `yaml:"metrics"`
	Tracing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"tracing"`
}

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (skipped when path is empty or missing), then the
// environment. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			var f configFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
			applyFile(&cfg, &f)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	applyEnv(&cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, f *configFile) {
	setString(&cfg.Backend.BaseURL, f.Backend.BaseURL)
	setString(&cfg.Backend.PasswordLoginPath, f.Backend.PasswordLoginPath)
	setString(&cfg.Backend.IdentityVerifyPath, f.Backend.IdentityVerifyPath)
	setString(&cfg.Backend.RefreshPath, f.Backend.RefreshPath)
	setString(&cfg.Backend.UserAgent, f.Backend.UserAgent)
	if f.Backend.Timeout > 0 {
		cfg.Backend.Timeout = f.Backend.Timeout
	}

	setString(&cfg.IdentityProvider.Issuer, f.IdentityProvider.Issuer)
	setString(&cfg.IdentityProvider.ClientID, f.IdentityProvider.ClientID)
	setString(&cfg.IdentityProvider.ClientSecret, f.IdentityProvider.ClientSecret)
	setString(&cfg.IdentityProvider.RedirectURL, f.IdentityProvider.RedirectURL)
	if len(f.IdentityProvider.Scopes) > 0 {
		cfg.IdentityProvider.Scopes = append([]string(nil), f.IdentityProvider.Scopes...)
	}

	if f.Session.SigningSecret != "" {
		cfg.Session.SigningSecret = []byte(f.Session.SigningSecret)
	}
	setString(&cfg.Session.Issuer, f.Session.Issuer)
	setString(&cfg.Session.RedisPrefix, f.Session.RedisPrefix)
	setString(&cfg.Session.ClientID, f.Session.ClientID)
	setString(&cfg.Session.DurablePath, f.Session.DurablePath)
	if f.Session.TTL > 0 {
		cfg.Session.TTL = f.Session.TTL
	}
	if f.Session.Leeway > 0 {
		cfg.Session.Leeway = f.Session.Leeway
	}
	if f.Session.SlidingExpiration != nil {
		cfg.Session.SlidingExpiration = *f.Session.SlidingExpiration
	}

	if strings.EqualFold(f.Locale, "vi") {
		cfg.Messages = MessagesVI()
	}

	cfg.Audit.Enabled = f.Audit.Enabled
	if f.Audit.BufferSize > 0 {
		cfg.Audit.BufferSize = f.Audit.BufferSize
	}
	cfg.Metrics.Enabled = f.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = f.Metrics.Latency
	cfg.Tracing.Enabled = f.Tracing.Enabled
}

// applyEnv applies environment overrides. The second name in each pair is
// the variable the web frontend used for the same value.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(names ...string) (string, bool) {
		for _, n := range names {
			if v, ok := lookup(n); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v), true
			}
		}
		return "", false
	}

	if v, ok := get("EVAUTH_BACKEND_URL", "NEXT_PUBLIC_BE_URL"); ok {
		cfg.Backend.BaseURL = v
	}
	if v, ok := get("EVAUTH_BACKEND_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backend.Timeout = d
		}
	}
	if v, ok := get("EVAUTH_IDP_CLIENT_ID", "GOOGLE_CLIENT_ID"); ok {
		cfg.IdentityProvider.ClientID = v
	}
	if v, ok := get("EVAUTH_IDP_CLIENT_SECRET", "GOOGLE_CLIENT_SECRET"); ok {
		cfg.IdentityProvider.ClientSecret = v
	}
	if v, ok := get("EVAUTH_IDP_REDIRECT_URL"); ok {
		cfg.IdentityProvider.RedirectURL = v
	}
	if v, ok := get("EVAUTH_SESSION_SECRET", "NEXTAUTH_SECRET"); ok {
		cfg.Session.SigningSecret = []byte(v)
	}
	if v, ok := get("EVAUTH_DURABLE_PATH"); ok {
		cfg.Session.DurablePath = v
	}
	if v, ok := get("EVAUTH_LOCALE"); ok && strings.EqualFold(v, "vi") {
		cfg.Messages = MessagesVI()
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
