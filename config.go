package authclient

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the full client configuration. Start from DefaultConfig and
// override what differs.
type Config struct {
	Backend          BackendConfig
	IdentityProvider IdentityProviderConfig
	Session          SessionConfig
	Messages         Messages
	Audit            AuditConfig
	Metrics          MetricsConfig
	Tracing          TracingConfig
}

// BackendConfig locates the dealer backend API.
type BackendConfig struct {
	BaseURL            string
	PasswordLoginPath  string
	IdentityVerifyPath string
	RefreshPath        string
	// Timeout applies to calls whose context carries no deadline.
	Timeout          time.Duration
	UserAgent        string
	MaxResponseBytes int64
}

// IdentityProviderConfig holds the OIDC client registration used for
// provider sign-in.
type IdentityProviderConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// SessionConfig controls where the session lives and how it is sealed.
type SessionConfig struct {
	// SigningSecret seals the session-backed copy. Empty disables sealing.
	SigningSecret []byte
	Issuer        string
	TTL           time.Duration
	Leeway        time.Duration

	RedisPrefix       string
	ClientID          string
	SlidingExpiration bool
	JitterRange       time.Duration

	// DurablePath is the file holding the durable copy. Empty keeps the
	// durable copy in memory.
	DurablePath string
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type TracingConfig struct {
	Enabled    bool
	TracerName string
}

// Messages are the user-facing fallback texts.
type Messages struct {
	AuthenticationFailed string
	InvalidResponse      string
	NoToken              string
	Network              string
	Timeout              string
	// HTTPStatus is a format with one %d verb for the status code.
	HTTPStatus    string
	RefreshFailed string
	NoSession     string
	Generic       string
}

// MessagesVI is the Vietnamese preset used by the dealer web app.
func MessagesVI() Messages {
	return Messages{
		AuthenticationFailed: "Đăng nhập thất bại",
		InvalidResponse:      "Phản hồi đăng nhập không hợp lệ",
		NoToken:              "No token provided",
		Network:              "Lỗi kết nối mạng",
		Timeout:              "Hết thời gian chờ phản hồi",
		HTTPStatus:           "HTTP %d",
		RefreshFailed:        "Làm mới phiên đăng nhập thất bại",
		NoSession:            "Bạn chưa đăng nhập",
		Generic:              "Đã có lỗi xảy ra",
	}
}

func defaultMessages() Messages {
	return Messages{
		AuthenticationFailed: "Login failed",
		InvalidResponse:      "Login response invalid",
		NoToken:              "No token provided",
		Network:              "Network error",
		Timeout:              "Request timed out",
		HTTPStatus:           "HTTP %d",
		RefreshFailed:        "Refresh token failed",
		NoSession:            "Not signed in",
		Generic:              "Something went wrong",
	}
}

func (m Messages) status(code int) string {
	return fmt.Sprintf(m.HTTPStatus, code)
}

func defaultConfig() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:            "http://localhost:3001",
			PasswordLoginPath:  "/users/login",
			IdentityVerifyPath: "/auth/google",
			RefreshPath:        "/auth/refresh",
			Timeout:            10 * time.Second,
			UserAgent:          "evauth-client/1",
			MaxResponseBytes:   4 << 20,
		},
		IdentityProvider: IdentityProviderConfig{
			Issuer: "https://accounts.google.com",
			Scopes: []string{"openid", "email", "profile"},
		},
		Session: SessionConfig{
			Issuer:            "evauth",
			TTL:               30 * 24 * time.Hour,
			Leeway:            30 * time.Second,
			RedisPrefix:       "evauth",
			ClientID:          "default",
			SlidingExpiration: true,
		},
		Messages: defaultMessages(),
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			TracerName: "github.com/evdealer/authclient",
		},
	}
}

// DefaultConfig returns the configuration a local development backend on
// port 3001 expects.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.SigningSecret = cloneBytes(cfg.Session.SigningSecret)
	if cfg.IdentityProvider.Scopes != nil {
		out.IdentityProvider.Scopes = append([]string(nil), cfg.IdentityProvider.Scopes...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

const minSigningSecret = 32

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Backend
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("Backend BaseURL must be an absolute http(s) URL")
	}
	for name, p := range map[string]string{
		"PasswordLoginPath":  c.Backend.PasswordLoginPath,
		"IdentityVerifyPath": c.Backend.IdentityVerifyPath,
		"RefreshPath":        c.Backend.RefreshPath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Backend %s must start with /", name)
		}
	}
	if c.Backend.Timeout < 0 {
		return errors.New("Backend Timeout must be >= 0")
	}
	if c.Backend.MaxResponseBytes <= 0 {
		return errors.New("Backend MaxResponseBytes must be > 0")
	}

	// Identity provider
	if c.IdentityProvider.ClientID != "" {
		if _, err := url.Parse(c.IdentityProvider.Issuer); err != nil || c.IdentityProvider.Issuer == "" {
			return errors.New("IdentityProvider Issuer must be a URL when ClientID is set")
		}
		if c.IdentityProvider.RedirectURL == "" {
			return errors.New("IdentityProvider RedirectURL is required when ClientID is set")
		}
	}

	// Session
	if len(c.Session.SigningSecret) > 0 && len(c.Session.SigningSecret) < minSigningSecret {
		return fmt.Errorf("Session SigningSecret must be at least %d bytes", minSigningSecret)
	}
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.Leeway < 0 || c.Session.Leeway > 2*time.Minute {
		return errors.New("Session Leeway must be between 0 and 2m")
	}
	if c.Session.JitterRange < 0 {
		return errors.New("Session JitterRange must be >= 0")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" || strings.TrimSpace(c.Session.ClientID) == "" {
		return errors.New("Session RedisPrefix and ClientID must be set")
	}

	// Messages
	if c.Messages.NoToken == "" || c.Messages.Network == "" || c.Messages.Generic == "" {
		return errors.New("Messages NoToken, Network and Generic must be set")
	}
	if strings.Count(c.Messages.HTTPStatus, "%d") != 1 {
		return errors.New("Messages HTTPStatus must contain exactly one %d")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	if c.Tracing.Enabled && c.Tracing.TracerName == "" {
		return errors.New("Tracing TracerName must be set")
	}
	return nil
}
