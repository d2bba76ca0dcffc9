package authclient

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	internalaudit "github.com/evdealer/authclient/internal/audit"
	"github.com/evdealer/authclient/jwt"
	"github.com/evdealer/authclient/permission"
	"github.com/evdealer/authclient/session"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Builder assembles a Client. Configure it once, call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	httpClient     *http.Client
	logger         *slog.Logger
	auditSink      AuditSink
	tracerProvider trace.TracerProvider
	roles          *permission.RoleTable

	sessionBackend session.Backend
	durableBackend session.Backend

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis keeps the session-backed copy in Redis. Without it the copy
// lives in process memory.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTracerProvider traces through tp regardless of Tracing.Enabled.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tracerProvider = tp
	return b
}

// WithRoleTable replaces permission.DefaultTable for home paths.
func (b *Builder) WithRoleTable(t *permission.RoleTable) *Builder {
	b.roles = t
	return b
}

// WithSessionBackend overrides the session-backed store, taking precedence
// over WithRedis.
func (b *Builder) WithSessionBackend(backend session.Backend) *Builder {
	b.sessionBackend = backend
	return b
}

// WithDurableBackend overrides the durable store, taking precedence over
// Session.DurablePath.
func (b *Builder) WithDurableBackend(backend session.Backend) *Builder {
	b.durableBackend = backend
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	roles := b.roles
	if roles == nil {
		roles = permission.DefaultTable()
	}

	// -------- BACKENDS --------
	sessionBackend := b.sessionBackend
	if sessionBackend == nil && b.redis != nil {
		rb, err := session.NewRedisBackend(b.redis, session.RedisOptions{
			Prefix:      cfg.Session.RedisPrefix,
			ClientID:    cfg.Session.ClientID,
			TTL:         cfg.Session.TTL,
			Sliding:     cfg.Session.SlidingExpiration,
			JitterRange: cfg.Session.JitterRange,
		})
		if err != nil {
			return nil, err
		}
		sessionBackend = rb
	}

	durableBackend := b.durableBackend
	if durableBackend == nil && cfg.Session.DurablePath != "" {
		fb, err := session.NewFileBackend(cfg.Session.DurablePath)
		if err != nil {
			return nil, err
		}
		durableBackend = fb
	}

	// -------- SEALER --------
	var sealer session.Sealer
	if len(cfg.Session.SigningSecret) > 0 {
		jm, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.MethodHS256,
			Secret:        cloneBytes(cfg.Session.SigningSecret),
			Issuer:        cfg.Session.Issuer,
			Audience:      cfg.Session.ClientID,
			TTL:           cfg.Session.TTL,
			Leeway:        cfg.Session.Leeway,
		})
		if err != nil {
			return nil, err
		}
		sealer = jm
	}

	client := &Client{
		config:  cloneConfig(cfg),
		logger:  logger,
		roles:   roles,
		metrics: NewMetrics(cfg.Metrics),
		tracer:  resolveTracer(cfg.Tracing, b.tracerProvider),
		sender:  newHTTPSender(b.httpClient, cfg.Backend),
	}
	client.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	// -------- SESSION STORE --------
	client.store = session.NewStore(session.Options{
		Session:   sessionBackend,
		Durable:   durableBackend,
		Sealer:    sealer,
		MaxAge:    cfg.Session.TTL + cfg.Session.Leeway,
		Logger:    logger,
		OnDiscard: client.onDiscard,
	})
	if rec, ok := client.store.Read(context.Background()); ok {
		client.current.Store(rec)
	}
	client.unsubscribe = client.store.Subscribe(client.observe)
	client.flows = client.buildDeps()

	b.built = true

	return client, nil
}
