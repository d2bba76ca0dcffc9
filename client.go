package authclient

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	internalaudit "github.com/evdealer/authclient/internal/audit"
	"github.com/evdealer/authclient/internal/flows"
	"github.com/evdealer/authclient/jwt"
	"github.com/evdealer/authclient/permission"
	"github.com/evdealer/authclient/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client signs a user in against the dealer backend, keeps the resulting
// session, and attaches its access token to protected calls. Build one with
// New().WithConfig(cfg).Build(). A Client is safe for concurrent use.
type Client struct {
	config  Config
	logger  *slog.Logger
	store   *session.Store
	sender  *httpSender
	roles   *permission.RoleTable
	metrics *Metrics
	audit   *internalaudit.Dispatcher
	tracer  trace.Tracer
	flows   flows.Deps

	current     atomic.Pointer[session.Record]
	unsubscribe func()
	closed      atomic.Bool
}

// Session returns the current session, if any.
func (c *Client) Session(ctx context.Context) (*Record, bool) {
	return c.store.Read(ctx)
}

// Authenticated reports whether a session with a usable access token exists.
// A degraded identity session is present but not authenticated.
func (c *Client) Authenticated(ctx context.Context) bool {
	_, ok := c.store.AccessToken(ctx)
	return ok
}

// HomePath is where the current user lands after sign-in, or the login page
// when nobody is signed in.
func (c *Client) HomePath(ctx context.Context) string {
	rec, ok := c.store.Read(ctx)
	if !ok {
		return permission.LoginPath
	}
	return c.roles.HomePath(rec.Principal.Role)
}

// Subscribe registers fn for every session change. fn receives nil when the
// session is cleared. The returned func unregisters it.
func (c *Client) Subscribe(fn func(*Record)) func() {
	return c.store.Subscribe(fn)
}

// Logout clears the session from both stores. Logging out with no session
// succeeds.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	ctx, span := c.startSpan(ctx, spanLogout)
	res := flows.RunLogout(ctx, c.flows.Logout)
	if res.Err != nil {
		err := &Error{Kind: KindSessionStore, Message: c.config.Messages.Generic, Raw: res.Err}
		endSpan(span, err)
		return err
	}
	endSpan(span, nil)
	return nil
}

// RefreshAccessToken trades the stored refresh token for a new access token
// and rewrites the session. Nothing calls it automatically. A failed refresh
// leaves the session as it was.
func (c *Client) RefreshAccessToken(ctx context.Context) (*Record, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	ctx, span := c.startSpan(ctx, spanRefresh)
	res := flows.RunRefresh(ctx, c.flows.Refresh)
	if res.Failure == flows.RefreshFailureNone {
		span.SetAttributes(attribute.Bool("authclient.refresh_rotated", res.Rotated))
		endSpan(span, nil)
		return res.Record, nil
	}

	err := &Error{
		Kind:    KindRefreshFailed,
		Status:  res.Status,
		Message: res.Message,
		Errors:  res.Errors,
		Raw:     res.Err,
	}
	switch res.Failure {
	case flows.RefreshFailureTransport:
		err.Kind = KindTransport
	case flows.RefreshFailureTimeout:
		err.Kind = KindTransport
		err.Timeout = true
	case flows.RefreshFailureStore:
		err.Kind = KindSessionStore
	}
	endSpan(span, err)
	return nil, err
}

// Store exposes the session store, e.g. for middleware.
func (c *Client) Store() *session.Store {
	return c.store
}

func (c *Client) Roles() *permission.RoleTable {
	return c.roles
}

func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot copies the current counters and histograms for exporters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped reports audit events lost to a full buffer.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// Close flushes pending audit events. Further calls fail with
// ErrClientClosed; the stored session is left in place.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// observe tracks session changes for counters and audit correlation.
func (c *Client) observe(rec *session.Record) {
	c.current.Store(rec)
	if rec == nil {
		c.metrics.Inc(MetricSessionClear)
		return
	}
	c.metrics.Inc(MetricSessionWrite)
}

func (c *Client) metricInc(id int) {
	c.metrics.Inc(MetricID(id))
}

func (c *Client) buildDeps() flows.Deps {
	cfg := c.config
	msgs := cfg.Messages
	send := c.sender.send

	return flows.Deps{
		Exchange: flows.ExchangeDeps{
			Send:               send,
			Store:              c.store,
			PasswordLoginPath:  cfg.Backend.PasswordLoginPath,
			IdentityVerifyPath: cfg.Backend.IdentityVerifyPath,
			Timeout:            cfg.Backend.Timeout,
			ParseIdentity:      parseIdentity,
			MetricInc:          c.metricInc,
			ObserveLatency:     func(d time.Duration) { c.metrics.Observe(MetricExchangeLatency, d) },
			EmitAudit:          c.emitAudit,
			Warn:               c.logger.Warn,
			Metrics: flows.ExchangeMetrics{
				Success:         int(MetricLoginSuccess),
				Failure:         int(MetricLoginFailure),
				Degraded:        int(MetricLoginDegraded),
				InvalidResponse: int(MetricLoginInvalidResponse),
			},
			Events: flows.ExchangeEvents{
				Success:  auditEventLoginSuccess,
				Failure:  auditEventLoginFailure,
				Degraded: auditEventLoginDegraded,
			},
			Messages: flows.ExchangeMessages{
				AuthenticationFailed: msgs.AuthenticationFailed,
				InvalidResponse:      msgs.InvalidResponse,
				Network:              msgs.Network,
				Timeout:              msgs.Timeout,
			},
		},
		Refresh: flows.RefreshDeps{
			Send:          send,
			Store:         c.store,
			RefreshPath:   cfg.Backend.RefreshPath,
			Timeout:       cfg.Backend.Timeout,
			MetricInc:     c.metricInc,
			EmitAudit:     c.emitAudit,
			SuccessMetric: int(MetricRefreshSuccess),
			FailureMetric: int(MetricRefreshFailure),
			Event:         auditEventRefresh,
			Messages: flows.RefreshMessages{
				NoSession: msgs.NoSession,
				Rejected:  msgs.RefreshFailed,
				Network:   msgs.Network,
				Timeout:   msgs.Timeout,
			},
		},
		Logout: flows.LogoutDeps{
			Store:     c.store,
			MetricInc: c.metricInc,
			EmitAudit: c.emitAudit,
			Metric:    int(MetricLogout),
			Event:     auditEventLogout,
		},
		Dispatch: flows.DispatchDeps{
			Send:           send,
			AccessToken:    c.store.AccessToken,
			Timeout:        cfg.Backend.Timeout,
			MetricInc:      c.metricInc,
			ObserveLatency: func(d time.Duration) { c.metrics.Observe(MetricDispatchLatency, d) },
			Metrics: flows.DispatchMetrics{
				Success:   int(MetricDispatchSuccess),
				NoToken:   int(MetricDispatchNoToken),
				HTTPError: int(MetricDispatchHTTPError),
				Transport: int(MetricDispatchTransportError),
			},
			Messages: flows.DispatchMessages{
				NoToken: msgs.NoToken,
				Network: msgs.Network,
				Timeout: msgs.Timeout,
				Status:  msgs.status,
			},
		},
	}
}

func parseIdentity(idToken string) (flows.IdentityProfile, error) {
	claims, err := jwt.ParseIdentityClaims(idToken)
	if err != nil {
		return flows.IdentityProfile{}, err
	}
	return flows.IdentityProfile{
		Subject: claims.PrincipalID(),
		Email:   claims.Email,
		Name:    claims.DisplayName(),
	}, nil
}
