package authclient

import (
	"context"
	"errors"
	"io"
	"time"

	internalaudit "github.com/evdealer/authclient/internal/audit"
	"github.com/evdealer/authclient/session"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLoginDegraded    = "login_degraded"
	auditEventLogout           = "logout"
	auditEventRefresh          = "refresh"
	auditEventSessionDiscarded = "session_discarded"
)

// AuditErrorCode is the short error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrSessionStore AuditErrorCode = "session_store"
	auditErrTimeout      AuditErrorCode = "timeout"
	auditErrCanceled     AuditErrorCode = "canceled"
	auditErrBackend      AuditErrorCode = "backend_error"
)

type (
	AuditEvent     = internalaudit.Event
	AuditSink      = internalaudit.Sink
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	SlogSink       = internalaudit.SlogSink
)

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		ClientID:  c.config.Session.ClientID,
		UserID:    userID,
		RequestID: RequestIDFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if rec := c.current.Load(); rec != nil && rec.Principal.ID == userID {
		event.SessionID = rec.SessionID
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func (c *Client) onDiscard(src session.Source, reason session.DiscardReason) {
	c.metrics.Inc(MetricSessionDiscard)
	c.logger.Warn("authclient: stored session discarded", "source", string(src), "reason", string(reason))
	c.emitAudit(context.Background(), auditEventSessionDiscarded, false, "", nil, func() map[string]string {
		return map[string]string{"source": string(src), "reason": string(reason)}
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, session.ErrWriteFailed),
		errors.Is(err, session.ErrClearFailed),
		errors.Is(err, session.ErrBackendUnavailable):
		return auditErrSessionStore
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, ErrTimeout):
		return auditErrTimeout
	case errors.Is(err, context.Canceled):
		return auditErrCanceled
	default:
		return auditErrBackend
	}
}
