package flows

import (
	"context"

	"github.com/evdealer/authclient/session"
)

type LogoutSessionStore interface {
	Read(ctx context.Context) (*session.Record, bool)
	Clear(ctx context.Context) error
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store     LogoutSessionStore
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)
	Metric    int
	Event     string
}

type LogoutResult struct {
	UserID string
	Err    error
}

// RunLogout clears both session copies. Clearing an empty store succeeds.
func RunLogout(ctx context.Context, deps LogoutDeps) LogoutResult {
	var userID string
	if rec, ok := deps.Store.Read(ctx); ok {
		userID = rec.Principal.ID
	}
	err := deps.Store.Clear(ctx)
	if deps.MetricInc != nil && err == nil {
		deps.MetricInc(deps.Metric)
	}
	if deps.EmitAudit != nil {
		deps.EmitAudit(ctx, deps.Event, err == nil, userID, err, nil)
	}
	return LogoutResult{UserID: userID, Err: err}
}
