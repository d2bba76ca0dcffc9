package flows

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/evdealer/authclient/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNoSession
	RefreshFailureTransport
	RefreshFailureTimeout
	RefreshFailureRejected
	RefreshFailureInvalidResponse
	RefreshFailureStore
)

// RefreshResult carries either the rewritten record or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Status  int
	Message string
	Errors  map[string]string
	Err     error
	Record  *session.Record
	Rotated bool
}

type RefreshSessionStore interface {
	Read(ctx context.Context) (*session.Record, bool)
	SessionWriter
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Send        Sender
	Store       RefreshSessionStore
	RefreshPath string
	Timeout     time.Duration

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)

	SuccessMetric int
	FailureMetric int
	Event         string
	Messages      RefreshMessages
}

type RefreshMessages struct {
	NoSession string
	Rejected  string
	Network   string
	Timeout   string
}

// RunRefresh exchanges the stored refresh token for a new access token and
// rewrites the session. It runs only when a caller asks for it.
func RunRefresh(ctx context.Context, deps RefreshDeps) RefreshResult {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	fail := func(res RefreshResult, userID string) RefreshResult {
		deps.MetricInc(deps.FailureMetric)
		deps.EmitAudit(ctx, deps.Event, false, userID, res.Err, nil)
		return res
	}

	rec, ok := deps.Store.Read(ctx)
	if !ok || strings.TrimSpace(rec.Tokens.RefreshToken) == "" {
		return fail(RefreshResult{Failure: RefreshFailureNoSession, Status: http.StatusUnauthorized, Message: deps.Messages.NoSession}, "")
	}
	userID := rec.Principal.ID

	body, err := json.Marshal(map[string]string{"refreshToken": rec.Tokens.RefreshToken})
	if err != nil {
		return fail(RefreshResult{Failure: RefreshFailureInvalidResponse, Err: err, Message: deps.Messages.Rejected}, userID)
	}

	callCtx, cancel := ensureTimeout(ctx, deps.Timeout)
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	reply, err := deps.Send(callCtx, Call{Method: http.MethodPost, Path: deps.RefreshPath, Header: header, Body: body})
	cancel()
	if err != nil {
		if isTimeout(err) {
			return fail(RefreshResult{Failure: RefreshFailureTimeout, Err: err, Message: deps.Messages.Timeout}, userID)
		}
		return fail(RefreshResult{Failure: RefreshFailureTransport, Err: err, Message: deps.Messages.Network}, userID)
	}
	if !reply.OK() {
		parsed := ParseErrorBody(reply.Body)
		msg := parsed.Message
		if msg == "" {
			msg = deps.Messages.Rejected
		}
		return fail(RefreshResult{Failure: RefreshFailureRejected, Status: reply.Status, Message: msg, Errors: parsed.Errors}, userID)
	}

	var parsed struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(reply.Body, &parsed); err != nil || strings.TrimSpace(parsed.AccessToken) == "" {
		return fail(RefreshResult{Failure: RefreshFailureInvalidResponse, Status: reply.Status, Err: err, Message: deps.Messages.Rejected}, userID)
	}

	tokens := session.TokenPair{
		AccessToken:  parsed.AccessToken,
		RefreshToken: rec.Tokens.RefreshToken,
	}
	rotated := parsed.RefreshToken != "" && parsed.RefreshToken != rec.Tokens.RefreshToken
	if rotated {
		tokens.RefreshToken = parsed.RefreshToken
	}
	next, err := deps.Store.Write(ctx, rec.Principal, tokens)
	if err != nil {
		return fail(RefreshResult{Failure: RefreshFailureStore, Err: err, Message: deps.Messages.Rejected}, userID)
	}

	deps.MetricInc(deps.SuccessMetric)
	deps.EmitAudit(ctx, deps.Event, true, userID, nil, func() map[string]string {
		if rotated {
			return map[string]string{"refresh_rotated": "true"}
		}
		return nil
	})
	return RefreshResult{Status: reply.Status, Record: next, Rotated: rotated}
}
