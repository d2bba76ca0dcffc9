package flows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/evdealer/authclient/permission"
	"github.com/evdealer/authclient/session"
)

// ExchangeOutcome is the terminal state of one exchange attempt.
type ExchangeOutcome int

const (
	OutcomeFailed ExchangeOutcome = iota
	OutcomeSucceeded
	OutcomeDegraded
)

// ExchangeFailureKind classifies exchange failures for root-level mapping.
type ExchangeFailureKind int

const (
	ExchangeFailureNone ExchangeFailureKind = iota
	ExchangeFailureInput
	ExchangeFailureInvalidResponse
	ExchangeFailureRejected
	ExchangeFailureTransport
	ExchangeFailureTimeout
	ExchangeFailureStore
)

// ExchangeResult carries the stored record or failure metadata.
type ExchangeResult struct {
	Outcome ExchangeOutcome
	Failure ExchangeFailureKind
	Status  int
	Message string
	Errors  map[string]string
	Err     error
	Record  *session.Record
}

// ExchangeMetrics carries metric IDs used by the exchange flows.
type ExchangeMetrics struct {
	Success         int
	Failure         int
	Degraded        int
	InvalidResponse int
}

// ExchangeEvents carries audit event names used by the exchange flows.
type ExchangeEvents struct {
	Success  string
	Failure  string
	Degraded string
}

// ExchangeMessages carries localized fallback messages.
type ExchangeMessages struct {
	AuthenticationFailed string
	InvalidResponse      string
	Network              string
	Timeout              string
}

// IdentityProfile is what the client can read from a provider ID token
// without the backend.
type IdentityProfile struct {
	Subject string
	Email   string
	Name    string
}

type SessionWriter interface {
	Write(ctx context.Context, principal session.Principal, tokens session.TokenPair) (*session.Record, error)
}

// ExchangeDeps captures password and identity exchange dependencies.
type ExchangeDeps struct {
	Send               Sender
	Store              SessionWriter
	PasswordLoginPath  string
	IdentityVerifyPath string
	Timeout            time.Duration
	Now                func() time.Time

	// ParseIdentity reads a provider ID token without verifying it.
	ParseIdentity func(string) (IdentityProfile, error)

	MetricInc      func(int)
	ObserveLatency func(time.Duration)
	EmitAudit      func(ctx context.Context, event string, success bool, userID string, err error, meta func() map[string]string)
	Warn           func(string, ...any)

	Metrics  ExchangeMetrics
	Events   ExchangeEvents
	Messages ExchangeMessages
}

func (d *ExchangeDeps) defaults() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.ObserveLatency == nil {
		d.ObserveLatency = func(time.Duration) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, error, func() map[string]string) {}
	}
	if d.Warn == nil {
		d.Warn = func(string, ...any) {}
	}
}

type loginUser struct {
	ID       flexID          `json:"id"`
	Email    string          `json:"email"`
	FullName string          `json:"full_name"`
	RoleName string          `json:"role_name"`
	Role     json.RawMessage `json:"role"`
}

func (u *loginUser) roleName() string {
	return roleName(u.RoleName, u.Role)
}

// principal falls back to the email when the backend sends no id.
func (u *loginUser) principal() session.Principal {
	name := strings.TrimSpace(u.FullName)
	if name == "" {
		name = u.Email
	}
	id := string(u.ID)
	if id == "" {
		id = u.Email
	}
	return session.Principal{
		ID:          id,
		Email:       u.Email,
		DisplayName: name,
		Role:        permission.ParseRole(u.roleName()),
	}
}

type passwordLoginReply struct {
	User  *loginUser `json:"user"`
	Token *struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	} `json:"token"`
}

type identityVerifyReply struct {
	Customer     *loginUser `json:"customer"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

// RunPasswordExchange posts the password assertion and, on a complete
// response, replaces the stored session.
func RunPasswordExchange(ctx context.Context, email, password string, deps ExchangeDeps) ExchangeResult {
	deps.defaults()
	start := deps.Now()
	defer func() { deps.ObserveLatency(deps.Now().Sub(start)) }()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return failExchange(ctx, deps, ExchangeResult{
			Failure: ExchangeFailureInput,
			Message: deps.Messages.AuthenticationFailed,
		}, email, "empty_credentials")
	}

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	password = ""
	if err != nil {
		return failExchange(ctx, deps, ExchangeResult{Failure: ExchangeFailureInput, Err: err, Message: deps.Messages.AuthenticationFailed}, email, "encode")
	}

	reply, res, ok := exchangeRoundTrip(ctx, deps, deps.PasswordLoginPath, body)
	if !ok {
		return failExchange(ctx, deps, res, email, "transport")
	}
	if !reply.OK() {
		return failExchange(ctx, deps, rejected(reply, deps.Messages.AuthenticationFailed), email, "rejected")
	}

	var parsed passwordLoginReply
	if err := json.Unmarshal(reply.Body, &parsed); err != nil ||
		parsed.User == nil || parsed.User.principal().ID == "" ||
		parsed.Token == nil || strings.TrimSpace(parsed.Token.AccessToken) == "" {
		deps.MetricInc(deps.Metrics.InvalidResponse)
		return failExchange(ctx, deps, ExchangeResult{
			Failure: ExchangeFailureInvalidResponse,
			Status:  reply.Status,
			Message: deps.Messages.InvalidResponse,
			Err:     err,
		}, email, "invalid_response")
	}

	rec, err := deps.Store.Write(ctx, parsed.User.principal(), session.TokenPair{
		AccessToken:  parsed.Token.AccessToken,
		RefreshToken: parsed.Token.RefreshToken,
	})
	if err != nil {
		return failExchange(ctx, deps, ExchangeResult{Failure: ExchangeFailureStore, Err: err, Message: deps.Messages.AuthenticationFailed}, email, "store")
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, rec.Principal.ID, nil, func() map[string]string {
		return map[string]string{"method": "password", "role": rec.Principal.Role.String()}
	})
	return ExchangeResult{Outcome: OutcomeSucceeded, Status: reply.Status, Record: rec}
}

// RunIdentityExchange posts a provider ID token for verification. When the
// backend does not confirm it, the session is still written from the token's
// own claims with role Customer and no backend tokens.
//
// Degrading needs a readable token. If ParseIdentity fails (or yields no
// subject or email) and the backend also fails, there is no principal to
// fall back to and the exchange fails with AuthenticationFailed.
func RunIdentityExchange(ctx context.Context, idToken string, deps ExchangeDeps) ExchangeResult {
	deps.defaults()
	start := deps.Now()
	defer func() { deps.ObserveLatency(deps.Now().Sub(start)) }()

	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return failExchange(ctx, deps, ExchangeResult{
			Failure: ExchangeFailureInput,
			Message: deps.Messages.AuthenticationFailed,
		}, "", "empty_id_token")
	}

	var profile IdentityProfile
	var profileErr error
	if deps.ParseIdentity != nil {
		profile, profileErr = deps.ParseIdentity(idToken)
	}

	payload := map[string]string{"idToken": idToken}
	if profileErr == nil {
		if profile.Email != "" {
			payload["email"] = profile.Email
		}
		if profile.Name != "" {
			payload["name"] = profile.Name
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failExchange(ctx, deps, ExchangeResult{Failure: ExchangeFailureInput, Err: err, Message: deps.Messages.AuthenticationFailed}, profile.Email, "encode")
	}

	reply, res, ok := exchangeRoundTrip(ctx, deps, deps.IdentityVerifyPath, body)
	var verified identityVerifyReply
	reason := ""
	switch {
	case !ok:
		reason = "transport"
	case !reply.OK():
		reason = "rejected"
		res = rejected(reply, deps.Messages.AuthenticationFailed)
	default:
		if err := json.Unmarshal(reply.Body, &verified); err != nil {
			reason = "invalid_response"
			res = ExchangeResult{Failure: ExchangeFailureInvalidResponse, Status: reply.Status, Err: err}
		} else if strings.TrimSpace(verified.AccessToken) == "" {
			reason = "no_access_token"
			res = ExchangeResult{Failure: ExchangeFailureInvalidResponse, Status: reply.Status}
		}
	}

	principal := session.Principal{
		ID:            profile.Subject,
		Email:         profile.Email,
		DisplayName:   profile.Name,
		Role:          permission.RoleCustomer,
		IdentityToken: idToken,
	}
	if principal.ID == "" {
		principal.ID = profile.Email
	}
	if verified.Customer != nil {
		mergeCustomer(&principal, verified.Customer)
	}

	if reason == "" {
		rec, err := deps.Store.Write(ctx, principal, session.TokenPair{
			AccessToken:  verified.AccessToken,
			RefreshToken: verified.RefreshToken,
		})
		if err != nil {
			return failExchange(ctx, deps, ExchangeResult{Failure: ExchangeFailureStore, Err: err, Message: deps.Messages.AuthenticationFailed}, principal.Email, "store")
		}
		deps.MetricInc(deps.Metrics.Success)
		deps.EmitAudit(ctx, deps.Events.Success, true, rec.Principal.ID, nil, func() map[string]string {
			return map[string]string{"method": "identity", "role": rec.Principal.Role.String()}
		})
		return ExchangeResult{Outcome: OutcomeSucceeded, Status: reply.Status, Record: rec}
	}

	if profileErr != nil || principal.ID == "" {
		res.Err = errors.Join(res.Err, profileErr)
		if res.Message == "" {
			res.Message = deps.Messages.AuthenticationFailed
		}
		return failExchange(ctx, deps, res, "", reason+"_unreadable_id_token")
	}

	// Degraded: the backend confirmed nothing, so the role stays Customer.
	principal.Role = permission.RoleCustomer
	rec, err := deps.Store.Write(ctx, principal, session.TokenPair{})
	if err != nil {
		return failExchange(ctx, deps, ExchangeResult{Failure: ExchangeFailureStore, Err: err, Message: deps.Messages.AuthenticationFailed}, principal.Email, "store")
	}
	deps.Warn("authclient: identity verification degraded", "reason", reason, "status", res.Status)
	deps.MetricInc(deps.Metrics.Degraded)
	deps.EmitAudit(ctx, deps.Events.Degraded, true, rec.Principal.ID, res.Err, func() map[string]string {
		return map[string]string{"method": "identity", "reason": reason}
	})
	return ExchangeResult{
		Outcome: OutcomeDegraded,
		Failure: res.Failure,
		Status:  res.Status,
		Message: res.Message,
		Err:     res.Err,
		Record:  rec,
	}
}

func mergeCustomer(p *session.Principal, c *loginUser) {
	if c.ID != "" {
		p.ID = string(c.ID)
	}
	if c.Email != "" {
		p.Email = c.Email
	}
	if name := strings.TrimSpace(c.FullName); name != "" {
		p.DisplayName = name
	}
	if role := c.roleName(); role != "" {
		p.Role = permission.ParseRole(role)
	}
}

func exchangeRoundTrip(ctx context.Context, deps ExchangeDeps, path string, body []byte) (*Reply, ExchangeResult, bool) {
	ctx, cancel := ensureTimeout(ctx, deps.Timeout)
	defer cancel()

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	reply, err := deps.Send(ctx, Call{Method: http.MethodPost, Path: path, Header: header, Body: body})
	if err != nil {
		res := ExchangeResult{Failure: ExchangeFailureTransport, Err: err, Message: deps.Messages.Network}
		if isTimeout(err) {
			res.Failure = ExchangeFailureTimeout
			res.Message = deps.Messages.Timeout
		}
		return nil, res, false
	}
	return reply, ExchangeResult{}, true
}

func rejected(reply *Reply, fallback string) ExchangeResult {
	parsed := ParseErrorBody(reply.Body)
	msg := parsed.Message
	if msg == "" {
		msg = fallback
	}
	return ExchangeResult{
		Failure: ExchangeFailureRejected,
		Status:  reply.Status,
		Message: msg,
		Errors:  parsed.Errors,
	}
}

func failExchange(ctx context.Context, deps ExchangeDeps, res ExchangeResult, identifier, reason string) ExchangeResult {
	res.Outcome = OutcomeFailed
	res.Record = nil
	deps.MetricInc(deps.Metrics.Failure)
	deps.EmitAudit(ctx, deps.Events.Failure, false, "", res.Err, func() map[string]string {
		return map[string]string{"identifier": identifier, "reason": reason}
	})
	return res
}
