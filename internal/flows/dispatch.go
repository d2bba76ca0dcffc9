package flows

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DispatchFailureKind classifies dispatch failures for root-level mapping.
type DispatchFailureKind int

const (
	DispatchFailureNone DispatchFailureKind = iota
	DispatchFailureNoToken
	DispatchFailureHTTP
	DispatchFailureTransport
	DispatchFailureTimeout
	DispatchFailureCanceled
)

// DispatchRequest is a caller's protected request before the credential is
// attached.
type DispatchRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// DispatchResult carries the reply or failure metadata. Reply is set for 2xx
// and for HTTP failures.
type DispatchResult struct {
	Failure DispatchFailureKind
	Status  int
	Message string
	Errors  map[string]string
	Err     error
	Reply   *Reply
}

type DispatchMetrics struct {
	Success   int
	NoToken   int
	HTTPError int
	Transport int
}

type DispatchMessages struct {
	NoToken string
	Network string
	Timeout string
	// Status renders the generic message for a non-2xx status without a
	// backend message.
	Status func(status int) string
}

// DispatchDeps captures dispatch flow dependencies.
type DispatchDeps struct {
	Send Sender
	// AccessToken resolves the credential at call time.
	AccessToken func(ctx context.Context) (string, bool)
	Timeout     time.Duration
	Now         func() time.Time

	MetricInc      func(int)
	ObserveLatency func(time.Duration)

	Metrics  DispatchMetrics
	Messages DispatchMessages
}

// RunDispatch resolves the access token, attaches it and sends the request
// once. A missing token fails before anything is sent.
func RunDispatch(ctx context.Context, req DispatchRequest, deps DispatchDeps) DispatchResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}

	token := ""
	if deps.AccessToken != nil {
		if tok, ok := deps.AccessToken(ctx); ok {
			token = NormalizeBearer(tok)
		}
	}
	if token == "" {
		deps.MetricInc(deps.Metrics.NoToken)
		return DispatchResult{
			Failure: DispatchFailureNoToken,
			Status:  http.StatusUnauthorized,
			Message: deps.Messages.NoToken,
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	callCtx, cancel := ensureTimeout(ctx, deps.Timeout)
	defer cancel()

	start := deps.Now()
	reply, err := deps.Send(callCtx, Call{
		Method: method,
		Path:   req.Path,
		Header: req.Header,
		Body:   req.Body,
		Bearer: token,
	})
	if deps.ObserveLatency != nil {
		deps.ObserveLatency(deps.Now().Sub(start))
	}

	if err != nil {
		deps.MetricInc(deps.Metrics.Transport)
		res := DispatchResult{Failure: DispatchFailureTransport, Err: err, Message: deps.Messages.Network}
		switch {
		case isTimeout(err):
			res.Failure = DispatchFailureTimeout
			res.Message = deps.Messages.Timeout
		case errors.Is(err, context.Canceled):
			res.Failure = DispatchFailureCanceled
		}
		return res
	}

	if !reply.OK() {
		deps.MetricInc(deps.Metrics.HTTPError)
		parsed := ParseErrorBody(reply.Body)
		msg := parsed.Message
		if msg == "" && deps.Messages.Status != nil {
			msg = deps.Messages.Status(reply.Status)
		}
		return DispatchResult{
			Failure: DispatchFailureHTTP,
			Status:  reply.Status,
			Message: msg,
			Errors:  parsed.Errors,
			Reply:   reply,
		}
	}

	deps.MetricInc(deps.Metrics.Success)
	return DispatchResult{Status: reply.Status, Reply: reply}
}
