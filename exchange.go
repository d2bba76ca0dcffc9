package authclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/evdealer/authclient/internal/flows"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attempt is one sign-in try. It moves from ExchangeIdle through
// ExchangeSubmitting to a final state exactly once and is never retried.
type Attempt struct {
	client *Client

	mu     sync.Mutex
	state  ExchangeState
	result *ExchangeResult
	err    error
}

func (c *Client) NewAttempt() *Attempt {
	return &Attempt{client: c}
}

func (a *Attempt) State() ExchangeState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Outcome returns what Submit returned. Both are nil until the attempt ends.
func (a *Attempt) Outcome() (*ExchangeResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.result, a.err
}

// Submit runs the exchange. A second call fails with ErrAttemptUsed.
func (a *Attempt) Submit(ctx context.Context, assertion Assertion) (*ExchangeResult, error) {
	a.mu.Lock()
	if a.state != ExchangeIdle {
		a.mu.Unlock()
		return nil, ErrAttemptUsed
	}
	a.state = ExchangeSubmitting
	a.mu.Unlock()

	res, err := a.client.exchange(ctx, assertion)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.result, a.err = res, err
	if err != nil {
		a.state = ExchangeFailed
	} else {
		a.state = res.State
	}
	return res, err
}

// Exchange signs in with assertion and, on success, replaces the stored
// session. A degraded identity sign-in returns a result with State
// ExchangeDegraded and a nil error. An identity token whose claims cannot be
// read is not degraded when the backend rejects it: that returns a
// KindAuthenticationFailed error and leaves the stored session alone.
func (c *Client) Exchange(ctx context.Context, assertion Assertion) (*ExchangeResult, error) {
	return c.NewAttempt().Submit(ctx, assertion)
}

func (c *Client) exchange(ctx context.Context, assertion Assertion) (*ExchangeResult, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	switch a := assertion.(type) {
	case PasswordAssertion:
		ctx, span := c.startSpan(ctx, spanExchange, attribute.String("authclient.method", "password"))
		return c.finishExchange(span, flows.RunPasswordExchange(ctx, a.Email, a.Password, c.flows.Exchange))
	case *PasswordAssertion:
		if a != nil {
			return c.exchange(ctx, *a)
		}
	case IdentityAssertion:
		ctx, span := c.startSpan(ctx, spanExchange, attribute.String("authclient.method", "identity"))
		return c.finishExchange(span, flows.RunIdentityExchange(ctx, a.IDToken, c.flows.Exchange))
	case *IdentityAssertion:
		if a != nil {
			return c.exchange(ctx, *a)
		}
	}
	return nil, &Error{
		Kind:    KindAuthenticationFailed,
		Message: c.config.Messages.AuthenticationFailed,
		Raw:     fmt.Errorf("%w: %T", ErrInvalidAssertion, assertion),
	}
}

func (c *Client) finishExchange(span trace.Span, res flows.ExchangeResult) (*ExchangeResult, error) {
	switch res.Outcome {
	case flows.OutcomeSucceeded:
		span.SetAttributes(attribute.String("authclient.outcome", ExchangeSucceeded.String()))
		endSpan(span, nil)
		return &ExchangeResult{State: ExchangeSucceeded, Record: res.Record}, nil
	case flows.OutcomeDegraded:
		span.SetAttributes(attribute.String("authclient.outcome", ExchangeDegraded.String()))
		endSpan(span, nil)
		return &ExchangeResult{
			State:  ExchangeDegraded,
			Record: res.Record,
			Warning: &Error{
				Kind:    KindDegradedIdentity,
				Status:  res.Status,
				Message: res.Message,
				Errors:  res.Errors,
				Timeout: res.Failure == flows.ExchangeFailureTimeout,
				Raw:     res.Err,
			},
		}, nil
	}

	err := c.exchangeError(res)
	span.SetAttributes(attribute.String("authclient.outcome", ExchangeFailed.String()))
	endSpan(span, err)
	return nil, err
}

func (c *Client) exchangeError(res flows.ExchangeResult) *Error {
	err := &Error{
		Kind:    KindAuthenticationFailed,
		Status:  res.Status,
		Message: res.Message,
		Errors:  res.Errors,
		Raw:     res.Err,
	}
	switch res.Failure {
	case flows.ExchangeFailureInput:
		if err.Raw == nil {
			err.Raw = ErrInvalidAssertion
		}
	case flows.ExchangeFailureInvalidResponse:
		err.Kind = KindInvalidCredentialsResponse
		if err.Message == "" {
			err.Message = c.config.Messages.InvalidResponse
		}
	case flows.ExchangeFailureTimeout:
		err.Timeout = true
	case flows.ExchangeFailureStore:
		err.Kind = KindSessionStore
	}
	if err.Message == "" {
		err.Message = c.config.Messages.AuthenticationFailed
	}
	return err
}
