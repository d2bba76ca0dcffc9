package authclient

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentialsResponse means the backend answered 2xx without a
	// user or an access token.
	ErrInvalidCredentialsResponse = errors.New("invalid credentials response")
	// ErrAuthenticationFailed means the backend rejected the assertion or
	// could not be reached.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDegradedIdentity marks an identity sign-in the backend did not
	// confirm. It is not a hard failure.
	ErrDegradedIdentity = errors.New("identity not verified by backend")
	ErrNoTokenAvailable = errors.New("no token available")
	ErrHTTP             = errors.New("http error")
	ErrTransport        = errors.New("transport error")
	ErrTimeout          = errors.New("request timed out")
	ErrSessionStore     = errors.New("session store failure")
	ErrRefreshFailed    = errors.New("refresh failed")
	ErrClientClosed     = errors.New("client closed")
	ErrInvalidAssertion = errors.New("invalid assertion")
	// ErrAttemptUsed is returned when an Attempt is submitted twice.
	ErrAttemptUsed = errors.New("exchange attempt already submitted")
)

// ErrorKind classifies a normalized Error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidCredentialsResponse
	KindAuthenticationFailed
	KindDegradedIdentity
	KindNoTokenAvailable
	KindHTTP
	KindTransport
	KindSessionStore
	KindRefreshFailed
)

var kindNames = [...]string{
	KindUnknown:                    "unknown",
	KindInvalidCredentialsResponse: "invalid_credentials_response",
	KindAuthenticationFailed:       "authentication_failed",
	KindDegradedIdentity:           "degraded_identity",
	KindNoTokenAvailable:           "no_token_available",
	KindHTTP:                       "http_error",
	KindTransport:                  "transport_error",
	KindSessionStore:               "session_store",
	KindRefreshFailed:              "refresh_failed",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidCredentialsResponse:
		return ErrInvalidCredentialsResponse
	case KindAuthenticationFailed:
		return ErrAuthenticationFailed
	case KindDegradedIdentity:
		return ErrDegradedIdentity
	case KindNoTokenAvailable:
		return ErrNoTokenAvailable
	case KindHTTP:
		return ErrHTTP
	case KindTransport:
		return ErrTransport
	case KindSessionStore:
		return ErrSessionStore
	case KindRefreshFailed:
		return ErrRefreshFailed
	}
	return nil
}

// Error is the normalized failure every operation returns. Status is the
// HTTP status, or 0 when no response was received.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Errors  map[string]string
	// Timeout is set for transport failures caused by a deadline.
	Timeout bool
	Raw     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Raw
}

// Is matches the sentinel for the error's kind, and ErrTimeout for timeouts.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if target == ErrTimeout {
		return e.Timeout
	}
	return target == e.Kind.sentinel()
}

// AsError extracts the normalized Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// NeedsLogin reports whether err should send the user back to the login
// screen: no token was available or the backend answered 401.
func NeedsLogin(err error) bool {
	e, ok := AsError(err)
	if !ok {
		return false
	}
	return e.Kind == KindNoTokenAvailable || e.Status == 401
}

// ParseError renders err for display with the default messages.
func ParseError(err error) (string, map[string]string) {
	return defaultMessages().ParseError(err)
}

// ParseError renders err as a single message plus any field errors. When the
// error carries no message, m.Generic is used.
func (m Messages) ParseError(err error) (string, map[string]string) {
	if err == nil {
		return "", nil
	}
	if e, ok := AsError(err); ok {
		msg := e.Message
		if msg == "" {
			msg = m.Generic
		}
		var fields map[string]string
		if len(e.Errors) > 0 {
			fields = make(map[string]string, len(e.Errors))
			for k, v := range e.Errors {
				fields[k] = v
			}
		}
		return msg, fields
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg, nil
	}
	return m.Generic, nil
}
