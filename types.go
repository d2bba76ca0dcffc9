package authclient

import (
	"github.com/evdealer/authclient/permission"
	"github.com/evdealer/authclient/session"
)

type (
	// Principal is the signed-in user as the backend described them.
	Principal = session.Principal
	// TokenPair holds the opaque backend tokens. Either may be empty.
	TokenPair = session.TokenPair
	// Record is one stored session: principal, tokens and when it was written.
	Record = session.Record
	Role   = permission.Role
)

const (
	RoleAdmin         = permission.RoleAdmin
	RoleEVMStaff      = permission.RoleEVMStaff
	RoleDealerManager = permission.RoleDealerManager
	RoleDealerStaff   = permission.RoleDealerStaff
	RoleCustomer      = permission.RoleCustomer
)

// Assertion is a credential offered to Exchange. It is either a
// PasswordAssertion or an IdentityAssertion.
type Assertion interface {
	assertion()
}

// PasswordAssertion signs in with an email and password.
type PasswordAssertion struct {
	Email    string
	Password string
}

// IdentityAssertion signs in with an ID token from the identity provider.
type IdentityAssertion struct {
	IDToken string
}

func (PasswordAssertion) assertion() {}
func (IdentityAssertion) assertion() {}

// ExchangeState is where one sign-in attempt stands.
type ExchangeState int

const (
	ExchangeIdle ExchangeState = iota
	ExchangeSubmitting
	ExchangeSucceeded
	// ExchangeDegraded is a completed identity sign-in the backend did not
	// confirm. The session holds a Customer principal and no tokens.
	ExchangeDegraded
	ExchangeFailed
)

var exchangeStateNames = [...]string{
	ExchangeIdle:       "idle",
	ExchangeSubmitting: "submitting",
	ExchangeSucceeded:  "succeeded",
	ExchangeDegraded:   "degraded_succeeded",
	ExchangeFailed:     "failed",
}

func (s ExchangeState) String() string {
	if s < 0 || int(s) >= len(exchangeStateNames) {
		return "unknown"
	}
	return exchangeStateNames[s]
}

// ExchangeResult is the outcome of a completed sign-in.
type ExchangeResult struct {
	State  ExchangeState
	Record *Record
	// Warning explains a degraded sign-in. It is nil otherwise.
	Warning *Error
}
