package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/evdealer/authclient/permission"
	"github.com/evdealer/authclient/session"
)

// CallbackParam carries the originally requested path to the login page.
const CallbackParam = "callbackUrl"

// SessionSource resolves the session behind an incoming request.
type SessionSource interface {
	RequestSession(r *http.Request) (*session.Record, bool)
}

// SessionSourceFunc adapts a function to SessionSource.
type SessionSourceFunc func(r *http.Request) (*session.Record, bool)

func (f SessionSourceFunc) RequestSession(r *http.Request) (*session.Record, bool) {
	return f(r)
}

// ReaderSource adapts a context reader such as (*authclient.Client).Session
// or (*session.Store).Read.
func ReaderSource(read func(ctx context.Context) (*session.Record, bool)) SessionSource {
	return SessionSourceFunc(func(r *http.Request) (*session.Record, bool) {
		return read(r.Context())
	})
}

type recordContextKey struct{}

func RecordFromContext(ctx context.Context) (*session.Record, bool) {
	rec, ok := ctx.Value(recordContextKey{}).(*session.Record)
	return rec, ok && rec != nil
}

// RequireSession redirects requests without a session to the login page
// with callbackUrl set to the requested path and query. The record is put
// on the request context for later handlers.
func RequireSession(src SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				rec *session.Record
				ok  bool
			)
			if src != nil {
				rec, ok = src.RequestSession(r)
			}
			if !ok || rec == nil {
				http.Redirect(w, r, LoginURL(r.URL), http.StatusFound)
				return
			}

			ctx := context.WithValue(r.Context(), recordContextKey{}, rec)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoginURL is the login page that returns the visitor to u afterwards.
func LoginURL(u *url.URL) string {
	callback := u.Path
	if u.RawQuery != "" {
		callback += "?" + u.RawQuery
	}
	q := url.Values{}
	q.Set(CallbackParam, callback)
	return permission.LoginPath + "?" + q.Encode()
}

// RoleHome redirects the dashboard root to the home of the request's role.
// Requests without a record land on the Customer home. Other paths pass
// through.
func RoleHome(table *permission.RoleTable) func(http.Handler) http.Handler {
	if table == nil {
		table = permission.DefaultTable()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSuffix(r.URL.Path, "/") != permission.DashboardPath {
				next.ServeHTTP(w, r)
				return
			}
			role := permission.RoleCustomer
			if rec, ok := RecordFromContext(r.Context()); ok {
				role = rec.Principal.Role
			}
			http.Redirect(w, r, table.HomePath(role), http.StatusFound)
		})
	}
}

// RequireArea answers 403 when the request's role may not open the
// dashboard area the path belongs to. Paths outside any area pass through.
func RequireArea(table *permission.RoleTable) func(http.Handler) http.Handler {
	if table == nil {
		table = permission.DefaultTable()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			area, ok := permission.AreaForPath(r.URL.Path)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			rec, ok := RecordFromContext(r.Context())
			if !ok || !table.Allows(rec.Principal.Role, area) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Dashboard guards everything under /dashboard: session first, then the
// role home redirect, then area gating. Other paths are served untouched.
func Dashboard(src SessionSource, table *permission.RoleTable) func(http.Handler) http.Handler {
	requireSession := RequireSession(src)
	roleHome := RoleHome(table)
	requireArea := RequireArea(table)

	return func(next http.Handler) http.Handler {
		guarded := requireSession(roleHome(requireArea(next)))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !underDashboard(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func underDashboard(path string) bool {
	return path == permission.DashboardPath || strings.HasPrefix(path, permission.DashboardPath+"/")
}
