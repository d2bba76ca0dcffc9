package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/evdealer/authclient/permission"
	"github.com/evdealer/authclient/session"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticSource(rec *session.Record) SessionSource {
	return SessionSourceFunc(func(*http.Request) (*session.Record, bool) {
		return rec, rec != nil
	})
}

func withRole(role permission.Role) *session.Record {
	return &session.Record{
		SessionID: "sid",
		Principal: session.Principal{ID: "u", Role: role},
		Tokens:    session.TokenPair{AccessToken: "tok"},
	}
}

func dashboardRouter(src SessionSource) http.Handler {
	r := chi.NewRouter()
	r.Use(Dashboard(src, nil))
	ok := func(w http.ResponseWriter, r *http.Request) {
		rec, _ := RecordFromContext(r.Context())
		if rec != nil {
			w.Header().Set("X-Role", rec.Principal.Role.String())
		}
		w.WriteHeader(http.StatusOK)
	}
	r.Get("/", ok)
	r.Get("/dashboard", ok)
	r.Get("/dashboard/{area}", ok)
	r.Get("/dashboard/{area}/*", ok)
	return r
}

func serve(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestRequireSessionRedirectsWithCallback(t *testing.T) {
	h := dashboardRouter(staticSource(nil))

	rr := serve(h, "/dashboard/dealer/orders?page=2&q=vf8")
	require.Equal(t, http.StatusFound, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, permission.LoginPath, loc.Path)
	assert.Equal(t, "/dashboard/dealer/orders?page=2&q=vf8", loc.Query().Get(CallbackParam))
}

func TestPublicPathsPassWithoutSession(t *testing.T) {
	h := dashboardRouter(staticSource(nil))

	rr := serve(h, "/")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDashboardRootRedirectsToRoleHome(t *testing.T) {
	tests := []struct {
		role permission.Role
		want string
	}{
		{permission.RoleAdmin, "/dashboard/evm"},
		{permission.RoleEVMStaff, "/dashboard/evm"},
		{permission.RoleDealerManager, "/dashboard/dealer"},
		{permission.RoleDealerStaff, "/dashboard/dealer"},
		{permission.RoleCustomer, "/dashboard/customer"},
	}
	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			rr := serve(dashboardRouter(staticSource(withRole(tt.role))), "/dashboard")
			require.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Location"))
		})
	}
}

func TestRequireAreaGatesByRole(t *testing.T) {
	tests := []struct {
		role   permission.Role
		target string
		want   int
	}{
		{permission.RoleAdmin, "/dashboard/dealer/inventory", http.StatusOK},
		{permission.RoleAdmin, "/dashboard/customer", http.StatusOK},
		{permission.RoleEVMStaff, "/dashboard/evm/dealers", http.StatusOK},
		{permission.RoleEVMStaff, "/dashboard/dealer", http.StatusForbidden},
		{permission.RoleDealerStaff, "/dashboard/evm", http.StatusForbidden},
		{permission.RoleDealerManager, "/dashboard/dealer/reports", http.StatusOK},
		{permission.RoleCustomer, "/dashboard/dealer/orders", http.StatusForbidden},
		{permission.RoleCustomer, "/dashboard/customer/profile", http.StatusOK},
	}
	for _, tt := range tests {
		rr := serve(dashboardRouter(staticSource(withRole(tt.role))), tt.target)
		assert.Equal(t, tt.want, rr.Code, "%s %s", tt.role, tt.target)
	}
}

func TestRecordReachesHandler(t *testing.T) {
	rr := serve(dashboardRouter(staticSource(withRole(permission.RoleDealerStaff))), "/dashboard/dealer")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Dealer Staff", rr.Header().Get("X-Role"))
}

func TestReaderSourceUsesRequestContext(t *testing.T) {
	type key struct{}
	src := ReaderSource(func(ctx context.Context) (*session.Record, bool) {
		if ctx.Value(key{}) == nil {
			return nil, false
		}
		return withRole(permission.RoleCustomer), true
	})

	req := httptest.NewRequest(http.MethodGet, "/dashboard/customer", nil)
	_, ok := src.RequestSession(req)
	assert.False(t, ok)

	req = req.WithContext(context.WithValue(req.Context(), key{}, true))
	rec, ok := src.RequestSession(req)
	require.True(t, ok)
	assert.Equal(t, permission.RoleCustomer, rec.Principal.Role)
}

func TestRequireAreaWithoutRecordIsForbidden(t *testing.T) {
	h := RequireArea(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	assert.Equal(t, http.StatusForbidden, serve(h, "/dashboard/evm").Code)
	assert.Equal(t, http.StatusOK, serve(h, "/settings").Code)
}

func TestLoginURLWithoutQuery(t *testing.T) {
	u, _ := url.Parse("/dashboard/evm")
	assert.Equal(t, "/login?callbackUrl=%2Fdashboard%2Fevm", LoginURL(u))
}
