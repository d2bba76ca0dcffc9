// Package testbackend is an in-process stand-in for the dealer backend API.
// It serves the login, identity, refresh and protected routes the client
// talks to, and records what it received.
package testbackend

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// User is a password account known to the backend.
type User struct {
	ID       string
	Email    string
	Password string
	FullName string
	Role     string
}

// Recorded is one request the backend saw.
type Recorded struct {
	Method        string
	Path          string
	Authorization string
	RequestID     string
}

// Backend holds the stub's mutable state. All methods are safe for
// concurrent use.
type Backend struct {
	mu           sync.Mutex
	users        map[string]User
	access       map[string]string
	refresh      map[string]string
	requests     []Recorded
	failIdentity bool
	omitUser     bool
	rotate       bool
	delay        time.Duration
}

// DefaultUsers are the accounts a new Backend starts with.
func DefaultUsers() []User {
	return []User{
		{ID: "u-admin", Email: "admin@evm.vn", Password: "admin123", FullName: "EVM Admin", Role: "Admin"},
		{ID: "u-evm", Email: "staff@evm.vn", Password: "staff123", FullName: "EVM Staff", Role: "EVM Staff"},
		{ID: "u-mgr", Email: "manager@dealer.vn", Password: "manager123", FullName: "Dealer Manager", Role: "Dealer Manager"},
		{ID: "u1", Email: "staff@dealer.vn", Password: "dealer123", FullName: "Dealer Staff", Role: "Dealer Staff"},
	}
}

func NewBackend(users ...User) *Backend {
	if len(users) == 0 {
		users = DefaultUsers()
	}
	b := &Backend{
		users:   make(map[string]User, len(users)),
		access:  map[string]string{},
		refresh: map[string]string{},
	}
	for _, u := range users {
		b.users[strings.ToLower(u.Email)] = u
	}
	return b
}

// Server is a Backend served over httptest.
type Server struct {
	*Backend
	*httptest.Server
}

// New starts a Server. Callers close it with Close.
func New(users ...User) *Server {
	b := NewBackend(users...)
	return &Server{Backend: b, Server: httptest.NewServer(b.Router())}
}

// Router returns the chi router serving the backend API.
func (b *Backend) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.record)

	r.Post("/users/login", b.handleLogin)
	r.Post("/auth/google", b.handleIdentity)
	r.Post("/auth/refresh", b.handleRefresh)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(b.requireBearer)
		r.Get("/me", b.handleMe)
		r.Get("/vehicles", b.handleVehicles)
		r.Get("/vehicles/{id}", b.handleVehicle)
		r.Post("/orders", b.handleCreateOrder)
		r.Put("/orders/{id}", b.handleUpdateOrder)
		r.Delete("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/forbidden", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{"message": "Forbidden", "errors": map[string]string{}})
		})
		r.Get("/broken", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("<html>upstream failure</html>"))
		})
	})
	return r
}

// FailIdentity makes identity verification answer 500.
func (b *Backend) FailIdentity(fail bool) {
	b.mu.Lock()
	b.failIdentity = fail
	b.mu.Unlock()
}

// OmitUser makes password login answer 200 without the user object.
func (b *Backend) OmitUser(omit bool) {
	b.mu.Lock()
	b.omitUser = omit
	b.mu.Unlock()
}

// RotateRefresh makes refresh return a new refresh token.
func (b *Backend) RotateRefresh(rotate bool) {
	b.mu.Lock()
	b.rotate = rotate
	b.mu.Unlock()
}

// SetDelay delays every protected response by d.
func (b *Backend) SetDelay(d time.Duration) {
	b.mu.Lock()
	b.delay = d
	b.mu.Unlock()
}

// Revoke invalidates an access token.
func (b *Backend) Revoke(access string) {
	b.mu.Lock()
	delete(b.access, access)
	b.mu.Unlock()
}

// Requests returns a copy of everything received so far.
func (b *Backend) Requests() []Recorded {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Recorded, len(b.requests))
	copy(out, b.requests)
	return out
}

// CountPath reports how many requests hit path.
func (b *Backend) CountPath(path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Issue mints a token pair for userID, as login would.
func (b *Backend) Issue(userID string) (access, refresh string) {
	access, refresh = "at-"+uuid.NewString(), "rt-"+uuid.NewString()
	b.mu.Lock()
	b.access[access] = userID
	b.refresh[refresh] = userID
	b.mu.Unlock()
	return access, refresh
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, Recorded{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-ID"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

type userKey struct{}

func (b *Backend) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		b.mu.Lock()
		userID, known := b.access[token]
		delay := b.delay
		b.mu.Unlock()
		if !ok || !known {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), userID)))
	})
}
