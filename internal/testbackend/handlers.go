package testbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid body"})
		return
	}

	b.mu.Lock()
	user, ok := b.users[strings.ToLower(strings.TrimSpace(in.Email))]
	omit := b.omitUser
	b.mu.Unlock()
	if !ok || user.Password != in.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}

	access, refresh := b.Issue(user.ID)
	body := map[string]any{
		"token": map[string]string{"accessToken": access, "refreshToken": refresh},
	}
	if !omit {
		body["user"] = map[string]string{
			"id":        user.ID,
			"email":     user.Email,
			"full_name": user.FullName,
			"role_name": user.Role,
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleIdentity(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IDToken string `json:"idToken"`
		Email   string `json:"email"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.IDToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "idToken required"})
		return
	}
	b.mu.Lock()
	fail := b.failIdentity
	b.mu.Unlock()
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Google verification failed"})
		return
	}

	id := "c-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(in.Email)).String()[:8]
	access, refresh := b.Issue(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"customer": map[string]string{
			"id":        id,
			"email":     in.Email,
			"full_name": in.Name,
			"role_name": "Customer",
		},
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)

	b.mu.Lock()
	userID, ok := b.refresh[in.RefreshToken]
	rotate := b.rotate
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Refresh token failed"})
		return
	}

	access := "at-" + uuid.NewString()
	body := map[string]string{"accessToken": access}
	b.mu.Lock()
	b.access[access] = userID
	if rotate {
		next := "rt-" + uuid.NewString()
		delete(b.refresh, in.RefreshToken)
		b.refresh[next] = userID
		body["refreshToken"] = next
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, body)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"id":            userFrom(r.Context()),
		"authorization": r.Header.Get("Authorization"),
	})
}

type vehicle struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Price int64  `json:"price"`
}

var catalog = []vehicle{
	{ID: "vf8", Model: "VF 8", Price: 1019000000},
	{ID: "vf9", Model: "VF 9", Price: 1491000000},
	{ID: "vf5", Model: "VF 5 Plus", Price: 458000000},
}

func (b *Backend) handleVehicles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": catalog})
}

func (b *Backend) handleVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, v := range catalog {
		if v.ID == id {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Vehicle not found"})
}

type orderInput struct {
	CustomerID string `json:"customer_id"`
	VehicleID  string `json:"vehicle_id"`
	Quantity   int    `json:"quantity"`
}

func (o orderInput) fieldErrors() map[string]string {
	errs := map[string]string{}
	if o.CustomerID == "" {
		errs["customer_id"] = "required"
	}
	if o.VehicleID == "" {
		errs["vehicle_id"] = "required"
	}
	if o.Quantity <= 0 {
		errs["quantity"] = "must be positive"
	}
	return errs
}

func (b *Backend) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var in orderInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	if errs := in.fieldErrors(); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": "Validation failed", "errors": errs})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          "o-" + uuid.NewString()[:8],
		"customer_id": in.CustomerID,
		"vehicle_id":  in.VehicleID,
		"quantity":    in.Quantity,
		"created_by":  userFrom(r.Context()),
	})
}

func (b *Backend) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	var in orderInput
	_ = json.NewDecoder(r.Body).Decode(&in)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       chi.URLParam(r, "id"),
		"quantity": in.Quantity,
	})
}
