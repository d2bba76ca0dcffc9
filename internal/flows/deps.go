package flows

import (
	"context"
	"net/http"
)

// Call is one outbound backend request as the flows see it. Path is joined
// to the backend base URL by the Sender.
type Call struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
	// Bearer, when non-empty, is attached as the Authorization credential.
	Bearer string
}

// Reply is a fully read backend response.
type Reply struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports a 2xx status.
func (r *Reply) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Sender performs one round trip. A non-nil error means no response was
// received.
type Sender func(ctx context.Context, call Call) (*Reply, error)

// Deps groups flow dependency sets. The root client builds this once and
// delegates each operation to the matching flow.
type Deps struct {
	Exchange ExchangeDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Dispatch DispatchDeps
}
