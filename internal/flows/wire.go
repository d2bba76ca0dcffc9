package flows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

const bearerPrefix = "Bearer "

// NormalizeBearer strips a stored "Bearer " prefix so the scheme is never
// doubled when the header is rebuilt.
func NormalizeBearer(token string) string {
	token = strings.TrimSpace(token)
	for len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		token = strings.TrimSpace(token[len(bearerPrefix):])
	}
	if strings.EqualFold(token, strings.TrimSpace(bearerPrefix)) {
		return ""
	}
	return token
}

// ErrorBody is the backend's error shape.
type ErrorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

// ParseErrorBody extracts message and field errors from a backend error
// body. Field values that are not strings are rendered as JSON text.
func ParseErrorBody(body []byte) ErrorBody {
	var raw struct {
		Message json.RawMessage            `json:"message"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if len(bytes.TrimSpace(body)) == 0 || json.Unmarshal(body, &raw) != nil {
		return ErrorBody{}
	}
	out := ErrorBody{Message: rawText(raw.Message)}
	if raw.Errors != nil {
		out.Errors = make(map[string]string, len(raw.Errors))
		for field, value := range raw.Errors {
			out.Errors[field] = rawText(value)
		}
	}
	return out
}

func rawText(v json.RawMessage) string {
	if len(v) == 0 || string(v) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(v)
}

// flexID accepts backend identifiers encoded as either strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// roleName reads either "role_name" or "role", where "role" may be a plain
// string or an object with a "name".
func roleName(name string, role json.RawMessage) string {
	if name != "" {
		return name
	}
	if len(role) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(role, &s); err == nil {
		return s
	}
	var nested struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(role, &nested); err == nil {
		return nested.Name
	}
	return ""
}

// ensureTimeout applies d unless ctx already carries a deadline.
func ensureTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// isTimeout reports whether err is a deadline or a network timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
