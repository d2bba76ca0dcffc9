package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/evdealer/authclient/internal/flows"
	"go.opentelemetry.io/otel/attribute"
)

// Request is a call to a protected backend resource. Path is relative to
// the configured base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is a 2xx backend answer, passed through unmodified.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// DecodeJSON unmarshals the body into v. An empty body leaves v untouched.
func (r *Response) DecodeJSON(v any) error {
	if r == nil || v == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Do attaches the current access token to req and sends it once. Every
// failure is an *Error: KindNoTokenAvailable (status 401, nothing sent) when
// there is no token, KindHTTP for non-2xx answers and KindTransport when no
// answer arrived.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + req.Query.Encode()
	}

	ctx, span := c.startSpan(ctx, spanDispatch,
		attribute.String("http.request.method", method),
		attribute.String("url.path", req.Path),
	)
	res := flows.RunDispatch(ctx, flows.DispatchRequest{
		Method: method,
		Path:   path,
		Header: req.Header,
		Body:   req.Body,
	}, c.flows.Dispatch)

	if res.Failure == flows.DispatchFailureNone {
		span.SetAttributes(attribute.Int("http.response.status_code", res.Status))
		endSpan(span, nil)
		return &Response{Status: res.Reply.Status, Header: res.Reply.Header, Body: res.Reply.Body}, nil
	}

	err := &Error{
		Status:  res.Status,
		Message: res.Message,
		Errors:  res.Errors,
		Raw:     res.Err,
	}
	switch res.Failure {
	case flows.DispatchFailureNoToken:
		err.Kind = KindNoTokenAvailable
	case flows.DispatchFailureHTTP:
		err.Kind = KindHTTP
	case flows.DispatchFailureTimeout:
		err.Kind = KindTransport
		err.Timeout = true
	default:
		err.Kind = KindTransport
	}
	if err.Message == "" {
		err.Message = c.config.Messages.Network
	}
	endSpan(span, err)
	return nil, err
}

// GetJSON fetches path and decodes the answer into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON sends in as JSON and decodes the answer into out, which may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	req := Request{Method: method, Path: path, Header: http.Header{}}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: c.config.Messages.Generic, Raw: err}
		}
		req.Body = body
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.DecodeJSON(out); err != nil {
		return &Error{Status: resp.Status, Message: c.config.Messages.Generic, Raw: err}
	}
	return nil
}
