package authclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/evdealer/authclient/internal/flows"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const requestIDHeader = "X-Request-ID"

// httpSender carries flow calls to the backend over HTTP. It is the only
// place a request leaves the client.
type httpSender struct {
	client    *http.Client
	baseURL   string
	userAgent string
	maxBody   int64
}

func newHTTPSender(client *http.Client, cfg BackendConfig) *httpSender {
	if client == nil {
		client = &http.Client{}
	}
	return &httpSender{
		client:    client,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxResponseBytes,
	}
}

func (s *httpSender) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.baseURL + path
}

func (s *httpSender) send(ctx context.Context, call flows.Call) (*flows.Reply, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, s.url(call.Path), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)
	if call.Bearer != "" {
		tok := &oauth2.Token{AccessToken: call.Bearer, TokenType: "Bearer"}
		tok.SetAuthHeader(req)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBody {
		return nil, fmt.Errorf("response body exceeds %d bytes", s.maxBody)
	}
	return &flows.Reply{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
