// Package transport builds the HTTP clients used to talk to feed services.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tesso57/readsync/internal/domain/reading"
)

// DefaultTimeout bounds a whole call, including reading the body.
const DefaultTimeout = time.Minute

// UserAgent is sent with every request.
const UserAgent = "Readsync/1.0"

// MaxBodySize caps response bodies.
const MaxBodySize = 32 << 20

// Authenticator decorates outgoing requests with credentials.
type Authenticator interface {
	Authenticate(req *http.Request)
}

// BasicAuth sends HTTP basic credentials.
type BasicAuth struct {
	Login    string
	Password string
}

// Authenticate implements Authenticator.
func (a BasicAuth) Authenticate(req *http.Request) {
	req.SetBasicAuth(a.Login, a.Password)
}

// TokenAuth sends a session token in the Authorization header once it is set.
// The zero value sends nothing.
type TokenAuth struct {
	Scheme string

	mu    sync.RWMutex
	token string
}

// SetToken stores the session token.
func (a *TokenAuth) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
}

// Token returns the current session token.
func (a *TokenAuth) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Authenticate implements Authenticator.
func (a *TokenAuth) Authenticate(req *http.Request) {
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", a.Scheme+token)
	}
}

type options struct {
	timeout time.Duration
	base    http.RoundTripper
	auth    Authenticator
	accept  string
}

// Option configures NewClient.
type Option func(*options)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithBase sets the underlying round tripper.
func WithBase(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithAuth attaches credentials to every request.
func WithAuth(a Authenticator) Option {
	return func(o *options) { o.auth = a }
}

// WithAccept sets the Accept header used when a request has none.
func WithAccept(accept string) Option {
	return func(o *options) { o.accept = accept }
}

// NewClient returns a client that authenticates requests and maps
// HTTP failures to reading errors.
func NewClient(opts ...Option) *http.Client {
	o := options{timeout: DefaultTimeout, base: http.DefaultTransport, accept: "application/json"}
	for _, opt := range opts {
		opt(&o)
	}
	var rt http.RoundTripper = headerTransport{base: o.base, accept: o.accept}
	if o.auth != nil {
		rt = authTransport{base: rt, auth: o.auth}
	}
	return &http.Client{
		Timeout:   o.timeout,
		Transport: errorTransport{base: rt},
	}
}

type headerTransport struct {
	base   http.RoundTripper
	accept string
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	clone := req.Clone(req.Context())
	if clone.Header.Get("Accept") == "" && t.accept != "" {
		clone.Header.Set("Accept", t.accept)
	}
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", UserAgent)
	}
	return base.RoundTrip(clone)
}

type authTransport struct {
	base http.RoundTripper
	auth Authenticator
}

func (t authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	t.auth.Authenticate(clone)
	return t.base.RoundTrip(clone)
}

type errorTransport struct {
	base http.RoundTripper
}

func (t errorTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
	target := redact(req.URL)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &reading.AuthError{URL: target, StatusCode: resp.StatusCode}
	}
	return nil, &reading.TransportError{Op: req.Method, URL: target, StatusCode: resp.StatusCode}
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Do sends req and reads the whole body. Failures are *reading.AuthError or
// *reading.TransportError.
func Do(client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(req, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, &reading.TransportError{Op: req.Method, URL: redact(req.URL), Err: err}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// Get fetches url and returns the body.
func Get(ctx context.Context, client *http.Client, rawURL string) ([]byte, error) {
	return Send(ctx, client, http.MethodGet, rawURL, "", nil)
}

// PostForm posts form values and returns the body.
func PostForm(ctx context.Context, client *http.Client, rawURL string, form url.Values) ([]byte, error) {
	return Send(ctx, client, http.MethodPost, rawURL, "application/x-www-form-urlencoded", []byte(form.Encode()))
}

// Send issues a request with an optional body and returns the response body.
func Send(ctx context.Context, client *http.Client, method, rawURL, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, &reading.TransportError{Op: method, URL: rawURL, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := Do(client, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func classify(req *http.Request, err error) error {
	var authErr *reading.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	var transportErr *reading.TransportError
	if errors.As(err, &transportErr) {
		return transportErr
	}
	if isTimeout(err) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return &reading.TransportError{Op: req.Method, URL: redact(req.URL), Err: err}
}

// redact drops query strings, which may carry api keys.
func redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.RawQuery = ""
	clean.User = nil
	return strings.TrimSuffix(clean.String(), "?")
}
