package presto

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Protocol headers. In Trino mode the "X-Presto-" prefix is sent as "X-Trino-".
const (
	UserHeader               = "X-Presto-User"
	CatalogHeader            = "X-Presto-Catalog"
	SchemaHeader             = "X-Presto-Schema"
	SessionHeader            = "X-Presto-Session"
	TransactionHeader        = "X-Presto-Transaction-Id"
	StartedTransactionHeader = "X-Presto-Started-Transaction-Id"
	ClearTransactionHeader   = "X-Presto-Clear-Transaction-Id"
	ClientInfoHeader         = "X-Presto-Client-Info"
	ClientTagHeader          = "X-Presto-Client-Tags"
	TimeZoneHeader           = "X-Presto-Time-Zone"

	DefaultUser         = "presto-go-client"
	ContentEncodingGzip = "gzip"
	MaxRetryAttempts    = 10
	MaxRetryDelay       = 30 * time.Second
)

// RequestOption modifies an outgoing request after the session headers are set.
type RequestOption func(*http.Request)

// Session holds the per-connection state sent with every request: identity,
// catalog and schema, session properties and the current transaction.
// A Session is safe for concurrent use.
type Session struct {
	client         *Client
	userInfo       *url.Userinfo
	basicAuth      string
	catalog        string
	schema         string
	timezone       string
	clientInfo     string
	transactionId  string
	sessionParams  map[string]any
	clientTags     []string
	requestOptions []RequestOption

	mu sync.RWMutex
}

// Client owns the HTTP transport and coordinator address. Its embedded Session
// is the default session; NewSession derives independent ones.
type Client struct {
	Session
	httpClient *http.Client
	serverUrl  *url.URL
	isTrino    bool
	forceHTTPS bool
}

// NewClient creates a client for the coordinator at serverUrl. The optional
// basicAuth is a pre-encoded "user:password" credential.
func NewClient(serverUrl string, basicAuth ...string) (*Client, error) {
	parsedUrl, err := url.Parse(serverUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{},
		serverUrl:  parsedUrl,
		Session: Session{
			userInfo:      url.User(DefaultUser),
			sessionParams: make(map[string]any),
		},
	}
	c.Session.client = c

	if len(basicAuth) > 0 {
		c.basicAuth = basicAuth[0]
	}
	return c, nil
}

// NewSession returns a copy of the client's default session.
func (c *Client) NewSession() *Session {
	return c.Session.Clone()
}

// Clone returns an independent copy of s bound to the same client.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Session{
		client:         s.client,
		userInfo:       s.userInfo,
		basicAuth:      s.basicAuth,
		catalog:        s.catalog,
		schema:         s.schema,
		timezone:       s.timezone,
		clientInfo:     s.clientInfo,
		transactionId:  s.transactionId,
		sessionParams:  maps.Clone(s.sessionParams),
		clientTags:     append([]string(nil), s.clientTags...),
		requestOptions: append([]RequestOption(nil), s.requestOptions...),
	}
}

func (s *Session) Catalog(catalog string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog = catalog
	return s
}

func (s *Session) Schema(schema string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = schema
	return s
}

func (s *Session) User(user string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInfo = url.User(user)
	return s
}

func (s *Session) UserPassword(user, password string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInfo = url.UserPassword(user, password)
	return s
}

func (s *Session) TimeZone(tz string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timezone = tz
	return s
}

func (s *Session) ClientInfo(info string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientInfo = info
	return s
}

// SessionParam sets a session property. A nil value removes it.
func (s *Session) SessionParam(key string, value any) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionParams == nil {
		s.sessionParams = make(map[string]any)
	}
	if value == nil {
		delete(s.sessionParams, key)
	} else {
		s.sessionParams[key] = value
	}
	return s
}

func (s *Session) ClearSessionParams() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionParams = make(map[string]any)
	return s
}

func (s *Session) ClientTags(tags ...string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientTags = tags
	return s
}

func (s *Session) AppendClientTag(tag string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientTags = append(s.clientTags, tag)
	return s
}

// RequestOptions replaces the options applied to every request of this
// session. Options passed to a single call run after these.
func (s *Session) RequestOptions(opts ...RequestOption) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestOptions = append([]RequestOption(nil), opts...)
	return s
}

// NewRequest builds a request carrying the session headers. body may be nil,
// a string (sent as text/plain) or any JSON-encodable value.
func (s *Session) NewRequest(method, urlStr string, body any, options ...RequestOption) (*http.Request, error) {
	u, err := s.client.prepareURL(urlStr)
	if err != nil {
		return nil, err
	}

	bodyReader, contentType, err := s.client.prepareRequestBody(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}

	sessionOptions := s.applyHeaders(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept-Encoding", ContentEncodingGzip)

	for _, opt := range sessionOptions {
		opt(req)
	}
	for _, opt := range options {
		opt(req)
	}
	return req, nil
}

// applyHeaders sets the session headers and returns the session's request
// options, both read under one lock.
func (s *Session) applyHeaders(req *http.Request) []RequestOption {
	s.mu.RLock()
	defer s.mu.RUnlock()

	header := func(name, value string) {
		if value != "" {
			req.Header.Set(s.client.CanonicalHeader(name), value)
		}
	}

	if s.userInfo != nil {
		header(UserHeader, s.userInfo.Username())
		if s.basicAuth != "" {
			req.Header.Set("Authorization", "Basic "+s.basicAuth)
		} else if pass, ok := s.userInfo.Password(); ok {
			req.SetBasicAuth(s.userInfo.Username(), pass)
		}
	}
	header(CatalogHeader, s.catalog)
	header(SchemaHeader, s.schema)
	header(TimeZoneHeader, s.timezone)
	header(ClientInfoHeader, s.clientInfo)
	header(TransactionHeader, s.transactionId)
	if len(s.sessionParams) > 0 {
		header(SessionHeader, s.client.generateSessionHeader(s.sessionParams))
	}
	if len(s.clientTags) > 0 {
		header(ClientTagHeader, strings.Join(s.clientTags, ","))
	}
	return s.requestOptions
}

// Do sends req, retrying transient network errors and 503 responses with
// exponential backoff, and decodes a 200 response into v. Transaction headers
// of every response update the session.
func (s *Session) Do(ctx context.Context, req *http.Request, v any) (*http.Response, error) {
	req = req.WithContext(ctx)

	// The body is replayed on retries.
	if req.Body != nil && req.GetBody == nil {
		bodyBytes, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	retryDelay := time.Second
	backoff := func() {
		if req.GetBody != nil {
			req.Body, _ = req.GetBody()
		}
		time.Sleep(retryDelay)
		retryDelay = min(retryDelay*2, MaxRetryDelay)
	}

	for attempt := 0; attempt < MaxRetryAttempts; attempt++ {
		resp, err := s.client.httpClient.Do(req)
		if err != nil {
			if !isRetryableNetError(err) {
				return nil, err
			}
			log.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying on connection error")
			backoff()
			continue
		}

		s.updateTransactionState(resp)

		switch resp.StatusCode {
		case http.StatusOK:
			return resp, s.client.decodeResponseBody(resp, v)
		case http.StatusServiceUnavailable:
			if closeErr := resp.Body.Close(); closeErr != nil {
				log.Debug().Err(closeErr).Msg("failed to close response body")
			}
			log.Debug().Int("attempt", attempt+1).Str("url", req.URL.String()).Msg("retrying on service unavailable")
			backoff()
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return resp, fmt.Errorf("presto server error: %d: %s", resp.StatusCode, string(body))
	}
	return nil, fmt.Errorf("max retries exceeded")
}

// isRetryableNetError reports whether err is a network failure worth retrying.
// Cancellation and deadline errors are not.
func isRetryableNetError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func (s *Session) updateTransactionState(resp *http.Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id := resp.Header.Get(s.client.CanonicalHeader(StartedTransactionHeader)); id != "" {
		s.transactionId = id
	} else if resp.Header.Get(s.client.CanonicalHeader(ClearTransactionHeader)) == "true" {
		s.transactionId = ""
	}
}

func (c *Client) IsTrino(isTrino bool) *Client {
	c.isTrino = isTrino
	return c
}

func (c *Client) ForceHTTPS(force bool) *Client {
	c.forceHTTPS = force
	return c
}

// TLSConfig installs a transport using cfg for HTTPS connections.
func (c *Client) TLSConfig(cfg *tls.Config) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cfg
	c.httpClient.Transport = transport
	return c
}

// HTTPClient replaces the underlying HTTP client.
func (c *Client) HTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) prepareURL(urlStr string) (*url.URL, error) {
	u, err := c.serverUrl.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	if c.forceHTTPS && u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u, nil
}

func (c *Client) prepareRequestBody(body any) (io.Reader, string, error) {
	if body == nil {
		return nil, "", nil
	}
	if s, ok := body.(string); ok {
		return strings.NewReader(s), "text/plain", nil
	}
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return nil, "", err
	}
	return buf, "application/json", nil
}

// CanonicalHeader rewrites an "X-Presto-" header name to "X-Trino-" when the
// client talks to Trino.
func (c *Client) CanonicalHeader(name string) string {
	if c.isTrino {
		return strings.Replace(name, "X-Presto", "X-Trino", 1)
	}
	return name
}

func (c *Client) generateSessionHeader(params map[string]any) string {
	pairs := make([]string, 0, len(params))
	for k, v := range params {
		pairs = append(pairs, k+"="+url.QueryEscape(fmt.Sprintf("%v", v)))
	}
	return strings.Join(pairs, ",")
}

// decodeResponseBody closes resp.Body. v may be nil, an io.Writer receiving
// the raw body, or a JSON destination.
func (c *Client) decodeResponseBody(resp *http.Response, v any) (err error) {
	defer func() {
		closeErr := resp.Body.Close()
		if err == nil {
			err = closeErr
		}
	}()

	if v == nil {
		return nil
	}

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == ContentEncodingGzip {
		gz, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return fmt.Errorf("failed to create gzip reader: %w", gzErr)
		}
		defer func() {
			if cErr := gz.Close(); cErr != nil {
				log.Debug().Err(cErr).Msg("failed to close gzip reader")
			}
		}()
		reader = gz
	}

	if w, ok := v.(io.Writer); ok {
		_, err = io.Copy(w, reader)
		return err
	}

	if err = json.NewDecoder(reader).Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
	return nil
}
