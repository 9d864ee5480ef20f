package presto

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:8080")
	require.NoError(t, err)
	assert.Empty(t, c.basicAuth)
	assert.Same(t, c, c.Session.client)

	c, err = NewClient("http://localhost:8080", "secret-token")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", c.basicAuth)

	_, err = NewClient("://invalid")
	assert.ErrorContains(t, err, "invalid server URL")
}

func TestSession_Clone(t *testing.T) {
	c, _ := NewClient("http://localhost")
	c.Catalog("base").SessionParam("k", "v").ClientTags("t1")

	s := c.NewSession()
	s.Catalog("new").SessionParam("k", "v2").AppendClientTag("t2")

	assert.Equal(t, "base", c.catalog)
	assert.Equal(t, "v", c.sessionParams["k"])
	assert.Equal(t, []string{"t1"}, c.clientTags)

	assert.Equal(t, "new", s.catalog)
	assert.Equal(t, "v2", s.sessionParams["k"])
	assert.Equal(t, []string{"t1", "t2"}, s.clientTags)
	assert.Same(t, c, s.client)
}

func TestSession_Headers(t *testing.T) {
	tests := []struct {
		name   string
		trino  bool
		setup  func(*Session)
		header string
		want   string
	}{
		{"default user", false, func(*Session) {}, "X-Presto-User", DefaultUser},
		{"catalog", false, func(s *Session) { s.Catalog("hive") }, "X-Presto-Catalog", "hive"},
		{"schema in trino mode", true, func(s *Session) { s.Schema("web") }, "X-Trino-Schema", "web"},
		{"time zone", false, func(s *Session) { s.TimeZone("UTC") }, "X-Presto-Time-Zone", "UTC"},
		{"client tags", false, func(s *Session) { s.ClientTags("a", "b") }, "X-Presto-Client-Tags", "a,b"},
		{"session property", false, func(s *Session) { s.SessionParam("path", "/a/b") }, "X-Presto-Session", "path=%2Fa%2Fb"},
		{"removed session property", false, func(s *Session) { s.SessionParam("p", 1).SessionParam("p", nil) }, "X-Presto-Session", ""},
		{"basic auth", false, func(s *Session) { s.UserPassword("u", "p") }, "Authorization", "Basic dTpw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := NewClient("http://localhost")
			c.IsTrino(tt.trino)
			s := c.NewSession()
			tt.setup(s)
			req, err := s.NewRequest(http.MethodGet, "/", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Header.Get(tt.header))
		})
	}
}

func TestSession_ClearSessionParams(t *testing.T) {
	s := &Session{sessionParams: map[string]any{"a": 1}}
	s.ClearSessionParams()
	assert.Empty(t, s.sessionParams)
}

func TestNewRequest_Body(t *testing.T) {
	c, _ := NewClient("http://localhost")
	c.ForceHTTPS(true)
	s := c.NewSession()

	req, err := s.NewRequest(http.MethodPost, "/v1/statement", map[string]string{"sql": "select 1"})
	require.NoError(t, err)
	assert.Equal(t, "https://localhost/v1/statement", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, ContentEncodingGzip, req.Header.Get("Accept-Encoding"))

	req, err = s.NewRequest(http.MethodPost, "/", "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", req.Header.Get("Content-Type"))
}

func TestSession_RequestOptions(t *testing.T) {
	c, _ := NewClient("http://localhost")
	s := c.NewSession().RequestOptions(func(r *http.Request) {
		r.Header.Set("Authorization", "Negotiate abc")
		r.Header.Set("X-Custom", "session")
	})

	req, err := s.NewRequest(http.MethodGet, "/", nil, func(r *http.Request) { r.Header.Set("X-Custom", "call") })
	require.NoError(t, err)
	assert.Equal(t, "Negotiate abc", req.Header.Get("Authorization"))
	assert.Equal(t, "call", req.Header.Get("X-Custom"), "per-call options run last")

	cloned := s.Clone()
	req, _ = cloned.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "Negotiate abc", req.Header.Get("Authorization"))

	cloned.RequestOptions()
	req, _ = cloned.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, req.Header.Get("Authorization"))
	req, _ = s.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "Negotiate abc", req.Header.Get("Authorization"))
}

func TestDo_TransactionState(t *testing.T) {
	var cleared atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cleared.Load() {
			w.Header().Set(ClearTransactionHeader, "true")
		} else {
			w.Header().Set(StartedTransactionHeader, "tx123")
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	s := c.NewSession()

	req, _ := s.NewRequest(http.MethodGet, "/", nil)
	_, err := s.Do(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "tx123", s.transactionId)

	req, _ = s.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "tx123", req.Header.Get(TransactionHeader))

	cleared.Store(true)
	_, err = s.Do(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Empty(t, s.transactionId)
}

func TestDo_RetriesServiceUnavailable(t *testing.T) {
	var attempts atomic.Int32
	var bodies []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	s := c.NewSession()

	// A body without GetBody must still be replayed.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/", io.NopCloser(strings.NewReader("SELECT 1")))
	s.applyHeaders(req)

	var res map[string]string
	_, err := s.Do(context.Background(), req, &res)
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, "ok", res["status"])
	assert.Equal(t, []string{"SELECT 1", "SELECT 1", "SELECT 1"}, bodies)
}

func TestDo_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid query syntax"))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	s := c.NewSession()
	req, _ := s.NewRequest(http.MethodGet, "/", nil)
	resp, err := s.Do(context.Background(), req, nil)
	assert.ErrorContains(t, err, "400: invalid query syntax")
	assert.NotNil(t, resp)
}

// flakyTransport fails the first failures round trips with a dial error.
type flakyTransport struct {
	failures int
	calls    int
	next     http.RoundTripper
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	}
	return f.next.RoundTrip(req)
}

func TestDo_ConnectionErrors(t *testing.T) {
	t.Run("retried", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}))
		defer srv.Close()

		c, _ := NewClient(srv.URL)
		transport := &flakyTransport{failures: 2, next: srv.Client().Transport}
		c.HTTPClient(&http.Client{Transport: transport})
		s := c.NewSession()

		var res map[string]string
		req, _ := s.NewRequest(http.MethodGet, "/", nil)
		_, err := s.Do(context.Background(), req, &res)
		require.NoError(t, err)
		assert.Equal(t, 3, transport.calls)
		assert.Equal(t, "ok", res["status"])
	})

	t.Run("canceled context is not retried", func(t *testing.T) {
		c, _ := NewClient("http://127.0.0.1:1")
		s := c.NewSession()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		req, _ := s.NewRequest(http.MethodGet, "/", nil)
		_, err := s.Do(ctx, req, nil)
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "max retries exceeded")
	})
}

func TestIsRetryableNetError(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"plain error", fmt.Errorf("some other error"), false},
		{"op error", opErr, true},
		{"wrapped op error", fmt.Errorf("request failed: %w", opErr), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableNetError(tt.err))
		})
	}
}

func TestDecodeResponseBody(t *testing.T) {
	c := &Client{}
	body := func(s string) io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }

	t.Run("nil destination", func(t *testing.T) {
		assert.NoError(t, c.decodeResponseBody(&http.Response{Body: body("data")}, nil))
	})

	t.Run("writer destination", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, c.decodeResponseBody(&http.Response{Body: body("raw-data")}, &buf))
		assert.Equal(t, "raw-data", buf.String())
	})

	t.Run("gzip", func(t *testing.T) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		_, _ = gw.Write([]byte(`{"columns":[{"name":"tags","type":"array(varchar)"}]}`))
		_ = gw.Close()

		resp := &http.Response{Header: http.Header{"Content-Encoding": {"gzip"}}, Body: io.NopCloser(&buf)}
		var qr QueryResults
		require.NoError(t, c.decodeResponseBody(resp, &qr))
		require.Len(t, qr.Columns, 1)
		assert.Equal(t, "array(varchar)", qr.Columns[0].Signature().String())
	})

	t.Run("bad gzip", func(t *testing.T) {
		resp := &http.Response{Header: http.Header{"Content-Encoding": {"gzip"}}, Body: body("not-gzipped")}
		assert.Error(t, c.decodeResponseBody(resp, &map[string]any{}))
	})
}

func TestNewErrorResponse(t *testing.T) {
	err := NewErrorResponse(&http.Response{
		StatusCode: http.StatusBadRequest,
		Body:       io.NopCloser(strings.NewReader("bad SQL syntax")),
	})
	var errResp *ErrorResponse
	require.ErrorAs(t, err, &errResp)
	assert.Equal(t, "bad SQL syntax", errResp.Message)
	assert.Equal(t, "bad SQL syntax (status code: 400)", err.Error())
}

func TestClient_Transport(t *testing.T) {
	c, _ := NewClient("http://localhost")
	tlsCfg := &tls.Config{InsecureSkipVerify: true}
	c.TLSConfig(tlsCfg)
	transport, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Same(t, tlsCfg, transport.TLSClientConfig)

	custom := &http.Client{Timeout: 42}
	c.HTTPClient(custom)
	assert.Same(t, custom, c.httpClient)
}

func TestSession_ConcurrentNewRequest(t *testing.T) {
	c, _ := NewClient("http://localhost")
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := c.NewSession().Catalog(fmt.Sprintf("cat-%d", i))
			req, _ := s.NewRequest(http.MethodGet, "/", nil)
			assert.Equal(t, fmt.Sprintf("cat-%d", i), req.Header.Get(CatalogHeader))
		}()
	}
	wg.Wait()
}
