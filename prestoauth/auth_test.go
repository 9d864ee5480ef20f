package prestoauth

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, token string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + token + `","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestSplitDSN(t *testing.T) {
	t.Run("strips every auth parameter", func(t *testing.T) {
		params, clean, err := splitDSN("presto://host:8080/hive/default?access_token=tok" +
			"&kerberos_keytab=/etc/presto.keytab&kerberos_principal=user@REALM&kerberos_realm=REALM" +
			"&kerberos_config=/etc/krb5.conf&kerberos_service_spn=HTTP/presto.example.com" +
			"&oauth2_scopes=a,b&timezone=UTC")
		require.NoError(t, err)

		assert.Equal(t, "tok", params.Get(paramAccessToken))
		assert.Equal(t, "user@REALM", params.Get(paramPrincipal))
		assert.Equal(t, "HTTP/presto.example.com", params.Get(paramServiceSPN))
		assert.Equal(t, "a,b", params.Get(paramScopes))
		assert.Equal(t, "presto://host:8080/hive/default?timezone=UTC", clean)
	})

	t.Run("no auth parameters", func(t *testing.T) {
		params, clean, err := splitDSN("presto://host:8080/hive?timezone=UTC")
		require.NoError(t, err)
		assert.Empty(t, params)
		assert.Equal(t, "presto://host:8080/hive?timezone=UTC", clean)
	})

	t.Run("invalid DSN", func(t *testing.T) {
		_, _, err := splitDSN("://bad")
		assert.ErrorContains(t, err, "invalid DSN")
	})
}

func TestSplitScopes(t *testing.T) {
	assert.Equal(t, []string{"read", "write"}, splitScopes(" read, ,write "))
	assert.Nil(t, splitScopes(""))
}

func TestOptionFromParams(t *testing.T) {
	t.Run("access token wins", func(t *testing.T) {
		params, _, err := splitDSN("presto://h?access_token=tok&oauth2_client_id=id")
		require.NoError(t, err)
		opt, closer, err := optionFromParams(params)
		require.NoError(t, err)
		require.NotNil(t, opt)
		assert.NoError(t, closer.Close())

		req := httptest.NewRequest(http.MethodGet, "http://presto:8080/v1/statement", nil)
		opt(req)
		assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
	})

	t.Run("client credentials", func(t *testing.T) {
		srv, _ := tokenServer(t, "cc-token")
		params, _, err := splitDSN("presto://h?oauth2_client_id=id&oauth2_client_secret=s&oauth2_token_url=" + srv.URL)
		require.NoError(t, err)
		opt, _, err := optionFromParams(params)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "http://presto:8080/v1/statement", nil)
		opt(req)
		assert.Equal(t, "Bearer cc-token", req.Header.Get("Authorization"))
	})

	t.Run("incomplete client credentials", func(t *testing.T) {
		params, _, err := splitDSN("presto://h?oauth2_client_id=id")
		require.NoError(t, err)
		_, _, err = optionFromParams(params)
		assert.ErrorContains(t, err, "ClientSecret is required")
		assert.ErrorContains(t, err, "TokenURL is required")
	})

	t.Run("incomplete kerberos", func(t *testing.T) {
		params, _, err := splitDSN("presto://h?kerberos_keytab=&kerberos_principal=user@REALM&kerberos_realm=REALM&kerberos_config=/etc/krb5.conf")
		require.NoError(t, err)
		_, _, err = optionFromParams(params)
		assert.ErrorContains(t, err, "KeytabPath is required")
	})

	t.Run("none", func(t *testing.T) {
		opt, closer, err := optionFromParams(nil)
		require.NoError(t, err)
		assert.Nil(t, opt)
		assert.NotNil(t, closer)
	})
}

func TestNewConnector(t *testing.T) {
	t.Run("sends the token to the coordinator", func(t *testing.T) {
		var auth atomic.Value
		coordinator := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth.Store(r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"q1","columns":[{"name":"x","type":"integer"}],"data":[[1]],"stats":{"state":"FINISHED"}}`))
		}))
		defer coordinator.Close()

		dsn := "presto://" + coordinator.Listener.Addr().String() + "/hive?access_token=secret-token"
		connector, closer, err := NewConnector(dsn)
		require.NoError(t, err)
		defer closer.Close()

		db := sql.OpenDB(connector)
		defer db.Close()
		var x int
		require.NoError(t, db.QueryRowContext(context.Background(), "SELECT 1").Scan(&x))
		assert.Equal(t, 1, x)
		assert.Equal(t, "Bearer secret-token", auth.Load())
	})

	t.Run("no auth", func(t *testing.T) {
		connector, closer, err := NewConnector("presto://localhost:8080/hive")
		require.NoError(t, err)
		assert.NotNil(t, connector)
		assert.NoError(t, closer.Close())
	})

	t.Run("invalid DSN", func(t *testing.T) {
		_, _, err := NewConnector("://bad")
		assert.Error(t, err)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		_, _, err := NewConnector("mysql://localhost/db?access_token=x")
		assert.ErrorContains(t, err, "unsupported scheme")
	})
}
