// Package prestoauth adds bearer token, OAuth2 client credentials and
// Kerberos authentication to presto sessions and connectors.
//
// Each method yields a presto.RequestOption. Attach it to a session with
// Session.RequestOptions, or open a database/sql connector whose DSN carries
// the credentials:
//
//	connector, closer, err := prestoauth.NewConnector(
//	    "presto://host:8080/hive?oauth2_client_id=id&oauth2_client_secret=s&oauth2_token_url=https://idp/token")
//	defer closer.Close()
//	db := sql.OpenDB(connector)
package prestoauth

import (
	"database/sql/driver"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/prestoclient/presto-go"
	"github.com/rs/zerolog/log"
)

// DSN parameters consumed here. They are removed before the DSN reaches
// presto.NewConnector, which would otherwise send them as session properties.
const (
	paramAccessToken = "access_token"

	paramClientID     = "oauth2_client_id"
	paramClientSecret = "oauth2_client_secret"
	paramTokenURL     = "oauth2_token_url"
	paramScopes       = "oauth2_scopes"

	paramKeytab     = "kerberos_keytab"
	paramPrincipal  = "kerberos_principal"
	paramRealm      = "kerberos_realm"
	paramKrb5Config = "kerberos_config"
	paramServiceSPN = "kerberos_service_spn"
)

var authParams = []string{
	paramAccessToken,
	paramClientID, paramClientSecret, paramTokenURL, paramScopes,
	paramKeytab, paramPrincipal, paramRealm, paramKrb5Config, paramServiceSPN,
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// splitDSN removes the authentication parameters from dsn and returns them
// separately.
func splitDSN(dsn string) (url.Values, string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, "", fmt.Errorf("prestoauth: invalid DSN: %w", err)
	}
	query := u.Query()
	params := url.Values{}
	for _, key := range authParams {
		if query.Has(key) {
			params.Set(key, query.Get(key))
			query.Del(key)
		}
	}
	u.RawQuery = query.Encode()
	return params, u.String(), nil
}

// optionFromParams picks the authentication method named by the DSN
// parameters. A nil option means none was requested.
func optionFromParams(params url.Values) (presto.RequestOption, io.Closer, error) {
	switch {
	case params.Get(paramAccessToken) != "":
		return BearerToken(params.Get(paramAccessToken)), nopCloser{}, nil

	case params.Has(paramClientID):
		opt, err := ClientCredentials(OAuth2Config{
			ClientID:     params.Get(paramClientID),
			ClientSecret: params.Get(paramClientSecret),
			TokenURL:     params.Get(paramTokenURL),
			Scopes:       splitScopes(params.Get(paramScopes)),
		})
		if err != nil {
			return nil, nil, err
		}
		return opt, nopCloser{}, nil

	case params.Has(paramKeytab) || params.Has(paramPrincipal):
		return Kerberos(KerberosConfig{
			KeytabPath: params.Get(paramKeytab),
			Principal:  params.Get(paramPrincipal),
			Realm:      params.Get(paramRealm),
			ConfigPath: params.Get(paramKrb5Config),
			ServiceSPN: params.Get(paramServiceSPN),
		})
	}
	return nil, nopCloser{}, nil
}

func splitScopes(s string) []string {
	var scopes []string
	for _, scope := range strings.Split(s, ",") {
		if scope = strings.TrimSpace(scope); scope != "" {
			scopes = append(scopes, scope)
		}
	}
	return scopes
}

// NewConnector opens a connector for dsn with the authentication its
// parameters describe:
//
//   - access_token: a static bearer token
//   - oauth2_client_id, oauth2_client_secret, oauth2_token_url and optional
//     comma separated oauth2_scopes: the OAuth2 client credentials flow
//   - kerberos_keytab, kerberos_principal, kerberos_realm, kerberos_config
//     and optional kerberos_service_spn: SPNEGO
//
// The closer releases Kerberos credentials and must be called once the
// connector is no longer used. It is never nil when err is nil.
func NewConnector(dsn string, opts ...presto.ConnectorOption) (driver.Connector, io.Closer, error) {
	params, cleanDSN, err := splitDSN(dsn)
	if err != nil {
		return nil, nil, err
	}
	authOpt, closer, err := optionFromParams(params)
	if err != nil {
		return nil, nil, err
	}
	if authOpt != nil {
		setup := presto.WithSessionSetup(func(s *presto.Session) {
			s.RequestOptions(authOpt)
		})
		opts = append([]presto.ConnectorOption{setup}, opts...)
	}

	connector, err := presto.NewConnector(cleanDSN, opts...)
	if err != nil {
		_ = closer.Close()
		return nil, nil, err
	}
	log.Debug().Bool("authenticated", authOpt != nil).Msg("prestoauth connector created")
	return connector, closer, nil
}
