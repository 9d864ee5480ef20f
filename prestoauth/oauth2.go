package prestoauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prestoclient/presto-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// BearerToken sends a fixed token, such as a pre-issued JWT.
func BearerToken(token string) presto.RequestOption {
	return TokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// TokenSource sends tokens from ts. A token that cannot be obtained is logged
// and the request goes out unauthenticated; the coordinator then answers 401.
func TokenSource(ts oauth2.TokenSource) presto.RequestOption {
	ts = oauth2.ReuseTokenSource(nil, ts)
	return func(req *http.Request) {
		token, err := ts.Token()
		if err != nil {
			log.Debug().Err(err).Str("url", req.URL.Redacted()).Msg("failed to obtain oauth2 token")
			return
		}
		token.SetAuthHeader(req)
	}
}

// OAuth2Config configures the client credentials flow.
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func (c OAuth2Config) validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("ClientID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("ClientSecret is required"))
	}
	if c.TokenURL == "" {
		errs = append(errs, errors.New("TokenURL is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("prestoauth: oauth2: %w", err)
	}
	return nil
}

// ClientCredentials fetches tokens from cfg.TokenURL and refreshes them
// before they expire. The option is safe for concurrent use.
func ClientCredentials(cfg OAuth2Config) (presto.RequestOption, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return TokenSource(cc.TokenSource(context.Background())), nil
}
