package prestoauth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/jcmturner/gokrb5/v8/spnego"
	"github.com/prestoclient/presto-go"
	"github.com/rs/zerolog/log"
)

// KerberosConfig configures SPNEGO authentication from a keytab.
type KerberosConfig struct {
	KeytabPath string
	// Principal is "user" or "user@REALM". A realm in the principal
	// overrides Realm.
	Principal  string
	Realm      string
	ConfigPath string // krb5.conf
	// ServiceSPN defaults to "HTTP/<coordinator host>".
	ServiceSPN string
}

func (c KerberosConfig) validate() error {
	var errs []error
	if c.KeytabPath == "" {
		errs = append(errs, errors.New("KeytabPath is required"))
	}
	if c.Principal == "" {
		errs = append(errs, errors.New("Principal is required"))
	}
	if c.Realm == "" {
		errs = append(errs, errors.New("Realm is required"))
	}
	if c.ConfigPath == "" {
		errs = append(errs, errors.New("ConfigPath is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("prestoauth: kerberos: %w", err)
	}
	return nil
}

// principal splits Principal into user name and realm.
func (c KerberosConfig) principal() (user, realm string) {
	if i := strings.LastIndex(c.Principal, "@"); i >= 0 {
		return c.Principal[:i], c.Principal[i+1:]
	}
	return c.Principal, c.Realm
}

func (c KerberosConfig) spn(req *http.Request) string {
	if c.ServiceSPN != "" {
		return c.ServiceSPN
	}
	return "HTTP/" + req.URL.Hostname()
}

type kerberosSession struct {
	cl *client.Client
}

func (k kerberosSession) Close() error {
	k.cl.Destroy()
	return nil
}

// Kerberos logs in with the keytab and returns an option that sets the
// Negotiate header. Close the returned closer to destroy the login.
func Kerberos(cfg KerberosConfig) (presto.RequestOption, io.Closer, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	kt, err := keytab.Load(cfg.KeytabPath)
	if err != nil {
		return nil, nil, fmt.Errorf("prestoauth: kerberos: failed to load keytab %q: %w", cfg.KeytabPath, err)
	}
	krb5Conf, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("prestoauth: kerberos: failed to load config %q: %w", cfg.ConfigPath, err)
	}

	user, realm := cfg.principal()
	cl := client.NewWithKeytab(user, realm, kt, krb5Conf)
	if err := cl.Login(); err != nil {
		return nil, nil, fmt.Errorf("prestoauth: kerberos: login failed: %w", err)
	}
	log.Debug().Str("user", user).Str("realm", realm).Msg("kerberos login succeeded")

	opt := func(req *http.Request) {
		if err := spnego.SetSPNEGOHeader(cl, req, cfg.spn(req)); err != nil {
			log.Debug().Err(err).Str("url", req.URL.Redacted()).Msg("failed to set SPNEGO header")
		}
	}
	return opt, kerberosSession{cl: cl}, nil
}
