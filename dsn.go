package presto

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// dsnConfig is a parsed data source name.
type dsnConfig struct {
	host       string
	port       string
	user       string
	password   string
	catalog    string
	schema     string
	isTrino    bool
	timezone   string
	clientTags []string
	clientInfo string
	source     string

	sslCert       string
	sslKey        string
	sslCA         string
	sslSkipVerify bool

	// Unrecognized query parameters become session properties.
	sessionProps map[string]string
}

// parseDSN parses
//
//	presto://[user[:password]@]host[:port][/catalog[/schema]][?key=value&...]
//
// or the same with the trino scheme. Recognized parameters are timezone,
// client_tags, client_info, source, ssl_cert, ssl_key, ssl_ca and
// ssl_skip_verify.
func parseDSN(dsn string) (*dsnConfig, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}

	cfg := &dsnConfig{port: "8080", sessionProps: make(map[string]string)}
	switch u.Scheme {
	case "presto":
	case "trino":
		cfg.isTrino = true
	default:
		return nil, fmt.Errorf("unsupported scheme %q: must be presto or trino", u.Scheme)
	}

	if u.User != nil {
		cfg.user = u.User.Username()
		cfg.password, _ = u.User.Password()
	}

	cfg.host = u.Hostname()
	if cfg.host == "" {
		return nil, fmt.Errorf("missing host in DSN")
	}
	if p := u.Port(); p != "" {
		cfg.port = p
	}

	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		cfg.catalog, cfg.schema, _ = strings.Cut(path, "/")
	}

	for key, values := range u.Query() {
		val := values[0]
		switch key {
		case "timezone":
			cfg.timezone = val
		case "client_tags":
			cfg.clientTags = strings.Split(val, ",")
		case "client_info":
			cfg.clientInfo = val
		case "source":
			cfg.source = val
		case "ssl_cert":
			cfg.sslCert = val
		case "ssl_key":
			cfg.sslKey = val
		case "ssl_ca":
			cfg.sslCA = val
		case "ssl_skip_verify":
			skip, err := strconv.ParseBool(val)
			if err != nil {
				return nil, fmt.Errorf("invalid ssl_skip_verify %q: %w", val, err)
			}
			cfg.sslSkipVerify = skip
		default:
			cfg.sessionProps[key] = val
		}
	}
	return cfg, nil
}

func (cfg *dsnConfig) hasTLS() bool {
	return cfg.sslCert != "" || cfg.sslKey != "" || cfg.sslCA != "" || cfg.sslSkipVerify
}

// serverURL switches to https when any TLS option is set.
func (cfg *dsnConfig) serverURL() string {
	scheme := "http"
	if cfg.hasTLS() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%s", scheme, cfg.host, cfg.port)
}

// buildTLSConfig returns nil when no TLS option is set.
func (cfg *dsnConfig) buildTLSConfig() (*tls.Config, error) {
	if !cfg.hasTLS() {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.sslSkipVerify}

	if cfg.sslCA != "" {
		pem, err := os.ReadFile(cfg.sslCA)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA file %s", cfg.sslCA)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.sslCert != "" || cfg.sslKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.sslCert, cfg.sslKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}
